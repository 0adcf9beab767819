// Package journal reads the game's journal directory: rotating JSON-lines
// event logs plus the atomically rewritten Status.json / Cargo.json snapshots.
// It decodes the events the engine cares about into typed records and feeds
// them to a dispatcher; everything else is ignored.
package journal

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Envelope is the part every journal line shares.
type Envelope struct {
	Timestamp time.Time `json:"timestamp"`
	EventName string    `json:"event"`
}

func (e Envelope) envelope() Envelope { return e }

// Time returns the event timestamp.
func (e Envelope) Time() time.Time { return e.Timestamp }

// Event is any decoded journal record.
type Event interface {
	envelope() Envelope
	Time() time.Time
}

type LoadGame struct {
	Envelope
	Ship      string `json:"Ship"`
	ShipName  string `json:"ShipName"`
	ShipIdent string `json:"ShipIdent"`
}

type Loadout struct {
	Envelope
	Ship          string `json:"Ship"`
	ShipName      string `json:"ShipName"`
	ShipIdent     string `json:"ShipIdent"`
	CargoCapacity int    `json:"CargoCapacity"`
}

// Location covers Location, FSDJump and CarrierJump: all carry the current
// system and its galactic position.
type Location struct {
	Envelope
	StarSystem string     `json:"StarSystem"`
	StarPos    [3]float64 `json:"StarPos"`
}

// Ring is one entry of a Scan event's Rings array. Radii are meters, mass is
// megatons.
type Ring struct {
	Name      string  `json:"Name"`
	RingClass string  `json:"RingClass"`
	MassMT    float64 `json:"MassMT"`
	InnerRad  float64 `json:"InnerRad"`
	OuterRad  float64 `json:"OuterRad"`
}

type Scan struct {
	Envelope
	BodyName              string  `json:"BodyName"`
	DistanceFromArrivalLS float64 `json:"DistanceFromArrivalLS"`
	Rings                 []Ring  `json:"Rings"`
	ReserveLevel          string  `json:"ReserveLevel"`
}

// Signal is one hotspot signal of an SAASignalsFound event.
type Signal struct {
	Type          string `json:"Type"`
	TypeLocalised string `json:"Type_Localised"`
	Count         int    `json:"Count"`
}

type SAASignalsFound struct {
	Envelope
	BodyName string   `json:"BodyName"`
	Signals  []Signal `json:"Signals"`
}

type MaterialCollected struct {
	Envelope
	Category string `json:"Category"`
	Name     string `json:"Name"`
	Count    int    `json:"Count"`
}

// CargoItem is one inventory entry of a Cargo event or Cargo.json snapshot.
type CargoItem struct {
	Name          string `json:"Name"`
	NameLocalised string `json:"Name_Localised"`
	Count         int    `json:"Count"`
	Stolen        int    `json:"Stolen"`
}

type Cargo struct {
	Envelope
	Vessel    string      `json:"Vessel"`
	Count     int         `json:"Count"`
	Inventory []CargoItem `json:"Inventory"`
}

type MarketSell struct {
	Envelope
	Type  string `json:"Type"`
	Count int    `json:"Count"`
}

type EjectCargo struct {
	Envelope
	Type  string `json:"Type"`
	Count int    `json:"Count"`
}

// ShipSwitch covers ShipyardSwap and ShipyardBuy: the cargo capacity must be
// re-read from the next status snapshot.
type ShipSwitch struct {
	Envelope
	ShipType string `json:"ShipType"`
}

// ModuleChange covers ModuleBuy, ModuleSell and ModuleStore.
type ModuleChange struct {
	Envelope
	Slot       string `json:"Slot"`
	BuyItem    string `json:"BuyItem"`
	SellItem   string `json:"SellItem"`
	StoredItem string `json:"StoredItem"`
}

// CargoRack reports whether the changed module is a cargo rack, which alters
// capacity.
func (m *ModuleChange) CargoRack() bool {
	for _, item := range []string{m.BuyItem, m.SellItem, m.StoredItem} {
		if strings.Contains(strings.ToLower(item), "cargorack") {
			return true
		}
	}
	return false
}

type LaunchDrone struct {
	Envelope
	Type string `json:"Type"`
}

// Prospector reports whether the launched drone is a prospector limpet.
func (l *LaunchDrone) Prospector() bool {
	return strings.EqualFold(l.Type, "Prospector")
}

// ProspectMaterial is one material proportion reported by a prospector.
type ProspectMaterial struct {
	Name       string  `json:"Name"`
	Proportion float64 `json:"Proportion"`
}

type ProspectedAsteroid struct {
	Envelope
	Materials []ProspectMaterial `json:"Materials"`
	Content   string             `json:"Content"`
	Remaining float64            `json:"Remaining"`
}

type MiningRefined struct {
	Envelope
	Type          string `json:"Type"`
	TypeLocalised string `json:"Type_Localised"`
}

// StatusSnapshot is the synthetic event for a rewritten Status.json. It is the
// authoritative source for cargo weight and capacity.
type StatusSnapshot struct {
	Envelope
	Cargo         float64 `json:"Cargo"`
	CargoCapacity int     `json:"CargoCapacity"`
	SystemName    string  `json:"SystemName"`
}

// CargoSnapshot is the synthetic event for a rewritten Cargo.json.
type CargoSnapshot struct {
	Envelope
	Count     int         `json:"Count"`
	Inventory []CargoItem `json:"Inventory"`
}

// Decode parses one journal line into its typed event. Events the engine does
// not care about decode to (nil, nil); malformed lines return an error so the
// caller can skip and log them.
func Decode(line []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, fmt.Errorf("malformed journal line: %w", err)
	}

	var ev Event
	switch env.EventName {
	case "LoadGame":
		ev = &LoadGame{}
	case "Loadout":
		ev = &Loadout{}
	case "Location", "FSDJump", "CarrierJump":
		ev = &Location{}
	case "Scan":
		ev = &Scan{}
	case "SAASignalsFound":
		ev = &SAASignalsFound{}
	case "MaterialCollected":
		ev = &MaterialCollected{}
	case "Cargo":
		ev = &Cargo{}
	case "MarketSell":
		ev = &MarketSell{}
	case "EjectCargo":
		ev = &EjectCargo{}
	case "ShipyardSwap", "ShipyardBuy":
		ev = &ShipSwitch{}
	case "ModuleBuy", "ModuleSell", "ModuleStore":
		ev = &ModuleChange{}
	case "LaunchDrone":
		ev = &LaunchDrone{}
	case "ProspectedAsteroid":
		ev = &ProspectedAsteroid{}
	case "MiningRefined":
		ev = &MiningRefined{}
	default:
		return nil, nil
	}

	if err := json.Unmarshal(line, ev); err != nil {
		return nil, fmt.Errorf("malformed %s event: %w", env.EventName, err)
	}
	return ev, nil
}
