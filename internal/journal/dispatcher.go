package journal

import (
	"sync"
	"time"

	"github.com/banshee-data/elitemining/internal/hotspotdb"
	"github.com/banshee-data/elitemining/internal/monitoring"
)

// VisitSink records system visits. *hotspotdb.DB satisfies it directly.
type VisitSink interface {
	AddVisitedSystem(name string, ts time.Time, coords *hotspotdb.Coords) error
}

// RingSink consumes the two ring-bearing events. The ingestor implements it.
type RingSink interface {
	HandleSignals(system string, coords *hotspotdb.Coords, ev *SAASignalsFound) error
	HandleScan(system string, ev *Scan) error
}

// SessionSink receives every event the live-session aggregator might care
// about: cargo, prospectors, refinery, ship changes, snapshots.
type SessionSink interface {
	HandleEvent(ev Event)
}

// Dispatcher routes decoded events to their consumers and owns the
// current-system state the ingestor depends on. All sinks are optional. It is
// driven from a single goroutine; the accessors are safe from others.
type Dispatcher struct {
	Visits  VisitSink
	Rings   RingSink
	Session SessionSink

	mu            sync.Mutex
	currentSystem string
	currentPos    *hotspotdb.Coords
}

// CurrentSystem returns the system from the most recent location event.
func (d *Dispatcher) CurrentSystem() (string, *hotspotdb.Coords) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.currentSystem, d.currentPos
}

// Dispatch routes one event. A failing sink is logged and never stops the
// stream.
func (d *Dispatcher) Dispatch(ev Event) {
	switch e := ev.(type) {
	case *Location:
		d.mu.Lock()
		d.currentSystem = e.StarSystem
		d.currentPos = &hotspotdb.Coords{X: e.StarPos[0], Y: e.StarPos[1], Z: e.StarPos[2]}
		pos := d.currentPos
		d.mu.Unlock()
		if d.Visits != nil && e.StarSystem != "" {
			if err := d.Visits.AddVisitedSystem(e.StarSystem, e.Timestamp, pos); err != nil {
				monitoring.Logf("failed to record visit to %s: %v", e.StarSystem, err)
			}
		}

	case *Scan:
		if d.Rings == nil {
			return
		}
		system, _ := d.CurrentSystem()
		if err := d.Rings.HandleScan(system, e); err != nil {
			monitoring.Logf("scan of %s not ingested: %v", e.BodyName, err)
		}

	case *SAASignalsFound:
		if d.Rings == nil {
			return
		}
		system, pos := d.CurrentSystem()
		if err := d.Rings.HandleSignals(system, pos, e); err != nil {
			monitoring.Logf("signals on %s not ingested: %v", e.BodyName, err)
		}

	case *StatusSnapshot:
		// Status.json names the system without coordinates; useful when the
		// reader started mid-session and no jump event has arrived yet.
		if e.SystemName != "" {
			d.mu.Lock()
			if d.currentSystem == "" {
				d.currentSystem = e.SystemName
			}
			d.mu.Unlock()
		}
		if d.Session != nil {
			d.Session.HandleEvent(ev)
		}

	default:
		if d.Session != nil {
			d.Session.HandleEvent(ev)
		}
	}
}

// Run consumes events until the channel closes.
func (d *Dispatcher) Run(events <-chan Event) {
	for ev := range events {
		d.Dispatch(ev)
	}
}
