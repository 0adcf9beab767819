// Package session tracks one live mining session at a time: cargo deltas,
// prospector scans and refinery output are folded into per-material tonnage
// and yield statistics. The state machine is Idle, Active, Ending; exactly one
// session exists at a time and precondition violations change no state.
package session

import (
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/elitemining/internal/journal"
	"github.com/banshee-data/elitemining/internal/materials"
	"github.com/banshee-data/elitemining/internal/timeutil"
)

// CargoFullIdle is how long cargo must sit full with no delta before the
// aggregator raises the end-session prompt.
const CargoFullIdle = 60 * time.Second

var (
	ErrSessionActive   = errors.New("a session is already active")
	ErrNoActiveSession = errors.New("no active session")
	ErrNotEnding       = errors.New("no session awaiting persist")
)

// Non-mining cargo: limpets show up as drones, plus mission data and salvage.
var skipItem = regexp.MustCompile(`(?i)limpet|drone|data|scrap|wreckage|blackbox|hostage|occupiedcryopod`)

// State is the aggregator's lifecycle position.
type State int

const (
	Idle State = iota
	Active
	Ending
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Ending:
		return "ending"
	default:
		return "idle"
	}
}

// SessionResult is the immutable summary emitted by Persist. Copies of it are
// handed to the persistence layer; the aggregator keeps nothing after.
type SessionResult struct {
	ID           string         `json:"id"`
	System       string         `json:"system"`
	Body         string         `json:"body"`
	Start        time.Time      `json:"start"`
	End          time.Time      `json:"end"`
	Duration     time.Duration  `json:"duration"`
	Materials    map[string]int `json:"materials"`
	TotalTons    int            `json:"total_tons"`
	TPH          *float64       `json:"tph,omitempty"`
	Prospectors  int            `json:"prospectors"`
	Engineering  int            `json:"engineering_materials"`
	HitRate      float64        `json:"hit_rate"`
	AvgQuality   float64        `json:"avg_quality"`
	BestMaterial string         `json:"best_material,omitempty"`
}

// Status is the live view served to the UI while a session runs.
type Status struct {
	State       string         `json:"state"`
	SessionID   string         `json:"session_id,omitempty"`
	System      string         `json:"system,omitempty"`
	Body        string         `json:"body,omitempty"`
	Start       time.Time      `json:"start,omitzero"`
	Elapsed     time.Duration  `json:"elapsed,omitempty"`
	Materials   map[string]int `json:"materials,omitempty"`
	TotalTons   int            `json:"total_tons"`
	Prospectors int            `json:"prospectors"`
	PromptFull  bool           `json:"prompt_cargo_full"`
}

// Aggregator is the session state machine. It implements journal.SessionSink;
// only the dispatcher goroutine calls HandleEvent, while Start/Stop/Status may
// be called from API handlers, so all state sits behind the mutex.
type Aggregator struct {
	Clock      timeutil.Clock
	Aliases    *materials.Table
	AutoStart  bool
	PromptFull bool

	mu sync.Mutex

	state State
	sess  *live

	// Ship state tracked across sessions.
	cargo    map[string]int
	capacity int
	weight   float64
}

// live is the mutable state of one running session.
type live struct {
	id     string
	system string
	body   string
	start  time.Time
	end    time.Time

	startCargo  map[string]int
	refined     map[string]int
	prospectors int
	engineering int

	prospected  int
	withContent int
	qualities   []float64

	fullSince time.Time
}

// New returns an idle aggregator.
func New(clock timeutil.Clock, aliases *materials.Table) *Aggregator {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if aliases == nil {
		aliases = materials.Default()
	}
	return &Aggregator{
		Clock:   clock,
		Aliases: aliases,
		cargo:   map[string]int{},
	}
}

// State returns the current lifecycle state.
func (a *Aggregator) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Start begins a session at the given location, snapshotting the current
// cargo. Fails with ErrSessionActive unless idle.
func (a *Aggregator) Start(system, body string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != Idle {
		return "", ErrSessionActive
	}
	a.begin(system, body)
	return a.sess.id, nil
}

// begin snapshots cargo and enters Active. Caller holds the mutex.
func (a *Aggregator) begin(system, body string) {
	snap := make(map[string]int, len(a.cargo))
	for k, v := range a.cargo {
		snap[k] = v
	}
	a.sess = &live{
		id:         uuid.New().String(),
		system:     system,
		body:       body,
		start:      a.Clock.Now(),
		startCargo: snap,
		refined:    map[string]int{},
	}
	a.state = Active
}

// Stop freezes the session clock and moves to Ending. The session is not
// summarized until Persist.
func (a *Aggregator) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != Active {
		return ErrNoActiveSession
	}
	a.sess.end = a.Clock.Now()
	a.state = Ending
	return nil
}

// Cancel discards the session without a result. Valid from Active or Ending.
func (a *Aggregator) Cancel() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == Idle {
		return ErrNoActiveSession
	}
	a.sess = nil
	a.state = Idle
	return nil
}

// Persist summarizes the ended session and returns to Idle. TPH is nil when
// the session lasted under a second.
func (a *Aggregator) Persist() (SessionResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != Ending {
		return SessionResult{}, ErrNotEnding
	}
	s := a.sess
	a.sess = nil
	a.state = Idle

	mined := a.minedLocked(s)
	total := 0
	best, bestTons := "", 0
	for m, t := range mined {
		total += t
		if t > bestTons || (t == bestTons && best != "" && m < best) {
			best, bestTons = m, t
		}
	}

	res := SessionResult{
		ID:          s.id,
		System:      s.system,
		Body:        s.body,
		Start:       s.start,
		End:         s.end,
		Duration:    s.end.Sub(s.start),
		Materials:   mined,
		TotalTons:   total,
		Prospectors: s.prospectors,
		Engineering: s.engineering,
	}
	if res.Duration >= time.Second {
		tph := float64(total) / res.Duration.Hours()
		res.TPH = &tph
	}
	if s.prospected > 0 {
		res.HitRate = float64(s.withContent) / float64(s.prospected)
	}
	if len(s.qualities) > 0 {
		res.AvgQuality = stat.Mean(s.qualities, nil)
	}
	res.BestMaterial = best
	return res, nil
}

// Status reports the live view, including the cargo-full prompt flag.
func (a *Aggregator) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()

	st := Status{State: a.state.String()}
	if a.sess == nil {
		return st
	}
	s := a.sess
	st.SessionID = s.id
	st.System = s.system
	st.Body = s.body
	st.Start = s.start
	st.Elapsed = a.Clock.Since(s.start)
	st.Materials = a.minedLocked(s)
	for _, t := range st.Materials {
		st.TotalTons += t
	}
	st.Prospectors = s.prospectors
	st.PromptFull = a.promptLocked(s)
	return st
}

// promptLocked reports whether cargo has sat full past the idle window.
func (a *Aggregator) promptLocked(s *live) bool {
	if !a.PromptFull || a.state != Active || s.fullSince.IsZero() {
		return false
	}
	return a.Clock.Since(s.fullSince) >= CargoFullIdle
}

// minedLocked computes the per-material tons mined so far: cargo delta versus
// the start snapshot, negatives ignored, with the refinery output overlaid on
// top when the cargo snapshot lags behind refinement.
func (a *Aggregator) minedLocked(s *live) map[string]int {
	mined := map[string]int{}
	for name, count := range a.cargo {
		delta := count - s.startCargo[name]
		if delta > 0 {
			mined[name] = delta
		}
	}
	for name, refined := range s.refined {
		if refined > mined[name] {
			mined[name] = refined
		}
	}
	return mined
}

// HandleEvent routes one journal event into the aggregator. Implements
// journal.SessionSink. Events never return errors here; anything unusable is
// simply ignored.
func (a *Aggregator) HandleEvent(ev journal.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch e := ev.(type) {
	case *journal.Loadout:
		a.capacity = e.CargoCapacity
	case *journal.ShipSwitch:
		// Capacity unknown until the next Loadout or status snapshot.
		a.capacity = 0
	case *journal.ModuleChange:
		if e.CargoRack() {
			a.capacity = 0
		}
	case *journal.StatusSnapshot:
		if e.CargoCapacity > 0 {
			a.capacity = e.CargoCapacity
		}
		a.weight = e.Cargo
		a.checkFullLocked()
	case *journal.Cargo:
		a.applyCargoLocked(e.Inventory, e.Count)
	case *journal.CargoSnapshot:
		a.applyCargoLocked(e.Inventory, e.Count)
	case *journal.LaunchDrone:
		if !e.Prospector() {
			return
		}
		if a.state == Idle && a.AutoStart {
			a.begin("", "")
		}
		if a.state == Active {
			a.sess.prospectors++
		}
	case *journal.ProspectedAsteroid:
		if a.state != Active {
			return
		}
		a.sess.prospected++
		best := 0.0
		for _, m := range e.Materials {
			if m.Proportion > best {
				best = m.Proportion
			}
		}
		if best > 0 {
			a.sess.withContent++
			a.sess.qualities = append(a.sess.qualities, best)
		}
	case *journal.MiningRefined:
		if a.state != Active {
			return
		}
		a.sess.refined[a.materialName(e.TypeLocalised, e.Type)]++
	case *journal.MarketSell:
		a.removeCargoLocked(e.Type, e.Count)
	case *journal.EjectCargo:
		a.removeCargoLocked(e.Type, e.Count)
	case *journal.MaterialCollected:
		if a.state == Active {
			a.sess.engineering += e.Count
		}
	}
}

// removeCargoLocked subtracts sold or jettisoned cargo from the tracked hold,
// flooring at zero. Without this a sale between sessions would inflate the
// next start snapshot and under-count its deltas.
func (a *Aggregator) removeCargoLocked(item string, count int) {
	if count <= 0 || item == "" {
		return
	}
	name := a.materialName("", item)
	if have, ok := a.cargo[name]; ok {
		if have <= count {
			delete(a.cargo, name)
		} else {
			a.cargo[name] = have - count
		}
	}
	a.weight -= float64(count)
	if a.weight < 0 {
		a.weight = 0
	}
	if a.sess != nil {
		a.sess.fullSince = time.Time{}
	}
	a.checkFullLocked()
}

// SetLocation records where the session is taking place. No-op while idle.
func (a *Aggregator) SetLocation(system, body string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sess != nil {
		a.sess.system = system
		a.sess.body = body
	}
}

// applyCargoLocked replaces the tracked cargo with a fresh inventory, skipping
// non-mining items, and resets the full-cargo idle timer when anything moved.
// The game often emits Cargo events carrying only the total; those update the
// hold weight and leave the per-material map alone.
func (a *Aggregator) applyCargoLocked(inv []journal.CargoItem, total int) {
	if len(inv) == 0 {
		if a.sess != nil && float64(total) != a.weight {
			a.sess.fullSince = time.Time{}
		}
		a.weight = float64(total)
		a.checkFullLocked()
		return
	}

	next := map[string]int{}
	for _, item := range inv {
		if skipItem.MatchString(item.Name) || skipItem.MatchString(item.NameLocalised) {
			continue
		}
		name := a.materialName(item.NameLocalised, item.Name)
		next[name] += item.Count
	}

	changed := len(next) != len(a.cargo)
	if !changed {
		for name, count := range next {
			if a.cargo[name] != count {
				changed = true
				break
			}
		}
	}
	a.cargo = next
	a.weight = float64(total)

	if a.sess != nil && changed {
		a.sess.fullSince = time.Time{}
	}
	a.checkFullLocked()
}

// checkFullLocked starts the cargo-full idle timer when the hold reaches
// capacity during an active session.
func (a *Aggregator) checkFullLocked() {
	if a.state != Active || a.capacity <= 0 {
		return
	}
	if a.weight >= float64(a.capacity) {
		if a.sess.fullSince.IsZero() {
			a.sess.fullSince = a.Clock.Now()
		}
	} else {
		a.sess.fullSince = time.Time{}
	}
}

// materialName returns the display name for a cargo commodity: the canonical
// table name when known, the localised name otherwise.
func (a *Aggregator) materialName(localised, internal string) string {
	name := localised
	if name == "" {
		name = strings.TrimPrefix(strings.TrimSuffix(internal, "_name;"), "$")
		name = materials.TitleCase(name)
	}
	if a.Aliases.Known(name) {
		return a.Aliases.Canonical(name)
	}
	return name
}
