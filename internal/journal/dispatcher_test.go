package journal

import (
	"errors"
	"testing"
	"time"

	"github.com/banshee-data/elitemining/internal/hotspotdb"
)

type fakeVisits struct {
	visits []string
	err    error
}

func (f *fakeVisits) AddVisitedSystem(name string, ts time.Time, coords *hotspotdb.Coords) error {
	f.visits = append(f.visits, name)
	return f.err
}

type fakeRings struct {
	signalSystems []string
	signalCoords  []*hotspotdb.Coords
	scanSystems   []string
	err           error
}

func (f *fakeRings) HandleSignals(system string, coords *hotspotdb.Coords, ev *SAASignalsFound) error {
	f.signalSystems = append(f.signalSystems, system)
	f.signalCoords = append(f.signalCoords, coords)
	return f.err
}

func (f *fakeRings) HandleScan(system string, ev *Scan) error {
	f.scanSystems = append(f.scanSystems, system)
	return f.err
}

type fakeSession struct {
	events []Event
}

func (f *fakeSession) HandleEvent(ev Event) { f.events = append(f.events, ev) }

func TestDispatcherRouting(t *testing.T) {
	visits := &fakeVisits{}
	rings := &fakeRings{}
	session := &fakeSession{}
	d := &Dispatcher{Visits: visits, Rings: rings, Session: session}

	d.Dispatch(&Location{StarSystem: "Paesia", StarPos: [3]float64{1, 2, 3}})
	if len(visits.visits) != 1 || visits.visits[0] != "Paesia" {
		t.Errorf("Location should record a visit, got %v", visits.visits)
	}
	system, pos := d.CurrentSystem()
	if system != "Paesia" || pos == nil || pos.X != 1 {
		t.Errorf("Current system not tracked: %q %+v", system, pos)
	}

	d.Dispatch(&SAASignalsFound{BodyName: "Paesia 2 A Ring"})
	if len(rings.signalSystems) != 1 || rings.signalSystems[0] != "Paesia" {
		t.Errorf("Signals should carry the current system, got %v", rings.signalSystems)
	}
	if rings.signalCoords[0] == nil || rings.signalCoords[0].Y != 2 {
		t.Errorf("Signals should carry current coords, got %+v", rings.signalCoords[0])
	}

	d.Dispatch(&Scan{BodyName: "Paesia 2"})
	if len(rings.scanSystems) != 1 || rings.scanSystems[0] != "Paesia" {
		t.Errorf("Scan should carry the current system, got %v", rings.scanSystems)
	}

	d.Dispatch(&Cargo{Count: 12})
	d.Dispatch(&LaunchDrone{Type: "Prospector"})
	if len(session.events) != 2 {
		t.Errorf("Cargo/drone events should flow to the session sink, got %d", len(session.events))
	}
}

func TestDispatcherStatusSnapshotSeedsSystem(t *testing.T) {
	session := &fakeSession{}
	d := &Dispatcher{Session: session}

	d.Dispatch(&StatusSnapshot{SystemName: "Delkar"})
	if system, _ := d.CurrentSystem(); system != "Delkar" {
		t.Errorf("Status snapshot should seed an unknown current system, got %q", system)
	}
	if len(session.events) != 1 {
		t.Errorf("Status snapshot should still reach the session sink")
	}

	// A jump event owns the current system; later snapshots never override it.
	d.Dispatch(&Location{StarSystem: "Paesia"})
	d.Dispatch(&StatusSnapshot{SystemName: "Somewhere Else"})
	if system, _ := d.CurrentSystem(); system != "Paesia" {
		t.Errorf("Snapshot overrode jump-derived system: %q", system)
	}
}

func TestDispatcherSinkErrorsDoNotStopStream(t *testing.T) {
	rings := &fakeRings{err: errors.New("db closed")}
	d := &Dispatcher{Rings: rings}

	d.Dispatch(&Location{StarSystem: "Paesia"})
	d.Dispatch(&SAASignalsFound{BodyName: "Paesia 2 A Ring"})
	d.Dispatch(&SAASignalsFound{BodyName: "Paesia 3 B Ring"})
	if len(rings.signalSystems) != 2 {
		t.Errorf("A failing sink must not stop dispatch, got %d calls", len(rings.signalSystems))
	}
}

func TestDispatcherNilSinks(t *testing.T) {
	d := &Dispatcher{}
	// Must not panic with no sinks wired.
	d.Dispatch(&Location{StarSystem: "Paesia"})
	d.Dispatch(&Scan{})
	d.Dispatch(&SAASignalsFound{})
	d.Dispatch(&Cargo{})
}

func TestDispatcherRun(t *testing.T) {
	session := &fakeSession{}
	d := &Dispatcher{Session: session}

	events := make(chan Event, 2)
	events <- &Cargo{Count: 1}
	events <- &MiningRefined{Type: "platinum"}
	close(events)

	d.Run(events)
	if len(session.events) != 2 {
		t.Errorf("Run should drain the channel, got %d events", len(session.events))
	}
}
