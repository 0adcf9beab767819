// Package ingest applies ring-bearing journal events to the hotspot store:
// SAASignalsFound becomes hotspot rows, Scan becomes ring metadata, and newly
// sighted rings are optionally enriched from an external bodies API.
package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/banshee-data/elitemining/internal/hotspotdb"
	"github.com/banshee-data/elitemining/internal/journal"
	"github.com/banshee-data/elitemining/internal/monitoring"
)

// Ingestor implements journal.RingSink against the hotspot store.
type Ingestor struct {
	Store    *hotspotdb.DB
	Enricher *Enricher // nil disables external enrichment
}

// HandleSignals ingests one SAASignalsFound event: the hotspot list for one
// ring. The body name is normalized against the current system and re-split
// when it still carries a foreign system prefix (rings scanned in multi-star
// systems); in that case the current system's coordinates do not apply.
func (in *Ingestor) HandleSignals(system string, coords *hotspotdb.Coords, ev *journal.SAASignalsFound) error {
	body := hotspotdb.NormalizeBodyName(ev.BodyName, system)
	if sys, rest, ok := hotspotdb.SplitForeignPrefix(body, in.Store.Aliases()); ok {
		system, body, coords = sys, rest, nil
	}
	if system == "" || body == "" {
		return fmt.Errorf("signals event for %q with no resolvable system", ev.BodyName)
	}

	newRing, err := in.Store.RingExists(system, body)
	if err != nil {
		return err
	}
	newRing = !newRing

	var failed int
	for _, sig := range ev.Signals {
		material := sig.Type
		if sig.TypeLocalised != "" {
			material = sig.TypeLocalised
		}
		h := hotspotdb.Hotspot{
			System:   system,
			Body:     body,
			Material: material,
			Count:    sig.Count,
			ScanDate: ev.Timestamp,
			Coords:   coords,
			Source:   hotspotdb.SourceJournal,
			DataSrc:  "journal",
		}
		if err := in.Store.UpsertHotspot(h); err != nil {
			monitoring.Logf("hotspot %s / %s / %s not stored: %v", system, body, material, err)
			failed++
		}
	}
	if failed == len(ev.Signals) && failed > 0 {
		return fmt.Errorf("all %d signals on %s / %s failed to store", failed, system, body)
	}

	if newRing && in.Enricher != nil {
		// Best effort: enrichment data is optional and failures are silent.
		if md, ok := in.Enricher.RingMetadata(context.Background(), system, body); ok {
			if err := in.Store.UpdateRingMetadata(system, body, md); err != nil {
				monitoring.Logf("enrichment for %s / %s not applied: %v", system, body, err)
			}
		}
	}
	return nil
}

// HandleScan ingests ring physics from a body scan: radii, mass, ring type,
// the derived density, and the reserve level when present. Belt clusters in
// the Rings array are skipped.
func (in *Ingestor) HandleScan(system string, ev *journal.Scan) error {
	if system == "" || len(ev.Rings) == 0 {
		return nil
	}

	var firstErr error
	for _, ring := range ev.Rings {
		if !strings.HasSuffix(ring.Name, "Ring") {
			continue
		}
		body := hotspotdb.NormalizeBodyName(ring.Name, system)

		md := hotspotdb.RingMetadata{}
		if class := ringClassName(ring.RingClass); class != "" {
			md.RingType = &class
		}
		if ev.DistanceFromArrivalLS > 0 {
			ls := ev.DistanceFromArrivalLS
			md.LSDistance = &ls
		}
		if ring.InnerRad > 0 {
			v := ring.InnerRad
			md.InnerRadius = &v
		}
		if ring.OuterRad > 0 {
			v := ring.OuterRad
			md.OuterRadius = &v
		}
		if ring.MassMT > 0 {
			v := ring.MassMT
			md.Mass = &v
		}
		if reserve, ok := reserveFromJournal(ev.ReserveLevel); ok {
			d := hotspotdb.ReserveDensity(reserve)
			md.Density = &d
		} else if d := RingDensity(ring.MassMT, ring.InnerRad, ring.OuterRad); d != nil {
			dens := hotspotdb.NumericDensity(*d)
			md.Density = &dens
		}

		if err := in.Store.UpdateRingMetadata(system, body, md); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("ring metadata for %s / %s: %w", system, body, err)
		}
	}
	return firstErr
}
