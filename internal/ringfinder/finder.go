// Package ringfinder answers "where can I mine X near Y": it gathers candidate
// systems around a reference point, pulls their hotspot rows, applies the
// ring-type/material/confirmed filters and returns distance-sorted rings.
package ringfinder

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/banshee-data/elitemining/internal/galaxy"
	"github.com/banshee-data/elitemining/internal/hotspotdb"
	"github.com/banshee-data/elitemining/internal/materials"
)

// MaxDistanceLY caps the search radius; bbox candidate sets explode past this.
const MaxDistanceLY = 100.0

// ErrUnknownSystem is returned when the reference system's coordinates cannot
// be resolved anywhere.
var ErrUnknownSystem = errors.New("reference system coordinates unknown")

// CoordResolver is the optional external fallback for reference coordinates
// (an EDSM-style API client). May be nil.
type CoordResolver interface {
	SystemCoords(name string) (hotspotdb.Coords, bool)
}

// Query is one ring-finder request.
type Query struct {
	System        string
	RingType      string // "" or "All" matches every type
	Material      string // "" or "All" matches every material
	ConfirmedOnly bool   // forced on when Material is set
	MaxDistance   float64
	MaxResults    int // <= 0 returns all
	FuzzyMaterial bool
}

// Result is one ring in the answer.
type Result struct {
	Distance   float64  `json:"distance_ly"`
	LSDistance *float64 `json:"ls_distance,omitempty"`
	System     string   `json:"system"`
	Visited    bool     `json:"visited"`
	Body       string   `json:"body"`
	RingType   string   `json:"ring_type,omitempty"`
	Hotspots   string   `json:"hotspots"`
	Density    string   `json:"density,omitempty"`
}

// Finder wires the stores together. Galaxy and Resolver may be nil.
type Finder struct {
	Hotspots *hotspotdb.DB
	Galaxy   *galaxy.DB
	Resolver CoordResolver
}

type candidate struct {
	coords  hotspotdb.Coords
	visited bool
}

// Find runs one query.
func (f *Finder) Find(q Query) ([]Result, error) {
	maxDist := q.MaxDistance
	if maxDist <= 0 || maxDist > MaxDistanceLY {
		maxDist = MaxDistanceLY
	}
	material := q.Material
	if strings.EqualFold(material, "All") {
		material = ""
	}
	if material != "" {
		material = f.Hotspots.Aliases().Canonical(material)
		q.ConfirmedOnly = true // unconfirmed rows have no counts to match on
	}
	ringType := q.RingType
	if strings.EqualFold(ringType, "All") {
		ringType = ""
	}

	ref, err := f.resolveRef(q.System)
	if err != nil {
		return nil, err
	}

	cands, err := f.gatherCandidates(ref, maxDist)
	if err != nil {
		return nil, err
	}
	if len(cands) == 0 {
		return nil, nil
	}

	names := make([]string, 0, len(cands))
	for name := range cands {
		names = append(names, name)
	}
	rows, err := f.Hotspots.HotspotsForSystems(names)
	if err != nil {
		return nil, err
	}

	rings := groupRings(rows, cands, ref)
	results := f.filterAndSort(rings, ringType, material, q.ConfirmedOnly, q.FuzzyMaterial)

	if q.MaxResults > 0 && len(results) > q.MaxResults {
		results = results[:q.MaxResults]
	}
	return results, nil
}

// resolveRef resolves the reference system's coordinates: visited systems
// first, then the galaxy index, then the external resolver.
func (f *Finder) resolveRef(system string) (hotspotdb.Coords, error) {
	if v, ok, err := f.Hotspots.VisitedSystem(system); err != nil {
		return hotspotdb.Coords{}, err
	} else if ok && v.Coords != nil {
		return *v.Coords, nil
	}
	if f.Galaxy != nil {
		if s, ok, err := f.Galaxy.Coords(system); err != nil {
			return hotspotdb.Coords{}, err
		} else if ok {
			return hotspotdb.Coords{X: s.X, Y: s.Y, Z: s.Z}, nil
		}
	}
	if f.Resolver != nil {
		if c, ok := f.Resolver.SystemCoords(system); ok {
			return c, nil
		}
	}
	return hotspotdb.Coords{}, fmt.Errorf("%w: %s", ErrUnknownSystem, system)
}

// gatherCandidates unions the galaxy index and visited systems inside the
// bbox, keeping only precise Euclidean matches. Visited entries win so the
// visited flag survives the union.
func (f *Finder) gatherCandidates(ref hotspotdb.Coords, maxDist float64) (map[string]candidate, error) {
	cands := map[string]candidate{}

	if f.Galaxy != nil {
		systems, err := f.Galaxy.SystemsInBBox(ref.X, ref.Y, ref.Z, maxDist)
		if err != nil {
			return nil, err
		}
		for _, s := range systems {
			c := hotspotdb.Coords{X: s.X, Y: s.Y, Z: s.Z}
			if distance(ref, c) <= maxDist {
				cands[s.Name] = candidate{coords: c}
			}
		}
	}

	visited, err := f.Hotspots.VisitedSystemsInBBox(ref.X, ref.Y, ref.Z, maxDist)
	if err != nil {
		return nil, err
	}
	for _, v := range visited {
		if v.Coords == nil {
			continue
		}
		if distance(ref, *v.Coords) <= maxDist {
			cands[v.Name] = candidate{coords: *v.Coords, visited: true}
		}
	}
	return cands, nil
}

func distance(a, b hotspotdb.Coords) float64 {
	dx, dy, dz := a.X-b.X, a.Y-b.Y, a.Z-b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// ring accumulates the rows of one (system, body) with its distance from the
// reference point.
type ring struct {
	system, body string
	dist         float64
	visited      bool
	rows         []hotspotdb.Hotspot
	meta         hotspotdb.RingMetadata
}

func groupRings(rows []hotspotdb.Hotspot, cands map[string]candidate, ref hotspotdb.Coords) []*ring {
	byKey := map[string]*ring{}
	var order []string
	for _, row := range rows {
		key := row.System + "\x00" + row.Body
		r, ok := byKey[key]
		if !ok {
			cand := cands[row.System]
			r = &ring{
				system:  row.System,
				body:    row.Body,
				dist:    distance(ref, cand.coords),
				visited: cand.visited,
			}
			// Rows can carry their own coords when the candidate came from
			// the galaxy index without a position match; prefer row coords.
			if row.Coords != nil {
				r.dist = distance(ref, *row.Coords)
			}
			byKey[key] = r
			order = append(order, key)
		}
		r.rows = append(r.rows, row)
		r.meta = mergeMeta(r.meta, row.Ring)
	}
	out := make([]*ring, 0, len(order))
	for _, key := range order {
		out = append(out, byKey[key])
	}
	return out
}

// mergeMeta fills nulls; the store keeps ring metadata consistent across rows.
func mergeMeta(dst, src hotspotdb.RingMetadata) hotspotdb.RingMetadata {
	if dst.RingType == nil {
		dst.RingType = src.RingType
	}
	if dst.LSDistance == nil {
		dst.LSDistance = src.LSDistance
	}
	if dst.Density == nil {
		dst.Density = src.Density
	}
	return dst
}

// scored pairs a result with the count its sort position uses: the matched
// material's count under a material filter, the ring total otherwise.
type scored struct {
	Result
	count int
}

func (f *Finder) filterAndSort(rings []*ring, ringType, material string, confirmedOnly, fuzzy bool) []Result {
	tbl := f.Hotspots.Aliases()
	var matched []scored

	for _, r := range rings {
		if ringType != "" {
			if r.meta.RingType == nil || !strings.EqualFold(*r.meta.RingType, ringType) {
				continue
			}
		}

		// Collapse alias rows: best count per canonical material.
		counts := map[string]int{}
		for _, row := range r.rows {
			canon := tbl.Canonical(row.Material)
			if c, ok := counts[canon]; !ok || row.Count > c {
				counts[canon] = row.Count
			}
		}

		sortCount := 0
		if material != "" {
			n, ok := counts[material]
			if !ok && fuzzy {
				for canon, c := range counts {
					if strings.Contains(strings.ToLower(canon), strings.ToLower(material)) {
						n, ok = c, true
						break
					}
				}
			}
			if !ok || (confirmedOnly && n == 0) {
				continue
			}
			sortCount = n
		} else {
			any := false
			for _, c := range counts {
				sortCount += c
				if c > 0 {
					any = true
				}
			}
			if confirmedOnly && !any {
				continue
			}
		}

		res := Result{
			Distance:   math.Round(r.dist*100) / 100,
			LSDistance: r.meta.LSDistance,
			System:     r.system,
			Visited:    r.visited,
			Body:       r.body,
			Hotspots:   formatHotspots(counts, tbl, material == ""),
		}
		if r.meta.RingType != nil {
			res.RingType = *r.meta.RingType
		}
		if r.meta.Density != nil {
			res.Density = r.meta.Density.String()
		}
		matched = append(matched, scored{Result: res, count: sortCount})
	}

	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.Distance != b.Distance {
			return a.Distance < b.Distance
		}
		if a.count != b.count {
			return a.count > b.count
		}
		if a.System != b.System {
			return a.System < b.System
		}
		return a.Body < b.Body
	})

	results := make([]Result, 0, len(matched))
	for _, m := range matched {
		results = append(results, m.Result)
	}
	return results
}

// formatHotspots renders "Platinum (3), Painite (2)" ordered by count then
// name; the all-materials case abbreviates names to keep rows scannable.
func formatHotspots(counts map[string]int, tbl *materials.Table, abbreviate bool) string {
	type entry struct {
		name  string
		count int
	}
	entries := make([]entry, 0, len(counts))
	for name, c := range counts {
		entries = append(entries, entry{name, c})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].name < entries[j].name
	})

	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.name
		if abbreviate {
			if a := tbl.Abbrev(e.name); a != "" {
				name = a
			}
		}
		parts = append(parts, fmt.Sprintf("%s (%d)", name, e.count))
	}
	return strings.Join(parts, ", ")
}
