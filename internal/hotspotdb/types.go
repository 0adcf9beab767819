package hotspotdb

import (
	"fmt"
	"strconv"
	"time"
)

// Coords is a galactic position in light-years.
type Coords struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// CoordSource labels where a row's coordinates came from. Lower-precedence
// sources never overwrite higher ones.
type CoordSource string

const (
	SourceJournal    CoordSource = "journal"
	SourceVisited    CoordSource = "visited_systems"
	SourceEDTools    CoordSource = "edtools"
	SourceSpansh     CoordSource = "spansh"
	SourceOverlapCSV CoordSource = "overlap_csv"
	SourceRESCSV     CoordSource = "res_csv"
	SourceUnknown    CoordSource = "unknown"
)

// coordPrecedence ranks sources: journal > visited_systems > bundled/CSV > unknown.
func coordPrecedence(s CoordSource) int {
	switch s {
	case SourceJournal:
		return 3
	case SourceVisited:
		return 2
	case SourceEDTools, SourceSpansh, SourceOverlapCSV, SourceRESCSV:
		return 1
	default:
		return 0
	}
}

// Reserve is the qualitative richness tag for a ring.
type Reserve string

const (
	ReservePristine Reserve = "Pristine"
	ReserveMajor    Reserve = "Major"
	ReserveCommon   Reserve = "Common"
	ReserveLow      Reserve = "Low"
	ReserveDepleted Reserve = "Depleted"
)

func validReserve(s string) bool {
	switch Reserve(s) {
	case ReservePristine, ReserveMajor, ReserveCommon, ReserveLow, ReserveDepleted:
		return true
	}
	return false
}

// Density is a tagged union: either a computed numeric area density or a
// textual reserve level. Reserve information is considered higher value: a
// number may be overwritten by a reserve tag, a reserve tag only by a
// different reserve tag, never by a number.
type Density struct {
	Numeric *float64
	Reserve Reserve
}

// NumericDensity builds the numeric variant.
func NumericDensity(v float64) Density {
	return Density{Numeric: &v}
}

// ReserveDensity builds the reserve-level variant.
func ReserveDensity(r Reserve) Density {
	return Density{Reserve: r}
}

// IsZero reports whether no density information is present.
func (d Density) IsZero() bool {
	return d.Numeric == nil && d.Reserve == ""
}

// IsReserve reports whether this is the reserve-level variant.
func (d Density) IsReserve() bool {
	return d.Reserve != ""
}

// String renders the stored text form: the reserve tag, or the numeric value
// with 6 decimals.
func (d Density) String() string {
	if d.Reserve != "" {
		return string(d.Reserve)
	}
	if d.Numeric != nil {
		return strconv.FormatFloat(*d.Numeric, 'f', 6, 64)
	}
	return ""
}

// ParseDensity reads back the text form of a density column.
func ParseDensity(s string) Density {
	if s == "" {
		return Density{}
	}
	if validReserve(s) {
		return ReserveDensity(Reserve(s))
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return NumericDensity(v)
	}
	return Density{}
}

// mayOverwrite is the explicit density-override predicate: anything fills
// empty; a reserve tag beats a number; a reserve tag replaces a different
// reserve tag; a number never replaces anything non-empty.
func (d Density) mayOverwrite(old Density) bool {
	if d.IsZero() {
		return false
	}
	if old.IsZero() {
		return true
	}
	if d.IsReserve() {
		return !old.IsReserve() || old.Reserve != d.Reserve
	}
	return false
}

// RingMetadata is the per-ring physical data denormalized onto every material
// row of that ring.
type RingMetadata struct {
	RingType    *string
	LSDistance  *float64
	InnerRadius *float64
	OuterRadius *float64
	Mass        *float64
	Density     *Density
}

// fieldCount returns how many metadata fields are populated; the merge/skip
// conflict rules compare completeness with it.
func (m RingMetadata) fieldCount() int {
	n := 0
	if m.RingType != nil {
		n++
	}
	if m.LSDistance != nil {
		n++
	}
	if m.InnerRadius != nil {
		n++
	}
	if m.OuterRadius != nil {
		n++
	}
	if m.Mass != nil {
		n++
	}
	if m.Density != nil && !m.Density.IsZero() {
		n++
	}
	return n
}

// Hotspot is one row of hotspot_data: a material's hotspot record on a ring.
// A Count of 0 means "ring known, no confirmed count" (placeholder).
type Hotspot struct {
	System   string
	Body     string
	Material string
	Count    int
	ScanDate time.Time
	Coords   *Coords
	Source   CoordSource
	Ring     RingMetadata
	Overlap  *string
	RES      *string
	DataSrc  string
}

// Key renders the identifying triple for logs.
func (h Hotspot) Key() string {
	return fmt.Sprintf("%s / %s / %s", h.System, h.Body, h.Material)
}
