package ingest

import (
	"math"
	"strings"

	"github.com/banshee-data/elitemining/internal/hotspotdb"
)

// RingDensity computes the community-comparable area density of a ring:
// mass / (π × ((outer/1000)² − (inner/1000)²)), radii in meters, mass in
// megatons, rounded to 6 decimals. Returns nil for non-positive inputs or
// outer ≤ inner. The formula must stay bit-for-bit comparable with external
// datasets, so the scaling and rounding are not negotiable.
func RingDensity(mass, inner, outer float64) *float64 {
	if mass <= 0 || inner <= 0 || outer <= 0 || outer <= inner {
		return nil
	}
	is := inner / 1000
	os := outer / 1000
	d := mass / (math.Pi * (os*os - is*is))
	d = math.Round(d*1e6) / 1e6
	return &d
}

// ringClassName maps the journal's ring class tokens to display names.
func ringClassName(class string) string {
	switch strings.TrimPrefix(class, "eRingClass_") {
	case "Metalic", "Metallic": // the game misspells it
		return "Metallic"
	case "MetalRich":
		return "Metal Rich"
	case "Rocky":
		return "Rocky"
	case "Icy":
		return "Icy"
	}
	return ""
}

// reserveFromJournal maps a Scan event's ReserveLevel token to the stored
// reserve tag.
func reserveFromJournal(level string) (hotspotdb.Reserve, bool) {
	switch level {
	case "PristineResources":
		return hotspotdb.ReservePristine, true
	case "MajorResources":
		return hotspotdb.ReserveMajor, true
	case "CommonResources":
		return hotspotdb.ReserveCommon, true
	case "LowResources":
		return hotspotdb.ReserveLow, true
	case "DepletedResources":
		return hotspotdb.ReserveDepleted, true
	}
	return "", false
}

// CleanRingName turns the journal's full ring name into the display body name:
// the system prefix is stripped, spacing collapsed, and the ring letter
// designator upper-cased. Interior lowercase body letters are load-bearing and
// never touched ("2 a A Ring" is a moon ring distinct from "2 A Ring").
func CleanRingName(full, system string) string {
	body := hotspotdb.NormalizeBodyName(full, system)
	words := strings.Fields(body)
	if len(words) >= 2 && strings.EqualFold(words[len(words)-1], "Ring") {
		words[len(words)-1] = "Ring"
		words[len(words)-2] = strings.ToUpper(words[len(words)-2])
	}
	return strings.Join(words, " ")
}
