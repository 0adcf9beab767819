package hotspotdb

import (
	"testing"

	"github.com/banshee-data/elitemining/internal/materials"
)

func TestNormalizeBodyName(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		system string
		want   string
	}{
		{"strips own system prefix", "Paesia 2 A Ring", "Paesia", "2 A Ring"},
		{"already normalized", "2 A Ring", "Paesia", "2 A Ring"},
		{"case-insensitive prefix match", "PAESIA 2 A Ring", "Paesia", "2 A Ring"},
		{"collapses whitespace", "  Paesia   2  A Ring ", "Paesia", "2 A Ring"},
		{"prefix must be whole word", "Paesian 2 A Ring", "Paesia", "Paesian 2 A Ring"},
		{"ring letter case preserved", "Paesia 2 a A Ring", "Paesia", "2 a A Ring"},
		{"foreign prefix untouched", "Coalsack Dark Region 2 A Ring", "Paesia", "Coalsack Dark Region 2 A Ring"},
		{"empty system", "2 A Ring", "", "2 A Ring"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeBodyName(tt.body, tt.system)
			if got != tt.want {
				t.Errorf("NormalizeBodyName(%q, %q) = %q, want %q", tt.body, tt.system, got, tt.want)
			}
		})
	}
}

// Moon rings like "2 a A Ring" and planet rings like "2 A Ring" are distinct;
// any normalization that case-folds them corrupts the dataset.
func TestNormalizeBodyNameDistinguishesMoonRings(t *testing.T) {
	moon := NormalizeBodyName("Delkar 7 a A Ring", "Delkar")
	planet := NormalizeBodyName("Delkar 7 A Ring", "Delkar")
	if moon == planet {
		t.Fatalf("Moon and planet rings collapsed to the same name %q", moon)
	}
}

func TestSplitForeignPrefix(t *testing.T) {
	tbl := materials.Default()
	tests := []struct {
		name       string
		body       string
		wantSystem string
		wantRest   string
		wantOK     bool
	}{
		{"foreign system prefix", "Col 285 Sector CC-K a38-2 3 A Ring", "Col 285 Sector CC-K a38-2", "3 A Ring", true},
		{"already a body", "2 A Ring", "", "2 A Ring", false},
		{"star designator is not foreign", "AB 2 A Ring", "", "AB 2 A Ring", false},
		{"no ring in remainder", "Something 3", "", "Something 3", false},
		{"moon ring with foreign prefix", "Paesia 2 a A Ring", "Paesia", "2 a A Ring", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sys, rest, ok := SplitForeignPrefix(tt.body, tbl)
			if ok != tt.wantOK || sys != tt.wantSystem || rest != tt.wantRest {
				t.Errorf("SplitForeignPrefix(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.body, sys, rest, ok, tt.wantSystem, tt.wantRest, tt.wantOK)
			}
		})
	}
}

func TestSplitStarSuffix(t *testing.T) {
	tbl := materials.Default()
	tests := []struct {
		system     string
		wantBase   string
		wantSuffix string
		wantOK     bool
	}{
		{"HIP 39383 BC", "HIP 39383", "BC", true},
		{"Paesia A", "Paesia", "A", true},
		{"Paesia", "", "", false},
		{"HR 8514 ABC", "HR 8514", "ABC", true},
		{"Col 285 Sector XY", "", "", false}, // XY not in the whitelist
	}
	for _, tt := range tests {
		base, suffix, ok := SplitStarSuffix(tt.system, tbl)
		if ok != tt.wantOK || base != tt.wantBase || suffix != tt.wantSuffix {
			t.Errorf("SplitStarSuffix(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.system, base, suffix, ok, tt.wantBase, tt.wantSuffix, tt.wantOK)
		}
	}
}
