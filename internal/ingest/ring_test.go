package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingDensity(t *testing.T) {
	d := RingDensity(5965100000, 64972000, 66417000)
	require.NotNil(t, d)
	assert.InDelta(t, 10.000944, *d, 1e-6)
}

func TestRingDensityInvalidInputs(t *testing.T) {
	tests := []struct {
		name               string
		mass, inner, outer float64
	}{
		{"zero mass", 0, 64972000, 66417000},
		{"negative mass", -1, 64972000, 66417000},
		{"zero inner", 5965100000, 0, 66417000},
		{"zero outer", 5965100000, 64972000, 0},
		{"outer equals inner", 5965100000, 66417000, 66417000},
		{"outer below inner", 5965100000, 66417000, 64972000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, RingDensity(tt.mass, tt.inner, tt.outer))
		})
	}
}

func TestCleanRingName(t *testing.T) {
	tests := []struct {
		full, system, want string
	}{
		{"Paesia 2 A Ring", "Paesia", "2 A Ring"},
		{"Paesia 2 a Ring", "Paesia", "2 A Ring"},     // designator upper-cased
		{"Paesia 2 a A Ring", "Paesia", "2 a A Ring"}, // interior moon letter preserved
		{"Paesia  2   a  ring", "Paesia", "2 A Ring"}, // spacing + "ring" word
		{"Delkar 7 b a Ring", "Delkar", "7 b A Ring"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanRingName(tt.full, tt.system), "CleanRingName(%q, %q)", tt.full, tt.system)
	}
}

func TestRingClassName(t *testing.T) {
	tests := map[string]string{
		"eRingClass_Metalic":   "Metallic",
		"eRingClass_MetalRich": "Metal Rich",
		"eRingClass_Rocky":     "Rocky",
		"eRingClass_Icy":       "Icy",
		"eRingClass_Unknown":   "",
	}
	for in, want := range tests {
		assert.Equal(t, want, ringClassName(in), "ringClassName(%q)", in)
	}
}
