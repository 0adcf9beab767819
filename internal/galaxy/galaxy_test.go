package galaxy

import (
	"math"
	"path/filepath"
	"testing"
)

func setupTestGalaxy(t *testing.T) *DB {
	t.Helper()
	db, err := Create(filepath.Join(t.TempDir(), "galaxy.db"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	systems := []System{
		{Name: "Sol", X: 0, Y: 0, Z: 0},
		{Name: "Paesia", X: 42.5, Y: -16.0, Z: 8.25},
		{Name: "Borann", X: -100, Y: 50, Z: 200},
		{Name: "HIP 39383", X: 41.0, Y: -15.5, Z: 9.0},
	}
	for _, s := range systems {
		if err := db.InsertSystem(s); err != nil {
			t.Fatalf("InsertSystem(%s) failed: %v", s.Name, err)
		}
	}
	return db
}

func TestCoordsCaseInsensitive(t *testing.T) {
	db := setupTestGalaxy(t)

	for _, name := range []string{"Paesia", "paesia", "PAESIA"} {
		s, ok, err := db.Coords(name)
		if err != nil {
			t.Fatalf("Coords(%q) failed: %v", name, err)
		}
		if !ok {
			t.Fatalf("Coords(%q) not found", name)
		}
		if s.Name != "Paesia" || s.X != 42.5 {
			t.Errorf("Coords(%q) = %+v", name, s)
		}
	}
}

func TestCoordsMissing(t *testing.T) {
	db := setupTestGalaxy(t)

	_, ok, err := db.Coords("Nonexistent System")
	if err != nil {
		t.Fatalf("Coords failed: %v", err)
	}
	if ok {
		t.Error("expected not-found for missing system")
	}
}

func TestSystemsInBBox(t *testing.T) {
	db := setupTestGalaxy(t)

	// 10 ly cube around Paesia catches Paesia and HIP 39383, not Sol/Borann.
	systems, err := db.SystemsInBBox(42.5, -16.0, 8.25, 10)
	if err != nil {
		t.Fatalf("SystemsInBBox failed: %v", err)
	}
	if len(systems) != 2 {
		t.Fatalf("expected 2 systems, got %d: %+v", len(systems), systems)
	}

	names := map[string]bool{}
	for _, s := range systems {
		names[s.Name] = true
		dx, dy, dz := s.X-42.5, s.Y+16.0, s.Z-8.25
		if math.Abs(dx) > 10 || math.Abs(dy) > 10 || math.Abs(dz) > 10 {
			t.Errorf("system %s outside bbox: %+v", s.Name, s)
		}
	}
	if !names["Paesia"] || !names["HIP 39383"] {
		t.Errorf("unexpected bbox contents: %v", names)
	}
}

func TestSystemsInBBoxEmpty(t *testing.T) {
	db := setupTestGalaxy(t)

	systems, err := db.SystemsInBBox(5000, 5000, 5000, 1)
	if err != nil {
		t.Fatalf("SystemsInBBox failed: %v", err)
	}
	if len(systems) != 0 {
		t.Errorf("expected no systems, got %d", len(systems))
	}
}
