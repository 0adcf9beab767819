package hotspotdb

import (
	"path/filepath"
	"testing"

	"github.com/banshee-data/elitemining/internal/fsutil"
)

type fakeGalaxy map[string]bool

func (g fakeGalaxy) HasSystem(name string) (bool, error) { return g[name], nil }

func TestMaterialNormalizationMigration(t *testing.T) {
	db := setupTestDB(t)

	if _, err := db.Exec(
		`INSERT INTO hotspot_data (system_name, body_name, material_name, hotspot_count, scan_date, coord_source)
		 VALUES ('Paesia', '2 A Ring', 'LTD', 3, '2026-02-01T00:00:00Z', 'unknown'),
		        ('Paesia', '2 A Ring', 'Low Temperature Diamonds', 1, '2026-01-01T00:00:00Z', 'unknown'),
		        ('Delkar', '7 A Ring', 'diamonds', 2, '2026-01-01T00:00:00Z', 'unknown'),
		        ('Delkar', '7 A Ring', 'Platin', 1, NULL, 'unknown')`); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	if err := db.RunDataMigrations(MigrationSources{}); err != nil {
		t.Fatalf("RunDataMigrations failed: %v", err)
	}

	// The alias row was newer, so it replaced the canonical twin.
	r := mustRow(t, db, "Paesia", "2 A Ring", "Low Temperature Diamonds")
	if r.Count != 3 {
		t.Errorf("Newest row should win the merge, got count %d", r.Count)
	}
	var n int
	db.QueryRow(`SELECT COUNT(*) FROM hotspot_data WHERE system_name = 'Paesia'`).Scan(&n)
	if n != 1 {
		t.Errorf("Expected one surviving Paesia row, got %d", n)
	}

	// Alias rows without a canonical twin are renamed in place.
	if r := mustRow(t, db, "Delkar", "7 A Ring", "Low Temperature Diamonds"); r.Count != 2 {
		t.Errorf("Renamed diamonds row lost its count: %d", r.Count)
	}
	if r := mustRow(t, db, "Delkar", "7 A Ring", "Platinum"); r.Count != 1 {
		t.Errorf("Renamed Platin row lost its count: %d", r.Count)
	}
}

func TestBodyPrefixRepairMigration(t *testing.T) {
	db := setupTestDB(t)

	if _, err := db.Exec(
		`INSERT INTO hotspot_data (system_name, body_name, material_name, hotspot_count, scan_date, coord_source)
		 VALUES ('Paesia', 'Paesia 2 A Ring', 'Platinum', 2, '2026-01-01T00:00:00Z', 'unknown'),
		        ('Paesia', '2 A Ring', 'Platinum', 1, '2025-06-01T00:00:00Z', 'unknown'),
		        ('Paesia', 'Coalsack Dark Region 3 A Ring', 'Painite', 1, '2026-01-01T00:00:00Z', 'unknown')`); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	if err := db.RunDataMigrations(MigrationSources{}); err != nil {
		t.Fatalf("RunDataMigrations failed: %v", err)
	}

	// The prefixed duplicate collapsed into the existing correct row.
	var n int
	db.QueryRow(`SELECT COUNT(*) FROM hotspot_data WHERE system_name = 'Paesia' AND material_name = 'Platinum'`).Scan(&n)
	if n != 1 {
		t.Errorf("Expected one Platinum row after repair, got %d", n)
	}

	// The foreign-prefixed row moved to its true system.
	r := mustRow(t, db, "Coalsack Dark Region", "3 A Ring", "Painite")
	if r.Count != 1 {
		t.Errorf("Moved row lost its count: %d", r.Count)
	}
}

func TestMultiStarNormalizationMigration(t *testing.T) {
	db := setupTestDB(t)

	if _, err := db.Exec(
		`INSERT INTO hotspot_data (system_name, body_name, material_name, hotspot_count, coord_source)
		 VALUES ('HIP 39383 BC', '3 A Ring', 'Platinum', 2, 'unknown'),
		        ('Omega Sector A', '1 A Ring', 'Painite', 1, 'unknown')`); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	// The base of the second row is unknown everywhere; it must stay put.
	gal := fakeGalaxy{"HIP 39383": true}

	if err := db.AddVisitedSystem("HIP 39383", ts("2026-01-01T00:00:00Z"), &Coords{X: 10, Y: 20, Z: 30}); err != nil {
		t.Fatalf("AddVisitedSystem failed: %v", err)
	}

	if err := db.RunDataMigrations(MigrationSources{Galaxy: gal}); err != nil {
		t.Fatalf("RunDataMigrations failed: %v", err)
	}

	r := mustRow(t, db, "HIP 39383", "BC 3 A Ring", "Platinum")
	if r.Count != 2 {
		t.Errorf("Moved row lost its count: %d", r.Count)
	}
	if r.Coords == nil || r.Coords.X != 10 {
		t.Errorf("Coords should back-fill from the visited base system, got %+v", r.Coords)
	}
	if r.Source != SourceVisited {
		t.Errorf("Expected coord source visited_systems, got %s", r.Source)
	}

	// Ambiguous row unchanged.
	if r := mustRow(t, db, "Omega Sector A", "1 A Ring", "Painite"); r.Count != 1 {
		t.Errorf("Ambiguous row should not move, got %+v", r.Hotspot)
	}
}

func TestMultiStarMigrationLeavesKnownFullNames(t *testing.T) {
	db := setupTestDB(t)

	// "Luyten AB" exists as a real system in the galaxy index: no move.
	if _, err := db.Exec(
		`INSERT INTO hotspot_data (system_name, body_name, material_name, hotspot_count, coord_source)
		 VALUES ('Luyten AB', '2 A Ring', 'Platinum', 1, 'unknown')`); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	gal := fakeGalaxy{"Luyten": true, "Luyten AB": true}

	if err := db.RunDataMigrations(MigrationSources{Galaxy: gal}); err != nil {
		t.Fatalf("RunDataMigrations failed: %v", err)
	}
	if r := mustRow(t, db, "Luyten AB", "2 A Ring", "Platinum"); r.Count != 1 {
		t.Errorf("Known full name should not be split, got %+v", r.Hotspot)
	}
}

func TestOverlayMigration(t *testing.T) {
	db := setupTestDB(t)
	fs := fsutil.NewMemoryFileSystem()
	fs.WriteFile("overlap.csv", []byte(
		"System,Body,Material,Overlap\n"+
			"Paesia,2 A Ring,Platinum,2x\n"+
			"Delkar,7 A Ring,ltd,3x\n"+
			"BadLine,,,\n"), 0o644)

	// A pre-existing user tag must survive the overlay.
	if err := db.SetOverlapTag("Paesia", "2 A Ring", "Platinum", sptr("3x")); err != nil {
		t.Fatalf("SetOverlapTag failed: %v", err)
	}

	err := db.RunDataMigrations(MigrationSources{
		OverlapCSV:     "overlap.csv",
		OverlapVersion: 1,
		FS:             fs,
	})
	if err != nil {
		t.Fatalf("RunDataMigrations failed: %v", err)
	}

	r := mustRow(t, db, "Paesia", "2 A Ring", "Platinum")
	if r.Overlap == nil || *r.Overlap != "3x" {
		t.Errorf("User tag overwritten by overlay: %v", r.Overlap)
	}
	r = mustRow(t, db, "Delkar", "7 A Ring", "Low Temperature Diamonds")
	if r.Overlap == nil || *r.Overlap != "3x" {
		t.Errorf("Overlay tag missing: %v", r.Overlap)
	}
	if r.Count != 0 {
		t.Errorf("Overlay placeholder should have count 0, got %d", r.Count)
	}
}

func TestMigrationVersioning(t *testing.T) {
	db := setupTestDB(t)

	if _, err := db.Exec(
		`INSERT INTO hotspot_data (system_name, body_name, material_name, hotspot_count, coord_source)
		 VALUES ('Paesia', '2 A Ring', 'LTD', 1, 'unknown')`); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	if err := db.RunDataMigrations(MigrationSources{}); err != nil {
		t.Fatalf("First run failed: %v", err)
	}

	v, err := db.migrationVersion("material_normalization")
	if err != nil || v != 1 {
		t.Fatalf("Expected material_normalization v1 recorded, got %d err=%v", v, err)
	}

	// A row seeded after the migration ran stays untouched on re-run.
	if _, err := db.Exec(
		`INSERT INTO hotspot_data (system_name, body_name, material_name, hotspot_count, coord_source)
		 VALUES ('Delkar', '7 A Ring', 'LTD', 1, 'unknown')`); err != nil {
		t.Fatalf("Second seed failed: %v", err)
	}
	if err := db.RunDataMigrations(MigrationSources{}); err != nil {
		t.Fatalf("Second run failed: %v", err)
	}
	if r := mustRow(t, db, "Delkar", "7 A Ring", "LTD"); r.Count != 1 {
		t.Errorf("Applied migration re-ran: %+v", r.Hotspot)
	}
}

func TestBundledMerge(t *testing.T) {
	dir := t.TempDir()

	bundled, err := Open(filepath.Join(dir, "bundled.db"), nil)
	if err != nil {
		t.Fatalf("Failed to create bundled db: %v", err)
	}
	seed := []Hotspot{
		{System: "Paesia", Body: "2 A Ring", Material: "Platinum", Count: 1, ScanDate: ts("2025-01-01T00:00:00Z")},
		{System: "Delkar", Body: "7 A Ring", Material: "Painite", Count: 2, ScanDate: ts("2025-01-01T00:00:00Z")},
	}
	for _, h := range seed {
		if err := bundled.UpsertHotspot(h); err != nil {
			t.Fatalf("Bundled seed failed: %v", err)
		}
	}
	bundled.Close()

	db, err := Open(filepath.Join(dir, "hotspots.db"), nil)
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}
	defer db.Close()

	// Local row with richer data under the same key: must not be overwritten.
	local := Hotspot{System: "Paesia", Body: "2 A Ring", Material: "Platinum", Count: 4,
		ScanDate: ts("2026-01-01T00:00:00Z")}
	if err := db.UpsertHotspot(local); err != nil {
		t.Fatalf("Local upsert failed: %v", err)
	}

	err = db.RunDataMigrations(MigrationSources{
		BundledDB:      filepath.Join(dir, "bundled.db"),
		BundledVersion: 1,
	})
	if err != nil {
		t.Fatalf("RunDataMigrations failed: %v", err)
	}

	if r := mustRow(t, db, "Paesia", "2 A Ring", "Platinum"); r.Count != 4 {
		t.Errorf("Bundled merge overwrote a user row: %d", r.Count)
	}
	if r := mustRow(t, db, "Delkar", "7 A Ring", "Painite"); r.Count != 2 {
		t.Errorf("Bundled row missing: %+v", r.Hotspot)
	}

	v, err := db.migrationVersion("bundled_merge")
	if err != nil || v != 1 {
		t.Errorf("Expected bundled_merge v1 recorded, got %d err=%v", v, err)
	}
}
