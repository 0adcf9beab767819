package hotspotdb

import (
	"fmt"
	"testing"
)

func TestBodyHotspotsMaxPerMaterial(t *testing.T) {
	db := setupTestDB(t)

	// Alias and canonical rows of the same material: the max count wins and
	// the result is reported under the canonical name.
	if _, err := db.Exec(
		`INSERT INTO hotspot_data (system_name, body_name, material_name, hotspot_count, coord_source)
		 VALUES ('Paesia', '2 A Ring', 'LTD', 2, 'unknown'),
		        ('Paesia', '2 A Ring', 'Low Temperature Diamonds', 3, 'unknown'),
		        ('Paesia', '2 A Ring', 'Platinum', 1, 'unknown')`); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	hs, err := db.BodyHotspots("Paesia", "2 A Ring")
	if err != nil {
		t.Fatalf("BodyHotspots failed: %v", err)
	}
	if len(hs) != 2 {
		t.Fatalf("Expected 2 materials, got %d: %+v", len(hs), hs)
	}
	if hs[0].Material != "Low Temperature Diamonds" || hs[0].Count != 3 {
		t.Errorf("Expected LTD max count 3, got %+v", hs[0])
	}
	if hs[1].Material != "Platinum" || hs[1].Count != 1 {
		t.Errorf("Expected Platinum count 1, got %+v", hs[1])
	}
}

func TestRingExistsAndLSDistance(t *testing.T) {
	db := setupTestDB(t)

	ok, err := db.RingExists("Paesia", "2 A Ring")
	if err != nil || ok {
		t.Fatalf("Expected ring to not exist, got ok=%v err=%v", ok, err)
	}

	h := Hotspot{System: "Paesia", Body: "2 A Ring", Material: "Platinum", Count: 1,
		Ring: RingMetadata{LSDistance: fptr(812.5)}}
	if err := db.UpsertHotspot(h); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	// The journal hands over full body names; lookups normalize too.
	ok, err = db.RingExists("Paesia", "Paesia 2 A Ring")
	if err != nil || !ok {
		t.Fatalf("Expected ring to exist, got ok=%v err=%v", ok, err)
	}

	ls, err := db.LSDistance("Paesia", "2 A Ring")
	if err != nil {
		t.Fatalf("LSDistance failed: %v", err)
	}
	if ls == nil || *ls != 812.5 {
		t.Errorf("Expected ls 812.5, got %v", ls)
	}

	ls, err = db.LSDistance("Paesia", "3 B Ring")
	if err != nil || ls != nil {
		t.Errorf("Expected nil ls for unknown ring, got %v err=%v", ls, err)
	}
}

func TestRingMetadataForMergesRows(t *testing.T) {
	db := setupTestDB(t)

	if _, err := db.Exec(
		`INSERT INTO hotspot_data (system_name, body_name, material_name, hotspot_count, coord_source, ring_type, ls_distance)
		 VALUES ('Paesia', '2 A Ring', 'Platinum', 1, 'unknown', 'Metallic', NULL),
		        ('Paesia', '2 A Ring', 'Painite', 1, 'unknown', NULL, 812.5)`); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	md, err := db.RingMetadataFor("Paesia", "2 A Ring")
	if err != nil {
		t.Fatalf("RingMetadataFor failed: %v", err)
	}
	if md.RingType == nil || *md.RingType != "Metallic" {
		t.Errorf("Expected merged ring type, got %+v", md.RingType)
	}
	if md.LSDistance == nil || *md.LSDistance != 812.5 {
		t.Errorf("Expected merged ls distance, got %+v", md.LSDistance)
	}
}

func TestHotspotsForSystemsChunking(t *testing.T) {
	db := setupTestDB(t)

	// More systems than one IN chunk holds; every row must still come back.
	systems := make([]string, 0, inChunkSize+50)
	for i := 0; i < inChunkSize+50; i++ {
		name := fmt.Sprintf("System %04d", i)
		systems = append(systems, name)
		if _, err := db.Exec(
			`INSERT INTO hotspot_data (system_name, body_name, material_name, hotspot_count, coord_source)
			 VALUES (?, '1 A Ring', 'Platinum', 1, 'unknown')`, name); err != nil {
			t.Fatalf("Seed %s failed: %v", name, err)
		}
	}

	got, err := db.HotspotsForSystems(systems)
	if err != nil {
		t.Fatalf("HotspotsForSystems failed: %v", err)
	}
	if len(got) != len(systems) {
		t.Errorf("Expected %d rows, got %d", len(systems), len(got))
	}

	got, err = db.HotspotsForSystems(nil)
	if err != nil || got != nil {
		t.Errorf("Empty input should return nothing, got %d rows err=%v", len(got), err)
	}
}
