package sessionlog

import (
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/elitemining/internal/fsutil"
	"github.com/banshee-data/elitemining/internal/session"
)

func newTestWriter(t *testing.T) (*Writer, *fsutil.MemoryFileSystem) {
	t.Helper()
	fs := fsutil.NewMemoryFileSystem()
	return &Writer{Dir: "reports", FS: fs}, fs
}

func sampleResult() session.SessionResult {
	start := time.Date(2026, 2, 1, 18, 0, 0, 0, time.UTC)
	tph := 24.0
	return session.SessionResult{
		ID:           "a2b9",
		System:       "Paesia",
		Body:         "2 A Ring",
		Start:        start,
		End:          start.Add(30 * time.Minute),
		Duration:     30 * time.Minute,
		Materials:    map[string]int{"Platinum": 12},
		TotalTons:    12,
		TPH:          &tph,
		Prospectors:  1,
		HitRate:      0.5,
		AvgQuality:   25,
		BestMaterial: "Platinum",
	}
}

func TestWriteReportAndIndex(t *testing.T) {
	w, fs := newTestWriter(t)

	path, err := w.Write(sampleResult())
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if want := "reports/Session_20260201_180000_Paesia_2_A_Ring.txt"; path != want {
		t.Errorf("Unexpected report path %q, want %q", path, want)
	}

	data, err := fs.ReadFile(path)
	if err != nil {
		t.Fatalf("Report not written: %v", err)
	}
	text := string(data)
	for _, want := range []string{
		"System: Paesia",
		"Total Tons: 12",
		"Tons Per Hour: 24.00",
		RefinedSection,
		"Platinum: 12",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("Report missing %q:\n%s", want, text)
		}
	}

	rows, err := w.ReadIndex()
	if err != nil {
		t.Fatalf("ReadIndex failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("Expected 1 index row, got %d", len(rows))
	}
	row := rows[0]
	if row.Timestamp != "2026-02-01 18:00:00" || row.System != "Paesia" || row.Body != "2 A Ring" {
		t.Errorf("Unexpected index row: %+v", row)
	}
	if row.TotalTons != 12 || row.TPH != "24.00" || row.Tracked != 1 || row.Breakdown != "Platinum:12" {
		t.Errorf("Unexpected index row: %+v", row)
	}
}

// A session ends with 12 t of Platinum in cargo and 4 t still in the refinery.
// The amendment must bring both the report and the index row to 16 t.
func TestAmendAddsRefineryMaterial(t *testing.T) {
	w, fs := newTestWriter(t)
	path, err := w.Write(sampleResult())
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if err := w.Amend(path, map[string]int{"Platinum": 4}); err != nil {
		t.Fatalf("Amend failed: %v", err)
	}

	data, _ := fs.ReadFile(path)
	rep, err := ParseReport(data)
	if err != nil {
		t.Fatalf("ParseReport failed: %v", err)
	}
	if rep.TotalTons != 16 || rep.Materials["Platinum"] != 16 {
		t.Errorf("Amendment not applied to report: %+v", rep)
	}
	if rep.TPH == nil || *rep.TPH != 32 {
		t.Errorf("Tons per hour not recomputed: %v", rep.TPH)
	}

	rows, err := w.ReadIndex()
	if err != nil {
		t.Fatalf("ReadIndex failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("Amendment must update the row, not append: %d rows", len(rows))
	}
	if rows[0].TotalTons != 16 || rows[0].Breakdown != "Platinum:16" {
		t.Errorf("Index row not updated: %+v", rows[0])
	}
}

func TestAmendNewMaterialAndNegatives(t *testing.T) {
	w, fs := newTestWriter(t)
	path, err := w.Write(sampleResult())
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if err := w.Amend(path, map[string]int{"Painite": 3, "Platinum": -5}); err != nil {
		t.Fatalf("Amend failed: %v", err)
	}

	data, _ := fs.ReadFile(path)
	rep, _ := ParseReport(data)
	if rep.Materials["Painite"] != 3 || rep.Materials["Platinum"] != 12 {
		t.Errorf("Expected Painite added and negative ignored: %+v", rep.Materials)
	}
	if rep.TotalTons != 15 {
		t.Errorf("Expected total 15, got %d", rep.TotalTons)
	}
}

func TestAmendMissingReport(t *testing.T) {
	w, _ := newTestWriter(t)
	if err := w.Amend("reports/Session_20260201_180000_Nowhere_X.txt", map[string]int{"Gold": 1}); err == nil {
		t.Fatal("Expected an error for a missing report")
	}
}

func TestReportRoundTrip(t *testing.T) {
	w, fs := newTestWriter(t)
	res := sampleResult()
	res.Materials = map[string]int{"Platinum": 12, "Painite": 3}
	res.TotalTons = 15

	path, err := w.Write(res)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	data, _ := fs.ReadFile(path)
	rep, err := ParseReport(data)
	if err != nil {
		t.Fatalf("ParseReport failed: %v", err)
	}

	if rep.System != res.System || rep.Body != res.Body || rep.Duration != res.Duration {
		t.Errorf("Round trip lost header fields: %+v", rep)
	}
	if rep.TotalTons != res.TotalTons || rep.Materials["Platinum"] != 12 || rep.Materials["Painite"] != 3 {
		t.Errorf("Round trip lost materials: %+v", rep)
	}

	// The index row must agree with the parsed report.
	rows, err := w.ReadIndex()
	if err != nil {
		t.Fatalf("ReadIndex failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("Expected 1 row, got %d", len(rows))
	}
	row := rows[0]
	if row.TotalTons != rep.TotalTons || row.Tracked != len(rep.Materials) {
		t.Errorf("Index row diverges from report: %+v vs %+v", row, rep)
	}
	if row.Breakdown != "Platinum:12; Painite:3" {
		t.Errorf("Unexpected breakdown: %q", row.Breakdown)
	}
}

func TestIndexAccumulatesSessions(t *testing.T) {
	w, _ := newTestWriter(t)

	first := sampleResult()
	if _, err := w.Write(first); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	second := sampleResult()
	second.Start = second.Start.Add(2 * time.Hour)
	second.System = "Delkar"
	second.Body = "7 A Ring"
	if _, err := w.Write(second); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	rows, err := w.ReadIndex()
	if err != nil {
		t.Fatalf("ReadIndex failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(rows))
	}
	if rows[1].System != "Delkar" {
		t.Errorf("Rows out of order: %+v", rows)
	}

	// Rewriting the same session replaces its row.
	if _, err := w.Write(first); err != nil {
		t.Fatalf("Rewrite failed: %v", err)
	}
	rows, _ = w.ReadIndex()
	if len(rows) != 2 {
		t.Errorf("Rewrite appended instead of replacing: %d rows", len(rows))
	}
}
