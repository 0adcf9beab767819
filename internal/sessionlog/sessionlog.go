// Package sessionlog persists finished mining sessions: one human-readable
// text report per session plus a single CSV index with one row per session.
// Reports can later be amended with material that was still in the refinery
// when the session ended; the amendment rewrites both artifacts so they never
// diverge.
package sessionlog

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/elitemining/internal/fsutil"
	"github.com/banshee-data/elitemining/internal/session"
)

const (
	// RefinedSection heads the per-material table inside a report.
	RefinedSection = "=== REFINED CARGO TRACKING ==="

	indexName     = "sessions.csv"
	fileTimestamp = "20060102_150405"
	csvTimestamp  = "2006-01-02 15:04:05"
)

var indexHeader = []string{
	"timestamp_local", "system", "body", "duration", "total_tons",
	"tph", "prospectors", "materials_tracked", "materials_breakdown",
}

// Writer persists session results into a reports directory.
type Writer struct {
	Dir string
	FS  fsutil.FileSystem
}

// NewWriter returns a Writer over the OS filesystem.
func NewWriter(dir string) *Writer {
	return &Writer{Dir: dir, FS: fsutil.OSFileSystem{}}
}

// Write renders the text report and appends the index row. It returns the
// report path. The text file is committed before the index so a crash between
// the two leaves a report without a row, never a row without a report.
func (w *Writer) Write(res session.SessionResult) (string, error) {
	if err := w.FS.MkdirAll(w.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create reports dir: %w", err)
	}

	path := filepath.Join(w.Dir, reportFileName(res))
	if err := fsutil.WriteFileAtomic(w.FS, path, renderReport(reportOf(res)), 0o644); err != nil {
		return "", fmt.Errorf("failed to write session report: %w", err)
	}
	if err := w.upsertIndexRow(indexRowOf(res)); err != nil {
		return "", err
	}
	return path, nil
}

// Amend merges late refinery material into an existing report and updates the
// matching index row. The report's total and tons-per-hour are recomputed from
// the merged materials; the index row is matched by the timestamp encoded in
// the report filename.
func (w *Writer) Amend(reportPath string, amendment map[string]int) error {
	data, err := w.FS.ReadFile(reportPath)
	if err != nil {
		return fmt.Errorf("failed to read session report: %w", err)
	}
	rep, err := ParseReport(data)
	if err != nil {
		return fmt.Errorf("failed to parse session report: %w", err)
	}

	for name, tons := range amendment {
		if tons <= 0 {
			continue
		}
		rep.Materials[name] += tons
	}
	rep.recompute()

	ts, err := timestampFromFileName(filepath.Base(reportPath))
	if err != nil {
		return err
	}

	// Text first, then the index: the report is the source of truth and the
	// row can be rebuilt from it.
	if err := fsutil.WriteFileAtomic(w.FS, reportPath, renderReport(rep), 0o644); err != nil {
		return fmt.Errorf("failed to rewrite session report: %w", err)
	}
	return w.updateIndexRow(ts.Format(csvTimestamp), rep)
}

// IndexRow is one parsed line of the session index CSV.
type IndexRow struct {
	Timestamp   string
	System      string
	Body        string
	Duration    string
	TotalTons   int
	TPH         string
	Prospectors int
	Tracked     int
	Breakdown   string
}

// ReadIndex returns all rows of the session index, oldest first.
func (w *Writer) ReadIndex() ([]IndexRow, error) {
	records, err := w.readIndexRecords()
	if err != nil {
		return nil, err
	}
	rows := make([]IndexRow, 0, len(records))
	for _, rec := range records {
		row, err := parseIndexRecord(rec)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Report is the parsed form of one session text report.
type Report struct {
	Timestamp   time.Time
	System      string
	Body        string
	Duration    time.Duration
	TotalTons   int
	TPH         *float64
	Prospectors int
	Engineering int
	HitRate     float64
	AvgQuality  float64
	Best        string
	Materials   map[string]int
}

// recompute rebuilds the derived header fields from the material table.
func (r *Report) recompute() {
	total := 0
	best, bestTons := "", 0
	for name, tons := range r.Materials {
		total += tons
		if tons > bestTons {
			best, bestTons = name, tons
		}
	}
	r.TotalTons = total
	r.Best = best
	r.TPH = nil
	if r.Duration >= time.Second {
		tph := float64(total) / r.Duration.Hours()
		r.TPH = &tph
	}
}

func reportOf(res session.SessionResult) Report {
	mats := make(map[string]int, len(res.Materials))
	for k, v := range res.Materials {
		mats[k] = v
	}
	return Report{
		Timestamp:   res.Start,
		System:      res.System,
		Body:        res.Body,
		Duration:    res.Duration,
		TotalTons:   res.TotalTons,
		TPH:         res.TPH,
		Prospectors: res.Prospectors,
		Engineering: res.Engineering,
		HitRate:     res.HitRate,
		AvgQuality:  res.AvgQuality,
		Best:        res.BestMaterial,
		Materials:   mats,
	}
}

func reportFileName(res session.SessionResult) string {
	return fmt.Sprintf("Session_%s_%s_%s.txt",
		res.Start.Format(fileTimestamp), sanitize(res.System), sanitize(res.Body))
}

// sanitize keeps filenames portable: spaces become underscores and path
// separators are dropped.
func sanitize(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return -1
		}
		return r
	}, s)
	if s == "" {
		return "unknown"
	}
	return s
}

func timestampFromFileName(name string) (time.Time, error) {
	rest, ok := strings.CutPrefix(name, "Session_")
	if !ok {
		return time.Time{}, fmt.Errorf("not a session report name: %s", name)
	}
	parts := strings.SplitN(rest, "_", 3)
	if len(parts) < 2 {
		return time.Time{}, fmt.Errorf("no timestamp in report name: %s", name)
	}
	ts, err := time.Parse(fileTimestamp, parts[0]+"_"+parts[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp in report name %s: %w", name, err)
	}
	return ts, nil
}

func renderReport(r Report) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "=== MINING SESSION REPORT ===\n")
	fmt.Fprintf(&b, "Timestamp: %s\n", r.Timestamp.Format(csvTimestamp))
	fmt.Fprintf(&b, "System: %s\n", r.System)
	fmt.Fprintf(&b, "Body: %s\n", r.Body)
	fmt.Fprintf(&b, "Duration: %s\n", r.Duration)
	fmt.Fprintf(&b, "Total Tons: %d\n", r.TotalTons)
	if r.TPH != nil {
		fmt.Fprintf(&b, "Tons Per Hour: %.2f\n", *r.TPH)
	} else {
		fmt.Fprintf(&b, "Tons Per Hour: n/a\n")
	}
	fmt.Fprintf(&b, "Prospectors Used: %d\n", r.Prospectors)
	fmt.Fprintf(&b, "Engineering Materials: %d\n", r.Engineering)
	fmt.Fprintf(&b, "Hit Rate: %.1f%%\n", r.HitRate*100)
	fmt.Fprintf(&b, "Average Quality: %.1f%%\n", r.AvgQuality)
	if r.Best != "" {
		fmt.Fprintf(&b, "Best Material: %s\n", r.Best)
	}
	fmt.Fprintf(&b, "\n%s\n", RefinedSection)
	for _, e := range sortedMaterials(r.Materials) {
		fmt.Fprintf(&b, "%s: %d\n", e.name, e.tons)
	}
	return []byte(b.String())
}

// ParseReport reads a rendered report back into its structured form. Unknown
// lines are ignored so hand-edited reports still amend cleanly.
func ParseReport(data []byte) (Report, error) {
	rep := Report{Materials: map[string]int{}}
	inRefined := false

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == RefinedSection {
			inRefined = true
			continue
		}
		if strings.HasPrefix(line, "=== ") {
			inRefined = false
			continue
		}
		key, value, ok := strings.Cut(line, ": ")
		if !ok {
			continue
		}

		if inRefined {
			tons, err := strconv.Atoi(value)
			if err != nil {
				return Report{}, fmt.Errorf("bad material line %q: %w", line, err)
			}
			rep.Materials[key] = tons
			continue
		}

		var err error
		switch key {
		case "Timestamp":
			rep.Timestamp, err = time.Parse(csvTimestamp, value)
		case "System":
			rep.System = value
		case "Body":
			rep.Body = value
		case "Duration":
			rep.Duration, err = time.ParseDuration(value)
		case "Total Tons":
			rep.TotalTons, err = strconv.Atoi(value)
		case "Tons Per Hour":
			if value != "n/a" {
				var tph float64
				tph, err = strconv.ParseFloat(value, 64)
				rep.TPH = &tph
			}
		case "Prospectors Used":
			rep.Prospectors, err = strconv.Atoi(value)
		case "Engineering Materials":
			rep.Engineering, err = strconv.Atoi(value)
		case "Hit Rate":
			rep.HitRate, err = strconv.ParseFloat(strings.TrimSuffix(value, "%"), 64)
			rep.HitRate /= 100
		case "Average Quality":
			rep.AvgQuality, err = strconv.ParseFloat(strings.TrimSuffix(value, "%"), 64)
		case "Best Material":
			rep.Best = value
		}
		if err != nil {
			return Report{}, fmt.Errorf("bad report line %q: %w", line, err)
		}
	}
	return rep, nil
}

type materialEntry struct {
	name string
	tons int
}

func sortedMaterials(mats map[string]int) []materialEntry {
	entries := make([]materialEntry, 0, len(mats))
	for name, tons := range mats {
		entries = append(entries, materialEntry{name, tons})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].tons != entries[j].tons {
			return entries[i].tons > entries[j].tons
		}
		return entries[i].name < entries[j].name
	})
	return entries
}

func breakdownString(mats map[string]int) string {
	parts := make([]string, 0, len(mats))
	for _, e := range sortedMaterials(mats) {
		parts = append(parts, fmt.Sprintf("%s:%d", e.name, e.tons))
	}
	return strings.Join(parts, "; ")
}

func indexRowOf(res session.SessionResult) []string {
	return indexRecord(res.Start.Format(csvTimestamp), reportOf(res))
}

func indexRecord(timestamp string, r Report) []string {
	tph := ""
	if r.TPH != nil {
		tph = strconv.FormatFloat(*r.TPH, 'f', 2, 64)
	}
	return []string{
		timestamp,
		r.System,
		r.Body,
		r.Duration.String(),
		strconv.Itoa(r.TotalTons),
		tph,
		strconv.Itoa(r.Prospectors),
		strconv.Itoa(len(r.Materials)),
		breakdownString(r.Materials),
	}
}

func parseIndexRecord(rec []string) (IndexRow, error) {
	if len(rec) != len(indexHeader) {
		return IndexRow{}, fmt.Errorf("index row has %d fields, want %d", len(rec), len(indexHeader))
	}
	total, err := strconv.Atoi(rec[4])
	if err != nil {
		return IndexRow{}, fmt.Errorf("bad total_tons %q: %w", rec[4], err)
	}
	prospectors, err := strconv.Atoi(rec[6])
	if err != nil {
		return IndexRow{}, fmt.Errorf("bad prospectors %q: %w", rec[6], err)
	}
	tracked, err := strconv.Atoi(rec[7])
	if err != nil {
		return IndexRow{}, fmt.Errorf("bad materials_tracked %q: %w", rec[7], err)
	}
	return IndexRow{
		Timestamp:   rec[0],
		System:      rec[1],
		Body:        rec[2],
		Duration:    rec[3],
		TotalTons:   total,
		TPH:         rec[5],
		Prospectors: prospectors,
		Tracked:     tracked,
		Breakdown:   rec[8],
	}, nil
}

func (w *Writer) indexPath() string {
	return filepath.Join(w.Dir, indexName)
}

func (w *Writer) readIndexRecords() ([][]string, error) {
	if !w.FS.Exists(w.indexPath()) {
		return nil, nil
	}
	data, err := w.FS.ReadFile(w.indexPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read session index: %w", err)
	}
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse session index: %w", err)
	}
	if len(records) > 0 {
		records = records[1:] // header
	}
	return records, nil
}

func (w *Writer) writeIndexRecords(records [][]string) error {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(indexHeader); err != nil {
		return err
	}
	if err := cw.WriteAll(records); err != nil {
		return err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(w.FS, w.indexPath(), buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write session index: %w", err)
	}
	return nil
}

// upsertIndexRow replaces the row with the same timestamp or appends one.
func (w *Writer) upsertIndexRow(row []string) error {
	records, err := w.readIndexRecords()
	if err != nil {
		return err
	}
	replaced := false
	for i, rec := range records {
		if len(rec) > 0 && rec[0] == row[0] {
			records[i] = row
			replaced = true
			break
		}
	}
	if !replaced {
		records = append(records, row)
	}
	return w.writeIndexRecords(records)
}

// updateIndexRow rewrites the row matching the timestamp from the amended
// report. A missing row is recreated rather than lost.
func (w *Writer) updateIndexRow(timestamp string, rep Report) error {
	return w.upsertIndexRow(indexRecord(timestamp, rep))
}
