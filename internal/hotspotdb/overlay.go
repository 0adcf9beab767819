package hotspotdb

import (
	"bytes"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/banshee-data/elitemining/internal/fsutil"
	"github.com/banshee-data/elitemining/internal/monitoring"
)

// overlayRow is one parsed line of a shipped annotation CSV.
type overlayRow struct {
	System   string
	Body     string
	Material string
	Tag      string
}

// readOverlayCSV parses an annotation CSV. The header row maps columns by
// name, case-insensitively; the tag column is whichever named column is not
// System/Body/Material. Malformed lines are skipped with a log line rather
// than failing the whole overlay.
func readOverlayCSV(fsys fsutil.FileSystem, path string) ([]overlayRow, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read overlay csv %s: %w", path, err)
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read overlay csv header: %w", err)
	}
	idx := map[string]int{}
	tagCol := -1
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		switch key {
		case "system", "body", "material":
			idx[key] = i
		default:
			tagCol = i
		}
	}
	if len(idx) != 3 || tagCol < 0 {
		return nil, fmt.Errorf("overlay csv %s: unrecognized header %v", path, header)
	}

	var out []overlayRow
	line := 1
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			monitoring.Logf("overlay csv %s line %d: %v, skipping", path, line, err)
			continue
		}
		max := idx["system"]
		for _, i := range []int{idx["body"], idx["material"], tagCol} {
			if i > max {
				max = i
			}
		}
		if len(rec) <= max {
			monitoring.Logf("overlay csv %s line %d: short record, skipping", path, line)
			continue
		}
		row := overlayRow{
			System:   strings.TrimSpace(rec[idx["system"]]),
			Body:     strings.TrimSpace(rec[idx["body"]]),
			Material: strings.TrimSpace(rec[idx["material"]]),
			Tag:      strings.TrimSpace(rec[tagCol]),
		}
		if row.System == "" || row.Body == "" || row.Material == "" || row.Tag == "" {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

// applyTagOverlay loads a shipped annotation CSV into one tag column. Existing
// user tags are never overwritten; rings unknown to the database get a
// placeholder row so the annotation is queryable.
func (db *DB) applyTagOverlay(tx *sql.Tx, fsys fsutil.FileSystem, path string, col tagColumn, src CoordSource) error {
	if !fsys.Exists(path) {
		monitoring.Logf("overlay csv %s not present, skipping", path)
		return nil
	}
	rows, err := readOverlayCSV(fsys, path)
	if err != nil {
		return err
	}
	for _, row := range rows {
		body := NormalizeBodyName(row.Body, row.System)
		material := db.aliases.Canonical(row.Material)
		tag := row.Tag
		if err := setTagTx(tx, col, row.System, body, material, &tag, src, string(src), true); err != nil {
			return err
		}
	}
	monitoring.Logf("applied %d %s annotations from %s", len(rows), col, path)
	return nil
}
