package hotspotdb

import (
	"database/sql"
	"fmt"
)

// tagColumn selects which annotation a tag write targets.
type tagColumn string

const (
	colOverlap tagColumn = "overlap_tag"
	colRES     tagColumn = "res_tag"
)

// SetOverlapTag sets or clears the overlap annotation ("2x"/"3x") for one
// material row. When no row exists a placeholder with hotspot_count 0 is
// inserted so the tag persists.
func (db *DB) SetOverlapTag(system, body, material string, tag *string) error {
	return db.setTag(colOverlap, system, body, material, tag, SourceUnknown, "", false)
}

// SetRESTag sets or clears the RES annotation ("Hazardous"/"High"/"Low").
func (db *DB) SetRESTag(system, body, material string, tag *string) error {
	return db.setTag(colRES, system, body, material, tag, SourceUnknown, "", false)
}

// setTag is the shared write path; the overlay migrations use onlyIfNull so
// shipped CSV data never clobbers user-entered tags.
func (db *DB) setTag(col tagColumn, system, body, material string, tag *string, src CoordSource, dataSrc string, onlyIfNull bool) error {
	body = NormalizeBodyName(body, system)
	material = db.aliases.Canonical(material)

	return db.withTx(func(tx *sql.Tx) error {
		return setTagTx(tx, col, system, body, material, tag, src, dataSrc, onlyIfNull)
	})
}

func setTagTx(tx *sql.Tx, col tagColumn, system, body, material string, tag *string, src CoordSource, dataSrc string, onlyIfNull bool) error {
	existing, err := getRowTx(tx, system, body, material)
	if err != nil {
		return fmt.Errorf("failed to read row for tag update: %w", err)
	}

	if existing == nil {
		if tag == nil {
			return nil // clearing a tag on a missing row is a no-op
		}
		h := Hotspot{
			System:   system,
			Body:     body,
			Material: material,
			Count:    0,
			Source:   src,
			DataSrc:  dataSrc,
		}
		if col == colOverlap {
			h.Overlap = tag
		} else {
			h.RES = tag
		}
		return insertHotspotTx(tx, h)
	}

	if onlyIfNull {
		current := existing.Overlap
		if col == colRES {
			current = existing.RES
		}
		if current != nil {
			return nil
		}
	}

	_, err = tx.Exec(
		fmt.Sprintf(`UPDATE hotspot_data SET %s = ? WHERE id = ?`, col),
		tag, existing.id,
	)
	if err != nil {
		return fmt.Errorf("failed to set %s on %s/%s/%s: %w", col, system, body, material, err)
	}
	return nil
}

// TagExport is one exported annotation row, used by the round-trip law tests
// and the CSV export path.
type TagExport struct {
	System   string
	Body     string
	Material string
	Tag      string
}

// ExportTags returns all non-null tags of the given column, sorted by key.
func (db *DB) ExportTags(col string) ([]TagExport, error) {
	c := tagColumn(col)
	if c != colOverlap && c != colRES {
		return nil, fmt.Errorf("unknown tag column %q", col)
	}
	rows, err := db.Query(fmt.Sprintf(
		`SELECT system_name, body_name, material_name, %s FROM hotspot_data
		 WHERE %s IS NOT NULL ORDER BY system_name, body_name, material_name`, c, c))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TagExport
	for rows.Next() {
		var t TagExport
		if err := rows.Scan(&t.System, &t.Body, &t.Material, &t.Tag); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
