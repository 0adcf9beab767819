package hotspotdb

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/banshee-data/elitemining/internal/monitoring"
)

// storedRow is a hotspot_data row as read back for conflict resolution.
type storedRow struct {
	id int64
	Hotspot
}

const rowColumns = `id, system_name, body_name, material_name, hotspot_count, scan_date,
	x, y, z, coord_source, ring_type, ls_distance, inner_radius, outer_radius,
	ring_mass, density, overlap_tag, res_tag, data_source`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRow(sc rowScanner) (*storedRow, error) {
	var r storedRow
	var scanDate, ringType, density, overlap, res, dataSrc sql.NullString
	var x, y, z, ls, inner, outer, mass sql.NullFloat64
	var coordSrc string

	err := sc.Scan(
		&r.id, &r.System, &r.Body, &r.Material, &r.Count, &scanDate,
		&x, &y, &z, &coordSrc, &ringType, &ls, &inner, &outer,
		&mass, &density, &overlap, &res, &dataSrc,
	)
	if err != nil {
		return nil, err
	}

	if scanDate.Valid && scanDate.String != "" {
		if t, err := time.Parse(time.RFC3339, scanDate.String); err == nil {
			r.ScanDate = t
		}
	}
	if x.Valid && y.Valid && z.Valid {
		r.Coords = &Coords{X: x.Float64, Y: y.Float64, Z: z.Float64}
	}
	r.Source = CoordSource(coordSrc)
	if ringType.Valid {
		r.Ring.RingType = &ringType.String
	}
	if ls.Valid {
		r.Ring.LSDistance = &ls.Float64
	}
	if inner.Valid {
		r.Ring.InnerRadius = &inner.Float64
	}
	if outer.Valid {
		r.Ring.OuterRadius = &outer.Float64
	}
	if mass.Valid {
		r.Ring.Mass = &mass.Float64
	}
	if density.Valid && density.String != "" {
		d := ParseDensity(density.String)
		r.Ring.Density = &d
	}
	if overlap.Valid {
		r.Overlap = &overlap.String
	}
	if res.Valid {
		r.RES = &res.String
	}
	if dataSrc.Valid {
		r.DataSrc = dataSrc.String
	}
	return &r, nil
}

func getRowTx(tx *sql.Tx, system, body, material string) (*storedRow, error) {
	r, err := scanRow(tx.QueryRow(
		`SELECT `+rowColumns+` FROM hotspot_data
		 WHERE system_name = ? AND body_name = ? AND material_name = ?`,
		system, body, material,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func nullDensity(d *Density) interface{} {
	if d == nil || d.IsZero() {
		return nil
	}
	return d.String()
}

func coordVals(c *Coords) (interface{}, interface{}, interface{}) {
	if c == nil {
		return nil, nil, nil
	}
	return c.X, c.Y, c.Z
}

// UpsertHotspot inserts or merges one hotspot record under the conflict rules:
// replace when a counted scan beats a placeholder or a strictly higher count
// arrives; merge when a newer scan is also strictly more complete; otherwise
// back-fill null fields only, never losing richer data to a thinner newer
// record. Ring metadata is then propagated to sibling rows of the same ring in
// the same transaction.
func (db *DB) UpsertHotspot(h Hotspot) error {
	h.Body = NormalizeBodyName(h.Body, h.System)
	h.Material = db.aliases.Canonical(h.Material)
	if h.System == "" || h.Body == "" || h.Material == "" {
		return fmt.Errorf("incomplete hotspot key: %q", h.Key())
	}
	if h.Source == "" {
		h.Source = SourceUnknown
	}

	return db.withTx(func(tx *sql.Tx) error {
		existing, err := getRowTx(tx, h.System, h.Body, h.Material)
		if err != nil {
			return fmt.Errorf("failed to read existing hotspot %s: %w", h.Key(), err)
		}

		if existing == nil {
			if err := insertHotspotTx(tx, h); err != nil {
				return err
			}
		} else if err := mergeHotspotTx(tx, existing, h); err != nil {
			return err
		}
		return propagateRingMetadataTx(tx, h.System, h.Body)
	})
}

func insertHotspotTx(tx *sql.Tx, h Hotspot) error {
	x, y, z := coordVals(h.Coords)
	_, err := tx.Exec(
		`INSERT INTO hotspot_data (
			system_name, body_name, material_name, hotspot_count, scan_date,
			x, y, z, coord_source, ring_type, ls_distance, inner_radius,
			outer_radius, ring_mass, density, overlap_tag, res_tag, data_source
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.System, h.Body, h.Material, h.Count, nullTime(h.ScanDate),
		x, y, z, string(h.Source), h.Ring.RingType, h.Ring.LSDistance,
		h.Ring.InnerRadius, h.Ring.OuterRadius, h.Ring.Mass,
		nullDensity(h.Ring.Density), h.Overlap, h.RES, nullStr(h.DataSrc),
	)
	if err != nil {
		return fmt.Errorf("failed to insert hotspot %s: %w", h.Key(), err)
	}
	return nil
}

func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// mergeHotspotTx applies the explicit conflict predicates to an existing row.
func mergeHotspotTx(tx *sql.Tx, old *storedRow, h Hotspot) error {
	countedBeatsPlaceholder := h.Count > 0 && old.Count == 0
	higherCount := h.Count > old.Count
	replace := countedBeatsPlaceholder || higherCount

	newerScan := !h.ScanDate.IsZero() && h.ScanDate.After(old.ScanDate)
	moreComplete := h.Ring.fieldCount() > old.Ring.fieldCount()
	merge := !replace && newerScan && moreComplete

	count := old.Count
	scanDate := old.ScanDate
	dataSrc := old.DataSrc
	overwriteMeta := false
	switch {
	case replace:
		count = h.Count
		if !h.ScanDate.IsZero() {
			scanDate = h.ScanDate
		}
		if h.DataSrc != "" {
			dataSrc = h.DataSrc
		}
		overwriteMeta = true
	case merge:
		scanDate = h.ScanDate
		overwriteMeta = true
	}
	// Remaining case is back-fill only: count and scan date are preserved and
	// new metadata lands only where the existing field is null.

	ring := mergedRing(old.Ring, h.Ring, overwriteMeta)
	coords, source := mergedCoords(old, h)

	x, y, z := coordVals(coords)
	_, err := tx.Exec(
		`UPDATE hotspot_data SET
			hotspot_count = ?, scan_date = ?, x = ?, y = ?, z = ?, coord_source = ?,
			ring_type = ?, ls_distance = ?, inner_radius = ?, outer_radius = ?,
			ring_mass = ?, density = ?, data_source = ?
		 WHERE id = ?`,
		count, nullTime(scanDate), x, y, z, string(source),
		ring.RingType, ring.LSDistance, ring.InnerRadius, ring.OuterRadius,
		ring.Mass, nullDensity(ring.Density), nullStr(dataSrc),
		old.id,
	)
	if err != nil {
		return fmt.Errorf("failed to update hotspot %s: %w", h.Key(), err)
	}
	return nil
}

// mergedRing combines metadata. With overwrite, non-null new values win
// (density still guarded by its override predicate); otherwise new values only
// fill nulls.
func mergedRing(old, new RingMetadata, overwrite bool) RingMetadata {
	out := old
	pickStr := func(dst **string, src *string) {
		if src != nil && (*dst == nil || overwrite) {
			*dst = src
		}
	}
	pickF := func(dst **float64, src *float64) {
		if src != nil && (*dst == nil || overwrite) {
			*dst = src
		}
	}
	pickStr(&out.RingType, new.RingType)
	pickF(&out.LSDistance, new.LSDistance)
	pickF(&out.InnerRadius, new.InnerRadius)
	pickF(&out.OuterRadius, new.OuterRadius)
	pickF(&out.Mass, new.Mass)

	if new.Density != nil && !new.Density.IsZero() {
		var oldD Density
		if out.Density != nil {
			oldD = *out.Density
		}
		if new.Density.mayOverwrite(oldD) {
			d := *new.Density
			out.Density = &d
		}
	}
	return out
}

// mergedCoords applies the coord-source precedence: nulls are filled by any
// source, non-null coords only yield to a strictly higher-precedence source.
func mergedCoords(old *storedRow, h Hotspot) (*Coords, CoordSource) {
	if h.Coords == nil {
		return old.Coords, old.Source
	}
	if old.Coords == nil || coordPrecedence(h.Source) > coordPrecedence(old.Source) {
		return h.Coords, h.Source
	}
	return old.Coords, old.Source
}

// propagateRingMetadataTx back-fills every null ring-metadata field on rows of
// the same ring from the first non-null sibling value, keeping the invariant
// that ring metadata is shared across all material rows of a ring.
func propagateRingMetadataTx(tx *sql.Tx, system, body string) error {
	rows, err := tx.Query(
		`SELECT `+rowColumns+` FROM hotspot_data
		 WHERE system_name = ? AND body_name = ?`, system, body)
	if err != nil {
		return fmt.Errorf("failed to read ring rows: %w", err)
	}
	siblings := []*storedRow{}
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			rows.Close()
			return err
		}
		siblings = append(siblings, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if len(siblings) < 2 {
		return nil
	}

	var shared RingMetadata
	for _, s := range siblings {
		shared = mergedRing(shared, s.Ring, false)
	}

	for _, s := range siblings {
		filled := mergedRing(s.Ring, shared, false)
		_, err := tx.Exec(
			`UPDATE hotspot_data SET
				ring_type = ?, ls_distance = ?, inner_radius = ?, outer_radius = ?,
				ring_mass = ?, density = ?
			 WHERE id = ?`,
			filled.RingType, filled.LSDistance, filled.InnerRadius,
			filled.OuterRadius, filled.Mass, nullDensity(filled.Density), s.id,
		)
		if err != nil {
			return fmt.Errorf("failed to back-fill ring metadata for %s: %w", s.Key(), err)
		}
	}
	return nil
}

// UpdateRingMetadata writes only fields where the new value is present and the
// stored value is null, with the reserve-over-number density exception. A ring
// with no rows yet is a no-op: metadata lives on hotspot rows.
func (db *DB) UpdateRingMetadata(system, body string, md RingMetadata) error {
	body = NormalizeBodyName(body, system)
	return db.withTx(func(tx *sql.Tx) error {
		rows, err := tx.Query(
			`SELECT `+rowColumns+` FROM hotspot_data
			 WHERE system_name = ? AND body_name = ?`, system, body)
		if err != nil {
			return fmt.Errorf("failed to read ring rows: %w", err)
		}
		targets := []*storedRow{}
		for rows.Next() {
			r, err := scanRow(rows)
			if err != nil {
				rows.Close()
				return err
			}
			targets = append(targets, r)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if len(targets) == 0 {
			monitoring.Logf("ring metadata for unknown ring %s / %s dropped", system, body)
			return nil
		}

		for _, r := range targets {
			filled := mergedRing(r.Ring, md, false)
			_, err := tx.Exec(
				`UPDATE hotspot_data SET
					ring_type = ?, ls_distance = ?, inner_radius = ?, outer_radius = ?,
					ring_mass = ?, density = ?
				 WHERE id = ?`,
				filled.RingType, filled.LSDistance, filled.InnerRadius,
				filled.OuterRadius, filled.Mass, nullDensity(filled.Density), r.id,
			)
			if err != nil {
				return fmt.Errorf("failed to update ring metadata for %s: %w", r.Key(), err)
			}
		}
		return nil
	})
}
