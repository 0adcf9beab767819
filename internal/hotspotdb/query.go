package hotspotdb

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

// BodyHotspots returns one entry per canonical material on the given ring with
// the maximum known count, sorted by material name.
func (db *DB) BodyHotspots(system, body string) ([]Hotspot, error) {
	body = NormalizeBodyName(body, system)
	rows, err := db.Query(
		`SELECT `+rowColumns+` FROM hotspot_data
		 WHERE system_name = ? AND body_name = ?`, system, body)
	if err != nil {
		return nil, fmt.Errorf("failed to query body hotspots: %w", err)
	}
	defer rows.Close()

	best := map[string]*storedRow{}
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		canon := db.aliases.Canonical(r.Material)
		cur, ok := best[canon]
		if !ok || r.Count > cur.Count {
			r.Material = canon
			best[canon] = r
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(best))
	for n := range best {
		names = append(names, n)
	}
	sort.Strings(names)

	out := make([]Hotspot, 0, len(names))
	for _, n := range names {
		out = append(out, best[n].Hotspot)
	}
	return out, nil
}

// RingExists reports whether any row exists for the ring.
func (db *DB) RingExists(system, body string) (bool, error) {
	body = NormalizeBodyName(body, system)
	var n int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM hotspot_data WHERE system_name = ? AND body_name = ?`,
		system, body,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check ring existence: %w", err)
	}
	return n > 0, nil
}

// LSDistance returns the ring's distance from its star in light-seconds.
func (db *DB) LSDistance(system, body string) (*float64, error) {
	body = NormalizeBodyName(body, system)
	var ls sql.NullFloat64
	err := db.QueryRow(
		`SELECT ls_distance FROM hotspot_data
		 WHERE system_name = ? AND body_name = ? AND ls_distance IS NOT NULL LIMIT 1`,
		system, body,
	).Scan(&ls)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ls distance: %w", err)
	}
	if !ls.Valid {
		return nil, nil
	}
	return &ls.Float64, nil
}

// RingMetadataFor returns the shared metadata of a ring, merged across its
// rows (all non-null fields agree by invariant).
func (db *DB) RingMetadataFor(system, body string) (RingMetadata, error) {
	body = NormalizeBodyName(body, system)
	rows, err := db.Query(
		`SELECT `+rowColumns+` FROM hotspot_data
		 WHERE system_name = ? AND body_name = ?`, system, body)
	if err != nil {
		return RingMetadata{}, fmt.Errorf("failed to read ring metadata: %w", err)
	}
	defer rows.Close()

	var md RingMetadata
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return RingMetadata{}, err
		}
		md = mergedRing(md, r.Ring, false)
	}
	return md, rows.Err()
}

// inChunkSize bounds IN-clause parameter lists; sqlite's default variable
// limit is 999.
const inChunkSize = 500

// HotspotsForSystems returns all hotspot rows whose system is in the given
// set, chunking the IN clause to stay under statement limits. The ring finder
// is the caller.
func (db *DB) HotspotsForSystems(systems []string) ([]Hotspot, error) {
	var out []Hotspot
	for start := 0; start < len(systems); start += inChunkSize {
		end := start + inChunkSize
		if end > len(systems) {
			end = len(systems)
		}
		chunk := systems[start:end]

		placeholders := strings.Repeat("?,", len(chunk))
		placeholders = placeholders[:len(placeholders)-1]
		args := make([]interface{}, len(chunk))
		for i, s := range chunk {
			args[i] = s
		}

		rows, err := db.Query(
			`SELECT `+rowColumns+` FROM hotspot_data
			 WHERE system_name IN (`+placeholders+`)`, args...)
		if err != nil {
			return nil, fmt.Errorf("hotspot IN query failed: %w", err)
		}
		for rows.Next() {
			r, err := scanRow(rows)
			if err != nil {
				rows.Close()
				return nil, err
			}
			out = append(out, r.Hotspot)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return out, nil
}
