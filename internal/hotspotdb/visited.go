package hotspotdb

import (
	"database/sql"
	"fmt"
	"time"
)

// VisitedSystem is one row of visited_systems.
type VisitedSystem struct {
	Name       string
	Coords     *Coords
	FirstVisit time.Time
	LastVisit  time.Time
	VisitCount int
}

// AddVisitedSystem upserts a visit. The visit count increments only when the
// new timestamp is strictly after the stored last visit, so replaying a
// journal or receiving a duplicate event never double-counts.
func (db *DB) AddVisitedSystem(name string, ts time.Time, coords *Coords) error {
	if name == "" {
		return fmt.Errorf("empty system name")
	}
	return db.withTx(func(tx *sql.Tx) error {
		return addVisitedTx(tx, name, ts, coords)
	})
}

func addVisitedTx(tx *sql.Tx, name string, ts time.Time, coords *Coords) error {
	var first, last string
	var count int
	var x, y, z sql.NullFloat64
	err := tx.QueryRow(
		`SELECT first_visit_date, last_visit_date, visit_count, x, y, z
		 FROM visited_systems WHERE system_name = ?`, name,
	).Scan(&first, &last, &count, &x, &y, &z)

	if err == sql.ErrNoRows {
		cx, cy, cz := coordVals(coords)
		_, err := tx.Exec(
			`INSERT INTO visited_systems (system_name, x, y, z, first_visit_date, last_visit_date, visit_count)
			 VALUES (?, ?, ?, ?, ?, ?, 1)`,
			name, cx, cy, cz, ts.UTC().Format(time.RFC3339), ts.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("failed to insert visited system %s: %w", name, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read visited system %s: %w", name, err)
	}

	lastT, _ := time.Parse(time.RFC3339, last)
	firstT, _ := time.Parse(time.RFC3339, first)

	newLast := last
	newCount := count
	if ts.After(lastT) {
		newLast = ts.UTC().Format(time.RFC3339)
		newCount = count + 1
	}
	newFirst := first
	if !firstT.IsZero() && ts.Before(firstT) {
		newFirst = ts.UTC().Format(time.RFC3339)
	}

	// Coordinates only fill nulls; visited rows never flip-flop positions.
	cx, cy, cz := x, y, z
	if coords != nil && !(x.Valid && y.Valid && z.Valid) {
		cx = sql.NullFloat64{Float64: coords.X, Valid: true}
		cy = sql.NullFloat64{Float64: coords.Y, Valid: true}
		cz = sql.NullFloat64{Float64: coords.Z, Valid: true}
	}

	_, err = tx.Exec(
		`UPDATE visited_systems
		 SET first_visit_date = ?, last_visit_date = ?, visit_count = ?, x = ?, y = ?, z = ?
		 WHERE system_name = ?`,
		newFirst, newLast, newCount, cx, cy, cz, name,
	)
	if err != nil {
		return fmt.Errorf("failed to update visited system %s: %w", name, err)
	}
	return nil
}

// VisitedSystem returns one visited row, if present.
func (db *DB) VisitedSystem(name string) (*VisitedSystem, bool, error) {
	var v VisitedSystem
	var first, last string
	var x, y, z sql.NullFloat64
	err := db.QueryRow(
		`SELECT system_name, first_visit_date, last_visit_date, visit_count, x, y, z
		 FROM visited_systems WHERE system_name = ?`, name,
	).Scan(&v.Name, &first, &last, &v.VisitCount, &x, &y, &z)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read visited system %s: %w", name, err)
	}
	v.FirstVisit, _ = time.Parse(time.RFC3339, first)
	v.LastVisit, _ = time.Parse(time.RFC3339, last)
	if x.Valid && y.Valid && z.Valid {
		v.Coords = &Coords{X: x.Float64, Y: y.Float64, Z: z.Float64}
	}
	return &v, true, nil
}

// RecentVisitedSystems returns the most recently visited systems, newest
// first. A limit of 0 or less returns everything.
func (db *DB) RecentVisitedSystems(limit int) ([]VisitedSystem, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.Query(
		`SELECT system_name, first_visit_date, last_visit_date, visit_count, x, y, z
		 FROM visited_systems
		 ORDER BY last_visit_date DESC, system_name
		 LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent visited query failed: %w", err)
	}
	defer rows.Close()

	var out []VisitedSystem
	for rows.Next() {
		var v VisitedSystem
		var first, last string
		var x, y, z sql.NullFloat64
		if err := rows.Scan(&v.Name, &first, &last, &v.VisitCount, &x, &y, &z); err != nil {
			return nil, err
		}
		v.FirstVisit, _ = time.Parse(time.RFC3339, first)
		v.LastVisit, _ = time.Parse(time.RFC3339, last)
		if x.Valid && y.Valid && z.Valid {
			v.Coords = &Coords{X: x.Float64, Y: y.Float64, Z: z.Float64}
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// VisitedSystemsInBBox returns visited systems with known coordinates inside
// the axis-aligned cube of half-side r.
func (db *DB) VisitedSystemsInBBox(cx, cy, cz, r float64) ([]VisitedSystem, error) {
	rows, err := db.Query(
		`SELECT system_name, first_visit_date, last_visit_date, visit_count, x, y, z
		 FROM visited_systems
		 WHERE x BETWEEN ? AND ? AND y BETWEEN ? AND ? AND z BETWEEN ? AND ?`,
		cx-r, cx+r, cy-r, cy+r, cz-r, cz+r,
	)
	if err != nil {
		return nil, fmt.Errorf("visited bbox query failed: %w", err)
	}
	defer rows.Close()

	var out []VisitedSystem
	for rows.Next() {
		var v VisitedSystem
		var first, last string
		var x, y, z sql.NullFloat64
		if err := rows.Scan(&v.Name, &first, &last, &v.VisitCount, &x, &y, &z); err != nil {
			return nil, err
		}
		v.FirstVisit, _ = time.Parse(time.RFC3339, first)
		v.LastVisit, _ = time.Parse(time.RFC3339, last)
		if x.Valid && y.Valid && z.Valid {
			v.Coords = &Coords{X: x.Float64, Y: y.Float64, Z: z.Float64}
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
