// Package galaxy provides the read-only bulk system coordinate index used to
// pre-filter ring-finder candidates. The backing file is a sqlite database
// bundled with the application and never mutated at runtime.
package galaxy

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// System is one coordinate record. Positions are light-years.
type System struct {
	Name string  `json:"name"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Z    float64 `json:"z"`
}

type DB struct {
	*sql.DB
}

// Open opens the galaxy database read-only.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open galaxy db: %w", err)
	}
	return &DB{db}, nil
}

// Create makes a fresh galaxy database with the systems table and its
// indexes. Used by the bundling tool and by tests; the runtime path is Open.
func Create(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to create galaxy db: %w", err)
	}
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS systems (
			name TEXT NOT NULL,
			x    REAL NOT NULL,
			y    REAL NOT NULL,
			z    REAL NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_systems_name ON systems(name COLLATE NOCASE);
		CREATE INDEX IF NOT EXISTS idx_systems_coords ON systems(x, y, z);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create systems table: %w", err)
	}
	return &DB{db}, nil
}

// InsertSystem adds one coordinate record. Only the bundling tool and tests
// write; the application opens the index read-only.
func (d *DB) InsertSystem(s System) error {
	_, err := d.Exec(`INSERT INTO systems (name, x, y, z) VALUES (?, ?, ?, ?)`, s.Name, s.X, s.Y, s.Z)
	if err != nil {
		return fmt.Errorf("failed to insert system %s: %w", s.Name, err)
	}
	return nil
}

// Coords looks up a system by name, case-insensitively.
func (d *DB) Coords(name string) (System, bool, error) {
	var s System
	err := d.QueryRow(
		`SELECT name, x, y, z FROM systems WHERE name = ? COLLATE NOCASE LIMIT 1`, name,
	).Scan(&s.Name, &s.X, &s.Y, &s.Z)
	if err == sql.ErrNoRows {
		return System{}, false, nil
	}
	if err != nil {
		return System{}, false, fmt.Errorf("failed to look up system %s: %w", name, err)
	}
	return s, true, nil
}

// HasSystem reports whether a system name exists in the index.
func (d *DB) HasSystem(name string) (bool, error) {
	_, ok, err := d.Coords(name)
	return ok, err
}

// SystemsInBBox returns all systems inside the axis-aligned cube of half-side
// r centered at (cx, cy, cz). Precise Euclidean filtering is the caller's job.
func (d *DB) SystemsInBBox(cx, cy, cz, r float64) ([]System, error) {
	rows, err := d.Query(
		`SELECT name, x, y, z FROM systems
		 WHERE x BETWEEN ? AND ? AND y BETWEEN ? AND ? AND z BETWEEN ? AND ?`,
		cx-r, cx+r, cy-r, cy+r, cz-r, cz+r,
	)
	if err != nil {
		return nil, fmt.Errorf("bbox query failed: %w", err)
	}
	defer rows.Close()

	var systems []System
	for rows.Next() {
		var s System
		if err := rows.Scan(&s.Name, &s.X, &s.Y, &s.Z); err != nil {
			return nil, err
		}
		systems = append(systems, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return systems, nil
}
