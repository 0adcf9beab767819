package hotspotdb

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/banshee-data/elitemining/internal/fsutil"
	"github.com/banshee-data/elitemining/internal/monitoring"
)

// SystemChecker answers whether a system name is known. The galaxy index
// satisfies it; the multi-star migration consults it before moving suffixes.
type SystemChecker interface {
	HasSystem(name string) (bool, error)
}

// MigrationSources configures the data-quality migration pipeline. Overlay and
// bundled versions can be bumped in a release to reapply that one stage
// without resetting the others.
type MigrationSources struct {
	Galaxy SystemChecker // may be nil; multi-star then trusts visited_systems only

	OverlapCSV     string
	OverlapVersion int
	RESCSV         string
	RESVersion     int
	BundledDB      string
	BundledVersion int

	FS fsutil.FileSystem
}

type dataMigration struct {
	name    string
	version int
	run     func(tx *sql.Tx) error
}

// RunDataMigrations executes each pending data migration in its own
// transaction. A failing migration is logged, rolled back, and leaves its
// recorded version unchanged; the remaining migrations still run.
func (db *DB) RunDataMigrations(src MigrationSources) error {
	if src.FS == nil {
		src.FS = fsutil.OSFileSystem{}
	}

	migrations := []dataMigration{
		{"material_normalization", 1, db.migrateMaterialNames},
		{"body_prefix_repair", 1, db.migrateBodyPrefixes},
		{"multi_star_normalization", 1, func(tx *sql.Tx) error {
			return db.migrateMultiStar(tx, src.Galaxy)
		}},
	}
	if src.OverlapCSV != "" && src.OverlapVersion > 0 {
		migrations = append(migrations, dataMigration{"overlap_overlay", src.OverlapVersion, func(tx *sql.Tx) error {
			return db.applyTagOverlay(tx, src.FS, src.OverlapCSV, colOverlap, SourceOverlapCSV)
		}})
	}
	if src.RESCSV != "" && src.RESVersion > 0 {
		migrations = append(migrations, dataMigration{"res_overlay", src.RESVersion, func(tx *sql.Tx) error {
			return db.applyTagOverlay(tx, src.FS, src.RESCSV, colRES, SourceRESCSV)
		}})
	}

	for _, m := range migrations {
		applied, err := db.migrationVersion(m.name)
		if err != nil {
			return err
		}
		if applied >= m.version {
			continue
		}
		err = db.withTx(func(tx *sql.Tx) error {
			if err := m.run(tx); err != nil {
				return err
			}
			return recordMigrationTx(tx, m.name, m.version)
		})
		if err != nil {
			monitoring.Logf("data migration %s v%d failed, skipping: %v", m.name, m.version, err)
			continue
		}
		monitoring.Logf("data migration %s v%d applied", m.name, m.version)
	}

	// Bundled merge last: ATTACH cannot run inside a transaction, so it has
	// its own path but follows the same versioning contract.
	if src.BundledDB != "" && src.BundledVersion > 0 && src.FS.Exists(src.BundledDB) {
		applied, err := db.migrationVersion("bundled_merge")
		if err != nil {
			return err
		}
		if applied < src.BundledVersion {
			if err := db.mergeBundled(src.BundledDB, src.BundledVersion); err != nil {
				monitoring.Logf("bundled hotspot merge failed, skipping: %v", err)
			}
		}
	}
	return nil
}

func (db *DB) migrationVersion(name string) (int, error) {
	var v int
	err := db.QueryRow(`SELECT version FROM migration_history WHERE name = ?`, name).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read migration history: %w", err)
	}
	return v, nil
}

func recordMigrationTx(tx *sql.Tx, name string, version int) error {
	_, err := tx.Exec(
		`INSERT INTO migration_history (name, version, applied_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET version = excluded.version, applied_at = excluded.applied_at`,
		name, version, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// migrateMaterialNames merges alias-named rows into their canonical rows. When
// both spellings exist in the same ring the newest row wins and the rest are
// deleted; surviving alias rows are renamed.
func (db *DB) migrateMaterialNames(tx *sql.Tx) error {
	rows, err := tx.Query(`SELECT DISTINCT material_name FROM hotspot_data`)
	if err != nil {
		return err
	}
	var aliases []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			rows.Close()
			return err
		}
		if db.aliases.Known(m) && db.aliases.Canonical(m) != m {
			aliases = append(aliases, m)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, alias := range aliases {
		canon := db.aliases.Canonical(alias)

		aliasRows, err := tx.Query(
			`SELECT id, system_name, body_name, IFNULL(scan_date, '') FROM hotspot_data WHERE material_name = ?`, alias)
		if err != nil {
			return err
		}
		type aliasRow struct {
			id           int64
			system, body string
			scan         string
		}
		var pending []aliasRow
		for aliasRows.Next() {
			var r aliasRow
			if err := aliasRows.Scan(&r.id, &r.system, &r.body, &r.scan); err != nil {
				aliasRows.Close()
				return err
			}
			pending = append(pending, r)
		}
		aliasRows.Close()
		if err := aliasRows.Err(); err != nil {
			return err
		}

		for _, r := range pending {
			var canonID int64
			var canonScan string
			err := tx.QueryRow(
				`SELECT id, IFNULL(scan_date, '') FROM hotspot_data
				 WHERE system_name = ? AND body_name = ? AND material_name = ?`,
				r.system, r.body, canon,
			).Scan(&canonID, &canonScan)
			switch {
			case err == sql.ErrNoRows:
				// No canonical twin: rename in place.
				if _, err := tx.Exec(`UPDATE hotspot_data SET material_name = ? WHERE id = ?`, canon, r.id); err != nil {
					return err
				}
			case err != nil:
				return err
			case r.scan > canonScan:
				// Alias row is newest: it replaces the canonical row.
				if _, err := tx.Exec(`DELETE FROM hotspot_data WHERE id = ?`, canonID); err != nil {
					return err
				}
				if _, err := tx.Exec(`UPDATE hotspot_data SET material_name = ? WHERE id = ?`, canon, r.id); err != nil {
					return err
				}
			default:
				if _, err := tx.Exec(`DELETE FROM hotspot_data WHERE id = ?`, r.id); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// migrateBodyPrefixes repairs rows whose body_name still carries a system
// prefix (own or foreign) from older ingestions.
func (db *DB) migrateBodyPrefixes(tx *sql.Tx) error {
	rows, err := tx.Query(`SELECT id, system_name, body_name, material_name FROM hotspot_data`)
	if err != nil {
		return err
	}
	type fix struct {
		id                 int64
		system, body, mat  string
		newSystem, newBody string
	}
	var fixes []fix
	for rows.Next() {
		var f fix
		if err := rows.Scan(&f.id, &f.system, &f.body, &f.mat); err != nil {
			rows.Close()
			return err
		}
		normalized := NormalizeBodyName(f.body, f.system)
		if normalized != f.body {
			f.newSystem, f.newBody = f.system, normalized
			fixes = append(fixes, f)
			continue
		}
		if sys, rest, ok := SplitForeignPrefix(f.body, db.aliases); ok {
			f.newSystem, f.newBody = sys, rest
			fixes = append(fixes, f)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, f := range fixes {
		if err := moveRowTx(tx, f.id, f.newSystem, f.newBody, f.mat); err != nil {
			return err
		}
	}
	return nil
}

// moveRowTx rewrites a row's key, deleting it instead when a correct row
// already exists at the target key.
func moveRowTx(tx *sql.Tx, id int64, system, body, material string) error {
	var existing int64
	err := tx.QueryRow(
		`SELECT id FROM hotspot_data WHERE system_name = ? AND body_name = ? AND material_name = ? AND id != ?`,
		system, body, material, id,
	).Scan(&existing)
	switch {
	case err == sql.ErrNoRows:
		_, err := tx.Exec(
			`UPDATE hotspot_data SET system_name = ?, body_name = ? WHERE id = ?`,
			system, body, id)
		return err
	case err != nil:
		return err
	default:
		_, err := tx.Exec(`DELETE FROM hotspot_data WHERE id = ?`, id)
		return err
	}
}

// migrateMultiStar moves star designators from system names into body names
// ("HIP 39383 BC" + "3 A Ring" becomes "HIP 39383" + "BC 3 A Ring"). The safe
// variant: the move happens only when the base system is known to the galaxy
// index or the visited-systems table and the full name is known to neither;
// ambiguity leaves the row unchanged.
func (db *DB) migrateMultiStar(tx *sql.Tx, gal SystemChecker) error {
	rows, err := tx.Query(`SELECT id, system_name, body_name, material_name FROM hotspot_data`)
	if err != nil {
		return err
	}
	type move struct {
		id                 int64
		base, suffix, body string
		material           string
	}
	var moves []move
	for rows.Next() {
		var id int64
		var system, body, material string
		if err := rows.Scan(&id, &system, &body, &material); err != nil {
			rows.Close()
			return err
		}
		base, suffix, ok := SplitStarSuffix(system, db.aliases)
		if !ok {
			continue
		}
		moves = append(moves, move{id: id, base: base, suffix: suffix, body: body, material: material})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, m := range moves {
		full := m.base + " " + m.suffix
		baseKnown, err := systemKnownTx(tx, gal, m.base)
		if err != nil {
			return err
		}
		fullKnown, err := systemKnownTx(tx, gal, full)
		if err != nil {
			return err
		}
		if !baseKnown || fullKnown {
			continue
		}

		newBody := m.suffix + " " + m.body
		if err := moveRowTx(tx, m.id, m.base, newBody, m.material); err != nil {
			return err
		}
		// Back-fill coordinates from the visited base system when the moved
		// row has none.
		_, err = tx.Exec(
			`UPDATE hotspot_data SET
				x = (SELECT v.x FROM visited_systems v WHERE v.system_name = ?),
				y = (SELECT v.y FROM visited_systems v WHERE v.system_name = ?),
				z = (SELECT v.z FROM visited_systems v WHERE v.system_name = ?),
				coord_source = ?
			 WHERE id = ? AND x IS NULL
			   AND EXISTS (SELECT 1 FROM visited_systems v WHERE v.system_name = ? AND v.x IS NOT NULL)`,
			m.base, m.base, m.base, string(SourceVisited), m.id, m.base,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func systemKnownTx(tx *sql.Tx, gal SystemChecker, name string) (bool, error) {
	var n int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM visited_systems WHERE system_name = ?`, name).Scan(&n); err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	if gal == nil {
		return false, nil
	}
	return gal.HasSystem(name)
}

// mergeBundled inserts rows from the shipped hotspot snapshot whose keys do
// not exist locally. User rows are never overwritten and visited_systems is
// never touched.
func (db *DB) mergeBundled(path string, version int) error {
	if _, err := db.Exec(`ATTACH DATABASE ? AS bundled`, path); err != nil {
		return fmt.Errorf("failed to attach bundled db: %w", err)
	}
	defer func() {
		if _, err := db.Exec(`DETACH DATABASE bundled`); err != nil {
			monitoring.Logf("warning: failed to detach bundled db: %v", err)
		}
	}()

	return db.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			INSERT INTO hotspot_data (
				system_name, body_name, material_name, hotspot_count, scan_date,
				x, y, z, coord_source, ring_type, ls_distance, inner_radius,
				outer_radius, ring_mass, density, overlap_tag, res_tag, data_source
			)
			SELECT b.system_name, b.body_name, b.material_name, b.hotspot_count, b.scan_date,
				b.x, b.y, b.z, b.coord_source, b.ring_type, b.ls_distance, b.inner_radius,
				b.outer_radius, b.ring_mass, b.density, b.overlap_tag, b.res_tag, b.data_source
			FROM bundled.hotspot_data b
			WHERE NOT EXISTS (
				SELECT 1 FROM hotspot_data h
				WHERE h.system_name = b.system_name
				  AND h.body_name = b.body_name
				  AND h.material_name = b.material_name
			)`)
		if err != nil {
			return fmt.Errorf("bundled merge insert failed: %w", err)
		}
		n, _ := res.RowsAffected()
		monitoring.Logf("bundled hotspot merge: %d new rows", n)
		return recordMigrationTx(tx, "bundled_merge", version)
	})
}
