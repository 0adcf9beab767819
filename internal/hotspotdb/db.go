// Package hotspotdb is the persistent mutable store of rings, material
// hotspots and visited systems, including the data-quality migration pipeline
// that merges journal data, bundled community dumps and CSV overlays.
package hotspotdb

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/elitemining/internal/materials"
	"github.com/banshee-data/elitemining/internal/monitoring"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

type DB struct {
	*sql.DB
	path    string
	aliases *materials.Table
}

// Open opens (creating if necessary) the hotspot database at path and brings
// its base schema up to date via the embedded migrations.
func Open(path string, tbl *materials.Table) (*DB, error) {
	if tbl == nil {
		tbl = materials.Default()
	}
	sqldb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open hotspot db: %w", err)
	}
	// Writers are serialized through transactions; a single connection avoids
	// SQLITE_BUSY churn between the ingest and query paths.
	sqldb.SetMaxOpenConns(1)

	db := &DB{DB: sqldb, path: path, aliases: tbl}
	if err := db.migrateUp(); err != nil {
		sqldb.Close()
		return nil, err
	}
	return db, nil
}

// Aliases exposes the material alias table the store canonicalizes with.
func (db *DB) Aliases() *materials.Table { return db.aliases }

// Path returns the backing file path.
func (db *DB) Path() string { return db.path }

func (db *DB) migrateUp() error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load embedded migrations: %w", err)
	}
	driver, err := sqlitemigrate.WithInstance(db.DB, &sqlitemigrate.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("schema migration failed: %w", err)
	}
	return nil
}

// migrateLogger implements migrate.Logger interface
type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Logf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return false
}

// withTx runs fn inside a transaction with rollback on error. Every ingestion
// path goes through here so an upsert and its sibling back-fill commit as one.
func (db *DB) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			monitoring.Logf("warning: failed to rollback transaction: %v", err)
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
