// Package migration applies the record store schema with golang-migrate.
// The versioned SQL files are embedded, so a binary always carries the
// schema it expects.
//
//	if err := migration.Up(db.GormDB); err != nil { ... }
package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm"
)

//go:embed sql/*.sql
var schemaFS embed.FS

// DriverFunc creates a migrate database driver from sql.DB.
type DriverFunc func(*sql.DB) (database.Driver, error)

// SQLite is the DriverFunc for the bundled SQLite store.
func SQLite(db *sql.DB) (database.Driver, error) {
	return sqlite3.WithInstance(db, &sqlite3.Config{})
}

// Up applies all pending migrations using the SQLite driver.
func Up(gormDB *gorm.DB) error {
	return UpWith(gormDB, SQLite)
}

// UpWith applies all pending migrations using driverFunc.
// migrate.ErrNoChange is suppressed.
func UpWith(gormDB *gorm.DB, driverFunc DriverFunc) error {
	m, err := newMigrator(gormDB, driverFunc)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// Down rolls back every migration.
func Down(gormDB *gorm.DB) error {
	m, err := newMigrator(gormDB, SQLite)
	if err != nil {
		return err
	}
	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate down: %w", err)
	}
	return nil
}

// Version returns the current migration version and dirty flag.
func Version(gormDB *gorm.DB) (version uint, dirty bool, err error) {
	m, err := newMigrator(gormDB, SQLite)
	if err != nil {
		return 0, false, err
	}
	return m.Version()
}

// newMigrator creates a golang-migrate instance backed by the embedded FS.
// Callers must not call m.Close(); it would close the shared sql.DB.
func newMigrator(gormDB *gorm.DB, driverFunc DriverFunc) (*migrate.Migrate, error) {
	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}

	driver, err := driverFunc(sqlDB)
	if err != nil {
		return nil, fmt.Errorf("create database driver: %w", err)
	}

	source, err := iofs.New(schemaFS, "sql")
	if err != nil {
		return nil, fmt.Errorf("create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "database", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}
