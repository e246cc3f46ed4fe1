package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/tigerroll/salesync/pkg/batch/adapter/database"
	"github.com/tigerroll/salesync/pkg/batch/support/util/logger"
)

// migratorImpl runs golang-migrate over the *sql.DB of a DBConnection.
type migratorImpl struct {
	dbConn database.DBConnection
	dbType string
}

// NewMigrator creates a Migrator for dbConn.
func NewMigrator(dbConn database.DBConnection) Migrator {
	return &migratorImpl{dbConn: dbConn, dbType: dbConn.Type()}
}

func (m *migratorImpl) databaseDriver(sqlDB *sql.DB, tableName string) (migratedb.Driver, error) {
	switch m.dbType {
	case "postgres":
		return postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: tableName})
	case "mysql":
		return mysql.WithInstance(sqlDB, &mysql.Config{MigrationsTable: tableName})
	case "sqlite":
		return sqlite.WithInstance(sqlDB, &sqlite.Config{MigrationsTable: tableName})
	default:
		return nil, fmt.Errorf("unsupported database type for migration: %s", m.dbType)
	}
}

func (m *migratorImpl) instance(migrationFS fs.FS, path, tableName string) (*migrate.Migrate, error) {
	sqlDB, err := m.dbConn.SQLDB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sourceDriver, err := iofs.New(migrationFS, path)
	if err != nil {
		return nil, fmt.Errorf("failed to create iofs source driver for path %s: %w", path, err)
	}
	dbDriver, err := m.databaseDriver(sqlDB, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}
	mi, err := migrate.NewWithInstance("iofs", sourceDriver, m.dbType, dbDriver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return mi, nil
}

// The migrate instance is not closed: closing it would close the shared *sql.DB.
func (m *migratorImpl) run(migrationFS fs.FS, path, tableName, command string, apply func(*migrate.Migrate) error) error {
	logger.Infof("Executing migration '%s' on '%s' (path: %s, table: %s).", command, m.dbConn.Name(), path, tableName)
	mi, err := m.instance(migrationFS, path, tableName)
	if err != nil {
		return err
	}
	if err := apply(mi); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		if v, dirty, verr := mi.Version(); verr == nil {
			logger.Errorf("Migration '%s' failed at version %d (dirty=%t).", command, v, dirty)
		}
		return fmt.Errorf("migration '%s' failed (db: %s, path: %s): %w", command, m.dbType, path, err)
	}
	logger.Infof("Migration '%s' on '%s' completed.", command, m.dbConn.Name())
	return nil
}

func (m *migratorImpl) Up(ctx context.Context, migrationFS fs.FS, path string, tableName string) error {
	return m.run(migrationFS, path, tableName, "up", (*migrate.Migrate).Up)
}

func (m *migratorImpl) Down(ctx context.Context, migrationFS fs.FS, path string, tableName string) error {
	return m.run(migrationFS, path, tableName, "down", (*migrate.Migrate).Down)
}

func (m *migratorImpl) Version(ctx context.Context, migrationFS fs.FS, path string, tableName string) (uint, bool, error) {
	mi, err := m.instance(migrationFS, path, tableName)
	if err != nil {
		return 0, false, err
	}
	v, dirty, err := mi.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}
