// Package migration applies the embedded schema migrations with golang-migrate.
package migration

import (
	"context"
	"io/fs"

	"github.com/tigerroll/salesync/pkg/batch/adapter/database"
)

// History tables, kept apart so engine and application schemas version independently.
const (
	FrameworkMigrationsTable = "batch_framework_migrations"
	AppMigrationsTable       = "batch_app_migrations"
)

// Migrator applies migrations to one connection.
type Migrator interface {
	// Up applies all pending migrations found under path in migrationFS.
	// tableName holds the migration history.
	Up(ctx context.Context, migrationFS fs.FS, path string, tableName string) error
	// Down rolls back every applied migration.
	Down(ctx context.Context, migrationFS fs.FS, path string, tableName string) error
	// Version reports the applied version and whether the last migration left the schema dirty.
	Version(ctx context.Context, migrationFS fs.FS, path string, tableName string) (version uint, dirty bool, err error)
}

// MigratorProvider creates a Migrator for a connection.
type MigratorProvider interface {
	NewMigrator(dbConn database.DBConnection) Migrator
}

// Target is one set of migrations bound to a connection.
type Target struct {
	Conn database.DBConnection
	FS   fs.FS
	// Dir is the directory inside FS; empty means the connection's database type.
	Dir   string
	Table string
}

func (t Target) dir() string {
	if t.Dir != "" {
		return t.Dir
	}
	return t.Conn.Type()
}
