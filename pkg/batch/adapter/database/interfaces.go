// Package database declares the connection contracts shared by the metadata store and the sales sink.
package database

import (
	"context"
	"database/sql"

	dbconfig "github.com/tigerroll/salesync/pkg/batch/adapter/database/config"
)

// DBConnection is an open, named database connection.
type DBConnection interface {
	// Name is the configuration key of the connection (e.g. "metadata", "workload").
	Name() string
	// Type is the database type (e.g. "sqlite", "postgres", "mysql").
	Type() string
	Config() dbconfig.DatabaseConfig
	// SQLDB returns the underlying *sql.DB, used by schema migrations.
	SQLDB() (*sql.DB, error)
	Close() error
}

// DBProvider opens and caches connections for one database type.
type DBProvider interface {
	Type() string
	GetConnection(name string) (DBConnection, error)
	CloseAll() error
}

// DBConnectionResolver resolves a connection by its configuration name.
type DBConnectionResolver interface {
	ResolveDBConnection(ctx context.Context, name string) (DBConnection, error)
}

// DBProviderGroup is the fx value group collecting DBProvider implementations.
const DBProviderGroup = "db_providers"
