// Package sqlite registers the SQLite dialector and provider.
package sqlite

import (
	"errors"

	"go.uber.org/fx"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tigerroll/salesync/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/salesync/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/salesync/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/salesync/pkg/batch/core/config"
)

const Type = "sqlite"

func init() {
	gormadapter.RegisterDialector(Type, func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		if cfg.Database == "" {
			return nil, errors.New("sqlite database path cannot be empty")
		}
		return sqlite.Open(ConnectionString(cfg)), nil
	})
}

// ConnectionString returns the database file path; ":memory:" is accepted.
func ConnectionString(c dbconfig.DatabaseConfig) string {
	return c.Database
}

// NewProvider returns the SQLite provider.
func NewProvider(cfg *config.Config) database.DBProvider {
	return gormadapter.NewBaseProvider(cfg, Type)
}

// Module contributes the provider to the db_providers group.
var Module = fx.Provide(fx.Annotate(NewProvider, fx.ResultTags(`group:"db_providers"`)))
