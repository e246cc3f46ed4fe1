// Package postgres registers the PostgreSQL dialector and provider.
package postgres

import (
	"fmt"

	"go.uber.org/fx"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/tigerroll/salesync/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/salesync/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/salesync/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/salesync/pkg/batch/core/config"
)

const Type = "postgres"

func init() {
	gormadapter.RegisterDialector(Type, func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		return postgres.Open(ConnectionString(cfg)), nil
	})
}

// ConnectionString builds a key/value DSN. Sslmode defaults to "disable".
func ConnectionString(c dbconfig.DatabaseConfig) string {
	sslmode := c.Sslmode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslmode)
}

// NewProvider returns the PostgreSQL provider.
func NewProvider(cfg *config.Config) database.DBProvider {
	return gormadapter.NewBaseProvider(cfg, Type)
}

var Module = fx.Provide(fx.Annotate(NewProvider, fx.ResultTags(`group:"db_providers"`)))
