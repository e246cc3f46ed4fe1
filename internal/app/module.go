// Package app assembles the salesync fx graph shared by every command.
package app

import (
	"go.uber.org/fx"

	"github.com/tigerroll/salesync/internal/job"
	"github.com/tigerroll/salesync/internal/sales/domain"
	gormadapter "github.com/tigerroll/salesync/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/salesync/pkg/batch/adapter/database/gorm/mysql"
	"github.com/tigerroll/salesync/pkg/batch/adapter/database/gorm/postgres"
	"github.com/tigerroll/salesync/pkg/batch/adapter/database/gorm/sqlite"
	"github.com/tigerroll/salesync/pkg/batch/adapter/database/migration"
	"github.com/tigerroll/salesync/pkg/batch/adapter/storage"
	config "github.com/tigerroll/salesync/pkg/batch/core/config"
	inframetrics "github.com/tigerroll/salesync/pkg/batch/infrastructure/metrics"
	batchlistener "github.com/tigerroll/salesync/pkg/batch/listener"
	"github.com/tigerroll/salesync/pkg/batch/support/util/logger"

	_ "github.com/tigerroll/salesync/pkg/batch/adapter/storage/gcs"
	_ "github.com/tigerroll/salesync/pkg/batch/adapter/storage/local"
	_ "github.com/tigerroll/salesync/pkg/batch/adapter/storage/s3"
)

// Options returns the complete graph. Constructors run only when a command
// requests what they provide.
func Options(embeddedConfig config.EmbeddedConfig, envFilePath string) fx.Option {
	return fx.Options(
		fx.Supply(
			embeddedConfig,
			fx.Annotate(envFilePath, fx.ResultTags(`name:"envFilePath"`)),
		),
		fx.Provide(fx.Annotate(domain.MigrationsFS, fx.ResultTags(AppMigrationsFSTag))),
		logger.Module,
		config.Module,

		sqlite.Module,
		postgres.Module,
		mysql.Module,
		gormadapter.Module,
		migration.Module,
		fx.Provide(NewJobRepository, NewMigrations),

		storage.Module,
		inframetrics.Module,
		batchlistener.Module,
		job.Module,
	)
}

// AutoMigrate applies pending migrations during construction when
// infrastructure.auto_migrate is set.
var AutoMigrate = fx.Invoke(autoMigrate)

// New builds the application for one command.
func New(embeddedConfig config.EmbeddedConfig, envFilePath string, opts ...fx.Option) *fx.App {
	return fx.New(Options(embeddedConfig, envFilePath), fx.Options(opts...))
}
