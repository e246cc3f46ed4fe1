package migration

import (
	"go.uber.org/fx"

	"github.com/tigerroll/salesync/pkg/batch/adapter/database/migration/filesystem"
)

// Module provides the MigratorProvider and the embedded engine migrations.
var Module = fx.Options(
	fx.Provide(NewMigratorProvider),
	filesystem.Module,
)
