package filesystem

import (
	"go.uber.org/fx"
)

// FrameworkMigrationsFSTag names the embedded engine migrations in the fx graph.
const FrameworkMigrationsFSTag = `name:"frameworkMigrationsFS"`

var Module = fx.Options(
	fx.Provide(fx.Annotate(
		ProvideFrameworkMigrationsFS,
		fx.ResultTags(FrameworkMigrationsFSTag),
	)),
)
