package gorm

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/salesync/pkg/batch/adapter/database"
)

// Module provides the connection resolver. Driver packages contribute providers to the "db_providers" group.
var Module = fx.Options(
	fx.Provide(
		NewConnectionResolver,
		func(r *ConnectionResolver) database.DBConnectionResolver { return r },
	),
	fx.Invoke(func(lc fx.Lifecycle, r *ConnectionResolver) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error { return r.CloseAll() },
		})
	}),
)
