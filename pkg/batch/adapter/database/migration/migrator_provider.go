package migration

import (
	"context"

	"github.com/tigerroll/salesync/pkg/batch/adapter/database"
)

type migratorProviderImpl struct{}

// NewMigratorProvider returns the golang-migrate backed provider.
func NewMigratorProvider() MigratorProvider {
	return &migratorProviderImpl{}
}

func (p *migratorProviderImpl) NewMigrator(dbConn database.DBConnection) Migrator {
	return NewMigrator(dbConn)
}

// UpAll applies the targets in order and stops at the first failure.
func UpAll(ctx context.Context, provider MigratorProvider, targets ...Target) error {
	for _, t := range targets {
		if err := provider.NewMigrator(t.Conn).Up(ctx, t.FS, t.dir(), t.Table); err != nil {
			return err
		}
	}
	return nil
}

// DownAll rolls the targets back in reverse order.
func DownAll(ctx context.Context, provider MigratorProvider, targets ...Target) error {
	for i := len(targets) - 1; i >= 0; i-- {
		t := targets[i]
		if err := provider.NewMigrator(t.Conn).Down(ctx, t.FS, t.dir(), t.Table); err != nil {
			return err
		}
	}
	return nil
}
