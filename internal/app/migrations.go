package app

import (
	"context"
	"io/fs"

	"go.uber.org/fx"

	"github.com/tigerroll/salesync/pkg/batch/adapter/database/migration"
	gormadapter "github.com/tigerroll/salesync/pkg/batch/adapter/database/gorm"
	config "github.com/tigerroll/salesync/pkg/batch/core/config"
	"github.com/tigerroll/salesync/pkg/batch/support/util/logger"
)

// AppMigrationsFSTag names the embedded sales schema in the fx graph.
const AppMigrationsFSTag = `name:"appMigrationsFS"`

// MigrationParams are the dependencies of NewMigrations.
type MigrationParams struct {
	fx.In
	Config      *config.Config
	Resolver    *gormadapter.ConnectionResolver
	Provider    migration.MigratorProvider
	FrameworkFS fs.FS `name:"frameworkMigrationsFS"`
	AppFS       fs.FS `name:"appMigrationsFS"`
}

// Migrations are the schema targets of this deployment: the engine tables on
// the job repository connection and sales_info on the workload connection.
type Migrations struct {
	provider migration.MigratorProvider
	targets  []migration.Target
}

// TargetVersion is the applied schema version of one target.
type TargetVersion struct {
	Connection string
	Table      string
	Version    uint
	Dirty      bool
}

// NewMigrations resolves the connections of every target. The engine schema
// is skipped for the in-memory repository.
func NewMigrations(p MigrationParams) (*Migrations, error) {
	ctx := context.Background()
	infra := p.Config.Salesync.Infrastructure
	m := &Migrations{provider: p.Provider}

	if infra.JobRepositoryDBRef != InMemoryRepositoryRef {
		conn, err := p.Resolver.ResolveDBConnection(ctx, infra.JobRepositoryDBRef)
		if err != nil {
			return nil, err
		}
		m.targets = append(m.targets, migration.Target{Conn: conn, FS: p.FrameworkFS, Table: migration.FrameworkMigrationsTable})
	}
	conn, err := p.Resolver.ResolveDBConnection(ctx, infra.WorkloadDBRef)
	if err != nil {
		return nil, err
	}
	m.targets = append(m.targets, migration.Target{Conn: conn, FS: p.AppFS, Table: migration.AppMigrationsTable})
	return m, nil
}

// Up applies every pending migration.
func (m *Migrations) Up(ctx context.Context) error {
	return migration.UpAll(ctx, m.provider, m.targets...)
}

// Down rolls every target back, sales schema first.
func (m *Migrations) Down(ctx context.Context) error {
	return migration.DownAll(ctx, m.provider, m.targets...)
}

// Versions reports the applied version of each target.
func (m *Migrations) Versions(ctx context.Context) ([]TargetVersion, error) {
	out := make([]TargetVersion, 0, len(m.targets))
	for _, t := range m.targets {
		dir := t.Dir
		if dir == "" {
			dir = t.Conn.Type()
		}
		v, dirty, err := m.provider.NewMigrator(t.Conn).Version(ctx, t.FS, dir, t.Table)
		if err != nil {
			return nil, err
		}
		out = append(out, TargetVersion{Connection: t.Conn.Name(), Table: t.Table, Version: v, Dirty: dirty})
	}
	return out, nil
}

// autoMigrate applies the migrations before the jobs are built when infrastructure.auto_migrate is set.
func autoMigrate(cfg *config.Config, m *Migrations) error {
	if !cfg.Salesync.Infrastructure.AutoMigrate {
		logger.Debugf("Auto migration disabled.")
		return nil
	}
	return m.Up(context.Background())
}
