package app

import (
	"context"

	gormadapter "github.com/tigerroll/salesync/pkg/batch/adapter/database/gorm"
	config "github.com/tigerroll/salesync/pkg/batch/core/config"
	"github.com/tigerroll/salesync/pkg/batch/core/domain/repository"
	"github.com/tigerroll/salesync/pkg/batch/infrastructure/repository/inmemory"
	sqlrepo "github.com/tigerroll/salesync/pkg/batch/infrastructure/repository/sql"
	"github.com/tigerroll/salesync/pkg/batch/support/util/logger"
)

// InMemoryRepositoryRef selects the process-local job repository.
const InMemoryRepositoryRef = "inmemory"

// NewJobRepository returns the SQL repository on the configured connection.
// When that connection is also the workload connection, checkpoints join the
// chunk transaction.
func NewJobRepository(cfg *config.Config, resolver *gormadapter.ConnectionResolver) (repository.JobRepository, error) {
	ref := cfg.Salesync.Infrastructure.JobRepositoryDBRef
	if ref == InMemoryRepositoryRef {
		logger.Warnf("Job repository is in memory; restart data is lost when the process exits.")
		return inmemory.NewJobRepository(), nil
	}
	conn, err := resolver.ResolveGorm(context.Background(), ref)
	if err != nil {
		return nil, err
	}
	if ref == cfg.Salesync.Infrastructure.WorkloadDBRef {
		logger.Debugf("Job repository shares connection '%s' with the workload.", ref)
	}
	return sqlrepo.NewJobRepository(conn.DB(), ref), nil
}
