package domain

import (
	"embed"
	"io/fs"

	"github.com/tigerroll/salesync/pkg/batch/support/util/logger"
)

//go:embed migrations
var rawMigrationsFS embed.FS

// MigrationsFS returns the sales_info schema, one directory per database type.
func MigrationsFS() fs.FS {
	sub, err := fs.Sub(rawMigrationsFS, "migrations")
	if err != nil {
		logger.Fatalf("Failed to open the embedded sales migrations: %v", err)
	}
	return sub
}
