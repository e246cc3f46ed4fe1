// Package filesystem embeds the engine's metadata schema, one directory per database type.
package filesystem

import (
	"embed"
	"io/fs"

	"github.com/tigerroll/salesync/pkg/batch/support/util/logger"
)

//go:embed resource
var rawFrameworkMigrationFS embed.FS

// ProvideFrameworkMigrationsFS returns the contents of the embedded resource directory.
func ProvideFrameworkMigrationsFS() fs.FS {
	subFS, err := fs.Sub(rawFrameworkMigrationFS, "resource")
	if err != nil {
		logger.Fatalf("Failed to create subdirectory for framework migration FS: %v", err)
	}
	return subFS
}
