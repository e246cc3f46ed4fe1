package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/salesync/pkg/batch/core/config"
)

const testYAML = `
salesync:
  batch:
    chunk_size: 25
  system:
    logging:
      level: DEBUG
  storage:
    type: s3
    bucket: ${TEST_SALES_BUCKET}
    selection:
      prefix: "2025"
  database:
    workload:
      type: sqlite
      database: /tmp/salesync.db
`

func TestLoadConfig_Layers(t *testing.T) {
	t.Setenv("TEST_SALES_BUCKET", "sales-drop")
	t.Setenv("SALESYNC_BATCH_CHUNK_SIZE", "50")
	t.Setenv("SALESYNC_SERVER_ADDRESS", ":9090")

	cfg, err := config.LoadConfig("testdata-does-not-exist.env", config.EmbeddedConfig(testYAML), config.NewOsEnvironmentExpander())
	require.NoError(t, err)

	// env beats yaml, yaml beats defaults
	assert.Equal(t, 50, cfg.Salesync.Batch.ChunkSize)
	assert.Equal(t, "sync-sales-job", cfg.Salesync.Batch.JobName)
	assert.Equal(t, "DEBUG", cfg.Salesync.System.Logging.Level)
	assert.Equal(t, ":9090", cfg.Salesync.Server.Address)
	assert.Equal(t, "sales-drop", cfg.Salesync.Storage["bucket"])

	workload, ok := cfg.Salesync.AdapterConfigs["workload"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "sqlite", workload["type"])
}

func TestLoadConfig_RejectsInvalidChunkSize(t *testing.T) {
	_, err := config.LoadConfig("", config.EmbeddedConfig("salesync:\n  batch:\n    chunk_size: -1\n"), nil)
	assert.Error(t, err)
}

func TestNewConfig_Defaults(t *testing.T) {
	cfg := config.NewConfig()
	assert.Equal(t, 10, cfg.Salesync.Batch.ChunkSize)
	assert.Equal(t, "metadata", cfg.Salesync.Infrastructure.JobRepositoryDBRef)
	assert.NoError(t, cfg.Validate())
}
