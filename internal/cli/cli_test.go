package cli_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/salesync/internal/api"
	"github.com/tigerroll/salesync/internal/cli"
	"github.com/tigerroll/salesync/internal/job"
	config "github.com/tigerroll/salesync/pkg/batch/core/config"
	model "github.com/tigerroll/salesync/pkg/batch/core/domain/model"
)

const configTemplate = `
salesync:
  batch:
    chunk_size: 4
  system:
    logging:
      level: ERROR
  infrastructure:
    job_repository_db_ref: workload
    workload_db_ref: workload
    auto_migrate: true
  telemetry:
    metrics:
      backend: none
  storage:
    type: local
    bucket: sales-bucket
    download_dir: %s
    selection:
      prefix: "2025"
    local:
      base_dir: %s
  export:
    output_prefix: exports/sales_info
  database:
    workload:
      type: sqlite
      database: %s
`

type harness struct {
	dir    string
	base   string
	config config.EmbeddedConfig
}

func newHarness(t *testing.T) harness {
	t.Helper()
	dir := t.TempDir()
	base := filepath.Join(dir, "objects")
	require.NoError(t, os.MkdirAll(filepath.Join(base, "sales-bucket"), 0o755))
	yaml := fmt.Sprintf(configTemplate, filepath.Join(dir, "downloads"), base, filepath.Join(dir, "salesync.db"))
	return harness{dir: dir, base: base, config: config.EmbeddedConfig(yaml)}
}

func (h harness) drop(t *testing.T, rows int) {
	t.Helper()
	lines := []string{"saleId,productId,customerId,saleDate,saleAmount,location,country"}
	for i := 1; i <= rows; i++ {
		lines = append(lines, fmt.Sprintf("%d,%d,%d,2025-04-%02d,%d.75,Kiosk %d,Peru", i, 40+i, 70+i, i%28+1, i, i))
	}
	require.NoError(t, os.WriteFile(filepath.Join(h.base, "sales-bucket", "2025-q1.csv"), []byte(strings.Join(lines, "\n")+"\n"), 0o644))
}

func (h harness) execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := cli.BuildCLI(h.config)
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--env-file", filepath.Join(h.dir, "missing.env")}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func decodeRun(t *testing.T, out string) api.RunResponse {
	t.Helper()
	var run api.RunResponse
	require.NoError(t, json.Unmarshal([]byte(out), &run))
	return run
}

func TestRun_LoadsFileAndReportsStatus(t *testing.T) {
	h := newHarness(t)
	h.drop(t, 9)

	out, err := h.execute(t, "run")
	require.NoError(t, err)
	run := decodeRun(t, out)
	assert.Equal(t, model.StatusCompleted, run.Status)
	assert.Equal(t, float64(1), run.Parameters[job.RunIDParam])
	require.Len(t, run.Steps, 2)
	assert.Equal(t, int64(9), run.Steps[1].WriteCount)
	assert.Equal(t, int64(3), run.Steps[1].CommitCount)

	out, err = h.execute(t, "status", run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, decodeRun(t, out).Status)

	_, err = h.execute(t, "run", "--run-id", "1")
	assert.Error(t, err, "a completed instance is not run again")

	out, err = h.execute(t, "run")
	require.NoError(t, err)
	assert.Equal(t, float64(2), decodeRun(t, out).Parameters[job.RunIDParam])
}

func TestRun_EmptyBucketFails(t *testing.T) {
	h := newHarness(t)

	out, err := h.execute(t, "run")
	require.Error(t, err)
	run := decodeRun(t, out)
	assert.Equal(t, model.StatusFailed, run.Status)
	assert.Equal(t, job.LoadStepName, run.Summary.FailedStep)
}

func TestExport_WritesParquetPartition(t *testing.T) {
	h := newHarness(t)
	h.drop(t, 3)
	_, err := h.execute(t, "run")
	require.NoError(t, err)

	out, err := h.execute(t, "export", "--date", "2025-04-30")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, decodeRun(t, out).Status)

	matches, err := filepath.Glob(filepath.Join(h.base, "sales-bucket", "exports", "sales_info", "dt=2025-04-30", "*.parquet"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	_, err = h.execute(t, "export", "--date", "30/04/2025")
	assert.ErrorContains(t, err, "invalid --date")
}

func TestMigrate_VersionAndDown(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, func() error { _, err := h.execute(t, "migrate", "up"); return err }())
	out, err := h.execute(t, "migrate", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "batch_framework_migrations\t1\tdirty=false")
	assert.Contains(t, out, "batch_app_migrations\t1\tdirty=false")

	_, err = h.execute(t, "migrate", "down")
	require.NoError(t, err)
	out, err = h.execute(t, "migrate", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "batch_app_migrations\t0\tdirty=false")
}

func TestStatus_UnknownRun(t *testing.T) {
	h := newHarness(t)
	_, err := h.execute(t, "status", "does-not-exist")
	assert.Error(t, err)
}
