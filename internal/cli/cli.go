// Package cli implements the salesync command line.
//
//	salesync run [--bucket B] [--run-id N]     run the sync job to completion
//	salesync export [--date D] [--run-id N]    export sales_info to Parquet
//	salesync serve                             serve the job API
//	salesync status RUN_ID                     print a job run
//	salesync stop RUN_ID | abandon RUN_ID      stop or abandon a job run
//	salesync migrate up|down|version           manage the database schema
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/tigerroll/salesync/internal/api"
	"github.com/tigerroll/salesync/internal/app"
	"github.com/tigerroll/salesync/internal/job"
	"github.com/tigerroll/salesync/internal/sales/export"
	"github.com/tigerroll/salesync/internal/sales/fetch"
	"github.com/tigerroll/salesync/pkg/batch/core/application/usecase"
	config "github.com/tigerroll/salesync/pkg/batch/core/config"
	model "github.com/tigerroll/salesync/pkg/batch/core/domain/model"
	"github.com/tigerroll/salesync/pkg/batch/support/util/logger"
)

const stopTimeout = 30 * time.Second

type cli struct {
	embeddedConfig config.EmbeddedConfig
	envFilePath    string
}

// BuildCLI returns the root command. embeddedConfig is the YAML compiled into the binary.
func BuildCLI(embeddedConfig config.EmbeddedConfig) *cobra.Command {
	c := &cli{embeddedConfig: embeddedConfig}
	root := &cobra.Command{
		Use:           "salesync",
		Short:         "Load sales CSV files from object storage into the sales database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	defaultEnvFile := os.Getenv("ENV_FILE_PATH")
	if defaultEnvFile == "" {
		defaultEnvFile = ".env"
	}
	root.PersistentFlags().StringVar(&c.envFilePath, "env-file", defaultEnvFile, ".env file merged into the configuration")

	root.AddCommand(
		c.buildRunCommand(),
		c.buildExportCommand(),
		c.buildServeCommand(),
		c.buildStatusCommand(),
		c.buildStopCommand(),
		c.buildAbandonCommand(),
		c.buildMigrateCommand(),
	)
	return root
}

// start builds and starts the application, filling targets from the graph.
// The returned function stops it.
func (c *cli) start(ctx context.Context, opts ...fx.Option) (func() error, error) {
	fxApp := app.New(c.embeddedConfig, c.envFilePath, opts...)
	if err := fxApp.Err(); err != nil {
		return nil, err
	}
	if err := fxApp.Start(ctx); err != nil {
		return nil, err
	}
	return func() error {
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		return fxApp.Stop(stopCtx)
	}, nil
}

func (c *cli) buildRunCommand() *cobra.Command {
	var (
		bucket string
		runID  int64
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the sales sync job to completion",
		Long: "Downloads the newest matching CSV file and loads it in chunks.\n" +
			"Passing the --run-id of a FAILED or STOPPED run restarts it from its last committed chunk.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			params := model.NewJobParameters()
			if bucket != "" {
				params.Put(fetch.BucketParam, bucket)
			}
			return c.runJob(cmd, "", params, runID)
		},
	}
	cmd.Flags().StringVar(&bucket, "bucket", "", "bucket to fetch from (default storage.bucket)")
	cmd.Flags().Int64Var(&runID, "run-id", 0, "job instance to run or restart (default next)")
	return cmd
}

func (c *cli) buildExportCommand() *cobra.Command {
	var (
		date  string
		runID int64
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export sales_info to a Parquet object",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			params := model.NewJobParameters()
			if date != "" {
				if _, err := time.Parse(export.PartitionLayout, date); err != nil {
					return fmt.Errorf("invalid --date %q: %w", date, err)
				}
				params.Put(export.DateParam, date)
			}
			return c.runJob(cmd, job.ExportSalesJobName, params, runID)
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "partition date YYYY-MM-DD (default today, UTC)")
	cmd.Flags().Int64Var(&runID, "run-id", 0, "job instance to run or restart (default next)")
	return cmd
}

// runJob starts jobName (the configured sync job when empty), stops it at the
// next chunk boundary when the command is interrupted and prints the final run.
// A run that does not complete is an error.
func (c *cli) runJob(cmd *cobra.Command, jobName string, params model.JobParameters, runID int64) error {
	ctx := cmd.Context()
	var (
		controller *usecase.JobController
		cfg        *config.Config
	)
	stop, err := c.start(ctx, app.AutoMigrate, fx.Populate(&controller, &cfg))
	if err != nil {
		return err
	}
	defer func() {
		if err := stop(); err != nil {
			logger.Errorf("Failed to stop the application: %v", err)
		}
	}()

	if jobName == "" {
		jobName = cfg.Salesync.Batch.JobName
	}
	if runID > 0 {
		params.Put(job.RunIDParam, runID)
	} else if params, err = controller.NextParameters(ctx, jobName, params); err != nil {
		return err
	}

	run, err := controller.Start(ctx, jobName, params)
	if err != nil {
		return err
	}
	logger.Infof("Job '%s' started. Run ID: %s, parameters: %s", jobName, run.ID, params)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			logger.Warnf("Interrupted; stopping job run %s after the current chunk.", run.ID)
			if err := controller.Stop(context.Background(), run.ID); err != nil {
				logger.Errorf("Failed to stop job run %s: %v", run.ID, err)
			}
		case <-done:
		}
	}()

	final, err := controller.Wait(context.Background(), run.ID)
	if err != nil {
		return err
	}
	if err := printRun(cmd.OutOrStdout(), final); err != nil {
		return err
	}
	if final.Status != model.StatusCompleted {
		s := final.Summary()
		return fmt.Errorf("job run %s ended %s in step '%s' (%s) after %d committed rows",
			final.ID, final.Status, s.FailedStep, s.ErrorKind, s.CommittedRows)
	}
	return nil
}

func (c *cli) buildServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the job submission API until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var srv *http.Server
			stop, err := c.start(ctx, app.AutoMigrate, api.Module, fx.Populate(&srv))
			if err != nil {
				return err
			}
			<-ctx.Done()
			logger.Infof("Shutting down; active runs stop at their next chunk boundary.")
			return stop()
		},
	}
}

func (c *cli) buildStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status RUN_ID",
		Short: "Print a job run with its steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withController(cmd, func(ctx context.Context, controller *usecase.JobController) error {
				run, err := controller.Status(ctx, args[0])
				if err != nil {
					return err
				}
				return printRun(cmd.OutOrStdout(), run)
			})
		},
	}
}

func (c *cli) buildStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stop RUN_ID",
		Short: "Ask a run to stop at its next chunk boundary, wherever it executes",
		Long: "Records STOPPING for the run; the process executing it halts at its next chunk boundary.\n" +
			"A run without repository activity for infrastructure.stale_run_seconds is marked STOPPED\n" +
			"directly, so a run left behind by a crashed process can be restarted.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withController(cmd, func(ctx context.Context, controller *usecase.JobController) error {
				return controller.Stop(ctx, args[0])
			})
		},
	}
}

func (c *cli) buildAbandonCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "abandon RUN_ID",
		Short: "Abandon a FAILED or STOPPED run; its instance restarts from scratch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withController(cmd, func(ctx context.Context, controller *usecase.JobController) error {
				return controller.Abandon(ctx, args[0])
			})
		},
	}
}

func (c *cli) withController(cmd *cobra.Command, fn func(context.Context, *usecase.JobController) error) error {
	ctx := cmd.Context()
	var controller *usecase.JobController
	stop, err := c.start(ctx, fx.Populate(&controller))
	if err != nil {
		return err
	}
	if err := fn(ctx, controller); err != nil {
		_ = stop()
		return err
	}
	return stop()
}

func (c *cli) buildMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the job repository and sales schemas",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.withMigrations(cmd, (*app.Migrations).Up)
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back every migration, dropping the tables",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.withMigrations(cmd, (*app.Migrations).Down)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the applied schema versions",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.withMigrations(cmd, func(m *app.Migrations, ctx context.Context) error {
					versions, err := m.Versions(ctx)
					if err != nil {
						return err
					}
					for _, v := range versions {
						fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d\tdirty=%t\n", v.Connection, v.Table, v.Version, v.Dirty)
					}
					return nil
				})
			},
		},
	)
	return cmd
}

func (c *cli) withMigrations(cmd *cobra.Command, fn func(*app.Migrations, context.Context) error) error {
	var migrations *app.Migrations
	stop, err := c.start(cmd.Context(), fx.Populate(&migrations))
	if err != nil {
		return err
	}
	if err := fn(migrations, cmd.Context()); err != nil {
		_ = stop()
		return err
	}
	return stop()
}

func printRun(w io.Writer, run *model.JobRun) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(api.NewRunResponse(run))
}
