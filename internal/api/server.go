package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"github.com/tigerroll/salesync/pkg/batch/core/application/usecase"
	config "github.com/tigerroll/salesync/pkg/batch/core/config"
	inframetrics "github.com/tigerroll/salesync/pkg/batch/infrastructure/metrics"
	"github.com/tigerroll/salesync/pkg/batch/support/util/logger"
)

// NewRouter registers the job routes, /healthz, and /metrics when the metric
// backend exposes a handler.
func NewRouter(handler *JobHandler, exposition *inframetrics.Exposition) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if exposition != nil && exposition.Handler != nil {
		r.GET("/metrics", gin.WrapH(exposition.Handler))
	}

	jobs := r.Group("/jobs")
	jobs.POST("", handler.Submit)
	jobs.GET("/:id", handler.Get)
	jobs.POST("/:id/stop", handler.Stop)
	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debugf("API: %s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// ServerParams are the dependencies of NewServer.
type ServerParams struct {
	fx.In
	Lifecycle  fx.Lifecycle
	Config     *config.Config
	Service    JobService
	Exposition *inframetrics.Exposition
}

// NewServer binds server.address when the application starts and shuts the
// listener down gracefully when it stops.
func NewServer(p ServerParams) *http.Server {
	handler := NewJobHandler(p.Service, p.Config.Salesync.Batch.JobName)
	srv := &http.Server{
		Addr:              p.Config.Salesync.Server.Address,
		Handler:           NewRouter(handler, p.Exposition),
		ReadHeaderTimeout: 10 * time.Second,
	}
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			logger.Infof("API listening on %s.", ln.Addr())
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Errorf("API server stopped: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
	return srv
}

// Module provides the HTTP server. Requesting *http.Server starts it.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(func(c *usecase.JobController) *usecase.JobController { return c }, fx.As(new(JobService))),
		NewServer,
	),
)
