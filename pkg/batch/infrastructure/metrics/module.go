package metrics

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.uber.org/fx"

	config "github.com/tigerroll/salesync/pkg/batch/core/config"
	metrics "github.com/tigerroll/salesync/pkg/batch/core/metrics"
	logger "github.com/tigerroll/salesync/pkg/batch/support/util/logger"
)

// Backend names accepted in salesync.telemetry.metrics.backend.
const (
	BackendPrometheus = "prometheus"
	BackendOTel       = "otel"
	BackendNone       = "none"
)

// Exposition is the scrape endpoint of a pull-based backend. Handler is nil for push backends.
type Exposition struct {
	Handler http.Handler
}

// NewMetricBackend selects the MetricRecorder named by the configuration.
func NewMetricBackend(lc fx.Lifecycle, cfg *config.Config) (metrics.MetricRecorder, *Exposition, error) {
	telemetry := cfg.Salesync.Telemetry
	switch telemetry.Metrics.Backend {
	case BackendPrometheus, "":
		r := NewPrometheusRecorder()
		logger.Infof("Metrics: using Prometheus backend.")
		return r, &Exposition{Handler: r.Handler()}, nil
	case BackendOTel:
		mp, err := NewMeterProvider(context.Background(), telemetry.ServiceName, telemetry.Metrics)
		if err != nil {
			return nil, nil, err
		}
		otel.SetMeterProvider(mp)
		lc.Append(fx.Hook{OnStop: mp.Shutdown})
		r, err := NewOTelRecorder(mp.Meter(instrumentationName))
		if err != nil {
			return nil, nil, err
		}
		logger.Infof("Metrics: using OpenTelemetry backend (%s).", telemetry.Metrics.Exporter)
		return r, &Exposition{}, nil
	case BackendNone:
		return metrics.NewNoOpMetricRecorder(), &Exposition{}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported metrics backend: %s", telemetry.Metrics.Backend)
	}
}

// NewTracer returns an OpenTelemetry tracer when tracing is enabled and a no-op tracer otherwise.
func NewTracer(lc fx.Lifecycle, cfg *config.Config) (metrics.Tracer, error) {
	telemetry := cfg.Salesync.Telemetry
	if !telemetry.Tracing.Enabled {
		return metrics.NewNoOpTracer(), nil
	}
	tp, err := NewTracerProvider(context.Background(), telemetry.ServiceName, telemetry.Tracing)
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(tp)
	lc.Append(fx.Hook{OnStop: tp.Shutdown})
	logger.Infof("Tracing: exporting spans via %s.", telemetry.Tracing.Exporter)
	return NewOpenTelemetryTracer(tp), nil
}

// Module provides the MetricRecorder, its Exposition and the Tracer.
var Module = fx.Options(
	fx.Provide(NewMetricBackend),
	fx.Provide(NewTracer),
)
