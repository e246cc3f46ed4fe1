// Package listener aggregates the job, step and chunk listeners shipped with the engine.
package listener

import (
	"go.uber.org/fx"

	"github.com/tigerroll/salesync/pkg/batch/listener/logging"
	"github.com/tigerroll/salesync/pkg/batch/listener/metrics"
	"github.com/tigerroll/salesync/pkg/batch/listener/notification"
	"github.com/tigerroll/salesync/pkg/batch/listener/tracing"
)

// Module aggregates all listener modules of the batch framework.
// Listeners are collected in the "job_listeners", "step_listeners" and "chunk_listeners" value groups.
var Module = fx.Options(
	logging.Module,
	metrics.Module,
	tracing.Module,
	notification.Module,
)
