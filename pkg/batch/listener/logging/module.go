package logging

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/salesync/pkg/batch/core/application/port"
)

// Module contributes the logging listeners to the engine's listener groups.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(NewLoggingJobListener, fx.As(new(port.JobRunListener)), fx.ResultTags(`group:"job_listeners"`)),
		fx.Annotate(NewLoggingStepListener, fx.As(new(port.StepRunListener)), fx.ResultTags(`group:"step_listeners"`)),
		fx.Annotate(NewLoggingChunkListener, fx.As(new(port.ChunkListener)), fx.ResultTags(`group:"chunk_listeners"`)),
	),
)
