package tracing

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/salesync/pkg/batch/core/application/port"
)

// Module contributes the tracing chunk listener. The Tracer itself comes from infrastructure/metrics.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(NewTracingChunkListener, fx.As(new(port.ChunkListener)), fx.ResultTags(`group:"chunk_listeners"`)),
	),
)
