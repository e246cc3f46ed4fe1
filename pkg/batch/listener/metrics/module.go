package metrics

import "go.uber.org/fx"

// Module wraps the MetricRecorder provided by the infrastructure layer with the asynchronous recorder.
var Module = fx.Options(
	fx.Decorate(NewAsyncMetricRecorderWrapper),
)
