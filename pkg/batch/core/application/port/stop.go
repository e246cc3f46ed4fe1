package port

import (
	"context"
	"sync/atomic"
)

// StopSignal is raised by a stop request and polled by steps at chunk and step boundaries.
type StopSignal struct {
	flag atomic.Bool
}

// Raise requests a stop.
func (s *StopSignal) Raise() { s.flag.Store(true) }

// Raised reports whether a stop was requested.
func (s *StopSignal) Raised() bool { return s.flag.Load() }

type stopKey struct{}

// WithStopSignal returns a context carrying s.
func WithStopSignal(ctx context.Context, s *StopSignal) context.Context {
	return context.WithValue(ctx, stopKey{}, s)
}

// StopRequested reports whether the run executing under ctx was asked to stop.
func StopRequested(ctx context.Context) bool {
	s, ok := ctx.Value(stopKey{}).(*StopSignal)
	return ok && s.Raised()
}

// RequestStop raises the stop signal carried by ctx, if any.
func RequestStop(ctx context.Context) {
	if s, ok := ctx.Value(stopKey{}).(*StopSignal); ok {
		s.Raise()
	}
}
