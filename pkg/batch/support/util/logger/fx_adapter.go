package logger

import (
	"strings"

	"go.uber.org/fx/fxevent"
)

// FxLogger routes fx lifecycle events into the leveled logger.
// Dependency-graph noise goes to DEBUG; failures always go to ERROR.
type FxLogger struct{}

// NewFxLogger returns an fxevent.Logger backed by this package.
func NewFxLogger() fxevent.Logger {
	return &FxLogger{}
}

// LogEvent implements fxevent.Logger.
func (l *FxLogger) LogEvent(event fxevent.Event) {
	switch e := event.(type) {
	case *fxevent.OnStartExecuted:
		logHook("OnStart", e.FunctionName, e.Err)
	case *fxevent.OnStopExecuted:
		logHook("OnStop", e.FunctionName, e.Err)
	case *fxevent.Provided:
		if e.Err != nil {
			Errorf("fx: provide %s failed: %v", shortFuncName(e.ConstructorName), e.Err)
			return
		}
		for _, t := range e.OutputTypeNames {
			Debugf("fx: provided %s", t)
		}
	case *fxevent.Invoked:
		if e.Err != nil {
			Errorf("fx: invoke %s failed: %v", shortFuncName(e.FunctionName), e.Err)
		}
	case *fxevent.RollingBack:
		Errorf("fx: start failed, rolling back: %v", e.StartErr)
	case *fxevent.Started:
		if e.Err != nil {
			Errorf("fx: start failed: %v", e.Err)
		} else {
			Debugf("fx: application started")
		}
	case *fxevent.Stopped:
		if e.Err != nil {
			Errorf("fx: stop failed: %v", e.Err)
		}
	}
}

func logHook(kind, fn string, err error) {
	if err != nil {
		Errorf("fx: %s hook %s failed: %v", kind, shortFuncName(fn), err)
		return
	}
	Debugf("fx: %s hook %s executed", kind, shortFuncName(fn))
}

// shortFuncName strips closure suffixes such as ".func1" from fx function names.
func shortFuncName(name string) string {
	if idx := strings.LastIndex(name, ".func"); idx != -1 {
		return name[:idx]
	}
	return name
}
