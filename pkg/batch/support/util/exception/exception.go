// Package exception defines the error types shared by the batch engine and the sales job.
// Every step-fatal failure is a *BatchError carrying the module that raised it and,
// where one applies, an error Kind and a source line position.
package exception

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a step-fatal failure so operators can tell failure modes apart.
type Kind string

const (
	// KindUnknown is used for errors that do not belong to the sales ingest taxonomy.
	KindUnknown Kind = ""
	// KindFetch is a transport or authentication failure talking to object storage.
	KindFetch Kind = "FetchError"
	// KindDecode is a malformed input line.
	KindDecode Kind = "DecodeError"
	// KindTransform is a mismatch between the source row and target record schemas.
	KindTransform Kind = "TransformError"
	// KindWrite is a rejected chunk commit.
	KindWrite Kind = "WriteError"
	// KindMissingInput means the load step started without an input file path.
	KindMissingInput Kind = "MissingInputError"
)

// BatchError is the error type raised by batch components.
type BatchError struct {
	// Module indicates where the error occurred (e.g. "reader", "writer", "fetch").
	Module string
	// Kind is the failure class, empty when not classified.
	Kind Kind
	// Message is a concise description of the error.
	Message string
	// Position is the 1-based line number in the input file, or 0 when not applicable.
	Position int64
	// OriginalErr is the wrapped cause, may be nil.
	OriginalErr error
}

// NewBatchError creates an unclassified BatchError.
func NewBatchError(module, message string, originalErr error) *BatchError {
	return &BatchError{Module: module, Message: message, OriginalErr: originalErr}
}

// NewBatchErrorf creates an unclassified BatchError with a formatted message.
// A trailing error argument is used as the wrapped cause instead of a format operand.
func NewBatchErrorf(module, format string, a ...interface{}) *BatchError {
	var originalErr error
	if n := len(a); n > 0 {
		if err, ok := a[n-1].(error); ok && strings.Count(format, "%")-2*strings.Count(format, "%%") < n {
			originalErr = err
			a = a[:n-1]
		}
	}
	return NewBatchError(module, fmt.Sprintf(format, a...), originalErr)
}

// NewFetchError wraps an object-storage failure.
func NewFetchError(module, message string, err error) *BatchError {
	return &BatchError{Module: module, Kind: KindFetch, Message: message, OriginalErr: err}
}

// NewDecodeError reports a malformed line at the given 1-based file line.
func NewDecodeError(module string, line int64, message string, err error) *BatchError {
	return &BatchError{Module: module, Kind: KindDecode, Message: message, Position: line, OriginalErr: err}
}

// NewTransformError reports a schema mismatch found by the startup check.
func NewTransformError(module, message string) *BatchError {
	return &BatchError{Module: module, Kind: KindTransform, Message: message}
}

// NewWriteError wraps a failed chunk commit.
func NewWriteError(module, message string, err error) *BatchError {
	return &BatchError{Module: module, Kind: KindWrite, Message: message, OriginalErr: err}
}

// NewMissingInputError reports that no input file path was available to the load step.
func NewMissingInputError(module, message string) *BatchError {
	return &BatchError{Module: module, Kind: KindMissingInput, Message: message}
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(e.Module)
	b.WriteString("] ")
	if e.Kind != KindUnknown {
		b.WriteString(string(e.Kind))
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Position > 0 {
		fmt.Fprintf(&b, " (line %d)", e.Position)
	}
	if e.OriginalErr != nil {
		b.WriteString(": ")
		b.WriteString(e.OriginalErr.Error())
	}
	return b.String()
}

// Unwrap returns the original error for errors.Is and errors.As.
func (e *BatchError) Unwrap() error {
	return e.OriginalErr
}

// KindOf returns the first non-empty Kind found in the error chain.
func KindOf(err error) Kind {
	for err != nil {
		var be *BatchError
		if !errors.As(err, &be) {
			return KindUnknown
		}
		if be.Kind != KindUnknown {
			return be.Kind
		}
		err = be.OriginalErr
	}
	return KindUnknown
}

// IsKind reports whether err carries the given Kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	return kind != KindUnknown && KindOf(err) == kind
}

// PositionOf returns the input line position recorded in the error chain, if any.
func PositionOf(err error) (int64, bool) {
	for err != nil {
		var be *BatchError
		if !errors.As(err, &be) {
			return 0, false
		}
		if be.Position > 0 {
			return be.Position, true
		}
		err = be.OriginalErr
	}
	return 0, false
}

// ErrOptimisticLockingFailure is returned when a versioned update finds a stale row.
var ErrOptimisticLockingFailure = errors.New("optimistic locking failure")

// NewOptimisticLockingFailure wraps ErrOptimisticLockingFailure for the given module.
func NewOptimisticLockingFailure(module, message string) *BatchError {
	return NewBatchError(module, message, ErrOptimisticLockingFailure)
}

// IsOptimisticLockingFailure determines if an error indicates an optimistic locking failure.
func IsOptimisticLockingFailure(err error) bool {
	return errors.Is(err, ErrOptimisticLockingFailure)
}

// ExtractErrorMessage returns the Message of a BatchError, or err.Error() otherwise.
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var be *BatchError
	if errors.As(err, &be) {
		return be.Message
	}
	return err.Error()
}
