package thrum

import (
	"errors"
	"fmt"

	"github.com/threadbeat/thrum/runner"
)

// RuntimeError is an operational failure of the harness itself rather
// than of any scenario: bad configuration, an unreadable scenario file,
// runner setup. It maps to exit code 2 so CI can tell a broken harness
// from a failing suite.
type RuntimeError struct {
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// NewRuntimeError wraps an already-built error.
func NewRuntimeError(err error) *RuntimeError {
	return &RuntimeError{Err: err}
}

// RuntimeErrorf builds a RuntimeError in one step; %w wraps as with
// fmt.Errorf.
func RuntimeErrorf(format string, a ...any) *RuntimeError {
	return &RuntimeError{Err: fmt.Errorf(format, a...)}
}

// IsRuntimeError checks if the error is or wraps a RuntimeError
func IsRuntimeError(err error) bool {
	var runtimeErr *RuntimeError
	return err != nil && errors.As(err, &runtimeErr)
}

// TestFailureError reports a completed run whose scenarios did not all
// pass. It carries the run's shape so callers can surface counts
// without re-reading the result. Maps to exit code 1.
type TestFailureError struct {
	RunID   string
	Failed  int
	Total   int
	Message string
}

func (e *TestFailureError) Error() string {
	if e.Failed > 0 {
		return fmt.Sprintf("scenario failure: %d of %d scenarios failed in run %s", e.Failed, e.Total, e.RunID)
	}
	return fmt.Sprintf("scenario failure: %s", e.Message)
}

// NewTestFailureError builds the error from a finished run result.
func NewTestFailureError(result *runner.RunnerResult) *TestFailureError {
	return &TestFailureError{
		RunID:   result.RunID,
		Failed:  result.Stats.Failed,
		Total:   result.Stats.Total,
		Message: summarize(result),
	}
}

// IsTestFailureError checks if the error is or wraps a TestFailureError
func IsTestFailureError(err error) bool {
	var testErr *TestFailureError
	return err != nil && errors.As(err, &testErr)
}
