package conductor

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInterrupted is returned from WaitForBeat when the waiting thread's
// handle is interrupted.
var ErrInterrupted = errors.New("thread interrupted")

// IllegalStateError reports misuse of a Conductor: registering a thread
// after conducting started, conducting twice, or misusing WhenFinished.
// Misuse surfaces synchronously at the call site, never deferred to
// Conduct.
type IllegalStateError struct {
	Msg string
}

func (e *IllegalStateError) Error() string {
	return e.Msg
}

// NewIllegalStateError creates a new IllegalStateError.
func NewIllegalStateError(msg string) *IllegalStateError {
	return &IllegalStateError{Msg: msg}
}

// IsIllegalState checks if the error is or wraps an IllegalStateError.
func IsIllegalState(err error) bool {
	var stateErr *IllegalStateError
	return err != nil && errors.As(err, &stateErr)
}

// TimedOutError reports a suspected deadlock: the coordinator exhausted
// its time budget without every thread terminating. It enumerates each
// live thread's name and last observed state so the stuck party is
// identifiable from the error alone.
type TimedOutError struct {
	Timeout time.Duration
	Threads []Snapshot
}

func (e *TimedOutError) Error() string {
	states := make([]string, 0, len(e.Threads))
	for _, s := range e.Threads {
		states = append(states, s.String())
	}
	return fmt.Sprintf("conduct timed out after %s, suspected deadlock; live threads: %s",
		e.Timeout, strings.Join(states, ", "))
}

// IsTimedOut checks if the error is or wraps a TimedOutError.
func IsTimedOut(err error) bool {
	var timeoutErr *TimedOutError
	return err != nil && errors.As(err, &timeoutErr)
}
