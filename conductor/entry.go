package conductor

import (
	"fmt"
	"sync"
	"time"
)

// ThreadState describes where a conducted thread is in its lifecycle.
type ThreadState int

const (
	// StateUnstarted means the thread is registered but Conduct has not
	// started it yet.
	StateUnstarted ThreadState = iota
	// StateRunning means the thread's body is executing (or blocked on
	// something the conductor cannot see).
	StateRunning
	// StateBlockedOnBeat means the thread is waiting inside WaitForBeat.
	StateBlockedOnBeat
	// StateBlockedOther is a derived observation: the thread has been
	// StateRunning without a transition for at least the grace interval,
	// so the coordinator presumes it blocked on an external resource.
	StateBlockedOther
	// StateTerminated means the thread's body returned or panicked.
	StateTerminated
)

func (s ThreadState) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateRunning:
		return "running"
	case StateBlockedOnBeat:
		return "blocked-on-beat"
	case StateBlockedOther:
		return "blocked-other"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Snapshot is one thread's state as sampled by the coordinator. It appears
// in timeout diagnostics and trace output.
type Snapshot struct {
	Name       string
	State      ThreadState
	WaitingFor Beat          // beat awaited when State is StateBlockedOnBeat
	Age        time.Duration // time since the last observed transition
}

func (s Snapshot) String() string {
	if s.State == StateBlockedOnBeat {
		return fmt.Sprintf("%s=%s(%d)", s.Name, s.State, s.WaitingFor)
	}
	return fmt.Sprintf("%s=%s", s.Name, s.State)
}

// entry is the bookkeeping record for one registered thread body. The
// registry of entries is append-only before conducting starts; afterwards
// each entry's mutable fields are written only by the entry's own goroutine
// (state, failure) or read by the coordinator, under the entry's own lock.
type entry struct {
	name string
	body func(*Worker) error

	mu         sync.Mutex
	state      ThreadState
	waitingFor Beat
	changedAt  time.Time
	failure    error

	interruptOnce sync.Once
	interrupted   chan struct{}
	done          chan struct{}
}

func newEntry(name string, body func(*Worker) error) *entry {
	return &entry{
		name:        name,
		body:        body,
		state:       StateUnstarted,
		changedAt:   time.Now(),
		interrupted: make(chan struct{}),
		done:        make(chan struct{}),
	}
}

func (e *entry) setState(s ThreadState, waitingFor Beat) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = s
	e.waitingFor = waitingFor
	e.changedAt = time.Now()
}

func (e *entry) fail(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failure == nil {
		e.failure = err
	}
}

func (e *entry) recordedFailure() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.failure
}

// rearmQuiet restarts the quiet-age window of a running entry. The
// coordinator calls it after an advance that released no waiter, so the
// same quiet threads do not immediately justify another advance.
func (e *entry) rearmQuiet() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateRunning {
		e.changedAt = time.Now()
	}
}

// snapshot samples the entry, deriving StateBlockedOther for entries that
// have sat in StateRunning longer than grace.
func (e *entry) snapshot(grace time.Duration) Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := Snapshot{
		Name:       e.name,
		State:      e.state,
		WaitingFor: e.waitingFor,
		Age:        time.Since(e.changedAt),
	}
	if s.State == StateRunning && s.Age >= grace {
		s.State = StateBlockedOther
	}
	return s
}

// Thread is the handle returned by registration, usable to simulate an
// external interrupt against the code under test.
type Thread struct {
	e     *entry
	clock *Clock
}

// Name returns the registered thread name.
func (t *Thread) Name() string { return t.e.name }

// State returns the thread's last known lifecycle state.
func (t *Thread) State() ThreadState {
	t.e.mu.Lock()
	defer t.e.mu.Unlock()
	return t.e.state
}

// Interrupt delivers a one-shot interruption signal to the thread: its
// Interrupted channel closes and any WaitForBeat it is blocked in returns
// ErrInterrupted. Interrupting a thread more than once, or after it
// terminated, has no further effect.
func (t *Thread) Interrupt() {
	t.e.interruptOnce.Do(func() {
		close(t.e.interrupted)
		t.clock.wake()
	})
}

// Interrupted exposes the interruption signal so bodies blocked on external
// primitives can observe it in a select.
func (t *Thread) Interrupted() <-chan struct{} { return t.e.interrupted }

// Worker is handed to each thread body when Conduct starts it. It carries
// the body's view of the shared clock, bound to its own entry so the
// coordinator can see what the thread is waiting on.
type Worker struct {
	e *entry
	c *Conductor
}

// Name returns the name the body was registered under.
func (w *Worker) Name() string { return w.e.name }

// Beat returns the clock's current value, so assertions inside a body can
// reference what beat they are at.
func (w *Worker) Beat() Beat { return w.c.clock.CurrentBeat() }

// WaitForBeat blocks until the shared clock reaches beat n, returning
// immediately if it already has. It returns ErrInterrupted if the thread's
// handle is interrupted while waiting.
func (w *Worker) WaitForBeat(n Beat) error {
	w.e.setState(StateBlockedOnBeat, n)
	w.c.trace(Event{Kind: EventBeatWait, Thread: w.e.name, Beat: n})
	err := w.c.clock.waitForBeat(n, w.e.interrupted)
	w.e.setState(StateRunning, 0)
	return err
}

// Interrupted exposes the thread's interruption signal, for bodies that
// block on external primitives and want to honor a simulated interrupt.
func (w *Worker) Interrupted() <-chan struct{} { return w.e.interrupted }
