package conductor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		Log:          log.NewLogger(log.DiscardHandler()),
		PollInterval: time.Millisecond,
	}
}

// recordedLog is a goroutine-safe string accumulator shared by thread
// bodies, standing in for the state a real test would assert on.
type recordedLog struct {
	mu sync.Mutex
	b  strings.Builder
}

func (l *recordedLog) append(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.b.WriteString(s)
}

func (l *recordedLog) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.String()
}

// TestConductOrdersThreadsByBeat is the canonical ordering scenario: three
// threads gated on successive beats must always interleave the same way,
// regardless of goroutine scheduling.
func TestConductOrdersThreadsByBeat(t *testing.T) {
	for i := 0; i < 100; i++ {
		c := New(testConfig())
		logBuf := &recordedLog{}

		appendAt := func(token string, beat Beat) func(*Worker) error {
			return func(w *Worker) error {
				if err := w.WaitForBeat(beat); err != nil {
					return err
				}
				logBuf.append(token)
				return nil
			}
		}
		_, err := c.Thread("alpha", appendAt("A", 1))
		require.NoError(t, err)
		_, err = c.Thread("bravo", appendAt("B", 2))
		require.NoError(t, err)
		_, err = c.Thread("charlie", appendAt("C", 3))
		require.NoError(t, err)

		require.NoError(t, c.Conduct(context.Background()))
		require.Equal(t, "ABC", logBuf.String(), "iteration %d interleaved out of order", i)
		assert.GreaterOrEqual(t, c.Beat(), Beat(3))
	}
}

func TestConductNoThreads(t *testing.T) {
	c := New(testConfig())
	assert.NoError(t, c.Conduct(context.Background()))
}

func TestThreadAutoNaming(t *testing.T) {
	c := New(testConfig())
	body := func(w *Worker) error { return nil }

	th, err := c.Thread("", body)
	require.NoError(t, err)
	assert.Equal(t, "thread-1", th.Name())

	handles, err := c.Threads(3, "worker", body)
	require.NoError(t, err)
	require.Len(t, handles, 3)
	assert.Equal(t, "worker-1", handles[0].Name())
	assert.Equal(t, "worker-3", handles[2].Name())
}

func TestThreadRegistrationErrors(t *testing.T) {
	c := New(testConfig())
	body := func(w *Worker) error { return nil }

	_, err := c.Thread("dup", body)
	require.NoError(t, err)

	_, err = c.Thread("dup", body)
	assert.True(t, IsIllegalState(err))
	assert.Contains(t, err.Error(), `thread "dup" is already registered`)

	_, err = c.Thread("nobody", nil)
	assert.True(t, IsIllegalState(err))

	_, err = c.Threads(0, "worker", body)
	assert.True(t, IsIllegalState(err))
}

func TestThreadRegistrationAfterConduct(t *testing.T) {
	c := New(testConfig())
	require.NoError(t, c.Conduct(context.Background()))

	_, err := c.Thread("late", func(w *Worker) error { return nil })
	assert.True(t, IsIllegalState(err))
	assert.Contains(t, err.Error(), "after conducting has started")
}

func TestConductOnlyOnce(t *testing.T) {
	c := New(testConfig())
	require.NoError(t, c.Conduct(context.Background()))

	err := c.Conduct(context.Background())
	require.True(t, IsIllegalState(err))
	assert.Equal(t, "conduct can only be called once per Conductor", err.Error())
}

func TestWhenFinishedRunsLastWithFrozenClock(t *testing.T) {
	c := New(testConfig())
	logBuf := &recordedLog{}

	handles, err := c.Threads(2, "worker", func(w *Worker) error {
		logBuf.append("w")
		return nil
	})
	require.NoError(t, err)

	var sawFrozen bool
	require.NoError(t, c.WhenFinished(func() error {
		sawFrozen = c.Clock().Frozen()
		for _, h := range handles {
			if h.State() != StateTerminated {
				return fmt.Errorf("thread %s still live in finish block", h.Name())
			}
		}
		logBuf.append("!")
		return nil
	}))

	require.NoError(t, c.Conduct(context.Background()))
	assert.Equal(t, "ww!", logBuf.String())
	assert.True(t, sawFrozen, "finish block should observe a frozen clock")
	assert.False(t, c.Clock().Frozen())
}

func TestWhenFinishedOwnerOnly(t *testing.T) {
	c := New(testConfig())

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.WhenFinished(func() error { return nil })
	}()
	err := <-errCh
	require.True(t, IsIllegalState(err))
	assert.Equal(t, "whenFinished can only be called by thread that created Conductor.", err.Error())
}

func TestWhenFinishedOnlyOnce(t *testing.T) {
	c := New(testConfig())
	require.NoError(t, c.WhenFinished(func() error { return nil }))

	err := c.WhenFinished(func() error { return nil })
	require.True(t, IsIllegalState(err))
	assert.Contains(t, err.Error(), "once per Conductor")
}

func TestWhenFinishedErrorSurfaces(t *testing.T) {
	c := New(testConfig())
	_, err := c.Thread("ok", func(w *Worker) error { return nil })
	require.NoError(t, err)

	finishErr := errors.New("final assertion failed")
	require.NoError(t, c.WhenFinished(func() error { return finishErr }))

	err = c.Conduct(context.Background())
	assert.ErrorIs(t, err, finishErr)
}

// TestWithClockFrozenHoldsBeat verifies that a timed operation racing the
// coordinator observes its real timeout while the clock is frozen: the
// consumer gated on beat 1 cannot be released mid-block.
func TestWithClockFrozenHoldsBeat(t *testing.T) {
	cfg := testConfig()
	cfg.GraceInterval = 5 * time.Millisecond
	c := New(cfg)

	buf := make(chan int, 2)
	_, err := c.Thread("producer", func(w *Worker) error {
		buf <- 1
		buf <- 2
		err := c.WithClockFrozen(func() error {
			select {
			case buf <- 3:
				return errors.New("offer to a full buffer should have timed out")
			case <-time.After(25 * time.Millisecond):
				return nil
			}
		})
		if err != nil {
			return err
		}
		buf <- 3 // consumer is released once the clock thaws
		return nil
	})
	require.NoError(t, err)

	_, err = c.Thread("consumer", func(w *Worker) error {
		if err := w.WaitForBeat(1); err != nil {
			return err
		}
		for i := 0; i < 3; i++ {
			<-buf
		}
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, c.Conduct(context.Background()))
	assert.GreaterOrEqual(t, c.Beat(), Beat(1))
}

// TestWithClockFrozenBeatUnchanged verifies the beat is identical before
// and after a frozen block, however long the block runs, even when the
// coordinator would otherwise consider it safe to advance.
func TestWithClockFrozenBeatUnchanged(t *testing.T) {
	cfg := testConfig()
	cfg.GraceInterval = 5 * time.Millisecond
	c := New(cfg)

	_, err := c.Thread("freezer", func(w *Worker) error {
		return c.WithClockFrozen(func() error {
			before := w.Beat()
			time.Sleep(30 * time.Millisecond)
			if after := w.Beat(); after != before {
				return fmt.Errorf("clock moved inside frozen block: %d -> %d", before, after)
			}
			return nil
		})
	})
	require.NoError(t, err)

	_, err = c.Thread("waiter", func(w *Worker) error {
		return w.WaitForBeat(1)
	})
	require.NoError(t, err)

	require.NoError(t, c.Conduct(context.Background()))
}

// TestFreezeAfterQuietPeriodHoldsBeat freezes the clock from a thread the
// coordinator already presumes blocked, so an advance is pending at the
// very instant the freeze lands. The beat observed inside the frozen
// block must never move.
func TestFreezeAfterQuietPeriodHoldsBeat(t *testing.T) {
	for i := 0; i < 20; i++ {
		cfg := testConfig()
		cfg.GraceInterval = 2 * time.Millisecond
		c := New(cfg)

		_, err := c.Thread("freezer", func(w *Worker) error {
			// Sit quiet past the grace interval first, priming the
			// coordinator to advance on its next poll.
			time.Sleep(10 * time.Millisecond)
			return c.WithClockFrozen(func() error {
				before := w.Beat()
				time.Sleep(10 * time.Millisecond)
				if after := w.Beat(); after != before {
					return fmt.Errorf("beat advanced inside frozen block: %d -> %d", before, after)
				}
				return nil
			})
		})
		require.NoError(t, err)
		require.NoError(t, c.Conduct(context.Background()), "iteration %d", i)
	}
}

// TestInterruptDeliversExactlyOnce interrupts a thread parked in
// WaitForBeat and checks the signal arrives exactly once even when
// Interrupt is called repeatedly.
func TestInterruptDeliversExactlyOnce(t *testing.T) {
	c := New(testConfig())

	var signals atomic.Int64
	sleeper, err := c.Thread("sleeper", func(w *Worker) error {
		err := w.WaitForBeat(100)
		if !errors.Is(err, ErrInterrupted) {
			return fmt.Errorf("expected interruption, got %v", err)
		}
		signals.Add(1)
		// A second wait after interruption fails immediately.
		if err := w.WaitForBeat(200); !errors.Is(err, ErrInterrupted) {
			return fmt.Errorf("interrupted thread should stay interrupted, got %v", err)
		}
		return nil
	})
	require.NoError(t, err)

	_, err = c.Thread("interrupter", func(w *Worker) error {
		if err := w.WaitForBeat(1); err != nil {
			return err
		}
		sleeper.Interrupt()
		sleeper.Interrupt() // no-op
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, c.Conduct(context.Background()))
	assert.Equal(t, int64(1), signals.Load())

	select {
	case <-sleeper.Interrupted():
	default:
		t.Fatal("interrupted channel should be closed")
	}
}

func TestInterruptObservableInSelect(t *testing.T) {
	c := New(testConfig())

	blocked, err := c.Thread("blocked", func(w *Worker) error {
		// Stands in for a body parked on an external primitive.
		select {
		case <-w.Interrupted():
			return nil
		case <-time.After(5 * time.Second):
			return errors.New("interrupt never arrived")
		}
	})
	require.NoError(t, err)

	_, err = c.Thread("rescuer", func(w *Worker) error {
		blocked.Interrupt()
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, c.Conduct(context.Background()))
}

func TestConductSurfacesThreadFailure(t *testing.T) {
	c := New(testConfig())
	boom := errors.New("assertion blew up")

	_, err := c.Thread("failing", func(w *Worker) error {
		if err := w.WaitForBeat(2); err != nil {
			return err
		}
		return boom
	})
	require.NoError(t, err)

	clean, err := c.Threads(2, "clean", func(w *Worker) error {
		return w.WaitForBeat(1)
	})
	require.NoError(t, err)

	err = c.Conduct(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom, "the original error identity must survive wrapping")
	assert.Contains(t, err.Error(), `thread "failing"`)
	for _, h := range clean {
		assert.Equal(t, StateTerminated, h.State(), "no thread is left running after Conduct")
	}
}

// TestFirstRegisteredFailureWins makes the second-registered thread fail
// strictly after the first and checks only the first failure is reported.
func TestFirstRegisteredFailureWins(t *testing.T) {
	errA := errors.New("failure a")
	errB := errors.New("failure b")

	c := New(testConfig())
	firstDown := make(chan struct{})

	_, err := c.Thread("first", func(w *Worker) error {
		defer close(firstDown)
		return errA
	})
	require.NoError(t, err)

	_, err = c.Thread("second", func(w *Worker) error {
		<-firstDown
		return errB
	})
	require.NoError(t, err)

	err = c.Conduct(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errA)
	assert.NotErrorIs(t, err, errB)
}

func TestConductCapturesPanic(t *testing.T) {
	c := New(testConfig())
	panicking, err := c.Thread("panicking", func(w *Worker) error {
		panic("boom")
	})
	require.NoError(t, err)

	err = c.Conduct(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic: boom")
	assert.Equal(t, StateTerminated, panicking.State())
}

func TestConductEmitsTrace(t *testing.T) {
	var mu sync.Mutex
	var events []Event
	cfg := testConfig()
	cfg.Trace = func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	}
	c := New(cfg)

	_, err := c.Thread("solo", func(w *Worker) error {
		return w.WaitForBeat(1)
	})
	require.NoError(t, err)
	require.NoError(t, c.Conduct(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, events)
	assert.Equal(t, EventConductStarted, events[0].Kind)
	assert.Equal(t, EventConductFinished, events[len(events)-1].Kind)

	kinds := make(map[EventKind]int)
	for _, ev := range events {
		kinds[ev.Kind]++
	}
	assert.Equal(t, 1, kinds[EventThreadStarted])
	assert.Equal(t, 1, kinds[EventThreadTerminated])
	assert.GreaterOrEqual(t, kinds[EventBeatAdvanced], 1)
}

func TestWorkerReportsNameAndBeat(t *testing.T) {
	c := New(testConfig())
	var name string
	var beatAfterWait Beat

	_, err := c.Thread("observer", func(w *Worker) error {
		name = w.Name()
		if err := w.WaitForBeat(2); err != nil {
			return err
		}
		beatAfterWait = w.Beat()
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, c.Conduct(context.Background()))
	assert.Equal(t, "observer", name)
	assert.GreaterOrEqual(t, beatAfterWait, Beat(2))
}

func TestThreadStateStrings(t *testing.T) {
	assert.Equal(t, "unstarted", StateUnstarted.String())
	assert.Equal(t, "blocked-on-beat", StateBlockedOnBeat.String())
	assert.Equal(t, "terminated", StateTerminated.String())

	s := Snapshot{Name: "stuck", State: StateBlockedOnBeat, WaitingFor: 3}
	assert.Equal(t, "stuck=blocked-on-beat(3)", s.String())
	s = Snapshot{Name: "busy", State: StateBlockedOther}
	assert.Equal(t, "busy=blocked-other", s.String())
}
