package thrum

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/threadbeat/thrum/metrics"
)

// TestScheduler drives scenario runs, once or on a fixed cadence.
type TestScheduler interface {
	Start(ctx context.Context) error
	Stop() error
	RegisterCallback(func() error)
	WaitForShutdown(ctx context.Context) error
	Stopped() bool
	LastPulse() RunPulse
}

// RunPulse is the scheduler's record of its most recent firing: when it
// fired, how the run went, and how many runs have fired in total. A zero
// pulse means no run has fired yet.
type RunPulse struct {
	At   time.Time
	Err  error
	Runs uint64
}

// DefaultTestScheduler fires the registered callback immediately on
// Start and then, unless configured for a single run, on every interval
// tick until stopped. Every firing is stamped into a pulse that the
// health endpoint and the scheduler metrics read between ticks.
type DefaultTestScheduler struct {
	interval time.Duration
	runOnce  bool
	logger   log.Logger
	callback func() error

	mu    sync.Mutex
	pulse RunPulse

	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewDefaultTestScheduler creates a new DefaultTestScheduler.
func NewDefaultTestScheduler(interval time.Duration, runOnce bool, logger log.Logger) *DefaultTestScheduler {
	return &DefaultTestScheduler{
		interval: interval,
		runOnce:  runOnce,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// RegisterCallback registers the callback to be called when scenarios should run.
func (s *DefaultTestScheduler) RegisterCallback(callback func() error) {
	s.callback = callback
}

// Start starts the scheduler. In run-once mode the single run happens on
// the calling goroutine and its error is returned directly; in
// continuous mode only the first run's error is returned and later runs
// surface through the pulse and metrics.
func (s *DefaultTestScheduler) Start(ctx context.Context) error {
	if s.callback == nil {
		return errors.New("callback must be registered before starting scheduler")
	}

	s.done = make(chan struct{})
	s.running.Store(true)

	if s.runOnce {
		s.logger.Info("Starting scheduler in run-once mode")
		return s.fire()
	}

	s.logger.Info("Starting scheduler in continuous mode", "interval", s.interval)

	// The first run fires before the first tick.
	if err := s.fire(); err != nil {
		return err
	}

	s.wg.Add(1)
	go s.loop(ctx)
	return nil
}

// fire runs the callback once and stamps the pulse, so the outcome is
// observable even when the periodic loop swallows the error.
func (s *DefaultTestScheduler) fire() error {
	start := time.Now()
	err := s.callback()

	s.mu.Lock()
	s.pulse = RunPulse{At: start, Err: err, Runs: s.pulse.Runs + 1}
	s.mu.Unlock()

	metrics.RecordSchedulerRun(start, err)
	return err
}

// loop fires the callback on every tick until the scheduler is stopped
// or its context ends. A failed run logs and keeps the cadence.
func (s *DefaultTestScheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Debug("Scheduler loop running", "interval", s.interval)
	for {
		select {
		case <-ticker.C:
			if !s.running.Load() {
				s.logger.Debug("Scheduler stopped between ticks, leaving loop")
				return
			}
			s.logger.Info("Running scheduled scenarios")
			if err := s.fire(); err != nil {
				s.logger.Error("Scheduled run failed", "error", err)
			}

		case <-s.done:
			s.logger.Debug("Stop requested, leaving scheduler loop")
			return

		case <-ctx.Done():
			s.logger.Debug("Context ended, leaving scheduler loop")
			s.running.Store(false)
			return
		}
	}
}

// LastPulse returns the most recent run stamp.
func (s *DefaultTestScheduler) LastPulse() RunPulse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pulse
}

// Stop stops the scheduler. Stopping twice, or before any start, is a
// no-op.
func (s *DefaultTestScheduler) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		s.logger.Debug("Scheduler already stopped, nothing to do")
		return nil
	}
	close(s.done)
	return nil
}

// Stopped returns true if the scheduler is stopped.
func (s *DefaultTestScheduler) Stopped() bool {
	return !s.running.Load()
}

// WaitForShutdown blocks until the scheduler loop has exited or ctx
// expires.
func (s *DefaultTestScheduler) WaitForShutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.logger.Warn("Timed out waiting for scheduler loop to exit", "error", ctx.Err())
		return ctx.Err()
	}
}
