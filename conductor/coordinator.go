package conductor

import (
	"context"
	"fmt"
	"time"
)

const (
	// drainBudget bounds how long the coordinator waits for live threads
	// to terminate on their own once a failure has been observed, before
	// interrupting them.
	drainBudget = 250 * time.Millisecond

	// joinBudget bounds the post-interrupt wait for each thread.
	joinBudget = time.Second
)

// Conduct starts every registered thread body and runs the coordinator
// loop on the calling goroutine until all threads terminate, a failure is
// observed, the time budget is exhausted, or ctx is cancelled. It may be
// called at most once per Conductor.
//
// The result is the first-registered thread's failure (wrapped with the
// thread name as context, so the original error identity is preserved
// under errors.Is/As), a TimedOutError enumerating live threads on
// suspected deadlock, or the finish block's error. Failures recorded by
// later-registered threads are discarded to avoid ambiguous multi-cause
// reports. No worker goroutine outlives Conduct except one that ignores
// its interrupt while blocked in user code.
func (c *Conductor) Conduct(ctx context.Context) error {
	c.mu.Lock()
	if c.conducted {
		c.mu.Unlock()
		return NewIllegalStateError("conduct can only be called once per Conductor")
	}
	c.conducted = true
	c.started = true
	entries := c.entries
	finish := c.finish
	c.mu.Unlock()

	start := time.Now()
	deadline := start.Add(c.cfg.Timeout)
	c.trace(Event{Kind: EventConductStarted})
	c.log.Debug("Conducting", "threads", len(entries), "timeout", c.cfg.Timeout)

	for _, e := range entries {
		c.startThread(e)
	}

	err := c.coordinate(ctx, entries, deadline)
	if err == nil && finish != nil {
		// Post-completion assertions run against a quiescent snapshot,
		// under an implicitly frozen clock.
		err = c.WithClockFrozen(finish)
	}

	c.trace(Event{Kind: EventConductFinished, Err: err})
	c.log.Debug("Conduct finished", "beat", c.clock.CurrentBeat(), "duration", time.Since(start), "err", err)
	return err
}

// startThread launches one entry's body in a wrapper that records any
// failure and always marks the entry terminated, panic or not.
func (c *Conductor) startThread(e *entry) {
	e.setState(StateRunning, 0)
	w := &Worker{e: e, c: c}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.fail(fmt.Errorf("panic: %v", r))
			}
			e.setState(StateTerminated, 0)
			close(e.done)
			c.trace(Event{Kind: EventThreadTerminated, Thread: e.name, Err: e.recordedFailure()})
		}()
		c.trace(Event{Kind: EventThreadStarted, Thread: e.name})
		if err := w.e.body(w); err != nil {
			e.fail(err)
		}
	}()
}

// coordinate is the polling loop: sample every entry, surface the first
// failure, advance the beat when every live thread is provably or
// presumably blocked, and give up with a diagnostic once the budget runs
// out. Resampling is a bounded sleep-poll rather than a notification wait
// because a thread blocked on an arbitrary external resource cannot be
// distinguished from one about to become runnable.
func (c *Conductor) coordinate(ctx context.Context, entries []*entry, deadline time.Time) error {
	for {
		if failed := firstFailure(entries); failed != nil {
			c.drainThreads(entries)
			return fmt.Errorf("thread %q: %w", failed.name, failed.recordedFailure())
		}

		snaps := make([]Snapshot, 0, len(entries))
		live := 0
		for _, e := range entries {
			s := e.snapshot(c.cfg.GraceInterval)
			if s.State != StateTerminated {
				live++
				snaps = append(snaps, s)
			}
		}
		if live == 0 {
			return nil
		}

		if time.Now().After(deadline) {
			c.interruptAll(entries)
			c.drainThreads(entries)
			return &TimedOutError{Timeout: c.cfg.Timeout, Threads: snaps}
		}

		if safeToAdvance(snaps, c.clock.CurrentBeat()) {
			// The frozen check and the increment share one lock
			// acquisition; a body freezing the clock between the snapshot
			// above and this call makes the advance a no-op.
			if beat, ok := c.clock.AdvanceIfUnfrozen(); ok {
				c.trace(Event{Kind: EventBeatAdvanced, Beat: beat})
				c.log.Trace("Advanced beat", "beat", beat)
				if !releasesWaiter(snaps, beat) {
					// The advance satisfied no waiter, so the quiet threads
					// that justified it must sit through a fresh grace
					// window before they justify the next one. Otherwise a
					// fully deadlocked set spins the beat up every poll.
					for _, e := range entries {
						e.rearmQuiet()
					}
				}
			}
		}

		// Resample at poll cadence even right after an advance; a released
		// thread needs scheduler time before its new state means anything.
		select {
		case <-ctx.Done():
			c.interruptAll(entries)
			c.drainThreads(entries)
			return fmt.Errorf("conduct cancelled: %w", context.Cause(ctx))
		case <-time.After(c.cfg.PollInterval):
		}
	}
}

// safeToAdvance reports whether every live thread is either waiting on a
// future beat or has been quiet long enough to be presumed blocked on
// something the conductor cannot see. A thread waiting on an already
// satisfied beat is about to run, so advancing past it is not safe.
func safeToAdvance(live []Snapshot, beat Beat) bool {
	for _, s := range live {
		switch s.State {
		case StateBlockedOnBeat:
			if s.WaitingFor <= beat {
				return false
			}
		case StateBlockedOther:
			// Quiet past the grace interval; presumed safe.
		default:
			return false
		}
	}
	return len(live) > 0
}

// releasesWaiter reports whether any sampled thread was waiting on
// exactly the beat just reached.
func releasesWaiter(live []Snapshot, beat Beat) bool {
	for _, s := range live {
		if s.State == StateBlockedOnBeat && s.WaitingFor == beat {
			return true
		}
	}
	return false
}

// firstFailure returns the first entry, in registration order, carrying a
// recorded failure. Ties break on registration order, not completion
// order.
func firstFailure(entries []*entry) *entry {
	for _, e := range entries {
		if e.recordedFailure() != nil {
			return e
		}
	}
	return nil
}

// drainThreads waits briefly for live threads to terminate on their own,
// then interrupts any that remain so no goroutine is leaked past the end
// of Conduct. A thread that ignores its interrupt can still leak; the
// coordinator logs it and moves on rather than hanging the caller.
func (c *Conductor) drainThreads(entries []*entry) {
	deadline := time.Now().Add(drainBudget)
	for _, e := range entries {
		wait := time.Until(deadline)
		if wait <= 0 {
			break
		}
		select {
		case <-e.done:
		case <-time.After(wait):
		}
	}
	c.interruptAll(entries)
	for _, e := range entries {
		select {
		case <-e.done:
		case <-time.After(joinBudget):
			c.log.Warn("Thread ignored interrupt and is still running", "thread", e.name, "state", e.snapshot(c.cfg.GraceInterval).State)
		}
	}
}

// interruptAll delivers the interruption signal to every non-terminated
// entry.
func (c *Conductor) interruptAll(entries []*entry) {
	for _, e := range entries {
		select {
		case <-e.done:
		default:
			(&Thread{e: e, clock: c.clock}).Interrupt()
		}
	}
}
