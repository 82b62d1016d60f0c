package conductor

import "sync"

// Beat is the value of the logical clock shared by all conducted threads.
// It is non-negative and monotonically non-decreasing for the lifetime of
// one Conductor.
type Beat uint64

// Clock is the beat counter plus frozen flag and the wait/notify machinery
// guarding both. It never advances on its own; only the coordinator loop
// calls Advance, and only when it has observed that doing so is safe.
//
// A Clock is safe for concurrent use. Multiple Conductor instances each own
// an independent Clock, so conductors can coexist in one test process
// without interference.
type Clock struct {
	mu     sync.Mutex
	cond   *sync.Cond
	beat   Beat
	frozen bool
}

// NewClock creates a clock starting at beat 0, unfrozen.
func NewClock() *Clock {
	c := &Clock{}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// CurrentBeat returns the clock's value without blocking.
func (c *Clock) CurrentBeat() Beat {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.beat
}

// Advance increments the beat by exactly one and wakes every goroutine
// whose awaited beat is now satisfied. Advancing with no waiters is legal;
// the beat still increments. Advance does not consult the frozen flag;
// the coordinator goes through AdvanceIfUnfrozen instead.
func (c *Clock) Advance() Beat {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.beat++
	c.cond.Broadcast()
	return c.beat
}

// AdvanceIfUnfrozen increments the beat by exactly one unless the clock
// is frozen. The frozen check and the increment happen under a single
// lock acquisition, so a Freeze issued by a thread body can never land
// between the coordinator's check and its advance. It reports the
// resulting beat and whether the advance happened.
func (c *Clock) AdvanceIfUnfrozen() (Beat, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen {
		return c.beat, false
	}
	c.beat++
	c.cond.Broadcast()
	return c.beat, true
}

// Freeze marks the clock so the coordinator's automatic advancement must
// not fire, even if every thread appears blocked. Freezing is idempotent
// but not reentrant; callers use Conductor.WithClockFrozen to guarantee a
// symmetric Unfreeze.
func (c *Clock) Freeze() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frozen = true
}

// Unfreeze re-enables automatic advancement.
func (c *Clock) Unfreeze() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frozen = false
}

// Frozen reports whether the clock is currently frozen.
func (c *Clock) Frozen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frozen
}

// waitForBeat blocks the calling goroutine on the clock's condition
// variable until the beat reaches n or stop is closed. It returns
// immediately if the beat is already satisfied. Waiters are released
// atomically with respect to the clock's lock the instant Advance sets
// the awaited beat.
func (c *Clock) waitForBeat(n Beat, stop <-chan struct{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.beat < n {
		select {
		case <-stop:
			return ErrInterrupted
		default:
		}
		c.cond.Wait()
	}
	return nil
}

// wake re-runs every waiter's wakeup check without changing the beat.
// Used by Thread.Interrupt so an interrupted waiter notices its stop
// channel closed.
func (c *Clock) wake() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cond.Broadcast()
}
