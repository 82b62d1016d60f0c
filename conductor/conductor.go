package conductor

import (
	"bytes"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// Defaults for the coordinator's tuning knobs. The exact values are a
// tuning choice, not a correctness contract: on heavily loaded hosts a
// short grace interval can misread a slow thread as blocked.
const (
	// DefaultTimeout bounds one whole conduct run.
	DefaultTimeout = 15 * time.Second

	// DefaultPollInterval is the coordinator's resampling period.
	DefaultPollInterval = 5 * time.Millisecond

	// DefaultGraceInterval is how long a thread must sit in the running
	// state, with no observed transition, before the coordinator presumes
	// it blocked on an external resource.
	DefaultGraceInterval = 150 * time.Millisecond
)

// Config holds configuration for creating a Conductor. The zero value is
// usable; all fields have defaults.
type Config struct {
	Log           log.Logger
	Timeout       time.Duration // overall budget for Conduct
	PollInterval  time.Duration // coordinator resampling period
	GraceInterval time.Duration // quiet time before running counts as blocked
	Trace         TraceFunc     // optional run trace sink
}

// Conductor registers thread bodies, drives the coordinator loop, and
// aggregates the pass/fail outcome. A Conductor conducts at most once;
// registration is only legal before Conduct is called.
type Conductor struct {
	cfg   Config
	log   log.Logger
	clock *Clock
	owner uint64 // goroutine that created the Conductor

	// mu guards registration state only. Entries are append-only until
	// conducting starts and read-only after, so the coordinator samples
	// them without holding mu.
	mu        sync.Mutex
	entries   []*entry
	finish    func() error
	hasFinish bool
	started   bool
	conducted bool
}

// New creates a Conductor with its own clock.
func New(cfg Config) *Conductor {
	if cfg.Log == nil {
		cfg.Log = log.Root()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.GraceInterval <= 0 {
		cfg.GraceInterval = DefaultGraceInterval
	}
	return &Conductor{
		cfg:   cfg,
		log:   cfg.Log,
		clock: NewClock(),
		owner: goroutineID(),
	}
}

// Thread registers body under the given name and returns a handle usable
// later for Interrupt. An empty name is auto-assigned. Registration after
// Conduct has begun returns an IllegalStateError.
func (c *Conductor) Thread(name string, body func(*Worker) error) (*Thread, error) {
	if body == nil {
		return nil, NewIllegalStateError("thread body is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil, NewIllegalStateError("cannot register a thread after conducting has started")
	}
	if name == "" {
		name = fmt.Sprintf("thread-%d", len(c.entries)+1)
	}
	for _, e := range c.entries {
		if e.name == name {
			return nil, NewIllegalStateError(fmt.Sprintf("thread %q is already registered", name))
		}
	}
	e := newEntry(name, body)
	c.entries = append(c.entries, e)
	c.log.Debug("Registered thread", "name", name, "total", len(c.entries))
	return &Thread{e: e, clock: c.clock}, nil
}

// Threads registers n independent copies of body, suffixing namePrefix for
// each. Sugar over repeated Thread calls.
func (c *Conductor) Threads(n int, namePrefix string, body func(*Worker) error) ([]*Thread, error) {
	if n <= 0 {
		return nil, NewIllegalStateError(fmt.Sprintf("thread count must be positive, got %d", n))
	}
	if namePrefix == "" {
		namePrefix = "thread"
	}
	handles := make([]*Thread, 0, n)
	for i := 1; i <= n; i++ {
		t, err := c.Thread(fmt.Sprintf("%s-%d", namePrefix, i), body)
		if err != nil {
			return nil, err
		}
		handles = append(handles, t)
	}
	return handles, nil
}

// Beat returns the shared clock's current value.
func (c *Conductor) Beat() Beat {
	return c.clock.CurrentBeat()
}

// Clock returns the conductor's clock. Intended for observation; advancing
// it manually while conducting defeats the coordinator.
func (c *Conductor) Clock() *Clock {
	return c.clock
}

// WhenFinished registers block to run on the coordinator goroutine after
// every thread has terminated, under an implicitly frozen clock. It may
// only be called by the goroutine that created the Conductor, and at most
// once.
func (c *Conductor) WhenFinished(block func() error) error {
	if goroutineID() != c.owner {
		return NewIllegalStateError("whenFinished can only be called by thread that created Conductor.")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hasFinish {
		return NewIllegalStateError("whenFinished can only be called once per Conductor")
	}
	if c.started {
		return NewIllegalStateError("cannot register a finish block after conducting has started")
	}
	c.finish = block
	c.hasFinish = true
	return nil
}

// WithClockFrozen freezes the clock, runs block, and unfreezes on every
// exit path, so the coordinator never auto-advances mid-block. This is
// how tests deterministically assert that a timed blocking operation
// really blocks rather than racing the coordinator.
func (c *Conductor) WithClockFrozen(block func() error) error {
	c.clock.Freeze()
	c.trace(Event{Kind: EventClockFrozen})
	defer func() {
		c.clock.Unfreeze()
		c.trace(Event{Kind: EventClockUnfrozen})
	}()
	return block()
}

// goroutineID extracts the running goroutine's ID from its stack header.
// Go exposes no first-class goroutine identity; this is only used to
// enforce the WhenFinished ownership rule, never for synchronization.
func goroutineID() uint64 {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	// "goroutine 18 [running]:"
	buf = bytes.TrimPrefix(buf, []byte("goroutine "))
	if i := bytes.IndexByte(buf, ' '); i > 0 {
		if id, err := strconv.ParseUint(string(buf[:i]), 10, 64); err == nil {
			return id
		}
	}
	return 0
}
