package conductor

import "time"

// EventKind identifies a step in a conduct run's trace.
type EventKind string

const (
	EventConductStarted   EventKind = "conduct-started"
	EventThreadStarted    EventKind = "thread-started"
	EventBeatWait         EventKind = "beat-wait"
	EventBeatAdvanced     EventKind = "beat-advanced"
	EventThreadTerminated EventKind = "thread-terminated"
	EventClockFrozen      EventKind = "clock-frozen"
	EventClockUnfrozen    EventKind = "clock-unfrozen"
	EventConductFinished  EventKind = "conduct-finished"
)

// Event is one entry in a conduct run's trace. Thread is empty for
// clock-level events; Err is set on thread-terminated events for threads
// that failed, and on conduct-finished for failed runs.
type Event struct {
	Kind   EventKind
	Thread string
	Beat   Beat
	Err    error
	Time   time.Time
}

// TraceFunc receives trace events as a conduct run progresses. Events are
// emitted from the coordinator goroutine and from worker goroutines, so
// implementations must be safe for concurrent use.
type TraceFunc func(Event)

// trace stamps and delivers an event to the configured TraceFunc, if any.
func (c *Conductor) trace(ev Event) {
	if c.cfg.Trace == nil {
		return
	}
	if ev.Beat == 0 && ev.Kind != EventBeatWait {
		ev.Beat = c.clock.CurrentBeat()
	}
	ev.Time = time.Now()
	c.cfg.Trace(ev)
}
