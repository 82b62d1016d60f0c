package runner

import (
	"strings"
	"sync"

	"github.com/threadbeat/thrum/conductor"
)

// eventCollector accumulates a conduct run's trace events. Events arrive
// from the coordinator goroutine and from worker goroutines.
type eventCollector struct {
	mu     sync.Mutex
	events []conductor.Event
}

func (ec *eventCollector) record(ev conductor.Event) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.events = append(ec.events, ev)
}

func (ec *eventCollector) snapshot() []conductor.Event {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	out := make([]conductor.Event, len(ec.events))
	copy(out, ec.events)
	return out
}

// beatsAdvanced counts the clock advances observed in the trace.
func (ec *eventCollector) beatsAdvanced() uint64 {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	var n uint64
	for _, ev := range ec.events {
		if ev.Kind == conductor.EventBeatAdvanced {
			n++
		}
	}
	return n
}

// scenarioLog is the shared ordered log scripted threads append to. The
// conductor promises beat-granularity ordering of the appends; the log
// records the order actually observed.
type scenarioLog struct {
	mu    sync.Mutex
	parts []string
}

func (l *scenarioLog) append(token string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.parts = append(l.parts, token)
}

func (l *scenarioLog) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return strings.Join(l.parts, "")
}
