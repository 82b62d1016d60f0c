package runner

import (
	"time"

	"github.com/threadbeat/thrum/types"
)

// ScenarioResult captures the outcome of one scenario, across all of its
// iterations.
type ScenarioResult struct {
	Name        string
	Description string
	Status      types.Status
	Error       error
	Duration    time.Duration
	Log         string // shared log produced by the final iteration
	Beats       uint64 // clock advances in the final iteration
	Iterations  int
	TimedOut    bool
}

// RunnerResult captures the complete run results.
type RunnerResult struct {
	Scenarios []*ScenarioResult
	Status    types.Status
	Duration  time.Duration
	Stats     ResultStats
	RunID     string
}

// ResultStats tracks aggregate scenario counts for a run.
type ResultStats struct {
	Total     int
	Passed    int
	Failed    int
	Skipped   int
	StartTime time.Time
	EndTime   time.Time
}

// finalize fills in aggregate stats and the overall status from the
// per-scenario results.
func (r *RunnerResult) finalize() {
	r.Stats.Total = len(r.Scenarios)
	r.Stats.Passed = 0
	r.Stats.Failed = 0
	r.Stats.Skipped = 0
	for _, sc := range r.Scenarios {
		switch sc.Status {
		case types.StatusPass:
			r.Stats.Passed++
		case types.StatusSkip:
			r.Stats.Skipped++
		default:
			r.Stats.Failed++
		}
	}
	switch {
	case r.Stats.Failed > 0:
		r.Status = types.StatusFail
	case r.Stats.Passed == 0 && r.Stats.Skipped > 0:
		r.Status = types.StatusSkip
	default:
		r.Status = types.StatusPass
	}
	r.Stats.EndTime = time.Now()
	r.Duration = r.Stats.EndTime.Sub(r.Stats.StartTime)
}
