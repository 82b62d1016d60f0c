package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/threadbeat/thrum/conductor"
	"github.com/threadbeat/thrum/logging"
	"github.com/threadbeat/thrum/metrics"
	"github.com/threadbeat/thrum/registry"
	"github.com/threadbeat/thrum/types"
)

// ScenarioRunner defines the interface for running conduct scenarios.
type ScenarioRunner interface {
	RunAllScenarios(ctx context.Context) (*RunnerResult, error)
	RunScenario(ctx context.Context, sc types.ScenarioConfig) (*ScenarioResult, error)
}

// runner struct implements the ScenarioRunner interface.
type runner struct {
	scenarios   []types.ScenarioConfig
	log         log.Logger
	runID       string
	serial      bool
	concurrency int
	runLogger   *logging.RunLogger
	tracer      trace.Tracer
}

// Config holds configuration for creating a new runner.
type Config struct {
	Registry       *registry.Registry
	TargetScenario string // run only this scenario, when set
	Log            log.Logger
	Serial         bool
	Concurrency    int // concurrent scenario workers (0 = auto-determine)
	RunLogger      *logging.RunLogger
}

// NewScenarioRunner creates a new scenario runner instance.
func NewScenarioRunner(cfg Config) (ScenarioRunner, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.Root()
		cfg.Log.Error("No logger provided, using default")
	}

	var scenarios []types.ScenarioConfig
	if cfg.TargetScenario != "" {
		sc, ok := cfg.Registry.ScenarioByName(cfg.TargetScenario)
		if !ok {
			return nil, fmt.Errorf("scenario %q not found", cfg.TargetScenario)
		}
		scenarios = []types.ScenarioConfig{sc}
	} else {
		scenarios = cfg.Registry.Scenarios()
	}
	if len(scenarios) == 0 {
		return nil, fmt.Errorf("no scenarios found")
	}

	cfg.Log.Debug("NewScenarioRunner()", "scenarios", len(scenarios),
		"serial", cfg.Serial, "concurrency", cfg.Concurrency)

	return &runner{
		scenarios:   scenarios,
		log:         cfg.Log,
		serial:      cfg.Serial,
		concurrency: cfg.Concurrency,
		runLogger:   cfg.RunLogger,
		tracer:      otel.Tracer("scenario runner"),
	}, nil
}

// RunAllScenarios implements the ScenarioRunner interface.
func (r *runner) RunAllScenarios(ctx context.Context) (*RunnerResult, error) {
	if r.runLogger != nil {
		r.runID = r.runLogger.GetRunID()
	} else {
		r.runID = uuid.New().String()
	}
	defer func() {
		r.runID = ""
	}()

	start := time.Now()
	r.log.Debug("Running all scenarios", "run_id", r.runID)

	result := &RunnerResult{
		RunID: r.runID,
		Stats: ResultStats{StartTime: start},
	}

	var err error
	if r.serial {
		err = r.runSerial(ctx, result)
	} else {
		err = r.runParallel(ctx, result)
	}
	if err != nil {
		return nil, err
	}

	result.finalize()
	if r.runLogger != nil {
		if err := r.runLogger.Complete(result.Status); err != nil {
			r.log.Error("Failed to finalize run artifacts", "error", err)
		}
	}
	return result, nil
}

func (r *runner) runSerial(ctx context.Context, result *RunnerResult) error {
	for _, sc := range r.scenarios {
		scResult, err := r.RunScenario(ctx, sc)
		if err != nil {
			return fmt.Errorf("running scenario %s: %w", sc.Name, err)
		}
		result.Scenarios = append(result.Scenarios, scResult)
	}
	return nil
}

// RunScenario runs one scenario, iterating Repeat times and requiring
// identical results from every iteration. The returned error reports a
// runner malfunction; scenario failures land in the result's Status and
// Error fields.
func (r *runner) RunScenario(ctx context.Context, sc types.ScenarioConfig) (*ScenarioResult, error) {
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("scenario %s", sc.Name))
	defer span.End()

	iterations := sc.Repeat
	if iterations <= 0 {
		iterations = 1
	}

	scLog := r.log.New("scenario", sc.Name)
	start := time.Now()
	result := &ScenarioResult{
		Name:        sc.Name,
		Description: sc.Description,
		Status:      types.StatusPass,
		Iterations:  iterations,
	}

	var firstLog string
	var lastEvents []conductor.Event
	for i := 0; i < iterations; i++ {
		iter, err := r.conductOnce(ctx, sc, scLog)
		if err != nil {
			return nil, err
		}
		lastEvents = iter.events
		result.Log = iter.log
		result.Beats = iter.beats
		result.TimedOut = result.TimedOut || iter.timedOut

		if verdict := evaluate(sc, iter); verdict != nil {
			result.Status = iter.status()
			if result.Status == types.StatusPass {
				// The conduct itself went the way the script demanded but
				// the expectation did not hold.
				result.Status = types.StatusFail
			}
			result.Error = verdict
			break
		}
		// Determinism check across iterations: with no explicit expected
		// log, every iteration must reproduce the first one's.
		if i == 0 {
			firstLog = iter.log
		} else if sc.Expect.Log == "" && iter.log != firstLog {
			result.Status = types.StatusFail
			result.Error = fmt.Errorf("scenario %q is not deterministic: iteration %d produced log %q, expected %q",
				sc.Name, i+1, iter.log, firstLog)
			break
		}
	}

	result.Duration = time.Since(start)
	if r.runLogger != nil {
		if err := r.runLogger.WriteTrace(sc.Name, lastEvents); err != nil {
			scLog.Error("Failed to write conduct trace", "error", err)
		}
	}
	r.record(sc, result)
	return result, nil
}

// iteration is the raw outcome of one conduct of a scenario.
type iteration struct {
	log      string
	beats    uint64
	err      error
	timedOut bool
	events   []conductor.Event
}

func (it iteration) status() types.Status {
	switch {
	case it.err == nil:
		return types.StatusPass
	case it.timedOut || conductor.IsIllegalState(it.err):
		return types.StatusError
	default:
		return types.StatusFail
	}
}

// conductOnce compiles the scenario's thread scripts and conducts them on
// a fresh Conductor.
func (r *runner) conductOnce(ctx context.Context, sc types.ScenarioConfig, scLog log.Logger) (iteration, error) {
	collector := &eventCollector{}
	shared := &scenarioLog{}
	handles := make(map[string]*conductor.Thread)

	cond := conductor.New(conductor.Config{
		Log:     scLog,
		Timeout: *sc.Timeout,
		Trace:   collector.record,
	})

	for _, script := range sc.Threads {
		body := compileSteps(script.Steps, shared, handles)
		if script.Count > 1 {
			if _, err := cond.Threads(script.Count, script.Name, body); err != nil {
				return iteration{}, fmt.Errorf("registering threads %q: %w", script.Name, err)
			}
			continue
		}
		t, err := cond.Thread(script.Name, body)
		if err != nil {
			return iteration{}, fmt.Errorf("registering thread %q: %w", script.Name, err)
		}
		handles[script.Name] = t
	}

	err := cond.Conduct(ctx)
	if ctx.Err() != nil {
		return iteration{}, fmt.Errorf("conduct cancelled: %w", context.Cause(ctx))
	}

	it := iteration{
		log:      shared.String(),
		beats:    collector.beatsAdvanced(),
		err:      err,
		timedOut: conductor.IsTimedOut(err),
		events:   collector.snapshot(),
	}
	return it, nil
}

// compileSteps turns a script's step list into a conductor thread body.
// Handles are resolved lazily so interrupt steps can target threads
// registered after this one; the handle map is fully populated before
// Conduct starts any body.
func compileSteps(steps []types.Step, shared *scenarioLog, handles map[string]*conductor.Thread) func(*conductor.Worker) error {
	return func(w *conductor.Worker) error {
		for _, step := range steps {
			switch {
			case step.WaitForBeat != nil:
				if err := w.WaitForBeat(conductor.Beat(*step.WaitForBeat)); err != nil {
					return err
				}
			case step.Append != "":
				shared.append(step.Append)
			case step.Sleep > 0:
				time.Sleep(step.Sleep)
			case step.Interrupt != "":
				t, ok := handles[step.Interrupt]
				if !ok {
					return fmt.Errorf("no handle for thread %q", step.Interrupt)
				}
				t.Interrupt()
			case step.AwaitInterrupt:
				<-w.Interrupted()
			case step.Fail != "":
				return errors.New(step.Fail)
			}
		}
		return nil
	}
}

// evaluate checks one iteration against the scenario's expectations and
// returns a descriptive error on the first mismatch.
func evaluate(sc types.ScenarioConfig, it iteration) error {
	expected := sc.Expect.Outcome
	if expected == "" {
		expected = types.StatusPass
	}
	actual := it.status()
	if actual != expected {
		if it.err != nil {
			return fmt.Errorf("scenario %q: expected outcome %s, got %s: %w", sc.Name, expected, actual, it.err)
		}
		return fmt.Errorf("scenario %q: expected outcome %s, got %s", sc.Name, expected, actual)
	}
	if sc.Expect.Log != "" && it.log != sc.Expect.Log {
		return fmt.Errorf("scenario %q: expected log %q, got %q", sc.Name, sc.Expect.Log, it.log)
	}
	if sc.Expect.ErrorContains != "" {
		if it.err == nil {
			return fmt.Errorf("scenario %q: expected error containing %q, got none", sc.Name, sc.Expect.ErrorContains)
		}
		if !strings.Contains(it.err.Error(), sc.Expect.ErrorContains) {
			return fmt.Errorf("scenario %q: expected error containing %q, got %q", sc.Name, sc.Expect.ErrorContains, it.err)
		}
	}
	return nil
}

// record reports one scenario's outcome to metrics and run artifacts.
func (r *runner) record(sc types.ScenarioConfig, result *ScenarioResult) {
	metrics.RecordScenario(r.runID, sc.Name, result.Status)
	metrics.RecordBeatsAdvanced(r.runID, sc.Name, result.Beats)
	if result.Status == types.StatusFail {
		metrics.RecordThreadFailure(r.runID, sc.Name)
	}
	if result.TimedOut {
		metrics.RecordConductTimeout(r.runID, sc.Name)
	}
	if r.runLogger != nil {
		if err := r.runLogger.LogSummary(sc.Name, result.Status, result.Duration, result.Error); err != nil {
			r.log.Error("Failed to write scenario summary", "scenario", sc.Name, "error", err)
		}
	}
}
