// Package thrum wires the scenario service: it loads scripted conduct
// scenarios, runs them against the conductor, and reports the outcome.
package thrum

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/threadbeat/thrum/logging"
	"github.com/threadbeat/thrum/registry"
	"github.com/threadbeat/thrum/runner"
	"github.com/threadbeat/thrum/service"
	"github.com/threadbeat/thrum/types"
)

// thrum runs conduct scenarios, once or on an interval.
type thrum struct {
	ctx      context.Context
	config   *Config
	version  string
	registry *registry.Registry
	result   *runner.RunnerResult

	scheduler TestScheduler
	formatter ResultFormatter
	reporter  MetricsReporter

	running atomic.Bool
	mu      sync.Mutex

	shutdownCallback func(error) // Callback to signal application shutdown
}

// New creates the service from a validated config.
func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*thrum, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	config.Log.Debug("Creating thrum with config",
		"scenarioFile", config.ScenarioFile,
		"targetScenario", config.TargetScenario,
		"runInterval", config.RunInterval,
		"runOnce", config.RunOnce,
		"serial", config.Serial)

	reg, err := registry.NewRegistry(registry.Config{
		Log:            config.Log,
		ScenarioFile:   config.ScenarioFile,
		DefaultTimeout: config.DefaultTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}
	config.Log.Info("thrum.New: created registry", "scenarios", len(reg.Scenarios()))

	t := &thrum{
		ctx:              ctx,
		config:           config,
		version:          version,
		registry:         reg,
		scheduler:        NewDefaultTestScheduler(config.RunInterval, config.RunOnce, config.Log),
		formatter:        NewConsoleResultFormatter(config.Log),
		reporter:         NewDefaultMetricsReporter(),
		shutdownCallback: shutdownCallback,
	}
	t.scheduler.RegisterCallback(t.runScenarios)
	return t, nil
}

// Start runs the scenarios, periodically when an interval is configured.
func (t *thrum) Start(ctx context.Context) error {
	defer func() {
		if r := recover(); r != nil {
			t.config.Log.Error("Runtime error occurred", "error", r)
			t.shutdownCallback(RuntimeErrorf("panic: %v", r))
		}
	}()

	t.ctx = ctx
	t.running.Store(true)

	if t.config.RunOnce {
		t.config.Log.Info("Starting thrum in run-once mode")
	} else {
		t.config.Log.Info("Starting thrum in continuous mode", "interval", t.config.RunInterval)
	}

	err := t.scheduler.Start(ctx)

	if t.config.RunOnce {
		t.running.Store(false)
		if err != nil {
			return err
		}
		if t.result != nil && t.result.Status != types.StatusPass {
			return NewTestFailureError(t.result)
		}
		go func() {
			t.shutdownCallback(nil)
		}()
	}
	return err
}

// runScenarios executes one full scenario run and processes the results.
func (t *thrum) runScenarios() error {
	runID := uuid.New().String()

	var runLogger *logging.RunLogger
	if t.config.LogDir != "" {
		var err error
		runLogger, err = logging.NewRunLogger(t.config.LogDir, runID)
		if err != nil {
			return RuntimeErrorf("failed to create run logger: %w", err)
		}
	}

	scenarioRunner, err := runner.NewScenarioRunner(runner.Config{
		Registry:       t.registry,
		TargetScenario: t.config.TargetScenario,
		Log:            t.config.Log,
		Serial:         t.config.Serial,
		Concurrency:    t.config.Concurrency,
		RunLogger:      runLogger,
	})
	if err != nil {
		return RuntimeErrorf("failed to create scenario runner: %w", err)
	}

	executor := NewDefaultTestExecutor(scenarioRunner, t.config.Log)
	result, err := executor.RunScenarios(t.ctx)
	if err != nil {
		// This is a runtime error (not a scenario failure)
		return NewRuntimeError(err)
	}

	t.mu.Lock()
	t.result = result
	t.mu.Unlock()

	t.reporter.ReportResults(result.RunID, result)
	if err := t.formatter.FormatResults(result); err != nil {
		t.config.Log.Error("Failed to format results", "error", err)
	}
	if runLogger != nil {
		t.config.Log.Info("Run artifacts written", "dir", runLogger.Directory())
	}
	t.config.Log.Info("Scenario run completed", "run_id", result.RunID, "status", result.Status)
	return nil
}

// Health reports readiness from the most recent scheduled run, for the
// healthz endpoint.
func (t *thrum) Health() service.Health {
	pulse := t.scheduler.LastPulse()

	t.mu.Lock()
	result := t.result
	t.mu.Unlock()

	switch {
	case pulse.Runs == 0:
		return service.Health{Healthy: true, Status: "no runs yet"}
	case pulse.Err != nil:
		return service.Health{Healthy: false, Status: fmt.Sprintf("last run errored: %v", pulse.Err)}
	case result != nil && result.Status != types.StatusPass:
		return service.Health{Healthy: true, Status: fmt.Sprintf("last run %s: %s", result.Status, summarize(result))}
	default:
		return service.Health{Healthy: true, Status: fmt.Sprintf("last run passed at %s", pulse.At.Format(time.RFC3339))}
	}
}

// Stop stops the thrum service.
func (t *thrum) Stop(ctx context.Context) error {
	t.config.Log.Info("Stopping thrum")

	if !t.running.Load() {
		t.config.Log.Debug("Service already stopped, nothing to do")
		return nil
	}
	t.running.Store(false)

	if err := t.scheduler.Stop(); err != nil {
		return err
	}

	t.config.Log.Info("thrum stopped successfully")
	return nil
}

// Stopped returns true if the service is stopped.
func (t *thrum) Stopped() bool {
	return !t.running.Load()
}

// WaitForShutdown blocks until the scheduler has wound down or ctx ends.
func (t *thrum) WaitForShutdown(ctx context.Context) error {
	return t.scheduler.WaitForShutdown(ctx)
}
