package thrum

import (
	"context"

	"github.com/ethereum/go-ethereum/log"

	"github.com/threadbeat/thrum/runner"
)

// TestExecutor is responsible for running scenarios.
type TestExecutor interface {
	RunScenarios(ctx context.Context) (*runner.RunnerResult, error)
}

// DefaultTestExecutor implements the TestExecutor interface.
type DefaultTestExecutor struct {
	runner runner.ScenarioRunner
	logger log.Logger
}

// NewDefaultTestExecutor creates a new DefaultTestExecutor.
func NewDefaultTestExecutor(runner runner.ScenarioRunner, logger log.Logger) *DefaultTestExecutor {
	return &DefaultTestExecutor{
		runner: runner,
		logger: logger,
	}
}

// RunScenarios runs all scenarios and returns the results.
func (e *DefaultTestExecutor) RunScenarios(ctx context.Context) (*runner.RunnerResult, error) {
	e.logger.Info("Running all scenarios...")
	result, err := e.runner.RunAllScenarios(ctx)
	if err != nil {
		e.logger.Error("Error running scenarios", "error", err)
		return nil, err
	}
	e.logger.Info("Scenario run completed", "run_id", result.RunID, "status", result.Status)
	return result, nil
}
