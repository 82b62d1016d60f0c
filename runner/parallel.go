package runner

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/threadbeat/thrum/types"
)

// MaxReasonableConcurrency caps auto-determined concurrency. Every
// scenario spawns its own conducted goroutines, so the useful ceiling is
// lower than for plain work items.
const MaxReasonableConcurrency = 8

// scenarioWork represents a unit of work that can be executed in parallel.
type scenarioWork struct {
	index    int // position in the configured scenario order
	scenario types.ScenarioConfig
}

// scenarioWorkResult contains the result of executing a scenarioWork.
type scenarioWorkResult struct {
	work   scenarioWork
	result *ScenarioResult
	err    error
}

// runParallel executes every scenario on a bounded worker pool and places
// the results back in configured order, so reports are stable regardless
// of completion order.
func (r *runner) runParallel(ctx context.Context, result *RunnerResult) error {
	workItems := make([]scenarioWork, 0, len(r.scenarios))
	for i, sc := range r.scenarios {
		workItems = append(workItems, scenarioWork{index: i, scenario: sc})
	}

	concurrency := r.determineConcurrency(len(workItems))
	r.log.Info("Starting parallel scenario execution", "totalScenarios", len(workItems), "concurrency", concurrency)

	bufferSize := min(concurrency*2, len(workItems))
	workChan := make(chan scenarioWork, bufferSize)
	resultChan := make(chan scenarioWorkResult, bufferSize)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go r.worker(ctx, &wg, workChan, resultChan)
	}

	go func() {
		defer close(workChan)
		for _, work := range workItems {
			select {
			case workChan <- work:
			case <-ctx.Done():
				r.log.Debug("Context cancelled while sending work items")
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	ordered := make([]*ScenarioResult, len(workItems))
	var firstErr error
	for workResult := range resultChan {
		if workResult.err != nil {
			r.log.Error("Scenario execution failed", "scenario", workResult.work.scenario.Name, "error", workResult.err)
			if firstErr == nil {
				firstErr = fmt.Errorf("scenario %s: %w", workResult.work.scenario.Name, workResult.err)
			}
			continue
		}
		ordered[workResult.work.index] = workResult.result
	}
	if firstErr != nil {
		return firstErr
	}

	for _, scResult := range ordered {
		if scResult != nil {
			result.Scenarios = append(result.Scenarios, scResult)
		}
	}
	return nil
}

// worker is a goroutine that processes scenario work items.
func (r *runner) worker(ctx context.Context, wg *sync.WaitGroup, workChan <-chan scenarioWork, resultChan chan<- scenarioWorkResult) {
	defer wg.Done()

	for {
		select {
		case work, ok := <-workChan:
			if !ok {
				return
			}

			r.log.Debug("Worker processing scenario", "scenario", work.scenario.Name)
			scResult, err := r.RunScenario(ctx, work.scenario)

			select {
			case resultChan <- scenarioWorkResult{work: work, result: scResult, err: err}:
			case <-ctx.Done():
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

// determineConcurrency picks a worker count: the user's preference when
// set, otherwise CPU-count capped at MaxReasonableConcurrency, never more
// than the number of scenarios.
func (r *runner) determineConcurrency(numWorkItems int) int {
	c := r.concurrency
	if c <= 0 {
		c = min(runtime.NumCPU(), MaxReasonableConcurrency)
	}
	if c > numWorkItems {
		c = numWorkItems
	}
	if c < 1 {
		c = 1
	}
	return c
}
