package runner

import (
	"context"
	"runtime"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadbeat/thrum/types"
)

func TestDetermineConcurrency(t *testing.T) {
	discard := log.NewLogger(log.DiscardHandler())

	tests := []struct {
		name       string
		configured int
		workItems  int
		want       int
	}{
		{name: "explicit preference", configured: 3, workItems: 10, want: 3},
		{name: "capped by work items", configured: 12, workItems: 2, want: 2},
		{name: "single item", configured: 0, workItems: 1, want: 1},
		{name: "auto never exceeds cap", configured: 0, workItems: 100,
			want: min(runtime.NumCPU(), MaxReasonableConcurrency)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &runner{log: discard, concurrency: tt.configured}
			assert.Equal(t, tt.want, r.determineConcurrency(tt.workItems))
		})
	}
}

// TestRunParallelMatchesSerial runs the same scenario set both ways and
// requires identical per-scenario outcomes.
func TestRunParallelMatchesSerial(t *testing.T) {
	reg := newTestRegistry(t, passingScenariosYAML)

	serial := newTestRunner(t, Config{Registry: reg, Serial: true})
	parallel := newTestRunner(t, Config{Registry: reg, Concurrency: 2})

	serialResult, err := serial.RunAllScenarios(context.Background())
	require.NoError(t, err)
	parallelResult, err := parallel.RunAllScenarios(context.Background())
	require.NoError(t, err)

	require.Equal(t, len(serialResult.Scenarios), len(parallelResult.Scenarios))
	for i := range serialResult.Scenarios {
		assert.Equal(t, serialResult.Scenarios[i].Name, parallelResult.Scenarios[i].Name)
		assert.Equal(t, serialResult.Scenarios[i].Status, parallelResult.Scenarios[i].Status)
		assert.Equal(t, serialResult.Scenarios[i].Log, parallelResult.Scenarios[i].Log)
	}
	assert.Equal(t, types.StatusPass, parallelResult.Status)
}

func TestRunParallelCancelledContext(t *testing.T) {
	r := newTestRunner(t, Config{Registry: newTestRegistry(t, passingScenariosYAML)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := r.RunAllScenarios(ctx)
	if err == nil {
		// Workers may drain nothing before observing cancellation; either
		// an error or an empty result is acceptable, never a hang.
		require.NotNil(t, result)
		assert.LessOrEqual(t, len(result.Scenarios), 3)
	}
}
