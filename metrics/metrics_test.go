package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/threadbeat/thrum/types"
)

func TestErrToLabel(t *testing.T) {
	assert.Equal(t, "nil", errToLabel(nil))
	assert.Equal(t, "something_went_wrong", errToLabel(errors.New("something went wrong!")))
	assert.Equal(t, "failed_to_read_config_EOF", errToLabel(errors.New("failed to read config: EOF")))
}

func TestIsValidResult(t *testing.T) {
	assert.True(t, isValidResult(types.StatusPass))
	assert.True(t, isValidResult(types.StatusFail))
	assert.True(t, isValidResult(types.StatusSkip))
	assert.True(t, isValidResult(types.StatusError))
	assert.False(t, isValidResult(types.Status("maybe")))
}

func TestRecordScenario(t *testing.T) {
	RecordScenario("run-a", "ordering", types.StatusPass)
	RecordScenario("run-a", "ordering", types.StatusPass)
	assert.Equal(t, float64(2),
		testutil.ToFloat64(scenariosTotal.WithLabelValues("run-a", "ordering", "pass")))

	// Invalid results are dropped, not recorded under a bogus label.
	RecordScenario("run-a", "ordering", types.Status("maybe"))
	assert.Equal(t, float64(0),
		testutil.ToFloat64(scenariosTotal.WithLabelValues("run-a", "ordering", "maybe")))
}

func TestRecordConductCounters(t *testing.T) {
	RecordBeatsAdvanced("run-b", "ordering", 5)
	RecordBeatsAdvanced("run-b", "ordering", 2)
	assert.Equal(t, float64(7),
		testutil.ToFloat64(beatsAdvancedTotal.WithLabelValues("run-b", "ordering")))

	RecordThreadFailure("run-b", "doomed")
	assert.Equal(t, float64(1),
		testutil.ToFloat64(threadFailuresTotal.WithLabelValues("run-b", "doomed")))

	RecordConductTimeout("run-b", "deadlocked")
	assert.Equal(t, float64(1),
		testutil.ToFloat64(conductTimeoutsTotal.WithLabelValues("run-b", "deadlocked")))
}

func TestRecordRun(t *testing.T) {
	RecordRun("run-c", "pass", 3, 3, 0, 1500*time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(runResults.WithLabelValues("run-c", "pass")))
	assert.Equal(t, float64(3), testutil.ToFloat64(runScenarioTotal.WithLabelValues("run-c")))
	assert.Equal(t, float64(3), testutil.ToFloat64(runScenarioPassed.WithLabelValues("run-c")))
	assert.Equal(t, float64(0), testutil.ToFloat64(runScenarioFailed.WithLabelValues("run-c")))
	assert.Equal(t, 1.5, testutil.ToFloat64(runDuration.WithLabelValues("run-c")))
}

func TestRecordErrorDetails(t *testing.T) {
	RecordErrorDetails("registry", errors.New("bad file"))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(errorsTotal.WithLabelValues("registry.bad_file")))

	// A nil error records nothing.
	RecordErrorDetails("registry", nil)
}

func TestRecordSchedulerRun(t *testing.T) {
	okBefore := testutil.ToFloat64(schedulerRunsTotal.WithLabelValues("ok"))
	errBefore := testutil.ToFloat64(schedulerRunsTotal.WithLabelValues("error"))

	at := time.Unix(1_756_500_000, 0)
	RecordSchedulerRun(at, nil)
	RecordSchedulerRun(at.Add(time.Minute), errors.New("run failed"))

	assert.Equal(t, okBefore+1, testutil.ToFloat64(schedulerRunsTotal.WithLabelValues("ok")))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(schedulerRunsTotal.WithLabelValues("error")))
	assert.Equal(t, float64(at.Add(time.Minute).Unix()), testutil.ToFloat64(schedulerLastRunTimestamp))
}
