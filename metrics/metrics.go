package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/threadbeat/thrum/types"
)

const (
	MetricsNamespace = "thrum"
)

var (
	Debug                bool = true
	validResults              = []types.Status{types.StatusPass, types.StatusFail, types.StatusSkip, types.StatusError}
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	scenariosTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "scenarios_total",
		Help:      "Count of executed scenarios",
	}, []string{
		"run_id",
		"name",
		"result",
	})

	beatsAdvancedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "beats_advanced_total",
		Help:      "Count of logical clock advances during conducts",
	}, []string{
		"run_id",
		"scenario",
	})

	threadFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "thread_failures_total",
		Help:      "Count of conducted thread failures",
	}, []string{
		"run_id",
		"scenario",
	})

	conductTimeoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "conduct_timeouts_total",
		Help:      "Count of conducts that hit the deadlock timeout",
	}, []string{
		"run_id",
		"scenario",
	})

	runResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_results",
		Help:      "Result of scenario runs",
	}, []string{
		"run_id",
		"result",
	})

	runScenarioTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_scenario_total",
		Help:      "Total number of scenarios in a run",
	}, []string{
		"run_id",
	})

	runScenarioPassed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_scenario_passed",
		Help:      "Number of passed scenarios in a run",
	}, []string{
		"run_id",
	})

	runScenarioFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_scenario_failed",
		Help:      "Number of failed scenarios in a run",
	}, []string{
		"run_id",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration",
		Help:      "Duration of scenario runs",
	}, []string{
		"run_id",
	})

	schedulerRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "scheduler_runs_total",
		Help:      "Count of scheduled runs by outcome",
	}, []string{
		"outcome",
	})

	schedulerLastRunTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "scheduler_last_run_timestamp",
		Help:      "Unix time of the most recent scheduled run",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

func RecordScenario(runID string, name string, result types.Status) {
	if !isValidResult(result) {
		log.Error("RecordScenario - invalid result", "result", result)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "scenarios_total",
			"run_id", runID,
			"scenario", name,
			"result", result)
	}
	scenariosTotal.WithLabelValues(runID, name, string(result)).Inc()
}

// RecordBeatsAdvanced accumulates the number of clock advances one
// scenario's conduct performed.
func RecordBeatsAdvanced(runID string, scenario string, beats uint64) {
	beatsAdvancedTotal.WithLabelValues(runID, scenario).Add(float64(beats))
}

func RecordThreadFailure(runID string, scenario string) {
	threadFailuresTotal.WithLabelValues(runID, scenario).Inc()
}

func RecordConductTimeout(runID string, scenario string) {
	conductTimeoutsTotal.WithLabelValues(runID, scenario).Inc()
}

func RecordRun(
	runID string,
	result string,
	total int,
	passed int,
	failed int,
	duration time.Duration,
) {
	runResults.WithLabelValues(runID, result).Set(1)
	runScenarioTotal.WithLabelValues(runID).Add(float64(total))
	runScenarioPassed.WithLabelValues(runID).Add(float64(passed))
	runScenarioFailed.WithLabelValues(runID).Add(float64(failed))
	runDuration.WithLabelValues(runID).Set(duration.Seconds())
}

// RecordSchedulerRun stamps one scheduled run, keyed by whether the run
// callback returned an error.
func RecordSchedulerRun(at time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	schedulerRunsTotal.WithLabelValues(outcome).Inc()
	schedulerLastRunTimestamp.Set(float64(at.Unix()))
}

func isValidResult(result types.Status) bool {
	return slices.Contains(validResults, result)
}
