package thrum

import (
	"fmt"
	"os"

	"github.com/acarl005/stripansi"
	"github.com/ethereum/go-ethereum/log"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/threadbeat/thrum/runner"
	"github.com/threadbeat/thrum/types"
)

// ResultFormatter is responsible for formatting and displaying scenario
// results.
type ResultFormatter interface {
	FormatResults(result *runner.RunnerResult) error
}

// ConsoleResultFormatter implements the ResultFormatter interface.
type ConsoleResultFormatter struct {
	logger log.Logger
}

// NewConsoleResultFormatter creates a new ConsoleResultFormatter.
func NewConsoleResultFormatter(logger log.Logger) *ConsoleResultFormatter {
	return &ConsoleResultFormatter{
		logger: logger,
	}
}

// FormatResults formats and displays the scenario results.
func (f *ConsoleResultFormatter) FormatResults(result *runner.RunnerResult) error {
	f.logger.Info("Printing results...")
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(fmt.Sprintf("Conduct Scenario Results (%s)", formatDuration(result.Duration)))

	// Configure columns
	t.AppendHeader(table.Row{
		"Scenario", "Duration", "Beats", "Iterations", "Log", "Status", "Error",
	})

	// Set column configurations for better readability
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Scenario", WidthMax: 40, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Beats", Align: text.AlignRight},
		{Name: "Iterations", Align: text.AlignRight},
		{Name: "Log", WidthMax: 30, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Error", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, sc := range result.Scenarios {
		t.AppendRow(table.Row{
			sc.Name,
			formatDuration(sc.Duration),
			sc.Beats,
			sc.Iterations,
			sc.Log,
			getResultString(sc.Status),
			extractKeyErrorMessage(sc.Error),
		})
	}

	t.AppendFooter(table.Row{
		fmt.Sprintf("%d scenarios", result.Stats.Total),
		formatDuration(result.Duration),
		"", "", "",
		getResultString(result.Status),
		fmt.Sprintf("%d passed, %d failed, %d skipped",
			result.Stats.Passed, result.Stats.Failed, result.Stats.Skipped),
	})

	t.Render()
	return nil
}

// extractKeyErrorMessage trims an error for table display: ANSI escapes
// from assertion output are stripped and long messages truncated.
func extractKeyErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := stripansi.Strip(err.Error())
	const maxLen = 160
	if len(msg) > maxLen {
		msg = msg[:maxLen-3] + "..."
	}
	return msg
}

// summarize renders a one-line pass/fail banner for a run, used by tests
// and the run-once exit path.
func summarize(result *runner.RunnerResult) string {
	if result.Status == types.StatusPass {
		return fmt.Sprintf("all %d scenarios passed in %s", result.Stats.Total, formatDuration(result.Duration))
	}
	return fmt.Sprintf("%d of %d scenarios failed in %s", result.Stats.Failed, result.Stats.Total, formatDuration(result.Duration))
}
