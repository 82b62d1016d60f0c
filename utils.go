package thrum

import (
	"fmt"
	"time"

	"github.com/threadbeat/thrum/types"
)

// getResultString returns a short string representing a scenario result
func getResultString(status types.Status) string {
	switch status {
	case types.StatusPass:
		return "✓ pass"
	case types.StatusSkip:
		return "- skip"
	case types.StatusError:
		return "! error"
	default:
		return "✗ fail"
	}
}

// formatDuration rounds a duration for table display
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%v", d.Round(time.Millisecond))
}
