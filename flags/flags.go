package flags

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"
)

const EnvVarPrefix = "THRUM"

// prefixEnvVar builds the env-var names for a flag.
func prefixEnvVar(names ...string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, EnvVarPrefix+"_"+strings.ToUpper(n))
	}
	return out
}

var (
	Scenarios = &cli.StringFlag{
		Name:     "scenarios",
		Value:    "",
		Required: true,
		EnvVars:  prefixEnvVar("SCENARIOS"),
		Usage:    "Path to scenario config file (eg. 'scenarios.yaml')",
	}
	Scenario = &cli.StringFlag{
		Name:    "scenario",
		Value:   "",
		EnvVars: prefixEnvVar("SCENARIO"),
		Usage:   "Run only the named scenario",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: prefixEnvVar("RUN_INTERVAL"),
		Usage:   "Interval between scenario runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	DefaultTimeout = &cli.DurationFlag{
		Name:    "default-timeout",
		Value:   0,
		EnvVars: prefixEnvVar("DEFAULT_TIMEOUT"),
		Usage:   "Default conduct timeout for scenarios that do not declare one",
	}
	LogDir = &cli.StringFlag{
		Name:    "logdir",
		Value:   "",
		EnvVars: prefixEnvVar("LOGDIR"),
		Usage:   "Directory to store run artifacts (traces, summaries). Empty disables them.",
	}
	Serial = &cli.BoolFlag{
		Name:    "serial",
		Value:   false,
		EnvVars: prefixEnvVar("SERIAL"),
		Usage:   "Run scenarios serially instead of in parallel",
	}
	Concurrency = &cli.IntFlag{
		Name:    "concurrency",
		Value:   0,
		EnvVars: prefixEnvVar("CONCURRENCY"),
		Usage:   "Number of concurrent scenario workers (0 = auto-determine)",
	}
	LogLevel = &cli.StringFlag{
		Name:    "log-level",
		Value:   "info",
		EnvVars: prefixEnvVar("LOG_LEVEL"),
		Usage:   "Log level (trace, debug, info, warn, error, crit)",
	}
)

var requiredFlags = []cli.Flag{
	Scenarios,
}

var optionalFlags = []cli.Flag{
	Scenario,
	RunInterval,
	DefaultTimeout,
	LogDir,
	Serial,
	Concurrency,
	LogLevel,
}

var Flags []cli.Flag

func init() {
	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return nil
}
