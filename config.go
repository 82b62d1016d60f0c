package thrum

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/threadbeat/thrum/flags"
)

// Config holds the application configuration
type Config struct {
	ScenarioFile   string
	TargetScenario string        // Run only the named scenario when set
	RunInterval    time.Duration // Interval between scenario runs
	RunOnce        bool          // Indicates if the service should exit after one run
	DefaultTimeout time.Duration // Default conduct timeout, can be overridden per scenario
	LogDir         string        // Directory to store run artifacts; empty disables them
	Serial         bool          // Whether to run scenarios serially instead of in parallel
	Concurrency    int           // Number of concurrent scenario workers (0 = auto-determine)
	Log            log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger, scenarioFile string) (*Config, error) {
	// Parse flags
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}
	if scenarioFile == "" {
		return nil, errors.New("scenario file is required")
	}

	absScenarioFile, err := filepath.Abs(scenarioFile)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for scenario file '%s': %w", scenarioFile, err)
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)
	runOnce := runInterval == 0

	logDir := ctx.String(flags.LogDir.Name)
	if logDir != "" {
		logDir, err = filepath.Abs(logDir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for log directory '%s': %w", logDir, err)
		}
	}

	defaultTimeout := ctx.Duration(flags.DefaultTimeout.Name)
	if defaultTimeout < 0 {
		return nil, fmt.Errorf("default timeout must be non-negative, got %s", defaultTimeout)
	}

	concurrency := ctx.Int(flags.Concurrency.Name)
	if concurrency < 0 {
		return nil, fmt.Errorf("concurrency must be non-negative, got %d", concurrency)
	}

	return &Config{
		ScenarioFile:   absScenarioFile,
		TargetScenario: ctx.String(flags.Scenario.Name),
		RunInterval:    runInterval,
		RunOnce:        runOnce,
		DefaultTimeout: defaultTimeout,
		LogDir:         logDir,
		Serial:         ctx.Bool(flags.Serial.Name),
		Concurrency:    concurrency,
		Log:            log,
	}, nil
}
