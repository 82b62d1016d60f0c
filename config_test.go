package thrum

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/threadbeat/thrum/flags"
)

// parseConfig runs NewConfig through a real cli.App so flag parsing and
// defaults behave as they do in production.
func parseConfig(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	var cfg *Config
	var cfgErr error
	app := &cli.App{
		Flags: flags.Flags,
		Action: func(ctx *cli.Context) error {
			cfg, cfgErr = NewConfig(ctx, log.NewLogger(log.DiscardHandler()), ctx.String(flags.Scenarios.Name))
			return nil
		},
	}
	require.NoError(t, app.Run(append([]string{"thrum"}, args...)))
	return cfg, cfgErr
}

func TestNewConfigDefaults(t *testing.T) {
	cfg, err := parseConfig(t, "--scenarios", "scenarios.yaml")
	require.NoError(t, err)

	assert.True(t, filepath.IsAbs(cfg.ScenarioFile))
	assert.True(t, cfg.RunOnce, "no interval means run-once mode")
	assert.Zero(t, cfg.RunInterval)
	assert.Empty(t, cfg.TargetScenario)
	assert.Empty(t, cfg.LogDir)
	assert.False(t, cfg.Serial)
	assert.Zero(t, cfg.Concurrency)
}

func TestNewConfigContinuousMode(t *testing.T) {
	cfg, err := parseConfig(t, "--scenarios", "scenarios.yaml", "--run-interval", "30m")
	require.NoError(t, err)

	assert.False(t, cfg.RunOnce)
	assert.Equal(t, 30*time.Minute, cfg.RunInterval)
}

func TestNewConfigAllFlags(t *testing.T) {
	cfg, err := parseConfig(t,
		"--scenarios", "scenarios.yaml",
		"--scenario", "ordering",
		"--default-timeout", "5s",
		"--logdir", "artifacts",
		"--serial",
		"--concurrency", "2",
	)
	require.NoError(t, err)

	assert.Equal(t, "ordering", cfg.TargetScenario)
	assert.Equal(t, 5*time.Second, cfg.DefaultTimeout)
	assert.True(t, filepath.IsAbs(cfg.LogDir))
	assert.True(t, cfg.Serial)
	assert.Equal(t, 2, cfg.Concurrency)
}

func TestNewConfigValidation(t *testing.T) {
	_, err := parseConfig(t, "--scenarios", "scenarios.yaml", "--concurrency", "-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "concurrency must be non-negative")
}
