package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	thrum "github.com/threadbeat/thrum"
	"github.com/threadbeat/thrum/exitcodes"
	"github.com/threadbeat/thrum/flags"
	"github.com/threadbeat/thrum/service"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "thrum"
	app.Usage = "Deterministic Multithread Scenario Conductor"
	app.Description = "thrum conducts scripted multithread scenarios on a shared logical clock"
	app.Flags = flags.Flags

	// The servers outlive any single run; the healthz status source is
	// wired in once the scenario service exists.
	svc := service.New(nil)
	app.Action = func(c *cli.Context) error {
		return run(c, svc)
	}
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			// Use the exit code from the ExitCoder
			cli.HandleExitCoder(exitErr)
		} else if err != nil {
			// Check for typed runtime errors
			if thrum.IsRuntimeError(err) {
				// For runtime errors, use exit code 2
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.RuntimeErr))
			} else if thrum.IsTestFailureError(err) {
				// For scenario failures, use exit code 1
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.TestFailure))
			} else {
				// For other unspecified errors, default to exit code 1
				cli.HandleExitCoder(cli.Exit(err.Error(), 1))
			}
		}
	}

	// Start telemetry
	shutdown, err := otelconfig.ConfigureOpenTelemetry(
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		log.Crit("Failed to setup open telemetry", "message", err)
	}
	defer shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server
	svc.Start(ctx)
	defer svc.Shutdown()

	// Start CLI
	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func run(ctx *cli.Context, appSvc *service.Service) error {
	lvl, err := log.LvlFromString(ctx.String(flags.LogLevel.Name))
	if err != nil {
		return thrum.RuntimeErrorf("invalid log level: %w", err)
	}
	logger := log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stdout, log.FromLegacyLevel(lvl), true))
	log.SetDefault(logger)

	cfg, err := thrum.NewConfig(ctx, logger, ctx.String(flags.Scenarios.Name))
	if err != nil {
		// Wrap in RuntimeError to signal this should exit with code 2
		return thrum.RuntimeErrorf("failed to create config: %w", err)
	}

	cfg.Log.Debug("Config", "scenarioFile", cfg.ScenarioFile, "runOnce", cfg.RunOnce)

	shutdownErr := make(chan error, 1)
	svc, err := thrum.New(ctx.Context, cfg, Version, func(err error) {
		shutdownErr <- err
	})
	if err != nil {
		return thrum.RuntimeErrorf("failed to create thrum: %w", err)
	}
	appSvc.SetStatus(svc.Health)

	if err := svc.Start(ctx.Context); err != nil {
		return err
	}
	if cfg.RunOnce {
		return <-shutdownErr
	}

	// Continuous mode: wait for a signal or a shutdown request.
	select {
	case err := <-shutdownErr:
		_ = svc.Stop(context.Background())
		return err
	case <-ctx.Context.Done():
		if err := svc.Stop(context.Background()); err != nil {
			return thrum.NewRuntimeError(err)
		}
		return svc.WaitForShutdown(context.Background())
	}
}
