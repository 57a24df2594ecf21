// SPDX-License-Identifier: MIT

// Command daddylive resolves live channel stream URLs and writes an M3U
// playlist, either once or continuously in serve mode.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Oktay2617/daddylive/internal/config"
	"github.com/Oktay2617/daddylive/internal/daemon"
	"github.com/Oktay2617/daddylive/internal/jobs"
	xglog "github.com/Oktay2617/daddylive/internal/log"
	"github.com/Oktay2617/daddylive/internal/playlist"
	"github.com/Oktay2617/daddylive/internal/telemetry"
	"github.com/Oktay2617/daddylive/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("daddylive", flag.ContinueOnError)
	fs.SetOutput(stderr)
	showVersion := fs.Bool("version", false, "print version and exit")
	configPath := fs.String("config", "", "path to config file (YAML)")
	serve := fs.Bool("serve", false, "run as a daemon serving the playlist over HTTP")
	dryRun := fs.Bool("dry-run", false, "resolve and print the playlist without writing files")
	envFile := fs.String("env-file", ".env", "optional dotenv file loaded before the environment is read")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *showVersion {
		_, _ = fmt.Fprintln(stdout, version.String())
		return 0
	}

	// Safe defaults until the configuration is loaded.
	xglog.Configure(xglog.Config{Level: "info", Output: stderr, Service: "daddylive", Version: version.Version})
	logger := xglog.WithComponent("main")

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn().Err(err).Str("path", *envFile).Msg("could not load env file")
		}
	}

	loader := config.NewLoader(*configPath, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Error().Err(err).Str(xglog.FieldEvent, "config.invalid").Msg("failed to load configuration")
		return 1
	}
	xglog.Reconfigure(xglog.Config{Level: cfg.Log.Level, Output: stderr, Service: cfg.Log.Service, Version: version.Version})
	logger = xglog.WithComponent("main")

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Log.Service,
		ServiceVersion: version.Version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		logger.Error().Err(err).Str(xglog.FieldEvent, "telemetry.init_failed").Msg("failed to initialize tracing")
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("telemetry shutdown")
		}
	}()

	rt, err := jobs.NewRuntime(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Str(xglog.FieldEvent, "runtime.init_failed").Msg("failed to initialize")
		return 1
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warn().Err(err).Msg("close runtime")
		}
	}()

	if *serve {
		return serveMode(ctx, cfg, loader, rt)
	}
	return oneShot(ctx, cfg, rt, *dryRun, stdout)
}

func oneShot(ctx context.Context, cfg config.Config, rt *jobs.Runtime, dryRun bool, stdout io.Writer) int {
	logger := xglog.WithComponent("main")
	st, err := rt.Refresh(ctx, cfg, jobs.Options{DryRun: dryRun})
	if dryRun && st != nil {
		if werr := playlist.WriteM3U(stdout, st.Items); werr != nil {
			logger.Error().Err(werr).Msg("write playlist to stdout")
			return 1
		}
	}
	if err != nil {
		logger.Error().Err(err).Str(xglog.FieldEvent, "refresh.failed").Msg("refresh failed")
		return jobs.ExitCode(err)
	}
	return 0
}

func serveMode(ctx context.Context, cfg config.Config, loader *config.Loader, rt *jobs.Runtime) int {
	logger := xglog.WithComponent("main")
	app, err := daemon.NewApp(daemon.Options{
		Config:     cfg,
		ConfigPath: loader.Path(),
		Refresh: func(ctx context.Context, cfg config.Config) (*jobs.Status, error) {
			return rt.Refresh(ctx, cfg, jobs.Options{})
		},
		Reload: func() (config.Config, error) {
			next, err := loader.Load()
			if err != nil {
				return config.Config{}, err
			}
			rt.Source.Forget()
			return next, nil
		},
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to create daemon")
		return 1
	}
	if err := app.Run(ctx); err != nil {
		logger.Error().Err(err).Str(xglog.FieldEvent, "daemon.failed").Msg("daemon stopped with error")
		return 1
	}
	return 0
}
