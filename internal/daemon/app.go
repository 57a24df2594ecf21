// SPDX-License-Identifier: MIT

// Package daemon runs the refresh loop and the HTTP server in serve mode.
package daemon

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Oktay2617/daddylive/internal/api"
	"github.com/Oktay2617/daddylive/internal/config"
	xglog "github.com/Oktay2617/daddylive/internal/log"
)

// ReloadFunc reads the configuration again after a file change.
type ReloadFunc func() (config.Config, error)

// Options configures an App.
type Options struct {
	Config     config.Config
	ConfigPath string
	Refresh    RefreshFunc
	// Reload is optional. Without it file changes re-run the refresh with the
	// current configuration.
	Reload ReloadFunc
	// Listener overrides Config.Server.Listen.
	Listener net.Listener
}

// App owns the serve mode lifecycle.
type App struct {
	opts      Options
	refresher *Refresher
}

// NewApp creates an App.
func NewApp(opts Options) (*App, error) {
	if opts.Refresh == nil {
		return nil, ErrMissingRefresh
	}
	if opts.Listener == nil && opts.Config.Server.Listen == "" {
		return nil, ErrMissingListen
	}
	return &App{opts: opts, refresher: NewRefresher(opts.Config, opts.Refresh)}, nil
}

// Refresher exposes the run controller.
func (a *App) Refresher() *Refresher { return a.refresher }

// Run starts the subsystems, requests an initial refresh and blocks until
// ctx is cancelled or the HTTP server fails.
func (a *App) Run(ctx context.Context) error {
	logger := xglog.WithComponent("daemon")
	cfg := a.opts.Config

	ln := a.opts.Listener
	if ln == nil {
		var err error
		ln, err = (&net.ListenConfig{}).Listen(ctx, "tcp", cfg.Server.Listen)
		if err != nil {
			return fmt.Errorf("listen %s: %w", cfg.Server.Listen, err)
		}
	}

	srv := api.New(a.refresher, api.Options{
		PlaylistPath:     cfg.Playlist.Path,
		Version:          cfg.Version,
		RefreshRateLimit: cfg.Server.RefreshRateLimit,
		TracingService:   tracingService(cfg),
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.refresher.Loop(ctx) })
	g.Go(func() error { return serveHTTP(ctx, ln, srv.Handler()) })

	if every := cfg.Server.RefreshInterval; every > 0 {
		g.Go(func() error {
			a.tick(ctx, every)
			return nil
		})
	}

	if cfg.Server.Watch {
		w := config.NewWatcher(a.watchedFiles(), config.DefaultDebounce, a.onFileChange)
		g.Go(func() error {
			if err := w.Run(ctx); err != nil {
				// The daemon keeps serving without hot reload.
				logger.Warn().Err(err).Str(xglog.FieldEvent, "config.watcher_start_failed").Msg("file watcher unavailable")
			}
			return nil
		})
	}

	a.refresher.Request()
	logger.Info().
		Str("listen", ln.Addr().String()).
		Dur("refresh_interval", cfg.Server.RefreshInterval).
		Bool("watch", cfg.Server.Watch).
		Str(xglog.FieldEvent, "daemon.started").
		Msg("daemon started")

	err := g.Wait()
	logger.Info().Str(xglog.FieldEvent, "daemon.stopped").Msg("daemon stopped")
	return err
}

func (a *App) tick(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.refresher.Request()
		}
	}
}

func (a *App) watchedFiles() []string {
	return []string{a.opts.ConfigPath, a.opts.Config.Catalog.ChannelsFile}
}

func (a *App) onFileChange() {
	logger := xglog.WithComponent("daemon")
	if a.opts.Reload != nil {
		cfg, err := a.opts.Reload()
		if err != nil {
			logger.Warn().Err(err).Str(xglog.FieldEvent, "config.reload_failed").Msg("keeping previous configuration")
			return
		}
		a.refresher.SetConfig(cfg)
	}
	logger.Info().Str(xglog.FieldEvent, "config.changed").Msg("input files changed, refreshing")
	a.refresher.Request()
}

func tracingService(cfg config.Config) string {
	if !cfg.Telemetry.Enabled {
		return ""
	}
	return "daddylive"
}
