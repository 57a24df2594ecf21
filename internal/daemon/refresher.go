// SPDX-License-Identifier: MIT

package daemon

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/Oktay2617/daddylive/internal/config"
	"github.com/Oktay2617/daddylive/internal/jobs"
	xglog "github.com/Oktay2617/daddylive/internal/log"
)

// RefreshFunc runs one refresh against cfg.
type RefreshFunc func(ctx context.Context, cfg config.Config) (*jobs.Status, error)

// Refresher serializes refresh runs. Requests that arrive while a run is in
// progress collapse into a single follow-up run.
type Refresher struct {
	run     RefreshFunc
	cfg     atomic.Pointer[config.Config]
	pending chan struct{}
	running atomic.Bool
	last    atomic.Pointer[jobs.Status]
	runs    atomic.Int64
}

// NewRefresher creates a Refresher for cfg.
func NewRefresher(cfg config.Config, run RefreshFunc) *Refresher {
	r := &Refresher{run: run, pending: make(chan struct{}, 1)}
	r.cfg.Store(&cfg)
	return r
}

// Request schedules a run. It never blocks.
func (r *Refresher) Request() {
	select {
	case r.pending <- struct{}{}:
	default:
	}
}

// TriggerRefresh schedules a run unless one is already in progress.
func (r *Refresher) TriggerRefresh() bool {
	if r.running.Load() {
		return false
	}
	r.Request()
	return true
}

// Running reports whether a run is in progress.
func (r *Refresher) Running() bool { return r.running.Load() }

// LastStatus returns the status of the most recent finished run.
func (r *Refresher) LastStatus() (*jobs.Status, bool) {
	st := r.last.Load()
	return st, st != nil
}

// Runs returns the number of finished runs.
func (r *Refresher) Runs() int64 { return r.runs.Load() }

// Config returns the configuration used for the next run.
func (r *Refresher) Config() config.Config { return *r.cfg.Load() }

// SetConfig replaces the configuration used for subsequent runs.
func (r *Refresher) SetConfig(cfg config.Config) { r.cfg.Store(&cfg) }

// Loop executes requested runs until ctx is cancelled.
func (r *Refresher) Loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.pending:
			r.runOnce(ctx)
		}
	}
}

func (r *Refresher) runOnce(ctx context.Context) {
	r.running.Store(true)
	defer r.running.Store(false)

	logger := xglog.WithComponentFromContext(ctx, "daemon")
	started := time.Now()
	st, err := r.run(ctx, r.Config())
	if ctx.Err() != nil {
		return
	}
	if st == nil {
		st = &jobs.Status{StartedAt: started, Duration: time.Since(started)}
	}
	if err != nil {
		st.Error = err.Error()
		logger.Error().Err(err).Str(xglog.FieldEvent, "daemon.refresh_failed").Msg("refresh failed")
	}
	r.last.Store(st)
	r.runs.Add(1)
}
