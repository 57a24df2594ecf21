// SPDX-License-Identifier: MIT

// Package api serves the playlist and a small control surface in serve mode.
package api

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Oktay2617/daddylive/internal/api/middleware"
	"github.com/Oktay2617/daddylive/internal/jobs"
	xglog "github.com/Oktay2617/daddylive/internal/log"
	"github.com/Oktay2617/daddylive/internal/playlist"
)

// Controller is the daemon side of the API.
type Controller interface {
	// LastStatus returns the most recent finished run, if any.
	LastStatus() (*jobs.Status, bool)
	// Running reports whether a refresh is in progress.
	Running() bool
	// TriggerRefresh asks for a refresh. It returns false when one is
	// already running.
	TriggerRefresh() bool
}

// Options configures the server.
type Options struct {
	PlaylistPath     string
	Version          string
	RefreshRateLimit int
	TracingService   string
}

// Server holds the handlers.
type Server struct {
	ctl  Controller
	opts Options
}

// New creates a Server.
func New(ctl Controller, opts Options) *Server {
	return &Server{ctl: ctl, opts: opts}
}

// Handler returns the routed handler with the middleware stack applied.
func (s *Server) Handler() http.Handler {
	r := middleware.NewRouter(middleware.StackConfig{
		TracingService: s.opts.TracingService,
		EnableLogging:  true,
	})

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	playlistHandler := gzhttp.GzipHandler(http.HandlerFunc(s.handlePlaylist))
	r.Method(http.MethodGet, "/playlist.m3u", playlistHandler)
	r.Method(http.MethodGet, "/playlist.m3u8", playlistHandler)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.With(gzip).Get("/channels", s.handleChannels)
		r.With(middleware.RefreshRateLimit(s.opts.RefreshRateLimit)).Post("/refresh", s.handleRefresh)
	})
	return r
}

func gzip(next http.Handler) http.Handler { return gzhttp.GzipHandler(next) }

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": s.opts.Version})
}

func (s *Server) handlePlaylist(w http.ResponseWriter, r *http.Request) {
	f, err := os.Open(s.opts.PlaylistPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeError(w, http.StatusServiceUnavailable, "playlist_not_ready")
			return
		}
		logger := xglog.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).
			Str(xglog.FieldPlaylistPath, s.opts.PlaylistPath).Msg("open playlist")
		writeError(w, http.StatusInternalServerError, "playlist_unavailable")
		return
	}
	defer func() { _ = f.Close() }()

	modTime := time.Time{}
	if st, err := f.Stat(); err == nil {
		modTime = st.ModTime()
	}
	w.Header().Set("Content-Type", "audio/x-mpegurl; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, "playlist.m3u8", modTime, f)
}

type statusResponse struct {
	Running bool         `json:"running"`
	Last    *jobs.Status `json:"last,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{Running: s.ctl.Running()}
	if st, ok := s.ctl.LastStatus(); ok {
		resp.Last = st
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleChannels(w http.ResponseWriter, _ *http.Request) {
	data, err := os.ReadFile(s.opts.PlaylistPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeJSON(w, http.StatusOK, []playlist.Item{})
			return
		}
		writeError(w, http.StatusInternalServerError, "playlist_unavailable")
		return
	}
	items := playlist.Parse(string(data))
	if items == nil {
		items = []playlist.Item{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !s.ctl.TriggerRefresh() {
		writeError(w, http.StatusConflict, "refresh_in_progress")
		return
	}
	logger := xglog.WithComponentFromContext(r.Context(), "api")
	logger.Info().
		Str(xglog.FieldEvent, "refresh.triggered").Msg("refresh requested over HTTP")
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
