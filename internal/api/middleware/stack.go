// SPDX-License-Identifier: MIT

// Package middleware holds the HTTP middleware of the serve mode API.
package middleware

import (
	"github.com/go-chi/chi/v5"
)

// StackConfig selects the optional parts of the middleware stack.
type StackConfig struct {
	TracingService string // empty disables tracing
	EnableLogging  bool
}

// NewRouter returns a chi router with the middleware stack applied.
func NewRouter(cfg StackConfig) *chi.Mux {
	r := chi.NewRouter()
	r.Use(Recoverer)
	r.Use(RequestID)
	if cfg.TracingService != "" {
		r.Use(OTelHTTP(cfg.TracingService))
	}
	if cfg.EnableLogging {
		r.Use(AccessLog)
	}
	return r
}
