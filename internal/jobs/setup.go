// SPDX-License-Identifier: MIT

package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/Oktay2617/daddylive/internal/catalog"
	"github.com/Oktay2617/daddylive/internal/config"
	"github.com/Oktay2617/daddylive/internal/fetcher"
	"github.com/Oktay2617/daddylive/internal/rescache"
	"github.com/Oktay2617/daddylive/internal/resolver"
)

// Runtime owns the long-lived collaborators built from a configuration.
type Runtime struct {
	Deps
	Source *catalog.Source
	client *fetcher.Client
}

// NewRuntime wires the fetcher, resolver, catalog source and cache store.
func NewRuntime(ctx context.Context, cfg config.Config) (*Runtime, error) {
	client := fetcher.New(fetcher.OptionsFromConfig(cfg.Fetch))

	res, err := resolver.New(client, resolver.OptionsFromConfig(cfg))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("resolver: %w", err)
	}
	store, err := rescache.Open(ctx, cfg.Cache)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("cache store: %w", err)
	}

	source := catalog.NewSource(client, cfg.Catalog)
	return &Runtime{
		Deps: Deps{
			Catalog:  source,
			Resolver: res,
			Store:    store,
		},
		Source: source,
		client: client,
	}, nil
}

// Close releases the cache store and idle connections.
func (r *Runtime) Close() error {
	r.client.Close()
	if r.Store != nil {
		return r.Store.Close()
	}
	return nil
}

// Refresh runs one refresh with the runtime's collaborators.
func (r *Runtime) Refresh(ctx context.Context, cfg config.Config, opts Options) (*Status, error) {
	return Run(ctx, cfg, r.Deps, opts)
}

// ExitCode maps a run error to a process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrNoChannels):
		return 3
	case errors.Is(err, ErrCatalogUnavailable):
		return 2
	default:
		return 1
	}
}
