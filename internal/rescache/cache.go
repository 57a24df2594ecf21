// SPDX-License-Identifier: MIT

// Package rescache keeps the channel id to manifest URL mapping between runs.
//
// A Cache is loaded once per run, read before any network activity and
// written only by the scheduler's aggregation goroutine. It has no internal
// locking.
package rescache

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"

	xglog "github.com/Oktay2617/daddylive/internal/log"
	"github.com/Oktay2617/daddylive/internal/metrics"
)

// ErrCorrupt is returned by stores whose persisted data cannot be decoded.
var ErrCorrupt = errors.New("cache data is corrupt")

// Store persists the whole mapping.
type Store interface {
	// Load returns the persisted mapping. A store that was never written
	// returns an empty mapping and no error.
	Load(ctx context.Context) (map[string]string, error)
	// Save replaces the persisted mapping atomically.
	Save(ctx context.Context, entries map[string]string) error
	Close() error
}

// Cache is the in-memory view of a Store for one run.
type Cache struct {
	store   Store
	entries map[string]string
	dirty   bool
}

// Load reads the store once. A missing or unreadable store yields an empty
// cache and a warning; it never fails the run.
func Load(ctx context.Context, store Store) *Cache {
	c := &Cache{store: store, entries: make(map[string]string)}
	logger := xglog.WithComponentFromContext(ctx, "rescache")

	entries, err := store.Load(ctx)
	if err != nil {
		logger.Warn().Err(err).
			Bool("corrupt", errors.Is(err, ErrCorrupt)).
			Str(xglog.FieldEvent, "cache.load_failed").
			Msg("starting with an empty resolution cache")
		metrics.RecordCacheEntries(0)
		return c
	}
	for id, u := range entries {
		if id != "" && u != "" {
			c.entries[id] = u
		}
	}
	logger.Debug().Int("entries", len(c.entries)).Str(xglog.FieldEvent, "cache.loaded").Msg("resolution cache loaded")
	metrics.RecordCacheEntries(len(c.entries))
	return c
}

// New returns an empty cache backed by store, without reading it.
func New(store Store) *Cache {
	return &Cache{store: store, entries: make(map[string]string)}
}

// Get returns the cached manifest URL for id.
func (c *Cache) Get(id string) (string, bool) {
	u, ok := c.entries[id]
	return u, ok
}

// Put records a manifest URL. Empty values are ignored.
func (c *Cache) Put(id, manifestURL string) {
	if id == "" || manifestURL == "" {
		return
	}
	if c.entries[id] == manifestURL {
		return
	}
	c.entries[id] = manifestURL
	c.dirty = true
}

// Invalidate drops the entry for id. It reports whether one existed.
func (c *Cache) Invalidate(id string) bool {
	if _, ok := c.entries[id]; !ok {
		return false
	}
	delete(c.entries, id)
	c.dirty = true
	return true
}

// Len returns the number of entries.
func (c *Cache) Len() int { return len(c.entries) }

// IDs returns the cached channel ids, sorted.
func (c *Cache) IDs() []string {
	ids := make([]string, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Snapshot returns a copy of the mapping.
func (c *Cache) Snapshot() map[string]string {
	return maps.Clone(c.entries)
}

// Persist writes the full mapping through the store.
func (c *Cache) Persist(ctx context.Context) error {
	if err := c.store.Save(ctx, c.Snapshot()); err != nil {
		return fmt.Errorf("persist resolution cache: %w", err)
	}
	c.dirty = false
	metrics.RecordCacheEntries(len(c.entries))
	logger := xglog.WithComponentFromContext(ctx, "rescache")
	logger.Debug().
		Int("entries", len(c.entries)).
		Str(xglog.FieldEvent, "cache.persisted").
		Msg("resolution cache persisted")
	return nil
}

// Dirty reports whether the mapping changed since the last load or persist.
func (c *Cache) Dirty() bool { return c.dirty }
