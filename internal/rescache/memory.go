// SPDX-License-Identifier: MIT

package rescache

import (
	"context"
	"maps"
	"sync"
)

// MemoryStore keeps the mapping in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]string
	saves   int
}

func NewMemoryStore(seed map[string]string) *MemoryStore {
	return &MemoryStore{entries: maps.Clone(seed)}
}

func (s *MemoryStore) Load(context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := maps.Clone(s.entries)
	if out == nil {
		out = map[string]string{}
	}
	return out, nil
}

func (s *MemoryStore) Save(_ context.Context, entries map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = maps.Clone(entries)
	s.saves++
	return nil
}

// Saves counts successful Save calls.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *MemoryStore) Close() error { return nil }
