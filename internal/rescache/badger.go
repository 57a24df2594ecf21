// SPDX-License-Identifier: MIT

package rescache

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

const badgerPrefix = "stream:"

// BadgerStore keeps one key per channel under a fixed prefix.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens the database directory at path. An empty path opens an
// in-memory database.
func OpenBadger(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open %s: %w", path, err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Load(_ context.Context) (map[string]string, error) {
	entries := map[string]string{}
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(badgerPrefix), PrefetchValues: true, PrefetchSize: 64})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			entries[string(item.Key()[len(badgerPrefix):])] = string(val)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger: load: %w", err)
	}
	return entries, nil
}

func (s *BadgerStore) Save(_ context.Context, entries map[string]string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		var stale [][]byte
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(badgerPrefix)})
		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			if _, keep := entries[string(key[len(badgerPrefix):])]; !keep {
				stale = append(stale, key)
			}
		}
		it.Close()

		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		for id, u := range entries {
			if err := txn.Set([]byte(badgerPrefix+id), []byte(u)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("badger: save: %w", err)
	}
	return nil
}

func (s *BadgerStore) Close() error { return s.db.Close() }
