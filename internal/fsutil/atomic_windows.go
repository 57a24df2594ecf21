// SPDX-License-Identifier: MIT

//go:build windows

package fsutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	xglog "github.com/Oktay2617/daddylive/internal/log"
)

// WriteAtomic replaces path with the output of write using a temp file in
// the same directory and a rename.
func WriteAtomic(ctx context.Context, path string, write WriteFunc) error {
	logger := xglog.FromContext(ctx)

	if err := EnsureDir(path); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".daddylive-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmp != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if err := write(tmp); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	tmp = nil

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	logger.Debug().Str(xglog.FieldPath, path).Msg("wrote file")
	return nil
}
