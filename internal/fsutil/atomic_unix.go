// SPDX-License-Identifier: MIT

//go:build !windows

package fsutil

import (
	"context"
	"fmt"

	"github.com/google/renameio/v2"

	xglog "github.com/Oktay2617/daddylive/internal/log"
)

// WriteAtomic replaces path with the output of write. The content is fsynced
// before the rename, so a crash leaves either the old or the new file.
func WriteAtomic(ctx context.Context, path string, write WriteFunc) error {
	logger := xglog.FromContext(ctx)

	if err := EnsureDir(path); err != nil {
		return err
	}
	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create pending file: %w", err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			logger.Debug().Err(err).Str(xglog.FieldPath, path).Msg("cleanup pending file")
		}
	}()

	if err := write(pending); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace %s: %w", path, err)
	}
	return nil
}
