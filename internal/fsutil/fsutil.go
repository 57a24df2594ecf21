// SPDX-License-Identifier: MIT

// Package fsutil writes files so that readers never observe partial content.
package fsutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteFunc streams the file content.
type WriteFunc func(w io.Writer) error

// EnsureDir creates the parent directory of path.
func EnsureDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	return nil
}
