// SPDX-License-Identifier: MIT

// Package playlist writes and reads extended M3U playlists.
package playlist

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Oktay2617/daddylive/internal/fsutil"
)

// Item is one playlist entry.
type Item struct {
	TvgID   string `json:"tvg_id"`
	Name    string `json:"name"`
	TvgLogo string `json:"logo,omitempty"`
	Group   string `json:"group,omitempty"`
	URL     string `json:"url"`
}

var attrReplacer = strings.NewReplacer(`"`, "'", "\n", " ", "\r", " ")

var nameReplacer = strings.NewReplacer("\n", " ", "\r", " ")

// WriteM3U writes the #EXTM3U header and one #EXTINF entry per item,
// each followed by its URL and a blank line.
func WriteM3U(w io.Writer, items []Item) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString("#EXTM3U\n"); err != nil {
		return err
	}
	for _, it := range items {
		name := strings.TrimSpace(nameReplacer.Replace(it.Name))
		if _, err := fmt.Fprintf(bw,
			`#EXTINF:-1 tvg-id="%s" tvg-name="%s" tvg-logo="%s" group-title="%s", %s`+"\n%s\n\n",
			attrReplacer.Replace(it.TvgID),
			attrReplacer.Replace(it.Name),
			attrReplacer.Replace(it.TvgLogo),
			attrReplacer.Replace(it.Group),
			name,
			strings.TrimSpace(it.URL),
		); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteFile atomically replaces path with the playlist.
func WriteFile(ctx context.Context, path string, items []Item) error {
	return fsutil.WriteAtomic(ctx, path, func(w io.Writer) error {
		return WriteM3U(w, items)
	})
}
