// SPDX-License-Identifier: MIT

package playlist

import (
	"strings"
)

// Parse reads entries back from M3U content. Entries without a URL line are
// dropped.
func Parse(content string) []Item {
	var (
		items   []Item
		current Item
		pending bool
	)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "#EXTINF:"):
			current = Item{
				TvgID:   attrValue(line, "tvg-id"),
				TvgLogo: attrValue(line, "tvg-logo"),
				Group:   attrValue(line, "group-title"),
			}
			if idx := strings.LastIndex(line, ","); idx != -1 {
				current.Name = strings.TrimSpace(line[idx+1:])
			}
			if current.Name == "" {
				current.Name = attrValue(line, "tvg-name")
			}
			pending = true
		case line == "" || strings.HasPrefix(line, "#"):
		default:
			if pending {
				current.URL = line
				items = append(items, current)
				pending = false
			}
		}
	}
	return items
}

func attrValue(line, key string) string {
	prefix := " " + key + `="`
	idx := strings.Index(line, prefix)
	if idx == -1 {
		return ""
	}
	rest := line[idx+len(prefix):]
	if end := strings.Index(rest, `"`); end != -1 {
		return rest[:end]
	}
	return ""
}
