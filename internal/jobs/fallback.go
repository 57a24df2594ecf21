// SPDX-License-Identifier: MIT

package jobs

import (
	"fmt"
	"net/url"

	"github.com/Oktay2617/daddylive/internal/resolver"
)

// FallbackURL builds the deterministic URL used when resolution is exhausted.
func FallbackURL(siteRoot, tmpl, id string) (string, error) {
	root, err := url.Parse(siteRoot)
	if err != nil {
		return "", fmt.Errorf("site root: %w", err)
	}
	return resolver.ExpandTemplate(root, tmpl, id)
}

// applyFallback marks an exhausted result with the fallback URL.
func applyFallback(res *resolver.Result, siteRoot, tmpl string) error {
	if res.Resolved() {
		return nil
	}
	u, err := FallbackURL(siteRoot, tmpl, res.ChannelID)
	if err != nil {
		return err
	}
	res.FallbackURL = u
	res.Via = resolver.Fallback()
	return nil
}
