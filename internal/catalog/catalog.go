// SPDX-License-Identifier: MIT

// Package catalog acquires the channel list and logo tree and selects the
// channels a run should resolve.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Oktay2617/daddylive/internal/fetcher"
)

// ErrPayload is returned when a downloaded document has an unexpected shape.
var ErrPayload = errors.New("unexpected payload")

// ChannelRef identifies one logical channel. Identity is ID.
type ChannelRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Fetcher is the subset of *fetcher.Client the catalog needs.
type Fetcher interface {
	Fetch(ctx context.Context, url, referer string) (*fetcher.Page, error)
}

// channelID accepts both "51" and 51.
type channelID string

func (c *channelID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*c = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = channelID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("channel_id: %w", err)
	}
	if i, err := n.Int64(); err == nil {
		*c = channelID(strconv.FormatInt(i, 10))
		return nil
	}
	*c = channelID(n.String())
	return nil
}

type channelEntry struct {
	Name *string   `json:"channel_name"`
	ID   channelID `json:"channel_id"`
}

// ParseChannels decodes the channel list document. Entries missing a name or
// id are skipped and duplicate ids keep their first occurrence.
func ParseChannels(body []byte) ([]ChannelRef, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: channel list is not a JSON array: %w", ErrPayload, err)
	}

	out := make([]ChannelRef, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, msg := range raw {
		var e channelEntry
		if err := json.Unmarshal(msg, &e); err != nil {
			continue
		}
		if e.Name == nil || e.ID == "" {
			continue
		}
		name := strings.TrimSpace(*e.Name)
		if name == "" {
			continue
		}
		id := string(e.ID)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, ChannelRef{ID: id, Name: name})
	}
	return out, nil
}

// FetchChannels downloads and parses the channel list. A response classified
// as blocked is still parsed; the fetch error is returned only when its body
// is not a usable list.
func FetchChannels(ctx context.Context, f Fetcher, url string) ([]ChannelRef, error) {
	body, fetchErr := fetchBody(ctx, f, url)
	if body == "" && fetchErr != nil {
		return nil, fmt.Errorf("fetch channel list: %w", fetchErr)
	}
	channels, err := ParseChannels([]byte(body))
	if err != nil {
		if fetchErr != nil {
			return nil, fmt.Errorf("fetch channel list: %w", fetchErr)
		}
		return nil, err
	}
	return channels, nil
}

// fetchBody returns whatever body is available along with the fetch error.
func fetchBody(ctx context.Context, f Fetcher, url string) (string, error) {
	page, err := f.Fetch(ctx, url, "")
	if err != nil {
		if p, ok := fetcher.PageFromError(err); ok && errors.Is(err, fetcher.ErrBlocked) {
			return p.Body, err
		}
		return "", err
	}
	if page.Status >= 400 {
		return page.Body, fmt.Errorf("%s: unexpected status %d", url, page.Status)
	}
	return page.Body, nil
}
