// SPDX-License-Identifier: MIT

package catalog

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Oktay2617/daddylive/internal/config"
	"github.com/Oktay2617/daddylive/internal/fetcher"
)

type stubFetcher struct {
	page  *fetcher.Page
	err   error
	calls atomic.Int32
}

func (s *stubFetcher) Fetch(_ context.Context, url, _ string) (*fetcher.Page, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	p := *s.page
	p.URL = url
	return &p, nil
}

func okPage(body string) *stubFetcher {
	return &stubFetcher{page: &fetcher.Page{Status: 200, Body: body}}
}

func TestParseChannels(t *testing.T) {
	body := `[
		{"channel_name": "ESPN", "channel_id": "44"},
		{"channel_name": "TNT Sports", "channel_id": 51},
		{"channel_name": "No Id"},
		{"channel_id": "77"},
		{"channel_name": "  ", "channel_id": "78"},
		{"channel_name": "ESPN Duplicate", "channel_id": 44},
		"garbage",
		{"channel_name": "Float", "channel_id": 12.5}
	]`

	got, err := ParseChannels([]byte(body))
	require.NoError(t, err)

	want := []ChannelRef{
		{ID: "44", Name: "ESPN"},
		{ID: "51", Name: "TNT Sports"},
		{ID: "12.5", Name: "Float"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("channels mismatch (-want +got):\n%s", diff)
	}
}

func TestParseChannels_NotAList(t *testing.T) {
	_, err := ParseChannels([]byte(`{"channels": []}`))
	assert.ErrorIs(t, err, ErrPayload)
}

func TestFetchChannels(t *testing.T) {
	f := okPage(`[{"channel_name": "ESPN", "channel_id": "44"}]`)
	got, err := FetchChannels(context.Background(), f, "https://list.example/daddy.json")
	require.NoError(t, err)
	assert.Equal(t, []ChannelRef{{ID: "44", Name: "ESPN"}}, got)
}

func TestFetchChannels_BlockedButParsable(t *testing.T) {
	f := &stubFetcher{err: &fetcher.FetchError{
		Sentinel: fetcher.ErrBlocked,
		Page:     &fetcher.Page{Status: 200, Body: `[{"channel_name": "ESPN", "channel_id": "44"}]`},
	}}
	got, err := FetchChannels(context.Background(), f, "https://list.example/daddy.json")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestFetchChannels_BlockedAndUnusable(t *testing.T) {
	f := &stubFetcher{err: &fetcher.FetchError{
		Sentinel: fetcher.ErrBlocked,
		Page:     &fetcher.Page{Status: 403, Body: `Just a moment...`},
	}}
	_, err := FetchChannels(context.Background(), f, "https://list.example/daddy.json")
	assert.ErrorIs(t, err, fetcher.ErrBlocked)
}

func TestFetchChannels_NetworkFailure(t *testing.T) {
	f := &stubFetcher{err: &fetcher.FetchError{Sentinel: fetcher.ErrExhausted, Err: errors.New("refused")}}
	_, err := FetchChannels(context.Background(), f, "https://list.example/daddy.json")
	assert.ErrorIs(t, err, fetcher.ErrExhausted)
}

func TestFetchChannels_ErrorStatus(t *testing.T) {
	f := &stubFetcher{page: &fetcher.Page{Status: 404, Body: "not found"}}
	_, err := FetchChannels(context.Background(), f, "https://list.example/daddy.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestSourceMemoizes(t *testing.T) {
	f := okPage(`[{"channel_name": "ESPN", "channel_id": "44"}]`)
	src := NewSource(f, config.CatalogConfig{ChannelsURL: "https://list.example/daddy.json", TTL: 0})

	_, err := src.Channels(context.Background())
	require.NoError(t, err)
	_, err = src.Channels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.calls.Load(), "no memo without a ttl")

	f = okPage(`[{"channel_name": "ESPN", "channel_id": "44"}]`)
	src = NewSource(f, config.CatalogConfig{ChannelsURL: "https://list.example/daddy.json", TTL: time.Minute})
	for i := 0; i < 3; i++ {
		got, err := src.Channels(context.Background())
		require.NoError(t, err)
		assert.Len(t, got, 1)
	}
	assert.Equal(t, int32(1), f.calls.Load())

	src.Forget()
	_, err = src.Channels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestSourceDoesNotMemoizeFailures(t *testing.T) {
	f := &stubFetcher{err: &fetcher.FetchError{Sentinel: fetcher.ErrExhausted}}
	src := NewSource(f, config.CatalogConfig{LogosURL: "https://git.example/tree", TTL: time.Minute})

	_, err := src.LogoTree(context.Background())
	require.Error(t, err)
	_, err = src.LogoTree(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(2), f.calls.Load())
}
