// SPDX-License-Identifier: MIT

package api

import (
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Oktay2617/daddylive/internal/jobs"
	"github.com/Oktay2617/daddylive/internal/playlist"
)

type fakeController struct {
	last     *jobs.Status
	running  atomic.Bool
	triggers atomic.Int32
}

func (f *fakeController) LastStatus() (*jobs.Status, bool) { return f.last, f.last != nil }
func (f *fakeController) Running() bool                    { return f.running.Load() }
func (f *fakeController) TriggerRefresh() bool {
	if f.running.Load() {
		return false
	}
	f.triggers.Add(1)
	return true
}

func newTestServer(t *testing.T, ctl Controller, path string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(New(ctl, Options{PlaylistPath: path, Version: "test", RefreshRateLimit: 2}).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func writePlaylist(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.m3u8")
	require.NoError(t, playlist.WriteFile(t.Context(), path, []playlist.Item{
		{TvgID: "51", Name: "ESPN", Group: "USA", URL: "https://cdn.example/51/index.m3u8"},
		{TvgID: "70", Name: "A&E USA", Group: "USA", URL: "https://cdn.example/70/index.m3u8"},
	}))
	return path
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, &fakeController{}, "")
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "test", body["version"])
}

func TestPlaylistNotReady(t *testing.T) {
	srv := newTestServer(t, &fakeController{}, filepath.Join(t.TempDir(), "missing.m3u8"))
	resp, err := http.Get(srv.URL + "/playlist.m3u")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestPlaylistServed(t *testing.T) {
	path := writePlaylist(t)
	want, err := os.ReadFile(path)
	require.NoError(t, err)
	srv := newTestServer(t, &fakeController{}, path)

	for _, route := range []string{"/playlist.m3u", "/playlist.m3u8"} {
		t.Run(route, func(t *testing.T) {
			resp, err := http.Get(srv.URL + route)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Contains(t, resp.Header.Get("Content-Type"), "audio/x-mpegurl")
			got, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, string(want), string(got))
		})
	}
}

func TestPlaylistGzip(t *testing.T) {
	path := writePlaylist(t)
	srv := newTestServer(t, &fakeController{}, path)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/playlist.m3u", nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Encoding", "gzip")
	tr := &http.Transport{DisableCompression: true}
	defer tr.CloseIdleConnections()
	resp, err := (&http.Client{Transport: tr}).Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))
	zr, err := gzip.NewReader(resp.Body)
	require.NoError(t, err)
	got, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Contains(t, string(got), "#EXTM3U")
}

func TestStatus(t *testing.T) {
	ctl := &fakeController{last: &jobs.Status{RunID: "run-1", StartedAt: time.Unix(0, 0).UTC(), Summary: jobs.Summary{Direct: 2}}}
	ctl.running.Store(true)
	srv := newTestServer(t, ctl, "")

	resp, err := http.Get(srv.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Running bool         `json:"running"`
		Last    *jobs.Status `json:"last"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Running)
	require.NotNil(t, body.Last)
	assert.Equal(t, "run-1", body.Last.RunID)
	assert.Equal(t, 2, body.Last.Summary.Direct)
}

func TestChannels(t *testing.T) {
	srv := newTestServer(t, &fakeController{}, writePlaylist(t))
	resp, err := http.Get(srv.URL + "/api/channels")
	require.NoError(t, err)
	defer resp.Body.Close()

	var items []playlist.Item
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&items))
	require.Len(t, items, 2)
	assert.Equal(t, "A&E USA", items[1].Name)
}

func TestChannelsWithoutPlaylist(t *testing.T) {
	srv := newTestServer(t, &fakeController{}, filepath.Join(t.TempDir(), "none.m3u8"))
	resp, err := http.Get(srv.URL + "/api/channels")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, "[]", string(body))
}

func TestRefresh(t *testing.T) {
	ctl := &fakeController{}
	srv := newTestServer(t, ctl, "")

	resp, err := http.Post(srv.URL+"/api/refresh", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, int32(1), ctl.triggers.Load())

	ctl.running.Store(true)
	resp, err = http.Post(srv.URL+"/api/refresh", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/refresh", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode, "limit of 2 per minute")
}

func TestMetricsExposed(t *testing.T) {
	srv := newTestServer(t, &fakeController{}, "")
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
