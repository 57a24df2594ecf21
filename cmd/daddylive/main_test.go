// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Oktay2617/daddylive/internal/version"
)

func TestRunVersion(t *testing.T) {
	var out bytes.Buffer
	code := run(context.Background(), []string{"-version"}, &out, &bytes.Buffer{})
	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), version.Version)
}

func TestRunBadFlag(t *testing.T) {
	assert.Equal(t, 2, run(context.Background(), []string{"-nope"}, &bytes.Buffer{}, &bytes.Buffer{}))
}

func TestRunInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("resolve:\n  hopLimits: 2\n"), 0o600))
	var stderr bytes.Buffer
	code := run(context.Background(), []string{"-config", path, "-env-file", ""}, &bytes.Buffer{}, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "config.invalid")
}

func TestRunDryRunPrintsPlaylist(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/daddy.json", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, `[{"id":"51","name":"ESPN USA"}]`)
	})
	mux.HandleFunc("/tree", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, `<script data-target="react-app.embeddedData">{"payload": {"tree": {"items": []}}}</script>`)
	})
	mux.HandleFunc("/stream/51", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, `<script>var src = "https://cdn.example/51/index.m3u8";</script>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
dataDir: `+dir+`
origin:
  siteRoot: `+srv.URL+`/
fetch:
  attempts: 1
resolve:
  templates: ["stream/{id}"]
catalog:
  channelsURL: `+srv.URL+`/daddy.json
  logosURL: `+srv.URL+`/tree
  channels: [ESPN]
cache:
  backend: memory
`), 0o600))

	var out bytes.Buffer
	code := run(context.Background(), []string{"-config", path, "-dry-run", "-env-file", ""}, &out, &bytes.Buffer{})
	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), "#EXTM3U")
	assert.Contains(t, out.String(), "https://cdn.example/51/index.m3u8")
	_, err := os.Stat(filepath.Join(dir, "out.m3u8"))
	assert.True(t, os.IsNotExist(err), "dry run writes nothing")
}
