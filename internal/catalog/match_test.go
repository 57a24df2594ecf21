// SPDX-License-Identifier: MIT

package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testChannels = []ChannelRef{
	{ID: "44", Name: "ESPN USA"},
	{ID: "45", Name: "ESPN2 USA"},
	{ID: "51", Name: "TNT Sports 1 UK"},
	{ID: "60", Name: "Fox Sports 1 USA"},
	{ID: "70", Name: "A&E USA"},
	{ID: "80", Name: "Canal+ Sport"},
	{ID: "90", Name: "Télé Québec"},
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "aande usa", Normalize("A&E USA"))
	assert.Equal(t, "canalplus sport", Normalize(" Canal+ Sport "))
	assert.Equal(t, "tele quebec", Normalize("Télé Québec"))
	assert.Equal(t, []string{"fox", "sports", "1"}, Tokens("FOX Sports-1"))
}

func TestMatcher(t *testing.T) {
	m := NewMatcher(testChannels)

	tests := []struct {
		want   string
		wantID string
	}{
		{"espn usa", "44"},
		{"a&e", "70"},
		{"canal+ sport", "80"},
		{"tele quebec", "90"},
		{"ESPN", "44"},
		{"FOX Sports 1", "60"},
		{"ESPN2", "45"},
		{"TNTSports1UK", "51"},
		{"Bloomberg", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got, ok := m.Match(tt.want)
			if tt.wantID == "" {
				assert.False(t, ok, "matched %+v", got)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.wantID, got.ID)
		})
	}
}

func TestSelect(t *testing.T) {
	selected, unmatched := Select(testChannels, []string{"Fox Sports 1", "Bloomberg", "espn usa", "ESPN USA"})
	assert.Equal(t, []ChannelRef{testChannels[3], testChannels[0]}, selected)
	assert.Equal(t, []string{"Bloomberg"}, unmatched)

	all, unmatched := Select(testChannels, nil)
	assert.Equal(t, testChannels, all)
	assert.Empty(t, unmatched)
}

func TestReadChannelsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "channels.txt")
	require.NoError(t, os.WriteFile(path, []byte("# sports\nESPN\n\n  TNT Sports  \n#FOX\n"), 0o600))

	names, err := ReadChannelsFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"ESPN", "TNT Sports"}, names)

	names, err = ReadChannelsFile(filepath.Join(t.TempDir(), "missing.txt"))
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestWanted(t *testing.T) {
	got := Wanted([]string{"ESPN", " TNT "}, []string{"TNT", "", "FOX"})
	assert.Equal(t, []string{"ESPN", "TNT", "FOX"}, got)
}
