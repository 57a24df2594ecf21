// SPDX-License-Identifier: MIT

package catalog

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"unicode"

	"github.com/grafana/regexp"
	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FuzzyCutoff is the minimum similarity ratio for the last matching stage.
const FuzzyCutoff = 0.72

var tokenRE = regexp.MustCompile(`[a-z0-9]+`)

var symbolReplacer = strings.NewReplacer("&", "and", "+", "plus")

// Normalize lowercases s, folds accents and spells out & and +.
func Normalize(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.TrimSpace(symbolReplacer.Replace(strings.ToLower(folded)))
}

// Tokens splits the normalized form of s into alphanumeric words.
func Tokens(s string) []string {
	return tokenRE.FindAllString(Normalize(s), -1)
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range Tokens(s) {
		set[t] = struct{}{}
	}
	return set
}

func overlap(a, b map[string]struct{}) int {
	n := 0
	for t := range a {
		if _, ok := b[t]; ok {
			n++
		}
	}
	return n
}

// Matcher finds catalog channels by loosely spelled names.
type Matcher struct {
	channels []ChannelRef
	norm     []string
	tokens   []map[string]struct{}
}

// NewMatcher indexes channels for matching.
func NewMatcher(channels []ChannelRef) *Matcher {
	m := &Matcher{
		channels: channels,
		norm:     make([]string, len(channels)),
		tokens:   make([]map[string]struct{}, len(channels)),
	}
	for i, ch := range channels {
		m.norm[i] = Normalize(ch.Name)
		m.tokens[i] = tokenSet(ch.Name)
	}
	return m
}

// Match returns the channel best matching want: an exact normalized name,
// else the most shared tokens (earliest wins ties), else the most similar
// name with a ratio of at least FuzzyCutoff.
func (m *Matcher) Match(want string) (ChannelRef, bool) {
	n := Normalize(want)
	if n == "" {
		return ChannelRef{}, false
	}
	for i, c := range m.norm {
		if c == n {
			return m.channels[i], true
		}
	}

	wantTokens := tokenSet(want)
	best, bestScore := -1, 0
	for i, ct := range m.tokens {
		if s := overlap(wantTokens, ct); s > bestScore {
			best, bestScore = i, s
		}
	}
	if best >= 0 {
		return m.channels[best], true
	}

	needle := strings.Split(n, "")
	best, bestRatio := -1, FuzzyCutoff
	for i, c := range m.norm {
		sm := difflib.NewMatcher(strings.Split(c, ""), needle)
		if r := sm.Ratio(); r >= bestRatio && (best < 0 || r > bestRatio) {
			best, bestRatio = i, r
		}
	}
	if best >= 0 {
		return m.channels[best], true
	}
	return ChannelRef{}, false
}

// ReadChannelsFile reads wanted channel names, one per line. Blank lines and
// lines starting with # are skipped. A missing file yields no names.
func ReadChannelsFile(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path) // #nosec G304 -- operator-configured path
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open channels file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var names []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read channels file: %w", err)
	}
	return names, nil
}

// Wanted merges name lists, dropping blanks and repeats but keeping order.
func Wanted(lists ...[]string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, list := range lists {
		for _, name := range list {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	return out
}

// Select picks the channels named in wanted, in wanted order and unique by
// id. With no wanted names every channel is selected. Names that match
// nothing are returned separately.
func Select(channels []ChannelRef, wanted []string) (selected []ChannelRef, unmatched []string) {
	if len(wanted) == 0 {
		return append([]ChannelRef(nil), channels...), nil
	}
	m := NewMatcher(channels)
	seen := make(map[string]struct{})
	for _, want := range wanted {
		ch, ok := m.Match(want)
		if !ok {
			unmatched = append(unmatched, want)
			continue
		}
		if _, dup := seen[ch.ID]; dup {
			continue
		}
		seen[ch.ID] = struct{}{}
		selected = append(selected, ch)
	}
	return selected, unmatched
}
