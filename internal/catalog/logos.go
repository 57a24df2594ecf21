// SPDX-License-Identifier: MIT

package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/grafana/regexp"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DefaultRawBase serves raw repository files.
const DefaultRawBase = "https://raw.githubusercontent.com"

const embeddedDataTarget = "react-app.embeddedData"

// LogoItem is one file listed in the logo repository tree.
type LogoItem struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	ContentType string `json:"contentType"`
}

// LogoTree is the directory listing of the logo repository.
type LogoTree struct {
	Owner  string
	Repo   string
	Branch string
	// CurrentPath is the listed directory, without a leading slash.
	CurrentPath string
	// InitialPath is "/owner/repo/branch/", the prefix joined onto the raw base.
	InitialPath string
	Items       []LogoItem
}

type embeddedData struct {
	Payload *struct {
		Tree struct {
			Items []LogoItem `json:"items"`
		} `json:"tree"`
		Repo       *repoInfo `json:"repo"`
		Repository *repoInfo `json:"repository"`
		RefInfo    struct {
			Name string `json:"name"`
		} `json:"refInfo"`
		Ref         string `json:"ref"`
		Path        string `json:"path"`
		CurrentPath string `json:"currentPath"`
	} `json:"payload"`
}

type repoInfo struct {
	OwnerLogin string `json:"ownerLogin"`
	Owner      struct {
		Login string `json:"login"`
	} `json:"owner"`
	Name string `json:"name"`
}

// ParseLogoTree extracts the embedded tree payload from a repository page.
func ParseLogoTree(body string) (*LogoTree, error) {
	raw, ok := embeddedScript(body)
	if !ok {
		return nil, fmt.Errorf("%w: embedded tree data not found", ErrPayload)
	}
	var data embeddedData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("%w: embedded tree data: %w", ErrPayload, err)
	}
	p := data.Payload
	if p == nil {
		return nil, fmt.Errorf("%w: embedded tree data has no payload", ErrPayload)
	}

	tree := &LogoTree{Owner: "tv-logo", Repo: "tv-logos", Branch: "main", CurrentPath: "countries/united-states"}
	repo := p.Repo
	if repo == nil {
		repo = p.Repository
	}
	if repo != nil {
		tree.Owner = firstNonEmpty(repo.OwnerLogin, repo.Owner.Login, tree.Owner)
		tree.Repo = firstNonEmpty(repo.Name, tree.Repo)
	}
	tree.Branch = firstNonEmpty(p.RefInfo.Name, p.Ref, tree.Branch)
	tree.CurrentPath = strings.TrimLeft(firstNonEmpty(p.Path, p.CurrentPath, tree.CurrentPath), "/")
	tree.InitialPath = "/" + tree.Owner + "/" + tree.Repo + "/" + tree.Branch + "/"

	for _, it := range p.Tree.Items {
		if it.Name == "" {
			continue
		}
		if it.Path == "" {
			it.Path = tree.CurrentPath + "/" + it.Name
		}
		tree.Items = append(tree.Items, it)
	}
	return tree, nil
}

func embeddedScript(body string) (string, bool) {
	z := html.NewTokenizer(strings.NewReader(body))
	inTarget := false
	for {
		switch z.Next() {
		case html.ErrorToken:
			return "", false
		case html.StartTagToken:
			tok := z.Token()
			inTarget = tok.DataAtom == atom.Script && attr(tok, "data-target") == embeddedDataTarget
		case html.TextToken:
			if inTarget {
				if text := strings.TrimSpace(string(z.Text())); text != "" {
					return text, true
				}
			}
		case html.EndTagToken:
			inTarget = false
		}
	}
}

func attr(tok html.Token, key string) string {
	for _, a := range tok.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// FetchLogoTree downloads the repository page at url and parses its tree.
func FetchLogoTree(ctx context.Context, f Fetcher, url string) (*LogoTree, error) {
	body, fetchErr := fetchBody(ctx, f, url)
	if body == "" && fetchErr != nil {
		return nil, fmt.Errorf("fetch logo tree: %w", fetchErr)
	}
	tree, err := ParseLogoTree(body)
	if err != nil {
		if fetchErr != nil {
			return nil, fmt.Errorf("fetch logo tree: %w", fetchErr)
		}
		return nil, err
	}
	return tree, nil
}

var (
	fillerRE   = regexp.MustCompile(`\b(?:network|channel|hd|tv|usa)\b`)
	spacesRE   = regexp.MustCompile(`\s+`)
	imageExtRE = regexp.MustCompile(`\.(?:png|svg|jpg|jpeg)$`)
)

// Search returns items whose lowercase name contains any word of query.
func (t *LogoTree) Search(query string) []LogoItem {
	words := strings.Fields(strings.ToLower(query))
	if len(words) == 0 {
		return nil
	}
	var out []LogoItem
	for _, it := range t.Items {
		name := strings.ToLower(it.Name)
		for _, w := range words {
			if strings.Contains(name, w) {
				out = append(out, it)
				break
			}
		}
	}
	return out
}

// PickLogo returns the repository-relative logo path for a channel name, or
// "" when nothing fits. Overrides win; otherwise the tree is searched by the
// normalized name, then again without filler words, and the candidates are
// ranked by exact token equality, shared tokens and closeness of length.
func PickLogo(name string, overrides map[string]string, tree *LogoTree) string {
	if p := overrides[name]; p != "" {
		return p
	}
	if tree == nil {
		return ""
	}

	word := Normalize(name)
	matches := tree.Search(word)
	if len(matches) == 0 {
		cleaned := strings.TrimSpace(spacesRE.ReplaceAllString(fillerRE.ReplaceAllString(word, ""), " "))
		if cleaned != "" && cleaned != word {
			matches = tree.Search(cleaned)
		}
	}
	if len(matches) == 0 {
		return ""
	}

	nameTokens := tokenSet(name)
	type scored struct {
		item         LogoItem
		exact, share int
		lenDelta     int
	}
	ranked := make([]scored, len(matches))
	for i, it := range matches {
		base := imageExtRE.ReplaceAllString(strings.ToLower(path.Base(it.Path)), "")
		bt := tokenSet(base)
		s := scored{item: it, share: overlap(bt, nameTokens), lenDelta: abs(len(base) - len(name))}
		if len(bt) == len(nameTokens) && s.share == len(bt) {
			s.exact = 100
		}
		ranked[i] = s
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.exact != b.exact {
			return a.exact > b.exact
		}
		if a.share != b.share {
			return a.share > b.share
		}
		return a.lenDelta < b.lenDelta
	})
	return ranked[0].item.Path
}

// LogoURL joins a picked path onto the raw base and the tree's initial path.
func LogoURL(rawBase string, tree *LogoTree, rel string) string {
	if rel == "" {
		return ""
	}
	if strings.HasPrefix(rel, "http://") || strings.HasPrefix(rel, "https://") {
		return rel
	}
	if rawBase == "" {
		rawBase = DefaultRawBase
	}
	prefix := "/"
	if tree != nil && tree.InitialPath != "" {
		prefix = tree.InitialPath
	}
	return strings.TrimRight(rawBase, "/") + prefix + strings.TrimLeft(rel, "/")
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
