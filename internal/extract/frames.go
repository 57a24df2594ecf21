// SPDX-License-Identifier: MIT

package extract

import (
	"html"
	"net/url"
	"path"
	"strings"

	"github.com/grafana/regexp"
	xhtml "golang.org/x/net/html"
)

// MaxFrames is the default cap on frame candidates per page.
const MaxFrames = 8

var looseSrcRE = regexp.MustCompile(`(?i)\b(?:data-src|src)\s*=\s*["']?([^"'\s>]+)`)

var staticExt = map[string]struct{}{
	".js": {}, ".mjs": {}, ".css": {},
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".svg": {}, ".webp": {}, ".ico": {},
	".woff": {}, ".woff2": {}, ".ttf": {},
}

// Frames returns up to MaxFrames embedded page URLs, resolved against pageURL.
func Frames(body, pageURL string) []string {
	return FramesLimit(body, pageURL, MaxFrames)
}

// FramesLimit is Frames with an explicit cap. Element attributes come first,
// then loose src= pairs from the raw text, in document order.
func FramesLimit(body, pageURL string, limit int) []string {
	if limit <= 0 {
		return nil
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	// The tokenizer already unescapes attribute values; loose matches are raw text.
	raw := frameAttrs(body)
	for _, m := range looseSrcRE.FindAllStringSubmatch(body, -1) {
		raw = append(raw, html.UnescapeString(m[1]))
	}

	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, min(len(raw), limit))
	for _, candidate := range raw {
		abs, ok := resolveFrame(base, candidate)
		if !ok {
			continue
		}
		if _, dup := seen[abs]; dup {
			continue
		}
		seen[abs] = struct{}{}
		out = append(out, abs)
		if len(out) == limit {
			break
		}
	}
	return out
}

func frameAttrs(body string) []string {
	var out []string
	z := xhtml.NewTokenizer(strings.NewReader(body))
	for {
		switch z.Next() {
		case xhtml.ErrorToken:
			return out
		case xhtml.StartTagToken, xhtml.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			tag := string(name)
			if tag != "iframe" && tag != "frame" {
				continue
			}
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				k := string(key)
				if (k == "src" || k == "data-src") && len(val) > 0 {
					out = append(out, string(val))
				}
			}
		}
	}
}

func resolveFrame(base *url.URL, raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	lower := strings.ToLower(raw)
	for _, p := range []string{"javascript:", "about:", "data:", "#"} {
		if strings.HasPrefix(lower, p) {
			return "", false
		}
	}

	ref, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	if abs.Host == "" {
		return "", false
	}
	if _, static := staticExt[strings.ToLower(path.Ext(abs.Path))]; static {
		return "", false
	}
	abs.Fragment = ""
	return abs.String(), true
}
