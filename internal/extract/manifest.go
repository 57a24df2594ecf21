// SPDX-License-Identifier: MIT

// Package extract finds stream manifest references in fetched player pages.
// Everything here is a pure function over the page body.
package extract

import (
	"encoding/base64"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/grafana/regexp"
)

// MaxDecodeDepth bounds how many nested decode layers are unwrapped.
const MaxDecodeDepth = 2

var (
	// The suffix must end the path: hls.m3u8-parser.js or a.m3u8.bak do not count.
	manifestRE = regexp.MustCompile(`(https?://[^\s"'<>\\]+?\.m3u8(?:\?[^\s"'<>\\)]*)?)(?:[\s"'<>\\),;]|$)`)

	decodeCallRE = regexp.MustCompile(
		"(?:window\\.atob|atob|Base64\\.decode|base64_decode|b64decode)\\s*\\(\\s*[\"'`]([A-Za-z0-9+/_-]{8,}={0,2})[\"'`]\\s*\\)",
	)

	bareTokenRE = regexp.MustCompile(`^[A-Za-z0-9+/_-]{8,}={0,2}$`)

	escapes = strings.NewReplacer(`\/`, `/`, `\u002F`, `/`, `\u002f`, `/`)
)

// Manifest returns the first manifest URL in body. Literal URLs are preferred;
// otherwise base64 payloads handed to decode calls are unwrapped and searched.
func Manifest(body string) (string, bool) {
	return manifest(body, 0)
}

func manifest(body string, depth int) (string, bool) {
	text := html.UnescapeString(escapes.Replace(body))
	if m := manifestRE.FindStringSubmatch(text); m != nil {
		return m[1], true
	}
	if depth >= MaxDecodeDepth {
		return "", false
	}

	for _, tok := range DecodeTokens(text) {
		if u, ok := fromToken(tok, depth); ok {
			return u, true
		}
	}

	// atob(atob("...")) leaves a bare token after the first layer.
	if depth > 0 {
		if trimmed := strings.TrimSpace(text); bareTokenRE.MatchString(trimmed) {
			return fromToken(trimmed, depth)
		}
	}
	return "", false
}

func fromToken(tok string, depth int) (string, bool) {
	decoded, ok := DecodeBase64(tok)
	if !ok {
		return "", false
	}
	return manifest(decoded, depth+1)
}

// DecodeTokens lists the string arguments of decode calls in order.
func DecodeTokens(text string) []string {
	matches := decodeCallRE.FindAllStringSubmatch(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

// DecodeBase64 tries the standard and URL alphabets, padded and raw. The
// result must be valid UTF-8.
func DecodeBase64(tok string) (string, bool) {
	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.RawURLEncoding,
	}
	for _, enc := range encodings {
		b, err := enc.DecodeString(tok)
		if err != nil || len(b) == 0 || !utf8.Valid(b) {
			continue
		}
		return string(b), true
	}
	return "", false
}
