package simhash

import (
	"strings"

	"golang.org/x/net/html"
)

// FingerprintHTML fingerprints the visible text and link targets of an
// HTML fragment. Markup, attributes other than href, scripts and styles are
// ignored, so two renderings of the same result list hash identically.
func FingerprintHTML(fragment string) uint64 {
	return FingerprintTokens(contentTokens(fragment))
}

func contentTokens(fragment string) []string {
	z := html.NewTokenizer(strings.NewReader(fragment))
	var tokens []string
	skip := 0

	for {
		switch z.Next() {
		case html.ErrorToken:
			return tokens
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			tag := string(name)
			if tag == "script" || tag == "style" {
				skip++
				continue
			}
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				if string(key) == "href" && len(val) > 0 {
					tokens = append(tokens, "href:"+string(val))
				}
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if tag := string(name); (tag == "script" || tag == "style") && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				tokens = append(tokens, strings.Fields(string(z.Text()))...)
			}
		}
	}
}
