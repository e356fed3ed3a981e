package engine

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// captchaSignatures are markup fragments of common challenge providers.
var captchaSignatures = []struct {
	marker string
	reason string
}{
	{"g-recaptcha", "recaptcha"},
	{"recaptcha/api.js", "recaptcha"},
	{"h-captcha", "hcaptcha"},
	{"hcaptcha.com/1/api.js", "hcaptcha"},
	{"challenges.cloudflare.com", "cloudflare challenge"},
	{"cf-challenge", "cloudflare challenge"},
	{"our systems have detected unusual traffic", "unusual traffic notice"},
	{"to discuss automated access to amazon data", "amazon robot check"},
}

// Detect reports whether a page is a bot challenge and why.
func (p *Profile) Detect(doc *goquery.Document, html, pageURL string) (string, bool) {
	lowerURL := strings.ToLower(pageURL)
	for _, m := range p.BlockURLMarkers {
		if strings.Contains(lowerURL, strings.ToLower(m)) {
			return "redirected to " + m, true
		}
	}
	for _, sel := range p.BlockSelectors {
		if doc.Find(sel).Length() > 0 {
			return "challenge element " + sel, true
		}
	}
	lowerHTML := strings.ToLower(html)
	for _, sig := range captchaSignatures {
		if strings.Contains(lowerHTML, sig.marker) {
			return sig.reason, true
		}
	}
	return "", false
}
