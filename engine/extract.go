package engine

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/serpent/models"
)

// Extract reads the result items of a parsed page. Ranks start at
// rankStart. Relative links are resolved against pageURL.
func (p *Profile) Extract(doc *goquery.Document, pageURL string, rankStart int) []models.SerpItem {
	base, _ := url.Parse(pageURL)

	var items []models.SerpItem
	doc.Find(p.ResultSelector).Each(func(_ int, s *goquery.Selection) {
		item := models.SerpItem{
			Title:       firstText(s, p.TitleSelector),
			Link:        resolveLink(base, firstAttr(s, p.LinkSelector, "href")),
			Snippet:     firstText(s, p.SnippetSelector),
			VisibleLink: firstText(s, p.VisibleLinkSelector),
			Date:        firstText(s, p.DateSelector),
		}
		if item.Title == "" && item.Link == "" {
			return
		}
		for k, sel := range p.ExtraSelectors {
			if v := firstText(s, sel); v != "" {
				if item.Extra == nil {
					item.Extra = make(map[string]string, len(p.ExtraSelectors))
				}
				item.Extra[k] = v
			}
		}
		item.Rank = rankStart + len(items)
		items = append(items, item)
	})
	return items
}

// HasNext reports whether the page links to a following page.
func (p *Profile) HasNext(doc *goquery.Document) bool {
	if p.NextSelector == "" {
		return false
	}
	return doc.Find(p.NextSelector).Length() > 0
}

// resultRegion returns the concatenated HTML of the result nodes.
func (p *Profile) resultRegion(doc *goquery.Document) string {
	var b strings.Builder
	doc.Find(p.ResultSelector).Each(func(_ int, s *goquery.Selection) {
		if h, err := goquery.OuterHtml(s); err == nil {
			b.WriteString(h)
		}
	})
	return b.String()
}

func firstText(s *goquery.Selection, sel string) string {
	if sel == "" {
		return ""
	}
	return collapseSpace(s.Find(sel).First().Text())
}

func firstAttr(s *goquery.Selection, sel, attr string) string {
	if sel == "" {
		return ""
	}
	target := s.Find(sel).First()
	if target.Length() == 0 && s.Is(sel) {
		target = s
	}
	v, _ := target.Attr(attr)
	return strings.TrimSpace(v)
}

// resolveLink makes href absolute and unwraps redirect links of the
// form /url?q=<target>.
func resolveLink(base *url.URL, href string) string {
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Path == "/url" {
		for _, key := range []string{"q", "url"} {
			if target := u.Query().Get(key); strings.HasPrefix(target, "http") {
				return target
			}
		}
	}
	return u.String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
