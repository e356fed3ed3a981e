package cleaner

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Options controls what Clean strips.
type Options struct {
	// DataImages removes <img> elements whose source is an inline data: URI.
	DataImages bool

	// Exclude lists extra CSS selectors to remove.
	Exclude []string
}

// stripped are removed from every cleaned snapshot.
var stripped = []string{"script", "style", "noscript", "link[rel=stylesheet]", "link[as=script]", "link[as=style]"}

// Clean removes scripts, styles and comments from a page snapshot.
func Clean(raw string, opts Options) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return "", err
	}

	doc.Find(strings.Join(stripped, ", ")).Remove()
	for _, sel := range opts.Exclude {
		doc.Find(sel).Remove()
	}
	doc.Find("[style]").RemoveAttr("style")

	if opts.DataImages {
		doc.Find("img").Each(func(_ int, s *goquery.Selection) {
			if src, _ := s.Attr("src"); strings.HasPrefix(strings.TrimSpace(src), "data:") {
				s.Remove()
			}
		})
	}

	removeComments(doc.Selection)

	return doc.Html()
}

func removeComments(s *goquery.Selection) {
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		n := c.Get(0)
		if n.Type == html.CommentNode {
			c.Remove()
			return
		}
		if n.Type == html.ElementNode {
			removeComments(c)
		}
	})
}
