package engine

import (
	"fmt"
	"sort"

	"github.com/use-agent/serpent/models"
)

// Name identifies a built-in search engine.
type Name string

const (
	Google         Name = "google"
	GoogleNewsOld  Name = "google_news_old"
	GoogleNews     Name = "google_news"
	GoogleImage    Name = "google_image"
	GoogleMaps     Name = "google_maps"
	GoogleShopping Name = "google_shopping"
	Bing           Name = "bing"
	BingNews       Name = "bing_news"
	Amazon         Name = "amazon"
	DuckDuckGo     Name = "duckduckgo"
	DuckDuckGoNews Name = "duckduckgo_news"
	Infospace      Name = "infospace"
	Webcrawler     Name = "webcrawler"
	Baidu          Name = "baidu"
	YouTube        Name = "youtube"
	YahooNews      Name = "yahoo_news"
	Reuters        Name = "reuters"
	CNBC           Name = "cnbc"
	MarketWatch    Name = "marketwatch"
)

// Names returns the built-in engine identifiers, sorted.
func Names() []Name {
	out := make([]Name, 0, len(profiles))
	for n := range profiles {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Lookup returns the profile of a built-in engine.
func Lookup(name string) (Profile, bool) {
	p, ok := profiles[Name(name)]
	if !ok {
		return Profile{}, false
	}
	return *p, true
}

// Resolve constructs the scraper a ref points at. Unknown built-in names
// fail with ErrCodeUnknownEngine before anything runs.
func Resolve(ref Ref, b Binding) (Scraper, error) {
	if b.Config == nil {
		return nil, models.NewScrapeError(models.ErrCodeInvalidConfig, "scraper binding has no config", nil)
	}
	if ref.factory != nil {
		s, err := ref.factory(b)
		if err != nil {
			return nil, models.NewScrapeError(models.ErrCodeInvalidConfig,
				fmt.Sprintf("custom scraper %q failed to initialize", ref.name), err)
		}
		if s == nil {
			return nil, models.NewScrapeError(models.ErrCodeInvalidConfig,
				fmt.Sprintf("custom scraper %q returned nil", ref.name), nil)
		}
		return s, nil
	}

	p, ok := Lookup(ref.name)
	if !ok {
		return nil, models.NewScrapeError(models.ErrCodeUnknownEngine,
			fmt.Sprintf("no such search engine: %q", ref.name), nil)
	}
	return NewTraversal(p, b)
}
