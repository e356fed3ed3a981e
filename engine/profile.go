package engine

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/andybalholm/cascadia"
)

// queryPlaceholder is substituted into path-style base URLs.
const queryPlaceholder = "{query}"

// Profile describes how to query and read one search engine.
type Profile struct {
	Name Name

	// BaseURL is the search endpoint. A "{query}" placeholder puts the
	// keyword in the path instead of QueryParam.
	BaseURL    string
	QueryParam string

	// Params are fixed query parameters, overridable by engine settings.
	Params map[string]string

	// The page offset is OffsetParam=OffsetBase+p*PageSize. PageSize 0 means
	// the engine has a single addressable page.
	OffsetParam string
	OffsetBase  int
	PageSize    int

	// WaitSelector marks a rendered result page; NoResultsSelector marks an
	// empty one.
	WaitSelector      string
	NoResultsSelector string

	ResultSelector      string
	TitleSelector       string
	LinkSelector        string
	SnippetSelector     string
	VisibleLinkSelector string
	DateSelector        string

	// ExtraSelectors are engine-specific fields stored in SerpItem.Extra.
	ExtraSelectors map[string]string

	NextSelector string

	// BlockSelectors and BlockURLMarkers identify the engine's challenge pages.
	BlockSelectors  []string
	BlockURLMarkers []string
}

// BuildURL returns the address of page p (zero-based) for keyword.
// settings override the profile's fixed parameters.
func (p *Profile) BuildURL(keyword string, page int, settings map[string]string) (string, error) {
	raw := p.BaseURL
	inPath := strings.Contains(raw, queryPlaceholder)
	if inPath {
		raw = strings.ReplaceAll(raw, queryPlaceholder, url.PathEscape(keyword))
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("engine %s: invalid base url: %w", p.Name, err)
	}

	q := u.Query()
	for k, v := range p.Params {
		q.Set(k, v)
	}
	for k, v := range settings {
		q.Set(k, v)
	}
	if !inPath && p.QueryParam != "" {
		q.Set(p.QueryParam, keyword)
	}
	if p.OffsetParam != "" && p.PageSize > 0 {
		offset := p.OffsetBase + page*p.PageSize
		if page > 0 || p.OffsetBase > 0 {
			q.Set(p.OffsetParam, strconv.Itoa(offset))
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Paginated reports whether the engine can serve more than one page.
func (p *Profile) Paginated() bool {
	return p.PageSize > 0 && p.NextSelector != ""
}

// waitSelector is what the render-wait blocks on: a result page or an
// explicit empty page.
func (p *Profile) waitSelector() string {
	if p.NoResultsSelector == "" {
		return p.WaitSelector
	}
	return p.WaitSelector + ", " + p.NoResultsSelector
}

// validate compiles every selector of the profile.
func (p *Profile) validate() error {
	sels := map[string]string{
		"wait":         p.WaitSelector,
		"no_results":   p.NoResultsSelector,
		"result":       p.ResultSelector,
		"title":        p.TitleSelector,
		"link":         p.LinkSelector,
		"snippet":      p.SnippetSelector,
		"visible_link": p.VisibleLinkSelector,
		"date":         p.DateSelector,
		"next":         p.NextSelector,
	}
	for k, v := range p.ExtraSelectors {
		sels["extra."+k] = v
	}
	for i, v := range p.BlockSelectors {
		sels["block."+strconv.Itoa(i)] = v
	}

	keys := make([]string, 0, len(sels))
	for k := range sels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if sels[k] == "" {
			continue
		}
		if _, err := cascadia.ParseGroup(sels[k]); err != nil {
			return fmt.Errorf("engine %s: invalid %s selector %q: %w", p.Name, k, sels[k], err)
		}
	}
	if p.WaitSelector == "" || p.ResultSelector == "" {
		return fmt.Errorf("engine %s: wait and result selectors are required", p.Name)
	}
	return nil
}
