package engine

import (
	"context"

	"github.com/use-agent/serpent/config"
	"github.com/use-agent/serpent/extension"
	"github.com/use-agent/serpent/models"
)

// Page is the live browser page a scraper drives. Implemented by
// *browser.Page; tests use in-memory fakes.
type Page interface {
	Navigate(ctx context.Context, url string) error
	WaitVisible(ctx context.Context, selector string) error
	HTML(ctx context.Context) (string, error)
	URL(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
}

// Scraper runs a full traversal over the configured keywords.
type Scraper interface {
	Run(ctx context.Context, page Page) (*RunResult, error)
}

// RunResult is the raw output of a traversal.
type RunResult struct {
	Results     models.Results
	NumRequests int
	Detections  []models.Detection
	Errors      []models.PageError
}

// Binding is everything a scraper is constructed with.
type Binding struct {
	Config    *config.ScrapeConfig
	Context   map[string]any
	Extension *extension.Extension
	Page      Page
}

// Factory constructs a custom scraper.
type Factory func(b Binding) (Scraper, error)

// Ref selects a scraper: either a built-in engine by name or a custom
// factory. The zero Ref is invalid.
type Ref struct {
	name    string
	factory Factory
}

// Builtin refers to a built-in engine.
func Builtin(name string) Ref {
	return Ref{name: name}
}

// Custom refers to a caller-supplied scraper. name is reported as the
// search engine in metadata.
func Custom(name string, f Factory) Ref {
	return Ref{name: name, factory: f}
}

// Name returns the engine name the ref was built with.
func (r Ref) Name() string { return r.name }

// IsCustom reports whether r wraps a custom factory.
func (r Ref) IsCustom() bool { return r.factory != nil }
