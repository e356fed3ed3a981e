package extension

import (
	"context"
	"errors"

	"github.com/use-agent/serpent/config"
	"github.com/use-agent/serpent/models"
)

// Env is what a Factory receives when the manager starts.
type Env struct {
	Config  *config.ScrapeConfig
	Context map[string]any
}

// Results is the payload of the results hook. Data is always set;
// Compressed holds the encoded form when compression is enabled and is what
// external consumers receive.
type Results struct {
	Data       models.Results
	Compressed string
}

// Extension carries optional hooks invoked after every scrape. Nil hooks
// are skipped; non-nil hooks are awaited and their errors fail the scrape.
type Extension struct {
	Name string

	HandleResults  func(ctx context.Context, r Results) error
	HandleMetadata func(ctx context.Context, md *models.Metadata) error

	// Close releases resources held by the extension. Called on Quit.
	Close func() error
}

// Factory builds an Extension for a session.
type Factory func(env Env) (*Extension, error)

// Chain combines extensions into one whose hooks run each member's hook
// in order, stopping at the first error. Nil members are ignored; nil is
// returned when nothing remains.
func Chain(exts ...*Extension) *Extension {
	var members []*Extension
	for _, e := range exts {
		if e != nil {
			members = append(members, e)
		}
	}
	switch len(members) {
	case 0:
		return nil
	case 1:
		return members[0]
	}

	chained := &Extension{Name: "chain"}
	for _, e := range members {
		if e.HandleResults != nil {
			chained.HandleResults = chainResults(members)
		}
		if e.HandleMetadata != nil {
			chained.HandleMetadata = chainMetadata(members)
		}
	}
	chained.Close = func() error {
		var errs []error
		for _, e := range members {
			if e.Close != nil {
				errs = append(errs, e.Close())
			}
		}
		return errors.Join(errs...)
	}
	return chained
}

func chainResults(members []*Extension) func(context.Context, Results) error {
	return func(ctx context.Context, r Results) error {
		for _, e := range members {
			if e.HandleResults == nil {
				continue
			}
			if err := e.HandleResults(ctx, r); err != nil {
				return hookError(e.Name, "results", err)
			}
		}
		return nil
	}
}

func chainMetadata(members []*Extension) func(context.Context, *models.Metadata) error {
	return func(ctx context.Context, md *models.Metadata) error {
		for _, e := range members {
			if e.HandleMetadata == nil {
				continue
			}
			if err := e.HandleMetadata(ctx, md); err != nil {
				return hookError(e.Name, "metadata", err)
			}
		}
		return nil
	}
}

func hookError(name, hook string, err error) error {
	var se *models.ScrapeError
	if errors.As(err, &se) {
		return err
	}
	return models.NewScrapeError(models.ErrCodeExtensionFailed, name+": "+hook+" hook failed", err)
}
