package extension

import (
	"errors"

	"github.com/use-agent/serpent/config"
	"github.com/use-agent/serpent/models"
)

// FromConfig returns the factories enabled by cfg, in hook order:
// custom_func, sqlite_path, webhook_url.
func FromConfig(cfg *config.ScrapeConfig) []Factory {
	var fs []Factory
	if cfg.CustomFunc != "" {
		fs = append(fs, Exec(cfg.CustomFunc))
	}
	if cfg.SQLitePath != "" {
		fs = append(fs, SQLite(cfg.SQLitePath))
	}
	if cfg.WebhookURL != "" {
		fs = append(fs, Webhook(cfg.WebhookURL, cfg.WebhookSecret))
	}
	return fs
}

// Build runs the factories and chains the results. If any factory fails
// the already built extensions are closed and the error is returned.
func Build(env Env, factories ...Factory) (*Extension, error) {
	var built []*Extension
	for _, f := range factories {
		ext, err := f(env)
		if err != nil {
			for _, b := range built {
				if b.Close != nil {
					_ = b.Close()
				}
			}
			return nil, wrapFactoryError(err)
		}
		built = append(built, ext)
	}
	return Chain(built...), nil
}

func wrapFactoryError(err error) error {
	var se *models.ScrapeError
	if errors.As(err, &se) {
		return err
	}
	return models.NewScrapeError(models.ErrCodeExtensionFailed, "failed to load extension", err)
}
