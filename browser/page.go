package browser

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/use-agent/serpent/models"
)

// Page adapts a rod page to the operations the traversal engine needs.
// Every call is bound to the given context.
type Page struct {
	page *rod.Page
}

// Navigate loads url and waits for the load event (best-effort).
func (p *Page) Navigate(ctx context.Context, url string) error {
	pg := p.page.Context(ctx)
	if err := pg.Navigate(url); err != nil {
		return categorizeError(err, "navigation failed")
	}
	if err := pg.WaitLoad(); err != nil {
		slog.Debug("load event not observed, proceeding with current DOM", "url", url, "error", err)
	}
	dismissConsent(pg)
	return nil
}

// consentJS accepts cookie consent dialogs (Google, Bing, Yahoo and the
// usual CMPs) and removes fixed consent overlays that would hide results.
const consentJS = `() => {
	const accept = [
		'#L2AGLb', 'button[aria-label="Accept all"]', 'form[action*="consent"] button',
		'#bnp_btn_accept', 'button[name="agree"]', '#onetrust-accept-btn-handler',
	];
	for (const sel of accept) {
		const b = document.querySelector(sel);
		if (b) { b.click(); return true; }
	}
	const selectors = ['[class*="consent"]', '[id*="consent"]', '[class*="cookie"]', '[id*="cookie"]', '[class*="gdpr"]'];
	for (const sel of selectors) {
		document.querySelectorAll(sel).forEach(el => {
			const pos = window.getComputedStyle(el).position;
			if (pos === 'fixed' || pos === 'sticky') el.remove();
		});
	}
	document.documentElement.style.overflow = '';
	if (document.body) document.body.style.overflow = '';
	return false;
}`

// dismissConsent is best-effort; a page without a dialog is left as is.
func dismissConsent(pg *rod.Page) {
	res, err := pg.Eval(consentJS)
	if err != nil {
		slog.Debug("consent check failed", "error", err)
		return
	}
	if res.Value.Bool() {
		slog.Debug("consent dialog accepted")
		if err := pg.WaitLoad(); err != nil {
			slog.Debug("load after consent not observed", "error", err)
		}
	}
}

// WaitVisible blocks until an element matching selector exists or ctx ends.
func (p *Page) WaitVisible(ctx context.Context, selector string) error {
	if _, err := p.page.Context(ctx).Element(selector); err != nil {
		return categorizeError(err, "result markers did not render")
	}
	return nil
}

// HTML returns the rendered document.
func (p *Page) HTML(ctx context.Context) (string, error) {
	html, err := p.page.Context(ctx).HTML()
	if err != nil {
		return "", categorizeError(err, "failed to extract page HTML")
	}
	return html, nil
}

// URL returns the current location of the page.
func (p *Page) URL(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", categorizeError(err, "failed to read page URL")
	}
	return info.URL, nil
}

// Screenshot captures the viewport as PNG.
func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	png, err := p.page.Context(ctx).Timeout(15*time.Second).Screenshot(false, nil)
	if err != nil {
		return nil, categorizeError(err, "screenshot failed")
	}
	return png, nil
}

// categorizeError wraps raw errors into typed ScrapeErrors.
func categorizeError(err error, msg string) *models.ScrapeError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeTimeout, "request canceled", err)
	default:
		return models.NewScrapeError(models.ErrCodeNavigation, msg, err)
	}
}
