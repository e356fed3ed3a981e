package engine

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/serpent/cleaner"
	"github.com/use-agent/serpent/config"
	"github.com/use-agent/serpent/metrics"
	"github.com/use-agent/serpent/models"
	"github.com/use-agent/serpent/simhash"
)

// Traversal walks the result pages of one engine for every keyword.
//
// For each keyword and each page it navigates, waits for the result markers,
// checks for a challenge page, extracts the items and follows the next-page
// link. Failed pages are retried; a page that keeps failing ends the
// keyword. Every attempt counts as one request. With stop_on_repeat a page
// whose result region is within repeat_distance bits of the previous one
// ends the keyword and is not kept.
type Traversal struct {
	profile Profile
	cfg     *config.ScrapeConfig
	pacer   *Pacer
	now     func() time.Time

	numRequests int
}

// NewTraversal binds a profile to a scrape configuration.
func NewTraversal(p Profile, b Binding) (*Traversal, error) {
	if err := p.validate(); err != nil {
		return nil, models.NewScrapeError(models.ErrCodeInvalidConfig, "invalid engine profile", err)
	}
	lo, hi, err := b.Config.Sleep()
	if err != nil {
		return nil, err
	}
	return &Traversal{
		profile: p,
		cfg:     b.Config,
		pacer:   NewPacer(lo, hi),
		now:     time.Now,
	}, nil
}

// NumRequests returns the number of page attempts made so far.
func (t *Traversal) NumRequests() int {
	return t.numRequests
}

// visit is the outcome of one successful page attempt.
type visit struct {
	result    models.PageResult
	detection string
	hasNext   bool
	region    string
}

// Run scrapes every configured keyword. With throw_on_detection a
// challenge page aborts the run and discards everything collected.
func (t *Traversal) Run(ctx context.Context, page Page) (*RunResult, error) {
	if page == nil {
		return nil, models.NewScrapeError(models.ErrCodeSessionState, "no page to scrape with", nil)
	}
	out := &RunResult{Results: make(models.Results, len(t.cfg.Keywords))}
	engineName := string(t.profile.Name)

	for _, kw := range t.cfg.Keywords {
		if err := t.runKeyword(ctx, page, kw, out); err != nil {
			if models.IsCode(err, models.ErrCodeDetected) {
				metrics.Detections.WithLabelValues(engineName).Inc()
			}
			return nil, err
		}
	}
	out.NumRequests = t.numRequests
	return out, nil
}

func (t *Traversal) runKeyword(ctx context.Context, page Page, kw string, out *RunResult) error {
	engineName := string(t.profile.Name)
	log := slog.With("engine", engineName, "keyword", kw)
	rank := 1
	var prevPrint uint64

	for p := 0; p < t.cfg.NumPages; p++ {
		v, err := t.attempt(ctx, page, kw, p, rank)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			log.Warn("page failed, abandoning keyword", "page", p+1, "error", err)
			out.Errors = append(out.Errors, models.PageError{
				Keyword: kw,
				Page:    p + 1,
				Code:    models.CodeOf(err),
				Message: err.Error(),
			})
			return nil
		}

		if v.detection != "" {
			d := models.Detection{Keyword: kw, Page: p + 1, URL: v.result.URL, Reason: v.detection}
			if t.cfg.ThrowOnDetection {
				return models.NewScrapeError(models.ErrCodeDetected,
					fmt.Sprintf("%s detected the scraping bot on page %d for %q: %s", engineName, p+1, kw, d.Reason), nil)
			}
			metrics.Detections.WithLabelValues(engineName).Inc()
			log.Warn("bot detection, abandoning keyword", "page", p+1, "reason", d.Reason, "url", d.URL)
			out.Detections = append(out.Detections, d)
			return nil
		}

		if t.cfg.StopOnRepeat && len(v.result.Items) > 0 {
			fp := simhash.FingerprintHTML(v.region)
			if p > 0 && simhash.Similar(fp, prevPrint, t.cfg.RepeatDistance) {
				log.Info("page repeats the previous one, stopping pagination", "page", p+1)
				return nil
			}
			prevPrint = fp
		}

		out.Results[kw] = append(out.Results[kw], v.result)
		rank += len(v.result.Items)
		log.Info("page scraped", "page", p+1, "items", len(v.result.Items))

		if !v.hasNext || !t.profile.Paginated() {
			return nil
		}
	}
	return nil
}

// attempt scrapes one page with retries. Challenge pages are not retried.
func (t *Traversal) attempt(ctx context.Context, page Page, kw string, p, rank int) (*visit, error) {
	var lastErr error
	for try := 0; try <= t.cfg.Retries; try++ {
		if err := t.pacer.Wait(ctx); err != nil {
			return nil, models.NewScrapeError(models.ErrCodeTimeout, "scrape canceled", err)
		}
		t.numRequests++
		v, err := t.visit(ctx, page, kw, p, rank)
		if err == nil {
			metrics.Requests.WithLabelValues(string(t.profile.Name), outcome(v)).Inc()
			return v, nil
		}
		metrics.Requests.WithLabelValues(string(t.profile.Name), "error").Inc()
		lastErr = err
		if ctx.Err() != nil || !retryable(err) {
			return nil, err
		}
		slog.Debug("page attempt failed", "keyword", kw, "page", p+1, "attempt", try+1, "error", err)
	}
	return nil, lastErr
}

func (t *Traversal) visit(ctx context.Context, page Page, kw string, p, rank int) (*visit, error) {
	target, err := t.profile.BuildURL(kw, p, t.cfg.EngineSettings)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeInvalidConfig, "cannot build search url", err)
	}
	if err := page.Navigate(ctx, target); err != nil {
		return nil, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, t.cfg.RenderTimeout())
	waitErr := page.WaitVisible(waitCtx, t.profile.waitSelector())
	cancel()
	if ctx.Err() != nil {
		return nil, models.NewScrapeError(models.ErrCodeTimeout, "scrape canceled", ctx.Err())
	}

	html, err := page.HTML(ctx)
	if err != nil {
		return nil, err
	}
	current, err := page.URL(ctx)
	if err != nil || current == "" {
		current = target
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeNavigation, "failed to parse page", err)
	}

	v := &visit{result: models.PageResult{Page: p + 1, URL: current, Timestamp: t.now()}}
	if reason, ok := t.profile.Detect(doc, html, current); ok {
		v.detection = reason
		return v, nil
	}
	if waitErr != nil {
		if errors.Is(waitErr, context.DeadlineExceeded) || models.IsCode(waitErr, models.ErrCodeTimeout) {
			return nil, models.NewScrapeError(models.ErrCodeTimeout,
				fmt.Sprintf("results did not render within %s", t.cfg.RenderTimeout()), waitErr)
		}
		return nil, waitErr
	}

	v.result.Items = t.profile.Extract(doc, current, rank)
	v.result.NoResults = len(v.result.Items) == 0
	v.hasNext = t.profile.HasNext(doc)
	v.region = t.profile.resultRegion(doc)

	if t.cfg.HTMLOutput {
		v.result.HTML = html
		if t.cfg.CleanHTMLOutput {
			cleaned, err := cleaner.Clean(html, cleaner.Options{DataImages: t.cfg.CleanDataImages})
			if err != nil {
				slog.Warn("html cleaning failed, keeping raw snapshot", "error", err)
			} else {
				v.result.HTML = cleaned
			}
		}
	}
	if t.cfg.MarkdownOutput {
		md, err := cleaner.Markdown(v.region, current)
		if err != nil {
			slog.Warn("markdown conversion failed", "keyword", kw, "page", p+1, "error", err)
		} else {
			v.result.Markdown = md
		}
	}
	if t.cfg.ScreenOutput {
		png, err := page.Screenshot(ctx)
		if err != nil {
			slog.Warn("screenshot failed", "keyword", kw, "page", p+1, "error", err)
		} else {
			v.result.Screenshot = base64.StdEncoding.EncodeToString(png)
		}
	}
	return v, nil
}

// retryable reports whether a page error may succeed on another attempt.
func retryable(err error) bool {
	switch models.CodeOf(err) {
	case models.ErrCodeInvalidConfig, models.ErrCodeBrowserCrash:
		return false
	}
	return true
}

func outcome(v *visit) string {
	switch {
	case v.detection != "":
		return "detected"
	case v.result.NoResults:
		return "empty"
	default:
		return "ok"
	}
}
