package browser

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/serpent/models"
	"github.com/ysmood/gson"
)

// LaunchOptions describes a browser session.
type LaunchOptions struct {
	Headless   bool
	BrowserBin string

	// Flags is the full switch list, normally built with ResolveFlags.
	Flags []string

	// Evasion injects the stealth script into every document and hides the
	// automation switches.
	Evasion bool

	BlockAssets bool
	BlockRegex  []string

	// Headers are sent with every request of the page.
	Headers map[string]string

	// LogHTTPHeaders logs the status and headers of document responses.
	LogHTTPHeaders bool
}

// Session is one Chrome process with a single page.
type Session struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *Page
	router   *rod.HijackRouter
}

// Launch starts Chrome and opens the session page. On failure every
// partially started resource is released.
func Launch(ctx context.Context, opts LaunchOptions) (*Session, error) {
	policy, err := newBlockPolicy(opts.BlockAssets, opts.BlockRegex)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeInvalidConfig, "invalid block pattern", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "launch canceled", err)
	}

	// The launcher is not bound to ctx: the browser outlives the call.
	l := launcher.New().Headless(opts.Headless)
	if opts.BrowserBin != "" {
		l = l.Bin(opts.BrowserBin)
	}
	for _, f := range opts.Flags {
		name, value := splitFlag(f)
		if name == "" {
			continue
		}
		if value == "" {
			l.Set(flags.Flag(name))
		} else {
			l.Set(flags.Flag(name), value)
		}
	}
	if opts.Evasion {
		l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
		l.Delete(flags.Flag("enable-automation"))
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to launch browser", err)
	}
	slog.Info("browser launched", "controlURL", controlURL, "headless", opts.Headless)

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to connect to browser", err)
	}

	rp, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = b.Close()
		l.Kill()
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to open page", err)
	}

	if opts.Evasion {
		if _, err := rp.EvalOnNewDocument(stealth.JS); err != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", err)
		}
	}
	if len(opts.Headers) > 0 {
		if err := (proto.NetworkSetExtraHTTPHeaders{Headers: toHeadersMap(opts.Headers)}).Call(rp); err != nil {
			slog.Warn("failed to set extra headers", "error", err)
		}
	}

	if opts.LogHTTPHeaders {
		watchHeaders(rp)
	}

	return &Session{
		launcher: l,
		browser:  b,
		page:     &Page{page: rp},
		router:   setupHijack(rp, policy),
	}, nil
}

// Page returns the session page.
func (s *Session) Page() *Page {
	return s.page
}

// Close stops the hijack router, closes the browser and waits for the
// process to exit.
func (s *Session) Close() error {
	if s.router != nil {
		_ = s.router.Stop()
	}
	err := s.browser.Close()
	s.launcher.Cleanup()
	slog.Info("browser closed")
	if err != nil {
		return models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to close browser", err)
	}
	return nil
}

// watchHeaders logs every document response of pg until the page closes.
func watchHeaders(pg *rod.Page) {
	if err := (proto.NetworkEnable{}).Call(pg); err != nil {
		slog.Warn("failed to enable network events, headers will not be logged", "error", err)
		return
	}
	go pg.EachEvent(func(e *proto.NetworkResponseReceived) {
		if e.Type != proto.NetworkResourceTypeDocument {
			return
		}
		slog.Info("document response",
			"url", e.Response.URL,
			"status", e.Response.Status,
			headerGroup(e.Response.Headers))
	})()
}

// headerGroup renders response headers as a slog group with lower-cased,
// sorted names.
func headerGroup(h proto.NetworkHeaders) slog.Attr {
	args := make([]any, 0, 2*len(h))
	for _, k := range slices.Sorted(maps.Keys(h)) {
		args = append(args, strings.ToLower(k), h[k].Str())
	}
	return slog.Group("headers", args...)
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}
