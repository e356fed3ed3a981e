package manager

import (
	"context"

	"github.com/use-agent/serpent/browser"
	"github.com/use-agent/serpent/engine"
	"github.com/use-agent/serpent/extension"
	"github.com/use-agent/serpent/models"
	"github.com/use-agent/serpent/netcheck"
)

// Session is an open browser with its single page.
type Session interface {
	Page() engine.Page
	Close() error
}

// Launcher starts browser sessions.
type Launcher interface {
	Launch(ctx context.Context, opts browser.LaunchOptions) (Session, error)
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(ctx context.Context, opts browser.LaunchOptions) (Session, error)

// Launch calls f.
func (f LauncherFunc) Launch(ctx context.Context, opts browser.LaunchOptions) (Session, error) {
	return f(ctx, opts)
}

// chromeSession adapts *browser.Session to Session.
type chromeSession struct {
	s *browser.Session
}

func (c chromeSession) Page() engine.Page { return c.s.Page() }
func (c chromeSession) Close() error      { return c.s.Close() }

// ChromeLauncher launches a local Chrome with go-rod.
var ChromeLauncher Launcher = LauncherFunc(func(ctx context.Context, opts browser.LaunchOptions) (Session, error) {
	s, err := browser.Launch(ctx, opts)
	if err != nil {
		return nil, err
	}
	return chromeSession{s}, nil
})

// IPLookup reports the egress address seen through a proxy.
type IPLookup func(ctx context.Context, proxy, userAgent string) (*models.IPInfo, error)

func defaultIPLookup(ctx context.Context, proxy, userAgent string) (*models.IPInfo, error) {
	c := &netcheck.Checker{UserAgent: userAgent}
	return c.Lookup(ctx, proxy)
}

// Option configures a Manager.
type Option func(*Manager)

// WithLauncher replaces the Chrome launcher.
func WithLauncher(l Launcher) Option {
	return func(m *Manager) { m.launcher = l }
}

// WithEngine installs a custom scraper used instead of the configured
// search engine.
func WithEngine(name string, f engine.Factory) Option {
	return func(m *Manager) {
		ref := engine.Custom(name, f)
		m.engine = &ref
	}
}

// WithExtension adds an extension factory, run after those enabled by the
// configuration.
func WithExtension(f extension.Factory) Option {
	return func(m *Manager) { m.extFactories = append(m.extFactories, f) }
}

// WithContext sets the opaque context passed to scrapers and extensions.
func WithContext(c map[string]any) Option {
	return func(m *Manager) { m.runContext = c }
}

// WithIPLookup replaces the egress address lookup.
func WithIPLookup(f IPLookup) Option {
	return func(m *Manager) { m.ipLookup = f }
}
