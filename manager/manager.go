package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/use-agent/serpent/aggregate"
	"github.com/use-agent/serpent/browser"
	"github.com/use-agent/serpent/config"
	"github.com/use-agent/serpent/engine"
	"github.com/use-agent/serpent/extension"
	"github.com/use-agent/serpent/metrics"
	"github.com/use-agent/serpent/models"
)

// State is the lifecycle state of a Manager.
type State string

const (
	StateIdle    State = "idle"
	StateStarted State = "started"
)

// Request is one scrape call. Set fields override the manager's
// configuration for this call only.
type Request struct {
	Keywords    []string
	KeywordFile string

	NumPages       int
	SearchEngine   string
	EngineSettings map[string]string

	// Engine runs a custom scraper instead of a built-in engine.
	Engine *engine.Ref

	// Overrides are further configuration keys merged over the manager's
	// configuration. Session-level keys (browser, proxy) have no effect
	// once the session is started.
	Overrides map[string]any
}

// Manager owns one browser session and runs scrapes on it. Start, Quit and
// Scrape are serialized; State and StartedAt never wait on them.
type Manager struct {
	cfg          config.ScrapeConfig
	launcher     Launcher
	engine       *engine.Ref
	extFactories []extension.Factory
	runContext   map[string]any
	ipLookup     IPLookup

	// slot is held by Start, Quit and Scrape for their whole duration.
	slot chan struct{}

	mu        sync.RWMutex // guards state and startedAt
	state     State
	startedAt time.Time

	session   Session
	ext       *extension.Extension
	proxy     string
	userAgent string
	ipInfo    *models.IPInfo
	nextProxy int
}

// New validates cfg and returns an idle manager. Keyword and proxy files
// that exist replace the inline lists. Nothing is launched until Start.
func New(cfg config.ScrapeConfig, opts ...Option) (*Manager, error) {
	cfg = cfg.Clone()
	if err := cfg.LoadLists(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:      cfg,
		launcher: ChromeLauncher,
		ipLookup: defaultIPLookup,
		slot:     make(chan struct{}, 1),
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// NewFromOverrides merges overrides onto the default configuration and
// calls New.
func NewFromOverrides(overrides map[string]any, opts ...Option) (*Manager, error) {
	cfg, err := config.Merge(config.DefaultScrapeConfig(), overrides)
	if err != nil {
		return nil, err
	}
	return New(cfg, opts...)
}

// Config returns a copy of the manager's configuration.
func (m *Manager) Config() config.ScrapeConfig {
	return m.cfg.Clone()
}

// State returns the lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// StartedAt returns when the current session started; zero when idle.
func (m *Manager) StartedAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.startedAt
}

func (m *Manager) setState(st State, at time.Time) {
	m.mu.Lock()
	m.state = st
	m.startedAt = at
	m.mu.Unlock()
}

// acquire waits for the session slot or for ctx to end.
func (m *Manager) acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return models.NewScrapeError(models.ErrCodeTimeout, "gave up waiting for the scrape session", err)
	}
	select {
	case m.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return models.NewScrapeError(models.ErrCodeTimeout, "gave up waiting for the scrape session", ctx.Err())
	}
}

func (m *Manager) release() { <-m.slot }

// Start loads the extensions and launches the browser. It fails without
// launching anything if the extensions cannot be loaded or no proxy is
// available, and fails if a session is already open.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.release()

	if m.State() == StateStarted {
		return models.NewScrapeError(models.ErrCodeSessionState, "manager already started", nil)
	}
	if err := m.cfg.Validate(); err != nil {
		return err
	}
	proxy, err := m.pickProxy()
	if err != nil {
		return err
	}

	env := extension.Env{Config: &m.cfg, Context: m.runContext}
	factories := append(extension.FromConfig(&m.cfg), m.extFactories...)
	ext, err := extension.Build(env, factories...)
	if err != nil {
		return err
	}

	ua := m.cfg.UserAgent
	if m.cfg.RandomUserAgent {
		ua = browser.RandomUserAgent()
	}
	opts := browser.LaunchOptions{
		Headless:    m.cfg.Headless,
		BrowserBin:  m.cfg.BrowserBin,
		Flags:       browser.ResolveFlags(m.cfg.ChromeFlags, ua, proxy),
		Evasion:     m.cfg.ApplyEvasionTechniques,
		BlockAssets: m.cfg.BlockAssets,
		BlockRegex:  m.cfg.BlockRegex,
		Headers:     m.cfg.Headers,

		LogHTTPHeaders: m.cfg.LogHTTPHeaders,
	}
	slog.Debug("launching browser", "flags", opts.Flags, "proxy", proxy)

	sess, err := m.launcher.Launch(ctx, opts)
	if err != nil {
		if ext != nil && ext.Close != nil {
			_ = ext.Close()
		}
		var se *models.ScrapeError
		if errors.As(err, &se) {
			return err
		}
		return models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to launch browser", err)
	}

	m.session = sess
	m.ext = ext
	m.proxy = proxy
	m.userAgent = ua
	m.ipInfo = nil
	m.setState(StateStarted, time.Now())
	metrics.SessionsActive.Inc()
	slog.Info("scrape session started", "engine", m.cfg.SearchEngine, "proxy", proxy != "")

	if m.cfg.LogIPAddress {
		info, err := m.ipLookup(ctx, proxy, ua)
		if err != nil {
			slog.Warn("egress address lookup failed", "error", err)
		} else {
			m.ipInfo = info
			slog.Info("egress address", "ip", info.IP, "country", info.Country, "org", info.Org)
		}
	}
	return nil
}

// pickProxy returns the proxy for the next session. The proxy list is
// used round-robin across sessions.
func (m *Manager) pickProxy() (string, error) {
	if m.cfg.Proxy != "" {
		return m.cfg.Proxy, nil
	}
	if n := len(m.cfg.Proxies); n > 0 {
		p := m.cfg.Proxies[m.nextProxy%n]
		m.nextProxy++
		return p, nil
	}
	if m.cfg.UseProxiesOnly {
		return "", models.NewScrapeError(models.ErrCodeInvalidConfig, "use_proxies_only is set but no proxy is available", nil)
	}
	return "", nil
}

// Quit closes the browser and releases the extensions.
func (m *Manager) Quit(ctx context.Context) error {
	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.release()

	if m.State() != StateStarted {
		return models.NewScrapeError(models.ErrCodeSessionState, "manager is not started", nil)
	}

	var errs []error
	if err := m.session.Close(); err != nil {
		errs = append(errs, err)
	}
	if m.ext != nil && m.ext.Close != nil {
		if err := m.ext.Close(); err != nil {
			errs = append(errs, models.NewScrapeError(models.ErrCodeExtensionFailed, "failed to close extension", err))
		}
	}
	m.session = nil
	m.ext = nil
	m.setState(StateIdle, time.Time{})
	metrics.SessionsActive.Dec()
	slog.Info("scrape session closed")
	return errors.Join(errs...)
}

// Scrape runs one scrape on the open session. A request without keywords
// or keyword file fails before anything is dispatched. A call queued behind
// another scrape gives up with SCRAPE_TIMEOUT when ctx ends.
func (m *Manager) Scrape(ctx context.Context, req Request) (*models.Output, error) {
	if len(req.Keywords) == 0 && req.KeywordFile == "" {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "no keywords to scrape", nil)
	}

	if err := m.acquire(ctx); err != nil {
		return nil, err
	}
	defer m.release()

	if m.State() != StateStarted {
		return nil, models.NewScrapeError(models.ErrCodeSessionState, "manager is not started", nil)
	}

	cfg, err := m.requestConfig(req)
	if err != nil {
		return nil, err
	}
	ref := m.resolveRef(req, &cfg)
	page := m.session.Page()

	scraper, err := engine.Resolve(ref, engine.Binding{
		Config:    &cfg,
		Context:   m.runContext,
		Extension: m.ext,
		Page:      page,
	})
	if err != nil {
		return nil, err
	}

	slog.Info("scrape started", "engine", ref.Name(), "keywords", len(cfg.Keywords), "pages", cfg.NumPages)
	start := time.Now()
	run, err := scraper.Run(ctx, page)
	if err != nil {
		metrics.ScrapeDuration.WithLabelValues(ref.Name(), "error").Observe(time.Since(start).Seconds())
		return nil, err
	}
	if run == nil {
		return nil, models.NewScrapeError(models.ErrCodeInternal, fmt.Sprintf("scraper %q returned no result", ref.Name()), nil)
	}

	agg := aggregate.New(&cfg, m.ext)
	agg.SearchEngine = ref.Name()
	agg.IPInfo = m.ipInfo
	out, err := agg.Finish(ctx, run, start)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.ScrapeDuration.WithLabelValues(ref.Name(), status).Observe(time.Since(start).Seconds())
	return out, err
}

// Run starts a session, scrapes once and quits. The session is released
// even when the scrape fails.
func (m *Manager) Run(ctx context.Context, req Request) (out *models.Output, err error) {
	if err := m.Start(ctx); err != nil {
		return nil, err
	}
	defer func() {
		if qerr := m.Quit(context.WithoutCancel(ctx)); qerr != nil && err == nil {
			err = qerr
		}
	}()
	return m.Scrape(ctx, req)
}

// requestConfig derives the configuration of one scrape call.
func (m *Manager) requestConfig(req Request) (config.ScrapeConfig, error) {
	cfg, err := config.Merge(m.cfg, req.Overrides)
	if err != nil {
		return cfg, err
	}
	if req.SearchEngine != "" {
		cfg.SearchEngine = req.SearchEngine
	}
	if req.NumPages > 0 {
		cfg.NumPages = req.NumPages
	}
	if req.EngineSettings != nil {
		cfg.EngineSettings = req.EngineSettings
	}
	if len(req.Keywords) > 0 {
		cfg.Keywords = append([]string(nil), req.Keywords...)
	}
	if req.KeywordFile != "" {
		kws, err := config.ReadLines(req.KeywordFile)
		if err != nil {
			return cfg, models.NewScrapeError(models.ErrCodeInvalidInput, "cannot read keyword_file", err)
		}
		cfg.KeywordFile = req.KeywordFile
		cfg.Keywords = kws
	}
	if len(cfg.Keywords) == 0 {
		return cfg, models.NewScrapeError(models.ErrCodeInvalidInput, "no keywords to scrape", nil)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// resolveRef picks the scraper: the request's custom engine, the request's
// engine name, the manager's custom engine, then the configured engine.
func (m *Manager) resolveRef(req Request, cfg *config.ScrapeConfig) engine.Ref {
	switch {
	case req.Engine != nil:
		return *req.Engine
	case req.SearchEngine != "":
		return engine.Builtin(req.SearchEngine)
	case m.engine != nil:
		return *m.engine
	default:
		return engine.Builtin(cfg.SearchEngine)
	}
}
