package manager

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/serpent/browser"
	"github.com/use-agent/serpent/config"
	"github.com/use-agent/serpent/engine"
	"github.com/use-agent/serpent/extension"
	"github.com/use-agent/serpent/models"
)

const resultPage = `<html><body><div id="search"><div class="g">
<a href="https://example.com/"><h3>Example</h3></a><div class="VwiC3b">Snippet</div>
</div></div></body></html>`

type stubPage struct {
	url string
}

func (p *stubPage) Navigate(_ context.Context, u string) error { p.url = u; return nil }
func (p *stubPage) WaitVisible(context.Context, string) error  { return nil }
func (p *stubPage) HTML(context.Context) (string, error)       { return resultPage, nil }
func (p *stubPage) URL(context.Context) (string, error)        { return p.url, nil }
func (p *stubPage) Screenshot(context.Context) ([]byte, error) { return nil, errors.New("unsupported") }

type stubSession struct {
	page   *stubPage
	closed int
}

func (s *stubSession) Page() engine.Page { return s.page }
func (s *stubSession) Close() error      { s.closed++; return nil }

type stubLauncher struct {
	mu       sync.Mutex
	err      error
	launches []browser.LaunchOptions
	sessions []*stubSession
}

func (l *stubLauncher) Launch(_ context.Context, opts browser.LaunchOptions) (Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launches = append(l.launches, opts)
	if l.err != nil {
		return nil, l.err
	}
	s := &stubSession{page: &stubPage{}}
	l.sessions = append(l.sessions, s)
	return s, nil
}

func newManager(t *testing.T, cfg config.ScrapeConfig, opts ...Option) (*Manager, *stubLauncher) {
	t.Helper()
	l := &stubLauncher{}
	m, err := New(cfg, append([]Option{WithLauncher(l)}, opts...)...)
	require.NoError(t, err)
	return m, l
}

func TestStart_LaunchesOneBrowser(t *testing.T) {
	m, l := newManager(t, config.DefaultScrapeConfig())
	ctx := context.Background()

	require.NoError(t, m.Start(ctx))
	assert.Equal(t, StateStarted, m.State())
	assert.False(t, m.StartedAt().IsZero())

	err := m.Start(ctx)
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeSessionState, models.CodeOf(err))
	assert.Len(t, l.launches, 1)

	opts := l.launches[0]
	assert.True(t, opts.Headless)
	assert.True(t, opts.Evasion)
	assert.True(t, opts.BlockAssets)
	assert.Contains(t, opts.Flags, "--no-sandbox")
	assert.Contains(t, opts.Flags, "--user-agent="+config.DefaultScrapeConfig().UserAgent)
	assert.NotContains(t, opts.Flags, "--proxy-server=")
}

func TestQuit_States(t *testing.T) {
	m, l := newManager(t, config.DefaultScrapeConfig())
	ctx := context.Background()

	err := m.Quit(ctx)
	assert.Equal(t, models.ErrCodeSessionState, models.CodeOf(err))

	require.NoError(t, m.Start(ctx))
	require.NoError(t, m.Quit(ctx))
	assert.Equal(t, StateIdle, m.State())
	assert.Equal(t, 1, l.sessions[0].closed)

	err = m.Quit(ctx)
	assert.Equal(t, models.ErrCodeSessionState, models.CodeOf(err))
	assert.Equal(t, 1, l.sessions[0].closed)
}

func TestNew_ProxyConflict(t *testing.T) {
	cfg := config.DefaultScrapeConfig()
	cfg.Proxy = "http://one:8080"
	cfg.Proxies = []string{"http://two:8080"}

	l := &stubLauncher{}
	_, err := New(cfg, WithLauncher(l))
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeInvalidConfig, models.CodeOf(err))
	assert.Empty(t, l.launches)
}

func TestNew_ProxyFileConflict(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxies.txt")
	require.NoError(t, os.WriteFile(path, []byte("http://a:1\nhttp://b:2\n"), 0o644))
	cfg := config.DefaultScrapeConfig()
	cfg.Proxy = "http://one:8080"
	cfg.ProxyFile = path

	_, err := New(cfg)
	assert.Equal(t, models.ErrCodeInvalidConfig, models.CodeOf(err))
}

func TestNew_InvalidSleepRange(t *testing.T) {
	cfg := config.DefaultScrapeConfig()
	cfg.SleepRange = []float64{5, 1}
	_, err := New(cfg)
	assert.Equal(t, models.ErrCodeInvalidConfig, models.CodeOf(err))
}

func TestStart_MissingCustomFunc(t *testing.T) {
	cfg := config.DefaultScrapeConfig()
	cfg.CustomFunc = filepath.Join(t.TempDir(), "missing-hook")
	m, l := newManager(t, cfg)

	err := m.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeInvalidConfig, models.CodeOf(err))
	assert.Empty(t, l.launches)
	assert.Equal(t, StateIdle, m.State())
}

func TestStart_LaunchFailure(t *testing.T) {
	closed := false
	m, l := newManager(t, config.DefaultScrapeConfig(), WithExtension(func(extension.Env) (*extension.Extension, error) {
		return &extension.Extension{Name: "x", Close: func() error { closed = true; return nil }}, nil
	}))
	l.err = errors.New("chrome not found")

	err := m.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeBrowserCrash, models.CodeOf(err))
	assert.Equal(t, StateIdle, m.State())
	assert.True(t, closed)

	l.err = nil
	require.NoError(t, m.Start(context.Background()), "a failed start leaves no session behind")
}

func TestStart_ProxyRotation(t *testing.T) {
	cfg := config.DefaultScrapeConfig()
	cfg.Proxies = []string{"http://p1:1", "http://p2:2"}
	m, l := newManager(t, cfg)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, m.Start(ctx))
		require.NoError(t, m.Quit(ctx))
	}
	require.Len(t, l.launches, 3)
	assert.Contains(t, l.launches[0].Flags, "--proxy-server=http://p1:1")
	assert.Contains(t, l.launches[1].Flags, "--proxy-server=http://p2:2")
	assert.Contains(t, l.launches[2].Flags, "--proxy-server=http://p1:1")
}

func TestStart_UseProxiesOnlyWithoutProxy(t *testing.T) {
	cfg := config.DefaultScrapeConfig()
	cfg.UseProxiesOnly = true
	cfg.ProxyFile = filepath.Join(t.TempDir(), "absent.txt")
	m, l := newManager(t, cfg)

	err := m.Start(context.Background())
	assert.Equal(t, models.ErrCodeInvalidConfig, models.CodeOf(err))
	assert.Empty(t, l.launches)
}

func TestNew_KeywordFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keywords.txt")
	require.NoError(t, os.WriteFile(path, []byte("first\n\n  second  \n\t\nthird\n\n"), 0o644))
	cfg := config.DefaultScrapeConfig()
	cfg.KeywordFile = path

	m, _ := newManager(t, cfg)
	assert.Equal(t, []string{"first", "second", "third"}, m.Config().Keywords)
}

func TestScrape_NoKeywords(t *testing.T) {
	calls := 0
	m, _ := newManager(t, config.DefaultScrapeConfig(), WithEngine("counting", func(engine.Binding) (engine.Scraper, error) {
		calls++
		return nil, errors.New("unreachable")
	}))
	require.NoError(t, m.Start(context.Background()))

	_, err := m.Scrape(context.Background(), Request{})
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeInvalidInput, models.CodeOf(err))
	assert.Zero(t, calls)
}

func TestScrape_BeforeStart(t *testing.T) {
	m, _ := newManager(t, config.DefaultScrapeConfig())
	_, err := m.Scrape(context.Background(), Request{Keywords: []string{"a"}})
	assert.Equal(t, models.ErrCodeSessionState, models.CodeOf(err))
}

func TestScrape_UnknownEngine(t *testing.T) {
	m, _ := newManager(t, config.DefaultScrapeConfig())
	require.NoError(t, m.Start(context.Background()))

	_, err := m.Scrape(context.Background(), Request{Keywords: []string{"a"}, SearchEngine: "altavista"})
	assert.Equal(t, models.ErrCodeUnknownEngine, models.CodeOf(err))
}

func TestScrape_GoogleEndToEnd(t *testing.T) {
	var seen *models.Metadata
	m, _ := newManager(t, config.DefaultScrapeConfig(), WithExtension(func(extension.Env) (*extension.Extension, error) {
		return &extension.Extension{HandleMetadata: func(_ context.Context, md *models.Metadata) error {
			seen = md
			return nil
		}}, nil
	}))
	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	defer m.Quit(ctx)

	out, err := m.Scrape(ctx, Request{Keywords: []string{"a"}})
	require.NoError(t, err)

	require.Len(t, out.Results, 1)
	require.Len(t, out.Results["a"], 1)
	items := out.Results["a"][0].Items
	require.Len(t, items, 1)
	assert.Equal(t, models.SerpItem{Rank: 1, Title: "Example", Link: "https://example.com/", Snippet: "Snippet"}, items[0])
	assert.Equal(t, 1, out.Metadata.NumRequests)
	assert.Equal(t, "google", out.Metadata.SearchEngine)
	require.NotNil(t, seen)
	assert.Equal(t, 1, seen.NumRequests)
}

func TestScrape_RequestOverridesDoNotLeak(t *testing.T) {
	m, _ := newManager(t, config.DefaultScrapeConfig())
	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	defer m.Quit(ctx)

	out, err := m.Scrape(ctx, Request{
		Keywords:  []string{"a"},
		Overrides: map[string]any{"compress": true},
	})
	require.NoError(t, err)
	assert.True(t, out.IsCompressed())
	assert.False(t, m.Config().Compress)
}

func TestScrape_CustomEngine(t *testing.T) {
	m, _ := newManager(t, config.DefaultScrapeConfig(),
		WithContext(map[string]any{"tenant": "t1"}),
		WithEngine("mine", func(b engine.Binding) (engine.Scraper, error) {
			assert.Equal(t, "t1", b.Context["tenant"])
			assert.NotNil(t, b.Page)
			return scraperFunc(func(_ context.Context, _ engine.Page) (*engine.RunResult, error) {
				return &engine.RunResult{
					Results:     models.Results{"a": {{Page: 1}}},
					NumRequests: 2,
				}, nil
			}), nil
		}))
	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	defer m.Quit(ctx)

	out, err := m.Scrape(ctx, Request{Keywords: []string{"a"}})
	require.NoError(t, err)
	assert.Equal(t, "mine", out.Metadata.SearchEngine)
	assert.Equal(t, 2, out.Metadata.NumRequests)
}

func TestScrape_KeywordFileRequest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kw.txt")
	require.NoError(t, os.WriteFile(path, []byte("x\n\ny\n"), 0o644))
	m, _ := newManager(t, config.DefaultScrapeConfig())
	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	defer m.Quit(ctx)

	out, err := m.Scrape(ctx, Request{KeywordFile: path})
	require.NoError(t, err)
	assert.Len(t, out.Results, 2)
	assert.Equal(t, 2, out.Metadata.NumRequests)

	_, err = m.Scrape(ctx, Request{KeywordFile: filepath.Join(t.TempDir(), "nope")})
	assert.Equal(t, models.ErrCodeInvalidInput, models.CodeOf(err))
}

func TestRun_ReleasesSessionOnFailure(t *testing.T) {
	m, l := newManager(t, config.DefaultScrapeConfig(), WithEngine("failing", func(engine.Binding) (engine.Scraper, error) {
		return scraperFunc(func(context.Context, engine.Page) (*engine.RunResult, error) {
			return nil, models.NewScrapeError(models.ErrCodeDetected, "blocked", nil)
		}), nil
	}))

	_, err := m.Run(context.Background(), Request{Keywords: []string{"a"}})
	assert.Equal(t, models.ErrCodeDetected, models.CodeOf(err))
	assert.Equal(t, StateIdle, m.State())
	require.Len(t, l.sessions, 1)
	assert.Equal(t, 1, l.sessions[0].closed)
}

func TestStart_LogIPAddress(t *testing.T) {
	cfg := config.DefaultScrapeConfig()
	cfg.LogIPAddress = true
	cfg.Proxy = "socks5://127.0.0.1:9050"
	var gotProxy string
	m, _ := newManager(t, cfg, WithIPLookup(func(_ context.Context, proxy, _ string) (*models.IPInfo, error) {
		gotProxy = proxy
		return &models.IPInfo{IP: "198.51.100.1"}, nil
	}))
	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	defer m.Quit(ctx)

	out, err := m.Scrape(ctx, Request{Keywords: []string{"a"}})
	require.NoError(t, err)
	assert.Equal(t, "socks5://127.0.0.1:9050", gotProxy)
	require.NotNil(t, out.Metadata.IPInfo)
	assert.Equal(t, "198.51.100.1", out.Metadata.IPInfo.IP)
}

func TestState_DoesNotWaitOnRunningScrape(t *testing.T) {
	running := make(chan struct{})
	unblock := make(chan struct{})
	m, _ := newManager(t, config.DefaultScrapeConfig(),
		WithEngine("slow", func(engine.Binding) (engine.Scraper, error) {
			return scraperFunc(func(context.Context, engine.Page) (*engine.RunResult, error) {
				close(running)
				<-unblock
				return &engine.RunResult{Results: models.Results{"a": {{Page: 1}}}}, nil
			}), nil
		}))
	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	defer m.Quit(ctx)

	done := make(chan error, 1)
	go func() {
		_, err := m.Scrape(ctx, Request{Keywords: []string{"a"}})
		done <- err
	}()
	<-running

	states := make(chan State, 1)
	go func() { states <- m.State() }()
	select {
	case st := <-states:
		assert.Equal(t, StateStarted, st)
	case <-time.After(time.Second):
		t.Fatal("State blocked while a scrape was running")
	}
	assert.False(t, m.StartedAt().IsZero())

	queuedCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	queued := make(chan error, 1)
	go func() {
		_, err := m.Scrape(queuedCtx, Request{Keywords: []string{"b"}})
		queued <- err
	}()
	select {
	case err := <-queued:
		assert.True(t, models.IsCode(err, models.ErrCodeTimeout), "got %v", err)
	case <-time.After(time.Second):
		t.Fatal("queued Scrape ignored its deadline")
	}

	close(unblock)
	require.NoError(t, <-done)
}

type scraperFunc func(context.Context, engine.Page) (*engine.RunResult, error)

func (f scraperFunc) Run(ctx context.Context, p engine.Page) (*engine.RunResult, error) {
	return f(ctx, p)
}
