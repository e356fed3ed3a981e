package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/serpent/models"
)

func TestMerge_OverridesOnlyGivenKeys(t *testing.T) {
	base := DefaultScrapeConfig()
	base.EngineSettings = map[string]string{"hl": "en", "gl": "us"}

	out, err := Merge(base, map[string]any{
		"num_pages":       3,
		"engine_settings": map[string]string{"hl": "de"},
		"sleep_range":     []float64{1, 2},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, out.NumPages)
	assert.Equal(t, map[string]string{"hl": "de"}, out.EngineSettings)
	assert.Equal(t, []float64{1, 2}, out.SleepRange)
	assert.Equal(t, base.SearchEngine, out.SearchEngine)
	assert.Equal(t, base.Headless, out.Headless)

	// base is untouched
	assert.Equal(t, 1, base.NumPages)
	assert.Equal(t, "en", base.EngineSettings["hl"])
}

func TestMerge_BadValue(t *testing.T) {
	_, err := Merge(DefaultScrapeConfig(), map[string]any{"num_pages": "three"})
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.ErrCodeInvalidConfig))
}

func TestMerge_UnknownKey(t *testing.T) {
	base := DefaultScrapeConfig()
	out, err := Merge(base, map[string]any{"throw_on_detecton": true})
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.ErrCodeInvalidConfig))
	assert.Contains(t, err.Error(), "throw_on_detecton")
	assert.False(t, out.ThrowOnDetection)
}

func TestMerge_EngineSettingsAlias(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]any
		want      map[string]string
	}{
		{
			name: "settings of the configured engine",
			overrides: map[string]any{
				"google_settings": map[string]any{"gl": "us", "hl": "en", "start": float64(0), "num": float64(10)},
			},
			want: map[string]string{"gl": "us", "hl": "en", "start": "0", "num": "10"},
		},
		{
			name: "settings of the overridden engine",
			overrides: map[string]any{
				"search_engine": "bing",
				"bing_settings": map[string]any{"cc": "de"},
			},
			want: map[string]string{"cc": "de"},
		},
		{
			name: "other engines are ignored",
			overrides: map[string]any{
				"bing_settings": map[string]any{"cc": "de"},
			},
			want: nil,
		},
		{
			name: "explicit engine_settings wins",
			overrides: map[string]any{
				"engine_settings": map[string]any{"hl": "fr"},
				"google_settings": map[string]any{"hl": "en"},
			},
			want: map[string]string{"hl": "fr"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Merge(DefaultScrapeConfig(), tt.overrides)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.EngineSettings)
		})
	}
}

func TestClone_Independent(t *testing.T) {
	c := DefaultScrapeConfig()
	c.Headers = map[string]string{"X-A": "1"}
	c.Proxies = []string{"http://p1"}

	cl := c.Clone()
	cl.Headers["X-A"] = "2"
	cl.Proxies[0] = "http://p2"
	cl.Keywords[0] = "changed"

	assert.Equal(t, "1", c.Headers["X-A"])
	assert.Equal(t, "http://p1", c.Proxies[0])
	assert.Equal(t, "nodejs rocks", c.Keywords[0])
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *ScrapeConfig)
		ok     bool
	}{
		{"defaults", func(c *ScrapeConfig) {}, true},
		{"proxy and list", func(c *ScrapeConfig) { c.Proxy = "http://a"; c.Proxies = []string{"http://b"} }, false},
		{"proxies only without proxy", func(c *ScrapeConfig) { c.UseProxiesOnly = true }, false},
		{"proxies only with proxy", func(c *ScrapeConfig) { c.UseProxiesOnly = true; c.Proxy = "socks5://a:1" }, true},
		{"zero pages", func(c *ScrapeConfig) { c.NumPages = 0 }, false},
		{"debug level", func(c *ScrapeConfig) { c.DebugLevel = 9 }, false},
		{"sleep range reversed", func(c *ScrapeConfig) { c.SleepRange = []float64{3, 1} }, false},
		{"sleep range one bound", func(c *ScrapeConfig) { c.SleepRange = []float64{3} }, false},
		{"bad webhook", func(c *ScrapeConfig) { c.WebhookURL = "not a url" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultScrapeConfig()
			tt.mutate(&c)
			err := c.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, models.IsCode(err, models.ErrCodeInvalidConfig))
		})
	}
}

func TestSleep(t *testing.T) {
	c := DefaultScrapeConfig()
	lo, hi, err := c.Sleep()
	require.NoError(t, err)
	assert.Zero(t, lo)
	assert.Zero(t, hi)

	c.SleepRange = []float64{0.5, 2}
	lo, hi, err = c.Sleep()
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, lo)
	assert.Equal(t, 2*time.Second, hi)
}

func TestRenderTimeout(t *testing.T) {
	c := DefaultScrapeConfig()
	c.RenderTimeoutMs = 0
	assert.Equal(t, 10*time.Second, c.RenderTimeout())
	c.RenderTimeoutMs = 2500
	assert.Equal(t, 2500*time.Millisecond, c.RenderTimeout())
}

func TestLoadLists(t *testing.T) {
	dir := t.TempDir()
	kw := filepath.Join(dir, "keywords.txt")
	px := filepath.Join(dir, "proxies.txt")
	require.NoError(t, os.WriteFile(kw, []byte("one\n\n  two  \nthree\n"), 0o644))
	require.NoError(t, os.WriteFile(px, []byte("http://p1:8080\nsocks5://p2:1080\n"), 0o644))

	c := DefaultScrapeConfig()
	c.KeywordFile = kw
	c.ProxyFile = px
	require.NoError(t, c.LoadLists())

	assert.Equal(t, []string{"one", "two", "three"}, c.Keywords)
	assert.Equal(t, []string{"http://p1:8080", "socks5://p2:1080"}, c.Proxies)
}

func TestLoadLists_MissingFileKeepsInline(t *testing.T) {
	c := DefaultScrapeConfig()
	c.KeywordFile = filepath.Join(t.TempDir(), "absent.txt")
	require.NoError(t, c.LoadLists())
	assert.Equal(t, []string{"nodejs rocks"}, c.Keywords)
}

func TestSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelError, SlogLevel(0))
	assert.Equal(t, slog.LevelInfo, SlogLevel(1))
	assert.Equal(t, slog.LevelDebug, SlogLevel(3))
}

func TestLoad_ScrapeConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scrape.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"search_engine":"bing","num_pages":2}`), 0o644))
	t.Setenv("SERPENT_SCRAPE_CONFIG", path)
	t.Setenv("SERPENT_PORT", "9090")
	t.Setenv("SERPENT_HEADLESS", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "bing", cfg.Scrape.SearchEngine)
	assert.Equal(t, 2, cfg.Scrape.NumPages)
	assert.False(t, cfg.Scrape.Headless)
}
