package config

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/use-agent/serpent/models"
)

// ScrapeConfig is the per-run configuration of a scrape manager.
// JSON keys are the option names accepted by the API, the CLI config file
// and Merge.
type ScrapeConfig struct {
	// SearchEngine is the built-in engine identifier, e.g. "google".
	SearchEngine string `json:"search_engine"`

	Keywords    []string `json:"keywords"`
	KeywordFile string   `json:"keyword_file"`

	// NumPages is the number of result pages scraped per keyword.
	NumPages int `json:"num_pages" validate:"min=1,max=100"`

	// EngineSettings are engine-specific query parameters (gl, hl, num...).
	EngineSettings map[string]string `json:"engine_settings"`

	Headless               bool     `json:"headless"`
	BrowserBin             string   `json:"browser_bin"`
	ChromeFlags            []string `json:"chrome_flags"`
	UserAgent              string   `json:"user_agent"`
	RandomUserAgent        bool     `json:"random_user_agent"`
	BlockAssets            bool     `json:"block_assets"`
	BlockRegex             []string `json:"block_regex"`
	ApplyEvasionTechniques bool     `json:"apply_evasion_techniques"`

	// Headers are extra HTTP headers sent with every browser request.
	Headers map[string]string `json:"headers"`

	// DebugLevel ranges from 0 (errors only) to 4 (everything).
	DebugLevel int `json:"debug_level" validate:"min=0,max=4"`

	Proxy          string   `json:"proxy"`
	ProxyFile      string   `json:"proxy_file"`
	Proxies        []string `json:"proxies"`
	UseProxiesOnly bool     `json:"use_proxies_only"`

	// SleepRange is a [min, max] interval in seconds drawn before every
	// request but the first. Empty disables pacing.
	SleepRange []float64 `json:"sleep_range"`

	// RenderTimeoutMs bounds the wait for result markers on each page.
	RenderTimeoutMs int `json:"render_timeout_ms" validate:"min=0"`

	// Retries is the number of extra attempts for a failing page.
	Retries int `json:"retries" validate:"min=0,max=10"`

	// StopOnRepeat ends a keyword when a page's results fingerprint within
	// RepeatDistance bits of the previous page. Off by default.
	StopOnRepeat   bool `json:"stop_on_repeat"`
	RepeatDistance int  `json:"repeat_distance" validate:"min=0,max=64"`

	HTMLOutput      bool   `json:"html_output"`
	CleanHTMLOutput bool   `json:"clean_html_output"`
	CleanDataImages bool   `json:"clean_data_images"`
	MarkdownOutput  bool   `json:"markdown_output"`
	ScreenOutput    bool   `json:"screen_output"`
	Compress        bool   `json:"compress"`
	OutputFile      string `json:"output_file"`

	ThrowOnDetection bool `json:"throw_on_detection"`
	LogIPAddress     bool `json:"log_ip_address"`

	// LogHTTPHeaders logs the status and headers of every document response.
	LogHTTPHeaders bool `json:"log_http_headers"`

	// CustomFunc is the path of an executable invoked with results and
	// metadata as JSON on stdin.
	CustomFunc    string `json:"custom_func"`
	WebhookURL    string `json:"webhook_url" validate:"omitempty,url"`
	WebhookSecret string `json:"webhook_secret"`
	SQLitePath    string `json:"sqlite_path"`

	// ChunkLines and JobName identify a slice of a larger job in metadata.
	ChunkLines string `json:"chunk_lines"`
	JobName    string `json:"job_name"`
}

// DefaultScrapeConfig returns the baseline every override is merged onto.
func DefaultScrapeConfig() ScrapeConfig {
	return ScrapeConfig{
		SearchEngine:           "google",
		Keywords:               []string{"nodejs rocks"},
		NumPages:               1,
		Headless:               true,
		UserAgent:              "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		BlockAssets:            true,
		ApplyEvasionTechniques: true,
		DebugLevel:             1,
		RenderTimeoutMs:        10000,
		RepeatDistance:         3,
		CleanHTMLOutput:        true,
		CleanDataImages:        true,
	}
}

// Clone returns a copy that shares no slices or maps with c.
func (c ScrapeConfig) Clone() ScrapeConfig {
	out := c
	out.Keywords = cloneStrings(c.Keywords)
	out.ChromeFlags = cloneStrings(c.ChromeFlags)
	out.BlockRegex = cloneStrings(c.BlockRegex)
	out.Proxies = cloneStrings(c.Proxies)
	if c.SleepRange != nil {
		out.SleepRange = append([]float64(nil), c.SleepRange...)
	}
	out.EngineSettings = cloneMap(c.EngineSettings)
	out.Headers = cloneMap(c.Headers)
	return out
}

// Merge shallow-overrides base with the given keys. Each present key
// replaces the corresponding field entirely; absent keys keep the base value.
// A "<engine>_settings" key stands for engine_settings when it names the
// effective search engine. Unknown keys are INVALID_CONFIG. base is not
// modified.
func Merge(base ScrapeConfig, overrides map[string]any) (ScrapeConfig, error) {
	out := base.Clone()
	if len(overrides) == 0 {
		return out, nil
	}
	overrides = engineSettingsAlias(base.SearchEngine, overrides)
	// Maps are replaced, not merged key by key.
	if _, ok := overrides["engine_settings"]; ok {
		out.EngineSettings = nil
	}
	if _, ok := overrides["headers"]; ok {
		out.Headers = nil
	}
	data, err := json.Marshal(overrides)
	if err != nil {
		return base, models.NewScrapeError(models.ErrCodeInvalidConfig, "overrides are not serializable", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return base, models.NewScrapeError(models.ErrCodeInvalidConfig, "invalid override", err)
	}
	return out, nil
}

// engineSettingsAlias returns a copy of overrides where per-engine settings
// keys are folded into engine_settings. An explicit engine_settings wins;
// settings for other engines are dropped. Setting values are stringified.
func engineSettingsAlias(engine string, overrides map[string]any) map[string]any {
	if e, ok := overrides["search_engine"].(string); ok && e != "" {
		engine = e
	}
	out := make(map[string]any, len(overrides))
	for k, v := range overrides {
		if k == "engine_settings" || !strings.HasSuffix(k, "_settings") {
			out[k] = v
			continue
		}
		if _, explicit := overrides["engine_settings"]; explicit || strings.TrimSuffix(k, "_settings") != engine {
			slog.Debug("ignoring settings not used by this engine", "key", k, "engine", engine)
			continue
		}
		out["engine_settings"] = v
	}
	if v, ok := out["engine_settings"]; ok {
		out["engine_settings"] = stringifySettings(v)
	}
	return out
}

// stringifySettings turns decoded JSON settings such as {"num": 10} into
// query parameter strings. Other shapes are left for the decoder to reject.
func stringifySettings(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		if val == nil {
			continue
		}
		out[k] = fmt.Sprint(val)
	}
	return out
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the invariants that do not depend on the filesystem.
func (c *ScrapeConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return models.NewScrapeError(models.ErrCodeInvalidConfig, "invalid scrape config", err)
	}
	if c.Proxy != "" && len(c.Proxies) > 0 {
		return models.NewScrapeError(models.ErrCodeInvalidConfig,
			"either use a proxy_file or specify a proxy for all connections, not both", nil)
	}
	if c.UseProxiesOnly && c.Proxy == "" && len(c.Proxies) == 0 && c.ProxyFile == "" {
		return models.NewScrapeError(models.ErrCodeInvalidConfig,
			"use_proxies_only is set but no proxy is configured", nil)
	}
	if _, _, err := c.Sleep(); err != nil {
		return err
	}
	return nil
}

// Sleep returns the configured pacing interval; both bounds are zero when
// pacing is off.
func (c *ScrapeConfig) Sleep() (lo, hi time.Duration, err error) {
	if len(c.SleepRange) == 0 {
		return 0, 0, nil
	}
	if len(c.SleepRange) != 2 || c.SleepRange[0] < 0 || c.SleepRange[1] < c.SleepRange[0] {
		return 0, 0, models.NewScrapeError(models.ErrCodeInvalidConfig,
			fmt.Sprintf("sleep_range is not a valid [min, max] interval: %v", c.SleepRange), nil)
	}
	return secondsToDuration(c.SleepRange[0]), secondsToDuration(c.SleepRange[1]), nil
}

// RenderTimeout returns the render-wait bound.
func (c *ScrapeConfig) RenderTimeout() time.Duration {
	if c.RenderTimeoutMs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.RenderTimeoutMs) * time.Millisecond
}

// LoadLists replaces Keywords and Proxies with the contents of KeywordFile
// and ProxyFile when those files exist.
func (c *ScrapeConfig) LoadLists() error {
	if c.KeywordFile != "" && fileExists(c.KeywordFile) {
		kws, err := ReadLines(c.KeywordFile)
		if err != nil {
			return models.NewScrapeError(models.ErrCodeInvalidConfig, "failed to read keyword_file", err)
		}
		c.Keywords = kws
	}
	if c.ProxyFile != "" && fileExists(c.ProxyFile) {
		proxies, err := ReadLines(c.ProxyFile)
		if err != nil {
			return models.NewScrapeError(models.ErrCodeInvalidConfig, "failed to read proxy_file", err)
		}
		c.Proxies = proxies
		slog.Info("proxies read from file", "count", len(proxies), "file", c.ProxyFile)
	}
	return nil
}

// ReadLines returns the trimmed, non-blank lines of a file.
func ReadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// SlogLevel maps debug_level to a slog level.
func SlogLevel(debugLevel int) slog.Level {
	switch {
	case debugLevel <= 0:
		return slog.LevelError
	case debugLevel == 1:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
