package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/use-agent/serpent/config"
	"github.com/use-agent/serpent/manager"
	"github.com/use-agent/serpent/models"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape result pages for a list of keywords",
	RunE:  runScrape,
}

// flagKeys maps flag names to the option keys they set.
var flagKeys = map[string]string{
	"engine":             "search_engine",
	"keyword":            "keywords",
	"keyword-file":       "keyword_file",
	"pages":              "num_pages",
	"setting":            "engine_settings",
	"output":             "output_file",
	"compress":           "compress",
	"html":               "html_output",
	"markdown":           "markdown_output",
	"screenshot":         "screen_output",
	"headless":           "headless",
	"proxy":              "proxy",
	"proxy-file":         "proxy_file",
	"debug-level":        "debug_level",
	"throw-on-detection": "throw_on_detection",
	"random-user-agent":  "random_user_agent",
	"log-ip":             "log_ip_address",
	"log-headers":        "log_http_headers",
	"custom-func":        "custom_func",
	"sqlite":             "sqlite_path",
	"webhook":            "webhook_url",
}

func init() {
	rootCmd.AddCommand(scrapeCmd)

	d := config.DefaultScrapeConfig()
	flags := scrapeCmd.Flags()

	flags.StringP("engine", "e", d.SearchEngine, "search engine, see serpent-cli engines")
	flags.StringSliceP("keyword", "k", nil, "keyword to scrape (can be repeated)")
	flags.StringP("keyword-file", "f", "", "file with one keyword per line")
	flags.IntP("pages", "p", d.NumPages, "result pages per keyword")
	flags.StringToString("setting", nil, "engine setting as key=value, e.g. hl=en (can be repeated)")

	flags.StringP("output", "o", "", "write results to this file instead of stdout")
	flags.Bool("compress", false, "compress results (base64 zlib)")
	flags.Bool("html", false, "include page HTML in results")
	flags.Bool("markdown", false, "include the result nodes as Markdown")
	flags.Bool("screenshot", false, "include page screenshots in results")

	flags.Bool("headless", d.Headless, "run the browser headless")
	flags.String("proxy", "", "proxy for all requests, e.g. socks5://127.0.0.1:1080")
	flags.String("proxy-file", "", "file with one proxy per line")
	flags.Float64Slice("sleep-range", nil, "random pause between requests in seconds, as min,max")
	flags.Bool("random-user-agent", false, "pick a random desktop user agent")
	flags.Bool("log-ip", false, "report the egress IP address in metadata")
	flags.Bool("log-headers", false, "log status and headers of every page response")
	flags.Bool("throw-on-detection", false, "abort when a captcha page is detected")

	flags.String("custom-func", "", "executable receiving results and metadata on stdin")
	flags.String("sqlite", "", "store results in this SQLite database")
	flags.String("webhook", "", "post results and metadata to this URL")

	flags.IntP("debug-level", "d", d.DebugLevel, "log verbosity from 0 (errors) to 4")
	flags.Duration("timeout", 30*time.Minute, "overall scrape timeout")

	for name, key := range flagKeys {
		_ = viper.BindPFlag(key, flags.Lookup(name))
	}
}

// overrides collects the options set in the config file, the environment
// or on the command line.
func overrides(cmd *cobra.Command) (map[string]any, error) {
	out := make(map[string]any)
	for key := range viper.AllSettings() {
		if viper.IsSet(key) {
			out[key] = viper.Get(key)
		}
	}
	// viper renders float slices as strings.
	if cmd.Flags().Changed("sleep-range") {
		r, err := cmd.Flags().GetFloat64Slice("sleep-range")
		if err != nil {
			return nil, err
		}
		out["sleep_range"] = r
	}
	return out, nil
}

func runScrape(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ov, err := overrides(cmd)
	if err != nil {
		return err
	}
	cfg, err := config.Merge(config.DefaultScrapeConfig(), ov)
	if err != nil {
		return err
	}
	if _, ok := ov["keywords"]; !ok && cfg.KeywordFile == "" {
		return fmt.Errorf("no keywords: use --keyword or --keyword-file")
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.SlogLevel(cfg.DebugLevel),
	})))

	mgr, err := manager.New(cfg)
	if err != nil {
		return err
	}

	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancelTimeout := context.WithTimeout(ctx, timeout)
	defer cancelTimeout()

	mc := mgr.Config()
	out, err := mgr.Run(ctx, manager.Request{Keywords: mc.Keywords})
	if err != nil {
		return err
	}

	if mc.OutputFile == "" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "    ")
		if err := enc.Encode(out); err != nil {
			return err
		}
	}
	printSummary(cmd, out, len(mc.Keywords), mc.OutputFile)
	return nil
}

func printSummary(cmd *cobra.Command, out *models.Output, keywords int, outputFile string) {
	md := out.Metadata
	w := cmd.ErrOrStderr()
	fmt.Fprintf(w, "%s: %s keywords, %s requests in %s (%.0f ms/keyword)\n",
		md.SearchEngine,
		humanize.Comma(int64(keywords)),
		humanize.Comma(int64(md.NumRequests)),
		time.Duration(md.ElapsedTime)*time.Millisecond,
		md.MsPerKeyword)
	if n := len(md.Detections); n > 0 {
		fmt.Fprintf(w, "captcha detected on %d page(s)\n", n)
	}
	if n := len(md.Errors); n > 0 {
		fmt.Fprintf(w, "%d page(s) failed\n", n)
	}
	if outputFile != "" {
		if st, err := os.Stat(outputFile); err == nil {
			fmt.Fprintf(w, "wrote %s to %s\n", humanize.Bytes(uint64(st.Size())), outputFile)
		}
	}
}
