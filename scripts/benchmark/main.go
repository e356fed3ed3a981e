// Command benchmark measures per-engine latency and yield against a
// running serpent server.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/use-agent/serpent/models"
)

var (
	apiURL  = flag.String("api-url", "http://localhost:8080", "serpent API base URL")
	apiKey  = flag.String("api-key", "", "API key for authenticated requests")
	runs    = flag.Int("runs", 3, "number of runs per engine")
	pages   = flag.Int("pages", 1, "result pages per run")
	keyword = flag.String("keyword", "golang context cancellation", "keyword to search")
	engines = flag.String("engines", "google,bing,duckduckgo,baidu", "comma-separated engines")
	output  = flag.String("output", "benchmark-results.json", "JSON output file path")
)

type runResult struct {
	Run        int    `json:"run"`
	LatencyMs  int64  `json:"latency_ms"`
	Requests   int    `json:"requests"`
	Items      int    `json:"items"`
	Pages      int    `json:"pages"`
	Detections int    `json:"detections"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

type engineAverages struct {
	LatencyMs  float64 `json:"latency_ms"`
	Items      float64 `json:"items"`
	Detections int     `json:"detections"`
}

type engineResult struct {
	Engine   string          `json:"engine"`
	Runs     []runResult     `json:"runs"`
	Averages *engineAverages `json:"averages,omitempty"`
}

type benchmarkReport struct {
	Timestamp     string         `json:"timestamp"`
	APIURL        string         `json:"api_url"`
	Keyword       string         `json:"keyword"`
	RunsPerEngine int            `json:"runs_per_engine"`
	Results       []engineResult `json:"results"`
}

func main() {
	flag.Parse()

	fmt.Println("=== serpent benchmark ===")
	fmt.Printf("API URL:     %s\n", *apiURL)
	fmt.Printf("Keyword:     %q\n", *keyword)
	fmt.Printf("Runs/engine: %d\n", *runs)
	fmt.Println()

	if err := checkAPI(*apiURL); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach API at %s: %v\n", *apiURL, err)
		os.Exit(1)
	}

	report := benchmarkReport{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		APIURL:        *apiURL,
		Keyword:       *keyword,
		RunsPerEngine: *runs,
	}

	for _, eng := range strings.Split(*engines, ",") {
		eng = strings.TrimSpace(eng)
		if eng == "" {
			continue
		}
		fmt.Printf("Benchmarking %s ...\n", eng)
		er := engineResult{Engine: eng}
		for i := 1; i <= *runs; i++ {
			fmt.Printf("  Run %d/%d ... ", i, *runs)
			rr := benchmarkEngine(eng, i)
			if rr.Success {
				fmt.Printf("OK  %dms  %d items\n", rr.LatencyMs, rr.Items)
			} else {
				fmt.Printf("FAILED: %s\n", rr.Error)
			}
			er.Runs = append(er.Runs, rr)
		}
		er.Averages = computeAverages(er.Runs)
		report.Results = append(report.Results, er)
		fmt.Println()
	}

	printTable(report.Results)

	if err := writeJSON(*output, report); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing JSON output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDetailed results written to %s\n", *output)
}

func checkAPI(baseURL string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(baseURL + "/api/v1/health")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func benchmarkEngine(eng string, run int) runResult {
	rr := runResult{Run: run}

	body, err := json.Marshal(models.ScrapeRequest{
		SearchEngine: eng,
		Keywords:     []string{*keyword},
		NumPages:     *pages,
	})
	if err != nil {
		rr.Error = fmt.Sprintf("marshal error: %v", err)
		return rr
	}

	req, err := http.NewRequest(http.MethodPost, *apiURL+"/api/v1/scrape", bytes.NewReader(body))
	if err != nil {
		rr.Error = fmt.Sprintf("request error: %v", err)
		return rr
	}
	req.Header.Set("Content-Type", "application/json")
	if *apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+*apiKey)
	}

	client := &http.Client{Timeout: 10 * time.Minute}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		rr.Error = fmt.Sprintf("request failed: %v", err)
		return rr
	}
	defer resp.Body.Close()

	var sr models.ScrapeResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		rr.Error = fmt.Sprintf("decode error: %v", err)
		return rr
	}
	rr.LatencyMs = time.Since(start).Milliseconds()

	if sr.Error != nil {
		rr.Error = fmt.Sprintf("[%s] %s", sr.Error.Code, sr.Error.Message)
	}
	if !sr.Success || sr.Data == nil {
		return rr
	}
	rr.Success = true
	rr.Requests = sr.Data.Metadata.NumRequests
	rr.Detections = len(sr.Data.Metadata.Detections)
	for _, p := range sr.Data.Results[*keyword] {
		rr.Pages++
		rr.Items += len(p.Items)
	}
	return rr
}

func computeAverages(runs []runResult) *engineAverages {
	var ok int
	var avg engineAverages
	for _, r := range runs {
		avg.Detections += r.Detections
		if !r.Success {
			continue
		}
		ok++
		avg.LatencyMs += float64(r.LatencyMs)
		avg.Items += float64(r.Items)
	}
	if ok == 0 {
		return nil
	}
	avg.LatencyMs /= float64(ok)
	avg.Items /= float64(ok)
	return &avg
}

func printTable(results []engineResult) {
	fmt.Println(strings.Repeat("─", 70))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Engine\tAvg Latency\tAvg Items\tDetections\tSuccess\n")
	fmt.Fprintf(w, "──────\t───────────\t─────────\t──────────\t───────\n")

	for _, r := range results {
		if r.Averages == nil {
			fmt.Fprintf(w, "%s\tFAILED\t-\t-\t0/%d\n", r.Engine, len(r.Runs))
			continue
		}
		fmt.Fprintf(w, "%s\t%sms\t%.1f\t%d\t%d/%d\n",
			r.Engine,
			humanize.Comma(int64(r.Averages.LatencyMs)),
			r.Averages.Items,
			r.Averages.Detections,
			successes(r.Runs), len(r.Runs),
		)
	}

	w.Flush()
	fmt.Println(strings.Repeat("─", 70))
}

func successes(runs []runResult) int {
	n := 0
	for _, r := range runs {
		if r.Success {
			n++
		}
	}
	return n
}

func writeJSON(path string, report benchmarkReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
