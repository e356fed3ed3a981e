package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/use-agent/serpent/models"
)

func main() {
	apiURL := os.Getenv("SERPENT_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("SERPENT_API_KEY")

	s := server.NewMCPServer(
		"serpent",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	searchTool := mcp.NewTool("search_serp",
		mcp.WithDescription("Search the web with a real browser and return the organic results (rank, title, link, snippet) for each keyword."),
		mcp.WithArray("keywords",
			mcp.Required(),
			mcp.Description("Search queries"),
			mcp.WithStringItems(),
		),
		mcp.WithString("engine",
			mcp.Description("Search engine, e.g. 'google' (default), 'bing', 'duckduckgo', 'baidu'. Use list_engines for all."),
		),
		mcp.WithNumber("pages",
			mcp.Description("Result pages per keyword (default: 1, max: 20)"),
		),
		mcp.WithString("language",
			mcp.Description("Interface language passed as the engine's hl setting, e.g. 'en'"),
		),
		mcp.WithNumber("max_age",
			mcp.Description("Accept cached results up to this age in milliseconds"),
		),
	)
	s.AddTool(searchTool, handleSearch(apiURL, apiKey))

	enginesTool := mcp.NewTool("list_engines",
		mcp.WithDescription("List the search engines the server supports."),
	)
	s.AddTool(enginesTool, handleEngines(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// apiDo sends a request to the serpent API and returns the response body.
func apiDo(ctx context.Context, client *http.Client, method, url, apiKey string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

func handleSearch(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 10 * time.Minute}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		keywords, err := request.RequireStringSlice("keywords")
		if err != nil || len(keywords) == 0 {
			return mcp.NewToolResultError("keywords is required and must be an array of strings"), nil
		}

		payload := models.ScrapeRequest{
			Keywords:     keywords,
			SearchEngine: request.GetString("engine", ""),
			NumPages:     request.GetInt("pages", 0),
			MaxAge:       request.GetInt("max_age", 0),
		}
		if lang := request.GetString("language", ""); lang != "" {
			payload.EngineSettings = map[string]string{"hl": lang}
		}

		respBody, err := apiDo(ctx, client, http.MethodPost, apiURL+"/api/v1/scrape", apiKey, payload)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var resp models.ScrapeResponse
		if err := json.Unmarshal(respBody, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}
		if !resp.Success || resp.Data == nil {
			errMsg := "search failed"
			if resp.Error != nil {
				errMsg = fmt.Sprintf("[%s] %s", resp.Error.Code, resp.Error.Message)
			}
			return mcp.NewToolResultError(errMsg), nil
		}

		return mcp.NewToolResultText(formatOutput(resp.Data, keywords)), nil
	}
}

// formatOutput renders results keyword by keyword, in request order.
func formatOutput(out *models.Output, keywords []string) string {
	var sb strings.Builder
	for _, kw := range keywords {
		fmt.Fprintf(&sb, "## %s\n\n", kw)
		pages := out.Results[kw]
		if len(pages) == 0 {
			sb.WriteString("No results.\n\n")
			continue
		}
		for _, p := range pages {
			if p.NoResults {
				fmt.Fprintf(&sb, "Page %d: no results.\n", p.Page)
			}
			for _, it := range p.Items {
				fmt.Fprintf(&sb, "%d. %s\n   %s\n", it.Rank, it.Title, it.Link)
				if it.Snippet != "" {
					fmt.Fprintf(&sb, "   %s\n", it.Snippet)
				}
			}
		}
		sb.WriteString("\n")
	}

	md := out.Metadata
	fmt.Fprintf(&sb, "---\n%s, %d requests, %d ms", md.SearchEngine, md.NumRequests, md.ElapsedTime)
	if n := len(md.Detections); n > 0 {
		fmt.Fprintf(&sb, ", captcha on %d page(s)", n)
	}
	return sb.String()
}

func handleEngines(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 30 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		respBody, err := apiDo(ctx, client, http.MethodGet, apiURL+"/api/v1/health", apiKey, nil)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		var health models.HealthResponse
		if err := json.Unmarshal(respBody, &health); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}
		engines := append([]string(nil), health.Engines...)
		sort.Strings(engines)
		return mcp.NewToolResultText(strings.Join(engines, "\n")), nil
	}
}
