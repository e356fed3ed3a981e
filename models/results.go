package models

import (
	"encoding/json"
	"time"
)

// SerpItem is a single organic (or vertical-specific) search result.
type SerpItem struct {
	Rank        int               `json:"rank"`
	Title       string            `json:"title"`
	Link        string            `json:"link"`
	VisibleLink string            `json:"visible_link,omitempty"`
	Snippet     string            `json:"snippet,omitempty"`
	Date        string            `json:"date,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// PageResult is the outcome of one SERP page for one keyword.
type PageResult struct {
	Page      int        `json:"page"`
	URL       string     `json:"url"`
	Timestamp time.Time  `json:"time"`
	NoResults bool       `json:"no_results"`
	Items     []SerpItem `json:"results"`

	// HTML is the (optionally cleaned) page snapshot, set when html_output is on.
	HTML string `json:"html,omitempty"`

	// Markdown renders the result nodes, set when markdown_output is on.
	Markdown string `json:"markdown,omitempty"`

	// Screenshot is a base64 PNG, set when screen_output is on.
	Screenshot string `json:"screenshot,omitempty"`
}

// Results maps each keyword to its ordered per-page results.
type Results map[string][]PageResult

// Detection records a page that looked like a bot challenge.
type Detection struct {
	Keyword string `json:"keyword"`
	Page    int    `json:"page"`
	URL     string `json:"url"`
	Reason  string `json:"reason"`
}

// PageError records a page that could not be scraped after all retries.
type PageError struct {
	Keyword string `json:"keyword"`
	Page    int    `json:"page"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// IPInfo is the egress address reported for the session.
type IPInfo struct {
	IP      string `json:"ip"`
	Country string `json:"country,omitempty"`
	Org     string `json:"org,omitempty"`
}

// Metadata describes a completed scrape run.
type Metadata struct {
	SearchEngine string      `json:"search_engine"`
	StartedAt    time.Time   `json:"started_at"`
	ElapsedTime  int64       `json:"elapsed_time"`
	MsPerKeyword float64     `json:"ms_per_keyword"`
	NumRequests  int         `json:"num_requests"`
	ChunkLines   string      `json:"chunk_lines,omitempty"`
	ID           string      `json:"id,omitempty"`
	Detections   []Detection `json:"detections,omitempty"`
	Errors       []PageError `json:"errors,omitempty"`
	IPInfo       *IPInfo     `json:"ip_info,omitempty"`
}

// Output is the value returned by a scrape: either the structured
// results or, when compression is enabled, the encoded blob.
type Output struct {
	Results    Results
	Compressed string
	Metadata   Metadata
}

// IsCompressed reports whether the results were replaced by a compressed blob.
func (o *Output) IsCompressed() bool {
	return o.Compressed != ""
}

// MarshalJSON emits {"results": ..., "metadata": ...}, where results is the
// compressed string when compression was applied.
func (o Output) MarshalJSON() ([]byte, error) {
	var results any = o.Results
	if o.Compressed != "" {
		results = o.Compressed
	}
	return json.Marshal(struct {
		Results  any      `json:"results"`
		Metadata Metadata `json:"metadata"`
	}{results, o.Metadata})
}

// UnmarshalJSON accepts both the structured and the compressed form.
func (o *Output) UnmarshalJSON(data []byte) error {
	var raw struct {
		Results  json.RawMessage `json:"results"`
		Metadata Metadata        `json:"metadata"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	o.Metadata = raw.Metadata
	o.Results = nil
	o.Compressed = ""
	if len(raw.Results) == 0 || string(raw.Results) == "null" {
		return nil
	}
	if raw.Results[0] == '"' {
		return json.Unmarshal(raw.Results, &o.Compressed)
	}
	return json.Unmarshal(raw.Results, &o.Results)
}
