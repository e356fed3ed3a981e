package models

// ScrapeRequest is the payload for POST /api/v1/scrape.
type ScrapeRequest struct {
	// SearchEngine selects a built-in engine. Default: the server's
	// configured engine.
	SearchEngine string `json:"search_engine,omitempty"`

	// Keywords are the queries to scrape. Required.
	Keywords []string `json:"keywords" binding:"required,min=1,max=100,dive,required"`

	// NumPages is the number of result pages per keyword. Max: 20.
	NumPages int `json:"num_pages,omitempty" binding:"omitempty,min=1,max=20"`

	// EngineSettings are engine-specific query parameters such as
	// "gl", "hl" or "num".
	EngineSettings map[string]string `json:"engine_settings,omitempty"`

	// Options are further scrape options (compress, html_output,
	// sleep_range, retries...). Only output and pacing options are
	// accepted over the API.
	Options map[string]any `json:"options,omitempty"`

	// MaxAge enables caching. A cached response younger than MaxAge
	// milliseconds is returned instead of scraping. 0 disables caching.
	MaxAge int `json:"max_age,omitempty" binding:"omitempty,min=0"`

	// Timeout bounds the scrape in seconds. Default: server setting.
	Timeout int `json:"timeout,omitempty" binding:"omitempty,min=1,max=1800"`
}

// JobRequest is the payload for POST /api/v1/jobs.
type JobRequest struct {
	ScrapeRequest

	// WebhookURL receives job.completed or job.failed when the job ends.
	WebhookURL    string `json:"webhook_url,omitempty" binding:"omitempty,url"`
	WebhookSecret string `json:"webhook_secret,omitempty"`
}
