package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Requests counts page attempts by engine and outcome
	// (ok, empty, detected, error).
	Requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "serpent",
		Name:      "requests_total",
		Help:      "SERP page requests by engine and outcome.",
	}, []string{"engine", "outcome"})

	Detections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "serpent",
		Name:      "detections_total",
		Help:      "Bot detection pages encountered.",
	}, []string{"engine"})

	ScrapeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "serpent",
		Name:      "scrape_duration_seconds",
		Help:      "Duration of complete scrape calls.",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"engine", "status"})

	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "serpent",
		Name:      "sessions_active",
		Help:      "Open browser sessions.",
	})

	HookFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "serpent",
		Name:      "extension_failures_total",
		Help:      "Extension hook failures by hook.",
	}, []string{"hook"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
