package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/serpent/api/handler"
	"github.com/use-agent/serpent/api/middleware"
	"github.com/use-agent/serpent/cache"
	"github.com/use-agent/serpent/config"
	"github.com/use-agent/serpent/metrics"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health and metrics stay outside auth so health checks and scrapers always reach them.
func NewRouter(sc handler.Scraper, cfg *config.Config, cc *cache.Cache, jobs *handler.JobStore, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := r.Group("/api/v1")
	v1.GET("/health", handler.Health(sc, startTime))

	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	protected.POST("/scrape", handler.Scrape(sc, cc, cfg.Server.ScrapeTimeout))
	protected.POST("/jobs", handler.PostJob(sc, jobs, cfg.Jobs, cfg.Server.ScrapeTimeout))
	protected.GET("/jobs/:id", handler.GetJob(jobs))

	return r
}
