package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/serpent/cache"
	"github.com/use-agent/serpent/manager"
	"github.com/use-agent/serpent/models"
)

// Scraper is the part of the scrape manager the handlers drive.
type Scraper interface {
	Scrape(ctx context.Context, req manager.Request) (*models.Output, error)
	State() manager.State
}

// requestOptions are the option keys a client may set per request. Browser,
// proxy, file and extension settings stay with the server.
var requestOptions = map[string]bool{
	"compress":           true,
	"html_output":        true,
	"clean_html_output":  true,
	"clean_data_images":  true,
	"markdown_output":    true,
	"screen_output":      true,
	"throw_on_detection": true,
	"sleep_range":        true,
	"render_timeout_ms":  true,
	"retries":            true,
	"stop_on_repeat":     true,
	"repeat_distance":    true,
	"chunk_lines":        true,
	"job_name":           true,
}

// Scrape returns a handler for POST /api/v1/scrape.
//
// Flow: bind → cache lookup (max_age > 0) → manager scrape → cache store.
func Scrape(sc Scraper, cc *cache.Cache, timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ScrapeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		if err := checkOptions(req.Options); err != nil {
			badRequest(c, err.Error())
			return
		}

		useCache := cc != nil && req.MaxAge > 0
		var key string
		if useCache {
			key = cache.Key(req.SearchEngine, req.Keywords, req.NumPages, req.EngineSettings, req.Options)
			if out, hit := cc.Get(key, req.MaxAge); hit {
				c.JSON(http.StatusOK, models.ScrapeResponse{Success: true, Data: out, CacheStatus: "hit"})
				return
			}
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout(req.Timeout, timeout))
		defer cancel()

		out, err := sc.Scrape(ctx, toManagerRequest(req))
		if err != nil {
			respondError(c, err)
			return
		}

		resp := models.ScrapeResponse{Success: true, Data: out}
		if useCache {
			cc.Set(key, out)
			resp.CacheStatus = "miss"
		}
		c.JSON(http.StatusOK, resp)
	}
}

func toManagerRequest(req models.ScrapeRequest) manager.Request {
	return manager.Request{
		Keywords:       req.Keywords,
		NumPages:       req.NumPages,
		SearchEngine:   req.SearchEngine,
		EngineSettings: req.EngineSettings,
		Overrides:      req.Options,
	}
}

func checkOptions(opts map[string]any) error {
	for k := range opts {
		if !requestOptions[k] {
			return fmt.Errorf("option %q cannot be set per request", k)
		}
	}
	return nil
}

func requestTimeout(seconds int, fallback time.Duration) time.Duration {
	if seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if fallback <= 0 {
		return 5 * time.Minute
	}
	return fallback
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, models.ScrapeResponse{
		Error: &models.ErrorDetail{Code: models.ErrCodeInvalidInput, Message: msg},
	})
}

// respondError maps a ScrapeError to its HTTP status and writes the
// structured error body.
func respondError(c *gin.Context, err error) {
	c.JSON(statusOf(err), models.ScrapeResponse{Error: detailOf(err)})
}

func detailOf(err error) *models.ErrorDetail {
	var se *models.ScrapeError
	if errors.As(err, &se) {
		return se.ToDetail()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &models.ErrorDetail{Code: models.ErrCodeTimeout, Message: "scrape timed out"}
	}
	return &models.ErrorDetail{Code: models.ErrCodeInternal, Message: err.Error()}
}

// statusOf translates error codes to HTTP status codes.
func statusOf(err error) int {
	switch detailOf(err).Code {
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeNavigation, models.ErrCodeDetected, models.ErrCodeBrowserCrash:
		return http.StatusBadGateway // 502
	case models.ErrCodeInvalidInput, models.ErrCodeInvalidConfig, models.ErrCodeUnknownEngine:
		return http.StatusBadRequest // 400
	case models.ErrCodeSessionState:
		return http.StatusServiceUnavailable // 503
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	case models.ErrCodeNotFound:
		return http.StatusNotFound // 404
	default:
		return http.StatusInternalServerError // 500
	}
}
