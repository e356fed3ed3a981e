package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/use-agent/serpent/config"
	"github.com/use-agent/serpent/extension"
	"github.com/use-agent/serpent/models"
)

type job struct {
	mu     sync.Mutex
	status models.JobStatusResponse
}

func (j *job) snapshot() models.JobStatusResponse {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// JobStore holds running and finished scrape jobs. Finished jobs are
// dropped once they are older than the TTL.
type JobStore struct {
	jobs      sync.Map
	ttl       time.Duration
	now       func() time.Time
	running   sync.WaitGroup
	done      chan struct{}
	closeOnce sync.Once
}

// NewJobStore starts a store whose sweeper runs every 5 minutes until Close.
func NewJobStore(ttl time.Duration) *JobStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	s := &JobStore{ttl: ttl, now: time.Now, done: make(chan struct{})}
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-s.done:
				return
			}
		}
	}()
	return s
}

// Wait blocks until every running job has finished.
func (s *JobStore) Wait() { s.running.Wait() }

// Close stops the sweeper.
func (s *JobStore) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Get returns the current state of a job.
func (s *JobStore) Get(id string) (models.JobStatusResponse, bool) {
	v, ok := s.jobs.Load(id)
	if !ok {
		return models.JobStatusResponse{}, false
	}
	return v.(*job).snapshot(), true
}

func (s *JobStore) sweep() {
	cutoff := s.now().Add(-s.ttl)
	s.jobs.Range(func(key, value any) bool {
		st := value.(*job).snapshot()
		if st.CompletedAt != nil && st.CompletedAt.Before(cutoff) {
			s.jobs.Delete(key)
		}
		return true
	})
}

// PostJob returns a handler for POST /api/v1/jobs. The scrape runs in the
// background; its outcome is polled with GetJob and, when a webhook is
// configured, pushed as job.completed or job.failed.
func PostJob(sc Scraper, store *JobStore, cfg config.JobsConfig, timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.JobRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		if err := checkOptions(req.Options); err != nil {
			badRequest(c, err.Error())
			return
		}

		j := &job{status: models.JobStatusResponse{
			ID:        uuid.NewString(),
			Status:    models.JobRunning,
			Keywords:  len(req.Keywords),
			CreatedAt: store.now(),
		}}
		store.jobs.Store(j.status.ID, j)

		hookURL, hookSecret := cfg.WebhookURL, cfg.WebhookSecret
		if req.WebhookURL != "" {
			hookURL, hookSecret = req.WebhookURL, req.WebhookSecret
		}

		store.running.Add(1)
		go func() {
			defer store.running.Done()
			runJob(sc, store, j, req.ScrapeRequest, requestTimeout(req.Timeout, timeout), hookURL, hookSecret)
		}()

		c.JSON(http.StatusAccepted, models.JobResponse{ID: j.status.ID, Status: models.JobRunning})
	}
}

func runJob(sc Scraper, store *JobStore, j *job, req models.ScrapeRequest, timeout time.Duration, hookURL, hookSecret string) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	out, err := sc.Scrape(ctx, toManagerRequest(req))

	j.mu.Lock()
	now := store.now()
	j.status.CompletedAt = &now
	event := "job.completed"
	if err != nil {
		j.status.Status = models.JobFailed
		j.status.Error = detailOf(err)
		event = "job.failed"
	} else {
		j.status.Status = models.JobCompleted
		j.status.Data = out
	}
	final := j.status
	j.mu.Unlock()

	slog.Info("scrape job finished", "id", final.ID, "status", final.Status, "keywords", final.Keywords)

	if hookURL != "" {
		extension.DeliverAsync(hookURL, hookSecret, extension.NewEvent(event, final.ID, final))
	}
}

// GetJob returns a handler for GET /api/v1/jobs/:id.
func GetJob(store *JobStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		st, ok := store.Get(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, models.ScrapeResponse{
				Error: &models.ErrorDetail{Code: models.ErrCodeNotFound, Message: "job not found"},
			})
			return
		}
		c.JSON(http.StatusOK, st)
	}
}
