package extension

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/use-agent/serpent/models"
)

// SignatureHeader carries the HMAC-SHA256 of the body when a secret is set.
const SignatureHeader = "X-Serpent-Signature"

// Event is the payload sent to webhook endpoints.
type Event struct {
	Type      string `json:"type"` // scrape.results, scrape.metadata, job.completed, job.failed
	JobID     string `json:"job_id,omitempty"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data"`
}

// NewEvent stamps an event with the current time.
func NewEvent(typ, jobID string, data any) *Event {
	return &Event{Type: typ, JobID: jobID, Timestamp: time.Now().Unix(), Data: data}
}

var webhookClient = &http.Client{Timeout: 10 * time.Second}

// Deliver sends a webhook event synchronously.
// Header: X-Serpent-Signature: sha256=<hex>
func Deliver(ctx context.Context, url, secret string, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Serpent-Webhook/1.0")
	if secret != "" {
		req.Header.Set(SignatureHeader, "sha256="+Sign(secret, body))
	}

	resp, err := webhookClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// retryDelays are the waits before each delivery attempt.
var retryDelays = []time.Duration{0, 1 * time.Second, 5 * time.Second, 30 * time.Second}

// DeliverRetry delivers an event, retrying on failure until the attempts
// are exhausted or ctx ends.
func DeliverRetry(ctx context.Context, url, secret string, event *Event) error {
	var err error
	for attempt, delay := range retryDelays {
		if delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		attemptCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = Deliver(attemptCtx, url, secret, event)
		cancel()
		if err == nil {
			slog.Info("webhook delivered", "url", url, "event", event.Type, "job_id", event.JobID, "attempt", attempt+1)
			return nil
		}
		slog.Warn("webhook delivery failed", "url", url, "event", event.Type, "job_id", event.JobID, "attempt", attempt+1, "error", err)
	}
	slog.Error("webhook delivery exhausted all retries", "url", url, "event", event.Type, "job_id", event.JobID)
	return err
}

// DeliverAsync delivers an event in the background with retries.
func DeliverAsync(url, secret string, event *Event) {
	go func() {
		_ = DeliverRetry(context.Background(), url, secret, event)
	}()
}

// Webhook returns a factory for an extension posting both hook payloads to
// url. Results go out in compressed form when compression is on.
func Webhook(url, secret string) Factory {
	return func(env Env) (*Extension, error) {
		if url == "" {
			return nil, fmt.Errorf("webhook: no url")
		}
		return &Extension{
			Name: "webhook",
			HandleResults: func(ctx context.Context, r Results) error {
				var data any = r.Data
				if r.Compressed != "" {
					data = r.Compressed
				}
				return DeliverRetry(ctx, url, secret, NewEvent("scrape.results", jobID(env), data))
			},
			HandleMetadata: func(ctx context.Context, md *models.Metadata) error {
				return DeliverRetry(ctx, url, secret, NewEvent("scrape.metadata", jobID(env), md))
			},
		}, nil
	}
}

// jobID is the "job_id" context value, if any.
func jobID(env Env) string {
	if v, ok := env.Context["job_id"].(string); ok {
		return v
	}
	return ""
}
