// Package webhook notifies an external endpoint when a scrape job ends.
package webhook

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

	"github.com/use-agent/dealscout/models"
)

// Event types.
const (
	EventCompleted = "scrape.completed"
	EventStopped   = "scrape.stopped"
	EventFailed    = "scrape.failed"
)

// SignatureHeader carries "sha256=<hex>" when a secret is configured.
const SignatureHeader = "X-Dealscout-Signature"

// Event is the payload sent to webhook endpoints.
type Event struct {
	Type      string          `json:"type"`
	JobID     string          `json:"job_id"`
	Tab       string          `json:"tab"`
	Timestamp int64           `json:"timestamp"`
	Data      models.Progress `json:"data"`
}

// EventType maps a terminal status to its event type.
func EventType(s models.Status) string {
	switch s {
	case models.StatusCompleted:
		return EventCompleted
	case models.StatusStopped:
		return EventStopped
	default:
		return EventFailed
	}
}

// NewEvent builds the event for a finished job.
func NewEvent(jobID, tab string, p models.Progress) *Event {
	return &Event{
		Type:      EventType(p.Status),
		JobID:     jobID,
		Tab:       tab,
		Timestamp: time.Now().Unix(),
		Data:      p,
	}
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

var client = &http.Client{Timeout: 10 * time.Second}

// Deliver sends a webhook event synchronously.
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
	req.Header.Set("User-Agent", "Dealscout-Webhook/1.0")
	if secret != "" {
		req.Header.Set(SignatureHeader, "sha256="+Sign(secret, body))
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// retryDelays are waited before each attempt.
var retryDelays = []time.Duration{0, 1 * time.Second, 5 * time.Second, 30 * time.Second}

// Notifier delivers events to one configured endpoint.
type Notifier struct {
	URL    string
	Secret string
	delays []time.Duration
}

// NewNotifier returns nil when url is empty; a nil Notifier drops events.
func NewNotifier(url, secret string) *Notifier {
	if url == "" {
		return nil
	}
	return &Notifier{URL: url, Secret: secret, delays: retryDelays}
}

// Notify delivers event in the background, retrying on failure. The returned
// channel is closed once delivery succeeded or retries ran out.
func (n *Notifier) Notify(event *Event) <-chan struct{} {
	done := make(chan struct{})
	if n == nil {
		close(done)
		return done
	}
	go func() {
		defer close(done)
		for attempt, delay := range n.delays {
			if delay > 0 {
				time.Sleep(delay)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := Deliver(ctx, n.URL, n.Secret, event)
			cancel()
			if err == nil {
				slog.Info("webhook delivered",
					"url", n.URL,
					"event", event.Type,
					"job_id", event.JobID,
					"attempt", attempt+1,
				)
				return
			}
			slog.Warn("webhook delivery failed",
				"url", n.URL,
				"event", event.Type,
				"job_id", event.JobID,
				"attempt", attempt+1,
				"error", err,
			)
		}
		slog.Error("webhook delivery exhausted all retries",
			"url", n.URL,
			"event", event.Type,
			"job_id", event.JobID,
		)
	}()
	return done
}
