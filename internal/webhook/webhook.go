// Copyright 2025 James Ross

// Package webhook sends job-completion notifications to operator-configured
// URLs, retrying transient failures with exponential backoff.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ghostradio/podcastd/internal/config"
	"github.com/ghostradio/podcastd/internal/obs"
	"go.uber.org/zap"
)

// Event names sent in the notification payload.
const (
	EventJobSuccess = "job_success"
	EventJobFailed  = "job_failed"
)

type payload struct {
	Event     string                 `json:"event"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Notifier posts job lifecycle events to configured webhook URLs.
type Notifier struct {
	cfg    config.Webhook
	client *http.Client
	log    *zap.Logger
}

// New builds a Notifier. When cfg.Enabled is false, Notify is a no-op.
func New(cfg config.Webhook, log *zap.Logger) *Notifier {
	return &Notifier{cfg: cfg, client: &http.Client{Timeout: 10 * time.Second}, log: log}
}

// Notify sends event to every configured URL, retrying each independently
// up to 3 attempts with exponential backoff. Failures are logged, never
// returned — a webhook outage must not fail the job it is reporting on.
func (n *Notifier) Notify(ctx context.Context, event string, data map[string]interface{}) {
	if !n.cfg.Enabled || len(n.cfg.URLs) == 0 {
		return
	}

	body, err := json.Marshal(payload{Event: event, Timestamp: time.Now().UTC(), Data: data})
	if err != nil {
		n.log.Error("webhook payload marshal failed", obs.Err(err))
		return
	}

	for _, url := range n.cfg.URLs {
		n.sendWithRetry(ctx, url, event, body)
	}
}

func (n *Notifier) sendWithRetry(ctx context.Context, url, event string, body []byte) {
	const maxAttempts = 3
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := n.send(ctx, url, body)
		if err == nil {
			n.log.Info("webhook notification sent", obs.String("url", url), obs.String("event", event))
			return
		}
		n.log.Warn("webhook notification failed", obs.String("url", url), obs.Int("attempt", attempt), obs.Err(err))
		if attempt == maxAttempts {
			n.log.Error("webhook notification exhausted retries", obs.String("url", url), obs.String("event", event))
			return
		}
		wait := backoff(attempt, n.cfg.Backoff.Base, n.cfg.Backoff.Max)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (n *Notifier) send(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s returned status %d", url, resp.StatusCode)
	}
	return nil
}

func backoff(attempt int, base, max time.Duration) time.Duration {
	d := time.Duration(1<<uint(attempt-1)) * base
	if d > max || d < 0 {
		return max
	}
	return d
}
