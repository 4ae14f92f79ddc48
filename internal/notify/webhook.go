package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ncecere/usage_reports/backend/internal/config"
)

// WebhookAnnouncer POSTs every announcement as JSON to fixed endpoints.
type WebhookAnnouncer struct {
	urls       []string
	client     *http.Client
	maxRetries int
	logger     *slog.Logger
}

// NewWebhookAnnouncer returns nil when no URLs are configured.
func NewWebhookAnnouncer(urls []string, cfg config.WebhookConfig, logger *slog.Logger) Announcer {
	targets := make([]string, 0, len(urls))
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			targets = append(targets, u)
		}
	}
	if len(targets) == 0 {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	return &WebhookAnnouncer{
		urls:       targets,
		client:     &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
		logger:     logger,
	}
}

func (w *WebhookAnnouncer) Announce(ctx context.Context, a Announcement) error {
	if w == nil {
		return nil
	}
	body, err := json.Marshal(webhookPayload{Event: "report.saved", Report: a})
	if err != nil {
		return err
	}

	var errs []error
	for _, target := range w.urls {
		if err := w.postWithRetries(ctx, target, body); err != nil {
			w.logger.Warn("webhook delivery failed", "url", target, "report_id", a.ReportID, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", target, err))
		}
	}
	return errors.Join(errs...)
}

func (w *WebhookAnnouncer) postWithRetries(ctx context.Context, url string, body []byte) error {
	var lastErr error
	for attempt := 1; attempt <= w.maxRetries; attempt++ {
		if err := w.post(ctx, url, body); err != nil {
			lastErr = err
			if attempt == w.maxRetries {
				break
			}
			delay := time.Duration(attempt) * 250 * time.Millisecond
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			continue
		}
		return nil
	}
	return lastErr
}

func (w *WebhookAnnouncer) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

type webhookPayload struct {
	Event  string       `json:"event"`
	Report Announcement `json:"report"`
}
