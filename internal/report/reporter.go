package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const DefaultTimeout = 1500 * time.Millisecond

// Reporter posts payloads to the collector. Delivery is best effort: one
// attempt, short timeout, failures logged and dropped.
type Reporter struct {
	url    string
	apiKey string
	client *http.Client
	logger *slog.Logger
}

func NewReporter(url, apiKey string, timeout time.Duration, logger *slog.Logger) *Reporter {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Reporter{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Enabled reports whether a collector URL is configured.
func (r *Reporter) Enabled() bool {
	return r != nil && r.url != ""
}

// Send posts the payload and reports whether the collector accepted it.
func (r *Reporter) Send(ctx context.Context, p Payload) bool {
	if !r.Enabled() {
		return false
	}
	if err := r.post(ctx, p); err != nil {
		r.logger.Warn("report delivery failed", "session_id", p.SessionID, "error", err)
		return false
	}
	r.logger.Info("report delivered", "session_id", p.SessionID, "messages", p.TotalMessagesExchanged)
	return true
}

func (r *Reporter) post(ctx context.Context, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("x-api-key", r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("post report: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("collector returned %d", resp.StatusCode)
	}
	return nil
}
