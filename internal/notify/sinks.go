package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/service"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body.
const SignatureHeader = "X-Tally-Signature"

// LogSink writes each event as a structured log line.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink returns a sink logging to logger, or the default logger when nil.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Name implements Sink.
func (s *LogSink) Name() string { return "log" }

// Deliver implements Sink.
func (s *LogSink) Deliver(ctx context.Context, event Event) error {
	attrs := []any{
		"event_id", event.ID,
		"import_id", event.ImportID,
		"source_id", event.SourceID,
		"records", event.RecordCount,
		"sessions", event.TotalSessions,
	}
	if event.TotalRevenue != nil {
		attrs = append(attrs, "revenue", *event.TotalRevenue)
	}
	s.logger.InfoContext(ctx, event.Type, attrs...)
	return nil
}

// HTTPDoer is the part of *http.Client the webhook sink uses.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// WebhookSink POSTs events as signed JSON.
type WebhookSink struct {
	client HTTPDoer
	url    string
	secret []byte
	retry  service.RetryOptions
}

// NewWebhookSink creates a sink for url. An empty secret sends unsigned requests.
func NewWebhookSink(url, secret string, client HTTPDoer, retry service.RetryOptions) *WebhookSink {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookSink{
		client: client,
		url:    url,
		secret: []byte(secret),
		retry:  retry,
	}
}

// Name implements Sink.
func (s *WebhookSink) Name() string { return "webhook" }

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Deliver implements Sink. 5xx and 429 responses are retried; other non-2xx
// statuses fail immediately.
func (s *WebhookSink) Deliver(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	return common.WithRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
		if err != nil {
			return &common.RetryableError{Err: err, Retryable: false}
		}
		req.Header.Set("Content-Type", "application/json")
		if len(s.secret) > 0 {
			req.Header.Set(SignatureHeader, Sign(s.secret, body))
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return &common.RetryableError{Err: err, Retryable: ctx.Err() == nil}
		}
		defer func() { _ = resp.Body.Close() }()
		_, _ = io.Copy(io.Discard, resp.Body)

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("webhook returned %d: %w", resp.StatusCode, common.ErrRateLimit)
		case resp.StatusCode >= 500:
			return &common.RetryableError{Err: fmt.Errorf("webhook returned %d", resp.StatusCode), Retryable: true}
		default:
			return &common.RetryableError{Err: fmt.Errorf("webhook returned %d", resp.StatusCode), Retryable: false}
		}
	}, s.retry)
}
