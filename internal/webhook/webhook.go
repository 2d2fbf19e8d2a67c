// Package webhook posts alert notifications to the downstream receiver. Every
// call makes exactly one attempt; failures are returned, never retried.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gabihorn/beiter-alert-bot/internal/alert"
	"github.com/gabihorn/beiter-alert-bot/internal/metrics"
)

const (
	defaultTimeout = 10 * time.Second
	userAgent      = "beiter-alert-bot/1"

	// DeliveryIDHeader carries a fresh UUID per request.
	DeliveryIDHeader = "X-Delivery-ID"
)

// ErrNotConfigured is returned by Send when no destination URL is set.
var ErrNotConfigured = errors.New("webhook URL not configured")

// StatusError reports a response outside the accepted status set.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook returned HTTP %d", e.StatusCode)
}

// Config holds the destination. An empty URL puts the dispatcher in degraded
// mode where every Send fails with ErrNotConfigured.
type Config struct {
	URL     string
	Timeout time.Duration
}

// Dispatcher sends payloads to one webhook URL.
type Dispatcher struct {
	url     string
	client  *http.Client
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// New validates the URL if one is given.
func New(cfg Config, logger zerolog.Logger, m *metrics.Metrics) (*Dispatcher, error) {
	if cfg.URL != "" {
		if err := ValidateURL(cfg.URL); err != nil {
			return nil, err
		}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Dispatcher{
		url:     cfg.URL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "webhook").Logger(),
		metrics: m,
	}, nil
}

// ValidateURL accepts absolute http and https URLs with a host.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid webhook URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("webhook URL must use http or https scheme, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("webhook URL must include a host")
	}
	return nil
}

// Configured reports whether a destination is set.
func (d *Dispatcher) Configured() bool { return d.url != "" }

// Send POSTs p once. It returns nil on 200, 201 or 202, ErrNotConfigured in
// degraded mode, a *StatusError on any other status, or the transport error.
func (d *Dispatcher) Send(ctx context.Context, p alert.Payload) error {
	if d.url == "" {
		d.metrics.WebhookSend(metrics.OutcomeUnconfig, 0)
		d.logger.Error().Msg("WEBHOOK_URL is not set, dropping notification")
		return ErrNotConfigured
	}

	body, err := json.Marshal(p)
	if err != nil {
		d.metrics.WebhookSend(metrics.OutcomeError, 0)
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		d.metrics.WebhookSend(metrics.OutcomeError, 0)
		return fmt.Errorf("create request: %w", err)
	}
	deliveryID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(DeliveryIDHeader, deliveryID)

	start := time.Now()
	resp, err := d.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		d.metrics.WebhookSend(metrics.OutcomeError, elapsed)
		d.logger.Error().Err(err).Str("url", RedactURL(d.url)).Str("delivery_id", deliveryID).Msg("webhook request failed")
		return fmt.Errorf("webhook post: %w", err)
	}
	defer func() {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
		d.metrics.WebhookSend(metrics.OutcomeSuccess, elapsed)
		d.logger.Info().Int("status", resp.StatusCode).Str("delivery_id", deliveryID).Dur("latency", elapsed).Msg("webhook delivered")
		return nil
	default:
		d.metrics.WebhookSend(metrics.OutcomeStatus, elapsed)
		d.logger.Error().Int("status", resp.StatusCode).Str("url", RedactURL(d.url)).Str("delivery_id", deliveryID).Msg("webhook rejected notification")
		return &StatusError{StatusCode: resp.StatusCode}
	}
}

// RedactURL masks credentials in a URL for safe logging: the userinfo
// password and every query parameter value.
func RedactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid-url>"
	}
	if u.RawQuery != "" {
		q := u.Query()
		for key := range q {
			q.Set(key, "REDACTED")
		}
		u.RawQuery = q.Encode()
	}
	return u.Redacted()
}
