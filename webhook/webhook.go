// Package webhook implements the webhook dispatcher: eventual
// notification of asynchronous intake results to a caller-supplied URL.
// Delivery uses a pooled *http.Client with a bounded attempt count and
// a doubling backoff capped at a ceiling.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Dispatcher delivers JSON payloads to webhook URLs with retry.
type Dispatcher struct {
	logger     zerolog.Logger
	client     *http.Client
	maxRetries int
	retryBase  time.Duration
	retryCap   time.Duration
}

// Config holds the tunables the dispatcher needs.
type Config struct {
	Timeout    time.Duration
	MaxRetries int
	RetryBase  time.Duration
	RetryCap   time.Duration
}

// New builds a Dispatcher sharing one pooled transport across every
// destination URL.
func New(cfg Config, logger zerolog.Logger) *Dispatcher {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Dispatcher{
		logger:     logger.With().Str("component", "webhook_dispatcher").Logger(),
		client:     &http.Client{Transport: transport, Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
		retryBase:  cfg.RetryBase,
		retryCap:   cfg.RetryCap,
	}
}

// Deliver POSTs payload as JSON to url. HTTP 2xx is success. Transient
// failures (network errors, 408, 429, 5xx) are retried up to maxRetries
// times with exponential backoff, doubling from retryBase and capped at
// retryCap. On final failure the error is logged and dropped; delivery
// failure never re-runs the underlying scoring.
func (d *Dispatcher) Deliver(ctx context.Context, url string, payload interface{}) {
	if url == "" {
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		d.logger.Error().Err(err).Msg("failed to marshal webhook payload")
		return
	}

	backoff := d.retryBase
	var lastErr error

	for attempt := 0; attempt <= d.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				d.logger.Error().Err(ctx.Err()).Str("url", url).Msg("webhook delivery cancelled, dropping")
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > d.retryCap {
				backoff = d.retryCap
			}
		}

		retryable, err := d.attempt(ctx, url, body)
		if err == nil {
			return
		}
		lastErr = err
		d.logger.Warn().Err(err).Str("url", url).Int("attempt", attempt+1).Msg("webhook delivery attempt failed")
		if !retryable {
			break
		}
	}

	d.logger.Error().Err(lastErr).Str("url", url).Msg("webhook delivery exhausted retries, dropping")
}

// attempt makes one delivery attempt. The returned bool indicates whether
// the failure is transient and worth retrying.
func (d *Dispatcher) attempt(ctx context.Context, url string, body []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return true, fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return false, nil
	}

	retryable := resp.StatusCode >= 500 || resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests
	return retryable, fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
}
