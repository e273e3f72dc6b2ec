// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

package writer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/auditwal/internal/audit"
	"github.com/tomtom215/auditwal/internal/logging"
)

// AuthHeader selects how the credential is sent.
type AuthHeader string

const (
	AuthBearer      AuthHeader = "bearer"
	AuthInternalKey AuthHeader = "internal-key"

	// InternalKeyHeader carries the credential in internal-key mode.
	InternalKeyHeader = "X-Internal-Key"

	modeHTTP = "http"
)

// HTTPConfig configures an HTTPWriter.
type HTTPConfig struct {
	// URL is the remote ingest endpoint. Required.
	URL string

	// Primary is the credential used first. Required.
	Primary CredentialSource

	// Secondary is rotated to after a 401/403. Optional.
	Secondary CredentialSource

	// AuthHeader defaults to bearer.
	AuthHeader AuthHeader

	// MaxAttempts bounds transient retries per batch. Default: 3
	MaxAttempts int

	// Backoff is the first retry delay, doubled per attempt. Default: 200ms
	Backoff time.Duration

	// MaxBackoff caps the retry delay. Default: 5s
	MaxBackoff time.Duration

	// Timeout bounds a single request. Default: 10s
	Timeout time.Duration

	// RateLimit is the maximum requests per second. 0 = unlimited.
	RateLimit float64

	// BreakerThreshold is the number of consecutive failed batches that
	// opens the circuit. Default: 5
	BreakerThreshold uint32

	// BreakerTimeout is how long the circuit stays open. Default: 30s
	BreakerTimeout time.Duration

	// Client overrides the HTTP client (tests).
	Client *http.Client
}

// HTTPStatusError is a non-2xx response from the ingest endpoint.
type HTTPStatusError struct {
	Code int
	Body string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("ingest endpoint returned %d: %s", e.Code, e.Body)
}

type batchBody struct {
	Records []audit.Record `json:"records"`
}

// HTTPWriter posts batches to a remote audit ingest service.
type HTTPWriter struct {
	cfg     HTTPConfig
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[interface{}]
	sec     *logging.SecurityLogger
	dest    string

	mu           sync.Mutex
	useSecondary bool

	attempts atomic.Int64
}

// NewHTTPWriter validates cfg and builds a writer.
func NewHTTPWriter(cfg HTTPConfig) (*HTTPWriter, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("http writer: url is required")
	}
	if cfg.Primary == nil {
		return nil, fmt.Errorf("http writer: primary credential is required")
	}
	if cfg.AuthHeader == "" {
		cfg.AuthHeader = AuthBearer
	}
	if cfg.AuthHeader != AuthBearer && cfg.AuthHeader != AuthInternalKey {
		return nil, fmt.Errorf("http writer: unknown auth header mode %q", cfg.AuthHeader)
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 200 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BreakerThreshold == 0 {
		cfg.BreakerThreshold = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	dest := cfg.URL
	if u, err := url.Parse(cfg.URL); err == nil && u.Host != "" {
		dest = u.Host
	}

	w := &HTTPWriter{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
		sec:     logging.NewSecurityLogger(),
		dest:    dest,
	}
	w.breaker = newBreaker("audit-http-writer", cfg.BreakerThreshold, cfg.BreakerTimeout)

	return w, nil
}

func newBreaker(name string, threshold uint32, timeout time.Duration) *gobreaker.CircuitBreaker[interface{}] {
	SetCircuitState(name, 0)
	return gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			trip := counts.ConsecutiveFailures >= threshold
			if trip {
				logging.Warn().
					Uint32("consecutive_failures", counts.ConsecutiveFailures).
					Str("breaker", name).
					Msg("[CIRCUIT BREAKER] Opening circuit")
			}
			return trip
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("[CIRCUIT BREAKER] State transition")
			SetCircuitState(name, float64(to))
		},
	})
}

// Attempts returns the total number of HTTP requests sent.
func (w *HTTPWriter) Attempts() int64 {
	return w.attempts.Load()
}

// WriteBatch posts the batch, retrying transient failures with backoff.
func (w *HTTPWriter) WriteBatch(ctx context.Context, records []audit.Record) error {
	if len(records) == 0 {
		return nil
	}

	body, err := json.Marshal(batchBody{Records: records})
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}

	start := time.Now()
	_, err = w.breaker.Execute(func() (interface{}, error) {
		return nil, w.deliver(ctx, body, len(records))
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}

	RecordBatch(modeHTTP, len(records), time.Since(start).Seconds(), err)
	return err
}

func (w *HTTPWriter) deliver(ctx context.Context, body []byte, n int) error {
	limit := w.cfg.MaxAttempts
	rotated := false
	var lastErr error

	for attempt := 1; attempt <= limit; attempt++ {
		if err := w.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		slot := w.activeSlot()
		code, err := w.post(ctx, body, slot)
		w.attempts.Add(1)

		event := logging.Debug()
		if err != nil {
			event = logging.Warn().Err(err)
		}
		event.
			Int("attempt", attempt).
			Str("credential", slot).
			Int("status", code).
			Int("records", n).
			Msg("Audit batch delivery attempt")

		if err == nil {
			RecordAttempt("success")
			return nil
		}
		lastErr = err

		var statusErr *HTTPStatusError
		isStatus := errors.As(err, &statusErr)

		if isStatus && (statusErr.Code == http.StatusUnauthorized || statusErr.Code == http.StatusForbidden) {
			RecordAttempt("unauthorized")
			w.sec.LogCredentialRejected(w.dest, slot, statusErr.Code, statusErr.Body)
			if rotated || !w.rotate(slot) {
				w.sec.LogCredentialsExhausted(w.dest, statusErr.Code)
				return fmt.Errorf("%w: %v", ErrUnauthorized, err)
			}
			rotated = true
			// The rotation retry is in addition to the transient budget.
			if attempt == limit {
				limit++
			}
			continue
		}

		if isStatus && !retryableStatus(statusErr.Code) {
			RecordAttempt("rejected")
			return fmt.Errorf("%w: %v", ErrRejected, err)
		}
		RecordAttempt("transient")

		if attempt == limit {
			break
		}

		delay := w.backoff(attempt)
		select {
		case <-ctx.Done():
			return fmt.Errorf("delivery canceled after %d attempts: %w", attempt, ctx.Err())
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("delivery failed after %d attempts: %w", limit, lastErr)
}

func (w *HTTPWriter) post(ctx context.Context, body []byte, slot string) (int, error) {
	token, err := w.credential(slot).Token()
	if err != nil {
		return 0, fmt.Errorf("resolve %s credential: %w", slot, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.cfg.AuthHeader == AuthInternalKey {
		req.Header.Set(InternalKeyHeader, token)
	} else {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if id := logging.RequestIDFromContext(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("post batch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return resp.StatusCode, nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return resp.StatusCode, &HTTPStatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
}

func (w *HTTPWriter) activeSlot() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.useSecondary {
		return "secondary"
	}
	return "primary"
}

func (w *HTTPWriter) credential(slot string) CredentialSource {
	if slot == "secondary" {
		return w.cfg.Secondary
	}
	return w.cfg.Primary
}

// rotate flips the active credential away from the one that was just
// rejected. It reports false when there is no secondary to rotate to.
// Rotation sticks for later batches.
func (w *HTTPWriter) rotate(from string) bool {
	if w.cfg.Secondary == nil {
		return false
	}
	w.mu.Lock()
	w.useSecondary = !w.useSecondary
	now := "primary"
	if w.useSecondary {
		now = "secondary"
	}
	w.mu.Unlock()

	RecordCredentialRotation()
	w.sec.LogCredentialRotated(w.dest, from, now)
	return true
}

// backoff returns Backoff * 2^(attempt-1), capped at MaxBackoff.
func (w *HTTPWriter) backoff(attempt int) time.Duration {
	d := time.Duration(float64(w.cfg.Backoff) * math.Pow(2, float64(attempt-1)))
	if d > w.cfg.MaxBackoff || d <= 0 {
		d = w.cfg.MaxBackoff
	}
	return d
}

func retryableStatus(code int) bool {
	if code >= 500 {
		return true
	}
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests
}
