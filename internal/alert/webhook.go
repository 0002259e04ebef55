package alert

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	requestTimeout = 5 * time.Second
	maxRetries     = 3
	maxRetryAfter  = 30 * time.Second
)

// Headers set on every delivery. The delivery id is stable across retries
// so receivers can drop duplicates.
const (
	HeaderDelivery = "X-Toolwarden-Delivery"
	HeaderAttempt  = "X-Toolwarden-Attempt"
	HeaderTool     = "X-Toolwarden-Tool"
	HeaderOutcome  = "X-Toolwarden-Outcome"
)

var httpClient = &http.Client{Timeout: requestTimeout}

// retryDelay is the pause before retry n (1-based).
var retryDelay = func(n int) time.Duration { return time.Duration(n) * time.Second }

// DeliveryError reports a webhook that did not accept an event.
type DeliveryError struct {
	URL      string
	Delivery string
	Attempts int
	// StatusCode is the last HTTP status, 0 when no response was received.
	StatusCode int
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("webhook %s: HTTP %d after %d attempt(s)", e.URL, e.StatusCode, e.Attempts)
	}
	return fmt.Sprintf("webhook %s: %v after %d attempt(s)", e.URL, e.Err, e.Attempts)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Send posts an alert event to a webhook endpoint. 5xx responses, transport
// errors and 429 are retried; any other 4xx fails at once.
func Send(ctx context.Context, cfg Config, event Event) error {
	body, err := FormatPayload(cfg.Format, event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	derr := &DeliveryError{URL: cfg.URL, Delivery: uuid.NewString()}
	wait := time.Duration(0)
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if attempt > 1 {
			if wait == 0 {
				wait = retryDelay(attempt - 1)
			}
			select {
			case <-ctx.Done():
				derr.Err = ctx.Err()
				return derr
			case <-time.After(wait):
			}
		}
		derr.Attempts = attempt

		status, retryAfter, err := post(ctx, cfg, event, derr.Delivery, attempt, body)
		derr.StatusCode, derr.Err = status, err
		switch {
		case err != nil:
		case status >= 200 && status < 300:
			return nil
		case status == http.StatusTooManyRequests:
		case status >= 400 && status < 500:
			return derr
		}
		wait = retryAfter
	}
	return derr
}

// post makes one delivery attempt and returns the status and any
// Retry-After the receiver asked for.
func post(ctx context.Context, cfg Config, event Event, delivery string, attempt int, body []byte) (int, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return 0, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderDelivery, delivery)
	req.Header.Set(HeaderAttempt, strconv.Itoa(attempt))
	req.Header.Set(HeaderTool, event.Tool)
	req.Header.Set(HeaderOutcome, event.Outcome)
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	return resp.StatusCode, parseRetryAfter(resp.Header.Get("Retry-After")), nil
}

// parseRetryAfter reads a delay in seconds, capped at maxRetryAfter.
// HTTP-date values are ignored.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	d := time.Duration(secs) * time.Second
	if d > maxRetryAfter {
		return maxRetryAfter
	}
	return d
}
