// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ratelimit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/jamcalli/Pulsarr-sub009/internal/errs"
	"github.com/jamcalli/Pulsarr-sub009/internal/logging"
)

// RetryConfig bounds the full-jitter exponential backoff applied to
// transient failures (network errors, timeouts, 408, 429, 5xx).
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	CapDelay   time.Duration

	// RandFloat64 returns a value in [0,1); overridable for deterministic
	// tests.
	RandFloat64 func() float64
}

// DefaultRetryConfig mirrors the governor's defaultConfig in internal/config.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 5,
		BaseDelay:  250 * time.Millisecond,
		CapDelay:   30 * time.Second,
	}
}

// Client is the rate-limited, circuit-broken, retrying HTTP client shared
// by every downstream/upstream integration. One Client instance is
// constructed per endpoint family so its circuit breaker state and
// configuration update independently. The clients registry builds a new
// Client whenever an instance's base URL or API key changes; a Client is
// not reused across either change.
type Client struct {
	http      *http.Client
	governor  *Governor
	family    string
	breaker   *gobreaker.CircuitBreaker[*Response]
	retry     RetryConfig
	rng       func() float64
}

// Response is the drained, buffered result of one HTTP call: status code,
// headers needed by callers (Retry-After is consumed internally), and a
// fully-read body so retries never need to worry about a half-read stream.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// NewClient constructs a Client bound to governor's named family.
func NewClient(governor *Governor, family string, httpClient *http.Client, retry RetryConfig) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if retry.MaxRetries <= 0 {
		retry = DefaultRetryConfig()
	}
	rng := retry.RandFloat64
	if rng == nil {
		src := rand.New(rand.NewSource(time.Now().UnixNano()))
		rng = src.Float64
	}

	breakerName := "ratelimit:" + family
	breaker := gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		IsSuccessful: func(err error) bool {
			var statusErr *errs.HTTPStatusError
			return err == nil || errors.As(err, &statusErr)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", breakerStateName(from)).Str("to", breakerStateName(to)).Msg("circuit breaker state transition")
		},
	})

	return &Client{
		http:     httpClient,
		governor: governor,
		family:   family,
		breaker:  breaker,
		retry:    retry,
		rng:      rng,
	}
}

// Do executes req with governor admission, circuit breaking, and retry on
// transient failure classes. Permanent 4xx (other than 408/429) is
// returned immediately as *errs.HTTPStatusError; callers distinguish the
// two with errors.As.
func (c *Client) Do(ctx context.Context, req *http.Request) (*Response, error) {
	var bodyBytes []byte
	if req.Body != nil {
		b, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("ratelimit: buffering request body: %w", err)
		}
		_ = req.Body.Close()
		bodyBytes = b
	}

	var lastErr error
	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := fullJitterBackoff(c.retry.BaseDelay, c.retry.CapDelay, attempt, c.rng)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		release, err := c.governor.Acquire(ctx, c.family)
		if err != nil {
			return nil, fmt.Errorf("ratelimit: %w", err)
		}

		attemptReq := req.Clone(ctx)
		if bodyBytes != nil {
			attemptReq.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}

		resp, err := c.breaker.Execute(func() (*Response, error) {
			return c.roundTrip(attemptReq)
		})
		release()

		if err == nil {
			return resp, nil
		}

		var statusErr *errs.HTTPStatusError
		if errors.As(err, &statusErr) {
			return nil, err // permanent: fail fast, no retry
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			lastErr = err
			continue
		}

		lastErr = err
	}

	return nil, fmt.Errorf("%w: %w", errs.ErrTransientExhausted, lastErr)
}

// roundTrip performs the actual call and classifies the result: success,
// permanent failure (returned as a non-retryable error so gobreaker does
// not count it as a breaker trip — callers of Do still see it), or
// transient failure.
func (c *Client) roundTrip(req *http.Request) (*Response, error) {
	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: round trip: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: reading response body: %w", err)
	}

	resp := &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header, Body: body}

	switch {
	case httpResp.StatusCode == http.StatusTooManyRequests:
		c.governor.NoteRetryAfter(c.family, httpResp.Header.Get("Retry-After"))
		return nil, fmt.Errorf("ratelimit: 429 from %s", c.family)
	case httpResp.StatusCode == http.StatusRequestTimeout:
		return nil, fmt.Errorf("ratelimit: 408 from %s", c.family)
	case httpResp.StatusCode >= 500:
		return nil, fmt.Errorf("ratelimit: %d from %s", httpResp.StatusCode, c.family)
	case httpResp.StatusCode >= 400:
		return nil, &errs.HTTPStatusError{StatusCode: httpResp.StatusCode, Message: stripProtocolPrefix(string(body))}
	}

	return resp, nil
}

// breakerStateName renders a gobreaker.State for logging without relying on
// a stringer method the vendored version may not export.
func breakerStateName(s gobreaker.State) string {
	switch s {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// fullJitterBackoff computes delay = rand()*min(cap, base*2^(attempt-1)).
// Full jitter keeps tests deterministic via an injected RNG.
func fullJitterBackoff(base, ceiling time.Duration, attempt int, rnd func() float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := math.Pow(2, float64(attempt-1))
	upper := time.Duration(float64(base) * mult)
	if upper > ceiling || upper <= 0 {
		upper = ceiling
	}
	return time.Duration(rnd() * float64(upper))
}

// stripProtocolPrefix trims a leading "HTTP/1.1 404 " style prefix some
// downstream managers echo into their error bodies, so the message
// surfaced to the user is the server's own text.
func stripProtocolPrefix(body string) string {
	const maxLen = 500
	s := body
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	for i, r := range s {
		if r == '\n' || r == '\r' {
			s = s[:i]
			break
		}
	}
	if strings.HasPrefix(s, "HTTP/") {
		// Drop the protocol version and the status code after it.
		for n := 0; n < 2; n++ {
			s = strings.TrimLeft(s, " ")
			if i := strings.IndexByte(s, ' '); i >= 0 {
				s = s[i:]
			} else {
				s = ""
			}
		}
		s = strings.TrimLeft(s, " ")
	}
	return s
}
