// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamcalli/Pulsarr-sub009/internal/errs"
)

func testRetry() RetryConfig {
	return RetryConfig{
		MaxRetries:  3,
		BaseDelay:   time.Millisecond,
		CapDelay:    5 * time.Millisecond,
		RandFloat64: func() float64 { return 0 }, // deterministic: zero backoff
	}
}

func TestClientSucceedsOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	g := NewGovernor()
	g.Configure("test", FamilyConfig{RequestsPerSecond: 1000, Burst: 10, MaxConcurrent: 5})
	c := NewClient(g, "test", srv.Client(), testRetry())

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := c.Do(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(resp.Body))
}

func TestClientPermanent4xxFailsFastWithoutRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("not found"))
	}))
	defer srv.Close()

	g := NewGovernor()
	g.Configure("test", FamilyConfig{RequestsPerSecond: 1000, Burst: 10, MaxConcurrent: 5})
	c := NewClient(g, "test", srv.Client(), testRetry())

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	_, err := c.Do(context.Background(), req)
	require.Error(t, err)

	var statusErr *errs.HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Equal(t, "not found", statusErr.Message)
	assert.Equal(t, int32(1), calls.Load(), "permanent 4xx must not be retried")
}

func TestClientRetriesTransient5xxThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	g := NewGovernor()
	g.Configure("test", FamilyConfig{RequestsPerSecond: 1000, Burst: 10, MaxConcurrent: 5})
	c := NewClient(g, "test", srv.Client(), testRetry())

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := c.Do(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientRecordsRetryAfterOn429(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	g := NewGovernor()
	g.Configure("test429", FamilyConfig{RequestsPerSecond: 1000, Burst: 10, MaxConcurrent: 5})
	c := NewClient(g, "test429", srv.Client(), RetryConfig{MaxRetries: 0, BaseDelay: time.Millisecond, CapDelay: time.Millisecond, RandFloat64: func() float64 { return 0 }})

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	_, err := c.Do(context.Background(), req)
	require.Error(t, err)

	f := g.familyFor("test429")
	assert.Greater(t, f.cooldown.Load(), int64(0))
}

func TestFullJitterBackoffBoundedByCapAndRNG(t *testing.T) {
	d := fullJitterBackoff(100*time.Millisecond, time.Second, 1, func() float64 { return 1 })
	assert.LessOrEqual(t, d, time.Second)

	zero := fullJitterBackoff(100*time.Millisecond, time.Second, 1, func() float64 { return 0 })
	assert.Equal(t, time.Duration(0), zero)
}

func TestStripProtocolPrefixTrimsAfterFirstLine(t *testing.T) {
	got := stripProtocolPrefix("Rule validation failed: quality profile missing\r\nHTTP/1.1 422")
	assert.Equal(t, "Rule validation failed: quality profile missing", got)
}
