// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ratelimit

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// FamilyConfig configures one shared endpoint family's token bucket and
// concurrency ceiling, e.g. "plex-discover", "plex-graphql",
// "sonarr:<instance-id>", "tmdb".
type FamilyConfig struct {
	// RequestsPerSecond is the sustained rate; Burst is the bucket depth.
	RequestsPerSecond float64
	Burst             int

	// MaxConcurrent bounds in-flight calls for this family. 0 means
	// unbounded concurrency (still subject to the token bucket).
	MaxConcurrent int64

	// JitterFraction adds up to this fraction of the computed wait as
	// extra random delay, so synchronized callers don't all wake at once.
	JitterFraction float64
}

// family holds the live limiter state for one endpoint family.
type family struct {
	limiter  *rate.Limiter
	sem      *semaphore.Weighted
	jitter   float64
	cooldown atomic.Int64 // unix nanos; calls block until time.Now() passes this
}

// Governor is the process-wide rate governor. All suspension
// happens inside Acquire/Release; callers never sleep directly.
type Governor struct {
	mu       sync.RWMutex
	families map[string]*family
	rng      *rand.Rand
	rngMu    sync.Mutex
}

// NewGovernor constructs an empty governor. Families are registered lazily
// via Configure or on first Acquire using DefaultFamilyConfig.
func NewGovernor() *Governor {
	return &Governor{
		families: make(map[string]*family),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// DefaultFamilyConfig is used for any family Acquire'd without a prior
// Configure call: conservative enough not to hammer an unconfigured
// downstream.
func DefaultFamilyConfig() FamilyConfig {
	return FamilyConfig{RequestsPerSecond: 1, Burst: 3, MaxConcurrent: 4, JitterFraction: 0.2}
}

// Configure registers or replaces the limiter for a family. Safe to call
// concurrently with Acquire; in-flight holders of the old semaphore are
// unaffected (the new config only governs subsequent acquisitions).
func (g *Governor) Configure(name string, cfg FamilyConfig) {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	var sem *semaphore.Weighted
	if cfg.MaxConcurrent > 0 {
		sem = semaphore.NewWeighted(cfg.MaxConcurrent)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.families[name] = &family{
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		sem:     sem,
		jitter:  cfg.JitterFraction,
	}
}

func (g *Governor) familyFor(name string) *family {
	g.mu.RLock()
	f, ok := g.families[name]
	g.mu.RUnlock()
	if ok {
		return f
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if f, ok := g.families[name]; ok {
		return f
	}
	cfg := DefaultFamilyConfig()
	f = &family{
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		sem:     semaphore.NewWeighted(cfg.MaxConcurrent),
		jitter:  cfg.JitterFraction,
	}
	g.families[name] = f
	return f
}

// Release is returned by Acquire and must be called exactly once to free
// the family's concurrency slot.
type Release func()

// Acquire blocks (cancellably) until the named family's token bucket,
// concurrency ceiling, and any active cooldown all permit one call. It
// never sleeps outside this call; all suspension is visible to ctx.
func (g *Governor) Acquire(ctx context.Context, family string) (Release, error) {
	f := g.familyFor(family)

	if until := f.cooldown.Load(); until > 0 {
		if wait := time.Until(time.Unix(0, until)); wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
	}

	if f.sem != nil {
		if err := f.sem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("ratelimit: acquire concurrency slot for %q: %w", family, err)
		}
	}

	if err := f.limiter.Wait(ctx); err != nil {
		if f.sem != nil {
			f.sem.Release(1)
		}
		return nil, fmt.Errorf("ratelimit: wait for token in %q: %w", family, err)
	}

	if f.jitter > 0 {
		g.rngMu.Lock()
		extra := time.Duration(f.jitter * float64(time.Second) * g.rng.Float64())
		g.rngMu.Unlock()
		if extra > 0 {
			timer := time.NewTimer(extra)
			select {
			case <-ctx.Done():
				timer.Stop()
				if f.sem != nil {
					f.sem.Release(1)
				}
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		if f.sem != nil {
			f.sem.Release(1)
		}
	}, nil
}

// NoteRetryAfter records a cooldown for family derived from a 429
// response's Retry-After header, which may be either a number of seconds
// or an HTTP-date. All subsequent Acquire calls for the family block until
// the cooldown elapses.
func (g *Governor) NoteRetryAfter(family, headerValue string) {
	until := parseRetryAfter(headerValue)
	if until.IsZero() {
		return
	}
	f := g.familyFor(family)
	bumpCooldown(&f.cooldown, until.UnixNano())
}

// bumpCooldown raises cur to next only if next is later, so an older
// (already-expired) Retry-After response can never shorten an active
// cooldown set by a more recent 429.
func bumpCooldown(cur *atomic.Int64, next int64) {
	for {
		existing := cur.Load()
		if next <= existing {
			return
		}
		if cur.CompareAndSwap(existing, next) {
			return
		}
	}
}

// parseRetryAfter supports both the numeric-seconds and HTTP-date forms of
// the Retry-After header (RFC 7231 §7.1.3).
func parseRetryAfter(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return time.Time{}
		}
		return time.Now().Add(time.Duration(secs) * time.Second)
	}
	if t, err := http.ParseTime(v); err == nil {
		return t
	}
	return time.Time{}
}
