// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides layered configuration loading and a transactional
// configuration manager for the watchlist-to-acquisition bridge.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config is the single versioned configuration object for the application.
// It is loaded via LoadWithKoanf (defaults -> YAML file -> environment) and
// held behind ConfigManager's atomic pointer at runtime.
type Config struct {
	Plex         PlexConfig         `koanf:"plex"`
	Database     DatabaseConfig     `koanf:"database"`
	RateLimit    RateLimitConfig    `koanf:"rate_limit"`
	Routing      RoutingConfig      `koanf:"routing"`
	Quota        QuotaConfig        `koanf:"quota"`
	Scheduler    SchedulerConfig    `koanf:"scheduler"`
	Notification NotificationConfig `koanf:"notification"`
	Label        LabelConfig        `koanf:"label"`
	TMDB         TMDBConfig         `koanf:"tmdb"`
	Logging      LoggingConfig      `koanf:"logging"`
}

// PlexConfig holds the primary watchlist source credentials and the RSS
// feed URLs used as a degraded-mode fallback when polling is rate limited.
type PlexConfig struct {
	// PrimaryToken is the token for the token-owner's own account. Exactly
	// one user in the system carries is_primary_token = true, and it is
	// always this account.
	PrimaryToken string `koanf:"primary_token"`

	// SelfRSSURL and FriendsRSSURL are the optional RSS fallback feeds for
	// the primary watchlist and the friends' aggregate watchlist,
	// respectively. Empty disables that fallback.
	SelfRSSURL    string `koanf:"self_rss_url"`
	FriendsRSSURL string `koanf:"friends_rss_url"`

	// BaseURL is the plex.tv discover API base (overridable for testing).
	BaseURL string `koanf:"base_url"`

	// GraphQLURL is the community API base used for friend enumeration
	// and friends' watchlists.
	GraphQLURL string `koanf:"graphql_url"`

	// ServerBaseURL and ServerToken address the user's own media server
	// for label sync and session inspection.
	ServerBaseURL string `koanf:"server_base_url"`
	ServerToken   string `koanf:"server_token"`

	// SyncIntervalSeconds is the interval of the scheduled self-watchlist
	// sync job.
	SyncIntervalSeconds int `koanf:"sync_interval_seconds"`
}

// DatabaseConfig locates the embedded database file.
type DatabaseConfig struct {
	// Path is the DuckDB file location; ":memory:" keeps everything
	// in-process for tests.
	Path string `koanf:"path"`
}

// RateLimitConfig configures the per-endpoint-family token buckets and
// retry behavior of the rate-limited external client.
type RateLimitConfig struct {
	Families map[string]RateLimitFamily `koanf:"families"`

	// MaxRetries bounds the retry-with-backoff loop before a transient
	// error is surfaced to the caller.
	MaxRetries int `koanf:"max_retries"`

	// BackoffBaseMillis and BackoffCapMillis bound the full-jitter
	// exponential backoff: delay = rand(0, min(cap, base * 2^(attempt-1)))
	// for retry attempt 1, 2, ...
	BackoffBaseMillis int `koanf:"backoff_base_millis"`
	BackoffCapMillis  int `koanf:"backoff_cap_millis"`
}

// RateLimitFamily configures one shared token bucket, e.g. "plex",
// "sonarr", "radarr", "tmdb".
type RateLimitFamily struct {
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	Burst             int     `koanf:"burst"`
}

// RoutingConfig configures the routing engine.
type RoutingConfig struct {
	// DefaultSonarrInstanceID and DefaultRadarrInstanceID are loaded but not
	// read by the routing engine: when no rule matches, it falls back to the
	// instance flagged is_default for the target type.
	DefaultSonarrInstanceID int `koanf:"default_sonarr_instance_id"`
	DefaultRadarrInstanceID int `koanf:"default_radarr_instance_id"`
}

// QuotaConfig configures default quota accounting and the maintenance
// schedule that expires stale approvals and purges old terminal ones.
type QuotaConfig struct {
	// MaintenanceCron is a 6-field cron expression (sec min hr dom mon dow)
	// driving the quota-maintenance job.
	MaintenanceCron string `koanf:"maintenance_cron"`

	// WeeklyWindowDays is the configurable window length for
	// weekly_rolling quotas.
	WeeklyWindowDays int `koanf:"weekly_window_days"`

	// MonthlyResetDay is the day of month monthly quotas reset on.
	MonthlyResetDay int `koanf:"monthly_reset_day"`

	// MonthlyResetPolicy is one of "last-day", "skip-month", "next-month"
	// for quotas whose reset day exceeds a short month's length.
	MonthlyResetPolicy string `koanf:"monthly_reset_policy"`

	// ApprovalExpiry is how long a pending approval survives before the
	// maintenance job marks it expired.
	ApprovalExpiry time.Duration `koanf:"approval_expiry"`
}

// SchedulerConfig configures the persistent job runner.
type SchedulerConfig struct {
	// DefaultJobTimeout bounds how long a single job run may execute
	// before it is canceled by the runner.
	DefaultJobTimeout time.Duration `koanf:"default_job_timeout"`

	// ShutdownGrace is how long the scheduler's Serve waits for in-flight
	// runs to observe cancellation during shutdown.
	ShutdownGrace time.Duration `koanf:"shutdown_grace"`
}

// NotificationConfig configures dispatch fan-out and de-duplication.
type NotificationConfig struct {
	Channels []string `koanf:"channels"`

	// WebhookURL is the target of the built-in webhook channel; empty
	// disables it.
	WebhookURL string `koanf:"webhook_url"`

	// DedupWindow is loaded but not read by the dispatcher: a
	// (user, type, title, season, episode) key suppresses a repeat send for
	// as long as an active record with that key exists, with no time bound.
	DedupWindow time.Duration `koanf:"dedup_window"`
}

// LabelConfig configures library label/tag sync.
type LabelConfig struct {
	Prefix string `koanf:"prefix"`

	// RemovedUserPolicy is one of "remove", "keep", "special-label".
	RemovedUserPolicy string `koanf:"removed_user_policy"`

	// SpecialLabel is used when RemovedUserPolicy is "special-label".
	SpecialLabel string `koanf:"special_label"`

	// Concurrency bounds the number of simultaneous label apply/remove
	// calls against the library, clamped to [1, 20].
	Concurrency int `koanf:"concurrency"`
}

// TMDBConfig configures the third-party metadata enricher.
type TMDBConfig struct {
	APIKey string `koanf:"api_key"`
	Region string `koanf:"region"`
}

// LoggingConfig mirrors internal/logging.Config so it can be populated by
// the same layered loader and handed to logging.Init at startup.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

var (
	// ErrMissingPrimaryToken is returned when no Plex primary token is
	// configured; the ingester cannot authenticate without it.
	ErrMissingPrimaryToken = errors.New("config: plex primary token is required")

	// ErrInvalidConcurrency is returned when label sync concurrency falls
	// outside [1, 20].
	ErrInvalidConcurrency = errors.New("config: label concurrency must be between 1 and 20")

	// ErrInvalidResetPolicy is returned for an unrecognized monthly reset
	// policy value.
	ErrInvalidResetPolicy = errors.New("config: invalid monthly reset policy")

	// ErrInvalidRemovedUserPolicy is returned for an unrecognized removed
	// user label policy value.
	ErrInvalidRemovedUserPolicy = errors.New("config: invalid removed user policy")
)

// Validate checks invariants that koanf's unmarshal step cannot express.
func (c *Config) Validate() error {
	if c.Plex.PrimaryToken == "" {
		return ErrMissingPrimaryToken
	}
	if c.Label.Concurrency < 1 || c.Label.Concurrency > 20 {
		return ErrInvalidConcurrency
	}
	switch c.Quota.MonthlyResetPolicy {
	case "last-day", "skip-month", "next-month":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidResetPolicy, c.Quota.MonthlyResetPolicy)
	}
	switch c.Label.RemovedUserPolicy {
	case "remove", "keep", "special-label":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidRemovedUserPolicy, c.Label.RemovedUserPolicy)
	}
	if c.Label.RemovedUserPolicy == "special-label" && c.Label.SpecialLabel == "" {
		return fmt.Errorf("%w: special-label policy requires label.special_label", ErrInvalidRemovedUserPolicy)
	}
	return nil
}
