// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package config provides layered configuration loading and transactional
configuration management for the watchlist-to-acquisition bridge.

# Configuration Sources

Configuration loads in three layers, later layers overriding earlier ones:

 1. Built-in defaults (defaultConfig)
 2. An optional YAML file (config.yaml, or CONFIG_PATH)
 3. Environment variables

# Configuration Structure

The package organizes configuration into the sections consumed by each
core component:

  - PlexConfig: primary token and RSS fallback URLs for the ingester
  - RateLimitConfig: per-family token buckets and retry/backoff tuning
  - RoutingConfig: default downstream instances for unmatched content
  - QuotaConfig: quota maintenance schedule and reset policy
  - SchedulerConfig: job timeout and shutdown grace
  - NotificationConfig: channels and de-dup window
  - LabelConfig: label prefix, removed-user policy, sync concurrency
  - TMDBConfig: third-party metadata enrichment credentials
  - LoggingConfig: mirrors internal/logging.Config

# Environment Variables

	PLEX_PRIMARY_TOKEN        Plex token for the token-owner account (required)
	PLEX_SELF_RSS_URL         Optional self-watchlist RSS fallback
	PLEX_FRIENDS_RSS_URL      Optional friends-watchlist RSS fallback
	PLEX_BASE_URL             Plex metadata API base (default: metadata.provider.plex.tv)
	PLEX_SYNC_INTERVAL        Ingester poll interval in seconds (default: 20)

	RATE_LIMIT_MAX_RETRIES       Retry ceiling before surfacing a transient error
	RATE_LIMIT_BACKOFF_BASE_MS   Full-jitter backoff base in milliseconds
	RATE_LIMIT_BACKOFF_CAP_MS    Full-jitter backoff ceiling in milliseconds

	QUOTA_MAINTENANCE_CRON       6-field cron driving quota maintenance
	QUOTA_WEEKLY_WINDOW_DAYS     Rolling window length for weekly quotas
	QUOTA_MONTHLY_RESET_POLICY   last-day | skip-month | next-month
	QUOTA_APPROVAL_EXPIRY        Pending-approval expiry duration

	LABEL_PREFIX                 Library label prefix applied by label sync
	LABEL_REMOVED_USER_POLICY    remove | keep | special-label
	LABEL_SPECIAL_LABEL          Required when policy is special-label
	LABEL_CONCURRENCY            Bounded in [1, 20]

	TMDB_API_KEY, TMDB_REGION    Metadata enricher credentials

	LOG_LEVEL, LOG_FORMAT, LOG_CALLER   Forwarded to internal/logging

# Usage Example

	cfg, err := config.LoadWithKoanf()
	if err != nil {
	    log.Fatalf("failed to load config: %v", err)
	}

	mgr, err := config.NewConfigManager(cfg, store, store)
	if err != nil {
	    log.Fatalf("failed to start config manager: %v", err)
	}

	// Elsewhere, mutate transactionally:
	err = mgr.Update(ctx, func(c *config.Config) error {
	    c.Label.Concurrency = 10
	    return nil
	})

# Mutation Semantics

ConfigManager.Update edits a copy, validates it, persists it inside a
single transaction via TxRunner, and only swaps the live atomic pointer
after the transaction commits. Readers calling Current never observe a
config that failed validation or failed to persist.

# Thread Safety

Config values returned by LoadWithKoanf are safe to read concurrently
without synchronization. ConfigManager.Current is lock-free
(atomic.Pointer); ConfigManager.Update serializes against itself via the
underlying transaction but not against concurrent Update callers racing
to build their own copy — callers that need read-modify-write atomicity
across fields should encode the check inside the mutate closure.
*/
package config
