// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where a config file is searched for,
// in priority order. The first file found is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/pulsarr-sub009/config.yaml",
	"/etc/pulsarr-sub009/config.yml",
}

// ConfigPathEnvVar overrides the config file search with an explicit path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with sensible defaults. Layer 1 of
// LoadWithKoanf; overridden by the config file then by environment vars.
func defaultConfig() *Config {
	return &Config{
		Plex: PlexConfig{
			BaseURL:             "https://metadata.provider.plex.tv",
			SyncIntervalSeconds: 20,
		},
		RateLimit: RateLimitConfig{
			Families: map[string]RateLimitFamily{
				"plex":   {RequestsPerSecond: 1, Burst: 5},
				"sonarr": {RequestsPerSecond: 2, Burst: 10},
				"radarr": {RequestsPerSecond: 2, Burst: 10},
				"tmdb":   {RequestsPerSecond: 4, Burst: 10},
			},
			MaxRetries:        5,
			BackoffBaseMillis: 250,
			BackoffCapMillis:  30_000,
		},
		Routing: RoutingConfig{},
		Database: DatabaseConfig{
			Path: "data/pulsarr.duckdb",
		},
		Quota: QuotaConfig{
			MaintenanceCron:    "0 0 * * * *",
			WeeklyWindowDays:   7,
			MonthlyResetDay:    1,
			MonthlyResetPolicy: "last-day",
			ApprovalExpiry:     7 * 24 * time.Hour,
		},
		Scheduler: SchedulerConfig{
			DefaultJobTimeout: 10 * time.Minute,
			ShutdownGrace:     15 * time.Second,
		},
		Notification: NotificationConfig{
			Channels:    []string{},
			DedupWindow: 24 * time.Hour,
		},
		Label: LabelConfig{
			Prefix:            "pulsarr",
			RemovedUserPolicy: "remove",
			Concurrency:       5,
		},
		TMDB: TMDBConfig{
			Region: "US",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// LoadWithKoanf loads configuration with layered precedence:
//  1. Defaults: built-in sensible defaults
//  2. Config file: optional YAML file, if found
//  3. Environment variables: override anything above
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths lists koanf paths that should be parsed as
// comma-separated lists when they arrive as environment variable strings.
var sliceConfigPaths = []string{
	"notification.channels",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps flat environment variable names to koanf config
// paths. Unmapped keys return empty string and are skipped, which keeps
// unrelated environment variables from polluting the config tree.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		"plex_primary_token":     "plex.primary_token",
		"plex_self_rss_url":      "plex.self_rss_url",
		"plex_friends_rss_url":   "plex.friends_rss_url",
		"plex_base_url":          "plex.base_url",
		"plex_sync_interval":     "plex.sync_interval_seconds",
		"rate_limit_max_retries": "rate_limit.max_retries",
		"rate_limit_backoff_base_ms": "rate_limit.backoff_base_millis",
		"rate_limit_backoff_cap_ms":  "rate_limit.backoff_cap_millis",

		"routing_default_sonarr_instance_id": "routing.default_sonarr_instance_id",
		"routing_default_radarr_instance_id": "routing.default_radarr_instance_id",

		"quota_maintenance_cron":      "quota.maintenance_cron",
		"quota_weekly_window_days":    "quota.weekly_window_days",
		"quota_monthly_reset_policy":  "quota.monthly_reset_policy",
		"quota_approval_expiry":       "quota.approval_expiry",

		"scheduler_default_job_timeout": "scheduler.default_job_timeout",
		"scheduler_shutdown_grace":      "scheduler.shutdown_grace",

		"notification_channels":    "notification.channels",
		"notification_dedup_window": "notification.dedup_window",

		"label_prefix":              "label.prefix",
		"label_removed_user_policy": "label.removed_user_policy",
		"label_special_label":       "label.special_label",
		"label_concurrency":         "label.concurrency",

		"tmdb_api_key": "tmdb.api_key",
		"tmdb_region":  "tmdb.region",

		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}

// GetKoanfInstance returns a fresh Koanf instance for advanced callers
// (e.g. hot-reload with external mutex protection).
func GetKoanfInstance() *koanf.Koanf {
	return koanf.New(".")
}

// WatchConfigFile watches a config file for changes and invokes callback
// on each detected write. Callers are responsible for re-running
// LoadWithKoanf and any mutex protection around the resulting swap.
func WatchConfigFile(path string, callback func()) error {
	provider := file.Provider(path)
	return provider.Watch(func(event interface{}, err error) {
		if err != nil {
			return
		}
		callback()
	})
}
