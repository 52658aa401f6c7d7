// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"fmt"
	"time"
)

// schemaContext bounds schema DDL, which should complete in well under a
// minute even on a cold volume.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createSchema creates every table and sequence if absent. All columns are
// defined in the initial CREATE TABLE statements; there are no runtime
// migrations.
func (db *DB) createSchema() error {
	ctx, cancel := schemaContext()
	defer cancel()

	stmts := []string{
		`CREATE SEQUENCE IF NOT EXISTS seq_users START 1`,
		`CREATE SEQUENCE IF NOT EXISTS seq_watchlist_items START 1`,
		`CREATE SEQUENCE IF NOT EXISTS seq_router_rules START 1`,
		`CREATE SEQUENCE IF NOT EXISTS seq_instances START 1`,
		`CREATE SEQUENCE IF NOT EXISTS seq_approval_requests START 1`,
		`CREATE SEQUENCE IF NOT EXISTS seq_usage_events START 1`,
		`CREATE SEQUENCE IF NOT EXISTS seq_scheduled_jobs START 1`,
		`CREATE SEQUENCE IF NOT EXISTS seq_notifications START 1`,
		`CREATE SEQUENCE IF NOT EXISTS seq_rolling_shows START 1`,

		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY DEFAULT nextval('seq_users'),
			name TEXT NOT NULL,
			plex_uuid TEXT,
			alias TEXT,
			email TEXT,
			chat_id TEXT,
			notify_email BOOLEAN NOT NULL DEFAULT FALSE,
			notify_chat BOOLEAN NOT NULL DEFAULT FALSE,
			notify_push BOOLEAN NOT NULL DEFAULT FALSE,
			can_sync BOOLEAN NOT NULL DEFAULT TRUE,
			is_primary_token BOOLEAN NOT NULL DEFAULT FALSE,
			requires_approval BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS watchlist_items (
			id INTEGER PRIMARY KEY DEFAULT nextval('seq_watchlist_items'),
			user_id INTEGER NOT NULL,
			key TEXT NOT NULL,
			title TEXT NOT NULL,
			type TEXT NOT NULL,
			thumb TEXT,
			added TIMESTAMP,
			guids TEXT,
			genres TEXT,
			status TEXT NOT NULL DEFAULT 'pending',
			series_status TEXT,
			movie_status TEXT,
			sonarr_instance_id INTEGER,
			radarr_instance_id INTEGER,
			last_notified_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE (user_id, key)
		)`,

		`CREATE TABLE IF NOT EXISTS watchlist_status_history (
			watchlist_item_id INTEGER NOT NULL,
			status TEXT NOT NULL,
			observed_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS router_rules (
			id INTEGER PRIMARY KEY DEFAULT nextval('seq_router_rules'),
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			criteria TEXT,
			condition TEXT,
			target_type TEXT NOT NULL,
			target_instance_id INTEGER NOT NULL,
			root_folder TEXT,
			quality_profile TEXT,
			tags TEXT,
			"order" INTEGER NOT NULL DEFAULT 0,
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			search_on_add BOOLEAN,
			season_monitoring TEXT,
			series_type TEXT,
			minimum_availability TEXT,
			monitor TEXT,
			metadata TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS instances (
			id INTEGER PRIMARY KEY DEFAULT nextval('seq_instances'),
			name TEXT NOT NULL,
			target_type TEXT NOT NULL,
			base_url TEXT NOT NULL,
			api_key TEXT NOT NULL,
			is_default BOOLEAN NOT NULL DEFAULT FALSE,
			synced_instances TEXT,
			defaults TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS approval_requests (
			id INTEGER PRIMARY KEY DEFAULT nextval('seq_approval_requests'),
			user_id INTEGER NOT NULL,
			content_type TEXT NOT NULL,
			content_title TEXT NOT NULL,
			content_key TEXT NOT NULL,
			content_guids TEXT,
			proposed_router_decision TEXT,
			triggered_by TEXT NOT NULL,
			approval_reason TEXT,
			status TEXT NOT NULL DEFAULT 'pending',
			approved_by INTEGER,
			approval_notes TEXT,
			expires_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS quotas (
			user_id INTEGER NOT NULL,
			content_type TEXT NOT NULL,
			type TEXT NOT NULL,
			limit_count INTEGER NOT NULL,
			bypass_approval BOOLEAN NOT NULL DEFAULT FALSE,
			UNIQUE (user_id, content_type)
		)`,

		`CREATE TABLE IF NOT EXISTS usage_events (
			id INTEGER PRIMARY KEY DEFAULT nextval('seq_usage_events'),
			user_id INTEGER NOT NULL,
			content_type TEXT NOT NULL,
			ts TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS scheduled_jobs (
			id INTEGER PRIMARY KEY DEFAULT nextval('seq_scheduled_jobs'),
			name TEXT NOT NULL UNIQUE,
			type TEXT NOT NULL,
			config TEXT,
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			last_run_time TIMESTAMP,
			last_run_status TEXT,
			last_run_error TEXT,
			next_run_time TIMESTAMP,
			next_run_estimated BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS label_tracking (
			watchlist_item_id INTEGER NOT NULL,
			plex_rating_key TEXT NOT NULL,
			label_applied TEXT NOT NULL,
			UNIQUE (watchlist_item_id, plex_rating_key, label_applied)
		)`,

		`CREATE TABLE IF NOT EXISTS notifications (
			id INTEGER PRIMARY KEY DEFAULT nextval('seq_notifications'),
			watchlist_item_id INTEGER,
			user_id INTEGER,
			type TEXT NOT NULL,
			title TEXT NOT NULL,
			season INTEGER,
			episode INTEGER,
			sent_to_chat BOOLEAN NOT NULL DEFAULT FALSE,
			sent_to_email BOOLEAN NOT NULL DEFAULT FALSE,
			sent_to_webhook BOOLEAN NOT NULL DEFAULT FALSE,
			sent_to_push BOOLEAN NOT NULL DEFAULT FALSE,
			notification_status TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS rolling_shows (
			id INTEGER PRIMARY KEY DEFAULT nextval('seq_rolling_shows'),
			watchlist_item_id INTEGER NOT NULL,
			sonarr_instance_id INTEGER NOT NULL,
			monitored_season INTEGER NOT NULL,
			starting_monitoring TEXT NOT NULL,
			last_progress_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE (watchlist_item_id)
		)`,

		`CREATE TABLE IF NOT EXISTS app_config (
			id INTEGER PRIMARY KEY,
			payload TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_watchlist_user ON watchlist_items (user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_watchlist_status ON watchlist_items (status)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_user_type_ts ON usage_events (user_id, content_type, ts)`,
		`CREATE INDEX IF NOT EXISTS idx_approvals_user_key ON approval_requests (user_id, content_key)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_dedup ON notifications (user_id, type, title)`,
	}

	for _, stmt := range stmts {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: schema statement failed: %w", err)
		}
	}
	return nil
}
