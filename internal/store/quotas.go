// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jamcalli/Pulsarr-sub009/internal/errs"
	"github.com/jamcalli/Pulsarr-sub009/internal/models"
)

// SetQuota inserts or replaces the quota record for one (user, content
// type) pair.
func (db *DB) SetQuota(ctx context.Context, q models.QuotaRecord) error {
	return db.WithTx(ctx, func(ctx context.Context) error {
		if _, err := db.q(ctx).ExecContext(ctx,
			`DELETE FROM quotas WHERE user_id = ? AND content_type = ?`,
			q.UserID, string(q.ContentType)); err != nil {
			return fmt.Errorf("store: clear quota: %w", err)
		}
		if _, err := db.q(ctx).ExecContext(ctx, `
			INSERT INTO quotas (user_id, content_type, type, limit_count, bypass_approval)
			VALUES (?, ?, ?, ?, ?)`,
			q.UserID, string(q.ContentType), string(q.Type), q.Limit, q.BypassApproval); err != nil {
			return fmt.Errorf("store: set quota: %w", err)
		}
		return nil
	})
}

// GetQuota returns the quota record for one (user, content type), or
// errs.ErrNotFound when the user has no quota configured.
func (db *DB) GetQuota(ctx context.Context, userID int, contentType models.ContentType) (*models.QuotaRecord, error) {
	row := db.q(ctx).QueryRowContext(ctx, `
		SELECT user_id, content_type, type, limit_count, bypass_approval
		FROM quotas WHERE user_id = ? AND content_type = ?`,
		userID, string(contentType))

	var q models.QuotaRecord
	var ct, qt string
	err := row.Scan(&q.UserID, &ct, &qt, &q.Limit, &q.BypassApproval)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("store: get quota: %w", err)
	}
	q.ContentType = models.ContentType(ct)
	q.Type = models.QuotaType(qt)
	return &q, nil
}

// DeleteQuota removes the quota for one (user, content type).
func (db *DB) DeleteQuota(ctx context.Context, userID int, contentType models.ContentType) error {
	_, err := db.q(ctx).ExecContext(ctx,
		`DELETE FROM quotas WHERE user_id = ? AND content_type = ?`,
		userID, string(contentType))
	if err != nil {
		return fmt.Errorf("store: delete quota: %w", err)
	}
	return nil
}

// RecordUsage appends one usage event.
func (db *DB) RecordUsage(ctx context.Context, userID int, contentType models.ContentType, ts time.Time) error {
	_, err := db.q(ctx).ExecContext(ctx,
		`INSERT INTO usage_events (user_id, content_type, ts) VALUES (?, ?, ?)`,
		userID, string(contentType), ts.UTC())
	if err != nil {
		return fmt.Errorf("store: record usage: %w", err)
	}
	return nil
}

// UsageSince counts one user's usage events for a content type at or
// after since.
func (db *DB) UsageSince(ctx context.Context, userID int, contentType models.ContentType, since time.Time) (int, error) {
	row := db.q(ctx).QueryRowContext(ctx, `
		SELECT count(*) FROM usage_events
		WHERE user_id = ? AND content_type = ? AND ts >= ?`,
		userID, string(contentType), since.UTC())
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("store: usage since: %w", err)
	}
	return n, nil
}

// PurgeUsageBefore trims usage events older than the cutoff. Events only
// matter within the longest quota window, so maintenance can prune freely.
func (db *DB) PurgeUsageBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := db.q(ctx).ExecContext(ctx,
		`DELETE FROM usage_events WHERE ts < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("store: purge usage: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
