// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"fmt"

	"github.com/jamcalli/Pulsarr-sub009/internal/models"
)

// UpsertLabelTracking records one applied label, idempotent by its unique
// (watchlist item, rating key, label) triple.
func (db *DB) UpsertLabelTracking(ctx context.Context, t models.LabelTracking) error {
	_, err := db.q(ctx).ExecContext(ctx, `
		INSERT INTO label_tracking (watchlist_item_id, plex_rating_key, label_applied)
		SELECT ?, ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM label_tracking
			WHERE watchlist_item_id = ? AND plex_rating_key = ? AND label_applied = ?)`,
		t.WatchlistItemID, t.PlexRatingKey, t.LabelApplied,
		t.WatchlistItemID, t.PlexRatingKey, t.LabelApplied)
	if err != nil {
		return fmt.Errorf("store: upsert label tracking: %w", err)
	}
	return nil
}

// DeleteLabelTracking removes one tracking triple. Removing an absent
// triple is a no-op, keeping apply/remove sequences idempotent.
func (db *DB) DeleteLabelTracking(ctx context.Context, t models.LabelTracking) error {
	_, err := db.q(ctx).ExecContext(ctx, `
		DELETE FROM label_tracking
		WHERE watchlist_item_id = ? AND plex_rating_key = ? AND label_applied = ?`,
		t.WatchlistItemID, t.PlexRatingKey, t.LabelApplied)
	if err != nil {
		return fmt.Errorf("store: delete label tracking: %w", err)
	}
	return nil
}

// ListLabelTracking returns every tracked label, optionally filtered to
// one rating key when ratingKey is non-empty.
func (db *DB) ListLabelTracking(ctx context.Context, ratingKey string) ([]models.LabelTracking, error) {
	query := `SELECT watchlist_item_id, plex_rating_key, label_applied FROM label_tracking`
	args := []any{}
	if ratingKey != "" {
		query += ` WHERE plex_rating_key = ?`
		args = append(args, ratingKey)
	}
	query += ` ORDER BY plex_rating_key, label_applied`

	rows, err := db.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list label tracking: %w", err)
	}
	defer rows.Close()

	var out []models.LabelTracking
	for rows.Next() {
		var t models.LabelTracking
		if err := rows.Scan(&t.WatchlistItemID, &t.PlexRatingKey, &t.LabelApplied); err != nil {
			return nil, fmt.Errorf("store: scan label tracking: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteOrphanedLabelTracking removes tracking rows whose watchlist item
// no longer exists, returning how many were removed.
func (db *DB) DeleteOrphanedLabelTracking(ctx context.Context) (int, error) {
	res, err := db.q(ctx).ExecContext(ctx, `
		DELETE FROM label_tracking
		WHERE watchlist_item_id NOT IN (SELECT id FROM watchlist_items)`)
	if err != nil {
		return 0, fmt.Errorf("store: delete orphaned label tracking: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
