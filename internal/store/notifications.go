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

const notificationColumns = `id, watchlist_item_id, user_id, type, title, season, episode,
	sent_to_chat, sent_to_email, sent_to_webhook, sent_to_push, notification_status, created_at`

// FindNotification looks up an existing record by the de-dup key
// (user, type, title, season, episode), treating NULL season/episode as a
// key value distinct from 0. Returns errs.ErrNotFound when absent.
func (db *DB) FindNotification(ctx context.Context, key models.NotificationKey) (*models.NotificationRecord, error) {
	row := db.q(ctx).QueryRowContext(ctx, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE user_id = ? AND type = ? AND title = ?
			AND season IS NOT DISTINCT FROM ?
			AND episode IS NOT DISTINCT FROM ?
		ORDER BY created_at DESC LIMIT 1`,
		key.UserID, string(key.Type), key.Title, nullInt(key.Season), nullInt(key.Episode))
	return scanNotification(row)
}

// CreateNotification inserts rec and assigns its id.
func (db *DB) CreateNotification(ctx context.Context, rec *models.NotificationRecord) error {
	rec.CreatedAt = time.Now().UTC()
	row := db.q(ctx).QueryRowContext(ctx, `
		INSERT INTO notifications (watchlist_item_id, user_id, type, title, season, episode,
			sent_to_chat, sent_to_email, sent_to_webhook, sent_to_push, notification_status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		nullInt(rec.WatchlistItemID), nullInt(rec.UserID), string(rec.Type), rec.Title,
		nullInt(rec.Season), nullInt(rec.Episode),
		rec.SentTo.Chat, rec.SentTo.Email, rec.SentTo.Webhook, rec.SentTo.Push,
		rec.NotificationStatus, rec.CreatedAt)
	if err := row.Scan(&rec.ID); err != nil {
		return fmt.Errorf("store: create notification: %w", err)
	}
	return nil
}

// ListNotifications returns the most recent records, newest first.
func (db *DB) ListNotifications(ctx context.Context, limit int) ([]models.NotificationRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.q(ctx).QueryContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications ORDER BY created_at DESC, id DESC LIMIT ?`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("store: list notifications: %w", err)
	}
	defer rows.Close()

	var out []models.NotificationRecord
	for rows.Next() {
		rec, err := scanNotificationFields(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func scanNotificationFields(s rowScanner) (*models.NotificationRecord, error) {
	var rec models.NotificationRecord
	var typ string
	var itemID, userID, season, episode sql.NullInt64

	err := s.Scan(&rec.ID, &itemID, &userID, &typ, &rec.Title, &season, &episode,
		&rec.SentTo.Chat, &rec.SentTo.Email, &rec.SentTo.Webhook, &rec.SentTo.Push,
		&rec.NotificationStatus, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("store: scan notification: %w", err)
	}
	rec.Type = models.NotificationType(typ)
	rec.WatchlistItemID = intPtr(itemID)
	rec.UserID = intPtr(userID)
	rec.Season = intPtr(season)
	rec.Episode = intPtr(episode)
	return &rec, nil
}

func scanNotification(row *sql.Row) (*models.NotificationRecord, error) {
	return scanNotificationFields(row)
}
