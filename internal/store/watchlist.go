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

const watchlistColumns = `id, user_id, key, title, type, thumb, added, guids, genres,
	status, series_status, movie_status, sonarr_instance_id, radarr_instance_id,
	last_notified_at, created_at, updated_at`

// WatchlistUpdate is one item's minimal change set as computed by the
// reconciler. Nil fields are left untouched. Identity is (UserID, Key).
type WatchlistUpdate struct {
	UserID           int
	Key              string
	Added            *time.Time
	Status           *models.WatchlistStatus
	SeriesStatus     *models.SeriesStatus
	MovieStatus      *models.MovieStatus
	SonarrInstanceID *int
	RadarrInstanceID *int
	LastNotifiedAt   *time.Time
}

// IsEmpty reports whether u carries no change beyond its identity.
func (u *WatchlistUpdate) IsEmpty() bool {
	return u.Added == nil && u.Status == nil && u.SeriesStatus == nil &&
		u.MovieStatus == nil && u.SonarrInstanceID == nil &&
		u.RadarrInstanceID == nil && u.LastNotifiedAt == nil
}

// CreateWatchlistItem inserts item and assigns its id and timestamps.
func (db *DB) CreateWatchlistItem(ctx context.Context, item *models.WatchlistItem) error {
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now
	if item.Status == "" {
		item.Status = models.StatusPending
	}
	item.GUIDs = models.NormalizeGUIDs(item.GUIDs)

	guids, err := marshalJSON(item.GUIDs)
	if err != nil {
		return err
	}
	genres, err := marshalJSON(item.Genres)
	if err != nil {
		return err
	}

	row := db.q(ctx).QueryRowContext(ctx, `
		INSERT INTO watchlist_items (user_id, key, title, type, thumb, added, guids, genres,
			status, series_status, movie_status, sonarr_instance_id, radarr_instance_id,
			last_notified_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		item.UserID, item.Key, item.Title, string(item.Type), nullStr(item.Thumb),
		nullTime(item.Added), guids, genres, string(item.Status),
		seriesStatusVal(item.SeriesStatus), movieStatusVal(item.MovieStatus),
		nullInt(item.SonarrInstanceID), nullInt(item.RadarrInstanceID),
		nullTime(item.LastNotifiedAt), now, now)
	if err := row.Scan(&item.ID); err != nil {
		return fmt.Errorf("store: create watchlist item: %w", err)
	}
	return nil
}

// GetWatchlistItem looks an item up by its (user, key) identity.
func (db *DB) GetWatchlistItem(ctx context.Context, userID int, key string) (*models.WatchlistItem, error) {
	row := db.q(ctx).QueryRowContext(ctx,
		`SELECT `+watchlistColumns+` FROM watchlist_items WHERE user_id = ? AND key = ?`,
		userID, key)
	return scanWatchlistItem(row)
}

// GetWatchlistItemByID looks an item up by primary key.
func (db *DB) GetWatchlistItemByID(ctx context.Context, id int) (*models.WatchlistItem, error) {
	row := db.q(ctx).QueryRowContext(ctx,
		`SELECT `+watchlistColumns+` FROM watchlist_items WHERE id = ?`, id)
	return scanWatchlistItem(row)
}

// ListWatchlistItems returns one user's items ordered by id.
func (db *DB) ListWatchlistItems(ctx context.Context, userID int) ([]models.WatchlistItem, error) {
	return db.queryItems(ctx,
		`SELECT `+watchlistColumns+` FROM watchlist_items WHERE user_id = ? ORDER BY id`, userID)
}

// ListAllWatchlistItems returns every item ordered by id.
func (db *DB) ListAllWatchlistItems(ctx context.Context) ([]models.WatchlistItem, error) {
	return db.queryItems(ctx, `SELECT `+watchlistColumns+` FROM watchlist_items ORDER BY id`)
}

// FindItemsByKeyAnyUser returns every user's row for the given external
// key, used by the ingester to link known content to a new user.
func (db *DB) FindItemsByKeyAnyUser(ctx context.Context, key string) ([]models.WatchlistItem, error) {
	return db.queryItems(ctx,
		`SELECT `+watchlistColumns+` FROM watchlist_items WHERE key = ? ORDER BY id`, key)
}

func (db *DB) queryItems(ctx context.Context, query string, args ...any) ([]models.WatchlistItem, error) {
	rows, err := db.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query watchlist items: %w", err)
	}
	defer rows.Close()

	var out []models.WatchlistItem
	for rows.Next() {
		item, err := scanWatchlistItemFields(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *item)
	}
	return out, rows.Err()
}

// BulkUpdateWatchlistItems applies every update in one transaction,
// enforcing the status DAG: a backward status move returns
// errs.ErrStatusDowngrade and rolls the whole batch back. Empty updates
// are skipped.
func (db *DB) BulkUpdateWatchlistItems(ctx context.Context, updates []WatchlistUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	return db.WithTx(ctx, func(ctx context.Context) error {
		for i := range updates {
			u := &updates[i]
			if u.IsEmpty() {
				continue
			}
			if err := db.applyWatchlistUpdate(ctx, u); err != nil {
				return err
			}
		}
		return nil
	})
}

func (db *DB) applyWatchlistUpdate(ctx context.Context, u *WatchlistUpdate) error {
	item, err := db.GetWatchlistItem(ctx, u.UserID, u.Key)
	if err != nil {
		return err
	}

	if u.Status != nil {
		if !item.Status.IsForwardTransition(*u.Status) {
			return fmt.Errorf("%w: %s -> %s for item %d",
				errs.ErrStatusDowngrade, item.Status, *u.Status, item.ID)
		}
		item.Status = *u.Status
	}
	if u.Added != nil {
		item.Added = u.Added
	}
	if u.SeriesStatus != nil {
		item.SeriesStatus = u.SeriesStatus
	}
	if u.MovieStatus != nil {
		item.MovieStatus = u.MovieStatus
	}
	if u.SonarrInstanceID != nil {
		item.SonarrInstanceID = u.SonarrInstanceID
	}
	if u.RadarrInstanceID != nil {
		item.RadarrInstanceID = u.RadarrInstanceID
	}
	if u.LastNotifiedAt != nil {
		item.LastNotifiedAt = u.LastNotifiedAt
	}

	_, err = db.q(ctx).ExecContext(ctx, `
		UPDATE watchlist_items SET added = ?, status = ?, series_status = ?, movie_status = ?,
			sonarr_instance_id = ?, radarr_instance_id = ?, last_notified_at = ?, updated_at = ?
		WHERE user_id = ? AND key = ?`,
		nullTime(item.Added), string(item.Status),
		seriesStatusVal(item.SeriesStatus), movieStatusVal(item.MovieStatus),
		nullInt(item.SonarrInstanceID), nullInt(item.RadarrInstanceID),
		nullTime(item.LastNotifiedAt), time.Now().UTC(), u.UserID, u.Key)
	if err != nil {
		return fmt.Errorf("store: apply watchlist update: %w", err)
	}
	return nil
}

// UpdateWatchlistMetadata rewrites one item's source-derived fields
// (title, thumb, guids, genres) without touching lifecycle state. Used by
// force-refresh ingests.
func (db *DB) UpdateWatchlistMetadata(ctx context.Context, item *models.WatchlistItem) error {
	item.GUIDs = models.NormalizeGUIDs(item.GUIDs)
	guids, err := marshalJSON(item.GUIDs)
	if err != nil {
		return err
	}
	genres, err := marshalJSON(item.Genres)
	if err != nil {
		return err
	}
	res, err := db.q(ctx).ExecContext(ctx, `
		UPDATE watchlist_items SET title = ?, thumb = ?, guids = ?, genres = ?, updated_at = ?
		WHERE user_id = ? AND key = ?`,
		item.Title, nullStr(item.Thumb), guids, genres, time.Now().UTC(),
		item.UserID, item.Key)
	if err != nil {
		return fmt.Errorf("store: update watchlist metadata: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// ResetWatchlistStatus is the one sanctioned way to move a status
// backward on the DAG, e.g. re-requesting content after deletion.
func (db *DB) ResetWatchlistStatus(ctx context.Context, id int, to models.WatchlistStatus) error {
	res, err := db.q(ctx).ExecContext(ctx,
		`UPDATE watchlist_items SET status = ?, updated_at = ? WHERE id = ?`,
		string(to), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("store: reset watchlist status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// DeleteWatchlistItems removes the given keys for one user only, cascading
// to their label tracking rows. Other users' rows for the same content are
// untouched.
func (db *DB) DeleteWatchlistItems(ctx context.Context, userID int, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	return db.WithTx(ctx, func(ctx context.Context) error {
		for _, key := range keys {
			q := db.q(ctx)
			if _, err := q.ExecContext(ctx, `
				DELETE FROM label_tracking WHERE watchlist_item_id IN
					(SELECT id FROM watchlist_items WHERE user_id = ? AND key = ?)`,
				userID, key); err != nil {
				return fmt.Errorf("store: delete item labels: %w", err)
			}
			if _, err := q.ExecContext(ctx,
				`DELETE FROM watchlist_items WHERE user_id = ? AND key = ?`,
				userID, key); err != nil {
				return fmt.Errorf("store: delete watchlist item: %w", err)
			}
		}
		return nil
	})
}

// AppendStatusHistory records a status observation that did not change the
// live status (the notified-but-grabbed backfill case).
func (db *DB) AppendStatusHistory(ctx context.Context, entry models.StatusHistoryEntry) error {
	_, err := db.q(ctx).ExecContext(ctx,
		`INSERT INTO watchlist_status_history (watchlist_item_id, status, observed_at) VALUES (?, ?, ?)`,
		entry.WatchlistItemID, string(entry.Status), entry.ObservedAt.UTC())
	if err != nil {
		return fmt.Errorf("store: append status history: %w", err)
	}
	return nil
}

// StatusHistory returns the backfilled observations for one item.
func (db *DB) StatusHistory(ctx context.Context, itemID int) ([]models.StatusHistoryEntry, error) {
	rows, err := db.q(ctx).QueryContext(ctx, `
		SELECT watchlist_item_id, status, observed_at FROM watchlist_status_history
		WHERE watchlist_item_id = ? ORDER BY observed_at`, itemID)
	if err != nil {
		return nil, fmt.Errorf("store: status history: %w", err)
	}
	defer rows.Close()

	var out []models.StatusHistoryEntry
	for rows.Next() {
		var e models.StatusHistoryEntry
		var status string
		if err := rows.Scan(&e.WatchlistItemID, &status, &e.ObservedAt); err != nil {
			return nil, fmt.Errorf("store: scan status history: %w", err)
		}
		e.Status = models.WatchlistStatus(status)
		out = append(out, e)
	}
	return out, rows.Err()
}

func seriesStatusVal(s *models.SeriesStatus) any {
	if s == nil {
		return nil
	}
	return string(*s)
}

func movieStatusVal(s *models.MovieStatus) any {
	if s == nil {
		return nil
	}
	return string(*s)
}

func scanWatchlistItemFields(s rowScanner) (*models.WatchlistItem, error) {
	var item models.WatchlistItem
	var typ, status string
	var thumb, seriesStatus, movieStatus, guids, genres sql.NullString
	var added, lastNotified sql.NullTime
	var sonarrID, radarrID sql.NullInt64

	err := s.Scan(&item.ID, &item.UserID, &item.Key, &item.Title, &typ, &thumb,
		&added, &guids, &genres, &status, &seriesStatus, &movieStatus,
		&sonarrID, &radarrID, &lastNotified, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("store: scan watchlist item: %w", err)
	}

	item.Type = models.ContentType(typ)
	item.Status = models.WatchlistStatus(status)
	item.Thumb = strPtr(thumb)
	item.Added = timePtr(added)
	item.LastNotifiedAt = timePtr(lastNotified)
	item.SonarrInstanceID = intPtr(sonarrID)
	item.RadarrInstanceID = intPtr(radarrID)
	if seriesStatus.Valid {
		v := models.SeriesStatus(seriesStatus.String)
		item.SeriesStatus = &v
	}
	if movieStatus.Valid {
		v := models.MovieStatus(movieStatus.String)
		item.MovieStatus = &v
	}
	if err := unmarshalJSON(guids, &item.GUIDs); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(genres, &item.Genres); err != nil {
		return nil, err
	}
	return &item, nil
}

func scanWatchlistItem(row *sql.Row) (*models.WatchlistItem, error) {
	return scanWatchlistItemFields(row)
}
