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

const rollingColumns = `id, watchlist_item_id, sonarr_instance_id, monitored_season,
	starting_monitoring, last_progress_at, created_at, updated_at`

// CreateRollingShow records that a show was submitted with rolling
// monitoring. One record per watchlist item; re-creating is a no-op that
// returns the existing record's values into r.
func (db *DB) CreateRollingShow(ctx context.Context, r *models.RollingShow) error {
	return db.WithTx(ctx, func(ctx context.Context) error {
		existing, err := db.RollingShowForItem(ctx, r.WatchlistItemID)
		if err != nil && !errors.Is(err, errs.ErrNotFound) {
			return err
		}
		if existing != nil {
			*r = *existing
			return nil
		}
		now := time.Now().UTC()
		r.CreatedAt = now
		r.UpdatedAt = now
		row := db.q(ctx).QueryRowContext(ctx, `
			INSERT INTO rolling_shows (watchlist_item_id, sonarr_instance_id,
				monitored_season, starting_monitoring, last_progress_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			RETURNING id`,
			r.WatchlistItemID, r.SonarrInstanceID, r.MonitoredSeason,
			r.StartingMonitoring, nullTime(r.LastProgressAt), now, now)
		if err := row.Scan(&r.ID); err != nil {
			return fmt.Errorf("store: create rolling show: %w", err)
		}
		return nil
	})
}

// RollingShowForItem returns the rolling record for one watchlist item.
func (db *DB) RollingShowForItem(ctx context.Context, itemID int) (*models.RollingShow, error) {
	row := db.q(ctx).QueryRowContext(ctx,
		`SELECT `+rollingColumns+` FROM rolling_shows WHERE watchlist_item_id = ?`, itemID)
	return scanRolling(row)
}

// ListRollingShows returns every tracked rolling show ordered by id.
func (db *DB) ListRollingShows(ctx context.Context) ([]models.RollingShow, error) {
	rows, err := db.q(ctx).QueryContext(ctx,
		`SELECT `+rollingColumns+` FROM rolling_shows ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: list rolling shows: %w", err)
	}
	defer rows.Close()

	var out []models.RollingShow
	for rows.Next() {
		r, err := scanRollingFields(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// UpdateRollingShow persists the monitored season and progress timestamp.
func (db *DB) UpdateRollingShow(ctx context.Context, r *models.RollingShow) error {
	r.UpdatedAt = time.Now().UTC()
	res, err := db.q(ctx).ExecContext(ctx, `
		UPDATE rolling_shows SET monitored_season = ?, last_progress_at = ?, updated_at = ?
		WHERE id = ?`,
		r.MonitoredSeason, nullTime(r.LastProgressAt), r.UpdatedAt, r.ID)
	if err != nil {
		return fmt.Errorf("store: update rolling show: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// DeleteRollingShow removes one tracking record.
func (db *DB) DeleteRollingShow(ctx context.Context, id int) error {
	res, err := db.q(ctx).ExecContext(ctx, `DELETE FROM rolling_shows WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete rolling show: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func scanRollingFields(s rowScanner) (*models.RollingShow, error) {
	var r models.RollingShow
	var lastProgress sql.NullTime
	err := s.Scan(&r.ID, &r.WatchlistItemID, &r.SonarrInstanceID, &r.MonitoredSeason,
		&r.StartingMonitoring, &lastProgress, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("store: scan rolling show: %w", err)
	}
	r.LastProgressAt = timePtr(lastProgress)
	return &r, nil
}

func scanRolling(row *sql.Row) (*models.RollingShow, error) { return scanRollingFields(row) }
