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

const userColumns = `id, name, plex_uuid, alias, email, chat_id,
	notify_email, notify_chat, notify_push,
	can_sync, is_primary_token, requires_approval, created_at, updated_at`

// EnsureSystemUser inserts the reserved "System" user (id 0) if it does
// not already exist. Called once at startup from Open.
func (db *DB) EnsureSystemUser(ctx context.Context) error {
	now := time.Now().UTC()
	_, err := db.q(ctx).ExecContext(ctx, `
		INSERT INTO users (id, name, can_sync, created_at, updated_at)
		SELECT ?, 'System', FALSE, ?, ?
		WHERE NOT EXISTS (SELECT 1 FROM users WHERE id = ?)`,
		models.SystemUserID, now, now, models.SystemUserID)
	if err != nil {
		return fmt.Errorf("store: ensure system user: %w", err)
	}
	return nil
}

// CreateUser inserts u and assigns its id and timestamps.
func (db *DB) CreateUser(ctx context.Context, u *models.User) error {
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	row := db.q(ctx).QueryRowContext(ctx, `
		INSERT INTO users (name, plex_uuid, alias, email, chat_id,
			notify_email, notify_chat, notify_push,
			can_sync, is_primary_token, requires_approval, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		u.Name, nullStr(u.PlexUUID), nullStr(u.Alias), nullStr(u.Email), nullStr(u.ChatID),
		u.NotifyFlags.Email, u.NotifyFlags.Chat, u.NotifyFlags.Push,
		u.CanSync, u.IsPrimaryToken, u.RequiresApproval, now, now)
	if err := row.Scan(&u.ID); err != nil {
		return fmt.Errorf("store: create user: %w", err)
	}
	return nil
}

// GetUser returns the user with the given id, or errs.ErrNotFound.
func (db *DB) GetUser(ctx context.Context, id int) (*models.User, error) {
	row := db.q(ctx).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// GetUserByPlexUUID returns the user with the given Plex account uuid.
func (db *DB) GetUserByPlexUUID(ctx context.Context, uuid string) (*models.User, error) {
	row := db.q(ctx).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE plex_uuid = ?`, uuid)
	return scanUser(row)
}

// ListUsers returns every user ordered by id.
func (db *DB) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := db.q(ctx).QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: list users: %w", err)
	}
	defer rows.Close()

	var out []models.User
	for rows.Next() {
		u, err := scanUserRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// UpdateUser persists every mutable field of u. Renaming the System user
// is rejected with errs.ErrImmutableSystemUser; its other fields are
// written like any other user's.
func (db *DB) UpdateUser(ctx context.Context, u *models.User) error {
	if u.ID == models.SystemUserID && u.Name != "System" {
		return errs.ErrImmutableSystemUser
	}
	u.UpdatedAt = time.Now().UTC()
	res, err := db.q(ctx).ExecContext(ctx, `
		UPDATE users SET name = ?, plex_uuid = ?, alias = ?, email = ?, chat_id = ?,
			notify_email = ?, notify_chat = ?, notify_push = ?,
			can_sync = ?, is_primary_token = ?, requires_approval = ?, updated_at = ?
		WHERE id = ?`,
		u.Name, nullStr(u.PlexUUID), nullStr(u.Alias), nullStr(u.Email), nullStr(u.ChatID),
		u.NotifyFlags.Email, u.NotifyFlags.Chat, u.NotifyFlags.Push,
		u.CanSync, u.IsPrimaryToken, u.RequiresApproval, u.UpdatedAt, u.ID)
	if err != nil {
		return fmt.Errorf("store: update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// DeleteUser removes a user and cascades to their watchlist items and the
// label tracking rows of those items. The System user is undeletable.
func (db *DB) DeleteUser(ctx context.Context, id int) error {
	if id == models.SystemUserID {
		return errs.ErrImmutableSystemUser
	}
	return db.WithTx(ctx, func(ctx context.Context) error {
		q := db.q(ctx)
		if _, err := q.ExecContext(ctx, `
			DELETE FROM label_tracking WHERE watchlist_item_id IN
				(SELECT id FROM watchlist_items WHERE user_id = ?)`, id); err != nil {
			return fmt.Errorf("store: delete user labels: %w", err)
		}
		if _, err := q.ExecContext(ctx,
			`DELETE FROM watchlist_items WHERE user_id = ?`, id); err != nil {
			return fmt.Errorf("store: delete user items: %w", err)
		}
		res, err := q.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("store: delete user: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errs.ErrNotFound
		}
		return nil
	})
}

// PrimaryTokenUser returns the single user flagged is_primary_token, or
// errs.ErrNotFound if token activation has not happened yet.
func (db *DB) PrimaryTokenUser(ctx context.Context) (*models.User, error) {
	row := db.q(ctx).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE is_primary_token LIMIT 1`)
	return scanUser(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUserFields(s rowScanner) (*models.User, error) {
	var u models.User
	var plexUUID, alias, email, chatID sql.NullString
	err := s.Scan(&u.ID, &u.Name, &plexUUID, &alias, &email, &chatID,
		&u.NotifyFlags.Email, &u.NotifyFlags.Chat, &u.NotifyFlags.Push,
		&u.CanSync, &u.IsPrimaryToken, &u.RequiresApproval, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("store: scan user: %w", err)
	}
	u.PlexUUID = strPtr(plexUUID)
	u.Alias = strPtr(alias)
	u.Email = strPtr(email)
	u.ChatID = strPtr(chatID)
	return &u, nil
}

func scanUser(row *sql.Row) (*models.User, error)      { return scanUserFields(row) }
func scanUserRows(rows *sql.Rows) (*models.User, error) { return scanUserFields(rows) }
