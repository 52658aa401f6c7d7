// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jamcalli/Pulsarr-sub009/internal/config"
	"github.com/jamcalli/Pulsarr-sub009/internal/errs"
)

// configRowID is the fixed primary key of the single app_config row.
const configRowID = 1

// SaveConfig persists cfg as the single config row. It satisfies
// config.Persister, so ConfigManager mutations write through here inside
// the surrounding WithTx.
func (db *DB) SaveConfig(ctx context.Context, cfg *config.Config) error {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("store: marshal config: %w", err)
	}
	return db.WithTx(ctx, func(ctx context.Context) error {
		q := db.q(ctx)
		if _, err := q.ExecContext(ctx,
			`DELETE FROM app_config WHERE id = ?`, configRowID); err != nil {
			return fmt.Errorf("store: clear config: %w", err)
		}
		if _, err := q.ExecContext(ctx,
			`INSERT INTO app_config (id, payload, updated_at) VALUES (?, ?, ?)`,
			configRowID, string(payload), time.Now().UTC()); err != nil {
			return fmt.Errorf("store: save config: %w", err)
		}
		return nil
	})
}

// LoadConfig returns the persisted config row, or errs.ErrNotFound before
// the first save.
func (db *DB) LoadConfig(ctx context.Context) (*config.Config, error) {
	var payload string
	row := db.q(ctx).QueryRowContext(ctx,
		`SELECT payload FROM app_config WHERE id = ?`, configRowID)
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("store: load config: %w", err)
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, fmt.Errorf("store: unmarshal config: %w", err)
	}
	return &cfg, nil
}
