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

const instanceColumns = `id, name, target_type, base_url, api_key, is_default, synced_instances, defaults`

// validateInstance enforces the two structural invariants: at most one
// default per target type, and only defaults may carry synced instances.
func (db *DB) validateInstance(ctx context.Context, inst *models.DownstreamInstance) error {
	if !inst.IsDefault && len(inst.SyncedInstances) > 0 {
		return fmt.Errorf("%w: non-default instance %q cannot carry synced instances",
			errs.ErrInvalidInstanceDefaults, inst.Name)
	}
	if inst.IsDefault {
		var count int
		row := db.q(ctx).QueryRowContext(ctx,
			`SELECT count(*) FROM instances WHERE target_type = ? AND is_default AND id <> ?`,
			string(inst.TargetType), inst.ID)
		if err := row.Scan(&count); err != nil {
			return fmt.Errorf("store: count default instances: %w", err)
		}
		if count > 0 {
			return fmt.Errorf("%w: a default %s instance already exists",
				errs.ErrInvalidInstanceDefaults, inst.TargetType)
		}
	}
	return nil
}

// CreateInstance inserts inst and assigns its id.
func (db *DB) CreateInstance(ctx context.Context, inst *models.DownstreamInstance) error {
	if err := validateStruct(inst); err != nil {
		return err
	}
	return db.WithTx(ctx, func(ctx context.Context) error {
		if err := db.validateInstance(ctx, inst); err != nil {
			return err
		}
		synced, err := marshalJSON(inst.SyncedInstances)
		if err != nil {
			return err
		}
		defaults, err := marshalJSON(inst.Defaults)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		row := db.q(ctx).QueryRowContext(ctx, `
			INSERT INTO instances (name, target_type, base_url, api_key, is_default,
				synced_instances, defaults, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id`,
			inst.Name, string(inst.TargetType), inst.BaseURL, inst.APIKey,
			inst.IsDefault, synced, defaults, now, now)
		if err := row.Scan(&inst.ID); err != nil {
			return fmt.Errorf("store: create instance: %w", err)
		}
		return nil
	})
}

// UpdateInstance persists every field of inst under the same invariants as
// CreateInstance.
func (db *DB) UpdateInstance(ctx context.Context, inst *models.DownstreamInstance) error {
	return db.WithTx(ctx, func(ctx context.Context) error {
		if err := db.validateInstance(ctx, inst); err != nil {
			return err
		}
		synced, err := marshalJSON(inst.SyncedInstances)
		if err != nil {
			return err
		}
		defaults, err := marshalJSON(inst.Defaults)
		if err != nil {
			return err
		}
		res, err := db.q(ctx).ExecContext(ctx, `
			UPDATE instances SET name = ?, target_type = ?, base_url = ?, api_key = ?,
				is_default = ?, synced_instances = ?, defaults = ?, updated_at = ?
			WHERE id = ?`,
			inst.Name, string(inst.TargetType), inst.BaseURL, inst.APIKey,
			inst.IsDefault, synced, defaults, time.Now().UTC(), inst.ID)
		if err != nil {
			return fmt.Errorf("store: update instance: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errs.ErrNotFound
		}
		return nil
	})
}

// Instance returns one instance by id; nil (not an error) when absent, so
// the routing engine can treat a dangling synced id as "skip".
func (db *DB) Instance(ctx context.Context, id int) (*models.DownstreamInstance, error) {
	row := db.q(ctx).QueryRowContext(ctx,
		`SELECT `+instanceColumns+` FROM instances WHERE id = ?`, id)
	inst, err := scanInstanceFields(row)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, nil
	}
	return inst, err
}

// DefaultInstance returns the default instance for targetType; nil when
// none is configured.
func (db *DB) DefaultInstance(ctx context.Context, targetType models.TargetType) (*models.DownstreamInstance, error) {
	row := db.q(ctx).QueryRowContext(ctx,
		`SELECT `+instanceColumns+` FROM instances WHERE target_type = ? AND is_default LIMIT 1`,
		string(targetType))
	inst, err := scanInstanceFields(row)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, nil
	}
	return inst, err
}

// ListInstances returns every instance of one target type ordered by id.
func (db *DB) ListInstances(ctx context.Context, targetType models.TargetType) ([]models.DownstreamInstance, error) {
	rows, err := db.q(ctx).QueryContext(ctx,
		`SELECT `+instanceColumns+` FROM instances WHERE target_type = ? ORDER BY id`,
		string(targetType))
	if err != nil {
		return nil, fmt.Errorf("store: list instances: %w", err)
	}
	defer rows.Close()

	var out []models.DownstreamInstance
	for rows.Next() {
		inst, err := scanInstanceFields(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inst)
	}
	return out, rows.Err()
}

// DeleteInstance removes one instance.
func (db *DB) DeleteInstance(ctx context.Context, id int) error {
	res, err := db.q(ctx).ExecContext(ctx, `DELETE FROM instances WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete instance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func scanInstanceFields(s rowScanner) (*models.DownstreamInstance, error) {
	var inst models.DownstreamInstance
	var targetType string
	var synced, defaults sql.NullString

	err := s.Scan(&inst.ID, &inst.Name, &targetType, &inst.BaseURL, &inst.APIKey,
		&inst.IsDefault, &synced, &defaults)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("store: scan instance: %w", err)
	}
	inst.TargetType = models.TargetType(targetType)
	if err := unmarshalJSON(synced, &inst.SyncedInstances); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(defaults, &inst.Defaults); err != nil {
		return nil, err
	}
	return &inst, nil
}
