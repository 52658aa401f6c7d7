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

	"github.com/jamcalli/Pulsarr-sub009/internal/errs"
	"github.com/jamcalli/Pulsarr-sub009/internal/models"
)

const jobColumns = `id, name, type, config, enabled, last_run_time, last_run_status,
	last_run_error, next_run_time, next_run_estimated`

// jobConfig is the JSON shape of the scheduled_jobs.config column: exactly
// one of the two branches is set, matching the job's type.
type jobConfig struct {
	Interval *models.IntervalConfig `json:"interval,omitempty"`
	Cron     *models.CronConfig     `json:"cron,omitempty"`
}

// UpsertScheduledJob inserts job or, when a row with the same name exists,
// updates its type, config, and enabled flag in place, preserving run
// bookkeeping. The job's id is assigned/refreshed either way.
func (db *DB) UpsertScheduledJob(ctx context.Context, job *models.ScheduledJob) error {
	cfg, err := json.Marshal(jobConfig{Interval: job.Interval, Cron: job.Cron})
	if err != nil {
		return fmt.Errorf("store: marshal job config: %w", err)
	}
	return db.WithTx(ctx, func(ctx context.Context) error {
		existing, err := db.GetScheduledJobByName(ctx, job.Name)
		if err != nil && !errors.Is(err, errs.ErrNotFound) {
			return err
		}
		now := time.Now().UTC()
		if existing != nil {
			job.ID = existing.ID
			job.LastRun = existing.LastRun
			job.NextRun = existing.NextRun
			_, err := db.q(ctx).ExecContext(ctx, `
				UPDATE scheduled_jobs SET type = ?, config = ?, enabled = ?, updated_at = ?
				WHERE id = ?`,
				string(job.Type), string(cfg), job.Enabled, now, job.ID)
			if err != nil {
				return fmt.Errorf("store: update scheduled job: %w", err)
			}
			return nil
		}
		row := db.q(ctx).QueryRowContext(ctx, `
			INSERT INTO scheduled_jobs (name, type, config, enabled, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			RETURNING id`,
			job.Name, string(job.Type), string(cfg), job.Enabled, now, now)
		if err := row.Scan(&job.ID); err != nil {
			return fmt.Errorf("store: create scheduled job: %w", err)
		}
		return nil
	})
}

// GetScheduledJobByName returns one job by its unique name.
func (db *DB) GetScheduledJobByName(ctx context.Context, name string) (*models.ScheduledJob, error) {
	row := db.q(ctx).QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM scheduled_jobs WHERE name = ?`, name)
	return scanJob(row)
}

// ListScheduledJobs returns every job ordered by id.
func (db *DB) ListScheduledJobs(ctx context.Context) ([]models.ScheduledJob, error) {
	rows, err := db.q(ctx).QueryContext(ctx,
		`SELECT `+jobColumns+` FROM scheduled_jobs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: list scheduled jobs: %w", err)
	}
	defer rows.Close()

	var out []models.ScheduledJob
	for rows.Next() {
		job, err := scanJobFields(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *job)
	}
	return out, rows.Err()
}

// SetJobEnabled flips one job's enabled flag.
func (db *DB) SetJobEnabled(ctx context.Context, name string, enabled bool) error {
	res, err := db.q(ctx).ExecContext(ctx,
		`UPDATE scheduled_jobs SET enabled = ?, updated_at = ? WHERE name = ?`,
		enabled, time.Now().UTC(), name)
	if err != nil {
		return fmt.Errorf("store: set job enabled: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// SetJobRunState atomically writes one job's last-run outcome and next-run
// estimate in a single statement.
func (db *DB) SetJobRunState(ctx context.Context, name string, last, next models.RunInfo) error {
	var lastStatus any
	if last.Status != "" {
		lastStatus = string(last.Status)
	}
	res, err := db.q(ctx).ExecContext(ctx, `
		UPDATE scheduled_jobs SET last_run_time = ?, last_run_status = ?, last_run_error = ?,
			next_run_time = ?, next_run_estimated = ?, updated_at = ?
		WHERE name = ?`,
		nullTime(last.Time), lastStatus, nullStr(last.Error),
		nullTime(next.Time), next.Estimated, time.Now().UTC(), name)
	if err != nil {
		return fmt.Errorf("store: set job run state: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func scanJobFields(s rowScanner) (*models.ScheduledJob, error) {
	var job models.ScheduledJob
	var typ string
	var cfg, lastStatus, lastErr sql.NullString
	var lastTime, nextTime sql.NullTime

	err := s.Scan(&job.ID, &job.Name, &typ, &cfg, &job.Enabled,
		&lastTime, &lastStatus, &lastErr, &nextTime, &job.NextRun.Estimated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("store: scan scheduled job: %w", err)
	}

	job.Type = models.JobType(typ)
	if cfg.Valid && cfg.String != "" {
		var jc jobConfig
		if err := json.Unmarshal([]byte(cfg.String), &jc); err != nil {
			return nil, fmt.Errorf("store: unmarshal job config: %w", err)
		}
		job.Interval = jc.Interval
		job.Cron = jc.Cron
	}
	job.LastRun.Time = timePtr(lastTime)
	if lastStatus.Valid {
		job.LastRun.Status = models.RunStatus(lastStatus.String)
	}
	job.LastRun.Error = strPtr(lastErr)
	job.NextRun.Time = timePtr(nextTime)
	return &job, nil
}

func scanJob(row *sql.Row) (*models.ScheduledJob, error) { return scanJobFields(row) }
