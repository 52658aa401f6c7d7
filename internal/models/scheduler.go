// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package models

import "time"

// JobType distinguishes the two trigger kinds a scheduled job supports.
type JobType string

const (
	JobTypeInterval JobType = "interval"
	JobTypeCron     JobType = "cron"
)

// RunStatus is the outcome of the most recent invocation of a job.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunPending   RunStatus = "pending"
)

// IntervalConfig configures an interval-triggered job. At least one unit
// must be positive.
type IntervalConfig struct {
	Days          int  `json:"days,omitempty"`
	Hours         int  `json:"hours,omitempty"`
	Minutes       int  `json:"minutes,omitempty"`
	Seconds       int  `json:"seconds,omitempty"`
	RunImmediately bool `json:"run_immediately,omitempty"`
}

// CronConfig configures a cron-triggered job with a 6-field expression
// (sec min hr dom mon dow).
type CronConfig struct {
	Expression string `json:"expression"`
}

// RunInfo is the last/next run bookkeeping tracked per job.
type RunInfo struct {
	Time      *time.Time `json:"time,omitempty"`
	Status    RunStatus  `json:"status,omitempty"`
	Error     *string    `json:"error,omitempty"`
	Estimated bool        `json:"estimated,omitempty"`
}

// ScheduledJob is a persisted job row driving the scheduler.
type ScheduledJob struct {
	ID        int             `json:"id" db:"id"`
	Name      string          `json:"name" db:"name" validate:"required"`
	Type      JobType         `json:"type" db:"type" validate:"required,oneof=interval cron"`
	Interval  *IntervalConfig `json:"interval,omitempty" db:"-"`
	Cron      *CronConfig     `json:"cron,omitempty" db:"-"`
	Enabled   bool            `json:"enabled" db:"enabled"`
	LastRun   RunInfo         `json:"last_run" db:"-"`
	NextRun   RunInfo         `json:"next_run" db:"-"`
}
