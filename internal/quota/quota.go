// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package quota evaluates per-user acquisition quotas over daily,
// weekly-rolling, and monthly windows, including the month-end reset
// policies for months shorter than the configured reset day.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jamcalli/Pulsarr-sub009/internal/errs"
	"github.com/jamcalli/Pulsarr-sub009/internal/models"
)

// Store is the persistence the checker needs: the configured quota record
// and the usage count within a window.
type Store interface {
	GetQuota(ctx context.Context, userID int, contentType models.ContentType) (*models.QuotaRecord, error)
	UsageSince(ctx context.Context, userID int, contentType models.ContentType, since time.Time) (int, error)
	RecordUsage(ctx context.Context, userID int, contentType models.ContentType, ts time.Time) error
}

// Config carries the window parameters shared by every quota record.
type Config struct {
	WeeklyWindowDays   int
	MonthlyResetDay    int
	MonthlyResetPolicy models.MonthlyResetPolicy
}

// Status is the outcome of one quota check.
type Status struct {
	// Limited is false when the user has no quota configured; every
	// other field is meaningful only when Limited is true.
	Limited        bool
	Exceeded       bool
	Usage          int
	Limit          int
	Type           models.QuotaType
	BypassApproval bool
}

// Reason renders the operator-facing explanation for an exceeded quota,
// e.g. "monthly quota exceeded (3/3)".
func (s Status) Reason() string {
	return fmt.Sprintf("%s quota exceeded (%d/%d)", windowName(s.Type), s.Usage, s.Limit)
}

func windowName(t models.QuotaType) string {
	switch t {
	case models.QuotaWeeklyRolling:
		return "weekly"
	default:
		return string(t)
	}
}

// Checker evaluates quotas against the store.
type Checker struct {
	store Store
	cfg   Config

	// now is overridable for boundary tests.
	now func() time.Time
}

// NewChecker constructs a Checker. Zero-value config fields fall back to
// a 7-day weekly window and reset day 1.
func NewChecker(store Store, cfg Config) *Checker {
	if cfg.WeeklyWindowDays <= 0 {
		cfg.WeeklyWindowDays = 7
	}
	if cfg.MonthlyResetDay <= 0 {
		cfg.MonthlyResetDay = 1
	}
	if cfg.MonthlyResetPolicy == "" {
		cfg.MonthlyResetPolicy = models.ResetLastDay
	}
	return &Checker{store: store, cfg: cfg, now: time.Now}
}

// SetNowFunc overrides the clock, for tests.
func (c *Checker) SetNowFunc(now func() time.Time) { c.now = now }

// Check evaluates the (user, content type) quota. A quota is exceeded
// when usage within the window has reached the limit.
func (c *Checker) Check(ctx context.Context, userID int, contentType models.ContentType) (Status, error) {
	rec, err := c.store.GetQuota(ctx, userID, contentType)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return Status{}, nil
		}
		return Status{}, err
	}

	since := c.WindowStart(rec.Type)
	usage, err := c.store.UsageSince(ctx, userID, contentType, since)
	if err != nil {
		return Status{}, err
	}

	return Status{
		Limited:        true,
		Exceeded:       usage >= rec.Limit,
		Usage:          usage,
		Limit:          rec.Limit,
		Type:           rec.Type,
		BypassApproval: rec.BypassApproval,
	}, nil
}

// RecordUsage appends one usage event stamped now.
func (c *Checker) RecordUsage(ctx context.Context, userID int, contentType models.ContentType) error {
	return c.store.RecordUsage(ctx, userID, contentType, c.now())
}

// WindowStart computes the start of the accounting window for one quota
// type as of the checker's clock.
func (c *Checker) WindowStart(t models.QuotaType) time.Time {
	now := c.now()
	switch t {
	case models.QuotaDaily:
		return now.Add(-24 * time.Hour)
	case models.QuotaWeeklyRolling:
		return now.AddDate(0, 0, -c.cfg.WeeklyWindowDays)
	case models.QuotaMonthly:
		return MonthlyResetTime(now, c.cfg.MonthlyResetDay, c.cfg.MonthlyResetPolicy)
	default:
		return now.Add(-24 * time.Hour)
	}
}

// MonthlyResetTime returns the most recent monthly reset instant at or
// before now, given the configured reset day and month-end policy.
//
// A month long enough to contain resetDay resets at midnight on that day.
// A shorter month resets per policy: on its last day (last-day), not at
// all (skip-month), or at midnight on the 1st of the following month
// (next-month).
func MonthlyResetTime(now time.Time, resetDay int, policy models.MonthlyResetPolicy) time.Time {
	// Scan back month by month for the latest reset instant <= now.
	// 14 months covers a full year of consecutive skip-months plus slack.
	for i := 0; i < 14; i++ {
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, -i, 0)
		reset, ok := resetInMonth(first, resetDay, policy)
		if ok && !reset.After(now) {
			return reset
		}
	}
	return now.AddDate(-1, 0, 0)
}

// resetInMonth computes the reset instant produced by the month starting
// at first (always day 1, midnight), or ok=false when the policy skips it.
func resetInMonth(first time.Time, resetDay int, policy models.MonthlyResetPolicy) (time.Time, bool) {
	dim := daysInMonth(first)
	if resetDay <= dim {
		return first.AddDate(0, 0, resetDay-1), true
	}
	switch policy {
	case models.ResetLastDay:
		return first.AddDate(0, 0, dim-1), true
	case models.ResetNextMonth:
		return first.AddDate(0, 1, 0), true
	default: // skip-month
		return time.Time{}, false
	}
}

func daysInMonth(first time.Time) int {
	return first.AddDate(0, 1, -1).Day()
}
