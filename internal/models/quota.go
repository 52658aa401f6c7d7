// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package models

import "time"

// QuotaType is the accounting window a quota record enforces.
type QuotaType string

const (
	QuotaDaily         QuotaType = "daily"
	QuotaWeeklyRolling QuotaType = "weekly_rolling"
	QuotaMonthly       QuotaType = "monthly"
)

// MonthlyResetPolicy governs what happens when a monthly quota's
// configured reset day exceeds the days in the current month.
type MonthlyResetPolicy string

const (
	ResetLastDay    MonthlyResetPolicy = "last-day"
	ResetSkipMonth  MonthlyResetPolicy = "skip-month"
	ResetNextMonth  MonthlyResetPolicy = "next-month"
)

// QuotaRecord configures the acquisition limit for one (user, content
// type) pair.
type QuotaRecord struct {
	UserID         int         `json:"user_id" db:"user_id"`
	ContentType    ContentType `json:"content_type" db:"content_type"`
	Type           QuotaType   `json:"type" db:"type"`
	Limit          int         `json:"limit" db:"limit_count"`
	BypassApproval bool        `json:"bypass_approval" db:"bypass_approval"`
}

// UsageEvent is an append-only record of one quota-counted acquisition.
type UsageEvent struct {
	ID          int         `json:"id" db:"id"`
	UserID      int         `json:"user_id" db:"user_id"`
	ContentType ContentType `json:"content_type" db:"content_type"`
	Timestamp   time.Time   `json:"ts" db:"ts"`
}
