// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package models

import "time"

// RollingMonitoring is the pair of deferred monitoring policies a rule may
// carry for shows. They are translated at submission time into the closest
// concrete Sonarr monitoring value, and a RollingShow record is created so
// the reconciler can expand the monitored range as viewing progresses.
const (
	MonitorPilotRolling       = "pilotRolling"
	MonitorFirstSeasonRolling = "firstSeasonRolling"
	MonitorPilot              = "pilot"
	MonitorFirstSeason        = "firstSeason"
)

// ConcreteMonitoring maps a rolling monitoring value to the concrete value
// submitted downstream. Non-rolling values pass through unchanged, with
// rolling=false so callers know no tracking record is needed.
func ConcreteMonitoring(monitoring string) (concrete string, rolling bool) {
	switch monitoring {
	case MonitorPilotRolling:
		return MonitorPilot, true
	case MonitorFirstSeasonRolling:
		return MonitorFirstSeason, true
	default:
		return monitoring, false
	}
}

// RollingShow tracks a show submitted with rolling monitoring: which
// season is currently monitored, what the starting configuration was (for
// inactivity reset), and when viewing progress was last observed.
type RollingShow struct {
	ID                 int        `json:"id" db:"id"`
	WatchlistItemID    int        `json:"watchlist_item_id" db:"watchlist_item_id"`
	SonarrInstanceID   int        `json:"sonarr_instance_id" db:"sonarr_instance_id"`
	MonitoredSeason    int        `json:"monitored_season" db:"monitored_season"`
	StartingMonitoring string     `json:"starting_monitoring" db:"starting_monitoring"`
	LastProgressAt     *time.Time `json:"last_progress_at,omitempty" db:"last_progress_at"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}
