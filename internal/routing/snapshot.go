// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package routing

import "github.com/jamcalli/Pulsarr-sub009/internal/models"

// Snapshot flattens a RouteOutcome into the persistable RouterDecision
// form an approval request stores. Synced instances are captured by id
// only; their defaults are re-read at submission time.
func Snapshot(outcome RouteOutcome, matchedRuleID *int) models.RouterDecision {
	syncedIDs := make([]int, 0, len(outcome.Synced))
	for _, s := range outcome.Synced {
		syncedIDs = append(syncedIDs, s.InstanceID)
	}
	p := outcome.Primary
	return models.RouterDecision{
		TargetType:          p.InstanceType,
		PrimaryInstanceID:   p.InstanceID,
		SyncedInstanceIDs:   syncedIDs,
		RootFolder:          p.RootFolder,
		QualityProfile:      p.QualityProfile,
		Tags:                p.Tags,
		SearchOnAdd:         p.SearchOnAdd,
		SeasonMonitoring:    p.SeasonMonitoring,
		Monitor:             p.Monitor,
		SeriesType:          p.SeriesType,
		MinimumAvailability: p.MinimumAvailability,
		Priority:            p.Priority,
		MatchedRuleID:       matchedRuleID,
	}
}
