// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package models

// LabelTracking records a label the system itself applied to a library
// item, so cleanup can safely remove only labels it owns. Unique per
// (WatchlistItemID, PlexRatingKey, LabelApplied).
type LabelTracking struct {
	WatchlistItemID int    `json:"watchlist_item_id" db:"watchlist_item_id"`
	PlexRatingKey   string `json:"plex_rating_key" db:"plex_rating_key"`
	LabelApplied    string `json:"label_applied" db:"label_applied"`
}
