// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package models

import (
	"strings"
	"time"
)

// ContentType distinguishes the two acquisition families the routing
// engine fans content out to.
type ContentType string

const (
	ContentTypeMovie ContentType = "movie"
	ContentTypeShow  ContentType = "show"
)

// WatchlistStatus is a point on the lifecycle DAG
// pending -> requested -> grabbed -> notified. Regressions are forbidden
// except through an explicit reset operation.
type WatchlistStatus string

const (
	StatusPending   WatchlistStatus = "pending"
	StatusRequested WatchlistStatus = "requested"
	StatusGrabbed   WatchlistStatus = "grabbed"
	StatusNotified  WatchlistStatus = "notified"
)

// statusRank gives each status its position on the DAG so callers can
// compare two statuses without hardcoding the order elsewhere.
var statusRank = map[WatchlistStatus]int{
	StatusPending:   0,
	StatusRequested: 1,
	StatusGrabbed:   2,
	StatusNotified:  3,
}

// IsForwardTransition reports whether moving from s to next is a legal
// forward (or no-op) step on the status DAG.
func (s WatchlistStatus) IsForwardTransition(next WatchlistStatus) bool {
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	return to >= from
}

// SeriesStatus mirrors the downstream Sonarr-like manager's notion of
// whether a show is still airing.
type SeriesStatus string

const (
	SeriesStatusContinuing SeriesStatus = "continuing"
	SeriesStatusEnded      SeriesStatus = "ended"
)

// MovieStatus mirrors the downstream Radarr-like manager's availability.
type MovieStatus string

const (
	MovieStatusAvailable   MovieStatus = "available"
	MovieStatusUnavailable MovieStatus = "unavailable"
)

// NormalizeGUID lowercases a "source:value" identifier so that equality
// comparisons and set intersections are case-insensitive by construction.
// An empty input returns an empty string so callers can filter blanks.
func NormalizeGUID(guid string) string {
	return strings.ToLower(strings.TrimSpace(guid))
}

// NormalizeGUIDs normalizes and deduplicates a slice of GUIDs, dropping
// blanks, preserving first-seen order.
func NormalizeGUIDs(guids []string) []string {
	seen := make(map[string]struct{}, len(guids))
	out := make([]string, 0, len(guids))
	for _, g := range guids {
		n := NormalizeGUID(g)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// GUIDsIntersect reports whether a and b share at least one normalized
// GUID. Both slices are expected to already be normalized.
func GUIDsIntersect(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, g := range a {
		set[g] = struct{}{}
	}
	for _, g := range b {
		if _, ok := set[g]; ok {
			return true
		}
	}
	return false
}

// StatusHistoryEntry records a backfilled status observation that did not
// cause a status change, e.g. a "no downgrade from notified" event where
// downstream reports "grabbed" but the current status stays "notified".
type StatusHistoryEntry struct {
	WatchlistItemID int             `json:"watchlist_item_id" db:"watchlist_item_id"`
	Status          WatchlistStatus `json:"status" db:"status"`
	ObservedAt      time.Time       `json:"observed_at" db:"observed_at"`
}

// WatchlistItem is a single user's desire to acquire one piece of content.
type WatchlistItem struct {
	ID                int             `json:"id" db:"id"`
	UserID            int             `json:"user_id" db:"user_id"`
	Key               string          `json:"key" db:"key"`
	Title             string          `json:"title" db:"title"`
	Type              ContentType     `json:"type" db:"type"`
	Thumb             *string         `json:"thumb,omitempty" db:"thumb"`
	Added             *time.Time      `json:"added,omitempty" db:"added"`
	GUIDs             []string        `json:"guids" db:"-"`
	Genres            []string        `json:"genres" db:"-"`
	Status            WatchlistStatus `json:"status" db:"status"`
	SeriesStatus      *SeriesStatus   `json:"series_status,omitempty" db:"series_status"`
	MovieStatus       *MovieStatus    `json:"movie_status,omitempty" db:"movie_status"`
	SonarrInstanceID  *int            `json:"sonarr_instance_id,omitempty" db:"sonarr_instance_id"`
	RadarrInstanceID  *int            `json:"radarr_instance_id,omitempty" db:"radarr_instance_id"`
	LastNotifiedAt    *time.Time      `json:"last_notified_at,omitempty" db:"last_notified_at"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
}

// CanTransitionTo reports whether applying newStatus to item is legal
// under the status DAG invariant.
func (w *WatchlistItem) CanTransitionTo(newStatus WatchlistStatus) bool {
	return w.Status.IsForwardTransition(newStatus)
}
