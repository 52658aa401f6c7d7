// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package models

import "time"

// NotificationType is what kind of event a notification record reports.
type NotificationType string

const (
	NotifyMovie        NotificationType = "movie"
	NotifyEpisode      NotificationType = "episode"
	NotifySeason       NotificationType = "season"
	NotifyWatchlistAdd NotificationType = "watchlist_add"
)

// SentTo tracks which channels a notification was successfully delivered
// to.
type SentTo struct {
	Chat    bool `json:"chat"`
	Email   bool `json:"email"`
	Webhook bool `json:"webhook"`
	Push    bool `json:"push"`
}

// NotificationKey is the de-dup identity for a notification. Season and
// Episode are pointers: a missing value normalizes to an explicit nil,
// distinct from the literal value 0.
type NotificationKey struct {
	UserID  int
	Type    NotificationType
	Title   string
	Season  *int
	Episode *int
}

// NotificationRecord is a persisted dispatch attempt.
type NotificationRecord struct {
	ID                int              `json:"id" db:"id"`
	WatchlistItemID   *int             `json:"watchlist_item_id,omitempty" db:"watchlist_item_id"`
	UserID            *int             `json:"user_id,omitempty" db:"user_id"`
	Type              NotificationType `json:"type" db:"type"`
	Title             string           `json:"title" db:"title"`
	Season            *int             `json:"season,omitempty" db:"season"`
	Episode           *int             `json:"episode,omitempty" db:"episode"`
	SentTo            SentTo           `json:"sent_to" db:"-"`
	NotificationStatus string          `json:"notification_status" db:"notification_status"`
	CreatedAt         time.Time        `json:"created_at" db:"created_at"`
}

// Key derives the de-dup key for r.
func (r *NotificationRecord) Key() NotificationKey {
	userID := 0
	if r.UserID != nil {
		userID = *r.UserID
	}
	return NotificationKey{
		UserID:  userID,
		Type:    r.Type,
		Title:   r.Title,
		Season:  r.Season,
		Episode: r.Episode,
	}
}
