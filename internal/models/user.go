// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package models

import "time"

// SystemUserID is the reserved id of the "System" user. It is created
// implicitly, never deleted, and never carries is_primary_token.
const SystemUserID = 0

// NotifyFlags controls which channels a user receives notifications on.
type NotifyFlags struct {
	Email bool `json:"email" db:"notify_email"`
	Chat  bool `json:"chat" db:"notify_chat"`
	Push  bool `json:"push" db:"notify_push"`
}

// User represents a Plex account known to the system: either the
// token-owner (is_primary_token = true) or a friend discovered via the
// watchlist ingester.
type User struct {
	ID               int         `json:"id" db:"id"`
	Name             string      `json:"name" db:"name" validate:"required"`
	PlexUUID         *string     `json:"plex_uuid,omitempty" db:"plex_uuid"`
	Alias            *string     `json:"alias,omitempty" db:"alias"`
	Email            *string     `json:"email,omitempty" db:"email"`
	ChatID           *string     `json:"chat_id,omitempty" db:"chat_id"`
	NotifyFlags      NotifyFlags `json:"notify_flags" db:"-"`
	CanSync          bool        `json:"can_sync" db:"can_sync"`
	IsPrimaryToken   bool        `json:"is_primary_token" db:"is_primary_token"`
	RequiresApproval bool        `json:"requires_approval" db:"requires_approval"`
	CreatedAt        time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at" db:"updated_at"`
}

// IsSystem reports whether u is the reserved System user.
func (u *User) IsSystem() bool {
	return u.ID == SystemUserID
}
