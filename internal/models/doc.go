// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package models provides the data model shared by every core component:
// users, watchlist items, router rules, downstream instances, approval
// requests, quota records, scheduled jobs, label tracking, and
// notification records. All entities carry integer identities and
// monotonic CreatedAt/UpdatedAt timestamps except where noted.
package models
