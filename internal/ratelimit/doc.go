// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ratelimit implements the shared rate-limited external client:
// a process-wide governor that gates every
// outbound call by endpoint family with a jittered minimum spacing, a
// concurrent-call ceiling, and a cooldown register fed by observed 429
// Retry-After headers. Retries apply full-jitter exponential backoff and
// only fire for transient error classes (network errors, timeouts, 408,
// 429, 5xx); any other 4xx fails fast.
package ratelimit
