// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package evaluators provides the concrete routing.Evaluator
// implementations for the stock criteria fields: genre, language,
// certification, release year, user, season count, rating, and
// streaming provider availability. Each one is independently
// registerable and independently testable, one evaluator per file.
package evaluators
