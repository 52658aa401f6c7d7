// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store is the transactional persistence facade over an embedded
// DuckDB database. Every component writes through this package; nothing
// else in the process touches database/sql directly.
//
// The facade is a concrete *DB with per-entity method files (users,
// watchlist, rules, instances, approvals, quotas, jobs, labels,
// notifications, rolling). Consumers declare their own narrow interfaces
// over the subset of methods they use, so tests can substitute the
// in-memory fake in store/fake without importing DuckDB.
//
// Transactions propagate through context: WithTx opens a transaction,
// stores it in the context, and every facade method routes its queries
// through the active transaction when one is present. Nested WithTx
// calls join the outer transaction.
package store
