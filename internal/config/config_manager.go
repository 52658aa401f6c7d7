// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

// This file implements ConfigManager, which holds the live Config behind an
// atomic pointer and applies mutations transactionally: a caller-supplied
// mutation function edits a copy, the copy is validated and persisted inside
// a single transaction via TxRunner, and only on commit does the in-memory
// pointer swap to the new value. Readers never observe a partially-applied
// mutation.
package config

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
)

// TxRunner abstracts the persistence facade's transaction boundary so this
// package does not import internal/store directly. The concrete
// implementation is internal/store's DuckDB-backed facade; tests can supply
// a fake that just invokes fn directly.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Persister saves a validated Config inside the active transaction. The
// concrete implementation writes to the config table; it is invoked from
// inside TxRunner.WithTx so a write failure rolls back the whole mutation.
type Persister interface {
	SaveConfig(ctx context.Context, cfg *Config) error
}

var (
	// ErrNilTxRunner is returned by NewConfigManager when constructed
	// without a transaction runner.
	ErrNilTxRunner = errors.New("config: tx runner is required")

	// ErrNilPersister is returned by NewConfigManager when constructed
	// without a persister.
	ErrNilPersister = errors.New("config: persister is required")

	// ErrNilInitialConfig is returned by NewConfigManager when given a nil
	// initial config.
	ErrNilInitialConfig = errors.New("config: initial config is required")
)

// ConfigManager owns the single live Config value for the process. Reads
// are lock-free via atomic.Pointer; mutations go through Update, which
// persists before swapping so the in-memory copy is never ahead of disk.
type ConfigManager struct {
	current   atomic.Pointer[Config]
	txRunner  TxRunner
	persister Persister
}

// NewConfigManager constructs a ConfigManager seeded with initial (normally
// the result of LoadWithKoanf).
func NewConfigManager(initial *Config, txRunner TxRunner, persister Persister) (*ConfigManager, error) {
	if initial == nil {
		return nil, ErrNilInitialConfig
	}
	if txRunner == nil {
		return nil, ErrNilTxRunner
	}
	if persister == nil {
		return nil, ErrNilPersister
	}

	m := &ConfigManager{txRunner: txRunner, persister: persister}
	m.current.Store(initial)
	return m, nil
}

// Current returns the live Config. The returned pointer is immutable by
// convention: callers must go through Update to change it.
func (m *ConfigManager) Current() *Config {
	return m.current.Load()
}

// Update applies mutate to a copy of the current config, validates the
// result, persists it inside a transaction, and swaps the in-memory pointer
// only after the transaction commits successfully.
//
// mutate must not retain the *Config it receives beyond the call; Update
// passes a shallow copy, so slice/map fields shared with the live config
// must be replaced wholesale rather than mutated in place.
func (m *ConfigManager) Update(ctx context.Context, mutate func(*Config) error) error {
	next := *m.current.Load()
	if err := mutate(&next); err != nil {
		return fmt.Errorf("config: mutation rejected: %w", err)
	}
	if err := next.Validate(); err != nil {
		return fmt.Errorf("config: mutated config invalid: %w", err)
	}

	err := m.txRunner.WithTx(ctx, func(ctx context.Context) error {
		return m.persister.SaveConfig(ctx, &next)
	})
	if err != nil {
		return fmt.Errorf("config: failed to persist mutation: %w", err)
	}

	m.current.Store(&next)
	return nil
}

// Reload replaces the in-memory config with cfg without touching
// persistence, for callers that already loaded a fresh copy from disk
// (e.g. a file-watch triggered reload of the YAML layer).
func (m *ConfigManager) Reload(cfg *Config) error {
	if cfg == nil {
		return ErrNilInitialConfig
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: reloaded config invalid: %w", err)
	}
	m.current.Store(cfg)
	return nil
}
