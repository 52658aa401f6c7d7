// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Plex.PrimaryToken = "test-token"
	return cfg
}

func TestDefaultConfigIsInvalidWithoutToken(t *testing.T) {
	cfg := defaultConfig()
	err := cfg.Validate()
	require.ErrorIs(t, err, ErrMissingPrimaryToken)
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsOutOfRangeConcurrency(t *testing.T) {
	cfg := validConfig()
	cfg.Label.Concurrency = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConcurrency)

	cfg.Label.Concurrency = 21
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConcurrency)
}

func TestValidateRejectsUnknownMonthlyResetPolicy(t *testing.T) {
	cfg := validConfig()
	cfg.Quota.MonthlyResetPolicy = "whenever"
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidResetPolicy)
}

func TestValidateRejectsSpecialLabelWithoutName(t *testing.T) {
	cfg := validConfig()
	cfg.Label.RemovedUserPolicy = "special-label"
	cfg.Label.SpecialLabel = ""
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidRemovedUserPolicy)
}

func TestLoadWithKoanfAppliesEnvOverrides(t *testing.T) {
	t.Setenv("PLEX_PRIMARY_TOKEN", "env-token")
	t.Setenv("LABEL_CONCURRENCY", "8")
	t.Setenv("QUOTA_MONTHLY_RESET_POLICY", "skip-month")

	cfg, err := LoadWithKoanf()
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.Plex.PrimaryToken)
	assert.Equal(t, 8, cfg.Label.Concurrency)
	assert.Equal(t, "skip-month", cfg.Quota.MonthlyResetPolicy)
}

func TestLoadWithKoanfFailsValidationWithoutToken(t *testing.T) {
	os.Unsetenv("PLEX_PRIMARY_TOKEN")
	_, err := LoadWithKoanf()
	require.Error(t, err)
}

// fakeTxRunner runs fn directly without a real transaction.
type fakeTxRunner struct {
	failCommit bool
}

func (f *fakeTxRunner) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := fn(ctx); err != nil {
		return err
	}
	if f.failCommit {
		return errors.New("simulated commit failure")
	}
	return nil
}

type fakePersister struct {
	saved   *Config
	failErr error
}

func (f *fakePersister) SaveConfig(ctx context.Context, cfg *Config) error {
	if f.failErr != nil {
		return f.failErr
	}
	cp := *cfg
	f.saved = &cp
	return nil
}

func TestConfigManagerUpdateSwapsAfterCommit(t *testing.T) {
	cfg := validConfig()
	tx := &fakeTxRunner{}
	persister := &fakePersister{}

	mgr, err := NewConfigManager(cfg, tx, persister)
	require.NoError(t, err)

	err = mgr.Update(context.Background(), func(c *Config) error {
		c.Label.Concurrency = 12
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 12, mgr.Current().Label.Concurrency)
	require.NotNil(t, persister.saved)
	assert.Equal(t, 12, persister.saved.Label.Concurrency)
}

func TestConfigManagerUpdateDoesNotSwapOnPersistFailure(t *testing.T) {
	cfg := validConfig()
	tx := &fakeTxRunner{}
	persister := &fakePersister{failErr: errors.New("disk full")}

	mgr, err := NewConfigManager(cfg, tx, persister)
	require.NoError(t, err)

	err = mgr.Update(context.Background(), func(c *Config) error {
		c.Label.Concurrency = 15
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, cfg.Label.Concurrency, mgr.Current().Label.Concurrency)
}

func TestConfigManagerUpdateRejectsInvalidMutation(t *testing.T) {
	cfg := validConfig()
	mgr, err := NewConfigManager(cfg, &fakeTxRunner{}, &fakePersister{})
	require.NoError(t, err)

	err = mgr.Update(context.Background(), func(c *Config) error {
		c.Label.Concurrency = -1
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, cfg.Label.Concurrency, mgr.Current().Label.Concurrency)
}

func TestConfigManagerUpdatePropagatesMutationError(t *testing.T) {
	cfg := validConfig()
	mgr, err := NewConfigManager(cfg, &fakeTxRunner{}, &fakePersister{})
	require.NoError(t, err)

	sentinel := errors.New("rule validation failed")
	err = mgr.Update(context.Background(), func(c *Config) error {
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
}

func TestNewConfigManagerRequiresDependencies(t *testing.T) {
	cfg := validConfig()
	tx := &fakeTxRunner{}
	persister := &fakePersister{}

	_, err := NewConfigManager(nil, tx, persister)
	assert.ErrorIs(t, err, ErrNilInitialConfig)

	_, err = NewConfigManager(cfg, nil, persister)
	assert.ErrorIs(t, err, ErrNilTxRunner)

	_, err = NewConfigManager(cfg, tx, nil)
	assert.ErrorIs(t, err, ErrNilPersister)
}
