package extension

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/dmc"
	"github.com/xraph/dmc/config"
	"github.com/xraph/dmc/store/memory"
)

func TestMergeWithDefaults(t *testing.T) {
	cfg := mergeWithDefaults(Config{BatchLimit: 5})
	assert.Equal(t, "dmc.system", cfg.SystemAccount)
	assert.Equal(t, 5, cfg.BatchLimit)
	assert.Equal(t, 64, cfg.ConfigCacheSize)
}

func TestMergeConfigurations(t *testing.T) {
	yaml := Config{
		SystemAccount: "ops",
		Tunables:      map[string]uint64{"penalty_rate": 12},
	}
	prog := Config{
		DisableMigrate: true,
		SystemAccount:  "ignored",
		BadgerPath:     "/var/lib/dmc",
		BatchLimit:     50,
		Tunables:       map[string]uint64{"penalty_rate": 20, "benchmark_rate": 250},
	}

	cfg := mergeConfigurations(yaml, prog)
	assert.True(t, cfg.DisableMigrate)
	assert.Equal(t, "ops", cfg.SystemAccount)
	assert.Equal(t, "/var/lib/dmc", cfg.BadgerPath)
	assert.Equal(t, 50, cfg.BatchLimit)
	assert.Equal(t, 64, cfg.ConfigCacheSize)
	assert.Equal(t, map[string]uint64{"penalty_rate": 12, "benchmark_rate": 250}, cfg.Tunables)
}

func TestOptions(t *testing.T) {
	e := New(
		WithSystemAccount("ops"),
		WithBatchLimit(7),
		WithBadgerPath("/tmp/dmc"),
		WithTunable("penalty_rate", 12),
		WithTunable("redeem_lock", 3600),
		WithDisableMigrate(),
		WithRequireConfig(true),
	)
	assert.Equal(t, "ops", e.config.SystemAccount)
	assert.Equal(t, 7, e.config.BatchLimit)
	assert.Equal(t, "/tmp/dmc", e.config.BadgerPath)
	assert.Equal(t, map[string]uint64{"penalty_rate": 12, "redeem_lock": 3600}, e.config.Tunables)
	assert.True(t, e.config.DisableMigrate)
	assert.True(t, e.config.RequireConfig)
	assert.Nil(t, e.Engine())
}

func TestOpenStore(t *testing.T) {
	s, err := openStore(Config{})
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, s)

	s, err = openStore(Config{BadgerPath: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.Close())
}

func TestSeedTunables(t *testing.T) {
	ctx := context.Background()
	m := dmc.New(memory.New(), dmc.WithSystemAccount("ops"))
	require.NoError(t, m.Start(ctx))
	t.Cleanup(func() { _ = m.Stop() })

	changed, err := seedTunables(ctx, m, map[string]uint64{
		"penalty_rate":   12,
		"benchmark_rate": 200, // already the default
		"redeem_lock":    3600,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"penalty_rate", "redeem_lock"}, changed)

	v, err := m.Config(ctx, config.KeyPenaltyRate)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), v)

	changed, err = seedTunables(ctx, m, map[string]uint64{"penalty_rate": 12})
	require.NoError(t, err)
	assert.Empty(t, changed)

	_, err = seedTunables(ctx, m, map[string]uint64{"no_such_key": 1})
	assert.ErrorIs(t, err, dmc.ErrUnknownConfigKey)

	_, err = seedTunables(ctx, m, map[string]uint64{"penalty_rate": 101})
	assert.True(t, dmc.IsValidation(err), "got %v", err)
}
