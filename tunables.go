package dmc

import (
	"context"
	"time"

	"github.com/xraph/dmc/config"
	"github.com/xraph/dmc/journal"
	"github.com/xraph/dmc/types"
)

// params is the resolved set of tunables seen by one call.
type params struct {
	claimInterval     time.Duration
	challengeInterval time.Duration
	benchmarkRate     uint64
	liquidationRate   uint64
	penaltyRate       uint64
	stakeRatio        types.Fixed
	challengeLockRate uint64
	challengePayRate  uint64
	providerClaimRate uint64
	minMinerRate      uint64
	redeemLock        time.Duration
}

// config returns the value of k as seen by this call: a pending write,
// then the read cache, then the store, then the built-in default.
func (t *txn) config(k config.Key) (uint64, error) {
	if s, ok := t.configs.slots[string(k)]; ok && !s.deleted {
		return s.v.Value, nil
	}
	if v, ok := t.m.tunables.Get(k); ok {
		return v.(uint64), nil
	}

	e, err := t.m.store.GetConfig(t.ctx, k)
	switch {
	case err == nil:
		t.m.tunables.Add(k, e.Value)
		return e.Value, nil
	case IsNotFound(err):
		def, ok := config.Default(k)
		if !ok {
			return 0, ErrUnknownConfigKey
		}
		return def, nil
	default:
		return 0, err
	}
}

// params resolves every tunable once per call.
func (t *txn) tunables() (*params, error) {
	if t.params != nil {
		return t.params, nil
	}

	vals := make(map[config.Key]uint64, len(config.Keys()))
	for _, k := range config.Keys() {
		v, err := t.config(k)
		if err != nil {
			return nil, err
		}
		vals[k] = v
	}

	t.params = &params{
		claimInterval:     time.Duration(vals[config.KeyClaimInterval]) * time.Second,
		challengeInterval: time.Duration(vals[config.KeyChallengeInterval]) * time.Second,
		benchmarkRate:     vals[config.KeyBenchmarkRate],
		liquidationRate:   vals[config.KeyLiquidationRate],
		penaltyRate:       vals[config.KeyPenaltyRate],
		stakeRatio:        types.Fixed(vals[config.KeyStakeRatio]),
		challengeLockRate: vals[config.KeyChallengeLockRate],
		challengePayRate:  vals[config.KeyChallengePayRate],
		providerClaimRate: vals[config.KeyProviderClaimRate],
		minMinerRate:      vals[config.KeyMinMinerRate],
		redeemLock:        time.Duration(vals[config.KeyRedeemLock]) * time.Second,
	}
	return t.params, nil
}

// SetConfig changes a tunable. Only the system account may call it.
// Changing stake_ratio re-prices every pool with minted PST in the same
// call, so liquidation sees the new rates.
func (m *Market) SetConfig(ctx context.Context, key config.Key, value uint64) error {
	return m.exec(ctx, "set_config", func(t *txn) error {
		if err := t.requireSystem(); err != nil {
			return err
		}
		if _, ok := config.Default(key); !ok {
			return ErrUnknownConfigKey
		}
		if msg := config.Validate(key, value); msg != "" {
			return ValidationError{Field: string(key), Message: msg}
		}

		e, err := fetch(&t.configs, string(key), ErrConfigNotFound, func() (*config.Entry, error) {
			return t.m.store.GetConfig(t.ctx, key)
		})
		if IsNotFound(err) {
			e = &config.Entry{Entity: types.NewEntity(t.now), Key: key}
		} else if err != nil {
			return err
		}

		e.Value = value
		e.Touch(t.now)
		t.configs.set(string(key), e)
		t.params = nil

		amounts := map[string]int64{"value": int64(value)}
		if key == config.KeyStakeRatio {
			n, err := t.rerate(types.Fixed(value))
			if err != nil {
				return err
			}
			amounts["rerated"] = int64(n)
		}

		return t.record(journal.KindConfigSet, string(key), t.principal, amounts, nil)
	})
}

// Config returns the effective value of a tunable.
func (m *Market) Config(ctx context.Context, key config.Key) (uint64, error) {
	var v uint64
	err := m.view(ctx, func(t *txn) error {
		var err error
		v, err = t.config(key)
		return err
	})
	return v, err
}
