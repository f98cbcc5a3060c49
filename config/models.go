// Package config defines the keyed tunables of the market and their
// defaults. Values are unsigned integers; fixed-point values are stored as
// their raw 32.32 bits.
package config

import (
	"time"

	"github.com/xraph/dmc/types"
)

// Key names a tunable.
type Key string

// Tunable keys.
const (
	KeyClaimInterval     Key = "claim_interval"
	KeyChallengeInterval Key = "challenge_interval"
	KeyBenchmarkRate     Key = "benchmark_rate"
	KeyLiquidationRate   Key = "liquidation_rate"
	KeyPenaltyRate       Key = "penalty_rate"
	KeyStakeRatio        Key = "stake_ratio"
	KeyChallengeLockRate Key = "challenge_lock_rate"
	KeyChallengePayRate  Key = "challenge_pay_rate"
	KeyProviderClaimRate Key = "provider_claim_rate"
	KeyMinMinerRate      Key = "min_miner_rate"
	KeyRedeemLock        Key = "redeem_lock"
)

// Entry is a stored tunable value.
type Entry struct {
	types.Entity
	Key   Key    `json:"key"`
	Value uint64 `json:"value"`
}

var defaults = map[Key]uint64{
	KeyClaimInterval:     uint64(7 * 24 * time.Hour / time.Second),
	KeyChallengeInterval: uint64(24 * time.Hour / time.Second),
	KeyBenchmarkRate:     200,
	KeyLiquidationRate:   150,
	KeyPenaltyRate:       10,
	KeyStakeRatio:        uint64(types.One),
	KeyChallengeLockRate: 10,
	KeyChallengePayRate:  1,
	KeyProviderClaimRate: 80,
	KeyMinMinerRate:      20,
	KeyRedeemLock:        0,
}

// Default returns the built-in default for k and whether k is known.
func Default(k Key) (uint64, bool) {
	v, ok := defaults[k]
	return v, ok
}

// Keys returns every known tunable key.
func Keys() []Key {
	return []Key{
		KeyClaimInterval,
		KeyChallengeInterval,
		KeyBenchmarkRate,
		KeyLiquidationRate,
		KeyPenaltyRate,
		KeyStakeRatio,
		KeyChallengeLockRate,
		KeyChallengePayRate,
		KeyProviderClaimRate,
		KeyMinMinerRate,
		KeyRedeemLock,
	}
}

// Validate checks that v is acceptable for k.
func Validate(k Key, v uint64) string {
	switch k {
	case KeyClaimInterval, KeyChallengeInterval:
		if v == 0 {
			return "interval must be positive"
		}
	case KeyBenchmarkRate, KeyLiquidationRate:
		if v == 0 {
			return "rate must be positive"
		}
	case KeyPenaltyRate, KeyChallengeLockRate, KeyChallengePayRate, KeyProviderClaimRate, KeyMinMinerRate:
		if v > 100 {
			return "percentage must not exceed 100"
		}
	case KeyStakeRatio:
		if v == 0 {
			return "stake ratio must be positive"
		}
	case KeyRedeemLock:
	default:
		return "unknown key"
	}
	return ""
}
