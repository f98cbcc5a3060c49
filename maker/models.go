// Package maker defines a provider's collateral pool and the limited
// partners that back it.
package maker

import (
	"math"
	"math/big"

	"github.com/xraph/dmc/types"
)

// RateCap is the rate reported for a pool that has minted nothing. It is
// the largest value that still fits a signed 64-bit index column.
const RateCap = types.Fixed(math.MaxInt64)

// MaxRate is the highest rate a pool with minted PST reports, so every
// such pool lists below RateCap.
const MaxRate = RateCap - 1

// Maker is the collateral pool backing one provider's minted capacity.
type Maker struct {
	types.Entity
	Provider string `json:"provider"`

	// TotalStaked is the pool's collateral in DMC base units.
	TotalStaked int64 `json:"total_staked"`
	// TotalWeight is the sum of every partner's weight.
	TotalWeight int64 `json:"total_weight"`
	// MinerRate is the minimum share of TotalWeight the provider must keep.
	MinerRate types.Fixed `json:"miner_rate"`
	// CurrentRate is collateral value over minted value, 1.0 = 100%.
	CurrentRate types.Fixed `json:"current_rate"`
	// Minted is the PST issued against this pool and not yet burned.
	Minted int64 `json:"minted"`
}

// Partner is one backer's proportional claim on a pool.
type Partner struct {
	types.Entity
	Provider string `json:"provider"`
	Partner  string `json:"partner"`
	Weight   int64  `json:"weight"`
}

// PartnerKey returns the storage key of a partner row.
func PartnerKey(provider, partner string) string {
	return provider + "/" + partner
}

// Rate computes staked / (minted × stakeRatio × dmcUnit), where stakeRatio
// is the DMC value of one PST. A pool that minted nothing reports RateCap;
// any other result saturates at MaxRate.
func Rate(staked, minted int64, stakeRatio types.Fixed, dmcUnit int64) types.Fixed {
	if minted <= 0 {
		return RateCap
	}
	if stakeRatio == 0 {
		return MaxRate
	}
	if staked <= 0 {
		return 0
	}

	// staked × 2^64 / (minted × stakeRatio × unit)
	num := new(big.Int).Lsh(big.NewInt(staked), 2*types.FracBits)
	den := new(big.Int).Mul(big.NewInt(minted), stakeRatio.Big())
	den.Mul(den, big.NewInt(dmcUnit))
	num.Quo(num, den)
	if num.Cmp(MaxRate.Big()) > 0 {
		return MaxRate
	}
	return types.Fixed(num.Uint64())
}

// Recompute refreshes CurrentRate from the pool's balances.
func (m *Maker) Recompute(stakeRatio types.Fixed, dmcUnit int64) {
	m.CurrentRate = Rate(m.TotalStaked, m.Minted, stakeRatio, dmcUnit)
}

// ShareAtLeast reports whether weight is at least rate × TotalWeight.
func (m *Maker) ShareAtLeast(weight int64, rate types.Fixed) bool {
	if m.TotalWeight <= 0 {
		return true
	}
	lhs := new(big.Int).Lsh(big.NewInt(weight), types.FracBits)
	rhs := new(big.Int).Mul(rate.Big(), big.NewInt(m.TotalWeight))
	return lhs.Cmp(rhs) >= 0
}

// IsDust reports whether adding weight would give a share below 0.01%
// of the pool.
func (m *Maker) IsDust(weight int64) bool {
	lhs := new(big.Int).Mul(big.NewInt(weight), big.NewInt(10000))
	rhs := new(big.Int).Add(big.NewInt(m.TotalWeight), big.NewInt(weight))
	return lhs.Cmp(rhs) < 0
}

// WeightFor converts a DMC amount into pool weight at the current share
// price. An empty pool prices one weight unit at one base unit.
func (m *Maker) WeightFor(amount int64) (int64, error) {
	if m.TotalStaked <= 0 || m.TotalWeight <= 0 {
		return amount, nil
	}
	return types.MulDiv(amount, m.TotalWeight, m.TotalStaked)
}

// ValueOf converts pool weight into its DMC amount, rounding down.
func (m *Maker) ValueOf(weight int64) (int64, error) {
	if m.TotalWeight <= 0 {
		return 0, nil
	}
	return types.MulDiv(weight, m.TotalStaked, m.TotalWeight)
}

// MintCap returns how much PST may still be minted while keeping the rate
// at or above benchmark percent.
func (m *Maker) MintCap(benchmark uint64, stakeRatio types.Fixed, dmcUnit int64) int64 {
	if benchmark == 0 || stakeRatio == 0 {
		return 0
	}
	// staked × 100 × 2^32 / (benchmark × stakeRatio × unit)
	num := new(big.Int).Mul(big.NewInt(m.TotalStaked), big.NewInt(100))
	num.Lsh(num, types.FracBits)
	den := new(big.Int).Mul(new(big.Int).SetUint64(benchmark), stakeRatio.Big())
	den.Mul(den, big.NewInt(dmcUnit))
	num.Quo(num, den)
	num.Sub(num, big.NewInt(m.Minted))
	if num.Sign() <= 0 {
		return 0
	}
	if !num.IsInt64() {
		return math.MaxInt64
	}
	return num.Int64()
}
