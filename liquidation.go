package dmc

import (
	"context"
	"fmt"
	"math/big"

	"github.com/xraph/dmc/journal"
	"github.com/xraph/dmc/maker"
	"github.com/xraph/dmc/plugin"
	"github.com/xraph/dmc/types"
)

// liquidationPlan is the remediation computed for one maker before any
// maker is touched.
type liquidationPlan struct {
	provider   string
	retire     int64
	penalty    int64
	rateBefore types.Fixed
}

// Liquidate remediates up to limit of the lowest-rate makers below
// liquidation_rate. Each one retires just enough PST, and forfeits
// penalty_rate percent of the retired value, to return to the threshold.
// All plans are computed first and applied afterwards; a maker that fails
// to apply is skipped. Any identity may call it.
func (m *Market) Liquidate(ctx context.Context, limit int) (*BatchResult, error) {
	if limit <= 0 || limit > MaxLiquidationBatch {
		return nil, ErrInvalidBatch
	}
	if _, ok := PrincipalFrom(ctx); !ok {
		return nil, ErrNoPrincipal
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	plans, err := m.planLiquidation(ctx, limit)
	if err != nil {
		return nil, err
	}

	res := &BatchResult{}
	for _, pl := range plans {
		pl := pl
		res.Last = pl.provider
		err := m.run(ctx, "liquidate", func(t *txn) error {
			return t.applyLiquidation(pl)
		})
		if err != nil {
			m.logger.Warn("liquidation skipped", "provider", pl.provider, "error", err)
			res.Failures.Add(fmt.Errorf("maker %s: %w", pl.provider, err))
			continue
		}
		res.Processed++
	}
	return res, nil
}

// planLiquidation scans the rate index once and returns the plans.
func (m *Market) planLiquidation(ctx context.Context, limit int) ([]liquidationPlan, error) {
	t, err := m.begin(ctx)
	if err != nil {
		return nil, err
	}
	p, err := t.tunables()
	if err != nil {
		return nil, err
	}

	threshold := types.FixedFromPercent(p.liquidationRate)
	if !threshold.AtLeastPercent(p.liquidationRate) {
		threshold++
	}
	makers, err := m.store.ListMakersBelowRate(ctx, threshold, limit)
	if err != nil {
		return nil, err
	}

	plans := make([]liquidationPlan, 0, len(makers))
	for _, mk := range makers {
		pl, ok, err := t.planFor(mk, p)
		if err != nil {
			m.logger.Warn("liquidation plan failed", "provider", mk.Provider, "error", err)
			continue
		}
		if ok {
			plans = append(plans, pl)
		}
	}
	return plans, nil
}

// planFor computes the PST to retire, r, from
//
//	100·(S − r·V·p/100) ≥ L·(M − r)·V
//
// with S the stake, M the minted PST, V the DMC value of one PST, L the
// liquidation rate and p the penalty rate, both in percent. When the
// provider cannot retire r PST the whole stake is forfeited.
func (t *txn) planFor(mk *maker.Maker, p *params) (liquidationPlan, bool, error) {
	if mk.Minted <= 0 {
		return liquidationPlan{}, false, nil
	}

	// V scaled by 2^32.
	v := new(big.Int).Mul(p.stakeRatio.Big(), big.NewInt(types.DMC.Unit()))
	liq := new(big.Int).SetUint64(p.liquidationRate)
	pen := new(big.Int).SetUint64(p.penaltyRate)
	minted := big.NewInt(mk.Minted)
	staked := new(big.Int).Lsh(big.NewInt(mk.TotalStaked), types.FracBits)

	retire := mk.Minted
	if p.liquidationRate > p.penaltyRate {
		num := new(big.Int).Mul(minted, v)
		num.Mul(num, liq)
		num.Sub(num, new(big.Int).Mul(staked, big.NewInt(100)))
		if num.Sign() <= 0 {
			return liquidationPlan{}, false, nil
		}
		den := new(big.Int).Mul(v, new(big.Int).Sub(liq, pen))
		num.Add(num, new(big.Int).Sub(den, big.NewInt(1)))
		num.Quo(num, den)
		if num.Cmp(minted) < 0 {
			retire = num.Int64()
		}
	}

	penalty := new(big.Int).Mul(big.NewInt(retire), v)
	penalty.Mul(penalty, pen)
	penalty.Quo(penalty, big.NewInt(100))
	penalty.Rsh(penalty, types.FracBits)
	plan := liquidationPlan{
		provider:   mk.Provider,
		retire:     retire,
		penalty:    mk.TotalStaked,
		rateBefore: mk.CurrentRate,
	}
	if penalty.IsInt64() && penalty.Int64() < mk.TotalStaked {
		plan.penalty = penalty.Int64()
	}

	retirable, err := t.retirable(mk.Provider)
	if err != nil {
		return liquidationPlan{}, false, err
	}
	if retirable < retire {
		plan.retire = retirable
		plan.penalty = mk.TotalStaked
	}
	return plan, true, nil
}

// retirable returns the PST the provider holds outside active orders.
func (t *txn) retirable(provider string) (int64, error) {
	b, err := t.balance(provider, types.PST)
	if err != nil {
		return 0, err
	}
	total := b.Amount

	bills, err := t.providerBills(provider)
	if err != nil {
		return 0, err
	}
	for _, bl := range bills {
		if total, err = types.AddChecked(total, bl.Unmatched); err != nil {
			return 0, invariant(err)
		}
	}
	return total, nil
}

// applyLiquidation retires the planned PST, free balance first and then
// unmatched bill capacity oldest first, and seizes the penalty.
func (t *txn) applyLiquidation(pl liquidationPlan) error {
	p, err := t.tunables()
	if err != nil {
		return err
	}
	mk, err := t.maker(pl.provider)
	if err != nil {
		return err
	}

	left := pl.retire
	b, err := t.balance(pl.provider, types.PST)
	if err != nil {
		return err
	}
	if take := min(left, b.Amount); take > 0 {
		if err := t.debit(pl.provider, types.NewPST(take)); err != nil {
			return err
		}
		left -= take
	}
	if left > 0 {
		bills, err := t.providerBills(pl.provider)
		if err != nil {
			return err
		}
		for _, bl := range bills {
			if left == 0 {
				break
			}
			take := min(left, bl.Unmatched)
			if take == 0 {
				continue
			}
			if _, err := t.accrue(bl); err != nil {
				return err
			}
			bl.Unmatched -= take
			t.saveBill(bl)
			left -= take
		}
	}
	retired := pl.retire - left
	if err := t.burnSupply(types.PST, retired); err != nil {
		return err
	}

	penalty := min(pl.penalty, mk.TotalStaked)
	mk.Minted -= min(retired, mk.Minted)
	mk.TotalStaked -= penalty
	mk.Recompute(p.stakeRatio, types.DMC.Unit())
	mk.Touch(t.now)
	t.putMaker(mk)

	if err := t.credit(t.m.system, types.NewDMC(penalty)); err != nil {
		return err
	}

	if err := t.record(journal.KindLiquidation, pl.provider, pl.provider,
		map[string]int64{"retired": retired, "penalty": penalty},
		map[string]string{"rate_before": pl.rateBefore.String(), "rate_after": mk.CurrentRate.String()},
	); err != nil {
		return err
	}

	ev := &plugin.Liquidation{
		Provider:   pl.provider,
		Retired:    retired,
		Penalty:    penalty,
		RateBefore: pl.rateBefore,
		RateAfter:  mk.CurrentRate,
	}
	t.on(func(ctx context.Context, r *plugin.Registry) { r.EmitLiquidationApplied(ctx, ev) })
	return nil
}

// CleanPST burns the free PST and unmatched bill capacity of owners that
// no longer run a collateral pool. Owners that still do are skipped. Only
// the system account may call it.
func (m *Market) CleanPST(ctx context.Context, owners []string) (*BatchResult, error) {
	if len(owners) == 0 {
		return nil, ErrInvalidBatch
	}
	if name, _ := PrincipalFrom(ctx); name != m.system {
		if name == "" {
			return nil, ErrNoPrincipal
		}
		return nil, ErrNotAuthority
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	res := &BatchResult{}
	for _, owner := range owners {
		owner := owner
		res.Last = owner
		err := m.run(ctx, "clean_pst", func(t *txn) error {
			return t.cleanPST(owner)
		})
		if err != nil {
			m.logger.Warn("pst clean skipped", "owner", owner, "error", err)
			res.Failures.Add(fmt.Errorf("owner %s: %w", owner, err))
			continue
		}
		res.Processed++
	}
	return res, nil
}

func (t *txn) cleanPST(owner string) error {
	if err := t.requireSystem(); err != nil {
		return err
	}
	mk, err := t.makerIfAny(owner)
	if err != nil {
		return err
	}
	if mk != nil {
		return ErrMakerRegistered
	}

	b, err := t.balance(owner, types.PST)
	if err != nil {
		return err
	}
	free := b.Amount
	if err := t.debit(owner, types.NewPST(free)); err != nil {
		return err
	}

	bills, err := t.providerBills(owner)
	if err != nil {
		return err
	}
	var unmatched int64
	for _, bl := range bills {
		if bl.Unmatched == 0 {
			continue
		}
		if unmatched, err = types.AddChecked(unmatched, bl.Unmatched); err != nil {
			return invariant(err)
		}
		bl.Unmatched = 0
		bl.Touch(t.now)
		t.saveBill(bl)
	}

	total := free + unmatched
	if total == 0 {
		return nil
	}
	if err := t.burnSupply(types.PST, total); err != nil {
		return err
	}
	return t.record(journal.KindPSTCleaned, owner, owner,
		map[string]int64{"free": free, "unmatched": unmatched}, nil)
}
