package dmc

import (
	"context"
	"fmt"
	"sort"

	"github.com/xraph/dmc/journal"
	"github.com/xraph/dmc/maker"
	"github.com/xraph/dmc/plugin"
	"github.com/xraph/dmc/types"
)

// Increase stakes DMC from partner into provider's collateral pool. The
// provider must open its own pool first. New weight is priced at the
// pool's current value per weight, so earlier partners are diluted
// proportionally.
func (m *Market) Increase(ctx context.Context, partner, provider string, a types.Asset) (*maker.Partner, error) {
	var out *maker.Partner
	err := m.exec(ctx, "increase", func(t *txn) error {
		if err := t.requireAuthority(partner); err != nil {
			return err
		}
		if a.Symbol != types.DMC {
			return ErrInvalidSymbol
		}
		if a.Amount <= 0 {
			return ErrInvalidAmount
		}
		p, err := t.tunables()
		if err != nil {
			return err
		}

		mk, err := t.makerIfAny(provider)
		if err != nil {
			return err
		}
		if mk == nil {
			if partner != provider {
				return ErrFirstStake
			}
			mk = &maker.Maker{
				Entity:    types.NewEntity(t.now),
				Provider:  provider,
				MinerRate: types.FixedFromPercent(p.minMinerRate),
			}
		}

		if mk.TotalStaked == 0 && mk.TotalWeight > 0 {
			// The pool was wiped out; outstanding weights are worthless.
			if err := t.resetShares(mk); err != nil {
				return err
			}
		}

		weight, err := mk.WeightFor(a.Amount)
		if err != nil {
			return invariant(err)
		}
		if weight == 0 || mk.IsDust(weight) {
			return ErrDustShare
		}

		if err := t.debit(partner, a); err != nil {
			return err
		}

		pr, err := t.partner(provider, partner)
		if IsNotFound(err) {
			pr = &maker.Partner{Entity: types.NewEntity(t.now), Provider: provider, Partner: partner}
		} else if err != nil {
			return err
		}
		if pr.Weight, err = types.AddChecked(pr.Weight, weight); err != nil {
			return invariant(err)
		}
		if mk.TotalWeight, err = types.AddChecked(mk.TotalWeight, weight); err != nil {
			return invariant(err)
		}
		if mk.TotalStaked, err = types.AddChecked(mk.TotalStaked, a.Amount); err != nil {
			return invariant(err)
		}
		pr.Touch(t.now)
		t.putPartner(pr)

		if partner != provider {
			own, err := t.ownWeight(provider)
			if err != nil {
				return err
			}
			if !mk.ShareAtLeast(own, mk.MinerRate) {
				return ErrMinerRate
			}
		}

		mk.Recompute(p.stakeRatio, types.DMC.Unit())
		mk.Touch(t.now)
		t.putMaker(mk)

		if err := t.record(journal.KindCollateralChanged, provider, partner,
			map[string]int64{"dmc": a.Amount, "weight": weight},
			map[string]string{"action": plugin.ActionIncrease},
		); err != nil {
			return err
		}
		t.collateralChanged(provider, partner, plugin.ActionIncrease, a, mk)

		snap := *pr
		out = &snap
		return nil
	})
	return out, err
}

// Redeem withdraws rate (0 < rate ≤ 1) of partner's weight from provider's
// pool at the pool's current value. A full exit removes the partner; a sole
// remaining partner absorbs the residual weight, and the last one out takes
// the residual stake and closes the pool. Proceeds are time-locked by
// redeem_lock.
func (m *Market) Redeem(ctx context.Context, partner, provider string, rate types.Fixed) (types.Asset, error) {
	var out types.Asset
	err := m.exec(ctx, "redeem", func(t *txn) error {
		if err := t.requireAuthority(partner); err != nil {
			return err
		}
		if rate == 0 || rate > types.One {
			return ErrInvalidRate
		}
		p, err := t.tunables()
		if err != nil {
			return err
		}

		mk, err := t.maker(provider)
		if err != nil {
			return err
		}
		pr, err := t.partner(provider, partner)
		if err != nil {
			return err
		}

		weight := pr.Weight
		if rate < types.One {
			if weight, err = rate.MulInt(pr.Weight, false); err != nil {
				return invariant(err)
			}
		}
		if weight <= 0 {
			return ErrInvalidAmount
		}
		amount, err := mk.ValueOf(weight)
		if err != nil {
			return invariant(err)
		}

		pr.Weight -= weight
		mk.TotalWeight -= weight
		mk.TotalStaked -= amount
		if pr.Weight == 0 {
			t.deletePartner(pr)
		} else {
			pr.Touch(t.now)
			t.putPartner(pr)
		}

		rest, err := t.partnersOf(provider)
		if err != nil {
			return err
		}
		closed := false
		switch len(rest) {
		case 0:
			amount += mk.TotalStaked
			mk.TotalStaked = 0
			mk.TotalWeight = 0
			closed = mk.Minted == 0
		case 1:
			rest[0].Weight = mk.TotalWeight
			rest[0].Touch(t.now)
			t.putPartner(rest[0])
		}

		mk.Recompute(p.stakeRatio, types.DMC.Unit())
		mk.Touch(t.now)
		if mk.Minted > 0 && !mk.CurrentRate.AtLeastPercent(p.benchmarkRate) {
			return ErrInsufficientCollateral
		}
		if partner == provider && len(rest) > 0 && !mk.ShareAtLeast(pr.Weight, mk.MinerRate) {
			return ErrMinerRate
		}

		if closed {
			t.deleteMaker(mk)
		} else {
			t.putMaker(mk)
		}

		proceeds := types.NewDMC(amount)
		if err := t.lockedCredit(partner, proceeds, t.now.Add(p.redeemLock)); err != nil {
			return err
		}

		if err := t.record(journal.KindCollateralChanged, provider, partner,
			map[string]int64{"dmc": amount, "weight": weight},
			map[string]string{"action": plugin.ActionRedeem},
		); err != nil {
			return err
		}
		if closed {
			t.collateralChanged(provider, partner, plugin.ActionRedeem, proceeds, nil)
		} else {
			t.collateralChanged(provider, partner, plugin.ActionRedeem, proceeds, mk)
		}

		out = proceeds
		return nil
	})
	return out, err
}

// SetMinerRate changes the share of pool weight the provider must keep.
func (m *Market) SetMinerRate(ctx context.Context, provider string, rate types.Fixed) error {
	return m.exec(ctx, "set_miner_rate", func(t *txn) error {
		if err := t.requireAuthority(provider); err != nil {
			return err
		}
		if rate > types.One {
			return ErrInvalidRate
		}

		mk, err := t.maker(provider)
		if err != nil {
			return err
		}
		own, err := t.ownWeight(provider)
		if err != nil {
			return err
		}
		if !mk.ShareAtLeast(own, rate) {
			return ErrMinerRate
		}

		mk.MinerRate = rate
		mk.Touch(t.now)
		t.putMaker(mk)

		if err := t.record(journal.KindCollateralChanged, provider, provider, nil,
			map[string]string{"action": plugin.ActionMinerRate, "rate": rate.String()},
		); err != nil {
			return err
		}
		t.collateralChanged(provider, provider, plugin.ActionMinerRate, types.Asset{}, mk)
		return nil
	})
}

// Mint issues amount PST to the provider against its collateral. The pool
// must stay at or above benchmark_rate afterwards.
func (m *Market) Mint(ctx context.Context, provider string, amount int64) (*maker.Maker, error) {
	var out *maker.Maker
	err := m.exec(ctx, "mint", func(t *txn) error {
		if err := t.requireAuthority(provider); err != nil {
			return err
		}
		if amount <= 0 {
			return ErrInvalidAmount
		}
		p, err := t.tunables()
		if err != nil {
			return err
		}

		mk, err := t.maker(provider)
		if err != nil {
			return err
		}
		if limit := mk.MintCap(p.benchmarkRate, p.stakeRatio, types.DMC.Unit()); amount > limit {
			return fmt.Errorf("%w: cap is %d PST", ErrMintCapExceeded, limit)
		}

		if err := t.mint(provider, types.NewPST(amount)); err != nil {
			return err
		}
		mk.Minted += amount
		mk.Recompute(p.stakeRatio, types.DMC.Unit())
		mk.Touch(t.now)
		t.putMaker(mk)

		if err := t.record(journal.KindPSTMinted, provider, provider,
			map[string]int64{"pst": amount}, map[string]string{"rate": mk.CurrentRate.String()}); err != nil {
			return err
		}
		t.collateralChanged(provider, provider, plugin.ActionMint, types.NewPST(amount), mk)

		snap := *mk
		out = &snap
		return nil
	})
	return out, err
}

// GetMaker returns a provider's collateral pool.
func (m *Market) GetMaker(ctx context.Context, provider string) (*maker.Maker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.store.GetMaker(ctx, provider)
}

// Partners lists the partners of a provider's pool ordered by name.
func (m *Market) Partners(ctx context.Context, provider string) ([]*maker.Partner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.store.ListPartners(ctx, provider)
}

// ownWeight returns the provider's weight in its own pool.
func (t *txn) ownWeight(provider string) (int64, error) {
	pr, err := t.partner(provider, provider)
	if IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return pr.Weight, nil
}

// resetShares drops every partner of an emptied pool.
func (t *txn) resetShares(mk *maker.Maker) error {
	rows, err := t.partnersOf(mk.Provider)
	if err != nil {
		return err
	}
	for _, pr := range rows {
		t.deletePartner(pr)
	}
	mk.TotalWeight = 0
	return nil
}

// collateralChanged queues a collateral event. mk is nil when the pool was
// closed.
func (t *txn) collateralChanged(provider, partner, action string, amount types.Asset, mk *maker.Maker) {
	ev := &plugin.CollateralChange{Provider: provider, Partner: partner, Action: action, Amount: amount}
	if mk != nil {
		snap := *mk
		ev.Maker = &snap
	}
	t.on(func(ctx context.Context, r *plugin.Registry) { r.EmitCollateralChanged(ctx, ev) })
}

// rerate refreshes the stored rate of every pool with minted PST against a
// new stake ratio. Pools that minted nothing keep RateCap. It returns the
// number of pools whose rate changed.
func (t *txn) rerate(stakeRatio types.Fixed) (int, error) {
	base, err := t.m.store.ListMakersBelowRate(t.ctx, maker.RateCap, 0)
	if err != nil {
		return 0, err
	}
	makers := merged(&t.makers, base,
		func(mk *maker.Maker) string { return mk.Provider },
		func(mk *maker.Maker) bool { return mk.Minted > 0 },
	)
	sort.Slice(makers, func(i, j int) bool { return makers[i].Provider < makers[j].Provider })

	changed := 0
	for _, mk := range makers {
		before := mk.CurrentRate
		mk.Recompute(stakeRatio, types.DMC.Unit())
		if mk.CurrentRate == before {
			continue
		}
		mk.Touch(t.now)
		t.putMaker(mk)
		changed++
	}
	return changed, nil
}
