package dmc

import (
	"context"
	"time"

	"github.com/xraph/dmc/bill"
	"github.com/xraph/dmc/id"
	"github.com/xraph/dmc/journal"
	"github.com/xraph/dmc/plugin"
	"github.com/xraph/dmc/types"
)

// orderPrice converts amount PST at price into DMC base units, rounding up.
func orderPrice(price types.Fixed, amount int64) (int64, error) {
	units, err := types.MulDiv(amount, types.DMC.Unit(), 1)
	if err != nil {
		return 0, invariant(err)
	}
	v, err := price.MulInt(units, true)
	if err != nil {
		return 0, invariant(err)
	}
	return v, nil
}

// Bill posts amount PST of the provider's free capacity at price DMC per PST.
func (m *Market) Bill(ctx context.Context, provider string, amount int64, price types.Fixed) (*bill.Bill, error) {
	var out *bill.Bill
	err := m.exec(ctx, "bill", func(t *txn) error {
		if err := t.requireAuthority(provider); err != nil {
			return err
		}
		if amount <= 0 {
			return ErrInvalidAmount
		}
		if price == 0 {
			return ErrInvalidPrice
		}
		if _, err := orderPrice(price, amount); err != nil {
			return ErrInvalidPrice
		}

		if err := t.debit(provider, types.NewPST(amount)); err != nil {
			return err
		}

		billID, err := t.nextID(id.PrefixBill)
		if err != nil {
			return err
		}
		b := &bill.Bill{
			Entity:    types.NewEntity(t.now),
			ID:        billID,
			Provider:  provider,
			Price:     price,
			Unmatched: amount,
		}
		t.putBill(b)

		if err := t.record(journal.KindBillCreated, billID.String(), provider,
			map[string]int64{"pst": amount},
			map[string]string{"price": price.String()},
		); err != nil {
			return err
		}

		snap := *b
		t.on(func(ctx context.Context, r *plugin.Registry) { r.EmitBillCreated(ctx, &snap) })
		out = &snap
		return nil
	})
	return out, err
}

// Unbill withdraws a bill's unmatched capacity back to its provider after a
// final incentive accrual. The bill disappears once nothing is matched.
func (m *Market) Unbill(ctx context.Context, provider string, billID id.BillID) (types.Asset, error) {
	var out types.Asset
	err := m.exec(ctx, "unbill", func(t *txn) error {
		if err := t.requireAuthority(provider); err != nil {
			return err
		}
		b, err := t.bill(billID)
		if err != nil {
			return err
		}
		if b.Provider != provider {
			return ErrNotAuthority
		}
		if b.Unmatched == 0 {
			return ErrBillMatched
		}

		if _, err := t.accrue(b); err != nil {
			return err
		}

		refund := b.Unmatched
		b.Unmatched = 0
		if err := t.credit(provider, types.NewPST(refund)); err != nil {
			return err
		}
		t.saveBill(b)

		if err := t.record(journal.KindBillClosed, billID.String(), provider,
			map[string]int64{"pst": refund}, nil); err != nil {
			return err
		}

		snap := *b
		t.on(func(ctx context.Context, r *plugin.Registry) { r.EmitBillClosed(ctx, &snap) })
		out = types.NewPST(refund)
		return nil
	})
	return out, err
}

// ClaimBillIncentive issues the RSI accrued by a bill's unmatched capacity.
func (m *Market) ClaimBillIncentive(ctx context.Context, provider string, billID id.BillID) (types.Asset, error) {
	var out types.Asset
	err := m.exec(ctx, "claim_bill_incentive", func(t *txn) error {
		if err := t.requireAuthority(provider); err != nil {
			return err
		}
		b, err := t.bill(billID)
		if err != nil {
			return err
		}
		if b.Provider != provider {
			return ErrNotAuthority
		}

		reward, err := t.accrue(b)
		if err != nil {
			return err
		}
		if reward == 0 {
			return ErrNothingToClaim
		}
		t.putBill(b)
		out = types.NewRSI(reward)
		return nil
	})
	return out, err
}

// GetBill returns a bill by id.
func (m *Market) GetBill(ctx context.Context, billID id.BillID) (*bill.Bill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.store.GetBill(ctx, billID)
}

// Bills lists the bill book.
func (m *Market) Bills(ctx context.Context, opts bill.ListOpts) ([]*bill.Bill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.store.ListBills(ctx, opts)
}

// saveBill stores b, or removes it once it holds no capacity.
func (t *txn) saveBill(b *bill.Bill) {
	if b.Exhausted() {
		t.deleteBill(b)
		return
	}
	t.putBill(b)
}

// accrue issues the incentive earned by b's unmatched capacity since its
// last update and advances the update time to now. Accrual stops at the
// end of the bill's first claim interval. It must run before any change to
// the bill's capacity.
func (t *txn) accrue(b *bill.Bill) (int64, error) {
	p, err := t.tunables()
	if err != nil {
		return 0, err
	}

	reward, err := incentive(b, t.now, p)
	if err != nil {
		return 0, err
	}
	b.Touch(t.now)
	if reward == 0 {
		return 0, nil
	}

	rsi := types.NewRSI(reward)
	if err := t.mint(b.Provider, rsi); err != nil {
		return 0, err
	}
	if err := t.record(journal.KindIncentiveIssued, b.ID.String(), b.Provider,
		map[string]int64{"rsi": reward}, nil); err != nil {
		return 0, err
	}

	inc := &plugin.Incentive{BillID: b.ID, Provider: b.Provider, Reward: rsi}
	t.on(func(ctx context.Context, r *plugin.Registry) { r.EmitIncentiveIssued(ctx, inc) })
	return reward, nil
}

// incentive computes perSecond × elapsed × unmatched, where perSecond is
// benchmarkRate% of one RSI spread over a claim interval.
func incentive(b *bill.Bill, now time.Time, p *params) (int64, error) {
	secs := int64(p.claimInterval / time.Second)
	if secs <= 0 || b.Unmatched <= 0 {
		return 0, nil
	}

	end := b.CreatedAt.Add(p.claimInterval)
	if now.Before(end) {
		end = now
	}
	elapsed := int64(end.Sub(b.UpdatedAt) / time.Second)
	if elapsed <= 0 {
		return 0, nil
	}

	perSecond, err := types.MulDiv(int64(p.benchmarkRate), types.RSI.Unit(), 100*secs)
	if err != nil {
		return 0, invariant(err)
	}
	reward, err := types.MulDiv(perSecond, elapsed, 1)
	if err != nil {
		return 0, invariant(err)
	}
	reward, err = types.MulDiv(reward, b.Unmatched, 1)
	if err != nil {
		return 0, invariant(err)
	}
	return reward, nil
}
