package dmc

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/xraph/dmc/challenge"
	"github.com/xraph/dmc/id"
	"github.com/xraph/dmc/journal"
	"github.com/xraph/dmc/order"
	"github.com/xraph/dmc/plugin"
	"github.com/xraph/dmc/types"
)

// ClaimResult reports what a provider received from ClaimOrder.
type ClaimResult struct {
	ProviderAmount types.Asset `json:"provider_amount"`
	PoolAmount     types.Asset `json:"pool_amount"`
	ConsumerReward types.Asset `json:"consumer_reward"`
	ProviderReward types.Asset `json:"provider_reward"`
	Epochs         int64       `json:"epochs"`
}

// BatchResult reports a skip-and-continue batch call. Failures holds one
// error per skipped item.
type BatchResult struct {
	Processed int        `json:"processed"`
	Last      string     `json:"last,omitempty"`
	Failures  MultiError `json:"-"`
}

// Order reserves amount PST of a bill for the consumer. The consumer pays
// one installment, price × amount rounded up, plus an optional DMC reserve
// into the order's pledge.
func (m *Market) Order(ctx context.Context, consumer string, billID id.BillID, amount int64, reserve types.Asset) (*order.Order, error) {
	var out *order.Order
	err := m.exec(ctx, "order", func(t *txn) error {
		if err := t.requireAuthority(consumer); err != nil {
			return err
		}
		if amount <= 0 {
			return ErrInvalidAmount
		}
		if reserve.Amount < 0 {
			return ErrInvalidAmount
		}
		if reserve.Amount > 0 && reserve.Symbol != types.DMC {
			return ErrInvalidSymbol
		}

		b, err := t.bill(billID)
		if err != nil {
			return err
		}
		if b.Provider == consumer {
			return ErrSameAccount
		}
		if b.Unmatched < amount {
			return fmt.Errorf("%w: bill %s has %d unmatched", ErrInsufficientCapacity, billID, b.Unmatched)
		}

		price, err := orderPrice(b.Price, amount)
		if err != nil {
			return err
		}
		pledge, err := types.AddChecked(price, reserve.Amount)
		if err != nil {
			return invariant(err)
		}

		// Accrual sees the capacity as it was before this match.
		if _, err := t.accrue(b); err != nil {
			return err
		}
		b.Unmatched -= amount
		b.Matched += amount
		t.putBill(b)

		if err := t.debit(consumer, types.NewDMC(pledge)); err != nil {
			return err
		}

		orderID, err := t.nextID(id.PrefixOrder)
		if err != nil {
			return err
		}
		o := &order.Order{
			Entity:      types.NewEntity(t.now),
			ID:          orderID,
			Consumer:    consumer,
			Provider:    b.Provider,
			BillID:      billID,
			Price:       price,
			UserPledge:  pledge,
			MinerPledge: amount,
			State:       order.StateWaiting,
		}
		t.putOrder(o)
		t.putChallenge(challenge.New(orderID, t.now))

		if err := t.record(journal.KindOrderCreated, orderID.String(), consumer,
			map[string]int64{"pst": amount, "dmc": pledge, "price": price},
			map[string]string{"bill": billID.String(), "provider": b.Provider},
		); err != nil {
			return err
		}

		snap := *o
		t.on(func(ctx context.Context, r *plugin.Registry) { r.EmitOrderCreated(ctx, &snap) })
		out = &snap
		return nil
	})
	return out, err
}

// AddOrderAsset deposits more DMC into an order's pledge. An order that ran
// dry in PreEnd resumes when the deposit covers the next installment.
func (m *Market) AddOrderAsset(ctx context.Context, consumer string, orderID id.OrderID, a types.Asset) (*order.Order, error) {
	var out *order.Order
	err := m.exec(ctx, "add_order_asset", func(t *txn) error {
		if err := t.requireAuthority(consumer); err != nil {
			return err
		}
		if a.Symbol != types.DMC {
			return ErrInvalidSymbol
		}
		if a.Amount <= 0 {
			return ErrInvalidAmount
		}

		o, _, err := t.touchOrder(orderID)
		if err != nil {
			return err
		}
		if o.Consumer != consumer {
			return ErrNotParty
		}
		if o.State.Terminal() {
			return ErrOrderTerminal
		}

		if err := t.debit(consumer, a); err != nil {
			return err
		}
		if o.UserPledge, err = types.AddChecked(o.UserPledge, a.Amount); err != nil {
			return invariant(err)
		}
		o.Touch(t.now)
		t.putOrder(o)

		if err := t.record(journal.KindOrderDeposited, orderID.String(), consumer,
			map[string]int64{"dmc": a.Amount}, nil); err != nil {
			return err
		}

		if tr, ok := o.Resume(t.now); ok {
			if err := t.applyTransition(o, tr); err != nil {
				return err
			}
		}

		snap := *o
		out = &snap
		return nil
	})
	return out, err
}

// CancelOrder terminates an order at the request of either party.
func (m *Market) CancelOrder(ctx context.Context, sender string, orderID id.OrderID) (*order.Order, error) {
	var out *order.Order
	err := m.exec(ctx, "cancel_order", func(t *txn) error {
		if err := t.requireAuthority(sender); err != nil {
			return err
		}

		o, c, err := t.touchOrder(orderID)
		if err != nil {
			return err
		}
		if o.Consumer != sender && o.Provider != sender {
			return ErrNotParty
		}
		if o.State.Terminal() {
			return ErrOrderTerminal
		}
		if !c.State.IsEnd() {
			return ErrChallengeOpen
		}

		if c.UserLock > 0 {
			if err := t.credit(o.Consumer, types.NewDMC(c.UserLock)); err != nil {
				return err
			}
			c.UserLock = 0
			c.Touch(t.now)
			t.putChallenge(c)
		}

		if err := t.applyTransition(o, o.Cancel(t.now)); err != nil {
			return err
		}

		snap := *o
		out = &snap
		return nil
	})
	return out, err
}

// ClaimOrder pays out an order's settled installments to its provider and
// issues RSI rewards for every full claim interval delivered. When the
// provider runs a collateral pool, the part of the settlement above
// provider_claim_rate is staked into it.
func (m *Market) ClaimOrder(ctx context.Context, provider string, orderID id.OrderID) (*ClaimResult, error) {
	var out *ClaimResult
	err := m.exec(ctx, "claim_order", func(t *txn) error {
		if err := t.requireAuthority(provider); err != nil {
			return err
		}

		o, _, err := t.touchOrder(orderID)
		if err != nil {
			return err
		}
		if o.Provider != provider {
			return ErrNotParty
		}
		p, err := t.tunables()
		if err != nil {
			return err
		}

		epochs := claimEpochs(o, t.now, p.claimInterval)
		consumerRSI, providerRSI, err := claimRewards(o.Price, epochs, p.benchmarkRate)
		if err != nil {
			return err
		}
		settled := o.SettlementPledge
		if settled == 0 && consumerRSI == 0 && providerRSI == 0 {
			return ErrNothingToClaim
		}

		mk, err := t.makerIfAny(provider)
		if err != nil {
			return err
		}
		toProvider := settled
		var toPool int64
		if mk != nil {
			if toProvider, err = types.MulDiv(settled, int64(p.providerClaimRate), 100); err != nil {
				return invariant(err)
			}
			toPool = settled - toProvider
			if mk.TotalStaked, err = types.AddChecked(mk.TotalStaked, toPool); err != nil {
				return invariant(err)
			}
			mk.Recompute(p.stakeRatio, types.DMC.Unit())
			mk.Touch(t.now)
			t.putMaker(mk)
		}

		if err := t.credit(provider, types.NewDMC(toProvider)); err != nil {
			return err
		}
		if err := t.mint(o.Consumer, types.NewRSI(consumerRSI)); err != nil {
			return err
		}
		if err := t.mint(provider, types.NewRSI(providerRSI)); err != nil {
			return err
		}

		o.SettlementPledge = 0
		o.ClaimDate = o.ClaimDate.Add(time.Duration(epochs) * p.claimInterval)
		o.Touch(t.now)
		t.putOrder(o)

		if err := t.record(journal.KindOrderClaimed, orderID.String(), provider,
			map[string]int64{
				"provider_dmc": toProvider,
				"pool_dmc":     toPool,
				"consumer_rsi": consumerRSI,
				"provider_rsi": providerRSI,
			},
			map[string]string{"epochs": strconv.FormatInt(epochs, 10)},
		); err != nil {
			return err
		}

		out = &ClaimResult{
			ProviderAmount: types.NewDMC(toProvider),
			PoolAmount:     types.NewDMC(toPool),
			ConsumerReward: types.NewRSI(consumerRSI),
			ProviderReward: types.NewRSI(providerRSI),
			Epochs:         epochs,
		}
		claim := &plugin.OrderClaim{
			Order:          snapshotOrder(o),
			ProviderAmount: out.ProviderAmount,
			PoolAmount:     out.PoolAmount,
			ConsumerReward: out.ConsumerReward,
			ProviderReward: out.ProviderReward,
		}
		t.on(func(ctx context.Context, r *plugin.Registry) { r.EmitOrderClaimed(ctx, claim) })
		if toPool > 0 {
			t.collateralChanged(provider, provider, plugin.ActionClaim, types.NewDMC(toPool), mk)
		}
		return nil
	})
	return out, err
}

// claimEpochs counts the whole claim intervals between the order's claim
// date and now, or its end date once terminated.
func claimEpochs(o *order.Order, now time.Time, interval time.Duration) int64 {
	if o.ClaimDate.IsZero() || interval <= 0 {
		return 0
	}
	bound := now
	if o.State.Terminal() && o.EndDate.Before(bound) {
		bound = o.EndDate
	}
	if !bound.After(o.ClaimDate) {
		return 0
	}
	return int64(bound.Sub(o.ClaimDate) / interval)
}

// claimRewards returns the consumer and provider RSI for epochs intervals.
// The provider earns the consumer reward plus 100/benchmarkRate of it.
func claimRewards(price, epochs int64, benchmarkRate uint64) (int64, int64, error) {
	if epochs <= 0 || benchmarkRate == 0 {
		return 0, 0, nil
	}
	perEpoch, err := types.MulDiv(price, types.RSI.Unit(), types.DMC.Unit())
	if err != nil {
		return 0, 0, invariant(err)
	}
	consumer, err := types.MulDiv(perEpoch, epochs, 1)
	if err != nil {
		return 0, 0, invariant(err)
	}
	provider, err := types.MulDiv(consumer, 100+int64(10000/benchmarkRate), 100)
	if err != nil {
		return 0, 0, invariant(err)
	}
	return consumer, provider, nil
}

// SettleOrders replays up to limit non-terminal orders whose id sorts after
// the given one. A failing order is skipped and reported in the result.
func (m *Market) SettleOrders(ctx context.Context, after id.OrderID, limit int) (*BatchResult, error) {
	if limit <= 0 {
		return nil, ErrInvalidBatch
	}
	if limit > m.batchLimit {
		limit = m.batchLimit
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	orders, err := m.store.ListOrders(ctx, order.ListOpts{Active: true, After: after, Limit: limit})
	if err != nil {
		return nil, err
	}

	res := &BatchResult{}
	for _, o := range orders {
		orderID := o.ID
		res.Last = orderID.String()
		err := m.run(ctx, "settle_order", func(t *txn) error {
			_, _, err := t.touchOrder(orderID)
			return err
		})
		if err != nil {
			m.logger.Warn("settlement skipped", "order", orderID.String(), "error", err)
			res.Failures.Add(fmt.Errorf("order %s: %w", orderID, err))
			continue
		}
		res.Processed++
	}
	return res, nil
}

// GetOrder returns an order as of now, replayed but not persisted.
func (m *Market) GetOrder(ctx context.Context, orderID id.OrderID) (*order.Order, error) {
	var out *order.Order
	err := m.view(ctx, func(t *txn) error {
		o, _, err := t.touchOrder(orderID)
		if err != nil {
			return err
		}
		out = snapshotOrder(o)
		return nil
	})
	return out, err
}

// Orders lists stored orders.
func (m *Market) Orders(ctx context.Context, opts order.ListOpts) ([]*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.store.ListOrders(ctx, opts)
}

// ──────────────────────────────────────────────────
// Settlement replay
// ──────────────────────────────────────────────────

// touchOrder loads an order and its challenge and replays both forward to
// now. Every operation on an order starts here.
func (t *txn) touchOrder(orderID id.OrderID) (*order.Order, *challenge.Challenge, error) {
	o, err := t.order(orderID)
	if err != nil {
		return nil, nil, err
	}
	c, err := t.challenge(orderID)
	if err != nil {
		return nil, nil, err
	}
	if o.State.Terminal() {
		return o, c, nil
	}
	if err := t.replay(o, c); err != nil {
		return nil, nil, err
	}
	return o, c, nil
}

// replay expires an unanswered challenge and advances the settlement
// machine while no dispute is open.
func (t *txn) replay(o *order.Order, c *challenge.Challenge) error {
	p, err := t.tunables()
	if err != nil {
		return err
	}

	from := c.State
	if c.Expire(t.now, p.challengeInterval) {
		t.putChallenge(c)
		if err := t.challengeChanged(c, from, nil); err != nil {
			return err
		}
	}

	for _, tr := range o.Advance(t.now, p.claimInterval, c.State.IsEnd()) {
		if err := t.applyTransition(o, tr); err != nil {
			return err
		}
	}
	return nil
}

// applyTransition stores o after tr and settles tr's ledger effects.
func (t *txn) applyTransition(o *order.Order, tr order.Transition) error {
	t.putOrder(o)

	if tr.Refunded > 0 {
		if err := t.credit(o.Consumer, types.NewDMC(tr.Refunded)); err != nil {
			return err
		}
	}
	if tr.Burned > 0 {
		if err := t.burnMinerPledge(o, tr.Burned); err != nil {
			return err
		}
	}
	if tr.Released > 0 {
		if err := t.releaseMinerPledge(o, tr.Released); err != nil {
			return err
		}
	}

	if err := t.record(journal.KindOrderStateChanged, o.ID.String(), o.Consumer,
		map[string]int64{
			"locked":   tr.Locked,
			"settled":  tr.Settled,
			"refunded": tr.Refunded,
			"burned":   tr.Burned,
			"released": tr.Released,
		},
		map[string]string{"from": string(tr.From), "to": string(tr.To)},
	); err != nil {
		return err
	}

	snap := snapshotOrder(o)
	t.on(func(ctx context.Context, r *plugin.Registry) { r.EmitOrderStateChanged(ctx, snap, tr) })
	return nil
}

// burnMinerPledge destroys the capacity backing a finished order and
// lowers the provider's minted total with it.
func (t *txn) burnMinerPledge(o *order.Order, amount int64) error {
	if err := t.unmatch(o, amount); err != nil {
		return err
	}
	if err := t.burnSupply(types.PST, amount); err != nil {
		return err
	}

	mk, err := t.makerIfAny(o.Provider)
	if err != nil || mk == nil {
		return err
	}
	p, err := t.tunables()
	if err != nil {
		return err
	}
	mk.Minted -= min(amount, mk.Minted)
	mk.Recompute(p.stakeRatio, types.DMC.Unit())
	mk.Touch(t.now)
	t.putMaker(mk)
	t.collateralChanged(o.Provider, o.Provider, plugin.ActionBurn, types.NewPST(amount), mk)
	return nil
}

// releaseMinerPledge returns a cancelled order's capacity to its provider.
func (t *txn) releaseMinerPledge(o *order.Order, amount int64) error {
	if err := t.unmatch(o, amount); err != nil {
		return err
	}
	return t.credit(o.Provider, types.NewPST(amount))
}

// unmatch removes amount from the matched capacity of the order's bill.
func (t *txn) unmatch(o *order.Order, amount int64) error {
	b, err := t.bill(o.BillID)
	if err != nil {
		return err
	}
	if _, err := t.accrue(b); err != nil {
		return err
	}
	if b.Matched, err = types.SubNonNegative(b.Matched, amount); err != nil {
		return invariant(err)
	}
	t.saveBill(b)
	return nil
}

func snapshotOrder(o *order.Order) *order.Order {
	snap := *o
	return &snap
}
