package dmc

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/xraph/dmc/account"
	"github.com/xraph/dmc/bill"
	"github.com/xraph/dmc/challenge"
	"github.com/xraph/dmc/config"
	"github.com/xraph/dmc/id"
	"github.com/xraph/dmc/journal"
	"github.com/xraph/dmc/maker"
	"github.com/xraph/dmc/order"
	"github.com/xraph/dmc/plugin"
	"github.com/xraph/dmc/store"
	"github.com/xraph/dmc/types"
)

// slot is one entity held by a unit of work.
type slot[V any] struct {
	v       V
	dirty   bool
	deleted bool
}

// overlay buffers reads and writes of one table. keys keeps first-touch
// order so writes are flushed deterministically.
type overlay[V any] struct {
	slots map[string]*slot[V]
	keys  []string
}

func newOverlay[V any]() overlay[V] {
	return overlay[V]{slots: make(map[string]*slot[V])}
}

func (o *overlay[V]) ensure(k string) *slot[V] {
	s, ok := o.slots[k]
	if !ok {
		s = &slot[V]{}
		o.slots[k] = s
		o.keys = append(o.keys, k)
	}
	return s
}

func (o *overlay[V]) remember(k string, v V) {
	s := o.ensure(k)
	s.v = v
}

func (o *overlay[V]) set(k string, v V) {
	s := o.ensure(k)
	s.v, s.dirty, s.deleted = v, true, false
}

func (o *overlay[V]) remove(k string, v V) {
	s := o.ensure(k)
	s.v, s.dirty, s.deleted = v, true, true
}

// fetch returns the overlay's copy of k, loading it on first access.
func fetch[V any](o *overlay[V], k string, missing error, load func() (V, error)) (V, error) {
	var zero V
	if s, ok := o.slots[k]; ok {
		if s.deleted {
			return zero, missing
		}
		return s.v, nil
	}
	v, err := load()
	if err != nil {
		return zero, err
	}
	o.remember(k, v)
	return v, nil
}

// merged overlays buffered writes on a store listing. Rows the unit of work
// already holds replace their stored version, deleted rows are dropped and
// buffered rows the store does not have yet are appended when keep accepts
// them. The caller re-sorts.
func merged[V any](o *overlay[V], base []V, key func(V) string, keep func(V) bool) []V {
	seen := make(map[string]bool, len(base))
	out := make([]V, 0, len(base))
	for _, v := range base {
		k := key(v)
		seen[k] = true
		if s, ok := o.slots[k]; ok {
			if s.deleted {
				continue
			}
			v = s.v
		} else {
			o.remember(k, v)
		}
		if keep(v) {
			out = append(out, v)
		}
	}
	for _, k := range o.keys {
		if seen[k] {
			continue
		}
		if s := o.slots[k]; !s.deleted && keep(s.v) {
			out = append(out, s.v)
		}
	}
	return out
}

// flushEach writes every dirty slot of o in first-touch order.
func flushEach[V any](o *overlay[V], put func(V) error, del func(V) error) error {
	for _, k := range o.keys {
		s := o.slots[k]
		if !s.dirty {
			continue
		}
		if s.deleted {
			if err := del(s.v); err != nil && !IsNotFound(err) {
				return err
			}
			continue
		}
		if err := put(s.v); err != nil {
			return err
		}
	}
	return nil
}

// txn is the unit of work of one market call.
type txn struct {
	ctx       context.Context
	m         *Market
	now       time.Time
	lastClock uint64
	principal string
	params    *params

	balances   overlay[*account.Balance]
	locked     overlay[*account.Locked]
	supply     overlay[*account.Supply]
	configs    overlay[*config.Entry]
	meta       overlay[[]byte]
	bills      overlay[*bill.Bill]
	orders     overlay[*order.Order]
	challenges overlay[*challenge.Challenge]
	makers     overlay[*maker.Maker]
	partners   overlay[*maker.Partner]

	journal *journal.Journal
	events  []func(ctx context.Context, r *plugin.Registry)
}

func newTxn(ctx context.Context, m *Market) *txn {
	return &txn{
		ctx:        ctx,
		m:          m,
		balances:   newOverlay[*account.Balance](),
		locked:     newOverlay[*account.Locked](),
		supply:     newOverlay[*account.Supply](),
		configs:    newOverlay[*config.Entry](),
		meta:       newOverlay[[]byte](),
		bills:      newOverlay[*bill.Bill](),
		orders:     newOverlay[*order.Order](),
		challenges: newOverlay[*challenge.Challenge](),
		makers:     newOverlay[*maker.Maker](),
		partners:   newOverlay[*maker.Partner](),
	}
}

// flush writes the unit of work to the store bound to ctx.
func (t *txn) flush(ctx context.Context) error {
	s := t.m.store
	for _, k := range t.meta.keys {
		if sl := t.meta.slots[k]; sl.dirty {
			if err := s.PutMeta(ctx, k, sl.v); err != nil {
				return err
			}
		}
	}
	if err := flushEach(&t.supply,
		func(v *account.Supply) error { return s.PutSupply(ctx, v) },
		func(*account.Supply) error { return nil },
	); err != nil {
		return err
	}
	if err := flushEach(&t.balances,
		func(v *account.Balance) error { return s.PutBalance(ctx, v) },
		func(v *account.Balance) error { return s.DeleteBalance(ctx, v.Owner, v.Symbol) },
	); err != nil {
		return err
	}
	if err := flushEach(&t.locked,
		func(v *account.Locked) error { return s.PutLocked(ctx, v) },
		func(v *account.Locked) error { return s.DeleteLocked(ctx, v.Owner, v.Symbol, v.UnlockAt) },
	); err != nil {
		return err
	}
	if err := flushEach(&t.configs,
		func(v *config.Entry) error { return s.PutConfig(ctx, v) },
		func(*config.Entry) error { return nil },
	); err != nil {
		return err
	}
	if err := flushEach(&t.bills,
		func(v *bill.Bill) error { return s.PutBill(ctx, v) },
		func(v *bill.Bill) error { return s.DeleteBill(ctx, v.ID) },
	); err != nil {
		return err
	}
	if err := flushEach(&t.orders,
		func(v *order.Order) error { return s.PutOrder(ctx, v) },
		func(*order.Order) error { return nil },
	); err != nil {
		return err
	}
	if err := flushEach(&t.challenges,
		func(v *challenge.Challenge) error { return s.PutChallenge(ctx, v) },
		func(*challenge.Challenge) error { return nil },
	); err != nil {
		return err
	}
	if err := flushEach(&t.makers,
		func(v *maker.Maker) error { return s.PutMaker(ctx, v) },
		func(v *maker.Maker) error { return s.DeleteMaker(ctx, v.Provider) },
	); err != nil {
		return err
	}
	return flushEach(&t.partners,
		func(v *maker.Partner) error { return s.PutPartner(ctx, v) },
		func(v *maker.Partner) error { return s.DeletePartner(ctx, v.Provider, v.Partner) },
	)
}

// on queues a plugin event for delivery after commit.
func (t *txn) on(ev func(ctx context.Context, r *plugin.Registry)) {
	t.events = append(t.events, ev)
}

// record appends a receipt to the call's journal.
func (t *txn) record(kind journal.Kind, subject, party string, amounts map[string]int64, detail map[string]string) error {
	return t.journal.Append(&journal.Receipt{
		Kind:    kind,
		Subject: subject,
		Party:   party,
		At:      t.now,
		Amounts: amounts,
		Detail:  detail,
	})
}

// nextID allocates the next deterministic id for prefix.
func (t *txn) nextID(prefix id.Prefix) (id.ID, error) {
	key := store.MetaSeqPrefix + string(prefix)
	b, err := fetch(&t.meta, key, ErrMetaNotFound, func() ([]byte, error) {
		v, err := t.m.store.GetMeta(t.ctx, key)
		if IsNotFound(err) {
			return encodeUint(0), nil
		}
		return v, err
	})
	if err != nil {
		return id.Nil, err
	}
	seq := decodeUint(b) + 1
	t.meta.set(key, encodeUint(seq))
	return id.FromSequence(prefix, seq), nil
}

// ──────────────────────────────────────────────────
// Entity access
// ──────────────────────────────────────────────────

// balance returns the owner's balance row, a zero row when none exists.
func (t *txn) balance(owner string, sym types.Symbol) (*account.Balance, error) {
	return fetch(&t.balances, account.BalanceKey(owner, sym), ErrBalanceNotFound, func() (*account.Balance, error) {
		b, err := t.m.store.GetBalance(t.ctx, owner, sym)
		if IsNotFound(err) {
			return &account.Balance{Owner: owner, Symbol: sym}, nil
		}
		return b, err
	})
}

func (t *txn) putBalance(b *account.Balance) {
	t.balances.set(account.BalanceKey(b.Owner, b.Symbol), b)
}

func (t *txn) listLocked(owner string, sym types.Symbol) ([]*account.Locked, error) {
	base, err := t.m.store.ListLocked(t.ctx, owner, sym)
	if err != nil {
		return nil, err
	}
	out := merged(&t.locked, base,
		func(l *account.Locked) string { return account.LockedKey(l.Owner, l.Symbol, l.UnlockAt) },
		func(l *account.Locked) bool { return l.Owner == owner && l.Symbol == sym },
	)
	sort.Slice(out, func(i, j int) bool { return out[i].UnlockAt.Before(out[j].UnlockAt) })
	return out, nil
}

func (t *txn) putLocked(l *account.Locked) {
	t.locked.set(account.LockedKey(l.Owner, l.Symbol, l.UnlockAt), l)
}

func (t *txn) deleteLocked(l *account.Locked) {
	t.locked.remove(account.LockedKey(l.Owner, l.Symbol, l.UnlockAt), l)
}

// supplyOf returns the supply row of sym, a zero row when none exists.
func (t *txn) supplyOf(sym types.Symbol) (*account.Supply, error) {
	return fetch(&t.supply, string(sym), ErrSupplyNotFound, func() (*account.Supply, error) {
		s, err := t.m.store.GetSupply(t.ctx, sym)
		if IsNotFound(err) {
			return &account.Supply{Symbol: sym}, nil
		}
		return s, err
	})
}

func (t *txn) putSupply(s *account.Supply) {
	t.supply.set(string(s.Symbol), s)
}

func (t *txn) bill(billID id.BillID) (*bill.Bill, error) {
	return fetch(&t.bills, billID.String(), ErrBillNotFound, func() (*bill.Bill, error) {
		return t.m.store.GetBill(t.ctx, billID)
	})
}

func (t *txn) putBill(b *bill.Bill) {
	t.bills.set(b.ID.String(), b)
}

func (t *txn) deleteBill(b *bill.Bill) {
	t.bills.remove(b.ID.String(), b)
}

// providerBills returns a provider's bills oldest first.
func (t *txn) providerBills(provider string) ([]*bill.Bill, error) {
	base, err := t.m.store.ListBills(t.ctx, bill.ListOpts{Provider: provider, OrderBy: bill.OrderByCreated})
	if err != nil {
		return nil, err
	}
	out := merged(&t.bills, base,
		func(b *bill.Bill) string { return b.ID.String() },
		func(b *bill.Bill) bool { return b.Provider == provider },
	)
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (t *txn) order(orderID id.OrderID) (*order.Order, error) {
	return fetch(&t.orders, orderID.String(), ErrOrderNotFound, func() (*order.Order, error) {
		return t.m.store.GetOrder(t.ctx, orderID)
	})
}

func (t *txn) putOrder(o *order.Order) {
	t.orders.set(o.ID.String(), o)
}

func (t *txn) challenge(orderID id.OrderID) (*challenge.Challenge, error) {
	return fetch(&t.challenges, orderID.String(), ErrChallengeNotFound, func() (*challenge.Challenge, error) {
		return t.m.store.GetChallenge(t.ctx, orderID)
	})
}

func (t *txn) putChallenge(c *challenge.Challenge) {
	t.challenges.set(c.OrderID.String(), c)
}

func (t *txn) maker(provider string) (*maker.Maker, error) {
	return fetch(&t.makers, provider, ErrMakerNotFound, func() (*maker.Maker, error) {
		return t.m.store.GetMaker(t.ctx, provider)
	})
}

// makerIfAny returns the provider's pool or nil when it has none.
func (t *txn) makerIfAny(provider string) (*maker.Maker, error) {
	mk, err := t.maker(provider)
	if IsNotFound(err) {
		return nil, nil
	}
	return mk, err
}

func (t *txn) putMaker(mk *maker.Maker) {
	t.makers.set(mk.Provider, mk)
}

func (t *txn) deleteMaker(mk *maker.Maker) {
	t.makers.remove(mk.Provider, mk)
}

func (t *txn) partner(provider, partner string) (*maker.Partner, error) {
	return fetch(&t.partners, maker.PartnerKey(provider, partner), ErrPartnerNotFound, func() (*maker.Partner, error) {
		return t.m.store.GetPartner(t.ctx, provider, partner)
	})
}

func (t *txn) putPartner(p *maker.Partner) {
	t.partners.set(maker.PartnerKey(p.Provider, p.Partner), p)
}

func (t *txn) deletePartner(p *maker.Partner) {
	t.partners.remove(maker.PartnerKey(p.Provider, p.Partner), p)
}

// partnersOf returns a pool's partners ordered by name.
func (t *txn) partnersOf(provider string) ([]*maker.Partner, error) {
	base, err := t.m.store.ListPartners(t.ctx, provider)
	if err != nil {
		return nil, err
	}
	out := merged(&t.partners, base,
		func(p *maker.Partner) string { return maker.PartnerKey(p.Provider, p.Partner) },
		func(p *maker.Partner) bool { return p.Provider == provider },
	)
	sort.Slice(out, func(i, j int) bool { return out[i].Partner < out[j].Partner })
	return out, nil
}

func (t *txn) String() string {
	return fmt.Sprintf("txn(%s @ %s)", t.principal, t.now.Format(time.RFC3339))
}
