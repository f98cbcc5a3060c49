package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/dmc"
	"github.com/xraph/dmc/account"
	"github.com/xraph/dmc/bill"
	"github.com/xraph/dmc/challenge"
	"github.com/xraph/dmc/config"
	"github.com/xraph/dmc/id"
	"github.com/xraph/dmc/maker"
	"github.com/xraph/dmc/order"
	"github.com/xraph/dmc/store"
	"github.com/xraph/dmc/types"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	mu sync.RWMutex
	// txMu serializes Atomic blocks.
	txMu sync.Mutex

	tables
}

// tables holds every map so Atomic can snapshot and restore them as one.
type tables struct {
	balances   map[string]*account.Balance
	locked     map[string]*account.Locked
	supply     map[types.Symbol]*account.Supply
	configs    map[config.Key]*config.Entry
	meta       map[string][]byte
	bills      map[string]*bill.Bill
	orders     map[string]*order.Order
	challenges map[string]*challenge.Challenge
	makers     map[string]*maker.Maker
	partners   map[string]*maker.Partner
}

func newTables() tables {
	return tables{
		balances:   make(map[string]*account.Balance),
		locked:     make(map[string]*account.Locked),
		supply:     make(map[types.Symbol]*account.Supply),
		configs:    make(map[config.Key]*config.Entry),
		meta:       make(map[string][]byte),
		bills:      make(map[string]*bill.Bill),
		orders:     make(map[string]*order.Order),
		challenges: make(map[string]*challenge.Challenge),
		makers:     make(map[string]*maker.Maker),
		partners:   make(map[string]*maker.Partner),
	}
}

func New() *Store {
	return &Store{tables: newTables()}
}

// clone copies the maps. Stored values are never mutated in place, so
// sharing the pointers is safe.
func (t tables) clone() tables {
	c := newTables()
	for k, v := range t.balances {
		c.balances[k] = v
	}
	for k, v := range t.locked {
		c.locked[k] = v
	}
	for k, v := range t.supply {
		c.supply[k] = v
	}
	for k, v := range t.configs {
		c.configs[k] = v
	}
	for k, v := range t.meta {
		c.meta[k] = v
	}
	for k, v := range t.bills {
		c.bills[k] = v
	}
	for k, v := range t.orders {
		c.orders[k] = v
	}
	for k, v := range t.challenges {
		c.challenges[k] = v
	}
	for k, v := range t.makers {
		c.makers[k] = v
	}
	for k, v := range t.partners {
		c.partners[k] = v
	}
	return c
}

// ──────────────────────────────────────────────────
// Account Store implementation
// ──────────────────────────────────────────────────

func (s *Store) GetBalance(_ context.Context, owner string, sym types.Symbol) (*account.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if b, ok := s.balances[account.BalanceKey(owner, sym)]; ok {
		cp := *b
		return &cp, nil
	}
	return nil, dmc.ErrBalanceNotFound
}

func (s *Store) PutBalance(_ context.Context, b *account.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *b
	s.balances[account.BalanceKey(b.Owner, b.Symbol)] = &cp
	return nil
}

func (s *Store) DeleteBalance(_ context.Context, owner string, sym types.Symbol) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.balances, account.BalanceKey(owner, sym))
	return nil
}

func (s *Store) ListLocked(_ context.Context, owner string, sym types.Symbol) ([]*account.Locked, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*account.Locked, 0)
	for _, l := range s.locked {
		if l.Owner == owner && l.Symbol == sym {
			cp := *l
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UnlockAt.Before(result[j].UnlockAt)
	})
	return result, nil
}

func (s *Store) PutLocked(_ context.Context, l *account.Locked) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *l
	s.locked[account.LockedKey(l.Owner, l.Symbol, l.UnlockAt)] = &cp
	return nil
}

func (s *Store) DeleteLocked(_ context.Context, owner string, sym types.Symbol, unlockAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.locked, account.LockedKey(owner, sym, unlockAt))
	return nil
}

func (s *Store) GetSupply(_ context.Context, sym types.Symbol) (*account.Supply, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sp, ok := s.supply[sym]; ok {
		cp := *sp
		return &cp, nil
	}
	return nil, dmc.ErrSupplyNotFound
}

func (s *Store) PutSupply(_ context.Context, sp *account.Supply) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *sp
	s.supply[sp.Symbol] = &cp
	return nil
}

// ──────────────────────────────────────────────────
// Config and meta Store implementation
// ──────────────────────────────────────────────────

func (s *Store) GetConfig(_ context.Context, key config.Key) (*config.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.configs[key]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, dmc.ErrConfigNotFound
}

func (s *Store) PutConfig(_ context.Context, e *config.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *e
	s.configs[e.Key] = &cp
	return nil
}

func (s *Store) ListConfig(_ context.Context) ([]*config.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*config.Entry, 0, len(s.configs))
	for _, e := range s.configs {
		cp := *e
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result, nil
}

func (s *Store) GetMeta(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if v, ok := s.meta[key]; ok {
		return append([]byte(nil), v...), nil
	}
	return nil, dmc.ErrMetaNotFound
}

func (s *Store) PutMeta(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.meta[key] = append([]byte(nil), value...)
	return nil
}

// ──────────────────────────────────────────────────
// Bill Store implementation
// ──────────────────────────────────────────────────

func (s *Store) GetBill(_ context.Context, billID id.BillID) (*bill.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if b, ok := s.bills[billID.String()]; ok {
		cp := *b
		return &cp, nil
	}
	return nil, dmc.ErrBillNotFound
}

func (s *Store) PutBill(_ context.Context, b *bill.Bill) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *b
	s.bills[b.ID.String()] = &cp
	return nil
}

func (s *Store) DeleteBill(_ context.Context, billID id.BillID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bills[billID.String()]; !ok {
		return dmc.ErrBillNotFound
	}
	delete(s.bills, billID.String())
	return nil
}

func (s *Store) ListBills(_ context.Context, opts bill.ListOpts) ([]*bill.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*bill.Bill, 0)
	for _, b := range s.bills {
		if opts.Provider == "" || b.Provider == opts.Provider {
			cp := *b
			result = append(result, &cp)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if opts.OrderBy == bill.OrderByPrice && a.Price != b.Price {
			return a.Price < b.Price
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})

	return page(result, opts.Offset, opts.Limit), nil
}

// ──────────────────────────────────────────────────
// Order and Challenge Store implementation
// ──────────────────────────────────────────────────

func (s *Store) GetOrder(_ context.Context, orderID id.OrderID) (*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if o, ok := s.orders[orderID.String()]; ok {
		cp := *o
		return &cp, nil
	}
	return nil, dmc.ErrOrderNotFound
}

func (s *Store) PutOrder(_ context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *o
	s.orders[o.ID.String()] = &cp
	return nil
}

func (s *Store) ListOrders(_ context.Context, opts order.ListOpts) ([]*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	after := ""
	if !opts.After.IsNil() {
		after = opts.After.String()
	}

	result := make([]*order.Order, 0)
	for k, o := range s.orders {
		if opts.Consumer != "" && o.Consumer != opts.Consumer {
			continue
		}
		if opts.Provider != "" && o.Provider != opts.Provider {
			continue
		}
		if opts.Active && o.State.Terminal() {
			continue
		}
		if after != "" && k <= after {
			continue
		}
		cp := *o
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })

	return page(result, 0, opts.Limit), nil
}

func (s *Store) GetChallenge(_ context.Context, orderID id.OrderID) (*challenge.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.challenges[orderID.String()]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, dmc.ErrChallengeNotFound
}

func (s *Store) PutChallenge(_ context.Context, c *challenge.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *c
	s.challenges[c.OrderID.String()] = &cp
	return nil
}

// ──────────────────────────────────────────────────
// Maker Store implementation
// ──────────────────────────────────────────────────

func (s *Store) GetMaker(_ context.Context, provider string) (*maker.Maker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if m, ok := s.makers[provider]; ok {
		cp := *m
		return &cp, nil
	}
	return nil, dmc.ErrMakerNotFound
}

func (s *Store) PutMaker(_ context.Context, m *maker.Maker) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *m
	s.makers[m.Provider] = &cp
	return nil
}

func (s *Store) DeleteMaker(_ context.Context, provider string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.makers[provider]; !ok {
		return dmc.ErrMakerNotFound
	}
	delete(s.makers, provider)
	return nil
}

func (s *Store) ListMakersBelowRate(_ context.Context, rate types.Fixed, limit int) ([]*maker.Maker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*maker.Maker, 0)
	for _, m := range s.makers {
		if m.CurrentRate < rate {
			cp := *m
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CurrentRate != result[j].CurrentRate {
			return result[i].CurrentRate < result[j].CurrentRate
		}
		return result[i].Provider < result[j].Provider
	})

	return page(result, 0, limit), nil
}

func (s *Store) GetPartner(_ context.Context, provider, partner string) (*maker.Partner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.partners[maker.PartnerKey(provider, partner)]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, dmc.ErrPartnerNotFound
}

func (s *Store) PutPartner(_ context.Context, p *maker.Partner) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *p
	s.partners[maker.PartnerKey(p.Provider, p.Partner)] = &cp
	return nil
}

func (s *Store) DeletePartner(_ context.Context, provider, partner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := maker.PartnerKey(provider, partner)
	if _, ok := s.partners[key]; !ok {
		return dmc.ErrPartnerNotFound
	}
	delete(s.partners, key)
	return nil
}

func (s *Store) ListPartners(_ context.Context, provider string) ([]*maker.Partner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*maker.Partner, 0)
	for _, p := range s.partners {
		if p.Provider == provider {
			cp := *p
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Partner < result[j].Partner })
	return result, nil
}

// ──────────────────────────────────────────────────
// Core methods
// ──────────────────────────────────────────────────

type atomicKey struct{}

// Atomic snapshots every table, runs fn and restores the snapshot if fn
// fails. Nested calls join the outer block.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(atomicKey{}) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snap := s.tables.clone()
	s.mu.RUnlock()

	if err := fn(context.WithValue(ctx, atomicKey{}, s)); err != nil {
		s.mu.Lock()
		s.tables = snap
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) Migrate(_ context.Context) error {
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	return nil
}

func (s *Store) Close() error {
	return nil
}

func page[T any](items []T, offset, limit int) []T {
	start := offset
	if start > len(items) {
		start = len(items)
	}
	end := start + limit
	if limit <= 0 || end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
