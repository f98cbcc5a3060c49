// Package badger implements store.Store on an embedded badger key-value
// database. Each record is one cbor value under a typed key prefix, and
// every Atomic block runs inside a single badger transaction.
package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v2"

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

// compile-time interface check
var _ store.Store = (*Store)(nil)

// ErrClosed is returned by every call made after Close.
var ErrClosed = errors.New("dmc/badger: store closed")

// Key prefixes. The separator is a zero byte so that account names
// containing '/' cannot collide.
const (
	sep = "\x00"

	prefixBalance   = "bal" + sep
	prefixLocked    = "lck" + sep
	prefixSupply    = "sup" + sep
	prefixConfig    = "cfg" + sep
	prefixMeta      = "meta" + sep
	prefixBill      = "bill" + sep
	prefixOrder     = "ord" + sep
	prefixChallenge = "chal" + sep
	prefixMaker     = "mk" + sep
	prefixPartner   = "pt" + sep
)

// Options configures the database and its value-log garbage collection.
type Options struct {
	// GcDiscardRatio is passed to RunValueLogGC.
	GcDiscardRatio float64

	// GcInterval is the pause between GC cycles. Zero disables automatic
	// garbage collection.
	GcInterval time.Duration

	// GcSleep is the pause between rounds of one GC cycle. Zero runs one
	// round per cycle.
	GcSleep time.Duration

	// Logger receives badger's internal log lines.
	Logger *slog.Logger

	badger.Options
}

// DefaultOptions returns the options used when New is given nil.
func DefaultOptions() *Options {
	opt := &Options{
		GcDiscardRatio: 0.5,
		GcInterval:     15 * time.Minute,
		GcSleep:        10 * time.Second,
		Options:        badger.DefaultOptions(""),
	}
	// Compacting on close only helps read-only reopen and slows Stop.
	opt.Options.CompactL0OnClose = false
	return opt
}

// InMemoryOptions returns options for a database that lives only in
// memory, mostly useful in tests.
func InMemoryOptions() *Options {
	opt := DefaultOptions()
	opt.GcInterval = 0
	opt.Options = opt.Options.WithInMemory(true)
	return opt
}

// slogLogger adapts slog to badger's printf-style logger.
type slogLogger struct {
	*slog.Logger
}

func (l slogLogger) Errorf(format string, args ...interface{}) {
	l.Error(fmt.Sprintf(format, args...))
}

func (l slogLogger) Warningf(format string, args ...interface{}) {
	l.Warn(fmt.Sprintf(format, args...))
}

func (l slogLogger) Infof(format string, args ...interface{}) {
	l.Info(fmt.Sprintf(format, args...))
}

func (l slogLogger) Debugf(format string, args ...interface{}) {
	l.Debug(fmt.Sprintf(format, args...))
}

// Store implements store.Store on badger.
type Store struct {
	db     *badger.DB
	logger *slog.Logger

	closeLk   sync.RWMutex
	closed    bool
	closeOnce sync.Once
	closing   chan struct{}

	gcDiscardRatio float64
	gcSleep        time.Duration
	gcInterval     time.Duration
}

// New opens (or creates) the database at path. path is ignored for
// in-memory options.
func New(path string, options *Options) (*Store, error) {
	if options == nil {
		options = DefaultOptions()
	}
	opt := options.Options
	if !opt.InMemory {
		opt.Dir = path
		opt.ValueDir = path
	}

	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "dmc/badger")
	opt.Logger = slogLogger{logger}

	gcSleep := options.GcSleep
	if gcSleep <= 0 {
		gcSleep = options.GcInterval
	}

	db, err := badger.Open(opt)
	if err != nil {
		return nil, fmt.Errorf("dmc/badger: open %q: %w", path, err)
	}

	s := &Store{
		db:             db,
		logger:         logger,
		closing:        make(chan struct{}),
		gcDiscardRatio: options.GcDiscardRatio,
		gcSleep:        gcSleep,
		gcInterval:     options.GcInterval,
	}
	if s.gcInterval > 0 {
		go s.periodicGC()
	}
	return s, nil
}

// DB returns the underlying badger database, or nil after Close.
func (s *Store) DB() *badger.DB {
	s.closeLk.RLock()
	defer s.closeLk.RUnlock()
	if s.closed {
		return nil
	}
	return s.db
}

// ──────────────────────────────────────────────────
// Transactions
// ──────────────────────────────────────────────────

type txnKey struct{}

func boundTxn(ctx context.Context) *badger.Txn {
	txn, _ := ctx.Value(txnKey{}).(*badger.Txn)
	return txn
}

// view runs fn in the transaction bound to ctx, or in a fresh read-only
// one.
func (s *Store) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if txn := boundTxn(ctx); txn != nil {
		return fn(txn)
	}
	s.closeLk.RLock()
	defer s.closeLk.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return s.db.View(fn)
}

// update runs fn in the transaction bound to ctx, or in a fresh one that
// commits on return.
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if txn := boundTxn(ctx); txn != nil {
		return fn(txn)
	}
	s.closeLk.RLock()
	defer s.closeLk.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return s.db.Update(fn)
}

// Atomic binds one read-write transaction to ctx for the duration of fn.
// The transaction commits when fn succeeds and is discarded otherwise.
// Nested calls join the outer transaction.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	if boundTxn(ctx) != nil {
		return fn(ctx)
	}
	s.closeLk.RLock()
	defer s.closeLk.RUnlock()
	if s.closed {
		return ErrClosed
	}

	txn := s.db.NewTransaction(true)
	defer txn.Discard()

	if err := fn(context.WithValue(ctx, txnKey{}, txn)); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return fmt.Errorf("dmc/badger: commit: %w", err)
	}
	return nil
}

// get decodes the record at key into v. It returns notFound when the key
// is absent.
func get(txn *badger.Txn, key string, v any, notFound error) error {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return notFound
	}
	if err != nil {
		return fmt.Errorf("dmc/badger: get: %w", err)
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return fmt.Errorf("dmc/badger: read value: %w", err)
	}
	return decode(val, v)
}

func set(txn *badger.Txn, key string, v any) error {
	val, err := encode(v)
	if err != nil {
		return err
	}
	if err := txn.Set([]byte(key), val); err != nil {
		return fmt.Errorf("dmc/badger: set: %w", err)
	}
	return nil
}

// remove deletes key, returning notFound when it is absent and notFound
// is non-nil.
func remove(txn *badger.Txn, key string, notFound error) error {
	if notFound != nil {
		if _, err := txn.Get([]byte(key)); errors.Is(err, badger.ErrKeyNotFound) {
			return notFound
		} else if err != nil {
			return fmt.Errorf("dmc/badger: get: %w", err)
		}
	}
	if err := txn.Delete([]byte(key)); err != nil {
		return fmt.Errorf("dmc/badger: delete: %w", err)
	}
	return nil
}

// scan calls fn with every value under prefix in key order, starting at
// from when it is non-empty. fn returns false to stop early.
func scan(txn *badger.Txn, prefix, from string, fn func(key, val []byte) (bool, error)) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	if from == "" {
		it.Rewind()
	} else {
		it.Seek([]byte(from))
	}
	for ; it.Valid(); it.Next() {
		item := it.Item()
		val, err := item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("dmc/badger: read value: %w", err)
		}
		more, err := fn(item.KeyCopy(nil), val)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return nil
}

// ──────────────────────────────────────────────────
// Account Store implementation
// ──────────────────────────────────────────────────

func balanceKey(owner string, sym types.Symbol) string {
	return prefixBalance + owner + sep + string(sym)
}

func lockedPrefix(owner string, sym types.Symbol) string {
	return prefixLocked + owner + sep + string(sym) + sep
}

func lockedKey(owner string, sym types.Symbol, unlockAt time.Time) string {
	return fmt.Sprintf("%s%020d", lockedPrefix(owner, sym), unixOf(unlockAt))
}

func (s *Store) GetBalance(ctx context.Context, owner string, sym types.Symbol) (*account.Balance, error) {
	var r balanceRecord
	err := s.view(ctx, func(txn *badger.Txn) error {
		return get(txn, balanceKey(owner, sym), &r, dmc.ErrBalanceNotFound)
	})
	if err != nil {
		return nil, err
	}
	return fromBalanceRecord(&r), nil
}

func (s *Store) PutBalance(ctx context.Context, b *account.Balance) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return set(txn, balanceKey(b.Owner, b.Symbol), toBalanceRecord(b))
	})
}

func (s *Store) DeleteBalance(ctx context.Context, owner string, sym types.Symbol) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return remove(txn, balanceKey(owner, sym), nil)
	})
}

func (s *Store) ListLocked(ctx context.Context, owner string, sym types.Symbol) ([]*account.Locked, error) {
	result := make([]*account.Locked, 0)
	err := s.view(ctx, func(txn *badger.Txn) error {
		return scan(txn, lockedPrefix(owner, sym), "", func(_, val []byte) (bool, error) {
			var r lockedRecord
			if err := decode(val, &r); err != nil {
				return false, err
			}
			result = append(result, fromLockedRecord(&r))
			return true, nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) PutLocked(ctx context.Context, l *account.Locked) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return set(txn, lockedKey(l.Owner, l.Symbol, l.UnlockAt), toLockedRecord(l))
	})
}

func (s *Store) DeleteLocked(ctx context.Context, owner string, sym types.Symbol, unlockAt time.Time) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return remove(txn, lockedKey(owner, sym, unlockAt), nil)
	})
}

func (s *Store) GetSupply(ctx context.Context, sym types.Symbol) (*account.Supply, error) {
	var r supplyRecord
	err := s.view(ctx, func(txn *badger.Txn) error {
		return get(txn, prefixSupply+string(sym), &r, dmc.ErrSupplyNotFound)
	})
	if err != nil {
		return nil, err
	}
	return &account.Supply{Symbol: types.Symbol(r.Symbol), Supply: r.Supply}, nil
}

func (s *Store) PutSupply(ctx context.Context, sp *account.Supply) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return set(txn, prefixSupply+string(sp.Symbol), &supplyRecord{Symbol: string(sp.Symbol), Supply: sp.Supply})
	})
}

// ──────────────────────────────────────────────────
// Config and meta Store implementation
// ──────────────────────────────────────────────────

func (s *Store) GetConfig(ctx context.Context, key config.Key) (*config.Entry, error) {
	var r configRecord
	err := s.view(ctx, func(txn *badger.Txn) error {
		return get(txn, prefixConfig+string(key), &r, dmc.ErrConfigNotFound)
	})
	if err != nil {
		return nil, err
	}
	return fromConfigRecord(&r), nil
}

func (s *Store) PutConfig(ctx context.Context, e *config.Entry) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return set(txn, prefixConfig+string(e.Key), toConfigRecord(e))
	})
}

func (s *Store) ListConfig(ctx context.Context) ([]*config.Entry, error) {
	result := make([]*config.Entry, 0)
	err := s.view(ctx, func(txn *badger.Txn) error {
		return scan(txn, prefixConfig, "", func(_, val []byte) (bool, error) {
			var r configRecord
			if err := decode(val, &r); err != nil {
				return false, err
			}
			result = append(result, fromConfigRecord(&r))
			return true, nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) GetMeta(ctx context.Context, key string) ([]byte, error) {
	var val []byte
	err := s.view(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixMeta + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return dmc.ErrMetaNotFound
		}
		if err != nil {
			return fmt.Errorf("dmc/badger: get: %w", err)
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (s *Store) PutMeta(ctx context.Context, key string, value []byte) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		if err := txn.Set([]byte(prefixMeta+key), append([]byte(nil), value...)); err != nil {
			return fmt.Errorf("dmc/badger: set: %w", err)
		}
		return nil
	})
}

// ──────────────────────────────────────────────────
// Bill Store implementation
// ──────────────────────────────────────────────────

func (s *Store) GetBill(ctx context.Context, billID id.BillID) (*bill.Bill, error) {
	var r billRecord
	err := s.view(ctx, func(txn *badger.Txn) error {
		return get(txn, prefixBill+billID.String(), &r, dmc.ErrBillNotFound)
	})
	if err != nil {
		return nil, err
	}
	return fromBillRecord(&r)
}

func (s *Store) PutBill(ctx context.Context, b *bill.Bill) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return set(txn, prefixBill+b.ID.String(), toBillRecord(b))
	})
}

func (s *Store) DeleteBill(ctx context.Context, billID id.BillID) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return remove(txn, prefixBill+billID.String(), dmc.ErrBillNotFound)
	})
}

// ListBills scans every bill; the provider filter and price order are
// applied in memory.
func (s *Store) ListBills(ctx context.Context, opts bill.ListOpts) ([]*bill.Bill, error) {
	result := make([]*bill.Bill, 0)
	err := s.view(ctx, func(txn *badger.Txn) error {
		return scan(txn, prefixBill, "", func(_, val []byte) (bool, error) {
			var r billRecord
			if err := decode(val, &r); err != nil {
				return false, err
			}
			if opts.Provider != "" && r.Provider != opts.Provider {
				return true, nil
			}
			b, err := fromBillRecord(&r)
			if err != nil {
				return false, err
			}
			result = append(result, b)
			return true, nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(result, func(i, j int) bool {
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

func (s *Store) GetOrder(ctx context.Context, orderID id.OrderID) (*order.Order, error) {
	var r orderRecord
	err := s.view(ctx, func(txn *badger.Txn) error {
		return get(txn, prefixOrder+orderID.String(), &r, dmc.ErrOrderNotFound)
	})
	if err != nil {
		return nil, err
	}
	return fromOrderRecord(&r)
}

func (s *Store) PutOrder(ctx context.Context, o *order.Order) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return set(txn, prefixOrder+o.ID.String(), toOrderRecord(o))
	})
}

// ListOrders walks the order keys, which sort by id, from just after
// opts.After.
func (s *Store) ListOrders(ctx context.Context, opts order.ListOpts) ([]*order.Order, error) {
	from, after := "", ""
	if !opts.After.IsNil() {
		after = prefixOrder + opts.After.String()
		from = after
	}

	result := make([]*order.Order, 0)
	err := s.view(ctx, func(txn *badger.Txn) error {
		return scan(txn, prefixOrder, from, func(key, val []byte) (bool, error) {
			if string(key) == after {
				return true, nil
			}
			var r orderRecord
			if err := decode(val, &r); err != nil {
				return false, err
			}
			if opts.Consumer != "" && r.Consumer != opts.Consumer {
				return true, nil
			}
			if opts.Provider != "" && r.Provider != opts.Provider {
				return true, nil
			}
			if opts.Active && order.State(r.State).Terminal() {
				return true, nil
			}
			o, err := fromOrderRecord(&r)
			if err != nil {
				return false, err
			}
			result = append(result, o)
			return opts.Limit <= 0 || len(result) < opts.Limit, nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) GetChallenge(ctx context.Context, orderID id.OrderID) (*challenge.Challenge, error) {
	var r challengeRecord
	err := s.view(ctx, func(txn *badger.Txn) error {
		return get(txn, prefixChallenge+orderID.String(), &r, dmc.ErrChallengeNotFound)
	})
	if err != nil {
		return nil, err
	}
	return fromChallengeRecord(&r)
}

func (s *Store) PutChallenge(ctx context.Context, c *challenge.Challenge) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return set(txn, prefixChallenge+c.OrderID.String(), toChallengeRecord(c))
	})
}

// ──────────────────────────────────────────────────
// Maker Store implementation
// ──────────────────────────────────────────────────

func partnerPrefix(provider string) string {
	return prefixPartner + provider + sep
}

func (s *Store) GetMaker(ctx context.Context, provider string) (*maker.Maker, error) {
	var r makerRecord
	err := s.view(ctx, func(txn *badger.Txn) error {
		return get(txn, prefixMaker+provider, &r, dmc.ErrMakerNotFound)
	})
	if err != nil {
		return nil, err
	}
	return fromMakerRecord(&r), nil
}

func (s *Store) PutMaker(ctx context.Context, m *maker.Maker) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return set(txn, prefixMaker+m.Provider, toMakerRecord(m))
	})
}

func (s *Store) DeleteMaker(ctx context.Context, provider string) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return remove(txn, prefixMaker+provider, dmc.ErrMakerNotFound)
	})
}

func (s *Store) ListMakersBelowRate(ctx context.Context, rate types.Fixed, limit int) ([]*maker.Maker, error) {
	result := make([]*maker.Maker, 0)
	err := s.view(ctx, func(txn *badger.Txn) error {
		return scan(txn, prefixMaker, "", func(_, val []byte) (bool, error) {
			var r makerRecord
			if err := decode(val, &r); err != nil {
				return false, err
			}
			if types.Fixed(r.CurrentRate) < rate {
				result = append(result, fromMakerRecord(&r))
			}
			return true, nil
		})
	})
	if err != nil {
		return nil, err
	}

	// Keys already sort by provider, so a stable sort on rate keeps the
	// provider tie-break.
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CurrentRate < result[j].CurrentRate
	})
	return page(result, 0, limit), nil
}

func (s *Store) GetPartner(ctx context.Context, provider, partner string) (*maker.Partner, error) {
	var r partnerRecord
	err := s.view(ctx, func(txn *badger.Txn) error {
		return get(txn, partnerPrefix(provider)+partner, &r, dmc.ErrPartnerNotFound)
	})
	if err != nil {
		return nil, err
	}
	return fromPartnerRecord(&r), nil
}

func (s *Store) PutPartner(ctx context.Context, p *maker.Partner) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return set(txn, partnerPrefix(p.Provider)+p.Partner, toPartnerRecord(p))
	})
}

func (s *Store) DeletePartner(ctx context.Context, provider, partner string) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return remove(txn, partnerPrefix(provider)+partner, dmc.ErrPartnerNotFound)
	})
}

func (s *Store) ListPartners(ctx context.Context, provider string) ([]*maker.Partner, error) {
	result := make([]*maker.Partner, 0)
	err := s.view(ctx, func(txn *badger.Txn) error {
		return scan(txn, partnerPrefix(provider), "", func(_, val []byte) (bool, error) {
			var r partnerRecord
			if err := decode(val, &r); err != nil {
				return false, err
			}
			result = append(result, fromPartnerRecord(&r))
			return true, nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// Core methods
// ──────────────────────────────────────────────────

// Migrate is a no-op; badger has no schema.
func (s *Store) Migrate(_ context.Context) error {
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	s.closeLk.RLock()
	defer s.closeLk.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		close(s.closing)
	})
	s.closeLk.Lock()
	defer s.closeLk.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	return s.db.Close()
}

// CollectGarbage runs value-log GC rounds until badger reports nothing
// left to rewrite.
func (s *Store) CollectGarbage() error {
	var err error
	for err == nil {
		err = s.gcOnce()
	}
	if errors.Is(err, badger.ErrNoRewrite) {
		return nil
	}
	return err
}

func (s *Store) gcOnce() error {
	s.closeLk.RLock()
	defer s.closeLk.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return s.db.RunValueLogGC(s.gcDiscardRatio)
}

// periodicGC schedules a GC cycle gcInterval after the previous one
// finished.
func (s *Store) periodicGC() {
	timer := time.NewTimer(s.gcInterval)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			err := s.gcOnce()
			switch {
			case err == nil:
				timer.Reset(s.gcSleep)
			case errors.Is(err, badger.ErrNoRewrite), errors.Is(err, badger.ErrRejected):
				timer.Reset(s.gcInterval)
			case errors.Is(err, ErrClosed):
				return
			default:
				s.logger.Error("value log gc failed", "error", err)
				timer.Reset(s.gcInterval)
			}
		case <-s.closing:
			return
		}
	}
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
