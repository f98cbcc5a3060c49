package dmc

import (
	"context"
	"encoding/binary"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/xraph/dmc/config"
	"github.com/xraph/dmc/journal"
	"github.com/xraph/dmc/plugin"
	"github.com/xraph/dmc/store"
)

// DefaultSystemAccount receives protocol fees and liquidation penalties and
// is the only principal allowed to change tunables.
const DefaultSystemAccount = "dmc.system"

const (
	defaultConfigCacheSize = 64
	defaultBatchLimit      = 100

	// MaxLiquidationBatch bounds the makers a single Liquidate call visits.
	MaxLiquidationBatch = 20
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// Market is the settlement engine. Every mutating call runs to completion
// under one lock, inside a unit of work that is either committed whole or
// discarded.
type Market struct {
	mu      sync.Mutex
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger
	clock   Clock

	system     string
	batchLimit int
	cacheSize  int
	tunables   *lru.Cache
}

// New creates a new Market instance.
func New(s store.Store, opts ...Option) *Market {
	m := &Market{
		store:      s,
		plugins:    plugin.NewRegistry(),
		logger:     slog.Default(),
		clock:      ClockFunc(time.Now),
		system:     DefaultSystemAccount,
		batchLimit: defaultBatchLimit,
		cacheSize:  defaultConfigCacheSize,
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.cacheSize <= 0 {
		m.cacheSize = defaultConfigCacheSize
	}
	m.tunables, _ = lru.New(m.cacheSize) //nolint:errcheck // only fails for a non-positive size

	return m
}

// Option configures a Market instance.
type Option func(*Market)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Market) {
		m.logger = logger
		m.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(m *Market) {
		_ = m.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithClock sets the time source.
func WithClock(c Clock) Option {
	return func(m *Market) {
		m.clock = c
	}
}

// WithSystemAccount sets the account that collects fees and penalties and
// administers tunables.
func WithSystemAccount(name string) Option {
	return func(m *Market) {
		if name != "" {
			m.system = name
		}
	}
}

// WithConfigCacheSize sets the number of tunables kept in the read cache.
func WithConfigCacheSize(n int) Option {
	return func(m *Market) {
		m.cacheSize = n
	}
}

// WithBatchLimit caps the number of orders a single SettleOrders call visits.
func WithBatchLimit(n int) Option {
	return func(m *Market) {
		if n > 0 {
			m.batchLimit = n
		}
	}
}

// Start migrates the store and initializes plugins.
func (m *Market) Start(ctx context.Context) error {
	if err := m.store.Migrate(ctx); err != nil {
		return err
	}

	m.plugins.EmitInit(ctx, m)

	m.logger.Info("market started",
		"system_account", m.system,
		"batch_limit", m.batchLimit,
		"config_cache", m.cacheSize,
	)

	return nil
}

// Stop shuts down plugins and closes the store.
func (m *Market) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx := context.Background()
	m.plugins.EmitShutdown(ctx)

	return m.store.Close()
}

// Store returns the underlying store.
func (m *Market) Store() store.Store { return m.store }

// Plugins returns the plugin registry.
func (m *Market) Plugins() *plugin.Registry { return m.plugins }

// SystemAccount returns the protocol account name.
func (m *Market) SystemAccount() string { return m.system }

// StateRoot returns the rolling receipt root and the sequence number of the
// last committed receipt.
func (m *Market) StateRoot(ctx context.Context) ([]byte, uint64, error) {
	root, err := m.store.GetMeta(ctx, store.MetaStateRoot)
	if err != nil && !IsNotFound(err) {
		return nil, 0, err
	}
	seq, err := m.metaUint(ctx, store.MetaStateSeq)
	if err != nil {
		return nil, 0, err
	}
	return root, seq, nil
}

func (m *Market) metaUint(ctx context.Context, key string) (uint64, error) {
	b, err := m.store.GetMeta(ctx, key)
	if err != nil {
		if IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	return decodeUint(b), nil
}

// ──────────────────────────────────────────────────
// Unit of work
// ──────────────────────────────────────────────────

// exec runs fn as one atomic call.
func (m *Market) exec(ctx context.Context, op string, fn func(t *txn) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.run(ctx, op, fn)
}

// run executes fn in a fresh unit of work. The caller holds m.mu.
func (m *Market) run(ctx context.Context, op string, fn func(t *txn) error) error {
	t, err := m.begin(ctx)
	if err != nil {
		return err
	}

	if err := fn(t); err != nil {
		m.logger.Debug("call rejected", "op", op, "principal", t.principal, "error", err)
		return err
	}

	if err := m.commit(t); err != nil {
		m.logger.Error("commit failed", "op", op, "error", err)
		return err
	}

	m.dispatch(t)
	return nil
}

// view runs fn against a unit of work that is never committed. Reads see
// records replayed to now without persisting the replay.
func (m *Market) view(ctx context.Context, fn func(t *txn) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.begin(ctx)
	if err != nil {
		return err
	}
	return fn(t)
}

func (m *Market) begin(ctx context.Context) (*txn, error) {
	t := newTxn(ctx, m)
	t.principal, _ = PrincipalFrom(ctx)

	last, err := m.metaUint(ctx, store.MetaClock)
	if err != nil {
		return nil, err
	}
	now := m.clock.Now().UTC().Truncate(time.Second)
	if now.Unix() < int64(last) {
		now = time.Unix(int64(last), 0).UTC()
	}
	t.now = now
	t.lastClock = last

	root, _, err := m.StateRoot(ctx)
	if err != nil {
		return nil, err
	}
	seq, err := m.metaUint(ctx, store.MetaStateSeq)
	if err != nil {
		return nil, err
	}
	t.journal = journal.New(seq, root)

	return t, nil
}

func (m *Market) commit(t *txn) error {
	if uint64(t.now.Unix()) > t.lastClock {
		t.meta.set(store.MetaClock, encodeUint(uint64(t.now.Unix())))
	}
	if len(t.journal.Receipts()) > 0 {
		t.meta.set(store.MetaStateRoot, t.journal.Root())
		t.meta.set(store.MetaStateSeq, encodeUint(t.journal.Seq()))
	}

	return m.store.Atomic(t.ctx, t.flush)
}

// dispatch refreshes caches and delivers plugin events for a committed call.
func (m *Market) dispatch(t *txn) {
	for _, k := range t.configs.keys {
		if s := t.configs.slots[k]; s.dirty && !s.deleted {
			m.tunables.Add(config.Key(k), s.v.Value)
		}
	}

	for _, ev := range t.events {
		ev(t.ctx, m.plugins)
	}
	for _, r := range t.journal.Receipts() {
		m.plugins.EmitReceipt(t.ctx, r)
	}
}

func encodeUint(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func decodeUint(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}
