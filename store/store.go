package store

import (
	"context"
	"time"

	"github.com/xraph/dmc/account"
	"github.com/xraph/dmc/bill"
	"github.com/xraph/dmc/challenge"
	"github.com/xraph/dmc/config"
	"github.com/xraph/dmc/id"
	"github.com/xraph/dmc/maker"
	"github.com/xraph/dmc/order"
	"github.com/xraph/dmc/types"
)

// Well-known meta keys.
const (
	MetaClock     = "clock"      // last committed call time, unix seconds
	MetaStateRoot = "state_root" // rolling receipt root
	MetaStateSeq  = "state_seq"  // last receipt sequence
	MetaSeqPrefix = "seq/"       // id sequences, one per id prefix
)

// Store is the unified storage interface for all market entities.
// Instead of embedding the sub-interfaces, we explicitly declare all methods
// to avoid naming conflicts.
type Store interface {
	// Account methods
	GetBalance(ctx context.Context, owner string, sym types.Symbol) (*account.Balance, error)
	PutBalance(ctx context.Context, b *account.Balance) error
	DeleteBalance(ctx context.Context, owner string, sym types.Symbol) error
	ListLocked(ctx context.Context, owner string, sym types.Symbol) ([]*account.Locked, error)
	PutLocked(ctx context.Context, l *account.Locked) error
	DeleteLocked(ctx context.Context, owner string, sym types.Symbol, unlockAt time.Time) error
	GetSupply(ctx context.Context, sym types.Symbol) (*account.Supply, error)
	PutSupply(ctx context.Context, s *account.Supply) error

	// Config methods
	GetConfig(ctx context.Context, key config.Key) (*config.Entry, error)
	PutConfig(ctx context.Context, e *config.Entry) error
	ListConfig(ctx context.Context) ([]*config.Entry, error)

	// Meta methods
	GetMeta(ctx context.Context, key string) ([]byte, error)
	PutMeta(ctx context.Context, key string, value []byte) error

	// Bill methods
	GetBill(ctx context.Context, billID id.BillID) (*bill.Bill, error)
	PutBill(ctx context.Context, b *bill.Bill) error
	DeleteBill(ctx context.Context, billID id.BillID) error
	ListBills(ctx context.Context, opts bill.ListOpts) ([]*bill.Bill, error)

	// Order methods
	GetOrder(ctx context.Context, orderID id.OrderID) (*order.Order, error)
	PutOrder(ctx context.Context, o *order.Order) error
	ListOrders(ctx context.Context, opts order.ListOpts) ([]*order.Order, error)

	// Challenge methods
	GetChallenge(ctx context.Context, orderID id.OrderID) (*challenge.Challenge, error)
	PutChallenge(ctx context.Context, c *challenge.Challenge) error

	// Maker methods
	GetMaker(ctx context.Context, provider string) (*maker.Maker, error)
	PutMaker(ctx context.Context, m *maker.Maker) error
	DeleteMaker(ctx context.Context, provider string) error
	ListMakersBelowRate(ctx context.Context, rate types.Fixed, limit int) ([]*maker.Maker, error)
	GetPartner(ctx context.Context, provider, partner string) (*maker.Partner, error)
	PutPartner(ctx context.Context, p *maker.Partner) error
	DeletePartner(ctx context.Context, provider, partner string) error
	ListPartners(ctx context.Context, provider string) ([]*maker.Partner, error)

	// Atomic runs fn so that every write it makes through the store bound
	// to ctx is applied together or, where the backend can roll back, not
	// at all.
	Atomic(ctx context.Context, fn func(ctx context.Context) error) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Compile-time checks that the unified interface satisfies every
// per-entity store.
var (
	_ account.Store   = (Store)(nil)
	_ config.Store    = (Store)(nil)
	_ bill.Store      = (Store)(nil)
	_ order.Store     = (Store)(nil)
	_ challenge.Store = (Store)(nil)
	_ maker.Store     = (Store)(nil)
)
