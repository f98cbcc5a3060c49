package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/dmc"
	"github.com/xraph/dmc/account"
	"github.com/xraph/dmc/bill"
	"github.com/xraph/dmc/challenge"
	"github.com/xraph/dmc/config"
	"github.com/xraph/dmc/id"
	"github.com/xraph/dmc/maker"
	"github.com/xraph/dmc/order"
	dmcstore "github.com/xraph/dmc/store"
	"github.com/xraph/dmc/types"
)

// Collection name constants.
const (
	colBalances = "dmc_balances"
	colLocked   = "dmc_locked"
	colBills    = "dmc_bills"
	colOrders   = "dmc_orders"
	colMakers   = "dmc_makers"
	colPartners = "dmc_partners"
)

// compile-time interface check
var _ dmcstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all DMC collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("dmc/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Atomic runs fn directly. Every write replaces the whole document, so
// documents written before a failure are not rolled back.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// upsert writes model as the full document stored under key.
func (s *Store) upsert(ctx context.Context, model any, key, what string) error {
	_, err := s.mdb.NewUpdate(model).
		Filter(bson.M{"_id": key}).
		SetUpdate(bson.M{"$set": model}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("dmc/mongo: put %s: %w", what, err)
	}
	return nil
}

// ==================== Account Store ====================

func (s *Store) GetBalance(ctx context.Context, owner string, sym types.Symbol) (*account.Balance, error) {
	var m balanceModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": account.BalanceKey(owner, sym)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, dmc.ErrBalanceNotFound
		}
		return nil, fmt.Errorf("dmc/mongo: get balance: %w", err)
	}
	return &account.Balance{Owner: m.Owner, Symbol: types.Symbol(m.Symbol), Amount: m.Amount}, nil
}

func (s *Store) PutBalance(ctx context.Context, b *account.Balance) error {
	m := toBalanceModel(b)
	return s.upsert(ctx, m, m.Key, "balance")
}

func (s *Store) DeleteBalance(ctx context.Context, owner string, sym types.Symbol) error {
	_, err := s.mdb.NewDelete((*balanceModel)(nil)).
		Filter(bson.M{"_id": account.BalanceKey(owner, sym)}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("dmc/mongo: delete balance: %w", err)
	}
	return nil
}

func (s *Store) ListLocked(ctx context.Context, owner string, sym types.Symbol) ([]*account.Locked, error) {
	var models []lockedModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"owner": owner, "symbol": string(sym)}).
		Sort(bson.D{{Key: "unlock_at", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("dmc/mongo: list locked: %w", err)
	}

	result := make([]*account.Locked, len(models))
	for i := range models {
		result[i] = fromLockedModel(&models[i])
	}
	return result, nil
}

func (s *Store) PutLocked(ctx context.Context, l *account.Locked) error {
	m := toLockedModel(l)
	return s.upsert(ctx, m, m.Key, "locked")
}

func (s *Store) DeleteLocked(ctx context.Context, owner string, sym types.Symbol, unlockAt time.Time) error {
	_, err := s.mdb.NewDelete((*lockedModel)(nil)).
		Filter(bson.M{"_id": account.LockedKey(owner, sym, unlockAt)}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("dmc/mongo: delete locked: %w", err)
	}
	return nil
}

func (s *Store) GetSupply(ctx context.Context, sym types.Symbol) (*account.Supply, error) {
	var m supplyModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": string(sym)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, dmc.ErrSupplyNotFound
		}
		return nil, fmt.Errorf("dmc/mongo: get supply: %w", err)
	}
	return &account.Supply{Symbol: types.Symbol(m.Symbol), Supply: m.Supply}, nil
}

func (s *Store) PutSupply(ctx context.Context, sp *account.Supply) error {
	m := &supplyModel{Symbol: string(sp.Symbol), Supply: sp.Supply}
	return s.upsert(ctx, m, m.Symbol, "supply")
}

// ==================== Config Store ====================

func (s *Store) GetConfig(ctx context.Context, key config.Key) (*config.Entry, error) {
	var m configModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": string(key)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, dmc.ErrConfigNotFound
		}
		return nil, fmt.Errorf("dmc/mongo: get config: %w", err)
	}
	return fromConfigModel(&m), nil
}

func (s *Store) PutConfig(ctx context.Context, e *config.Entry) error {
	m := toConfigModel(e)
	return s.upsert(ctx, m, m.Key, "config")
}

func (s *Store) ListConfig(ctx context.Context) ([]*config.Entry, error) {
	var models []configModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{}).
		Sort(bson.D{{Key: "_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("dmc/mongo: list config: %w", err)
	}

	result := make([]*config.Entry, len(models))
	for i := range models {
		result[i] = fromConfigModel(&models[i])
	}
	return result, nil
}

// ==================== Meta Store ====================

func (s *Store) GetMeta(ctx context.Context, key string) ([]byte, error) {
	var m metaModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": key}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, dmc.ErrMetaNotFound
		}
		return nil, fmt.Errorf("dmc/mongo: get meta: %w", err)
	}
	return m.Value, nil
}

func (s *Store) PutMeta(ctx context.Context, key string, value []byte) error {
	m := &metaModel{Key: key, Value: append([]byte(nil), value...)}
	return s.upsert(ctx, m, key, "meta")
}

// ==================== Bill Store ====================

func (s *Store) GetBill(ctx context.Context, billID id.BillID) (*bill.Bill, error) {
	var m billModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": billID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, dmc.ErrBillNotFound
		}
		return nil, fmt.Errorf("dmc/mongo: get bill: %w", err)
	}
	return fromBillModel(&m)
}

func (s *Store) PutBill(ctx context.Context, b *bill.Bill) error {
	m := toBillModel(b)
	return s.upsert(ctx, m, m.ID, "bill")
}

func (s *Store) DeleteBill(ctx context.Context, billID id.BillID) error {
	res, err := s.mdb.NewDelete((*billModel)(nil)).
		Filter(bson.M{"_id": billID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("dmc/mongo: delete bill: %w", err)
	}
	if res.DeletedCount() == 0 {
		return dmc.ErrBillNotFound
	}
	return nil
}

func (s *Store) ListBills(ctx context.Context, opts bill.ListOpts) ([]*bill.Bill, error) {
	var models []billModel

	filter := bson.M{}
	if opts.Provider != "" {
		filter["provider"] = opts.Provider
	}

	sort := bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}
	if opts.OrderBy == bill.OrderByPrice {
		sort = append(bson.D{{Key: "price", Value: 1}}, sort...)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(sort)

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("dmc/mongo: list bills: %w", err)
	}

	result := make([]*bill.Bill, len(models))
	for i := range models {
		b, err := fromBillModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = b
	}
	return result, nil
}

// ==================== Order Store ====================

func (s *Store) GetOrder(ctx context.Context, orderID id.OrderID) (*order.Order, error) {
	var m orderModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": orderID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, dmc.ErrOrderNotFound
		}
		return nil, fmt.Errorf("dmc/mongo: get order: %w", err)
	}
	return fromOrderModel(&m)
}

func (s *Store) PutOrder(ctx context.Context, o *order.Order) error {
	m := toOrderModel(o)
	return s.upsert(ctx, m, m.ID, "order")
}

func (s *Store) ListOrders(ctx context.Context, opts order.ListOpts) ([]*order.Order, error) {
	var models []orderModel

	filter := bson.M{}
	if opts.Consumer != "" {
		filter["consumer"] = opts.Consumer
	}
	if opts.Provider != "" {
		filter["provider"] = opts.Provider
	}
	if opts.Active {
		filter["state"] = bson.M{"$nin": bson.A{string(order.StateEnd), string(order.StateCancel)}}
	}
	if !opts.After.IsNil() {
		filter["_id"] = bson.M{"$gt": opts.After.String()}
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("dmc/mongo: list orders: %w", err)
	}

	result := make([]*order.Order, len(models))
	for i := range models {
		o, err := fromOrderModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = o
	}
	return result, nil
}

// ==================== Challenge Store ====================

func (s *Store) GetChallenge(ctx context.Context, orderID id.OrderID) (*challenge.Challenge, error) {
	var m challengeModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": orderID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, dmc.ErrChallengeNotFound
		}
		return nil, fmt.Errorf("dmc/mongo: get challenge: %w", err)
	}
	return fromChallengeModel(&m)
}

func (s *Store) PutChallenge(ctx context.Context, c *challenge.Challenge) error {
	m := toChallengeModel(c)
	return s.upsert(ctx, m, m.OrderID, "challenge")
}

// ==================== Maker Store ====================

func (s *Store) GetMaker(ctx context.Context, provider string) (*maker.Maker, error) {
	var m makerModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": provider}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, dmc.ErrMakerNotFound
		}
		return nil, fmt.Errorf("dmc/mongo: get maker: %w", err)
	}
	return fromMakerModel(&m), nil
}

func (s *Store) PutMaker(ctx context.Context, mk *maker.Maker) error {
	m := toMakerModel(mk)
	return s.upsert(ctx, m, m.Provider, "maker")
}

func (s *Store) DeleteMaker(ctx context.Context, provider string) error {
	res, err := s.mdb.NewDelete((*makerModel)(nil)).
		Filter(bson.M{"_id": provider}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("dmc/mongo: delete maker: %w", err)
	}
	if res.DeletedCount() == 0 {
		return dmc.ErrMakerNotFound
	}
	return nil
}

func (s *Store) ListMakersBelowRate(ctx context.Context, rate types.Fixed, limit int) ([]*maker.Maker, error) {
	var models []makerModel
	q := s.mdb.NewFind(&models).
		Filter(bson.M{"current_rate": bson.M{"$lt": int64(rate)}}).
		Sort(bson.D{{Key: "current_rate", Value: 1}, {Key: "_id", Value: 1}})
	if limit > 0 {
		q = q.Limit(int64(limit))
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("dmc/mongo: list makers below rate: %w", err)
	}

	result := make([]*maker.Maker, len(models))
	for i := range models {
		result[i] = fromMakerModel(&models[i])
	}
	return result, nil
}

func (s *Store) GetPartner(ctx context.Context, provider, partner string) (*maker.Partner, error) {
	var m partnerModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": maker.PartnerKey(provider, partner)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, dmc.ErrPartnerNotFound
		}
		return nil, fmt.Errorf("dmc/mongo: get partner: %w", err)
	}
	return fromPartnerModel(&m), nil
}

func (s *Store) PutPartner(ctx context.Context, p *maker.Partner) error {
	m := toPartnerModel(p)
	return s.upsert(ctx, m, m.Key, "partner")
}

func (s *Store) DeletePartner(ctx context.Context, provider, partner string) error {
	res, err := s.mdb.NewDelete((*partnerModel)(nil)).
		Filter(bson.M{"_id": maker.PartnerKey(provider, partner)}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("dmc/mongo: delete partner: %w", err)
	}
	if res.DeletedCount() == 0 {
		return dmc.ErrPartnerNotFound
	}
	return nil
}

func (s *Store) ListPartners(ctx context.Context, provider string) ([]*maker.Partner, error) {
	var models []partnerModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"provider": provider}).
		Sort(bson.D{{Key: "partner", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("dmc/mongo: list partners: %w", err)
	}

	result := make([]*maker.Partner, len(models))
	for i := range models {
		result[i] = fromPartnerModel(&models[i])
	}
	return result, nil
}

// ==================== Helpers ====================

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all DMC collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colBalances: {
			{Keys: bson.D{{Key: "owner", Value: 1}, {Key: "symbol", Value: 1}}},
		},
		colLocked: {
			{Keys: bson.D{{Key: "owner", Value: 1}, {Key: "symbol", Value: 1}, {Key: "unlock_at", Value: 1}}},
		},
		colBills: {
			{Keys: bson.D{{Key: "provider", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "price", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		colOrders: {
			{Keys: bson.D{{Key: "consumer", Value: 1}, {Key: "_id", Value: 1}}},
			{Keys: bson.D{{Key: "provider", Value: 1}, {Key: "_id", Value: 1}}},
			{Keys: bson.D{{Key: "state", Value: 1}, {Key: "_id", Value: 1}}},
		},
		colMakers: {
			{Keys: bson.D{{Key: "current_rate", Value: 1}, {Key: "_id", Value: 1}}},
		},
		colPartners: {
			{
				Keys:    bson.D{{Key: "provider", Value: 1}, {Key: "partner", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
	}
}
