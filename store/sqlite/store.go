package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

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

// compile-time interface check
var _ dmcstore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("dmc/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("dmc/sqlite: migration failed: %w", err)
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

// Atomic runs fn directly. Every write is an upsert of the row's full
// state; rows written before a failure are not rolled back.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// ==================== Account Store ====================

func (s *Store) GetBalance(ctx context.Context, owner string, sym types.Symbol) (*account.Balance, error) {
	m := new(balanceModel)
	err := s.sdb.NewSelect(m).
		Where("owner = ?", owner).
		Where("symbol = ?", string(sym)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, dmc.ErrBalanceNotFound
		}
		return nil, fmt.Errorf("dmc/sqlite: get balance: %w", err)
	}
	return &account.Balance{Owner: m.Owner, Symbol: types.Symbol(m.Symbol), Amount: m.Amount}, nil
}

func (s *Store) PutBalance(ctx context.Context, b *account.Balance) error {
	m := &balanceModel{Owner: b.Owner, Symbol: string(b.Symbol), Amount: b.Amount}
	_, err := s.sdb.NewInsert(m).
		OnConflict("(owner, symbol) DO UPDATE").
		Set("amount = EXCLUDED.amount").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("dmc/sqlite: put balance: %w", err)
	}
	return nil
}

func (s *Store) DeleteBalance(ctx context.Context, owner string, sym types.Symbol) error {
	_, err := s.sdb.NewDelete((*balanceModel)(nil)).
		Where("owner = ?", owner).
		Where("symbol = ?", string(sym)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("dmc/sqlite: delete balance: %w", err)
	}
	return nil
}

func (s *Store) ListLocked(ctx context.Context, owner string, sym types.Symbol) ([]*account.Locked, error) {
	var models []lockedModel
	err := s.sdb.NewSelect(&models).
		Where("owner = ?", owner).
		Where("symbol = ?", string(sym)).
		OrderExpr("unlock_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("dmc/sqlite: list locked: %w", err)
	}

	result := make([]*account.Locked, len(models))
	for i := range models {
		result[i] = fromLockedModel(&models[i])
	}
	return result, nil
}

func (s *Store) PutLocked(ctx context.Context, l *account.Locked) error {
	m := &lockedModel{Owner: l.Owner, Symbol: string(l.Symbol), UnlockAt: l.UnlockAt, Amount: l.Amount}
	_, err := s.sdb.NewInsert(m).
		OnConflict("(owner, symbol, unlock_at) DO UPDATE").
		Set("amount = EXCLUDED.amount").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("dmc/sqlite: put locked: %w", err)
	}
	return nil
}

func (s *Store) DeleteLocked(ctx context.Context, owner string, sym types.Symbol, unlockAt time.Time) error {
	_, err := s.sdb.NewDelete((*lockedModel)(nil)).
		Where("owner = ?", owner).
		Where("symbol = ?", string(sym)).
		Where("unlock_at = ?", unlockAt).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("dmc/sqlite: delete locked: %w", err)
	}
	return nil
}

func (s *Store) GetSupply(ctx context.Context, sym types.Symbol) (*account.Supply, error) {
	m := new(supplyModel)
	err := s.sdb.NewSelect(m).
		Where("symbol = ?", string(sym)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, dmc.ErrSupplyNotFound
		}
		return nil, fmt.Errorf("dmc/sqlite: get supply: %w", err)
	}
	return &account.Supply{Symbol: types.Symbol(m.Symbol), Supply: m.Supply}, nil
}

func (s *Store) PutSupply(ctx context.Context, sp *account.Supply) error {
	m := &supplyModel{Symbol: string(sp.Symbol), Supply: sp.Supply}
	_, err := s.sdb.NewInsert(m).
		OnConflict("(symbol) DO UPDATE").
		Set("supply = EXCLUDED.supply").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("dmc/sqlite: put supply: %w", err)
	}
	return nil
}

// ==================== Config Store ====================

func (s *Store) GetConfig(ctx context.Context, key config.Key) (*config.Entry, error) {
	m := new(configModel)
	err := s.sdb.NewSelect(m).
		Where("key = ?", string(key)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, dmc.ErrConfigNotFound
		}
		return nil, fmt.Errorf("dmc/sqlite: get config: %w", err)
	}
	return fromConfigModel(m), nil
}

func (s *Store) PutConfig(ctx context.Context, e *config.Entry) error {
	_, err := s.sdb.NewInsert(toConfigModel(e)).
		OnConflict("(key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("dmc/sqlite: put config: %w", err)
	}
	return nil
}

func (s *Store) ListConfig(ctx context.Context) ([]*config.Entry, error) {
	var models []configModel
	if err := s.sdb.NewSelect(&models).OrderExpr("key ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("dmc/sqlite: list config: %w", err)
	}

	result := make([]*config.Entry, len(models))
	for i := range models {
		result[i] = fromConfigModel(&models[i])
	}
	return result, nil
}

// ==================== Meta Store ====================

func (s *Store) GetMeta(ctx context.Context, key string) ([]byte, error) {
	m := new(metaModel)
	err := s.sdb.NewSelect(m).
		Where("key = ?", key).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, dmc.ErrMetaNotFound
		}
		return nil, fmt.Errorf("dmc/sqlite: get meta: %w", err)
	}
	return m.Value, nil
}

func (s *Store) PutMeta(ctx context.Context, key string, value []byte) error {
	m := &metaModel{Key: key, Value: append([]byte(nil), value...)}
	_, err := s.sdb.NewInsert(m).
		OnConflict("(key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("dmc/sqlite: put meta: %w", err)
	}
	return nil
}

// ==================== Bill Store ====================

func (s *Store) GetBill(ctx context.Context, billID id.BillID) (*bill.Bill, error) {
	m := new(billModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", billID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, dmc.ErrBillNotFound
		}
		return nil, fmt.Errorf("dmc/sqlite: get bill: %w", err)
	}
	return fromBillModel(m)
}

func (s *Store) PutBill(ctx context.Context, b *bill.Bill) error {
	_, err := s.sdb.NewInsert(toBillModel(b)).
		OnConflict("(id) DO UPDATE").
		Set("unmatched = EXCLUDED.unmatched").
		Set("matched = EXCLUDED.matched").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("dmc/sqlite: put bill: %w", err)
	}
	return nil
}

func (s *Store) DeleteBill(ctx context.Context, billID id.BillID) error {
	res, err := s.sdb.NewDelete((*billModel)(nil)).
		Where("id = ?", billID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("dmc/sqlite: delete bill: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return dmc.ErrBillNotFound
	}
	return nil
}

func (s *Store) ListBills(ctx context.Context, opts bill.ListOpts) ([]*bill.Bill, error) {
	var models []billModel
	q := s.sdb.NewSelect(&models)

	if opts.Provider != "" {
		q = q.Where("provider = ?", opts.Provider)
	}
	if opts.OrderBy == bill.OrderByPrice {
		q = q.OrderExpr("price ASC, created_at ASC, id ASC")
	} else {
		q = q.OrderExpr("created_at ASC, id ASC")
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("dmc/sqlite: list bills: %w", err)
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
	m := new(orderModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", orderID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, dmc.ErrOrderNotFound
		}
		return nil, fmt.Errorf("dmc/sqlite: get order: %w", err)
	}
	return fromOrderModel(m)
}

func (s *Store) PutOrder(ctx context.Context, o *order.Order) error {
	_, err := s.sdb.NewInsert(toOrderModel(o)).
		OnConflict("(id) DO UPDATE").
		Set("user_pledge = EXCLUDED.user_pledge").
		Set("lock_pledge = EXCLUDED.lock_pledge").
		Set("settlement_pledge = EXCLUDED.settlement_pledge").
		Set("miner_pledge = EXCLUDED.miner_pledge").
		Set("state = EXCLUDED.state").
		Set("deliver_start_date = EXCLUDED.deliver_start_date").
		Set("latest_settlement_date = EXCLUDED.latest_settlement_date").
		Set("claim_date = EXCLUDED.claim_date").
		Set("end_date = EXCLUDED.end_date").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("dmc/sqlite: put order: %w", err)
	}
	return nil
}

func (s *Store) ListOrders(ctx context.Context, opts order.ListOpts) ([]*order.Order, error) {
	var models []orderModel
	q := s.sdb.NewSelect(&models)

	if opts.Consumer != "" {
		q = q.Where("consumer = ?", opts.Consumer)
	}
	if opts.Provider != "" {
		q = q.Where("provider = ?", opts.Provider)
	}
	if opts.Active {
		q = q.Where("state NOT IN (?, ?)", string(order.StateEnd), string(order.StateCancel))
	}
	if !opts.After.IsNil() {
		q = q.Where("id > ?", opts.After.String())
	}
	q = q.OrderExpr("id ASC")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("dmc/sqlite: list orders: %w", err)
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
	m := new(challengeModel)
	err := s.sdb.NewSelect(m).
		Where("order_id = ?", orderID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, dmc.ErrChallengeNotFound
		}
		return nil, fmt.Errorf("dmc/sqlite: get challenge: %w", err)
	}
	return fromChallengeModel(m)
}

func (s *Store) PutChallenge(ctx context.Context, c *challenge.Challenge) error {
	_, err := s.sdb.NewInsert(toChallengeModel(c)).
		OnConflict("(order_id) DO UPDATE").
		Set("pre_merkle_root = EXCLUDED.pre_merkle_root").
		Set("pre_block_count = EXCLUDED.pre_block_count").
		Set("pre_submitter = EXCLUDED.pre_submitter").
		Set("merkle_root = EXCLUDED.merkle_root").
		Set("block_count = EXCLUDED.block_count").
		Set("data_id = EXCLUDED.data_id").
		Set("hash_data = EXCLUDED.hash_data").
		Set("nonce = EXCLUDED.nonce").
		Set("challenge_times = EXCLUDED.challenge_times").
		Set("state = EXCLUDED.state").
		Set("challenge_date = EXCLUDED.challenge_date").
		Set("user_lock = EXCLUDED.user_lock").
		Set("miner_pay = EXCLUDED.miner_pay").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("dmc/sqlite: put challenge: %w", err)
	}
	return nil
}

// ==================== Maker Store ====================

func (s *Store) GetMaker(ctx context.Context, provider string) (*maker.Maker, error) {
	m := new(makerModel)
	err := s.sdb.NewSelect(m).
		Where("provider = ?", provider).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, dmc.ErrMakerNotFound
		}
		return nil, fmt.Errorf("dmc/sqlite: get maker: %w", err)
	}
	return fromMakerModel(m), nil
}

func (s *Store) PutMaker(ctx context.Context, mk *maker.Maker) error {
	_, err := s.sdb.NewInsert(toMakerModel(mk)).
		OnConflict("(provider) DO UPDATE").
		Set("total_staked = EXCLUDED.total_staked").
		Set("total_weight = EXCLUDED.total_weight").
		Set("miner_rate = EXCLUDED.miner_rate").
		Set("current_rate = EXCLUDED.current_rate").
		Set("minted = EXCLUDED.minted").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("dmc/sqlite: put maker: %w", err)
	}
	return nil
}

func (s *Store) DeleteMaker(ctx context.Context, provider string) error {
	res, err := s.sdb.NewDelete((*makerModel)(nil)).
		Where("provider = ?", provider).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("dmc/sqlite: delete maker: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return dmc.ErrMakerNotFound
	}
	return nil
}

func (s *Store) ListMakersBelowRate(ctx context.Context, rate types.Fixed, limit int) ([]*maker.Maker, error) {
	var models []makerModel
	q := s.sdb.NewSelect(&models).
		Where("current_rate < ?", int64(rate)).
		OrderExpr("current_rate ASC, provider ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("dmc/sqlite: list makers below rate: %w", err)
	}

	result := make([]*maker.Maker, len(models))
	for i := range models {
		result[i] = fromMakerModel(&models[i])
	}
	return result, nil
}

func (s *Store) GetPartner(ctx context.Context, provider, partner string) (*maker.Partner, error) {
	m := new(partnerModel)
	err := s.sdb.NewSelect(m).
		Where("provider = ?", provider).
		Where("partner = ?", partner).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, dmc.ErrPartnerNotFound
		}
		return nil, fmt.Errorf("dmc/sqlite: get partner: %w", err)
	}
	return fromPartnerModel(m), nil
}

func (s *Store) PutPartner(ctx context.Context, p *maker.Partner) error {
	_, err := s.sdb.NewInsert(toPartnerModel(p)).
		OnConflict("(provider, partner) DO UPDATE").
		Set("weight = EXCLUDED.weight").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("dmc/sqlite: put partner: %w", err)
	}
	return nil
}

func (s *Store) DeletePartner(ctx context.Context, provider, partner string) error {
	res, err := s.sdb.NewDelete((*partnerModel)(nil)).
		Where("provider = ?", provider).
		Where("partner = ?", partner).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("dmc/sqlite: delete partner: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return dmc.ErrPartnerNotFound
	}
	return nil
}

func (s *Store) ListPartners(ctx context.Context, provider string) ([]*maker.Partner, error) {
	var models []partnerModel
	err := s.sdb.NewSelect(&models).
		Where("provider = ?", provider).
		OrderExpr("partner ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("dmc/sqlite: list partners: %w", err)
	}

	result := make([]*maker.Partner, len(models))
	for i := range models {
		result[i] = fromPartnerModel(&models[i])
	}
	return result, nil
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
