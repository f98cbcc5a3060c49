package mongo

import (
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/dmc/account"
	"github.com/xraph/dmc/bill"
	"github.com/xraph/dmc/challenge"
	"github.com/xraph/dmc/config"
	"github.com/xraph/dmc/id"
	"github.com/xraph/dmc/maker"
	"github.com/xraph/dmc/order"
	"github.com/xraph/dmc/types"
)

// ==================== Account models ====================

type balanceModel struct {
	grove.BaseModel `grove:"table:dmc_balances" bson:"-"`

	Key    string `grove:"id,pk"  bson:"_id"`
	Owner  string `grove:"owner"  bson:"owner"`
	Symbol string `grove:"symbol" bson:"symbol"`
	Amount int64  `grove:"amount" bson:"amount"`
}

func toBalanceModel(b *account.Balance) *balanceModel {
	return &balanceModel{
		Key:    account.BalanceKey(b.Owner, b.Symbol),
		Owner:  b.Owner,
		Symbol: string(b.Symbol),
		Amount: b.Amount,
	}
}

type lockedModel struct {
	grove.BaseModel `grove:"table:dmc_locked" bson:"-"`

	Key      string    `grove:"id,pk"     bson:"_id"`
	Owner    string    `grove:"owner"     bson:"owner"`
	Symbol   string    `grove:"symbol"    bson:"symbol"`
	UnlockAt time.Time `grove:"unlock_at" bson:"unlock_at"`
	Amount   int64     `grove:"amount"    bson:"amount"`
}

func toLockedModel(l *account.Locked) *lockedModel {
	return &lockedModel{
		Key:      account.LockedKey(l.Owner, l.Symbol, l.UnlockAt),
		Owner:    l.Owner,
		Symbol:   string(l.Symbol),
		UnlockAt: l.UnlockAt,
		Amount:   l.Amount,
	}
}

func fromLockedModel(m *lockedModel) *account.Locked {
	return &account.Locked{
		Owner:    m.Owner,
		Symbol:   types.Symbol(m.Symbol),
		Amount:   m.Amount,
		UnlockAt: m.UnlockAt.UTC(),
	}
}

type supplyModel struct {
	grove.BaseModel `grove:"table:dmc_supply" bson:"-"`

	Symbol string `grove:"id,pk"  bson:"_id"`
	Supply int64  `grove:"supply" bson:"supply"`
}

// ==================== Config models ====================

type configModel struct {
	grove.BaseModel `grove:"table:dmc_config" bson:"-"`

	Key       string    `grove:"id,pk"      bson:"_id"`
	Value     int64     `grove:"value"      bson:"value"`
	CreatedAt time.Time `grove:"created_at" bson:"created_at"`
	UpdatedAt time.Time `grove:"updated_at" bson:"updated_at"`
}

func toConfigModel(e *config.Entry) *configModel {
	return &configModel{
		Key:       string(e.Key),
		Value:     int64(e.Value),
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}

func fromConfigModel(m *configModel) *config.Entry {
	return &config.Entry{
		Entity: types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		Key:    config.Key(m.Key),
		Value:  uint64(m.Value),
	}
}

type metaModel struct {
	grove.BaseModel `grove:"table:dmc_meta" bson:"-"`

	Key   string `grove:"id,pk" bson:"_id"`
	Value []byte `grove:"value" bson:"value"`
}

// ==================== Bill models ====================

type billModel struct {
	grove.BaseModel `grove:"table:dmc_bills" bson:"-"`

	ID        string    `grove:"id,pk"      bson:"_id"`
	Provider  string    `grove:"provider"   bson:"provider"`
	Price     int64     `grove:"price"      bson:"price"`
	Unmatched int64     `grove:"unmatched"  bson:"unmatched"`
	Matched   int64     `grove:"matched"    bson:"matched"`
	CreatedAt time.Time `grove:"created_at" bson:"created_at"`
	UpdatedAt time.Time `grove:"updated_at" bson:"updated_at"`
}

func toBillModel(b *bill.Bill) *billModel {
	return &billModel{
		ID:        b.ID.String(),
		Provider:  b.Provider,
		Price:     int64(b.Price),
		Unmatched: b.Unmatched,
		Matched:   b.Matched,
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
	}
}

func fromBillModel(m *billModel) (*bill.Bill, error) {
	billID, err := id.ParseBillID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("dmc/mongo: parse bill id %q: %w", m.ID, err)
	}
	return &bill.Bill{
		Entity:    types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		ID:        billID,
		Provider:  m.Provider,
		Price:     types.Fixed(m.Price),
		Unmatched: m.Unmatched,
		Matched:   m.Matched,
	}, nil
}

// ==================== Order models ====================

type orderModel struct {
	grove.BaseModel `grove:"table:dmc_orders" bson:"-"`

	ID                   string     `grove:"id,pk"                  bson:"_id"`
	Consumer             string     `grove:"consumer"               bson:"consumer"`
	Provider             string     `grove:"provider"               bson:"provider"`
	BillID               string     `grove:"bill_id"                bson:"bill_id"`
	Price                int64      `grove:"price"                  bson:"price"`
	UserPledge           int64      `grove:"user_pledge"            bson:"user_pledge"`
	LockPledge           int64      `grove:"lock_pledge"            bson:"lock_pledge"`
	SettlementPledge     int64      `grove:"settlement_pledge"      bson:"settlement_pledge"`
	MinerPledge          int64      `grove:"miner_pledge"           bson:"miner_pledge"`
	State                string     `grove:"state"                  bson:"state"`
	DeliverStartDate     *time.Time `grove:"deliver_start_date"     bson:"deliver_start_date,omitempty"`
	LatestSettlementDate *time.Time `grove:"latest_settlement_date" bson:"latest_settlement_date,omitempty"`
	ClaimDate            *time.Time `grove:"claim_date"             bson:"claim_date,omitempty"`
	EndDate              *time.Time `grove:"end_date"               bson:"end_date,omitempty"`
	CreatedAt            time.Time  `grove:"created_at"             bson:"created_at"`
	UpdatedAt            time.Time  `grove:"updated_at"             bson:"updated_at"`
}

func toOrderModel(o *order.Order) *orderModel {
	return &orderModel{
		ID:                   o.ID.String(),
		Consumer:             o.Consumer,
		Provider:             o.Provider,
		BillID:               o.BillID.String(),
		Price:                o.Price,
		UserPledge:           o.UserPledge,
		LockPledge:           o.LockPledge,
		SettlementPledge:     o.SettlementPledge,
		MinerPledge:          o.MinerPledge,
		State:                string(o.State),
		DeliverStartDate:     nullTime(o.DeliverStartDate),
		LatestSettlementDate: nullTime(o.LatestSettlementDate),
		ClaimDate:            nullTime(o.ClaimDate),
		EndDate:              nullTime(o.EndDate),
		CreatedAt:            o.CreatedAt,
		UpdatedAt:            o.UpdatedAt,
	}
}

func fromOrderModel(m *orderModel) (*order.Order, error) {
	orderID, err := id.ParseOrderID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("dmc/mongo: parse order id %q: %w", m.ID, err)
	}
	billID, err := id.ParseBillID(m.BillID)
	if err != nil {
		return nil, fmt.Errorf("dmc/mongo: parse bill id %q: %w", m.BillID, err)
	}
	return &order.Order{
		Entity:               types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		ID:                   orderID,
		Consumer:             m.Consumer,
		Provider:             m.Provider,
		BillID:               billID,
		Price:                m.Price,
		UserPledge:           m.UserPledge,
		LockPledge:           m.LockPledge,
		SettlementPledge:     m.SettlementPledge,
		MinerPledge:          m.MinerPledge,
		State:                order.State(m.State),
		DeliverStartDate:     timeOf(m.DeliverStartDate),
		LatestSettlementDate: timeOf(m.LatestSettlementDate),
		ClaimDate:            timeOf(m.ClaimDate),
		EndDate:              timeOf(m.EndDate),
	}, nil
}

// ==================== Challenge models ====================

type challengeModel struct {
	grove.BaseModel `grove:"table:dmc_challenges" bson:"-"`

	OrderID        string     `grove:"id,pk"           bson:"_id"`
	PreMerkleRoot  string     `grove:"pre_merkle_root" bson:"pre_merkle_root"`
	PreBlockCount  int64      `grove:"pre_block_count" bson:"pre_block_count"`
	PreSubmitter   string     `grove:"pre_submitter"   bson:"pre_submitter,omitempty"`
	MerkleRoot     string     `grove:"merkle_root"     bson:"merkle_root"`
	BlockCount     int64      `grove:"block_count"     bson:"block_count"`
	DataID         int64      `grove:"data_id"         bson:"data_id"`
	HashData       string     `grove:"hash_data"       bson:"hash_data"`
	Nonce          string     `grove:"nonce"           bson:"nonce,omitempty"`
	ChallengeTimes int64      `grove:"challenge_times" bson:"challenge_times"`
	State          string     `grove:"state"           bson:"state"`
	ChallengeDate  *time.Time `grove:"challenge_date"  bson:"challenge_date,omitempty"`
	UserLock       int64      `grove:"user_lock"       bson:"user_lock"`
	MinerPay       int64      `grove:"miner_pay"       bson:"miner_pay"`
	CreatedAt      time.Time  `grove:"created_at"      bson:"created_at"`
	UpdatedAt      time.Time  `grove:"updated_at"      bson:"updated_at"`
}

func toChallengeModel(c *challenge.Challenge) *challengeModel {
	return &challengeModel{
		OrderID:        c.OrderID.String(),
		PreMerkleRoot:  c.PreMerkleRoot.String(),
		PreBlockCount:  int64(c.PreBlockCount),
		PreSubmitter:   c.PreSubmitter,
		MerkleRoot:     c.MerkleRoot.String(),
		BlockCount:     int64(c.BlockCount),
		DataID:         int64(c.DataID),
		HashData:       c.HashData.String(),
		Nonce:          c.Nonce,
		ChallengeTimes: int64(c.ChallengeTimes),
		State:          string(c.State),
		ChallengeDate:  nullTime(c.ChallengeDate),
		UserLock:       c.UserLock,
		MinerPay:       c.MinerPay,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

func fromChallengeModel(m *challengeModel) (*challenge.Challenge, error) {
	orderID, err := id.ParseOrderID(m.OrderID)
	if err != nil {
		return nil, fmt.Errorf("dmc/mongo: parse order id %q: %w", m.OrderID, err)
	}
	pre, err := challenge.ParseHash(m.PreMerkleRoot)
	if err != nil {
		return nil, fmt.Errorf("dmc/mongo: challenge %s: %w", m.OrderID, err)
	}
	root, err := challenge.ParseHash(m.MerkleRoot)
	if err != nil {
		return nil, fmt.Errorf("dmc/mongo: challenge %s: %w", m.OrderID, err)
	}
	hashData, err := challenge.ParseHash(m.HashData)
	if err != nil {
		return nil, fmt.Errorf("dmc/mongo: challenge %s: %w", m.OrderID, err)
	}
	return &challenge.Challenge{
		Entity:         types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		OrderID:        orderID,
		PreMerkleRoot:  pre,
		PreBlockCount:  uint64(m.PreBlockCount),
		PreSubmitter:   m.PreSubmitter,
		MerkleRoot:     root,
		BlockCount:     uint64(m.BlockCount),
		DataID:         uint64(m.DataID),
		HashData:       hashData,
		Nonce:          m.Nonce,
		ChallengeTimes: uint64(m.ChallengeTimes),
		State:          challenge.State(m.State),
		ChallengeDate:  timeOf(m.ChallengeDate),
		UserLock:       m.UserLock,
		MinerPay:       m.MinerPay,
	}, nil
}

// ==================== Maker models ====================

type makerModel struct {
	grove.BaseModel `grove:"table:dmc_makers" bson:"-"`

	Provider    string    `grove:"id,pk"        bson:"_id"`
	TotalStaked int64     `grove:"total_staked" bson:"total_staked"`
	TotalWeight int64     `grove:"total_weight" bson:"total_weight"`
	MinerRate   int64     `grove:"miner_rate"   bson:"miner_rate"`
	CurrentRate int64     `grove:"current_rate" bson:"current_rate"`
	Minted      int64     `grove:"minted"       bson:"minted"`
	CreatedAt   time.Time `grove:"created_at"   bson:"created_at"`
	UpdatedAt   time.Time `grove:"updated_at"   bson:"updated_at"`
}

func toMakerModel(m *maker.Maker) *makerModel {
	return &makerModel{
		Provider:    m.Provider,
		TotalStaked: m.TotalStaked,
		TotalWeight: m.TotalWeight,
		MinerRate:   int64(m.MinerRate),
		CurrentRate: int64(m.CurrentRate),
		Minted:      m.Minted,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func fromMakerModel(m *makerModel) *maker.Maker {
	return &maker.Maker{
		Entity:      types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		Provider:    m.Provider,
		TotalStaked: m.TotalStaked,
		TotalWeight: m.TotalWeight,
		MinerRate:   types.Fixed(m.MinerRate),
		CurrentRate: types.Fixed(m.CurrentRate),
		Minted:      m.Minted,
	}
}

type partnerModel struct {
	grove.BaseModel `grove:"table:dmc_partners" bson:"-"`

	Key       string    `grove:"id,pk"      bson:"_id"`
	Provider  string    `grove:"provider"   bson:"provider"`
	Partner   string    `grove:"partner"    bson:"partner"`
	Weight    int64     `grove:"weight"     bson:"weight"`
	CreatedAt time.Time `grove:"created_at" bson:"created_at"`
	UpdatedAt time.Time `grove:"updated_at" bson:"updated_at"`
}

func toPartnerModel(p *maker.Partner) *partnerModel {
	return &partnerModel{
		Key:       maker.PartnerKey(p.Provider, p.Partner),
		Provider:  p.Provider,
		Partner:   p.Partner,
		Weight:    p.Weight,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func fromPartnerModel(m *partnerModel) *maker.Partner {
	return &maker.Partner{
		Entity:   types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		Provider: m.Provider,
		Partner:  m.Partner,
		Weight:   m.Weight,
	}
}

// ==================== Helpers ====================

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func timeOf(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}
