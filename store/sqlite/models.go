package sqlite

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

// Unsigned 32.32 fixed-point values are stored bit-for-bit in INTEGER
// columns. Every stored rate and price stays below 2^63, so SQL ordering
// is preserved. Timestamps are stored as RFC 3339 text by the driver.

// ==================== Account models ====================

type balanceModel struct {
	grove.BaseModel `grove:"table:dmc_balances"`

	Owner  string `grove:"owner,pk"`
	Symbol string `grove:"symbol,pk"`
	Amount int64  `grove:"amount"`
}

type lockedModel struct {
	grove.BaseModel `grove:"table:dmc_locked"`

	Owner    string    `grove:"owner,pk"`
	Symbol   string    `grove:"symbol,pk"`
	UnlockAt time.Time `grove:"unlock_at,pk"`
	Amount   int64     `grove:"amount"`
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
	grove.BaseModel `grove:"table:dmc_supply"`

	Symbol string `grove:"symbol,pk"`
	Supply int64  `grove:"supply"`
}

// ==================== Config models ====================

type configModel struct {
	grove.BaseModel `grove:"table:dmc_config"`

	Key       string    `grove:"key,pk"`
	Value     int64     `grove:"value"`
	CreatedAt time.Time `grove:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"`
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
	grove.BaseModel `grove:"table:dmc_meta"`

	Key   string `grove:"key,pk"`
	Value []byte `grove:"value,type:blob"`
}

// ==================== Bill models ====================

type billModel struct {
	grove.BaseModel `grove:"table:dmc_bills"`

	ID        string    `grove:"id,pk"`
	Provider  string    `grove:"provider"`
	Price     int64     `grove:"price"`
	Unmatched int64     `grove:"unmatched"`
	Matched   int64     `grove:"matched"`
	CreatedAt time.Time `grove:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"`
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
		return nil, fmt.Errorf("dmc/sqlite: parse bill id %q: %w", m.ID, err)
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
	grove.BaseModel `grove:"table:dmc_orders"`

	ID                   string     `grove:"id,pk"`
	Consumer             string     `grove:"consumer"`
	Provider             string     `grove:"provider"`
	BillID               string     `grove:"bill_id"`
	Price                int64      `grove:"price"`
	UserPledge           int64      `grove:"user_pledge"`
	LockPledge           int64      `grove:"lock_pledge"`
	SettlementPledge     int64      `grove:"settlement_pledge"`
	MinerPledge          int64      `grove:"miner_pledge"`
	State                string     `grove:"state"`
	DeliverStartDate     *time.Time `grove:"deliver_start_date"`
	LatestSettlementDate *time.Time `grove:"latest_settlement_date"`
	ClaimDate            *time.Time `grove:"claim_date"`
	EndDate              *time.Time `grove:"end_date"`
	CreatedAt            time.Time  `grove:"created_at"`
	UpdatedAt            time.Time  `grove:"updated_at"`
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
		return nil, fmt.Errorf("dmc/sqlite: parse order id %q: %w", m.ID, err)
	}
	billID, err := id.ParseBillID(m.BillID)
	if err != nil {
		return nil, fmt.Errorf("dmc/sqlite: parse bill id %q: %w", m.BillID, err)
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
	grove.BaseModel `grove:"table:dmc_challenges"`

	OrderID        string     `grove:"order_id,pk"`
	PreMerkleRoot  string     `grove:"pre_merkle_root"`
	PreBlockCount  int64      `grove:"pre_block_count"`
	PreSubmitter   string     `grove:"pre_submitter"`
	MerkleRoot     string     `grove:"merkle_root"`
	BlockCount     int64      `grove:"block_count"`
	DataID         int64      `grove:"data_id"`
	HashData       string     `grove:"hash_data"`
	Nonce          string     `grove:"nonce"`
	ChallengeTimes int64      `grove:"challenge_times"`
	State          string     `grove:"state"`
	ChallengeDate  *time.Time `grove:"challenge_date"`
	UserLock       int64      `grove:"user_lock"`
	MinerPay       int64      `grove:"miner_pay"`
	CreatedAt      time.Time  `grove:"created_at"`
	UpdatedAt      time.Time  `grove:"updated_at"`
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
		return nil, fmt.Errorf("dmc/sqlite: parse order id %q: %w", m.OrderID, err)
	}
	c := &challenge.Challenge{
		Entity:         types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		OrderID:        orderID,
		PreBlockCount:  uint64(m.PreBlockCount),
		PreSubmitter:   m.PreSubmitter,
		BlockCount:     uint64(m.BlockCount),
		DataID:         uint64(m.DataID),
		Nonce:          m.Nonce,
		ChallengeTimes: uint64(m.ChallengeTimes),
		State:          challenge.State(m.State),
		ChallengeDate:  timeOf(m.ChallengeDate),
		UserLock:       m.UserLock,
		MinerPay:       m.MinerPay,
	}
	for _, h := range []struct {
		dst *challenge.Hash
		src string
	}{
		{&c.PreMerkleRoot, m.PreMerkleRoot},
		{&c.MerkleRoot, m.MerkleRoot},
		{&c.HashData, m.HashData},
	} {
		if *h.dst, err = challenge.ParseHash(h.src); err != nil {
			return nil, fmt.Errorf("dmc/sqlite: challenge %s: %w", m.OrderID, err)
		}
	}
	return c, nil
}

// ==================== Maker models ====================

type makerModel struct {
	grove.BaseModel `grove:"table:dmc_makers"`

	Provider    string    `grove:"provider,pk"`
	TotalStaked int64     `grove:"total_staked"`
	TotalWeight int64     `grove:"total_weight"`
	MinerRate   int64     `grove:"miner_rate"`
	CurrentRate int64     `grove:"current_rate"`
	Minted      int64     `grove:"minted"`
	CreatedAt   time.Time `grove:"created_at"`
	UpdatedAt   time.Time `grove:"updated_at"`
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
	grove.BaseModel `grove:"table:dmc_partners"`

	Provider  string    `grove:"provider,pk"`
	Partner   string    `grove:"partner,pk"`
	Weight    int64     `grove:"weight"`
	CreatedAt time.Time `grove:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"`
}

func toPartnerModel(p *maker.Partner) *partnerModel {
	return &partnerModel{
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
