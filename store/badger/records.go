package badger

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/xraph/dmc/account"
	"github.com/xraph/dmc/bill"
	"github.com/xraph/dmc/challenge"
	"github.com/xraph/dmc/config"
	"github.com/xraph/dmc/id"
	"github.com/xraph/dmc/maker"
	"github.com/xraph/dmc/order"
	"github.com/xraph/dmc/types"
)

var encMode cbor.EncMode

func init() {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	encMode = em
}

func encode(v any) ([]byte, error) {
	b, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("dmc/badger: encode: %w", err)
	}
	return b, nil
}

func decode(b []byte, v any) error {
	if err := cbor.Unmarshal(b, v); err != nil {
		return fmt.Errorf("dmc/badger: decode: %w", err)
	}
	return nil
}

// Times are kept as unix seconds, zero meaning unset. The market clock
// never carries sub-second precision.
func unixOf(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func timeOf(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func parseID(s string) (id.ID, error) {
	if s == "" {
		return id.ID{}, nil
	}
	return id.Parse(s)
}

// ──────────────────────────────────────────────────
// Account records
// ──────────────────────────────────────────────────

type balanceRecord struct {
	Owner  string `cbor:"1,keyasint"`
	Symbol string `cbor:"2,keyasint"`
	Amount int64  `cbor:"3,keyasint"`
}

func toBalanceRecord(b *account.Balance) *balanceRecord {
	return &balanceRecord{Owner: b.Owner, Symbol: string(b.Symbol), Amount: b.Amount}
}

func fromBalanceRecord(r *balanceRecord) *account.Balance {
	return &account.Balance{Owner: r.Owner, Symbol: types.Symbol(r.Symbol), Amount: r.Amount}
}

type lockedRecord struct {
	Owner    string `cbor:"1,keyasint"`
	Symbol   string `cbor:"2,keyasint"`
	Amount   int64  `cbor:"3,keyasint"`
	UnlockAt int64  `cbor:"4,keyasint"`
}

func toLockedRecord(l *account.Locked) *lockedRecord {
	return &lockedRecord{
		Owner:    l.Owner,
		Symbol:   string(l.Symbol),
		Amount:   l.Amount,
		UnlockAt: unixOf(l.UnlockAt),
	}
}

func fromLockedRecord(r *lockedRecord) *account.Locked {
	return &account.Locked{
		Owner:    r.Owner,
		Symbol:   types.Symbol(r.Symbol),
		Amount:   r.Amount,
		UnlockAt: timeOf(r.UnlockAt),
	}
}

type supplyRecord struct {
	Symbol string `cbor:"1,keyasint"`
	Supply int64  `cbor:"2,keyasint"`
}

// ──────────────────────────────────────────────────
// Config record
// ──────────────────────────────────────────────────

type configRecord struct {
	Key       string `cbor:"1,keyasint"`
	Value     uint64 `cbor:"2,keyasint"`
	CreatedAt int64  `cbor:"3,keyasint"`
	UpdatedAt int64  `cbor:"4,keyasint"`
}

func toConfigRecord(e *config.Entry) *configRecord {
	return &configRecord{
		Key:       string(e.Key),
		Value:     e.Value,
		CreatedAt: unixOf(e.CreatedAt),
		UpdatedAt: unixOf(e.UpdatedAt),
	}
}

func fromConfigRecord(r *configRecord) *config.Entry {
	return &config.Entry{
		Entity: types.Entity{CreatedAt: timeOf(r.CreatedAt), UpdatedAt: timeOf(r.UpdatedAt)},
		Key:    config.Key(r.Key),
		Value:  r.Value,
	}
}

// ──────────────────────────────────────────────────
// Bill and order records
// ──────────────────────────────────────────────────

type billRecord struct {
	ID        string `cbor:"1,keyasint"`
	Provider  string `cbor:"2,keyasint"`
	Price     uint64 `cbor:"3,keyasint"`
	Unmatched int64  `cbor:"4,keyasint"`
	Matched   int64  `cbor:"5,keyasint"`
	CreatedAt int64  `cbor:"6,keyasint"`
	UpdatedAt int64  `cbor:"7,keyasint"`
}

func toBillRecord(b *bill.Bill) *billRecord {
	return &billRecord{
		ID:        b.ID.String(),
		Provider:  b.Provider,
		Price:     uint64(b.Price),
		Unmatched: b.Unmatched,
		Matched:   b.Matched,
		CreatedAt: unixOf(b.CreatedAt),
		UpdatedAt: unixOf(b.UpdatedAt),
	}
}

func fromBillRecord(r *billRecord) (*bill.Bill, error) {
	billID, err := parseID(r.ID)
	if err != nil {
		return nil, fmt.Errorf("dmc/badger: parse bill id %q: %w", r.ID, err)
	}
	return &bill.Bill{
		Entity:    types.Entity{CreatedAt: timeOf(r.CreatedAt), UpdatedAt: timeOf(r.UpdatedAt)},
		ID:        billID,
		Provider:  r.Provider,
		Price:     types.Fixed(r.Price),
		Unmatched: r.Unmatched,
		Matched:   r.Matched,
	}, nil
}

type orderRecord struct {
	ID                   string `cbor:"1,keyasint"`
	Consumer             string `cbor:"2,keyasint"`
	Provider             string `cbor:"3,keyasint"`
	BillID               string `cbor:"4,keyasint"`
	Price                int64  `cbor:"5,keyasint"`
	UserPledge           int64  `cbor:"6,keyasint"`
	LockPledge           int64  `cbor:"7,keyasint"`
	SettlementPledge     int64  `cbor:"8,keyasint"`
	MinerPledge          int64  `cbor:"9,keyasint"`
	State                string `cbor:"10,keyasint"`
	DeliverStartDate     int64  `cbor:"11,keyasint"`
	LatestSettlementDate int64  `cbor:"12,keyasint"`
	ClaimDate            int64  `cbor:"13,keyasint"`
	EndDate              int64  `cbor:"14,keyasint"`
	CreatedAt            int64  `cbor:"15,keyasint"`
	UpdatedAt            int64  `cbor:"16,keyasint"`
}

func toOrderRecord(o *order.Order) *orderRecord {
	return &orderRecord{
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
		DeliverStartDate:     unixOf(o.DeliverStartDate),
		LatestSettlementDate: unixOf(o.LatestSettlementDate),
		ClaimDate:            unixOf(o.ClaimDate),
		EndDate:              unixOf(o.EndDate),
		CreatedAt:            unixOf(o.CreatedAt),
		UpdatedAt:            unixOf(o.UpdatedAt),
	}
}

func fromOrderRecord(r *orderRecord) (*order.Order, error) {
	orderID, err := parseID(r.ID)
	if err != nil {
		return nil, fmt.Errorf("dmc/badger: parse order id %q: %w", r.ID, err)
	}
	billID, err := parseID(r.BillID)
	if err != nil {
		return nil, fmt.Errorf("dmc/badger: parse bill id %q: %w", r.BillID, err)
	}
	return &order.Order{
		Entity:               types.Entity{CreatedAt: timeOf(r.CreatedAt), UpdatedAt: timeOf(r.UpdatedAt)},
		ID:                   orderID,
		Consumer:             r.Consumer,
		Provider:             r.Provider,
		BillID:               billID,
		Price:                r.Price,
		UserPledge:           r.UserPledge,
		LockPledge:           r.LockPledge,
		SettlementPledge:     r.SettlementPledge,
		MinerPledge:          r.MinerPledge,
		State:                order.State(r.State),
		DeliverStartDate:     timeOf(r.DeliverStartDate),
		LatestSettlementDate: timeOf(r.LatestSettlementDate),
		ClaimDate:            timeOf(r.ClaimDate),
		EndDate:              timeOf(r.EndDate),
	}, nil
}

// ──────────────────────────────────────────────────
// Challenge record
// ──────────────────────────────────────────────────

type challengeRecord struct {
	OrderID        string   `cbor:"1,keyasint"`
	PreMerkleRoot  [32]byte `cbor:"2,keyasint"`
	PreBlockCount  uint64   `cbor:"3,keyasint"`
	PreSubmitter   string   `cbor:"4,keyasint,omitempty"`
	MerkleRoot     [32]byte `cbor:"5,keyasint"`
	BlockCount     uint64   `cbor:"6,keyasint"`
	DataID         uint64   `cbor:"7,keyasint"`
	HashData       [32]byte `cbor:"8,keyasint"`
	Nonce          string   `cbor:"9,keyasint,omitempty"`
	ChallengeTimes uint64   `cbor:"10,keyasint"`
	State          string   `cbor:"11,keyasint"`
	ChallengeDate  int64    `cbor:"12,keyasint"`
	UserLock       int64    `cbor:"13,keyasint"`
	MinerPay       int64    `cbor:"14,keyasint"`
	CreatedAt      int64    `cbor:"15,keyasint"`
	UpdatedAt      int64    `cbor:"16,keyasint"`
}

func toChallengeRecord(c *challenge.Challenge) *challengeRecord {
	return &challengeRecord{
		OrderID:        c.OrderID.String(),
		PreMerkleRoot:  c.PreMerkleRoot,
		PreBlockCount:  c.PreBlockCount,
		PreSubmitter:   c.PreSubmitter,
		MerkleRoot:     c.MerkleRoot,
		BlockCount:     c.BlockCount,
		DataID:         c.DataID,
		HashData:       c.HashData,
		Nonce:          c.Nonce,
		ChallengeTimes: c.ChallengeTimes,
		State:          string(c.State),
		ChallengeDate:  unixOf(c.ChallengeDate),
		UserLock:       c.UserLock,
		MinerPay:       c.MinerPay,
		CreatedAt:      unixOf(c.CreatedAt),
		UpdatedAt:      unixOf(c.UpdatedAt),
	}
}

func fromChallengeRecord(r *challengeRecord) (*challenge.Challenge, error) {
	orderID, err := parseID(r.OrderID)
	if err != nil {
		return nil, fmt.Errorf("dmc/badger: parse order id %q: %w", r.OrderID, err)
	}
	return &challenge.Challenge{
		Entity:         types.Entity{CreatedAt: timeOf(r.CreatedAt), UpdatedAt: timeOf(r.UpdatedAt)},
		OrderID:        orderID,
		PreMerkleRoot:  r.PreMerkleRoot,
		PreBlockCount:  r.PreBlockCount,
		PreSubmitter:   r.PreSubmitter,
		MerkleRoot:     r.MerkleRoot,
		BlockCount:     r.BlockCount,
		DataID:         r.DataID,
		HashData:       r.HashData,
		Nonce:          r.Nonce,
		ChallengeTimes: r.ChallengeTimes,
		State:          challenge.State(r.State),
		ChallengeDate:  timeOf(r.ChallengeDate),
		UserLock:       r.UserLock,
		MinerPay:       r.MinerPay,
	}, nil
}

// ──────────────────────────────────────────────────
// Maker records
// ──────────────────────────────────────────────────

type makerRecord struct {
	Provider    string `cbor:"1,keyasint"`
	TotalStaked int64  `cbor:"2,keyasint"`
	TotalWeight int64  `cbor:"3,keyasint"`
	MinerRate   uint64 `cbor:"4,keyasint"`
	CurrentRate uint64 `cbor:"5,keyasint"`
	Minted      int64  `cbor:"6,keyasint"`
	CreatedAt   int64  `cbor:"7,keyasint"`
	UpdatedAt   int64  `cbor:"8,keyasint"`
}

func toMakerRecord(m *maker.Maker) *makerRecord {
	return &makerRecord{
		Provider:    m.Provider,
		TotalStaked: m.TotalStaked,
		TotalWeight: m.TotalWeight,
		MinerRate:   uint64(m.MinerRate),
		CurrentRate: uint64(m.CurrentRate),
		Minted:      m.Minted,
		CreatedAt:   unixOf(m.CreatedAt),
		UpdatedAt:   unixOf(m.UpdatedAt),
	}
}

func fromMakerRecord(r *makerRecord) *maker.Maker {
	return &maker.Maker{
		Entity:      types.Entity{CreatedAt: timeOf(r.CreatedAt), UpdatedAt: timeOf(r.UpdatedAt)},
		Provider:    r.Provider,
		TotalStaked: r.TotalStaked,
		TotalWeight: r.TotalWeight,
		MinerRate:   types.Fixed(r.MinerRate),
		CurrentRate: types.Fixed(r.CurrentRate),
		Minted:      r.Minted,
	}
}

type partnerRecord struct {
	Provider  string `cbor:"1,keyasint"`
	Partner   string `cbor:"2,keyasint"`
	Weight    int64  `cbor:"3,keyasint"`
	CreatedAt int64  `cbor:"4,keyasint"`
	UpdatedAt int64  `cbor:"5,keyasint"`
}

func toPartnerRecord(p *maker.Partner) *partnerRecord {
	return &partnerRecord{
		Provider:  p.Provider,
		Partner:   p.Partner,
		Weight:    p.Weight,
		CreatedAt: unixOf(p.CreatedAt),
		UpdatedAt: unixOf(p.UpdatedAt),
	}
}

func fromPartnerRecord(r *partnerRecord) *maker.Partner {
	return &maker.Partner{
		Entity:   types.Entity{CreatedAt: timeOf(r.CreatedAt), UpdatedAt: timeOf(r.UpdatedAt)},
		Provider: r.Provider,
		Partner:  r.Partner,
		Weight:   r.Weight,
	}
}
