// Package order defines a consumer's reservation against a bill and the
// settlement state machine that moves its escrow over time.
package order

import (
	"time"

	"github.com/xraph/dmc/id"
	"github.com/xraph/dmc/types"
)

// State is the settlement state of an order.
type State string

const (
	StateWaiting State = "waiting"  // waiting for an agreed Merkle commitment
	StateDeliver State = "deliver"  // delivering, next installment not yet locked
	StatePreCont State = "pre_cont" // next installment locked in escrow
	StatePreEnd  State = "pre_end"  // final period, consumer could not pay the next one
	StateEnd     State = "end"
	StateCancel  State = "cancel"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateEnd || s == StateCancel
}

// Order is a consumer's active reservation of a provider's capacity.
// All pledge amounts are DMC base units; MinerPledge is PST.
type Order struct {
	types.Entity
	ID       id.OrderID `json:"id"`
	Consumer string     `json:"consumer"`
	Provider string     `json:"provider"`
	BillID   id.BillID  `json:"bill_id"`

	// Price is the per-period installment.
	Price            int64 `json:"price"`
	UserPledge       int64 `json:"user_pledge"`
	LockPledge       int64 `json:"lock_pledge"`
	SettlementPledge int64 `json:"settlement_pledge"`
	MinerPledge      int64 `json:"miner_pledge"`

	State                State     `json:"state"`
	DeliverStartDate     time.Time `json:"deliver_start_date"`
	LatestSettlementDate time.Time `json:"latest_settlement_date"`
	ClaimDate            time.Time `json:"claim_date"`
	// EndDate is when the order reached End or Cancel.
	EndDate time.Time `json:"end_date,omitempty"`
}

// Escrowed returns the consumer funds still held by the order.
func (o *Order) Escrowed() int64 {
	return o.UserPledge + o.LockPledge + o.SettlementPledge
}
