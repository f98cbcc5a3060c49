// Package plugin provides an extensible plugin system for the market.
// Plugins hook into lifecycle and settlement events. Hooks run after the
// call that produced the event has committed, so a plugin never observes
// state that was rolled back.
package plugin

import (
	"context"

	"github.com/xraph/dmc/bill"
	"github.com/xraph/dmc/challenge"
	"github.com/xraph/dmc/id"
	"github.com/xraph/dmc/journal"
	"github.com/xraph/dmc/maker"
	"github.com/xraph/dmc/order"
	"github.com/xraph/dmc/types"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Event payloads
// ──────────────────────────────────────────────────

// Incentive describes RSI issued against a bill's unmatched capacity.
type Incentive struct {
	BillID   id.BillID
	Provider string
	Reward   types.Asset
}

// OrderClaim describes a provider claim on an order's settlement.
type OrderClaim struct {
	Order          *order.Order
	ProviderAmount types.Asset // DMC paid to the provider
	PoolAmount     types.Asset // DMC added to the provider's collateral pool
	ConsumerReward types.Asset // RSI
	ProviderReward types.Asset // RSI
}

// Collateral actions.
const (
	ActionIncrease  = "increase"
	ActionRedeem    = "redeem"
	ActionMint      = "mint"
	ActionMinerRate = "miner_rate"
	ActionSlash     = "slash"
	ActionClaim     = "claim"
	ActionBurn      = "burn"
)

// CollateralChange describes a change to a provider's collateral pool.
type CollateralChange struct {
	Provider string
	Partner  string
	Action   string
	Amount   types.Asset
	// Maker is the pool after the change, nil when the pool was closed.
	Maker *maker.Maker
}

// Liquidation describes one maker's forced remediation.
type Liquidation struct {
	Provider   string
	Retired    int64 // PST burned
	Penalty    int64 // DMC seized
	RateBefore types.Fixed
	RateAfter  types.Fixed
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, m interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Bill hooks
// ──────────────────────────────────────────────────

// OnBillCreated is called when a provider posts a bill.
type OnBillCreated interface {
	Plugin
	OnBillCreated(ctx context.Context, b *bill.Bill) error
}

// OnBillClosed is called when a bill is unbilled or exhausted.
type OnBillClosed interface {
	Plugin
	OnBillClosed(ctx context.Context, b *bill.Bill) error
}

// OnIncentiveIssued is called when RSI accrues on a bill.
type OnIncentiveIssued interface {
	Plugin
	OnIncentiveIssued(ctx context.Context, inc *Incentive) error
}

// ──────────────────────────────────────────────────
// Order hooks
// ──────────────────────────────────────────────────

// OnOrderCreated is called when a consumer places an order.
type OnOrderCreated interface {
	Plugin
	OnOrderCreated(ctx context.Context, o *order.Order) error
}

// OnOrderStateChanged is called for every settlement transition.
type OnOrderStateChanged interface {
	Plugin
	OnOrderStateChanged(ctx context.Context, o *order.Order, t order.Transition) error
}

// OnOrderClaimed is called when a provider claims an order's settlement.
type OnOrderClaimed interface {
	Plugin
	OnOrderClaimed(ctx context.Context, c *OrderClaim) error
}

// ──────────────────────────────────────────────────
// Challenge hooks
// ──────────────────────────────────────────────────

// OnChallengeChanged is called when a challenge changes state.
type OnChallengeChanged interface {
	Plugin
	OnChallengeChanged(ctx context.Context, c *challenge.Challenge, from challenge.State) error
}

// ──────────────────────────────────────────────────
// Collateral hooks
// ──────────────────────────────────────────────────

// OnCollateralChanged is called when a collateral pool changes.
type OnCollateralChanged interface {
	Plugin
	OnCollateralChanged(ctx context.Context, c *CollateralChange) error
}

// OnLiquidationApplied is called for each liquidated maker.
type OnLiquidationApplied interface {
	Plugin
	OnLiquidationApplied(ctx context.Context, l *Liquidation) error
}

// ──────────────────────────────────────────────────
// Receipt hooks
// ──────────────────────────────────────────────────

// OnReceipt is called for every committed receipt, in sequence order.
type OnReceipt interface {
	Plugin
	OnReceipt(ctx context.Context, r *journal.Receipt) error
}
