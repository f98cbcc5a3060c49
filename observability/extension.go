// Package observability provides a metrics plugin for the market that
// records settlement event counts via a MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/dmc/bill"
	"github.com/xraph/dmc/challenge"
	"github.com/xraph/dmc/order"
	"github.com/xraph/dmc/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin               = (*MetricsExtension)(nil)
	_ plugin.OnInit               = (*MetricsExtension)(nil)
	_ plugin.OnBillCreated        = (*MetricsExtension)(nil)
	_ plugin.OnBillClosed         = (*MetricsExtension)(nil)
	_ plugin.OnIncentiveIssued    = (*MetricsExtension)(nil)
	_ plugin.OnOrderCreated       = (*MetricsExtension)(nil)
	_ plugin.OnOrderStateChanged  = (*MetricsExtension)(nil)
	_ plugin.OnOrderClaimed       = (*MetricsExtension)(nil)
	_ plugin.OnChallengeChanged   = (*MetricsExtension)(nil)
	_ plugin.OnCollateralChanged  = (*MetricsExtension)(nil)
	_ plugin.OnLiquidationApplied = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records market-wide settlement metrics.
// Register it as a market plugin to track them automatically.
type MetricsExtension struct {
	factory MetricFactory

	// Bill metrics
	BillCreated     Counter
	BillClosed      Counter
	BillCapacity    Histogram
	IncentiveIssued Counter

	// Order metrics
	OrderCreated   Counter
	OrderDelivered Counter
	OrderSettled   Counter
	OrderEnded     Counter
	OrderCanceled  Counter
	OrderClaimed   Counter
	SettledAmount  Histogram

	// Challenge metrics
	ChallengeAgreed    Counter
	ChallengeRequested Counter
	ChallengeAnswered  Counter
	ChallengeTimedOut  Counter
	ChallengeMinerPay  Counter

	// Collateral metrics
	CollateralChanged Counter
	CollateralSlashed Counter
	Liquidations      Counter
	LiquidatedPST     Histogram
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		BillCreated:     factory.Counter("dmc.bill.created"),
		BillClosed:      factory.Counter("dmc.bill.closed"),
		BillCapacity:    factory.Histogram("dmc.bill.capacity_pst"),
		IncentiveIssued: factory.Counter("dmc.bill.incentive.issued"),

		OrderCreated:   factory.Counter("dmc.order.created"),
		OrderDelivered: factory.Counter("dmc.order.delivered"),
		OrderSettled:   factory.Counter("dmc.order.settled"),
		OrderEnded:     factory.Counter("dmc.order.ended"),
		OrderCanceled:  factory.Counter("dmc.order.canceled"),
		OrderClaimed:   factory.Counter("dmc.order.claimed"),
		SettledAmount:  factory.Histogram("dmc.order.settled_dmc"),

		ChallengeAgreed:    factory.Counter("dmc.challenge.agreed"),
		ChallengeRequested: factory.Counter("dmc.challenge.requested"),
		ChallengeAnswered:  factory.Counter("dmc.challenge.answered"),
		ChallengeTimedOut:  factory.Counter("dmc.challenge.timeout"),
		ChallengeMinerPay:  factory.Counter("dmc.challenge.miner_pay"),

		CollateralChanged: factory.Counter("dmc.collateral.changed"),
		CollateralSlashed: factory.Counter("dmc.collateral.slashed"),
		Liquidations:      factory.Counter("dmc.collateral.liquidations"),
		LiquidatedPST:     factory.Histogram("dmc.collateral.liquidated_pst"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	return nil
}

// ──────────────────────────────────────────────────
// Bill hooks
// ──────────────────────────────────────────────────

// OnBillCreated implements plugin.OnBillCreated.
func (m *MetricsExtension) OnBillCreated(_ context.Context, b *bill.Bill) error {
	m.BillCreated.Inc()
	m.BillCapacity.Observe(float64(b.Unmatched))
	return nil
}

// OnBillClosed implements plugin.OnBillClosed.
func (m *MetricsExtension) OnBillClosed(_ context.Context, _ *bill.Bill) error {
	m.BillClosed.Inc()
	return nil
}

// OnIncentiveIssued implements plugin.OnIncentiveIssued.
func (m *MetricsExtension) OnIncentiveIssued(_ context.Context, inc *plugin.Incentive) error {
	m.IncentiveIssued.Add(float64(inc.Reward.Amount))
	return nil
}

// ──────────────────────────────────────────────────
// Order hooks
// ──────────────────────────────────────────────────

// OnOrderCreated implements plugin.OnOrderCreated.
func (m *MetricsExtension) OnOrderCreated(_ context.Context, _ *order.Order) error {
	m.OrderCreated.Inc()
	return nil
}

// OnOrderStateChanged implements plugin.OnOrderStateChanged.
func (m *MetricsExtension) OnOrderStateChanged(_ context.Context, _ *order.Order, t order.Transition) error {
	switch {
	case t.From == order.StateWaiting && t.To == order.StateDeliver:
		m.OrderDelivered.Inc()
	case t.To == order.StateCancel:
		m.OrderCanceled.Inc()
	case t.To == order.StateEnd:
		m.OrderEnded.Inc()
	}
	if t.Settled > 0 {
		m.OrderSettled.Inc()
		m.SettledAmount.Observe(float64(t.Settled))
	}
	return nil
}

// OnOrderClaimed implements plugin.OnOrderClaimed.
func (m *MetricsExtension) OnOrderClaimed(_ context.Context, _ *plugin.OrderClaim) error {
	m.OrderClaimed.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Challenge hooks
// ──────────────────────────────────────────────────

// OnChallengeChanged implements plugin.OnChallengeChanged.
func (m *MetricsExtension) OnChallengeChanged(_ context.Context, c *challenge.Challenge, from challenge.State) error {
	if c.State == from {
		return nil
	}
	switch c.State {
	case challenge.StateConsistent:
		m.ChallengeAgreed.Inc()
	case challenge.StateRequest:
		m.ChallengeRequested.Inc()
	case challenge.StateAnswer, challenge.StateArbitrationUserPay:
		m.ChallengeAnswered.Inc()
	case challenge.StateTimeout:
		m.ChallengeTimedOut.Inc()
	case challenge.StateArbitrationMinerPay:
		m.ChallengeMinerPay.Inc()
	}
	return nil
}

// ──────────────────────────────────────────────────
// Collateral hooks
// ──────────────────────────────────────────────────

// OnCollateralChanged implements plugin.OnCollateralChanged.
func (m *MetricsExtension) OnCollateralChanged(_ context.Context, c *plugin.CollateralChange) error {
	m.CollateralChanged.Inc()
	if c.Action == plugin.ActionSlash {
		m.CollateralSlashed.Add(float64(c.Amount.Amount))
	}
	return nil
}

// OnLiquidationApplied implements plugin.OnLiquidationApplied.
func (m *MetricsExtension) OnLiquidationApplied(_ context.Context, l *plugin.Liquidation) error {
	m.Liquidations.Inc()
	m.LiquidatedPST.Observe(float64(l.Retired))
	return nil
}
