// Package audithook bridges market settlement events to an audit trail
// backend.
//
// It defines a local Recorder interface so the package does not import an
// audit backend directly. Callers inject a RecorderFunc adapter at wiring
// time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/dmc/bill"
	"github.com/xraph/dmc/challenge"
	"github.com/xraph/dmc/order"
	"github.com/xraph/dmc/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin               = (*Extension)(nil)
	_ plugin.OnBillCreated        = (*Extension)(nil)
	_ plugin.OnBillClosed         = (*Extension)(nil)
	_ plugin.OnIncentiveIssued    = (*Extension)(nil)
	_ plugin.OnOrderCreated       = (*Extension)(nil)
	_ plugin.OnOrderStateChanged  = (*Extension)(nil)
	_ plugin.OnOrderClaimed       = (*Extension)(nil)
	_ plugin.OnChallengeChanged   = (*Extension)(nil)
	_ plugin.OnCollateralChanged  = (*Extension)(nil)
	_ plugin.OnLiquidationApplied = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges market events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Bill hooks
// ──────────────────────────────────────────────────

// OnBillCreated implements plugin.OnBillCreated.
func (e *Extension) OnBillCreated(ctx context.Context, b *bill.Bill) error {
	return e.record(ctx, ActionBillCreated, SeverityInfo, OutcomeSuccess,
		ResourceBill, b.ID.String(), CategoryCapacity, nil,
		"provider", b.Provider,
		"pst", b.Unmatched,
		"price", b.Price.String(),
	)
}

// OnBillClosed implements plugin.OnBillClosed.
func (e *Extension) OnBillClosed(ctx context.Context, b *bill.Bill) error {
	return e.record(ctx, ActionBillClosed, SeverityInfo, OutcomeSuccess,
		ResourceBill, b.ID.String(), CategoryCapacity, nil,
		"provider", b.Provider,
		"matched", b.Matched,
	)
}

// OnIncentiveIssued implements plugin.OnIncentiveIssued.
func (e *Extension) OnIncentiveIssued(ctx context.Context, inc *plugin.Incentive) error {
	return e.record(ctx, ActionIncentiveIssued, SeverityInfo, OutcomeSuccess,
		ResourceBill, inc.BillID.String(), CategoryReward, nil,
		"provider", inc.Provider,
		"reward", inc.Reward.String(),
	)
}

// ──────────────────────────────────────────────────
// Order hooks
// ──────────────────────────────────────────────────

// OnOrderCreated implements plugin.OnOrderCreated.
func (e *Extension) OnOrderCreated(ctx context.Context, o *order.Order) error {
	return e.record(ctx, ActionOrderCreated, SeverityInfo, OutcomeSuccess,
		ResourceOrder, o.ID.String(), CategorySettlement, nil,
		"consumer", o.Consumer,
		"provider", o.Provider,
		"bill_id", o.BillID.String(),
		"pst", o.MinerPledge,
		"price", o.Price,
	)
}

// OnOrderStateChanged implements plugin.OnOrderStateChanged. Only
// delivery start, settlement and termination are audited.
func (e *Extension) OnOrderStateChanged(ctx context.Context, o *order.Order, t order.Transition) error {
	action := ""
	severity := SeverityInfo
	switch {
	case t.From == order.StateWaiting && t.To == order.StateDeliver:
		action = ActionOrderDelivered
	case t.To == order.StateCancel:
		action = ActionOrderCanceled
	case t.To == order.StateEnd:
		action = ActionOrderEnded
		if t.Burned > 0 {
			severity = SeverityWarning
		}
	case t.Settled > 0:
		action = ActionOrderSettled
	default:
		return nil
	}

	return e.record(ctx, action, severity, OutcomeSuccess,
		ResourceOrder, o.ID.String(), CategorySettlement, nil,
		"from", string(t.From),
		"to", string(t.To),
		"settled", t.Settled,
		"refunded", t.Refunded,
		"burned", t.Burned,
	)
}

// OnOrderClaimed implements plugin.OnOrderClaimed.
func (e *Extension) OnOrderClaimed(ctx context.Context, c *plugin.OrderClaim) error {
	return e.record(ctx, ActionOrderClaimed, SeverityInfo, OutcomeSuccess,
		ResourceOrder, c.Order.ID.String(), CategorySettlement, nil,
		"provider", c.Order.Provider,
		"provider_amount", c.ProviderAmount.String(),
		"pool_amount", c.PoolAmount.String(),
		"consumer_reward", c.ConsumerReward.String(),
		"provider_reward", c.ProviderReward.String(),
	)
}

// ──────────────────────────────────────────────────
// Challenge hooks
// ──────────────────────────────────────────────────

// OnChallengeChanged implements plugin.OnChallengeChanged. Commitment
// rounds are not audited.
func (e *Extension) OnChallengeChanged(ctx context.Context, c *challenge.Challenge, from challenge.State) error {
	var (
		action   string
		severity = SeverityInfo
		outcome  = OutcomeSuccess
	)
	switch c.State {
	case challenge.StateRequest:
		action = ActionChallengeRequested
	case challenge.StateAnswer, challenge.StateArbitrationUserPay:
		action = ActionChallengeAnswered
	case challenge.StateTimeout:
		action, severity, outcome = ActionChallengeTimedOut, SeverityWarning, OutcomeFailure
	case challenge.StateArbitrationMinerPay:
		action, severity, outcome = ActionChallengePaid, SeverityCritical, OutcomeFailure
	default:
		return nil
	}

	return e.record(ctx, action, severity, outcome,
		ResourceChallenge, c.OrderID.String(), CategoryDispute, nil,
		"from", string(from),
		"to", string(c.State),
		"data_id", c.DataID,
		"times", c.ChallengeTimes,
	)
}

// ──────────────────────────────────────────────────
// Collateral hooks
// ──────────────────────────────────────────────────

// OnCollateralChanged implements plugin.OnCollateralChanged.
func (e *Extension) OnCollateralChanged(ctx context.Context, c *plugin.CollateralChange) error {
	action, severity := ActionCollateralChanged, SeverityInfo
	if c.Action == plugin.ActionSlash {
		action, severity = ActionCollateralSlashed, SeverityWarning
	}

	kv := []any{
		"partner", c.Partner,
		"action", c.Action,
		"amount", c.Amount.String(),
	}
	if c.Maker != nil {
		kv = append(kv, "rate", c.Maker.CurrentRate.String(), "minted", c.Maker.Minted)
	}
	return e.record(ctx, action, severity, OutcomeSuccess,
		ResourceMaker, c.Provider, CategoryCollateral, nil, kv...)
}

// OnLiquidationApplied implements plugin.OnLiquidationApplied.
func (e *Extension) OnLiquidationApplied(ctx context.Context, l *plugin.Liquidation) error {
	return e.record(ctx, ActionLiquidation, SeverityCritical, OutcomePartial,
		ResourceMaker, l.Provider, CategoryCollateral, nil,
		"retired_pst", l.Retired,
		"penalty", l.Penalty,
		"rate_before", l.RateBefore.String(),
		"rate_after", l.RateAfter.String(),
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
