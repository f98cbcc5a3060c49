package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/dmc/bill"
	"github.com/xraph/dmc/challenge"
	"github.com/xraph/dmc/journal"
	"github.com/xraph/dmc/order"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit               []OnInit
	onShutdown           []OnShutdown
	onBillCreated        []OnBillCreated
	onBillClosed         []OnBillClosed
	onIncentiveIssued    []OnIncentiveIssued
	onOrderCreated       []OnOrderCreated
	onOrderStateChanged  []OnOrderStateChanged
	onOrderClaimed       []OnOrderClaimed
	onChallengeChanged   []OnChallengeChanged
	onCollateralChanged  []OnCollateralChanged
	onLiquidationApplied []OnLiquidationApplied
	onReceipt            []OnReceipt
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnBillCreated); ok {
		r.onBillCreated = append(r.onBillCreated, v)
	}
	if v, ok := p.(OnBillClosed); ok {
		r.onBillClosed = append(r.onBillClosed, v)
	}
	if v, ok := p.(OnIncentiveIssued); ok {
		r.onIncentiveIssued = append(r.onIncentiveIssued, v)
	}
	if v, ok := p.(OnOrderCreated); ok {
		r.onOrderCreated = append(r.onOrderCreated, v)
	}
	if v, ok := p.(OnOrderStateChanged); ok {
		r.onOrderStateChanged = append(r.onOrderStateChanged, v)
	}
	if v, ok := p.(OnOrderClaimed); ok {
		r.onOrderClaimed = append(r.onOrderClaimed, v)
	}
	if v, ok := p.(OnChallengeChanged); ok {
		r.onChallengeChanged = append(r.onChallengeChanged, v)
	}
	if v, ok := p.(OnCollateralChanged); ok {
		r.onCollateralChanged = append(r.onCollateralChanged, v)
	}
	if v, ok := p.(OnLiquidationApplied); ok {
		r.onLiquidationApplied = append(r.onLiquidationApplied, v)
	}
	if v, ok := p.(OnReceipt); ok {
		r.onReceipt = append(r.onReceipt, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", r.getImplementedInterfaces(p),
	)

	return nil
}

// getImplementedInterfaces returns a list of interfaces implemented by the plugin.
func (r *Registry) getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnBillCreated)(nil)).Elem(), "OnBillCreated")
	checkInterface(reflect.TypeOf((*OnBillClosed)(nil)).Elem(), "OnBillClosed")
	checkInterface(reflect.TypeOf((*OnIncentiveIssued)(nil)).Elem(), "OnIncentiveIssued")
	checkInterface(reflect.TypeOf((*OnOrderCreated)(nil)).Elem(), "OnOrderCreated")
	checkInterface(reflect.TypeOf((*OnOrderStateChanged)(nil)).Elem(), "OnOrderStateChanged")
	checkInterface(reflect.TypeOf((*OnOrderClaimed)(nil)).Elem(), "OnOrderClaimed")
	checkInterface(reflect.TypeOf((*OnChallengeChanged)(nil)).Elem(), "OnChallengeChanged")
	checkInterface(reflect.TypeOf((*OnCollateralChanged)(nil)).Elem(), "OnCollateralChanged")
	checkInterface(reflect.TypeOf((*OnLiquidationApplied)(nil)).Elem(), "OnLiquidationApplied")
	checkInterface(reflect.TypeOf((*OnReceipt)(nil)).Elem(), "OnReceipt")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// emit calls fn for every plugin in hooks and logs failures. Hook errors
// never reach the caller.
func emit[T Plugin](ctx context.Context, r *Registry, hook string, hooks []T, fn func(T) error) {
	for _, p := range hooks {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return fn(p)
		}); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, m interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	emit(ctx, r, "OnInit", plugins, func(p OnInit) error { return p.OnInit(ctx, m) })
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	emit(ctx, r, "OnShutdown", plugins, func(p OnShutdown) error { return p.OnShutdown(ctx) })
}

// EmitBillCreated emits a bill created event.
func (r *Registry) EmitBillCreated(ctx context.Context, b *bill.Bill) {
	r.mu.RLock()
	plugins := r.onBillCreated
	r.mu.RUnlock()

	emit(ctx, r, "OnBillCreated", plugins, func(p OnBillCreated) error { return p.OnBillCreated(ctx, b) })
}

// EmitBillClosed emits a bill closed event.
func (r *Registry) EmitBillClosed(ctx context.Context, b *bill.Bill) {
	r.mu.RLock()
	plugins := r.onBillClosed
	r.mu.RUnlock()

	emit(ctx, r, "OnBillClosed", plugins, func(p OnBillClosed) error { return p.OnBillClosed(ctx, b) })
}

// EmitIncentiveIssued emits an incentive event.
func (r *Registry) EmitIncentiveIssued(ctx context.Context, inc *Incentive) {
	r.mu.RLock()
	plugins := r.onIncentiveIssued
	r.mu.RUnlock()

	emit(ctx, r, "OnIncentiveIssued", plugins, func(p OnIncentiveIssued) error { return p.OnIncentiveIssued(ctx, inc) })
}

// EmitOrderCreated emits an order created event.
func (r *Registry) EmitOrderCreated(ctx context.Context, o *order.Order) {
	r.mu.RLock()
	plugins := r.onOrderCreated
	r.mu.RUnlock()

	emit(ctx, r, "OnOrderCreated", plugins, func(p OnOrderCreated) error { return p.OnOrderCreated(ctx, o) })
}

// EmitOrderStateChanged emits a settlement transition.
func (r *Registry) EmitOrderStateChanged(ctx context.Context, o *order.Order, t order.Transition) {
	r.mu.RLock()
	plugins := r.onOrderStateChanged
	r.mu.RUnlock()

	emit(ctx, r, "OnOrderStateChanged", plugins, func(p OnOrderStateChanged) error {
		return p.OnOrderStateChanged(ctx, o, t)
	})
}

// EmitOrderClaimed emits an order claim.
func (r *Registry) EmitOrderClaimed(ctx context.Context, c *OrderClaim) {
	r.mu.RLock()
	plugins := r.onOrderClaimed
	r.mu.RUnlock()

	emit(ctx, r, "OnOrderClaimed", plugins, func(p OnOrderClaimed) error { return p.OnOrderClaimed(ctx, c) })
}

// EmitChallengeChanged emits a challenge state change.
func (r *Registry) EmitChallengeChanged(ctx context.Context, c *challenge.Challenge, from challenge.State) {
	r.mu.RLock()
	plugins := r.onChallengeChanged
	r.mu.RUnlock()

	emit(ctx, r, "OnChallengeChanged", plugins, func(p OnChallengeChanged) error {
		return p.OnChallengeChanged(ctx, c, from)
	})
}

// EmitCollateralChanged emits a collateral pool change.
func (r *Registry) EmitCollateralChanged(ctx context.Context, c *CollateralChange) {
	r.mu.RLock()
	plugins := r.onCollateralChanged
	r.mu.RUnlock()

	emit(ctx, r, "OnCollateralChanged", plugins, func(p OnCollateralChanged) error {
		return p.OnCollateralChanged(ctx, c)
	})
}

// EmitLiquidationApplied emits one maker's liquidation.
func (r *Registry) EmitLiquidationApplied(ctx context.Context, l *Liquidation) {
	r.mu.RLock()
	plugins := r.onLiquidationApplied
	r.mu.RUnlock()

	emit(ctx, r, "OnLiquidationApplied", plugins, func(p OnLiquidationApplied) error {
		return p.OnLiquidationApplied(ctx, l)
	})
}

// EmitReceipt emits a committed receipt.
func (r *Registry) EmitReceipt(ctx context.Context, rec *journal.Receipt) {
	r.mu.RLock()
	plugins := r.onReceipt
	r.mu.RUnlock()

	emit(ctx, r, "OnReceipt", plugins, func(p OnReceipt) error { return p.OnReceipt(ctx, rec) })
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the settlement pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(r.timeout):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
