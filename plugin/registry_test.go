package plugin_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/dmc/bill"
	"github.com/xraph/dmc/journal"
	"github.com/xraph/dmc/order"
	"github.com/xraph/dmc/plugin"
)

type named struct{ name string }

func (n named) Name() string { return n.name }

type billWatcher struct {
	named
	mu     sync.Mutex
	bills  []*bill.Bill
	closed int
	err    error
}

func (w *billWatcher) OnBillCreated(_ context.Context, b *bill.Bill) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.bills = append(w.bills, b)
	return w.err
}

func (w *billWatcher) OnBillClosed(context.Context, *bill.Bill) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed++
	return nil
}

type slowReceipts struct {
	named
	release chan struct{}
}

func (s *slowReceipts) OnReceipt(ctx context.Context, _ *journal.Receipt) error {
	select {
	case <-s.release:
	case <-ctx.Done():
	}
	return nil
}

func quietRegistry() *plugin.Registry {
	return plugin.NewRegistry().WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := quietRegistry()
	require.NoError(t, r.Register(&billWatcher{named: named{"bills"}}))

	err := r.Register(&billWatcher{named: named{"bills"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
	assert.Equal(t, 1, r.Count())
}

func TestGetAndList(t *testing.T) {
	r := quietRegistry()
	a := &billWatcher{named: named{"a"}}
	b := named{"b"}
	require.NoError(t, r.Register(a))
	require.NoError(t, r.Register(b))

	assert.Same(t, a, r.Get("a"))
	assert.Nil(t, r.Get("missing"))
	assert.Len(t, r.List(), 2)
}

func TestEmitDispatchesToImplementers(t *testing.T) {
	r := quietRegistry()
	w := &billWatcher{named: named{"bills"}}
	require.NoError(t, r.Register(w))
	require.NoError(t, r.Register(named{"bare"}))

	ctx := context.Background()
	b := &bill.Bill{Provider: "paul"}
	r.EmitBillCreated(ctx, b)
	r.EmitBillClosed(ctx, b)
	r.EmitOrderCreated(ctx, &order.Order{})

	w.mu.Lock()
	defer w.mu.Unlock()
	require.Len(t, w.bills, 1)
	assert.Same(t, b, w.bills[0])
	assert.Equal(t, 1, w.closed)
}

func TestHookErrorsDoNotPropagate(t *testing.T) {
	r := quietRegistry()
	failing := &billWatcher{named: named{"failing"}, err: errors.New("boom")}
	after := &billWatcher{named: named{"after"}}
	require.NoError(t, r.Register(failing))
	require.NoError(t, r.Register(after))

	r.EmitBillCreated(context.Background(), &bill.Bill{})

	after.mu.Lock()
	defer after.mu.Unlock()
	assert.Len(t, after.bills, 1)
}

func TestSlowHookTimesOut(t *testing.T) {
	r := quietRegistry().WithTimeout(20 * time.Millisecond)
	slow := &slowReceipts{named: named{"slow"}, release: make(chan struct{})}
	defer close(slow.release)
	require.NoError(t, r.Register(slow))

	start := time.Now()
	r.EmitReceipt(context.Background(), &journal.Receipt{})
	assert.Less(t, time.Since(start), time.Second)
}
