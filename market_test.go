package dmc_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/dmc"
	"github.com/xraph/dmc/bill"
	"github.com/xraph/dmc/challenge"
	"github.com/xraph/dmc/id"
	"github.com/xraph/dmc/journal"
	"github.com/xraph/dmc/order"
	"github.com/xraph/dmc/store/memory"
	"github.com/xraph/dmc/types"
)

const (
	provider = "paul"
	consumer = "carol"
	backer   = "bob"
	keeper   = "kim"
)

var t0 = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func as(name string) context.Context {
	return dmc.WithPrincipal(context.Background(), name)
}

func newMarket(t *testing.T, opts ...dmc.Option) (*dmc.Market, *fakeClock) {
	t.Helper()
	clk := &fakeClock{now: t0}
	m := dmc.New(memory.New(), append([]dmc.Option{dmc.WithClock(clk)}, opts...)...)
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() { _ = m.Stop() })
	return m, clk
}

// fund gives the provider a 300 DMC pool with 100 PST minted and the
// consumer 100 DMC.
func fund(t *testing.T, m *dmc.Market) {
	t.Helper()
	sys := as(dmc.DefaultSystemAccount)
	require.NoError(t, m.Issue(sys, provider, types.NewDMC(10_000_000)))
	require.NoError(t, m.Issue(sys, consumer, types.NewDMC(1_000_000)))

	_, err := m.Increase(as(provider), provider, provider, types.NewDMC(3_000_000))
	require.NoError(t, err)
	_, err = m.Mint(as(provider), provider, 100)
	require.NoError(t, err)
}

// placeOrder bills 100 PST at 0.5 and orders 40 of it.
func placeOrder(t *testing.T, m *dmc.Market, reserve int64) (*bill.Bill, *order.Order) {
	t.Helper()
	b, err := m.Bill(as(provider), provider, 100, types.MustParseFixed("0.5"))
	require.NoError(t, err)
	o, err := m.Order(as(consumer), consumer, b.ID, 40, types.NewDMC(reserve))
	require.NoError(t, err)
	return b, o
}

// agree submits the same commitment from both parties.
func agree(t *testing.T, m *dmc.Market, orderID id.OrderID, root challenge.Hash, count uint64) {
	t.Helper()
	_, err := m.SubmitMerkle(as(consumer), consumer, orderID, root, count)
	require.NoError(t, err)
	_, err = m.SubmitMerkle(as(provider), provider, orderID, root, count)
	require.NoError(t, err)
}

// assertBillConserved checks that a bill holds no more capacity than was
// posted less what was unbilled, and that its matched capacity equals the
// miner pledges of the orders drawn on it.
func assertBillConserved(t *testing.T, m *dmc.Market, billID id.BillID, billed, unbilled int64) {
	t.Helper()
	ctx := context.Background()

	var unmatched, matched int64
	bl, err := m.GetBill(ctx, billID)
	switch {
	case dmc.IsNotFound(err):
	case err != nil:
		require.NoError(t, err)
	default:
		unmatched, matched = bl.Unmatched, bl.Matched
	}
	assert.GreaterOrEqual(t, unmatched, int64(0), "bill %s unmatched", billID)
	assert.GreaterOrEqual(t, matched, int64(0), "bill %s matched", billID)
	assert.LessOrEqual(t, unmatched+matched, billed-unbilled, "bill %s holds more than it was posted", billID)

	orders, err := m.Orders(ctx, order.ListOpts{})
	require.NoError(t, err)
	var pledged int64
	for _, o := range orders {
		if o.BillID == billID {
			pledged += o.MinerPledge
		}
	}
	assert.Equal(t, matched, pledged, "bill %s matched capacity against order pledges", billID)
}

func balance(t *testing.T, m *dmc.Market, owner string, sym types.Symbol) int64 {
	t.Helper()
	a, err := m.Balance(context.Background(), owner, sym)
	require.NoError(t, err)
	return a.Amount
}

func TestOrderMatchesBill(t *testing.T) {
	m, _ := newMarket(t)
	fund(t, m)

	b, o := placeOrder(t, m, 0)

	assert.Equal(t, int64(800_000), balance(t, m, consumer, types.DMC), "consumer pays ceil(0.5 × 40) DMC")
	assert.Equal(t, int64(200_000), o.Price)
	assert.Equal(t, int64(200_000), o.UserPledge)
	assert.Equal(t, int64(40), o.MinerPledge)
	assert.Equal(t, order.StateWaiting, o.State)
	assert.Equal(t, provider, o.Provider)

	got, err := m.GetBill(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(60), got.Unmatched)
	assert.Equal(t, int64(40), got.Matched)

	c, err := m.GetChallenge(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, challenge.StatePrepare, c.State)
	assert.Equal(t, "ord_00000000000000000000000001", o.ID.String())
	assert.Equal(t, "bill_00000000000000000000000001", b.ID.String())
}

func TestOrderRoundsPriceUp(t *testing.T) {
	m, _ := newMarket(t)
	fund(t, m)

	// 1/3 DMC per PST for 1 PST is 3333.33… base units.
	third, err := types.FixedFromRatio(1, 3)
	require.NoError(t, err)
	b, err := m.Bill(as(provider), provider, 10, third)
	require.NoError(t, err)

	o, err := m.Order(as(consumer), consumer, b.ID, 1, types.Asset{})
	require.NoError(t, err)
	assert.Equal(t, int64(3334), o.Price)
}

func TestFailedCallChangesNothing(t *testing.T) {
	m, _ := newMarket(t)
	fund(t, m)

	b, err := m.Bill(as(provider), provider, 100, types.MustParseFixed("0.5"))
	require.NoError(t, err)
	rootBefore, seqBefore, err := m.StateRoot(context.Background())
	require.NoError(t, err)

	// The reserve exceeds the consumer's balance.
	_, err = m.Order(as(consumer), consumer, b.ID, 40, types.NewDMC(5_000_000))
	require.Error(t, err)
	assert.True(t, dmc.IsInsufficientFunds(err))

	got, err := m.GetBill(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.Unmatched)
	assert.Equal(t, int64(1_000_000), balance(t, m, consumer, types.DMC))

	rootAfter, seqAfter, err := m.StateRoot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, rootBefore, rootAfter)
	assert.Equal(t, seqBefore, seqAfter)

	// The failed call did not consume an order id.
	o, err := m.Order(as(consumer), consumer, b.ID, 40, types.Asset{})
	require.NoError(t, err)
	assert.Equal(t, "ord_00000000000000000000000001", o.ID.String())
}

func TestAuthorization(t *testing.T) {
	m, _ := newMarket(t)
	fund(t, m)

	_, err := m.Bill(context.Background(), provider, 10, types.One)
	assert.ErrorIs(t, err, dmc.ErrNoPrincipal)

	_, err = m.Bill(as(consumer), provider, 10, types.One)
	assert.True(t, dmc.IsAuthorization(err))

	err = m.Issue(as(provider), provider, types.NewDMC(1))
	assert.True(t, dmc.IsAuthorization(err))

	err = m.SetConfig(as(provider), "benchmark_rate", 300)
	assert.True(t, dmc.IsAuthorization(err))
}

func TestValidation(t *testing.T) {
	m, _ := newMarket(t)
	fund(t, m)

	tests := []struct {
		name string
		call func() error
	}{
		{"zero bill", func() error {
			_, err := m.Bill(as(provider), provider, 0, types.One)
			return err
		}},
		{"zero price", func() error {
			_, err := m.Bill(as(provider), provider, 10, 0)
			return err
		}},
		{"issue pst", func() error {
			return m.Issue(as(dmc.DefaultSystemAccount), provider, types.NewPST(1))
		}},
		{"transfer to self", func() error {
			return m.Transfer(as(consumer), consumer, consumer, types.NewDMC(1))
		}},
		{"unknown config", func() error {
			return m.SetConfig(as(dmc.DefaultSystemAccount), "nope", 1)
		}},
		{"bad percentage", func() error {
			return m.SetConfig(as(dmc.DefaultSystemAccount), "penalty_rate", 101)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			assert.True(t, dmc.IsValidation(err), "got %v", err)
		})
	}
}

func TestTransferAndUnlock(t *testing.T) {
	m, clk := newMarket(t)
	fund(t, m)

	require.NoError(t, m.Transfer(as(consumer), consumer, backer, types.NewDMC(1000)))
	assert.Equal(t, int64(1000), balance(t, m, backer, types.DMC))

	err := m.Transfer(as(backer), backer, consumer, types.NewDMC(1001))
	assert.ErrorIs(t, err, dmc.ErrInsufficientBalance)

	_, err = m.Unlock(as(backer), backer, types.DMC)
	assert.ErrorIs(t, err, dmc.ErrNothingToClaim)

	// Redeemed collateral is time-locked once redeem_lock is set.
	require.NoError(t, m.SetConfig(as(dmc.DefaultSystemAccount), "redeem_lock", 3600))
	require.NoError(t, m.Issue(as(dmc.DefaultSystemAccount), backer, types.NewDMC(1_000_000)))
	_, err = m.Increase(as(backer), backer, provider, types.NewDMC(1_000_000))
	require.NoError(t, err)
	out, err := m.Redeem(as(backer), backer, provider, types.One)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000), out.Amount)

	rows, err := m.LockedBalances(context.Background(), backer, types.DMC)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, t0.Add(time.Hour), rows[0].UnlockAt)

	_, err = m.Unlock(as(backer), backer, types.DMC)
	assert.ErrorIs(t, err, dmc.ErrNothingToClaim)

	clk.Advance(time.Hour)
	got, err := m.Unlock(as(backer), backer, types.DMC)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000), got.Amount)
	assert.Equal(t, int64(1_001_000), balance(t, m, backer, types.DMC))
}

func TestConfig(t *testing.T) {
	m, _ := newMarket(t)
	ctx := context.Background()

	v, err := m.Config(ctx, "benchmark_rate")
	require.NoError(t, err)
	assert.Equal(t, uint64(200), v)

	require.NoError(t, m.SetConfig(as(dmc.DefaultSystemAccount), "benchmark_rate", 300))
	v, err = m.Config(ctx, "benchmark_rate")
	require.NoError(t, err)
	assert.Equal(t, uint64(300), v)

	_, err = m.Config(ctx, "nope")
	assert.ErrorIs(t, err, dmc.ErrUnknownConfigKey)
}

func TestClockNeverGoesBack(t *testing.T) {
	m, clk := newMarket(t)
	fund(t, m)

	clk.Advance(time.Hour)
	b, err := m.Bill(as(provider), provider, 10, types.One)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(time.Hour), b.CreatedAt)

	clk.Advance(-2 * time.Hour)
	b2, err := m.Bill(as(provider), provider, 10, types.One)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(time.Hour), b2.CreatedAt)
}

// script runs a fixed sequence of calls used by the determinism test.
func script(t *testing.T, m *dmc.Market, clk *fakeClock) {
	t.Helper()
	fund(t, m)
	_, o := placeOrder(t, m, 200_000)
	agree(t, m, o.ID, challenge.Leaf([]byte("root")), 4)
	clk.Advance(8 * 24 * time.Hour)
	_, err := m.ClaimOrder(as(provider), provider, o.ID)
	require.NoError(t, err)
}

func TestStateRootIsDeterministic(t *testing.T) {
	m1, c1 := newMarket(t)
	m2, c2 := newMarket(t)
	script(t, m1, c1)
	script(t, m2, c2)

	r1, s1, err := m1.StateRoot(context.Background())
	require.NoError(t, err)
	r2, s2, err := m2.StateRoot(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, r1)
	assert.Equal(t, r1, r2)
	assert.Equal(t, s1, s2)
}

type recorder struct {
	mu          sync.Mutex
	transitions []order.Transition
	receipts    []*journal.Receipt
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) OnOrderStateChanged(_ context.Context, _ *order.Order, tr order.Transition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, tr)
	return nil
}

func (r *recorder) OnReceipt(_ context.Context, rec *journal.Receipt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receipts = append(r.receipts, rec)
	return nil
}

func TestPluginsSeeCommittedCallsOnly(t *testing.T) {
	rec := &recorder{}
	m, _ := newMarket(t, dmc.WithPlugin(rec))
	fund(t, m)
	_, o := placeOrder(t, m, 0)

	n := len(rec.receipts)
	_, err := m.SubmitMerkle(as(keeper), keeper, o.ID, challenge.Hash{1}, 4)
	require.ErrorIs(t, err, dmc.ErrNotParty)
	assert.Len(t, rec.receipts, n)

	agree(t, m, o.ID, challenge.Hash{1}, 4)
	require.Len(t, rec.transitions, 1)
	assert.Equal(t, order.StateWaiting, rec.transitions[0].From)
	assert.Equal(t, order.StateDeliver, rec.transitions[0].To)

	_, seq, err := m.StateRoot(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, rec.receipts)
	assert.Equal(t, seq, rec.receipts[len(rec.receipts)-1].Seq)
	for i, r := range rec.receipts {
		assert.Equal(t, uint64(i+1), r.Seq)
	}
}
