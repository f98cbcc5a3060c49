// Package storetest is a conformance suite that every store.Store backend
// runs from its own tests.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/dmc"
	"github.com/xraph/dmc/account"
	"github.com/xraph/dmc/bill"
	"github.com/xraph/dmc/challenge"
	"github.com/xraph/dmc/config"
	"github.com/xraph/dmc/id"
	"github.com/xraph/dmc/maker"
	"github.com/xraph/dmc/order"
	"github.com/xraph/dmc/store"
	"github.com/xraph/dmc/types"
)

// Factory returns an empty store. The suite closes it.
type Factory func(t *testing.T) store.Store

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Run exercises every method of the store contract against fresh stores
// built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"Balances", testBalances},
		{"Locked", testLocked},
		{"Supply", testSupply},
		{"ConfigAndMeta", testConfigAndMeta},
		{"Bills", testBills},
		{"Orders", testOrders},
		{"Challenges", testChallenges},
		{"Makers", testMakers},
		{"Partners", testPartners},
		{"AtomicRollback", testAtomicRollback},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			require.NoError(t, s.Migrate(context.Background()))
			require.NoError(t, s.Ping(context.Background()))
			tt.fn(t, s)
		})
	}
}

func testBalances(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.GetBalance(ctx, "alice", types.DMC)
	assert.True(t, dmc.IsNotFound(err), "got %v", err)

	require.NoError(t, s.PutBalance(ctx, &account.Balance{Owner: "alice", Symbol: types.DMC, Amount: 500}))
	require.NoError(t, s.PutBalance(ctx, &account.Balance{Owner: "alice", Symbol: types.PST, Amount: 7}))
	require.NoError(t, s.PutBalance(ctx, &account.Balance{Owner: "alice", Symbol: types.DMC, Amount: 450}))

	b, err := s.GetBalance(ctx, "alice", types.DMC)
	require.NoError(t, err)
	assert.Equal(t, int64(450), b.Amount)
	assert.Equal(t, types.DMC, b.Symbol)

	require.NoError(t, s.DeleteBalance(ctx, "alice", types.DMC))
	_, err = s.GetBalance(ctx, "alice", types.DMC)
	assert.ErrorIs(t, err, dmc.ErrBalanceNotFound)

	b, err = s.GetBalance(ctx, "alice", types.PST)
	require.NoError(t, err)
	assert.Equal(t, int64(7), b.Amount)
}

func testLocked(t *testing.T, s store.Store) {
	ctx := context.Background()

	for _, d := range []int{3, 1, 2} {
		require.NoError(t, s.PutLocked(ctx, &account.Locked{
			Owner:    "bob",
			Symbol:   types.PST,
			Amount:   int64(d * 10),
			UnlockAt: t0.Add(time.Duration(d) * 24 * time.Hour),
		}))
	}
	require.NoError(t, s.PutLocked(ctx, &account.Locked{Owner: "bob", Symbol: types.DMC, Amount: 1, UnlockAt: t0}))

	rows, err := s.ListLocked(ctx, "bob", types.PST)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []int64{10, 20, 30}, []int64{rows[0].Amount, rows[1].Amount, rows[2].Amount})
	assert.True(t, rows[0].UnlockAt.Equal(t0.Add(24*time.Hour)))

	require.NoError(t, s.DeleteLocked(ctx, "bob", types.PST, t0.Add(48*time.Hour)))
	rows, err = s.ListLocked(ctx, "bob", types.PST)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(30), rows[1].Amount)

	rows, err = s.ListLocked(ctx, "nobody", types.PST)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func testSupply(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.GetSupply(ctx, types.PST)
	assert.ErrorIs(t, err, dmc.ErrSupplyNotFound)

	require.NoError(t, s.PutSupply(ctx, &account.Supply{Symbol: types.PST, Supply: 60}))
	sp, err := s.GetSupply(ctx, types.PST)
	require.NoError(t, err)
	assert.Equal(t, int64(60), sp.Supply)
}

func testConfigAndMeta(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.GetConfig(ctx, config.KeyPenaltyRate)
	assert.ErrorIs(t, err, dmc.ErrConfigNotFound)

	require.NoError(t, s.PutConfig(ctx, &config.Entry{Entity: types.NewEntity(t0), Key: config.KeyPenaltyRate, Value: 15}))
	require.NoError(t, s.PutConfig(ctx, &config.Entry{Entity: types.NewEntity(t0), Key: config.KeyBenchmarkRate, Value: 250}))

	e, err := s.GetConfig(ctx, config.KeyPenaltyRate)
	require.NoError(t, err)
	assert.Equal(t, uint64(15), e.Value)
	assert.True(t, e.CreatedAt.Equal(t0))

	all, err := s.ListConfig(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, config.KeyBenchmarkRate, all[0].Key)
	assert.Equal(t, config.KeyPenaltyRate, all[1].Key)

	_, err = s.GetMeta(ctx, store.MetaStateRoot)
	assert.ErrorIs(t, err, dmc.ErrMetaNotFound)

	root := []byte{1, 2, 3}
	require.NoError(t, s.PutMeta(ctx, store.MetaStateRoot, root))
	root[0] = 9
	got, err := s.GetMeta(ctx, store.MetaStateRoot)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got)
}

func newBill(seq uint64, provider string, price string, at time.Time) *bill.Bill {
	return &bill.Bill{
		Entity:    types.NewEntity(at),
		ID:        id.FromSequence(id.PrefixBill, seq),
		Provider:  provider,
		Price:     types.MustParseFixed(price),
		Unmatched: 100,
	}
}

func testBills(t *testing.T, s store.Store) {
	ctx := context.Background()

	require.NoError(t, s.PutBill(ctx, newBill(1, "paul", "2", t0)))
	require.NoError(t, s.PutBill(ctx, newBill(2, "bob", "0.5", t0.Add(time.Hour))))
	require.NoError(t, s.PutBill(ctx, newBill(3, "bob", "1.25", t0.Add(2*time.Hour))))

	b, err := s.GetBill(ctx, id.FromSequence(id.PrefixBill, 3))
	require.NoError(t, err)
	assert.Equal(t, "bob", b.Provider)
	assert.Equal(t, types.MustParseFixed("1.25"), b.Price)
	assert.Equal(t, int64(100), b.Unmatched)

	byCreated, err := s.ListBills(ctx, bill.ListOpts{})
	require.NoError(t, err)
	require.Len(t, byCreated, 3)
	assert.Equal(t, uint64(1), seqOf(t, byCreated[0].ID))

	byPrice, err := s.ListBills(ctx, bill.ListOpts{OrderBy: bill.OrderByPrice})
	require.NoError(t, err)
	require.Len(t, byPrice, 3)
	assert.Equal(t, []uint64{2, 3, 1}, []uint64{seqOf(t, byPrice[0].ID), seqOf(t, byPrice[1].ID), seqOf(t, byPrice[2].ID)})

	bobs, err := s.ListBills(ctx, bill.ListOpts{Provider: "bob", Offset: 1, Limit: 5})
	require.NoError(t, err)
	require.Len(t, bobs, 1)
	assert.Equal(t, uint64(3), seqOf(t, bobs[0].ID))

	require.NoError(t, s.DeleteBill(ctx, id.FromSequence(id.PrefixBill, 1)))
	assert.ErrorIs(t, s.DeleteBill(ctx, id.FromSequence(id.PrefixBill, 1)), dmc.ErrBillNotFound)
	_, err = s.GetBill(ctx, id.FromSequence(id.PrefixBill, 1))
	assert.ErrorIs(t, err, dmc.ErrBillNotFound)
}

func testOrders(t *testing.T, s store.Store) {
	ctx := context.Background()

	states := []order.State{order.StateDeliver, order.StateEnd, order.StateWaiting, order.StatePreCont, order.StateCancel}
	for i, st := range states {
		o := &order.Order{
			Entity:           types.NewEntity(t0),
			ID:               id.FromSequence(id.PrefixOrder, uint64(i+1)),
			Consumer:         "alice",
			Provider:         "bob",
			BillID:           id.FromSequence(id.PrefixBill, 1),
			Price:            1000,
			UserPledge:       int64(i) * 10,
			State:            st,
			DeliverStartDate: t0.Add(time.Hour),
		}
		if i%2 == 1 {
			o.Consumer = "carol"
		}
		if st.Terminal() {
			o.EndDate = t0.Add(48 * time.Hour)
		}
		require.NoError(t, s.PutOrder(ctx, o))
	}

	o, err := s.GetOrder(ctx, id.FromSequence(id.PrefixOrder, 4))
	require.NoError(t, err)
	assert.Equal(t, order.StatePreCont, o.State)
	assert.Equal(t, int64(30), o.UserPledge)
	assert.Equal(t, id.FromSequence(id.PrefixBill, 1).String(), o.BillID.String())
	assert.True(t, o.DeliverStartDate.Equal(t0.Add(time.Hour)))
	assert.True(t, o.EndDate.IsZero())

	_, err = s.GetOrder(ctx, id.FromSequence(id.PrefixOrder, 99))
	assert.ErrorIs(t, err, dmc.ErrOrderNotFound)

	active, err := s.ListOrders(ctx, order.ListOpts{Active: true})
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 3, 4}, seqs(t, active))

	page1, err := s.ListOrders(ctx, order.ListOpts{Active: true, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 3}, seqs(t, page1))

	page2, err := s.ListOrders(ctx, order.ListOpts{Active: true, After: page1[1].ID, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []uint64{4}, seqs(t, page2))

	carol, err := s.ListOrders(ctx, order.ListOpts{Consumer: "carol"})
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 4}, seqs(t, carol))

	none, err := s.ListOrders(ctx, order.ListOpts{Provider: "paul"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testChallenges(t *testing.T, s store.Store) {
	ctx := context.Background()
	orderID := id.FromSequence(id.PrefixOrder, 1)

	_, err := s.GetChallenge(ctx, orderID)
	assert.ErrorIs(t, err, dmc.ErrChallengeNotFound)

	c := challenge.New(orderID, t0)
	c.Submit("alice", challenge.Hash{7}, 4, t0)
	c.Submit("bob", challenge.Hash{7}, 4, t0)
	c.State = challenge.StateRequest
	c.DataID = 2
	c.HashData = challenge.Hash{1, 2, 3}
	c.Nonce = "n0nce"
	c.ChallengeTimes = 1
	c.ChallengeDate = t0.Add(time.Hour)
	c.UserLock = 20000
	require.NoError(t, s.PutChallenge(ctx, c))

	got, err := s.GetChallenge(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, challenge.StateRequest, got.State)
	assert.Equal(t, challenge.Hash{7}, got.MerkleRoot)
	assert.Equal(t, uint64(4), got.BlockCount)
	assert.True(t, got.PreMerkleRoot.IsZero())
	assert.Empty(t, got.PreSubmitter)
	assert.Equal(t, challenge.Hash{1, 2, 3}, got.HashData)
	assert.Equal(t, "n0nce", got.Nonce)
	assert.Equal(t, int64(20000), got.UserLock)
	assert.True(t, got.ChallengeDate.Equal(t0.Add(time.Hour)))
	assert.Equal(t, orderID.String(), got.OrderID.String())
}

func testMakers(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.GetMaker(ctx, "bob")
	assert.ErrorIs(t, err, dmc.ErrMakerNotFound)

	pools := []struct {
		provider string
		rate     types.Fixed
	}{
		{"paul", types.FixedFromPercent(120)},
		{"bob", types.FixedFromPercent(140)},
		{"anna", types.FixedFromPercent(120)},
		{"zed", maker.RateCap},
		{"carl", types.FixedFromPercent(300)},
	}
	for _, p := range pools {
		require.NoError(t, s.PutMaker(ctx, &maker.Maker{
			Entity:      types.NewEntity(t0),
			Provider:    p.provider,
			TotalStaked: 1000,
			TotalWeight: 1000,
			MinerRate:   types.FixedFromPercent(20),
			CurrentRate: p.rate,
			Minted:      5,
		}))
	}

	m, err := s.GetMaker(ctx, "zed")
	require.NoError(t, err)
	assert.Equal(t, maker.RateCap, m.CurrentRate)
	assert.Equal(t, types.FixedFromPercent(20), m.MinerRate)

	below, err := s.ListMakersBelowRate(ctx, types.FixedFromPercent(150), 10)
	require.NoError(t, err)
	require.Len(t, below, 3)
	assert.Equal(t, "anna", below[0].Provider)
	assert.Equal(t, "paul", below[1].Provider)
	assert.Equal(t, "bob", below[2].Provider)

	limited, err := s.ListMakersBelowRate(ctx, types.FixedFromPercent(150), 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "anna", limited[0].Provider)

	require.NoError(t, s.DeleteMaker(ctx, "anna"))
	assert.ErrorIs(t, s.DeleteMaker(ctx, "anna"), dmc.ErrMakerNotFound)
}

func testPartners(t *testing.T, s store.Store) {
	ctx := context.Background()

	for _, p := range []string{"paul", "bob", "anna"} {
		require.NoError(t, s.PutPartner(ctx, &maker.Partner{Entity: types.NewEntity(t0), Provider: "bob", Partner: p, Weight: 10}))
	}
	require.NoError(t, s.PutPartner(ctx, &maker.Partner{Entity: types.NewEntity(t0), Provider: "bobby", Partner: "x", Weight: 1}))

	ps, err := s.ListPartners(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, ps, 3)
	assert.Equal(t, []string{"anna", "bob", "paul"}, []string{ps[0].Partner, ps[1].Partner, ps[2].Partner})

	p, err := s.GetPartner(ctx, "bob", "paul")
	require.NoError(t, err)
	assert.Equal(t, int64(10), p.Weight)

	require.NoError(t, s.DeletePartner(ctx, "bob", "paul"))
	assert.ErrorIs(t, s.DeletePartner(ctx, "bob", "paul"), dmc.ErrPartnerNotFound)
	_, err = s.GetPartner(ctx, "bob", "paul")
	assert.ErrorIs(t, err, dmc.ErrPartnerNotFound)
}

func testAtomicRollback(t *testing.T, s store.Store) {
	ctx := context.Background()
	boom := errors.New("boom")

	require.NoError(t, s.PutBalance(ctx, &account.Balance{Owner: "alice", Symbol: types.DMC, Amount: 100}))

	err := s.Atomic(ctx, func(ctx context.Context) error {
		if err := s.PutBalance(ctx, &account.Balance{Owner: "alice", Symbol: types.DMC, Amount: 1}); err != nil {
			return err
		}
		b, err := s.GetBalance(ctx, "alice", types.DMC)
		if err != nil {
			return err
		}
		if b.Amount != 1 {
			return errors.New("write not visible inside the block")
		}
		if err := s.PutSupply(ctx, &account.Supply{Symbol: types.DMC, Supply: 1}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	b, err := s.GetBalance(ctx, "alice", types.DMC)
	require.NoError(t, err)
	assert.Equal(t, int64(100), b.Amount)
	_, err = s.GetSupply(ctx, types.DMC)
	assert.ErrorIs(t, err, dmc.ErrSupplyNotFound)

	err = s.Atomic(ctx, func(ctx context.Context) error {
		return s.Atomic(ctx, func(ctx context.Context) error {
			return s.PutBalance(ctx, &account.Balance{Owner: "alice", Symbol: types.DMC, Amount: 2})
		})
	})
	require.NoError(t, err)
	b, err = s.GetBalance(ctx, "alice", types.DMC)
	require.NoError(t, err)
	assert.Equal(t, int64(2), b.Amount)
}

func seqOf(t *testing.T, i id.ID) uint64 {
	t.Helper()
	seq, ok := i.Sequence()
	require.True(t, ok, "id %s has no sequence", i)
	return seq
}

func seqs(t *testing.T, orders []*order.Order) []uint64 {
	t.Helper()
	out := make([]uint64, len(orders))
	for i, o := range orders {
		out[i] = seqOf(t, o.ID)
	}
	return out
}
