package dmc_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/dmc"
	"github.com/xraph/dmc/challenge"
	"github.com/xraph/dmc/id"
	"github.com/xraph/dmc/order"
	"github.com/xraph/dmc/types"
)

const day = 24 * time.Hour

func TestConsistentCommitmentStartsDelivery(t *testing.T) {
	m, _ := newMarket(t)
	fund(t, m)
	_, o := placeOrder(t, m, 0)
	root := challenge.Leaf([]byte("R"))

	c, err := m.SubmitMerkle(as(consumer), consumer, o.ID, root, 5)
	require.NoError(t, err)
	assert.Equal(t, challenge.StatePrepare, c.State, "one submission is never enough")

	// The same party repeating itself does not count.
	c, err = m.SubmitMerkle(as(consumer), consumer, o.ID, root, 5)
	require.NoError(t, err)
	assert.Equal(t, challenge.StatePrepare, c.State)

	c, err = m.SubmitMerkle(as(provider), provider, o.ID, root, 5)
	require.NoError(t, err)
	assert.Equal(t, challenge.StateConsistent, c.State)
	assert.Equal(t, root, c.MerkleRoot)
	assert.Equal(t, uint64(5), c.BlockCount)

	got, err := m.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StateDeliver, got.State)
	assert.Equal(t, t0, got.DeliverStartDate)
	assert.Equal(t, t0, got.LatestSettlementDate)
}

func TestSettlementCatchesUpOnTouch(t *testing.T) {
	m, clk := newMarket(t)
	fund(t, m)
	_, o := placeOrder(t, m, 200_000)
	agree(t, m, o.ID, challenge.Hash{7}, 4)

	clk.Advance(6 * day)
	got, err := m.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatePreCont, got.State)
	assert.Equal(t, int64(200_000), got.UserPledge)
	assert.Equal(t, int64(200_000), got.LockPledge)

	// A read does not persist the replay; reading again is a no-op.
	again, err := m.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, got.State, again.State)
	assert.Equal(t, got.LockPledge, again.LockPledge)

	clk.Advance(15 * day) // three periods after delivery started
	got, err = m.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StateEnd, got.State)
	assert.Equal(t, int64(400_000), got.SettlementPledge)
	assert.Equal(t, int64(0), got.UserPledge+got.LockPledge)
	assert.Equal(t, t0.Add(21*day), got.EndDate)
}

func TestOrderEndBurnsCapacity(t *testing.T) {
	m, clk := newMarket(t)
	fund(t, m)
	b, o := placeOrder(t, m, 0)
	agree(t, m, o.ID, challenge.Hash{7}, 4)
	assertBillConserved(t, m, b.ID, 100, 0)

	clk.Advance(14 * day)
	res, err := m.SettleOrders(as(keeper), id.Nil, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.False(t, res.Failures.HasErrors())

	got, err := m.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StateEnd, got.State)
	assert.Equal(t, int64(200_000), got.SettlementPledge)

	bl, err := m.GetBill(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), bl.Matched)
	assert.Equal(t, int64(60), bl.Unmatched)
	assertBillConserved(t, m, b.ID, 100, 0)

	supply, err := m.Supply(context.Background(), types.PST)
	require.NoError(t, err)
	assert.Equal(t, int64(60), supply.Amount)

	mk, err := m.GetMaker(context.Background(), provider)
	require.NoError(t, err)
	assert.Equal(t, int64(60), mk.Minted)
}

func TestAddOrderAssetResumes(t *testing.T) {
	m, clk := newMarket(t)
	fund(t, m)
	_, o := placeOrder(t, m, 0)
	agree(t, m, o.ID, challenge.Hash{7}, 4)

	clk.Advance(13 * day)
	got, err := m.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	require.Equal(t, order.StatePreEnd, got.State)

	got, err = m.AddOrderAsset(as(consumer), consumer, o.ID, types.NewDMC(250_000))
	require.NoError(t, err)
	assert.Equal(t, order.StatePreCont, got.State)
	assert.Equal(t, int64(200_000), got.LockPledge)
	assert.Equal(t, int64(50_000), got.UserPledge)

	_, err = m.AddOrderAsset(as(provider), consumer, o.ID, types.NewDMC(1))
	assert.True(t, dmc.IsAuthorization(err))
}

func TestCancelOrder(t *testing.T) {
	m, clk := newMarket(t)
	fund(t, m)
	b, o := placeOrder(t, m, 100_000)
	agree(t, m, o.ID, challenge.Hash{7}, 4)

	clk.Advance(6 * day)
	got, err := m.CancelOrder(as(provider), provider, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StateCancel, got.State)
	assert.Equal(t, int64(200_000), got.SettlementPledge, "the locked installment is earned")

	// 1,000,000 − 300,000 paid in + 100,000 unspent refunded.
	assert.Equal(t, int64(800_000), balance(t, m, consumer, types.DMC))
	// The miner pledge returns to the provider: 100 minted − 100 billed + 40.
	assert.Equal(t, int64(40), balance(t, m, provider, types.PST))

	bl, err := m.GetBill(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), bl.Matched)
	assertBillConserved(t, m, b.ID, 100, 0)

	_, err = m.CancelOrder(as(consumer), consumer, o.ID)
	assert.ErrorIs(t, err, dmc.ErrOrderTerminal)
}

func TestCancelRejectedWhileChallengeOpen(t *testing.T) {
	m, _ := newMarket(t)
	fund(t, m)
	_, o := placeOrder(t, m, 0)
	agree(t, m, o.ID, challenge.Hash{7}, 4)

	_, err := m.RequestChallenge(as(consumer), consumer, o.ID, 1, challenge.Hash{9}, "n")
	require.NoError(t, err)

	_, err = m.CancelOrder(as(consumer), consumer, o.ID)
	assert.ErrorIs(t, err, dmc.ErrChallengeOpen)
}

func TestClaimOrder(t *testing.T) {
	m, clk := newMarket(t)
	fund(t, m)
	_, o := placeOrder(t, m, 200_000)
	agree(t, m, o.ID, challenge.Hash{7}, 4)

	_, err := m.ClaimOrder(as(provider), provider, o.ID)
	assert.ErrorIs(t, err, dmc.ErrNothingToClaim)

	clk.Advance(8 * day)
	dmcBefore := balance(t, m, provider, types.DMC)
	res, err := m.ClaimOrder(as(provider), provider, o.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(1), res.Epochs)
	assert.Equal(t, int64(160_000), res.ProviderAmount.Amount)
	assert.Equal(t, int64(40_000), res.PoolAmount.Amount)
	assert.Equal(t, int64(2_000_000_000), res.ConsumerReward.Amount)
	assert.Equal(t, int64(3_000_000_000), res.ProviderReward.Amount)

	assert.Equal(t, dmcBefore+160_000, balance(t, m, provider, types.DMC))
	assert.Equal(t, int64(2_000_000_000), balance(t, m, consumer, types.RSI))

	mk, err := m.GetMaker(context.Background(), provider)
	require.NoError(t, err)
	assert.Equal(t, int64(3_040_000), mk.TotalStaked)

	got, err := m.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.SettlementPledge)
	assert.Equal(t, t0.Add(7*day), got.ClaimDate)

	_, err = m.ClaimOrder(as(consumer), consumer, o.ID)
	assert.ErrorIs(t, err, dmc.ErrNotParty)
}

func TestBillIncentive(t *testing.T) {
	m, clk := newMarket(t)
	fund(t, m)
	b, err := m.Bill(as(provider), provider, 100, types.One)
	require.NoError(t, err)

	// 200% of one RSI per PST per claim interval is 330 base units a second.
	clk.Advance(day)
	got, err := m.ClaimBillIncentive(as(provider), provider, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(330*86_400*100), got.Amount)

	// Accrual stops one claim interval after the bill was posted.
	clk.Advance(9 * day)
	got, err = m.ClaimBillIncentive(as(provider), provider, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(330*6*86_400*100), got.Amount)

	_, err = m.ClaimBillIncentive(as(provider), provider, b.ID)
	assert.ErrorIs(t, err, dmc.ErrNothingToClaim)
}

func TestUnbill(t *testing.T) {
	m, _ := newMarket(t)
	fund(t, m)
	b, _ := placeOrder(t, m, 0)

	refund, err := m.Unbill(as(provider), provider, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(60), refund.Amount)
	assert.Equal(t, int64(60), balance(t, m, provider, types.PST))

	bl, err := m.GetBill(context.Background(), b.ID)
	require.NoError(t, err, "a bill with matched capacity is kept")
	assert.Equal(t, int64(0), bl.Unmatched)

	_, err = m.Unbill(as(provider), provider, b.ID)
	assert.ErrorIs(t, err, dmc.ErrBillMatched)
	assertBillConserved(t, m, b.ID, 100, 60)

	b2, err := m.Bill(as(provider), provider, 10, types.One)
	require.NoError(t, err)
	_, err = m.Unbill(as(provider), provider, b2.ID)
	require.NoError(t, err)
	_, err = m.GetBill(context.Background(), b2.ID)
	assert.True(t, dmc.IsNotFound(err))
	assertBillConserved(t, m, b2.ID, 10, 10)
}

func TestSettleOrdersSkipsAndPages(t *testing.T) {
	m, clk := newMarket(t)
	fund(t, m)
	b, o1 := placeOrder(t, m, 200_000)
	o2, err := m.Order(as(consumer), consumer, b.ID, 10, types.Asset{})
	require.NoError(t, err)
	agree(t, m, o1.ID, challenge.Hash{1}, 4)
	agree(t, m, o2.ID, challenge.Hash{2}, 4)

	_, err = m.SettleOrders(as(keeper), id.Nil, 0)
	assert.ErrorIs(t, err, dmc.ErrInvalidBatch)

	clk.Advance(7 * day)
	res, err := m.SettleOrders(as(keeper), id.Nil, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, o1.ID.String(), res.Last)

	next, err := id.ParseOrderID(res.Last)
	require.NoError(t, err)
	res, err = m.SettleOrders(as(keeper), next, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)

	stored, err := m.Orders(context.Background(), order.ListOpts{Consumer: consumer})
	require.NoError(t, err)
	require.Len(t, stored, 2)
	for _, o := range stored {
		assert.Positive(t, o.SettlementPledge, o.ID.String())
	}
}
