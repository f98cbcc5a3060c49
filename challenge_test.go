package dmc_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/dmc"
	"github.com/xraph/dmc/challenge"
	"github.com/xraph/dmc/order"
	"github.com/xraph/dmc/types"
)

// blocks returns n data blocks, their leaves and the tree root.
func blocks(n int) ([][]byte, []challenge.Hash, challenge.Hash) {
	data := make([][]byte, n)
	leaves := make([]challenge.Hash, n)
	for i := range data {
		data[i] = []byte(fmt.Sprintf("block-%d", i))
		leaves[i] = challenge.Leaf(data[i])
	}
	return data, leaves, challenge.Root(leaves)
}

func TestRequestChallengeLocksDeposit(t *testing.T) {
	m, clk := newMarket(t)
	fund(t, m)
	_, o := placeOrder(t, m, 0)

	_, err := m.RequestChallenge(as(consumer), consumer, o.ID, 0, challenge.Hash{1}, "n")
	assert.ErrorIs(t, err, dmc.ErrOrderNotDelivering, "no commitment yet")

	agree(t, m, o.ID, challenge.Hash{7}, 4)
	clk.Advance(time.Hour)

	_, err = m.RequestChallenge(as(consumer), consumer, o.ID, 4, challenge.Hash{1}, "n")
	assert.ErrorIs(t, err, dmc.ErrInvalidDataID)
	_, err = m.RequestChallenge(as(provider), provider, o.ID, 0, challenge.Hash{1}, "n")
	assert.ErrorIs(t, err, dmc.ErrNotParty)

	c, err := m.RequestChallenge(as(consumer), consumer, o.ID, 3, challenge.Hash{1}, "n")
	require.NoError(t, err)
	assert.Equal(t, challenge.StateRequest, c.State)
	assert.Equal(t, int64(20_000), c.UserLock, "10% of one installment")
	assert.Equal(t, uint64(1), c.ChallengeTimes)

	got, err := m.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(180_000), got.UserPledge)

	_, err = m.RequestChallenge(as(consumer), consumer, o.ID, 1, challenge.Hash{1}, "n")
	assert.ErrorIs(t, err, dmc.ErrChallengeOpen)
}

func TestOpenDisputeFreezesSettlement(t *testing.T) {
	m, clk := newMarket(t)
	fund(t, m)
	_, o := placeOrder(t, m, 0)
	agree(t, m, o.ID, challenge.Hash{7}, 4)
	clk.Advance(time.Hour)

	_, err := m.RequestChallenge(as(consumer), consumer, o.ID, 0, challenge.Hash{1}, "n")
	require.NoError(t, err)

	clk.Advance(8 * day)
	got, err := m.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StateDeliver, got.State)
	assert.Zero(t, got.LockPledge)
	assert.Zero(t, got.SettlementPledge)

	c, err := m.GetChallenge(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, challenge.StateTimeout, c.State)
}

func TestAnswerChallenge(t *testing.T) {
	m, clk := newMarket(t)
	fund(t, m)
	_, o := placeOrder(t, m, 0)
	agree(t, m, o.ID, challenge.Hash{7}, 4)
	clk.Advance(time.Hour)

	reply := challenge.Hash{42}
	_, err := m.RequestChallenge(as(consumer), consumer, o.ID, 2, challenge.DoubleHash(reply), "n")
	require.NoError(t, err)

	_, err = m.AnswerChallenge(as(provider), provider, o.ID, challenge.Hash{41})
	assert.ErrorIs(t, err, dmc.ErrProofMismatch)

	c, err := m.AnswerChallenge(as(provider), provider, o.ID, reply)
	require.NoError(t, err)
	assert.Equal(t, challenge.StateAnswer, c.State)
	assert.Equal(t, int64(2_000), c.MinerPay, "1% of one installment")
	assert.Zero(t, c.UserLock)

	assert.Equal(t, int64(818_000), balance(t, m, consumer, types.DMC))
	assert.Equal(t, int64(7_002_000), balance(t, m, provider, types.DMC))

	_, err = m.AnswerChallenge(as(provider), provider, o.ID, reply)
	assert.ErrorIs(t, err, dmc.ErrChallengeNotOpen)

	// An answered challenge allows a fresh commitment round.
	c, err = m.SubmitMerkle(as(provider), provider, o.ID, challenge.Hash{8}, 6)
	require.NoError(t, err)
	assert.Equal(t, challenge.StatePrepare, c.State)
	assert.Equal(t, challenge.Hash{7}, c.MerkleRoot, "the agreed commitment stands until replaced")
}

func TestAnswerAfterWindowCloses(t *testing.T) {
	m, clk := newMarket(t)
	fund(t, m)
	_, o := placeOrder(t, m, 0)
	agree(t, m, o.ID, challenge.Hash{7}, 4)

	reply := challenge.Hash{42}
	_, err := m.RequestChallenge(as(consumer), consumer, o.ID, 0, challenge.DoubleHash(reply), "n")
	require.NoError(t, err)

	_, err = m.PayChallenge(as(keeper), o.ID)
	assert.ErrorIs(t, err, dmc.ErrChallengeNotTimeout)

	clk.Advance(day)
	_, err = m.AnswerChallenge(as(provider), provider, o.ID, reply)
	assert.ErrorIs(t, err, dmc.ErrAnswerWindowClosed)
}

func TestPayChallengeSlashesCollateral(t *testing.T) {
	m, clk := newMarket(t)
	fund(t, m)
	b, o := placeOrder(t, m, 0)
	agree(t, m, o.ID, challenge.Hash{7}, 4)
	clk.Advance(time.Hour)

	_, err := m.RequestChallenge(as(consumer), consumer, o.ID, 0, challenge.Hash{1}, "n")
	require.NoError(t, err)
	clk.Advance(day)

	_, err = m.PayChallenge(context.Background(), o.ID)
	assert.ErrorIs(t, err, dmc.ErrNoPrincipal)

	c, err := m.PayChallenge(as(keeper), o.ID)
	require.NoError(t, err)
	assert.Equal(t, challenge.StateArbitrationMinerPay, c.State)

	// Slash is 200% of one installment: half to the system account, half
	// plus the deposit and the unspent pledge to the consumer.
	assert.Equal(t, int64(200_000), balance(t, m, dmc.DefaultSystemAccount, types.DMC))
	assert.Equal(t, int64(1_200_000), balance(t, m, consumer, types.DMC))

	mk, err := m.GetMaker(context.Background(), provider)
	require.NoError(t, err)
	assert.Equal(t, int64(2_600_000), mk.TotalStaked)
	assert.Equal(t, int64(60), mk.Minted)

	supply, err := m.Supply(context.Background(), types.PST)
	require.NoError(t, err)
	assert.Equal(t, int64(60), supply.Amount)

	got, err := m.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StateEnd, got.State)
	assert.Zero(t, got.Escrowed())
	assertBillConserved(t, m, b.ID, 100, 0)
}

func TestArbitrate(t *testing.T) {
	data, leaves, root := blocks(5)
	proof, err := challenge.Proof(leaves, 4)
	require.NoError(t, err)

	tests := []struct {
		name  string
		block []byte
		proof []challenge.Hash
		want  challenge.State
		order order.State
	}{
		{
			name:  "valid proof clears the provider",
			block: data[4],
			proof: proof,
			want:  challenge.StateArbitrationUserPay,
			order: order.StateDeliver,
		},
		{
			name:  "wrong block forces payment",
			block: data[3],
			proof: proof,
			want:  challenge.StateArbitrationMinerPay,
			order: order.StateEnd,
		},
		{
			name:  "short proof forces payment",
			block: data[4],
			proof: nil,
			want:  challenge.StateArbitrationMinerPay,
			order: order.StateEnd,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, clk := newMarket(t)
			fund(t, m)
			_, o := placeOrder(t, m, 0)
			agree(t, m, o.ID, root, uint64(len(leaves)))
			clk.Advance(time.Hour)

			_, err := m.RequestChallenge(as(consumer), consumer, o.ID, 4, challenge.Hash{1}, "n")
			require.NoError(t, err)

			c, err := m.Arbitrate(as(provider), provider, o.ID, tt.block, tt.proof)
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.State)

			got, err := m.GetOrder(context.Background(), o.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.order, got.State)
		})
	}
}
