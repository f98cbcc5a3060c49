package dmc_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/dmc"
	"github.com/xraph/dmc/config"
	"github.com/xraph/dmc/maker"
	"github.com/xraph/dmc/types"
)

func TestIncreaseOpensAndDilutesPool(t *testing.T) {
	m, _ := newMarket(t)
	sys := as(dmc.DefaultSystemAccount)
	require.NoError(t, m.Issue(sys, provider, types.NewDMC(10_000_000)))
	require.NoError(t, m.Issue(sys, backer, types.NewDMC(2_000_000)))

	_, err := m.Increase(as(backer), backer, provider, types.NewDMC(1_000_000))
	assert.ErrorIs(t, err, dmc.ErrFirstStake)

	own, err := m.Increase(as(provider), provider, provider, types.NewDMC(3_000_000))
	require.NoError(t, err)
	assert.Equal(t, int64(3_000_000), own.Weight, "an empty pool prices weight at one base unit")

	mk, err := m.GetMaker(context.Background(), provider)
	require.NoError(t, err)
	assert.Equal(t, types.FixedFromPercent(20), mk.MinerRate)
	assert.Equal(t, maker.RateCap, mk.CurrentRate, "nothing minted yet")

	_, err = m.Increase(as(backer), backer, provider, types.NewDMC(1))
	assert.ErrorIs(t, err, dmc.ErrDustShare)

	pr, err := m.Increase(as(backer), backer, provider, types.NewDMC(1_000_000))
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000), pr.Weight)

	mk, err = m.GetMaker(context.Background(), provider)
	require.NoError(t, err)
	assert.Equal(t, int64(4_000_000), mk.TotalStaked)
	assert.Equal(t, int64(4_000_000), mk.TotalWeight)

	partners, err := m.Partners(context.Background(), provider)
	require.NoError(t, err)
	require.Len(t, partners, 2)
	assert.Equal(t, backer, partners[0].Partner)
	assert.Equal(t, provider, partners[1].Partner)

	// The provider holds 75% of the weight.
	assert.ErrorIs(t, m.SetMinerRate(as(provider), provider, types.FixedFromPercent(80)), dmc.ErrMinerRate)
	require.NoError(t, m.SetMinerRate(as(provider), provider, types.FixedFromPercent(75)))

	_, err = m.Increase(as(backer), backer, provider, types.NewDMC(1_000_000))
	assert.ErrorIs(t, err, dmc.ErrMinerRate, "the backer may not dilute the provider below its miner rate")
	assert.Equal(t, int64(1_000_000), balance(t, m, backer, types.DMC))
}

func TestMintRespectsBenchmark(t *testing.T) {
	m, _ := newMarket(t)
	require.NoError(t, m.Issue(as(dmc.DefaultSystemAccount), provider, types.NewDMC(10_000_000)))

	_, err := m.Mint(as(provider), provider, 1)
	assert.True(t, dmc.IsNotFound(err), "no pool yet")

	_, err = m.Increase(as(provider), provider, provider, types.NewDMC(3_000_000))
	require.NoError(t, err)

	// 300 DMC at 200% covers 150 PST worth one DMC each.
	_, err = m.Mint(as(provider), provider, 151)
	assert.ErrorIs(t, err, dmc.ErrMintCapExceeded)

	mk, err := m.Mint(as(provider), provider, 150)
	require.NoError(t, err)
	assert.Equal(t, int64(150), mk.Minted)
	assert.True(t, mk.CurrentRate.AtLeastPercent(200))
	assert.Equal(t, int64(150), balance(t, m, provider, types.PST))

	_, err = m.Mint(as(provider), provider, 1)
	assert.ErrorIs(t, err, dmc.ErrMintCapExceeded)
}

func TestRedeem(t *testing.T) {
	m, _ := newMarket(t)
	fund(t, m)
	require.NoError(t, m.Issue(as(dmc.DefaultSystemAccount), backer, types.NewDMC(1_000_000)))
	_, err := m.Increase(as(backer), backer, provider, types.NewDMC(1_000_000))
	require.NoError(t, err)

	// The provider cannot take the pool below 200% while 100 PST is out.
	_, err = m.Redeem(as(provider), provider, provider, types.One)
	assert.ErrorIs(t, err, dmc.ErrInsufficientCollateral)

	_, err = m.Redeem(as(backer), backer, provider, 0)
	assert.ErrorIs(t, err, dmc.ErrInvalidRate)

	got, err := m.Redeem(as(backer), backer, provider, types.One)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000), got.Amount)
	assert.Equal(t, int64(1_000_000), balance(t, m, backer, types.DMC))

	partners, err := m.Partners(context.Background(), provider)
	require.NoError(t, err)
	require.Len(t, partners, 1)
	assert.Equal(t, provider, partners[0].Partner)

	got, err = m.Redeem(as(provider), provider, provider, types.FixedFromPercent(25))
	require.NoError(t, err)
	assert.Equal(t, int64(750_000), got.Amount)

	mk, err := m.GetMaker(context.Background(), provider)
	require.NoError(t, err)
	assert.Equal(t, int64(2_250_000), mk.TotalStaked)
	assert.Equal(t, int64(2_250_000), mk.TotalWeight)
}

func TestRedeemLastPartnerClosesPool(t *testing.T) {
	m, _ := newMarket(t)
	require.NoError(t, m.Issue(as(dmc.DefaultSystemAccount), provider, types.NewDMC(3_000_000)))
	_, err := m.Increase(as(provider), provider, provider, types.NewDMC(3_000_000))
	require.NoError(t, err)

	got, err := m.Redeem(as(provider), provider, provider, types.One)
	require.NoError(t, err)
	assert.Equal(t, int64(3_000_000), got.Amount)

	_, err = m.GetMaker(context.Background(), provider)
	assert.True(t, dmc.IsNotFound(err))
}

func TestLiquidate(t *testing.T) {
	m, _ := newMarket(t)
	require.NoError(t, m.Issue(as(dmc.DefaultSystemAccount), provider, types.NewDMC(3_000_000)))
	_, err := m.Increase(as(provider), provider, provider, types.NewDMC(3_000_000))
	require.NoError(t, err)
	_, err = m.Mint(as(provider), provider, 150)
	require.NoError(t, err)

	_, err = m.Liquidate(context.Background(), 5)
	assert.ErrorIs(t, err, dmc.ErrNoPrincipal)
	_, err = m.Liquidate(as(keeper), 0)
	assert.ErrorIs(t, err, dmc.ErrInvalidBatch)
	_, err = m.Liquidate(as(keeper), dmc.MaxLiquidationBatch+1)
	assert.ErrorIs(t, err, dmc.ErrInvalidBatch)

	res, err := m.Liquidate(as(keeper), 5)
	require.NoError(t, err)
	assert.Zero(t, res.Processed, "200% is above the 150% threshold")

	require.NoError(t, m.SetConfig(as(dmc.DefaultSystemAccount), config.KeyLiquidationRate, 250))

	res, err = m.Liquidate(as(keeper), 5)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, provider, res.Last)

	// Retiring 32 PST and forfeiting 10% of their value restores 250%.
	mk, err := m.GetMaker(context.Background(), provider)
	require.NoError(t, err)
	assert.Equal(t, int64(118), mk.Minted)
	assert.Equal(t, int64(2_968_000), mk.TotalStaked)
	assert.True(t, mk.CurrentRate.AtLeastPercent(250))

	assert.Equal(t, int64(118), balance(t, m, provider, types.PST))
	assert.Equal(t, int64(32_000), balance(t, m, dmc.DefaultSystemAccount, types.DMC))

	supply, err := m.Supply(context.Background(), types.PST)
	require.NoError(t, err)
	assert.Equal(t, int64(118), supply.Amount)

	res, err = m.Liquidate(as(keeper), 5)
	require.NoError(t, err)
	assert.Zero(t, res.Processed)
}

func TestLiquidateRetiresBillCapacity(t *testing.T) {
	m, _ := newMarket(t)
	sys := as(dmc.DefaultSystemAccount)
	require.NoError(t, m.Issue(sys, provider, types.NewDMC(3_000_000)))
	require.NoError(t, m.Issue(sys, consumer, types.NewDMC(1_000_000)))
	_, err := m.Increase(as(provider), provider, provider, types.NewDMC(3_000_000))
	require.NoError(t, err)
	_, err = m.Mint(as(provider), provider, 150)
	require.NoError(t, err)

	b, err := m.Bill(as(provider), provider, 140, types.One)
	require.NoError(t, err)
	require.NoError(t, m.SetConfig(sys, config.KeyLiquidationRate, 250))

	res, err := m.Liquidate(as(keeper), 5)
	require.NoError(t, err)
	require.Equal(t, 1, res.Processed)

	assert.Zero(t, balance(t, m, provider, types.PST))
	bl, err := m.GetBill(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(118), bl.Unmatched, "10 free PST go first, then 22 from the bill")
	assertBillConserved(t, m, b.ID, 140, 0)
}

func TestLiquidateForfeitsStakeWhenShort(t *testing.T) {
	m, _ := newMarket(t)
	sys := as(dmc.DefaultSystemAccount)
	require.NoError(t, m.Issue(sys, provider, types.NewDMC(3_000_000)))
	require.NoError(t, m.Issue(sys, consumer, types.NewDMC(1_000_000)))
	_, err := m.Increase(as(provider), provider, provider, types.NewDMC(3_000_000))
	require.NoError(t, err)
	_, err = m.Mint(as(provider), provider, 150)
	require.NoError(t, err)
	b, _ := placeOrder(t, m, 0) // 40 PST matched, 60 unmatched, 50 free

	require.NoError(t, m.SetConfig(sys, config.KeyLiquidationRate, 1000))
	res, err := m.Liquidate(as(keeper), 5)
	require.NoError(t, err)
	require.Equal(t, 1, res.Processed)

	mk, err := m.GetMaker(context.Background(), provider)
	require.NoError(t, err)
	assert.Equal(t, int64(40), mk.Minted, "only matched capacity survives")
	assert.Zero(t, mk.TotalStaked)
	assert.Equal(t, int64(3_000_000), balance(t, m, dmc.DefaultSystemAccount, types.DMC))
	assertBillConserved(t, m, b.ID, 100, 0)
}

func TestStakeRatioChangeReprices(t *testing.T) {
	m, _ := newMarket(t)
	sys := as(dmc.DefaultSystemAccount)
	require.NoError(t, m.Issue(sys, provider, types.NewDMC(3_000_000)))
	require.NoError(t, m.Issue(sys, backer, types.NewDMC(1_000_000)))
	_, err := m.Increase(as(provider), provider, provider, types.NewDMC(3_000_000))
	require.NoError(t, err)
	_, err = m.Increase(as(backer), backer, backer, types.NewDMC(1_000_000))
	require.NoError(t, err)
	_, err = m.Mint(as(provider), provider, 150)
	require.NoError(t, err)

	res, err := m.Liquidate(as(keeper), 5)
	require.NoError(t, err)
	require.Zero(t, res.Processed, "200% is above the 150% threshold")

	// One PST is now worth two DMC, so the same stake covers 100%.
	require.NoError(t, m.SetConfig(sys, config.KeyStakeRatio, uint64(2*types.One)))

	mk, err := m.GetMaker(context.Background(), provider)
	require.NoError(t, err)
	assert.Equal(t, types.One, mk.CurrentRate)

	idle, err := m.GetMaker(context.Background(), backer)
	require.NoError(t, err)
	assert.Equal(t, maker.RateCap, idle.CurrentRate, "a pool that minted nothing is not repriced")

	res, err = m.Liquidate(as(keeper), 5)
	require.NoError(t, err)
	require.Equal(t, 1, res.Processed)
	assert.Equal(t, provider, res.Last)

	// 54 PST retired, 10% of their 108 DMC value forfeited.
	mk, err = m.GetMaker(context.Background(), provider)
	require.NoError(t, err)
	assert.Equal(t, int64(96), mk.Minted)
	assert.Equal(t, int64(2_892_000), mk.TotalStaked)
	assert.True(t, mk.CurrentRate.AtLeastPercent(150))
	assert.Equal(t, int64(108_000), balance(t, m, dmc.DefaultSystemAccount, types.DMC))
}

func TestCleanPST(t *testing.T) {
	m, _ := newMarket(t)
	fund(t, m)
	const orphan = "olga"
	require.NoError(t, m.Transfer(as(provider), provider, orphan, types.NewPST(10)))
	b, err := m.Bill(as(provider), provider, 50, types.One)
	require.NoError(t, err)

	_, err = m.CleanPST(as(keeper), []string{orphan})
	assert.True(t, dmc.IsAuthorization(err))

	res, err := m.CleanPST(as(dmc.DefaultSystemAccount), []string{orphan, provider})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	require.Len(t, res.Failures.Errors, 1)
	assert.ErrorIs(t, res.Failures.First(), dmc.ErrMakerRegistered)

	assert.Zero(t, balance(t, m, orphan, types.PST))
	assert.Equal(t, int64(40), balance(t, m, provider, types.PST))
	assertBillConserved(t, m, b.ID, 50, 0)

	supply, err := m.Supply(context.Background(), types.PST)
	require.NoError(t, err)
	assert.Equal(t, int64(90), supply.Amount)
}
