package badger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/dmc"
	"github.com/xraph/dmc/account"
	"github.com/xraph/dmc/store"
	"github.com/xraph/dmc/store/badger"
	"github.com/xraph/dmc/store/storetest"
	"github.com/xraph/dmc/types"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := badger.New("", badger.InMemoryOptions())
		require.NoError(t, err)
		return s
	})
}

func TestReopenKeepsRecords(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	opts := badger.DefaultOptions()
	opts.GcInterval = 0

	s, err := badger.New(dir, opts)
	require.NoError(t, err)
	require.NoError(t, s.PutBalance(ctx, &account.Balance{Owner: "alice", Symbol: types.DMC, Amount: 42}))
	require.NoError(t, s.PutLocked(ctx, &account.Locked{
		Owner:    "alice",
		Symbol:   types.DMC,
		Amount:   7,
		UnlockAt: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, s.Close())

	s, err = badger.New(dir, opts)
	require.NoError(t, err)
	defer s.Close()

	b, err := s.GetBalance(ctx, "alice", types.DMC)
	require.NoError(t, err)
	assert.Equal(t, int64(42), b.Amount)

	rows, err := s.ListLocked(ctx, "alice", types.DMC)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, time.UTC, rows[0].UnlockAt.Location())
}

func TestClosedStore(t *testing.T) {
	s, err := badger.New("", badger.InMemoryOptions())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	ctx := context.Background()
	assert.ErrorIs(t, s.Ping(ctx), badger.ErrClosed)
	_, err = s.GetBalance(ctx, "alice", types.DMC)
	assert.ErrorIs(t, err, badger.ErrClosed)
	assert.False(t, dmc.IsNotFound(err))
	assert.ErrorIs(t, s.Close(), badger.ErrClosed)
	assert.Nil(t, s.DB())
}

func TestMarketOnBadger(t *testing.T) {
	s, err := badger.New("", badger.InMemoryOptions())
	require.NoError(t, err)

	m := dmc.New(s)
	ctx := context.Background()
	require.NoError(t, m.Start(ctx))

	sys := dmc.WithPrincipal(ctx, dmc.DefaultSystemAccount)
	require.NoError(t, m.Issue(sys, "alice", types.NewDMC(5_000_000)))

	bal, err := m.Balance(ctx, "alice", types.DMC)
	require.NoError(t, err)
	assert.Equal(t, int64(5_000_000), bal.Amount)

	root, seq, err := m.StateRoot(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, root)
	assert.NotZero(t, seq)

	require.NoError(t, m.Stop())
	assert.ErrorIs(t, s.Ping(ctx), badger.ErrClosed)
}
