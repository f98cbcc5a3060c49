package postgres

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xraph/grove/drivers/pgdriver"

	"github.com/xraph/dmc"
	"github.com/xraph/dmc/account"
	"github.com/xraph/dmc/types"
)

var errAbort = errors.New("abort")

func TestConnUsesPoolOutsideAtomic(t *testing.T) {
	s := &Store{pg: pgdriver.New()}
	assert.Same(t, s.pg, s.conn(context.Background()))
}

func TestNestedAtomicJoinsTransaction(t *testing.T) {
	s := &Store{pg: pgdriver.New()}
	tx := &pgdriver.PgTx{}
	ctx := context.WithValue(context.Background(), txKey{}, tx)

	var seen querier
	err := s.Atomic(ctx, func(ctx context.Context) error {
		seen = s.conn(ctx)
		return errAbort
	})
	assert.ErrorIs(t, err, errAbort)
	assert.Same(t, tx, seen, "the inner call must not open a second transaction")
}

// TestAtomicRollsBack needs a database; set DMC_POSTGRES_DSN to run it.
func TestAtomicRollsBack(t *testing.T) {
	dsn := os.Getenv("DMC_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("DMC_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	pg := pgdriver.New()
	require.NoError(t, pg.Open(ctx, dsn))
	t.Cleanup(func() { _ = pg.Close() })

	s := &Store{pg: pg}
	require.NoError(t, s.Migrate(ctx))

	owner := "atomic-" + t.Name()
	t.Cleanup(func() { _ = s.DeleteBalance(ctx, owner, types.DMC) })

	err := s.Atomic(ctx, func(ctx context.Context) error {
		if err := s.PutBalance(ctx, &account.Balance{Owner: owner, Symbol: types.DMC, Amount: 5}); err != nil {
			return err
		}
		return errAbort
	})
	require.ErrorIs(t, err, errAbort)

	_, err = s.GetBalance(ctx, owner, types.DMC)
	assert.ErrorIs(t, err, dmc.ErrBalanceNotFound, "the aborted write must not be visible")

	require.NoError(t, s.Atomic(ctx, func(ctx context.Context) error {
		return s.PutBalance(ctx, &account.Balance{Owner: owner, Symbol: types.DMC, Amount: 7})
	}))
	b, err := s.GetBalance(ctx, owner, types.DMC)
	require.NoError(t, err)
	assert.Equal(t, int64(7), b.Amount)
}
