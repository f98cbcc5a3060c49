package account

import (
	"context"
	"time"

	"github.com/xraph/dmc/types"
)

type Store interface {
	GetBalance(ctx context.Context, owner string, sym types.Symbol) (*Balance, error)
	PutBalance(ctx context.Context, b *Balance) error
	DeleteBalance(ctx context.Context, owner string, sym types.Symbol) error

	// ListLocked returns an owner's locked rows ordered by UnlockAt.
	ListLocked(ctx context.Context, owner string, sym types.Symbol) ([]*Locked, error)
	PutLocked(ctx context.Context, l *Locked) error
	DeleteLocked(ctx context.Context, owner string, sym types.Symbol, unlockAt time.Time) error

	GetSupply(ctx context.Context, sym types.Symbol) (*Supply, error)
	PutSupply(ctx context.Context, s *Supply) error
}
