package challenge

import (
	"context"

	"github.com/xraph/dmc/id"
)

type Store interface {
	GetChallenge(ctx context.Context, orderID id.OrderID) (*Challenge, error)
	PutChallenge(ctx context.Context, c *Challenge) error
}
