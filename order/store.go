package order

import (
	"context"

	"github.com/xraph/dmc/id"
)

type Store interface {
	GetOrder(ctx context.Context, orderID id.OrderID) (*Order, error)
	PutOrder(ctx context.Context, o *Order) error
	ListOrders(ctx context.Context, opts ListOpts) ([]*Order, error)
}

// ListOpts filters ListOrders. Results are ordered by id.
type ListOpts struct {
	Consumer string
	Provider string
	// Active restricts the result to non-terminal orders.
	Active bool
	// After skips orders whose id sorts at or before this one.
	After id.OrderID
	Limit int
}
