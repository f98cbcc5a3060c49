package bill

import (
	"context"

	"github.com/xraph/dmc/id"
)

type Store interface {
	GetBill(ctx context.Context, billID id.BillID) (*Bill, error)
	PutBill(ctx context.Context, b *Bill) error
	DeleteBill(ctx context.Context, billID id.BillID) error
	ListBills(ctx context.Context, opts ListOpts) ([]*Bill, error)
}

// Order selects the ordering of ListBills.
type Order string

const (
	// OrderByCreated lists bills oldest first.
	OrderByCreated Order = "created"
	// OrderByPrice lists bills cheapest first.
	OrderByPrice Order = "price"
)

type ListOpts struct {
	Provider string
	OrderBy  Order
	Limit    int
	Offset   int
}
