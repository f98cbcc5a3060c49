package maker

import (
	"context"

	"github.com/xraph/dmc/types"
)

type Store interface {
	GetMaker(ctx context.Context, provider string) (*Maker, error)
	PutMaker(ctx context.Context, m *Maker) error
	DeleteMaker(ctx context.Context, provider string) error
	// ListMakersBelowRate returns makers whose CurrentRate is strictly
	// below rate, lowest rate first, ties broken by provider.
	ListMakersBelowRate(ctx context.Context, rate types.Fixed, limit int) ([]*Maker, error)

	GetPartner(ctx context.Context, provider, partner string) (*Partner, error)
	PutPartner(ctx context.Context, p *Partner) error
	DeletePartner(ctx context.Context, provider, partner string) error
	// ListPartners returns a pool's partners ordered by partner name.
	ListPartners(ctx context.Context, provider string) ([]*Partner, error)
}
