package config

import "context"

type Store interface {
	GetConfig(ctx context.Context, key Key) (*Entry, error)
	PutConfig(ctx context.Context, e *Entry) error
	ListConfig(ctx context.Context) ([]*Entry, error)
}
