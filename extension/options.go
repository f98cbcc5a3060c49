package extension

import (
	"github.com/xraph/dmc"
	"github.com/xraph/dmc/plugin"
	"github.com/xraph/dmc/store"
)

// Option configures the DMC Forge extension.
type Option func(*Extension)

// WithStore sets the store for the market engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithMarketOption passes a dmc.Option through to the underlying engine.
func WithMarketOption(opt dmc.Option) Option {
	return func(e *Extension) {
		e.marketOpts = append(e.marketOpts, opt)
	}
}

// WithPlugin registers a market plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.marketOpts = append(e.marketOpts, dmc.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithSystemAccount sets the protocol account name.
func WithSystemAccount(name string) Option {
	return func(e *Extension) { e.config.SystemAccount = name }
}

// WithBatchLimit sets the row cap of batch calls.
func WithBatchLimit(n int) Option {
	return func(e *Extension) { e.config.BatchLimit = n }
}

// WithBadgerPath opens an embedded badger store at path when no store is
// set.
func WithBadgerPath(path string) Option {
	return func(e *Extension) { e.config.BadgerPath = path }
}

// WithTunable seeds one tunable on start.
func WithTunable(key string, value uint64) Option {
	return func(e *Extension) {
		if e.config.Tunables == nil {
			e.config.Tunables = make(map[string]uint64)
		}
		e.config.Tunables[key] = value
	}
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}
