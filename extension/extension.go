// Package extension provides the Forge extension adapter for the DMC
// market.
//
// It implements the forge.Extension interface to integrate the market
// into a Forge application with DI registration and lifecycle
// management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.dmc" or "dmc" keys.
package extension

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/dmc"
	"github.com/xraph/dmc/config"
	"github.com/xraph/dmc/store"
	badgerstore "github.com/xraph/dmc/store/badger"
	"github.com/xraph/dmc/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "dmc"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Storage-capacity market settlement engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the DMC market as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *dmc.Market
	store      store.Store
	marketOpts []dmc.Option
}

// New creates a new DMC Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Market instance.
// This is nil until Register is called.
func (e *Extension) Engine() *dmc.Market { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// opens the store, initializes the market and registers it in the DI
// container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if e.store == nil {
		s, err := openStore(e.config)
		if err != nil {
			return err
		}
		e.store = s
	}

	e.engine = dmc.New(e.store, e.buildMarketOpts()...)

	return vessel.Provide(fapp.Container(), func() (*dmc.Market, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("dmc: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	changed, err := seedTunables(ctx, e.engine, e.config.Tunables)
	if err != nil {
		return err
	}
	if len(changed) > 0 {
		e.Logger().Info("dmc: tunables seeded", forge.F("keys", changed))
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension]. Stopping the market also closes
// the store.
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("dmc: store not initialized")
	}
	return e.store.Ping(ctx)
}

// openStore picks the backend named by cfg.
func openStore(cfg Config) (store.Store, error) {
	if cfg.BadgerPath == "" {
		return memory.New(), nil
	}
	s, err := badgerstore.New(cfg.BadgerPath, nil)
	if err != nil {
		return nil, fmt.Errorf("dmc: open badger store: %w", err)
	}
	return s, nil
}

// buildMarketOpts constructs dmc.Option values from the resolved config.
func (e *Extension) buildMarketOpts() []dmc.Option {
	opts := make([]dmc.Option, 0, len(e.marketOpts)+3)

	opts = append(opts,
		dmc.WithSystemAccount(e.config.SystemAccount),
		dmc.WithBatchLimit(e.config.BatchLimit),
		dmc.WithConfigCacheSize(e.config.ConfigCacheSize),
	)

	// Pass-through options win over config-derived ones.
	opts = append(opts, e.marketOpts...)

	return opts
}

// seedTunables writes every configured tunable whose value differs from
// the one in effect, in key order, as the system account. It returns the
// keys it changed.
func seedTunables(ctx context.Context, m *dmc.Market, tunables map[string]uint64) ([]string, error) {
	keys := make([]string, 0, len(tunables))
	for k := range tunables {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sys := dmc.WithPrincipal(ctx, m.SystemAccount())
	changed := make([]string, 0, len(keys))
	for _, k := range keys {
		key := config.Key(k)
		if _, ok := config.Default(key); !ok {
			return changed, fmt.Errorf("dmc: tunable %q: %w", k, dmc.ErrUnknownConfigKey)
		}
		current, err := m.Config(ctx, key)
		if err != nil {
			return changed, fmt.Errorf("dmc: read tunable %q: %w", k, err)
		}
		if current == tunables[k] {
			continue
		}
		if err := m.SetConfig(sys, key, tunables[k]); err != nil {
			return changed, fmt.Errorf("dmc: seed tunable %q: %w", k, err)
		}
		changed = append(changed, k)
	}
	return changed, nil
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("dmc: configuration is required but not found in config files; " +
				"ensure 'extensions.dmc' or 'dmc' key exists in your config")
		}

		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("dmc: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("system_account", e.config.SystemAccount),
		forge.F("batch_limit", e.config.BatchLimit),
		forge.F("config_cache_size", e.config.ConfigCacheSize),
		forge.F("badger_path", e.config.BadgerPath),
		forge.F("tunables", len(e.config.Tunables)),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()

	for _, key := range []string{"extensions.dmc", "dmc"} {
		if !cm.IsSet(key) {
			continue
		}
		var cfg Config
		if err := cm.Bind(key, &cfg); err != nil {
			e.Logger().Warn("dmc: failed to bind config",
				forge.F("key", key),
				forge.F("error", err.Error()),
			)
			continue
		}
		e.Logger().Debug("dmc: loaded config from file", forge.F("key", key))
		return cfg, true
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.SystemAccount == "" {
		cfg.SystemAccount = defaults.SystemAccount
	}
	if cfg.BatchLimit == 0 {
		cfg.BatchLimit = defaults.BatchLimit
	}
	if cfg.ConfigCacheSize == 0 {
		cfg.ConfigCacheSize = defaults.ConfigCacheSize
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence; programmatic values fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	if yamlConfig.SystemAccount == "" {
		yamlConfig.SystemAccount = programmaticConfig.SystemAccount
	}
	if yamlConfig.BadgerPath == "" {
		yamlConfig.BadgerPath = programmaticConfig.BadgerPath
	}
	if yamlConfig.BatchLimit == 0 {
		yamlConfig.BatchLimit = programmaticConfig.BatchLimit
	}
	if yamlConfig.ConfigCacheSize == 0 {
		yamlConfig.ConfigCacheSize = programmaticConfig.ConfigCacheSize
	}

	// Tunables merge per key, YAML winning on conflicts.
	if len(programmaticConfig.Tunables) > 0 {
		merged := make(map[string]uint64, len(programmaticConfig.Tunables)+len(yamlConfig.Tunables))
		for k, v := range programmaticConfig.Tunables {
			merged[k] = v
		}
		for k, v := range yamlConfig.Tunables {
			merged[k] = v
		}
		yamlConfig.Tunables = merged
	}

	return mergeWithDefaults(yamlConfig)
}
