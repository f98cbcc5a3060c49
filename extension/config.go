package extension

// Config holds the DMC extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.dmc" or "dmc" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// SystemAccount is the protocol account allowed to issue tokens and
	// change tunables (default: "dmc.system").
	SystemAccount string `json:"system_account" mapstructure:"system_account" yaml:"system_account"`

	// BatchLimit caps the orders a single SettleOrders call visits
	// (default: 100).
	BatchLimit int `json:"batch_limit" mapstructure:"batch_limit" yaml:"batch_limit"`

	// ConfigCacheSize is the number of tunables kept in the engine's read
	// cache (default: 64).
	ConfigCacheSize int `json:"config_cache_size" mapstructure:"config_cache_size" yaml:"config_cache_size"`

	// BadgerPath, when set and no store was given programmatically, opens
	// an embedded badger store at this directory instead of the memory
	// store.
	BadgerPath string `json:"badger_path" mapstructure:"badger_path" yaml:"badger_path"`

	// Tunables are written through SetConfig on start, keyed by tunable
	// name (for example "penalty_rate: 12"). Values already in effect are
	// left untouched.
	Tunables map[string]uint64 `json:"tunables" mapstructure:"tunables" yaml:"tunables"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SystemAccount:   "dmc.system",
		BatchLimit:      100,
		ConfigCacheSize: 64,
	}
}
