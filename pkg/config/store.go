package config

import "time"

// StoreConfig configures the bbolt-backed KV store that models the spec's
// append-only trees (atoms, refs, schemas, transforms).
type StoreConfig struct {
	Path        string        `yaml:"path" mapstructure:"path"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
	NoGrowSync  bool          `yaml:"no_grow_sync" mapstructure:"no_grow_sync"`
	ReadOnly    bool          `yaml:"read_only" mapstructure:"read_only"`
}
