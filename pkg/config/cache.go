package config

import "time"

// CacheConfig configures the two-tier schema cache: an in-process
// Ristretto L1 and an optional shared Redis L2.
type CacheConfig struct {
	L1MaxCost      int64         `yaml:"l1_max_cost" mapstructure:"l1_max_cost"`
	L1NumCounters  int64         `yaml:"l1_num_counters" mapstructure:"l1_num_counters"`
	L1BufferItems  int64         `yaml:"l1_buffer_items" mapstructure:"l1_buffer_items"`
	L2Enabled      bool          `yaml:"l2_enabled" mapstructure:"l2_enabled"`
	L2Addr         string        `yaml:"l2_addr" mapstructure:"l2_addr"`
	L2Password     string        `yaml:"l2_password" mapstructure:"l2_password"`
	L2DB           int           `yaml:"l2_db" mapstructure:"l2_db"`
	TTL            time.Duration `yaml:"ttl" mapstructure:"ttl"`
}
