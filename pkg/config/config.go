// Package config loads FoldDB's process configuration from a YAML file,
// environment variables, and built-in defaults using Viper, the way the
// teacher's pkg/config package does for its own services.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration object for a FoldDB process.
type Config struct {
	App       AppConfig       `yaml:"app" mapstructure:"app"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Bus       BusConfig       `yaml:"bus" mapstructure:"bus"`
	Transform TransformConfig `yaml:"transform" mapstructure:"transform"`
	Schema    SchemaConfig    `yaml:"schema" mapstructure:"schema"`
	Logger    LoggerConfig    `yaml:"logger" mapstructure:"logger"`
	Metrics   MetricsConfig   `yaml:"metrics" mapstructure:"metrics"`
	Tracing   TracingConfig   `yaml:"tracing" mapstructure:"tracing"`
}

// Load reads configuration from config.yaml (searched in ., ./config and
// /etc/folddb), environment variables, and defaults; environment
// variables override the file, which overrides the defaults.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/folddb")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)
	bindEnvVars(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "folddb")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("app.stage", string(StageDevelopment))
	v.SetDefault("app.debug", false)

	v.SetDefault("store.path", "./data/folddb.db")
	v.SetDefault("store.timeout", 5*time.Second)
	v.SetDefault("store.no_grow_sync", false)

	v.SetDefault("cache.l1_max_cost", int64(1<<26))
	v.SetDefault("cache.l1_num_counters", int64(1e6))
	v.SetDefault("cache.l1_buffer_items", int64(64))
	v.SetDefault("cache.l2_enabled", false)
	v.SetDefault("cache.l2_addr", "localhost:6379")
	v.SetDefault("cache.l2_db", 0)
	v.SetDefault("cache.ttl", 10*time.Minute)

	v.SetDefault("bus.request_timeout", 5*time.Second)
	v.SetDefault("bus.subscriber_buffer", 256)

	v.SetDefault("transform.max_cascade_depth", 8)
	v.SetDefault("transform.worker_count", 4)
	v.SetDefault("transform.eval_timeout", 2*time.Second)
	v.SetDefault("transform.retry_base_delay", 100*time.Millisecond)
	v.SetDefault("transform.retry_max_delay", 30*time.Second)
	v.SetDefault("transform.retry_max_attempts", 10)

	v.SetDefault("schema.source", "file")
	v.SetDefault("schema.file_path", "./schemas")
	v.SetDefault("schema.s3_bucket", "")
	v.SetDefault("schema.s3_prefix", "schemas/")
	v.SetDefault("schema.s3_region", "us-east-1")

	v.SetDefault("logger.backend", "zerolog")
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.development", false)
	v.SetDefault("logger.output", "stdout")

	v.SetDefault("metrics.provider", "prometheus")
	v.SetDefault("metrics.namespace", "folddb")
	v.SetDefault("metrics.enabled", true)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.exporter", "stdout")
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.sample_ratio", 1.0)
}

func bindEnvVars(v *viper.Viper) {
	v.BindEnv("app.name", "FOLDDB_APP_NAME")
	v.BindEnv("app.stage", "FOLDDB_STAGE")
	v.BindEnv("app.debug", "FOLDDB_DEBUG")

	v.BindEnv("store.path", "FOLDDB_STORE_PATH")
	v.BindEnv("store.timeout", "FOLDDB_STORE_TIMEOUT")

	v.BindEnv("cache.l2_enabled", "FOLDDB_CACHE_L2_ENABLED")
	v.BindEnv("cache.l2_addr", "FOLDDB_REDIS_ADDR")
	v.BindEnv("cache.l2_db", "FOLDDB_REDIS_DB")

	v.BindEnv("transform.max_cascade_depth", "FOLDDB_MAX_CASCADE_DEPTH")
	v.BindEnv("transform.worker_count", "FOLDDB_TRANSFORM_WORKERS")

	v.BindEnv("schema.source", "FOLDDB_SCHEMA_SOURCE")
	v.BindEnv("schema.file_path", "FOLDDB_SCHEMA_PATH")
	v.BindEnv("schema.s3_bucket", "FOLDDB_SCHEMA_S3_BUCKET")

	v.BindEnv("logger.backend", "FOLDDB_LOG_BACKEND")
	v.BindEnv("logger.level", "FOLDDB_LOG_LEVEL")
	v.BindEnv("logger.format", "FOLDDB_LOG_FORMAT")

	v.BindEnv("metrics.enabled", "FOLDDB_METRICS_ENABLED")
	v.BindEnv("tracing.enabled", "FOLDDB_TRACING_ENABLED")
	v.BindEnv("tracing.endpoint", "FOLDDB_TRACING_ENDPOINT")
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path cannot be empty")
	}
	if c.Transform.MaxCascadeDepth <= 0 {
		return fmt.Errorf("transform.max_cascade_depth must be positive")
	}
	if c.Transform.WorkerCount <= 0 {
		return fmt.Errorf("transform.worker_count must be positive")
	}
	if err := c.Schema.Validate(); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	if err := c.Logger.Validate(); err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	return nil
}
