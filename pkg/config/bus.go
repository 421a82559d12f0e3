package config

import "time"

// BusConfig configures the in-process pub/sub message bus.
type BusConfig struct {
	RequestTimeout   time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`
	SubscriberBuffer int           `yaml:"subscriber_buffer" mapstructure:"subscriber_buffer"`
}

// TransformConfig configures the transform orchestrator and executor.
type TransformConfig struct {
	MaxCascadeDepth  int           `yaml:"max_cascade_depth" mapstructure:"max_cascade_depth"`
	WorkerCount      int           `yaml:"worker_count" mapstructure:"worker_count"`
	EvalTimeout      time.Duration `yaml:"eval_timeout" mapstructure:"eval_timeout"`
	RetryBaseDelay   time.Duration `yaml:"retry_base_delay" mapstructure:"retry_base_delay"`
	RetryMaxDelay    time.Duration `yaml:"retry_max_delay" mapstructure:"retry_max_delay"`
	RetryMaxAttempts int           `yaml:"retry_max_attempts" mapstructure:"retry_max_attempts"`
}
