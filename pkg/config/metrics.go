package config

// MetricsConfig configures the metrics provider: a Prometheus registry or
// an OpenTelemetry meter, chosen by Provider.
type MetricsConfig struct {
	Provider  string `yaml:"provider" mapstructure:"provider"` // "prometheus" or "otel"
	Namespace string `yaml:"namespace" mapstructure:"namespace"`
	Enabled   bool   `yaml:"enabled" mapstructure:"enabled"`
}

// TracingConfig configures the OpenTelemetry tracer provider.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled" mapstructure:"enabled"`
	Exporter    string  `yaml:"exporter" mapstructure:"exporter"` // "stdout", "otlp-grpc", "otlp-http"
	Endpoint    string  `yaml:"endpoint" mapstructure:"endpoint"`
	SampleRatio float64 `yaml:"sample_ratio" mapstructure:"sample_ratio"`
}
