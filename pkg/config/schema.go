package config

import "fmt"

// SchemaConfig selects and configures the external SchemaSource the schema
// registry loads schema definitions from.
type SchemaConfig struct {
	Source   string `yaml:"source" mapstructure:"source"` // "file" or "s3"
	FilePath string `yaml:"file_path" mapstructure:"file_path"`
	S3Bucket string `yaml:"s3_bucket" mapstructure:"s3_bucket"`
	S3Prefix string `yaml:"s3_prefix" mapstructure:"s3_prefix"`
	S3Region string `yaml:"s3_region" mapstructure:"s3_region"`
}

func (s *SchemaConfig) Validate() error {
	switch s.Source {
	case "file":
		if s.FilePath == "" {
			return fmt.Errorf("schema.file_path required for file source")
		}
	case "s3":
		if s.S3Bucket == "" {
			return fmt.Errorf("schema.s3_bucket required for s3 source")
		}
	default:
		return fmt.Errorf("invalid schema source: %s, must be one of: file, s3", s.Source)
	}
	return nil
}
