package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/foldb/folddb/pkg/logger"
)

// LoggerConfig is the on-disk/env shape for pkg/logger.Config.
type LoggerConfig struct {
	Backend     string `yaml:"backend" mapstructure:"backend"`
	Level       string `yaml:"level" mapstructure:"level"`
	Format      string `yaml:"format" mapstructure:"format"`
	Development bool   `yaml:"development" mapstructure:"development"`
	Output      string `yaml:"output" mapstructure:"output"`
}

func (l *LoggerConfig) Validate() error {
	switch logger.Backend(l.Backend) {
	case logger.BackendZerolog, logger.BackendZap, logger.BackendSlog:
	default:
		return fmt.Errorf("invalid logger backend: %s, must be one of: zerolog, zap, slog", l.Backend)
	}
	switch strings.ToLower(l.Format) {
	case "json", "text", "console":
	default:
		return fmt.Errorf("invalid logger format: %s, must be one of: json, text, console", l.Format)
	}
	return nil
}

// ToLoggerConfig bridges the file/env config into pkg/logger.Config,
// folding in app-level debug/stage so FOLDDB_DEBUG overrides a quieter
// configured level.
func (l *LoggerConfig) ToLoggerConfig(app *AppConfig) logger.Config {
	cfg := logger.Config{
		Backend:     logger.Backend(l.Backend),
		Format:      l.Format,
		Development: l.Development,
		ServiceName: app.Name,
		Version:     app.Version,
	}

	if app.Stage == StageDevelopment || app.Stage == StageTesting {
		cfg.Development = true
	}

	level := l.Level
	if app.Debug {
		level = "debug"
	} else if level == "" {
		level = app.GetLogLevel()
	}
	cfg.Level = logger.ParseLogLevel(level)

	switch strings.ToLower(l.Output) {
	case "stderr":
		cfg.Output = os.Stderr
	case "stdout", "":
		cfg.Output = os.Stdout
	default:
		if f, err := os.OpenFile(l.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			cfg.Output = f
		} else {
			cfg.Output = os.Stdout
		}
	}

	return cfg
}
