package logger

import (
	"context"
	"log/slog"
	"os"
)

type slogLogger struct {
	logger *slog.Logger
	config Config
	level  LogLevel
}

func newSlogLogger(config Config) (*slogLogger, error) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: logLevelToSlog(config.Level),
	}

	if config.Format == "console" || config.Format == "text" {
		handler = slog.NewTextHandler(config.Output, opts)
	} else {
		handler = slog.NewJSONHandler(config.Output, opts)
	}

	l := slog.New(handler).With(
		"service", config.ServiceName,
		"version", config.Version,
	)

	return &slogLogger{logger: l, config: config, level: config.Level}, nil
}

func (s *slogLogger) Debug(msg string, fields ...Fields) { s.logger.Debug(msg, fieldsToSlog(fields...)...) }
func (s *slogLogger) Info(msg string, fields ...Fields)  { s.logger.Info(msg, fieldsToSlog(fields...)...) }
func (s *slogLogger) Warn(msg string, fields ...Fields)  { s.logger.Warn(msg, fieldsToSlog(fields...)...) }
func (s *slogLogger) Error(msg string, fields ...Fields) { s.logger.Error(msg, fieldsToSlog(fields...)...) }

func (s *slogLogger) Fatal(msg string, fields ...Fields) {
	s.logger.Error(msg, fieldsToSlog(fields...)...) // slog has no Fatal level
	os.Exit(1)
}

func (s *slogLogger) DebugContext(ctx context.Context, msg string, fields ...Fields) {
	s.logger.DebugContext(ctx, msg, fieldsToSlog(fields...)...)
}

func (s *slogLogger) InfoContext(ctx context.Context, msg string, fields ...Fields) {
	s.logger.InfoContext(ctx, msg, fieldsToSlog(fields...)...)
}

func (s *slogLogger) WarnContext(ctx context.Context, msg string, fields ...Fields) {
	s.logger.WarnContext(ctx, msg, fieldsToSlog(fields...)...)
}

func (s *slogLogger) ErrorContext(ctx context.Context, msg string, fields ...Fields) {
	s.logger.ErrorContext(ctx, msg, fieldsToSlog(fields...)...)
}

func (s *slogLogger) WithFields(fields Fields) Logger {
	return &slogLogger{
		logger: s.logger.With(fieldsToSlog(fields)...),
		config: s.config,
		level:  s.level,
	}
}

func (s *slogLogger) WithContext(_ context.Context) Logger {
	return s
}

func (s *slogLogger) SetLevel(level LogLevel) {
	s.level = level
	// slog's level is fixed at handler creation; this only updates bookkeeping.
}

func (s *slogLogger) Close() error { return nil }

func fieldsToSlog(fields ...Fields) []any {
	var args []any
	for _, fieldMap := range fields {
		for k, v := range fieldMap {
			args = append(args, k, v)
		}
	}
	return args
}

func logLevelToSlog(level LogLevel) slog.Level {
	switch level {
	case DebugLevel:
		return slog.LevelDebug
	case InfoLevel:
		return slog.LevelInfo
	case WarnLevel:
		return slog.LevelWarn
	case ErrorLevel, FatalLevel:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
