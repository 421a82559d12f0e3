package logger

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

type zerologLogger struct {
	logger zerolog.Logger
	config Config
	level  LogLevel
}

func newZerologLogger(config Config) (*zerologLogger, error) {
	output := config.Output
	if config.Format == "console" || config.Format == "text" {
		output = zerolog.ConsoleWriter{Out: config.Output, TimeFormat: time.RFC3339}
	}

	l := zerolog.New(output).With().
		Timestamp().
		Str("service", config.ServiceName).
		Str("version", config.Version).
		Logger().
		Level(logLevelToZerolog(config.Level))

	return &zerologLogger{logger: l, config: config, level: config.Level}, nil
}

func (z *zerologLogger) Debug(msg string, fields ...Fields) { z.log(z.logger.Debug(), fields, msg) }
func (z *zerologLogger) Info(msg string, fields ...Fields)  { z.log(z.logger.Info(), fields, msg) }
func (z *zerologLogger) Warn(msg string, fields ...Fields)  { z.log(z.logger.Warn(), fields, msg) }
func (z *zerologLogger) Error(msg string, fields ...Fields) { z.log(z.logger.Error(), fields, msg) }
func (z *zerologLogger) Fatal(msg string, fields ...Fields) { z.log(z.logger.Fatal(), fields, msg) }

func (z *zerologLogger) DebugContext(_ context.Context, msg string, fields ...Fields) { z.Debug(msg, fields...) }
func (z *zerologLogger) InfoContext(_ context.Context, msg string, fields ...Fields)  { z.Info(msg, fields...) }
func (z *zerologLogger) WarnContext(_ context.Context, msg string, fields ...Fields)  { z.Warn(msg, fields...) }
func (z *zerologLogger) ErrorContext(_ context.Context, msg string, fields ...Fields) { z.Error(msg, fields...) }

func (z *zerologLogger) WithFields(fields Fields) Logger {
	ctx := z.logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &zerologLogger{logger: ctx.Logger(), config: z.config, level: z.level}
}

func (z *zerologLogger) WithContext(_ context.Context) Logger {
	return &zerologLogger{logger: z.logger.With().Logger(), config: z.config, level: z.level}
}

func (z *zerologLogger) SetLevel(level LogLevel) {
	z.level = level
	z.logger = z.logger.Level(logLevelToZerolog(level))
}

func (z *zerologLogger) Close() error { return nil }

func (z *zerologLogger) log(event *zerolog.Event, fields []Fields, msg string) {
	for _, fieldMap := range fields {
		for k, v := range fieldMap {
			event.Interface(k, v)
		}
	}
	event.Msg(msg)
}

func logLevelToZerolog(level LogLevel) zerolog.Level {
	switch level {
	case DebugLevel:
		return zerolog.DebugLevel
	case InfoLevel:
		return zerolog.InfoLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	case FatalLevel:
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}
