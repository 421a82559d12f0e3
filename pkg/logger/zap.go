package logger

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type zapLogger struct {
	logger *zap.Logger
	config Config
}

func newZapLogger(config Config) (*zapLogger, error) {
	var zapConfig zap.Config
	if config.Development {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zapConfig = zap.NewProductionConfig()
	}

	if config.Format == "console" || config.Format == "text" {
		zapConfig.Encoding = "console"
	} else {
		zapConfig.Encoding = "json"
	}

	zapConfig.Level = zap.NewAtomicLevelAt(logLevelToZap(config.Level))
	zapConfig.InitialFields = map[string]any{
		"service": config.ServiceName,
		"version": config.Version,
	}

	encoder := zapcore.NewJSONEncoder(zapConfig.EncoderConfig)
	if zapConfig.Encoding == "console" {
		encoder = zapcore.NewConsoleEncoder(zapConfig.EncoderConfig)
	}
	// Write to config.Output rather than zap's URL-based OutputPaths.
	l, err := zapConfig.Build(zap.WrapCore(func(zapcore.Core) zapcore.Core {
		return zapcore.NewCore(encoder, zapcore.AddSync(config.Output), zapConfig.Level).
			With([]zapcore.Field{zap.String("service", config.ServiceName), zap.String("version", config.Version)})
	}))
	if err != nil {
		return nil, err
	}
	return &zapLogger{logger: l, config: config}, nil
}

func (z *zapLogger) Debug(msg string, fields ...Fields) { z.logger.Debug(msg, toZapFields(fields...)...) }
func (z *zapLogger) Info(msg string, fields ...Fields)  { z.logger.Info(msg, toZapFields(fields...)...) }
func (z *zapLogger) Warn(msg string, fields ...Fields)  { z.logger.Warn(msg, toZapFields(fields...)...) }
func (z *zapLogger) Error(msg string, fields ...Fields) { z.logger.Error(msg, toZapFields(fields...)...) }
func (z *zapLogger) Fatal(msg string, fields ...Fields) { z.logger.Fatal(msg, toZapFields(fields...)...) }

func (z *zapLogger) DebugContext(_ context.Context, msg string, fields ...Fields) { z.Debug(msg, fields...) }
func (z *zapLogger) InfoContext(_ context.Context, msg string, fields ...Fields)  { z.Info(msg, fields...) }
func (z *zapLogger) WarnContext(_ context.Context, msg string, fields ...Fields)  { z.Warn(msg, fields...) }
func (z *zapLogger) ErrorContext(_ context.Context, msg string, fields ...Fields) { z.Error(msg, fields...) }

func (z *zapLogger) WithFields(fields Fields) Logger {
	return &zapLogger{logger: z.logger.With(toZapFields(fields)...), config: z.config}
}

func (z *zapLogger) WithContext(_ context.Context) Logger { return z }

func (z *zapLogger) SetLevel(level LogLevel) {
	_ = z.logger.Core().Enabled(logLevelToZap(level))
}

func (z *zapLogger) Close() error { return z.logger.Sync() }

func toZapFields(fields ...Fields) []zap.Field {
	var zapFields []zap.Field
	for _, fieldMap := range fields {
		for k, v := range fieldMap {
			zapFields = append(zapFields, zap.Any(k, v))
		}
	}
	return zapFields
}

func logLevelToZap(level LogLevel) zapcore.Level {
	switch level {
	case DebugLevel:
		return zapcore.DebugLevel
	case InfoLevel:
		return zapcore.InfoLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	case FatalLevel:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}
