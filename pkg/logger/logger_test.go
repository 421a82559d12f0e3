package logger_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldb/folddb/pkg/logger"
)

func TestNewSupportsAllBackends(t *testing.T) {
	backends := []logger.Backend{logger.BackendZerolog, logger.BackendZap, logger.BackendSlog, ""}
	for _, b := range backends {
		t.Run(string(b), func(t *testing.T) {
			var buf bytes.Buffer
			cfg := logger.DefaultConfig()
			cfg.Backend = b
			cfg.Output = &buf
			log, err := logger.New(cfg)
			require.NoError(t, err)
			require.NotNil(t, log)

			log.Info("hello", logger.Fields{"k": "v"})
			assert.NotEmpty(t, buf.String())
		})
	}
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	cfg := logger.DefaultConfig()
	cfg.Backend = "bogus"
	_, err := logger.New(cfg)
	assert.Error(t, err)
}

func TestWithFieldsAndWithContext(t *testing.T) {
	for _, b := range []logger.Backend{logger.BackendZerolog, logger.BackendZap, logger.BackendSlog} {
		t.Run(string(b), func(t *testing.T) {
			var buf bytes.Buffer
			cfg := logger.DefaultConfig()
			cfg.Backend = b
			cfg.Output = &buf
			log, err := logger.New(cfg)
			require.NoError(t, err)

			child := log.WithFields(logger.Fields{"request_id": "r1"})
			child.WarnContext(context.Background(), "careful")
			assert.NotEmpty(t, buf.String())

			ctxLog := child.WithContext(context.Background())
			require.NotNil(t, ctxLog)

			ctxLog.SetLevel(logger.DebugLevel)
			require.NoError(t, ctxLog.Close())
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]logger.LogLevel{
		"debug":   logger.DebugLevel,
		"INFO":    logger.InfoLevel,
		"warning": logger.WarnLevel,
		"error":   logger.ErrorLevel,
		"fatal":   logger.FatalLevel,
		"bogus":   logger.InfoLevel,
	}
	for input, want := range cases {
		assert.Equal(t, want, logger.ParseLogLevel(input))
	}
}
