package tracing_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/foldb/folddb/pkg/tracing"
)

type ServiceTestSuite struct {
	suite.Suite
	service tracing.Service
	ctx     context.Context
}

func (s *ServiceTestSuite) SetupSuite() { s.ctx = context.Background() }

func (s *ServiceTestSuite) SetupTest() {
	os.Setenv("FOLDDB_TRACING_QUIET", "true")

	cfg := tracing.Config{
		ServiceName:  "folddb-test",
		Environment:  "test",
		Exporter:     tracing.ExporterStdout,
		SampleRatio:  1.0,
		Enabled:      true,
		BatchTimeout: time.Second,
		MaxBatchSize: 100,
		MaxQueueSize: 1000,
	}

	service, err := tracing.NewService(cfg)
	require.NoError(s.T(), err)
	s.service = service
}

func (s *ServiceTestSuite) TearDownTest() {
	_ = s.service.Shutdown(s.ctx)
}

func (s *ServiceTestSuite) TestStartSpanAndEnd() {
	ctx, span := s.service.StartSpan(s.ctx, "transform.execute", tracing.WithSpanKind(tracing.SpanKindConsumer))
	s.Require().True(span.IsRecording())
	s.service.SetAttributes(ctx, tracing.TransformAttributes("t1", 2)...)
	span.End()
}

func (s *ServiceTestSuite) TestRecordError() {
	ctx, span := s.service.StartSpan(s.ctx, "mutation.commit")
	defer span.End()
	s.service.RecordError(ctx, errors.New("boom"), tracing.WithErrorStatus())
}

func (s *ServiceTestSuite) TestGetTraceID() {
	ctx, span := s.service.StartSpan(s.ctx, "query.resolve")
	defer span.End()
	s.NotEmpty(s.service.GetTraceID(ctx))
}

func TestServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ServiceTestSuite))
}

func TestNoOpServiceIsSilent(t *testing.T) {
	svc := tracing.NewNoOpService()
	ctx, span := svc.StartSpan(context.Background(), "noop")
	require.False(t, span.IsRecording())
	require.Empty(t, svc.GetTraceID(ctx))
	require.NoError(t, svc.Shutdown(ctx))
}

func TestConfigValidateRejectsBadSampleRatio(t *testing.T) {
	cfg := tracing.DefaultConfig()
	cfg.Enabled = true
	cfg.ServiceName = "folddb"
	cfg.SampleRatio = 1.5
	require.ErrorIs(t, cfg.Validate(), tracing.ErrInvalidSamplingRate)
}

func TestConfigValidateRejectsEmptyServiceName(t *testing.T) {
	cfg := tracing.DefaultConfig()
	cfg.Enabled = true
	cfg.ServiceName = ""
	require.ErrorIs(t, cfg.Validate(), tracing.ErrEmptyServiceName)
}
