// Package tracing wraps OpenTelemetry's tracing SDK behind a small Service
// interface, grounded on the teacher's pkg/tracing package but trimmed of
// the HTTP-header propagation surface the core has no transport to carry.
package tracing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrServiceClosed       = errors.New("tracing service is closed")
	ErrInvalidConfig       = errors.New("invalid configuration")
	ErrInvalidSamplingRate = errors.New("sampling rate must be between 0.0 and 1.0")
	ErrEmptyServiceName    = errors.New("service name cannot be empty")
	ErrUnsupportedExporter = errors.New("unsupported exporter")
)

// Service is the tracing facade every FoldDB component depends on.
type Service interface {
	StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, Span)
	SpanFromContext(ctx context.Context) Span
	SetAttributes(ctx context.Context, attrs ...attribute.KeyValue)
	RecordError(ctx context.Context, err error, opts ...ErrorOption)
	AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
	GetTraceID(ctx context.Context) string
	Shutdown(ctx context.Context) error
}

// Span represents a single traced operation.
type Span interface {
	End(opts ...SpanEndOption)
	SetAttributes(attrs ...attribute.KeyValue)
	SetStatus(code codes.Code, description string)
	RecordError(err error, opts ...trace.EventOption)
	AddEvent(name string, attrs ...attribute.KeyValue)
	IsRecording() bool
	SpanContext() trace.SpanContext
}

// SpanKind is the relationship between a span and its parent.
type SpanKind int

const (
	SpanKindInternal SpanKind = iota
	SpanKindProducer
	SpanKindConsumer
)

// Exporter selects the trace export transport.
type Exporter string

const (
	ExporterGRPC   Exporter = "otlp-grpc"
	ExporterHTTP   Exporter = "otlp-http"
	ExporterStdout Exporter = "stdout"
)

// Config configures the tracing service.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Endpoint       string
	Exporter       Exporter
	Insecure       bool
	Headers        map[string]string
	SampleRatio    float64
	Enabled        bool
	BatchTimeout   time.Duration
	MaxBatchSize   int
	MaxQueueSize   int
}

func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.ServiceName == "" {
		return ErrEmptyServiceName
	}
	if c.SampleRatio < 0.0 || c.SampleRatio > 1.0 {
		return ErrInvalidSamplingRate
	}
	switch c.Exporter {
	case ExporterGRPC, ExporterHTTP, ExporterStdout:
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedExporter, c.Exporter)
	}
	if c.BatchTimeout <= 0 || c.MaxBatchSize <= 0 || c.MaxQueueSize <= 0 {
		return fmt.Errorf("%w: batch timeout, max batch size, and max queue size must be positive", ErrInvalidConfig)
	}
	return nil
}

// DefaultConfig returns development-leaning defaults.
func DefaultConfig() Config {
	return Config{
		ServiceName:  "folddb",
		Environment:  "development",
		Exporter:     ExporterStdout,
		SampleRatio:  1.0,
		Enabled:      false,
		BatchTimeout: 5 * time.Second,
		MaxBatchSize: 512,
		MaxQueueSize: 2048,
	}
}

// NewService builds a tracing Service, or a no-op one when disabled.
func NewService(cfg Config) (Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if !cfg.Enabled {
		return &noopService{}, nil
	}

	res, err := createResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	exporter, err := createExporter(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating exporter: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRatio)),
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(cfg.BatchTimeout),
			sdktrace.WithMaxExportBatchSize(cfg.MaxBatchSize),
			sdktrace.WithMaxQueueSize(cfg.MaxQueueSize),
		),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	tracer := provider.Tracer(cfg.ServiceName, trace.WithInstrumentationVersion(cfg.ServiceVersion))
	return &service{tracer: tracer, provider: provider}, nil
}

type service struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
	mu       sync.RWMutex
	closed   bool
}

func (s *service) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, Span) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return ctx, &noopSpan{}
	}

	options := defaultSpanOptions()
	for _, opt := range opts {
		opt.apply(&options)
	}

	startOpts := []trace.SpanStartOption{trace.WithSpanKind(otelSpanKind(options.kind))}
	if len(options.attributes) > 0 {
		startOpts = append(startOpts, trace.WithAttributes(options.attributes...))
	}

	ctx, span := s.tracer.Start(ctx, name, startOpts...)
	return ctx, &spanWrapper{span: span}
}

func (s *service) SpanFromContext(ctx context.Context) Span {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return &noopSpan{}
	}
	return &spanWrapper{span: trace.SpanFromContext(ctx)}
}

func (s *service) SetAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetAttributes(attrs...)
	}
}

func (s *service) RecordError(ctx context.Context, err error, opts ...ErrorOption) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	options := defaultErrorOptions()
	for _, opt := range opts {
		opt.apply(&options)
	}
	span.RecordError(err, trace.WithAttributes(options.attributes...))
	if options.setStatus {
		span.SetStatus(codes.Error, err.Error())
	}
}

func (s *service) AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.AddEvent(name, trace.WithAttributes(attrs...))
	}
}

func (s *service) GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}

func (s *service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrServiceClosed
	}
	s.closed = true
	if s.provider == nil {
		return nil
	}
	if err := s.provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down provider: %w", err)
	}
	return nil
}

type spanWrapper struct{ span trace.Span }

func (w *spanWrapper) End(opts ...SpanEndOption) {
	options := defaultSpanEndOptions()
	for _, opt := range opts {
		opt.apply(&options)
	}
	var endOpts []trace.SpanEndOption
	if !options.timestamp.IsZero() {
		endOpts = append(endOpts, trace.WithTimestamp(options.timestamp))
	}
	w.span.End(endOpts...)
}

func (w *spanWrapper) SetAttributes(attrs ...attribute.KeyValue)       { w.span.SetAttributes(attrs...) }
func (w *spanWrapper) SetStatus(code codes.Code, description string)  { w.span.SetStatus(code, description) }
func (w *spanWrapper) RecordError(err error, opts ...trace.EventOption) { w.span.RecordError(err, opts...) }
func (w *spanWrapper) AddEvent(name string, attrs ...attribute.KeyValue) {
	w.span.AddEvent(name, trace.WithAttributes(attrs...))
}
func (w *spanWrapper) IsRecording() bool               { return w.span.IsRecording() }
func (w *spanWrapper) SpanContext() trace.SpanContext { return w.span.SpanContext() }

type noopService struct{}

func (n *noopService) StartSpan(ctx context.Context, _ string, _ ...SpanOption) (context.Context, Span) {
	return ctx, &noopSpan{}
}
func (n *noopService) SpanFromContext(_ context.Context) Span                       { return &noopSpan{} }
func (n *noopService) SetAttributes(_ context.Context, _ ...attribute.KeyValue)     {}
func (n *noopService) RecordError(_ context.Context, _ error, _ ...ErrorOption)     {}
func (n *noopService) AddEvent(_ context.Context, _ string, _ ...attribute.KeyValue) {}
func (n *noopService) GetTraceID(_ context.Context) string                          { return "" }
func (n *noopService) Shutdown(_ context.Context) error                             { return nil }

type noopSpan struct{}

func (n *noopSpan) End(_ ...SpanEndOption)                      {}
func (n *noopSpan) SetAttributes(_ ...attribute.KeyValue)       {}
func (n *noopSpan) SetStatus(_ codes.Code, _ string)            {}
func (n *noopSpan) RecordError(_ error, _ ...trace.EventOption) {}
func (n *noopSpan) AddEvent(_ string, _ ...attribute.KeyValue)  {}
func (n *noopSpan) IsRecording() bool                           { return false }
func (n *noopSpan) SpanContext() trace.SpanContext              { return trace.SpanContext{} }

// NewNoOpService returns a tracing service with tracing disabled.
func NewNoOpService() Service { return &noopService{} }

// SpanOption configures a span at creation time.
type SpanOption interface{ apply(*spanOptions) }

type spanOptionFunc func(*spanOptions)

func (f spanOptionFunc) apply(o *spanOptions) { f(o) }

type spanOptions struct {
	kind       SpanKind
	attributes []attribute.KeyValue
}

func defaultSpanOptions() spanOptions { return spanOptions{kind: SpanKindInternal} }

func WithSpanKind(kind SpanKind) SpanOption {
	return spanOptionFunc(func(o *spanOptions) { o.kind = kind })
}

func WithAttributes(attrs ...attribute.KeyValue) SpanOption {
	return spanOptionFunc(func(o *spanOptions) { o.attributes = append(o.attributes, attrs...) })
}

// SpanEndOption configures span termination.
type SpanEndOption interface{ apply(*spanEndOptions) }

type spanEndOptionFunc func(*spanEndOptions)

func (f spanEndOptionFunc) apply(o *spanEndOptions) { f(o) }

type spanEndOptions struct{ timestamp time.Time }

func defaultSpanEndOptions() spanEndOptions { return spanEndOptions{} }

func WithTimestamp(t time.Time) SpanEndOption {
	return spanEndOptionFunc(func(o *spanEndOptions) { o.timestamp = t })
}

// ErrorOption configures error recording.
type ErrorOption interface{ apply(*errorOptions) }

type errorOptionFunc func(*errorOptions)

func (f errorOptionFunc) apply(o *errorOptions) { f(o) }

type errorOptions struct {
	attributes []attribute.KeyValue
	setStatus  bool
}

func defaultErrorOptions() errorOptions { return errorOptions{} }

func WithErrorStatus() ErrorOption {
	return errorOptionFunc(func(o *errorOptions) { o.setStatus = true })
}

func createResource(cfg Config) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(cfg.ServiceName),
		semconv.ServiceVersionKey.String(cfg.ServiceVersion),
	}
	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironmentKey.String(cfg.Environment))
	}
	return resource.New(context.Background(),
		resource.WithAttributes(attrs...),
		resource.WithProcess(),
		resource.WithOS(),
		resource.WithHost(),
	)
}

func createExporter(cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case ExporterGRPC:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
		}
		return otlptrace.New(context.Background(), otlptracegrpc.NewClient(opts...))
	case ExporterHTTP:
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
		}
		return otlptrace.New(context.Background(), otlptracehttp.NewClient(opts...))
	case ExporterStdout:
		if os.Getenv("FOLDDB_TRACING_QUIET") == "true" {
			return stdouttrace.New(stdouttrace.WithWriter(io.Discard))
		}
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedExporter, cfg.Exporter)
	}
}

func otelSpanKind(kind SpanKind) trace.SpanKind {
	switch kind {
	case SpanKindProducer:
		return trace.SpanKindProducer
	case SpanKindConsumer:
		return trace.SpanKindConsumer
	default:
		return trace.SpanKindInternal
	}
}

// TransformAttributes builds semantic attributes for a transform execution span.
func TransformAttributes(transformID string, cascadeDepth int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("folddb.transform.id", transformID),
		attribute.Int("folddb.transform.cascade_depth", cascadeDepth),
	}
}

// MutationAttributes builds semantic attributes for a mutation span.
func MutationAttributes(schema, field string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("folddb.schema", schema),
		attribute.String("folddb.field", field),
	}
}
