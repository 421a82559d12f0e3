// Command folddb wires up and runs a FoldDB process: it loads
// configuration, opens the storage and cache layers, replays the schema
// and transform state trees, loads schema documents from the
// configured source, and starts the transform executor's worker pool.
// It holds the process open until an interrupt or terminate signal asks
// it to shut down.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/foldb/folddb/internal/atom"
	"github.com/foldb/folddb/internal/bus"
	"github.com/foldb/folddb/internal/cache"
	"github.com/foldb/folddb/internal/expression"
	"github.com/foldb/folddb/internal/kv"
	"github.com/foldb/folddb/internal/pipeline"
	"github.com/foldb/folddb/internal/policy"
	"github.com/foldb/folddb/internal/schema"
	"github.com/foldb/folddb/internal/transform"
	appconfig "github.com/foldb/folddb/pkg/config"
	"github.com/foldb/folddb/pkg/logger"
	"github.com/foldb/folddb/pkg/metrics"
	"github.com/foldb/folddb/pkg/tracing"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "folddb:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := appconfig.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Logger.ToLoggerConfig(&cfg.App))
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Close()

	metricsSvc, err := metrics.New(metrics.Config{
		Provider:  cfg.Metrics.Provider,
		Namespace: cfg.Metrics.Namespace,
		Subsystem: cfg.App.Name,
		Enabled:   cfg.Metrics.Enabled,
	})
	if err != nil {
		return fmt.Errorf("build metrics service: %w", err)
	}
	defer metricsSvc.Close()

	tracer, err := tracing.NewService(tracing.Config{
		ServiceName:    cfg.App.Name,
		ServiceVersion: cfg.App.Version,
		Environment:    string(cfg.App.Stage),
		Exporter:       tracing.Exporter(cfg.Tracing.Exporter),
		Endpoint:       cfg.Tracing.Endpoint,
		SampleRatio:    cfg.Tracing.SampleRatio,
		Enabled:        cfg.Tracing.Enabled,
		BatchTimeout:   tracing.DefaultConfig().BatchTimeout,
		MaxBatchSize:   tracing.DefaultConfig().MaxBatchSize,
		MaxQueueSize:   tracing.DefaultConfig().MaxQueueSize,
	})
	if err != nil {
		return fmt.Errorf("build tracing service: %w", err)
	}
	defer tracer.Shutdown(context.Background())

	store, err := kv.OpenBolt(kv.BoltOptions{
		Path:       cfg.Store.Path,
		Timeout:    cfg.Store.Timeout,
		ReadOnly:   cfg.Store.ReadOnly,
		NoGrowSync: cfg.Store.NoGrowSync,
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	cacheSvc, err := cache.New(cache.Config{
		L1MaxCost:     cfg.Cache.L1MaxCost,
		L1NumCounters: cfg.Cache.L1NumCounters,
		L1BufferItems: cfg.Cache.L1BufferItems,
		L2Enabled:     cfg.Cache.L2Enabled,
		L2Addr:        cfg.Cache.L2Addr,
		L2Password:    cfg.Cache.L2Password,
		L2DB:          cfg.Cache.L2DB,
		TTL:           cfg.Cache.TTL,
	})
	if err != nil {
		return fmt.Errorf("build cache service: %w", err)
	}
	defer cacheSvc.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	atoms := atom.New(store, log, 64)
	registry := schema.New(store, atoms, cacheSvc, log)
	if err := registry.Replay(ctx); err != nil {
		return fmt.Errorf("replay schema registry: %w", err)
	}

	b := bus.New()
	policyEval := policy.DefaultEvaluator{}
	p := pipeline.New(registry, atoms, b, policyEval, metricsSvc, tracer, log)
	engine := expression.New()

	executor := transform.NewExecutor(store, atoms, b, engine, cfg.Transform, metricsSvc, tracer, log)
	orchestrator := transform.New(store, atoms, registry, b, executor, cfg.Transform, log)
	orchestrator.Subscribe()
	if err := orchestrator.Replay(ctx); err != nil {
		return fmt.Errorf("replay transform registrations: %w", err)
	}
	if err := executor.Replay(ctx); err != nil {
		return fmt.Errorf("replay transform queue: %w", err)
	}

	if err := loadAndApproveSchemas(ctx, cfg.Schema, registry, orchestrator, log); err != nil {
		return fmt.Errorf("load schemas: %w", err)
	}

	executor.Start(ctx)
	defer executor.Stop()

	_ = p // held for the process lifetime; a transport layer (gRPC/HTTP) calls Mutate/Query against it

	log.Info("folddb started", logger.Fields{"stage": string(cfg.App.Stage), "store": cfg.Store.Path})
	<-ctx.Done()
	log.Info("folddb shutting down")
	return nil
}

// loadAndApproveSchemas pulls documents from the configured SchemaSource
// and loads+approves every one not already known to the registry,
// registering its transforms with the orchestrator on approval (spec
// §4.6.1). A document that fails to load or approve is logged and
// skipped rather than aborting startup, so one bad schema file doesn't
// take the whole process down.
func loadAndApproveSchemas(ctx context.Context, cfg appconfig.SchemaConfig, registry *schema.Registry, orchestrator *transform.Orchestrator, log logger.Logger) error {
	source, err := newSchemaSource(ctx, cfg)
	if err != nil {
		return err
	}

	docs, err := source.Load(ctx)
	if err != nil {
		return fmt.Errorf("load schema documents: %w", err)
	}

	for _, doc := range docs {
		if _, state, err := registry.Get(ctx, doc.ID); err == nil && state != "" {
			continue
		}
		loaded, err := registry.LoadSchema(ctx, doc)
		if err != nil {
			log.Error("schema load failed", logger.Fields{"schema": doc.ID, "error": err.Error()})
			continue
		}
		s, err := registry.ApproveSchema(ctx, loaded.Name)
		if err != nil {
			log.Error("schema approve failed", logger.Fields{"schema": doc.ID, "error": err.Error()})
			continue
		}
		if err := orchestrator.RegisterSchema(ctx, s); err != nil {
			log.Error("transform registration failed", logger.Fields{"schema": doc.ID, "error": err.Error()})
			continue
		}
		log.Info("schema approved", logger.Fields{"schema": doc.ID})
	}
	return nil
}

func newSchemaSource(ctx context.Context, cfg appconfig.SchemaConfig) (schema.Source, error) {
	switch cfg.Source {
	case "s3":
		awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.S3Region))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return schema.NewS3SchemaSource(s3.NewFromConfig(awsCfg), cfg.S3Bucket, cfg.S3Prefix), nil
	default:
		return schema.NewFileSchemaSource(cfg.FilePath), nil
	}
}
