package pipeline

import (
	"github.com/foldb/folddb/internal/atom"
	"github.com/foldb/folddb/internal/bus"
	"github.com/foldb/folddb/internal/expression"
	"github.com/foldb/folddb/internal/policy"
	"github.com/foldb/folddb/internal/schema"
	"github.com/foldb/folddb/pkg/logger"
	"github.com/foldb/folddb/pkg/metrics"
	"github.com/foldb/folddb/pkg/tracing"
)

// Pipeline wires the schema registry, atom/ref store, bus, and policy
// evaluator together into the mutation and query operations spec §4.5
// describes. It holds no state of its own beyond these collaborators.
type Pipeline struct {
	registry *schema.Registry
	atoms    *atom.Store
	bus      *bus.Bus
	policy   policy.Evaluator
	patterns *expression.PatternMatcher
	metrics  metrics.Provider
	tracer   tracing.Service
	log      logger.Logger
}

// New constructs a Pipeline. policyEval defaults to policy.DefaultEvaluator
// when nil; metricsProvider/tracer default to no-op implementations when
// nil so callers that don't care about observability can omit them.
func New(registry *schema.Registry, atoms *atom.Store, b *bus.Bus, policyEval policy.Evaluator, metricsProvider metrics.Provider, tracer tracing.Service, log logger.Logger) *Pipeline {
	if policyEval == nil {
		policyEval = policy.DefaultEvaluator{}
	}
	if metricsProvider == nil {
		metricsProvider = metrics.NewNoOp()
	}
	if tracer == nil {
		tracer = tracing.NewNoOpService()
	}
	return &Pipeline{
		registry: registry,
		atoms:    atoms,
		bus:      b,
		policy:   policyEval,
		patterns: expression.NewPatternMatcher(),
		metrics:  metricsProvider,
		tracer:   tracer,
		log:      log,
	}
}
