package pipeline

import (
	"context"
	"reflect"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/foldb/folddb/internal/atom"
	"github.com/foldb/folddb/internal/policy"
	"github.com/foldb/folddb/internal/schema"
	ferrors "github.com/foldb/folddb/pkg/errors"
	"github.com/foldb/folddb/pkg/metrics"
	"github.com/foldb/folddb/pkg/tracing"
)

// Query runs the query pipeline (spec §4.5.2): schema resolution, range
// filter requirement, per-field policy, variant-appropriate retrieval.
// Duration is recorded under metrics.QueryDuration and the call is wrapped
// in a "pipeline.query" span, per SPEC_FULL.md's Metrics/Tracing sections.
func (p *Pipeline) Query(ctx context.Context, req QueryRequest) (res *QueryResult, err error) {
	start := time.Now()
	ctx, span := p.tracer.StartSpan(ctx, "pipeline.query",
		tracing.WithAttributes(attribute.String("schema", req.SchemaName)))
	defer func() {
		p.metrics.ObserveHistogram(metrics.QueryDuration, time.Since(start).Seconds(),
			metrics.Fields{"schema": req.SchemaName})
		if err != nil {
			p.tracer.RecordError(ctx, err, tracing.WithErrorStatus())
		}
		span.End()
	}()

	s, err := p.registry.RequireApproved(ctx, req.SchemaName)
	if err != nil {
		return nil, err
	}

	fields := req.Fields
	if len(fields) == 0 {
		for name := range s.Fields {
			fields = append(fields, name)
		}
	}

	result := &QueryResult{Results: make(map[string]any), PerFieldErrors: make(map[string]error)}

	for _, fieldName := range fields {
		fd, ok := s.Fields[fieldName]
		if !ok {
			result.PerFieldErrors[fieldName] = ferrors.SchemaValidationErr(s.Name, "unknown field "+fieldName)
			continue
		}

		if reason, err := p.policy.Evaluate(ctx, "", 0, fd.PermissionPolicy, policy.OpRead); err != nil {
			result.PerFieldErrors[fieldName] = err
			continue
		} else if reason != "" {
			result.PerFieldErrors[fieldName] = ferrors.PermissionDeniedErr(fieldName, reason)
			continue
		}

		value, err := p.queryField(ctx, fd, req.Filter[fieldName])
		if err != nil {
			result.PerFieldErrors[fieldName] = err
			continue
		}
		result.Results[fieldName] = value
	}

	return result, nil
}

func (p *Pipeline) queryField(ctx context.Context, fd schema.FieldDef, filter RangeFilter) (any, error) {
	switch fd.Variant {
	case atom.RefSingle:
		ref, err := p.atoms.GetRef(ctx, fd.RefUUID)
		if err != nil {
			return nil, err
		}
		if ref.Current == "" {
			return nil, nil
		}
		a, err := p.atoms.GetAtom(ctx, ref.Current)
		if err != nil {
			return nil, err
		}
		return a.Value, nil

	case atom.RefCollection:
		ref, err := p.atoms.GetRef(ctx, fd.RefUUID)
		if err != nil {
			return nil, err
		}
		values := make([]any, 0, len(ref.Items))
		for _, uuid := range ref.Items {
			a, err := p.atoms.GetAtom(ctx, uuid)
			if err != nil {
				return nil, err
			}
			values = append(values, a.Value)
		}
		return values, nil

	case atom.RefRange:
		if filter.Kind == "" {
			return nil, ferrors.RangeFilterRequiredErr(fd.Name)
		}
		ref, err := p.atoms.GetRef(ctx, fd.RefUUID)
		if err != nil {
			return nil, err
		}
		keys, err := selectRangeKeys(ref, filter, p.patterns)
		if err != nil {
			return nil, err
		}
		out := make(map[string]any, len(keys))
		for _, k := range keys {
			uuid := ref.Entries[k]
			a, err := p.atoms.GetAtom(ctx, uuid)
			if err != nil {
				return nil, err
			}
			if filter.Kind == FilterValue && !reflect.DeepEqual(a.Value, filter.Value) {
				continue
			}
			out[k] = a.Value
		}
		return out, nil

	default:
		return nil, ferrors.SchemaValidationErr(fd.Name, "unknown field variant")
	}
}
