package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/foldb/folddb/internal/atom"
	"github.com/foldb/folddb/internal/bus"
	"github.com/foldb/folddb/internal/ids"
	"github.com/foldb/folddb/internal/policy"
	"github.com/foldb/folddb/internal/schema"
	ferrors "github.com/foldb/folddb/pkg/errors"
	"github.com/foldb/folddb/pkg/logger"
	"github.com/foldb/folddb/pkg/metrics"
	"github.com/foldb/folddb/pkg/tracing"
)

// Mutate runs the mutation pipeline (spec §4.5.1): preflight, range
// uniformity, policy, per-field dispatch, event publication. Duration is
// recorded under metrics.MutationDuration and the whole call is wrapped in
// a "pipeline.mutate" span, per SPEC_FULL.md's Metrics/Tracing sections.
func (p *Pipeline) Mutate(ctx context.Context, req MutationRequest) (result *MutationResult, err error) {
	start := time.Now()
	ctx, span := p.tracer.StartSpan(ctx, "pipeline.mutate",
		tracing.WithAttributes(tracing.MutationAttributes(req.SchemaName, "")...))
	defer func() {
		p.metrics.ObserveHistogram(metrics.MutationDuration, time.Since(start).Seconds(),
			metrics.Fields{"schema": req.SchemaName})
		if err != nil {
			p.tracer.RecordError(ctx, err, tracing.WithErrorStatus())
		}
		span.End()
	}()

	if req.CorrelationID == "" {
		req.CorrelationID = ids.NewCorrelationID()
	}
	result = &MutationResult{CorrelationID: req.CorrelationID, FieldAtoms: make(map[string]string)}

	s, err := p.registry.RequireApproved(ctx, req.SchemaName)
	if err != nil {
		return nil, err
	}
	if (req.Kind == MutationCreate || req.Kind == MutationUpdate) && len(req.Fields) == 0 {
		return nil, ferrors.SchemaValidationErr(req.SchemaName, "mutation requires at least one field")
	}

	if s.Kind == schema.KindRange {
		if err := p.checkRangeUniformity(s, req.Fields); err != nil {
			return nil, err
		}
	}

	partitionValue := ""
	if s.Kind == schema.KindRange {
		partitionValue = fmt.Sprint(req.Fields[s.PartitionKey].Value)
	}

	fail := func(field string, err error) (*MutationResult, error) {
		result.FailedField, result.Err = field, err
		p.bus.Publish(ctx, bus.Event{
			Kind:          bus.KindMutationFailed,
			CorrelationID: req.CorrelationID,
			Payload:       bus.MutationFailed{Field: field, Cause: err},
		})
		return result, err
	}

	fieldDefs := make(map[string]schema.FieldDef, len(req.Fields))
	for fieldName := range req.Fields {
		fd, ok := s.Fields[fieldName]
		if !ok {
			return fail(fieldName, ferrors.SchemaValidationErr(s.Name, "unknown field "+fieldName))
		}
		if !fd.Writable {
			return fail(fieldName, ferrors.PermissionDeniedErr(fieldName, "field is not user-writable"))
		}
		reason, err := p.policy.Evaluate(ctx, req.WriterID, req.TrustDistance, fd.PermissionPolicy, policy.OpWrite)
		if err != nil {
			return fail(fieldName, err)
		}
		if reason != "" {
			return fail(fieldName, ferrors.PermissionDeniedErr(fieldName, reason))
		}
		fieldDefs[fieldName] = fd
	}

	for fieldName, fv := range req.Fields {
		newAtomUUID, err := p.dispatchField(ctx, s.Name, fieldDefs[fieldName], fv, req.WriterID, partitionValue)
		if err != nil {
			return fail(fieldName, err)
		}

		result.FieldAtoms[fieldName] = newAtomUUID
		p.bus.Publish(ctx, bus.Event{
			Kind:          bus.KindFieldValueSet,
			CorrelationID: req.CorrelationID,
			Payload: bus.FieldValueSet{
				Schema: s.Name, Field: fieldName, Writer: req.WriterID, NewAtomUUID: newAtomUUID, Depth: 1,
			},
		})
	}

	p.bus.Publish(ctx, bus.Event{
		Kind:          bus.KindMutationOk,
		CorrelationID: req.CorrelationID,
		Payload:       bus.MutationOk{},
	})
	p.log.Debug("mutation committed", logger.Fields{"schema": s.Name, "fields": len(result.FieldAtoms)})
	return result, nil
}

// dispatchField performs the variant-appropriate write for one field
// (spec §4.5.1 step 4) and returns the atom uuid written. For a
// Collection field with an array-shaped value, dispatchField writes one
// atom per element and returns the last atom written's uuid (callers that
// need every element's uuid should issue a query afterward; Mutate
// publishes one FieldValueSet per field, carrying that last uuid).
func (p *Pipeline) dispatchField(ctx context.Context, schemaName string, fd schema.FieldDef, fv FieldValue, writer, partitionValue string) (string, error) {
	switch fd.Variant {
	case atom.RefSingle:
		uuid, err := p.atoms.CreateAtom(ctx, schemaName, writer, fv.Value, atom.StatusActive)
		if err != nil {
			return "", err
		}
		if _, err := p.atoms.UpdateAtomRef(ctx, fd.RefUUID, uuid, writer); err != nil {
			return "", err
		}
		return uuid, nil

	case atom.RefCollection:
		if fv.Op != nil {
			uuid := fv.Op.AtomUUID
			if fv.Op.Kind != atom.CollectionRemove && fv.Op.Kind != atom.CollectionClear {
				created, err := p.atoms.CreateAtom(ctx, schemaName, writer, fv.Value, atom.StatusActive)
				if err != nil {
					return "", err
				}
				uuid = created
				fv.Op.AtomUUID = created
			}
			if _, err := p.atoms.UpdateAtomRefCollection(ctx, fd.RefUUID, *fv.Op, writer); err != nil {
				return "", err
			}
			return uuid, nil
		}

		elements, ok := fv.Value.([]any)
		if !ok {
			return "", ferrors.SchemaValidationErr(schemaName, "collection field requires an array value or explicit op")
		}
		var last string
		for _, el := range elements {
			uuid, err := p.atoms.CreateAtom(ctx, schemaName, writer, el, atom.StatusActive)
			if err != nil {
				return "", err
			}
			if _, err := p.atoms.UpdateAtomRefCollection(ctx, fd.RefUUID,
				atom.CollectionOp{Kind: atom.CollectionAdd, AtomUUID: uuid}, writer); err != nil {
				return "", err
			}
			last = uuid
		}
		return last, nil

	case atom.RefRange:
		uuid, err := p.atoms.CreateAtom(ctx, schemaName, writer, fv.Value, atom.StatusActive)
		if err != nil {
			return "", err
		}
		if _, err := p.atoms.UpdateAtomRefRange(ctx, fd.RefUUID, partitionValue, uuid, writer); err != nil {
			return "", err
		}
		return uuid, nil

	default:
		return "", ferrors.SchemaValidationErr(schemaName, "unknown field variant")
	}
}

// checkRangeUniformity enforces spec §3's "every per-field payload for
// the same mutation must carry the same value of K".
func (p *Pipeline) checkRangeUniformity(s *schema.Schema, fields map[string]FieldValue) error {
	top, ok := fields[s.PartitionKey]
	if !ok {
		return ferrors.InvalidRangeKeyErr(s.PartitionKey, "<required>", "<absent>")
	}
	expected := fmt.Sprint(top.Value)

	for name, fv := range fields {
		if name == s.PartitionKey {
			continue
		}
		obj, ok := fv.Value.(map[string]any)
		if !ok {
			continue
		}
		actual, ok := obj[s.PartitionKey]
		if !ok {
			continue
		}
		if fmt.Sprint(actual) != expected {
			return ferrors.InvalidRangeKeyErr(name, expected, fmt.Sprint(actual))
		}
	}
	return nil
}
