package pipeline_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldb/folddb/internal/atom"
	"github.com/foldb/folddb/internal/bus"
	"github.com/foldb/folddb/internal/kv"
	"github.com/foldb/folddb/internal/pipeline"
	"github.com/foldb/folddb/internal/schema"
	ferrors "github.com/foldb/folddb/pkg/errors"
	"github.com/foldb/folddb/pkg/logger"
)

func newPipeline(t *testing.T) (*pipeline.Pipeline, *schema.Registry) {
	t.Helper()
	log, err := logger.New(logger.Config{Backend: logger.BackendSlog, Output: &bytes.Buffer{}})
	require.NoError(t, err)
	store := kv.NewMemoryStore()
	atoms := atom.New(store, log, 8)
	registry := schema.New(store, atoms, nil, log)
	b := bus.New()
	return pipeline.New(registry, atoms, b, nil, nil, nil, log), registry
}

func approvedPersonSchema(t *testing.T, r *schema.Registry) {
	t.Helper()
	ctx := context.Background()
	_, err := r.LoadSchema(ctx, schema.Document{
		ID:   "person",
		Kind: "json",
		Raw: []byte(`{
			"name": "person",
			"kind": "single",
			"fields": {
				"name": {"variant": "single"},
				"tags": {"variant": "collection"}
			}
		}`),
	})
	require.NoError(t, err)
	_, err = r.ApproveSchema(ctx, "person")
	require.NoError(t, err)
}

func approvedEventSchema(t *testing.T, r *schema.Registry) {
	t.Helper()
	ctx := context.Background()
	_, err := r.LoadSchema(ctx, schema.Document{
		ID:   "event",
		Kind: "json",
		Raw: []byte(`{
			"name": "event",
			"kind": "range",
			"partition_key": "day",
			"fields": {
				"day": {"variant": "range"},
				"payload": {"variant": "range"}
			}
		}`),
	})
	require.NoError(t, err)
	_, err = r.ApproveSchema(ctx, "event")
	require.NoError(t, err)
}

func TestMutateSingleFieldWrite(t *testing.T) {
	p, r := newPipeline(t)
	approvedPersonSchema(t, r)
	ctx := context.Background()

	res, err := p.Mutate(ctx, pipeline.MutationRequest{
		SchemaName: "person",
		Kind:       pipeline.MutationCreate,
		WriterID:   "alice",
		Fields: map[string]pipeline.FieldValue{
			"name": {Value: "Ada"},
		},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.FieldAtoms["name"])
	assert.Empty(t, res.FailedField)
}

func TestMutateCollectionFieldFromArray(t *testing.T) {
	p, r := newPipeline(t)
	approvedPersonSchema(t, r)
	ctx := context.Background()

	res, err := p.Mutate(ctx, pipeline.MutationRequest{
		SchemaName: "person",
		Kind:       pipeline.MutationCreate,
		WriterID:   "alice",
		Fields: map[string]pipeline.FieldValue{
			"tags": {Value: []any{"a", "b", "c"}},
		},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.FieldAtoms["tags"])

	q, err := p.Query(ctx, pipeline.QueryRequest{SchemaName: "person", Fields: []string{"tags"}})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b", "c"}, q.Results["tags"])
}

func TestMutateRejectedBeforeApproval(t *testing.T) {
	p, r := newPipeline(t)
	ctx := context.Background()
	_, err := r.LoadSchema(ctx, schema.Document{
		ID:   "person",
		Kind: "json",
		Raw:  []byte(`{"name":"person","kind":"single","fields":{"name":{"variant":"single"}}}`),
	})
	require.NoError(t, err)

	_, err = p.Mutate(ctx, pipeline.MutationRequest{
		SchemaName: "person",
		Kind:       pipeline.MutationCreate,
		WriterID:   "alice",
		Fields:     map[string]pipeline.FieldValue{"name": {Value: "Ada"}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ferrors.ErrSchemaNotAvailable)
}

func TestMutateRangeSchemaRequiresPartitionKey(t *testing.T) {
	p, r := newPipeline(t)
	approvedEventSchema(t, r)
	ctx := context.Background()

	_, err := p.Mutate(ctx, pipeline.MutationRequest{
		SchemaName: "event",
		Kind:       pipeline.MutationCreate,
		WriterID:   "alice",
		Fields: map[string]pipeline.FieldValue{
			"payload": {Value: "hello"},
		},
	})
	require.Error(t, err)
}

func TestMutateRangeSchemaWritesPartitionedEntry(t *testing.T) {
	p, r := newPipeline(t)
	approvedEventSchema(t, r)
	ctx := context.Background()

	res, err := p.Mutate(ctx, pipeline.MutationRequest{
		SchemaName: "event",
		Kind:       pipeline.MutationCreate,
		WriterID:   "alice",
		Fields: map[string]pipeline.FieldValue{
			"day":     {Value: "2026-07-30"},
			"payload": {Value: "hello"},
		},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.FieldAtoms["payload"])
}

func TestMutateUnwritableFieldFails(t *testing.T) {
	p, r := newPipeline(t)
	ctx := context.Background()
	_, err := r.LoadSchema(ctx, schema.Document{
		ID:   "derived",
		Kind: "json",
		Raw: []byte(`{
			"name": "derived",
			"kind": "single",
			"fields": {
				"total": {
					"variant": "single",
					"transform": {"id": "sum", "inputs": ["a"], "logic": "a"}
				}
			}
		}`),
	})
	require.NoError(t, err)
	_, err = r.ApproveSchema(ctx, "derived")
	require.NoError(t, err)

	_, err = p.Mutate(ctx, pipeline.MutationRequest{
		SchemaName: "derived",
		Kind:       pipeline.MutationCreate,
		WriterID:   "alice",
		Fields:     map[string]pipeline.FieldValue{"total": {Value: 5}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ferrors.ErrPermissionDenied)
}

func TestMutatePublishesFieldValueSetAndMutationOk(t *testing.T) {
	log, err := logger.New(logger.Config{Backend: logger.BackendSlog, Output: &bytes.Buffer{}})
	require.NoError(t, err)
	store := kv.NewMemoryStore()
	atoms := atom.New(store, log, 8)
	registry := schema.New(store, atoms, nil, log)
	b := bus.New()
	p := pipeline.New(registry, atoms, b, nil, nil, nil, log)
	approvedPersonSchema(t, registry)

	var fieldEvents, okEvents int
	b.Subscribe(bus.KindFieldValueSet, func(_ context.Context, _ bus.Event) { fieldEvents++ })
	b.Subscribe(bus.KindMutationOk, func(_ context.Context, _ bus.Event) { okEvents++ })

	_, err = p.Mutate(context.Background(), pipeline.MutationRequest{
		SchemaName: "person",
		Kind:       pipeline.MutationCreate,
		WriterID:   "alice",
		Fields:     map[string]pipeline.FieldValue{"name": {Value: "Ada"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, fieldEvents)
	assert.Equal(t, 1, okEvents)
}
