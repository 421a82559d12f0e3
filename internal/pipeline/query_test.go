package pipeline_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldb/folddb/internal/pipeline"
	ferrors "github.com/foldb/folddb/pkg/errors"
)

func TestQuerySingleFieldRoundTrip(t *testing.T) {
	p, r := newPipeline(t)
	approvedPersonSchema(t, r)
	ctx := context.Background()

	_, err := p.Mutate(ctx, pipeline.MutationRequest{
		SchemaName: "person",
		Kind:       pipeline.MutationCreate,
		WriterID:   "alice",
		Fields:     map[string]pipeline.FieldValue{"name": {Value: "Ada"}},
	})
	require.NoError(t, err)

	res, err := p.Query(ctx, pipeline.QueryRequest{SchemaName: "person", Fields: []string{"name"}})
	require.NoError(t, err)
	assert.Equal(t, "Ada", res.Results["name"])
	assert.Empty(t, res.PerFieldErrors)
}

func TestQueryRangeSchemaRequiresFilter(t *testing.T) {
	p, r := newPipeline(t)
	approvedEventSchema(t, r)
	ctx := context.Background()

	_, err := p.Mutate(ctx, pipeline.MutationRequest{
		SchemaName: "event",
		Kind:       pipeline.MutationCreate,
		WriterID:   "alice",
		Fields: map[string]pipeline.FieldValue{
			"day":     {Value: "2026-07-30"},
			"payload": {Value: "hello"},
		},
	})
	require.NoError(t, err)

	res, err := p.Query(ctx, pipeline.QueryRequest{SchemaName: "event", Fields: []string{"payload"}})
	require.NoError(t, err)
	require.Error(t, res.PerFieldErrors["payload"])
	assert.ErrorIs(t, res.PerFieldErrors["payload"], ferrors.ErrRangeFilterRequired)
}

func TestQueryRangeSchemaFilterByKeyPrefix(t *testing.T) {
	p, r := newPipeline(t)
	approvedEventSchema(t, r)
	ctx := context.Background()

	for _, day := range []string{"2026-07-29", "2026-07-30", "2026-08-01"} {
		_, err := p.Mutate(ctx, pipeline.MutationRequest{
			SchemaName: "event",
			Kind:       pipeline.MutationCreate,
			WriterID:   "alice",
			Fields: map[string]pipeline.FieldValue{
				"day":     {Value: day},
				"payload": {Value: "v-" + day},
			},
		})
		require.NoError(t, err)
	}

	res, err := p.Query(ctx, pipeline.QueryRequest{
		SchemaName: "event",
		Fields:     []string{"payload"},
		Filter: map[string]pipeline.RangeFilter{
			"payload": {Kind: pipeline.FilterKeyPrefix, Key: "2026-07"},
		},
	})
	require.NoError(t, err)
	values, ok := res.Results["payload"].(map[string]any)
	require.True(t, ok)
	assert.Len(t, values, 2)
	assert.Equal(t, "v-2026-07-29", values["2026-07-29"])
	assert.Equal(t, "v-2026-07-30", values["2026-07-30"])
}

func TestQueryRangeSchemaFilterByKeyRange(t *testing.T) {
	p, r := newPipeline(t)
	approvedEventSchema(t, r)
	ctx := context.Background()

	for _, day := range []string{"a", "b", "c", "d"} {
		_, err := p.Mutate(ctx, pipeline.MutationRequest{
			SchemaName: "event",
			Kind:       pipeline.MutationCreate,
			WriterID:   "alice",
			Fields: map[string]pipeline.FieldValue{
				"day":     {Value: day},
				"payload": {Value: day},
			},
		})
		require.NoError(t, err)
	}

	res, err := p.Query(ctx, pipeline.QueryRequest{
		SchemaName: "event",
		Fields:     []string{"payload"},
		Filter: map[string]pipeline.RangeFilter{
			"payload": {Kind: pipeline.FilterKeyRange, Start: "b", End: "d"},
		},
	})
	require.NoError(t, err)
	values := res.Results["payload"].(map[string]any)
	assert.Len(t, values, 2)
	assert.Contains(t, values, "b")
	assert.Contains(t, values, "c")
	assert.NotContains(t, values, "d")
}

func TestQueryUnknownFieldDoesNotFailWholeQuery(t *testing.T) {
	p, r := newPipeline(t)
	approvedPersonSchema(t, r)
	ctx := context.Background()

	_, err := p.Mutate(ctx, pipeline.MutationRequest{
		SchemaName: "person",
		Kind:       pipeline.MutationCreate,
		WriterID:   "alice",
		Fields:     map[string]pipeline.FieldValue{"name": {Value: "Ada"}},
	})
	require.NoError(t, err)

	res, err := p.Query(ctx, pipeline.QueryRequest{SchemaName: "person", Fields: []string{"name", "nope"}})
	require.NoError(t, err)
	assert.Equal(t, "Ada", res.Results["name"])
	require.Error(t, res.PerFieldErrors["nope"])
}
