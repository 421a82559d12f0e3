package schema_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldb/folddb/internal/atom"
	"github.com/foldb/folddb/internal/schema"
)

func TestParseSingleSchema(t *testing.T) {
	p := schema.NewParser()
	doc := schema.Document{
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
	}

	s, err := p.Parse(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, "person", s.Name)
	assert.Equal(t, schema.KindSingle, s.Kind)
	assert.Equal(t, atom.RefSingle, s.Fields["name"].Variant)
	assert.Equal(t, atom.RefCollection, s.Fields["tags"].Variant)
	assert.NotEmpty(t, s.ContentHash)
}

func TestParseRangeSchemaRequiresUniformity(t *testing.T) {
	p := schema.NewParser()
	doc := schema.Document{
		ID:   "scores",
		Kind: "json",
		Raw: []byte(`{
			"name": "scores",
			"kind": "range",
			"partition_key": "user_id",
			"fields": {
				"user_id": {"variant": "range"},
				"score": {"variant": "single"}
			}
		}`),
	}

	_, err := p.Parse(context.Background(), doc)
	require.Error(t, err)
}

func TestParseRangeSchemaUniform(t *testing.T) {
	p := schema.NewParser()
	doc := schema.Document{
		ID:   "scores",
		Kind: "json",
		Raw: []byte(`{
			"name": "scores",
			"kind": "range",
			"partition_key": "user_id",
			"fields": {
				"user_id": {"variant": "range"},
				"score": {"variant": "range"}
			}
		}`),
	}

	s, err := p.Parse(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, "user_id", s.PartitionKey)
}

func TestParseYAMLDocument(t *testing.T) {
	p := schema.NewParser()
	doc := schema.Document{
		ID:   "person",
		Kind: "yaml",
		Raw: []byte(`
name: person
kind: single
fields:
  name:
    variant: single
`),
	}

	s, err := p.Parse(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, "person", s.Name)
}

func TestParseMissingNameFails(t *testing.T) {
	p := schema.NewParser()
	doc := schema.Document{
		ID:   "x",
		Kind: "json",
		Raw:  []byte(`{"kind": "single", "fields": {"a": {"variant": "single"}}}`),
	}

	_, err := p.Parse(context.Background(), doc)
	require.Error(t, err)
}

func TestParseTransformFieldIsNotWritable(t *testing.T) {
	p := schema.NewParser()
	doc := schema.Document{
		ID:   "derived",
		Kind: "json",
		Raw: []byte(`{
			"name": "derived",
			"kind": "single",
			"fields": {
				"sum": {
					"variant": "single",
					"transform": {
						"id": "sum_xy",
						"inputs": ["src.x", "src.y"],
						"logic": "x + y"
					}
				}
			}
		}`),
	}

	s, err := p.Parse(context.Background(), doc)
	require.NoError(t, err)
	assert.False(t, s.Fields["sum"].Writable)
	require.NotNil(t, s.Fields["sum"].Transform)
	assert.Equal(t, "sum_xy", s.Fields["sum"].Transform.ID)
}
