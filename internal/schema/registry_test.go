package schema_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldb/folddb/internal/atom"
	"github.com/foldb/folddb/internal/kv"
	"github.com/foldb/folddb/internal/schema"
	"github.com/foldb/folddb/pkg/errors"
	"github.com/foldb/folddb/pkg/logger"
)

func newRegistry(t *testing.T) (*schema.Registry, kv.Store) {
	t.Helper()
	log, err := logger.New(logger.Config{Backend: logger.BackendSlog, Output: &bytes.Buffer{}})
	require.NoError(t, err)
	store := kv.NewMemoryStore()
	atoms := atom.New(store, log, 8)
	return schema.New(store, atoms, nil, log), store
}

func personDoc() schema.Document {
	return schema.Document{
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
}

func TestLoadSchemaStartsAvailable(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()

	s, err := r.LoadSchema(ctx, personDoc())
	require.NoError(t, err)
	assert.Equal(t, "person", s.Name)

	_, state, err := r.Get(ctx, "person")
	require.NoError(t, err)
	assert.Equal(t, schema.StateAvailable, state)
}

func TestMutationRejectedBeforeApproval(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()

	_, err := r.LoadSchema(ctx, personDoc())
	require.NoError(t, err)

	_, err = r.RequireApproved(ctx, "person")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrSchemaNotAvailable)
}

func TestApproveAllocatesRefsForEveryField(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()

	_, err := r.LoadSchema(ctx, personDoc())
	require.NoError(t, err)

	s, err := r.ApproveSchema(ctx, "person")
	require.NoError(t, err)

	for name, fd := range s.Fields {
		assert.NotEmpty(t, fd.RefUUID, "field %s missing ref uuid", name)
	}

	approved, err := r.RequireApproved(ctx, "person")
	require.NoError(t, err)
	assert.Equal(t, s.Name, approved.Name)
}

func TestBlockDisablesApprovedAccessButKeepsRefs(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()

	_, err := r.LoadSchema(ctx, personDoc())
	require.NoError(t, err)
	before, err := r.ApproveSchema(ctx, "person")
	require.NoError(t, err)
	nameRef := before.Fields["name"].RefUUID

	_, err = r.BlockSchema(ctx, "person")
	require.NoError(t, err)

	_, err = r.RequireApproved(ctx, "person")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrSchemaNotAvailable)

	after, err := r.ApproveSchema(ctx, "person")
	require.NoError(t, err)
	assert.Equal(t, nameRef, after.Fields["name"].RefUUID)
}

func TestBlockOnNonApprovedFails(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()

	_, err := r.LoadSchema(ctx, personDoc())
	require.NoError(t, err)

	_, err = r.BlockSchema(ctx, "person")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrSchemaLifecycle)
}

func TestLoadDuplicateNameFails(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()

	_, err := r.LoadSchema(ctx, personDoc())
	require.NoError(t, err)

	_, err = r.LoadSchema(ctx, personDoc())
	require.Error(t, err)
}

func TestReplayRebuildsFromStore(t *testing.T) {
	r, store := newRegistry(t)
	ctx := context.Background()

	_, err := r.LoadSchema(ctx, personDoc())
	require.NoError(t, err)
	_, err = r.ApproveSchema(ctx, "person")
	require.NoError(t, err)

	log, err := logger.New(logger.Config{Backend: logger.BackendSlog, Output: &bytes.Buffer{}})
	require.NoError(t, err)
	atoms := atom.New(store, log, 8)
	fresh := schema.New(store, atoms, nil, log)
	require.NoError(t, fresh.Replay(ctx))

	s, state, err := fresh.Get(ctx, "person")
	require.NoError(t, err)
	assert.Equal(t, schema.StateApproved, state)
	assert.NotEmpty(t, s.Fields["name"].RefUUID)
}
