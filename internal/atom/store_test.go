package atom_test

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldb/folddb/internal/atom"
	"github.com/foldb/folddb/internal/kv"
	"github.com/foldb/folddb/pkg/errors"
	"github.com/foldb/folddb/pkg/logger"
)

func newStore(t *testing.T) *atom.Store {
	t.Helper()
	log, err := logger.New(logger.Config{Backend: logger.BackendSlog, Output: &bytes.Buffer{}})
	require.NoError(t, err)
	return atom.New(kv.NewMemoryStore(), log, 8)
}

func TestCreateAndGetAtom(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	uuid, err := s.CreateAtom(ctx, "person", "alice", map[string]any{"name": "bob"}, atom.StatusActive)
	require.NoError(t, err)
	require.NotEmpty(t, uuid)

	a, err := s.GetAtom(ctx, uuid)
	require.NoError(t, err)
	assert.Equal(t, "person", a.Schema)
	assert.Equal(t, "alice", a.Creator)
	assert.Equal(t, atom.StatusActive, a.Status)
}

func TestGetAtomMissingIsNotFound(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	_, err := s.GetAtom(ctx, "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestUpdateAtomRefRepointsSingle(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	ref, err := s.CreateRef(ctx, atom.RefSingle, "")
	require.NoError(t, err)

	a1, err := s.CreateAtom(ctx, "person", "alice", "v1", atom.StatusActive)
	require.NoError(t, err)
	updated, err := s.UpdateAtomRef(ctx, ref.UUID, a1, "alice")
	require.NoError(t, err)
	assert.Equal(t, a1, updated.Current)
	require.Len(t, updated.History, 1)

	a2, err := s.CreateAtom(ctx, "person", "alice", "v2", atom.StatusActive)
	require.NoError(t, err)
	updated, err = s.UpdateAtomRef(ctx, ref.UUID, a2, "alice")
	require.NoError(t, err)
	assert.Equal(t, a2, updated.Current)

	history, err := s.GetAtomHistory(ctx, ref.UUID)
	require.NoError(t, err)
	assert.Equal(t, []string{a1, a2}, history)
}

func TestUpdateAtomRefWrongKindRejected(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	ref, err := s.CreateRef(ctx, atom.RefCollection, "")
	require.NoError(t, err)

	_, err = s.UpdateAtomRef(ctx, ref.UUID, "some-atom", "alice")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidRangeFilter)
}

func TestCollectionAddInsertUpdateRemoveClear(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	ref, err := s.CreateRef(ctx, atom.RefCollection, "")
	require.NoError(t, err)

	r, err := s.UpdateAtomRefCollection(ctx, ref.UUID, atom.CollectionOp{Kind: atom.CollectionAdd, AtomUUID: "a1"}, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, r.Items)

	r, err = s.UpdateAtomRefCollection(ctx, ref.UUID, atom.CollectionOp{Kind: atom.CollectionAdd, AtomUUID: "a2"}, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2"}, r.Items)

	r, err = s.UpdateAtomRefCollection(ctx, ref.UUID, atom.CollectionOp{Kind: atom.CollectionInsert, Index: 1, AtomUUID: "a15"}, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a15", "a2"}, r.Items)

	r, err = s.UpdateAtomRefCollection(ctx, ref.UUID, atom.CollectionOp{Kind: atom.CollectionUpdateByIndex, Index: 0, AtomUUID: "a1-updated"}, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"a1-updated", "a15", "a2"}, r.Items)

	r, err = s.UpdateAtomRefCollection(ctx, ref.UUID, atom.CollectionOp{Kind: atom.CollectionRemove, AtomUUID: "a15"}, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"a1-updated", "a2"}, r.Items)

	r, err = s.UpdateAtomRefCollection(ctx, ref.UUID, atom.CollectionOp{Kind: atom.CollectionClear}, "alice")
	require.NoError(t, err)
	assert.Empty(t, r.Items)
}

func TestCollectionOutOfBoundsIndex(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	ref, err := s.CreateRef(ctx, atom.RefCollection, "")
	require.NoError(t, err)

	_, err = s.UpdateAtomRefCollection(ctx, ref.UUID, atom.CollectionOp{Kind: atom.CollectionUpdateByIndex, Index: 5, AtomUUID: "a1"}, "alice")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrIndexOutOfBounds)

	_, err = s.UpdateAtomRefCollection(ctx, ref.UUID, atom.CollectionOp{Kind: atom.CollectionInsert, Index: -1, AtomUUID: "a1"}, "alice")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrIndexOutOfBounds)
}

func TestRangeRefUpsertsByPartitionKey(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	ref, err := s.CreateRef(ctx, atom.RefRange, "region")
	require.NoError(t, err)

	r, err := s.UpdateAtomRefRange(ctx, ref.UUID, "us-east", "a1", "alice")
	require.NoError(t, err)
	assert.Equal(t, "a1", r.Entries["us-east"])

	r, err = s.UpdateAtomRefRange(ctx, ref.UUID, "us-west", "a2", "alice")
	require.NoError(t, err)
	assert.Equal(t, "a1", r.Entries["us-east"])
	assert.Equal(t, "a2", r.Entries["us-west"])

	r, err = s.UpdateAtomRefRange(ctx, ref.UUID, "us-east", "a3", "alice")
	require.NoError(t, err)
	assert.Equal(t, "a3", r.Entries["us-east"])
}

func TestConcurrentWritesToDifferentRefsProceedInParallel(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	const refCount = 20
	refs := make([]*atom.Ref, refCount)
	for i := range refs {
		r, err := s.CreateRef(ctx, atom.RefCollection, "")
		require.NoError(t, err)
		refs[i] = r
	}

	var wg sync.WaitGroup
	for i := 0; i < refCount; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_, err := s.UpdateAtomRefCollection(ctx, refs[idx].UUID, atom.CollectionOp{Kind: atom.CollectionAdd, AtomUUID: "x"}, "writer")
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	for _, r := range refs {
		got, err := s.GetRef(ctx, r.UUID)
		require.NoError(t, err)
		assert.Len(t, got.Items, 10)
	}
}
