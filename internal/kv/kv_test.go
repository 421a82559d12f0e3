package kv_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldb/folddb/internal/kv"
)

type person struct {
	Name string `json:"name"`
	Age  int    `json:"age"`
}

func stores(t *testing.T) map[string]kv.Store {
	t.Helper()
	bolt, err := kv.OpenBolt(kv.BoltOptions{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { bolt.Close() })

	return map[string]kv.Store{
		"bolt":   bolt,
		"memory": kv.NewMemoryStore(),
	}
}

func TestPutGetDelete(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put(ctx, "atoms", "a1", []byte("v1")))

			v, ok, err := s.Get(ctx, "atoms", "a1")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, []byte("v1"), v)

			existed, err := s.Delete(ctx, "atoms", "a1")
			require.NoError(t, err)
			assert.True(t, existed)

			_, ok, err = s.Get(ctx, "atoms", "a1")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestGetMissingKeyIsNotFoundNotError(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := s.Get(ctx, "atoms", "nope")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestListIsLexicallyOrdered(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put(ctx, "atoms", "b", []byte("2")))
			require.NoError(t, s.Put(ctx, "atoms", "a", []byte("1")))
			require.NoError(t, s.Put(ctx, "atoms", "c", []byte("3")))

			entries, err := s.List(ctx, "atoms")
			require.NoError(t, err)
			require.Len(t, entries, 3)
			assert.Equal(t, []string{"a", "b", "c"}, []string{entries[0].Key, entries[1].Key, entries[2].Key})
		})
	}
}

func TestRangeByPrefix(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put(ctx, "atom_refs", "user:1", []byte("x")))
			require.NoError(t, s.Put(ctx, "atom_refs", "user:2", []byte("y")))
			require.NoError(t, s.Put(ctx, "atom_refs", "post:1", []byte("z")))

			entries, err := s.Range(ctx, "atom_refs", "user:")
			require.NoError(t, err)
			assert.Len(t, entries, 2)
		})
	}
}

func TestPutTypedGetTyped(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			in := person{Name: "ada", Age: 30}
			require.NoError(t, kv.PutTyped(ctx, s, "schemas", "p1", in))

			var out person
			ok, err := kv.GetTyped(ctx, s, "schemas", "p1", &out)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, in, out)
		})
	}
}

func TestGetTypedMissingReturnsFalse(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			var out person
			ok, err := kv.GetTyped(ctx, s, "schemas", "missing", &out)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}
