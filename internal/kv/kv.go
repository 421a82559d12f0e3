// Package kv implements the store facade described in spec §4.1: a keyed
// byte store partitioned into named trees, with typed helpers layered on
// top of raw Put/Get/Delete/List/Range.
package kv

import (
	"context"
	"encoding/json"

	ferrors "github.com/foldb/folddb/pkg/errors"
)

// Entry is a single key/value pair as returned by List and Range.
type Entry struct {
	Key   string
	Value []byte
}

// Store is the keyed byte store every higher-level component builds on.
// Implementations: Bolt-backed (production) and an in-memory map (tests).
type Store interface {
	Put(ctx context.Context, tree, key string, value []byte) error
	Get(ctx context.Context, tree, key string) ([]byte, bool, error)
	Delete(ctx context.Context, tree, key string) (bool, error)
	List(ctx context.Context, tree string) ([]Entry, error)
	Range(ctx context.Context, tree, prefix string) ([]Entry, error)
	Close() error
}

// format version byte prepended to every typed payload, so a future
// encoding change can be detected without guessing from content.
const formatVersionJSON byte = 1

// PutTyped JSON-encodes v and writes it with a leading format version byte.
func PutTyped(ctx context.Context, s Store, tree, key string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return ferrors.StoreErr("put-typed", tree, err)
	}
	buf := make([]byte, 0, len(body)+1)
	buf = append(buf, formatVersionJSON)
	buf = append(buf, body...)
	return s.Put(ctx, tree, key, buf)
}

// GetTyped reads and JSON-decodes the value stored at key into v. Returns
// false if the key is absent.
func GetTyped(ctx context.Context, s Store, tree, key string, v any) (bool, error) {
	raw, ok, err := s.Get(ctx, tree, key)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if len(raw) == 0 {
		return false, ferrors.StoreErr("get-typed", tree, errEmptyValue)
	}
	// raw[0] is the format version; only JSON (version 1) exists today.
	if err := json.Unmarshal(raw[1:], v); err != nil {
		return false, ferrors.StoreErr("get-typed", tree, err)
	}
	return true, nil
}

var errEmptyValue = storeValueError("stored value has no format version byte")

type storeValueError string

func (e storeValueError) Error() string { return string(e) }
