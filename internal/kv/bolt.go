package kv

import (
	"bytes"
	"context"
	"time"

	"go.etcd.io/bbolt"

	ferrors "github.com/foldb/folddb/pkg/errors"
)

// BoltStore is the production Store backend: an embedded, ordered,
// crash-safe KV store where each spec tree is a top-level bucket.
type BoltStore struct {
	db *bbolt.DB
}

// BoltOptions configures the embedded database file.
type BoltOptions struct {
	Path       string
	Timeout    time.Duration
	ReadOnly   bool
	NoGrowSync bool
}

// OpenBolt opens (creating if absent) the bbolt database file at opts.Path.
func OpenBolt(opts BoltOptions) (*BoltStore, error) {
	db, err := bbolt.Open(opts.Path, 0o600, &bbolt.Options{
		Timeout:    opts.Timeout,
		ReadOnly:   opts.ReadOnly,
		NoGrowSync: opts.NoGrowSync,
	})
	if err != nil {
		return nil, ferrors.StoreErr("open", opts.Path, err)
	}
	return &BoltStore{db: db}, nil
}

func (b *BoltStore) Put(_ context.Context, tree, key string, value []byte) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(tree))
		if err != nil {
			return err
		}
		return bucket.Put([]byte(key), value)
	})
	if err != nil {
		return ferrors.StoreErr("put", tree, err)
	}
	return nil
}

func (b *BoltStore) Get(_ context.Context, tree, key string) ([]byte, bool, error) {
	var value []byte
	var found bool
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(tree))
		if bucket == nil {
			return nil
		}
		raw := bucket.Get([]byte(key))
		if raw == nil {
			return nil
		}
		found = true
		value = append([]byte(nil), raw...)
		return nil
	})
	if err != nil {
		return nil, false, ferrors.StoreErr("get", tree, err)
	}
	return value, found, nil
}

func (b *BoltStore) Delete(_ context.Context, tree, key string) (bool, error) {
	var existed bool
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(tree))
		if bucket == nil {
			return nil
		}
		if bucket.Get([]byte(key)) != nil {
			existed = true
		}
		return bucket.Delete([]byte(key))
	})
	if err != nil {
		return false, ferrors.StoreErr("delete", tree, err)
	}
	return existed, nil
}

func (b *BoltStore) List(_ context.Context, tree string) ([]Entry, error) {
	var entries []Entry
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(tree))
		if bucket == nil {
			return nil
		}
		c := bucket.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			entries = append(entries, Entry{
				Key:   string(k),
				Value: append([]byte(nil), v...),
			})
		}
		return nil
	})
	if err != nil {
		return nil, ferrors.StoreErr("list", tree, err)
	}
	return entries, nil
}

func (b *BoltStore) Range(_ context.Context, tree, prefix string) ([]Entry, error) {
	var entries []Entry
	prefixBytes := []byte(prefix)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(tree))
		if bucket == nil {
			return nil
		}
		c := bucket.Cursor()
		for k, v := c.Seek(prefixBytes); k != nil && bytes.HasPrefix(k, prefixBytes); k, v = c.Next() {
			entries = append(entries, Entry{
				Key:   string(k),
				Value: append([]byte(nil), v...),
			})
		}
		return nil
	})
	if err != nil {
		return nil, ferrors.StoreErr("range", tree, err)
	}
	return entries, nil
}

func (b *BoltStore) Close() error {
	if err := b.db.Close(); err != nil {
		return ferrors.StoreErr("close", "", err)
	}
	return nil
}

var _ Store = (*BoltStore)(nil)
