package atom

import (
	"context"
	"time"

	"github.com/foldb/folddb/internal/ids"
	"github.com/foldb/folddb/internal/kv"
	ferrors "github.com/foldb/folddb/pkg/errors"
	"github.com/foldb/folddb/pkg/logger"
)

const (
	treeAtoms    = "atoms"
	treeAtomRefs = "atom_refs"
)

// Store implements spec §4.2: atom creation, ref creation/update, and the
// point-lookup/history queries the pipeline and transform executor issue.
type Store struct {
	kv   kv.Store
	log  logger.Logger
	pool *lockPool
}

// New constructs a Store over the given KV backend. lockStripes sizes the
// per-ref write-serialization pool; 0 picks a sensible default.
func New(store kv.Store, log logger.Logger, lockStripes int) *Store {
	return &Store{kv: store, log: log, pool: newLockPool(lockStripes)}
}

// CreateAtom assigns a fresh uuid and persists the atom under atoms/<uuid>.
func (s *Store) CreateAtom(ctx context.Context, schema, writer string, value any, status Status) (string, error) {
	uuid := ids.NewAtomUUID()
	a := Atom{
		UUID:      uuid,
		Schema:    schema,
		Creator:   writer,
		Value:     value,
		Status:    status,
		CreatedAt: time.Now(),
	}
	if err := kv.PutTyped(ctx, s.kv, treeAtoms, uuid, a); err != nil {
		return "", err
	}
	s.log.Debug("atom created", logger.Fields{"uuid": uuid, "schema": schema})
	return uuid, nil
}

// GetAtom returns the atom stored under uuid.
func (s *Store) GetAtom(ctx context.Context, uuid string) (*Atom, error) {
	var a Atom
	ok, err := kv.GetTyped(ctx, s.kv, treeAtoms, uuid, &a)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ferrors.NotFoundErr("atom", uuid)
	}
	return &a, nil
}

// GetAtomHistory returns the chronologically ordered list of atom uuids a
// ref has ever pointed to, derived from its update history.
func (s *Store) GetAtomHistory(ctx context.Context, refUUID string) ([]string, error) {
	ref, err := s.getRef(ctx, refUUID)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(ref.History))
	for _, h := range ref.History {
		out = append(out, h.AtomUUID)
	}
	return out, nil
}

func (s *Store) getRef(ctx context.Context, refUUID string) (*Ref, error) {
	var r Ref
	ok, err := kv.GetTyped(ctx, s.kv, treeAtomRefs, refUUID, &r)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ferrors.NotFoundErr("ref", refUUID)
	}
	return &r, nil
}

// GetRef is the exported point-lookup used by the pipeline to resolve a
// field's current value(s).
func (s *Store) GetRef(ctx context.Context, refUUID string) (*Ref, error) {
	return s.getRef(ctx, refUUID)
}

// CreateRef persists a new empty ref container, as done during schema
// approval (spec §4.3).
func (s *Store) CreateRef(ctx context.Context, kind RefKind, partitionKey string) (*Ref, error) {
	uuid := ids.NewRefUUID()
	r := NewEmptyRef(uuid, kind, partitionKey)
	if err := kv.PutTyped(ctx, s.kv, treeAtomRefs, uuid, r); err != nil {
		return nil, err
	}
	return r, nil
}

// DeleteRef removes a ref container outright. Only safe for a ref that was
// just allocated and never addressed by an approved field, e.g. rolling
// back a partially-failed schema approval (spec §3 approval atomicity).
func (s *Store) DeleteRef(ctx context.Context, refUUID string) error {
	_, err := s.kv.Delete(ctx, treeAtomRefs, refUUID)
	return err
}

// UpdateAtomRef repoints a Single ref at a new atom, appending to history.
func (s *Store) UpdateAtomRef(ctx context.Context, refUUID, newAtomUUID, writer string) (*Ref, error) {
	var result *Ref
	err := s.pool.withLock(refUUID, func() error {
		ref, err := s.getRef(ctx, refUUID)
		if err != nil {
			return err
		}
		if ref.Kind != RefSingle {
			return ferrors.InvalidRangeFilterErr("ref is not a Single variant")
		}
		ref.Current = newAtomUUID
		ref.UpdatedAt = time.Now()
		ref.History = append(ref.History, HistoryEntry{
			AtomUUID: newAtomUUID, Writer: writer, Status: StatusActive, Timestamp: ref.UpdatedAt,
		})
		if err := kv.PutTyped(ctx, s.kv, treeAtomRefs, refUUID, ref); err != nil {
			return err
		}
		result = ref
		return nil
	})
	return result, err
}

// UpdateAtomRefCollection applies one mutation to a Collection ref.
func (s *Store) UpdateAtomRefCollection(ctx context.Context, refUUID string, op CollectionOp, writer string) (*Ref, error) {
	var result *Ref
	err := s.pool.withLock(refUUID, func() error {
		ref, err := s.getRef(ctx, refUUID)
		if err != nil {
			return err
		}
		if ref.Kind != RefCollection {
			return ferrors.InvalidRangeFilterErr("ref is not a Collection variant")
		}

		switch op.Kind {
		case CollectionAdd:
			ref.Items = append(ref.Items, op.AtomUUID)
		case CollectionInsert:
			if op.Index < 0 || op.Index > len(ref.Items) {
				return ferrors.IndexOutOfBoundsErr(refUUID, op.Index, len(ref.Items))
			}
			ref.Items = append(ref.Items[:op.Index:op.Index],
				append([]string{op.AtomUUID}, ref.Items[op.Index:]...)...)
		case CollectionUpdateByIndex:
			if op.Index < 0 || op.Index >= len(ref.Items) {
				return ferrors.IndexOutOfBoundsErr(refUUID, op.Index, len(ref.Items))
			}
			ref.Items[op.Index] = op.AtomUUID
		case CollectionRemove:
			filtered := ref.Items[:0]
			for _, uuid := range ref.Items {
				if uuid != op.AtomUUID {
					filtered = append(filtered, uuid)
				}
			}
			ref.Items = filtered
		case CollectionClear:
			ref.Items = []string{}
		}

		ref.UpdatedAt = time.Now()
		ref.History = append(ref.History, HistoryEntry{
			AtomUUID: op.AtomUUID, Writer: writer, Status: StatusActive, Timestamp: ref.UpdatedAt,
		})
		if err := kv.PutTyped(ctx, s.kv, treeAtomRefs, refUUID, ref); err != nil {
			return err
		}
		result = ref
		return nil
	})
	return result, err
}

// UpdateAtomRefRange upserts one key/atom pair in a Range ref.
func (s *Store) UpdateAtomRefRange(ctx context.Context, refUUID, partitionKeyValue, atomUUID, writer string) (*Ref, error) {
	var result *Ref
	err := s.pool.withLock(refUUID, func() error {
		ref, err := s.getRef(ctx, refUUID)
		if err != nil {
			return err
		}
		if ref.Kind != RefRange {
			return ferrors.InvalidRangeFilterErr("ref is not a Range variant")
		}
		if ref.Entries == nil {
			ref.Entries = map[string]string{}
		}
		ref.Entries[partitionKeyValue] = atomUUID
		ref.UpdatedAt = time.Now()
		ref.History = append(ref.History, HistoryEntry{
			AtomUUID: atomUUID, Writer: writer, Status: StatusActive, Timestamp: ref.UpdatedAt,
		})
		if err := kv.PutTyped(ctx, s.kv, treeAtomRefs, refUUID, ref); err != nil {
			return err
		}
		result = ref
		return nil
	})
	return result, err
}
