package schema

import (
	"context"
	"fmt"
	"sync"

	"github.com/foldb/folddb/internal/atom"
	"github.com/foldb/folddb/internal/cache"
	"github.com/foldb/folddb/internal/kv"
	ferrors "github.com/foldb/folddb/pkg/errors"
	"github.com/foldb/folddb/pkg/logger"
)

const (
	treeSchemas      = "schemas"
	treeSchemaStates = "schema_states"
)

// entry is what the registry's authoritative map holds per schema name.
// The mutex guarding this map is the single source of truth for the
// lifecycle state machine (spec §5): state transitions take the writer
// lock, hot reads take the reader lock.
type entry struct {
	schema *Schema
	state  State
}

// Registry loads, validates, and advances schemas through their lifecycle
// (spec §4.3), materializing ref containers on approval. An optional
// cache.Service front-runs Get the way the teacher's Registry.Get
// consults a memory tier before Redis before primary storage; the
// authoritative state lives in the mutex-guarded map and the KV store
// regardless of whether a cache is configured.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry

	kv     kv.Store
	atoms  *atom.Store
	cache  cache.Service // optional; nil disables the read-through tier
	parser *Parser
	log    logger.Logger
}

// New constructs a Registry. cacheSvc may be nil.
func New(store kv.Store, atoms *atom.Store, cacheSvc cache.Service, log logger.Logger) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		kv:      store,
		atoms:   atoms,
		cache:   cacheSvc,
		parser:  NewParser(),
		log:     log,
	}
}

// Replay rebuilds the in-memory map from the schemas/schema_states trees
// on startup (spec §7 "Recovery after crash"), so a restarted process
// resumes with every previously loaded/approved/blocked schema intact.
func (r *Registry) Replay(ctx context.Context) error {
	entries, err := r.kv.List(ctx, treeSchemas)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, kvEntry := range entries {
		var s Schema
		if ok, err := kv.GetTyped(ctx, r.kv, treeSchemas, kvEntry.Key, &s); err != nil || !ok {
			continue
		}
		var state State
		if ok, err := kv.GetTyped(ctx, r.kv, treeSchemaStates, kvEntry.Key, &state); err != nil || !ok {
			state = StateAvailable
		}
		schema := s
		r.entries[kvEntry.Key] = &entry{schema: &schema, state: state}
	}
	return nil
}

// LoadSchema parses doc, validates its structure, and stores it in state
// Available. Data operations against it are rejected until approval.
func (r *Registry) LoadSchema(ctx context.Context, doc Document) (*Schema, error) {
	s, err := r.parser.Parse(ctx, doc)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[s.Name]; exists {
		return nil, ferrors.SchemaLifecycleErr(s.Name, "exists", "loaded")
	}

	if err := r.persist(ctx, s, StateAvailable); err != nil {
		return nil, err
	}
	r.entries[s.Name] = &entry{schema: s, state: StateAvailable}
	r.log.Info("schema loaded", logger.Fields{"schema": s.Name, "state": StateAvailable})
	return s, nil
}

// ApproveSchema transitions Available->Approved or Blocked->Approved. On
// the former it allocates an empty ref container for every field lacking
// one and stamps the field's ref uuid, all-or-nothing (spec §4.3
// "Schema approval atomicity").
func (r *Registry) ApproveSchema(ctx context.Context, name string) (*Schema, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok {
		return nil, ferrors.SchemaNotFoundErr(name)
	}
	if e.state != StateAvailable && e.state != StateBlocked {
		return nil, ferrors.SchemaLifecycleErr(name, string(e.state), string(StateApproved))
	}
	from := e.state

	if from == StateBlocked {
		// Refs already exist from the first approval; just re-enable.
		e.state = StateApproved
		if err := r.persistState(ctx, name, StateApproved); err != nil {
			e.state = from
			return nil, err
		}
		r.invalidateCache(ctx, name)
		return e.schema, nil
	}

	allocated := make([]string, 0, len(e.schema.Fields))
	stamped := make([]string, 0, len(e.schema.Fields))
	undo := func() {
		r.rollbackRefs(ctx, allocated)
		for _, fieldName := range stamped {
			fd := e.schema.Fields[fieldName]
			fd.RefUUID = ""
			e.schema.Fields[fieldName] = fd
		}
	}
	for fieldName, fd := range e.schema.Fields {
		if fd.RefUUID != "" {
			continue
		}
		partitionKey := ""
		if fd.Variant == atom.RefRange {
			partitionKey = e.schema.PartitionKey
		}
		ref, err := r.atoms.CreateRef(ctx, fd.Variant, partitionKey)
		if err != nil {
			undo()
			return nil, fmt.Errorf("allocate ref for %s.%s: %w", name, fieldName, err)
		}
		fd.RefUUID = ref.UUID
		e.schema.Fields[fieldName] = fd
		allocated = append(allocated, ref.UUID)
		stamped = append(stamped, fieldName)
	}

	if err := r.persist(ctx, e.schema, StateApproved); err != nil {
		undo()
		return nil, err
	}
	e.state = StateApproved
	r.invalidateCache(ctx, name)
	r.log.Info("schema approved", logger.Fields{"schema": name, "fields_allocated": len(allocated)})
	return e.schema, nil
}

// rollbackRefs deletes freshly-allocated ref containers when approval
// fails partway, restoring "no new ref containers exist" on failure
// (spec §3 approval atomicity). A delete failure is logged and otherwise
// ignored; the allocation error that triggered the rollback is already
// the one returned to the caller.
func (r *Registry) rollbackRefs(ctx context.Context, refUUIDs []string) {
	if len(refUUIDs) == 0 {
		return
	}
	for _, refUUID := range refUUIDs {
		if err := r.atoms.DeleteRef(ctx, refUUID); err != nil {
			r.log.Warn("failed to roll back orphaned ref", logger.Fields{"ref": refUUID, "error": err.Error()})
		}
	}
}

// BlockSchema disables query and mutation against name; transform
// orchestration continues untouched (spec §4.3).
func (r *Registry) BlockSchema(ctx context.Context, name string) (*Schema, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok {
		return nil, ferrors.SchemaNotFoundErr(name)
	}
	if e.state != StateApproved {
		return nil, ferrors.SchemaLifecycleErr(name, string(e.state), string(StateBlocked))
	}
	e.state = StateBlocked
	if err := r.persistState(ctx, name, StateBlocked); err != nil {
		e.state = StateApproved
		return nil, err
	}
	r.invalidateCache(ctx, name)
	r.log.Info("schema blocked", logger.Fields{"schema": name})
	return e.schema, nil
}

// Get resolves a schema by name without regard to lifecycle state. The
// query/mutation pipeline pairs this with RequireApproved.
func (r *Registry) Get(ctx context.Context, name string) (*Schema, State, error) {
	if r.cache != nil {
		var cached Schema
		if err := r.cache.Get(ctx, cacheKey(name), &cached); err == nil {
			r.mu.RLock()
			e, ok := r.entries[name]
			r.mu.RUnlock()
			if !ok {
				return nil, "", ferrors.SchemaNotFoundErr(name)
			}
			return &cached, e.state, nil
		}
	}

	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, "", ferrors.SchemaNotFoundErr(name)
	}

	if r.cache != nil {
		_ = r.cache.Set(ctx, cacheKey(name), e.schema, 0)
	}
	return e.schema, e.state, nil
}

// RequireApproved is the preflight check spec §4.5.1/§4.5.2 run before
// dispatching a mutation or query.
func (r *Registry) RequireApproved(ctx context.Context, name string) (*Schema, error) {
	s, state, err := r.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if state != StateApproved {
		return nil, ferrors.SchemaNotAvailableErr(name)
	}
	return s, nil
}

func (r *Registry) persist(ctx context.Context, s *Schema, state State) error {
	if err := kv.PutTyped(ctx, r.kv, treeSchemas, s.Name, s); err != nil {
		return err
	}
	return r.persistState(ctx, s.Name, state)
}

func (r *Registry) persistState(ctx context.Context, name string, state State) error {
	return kv.PutTyped(ctx, r.kv, treeSchemaStates, name, state)
}

func (r *Registry) invalidateCache(ctx context.Context, name string) {
	if r.cache == nil {
		return
	}
	_ = r.cache.Delete(ctx, cacheKey(name))
}

func cacheKey(name string) string {
	return "schema:" + name
}
