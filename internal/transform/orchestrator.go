package transform

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/foldb/folddb/internal/atom"
	"github.com/foldb/folddb/internal/bus"
	"github.com/foldb/folddb/internal/kv"
	"github.com/foldb/folddb/internal/schema"
	"github.com/foldb/folddb/pkg/config"
	ferrors "github.com/foldb/folddb/pkg/errors"
	"github.com/foldb/folddb/pkg/logger"
)

const treeTransforms = "transforms"

// Orchestrator derives registrations on schema approval and triggers
// queued executions off FieldValueSet events (spec §4.6.1, §4.6.2).
type Orchestrator struct {
	mu            sync.RWMutex
	registrations map[string]*Registration
	triggerIndex  map[string][]string // "schema.field" -> transform ids, rebuilt lazily

	cfg      config.TransformConfig
	kv       kv.Store
	atoms    *atom.Store
	registry *schema.Registry
	b        *bus.Bus
	executor *Executor
	log      logger.Logger
}

// New constructs an Orchestrator wired to its executor. Callers must call
// Subscribe once to start listening for FieldValueSet events, and Replay
// at startup to restore registrations persisted before a crash.
func New(store kv.Store, atoms *atom.Store, registry *schema.Registry, b *bus.Bus, executor *Executor, cfg config.TransformConfig, log logger.Logger) *Orchestrator {
	o := &Orchestrator{
		registrations: make(map[string]*Registration),
		triggerIndex:  make(map[string][]string),
		cfg:           cfg,
		kv:            store,
		atoms:         atoms,
		registry:      registry,
		b:             b,
		executor:      executor,
		log:           log,
	}
	executor.bind(o)
	return o
}

// Subscribe hooks the orchestrator into the bus's FieldValueSet broadcast
// (spec §4.6.2: "the orchestrator subscribes directly to FieldValueSet
// events; there is no intermediary").
func (o *Orchestrator) Subscribe() {
	o.b.Subscribe(bus.KindFieldValueSet, func(ctx context.Context, event bus.Event) {
		fv, ok := event.Payload.(bus.FieldValueSet)
		if !ok {
			return
		}
		o.onFieldValueSet(ctx, event.CorrelationID, fv)
	})
}

// onFieldValueSet enqueues every transform bound to fv's path. The cascade
// depth limit (spec §4.6.4) bounds the hop count of a diverging *chain*,
// not the fan-out of a single hop: fv.Depth is the hop the write belongs
// to (1 for a direct mutation write, N+1 for a transform output triggered
// by a hop-N write), so every trigger fired by the same write shares the
// same depth and is judged against maxDepth once, not once per field.
func (o *Orchestrator) onFieldValueSet(ctx context.Context, correlationID string, fv bus.FieldValueSet) {
	path := fv.Schema + "." + fv.Field
	o.mu.RLock()
	ids := append([]string(nil), o.triggerIndex[path]...)
	o.mu.RUnlock()
	if len(ids) == 0 {
		return
	}

	depth := fv.Depth
	if depth <= 0 {
		depth = 1
	}
	maxDepth := o.cfg.MaxCascadeDepth
	if maxDepth <= 0 {
		maxDepth = 1
	}
	if depth > maxDepth {
		o.log.Warn("cascade depth exceeded, dropping trigger", logger.Fields{"correlation_id": correlationID, "depth": depth})
		err := ferrors.CascadeDepthExceededErr(correlationID, depth)
		o.b.Publish(ctx, bus.Event{
			Kind:          bus.KindTransformDead,
			CorrelationID: correlationID,
			Payload:       bus.TransformDead{Cause: err},
		})
		return
	}

	for _, id := range ids {
		if err := o.executor.Enqueue(ctx, id, correlationID, depth); err != nil {
			o.log.Error("failed to enqueue transform", logger.Fields{"transform_id": id, "error": err.Error()})
		}
	}
}

// RegisterSchema computes and persists a Registration for every field in s
// that carries a transform binding (spec §4.6.1). Call after ApproveSchema
// returns the schema with its fields' ref uuids populated.
func (o *Orchestrator) RegisterSchema(ctx context.Context, s *schema.Schema) error {
	for fieldName, fd := range s.Fields {
		if fd.Transform == nil {
			continue
		}
		reg, err := o.buildRegistration(ctx, s, fieldName, fd)
		if err != nil {
			return err
		}
		if err := o.persistAndIndex(ctx, reg); err != nil {
			return err
		}
	}
	return nil
}

// UnregisterSchema drops every registration owned by s (spec §4.6.1
// "unregisters when the owning schema is removed").
func (o *Orchestrator) UnregisterSchema(ctx context.Context, schemaName string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for id, reg := range o.registrations {
		if reg.Schema != schemaName {
			continue
		}
		delete(o.registrations, id)
		for _, path := range reg.TriggerFields {
			o.triggerIndex[path] = removeString(o.triggerIndex[path], id)
		}
		if _, err := o.kv.Delete(ctx, treeTransforms, id); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) buildRegistration(ctx context.Context, s *schema.Schema, fieldName string, fd schema.FieldDef) (*Registration, error) {
	t := fd.Transform
	reg := &Registration{
		ID:            t.ID,
		Schema:        s.Name,
		Field:         fieldName,
		Logic:         t.Logic,
		OutputRefUUID: fd.RefUUID,
		OutputVariant: fd.Variant,
	}
	if s.Kind == schema.KindRange {
		reg.PartitionKey = s.PartitionKey
	}

	for _, path := range t.Inputs {
		inputSchema, varName, err := splitPath(path, s.Name)
		if err != nil {
			return nil, err
		}
		inputs, err := o.registry.RequireApproved(ctx, inputSchema)
		if err != nil {
			return nil, err
		}
		inputFD, ok := inputs.Fields[varName]
		if !ok {
			return nil, ferrors.SchemaValidationErr(s.Name, fmt.Sprintf("transform %q input %q not found", t.ID, path))
		}
		binding := InputBinding{
			Path:    inputSchema + "." + varName,
			VarName: varName,
			RefUUID: inputFD.RefUUID,
			Variant: inputFD.Variant,
		}
		if def, ok := t.Defaults[varName]; ok {
			binding.Default = def
			binding.HasDefault = true
		}
		reg.Inputs = append(reg.Inputs, binding)
	}

	triggerFields := t.TriggerFields
	if len(triggerFields) == 0 {
		for _, in := range reg.Inputs {
			triggerFields = append(triggerFields, in.Path)
		}
	}
	reg.TriggerFields = triggerFields
	return reg, nil
}

// splitPath resolves a transform input path. A bare field name (no dot)
// refers to the owning schema; a "schema.field" path refers to another
// schema's field.
func splitPath(path, owningSchema string) (schemaName, field string, err error) {
	if idx := strings.IndexByte(path, '.'); idx >= 0 {
		return path[:idx], path[idx+1:], nil
	}
	if path == "" {
		return "", "", ferrors.SchemaValidationErr(owningSchema, "empty transform input path")
	}
	return owningSchema, path, nil
}

func (o *Orchestrator) persistAndIndex(ctx context.Context, reg *Registration) error {
	if err := kv.PutTyped(ctx, o.kv, treeTransforms, reg.ID, reg); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.registrations[reg.ID] = reg
	for _, path := range reg.TriggerFields {
		o.triggerIndex[path] = appendUnique(o.triggerIndex[path], reg.ID)
	}
	return nil
}

// Replay rebuilds registrations and the trigger index from the transforms
// tree after a restart (spec §7 "the transform orchestrator replays
// transforms/* ... resuming execution in queue order").
func (o *Orchestrator) Replay(ctx context.Context) error {
	entries, err := o.kv.List(ctx, treeTransforms)
	if err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, entry := range entries {
		var reg Registration
		if _, err := kv.GetTyped(ctx, o.kv, treeTransforms, entry.Key, &reg); err != nil {
			return err
		}
		regCopy := reg
		o.registrations[regCopy.ID] = &regCopy
		for _, path := range regCopy.TriggerFields {
			o.triggerIndex[path] = appendUnique(o.triggerIndex[path], regCopy.ID)
		}
	}
	return nil
}

// Get returns the registration for id, if any.
func (o *Orchestrator) Get(id string) (*Registration, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	reg, ok := o.registrations[id]
	return reg, ok
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

func removeString(ids []string, id string) []string {
	out := ids[:0]
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	return out
}
