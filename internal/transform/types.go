// Package transform implements the transform orchestrator and executor
// from spec §4.6: derives registrations from approved schemas, triggers on
// FieldValueSet events, and executes transform logic through the external
// ExpressionEngine with a durable, retrying FIFO queue.
package transform

import (
	"time"

	"github.com/foldb/folddb/internal/atom"
)

// InputBinding is one resolved transform input: the dotted "schema.field"
// path it was declared with, the variable name exposed to the expression
// (the path's field segment), and the ref it reads from.
type InputBinding struct {
	Path       string
	VarName    string
	RefUUID    string
	Variant    atom.RefKind
	Default    any
	HasDefault bool
}

// Registration is the derived binding computed on schema approval (spec
// §4.6.1): inputs, trigger fields, and the output ref to write.
type Registration struct {
	ID            string
	Schema        string
	Field         string
	Logic         string
	Inputs        []InputBinding
	TriggerFields []string // "schema.field" paths
	OutputRefUUID string
	OutputVariant atom.RefKind
	PartitionKey  string // non-empty when the output schema is Range-kind
}

// QueuedItem is one pending or in-progress execution request (spec §6.3
// transform_mappings/queue).
type QueuedItem struct {
	TransformID   string    `json:"transform_id"`
	CorrelationID string    `json:"correlation_id"`
	Attempt       int       `json:"attempt"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
	// Depth is the cascade hop that produced this item: 1 for a transform
	// triggered directly by a mutation's field writes, N+1 for a transform
	// triggered by hop N's own output write (spec §4.6.4).
	Depth int `json:"depth"`
}
