// Package schema implements the schema registry and lifecycle state
// machine from spec §4.3: named, immutable field maps that move through
// Available -> Approved <-> Blocked, materializing atom-ref containers on
// approval.
package schema

import (
	"time"

	"github.com/foldb/folddb/internal/atom"
)

// Kind tags whether a schema is a plain Single schema or keyed by a
// partition field (Range).
type Kind string

const (
	KindSingle Kind = "single"
	KindRange  Kind = "range"
)

// State is a schema's lifecycle position.
type State string

const (
	StateAvailable State = "available"
	StateApproved  State = "approved"
	StateBlocked   State = "blocked"
)

// FieldDef is one field of a schema (spec §3 FieldDef).
type FieldDef struct {
	Name             string       `json:"name"`
	Variant          atom.RefKind `json:"variant"`
	PermissionPolicy string       `json:"permission_policy,omitempty"`
	PaymentPolicy    string       `json:"payment_policy,omitempty"`
	Mappers          []string     `json:"mappers,omitempty"`
	Transform        *Transform   `json:"transform,omitempty"`
	Writable         bool         `json:"writable"`
	RefUUID          string       `json:"ref_uuid,omitempty"`
}

// Transform is a binding embedded in the output field's definition: its
// inputs, its logic, and what triggers it.
type Transform struct {
	ID            string         `json:"id"`
	Inputs        []string       `json:"inputs"` // "schema.field" paths
	Logic         string         `json:"logic"`
	TriggerFields []string       `json:"trigger_fields,omitempty"`
	Defaults      map[string]any `json:"defaults,omitempty"` // keyed by input's field name, not full path
}

// Schema is a named, immutable field map (spec §3 Schema).
type Schema struct {
	Name         string              `json:"name"`
	Kind         Kind                `json:"kind"`
	PartitionKey string              `json:"partition_key,omitempty"`
	Fields       map[string]FieldDef `json:"fields"`
	ContentHash  string              `json:"content_hash"`
	CreatedAt    time.Time           `json:"created_at"`
}

// Document is the raw, unparsed form a SchemaSource hands the registry
// (spec §6.1 SchemaSource.load()).
type Document struct {
	ID   string
	Raw  []byte
	Kind string // "json" or "yaml", informs Parser dispatch
}
