// Package pipeline implements the mutation and query pipelines from spec
// §4.5: schema-validated field dispatch over the atom/ref layer, policy
// checks, and bus-driven event publication that feeds the transform
// orchestrator.
package pipeline

import (
	"github.com/foldb/folddb/internal/atom"
)

// MutationKind is the operation a mutation requests.
type MutationKind string

const (
	MutationCreate MutationKind = "create"
	MutationUpdate MutationKind = "update"
	MutationDelete MutationKind = "delete"
)

// FieldValue is one field's payload within a mutation. For a Collection
// field, either Value is array-shaped (each element becomes an Add) or Op
// carries an explicit collection operation.
type FieldValue struct {
	Value any
	Op    *atom.CollectionOp
}

// MutationRequest is the pipeline's mutation input (spec §4.5.1).
type MutationRequest struct {
	SchemaName    string
	Kind          MutationKind
	Fields        map[string]FieldValue
	WriterID      string
	TrustDistance int
	CorrelationID string
}

// MutationResult reports the new atom uuid written for every field that
// succeeded. On failure FailedField names the field that failed and Err
// holds its error. Every field's schema and policy checks run before any
// write; fields after the first failed write are never attempted (spec
// §4.5.1 step 6).
type MutationResult struct {
	CorrelationID string
	FieldAtoms    map[string]string
	FailedField   string
	Err           error
}

// QueryRequest is the pipeline's query input (spec §4.5.2).
type QueryRequest struct {
	SchemaName string
	Fields     []string
	Filter     map[string]RangeFilter // only meaningful for Range schemas
}

// QueryResult aggregates per-field values and per-field errors; one
// field's failure never fails the whole query (spec §4.5.2 step 4).
type QueryResult struct {
	Results        map[string]any
	PerFieldErrors map[string]error
}

// RangeFilterKind tags which shape of range filter vocabulary (spec §6.4)
// a RangeFilter carries.
type RangeFilterKind string

const (
	FilterKey       RangeFilterKind = "key"
	FilterKeyPrefix RangeFilterKind = "key_prefix"
	FilterKeyRange  RangeFilterKind = "key_range"
	FilterKeys      RangeFilterKind = "keys"
	FilterKeyGlob   RangeFilterKind = "key_pattern"
	FilterValue     RangeFilterKind = "value"
)

// RangeFilter selects entries out of a Range ref. Exactly the fields
// relevant to Kind are populated.
type RangeFilter struct {
	Kind       RangeFilterKind
	Key        string
	Keys       []string
	Start, End string
	Glob       string
	Value      any
}
