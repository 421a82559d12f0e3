// Package atom implements the atom and atom-ref layer from spec §4.2:
// immutable atoms addressed by uuid, and three ref variants (Single,
// Collection, Range) that point at them.
package atom

import "time"

// Status is the lifecycle marker carried by an atom or a ref.
type Status string

const (
	StatusActive  Status = "active"
	StatusDeleted Status = "deleted"
)

// Atom is an immutable field value. Once persisted its Value, Creator, and
// CreatedAt never change; only Status may later flip to StatusDeleted.
type Atom struct {
	UUID      string    `json:"uuid"`
	Schema    string    `json:"schema"`
	Creator   string    `json:"creator"`
	Value     any       `json:"value"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// RefKind tags which shape an AtomRef takes.
type RefKind string

const (
	RefSingle     RefKind = "single"
	RefCollection RefKind = "collection"
	RefRange      RefKind = "range"
)

// HistoryEntry records one point in a ref's update history.
type HistoryEntry struct {
	AtomUUID  string    `json:"atom_uuid"`
	Writer    string    `json:"writer"`
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Ref is the tagged-variant atom ref: exactly one of Current, Items, or
// Range is meaningful, selected by Kind. A single Go type (rather than an
// interface hierarchy) keeps JSON round-tripping and the striped-lock
// pool simple — callers branch on Kind, the way spec §3 describes the
// three ref shapes as one entity with a discriminant.
type Ref struct {
	UUID      string    `json:"uuid"`
	Kind      RefKind   `json:"kind"`
	Status    Status    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`

	// RefSingle
	Current string `json:"current,omitempty"`

	// RefCollection
	Items []string `json:"items,omitempty"`

	// RefRange
	PartitionKey string            `json:"partition_key,omitempty"`
	Entries      map[string]string `json:"entries,omitempty"`

	History []HistoryEntry `json:"history,omitempty"`
}

// NewEmptyRef builds the empty ref container materialized on schema
// approval (spec §4.3), one per field.
func NewEmptyRef(uuid string, kind RefKind, partitionKey string) *Ref {
	r := &Ref{UUID: uuid, Kind: kind, Status: StatusActive, UpdatedAt: time.Now()}
	switch kind {
	case RefCollection:
		r.Items = []string{}
	case RefRange:
		r.PartitionKey = partitionKey
		r.Entries = map[string]string{}
	}
	return r
}

// CollectionOpKind tags a mutation against a Collection ref.
type CollectionOpKind string

const (
	CollectionAdd           CollectionOpKind = "add"
	CollectionInsert        CollectionOpKind = "insert"
	CollectionUpdateByIndex CollectionOpKind = "update_by_index"
	CollectionRemove        CollectionOpKind = "remove"
	CollectionClear         CollectionOpKind = "clear"
)

// CollectionOp is one mutation applied to a Collection ref (spec §4.2).
type CollectionOp struct {
	Kind     CollectionOpKind
	Index    int
	AtomUUID string
}
