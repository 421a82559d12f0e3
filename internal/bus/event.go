// Package bus implements the in-process typed publish/subscribe layer
// described in spec §4.4. Field writes, mutation outcomes and transform
// outcomes are published here; the pipeline and the transform executor
// call the schema registry and the atom store directly.
package bus

import "time"

// Kind tags the variant an Event carries.
type Kind string

const (
	KindFieldValueSet     Kind = "field_value_set"
	KindMutationOk        Kind = "mutation_ok"
	KindMutationFailed    Kind = "mutation_failed"
	KindTransformExecuted Kind = "transform_executed"
	KindTransformDead     Kind = "transform_dead"
)

// Event is the tagged variant delivered to subscribers. Payload carries
// whatever fields the Kind's contract promises; correlation id ties a
// response back to the request that produced it.
type Event struct {
	Kind          Kind
	CorrelationID string
	Payload       any
	PublishedAt   time.Time
}

// FieldValueSet is the payload published after a successful field write.
// Depth is the cascade hop this write belongs to: 1 for a direct mutation
// write, N+1 for a transform's output write triggered by a hop-N event
// (spec §4.6.4). Direct mutation writes within the same request share
// Depth 1 regardless of how many fields they touch.
type FieldValueSet struct {
	Schema      string
	Field       string
	Writer      string
	NewAtomUUID string
	Depth       int
}

// MutationOk is the payload published when every field in a mutation
// committed.
type MutationOk struct{}

// MutationFailed is the payload published on the first field failure in
// a mutation; already-written fields are not rolled back.
type MutationFailed struct {
	Field string
	Cause error
}

// TransformExecuted is the payload published after a transform attempt,
// successful or not.
type TransformExecuted struct {
	TransformID string
	Outcome     Outcome
	Err         error
}

// TransformDead is the payload published when a transform exhausts its
// retry budget and is dropped from the queue.
type TransformDead struct {
	TransformID string
	Attempts    int
	Cause       error
}

// Outcome tags a transform execution's result.
type Outcome string

const (
	OutcomeOk  Outcome = "ok"
	OutcomeErr Outcome = "err"
)
