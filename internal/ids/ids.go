// Package ids generates the identifiers FoldDB stamps on atoms, refs, and
// bus events: random UUIDs via google/uuid, the same library the teacher
// uses for tenant and user identity.
package ids

import "github.com/google/uuid"

// NewAtomUUID returns a fresh identifier for an immutable atom.
func NewAtomUUID() string {
	return uuid.New().String()
}

// NewRefUUID returns a fresh identifier for a mutable atom ref.
func NewRefUUID() string {
	return uuid.New().String()
}

// NewCorrelationID returns a fresh identifier that ties a bus request to
// its response and, transitively, to every transform it cascades into.
func NewCorrelationID() string {
	return uuid.New().String()
}

// Valid reports whether s parses as a UUID, the shape every FoldDB
// identifier takes.
func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
