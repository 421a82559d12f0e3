// Package errors provides the core error taxonomy shared by every FoldDB
// component: a single structured CoreError type plus one constructor per
// category named in the spec's error taxonomy.
package errors

import (
	"errors"
	"fmt"
)

// ─── ERROR CATEGORIES ─────────────────────────────────────────────

type Category string

const (
	CategoryStore      Category = "store"
	CategorySchema     Category = "schema"
	CategoryPermission Category = "permission"
	CategoryRange      Category = "range"
	CategoryIndex      Category = "index"
	CategoryTransform  Category = "transform"
	CategoryBus        Category = "bus"
	CategoryNotFound   Category = "notfound"
)

// ─── SEVERITY ─────────────────────────────────────────────

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// ─── SENTINELS ─────────────────────────────────────────────
//
// One sentinel per spec §7 error kind. CoreError.Unwrap exposes these so
// callers can use errors.Is/errors.As across package boundaries without
// depending on this package's concrete type.

var (
	ErrStore                = errors.New("store error")
	ErrSchemaValidation     = errors.New("schema validation error")
	ErrSchemaLifecycle      = errors.New("schema lifecycle error")
	ErrSchemaNotFound       = errors.New("schema not found")
	ErrSchemaRangeUniform   = errors.New("schema range uniformity error")
	ErrSchemaNotAvailable   = errors.New("schema not available")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrInvalidRangeKey      = errors.New("invalid range key")
	ErrInvalidRangeFilter   = errors.New("invalid range filter")
	ErrRangeFilterRequired  = errors.New("range filter required")
	ErrIndexOutOfBounds     = errors.New("index out of bounds")
	ErrMissingInput         = errors.New("missing transform input")
	ErrEvaluation           = errors.New("evaluation error")
	ErrEvaluationTimeout    = errors.New("evaluation timeout")
	ErrTimeout              = errors.New("timeout")
	ErrCascadeDepthExceeded = errors.New("cascade depth exceeded")
	ErrNotFound             = errors.New("not found")
)

// ─── CORE ERROR TYPE ─────────────────────────────────────────────

// CoreError is the structured error carried across every FoldDB component
// boundary. It mirrors the teacher's BusinessError shape, minus the
// HTTP-status and tenant fields the core has no use for.
type CoreError struct {
	Code     string
	Message  string
	Category Category
	Severity Severity
	Details  map[string]any
	Err      error
}

func (e *CoreError) Error() string {
	msg := fmt.Sprintf("[%s] <%s> %s", e.Category, e.Code, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CoreError) Unwrap() error { return e.Err }

// WithDetail attaches a key/value pair of diagnostic context.
func (e *CoreError) WithDetail(key string, value any) *CoreError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func newCoreError(sentinel error, category Category, code, message string) *CoreError {
	return &CoreError{
		Code:     code,
		Message:  message,
		Category: category,
		Severity: SeverityError,
		Err:      sentinel,
	}
}

// ─── CONSTRUCTORS — one per spec §7 kind ─────────────────────────────────

// StoreErr wraps an underlying KV I/O failure with the operation and tree
// it happened against.
func StoreErr(op, tree string, cause error) *CoreError {
	e := newCoreError(ErrStore, CategoryStore, "STORE_ERROR",
		fmt.Sprintf("store op %q on tree %q failed", op, tree))
	e.WithDetail("op", op).WithDetail("tree", tree)
	e.Err = joinCause(ErrStore, cause)
	return e
}

func SchemaValidationErr(name, reason string) *CoreError {
	return newCoreError(ErrSchemaValidation, CategorySchema, "SCHEMA_VALIDATION",
		fmt.Sprintf("schema %q invalid: %s", name, reason)).WithDetail("schema", name)
}

func SchemaLifecycleErr(name, from, to string) *CoreError {
	return newCoreError(ErrSchemaLifecycle, CategorySchema, "SCHEMA_LIFECYCLE",
		fmt.Sprintf("schema %q cannot transition %s -> %s", name, from, to)).
		WithDetail("schema", name).WithDetail("from", from).WithDetail("to", to)
}

func SchemaNotFoundErr(name string) *CoreError {
	return newCoreError(ErrSchemaNotFound, CategorySchema, "SCHEMA_NOT_FOUND",
		fmt.Sprintf("schema %q not found", name)).WithDetail("schema", name)
}

func SchemaNotAvailableErr(name string) *CoreError {
	return newCoreError(ErrSchemaNotAvailable, CategorySchema, "SCHEMA_NOT_AVAILABLE",
		fmt.Sprintf("schema %q is not approved", name)).WithDetail("schema", name)
}

func RangeUniformityErr(schema, field string) *CoreError {
	return newCoreError(ErrSchemaRangeUniform, CategorySchema, "RANGE_UNIFORMITY",
		fmt.Sprintf("schema %q field %q violates range-schema uniformity", schema, field)).
		WithDetail("schema", schema).WithDetail("field", field)
}

func PermissionDeniedErr(field, reason string) *CoreError {
	return newCoreError(ErrPermissionDenied, CategoryPermission, "PERMISSION_DENIED",
		fmt.Sprintf("field %q: %s", field, reason)).WithDetail("field", field)
}

func InvalidRangeKeyErr(field, expected, actual string) *CoreError {
	return newCoreError(ErrInvalidRangeKey, CategoryRange, "INVALID_RANGE_KEY",
		fmt.Sprintf("field %q expected partition key %q, got %q", field, expected, actual)).
		WithDetail("field", field).WithDetail("expected", expected).WithDetail("actual", actual)
}

func InvalidRangeFilterErr(reason string) *CoreError {
	return newCoreError(ErrInvalidRangeFilter, CategoryRange, "INVALID_RANGE_FILTER", reason)
}

func RangeFilterRequiredErr(schema string) *CoreError {
	return newCoreError(ErrRangeFilterRequired, CategoryRange, "RANGE_FILTER_REQUIRED",
		fmt.Sprintf("schema %q requires a range filter keyed on its partition key", schema)).
		WithDetail("schema", schema)
}

func IndexOutOfBoundsErr(ref string, index, length int) *CoreError {
	return newCoreError(ErrIndexOutOfBounds, CategoryIndex, "INDEX_OUT_OF_BOUNDS",
		fmt.Sprintf("ref %q index %d out of bounds (len=%d)", ref, index, length)).
		WithDetail("ref", ref).WithDetail("index", index).WithDetail("len", length)
}

func MissingInputErr(transformID, input string) *CoreError {
	return newCoreError(ErrMissingInput, CategoryTransform, "MISSING_INPUT",
		fmt.Sprintf("transform %q missing input %q", transformID, input)).
		WithDetail("transform", transformID).WithDetail("input", input)
}

func EvaluationErr(transformID, message string) *CoreError {
	return newCoreError(ErrEvaluation, CategoryTransform, "EVALUATION_ERROR", message).
		WithDetail("transform", transformID)
}

func EvaluationTimeoutErr(transformID string) *CoreError {
	return newCoreError(ErrEvaluationTimeout, CategoryTransform, "EVALUATION_TIMEOUT",
		fmt.Sprintf("transform %q evaluation exceeded its budget", transformID)).
		WithDetail("transform", transformID)
}

func TimeoutErr(correlationID string) *CoreError {
	return newCoreError(ErrTimeout, CategoryBus, "TIMEOUT",
		fmt.Sprintf("request %q was not answered within its deadline", correlationID)).
		WithDetail("correlation_id", correlationID)
}

func CascadeDepthExceededErr(correlationID string, depth int) *CoreError {
	return newCoreError(ErrCascadeDepthExceeded, CategoryTransform, "CASCADE_DEPTH_EXCEEDED",
		fmt.Sprintf("correlation %q exceeded cascade depth %d", correlationID, depth)).
		WithDetail("correlation_id", correlationID).WithDetail("depth", depth)
}

func NotFoundErr(kind, id string) *CoreError {
	return newCoreError(ErrNotFound, CategoryNotFound, "NOT_FOUND",
		fmt.Sprintf("%s %q not found", kind, id)).WithDetail("kind", kind).WithDetail("id", id)
}

// joinCause keeps the sentinel first in the chain so errors.Is(err,
// ErrStore) still matches after a cause is attached.
func joinCause(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %v", sentinel, cause)
}
