// Package policy implements the PolicyEvaluator capability spec §6.1
// describes as an external collaborator: the core calls it with an
// opaque policy handle and gets back an allow/deny decision, never
// interpreting the handle itself. DefaultEvaluator is the core's
// built-in implementation; production deployments can swap in one
// backed by the same RBAC/ABAC systems the teacher's Security/Workflow
// config describes (pkg/schema/enterprise.go), outside the core.
package policy

import "context"

// Op is the access mode being checked.
type Op string

const (
	OpRead  Op = "read"
	OpWrite Op = "write"
)

// Evaluator is the PolicyEvaluator capability (spec §6.1). policyHandle is
// opaque to the core: it is whatever string a FieldDef's
// PermissionPolicy/PaymentPolicy names, interpreted only by the
// Evaluator. A non-empty reason denies; an empty reason allows.
type Evaluator interface {
	Evaluate(ctx context.Context, writerID string, trustDistance int, policyHandle string, op Op) (reason string, err error)
}

// DefaultEvaluator allows everything. It is the core's zero-configuration
// policy: a deployment that needs real access control wires its own
// Evaluator in at the pipeline construction site.
type DefaultEvaluator struct{}

func (DefaultEvaluator) Evaluate(context.Context, string, int, string, Op) (string, error) {
	return "", nil
}

// DenyFunc is a predicate-based Evaluator for tests and simple
// deployments that only need a yes/no rule, not a full policy language.
type DenyFunc func(writerID string, trustDistance int, policyHandle string, op Op) (deny bool, reason string)

func (f DenyFunc) Evaluate(_ context.Context, writerID string, trustDistance int, handle string, op Op) (string, error) {
	if deny, reason := f(writerID, trustDistance, handle, op); deny {
		return reason, nil
	}
	return "", nil
}
