// Package expression implements the ExpressionEngine capability spec §4.6
// delegates transform logic to: compiling and evaluating an opaque
// formula string against a map of named inputs, pure and time-bounded.
package expression

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	ferrors "github.com/foldb/folddb/pkg/errors"
)

// DefaultTimeout bounds a single evaluation when ctx carries no deadline.
const DefaultTimeout = 5 * time.Second

// Engine compiles and runs transform logic. A compiled program is cached
// by its source text so a transform fired repeatedly by different writes
// only pays compilation once.
type Engine struct {
	programs sync.Map // logic string -> *vm.Program
}

// New returns a ready-to-use Engine.
func New() *Engine {
	return &Engine{}
}

// Evaluate runs logic against inputs and returns its result. logic is
// pure expr-lang: it sees only the supplied inputs, never the store, so
// it cannot have side effects. ctx's deadline bounds the run (compilation
// on a cache miss is not bounded); a ctx without a deadline gets
// DefaultTimeout.
func (e *Engine) Evaluate(ctx context.Context, transformID, logic string, inputs map[string]any) (any, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	program, err := e.compile(transformID, logic, inputs)
	if err != nil {
		return nil, err
	}

	resultCh := make(chan evalResult, 1)
	go func() {
		result, err := expr.Run(program, inputs)
		resultCh <- evalResult{result, err}
	}()

	select {
	case r := <-resultCh:
		if r.err != nil {
			return nil, ferrors.EvaluationErr(transformID, r.err.Error())
		}
		return r.value, nil
	case <-ctx.Done():
		return nil, ferrors.EvaluationTimeoutErr(transformID)
	}
}

type evalResult struct {
	value any
	err   error
}

func (e *Engine) compile(transformID, logic string, inputs map[string]any) (*vm.Program, error) {
	if cached, ok := e.programs.Load(logic); ok {
		return cached.(*vm.Program), nil
	}

	env := make(map[string]any, len(inputs))
	for k, v := range inputs {
		env[k] = v
	}

	program, err := expr.Compile(logic, expr.Env(env))
	if err != nil {
		return nil, ferrors.EvaluationErr(transformID, fmt.Sprintf("compile: %s", err))
	}
	e.programs.Store(logic, program)
	return program, nil
}
