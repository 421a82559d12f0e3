package expression_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldb/folddb/internal/expression"
	"github.com/foldb/folddb/pkg/errors"
)

func TestEvaluateArithmetic(t *testing.T) {
	e := expression.New()
	result, err := e.Evaluate(context.Background(), "t1", "a + b", map[string]any{"a": 2, "b": 3})
	require.NoError(t, err)
	assert.Equal(t, 5, result)
}

func TestEvaluateReusesCompiledProgram(t *testing.T) {
	e := expression.New()
	_, err := e.Evaluate(context.Background(), "t1", "a * 2", map[string]any{"a": 4})
	require.NoError(t, err)

	result, err := e.Evaluate(context.Background(), "t1", "a * 2", map[string]any{"a": 10})
	require.NoError(t, err)
	assert.Equal(t, 20, result)
}

func TestEvaluateCompileErrorWraps(t *testing.T) {
	e := expression.New()
	_, err := e.Evaluate(context.Background(), "t1", "a +++ b", map[string]any{"a": 1, "b": 2})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrEvaluation)
}

func TestEvaluateTimeout(t *testing.T) {
	e := expression.New()
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	_, err := e.Evaluate(ctx, "t1", "a + b", map[string]any{"a": 1, "b": 2})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrEvaluationTimeout)
}

func TestPatternMatcherMatchesAndCaches(t *testing.T) {
	m := expression.NewPatternMatcher()

	ok, err := m.Match("^user:[0-9]+$", "user:42")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.Match("^user:[0-9]+$", "post:42")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPatternMatcherInvalidPattern(t *testing.T) {
	m := expression.NewPatternMatcher()
	_, err := m.Match("(unterminated", "anything")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidRangeFilter)
}
