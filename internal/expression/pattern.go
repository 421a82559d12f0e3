package expression

import (
	"fmt"
	"sync"
	"time"

	"github.com/dlclark/regexp2"

	ferrors "github.com/foldb/folddb/pkg/errors"
)

// DefaultMatchTimeout bounds a single regexp2 match, guarding against
// catastrophic backtracking on an attacker-supplied pattern.
const DefaultMatchTimeout = 100 * time.Millisecond

// PatternMatcher compiles and caches regexp2 patterns used by
// KeyPattern range filters (spec §6.4).
type PatternMatcher struct {
	compiled sync.Map // pattern -> *regexp2.Regexp
}

// NewPatternMatcher returns a ready-to-use PatternMatcher.
func NewPatternMatcher() *PatternMatcher {
	return &PatternMatcher{}
}

// Match reports whether value satisfies pattern, a regexp2 expression.
func (m *PatternMatcher) Match(pattern, value string) (bool, error) {
	re, err := m.compile(pattern)
	if err != nil {
		return false, err
	}
	re.MatchTimeout = DefaultMatchTimeout

	matched, err := re.MatchString(value)
	if err != nil {
		return false, ferrors.InvalidRangeFilterErr(fmt.Sprintf("pattern %q: %s", pattern, err))
	}
	return matched, nil
}

func (m *PatternMatcher) compile(pattern string) (*regexp2.Regexp, error) {
	if cached, ok := m.compiled.Load(pattern); ok {
		return cached.(*regexp2.Regexp), nil
	}
	re, err := regexp2.Compile(pattern, regexp2.None)
	if err != nil {
		return nil, ferrors.InvalidRangeFilterErr(fmt.Sprintf("invalid pattern %q: %s", pattern, err))
	}
	m.compiled.Store(pattern, re)
	return re, nil
}
