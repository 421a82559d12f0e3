package pipeline

import (
	"sort"
	"strings"

	"github.com/foldb/folddb/internal/atom"
	"github.com/foldb/folddb/internal/expression"
	ferrors "github.com/foldb/folddb/pkg/errors"
)

// selectRangeKeys applies filter to ref's entry keys and returns the
// matching keys in lexical order (spec §6.4 range filter vocabulary).
func selectRangeKeys(ref *atom.Ref, filter RangeFilter, patterns *expression.PatternMatcher) ([]string, error) {
	switch filter.Kind {
	case FilterKey:
		if _, ok := ref.Entries[filter.Key]; !ok {
			return nil, nil
		}
		return []string{filter.Key}, nil

	case FilterKeyPrefix:
		var keys []string
		for k := range ref.Entries {
			if strings.HasPrefix(k, filter.Key) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		return keys, nil

	case FilterKeyRange:
		if !(filter.Start < filter.End) {
			return nil, ferrors.InvalidRangeFilterErr("key_range requires start < end")
		}
		var keys []string
		for k := range ref.Entries {
			if k >= filter.Start && k < filter.End {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		return keys, nil

	case FilterKeys:
		var keys []string
		for _, k := range filter.Keys {
			if _, ok := ref.Entries[k]; ok {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		return keys, nil

	case FilterKeyGlob:
		pattern := globToRegex(filter.Glob)
		var keys []string
		for k := range ref.Entries {
			matched, err := patterns.Match(pattern, k)
			if err != nil {
				return nil, err
			}
			if matched {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		return keys, nil

	case FilterValue:
		// Value filtering requires reading each candidate atom, which the
		// caller (query.go) does after resolving keys; here we just hand
		// back every key and let the caller filter by fetched value.
		var keys []string
		for k := range ref.Entries {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return keys, nil

	default:
		return nil, ferrors.InvalidRangeFilterErr("unknown range filter kind")
	}
}

// globToRegex translates the spec's "*"/"?" glob syntax into a regexp2
// pattern anchored to the whole key.
func globToRegex(glob string) string {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range glob {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		case '.', '+', '(', ')', '[', ']', '{', '}', '^', '$', '|', '\\':
			b.WriteString("\\")
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteString("$")
	return b.String()
}
