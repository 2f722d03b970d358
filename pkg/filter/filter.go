// Package filter evaluates metadata predicates with dot-path field access,
// walking nested property maps and matching a boolean predicate against
// them instead of flattening to a single map.
//
// A Predicate is a flat map from dot-path to expected value. All entries
// combine with logical AND; a nil Predicate matches everything.
package filter

import (
	"errors"
	"strings"
)

var errNotNumeric = errors.New("vecstream: segment is not a numeric array index")

// Predicate is a flat {path -> expected value} map evaluated against a
// metadata document. "a.b.c" walks nested maps; inside a map a segment is
// a key, inside an array it must be a numeric index.
type Predicate = map[string]any

// Match reports whether doc satisfies every entry of pred. A nil or empty
// pred always matches. Missing paths are treated as no-match, not an error.
func Match(pred Predicate, doc map[string]any) bool {
	if len(pred) == 0 {
		return true
	}
	for path, expected := range pred {
		actual, ok := lookup(doc, path)
		if !ok {
			return false
		}
		if !valueMatches(expected, actual) {
			return false
		}
	}
	return true
}

// lookup walks a dot-path through nested maps and arrays.
func lookup(doc map[string]any, path string) (any, bool) {
	segments := strings.Split(path, ".")

	var current any = doc
	for _, seg := range segments {
		switch node := current.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			current = v
		case []any:
			idx, err := parseIndex(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// valueMatches implements the equality/membership semantics: scalars by
// structural equality, arrays match if expected equals the whole array or
// expected is a scalar present in the array, maps compared recursively.
func valueMatches(expected, actual any) bool {
	if expectedMap, ok := expected.(map[string]any); ok {
		actualMap, ok := actual.(map[string]any)
		if !ok {
			return false
		}
		return mapsEqual(expectedMap, actualMap)
	}

	if actualArr, ok := actual.([]any); ok {
		if expectedArr, ok := expected.([]any); ok {
			return arraysEqual(expectedArr, actualArr)
		}
		// membership test: expected is a scalar present in the array
		for _, v := range actualArr {
			if scalarEqual(expected, v) {
				return true
			}
		}
		return false
	}

	return scalarEqual(expected, actual)
}

func mapsEqual(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !valueMatches(av, bv) {
			return false
		}
	}
	return true
}

func arraysEqual(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !valueMatches(a[i], b[i]) {
			return false
		}
	}
	return true
}

// scalarEqual compares scalars with numeric widening, since JSON decoding
// and direct construction of metadata may produce int, int64, or float64
// for the same logical number.
func scalarEqual(a, b any) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
	}
	return a == b
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func parseIndex(seg string) (int, error) {
	n := 0
	for _, r := range seg {
		if r < '0' || r > '9' {
			return 0, errNotNumeric
		}
		n = n*10 + int(r-'0')
	}
	if seg == "" {
		return 0, errNotNumeric
	}
	return n, nil
}
