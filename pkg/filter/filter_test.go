package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatch_NilPredicateMatchesEverything(t *testing.T) {
	assert.True(t, Match(nil, map[string]any{"a": 1}))
	assert.True(t, Match(Predicate{}, nil))
}

func TestMatch_FlatEquality(t *testing.T) {
	doc := map[string]any{"cat": "ai", "year": 2023}

	assert.True(t, Match(Predicate{"cat": "ai"}, doc))
	assert.True(t, Match(Predicate{"cat": "ai", "year": 2023}, doc))
	assert.False(t, Match(Predicate{"cat": "bio"}, doc))
	assert.False(t, Match(Predicate{"missing": "x"}, doc))
}

func TestMatch_DotPath(t *testing.T) {
	doc := map[string]any{
		"a": map[string]any{
			"b": map[string]any{
				"c": 42,
			},
		},
	}

	assert.True(t, Match(Predicate{"a.b.c": 42}, doc))
	assert.False(t, Match(Predicate{"a.b.c": 43}, doc))
	assert.False(t, Match(Predicate{"a.b.x": 42}, doc))
	assert.False(t, Match(Predicate{"a.b.c.d": 42}, doc))
}

func TestMatch_ArrayIndexSegment(t *testing.T) {
	doc := map[string]any{
		"tags": []any{"red", "green", "blue"},
	}
	assert.True(t, Match(Predicate{"tags.1": "green"}, doc))
	assert.False(t, Match(Predicate{"tags.9": "green"}, doc))
}

func TestMatch_ArrayMembership(t *testing.T) {
	doc := map[string]any{"tags": []any{"red", "green", "blue"}}

	assert.True(t, Match(Predicate{"tags": "green"}, doc))
	assert.False(t, Match(Predicate{"tags": "purple"}, doc))
	assert.True(t, Match(Predicate{"tags": []any{"red", "green", "blue"}}, doc))
}

func TestMatch_NestedMapEquality(t *testing.T) {
	doc := map[string]any{"meta": map[string]any{"x": 1, "y": 2}}

	assert.True(t, Match(Predicate{"meta": map[string]any{"x": 1, "y": 2}}, doc))
	assert.False(t, Match(Predicate{"meta": map[string]any{"x": 1}}, doc))
}

func TestMatch_NumericWidening(t *testing.T) {
	doc := map[string]any{"year": float64(2023)}
	assert.True(t, Match(Predicate{"year": 2023}, doc))
}

func TestMatch_MultipleEntriesAreAND(t *testing.T) {
	doc := map[string]any{"cat": "ai", "year": 2023}

	assert.True(t, Match(Predicate{"cat": "ai", "year": 2023}, doc))
	assert.False(t, Match(Predicate{"cat": "ai", "year": 2022}, doc))
}
