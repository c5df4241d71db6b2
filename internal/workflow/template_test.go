package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveWholeStringPreservesType(t *testing.T) {
	ctx := templateContext{payload: map[string]any{"count": 3}}
	got := resolveValue("{{payload.count}}", ctx)
	assert.Equal(t, 3, got)
}

func TestResolveEmbeddedStringifies(t *testing.T) {
	ctx := templateContext{payload: map[string]any{"id": 42}}
	got := resolveValue("item-{{payload.id}}", ctx)
	assert.Equal(t, "item-42", got)
}

func TestResolveStepResult(t *testing.T) {
	ctx := templateContext{steps: []stepResultView{
		{result: map[string]any{"name": "alice"}},
	}}
	got := resolveValue("{{steps[0].result.name}}", ctx)
	assert.Equal(t, "alice", got)
}

func TestResolveMissingPathReturnsLiteralToken(t *testing.T) {
	ctx := templateContext{payload: map[string]any{}}
	got := resolveValue("{{payload.missing}}", ctx)
	assert.Equal(t, "{{payload.missing}}", got)
}

func TestResolveNestedArguments(t *testing.T) {
	ctx := templateContext{payload: map[string]any{"id": "abc"}}
	args := map[string]any{
		"outer": map[string]any{"ref": "{{payload.id}}"},
		"list":  []any{"{{payload.id}}", "literal"},
	}
	resolved := resolveArguments(args, ctx)
	assert.Equal(t, "abc", resolved["outer"].(map[string]any)["ref"])
	assert.Equal(t, []any{"abc", "literal"}, resolved["list"])
}
