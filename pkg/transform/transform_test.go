package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApply_Map(t *testing.T) {
	t.Parallel()

	value := map[string]any{"status": "A"}
	rules := []Rule{{
		Path:      "status",
		Transform: KindMap,
		Map:       map[string]any{"A": "active", "I": "inactive"},
	}}

	result := Apply(value, rules)

	assert.Equal(t, "active", result.(map[string]any)["status"])
}

func TestApply_MapMissingKeyLeavesUnchanged(t *testing.T) {
	t.Parallel()

	value := map[string]any{"status": "Z"}
	rules := []Rule{{
		Path:      "status",
		Transform: KindMap,
		Map:       map[string]any{"A": "active"},
	}}

	result := Apply(value, rules)

	assert.Equal(t, "Z", result.(map[string]any)["status"])
}

func TestApply_Template(t *testing.T) {
	t.Parallel()

	value := map[string]any{
		"user": map[string]any{"first": "Ada", "last": "Lovelace"},
	}
	rules := []Rule{{
		Path:      "user",
		Transform: KindTemplate,
		Template:  "{value.first} {value.last}",
	}}

	result := Apply(value, rules)

	assert.Equal(t, "Ada Lovelace", result.(map[string]any)["user"])
}

func TestApply_DateFormat(t *testing.T) {
	t.Parallel()

	value := map[string]any{"created": "2024-03-05T10:30:00Z"}
	rules := []Rule{{
		Path:      "created",
		Transform: KindDateFormat,
		Format:    "YYYY/MM/DD HH:mm:ss",
	}}

	result := Apply(value, rules)

	assert.Equal(t, "2024/03/05 10:30:00", result.(map[string]any)["created"])
}

func TestApply_Remove(t *testing.T) {
	t.Parallel()

	value := map[string]any{"secret": "shh", "keep": "me"}
	rules := []Rule{{Path: "secret", Transform: KindRemove}}

	result := Apply(value, rules)

	out := result.(map[string]any)
	_, present := out["secret"]
	assert.False(t, present)
	assert.Equal(t, "me", out["keep"])
}

func TestApply_MissingPathSkipped(t *testing.T) {
	t.Parallel()

	value := map[string]any{"keep": "me"}
	rules := []Rule{{Path: "nope.nested", Transform: KindRemove}}

	result := Apply(value, rules)

	assert.Equal(t, value, result)
}

func TestApply_EachElementOfArray(t *testing.T) {
	t.Parallel()

	value := map[string]any{
		"items": []any{
			map[string]any{"status": "A"},
			map[string]any{"status": "I"},
		},
	}
	rules := []Rule{{
		Path:      "items[].status",
		Transform: KindMap,
		Map:       map[string]any{"A": "active", "I": "inactive"},
	}}

	result := Apply(value, rules)

	items := result.(map[string]any)["items"].([]any)
	assert.Equal(t, "active", items[0].(map[string]any)["status"])
	assert.Equal(t, "inactive", items[1].(map[string]any)["status"])
}

func TestApply_OrderedRules(t *testing.T) {
	t.Parallel()

	value := map[string]any{"status": "A", "secret": "x"}
	rules := []Rule{
		{Path: "status", Transform: KindMap, Map: map[string]any{"A": "active"}},
		{Path: "secret", Transform: KindRemove},
	}

	result := Apply(value, rules).(map[string]any)

	assert.Equal(t, "active", result["status"])
	_, present := result["secret"]
	assert.False(t, present)
}

func TestApply_IsPure(t *testing.T) {
	t.Parallel()

	value := map[string]any{"status": "A"}
	rules := []Rule{{Path: "status", Transform: KindMap, Map: map[string]any{"A": "active"}}}

	_ = Apply(value, rules)

	assert.Equal(t, "A", value["status"], "original value must not be mutated")
}
