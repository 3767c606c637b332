package dialog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequirement_SetGetRoundTrip(t *testing.T) {
	paths := []string{"summary", "tech_stack.runtime", "a.b.c.d"}
	for _, path := range paths {
		r := Requirement{}
		r.Set(path, "value")
		assert.Equal(t, "value", r.Get(path), path)
	}
}

func TestRequirement_GetMissingReturnsNilWithoutCreating(t *testing.T) {
	r := Requirement{"summary": "x"}
	assert.Nil(t, r.Get("tech_stack.runtime"))
	assert.Nil(t, r.Get("summary.nested"))
	assert.Nil(t, r.Get(""))
	assert.Len(t, r, 1)
}

func TestRequirement_SetReplacesScalarIntermediate(t *testing.T) {
	r := Requirement{"tech_stack": "python"}
	r.Set("tech_stack.runtime", "go")
	assert.Equal(t, map[string]any{"runtime": "go"}, r["tech_stack"])
}

func TestRequirement_GetReturnsCopy(t *testing.T) {
	r := Requirement{"features": []string{"todo"}}
	got := r.Get("features").([]string)
	got[0] = "changed"
	assert.Equal(t, []string{"todo"}, r["features"])
}

func TestRequirement_CloneIsDeep(t *testing.T) {
	r := Requirement{
		"tech_stack": map[string]any{"runtime": "python"},
		"features":   []any{"a", map[string]any{"k": "v"}},
	}
	c := r.Clone()
	c.Set("tech_stack.runtime", "go")
	c["features"].([]any)[1].(map[string]any)["k"] = "changed"

	assert.Equal(t, "python", r.Get("tech_stack.runtime"))
	assert.Equal(t, "v", r["features"].([]any)[1].(map[string]any)["k"])
}
