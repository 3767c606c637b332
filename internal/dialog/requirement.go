package dialog

import "strings"

// Requirement is the working requirement of a dialog: a JSON-like tree
// addressed with dotted paths such as "tech_stack.runtime".
type Requirement map[string]any

// Get walks path and returns the value found there, or nil when any segment
// is missing or not a map. Get never creates intermediate nodes. The returned
// value is a deep copy.
func (r Requirement) Get(path string) any {
	if r == nil || path == "" {
		return nil
	}
	segments := strings.Split(path, ".")
	var node any = map[string]any(r)
	for _, seg := range segments {
		m, ok := asMap(node)
		if !ok {
			return nil
		}
		node, ok = m[seg]
		if !ok {
			return nil
		}
	}
	return deepCopy(node)
}

// Set writes value at path, creating intermediate maps as needed. An
// intermediate segment that holds a non-map value is replaced by a new map.
func (r Requirement) Set(path string, value any) {
	if r == nil || path == "" {
		return
	}
	segments := strings.Split(path, ".")
	node := map[string]any(r)
	for _, seg := range segments[:len(segments)-1] {
		next, ok := asMap(node[seg])
		if !ok {
			next = map[string]any{}
			node[seg] = next
		}
		node = next
	}
	node[segments[len(segments)-1]] = deepCopy(value)
}

// Clone returns a deep copy of the requirement.
func (r Requirement) Clone() Requirement {
	if r == nil {
		return Requirement{}
	}
	return Requirement(deepCopyMap(r))
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Requirement:
		return map[string]any(m), true
	default:
		return nil, false
	}
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopy(v)
	}
	return out
}

// deepCopy copies the container shapes that appear in requirements and answers.
// Scalars are returned as-is.
func deepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case Requirement:
		return deepCopyMap(val)
	case map[string]string:
		out := make(map[string]string, len(val))
		for k, s := range val {
			out[k] = s
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopy(item)
		}
		return out
	case []string:
		out := make([]string, len(val))
		copy(out, val)
		return out
	case []map[string]any:
		out := make([]map[string]any, len(val))
		for i, item := range val {
			out[i] = deepCopyMap(item)
		}
		return out
	default:
		return v
	}
}
