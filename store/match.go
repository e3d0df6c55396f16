package store

import "reflect"

// Match reports whether doc satisfies filter. Values are compared for deep
// equality; numbers compare by value regardless of their Go type, since
// backends decode numbers differently.
func Match(doc Document, filter Filter) bool {
	for k, want := range filter {
		got, ok := doc[k]
		if !ok || !equal(got, want) {
			return false
		}
	}

	return true
}

// Clone returns a deep copy of doc so callers can mutate the result without
// affecting stored state.
func Clone(doc Document) Document {
	if doc == nil {
		return nil
	}

	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}

	return out
}

// Merge returns doc with every field of key set on it.
func Merge(key Filter, doc Document) Document {
	out := Clone(doc)
	if out == nil {
		out = Document{}
	}
	for k, v := range key {
		out[k] = v
	}

	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return map[string]any(Clone(Document(t)))
	case Document:
		return Clone(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

func equal(a, b any) bool {
	if fa, ok := number(a); ok {
		if fb, ok := number(b); ok {
			return fa == fb
		}
	}
	return reflect.DeepEqual(a, b)
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
