package parse

import "fmt"

// Shape names used in diagnostics and metrics
const (
	ShapeStrings       = "list"
	ShapeStringMap     = "dict"
	ShapeStringListMap = "dict_of_lists"
)

// ShapeError reports a decoded value of the wrong shape
type ShapeError struct {
	Want string
	Got  any
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("expected %s, got %T", e.Want, e.Got)
}

// AsStrings converts a decoded sequence to strings
func AsStrings(v any) ([]string, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, &ShapeError{Want: ShapeStrings, Got: v}
	}
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = Stringify(item)
	}
	return out, nil
}

// AsStringMap converts a decoded mapping to string values
func AsStringMap(v any) (map[string]string, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, &ShapeError{Want: ShapeStringMap, Got: v}
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		out[k] = Stringify(val)
	}
	return out, nil
}

// AsStringListMap converts a decoded mapping of sequences. A scalar value
// becomes a one-element list and None becomes an empty list.
func AsStringListMap(v any) (map[string][]string, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, &ShapeError{Want: ShapeStringListMap, Got: v}
	}
	out := make(map[string][]string, len(m))
	for k, val := range m {
		switch x := val.(type) {
		case nil:
			out[k] = []string{}
		case []any:
			list, _ := AsStrings(x)
			out[k] = list
		default:
			out[k] = []string{Stringify(x)}
		}
	}
	return out, nil
}
