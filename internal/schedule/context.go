package schedule

import (
	"errors"
	"fmt"
)

// contextControls extracts context["controls"], which must be a list of
// strings when present. Decoded JSON arrives as []any.
func contextControls(ctx map[string]any) ([]string, error) {
	raw, ok := ctx["controls"]
	if !ok || raw == nil {
		return []string{}, nil
	}
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("item %d is not a string", i)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, errors.New("must be a list of strings")
	}
}
