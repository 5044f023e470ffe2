package enums

import (
	"fmt"
	"slices"
)

func parseOneOf[T ~string](kind string, allowed []T, raw string) (T, error) {
	if v := T(raw); slices.Contains(allowed, v) {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, raw)
}
