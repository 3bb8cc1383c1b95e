package cache

import (
	"fmt"
	"sort"
	"strings"
)

// Key builds deterministic cache keys from structured parts.
type Key struct {
	// Namespace groups related keys (e.g. "assessment", "score").
	Namespace string

	// ID identifies the object within the namespace.
	ID string

	// Params are extra qualifiers, emitted in sorted order.
	Params map[string]string
}

// String generates a deterministic cache key string.
// Format: namespace:id:param1=val1:param2=val2
//
// Example:
//
//	assessment:42:user=7
func (k Key) String() string {
	parts := make([]string, 0, 2+len(k.Params))

	if ns := strings.Trim(k.Namespace, ":"); ns != "" {
		parts = append(parts, ns)
	}
	if k.ID != "" {
		parts = append(parts, k.ID)
	}

	if len(k.Params) > 0 {
		names := make([]string, 0, len(k.Params))
		for name := range k.Params {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s=%s", name, k.Params[name]))
		}
	}

	return strings.Join(parts, ":")
}

// Tag returns the namespace:id label for the key, suitable for
// InvalidateByTags.
func (k Key) Tag() string {
	if k.ID == "" {
		return k.Namespace
	}
	return k.Namespace + ":" + k.ID
}
