package runstore

import (
	"fmt"
	"sort"
	"strings"
)

// RunKey identifies an import source. Two runs with equal keys never
// overlap, and the last report is stored per key.
type RunKey struct {
	// Kind is the import kind, e.g. "media" or "products".
	Kind string

	// Source identifies what is imported, e.g. the drive root folder ID.
	Source string

	// Params distinguishes variants of the same source.
	Params map[string]string
}

// String generates a deterministic key string.
// Format: kind:source:param1=val1:param2=val2
//
// Example:
//
//	media:1AbCdEf:policy=snapshot
func (k RunKey) String() string {
	parts := []string{k.Kind}

	if source := strings.TrimSpace(k.Source); source != "" {
		parts = append(parts, source)
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

func (k RunKey) lockKey() string {
	return "pim:lock:" + k.String()
}

func (k RunKey) reportKey() string {
	return "pim:report:" + k.String()
}
