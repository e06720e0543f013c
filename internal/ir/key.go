// SPDX-License-Identifier: AGPL-3.0-or-later

package ir

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Key is an ordered mapping from field name to JSON value identifying an
// object within its type. Canonical() renders it deterministically for
// logging, natural-key matching, and stable sort.
type Key map[string]any

// Canonical renders the key as "field=value/field=value" with keys sorted
// lexicographically.
func (k Key) Canonical() string {
	if len(k) == 0 {
		return ""
	}
	names := make([]string, 0, len(k))
	for name := range k {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%s", name, canonicalValue(k[name])))
	}
	return strings.Join(parts, "/")
}

func canonicalValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return ""
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	}
}

// ParseKeyString parses the canonical "field=value/field=value" form back
// into a Key. All values are treated as strings (the canonical form loses
// type information for non-string fields by design; callers that need typed
// values should prefer the mapping form in the file formats).
func ParseKeyString(s string) Key {
	k := Key{}
	if s == "" {
		return k
	}
	for _, part := range strings.Split(s, "/") {
		name, value, found := strings.Cut(part, "=")
		if !found {
			continue
		}
		k[name] = value
	}
	return k
}

// Equal compares two keys by canonical form.
func (k Key) Equal(o Key) bool {
	return k.Canonical() == o.Canonical()
}
