// SPDX-License-Identifier: AGPL-3.0-or-later

// Package retort compiles free-form nested input documents into IR objects
// via path selectors, variable bindings, and templates (spec.md §4.2).
package retort

import (
	"strconv"
	"strings"
)

// segment is one concrete step of a resolved DOM path: either a map key or
// an array index.
type segment struct {
	key   string
	index int
	isIdx bool
}

// position is a single DOM location matched by a select path, carrying both
// the concrete path walked (for caret-based variable resolution) and the
// value found there.
type position struct {
	segments []segment
	value    any
}

func tokenize(path string) []string {
	trimmed := strings.TrimPrefix(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// selectPositions enumerates every DOM position matching an absolute select
// path, expanding "*" wildcards over both map keys (sorted, for determinism)
// and array indices.
func selectPositions(dom any, path string) []position {
	return enumerate(dom, tokenize(path), nil)
}

func enumerate(value any, tokens []string, prefix []segment) []position {
	if len(tokens) == 0 {
		return []position{{segments: append([]segment{}, prefix...), value: value}}
	}

	token, rest := tokens[0], tokens[1:]

	if token == "*" {
		switch v := value.(type) {
		case map[string]any:
			keys := make([]string, 0, len(v))
			for k := range v {
				keys = append(keys, k)
			}
			sortStrings(keys)
			var out []position
			for _, k := range keys {
				out = append(out, enumerate(v[k], rest, withSeg(prefix, segment{key: k}))...)
			}
			return out
		case []any:
			var out []position
			for i, item := range v {
				out = append(out, enumerate(item, rest, withSeg(prefix, segment{index: i, isIdx: true}))...)
			}
			return out
		default:
			return nil
		}
	}

	if idx, err := strconv.Atoi(token); err == nil {
		arr, ok := value.([]any)
		if !ok || idx < 0 || idx >= len(arr) {
			return nil
		}
		return enumerate(arr[idx], rest, withSeg(prefix, segment{index: idx, isIdx: true}))
	}

	m, ok := value.(map[string]any)
	if !ok {
		return nil
	}
	child, exists := m[token]
	if !exists {
		return nil
	}
	return enumerate(child, rest, withSeg(prefix, segment{key: token}))
}

func withSeg(prefix []segment, seg segment) []segment {
	out := make([]segment, len(prefix)+1)
	copy(out, prefix)
	out[len(prefix)] = seg
	return out
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// navigateConcrete walks dom following a fully-resolved segment path.
func navigateConcrete(dom any, segs []segment) (any, bool) {
	cur := dom
	for _, s := range segs {
		if s.isIdx {
			arr, ok := cur.([]any)
			if !ok || s.index < 0 || s.index >= len(arr) {
				return nil, false
			}
			cur = arr[s.index]
			continue
		}
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, exists := m[s.key]
		if !exists {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// navigateForward walks a value by plain literal/integer tokens (no
// wildcards), used for the "./"-and-"/" suffix of a variable's from-path
// once the caret-popped ancestor position has been located.
func navigateForward(value any, tokens []string) (any, bool) {
	cur := value
	for _, t := range tokens {
		if idx, err := strconv.Atoi(t); err == nil {
			arr, ok := cur.([]any)
			if !ok || idx < 0 || idx >= len(arr) {
				return nil, false
			}
			cur = arr[idx]
			continue
		}
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, exists := m[t]
		if !exists {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// popToObjectOrScalar pops the last object-or-scalar segment of path: any
// trailing array-index segments are skipped first (they are intervening
// array traversal, not a conceptual parent level), then one further segment
// is removed (spec.md §4.2 "Variables").
func popToObjectOrScalar(path []segment) []segment {
	i := len(path)
	for i > 0 && path[i-1].isIdx {
		i--
	}
	if i > 0 {
		i--
	}
	return path[:i]
}

// resolveVar evaluates a variable's "from" path relative to a selected
// position: each leading "^" pops one ancestor object-or-scalar level, and
// the remainder (after an optional "./" or "/" prefix) is a literal forward
// path from there.
func resolveVar(dom any, pos []segment, from string) (any, bool) {
	ancestor := pos
	rest := from
	for strings.HasPrefix(rest, "^") {
		rest = rest[1:]
		ancestor = popToObjectOrScalar(ancestor)
	}
	rest = strings.TrimPrefix(rest, "./")
	rest = strings.TrimPrefix(rest, "/")

	base, ok := navigateConcrete(dom, ancestor)
	if !ok {
		return nil, false
	}
	tokens := tokenize("/" + rest)
	if len(tokens) == 0 {
		return base, true
	}
	return navigateForward(base, tokens)
}
