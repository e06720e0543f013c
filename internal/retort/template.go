// SPDX-License-Identifier: AGPL-3.0-or-later

package retort

import (
	"fmt"
	"regexp"

	"crucible/internal/ir"
)

var (
	wholeVarPattern = regexp.MustCompile(`^\$\{([A-Za-z0-9_]+)\}$`)
	embedVarPattern = regexp.MustCompile(`\$\{([A-Za-z0-9_]+)\}`)
)

// TemplateVars returns the names referenced by "${name}" placeholders in s,
// in order of appearance, for callers that only need to check references
// (e.g. linting) without rendering.
func TemplateVars(s string) []string {
	matches := embedVarPattern.FindAllStringSubmatch(s, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}

// renderString renders a single template string against bound vars.
//
// A string that is entirely "${name}" is a whole-value substitution: the
// referenced var's value is returned with its original JSON type. Any other
// string is flattened: every "${name}" occurrence is replaced by the var's
// string value, and rendering fails if a referenced var is present but not
// string-valued.
//
// A referenced var that is simply absent (never bound, because an optional
// var's lookup failed) yields ok=false rather than an error — callers elide
// the structure the string belongs to, mirroring uid's optional-reference
// semantics.
func renderString(s string, vars map[string]any) (any, bool, error) {
	if m := wholeVarPattern.FindStringSubmatch(s); m != nil {
		val, exists := vars[m[1]]
		if !exists {
			return nil, false, nil
		}
		return val, true, nil
	}

	missing := false
	var renderErr error
	out := embedVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if renderErr != nil || missing {
			return ""
		}
		name := embedVarPattern.FindStringSubmatch(match)[1]
		val, exists := vars[name]
		if !exists {
			missing = true
			return ""
		}
		str, ok := val.(string)
		if !ok {
			renderErr = fmt.Errorf("variable %q is not string-valued (%T) and cannot be flattened into a string template", name, val)
			return ""
		}
		return str
	})
	if renderErr != nil {
		return nil, false, renderErr
	}
	if missing {
		return nil, false, nil
	}
	return out, true, nil
}

// renderTemplate recursively renders a template tree (map/slice/string
// structures with ${name} placeholders). Map entries whose value elides
// (renders with ok=false) are dropped from the output map; slice entries
// that elide are dropped from the output slice. A map node of the special
// shape {"uid?": <uid node>} renders via resolveUid, eliding the
// containing entry instead of failing when a referenced var is missing.
func renderTemplate(node any, vars map[string]any, fallbackType ir.TypeName, fallbackKey string) (any, bool, error) {
	switch v := node.(type) {
	case string:
		return renderString(v, vars)
	case map[string]any:
		if len(v) == 1 {
			if uidNode, ok := v["uid?"]; ok {
				id, ok, err := resolveUid(uidNode, vars, fallbackType, fallbackKey, true)
				if err != nil || !ok {
					return nil, ok, err
				}
				return id.String(), true, nil
			}
		}
		out := map[string]any{}
		for k, child := range v {
			rendered, ok, err := renderTemplate(child, vars, fallbackType, fallbackKey)
			if err != nil {
				return nil, false, fmt.Errorf("%s: %w", k, err)
			}
			if !ok {
				continue
			}
			out[k] = rendered
		}
		return out, true, nil
	case []any:
		out := make([]any, 0, len(v))
		for i, child := range v {
			rendered, ok, err := renderTemplate(child, vars, fallbackType, fallbackKey)
			if err != nil {
				return nil, false, fmt.Errorf("item %d: %w", i, err)
			}
			if ok {
				out = append(out, rendered)
			}
		}
		return out, true, nil
	default:
		return v, true, nil
	}
}

// renderKey evaluates an emit.key node against bound vars. A string node is
// the canonical "field=value/field=value" template (spec.md §6.2); a
// map[string]any node is the field→template mapping form, each value
// rendered independently and assembled directly into an ir.Key (no
// canonical-string round trip, so field values keep their rendered type).
// A missing referenced var anywhere in the key elides the whole key
// (ok=false), matching the string form's elision behaviour.
func renderKey(node any, vars map[string]any) (ir.Key, bool, error) {
	switch v := node.(type) {
	case string:
		rendered, ok, err := renderString(v, vars)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, nil
		}
		str, isStr := rendered.(string)
		if !isStr {
			return nil, false, fmt.Errorf("key rendered a non-string value (%T)", rendered)
		}
		return ir.ParseKeyString(str), true, nil

	case map[string]any:
		key := ir.Key{}
		for field, tmpl := range v {
			tmplStr, isStr := tmpl.(string)
			if !isStr {
				return nil, false, fmt.Errorf("key.%s: expected a string template, got %T", field, tmpl)
			}
			rendered, ok, err := renderString(tmplStr, vars)
			if err != nil {
				return nil, false, fmt.Errorf("key.%s: %w", field, err)
			}
			if !ok {
				return nil, false, nil
			}
			key[field] = rendered
		}
		return key, true, nil

	default:
		return nil, false, fmt.Errorf("key: unsupported node type %T", node)
	}
}

// resolveUid evaluates a uid node: {v5: {type, stable}} (both templated), a
// plain template that must render to a syntactically valid UUID, or nil
// meaning "absent" (caller supplies the (type, key) fallback). When
// optional is true, a missing referenced var yields ok=false instead of an
// error.
func resolveUid(node any, vars map[string]any, fallbackType ir.TypeName, fallbackKey string, optional bool) (ir.Uid, bool, error) {
	if node == nil {
		return ir.UUIDv5(string(fallbackType), fallbackKey), true, nil
	}

	switch v := node.(type) {
	case map[string]any:
		v5, ok := v["v5"].(map[string]any)
		if !ok {
			return ir.Uid{}, false, fmt.Errorf("uid: expected a v5 mapping with type/stable")
		}
		typeTemplate, _ := v5["type"].(string)
		stableTemplate, _ := v5["stable"].(string)

		typeRendered, typeOK, err := renderString(typeTemplate, vars)
		if err != nil {
			return ir.Uid{}, false, err
		}
		stableRendered, stableOK, err := renderString(stableTemplate, vars)
		if err != nil {
			return ir.Uid{}, false, err
		}
		if !typeOK || !stableOK {
			if optional {
				return ir.Uid{}, false, nil
			}
			return ir.Uid{}, false, fmt.Errorf("uid: missing required template variable in v5.type or v5.stable")
		}
		typeStr, _ := typeRendered.(string)
		stableStr, _ := stableRendered.(string)
		return ir.UUIDv5(typeStr, stableStr), true, nil

	case string:
		rendered, ok, err := renderString(v, vars)
		if err != nil {
			return ir.Uid{}, false, err
		}
		if !ok {
			if optional {
				return ir.Uid{}, false, nil
			}
			return ir.Uid{}, false, fmt.Errorf("uid: missing required template variable")
		}
		str, isStr := rendered.(string)
		if !isStr {
			return ir.Uid{}, false, fmt.Errorf("uid template rendered a non-string value (%T)", rendered)
		}
		id, err := ir.ParseUid(str)
		if err != nil {
			return ir.Uid{}, false, fmt.Errorf("uid template %q did not render a valid UUID: %w", v, err)
		}
		return id, true, nil

	default:
		return ir.Uid{}, false, fmt.Errorf("uid: unsupported node type %T", node)
	}
}
