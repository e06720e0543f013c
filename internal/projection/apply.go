// SPDX-License-Identifier: AGPL-3.0-or-later

package projection

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"crucible/internal/ir"
)

// Apply runs spec against every object in inv, producing a ProjectedInventory.
func Apply(inv ir.Inventory, spec Spec) (ir.ProjectedInventory, error) {
	objects := make([]ir.ProjectedObject, 0, len(inv.Objects))

	for _, obj := range inv.Objects {
		po := ir.ProjectedObject{Base: obj, ProjectionInputs: map[string]struct{}{}}
		localCtx := map[string]any{}
		touchedLocalCtx := false

		for _, rule := range spec.Rules {
			if !matchesType(rule.OnType, obj.TypeName) {
				continue
			}

			collected, err := collect(rule.FromAttrs, obj.Attrs)
			if err != nil {
				return ir.ProjectedInventory{}, fmt.Errorf("rule %q: %w", rule.Name, err)
			}
			for name := range collected {
				po.ProjectionInputs[name] = struct{}{}
			}

			transformed, err := transformAll(collected, rule.FromAttrs.Transform)
			if err != nil {
				return ir.ProjectedInventory{}, fmt.Errorf("rule %q: %w", rule.Name, err)
			}

			if rule.To.CustomFields != nil {
				if po.Projection.CustomFields == nil {
					po.Projection.CustomFields = map[string]any{}
				}
				for name, val := range transformed {
					target, err := targetField(rule.To.CustomFields.Strategy, rule.To.CustomFields.Field, rule.FromAttrs, name)
					if err != nil {
						return ir.ProjectedInventory{}, fmt.Errorf("rule %q: %w", rule.Name, err)
					}
					po.Projection.CustomFields[target] = val
				}
			}

			if rule.To.Tags != nil {
				po.Projection.HasTags = true
				tagSet := map[string]struct{}{}
				for _, existing := range po.Projection.Tags {
					tagSet[existing] = struct{}{}
				}
				for _, val := range transformed {
					tags, ok := toStringSlice(val)
					if !ok {
						return ir.ProjectedInventory{}, fmt.Errorf("rule %q: tags value is not an array of strings", rule.Name)
					}
					for _, tag := range tags {
						tagSet[tag] = struct{}{}
					}
				}
				po.Projection.Tags = sortedSet(tagSet)
			}

			if rule.To.LocalContext != nil {
				touchedLocalCtx = true
				for name, val := range transformed {
					target, err := targetField(rule.To.LocalContext.Strategy, rule.To.LocalContext.Field, rule.FromAttrs, name)
					if err != nil {
						return ir.ProjectedInventory{}, fmt.Errorf("rule %q: %w", rule.Name, err)
					}
					if err := setNested(localCtx, rule.To.LocalContext.Root, target, val); err != nil {
						return ir.ProjectedInventory{}, fmt.Errorf("rule %q: %w", rule.Name, err)
					}
				}
			}
		}

		if touchedLocalCtx {
			po.Projection.HasContext = true
			po.Projection.LocalContext = localCtx
		}
		objects = append(objects, po)
	}

	return ir.ProjectedInventory{Schema: inv.Schema, Objects: objects}, nil
}

func matchesType(onType, objType ir.TypeName) bool {
	return onType == "*" || onType == objType
}

// collect selects the attr entries from_attrs names, keyed by source attr
// name.
func collect(f FromAttrs, attrs ir.Attrs) (map[string]any, error) {
	switch {
	case f.Prefix != nil:
		out := map[string]any{}
		for name, val := range attrs {
			if strings.HasPrefix(name, *f.Prefix) {
				out[name] = val
			}
		}
		return out, nil
	case f.Key != nil:
		val, ok := attrs[*f.Key]
		if !ok {
			return map[string]any{}, nil
		}
		return map[string]any{*f.Key: val}, nil
	case f.Map != nil:
		out := map[string]any{}
		for _, src := range f.Map {
			if val, ok := attrs[src]; ok {
				out[src] = val
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("from_attrs: exactly one of prefix/key/map is required")
	}
}

// transformAll applies the transform pipeline to each collected value
// independently; a value dropped by drop_if_null is omitted from the
// result.
func transformAll(collected map[string]any, transforms []Transform) (map[string]any, error) {
	out := map[string]any{}
	for name, val := range collected {
		cur := val
		keep := true
		for _, t := range transforms {
			var err error
			cur, keep, err = applyTransform(cur, t)
			if err != nil {
				return nil, fmt.Errorf("attr %q: %w", name, err)
			}
			if !keep {
				break
			}
		}
		if keep {
			out[name] = cur
		}
	}
	return out, nil
}

func applyTransform(value any, t Transform) (any, bool, error) {
	switch t.Kind {
	case "stringify":
		if s, ok := value.(string); ok {
			return s, true, nil
		}
		b, err := json.Marshal(value)
		if err != nil {
			return nil, false, fmt.Errorf("stringify: %w", err)
		}
		return string(b), true, nil
	case "drop_if_null":
		if value == nil {
			return nil, false, nil
		}
		return value, true, nil
	case "join":
		items, ok := toStringSlice(value)
		if !ok {
			return nil, false, fmt.Errorf("join: value is not an array of strings")
		}
		return strings.Join(items, t.Sep), true, nil
	case "default":
		if value == nil {
			return t.Default, true, nil
		}
		return value, true, nil
	default:
		return nil, false, fmt.Errorf("unknown transform %q", t.Kind)
	}
}

func toStringSlice(v any) ([]string, bool) {
	switch arr := v.(type) {
	case []string:
		return arr, true
	case []any:
		out := make([]string, len(arr))
		for i, item := range arr {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

// targetField computes the backend-side field name for a selected attr
// under the given strategy, shared by custom_fields and local_context.
func targetField(strategy, override string, from FromAttrs, srcAttr string) (string, error) {
	switch strategy {
	case "strip_prefix":
		if from.Prefix == nil {
			return "", fmt.Errorf("strategy strip_prefix requires from_attrs.prefix")
		}
		return strings.TrimPrefix(srcAttr, *from.Prefix), nil
	case "explicit":
		if from.Map == nil {
			return "", fmt.Errorf("strategy explicit requires from_attrs.map")
		}
		for target, src := range from.Map {
			if src == srcAttr {
				return target, nil
			}
		}
		return "", fmt.Errorf("no explicit target mapped for attr %q", srcAttr)
	case "direct":
		if override != "" {
			return override, nil
		}
		return srcAttr, nil
	default:
		return "", fmt.Errorf("unknown strategy %q", strategy)
	}
}

func setNested(ctx map[string]any, root, field string, value any) error {
	cur := ctx
	for _, seg := range splitDotted(root) {
		if seg == "" {
			return fmt.Errorf("local_context root %q contains an empty segment", root)
		}
		next, ok := cur[seg].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[seg] = next
		}
		cur = next
	}
	cur[field] = value
	return nil
}

func splitDotted(s string) []string {
	return strings.Split(s, ".")
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
