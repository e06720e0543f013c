// SPDX-License-Identifier: AGPL-3.0-or-later

package projection

import (
	"fmt"
	"sort"

	"crucible/internal/ir"
)

// Extract reconstructs the x.*-prefixed IR attrs a backend's observed
// custom fields and tags correspond to, inverting the forward projection
// rules that target custom_fields/tags for typeName. Transforms are never
// inverted: a rule with a non-empty transform pipeline only yields a
// warning, since the source value cannot in general be recovered from its
// transformed form. Custom fields and tags left unclaimed by every rule
// pass through under a synthetic "x.unmapped.<key>" name so no observed
// data is silently dropped (spec.md §4.3).
func Extract(spec Spec, typeName ir.TypeName, projection ir.ProjectionData) (map[string]any, []string, error) {
	attrs := map[string]any{}
	var warnings []string
	claimed := map[string]bool{}
	tagsClaimed := false

	for _, rule := range spec.Rules {
		if !matchesType(rule.OnType, typeName) {
			continue
		}

		if rule.To.CustomFields != nil {
			if len(rule.FromAttrs.Transform) > 0 {
				warnings = append(warnings, fmt.Sprintf("rule %q: custom_fields projection has a transform pipeline, extract cannot invert it", rule.Name))
			} else {
				for field, val := range projection.CustomFields {
					srcAttr, ok := reverseTarget(rule, field)
					if !ok {
						continue
					}
					claimed[field] = true
					key := "x." + srcAttr
					if _, dup := attrs[key]; dup {
						warnings = append(warnings, fmt.Sprintf("rule %q: target field %q maps to attr %q which was already set by an earlier rule, keeping first value", rule.Name, field, key))
						continue
					}
					attrs[key] = val
				}
			}
		}

		if rule.To.Tags != nil && !tagsClaimed && len(projection.Tags) > 0 {
			if rule.To.Tags.Source != "value" {
				warnings = append(warnings, fmt.Sprintf("rule %q: tags source must be \"value\"", rule.Name))
				continue
			}
			tagsClaimed = true
			srcNames, inferred := reverseTagsKeys(rule.FromAttrs)
			if inferred {
				warnings = append(warnings, fmt.Sprintf("rule %q: inferred tag key %q", rule.Name, srcNames[0]))
			}
			tagValue := append([]string(nil), projection.Tags...)
			for _, name := range srcNames {
				key := "x." + name
				if _, dup := attrs[key]; dup {
					warnings = append(warnings, fmt.Sprintf("rule %q: target field %q maps to attr %q which was already set by an earlier rule, keeping first value", rule.Name, name, key))
					continue
				}
				attrs[key] = tagValue
			}
		}
	}

	unclaimed := make([]string, 0, len(projection.CustomFields))
	for field := range projection.CustomFields {
		if !claimed[field] {
			unclaimed = append(unclaimed, field)
		}
	}
	sort.Strings(unclaimed)
	for _, field := range unclaimed {
		key := "x.unmapped." + field
		attrs[key] = projection.CustomFields[field]
		warnings = append(warnings, fmt.Sprintf("custom field %q is not claimed by any rule, passing through as %q", field, key))
	}

	if !tagsClaimed && len(projection.Tags) > 0 {
		key := "x.unmapped.tags"
		attrs[key] = append([]string(nil), projection.Tags...)
		warnings = append(warnings, fmt.Sprintf("tags are not claimed by any rule, passing through as %q", key))
	}

	return attrs, warnings, nil
}

// reverseTagsKeys inverts a tags rule's from_attrs selector back to the
// source attr name(s) the backend's tags list should be recovered under.
// prefix-based selectors have no recorded source name, so one is inferred
// ("<prefix>tags") and reported via the inferred flag, mirroring the
// original's "inferred tag key" warning.
func reverseTagsKeys(f FromAttrs) ([]string, bool) {
	switch {
	case f.Key != nil:
		return []string{*f.Key}, false
	case len(f.Map) > 0:
		names := make([]string, 0, len(f.Map))
		for _, src := range f.Map {
			names = append(names, src)
		}
		sort.Strings(names)
		return names, false
	case f.Prefix != nil:
		return []string{*f.Prefix + "tags"}, true
	default:
		return []string{"tags"}, false
	}
}

// reverseTarget inverts targetField for the custom_fields strategy: given
// the backend-side field name, it returns the source attr name the rule
// would have selected it from.
func reverseTarget(rule Rule, field string) (string, bool) {
	switch rule.To.CustomFields.Strategy {
	case "strip_prefix":
		if rule.FromAttrs.Prefix == nil {
			return "", false
		}
		return *rule.FromAttrs.Prefix + field, true
	case "explicit":
		src, ok := rule.FromAttrs.Map[field]
		return src, ok
	case "direct":
		if rule.FromAttrs.Key == nil {
			return "", false
		}
		want := rule.To.CustomFields.Field
		if want == "" {
			want = *rule.FromAttrs.Key
		}
		if want != field {
			return "", false
		}
		return *rule.FromAttrs.Key, true
	default:
		return "", false
	}
}
