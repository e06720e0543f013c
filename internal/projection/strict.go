// SPDX-License-Identifier: AGPL-3.0-or-later

package projection

import (
	"fmt"

	"crucible/internal/ir"
)

// ValidateStrict re-runs every custom_fields and tags rule against inv's
// raw desired objects and fails fast the moment a rule would write a
// target the backend's declared capabilities do not support. It operates
// on the raw Inventory rather than an already-computed ProjectedInventory
// because the error must name the originating rule, type, source attr,
// and target field together (spec.md §4.3 scenario S6).
func ValidateStrict(spec Spec, inv ir.Inventory, caps ir.BackendCapabilities) error {
	for _, obj := range inv.Objects {
		for _, rule := range spec.Rules {
			if !matchesType(rule.OnType, obj.TypeName) {
				continue
			}

			collected, err := collect(rule.FromAttrs, obj.Attrs)
			if err != nil {
				return fmt.Errorf("rule %q: %w", rule.Name, err)
			}

			if rule.To.CustomFields != nil {
				allowed := caps.CustomFieldsByType[obj.TypeName]
				for srcAttr := range collected {
					target, err := targetField(rule.To.CustomFields.Strategy, rule.To.CustomFields.Field, rule.FromAttrs, srcAttr)
					if err != nil {
						return fmt.Errorf("rule %q: %w", rule.Name, err)
					}
					if !containsString(allowed, target) {
						return fmt.Errorf("rule %q: type %q attr %q projects to custom field %q, which is not declared for this type by the backend", rule.Name, obj.TypeName, srcAttr, target)
					}
				}
			}

			if rule.To.Tags != nil {
				for srcAttr, val := range collected {
					tags, ok := toStringSlice(val)
					if !ok {
						return fmt.Errorf("rule %q: type %q attr %q is not an array of strings", rule.Name, obj.TypeName, srcAttr)
					}
					for _, tag := range tags {
						if !containsString(caps.Tags, tag) {
							return fmt.Errorf("rule %q: type %q attr %q projects tag %q, which is not declared by the backend", rule.Name, obj.TypeName, srcAttr, tag)
						}
					}
				}
			}
		}
	}
	return nil
}

// ComputeMissing diffs an already-projected inventory against a backend's
// declared capabilities, reporting custom fields and tags the projection
// would need that the backend does not yet declare. Used by the
// propose-mode workflow rather than strict validation's fail-fast path.
func ComputeMissing(caps ir.BackendCapabilities, projected ir.ProjectedInventory) (map[ir.TypeName][]string, []string) {
	missingByType := map[ir.TypeName]map[string]struct{}{}
	missingTags := map[string]struct{}{}

	for _, obj := range projected.Objects {
		allowed := caps.CustomFieldsByType[obj.Base.TypeName]
		for field := range obj.Projection.CustomFields {
			if !containsString(allowed, field) {
				if missingByType[obj.Base.TypeName] == nil {
					missingByType[obj.Base.TypeName] = map[string]struct{}{}
				}
				missingByType[obj.Base.TypeName][field] = struct{}{}
			}
		}
		for _, tag := range obj.Projection.Tags {
			if !containsString(caps.Tags, tag) {
				missingTags[tag] = struct{}{}
			}
		}
	}

	out := map[ir.TypeName][]string{}
	for typeName, set := range missingByType {
		out[typeName] = sortedSet(set)
	}
	return out, sortedSet(missingTags)
}

func containsString(items []string, want string) bool {
	for _, item := range items {
		if item == want {
			return true
		}
	}
	return false
}
