// SPDX-License-Identifier: AGPL-3.0-or-later

// Package projection implements the declarative rules that lift a subset of
// IR attributes into backend-side custom fields, tags, and context blobs,
// plus the inverse extract operation (spec.md §4.3).
package projection

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"crucible/internal/ir"
)

// Spec is a named collection of projection rules.
type Spec struct {
	Rules []Rule `yaml:"rules"`
}

// Rule projects a selected subset of one type's attrs into backend metadata.
type Rule struct {
	Name      string      `yaml:"name"`
	OnType    ir.TypeName `yaml:"on_type"`
	FromAttrs FromAttrs   `yaml:"from_attrs"`
	To        To          `yaml:"to"`
}

// FromAttrs selects attribute entries from an object. Exactly one of
// Prefix, Key, Map must be set.
type FromAttrs struct {
	Prefix *string `yaml:"prefix"`
	Key    *string `yaml:"key"`

	// Map's keys are target field names, values are source attr names; it
	// both selects attrs and (for the "explicit" strategy) names their
	// backend-side target.
	Map map[string]string `yaml:"map"`

	Transform []Transform `yaml:"transform"`
}

// To names the zero or more backend-side targets a rule writes.
type To struct {
	CustomFields *CustomFieldsTarget `yaml:"custom_fields"`
	Tags         *TagsTarget         `yaml:"tags"`
	LocalContext *LocalContextTarget `yaml:"local_context"`
}

// CustomFieldsTarget: Strategy is one of strip_prefix, explicit, direct.
type CustomFieldsTarget struct {
	Strategy string `yaml:"strategy"`
	Field    string `yaml:"field"`
}

// TagsTarget: Source must be "value".
type TagsTarget struct {
	Source string `yaml:"source"`
}

// LocalContextTarget projects into a nested object rooted at Root (a
// dotted path; empty segments are fatal), using the same three strategies
// as CustomFieldsTarget.
type LocalContextTarget struct {
	Root     string `yaml:"root"`
	Strategy string `yaml:"strategy"`
	Field    string `yaml:"field"`
}

// Transform is one step of a from_attrs transform pipeline: stringify,
// drop_if_null, {join: sep}, or {default: v}.
type Transform struct {
	Kind    string
	Sep     string
	Default any
}

func (t *Transform) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		t.Kind = s
		return nil
	case yaml.MappingNode:
		var m map[string]any
		if err := node.Decode(&m); err != nil {
			return err
		}
		if sep, ok := m["join"]; ok {
			s, ok := sep.(string)
			if !ok {
				return fmt.Errorf("transform: join separator must be a string")
			}
			t.Kind, t.Sep = "join", s
			return nil
		}
		if def, ok := m["default"]; ok {
			t.Kind, t.Default = "default", def
			return nil
		}
		return fmt.Errorf("transform: unrecognized mapping shape")
	default:
		return fmt.Errorf("transform: unsupported node kind %v", node.Kind)
	}
}

// ParseSpec decodes a projection file.
func ParseSpec(data []byte) (Spec, error) {
	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return Spec{}, fmt.Errorf("parsing projection file: %w", err)
	}
	for _, rule := range spec.Rules {
		if err := validateRuleShape(rule); err != nil {
			return Spec{}, fmt.Errorf("rule %q: %w", rule.Name, err)
		}
	}
	return spec, nil
}

func validateRuleShape(rule Rule) error {
	count := 0
	if rule.FromAttrs.Prefix != nil {
		count++
	}
	if rule.FromAttrs.Key != nil {
		count++
	}
	if rule.FromAttrs.Map != nil {
		count++
	}
	if count != 1 {
		return fmt.Errorf("from_attrs must set exactly one of prefix/key/map, got %d", count)
	}
	if rule.To.CustomFields == nil && rule.To.Tags == nil && rule.To.LocalContext == nil {
		return fmt.Errorf("to must set at least one of custom_fields/tags/local_context")
	}
	if rule.To.CustomFields != nil {
		if rule.To.CustomFields.Strategy == "strip_prefix" && rule.FromAttrs.Prefix == nil {
			return fmt.Errorf("custom_fields strategy strip_prefix requires from_attrs.prefix")
		}
		if rule.To.CustomFields.Strategy == "explicit" && rule.FromAttrs.Map == nil {
			return fmt.Errorf("custom_fields strategy explicit requires from_attrs.map")
		}
	}
	if rule.To.Tags != nil && rule.To.Tags.Source != "value" {
		return fmt.Errorf("tags source must be \"value\", got %q", rule.To.Tags.Source)
	}
	if rule.To.LocalContext != nil {
		if rule.To.LocalContext.Root == "" {
			return fmt.Errorf("local_context.root is required")
		}
		for _, seg := range splitDotted(rule.To.LocalContext.Root) {
			if seg == "" {
				return fmt.Errorf("local_context.root %q contains an empty segment", rule.To.LocalContext.Root)
			}
		}
	}
	return nil
}
