// SPDX-License-Identifier: AGPL-3.0-or-later

// Package loader composes an ir.Inventory from include-transitive Brew
// documents, with deterministic source attribution and cycle-safe
// deduplication (spec.md §4.1).
package loader

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"crucible/internal/ir"
)

// document is the raw, unresolved shape of a Brew file (spec.md §6.1).
// Both JSON and YAML decode into this shape via yaml.v3, which accepts
// JSON as a YAML subset.
type document struct {
	Schema  *rawSchema   `yaml:"schema"`
	Include []string     `yaml:"include"`
	Imports []string     `yaml:"imports"`
	Objects []rawObject  `yaml:"objects"`
}

type rawSchema struct {
	Types map[ir.TypeName]ir.TypeSchema `yaml:"types"`
}

type rawObject struct {
	Uid   string         `yaml:"uid"`
	Type  ir.TypeName    `yaml:"type"`
	Key   rawKey         `yaml:"key"`
	Attrs map[string]any `yaml:"attrs"`
	X     map[string]any `yaml:"x"`
}

// rawKey decodes either a mapping form ({field: value, ...}) or the
// canonical string form ("field=value/field=value").
type rawKey struct {
	value ir.Key
}

func (k *rawKey) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		k.value = ir.ParseKeyString(s)
		return nil
	case yaml.MappingNode:
		var m map[string]any
		if err := node.Decode(&m); err != nil {
			return err
		}
		k.value = ir.Key(m)
		return nil
	default:
		return fmt.Errorf("key: unsupported node kind %v", node.Kind)
	}
}

func parseDocument(data []byte) (document, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return document{}, fmt.Errorf("parsing document: %w", err)
	}
	return doc, nil
}

func (d document) toSchema() ir.Schema {
	s := ir.NewSchema()
	if d.Schema == nil {
		return s
	}
	for name, ts := range d.Schema.Types {
		s.Types[name] = ts
	}
	return s
}
