// SPDX-License-Identifier: AGPL-3.0-or-later

package ir

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// FieldType enumerates the value shapes a schema field may declare.
type FieldType string

const (
	FieldString    FieldType = "string"
	FieldText      FieldType = "text"
	FieldInt       FieldType = "int"
	FieldFloat     FieldType = "float"
	FieldBool      FieldType = "bool"
	FieldUUID      FieldType = "uuid"
	FieldDate      FieldType = "date"
	FieldDatetime  FieldType = "datetime"
	FieldTime      FieldType = "time"
	FieldJSON      FieldType = "json"
	FieldIPAddress FieldType = "ip_address"
	FieldCIDR      FieldType = "cidr"
	FieldPrefix    FieldType = "prefix"
	FieldMAC       FieldType = "mac"
	FieldSlug      FieldType = "slug"
	FieldEnum      FieldType = "enum"
	FieldList      FieldType = "list"
	FieldMap       FieldType = "map"
	FieldRef       FieldType = "ref"
	FieldListRef   FieldType = "list_ref"
)

// FieldSchema describes one field of a TypeSchema.
type FieldSchema struct {
	Type        FieldType `yaml:"type" json:"type"`
	Required    bool      `yaml:"required,omitempty" json:"required,omitempty"`
	Nullable    bool      `yaml:"nullable,omitempty" json:"nullable,omitempty"`
	Description string    `yaml:"description,omitempty" json:"description,omitempty"`
	Format      string    `yaml:"format,omitempty" json:"format,omitempty"`
	Pattern     string    `yaml:"pattern,omitempty" json:"pattern,omitempty"`

	// Values holds the permitted members when Type == FieldEnum.
	Values []string `yaml:"values,omitempty" json:"values,omitempty"`

	// Item describes the element type when Type == FieldList.
	Item *FieldSchema `yaml:"item,omitempty" json:"item,omitempty"`

	// Target names the referenced TypeName when Type == FieldRef or FieldListRef.
	Target TypeName `yaml:"target,omitempty" json:"target,omitempty"`
}

// TypeName is a dotted, opaque type identifier (e.g. "dcim.site").
type TypeName string

// TypeSchema describes one type's key and attribute fields.
type TypeSchema struct {
	Key    OrderedFields `yaml:"key" json:"key"`
	Fields OrderedFields `yaml:"fields" json:"fields"`
}

// OrderedFields is an ordered field-name → FieldSchema mapping. Order is
// preserved via Names for deterministic iteration; lookups are O(1).
type OrderedFields struct {
	Names  []string
	byName map[string]FieldSchema
}

// Set inserts or replaces a field, preserving first-insertion order.
func (f *OrderedFields) Set(name string, schema FieldSchema) {
	if f.byName == nil {
		f.byName = make(map[string]FieldSchema)
	}
	if _, exists := f.byName[name]; !exists {
		f.Names = append(f.Names, name)
	}
	f.byName[name] = schema
}

// Get looks up a field by name.
func (f OrderedFields) Get(name string) (FieldSchema, bool) {
	s, ok := f.byName[name]
	return s, ok
}

// Has reports whether a field is declared.
func (f OrderedFields) Has(name string) bool {
	_, ok := f.byName[name]
	return ok
}

// UnmarshalYAML decodes a YAML mapping into an OrderedFields. yaml.v3 hands
// mapping nodes to us as a flat Content slice of alternating key/value
// nodes in document order, so Names ends up matching the source order
// exactly rather than falling out of Go's randomized map iteration.
func (f *OrderedFields) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("fields: expected mapping, got kind %v", node.Kind)
	}
	*f = OrderedFields{}
	for i := 0; i < len(node.Content); i += 2 {
		var name string
		if err := node.Content[i].Decode(&name); err != nil {
			return fmt.Errorf("fields: decoding key %d: %w", i/2, err)
		}
		var schema FieldSchema
		if err := node.Content[i+1].Decode(&schema); err != nil {
			return fmt.Errorf("fields %q: %w", name, err)
		}
		f.Set(name, schema)
	}
	return nil
}

// Schema maps TypeName to TypeSchema for an entire inventory.
type Schema struct {
	Types map[TypeName]TypeSchema `yaml:"types" json:"types"`
}

// NewSchema returns an empty, initialized Schema.
func NewSchema() Schema {
	return Schema{Types: map[TypeName]TypeSchema{}}
}

// Merge adds other's types into s, failing on any duplicate TypeName
// (spec.md §4.1 "Schema merge fails on duplicate type-name").
func (s *Schema) Merge(other Schema) error {
	if s.Types == nil {
		s.Types = map[TypeName]TypeSchema{}
	}
	for name, schema := range other.Types {
		if _, exists := s.Types[name]; exists {
			return fmt.Errorf("schema: duplicate type %q", name)
		}
		s.Types[name] = schema
	}
	return nil
}
