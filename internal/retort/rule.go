// SPDX-License-Identifier: AGPL-3.0-or-later

package retort

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"crucible/internal/ir"
)

// RuleFile is the top-level shape of a retort file (spec.md §6.2): a named
// collection of rules that compile arbitrary input documents into IR.
type RuleFile struct {
	Rules []Rule `yaml:"rules"`
}

// Rule is a single retort rule (spec.md §4.2 "Rule shape").
type Rule struct {
	Name   string   `yaml:"name"`
	Select string   `yaml:"select"`
	Emit   EmitSpec `yaml:"emit"`
}

// VarSpec describes one variable binding within a rule.
type VarSpec struct {
	From     string `yaml:"from"`
	Required bool   `yaml:"required"`
}

// EmitSpec describes the object a rule produces per matched DOM position.
// Uid, Attrs, and X decode as generic any trees (map[string]any /
// []any / scalars) so renderTemplate can walk them uniformly with the
// selected input document. Key decodes as either a string template
// ("slug=${slug}", spec.md §6.2 canonical form) or a field→template mapping
// ({slug: "${slug}"}); renderKey handles both.
type EmitSpec struct {
	Type  ir.TypeName        `yaml:"type"`
	Key   any                `yaml:"key"`
	Uid   any                `yaml:"uid"`
	Vars  map[string]VarSpec `yaml:"vars"`
	Attrs any                `yaml:"attrs"`
	X     any                `yaml:"x"`
}

// ParseRuleFile decodes a retort file.
func ParseRuleFile(data []byte) (RuleFile, error) {
	var rf RuleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return RuleFile{}, fmt.Errorf("parsing retort file: %w", err)
	}
	return rf, nil
}

// ParseDocument decodes an arbitrary input document (the "raw" side of
// compile) into the generic any-tree selectPositions walks.
func ParseDocument(data []byte) (any, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing input document: %w", err)
	}
	return doc, nil
}
