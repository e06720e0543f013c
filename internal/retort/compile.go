// SPDX-License-Identifier: AGPL-3.0-or-later

package retort

import (
	"fmt"

	"crucible/internal/ir"
)

// Diagnostic is a non-fatal note surfaced during compilation: a missing
// required variable that aborted one rule instance, not the whole batch
// (spec.md §8 invariant 6).
type Diagnostic struct {
	Rule    string
	Message string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("rule %q: %s", d.Rule, d.Message)
}

// Compile runs every rule in rf against dom, producing an inventory of
// emitted objects plus any non-fatal diagnostics. A malformed rule (bad
// template, unresolvable uid shape) is fatal; a missing required variable
// aborts only the rule instance at that DOM position.
func Compile(dom any, rf RuleFile) (ir.Inventory, []Diagnostic, error) {
	var objects []ir.Object
	var diagnostics []Diagnostic

	for _, rule := range rf.Rules {
		if rule.Emit.Type == "" {
			return ir.Inventory{}, diagnostics, fmt.Errorf("rule %q: emit.type is required", rule.Name)
		}
		for _, pos := range selectPositions(dom, rule.Select) {
			obj, diag, emitted, err := evalRule(dom, rule, pos)
			if err != nil {
				return ir.Inventory{}, diagnostics, fmt.Errorf("rule %q: %w", rule.Name, err)
			}
			if diag != "" {
				diagnostics = append(diagnostics, Diagnostic{Rule: rule.Name, Message: diag})
			}
			if emitted {
				objects = append(objects, obj)
			}
		}
	}

	sortObjects(objects)
	return ir.Inventory{Objects: objects}, diagnostics, nil
}

// evalRule binds vars, renders key/uid/attrs for a single matched position.
// A missing required var or a key template that references a missing var
// aborts this instance (emitted=false, diag describes why) without
// returning an error; a uid template that references a missing var is an
// error.
func evalRule(dom any, rule Rule, pos position) (ir.Object, string, bool, error) {
	vars := map[string]any{}
	for name, vs := range rule.Emit.Vars {
		val, ok := resolveVar(dom, pos.segments, vs.From)
		if !ok {
			if vs.Required {
				return ir.Object{}, fmt.Sprintf("required var %q missing", name), false, nil
			}
			continue
		}
		vars[name] = val
	}

	key, ok, err := renderKey(rule.Emit.Key, vars)
	if err != nil {
		return ir.Object{}, "", false, fmt.Errorf("emit.key: %w", err)
	}
	if !ok {
		return ir.Object{}, "emit.key references a missing variable", false, nil
	}
	fallbackKey := key.Canonical()

	uid, ok, err := resolveUid(rule.Emit.Uid, vars, rule.Emit.Type, fallbackKey, false)
	if err != nil {
		return ir.Object{}, "", false, fmt.Errorf("emit.uid: %w", err)
	}
	if !ok {
		return ir.Object{}, "emit.uid references a missing variable", false, nil
	}

	attrsRendered, _, err := renderTemplate(rule.Emit.Attrs, vars, rule.Emit.Type, fallbackKey)
	if err != nil {
		return ir.Object{}, "", false, fmt.Errorf("attrs: %w", err)
	}
	attrs := ir.Attrs{}
	if m, ok := attrsRendered.(map[string]any); ok {
		for k, v := range m {
			attrs[k] = v
		}
	}

	if rule.Emit.X != nil {
		xRendered, _, err := renderTemplate(rule.Emit.X, vars, rule.Emit.Type, fallbackKey)
		if err != nil {
			return ir.Object{}, "", false, fmt.Errorf("x: %w", err)
		}
		if m, ok := xRendered.(map[string]any); ok {
			for k, v := range m {
				attrs["x."+k] = v
			}
		}
	}

	return ir.Object{
		Uid:      uid,
		TypeName: rule.Emit.Type,
		Key:      key,
		Attrs:    attrs,
	}, "", true, nil
}

func sortObjects(objects []ir.Object) {
	for i := 1; i < len(objects); i++ {
		for j := i; j > 0 && less(objects[j], objects[j-1]); j-- {
			objects[j], objects[j-1] = objects[j-1], objects[j]
		}
	}
}

func less(a, b ir.Object) bool {
	ra, rb := ir.KindRank(a.TypeName), ir.KindRank(b.TypeName)
	if ra != rb {
		return ra < rb
	}
	if a.TypeName != b.TypeName {
		return a.TypeName < b.TypeName
	}
	return a.Key.Canonical() < b.Key.Canonical()
}
