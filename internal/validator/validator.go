// SPDX-License-Identifier: AGPL-3.0-or-later

// Package validator enforces the schema, reference, and uniqueness
// invariants an inventory must satisfy before it can be projected or
// planned (spec.md §4.4).
package validator

import (
	"fmt"
	"sort"
	"strings"

	"crucible/internal/ir"
)

// Finding is a single aggregated violation. Kind is a stable machine-facing
// tag (see the Kind constants); Message is the human-facing description.
type Finding struct {
	Kind     string
	TypeName ir.TypeName
	Key      string
	Field    string
	Source   *ir.Source
	Message  string
}

func (f Finding) String() string {
	var loc string
	if f.Source != nil && f.Source.File != "" {
		loc = f.Source.File + ": "
	}
	return loc + f.Message
}

const (
	KindDuplicateUID      = "duplicate_uid"
	KindDuplicateKey      = "duplicate_key"
	KindMissingType       = "missing_type"
	KindMissingKey        = "missing_key"
	KindUnknownType       = "unknown_type"
	KindKeyFieldMismatch  = "key_field_mismatch"
	KindExtraAttr         = "extra_attr"
	KindMissingRequired   = "missing_required"
	KindInvalidValue      = "invalid_value"
	KindMissingReference  = "missing_reference"
	KindMistypedReference = "mistyped_reference"
)

// Report aggregates every Finding from a single Validate call. It satisfies
// error so callers can wrap it with fmt.Errorf("...: %w", report) while
// still inspecting Findings for structured diagnostics.
type Report struct {
	Findings []Finding
}

// OK reports whether the inventory is free of violations.
func (r Report) OK() bool { return len(r.Findings) == 0 }

func (r Report) Error() string {
	if len(r.Findings) == 0 {
		return "no validation findings"
	}
	msgs := make([]string, len(r.Findings))
	for i, f := range r.Findings {
		msgs[i] = f.String()
	}
	return fmt.Sprintf("%d validation finding(s): %s", len(r.Findings), strings.Join(msgs, "; "))
}

func (r *Report) add(f Finding) { r.Findings = append(r.Findings, f) }

// Validate runs all checks against inventory and returns the aggregated
// report. It never fails fast: every object is checked against every rule
// so the report enumerates all violations in one pass (invariant 4).
func Validate(inv ir.Inventory) Report {
	var report Report

	checkUniqueness(inv, &report)
	byUID := inv.ByUid()

	for _, obj := range inv.Objects {
		checkPresence(obj, &report)
		schema, hasSchema := checkSchemaType(inv.Schema, obj, &report)
		if !hasSchema {
			continue
		}
		checkKeyFields(schema, obj, &report)
		checkAttrs(inv.Schema, schema, obj, &report)
		checkReferences(inv.Schema, byUID, obj, &report)
	}

	sortFindings(report.Findings)
	return report
}

func checkUniqueness(inv ir.Inventory, report *Report) {
	seenUID := map[ir.Uid]int{}
	seenKey := map[ir.TypeName]map[string]int{}

	for _, obj := range inv.Objects {
		seenUID[obj.Uid]++
		if seenUID[obj.Uid] == 2 {
			report.add(Finding{
				Kind: KindDuplicateUID, TypeName: obj.TypeName, Source: obj.Source,
				Message: fmt.Sprintf("duplicate uid %s", obj.Uid),
			})
		}

		byKey, ok := seenKey[obj.TypeName]
		if !ok {
			byKey = map[string]int{}
			seenKey[obj.TypeName] = byKey
		}
		canon := obj.Key.Canonical()
		byKey[canon]++
		if byKey[canon] == 2 {
			report.add(Finding{
				Kind: KindDuplicateKey, TypeName: obj.TypeName, Key: canon, Source: obj.Source,
				Message: fmt.Sprintf("duplicate (%s, %s)", obj.TypeName, canon),
			})
		}
	}
}

func checkPresence(obj ir.Object, report *Report) {
	if obj.TypeName == "" {
		report.add(Finding{Kind: KindMissingType, Source: obj.Source, Message: fmt.Sprintf("object %s has no type", obj.Uid)})
	}
	if len(obj.Key) == 0 {
		report.add(Finding{Kind: KindMissingKey, TypeName: obj.TypeName, Source: obj.Source, Message: fmt.Sprintf("object %s has no key", obj.Uid)})
	}
}

func checkSchemaType(schema ir.Schema, obj ir.Object, report *Report) (ir.TypeSchema, bool) {
	ts, ok := schema.Types[obj.TypeName]
	if !ok {
		report.add(Finding{
			Kind: KindUnknownType, TypeName: obj.TypeName, Source: obj.Source,
			Message: fmt.Sprintf("type %q is not declared in any merged schema", obj.TypeName),
		})
		return ir.TypeSchema{}, false
	}
	return ts, true
}

func checkKeyFields(ts ir.TypeSchema, obj ir.Object, report *Report) {
	declared := map[string]struct{}{}
	for _, name := range ts.Key.Names {
		declared[name] = struct{}{}
	}
	for name := range obj.Key {
		if _, ok := declared[name]; !ok {
			report.add(Finding{
				Kind: KindKeyFieldMismatch, TypeName: obj.TypeName, Key: obj.Key.Canonical(), Field: name, Source: obj.Source,
				Message: fmt.Sprintf("key field %q is not declared for type %q", name, obj.TypeName),
			})
		}
	}
	for name := range declared {
		if _, ok := obj.Key[name]; !ok {
			report.add(Finding{
				Kind: KindKeyFieldMismatch, TypeName: obj.TypeName, Key: obj.Key.Canonical(), Field: name, Source: obj.Source,
				Message: fmt.Sprintf("key is missing declared field %q for type %q", name, obj.TypeName),
			})
		}
	}
}

func checkAttrs(schema ir.Schema, ts ir.TypeSchema, obj ir.Object, report *Report) {
	for name := range obj.Attrs {
		if !ts.Fields.Has(name) {
			report.add(Finding{
				Kind: KindExtraAttr, TypeName: obj.TypeName, Key: obj.Key.Canonical(), Field: name, Source: obj.Source,
				Message: fmt.Sprintf("attr %q is not declared for type %q", name, obj.TypeName),
			})
		}
	}

	for _, name := range ts.Fields.Names {
		field, _ := ts.Fields.Get(name)
		value, present := obj.Attrs[name]

		if !present {
			if field.Required && !field.Nullable {
				report.add(Finding{
					Kind: KindMissingRequired, TypeName: obj.TypeName, Key: obj.Key.Canonical(), Field: name, Source: obj.Source,
					Message: fmt.Sprintf("required attr %q missing on %s", name, obj.TypeName),
				})
			}
			continue
		}

		if value == nil {
			if !field.Nullable {
				report.add(Finding{
					Kind: KindInvalidValue, TypeName: obj.TypeName, Key: obj.Key.Canonical(), Field: name, Source: obj.Source,
					Message: fmt.Sprintf("attr %q on %s is null but not nullable", name, obj.TypeName),
				})
			}
			continue
		}

		if reason := conforms(schema, field, value); reason != "" {
			report.add(Finding{
				Kind: KindInvalidValue, TypeName: obj.TypeName, Key: obj.Key.Canonical(), Field: name, Source: obj.Source,
				Message: fmt.Sprintf("attr %q on %s: %s", name, obj.TypeName, reason),
			})
		}
	}
}

// conforms reports a non-empty reason when value does not match field's
// declared FieldType shape (spec.md §4.4 item 4). It does not resolve
// references; that is checkReferences's job.
func conforms(schema ir.Schema, field ir.FieldSchema, value any) string {
	switch field.Type {
	case ir.FieldString, ir.FieldText, ir.FieldDate, ir.FieldDatetime, ir.FieldTime,
		ir.FieldIPAddress, ir.FieldCIDR, ir.FieldPrefix, ir.FieldMAC, ir.FieldSlug, ir.FieldUUID:
		if _, ok := value.(string); !ok {
			return fmt.Sprintf("expected string for %s, got %T", field.Type, value)
		}
	case ir.FieldInt:
		if !isNumber(value) {
			return fmt.Sprintf("expected int for %s, got %T", field.Type, value)
		}
	case ir.FieldFloat:
		if !isNumber(value) {
			return fmt.Sprintf("expected float for %s, got %T", field.Type, value)
		}
	case ir.FieldBool:
		if _, ok := value.(bool); !ok {
			return fmt.Sprintf("expected bool, got %T", value)
		}
	case ir.FieldEnum:
		s, ok := value.(string)
		if !ok {
			return fmt.Sprintf("expected string for enum, got %T", value)
		}
		for _, allowed := range field.Values {
			if s == allowed {
				return ""
			}
		}
		return fmt.Sprintf("%q is not a member of enum %v", s, field.Values)
	case ir.FieldJSON, ir.FieldMap:
		if _, ok := value.(map[string]any); !ok {
			return fmt.Sprintf("expected object, got %T", value)
		}
	case ir.FieldList:
		items, ok := value.([]any)
		if !ok {
			return fmt.Sprintf("expected list, got %T", value)
		}
		if field.Item != nil {
			for i, item := range items {
				if item == nil {
					continue
				}
				if reason := conforms(schema, *field.Item, item); reason != "" {
					return fmt.Sprintf("item %d: %s", i, reason)
				}
			}
		}
	case ir.FieldRef:
		s, ok := value.(string)
		if !ok {
			return fmt.Sprintf("expected uuid-shaped string for ref, got %T", value)
		}
		if _, err := ir.ParseUid(s); err != nil {
			return fmt.Sprintf("ref value %q is not uuid-shaped: %v", s, err)
		}
	case ir.FieldListRef:
		items, ok := value.([]any)
		if !ok {
			return fmt.Sprintf("expected list for list_ref, got %T", value)
		}
		for i, item := range items {
			s, ok := item.(string)
			if !ok {
				return fmt.Sprintf("item %d: expected uuid-shaped string, got %T", i, item)
			}
			if _, err := ir.ParseUid(s); err != nil {
				return fmt.Sprintf("item %d: %q is not uuid-shaped: %v", i, s, err)
			}
		}
	}
	return ""
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	default:
		return false
	}
}

// checkReferences verifies that every Ref/ListRef attr targets a uid present
// in the inventory whose type matches the field's declared Target
// (spec.md §4.4 item 5).
func checkReferences(schema ir.Schema, byUID map[ir.Uid]ir.Object, obj ir.Object, report *Report) {
	ts, ok := schema.Types[obj.TypeName]
	if !ok {
		return
	}
	for _, name := range ts.Fields.Names {
		field, _ := ts.Fields.Get(name)
		if field.Type != ir.FieldRef && field.Type != ir.FieldListRef {
			continue
		}
		value, present := obj.Attrs[name]
		if !present || value == nil {
			continue
		}

		var refs []string
		switch field.Type {
		case ir.FieldRef:
			if s, ok := value.(string); ok {
				refs = append(refs, s)
			}
		case ir.FieldListRef:
			if items, ok := value.([]any); ok {
				for _, item := range items {
					if s, ok := item.(string); ok {
						refs = append(refs, s)
					}
				}
			}
		}

		for _, ref := range refs {
			uid, err := ir.ParseUid(ref)
			if err != nil {
				continue // already reported by conforms
			}
			target, ok := byUID[uid]
			if !ok {
				report.add(Finding{
					Kind: KindMissingReference, TypeName: obj.TypeName, Key: obj.Key.Canonical(), Field: name, Source: obj.Source,
					Message: fmt.Sprintf("attr %q references uid %s which does not exist in the inventory", name, uid),
				})
				continue
			}
			if field.Target != "" && target.TypeName != field.Target {
				report.add(Finding{
					Kind: KindMistypedReference, TypeName: obj.TypeName, Key: obj.Key.Canonical(), Field: name, Source: obj.Source,
					Message: fmt.Sprintf("attr %q references uid %s of type %q, expected %q", name, uid, target.TypeName, field.Target),
				})
			}
		}
	}
}

func sortFindings(findings []Finding) {
	sort.Slice(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if a.TypeName != b.TypeName {
			return a.TypeName < b.TypeName
		}
		if a.Key != b.Key {
			return a.Key < b.Key
		}
		if a.Field != b.Field {
			return a.Field < b.Field
		}
		return a.Kind < b.Kind
	})
}
