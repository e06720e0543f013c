// SPDX-License-Identifier: AGPL-3.0-or-later

package validator

import (
	"fmt"
	"sort"

	"crucible/internal/ir"
	"crucible/internal/projection"
	"crucible/internal/retort"
)

// LintReport separates non-fatal Warnings from fatal Errors. Unlike Report,
// a LintReport with only Warnings does not block a run; it surfaces spec
// authoring mistakes (dangling template vars, projection rules aimed at
// undeclared types) before they fail at compile or apply time.
type LintReport struct {
	Warnings []string
	Errors   []string
}

// OK reports whether lint found no fatal errors. Warnings do not affect OK.
func (r LintReport) OK() bool { return len(r.Errors) == 0 }

// Lint checks a retort rule file and/or a projection spec for authoring
// mistakes that Compile and Apply would otherwise only catch at a specific
// DOM position or object: dangling "${var}" references in emit templates,
// and projection rules that target a type the retort file never emits, or
// whose from_attrs/transform/strategy shape is malformed. Either
// argument may be nil to lint just the other.
func Lint(rf *retort.RuleFile, proj *projection.Spec) LintReport {
	var report LintReport

	var emittedTypes map[ir.TypeName]struct{}
	if rf != nil {
		emittedTypes = lintRetortTemplates(rf, &report)
	}
	if proj != nil {
		lintProjectionRules(proj, emittedTypes, &report)
	}

	sort.Strings(report.Errors)
	sort.Strings(report.Warnings)
	return report
}

func lintRetortTemplates(rf *retort.RuleFile, report *LintReport) map[ir.TypeName]struct{} {
	emittedTypes := map[ir.TypeName]struct{}{}

	for _, rule := range rf.Rules {
		if rule.Emit.Type != "" {
			emittedTypes[rule.Emit.Type] = struct{}{}
		}

		allowed := map[string]struct{}{}
		for name := range rule.Emit.Vars {
			allowed[name] = struct{}{}
		}

		lintTemplateValue(rule.Emit.Key, allowed, report, fmt.Sprintf("retort rule %s emit.key", rule.Name))
		lintTemplateValue(rule.Emit.Uid, allowed, report, fmt.Sprintf("retort rule %s emit.uid", rule.Name))
		lintTemplateValue(rule.Emit.Attrs, allowed, report, fmt.Sprintf("retort rule %s emit.attrs", rule.Name))
		lintTemplateValue(rule.Emit.X, allowed, report, fmt.Sprintf("retort rule %s emit.x", rule.Name))
	}

	return emittedTypes
}

// lintTemplateValue walks a generic template tree (map/slice/string/scalar,
// the same shape renderTemplate consumes) and warns about every "${name}"
// reference to a var not in allowed.
func lintTemplateValue(node any, allowed map[string]struct{}, report *LintReport, context string) {
	switch v := node.(type) {
	case string:
		lintTemplateString(v, allowed, report, context)
	case []any:
		for _, item := range v {
			lintTemplateValue(item, allowed, report, context)
		}
	case map[string]any:
		for key, value := range v {
			lintTemplateString(key, allowed, report, context)
			lintTemplateValue(value, allowed, report, context)
		}
	}
}

func lintTemplateString(raw string, allowed map[string]struct{}, report *LintReport, context string) {
	for _, name := range retort.TemplateVars(raw) {
		if _, ok := allowed[name]; !ok {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: missing var %s in template %q", context, name, raw))
		}
	}
}

func lintProjectionRules(spec *projection.Spec, emittedTypes map[ir.TypeName]struct{}, report *LintReport) {
	for _, rule := range spec.Rules {
		if rule.OnType == "" {
			report.Errors = append(report.Errors, fmt.Sprintf("projection rule %s: on_type is required", rule.Name))
		}

		selectorCount := 0
		if rule.FromAttrs.Prefix != nil {
			selectorCount++
		}
		if rule.FromAttrs.Key != nil {
			selectorCount++
		}
		if len(rule.FromAttrs.Map) > 0 {
			selectorCount++
		}
		if selectorCount != 1 {
			report.Errors = append(report.Errors, fmt.Sprintf(
				"projection rule %s (type %s): from_attrs must include exactly one of prefix, key, or map",
				rule.Name, rule.OnType))
		}

		for _, transform := range rule.FromAttrs.Transform {
			switch transform.Kind {
			case "stringify", "drop_if_null", "join", "default":
			default:
				report.Errors = append(report.Errors, fmt.Sprintf("projection rule %s: unknown transform %s", rule.Name, transform.Kind))
			}
		}

		if rule.To.CustomFields != nil {
			lintStripPrefix(rule, rule.To.CustomFields.Strategy, report)
		}
		if rule.To.LocalContext != nil {
			lintStripPrefix(rule, rule.To.LocalContext.Strategy, report)
		}

		if emittedTypes != nil && rule.OnType != "*" {
			if _, ok := emittedTypes[rule.OnType]; !ok {
				report.Errors = append(report.Errors, fmt.Sprintf(
					"projection rule %s references unknown type %s", rule.Name, rule.OnType))
			}
		}
	}
}

func lintStripPrefix(rule projection.Rule, strategy string, report *LintReport) {
	if strategy == "strip_prefix" && rule.FromAttrs.Prefix == nil {
		report.Errors = append(report.Errors, fmt.Sprintf(
			"projection rule %s (type %s): missing prefix for strip_prefix", rule.Name, rule.OnType))
	}
}
