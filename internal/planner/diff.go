// SPDX-License-Identifier: AGPL-3.0-or-later

package planner

import (
	"encoding/json"
	"reflect"
	"sort"

	"crucible/internal/ir"
)

// diff computes the FieldChange list between a desired projected object and
// its matched observed counterpart (spec.md §4.6 "Diff").
func diff(desired ir.ProjectedObject, observed ir.ObservedObject) []ir.FieldChange {
	var changes []ir.FieldChange

	for _, name := range sortedAttrNames(desired.Base.Attrs) {
		if _, isProjectionInput := desired.ProjectionInputs[name]; isProjectionInput {
			continue
		}
		from, to := observed.Attrs[name], desired.Base.Attrs[name]
		if !valueEqual(from, to) {
			changes = append(changes, ir.FieldChange{Field: name, From: from, To: to})
		}
	}
	// An attr removed entirely on the desired side but present (non-null)
	// observed must also surface, unless it was only ever a projection input.
	for _, name := range sortedAttrNames(observed.Attrs) {
		if _, stillDesired := desired.Base.Attrs[name]; stillDesired {
			continue
		}
		if _, isProjectionInput := desired.ProjectionInputs[name]; isProjectionInput {
			continue
		}
		if observed.Attrs[name] == nil {
			continue
		}
		changes = append(changes, ir.FieldChange{Field: name, From: observed.Attrs[name], To: nil})
	}

	if cf := diffCustomFields(desired.Projection.CustomFields, observed.Projection.CustomFields); cf != nil {
		changes = append(changes, *cf)
	}
	if tg := diffTags(desired.Projection, observed.Projection); tg != nil {
		changes = append(changes, *tg)
	}
	if lc := diffLocalContext(desired.Projection, observed.Projection); lc != nil {
		changes = append(changes, *lc)
	}

	return changes
}

// valueEqual treats a null on one side as equal to absence on the other.
func valueEqual(a, b any) bool {
	if a == nil && b == nil {
		return true
	}
	return reflect.DeepEqual(a, b)
}

func sortedAttrNames(attrs ir.Attrs) []string {
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// diffCustomFields compares by key intersection limited to desired-side
// keys; unknown observed custom fields are ignored.
func diffCustomFields(desired, observedFields map[string]any) *ir.FieldChange {
	if len(desired) == 0 {
		return nil
	}
	for name, wantVal := range desired {
		if !valueEqual(observedFields[name], wantVal) {
			return &ir.FieldChange{Field: "custom_fields", From: observedFields, To: desired}
		}
	}
	return nil
}

// diffTags compares tags only when the desired side carries a tags
// projection (HasTags), the same gate diffLocalContext applies to
// local_context: an object type no rule projects tags for must never diff
// against native tags a backend happens to report (observed HasTags is set
// whenever the response carries a tags field), or apply would forever
// re-emit an Update stripping tags it doesn't own (spec.md §8 invariant 3).
func diffTags(desired, observed ir.ProjectionData) *ir.FieldChange {
	if !desired.HasTags {
		return nil
	}
	if setEqual(desired.Tags, observed.Tags) {
		return nil
	}
	return &ir.FieldChange{Field: "tags", From: observed.Tags, To: desired.Tags}
}

func setEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as, bs := append([]string{}, a...), append([]string{}, b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

// diffLocalContext compares the whole JSON value. Only compared when the
// desired side carries a local_context (HasContext); the planner never
// invents a diff for a type no rule touches.
func diffLocalContext(desired, observed ir.ProjectionData) *ir.FieldChange {
	if !desired.HasContext {
		return nil
	}
	if jsonEqual(desired.LocalContext, observed.LocalContext) {
		return nil
	}
	return &ir.FieldChange{Field: "local_context", From: observed.LocalContext, To: desired.LocalContext}
}

func jsonEqual(a, b any) bool {
	aj, errA := json.Marshal(a)
	bj, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a, b)
	}
	return string(aj) == string(bj)
}
