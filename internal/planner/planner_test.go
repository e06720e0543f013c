// SPDX-License-Identifier: AGPL-3.0-or-later

package planner

import (
	"path/filepath"
	"testing"

	"crucible/internal/ir"
	"crucible/internal/statestore"
)

func newStore(t *testing.T) *statestore.Store {
	t.Helper()
	return statestore.New(filepath.Join(t.TempDir(), "state.json"))
}

func desiredSite(attrs ir.Attrs) ir.ProjectedObject {
	return ir.ProjectedObject{
		Base: ir.Object{
			Uid:      ir.UUIDv5("dcim.site", "slug=fra1"),
			TypeName: "dcim.site",
			Key:      ir.Key{"slug": "fra1"},
			Attrs:    attrs,
		},
		ProjectionInputs: map[string]struct{}{},
	}
}

// S1 — Create a single site.
func TestPlan_S1_CreateSingleSite(t *testing.T) {
	desired := ir.ProjectedInventory{Objects: []ir.ProjectedObject{desiredSite(ir.Attrs{"name": "FRA1", "slug": "fra1"})}}
	observed := ir.NewObservedState()

	plan, err := Plan(desired, observed, newStore(t), false)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Ops) != 1 {
		t.Fatalf("expected 1 op, got %d", len(plan.Ops))
	}
	if plan.Ops[0].Kind != ir.OpCreate {
		t.Fatalf("expected Create, got %v", plan.Ops[0].Kind)
	}
	if plan.Ops[0].TypeName != "dcim.site" {
		t.Fatalf("expected dcim.site, got %v", plan.Ops[0].TypeName)
	}
}

// S2 — Diff on one attribute.
func TestPlan_S2_DiffOnOneAttribute(t *testing.T) {
	desired := ir.ProjectedInventory{Objects: []ir.ProjectedObject{desiredSite(ir.Attrs{"name": "FRA1", "slug": "fra1"})}}
	backendID := ir.NewBackendIDInt(7)
	observed := ir.NewObservedState()
	observed.Add(ir.ObservedObject{
		TypeName:  "dcim.site",
		Key:       ir.Key{"slug": "fra1"},
		Attrs:     ir.Attrs{"name": "OLD", "slug": "fra1"},
		BackendId: &backendID,
	})

	store := newStore(t)
	if err := store.Set("dcim.site", ir.UUIDv5("dcim.site", "slug=fra1"), backendID); err != nil {
		t.Fatalf("Set: %v", err)
	}

	plan, err := Plan(desired, observed, store, false)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Ops) != 1 {
		t.Fatalf("expected 1 op, got %d", len(plan.Ops))
	}
	op := plan.Ops[0]
	if op.Kind != ir.OpUpdate {
		t.Fatalf("expected Update, got %v", op.Kind)
	}
	if len(op.Changes) != 1 || op.Changes[0].Field != "name" || op.Changes[0].From != "OLD" || op.Changes[0].To != "FRA1" {
		t.Fatalf("expected single name change OLD->FRA1, got %v", op.Changes)
	}
}

// S4 — Delete guard: planner still emits the Delete; refusal is the apply
// driver's job (covered in internal/apply), not the planner's.
func TestPlan_S4_DeleteEmittedWhenAllowed(t *testing.T) {
	observed := ir.NewObservedState()
	backendID := ir.NewBackendIDInt(1)
	observed.Add(ir.ObservedObject{TypeName: "dcim.site", Key: ir.Key{"slug": "fra1"}, BackendId: &backendID})

	plan, err := Plan(ir.ProjectedInventory{}, observed, newStore(t), true)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Ops) != 1 || plan.Ops[0].Kind != ir.OpDelete {
		t.Fatalf("expected 1 Delete op, got %v", plan.Ops)
	}
}

func TestPlan_NoDeleteEmittedWhenNotAllowed(t *testing.T) {
	observed := ir.NewObservedState()
	backendID := ir.NewBackendIDInt(1)
	observed.Add(ir.ObservedObject{TypeName: "dcim.site", Key: ir.Key{"slug": "fra1"}, BackendId: &backendID})

	plan, err := Plan(ir.ProjectedInventory{}, observed, newStore(t), false)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Ops) != 0 {
		t.Fatalf("expected no ops when allow_delete is false, got %v", plan.Ops)
	}
}

// S5 — Bootstrap by key: observed-by-key match with no prior state entry
// produces no diff when attrs already agree.
func TestPlan_S5_BootstrapByKeyProducesNoOp(t *testing.T) {
	desired := ir.ProjectedInventory{Objects: []ir.ProjectedObject{desiredSite(ir.Attrs{"slug": "fra1"})}}
	backendID := ir.NewBackendIDInt(7)
	observed := ir.NewObservedState()
	observed.Add(ir.ObservedObject{
		TypeName:  "dcim.site",
		Key:       ir.Key{"slug": "fra1"},
		Attrs:     ir.Attrs{"slug": "fra1"},
		BackendId: &backendID,
	})

	plan, err := Plan(desired, observed, newStore(t), false)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Ops) != 0 {
		t.Fatalf("expected matched-by-key object with identical attrs to produce no op, got %v", plan.Ops)
	}
}

// Invariant 2 — plan determinism: identical inputs produce identical
// ordering across repeated calls.
func TestPlan_Invariant2_Determinism(t *testing.T) {
	desired := ir.ProjectedInventory{Objects: []ir.ProjectedObject{
		desiredSite(ir.Attrs{"slug": "fra1"}),
		{Base: ir.Object{Uid: ir.UUIDv5("dcim.device", "slug=core1"), TypeName: "dcim.device", Key: ir.Key{"slug": "core1"}, Attrs: ir.Attrs{"slug": "core1"}}, ProjectionInputs: map[string]struct{}{}},
	}}
	observed := ir.NewObservedState()

	first, err := Plan(desired, observed, newStore(t), false)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	second, err := Plan(desired, observed, newStore(t), false)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(first.Ops) != len(second.Ops) {
		t.Fatalf("expected identical op counts, got %d vs %d", len(first.Ops), len(second.Ops))
	}
	for i := range first.Ops {
		if first.Ops[i].TypeName != second.Ops[i].TypeName || first.Ops[i].Uid != second.Ops[i].Uid {
			t.Fatalf("expected identical op order at index %d, got %v vs %v", i, first.Ops[i], second.Ops[i])
		}
	}
	if first.Ops[0].TypeName != "dcim.site" {
		t.Fatalf("expected site to rank before device, got %v first", first.Ops[0].TypeName)
	}
}

// Invariant 3 — idempotence: planning again against the same desired
// inputs once the prior plan's effect is reflected in observed state
// yields an empty op list.
func TestPlan_Invariant3_Idempotence(t *testing.T) {
	desired := ir.ProjectedInventory{Objects: []ir.ProjectedObject{desiredSite(ir.Attrs{"name": "FRA1", "slug": "fra1"})}}
	observed := ir.NewObservedState()

	store := newStore(t)
	first, err := Plan(desired, observed, store, false)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(first.Ops) != 1 {
		t.Fatalf("expected initial create, got %v", first.Ops)
	}

	backendID := ir.NewBackendIDInt(42)
	if err := store.Set("dcim.site", ir.UUIDv5("dcim.site", "slug=fra1"), backendID); err != nil {
		t.Fatalf("Set: %v", err)
	}
	observed.Add(ir.ObservedObject{
		TypeName:  "dcim.site",
		Key:       ir.Key{"slug": "fra1"},
		Attrs:     ir.Attrs{"name": "FRA1", "slug": "fra1"},
		BackendId: &backendID,
	})

	second, err := Plan(desired, observed, store, false)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(second.Ops) != 0 {
		t.Fatalf("expected empty plan after applying the first, got %v", second.Ops)
	}
}

// Invariant 3 — idempotence: a type with no governing tags projection rule
// (desired.Projection.HasTags false) must not diff against native tags a
// backend happens to report on the observed side.
func TestPlan_Invariant3_IdempotenceIgnoresUngovernedNativeTags(t *testing.T) {
	desired := ir.ProjectedInventory{Objects: []ir.ProjectedObject{desiredSite(ir.Attrs{"name": "FRA1", "slug": "fra1"})}}
	observed := ir.NewObservedState()

	store := newStore(t)
	backendID := ir.NewBackendIDInt(42)
	if err := store.Set("dcim.site", ir.UUIDv5("dcim.site", "slug=fra1"), backendID); err != nil {
		t.Fatalf("Set: %v", err)
	}
	observed.Add(ir.ObservedObject{
		TypeName:  "dcim.site",
		Key:       ir.Key{"slug": "fra1"},
		Attrs:     ir.Attrs{"name": "FRA1", "slug": "fra1"},
		Projection: ir.ProjectionData{Tags: []string{"datacenter"}, HasTags: true},
		BackendId: &backendID,
	})

	plan, err := Plan(desired, observed, store, false)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Ops) != 0 {
		t.Fatalf("expected empty plan: no rule governs tags for this type, so native observed tags must not diff, got %v", plan.Ops)
	}
}

func TestPlan_ProjectionInputsExcludedFromAttrDiff(t *testing.T) {
	desired := ir.ProjectedInventory{Objects: []ir.ProjectedObject{
		{
			Base: ir.Object{
				Uid:      ir.UUIDv5("dcim.site", "slug=fra1"),
				TypeName: "dcim.site",
				Key:      ir.Key{"slug": "fra1"},
				Attrs:    ir.Attrs{"slug": "fra1", "model.fabric": "clos"},
			},
			ProjectionInputs: map[string]struct{}{"model.fabric": {}},
		},
	}}
	backendID := ir.NewBackendIDInt(1)
	observed := ir.NewObservedState()
	observed.Add(ir.ObservedObject{
		TypeName:  "dcim.site",
		Key:       ir.Key{"slug": "fra1"},
		Attrs:     ir.Attrs{"slug": "fra1"},
		BackendId: &backendID,
	})

	plan, err := Plan(desired, observed, newStore(t), false)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Ops) != 0 {
		t.Fatalf("expected model.fabric (a projection input) to be excluded from the attrs diff, got %v", plan.Ops)
	}
}
