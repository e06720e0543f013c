// SPDX-License-Identifier: AGPL-3.0-or-later

package apply

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"crucible/internal/adapter"
	"crucible/internal/ir"
	"crucible/internal/statestore"
)

// refAdapter simulates a backend that assigns sequential integer ids on
// create and requires the "site" ref attr (when present) to already be
// resolved before it will accept a device create.
type refAdapter struct {
	nextID     uint64
	applyOrder []string
	deletes    []ir.Op
}

func (r *refAdapter) ID() string { return "ref-test" }

func (r *refAdapter) Observe(ctx context.Context, schema ir.Schema, types []ir.TypeName) (*ir.ObservedState, error) {
	return ir.NewObservedState(), nil
}

func (r *refAdapter) ApplyOne(ctx context.Context, schema ir.Schema, op ir.Op, resolved map[ir.Uid]ir.BackendId) (ir.AppliedOp, error) {
	if op.Kind == ir.OpDelete {
		r.deletes = append(r.deletes, op)
		return ir.AppliedOp{Uid: op.Uid, TypeName: op.TypeName}, nil
	}

	if op.Desired != nil {
		if siteRef, ok := op.Desired.Base.Attrs["site"]; ok {
			uid, err := ir.ParseUid(siteRef.(string))
			if err != nil {
				return ir.AppliedOp{}, fmt.Errorf("bad ref: %w", err)
			}
			if _, ok := resolved[uid]; !ok {
				return ir.AppliedOp{}, adapter.ErrMissingReference
			}
		}
	}

	r.nextID++
	id := ir.NewBackendIDInt(r.nextID)
	r.applyOrder = append(r.applyOrder, string(op.TypeName))
	return ir.AppliedOp{Uid: op.Uid, TypeName: op.TypeName, BackendId: &id}, nil
}

func newStore(t *testing.T) *statestore.Store {
	t.Helper()
	return statestore.New(filepath.Join(t.TempDir(), "state.json"))
}

// S3 — Reference fixpoint.
func TestRun_S3_ReferenceFixpoint(t *testing.T) {
	siteUID := ir.UUIDv5("dcim.site", "slug=fra1")
	deviceUID := ir.UUIDv5("dcim.device", "slug=core1")

	device := ir.ProjectedObject{Base: ir.Object{
		Uid: deviceUID, TypeName: "dcim.device", Key: ir.Key{"slug": "core1"},
		Attrs: ir.Attrs{"site": siteUID.String()},
	}}
	site := ir.ProjectedObject{Base: ir.Object{
		Uid: siteUID, TypeName: "dcim.site", Key: ir.Key{"slug": "fra1"},
		Attrs: ir.Attrs{"slug": "fra1"},
	}}

	// Device is listed first to prove the fixpoint loop, not op order,
	// produces the correct execution order.
	plan := ir.Plan{Ops: []ir.Op{
		{Kind: ir.OpCreate, Uid: deviceUID, TypeName: "dcim.device", Desired: &device},
		{Kind: ir.OpCreate, Uid: siteUID, TypeName: "dcim.site", Desired: &site},
	}}

	a := &refAdapter{}
	store := newStore(t)

	report, err := Run(context.Background(), a, ir.Schema{}, plan, store, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Applied) != 2 {
		t.Fatalf("expected 2 applied ops, got %d", len(report.Applied))
	}
	if len(a.applyOrder) != 2 || a.applyOrder[0] != "dcim.site" || a.applyOrder[1] != "dcim.device" {
		t.Fatalf("expected site applied before device, got order %v", a.applyOrder)
	}

	gotSiteID, ok, err := store.Get("dcim.site", siteUID)
	if err != nil || !ok || gotSiteID.Int() != 1 {
		t.Fatalf("expected site backend id 1 recorded, got %v ok=%v err=%v", gotSiteID, ok, err)
	}
	gotDeviceID, ok, err := store.Get("dcim.device", deviceUID)
	if err != nil || !ok || gotDeviceID.Int() != 2 {
		t.Fatalf("expected device backend id 2 recorded, got %v ok=%v err=%v", gotDeviceID, ok, err)
	}
}

// S4 — Delete guard.
func TestRun_S4_DeleteGuardRefusesBeforeAdapterCall(t *testing.T) {
	backendID := ir.NewBackendIDInt(1)
	plan := ir.Plan{Ops: []ir.Op{
		{Kind: ir.OpDelete, TypeName: "dcim.site", Key: ir.Key{"slug": "fra1"}, BackendId: &backendID},
	}}

	a := &refAdapter{}
	_, err := Run(context.Background(), a, ir.Schema{}, plan, newStore(t), false)
	if !errors.Is(err, ErrPlanGuard) {
		t.Fatalf("expected ErrPlanGuard, got %v", err)
	}
	if len(a.deletes) != 0 {
		t.Fatalf("expected the adapter to never be called, got %d delete calls", len(a.deletes))
	}
}

func TestRun_DeleteAllowedRemovesStateMapping(t *testing.T) {
	siteUID := ir.UUIDv5("dcim.site", "slug=fra1")
	backendID := ir.NewBackendIDInt(1)

	store := newStore(t)
	if err := store.Set("dcim.site", siteUID, backendID); err != nil {
		t.Fatalf("Set: %v", err)
	}

	plan := ir.Plan{Ops: []ir.Op{
		{Kind: ir.OpDelete, Uid: siteUID, TypeName: "dcim.site", Key: ir.Key{"slug": "fra1"}, BackendId: &backendID},
	}}

	a := &refAdapter{}
	report, err := Run(context.Background(), a, ir.Schema{}, plan, store, true)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Applied) != 1 {
		t.Fatalf("expected 1 applied delete, got %d", len(report.Applied))
	}

	_, ok, err := store.Get("dcim.site", siteUID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatalf("expected state mapping removed after delete")
	}
}

// Invariant 5 — reference integrity: after apply succeeds, the resolved
// map (reflected in the state store) contains every referenced target.
func TestRun_Invariant5_ReferenceIntegrityAfterApply(t *testing.T) {
	siteUID := ir.UUIDv5("dcim.site", "slug=fra1")
	deviceUID := ir.UUIDv5("dcim.device", "slug=core1")

	device := ir.ProjectedObject{Base: ir.Object{
		Uid: deviceUID, TypeName: "dcim.device", Key: ir.Key{"slug": "core1"},
		Attrs: ir.Attrs{"site": siteUID.String()},
	}}
	site := ir.ProjectedObject{Base: ir.Object{
		Uid: siteUID, TypeName: "dcim.site", Key: ir.Key{"slug": "fra1"},
	}}
	plan := ir.Plan{Ops: []ir.Op{
		{Kind: ir.OpCreate, Uid: siteUID, TypeName: "dcim.site", Desired: &site},
		{Kind: ir.OpCreate, Uid: deviceUID, TypeName: "dcim.device", Desired: &device},
	}}

	store := newStore(t)
	if _, err := Run(context.Background(), &refAdapter{}, ir.Schema{}, plan, store, false); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, ok, err := store.Get("dcim.site", siteUID); err != nil || !ok {
		t.Fatalf("expected site to resolve in the state store, ok=%v err=%v", ok, err)
	}
}

func TestRun_UnresolvedReferencesIsFatal(t *testing.T) {
	unknownUID := ir.UUIDv5("dcim.site", "slug=missing")
	deviceUID := ir.UUIDv5("dcim.device", "slug=core1")
	device := ir.ProjectedObject{Base: ir.Object{
		Uid: deviceUID, TypeName: "dcim.device", Key: ir.Key{"slug": "core1"},
		Attrs: ir.Attrs{"site": unknownUID.String()},
	}}
	plan := ir.Plan{Ops: []ir.Op{
		{Kind: ir.OpCreate, Uid: deviceUID, TypeName: "dcim.device", Desired: &device},
	}}

	_, err := Run(context.Background(), &refAdapter{}, ir.Schema{}, plan, newStore(t), false)
	if !errors.Is(err, ErrUnresolvedReferences) {
		t.Fatalf("expected ErrUnresolvedReferences, got %v", err)
	}
}
