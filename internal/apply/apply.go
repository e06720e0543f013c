// SPDX-License-Identifier: AGPL-3.0-or-later

// Package apply drives a Plan against an Adapter: it refuses unguarded
// deletes, reorders ops, runs the reference-resolution fixpoint loop, and
// writes the outcome back to the state store (spec.md §4.7/§4.8).
package apply

import (
	"context"
	"errors"
	"fmt"

	"crucible/internal/adapter"
	"crucible/internal/ir"
	"crucible/internal/statestore"
)

// ErrPlanGuard is returned when a plan contains Delete ops but allowDelete
// is false; the driver refuses before ever calling the adapter.
var ErrPlanGuard = errors.New("plan contains deletes but allow_delete is false")

// ErrUnresolvedReferences is returned when the fixpoint loop stalls: a
// round made no progress and the remaining ops form an unsatisfiable
// reference graph.
var ErrUnresolvedReferences = errors.New("unresolved references")

// Run applies plan via a, updating state afterward. allowDelete must be
// true if plan contains any Delete op, or Run refuses with ErrPlanGuard
// before the adapter is invoked.
func Run(ctx context.Context, a adapter.Adapter, schema ir.Schema, plan ir.Plan, state *statestore.Store, allowDelete bool) (ir.ApplyReport, error) {
	creates, updates, deletes := partition(plan.Ops)
	if len(deletes) > 0 && !allowDelete {
		return ir.ApplyReport{}, ErrPlanGuard
	}

	resolved, err := seedResolved(state)
	if err != nil {
		return ir.ApplyReport{}, fmt.Errorf("seeding resolved references: %w", err)
	}

	var report ir.ApplyReport

	createUpdateApplied, err := runFixpoint(ctx, a, schema, append(creates, updates...), resolved)
	if err != nil {
		return ir.ApplyReport{}, err
	}
	report.Applied = append(report.Applied, createUpdateApplied...)
	if err := writebackCreatesUpdates(state, createUpdateApplied); err != nil {
		return report, fmt.Errorf("updating state store: %w", err)
	}

	var deleteApplied []ir.AppliedOp
	for _, op := range deletes {
		appliedOp, err := a.ApplyOne(ctx, schema, op, resolved)
		if err != nil {
			return report, fmt.Errorf("deleting %s %s: %w", op.TypeName, op.Key.Canonical(), err)
		}
		deleteApplied = append(deleteApplied, appliedOp)
	}
	report.Applied = append(report.Applied, deleteApplied...)
	if err := writebackDeletes(state, deleteApplied); err != nil {
		return report, fmt.Errorf("updating state store: %w", err)
	}

	return report, nil
}

func partition(ops []ir.Op) (creates, updates, deletes []ir.Op) {
	for _, op := range ops {
		switch op.Kind {
		case ir.OpCreate:
			creates = append(creates, op)
		case ir.OpUpdate:
			updates = append(updates, op)
		case ir.OpDelete:
			deletes = append(deletes, op)
		}
	}
	return creates, updates, deletes
}

func seedResolved(state *statestore.Store) (map[ir.Uid]ir.BackendId, error) {
	resolved := map[ir.Uid]ir.BackendId{}
	if state == nil {
		return resolved, nil
	}
	mappings, err := state.AllMappings()
	if err != nil {
		return nil, err
	}
	for _, m := range mappings {
		resolved[m.Uid] = m.BackendId
	}
	return resolved, nil
}

// writebackCreatesUpdates records each create/update's backend id (spec.md
// §4.7 step 4, the "Some" branch). A create/update never reports a nil
// backend id on success; this is defensive, not expected.
func writebackCreatesUpdates(state *statestore.Store, applied []ir.AppliedOp) error {
	if state == nil {
		return nil
	}
	for _, a := range applied {
		if a.BackendId == nil {
			continue
		}
		if err := state.Set(a.TypeName, a.Uid, *a.BackendId); err != nil {
			return err
		}
	}
	return nil
}

// writebackDeletes removes the state store mapping for each applied delete
// (spec.md §4.7 step 4, the "None" + delete branch).
func writebackDeletes(state *statestore.Store, applied []ir.AppliedOp) error {
	if state == nil {
		return nil
	}
	for _, a := range applied {
		if err := state.Remove(a.TypeName, a.Uid); err != nil {
			return err
		}
	}
	return nil
}
