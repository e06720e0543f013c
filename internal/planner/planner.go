// SPDX-License-Identifier: AGPL-3.0-or-later

// Package planner computes the ordered set of create/update/delete
// operations needed to reconcile observed backend state with a desired,
// projected inventory (spec.md §4.6).
package planner

import (
	"crucible/internal/ir"
	"crucible/internal/statestore"
)

// Plan matches every desired object against observed backend state, diffs
// matched pairs, and emits Delete ops for unmatched observed objects when
// allowDelete is set.
func Plan(desired ir.ProjectedInventory, observed *ir.ObservedState, state *statestore.Store, allowDelete bool) (ir.Plan, error) {
	matchedBackendIDs := map[string]struct{}{}
	var ops []weightedOp

	for i := range desired.Objects {
		obj := desired.Objects[i]
		observedObj, matched, err := match(obj.Base, observed, state)
		if err != nil {
			return ir.Plan{}, err
		}

		if !matched {
			ops = append(ops, weightedOp{weight: 0, op: ir.Op{
				Kind:     ir.OpCreate,
				Uid:      obj.Base.Uid,
				TypeName: obj.Base.TypeName,
				Desired:  &obj,
			}})
			continue
		}

		if observedObj.BackendId != nil {
			matchedBackendIDs[indexKey(obj.Base.TypeName, *observedObj.BackendId)] = struct{}{}
		}

		changes := diff(obj, observedObj)
		if len(changes) == 0 {
			continue
		}
		ops = append(ops, weightedOp{weight: 1, op: ir.Op{
			Kind:      ir.OpUpdate,
			Uid:       obj.Base.Uid,
			TypeName:  obj.Base.TypeName,
			Desired:   &obj,
			Changes:   changes,
			BackendId: observedObj.BackendId,
		}})
	}

	var deleteOps []ir.Op
	if allowDelete {
		for _, o := range observed.All() {
			if o.BackendId != nil {
				if _, ok := matchedBackendIDs[indexKey(o.TypeName, *o.BackendId)]; ok {
					continue
				}
			}
			uid, _ := reverseLookup(state, o.TypeName, o.BackendId)
			deleteOps = append(deleteOps, ir.Op{
				Kind:      ir.OpDelete,
				Uid:       uid,
				TypeName:  o.TypeName,
				Key:       o.Key,
				BackendId: o.BackendId,
			})
		}
	}

	sortCreatesUpdates(ops)
	sortDeletes(deleteOps)

	all := make([]ir.Op, 0, len(ops)+len(deleteOps))
	for _, wo := range ops {
		all = append(all, wo.op)
	}
	all = append(all, deleteOps...)

	return ir.Plan{Schema: desired.Schema, Ops: all}, nil
}

// match implements the two-stage matching rule: state-store backend-id
// match first, then observed-by-key.
func match(obj ir.Object, observed *ir.ObservedState, state *statestore.Store) (ir.ObservedObject, bool, error) {
	if state != nil {
		if backendID, ok, err := state.Get(obj.TypeName, obj.Uid); err != nil {
			return ir.ObservedObject{}, false, err
		} else if ok {
			if o, ok := observed.ByBackendID(obj.TypeName, backendID); ok {
				return o, true, nil
			}
		}
	}
	if o, ok := observed.ByKey(obj.TypeName, obj.Key.Canonical()); ok {
		return o, true, nil
	}
	return ir.ObservedObject{}, false, nil
}

func reverseLookup(state *statestore.Store, typeName ir.TypeName, backendID *ir.BackendId) (ir.Uid, bool) {
	if state == nil || backendID == nil {
		return ir.Uid{}, false
	}
	all, err := state.AllMappings()
	if err != nil {
		return ir.Uid{}, false
	}
	for _, m := range all {
		if m.TypeName == typeName && m.BackendId.Equal(*backendID) {
			return m.Uid, true
		}
	}
	return ir.Uid{}, false
}

func indexKey(typeName ir.TypeName, id ir.BackendId) string {
	return string(typeName) + "\x00" + id.String()
}

type weightedOp struct {
	weight int
	op     ir.Op
}
