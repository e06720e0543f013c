// SPDX-License-Identifier: AGPL-3.0-or-later

package planner

import "crucible/internal/ir"

// sortCreatesUpdates orders by (kindRank(type), weight, type, canonical-key)
// where weight is 0 for creates, 1 for updates (spec.md §4.6 "Ordering").
func sortCreatesUpdates(ops []weightedOp) {
	for i := 1; i < len(ops); i++ {
		for j := i; j > 0 && lessWeighted(ops[j], ops[j-1]); j-- {
			ops[j], ops[j-1] = ops[j-1], ops[j]
		}
	}
}

func lessWeighted(a, b weightedOp) bool {
	ra, rb := ir.KindRank(a.op.TypeName), ir.KindRank(b.op.TypeName)
	if ra != rb {
		return ra < rb
	}
	if a.weight != b.weight {
		return a.weight < b.weight
	}
	if a.op.TypeName != b.op.TypeName {
		return a.op.TypeName < b.op.TypeName
	}
	return opKey(a.op) < opKey(b.op)
}

// sortDeletes orders deletes in reverse dependency order within the plan:
// the inverse of kindRank, so e.g. interfaces are deleted before the sites
// that contain them.
func sortDeletes(ops []ir.Op) {
	for i := 1; i < len(ops); i++ {
		for j := i; j > 0 && lessDelete(ops[j], ops[j-1]); j-- {
			ops[j], ops[j-1] = ops[j-1], ops[j]
		}
	}
}

func lessDelete(a, b ir.Op) bool {
	ra, rb := ir.KindRank(a.TypeName), ir.KindRank(b.TypeName)
	if ra != rb {
		return ra > rb
	}
	if a.TypeName != b.TypeName {
		return a.TypeName > b.TypeName
	}
	return opKey(a) < opKey(b)
}

func opKey(op ir.Op) string {
	if op.Desired != nil {
		return op.Desired.Base.Key.Canonical()
	}
	return op.Key.Canonical()
}
