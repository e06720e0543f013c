// SPDX-License-Identifier: AGPL-3.0-or-later

package apply

import (
	"context"
	"errors"
	"fmt"

	"crucible/internal/adapter"
	"crucible/internal/ir"
)

// runFixpoint executes pending creates/updates in rounds, substituting
// resolved references each round, until every op has applied or the graph
// proves unsatisfiable (spec.md §4.7 "Reference-resolution fixpoint").
func runFixpoint(ctx context.Context, a adapter.Adapter, schema ir.Schema, pending []ir.Op, resolved map[ir.Uid]ir.BackendId) ([]ir.AppliedOp, error) {
	var applied []ir.AppliedOp

	for len(pending) > 0 {
		var next []ir.Op
		progressed := false

		for _, op := range pending {
			appliedOp, err := a.ApplyOne(ctx, schema, op, resolved)
			if err != nil {
				if errors.Is(err, adapter.ErrMissingReference) {
					next = append(next, op)
					continue
				}
				return applied, fmt.Errorf("applying %s %s: %w", op.TypeName, op.Uid, err)
			}
			progressed = true
			applied = append(applied, appliedOp)
			if appliedOp.BackendId != nil {
				resolved[appliedOp.Uid] = *appliedOp.BackendId
			}
		}

		if !progressed && len(next) > 0 {
			return applied, fmt.Errorf("%w: %d op(s) could not resolve their references", ErrUnresolvedReferences, len(next))
		}
		pending = next
	}

	return applied, nil
}
