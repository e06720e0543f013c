// SPDX-License-Identifier: AGPL-3.0-or-later

// Package adapter defines the backend protocol (spec.md §4.7) and a
// registry for the concrete adapters under internal/adapters.
package adapter

import (
	"context"
	"errors"

	"crucible/internal/ir"
)

// ErrMissingReference is returned by ApplyOne when a Ref/ListRef value in
// the op's desired attrs names a Uid not yet present in the resolved map
// handed to it. It is the one recoverable error class in the apply path:
// the driver's fixpoint loop (internal/apply) defers the op and retries
// once more references resolve (spec.md §4.7/§4.8).
var ErrMissingReference = errors.New("missing referenced uid")

// Adapter is the narrow backend protocol every backend implementation
// satisfies.
type Adapter interface {
	// ID returns the unique identifier for this adapter (e.g. "netbox",
	// "nautobot", "peeringdb", "generic").
	ID() string

	// Observe returns the current backend state for the named types. An
	// empty types list means "enumerate everything the adapter knows
	// about". Parallelism across types is internal to the adapter.
	Observe(ctx context.Context, schema ir.Schema, types []ir.TypeName) (*ir.ObservedState, error)

	// ApplyOne attempts a single op, substituting every Ref/ListRef value
	// in the op's desired attrs with its entry in resolved. It returns
	// ErrMissingReference (wrapped) if a referenced Uid is absent from
	// resolved; the caller (internal/apply's fixpoint loop) owns retrying.
	ApplyOne(ctx context.Context, schema ir.Schema, op ir.Op, resolved map[ir.Uid]ir.BackendId) (ir.AppliedOp, error)
}

// StateUpdater is an optional capability: adapters that need a writeback
// hook between bootstrap and planning implement it (spec.md §4.7).
type StateUpdater interface {
	UpdateState(ctx context.Context, set func(typeName ir.TypeName, uid ir.Uid, backendID ir.BackendId) error) error
}

// CapabilityReporter is an optional capability: adapters that can report
// backend-native custom-field/tag support implement it, feeding strict-mode
// projection validation (spec.md §3.5, §4.3).
type CapabilityReporter interface {
	Capabilities(ctx context.Context, schema ir.Schema) (ir.BackendCapabilities, error)
}
