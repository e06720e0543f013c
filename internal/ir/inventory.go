// SPDX-License-Identifier: AGPL-3.0-or-later

package ir

// Inventory is the top-level IR document: schema plus objects. The
// inventory exclusively owns its objects; downstream layers clone.
type Inventory struct {
	Schema  Schema
	Objects []Object
}

// ByUid indexes the inventory's objects by Uid. Callers must not mutate the
// returned objects in place; clone first.
func (inv Inventory) ByUid() map[Uid]Object {
	out := make(map[Uid]Object, len(inv.Objects))
	for _, o := range inv.Objects {
		out[o.Uid] = o
	}
	return out
}

// ByTypeAndKey indexes the inventory's objects by (type, canonical key).
func (inv Inventory) ByTypeAndKey() map[TypeName]map[string]Object {
	out := map[TypeName]map[string]Object{}
	for _, o := range inv.Objects {
		byKey, ok := out[o.TypeName]
		if !ok {
			byKey = map[string]Object{}
			out[o.TypeName] = byKey
		}
		byKey[o.Key.Canonical()] = o
	}
	return out
}
