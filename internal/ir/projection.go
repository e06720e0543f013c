// SPDX-License-Identifier: AGPL-3.0-or-later

package ir

// ProjectionData holds the backend-side metadata derived from a subset of
// an object's attrs. All three fields are optional. A nil CustomFields
// means "no custom_fields rule touched this object"; for tags and
// local_context, HasTags and HasContext record whether a rule touched the
// object (on observed objects: whether the backend reported the field), so
// a present-but-empty value is distinct from an absent one (spec.md §3.4).
type ProjectionData struct {
	CustomFields map[string]any `json:"custom_fields,omitempty"`
	Tags         []string       `json:"tags,omitempty"`
	HasTags      bool           `json:"-"`
	LocalContext any            `json:"local_context,omitempty"`
	HasContext   bool           `json:"-"`
}

// ProjectedObject pairs a base Object with its derived ProjectionData and
// the set of attribute keys that fed projection rules.
type ProjectedObject struct {
	Base             Object
	Projection       ProjectionData
	ProjectionInputs map[string]struct{}
}

// ProjectedInventory is the output of the projection layer: schema plus
// projected objects.
type ProjectedInventory struct {
	Schema  Schema
	Objects []ProjectedObject
}
