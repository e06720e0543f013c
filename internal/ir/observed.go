// SPDX-License-Identifier: AGPL-3.0-or-later

package ir

// ObservedObject is a single backend-reported record, re-expressed in IR
// shape for diffing against desired state.
type ObservedObject struct {
	TypeName   TypeName
	Key        Key
	Attrs      Attrs
	Projection ProjectionData
	BackendId  *BackendId
}

// observedIndexKey identifies an observed object by (type, backend id).
type observedIndexKey struct {
	TypeName TypeName
	Backend  string
}

// BackendCapabilities reports what a backend natively supports for
// projection (spec.md §3.5).
type BackendCapabilities struct {
	CustomFieldsByType map[TypeName][]string
	Tags               []string
}

// ObservedState indexes observed objects by (type, backend_id) and by
// (type, canonical-key-string), and carries the backend's capabilities.
type ObservedState struct {
	Capabilities BackendCapabilities

	byBackendID map[observedIndexKey]ObservedObject
	byKey       map[TypeName]map[string]ObservedObject
	all         []ObservedObject
}

// NewObservedState returns an empty ObservedState ready for Add calls.
func NewObservedState() *ObservedState {
	return &ObservedState{
		byBackendID: map[observedIndexKey]ObservedObject{},
		byKey:       map[TypeName]map[string]ObservedObject{},
	}
}

// Add indexes one observed object.
func (s *ObservedState) Add(o ObservedObject) {
	s.all = append(s.all, o)
	if o.BackendId != nil {
		s.byBackendID[observedIndexKey{TypeName: o.TypeName, Backend: o.BackendId.String()}] = o
	}
	byKey, ok := s.byKey[o.TypeName]
	if !ok {
		byKey = map[string]ObservedObject{}
		s.byKey[o.TypeName] = byKey
	}
	byKey[o.Key.Canonical()] = o
}

// ByBackendID looks up an observed object by (type, backend id).
func (s *ObservedState) ByBackendID(typeName TypeName, id BackendId) (ObservedObject, bool) {
	o, ok := s.byBackendID[observedIndexKey{TypeName: typeName, Backend: id.String()}]
	return o, ok
}

// ByKey looks up an observed object by (type, canonical key).
func (s *ObservedState) ByKey(typeName TypeName, canonicalKey string) (ObservedObject, bool) {
	byKey, ok := s.byKey[typeName]
	if !ok {
		return ObservedObject{}, false
	}
	o, ok := byKey[canonicalKey]
	return o, ok
}

// All returns every observed object, in the order they were added.
func (s *ObservedState) All() []ObservedObject {
	return s.all
}
