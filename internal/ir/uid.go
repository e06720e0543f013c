// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ir defines the intermediate representation: typed schema, objects,
// identifiers, and the inventory that the loader, retort compiler, projection
// layer, validator, and planner all operate over.
package ir

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// namespace is the fixed project namespace UUIDv5 derivation is rooted at.
// Changing this value would change every derived Uid, so it is frozen.
var namespace = uuid.MustParse("c3a36e0a-3b8f-5b1e-9e2e-6c6a6f8d9b10")

// Uid is a stable 128-bit identifier for an IR object.
type Uid uuid.UUID

// String renders the canonical dashed hex form.
func (u Uid) String() string {
	return uuid.UUID(u).String()
}

// IsZero reports whether u is the zero-value Uid.
func (u Uid) IsZero() bool {
	return u == Uid{}
}

// MarshalJSON renders a Uid as its dashed hex string form. Uid does not
// inherit uuid.UUID's own text marshaling (Go method sets aren't carried
// across a defined type), so this is written out explicitly.
func (u Uid) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

// UnmarshalJSON parses a Uid from its dashed hex string form.
func (u *Uid) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("uid: %w", err)
	}
	parsed, err := ParseUid(s)
	if err != nil {
		return fmt.Errorf("uid: %w", err)
	}
	*u = parsed
	return nil
}

// ParseUid parses a UUID string into a Uid.
func ParseUid(s string) (Uid, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return Uid{}, err
	}
	return Uid(id), nil
}

// UUIDv5 derives a deterministic Uid from (typeName, stableKey) under the
// fixed project namespace. Equal inputs always produce bit-identical output
// across runs and platforms (spec invariant 1).
func UUIDv5(typeName, stableKey string) Uid {
	return Uid(uuid.NewSHA1(namespace, []byte(typeName+"\x00"+stableKey)))
}
