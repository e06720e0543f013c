// SPDX-License-Identifier: AGPL-3.0-or-later

package ir

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// BackendId is a tagged union over the two shapes a backend may assign:
// an integer primary key, or an opaque string identifier.
type BackendId struct {
	isString bool
	intVal   uint64
	strVal   string
}

// NewBackendIDInt constructs an integer-valued BackendId.
func NewBackendIDInt(v uint64) BackendId {
	return BackendId{intVal: v}
}

// NewBackendIDString constructs a string-valued BackendId.
func NewBackendIDString(v string) BackendId {
	return BackendId{isString: true, strVal: v}
}

// IsString reports whether this BackendId holds a string value.
func (b BackendId) IsString() bool { return b.isString }

// Int returns the integer value; only meaningful when !IsString().
func (b BackendId) Int() uint64 { return b.intVal }

// Str returns the string value; only meaningful when IsString().
func (b BackendId) Str() string { return b.strVal }

// String renders the BackendId for logging and the canonical key form.
func (b BackendId) String() string {
	if b.isString {
		return b.strVal
	}
	return strconv.FormatUint(b.intVal, 10)
}

// Equal compares two BackendId values by tag and value.
func (b BackendId) Equal(o BackendId) bool {
	return b.isString == o.isString && b.intVal == o.intVal && b.strVal == o.strVal
}

// MarshalJSON emits the integer or string form directly, untagged.
func (b BackendId) MarshalJSON() ([]byte, error) {
	if b.isString {
		return json.Marshal(b.strVal)
	}
	return json.Marshal(b.intVal)
}

// UnmarshalJSON accepts either a JSON number or a JSON string.
func (b *BackendId) UnmarshalJSON(data []byte) error {
	var asInt uint64
	if err := json.Unmarshal(data, &asInt); err == nil {
		*b = BackendId{intVal: asInt}
		return nil
	}
	var asStr string
	if err := json.Unmarshal(data, &asStr); err == nil {
		*b = BackendId{isString: true, strVal: asStr}
		return nil
	}
	return fmt.Errorf("backend id: %q is neither a number nor a string", string(data))
}
