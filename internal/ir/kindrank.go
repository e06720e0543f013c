// SPDX-License-Identifier: AGPL-3.0-or-later

package ir

import "strings"

// kindOrder imposes a stable dependency-aware ordering used by both the
// retort compiler's output sort and the planner's op sort (spec.md §4.2,
// §4.6): sites < devices < interfaces < prefixes < ip_addresses < others.
var kindOrder = []string{"site", "device", "interface", "prefix", "ip_address"}

// KindRank returns the dependency-ordering rank for a TypeName, based on
// the trailing dotted segment (e.g. "dcim.site" → "site"). Unrecognized
// kinds sort after all recognized ones, in lexicographic order among
// themselves.
func KindRank(typeName TypeName) int {
	leaf := leafSegment(string(typeName))
	for i, kind := range kindOrder {
		if leaf == kind {
			return i
		}
	}
	return len(kindOrder)
}

func leafSegment(typeName string) string {
	if i := strings.LastIndexByte(typeName, '.'); i >= 0 {
		return typeName[i+1:]
	}
	return typeName
}
