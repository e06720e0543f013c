// SPDX-License-Identifier: AGPL-3.0-or-later

package netbox

import "strings"

// pluralize and singularize cover the regular English forms NetBox model
// names use for their collection endpoints (site/sites, ipaddress/
// ipaddresses, vrf/vrfs). Irregular models are not in scope.
func pluralize(model string) string {
	switch {
	case strings.HasSuffix(model, "s"), strings.HasSuffix(model, "x"),
		strings.HasSuffix(model, "z"), strings.HasSuffix(model, "ch"),
		strings.HasSuffix(model, "sh"):
		return model + "es"
	case strings.HasSuffix(model, "y") && !isVowel(model[len(model)-2]):
		return model[:len(model)-1] + "ies"
	default:
		return model + "s"
	}
}

func singularize(plural string) string {
	switch {
	case strings.HasSuffix(plural, "ies"):
		return plural[:len(plural)-3] + "y"
	case strings.HasSuffix(plural, "ses"), strings.HasSuffix(plural, "xes"),
		strings.HasSuffix(plural, "zes"), strings.HasSuffix(plural, "ches"),
		strings.HasSuffix(plural, "shes"):
		return plural[:len(plural)-2]
	case strings.HasSuffix(plural, "s"):
		return plural[:len(plural)-1]
	default:
		return plural
	}
}

func isVowel(b byte) bool {
	switch b {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	default:
		return false
	}
}
