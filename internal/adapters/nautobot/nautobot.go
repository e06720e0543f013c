// SPDX-License-Identifier: AGPL-3.0-or-later

// Package nautobot adapts Nautobot, an API-compatible NetBox fork: its
// custom-field/tag discovery, projection-patch emission, and embedded
// summary object handling are identical to NetBox's, so this package is a
// thin composition over internal/adapters/netbox rather than a
// reimplementation (spec.md §4.7 "Specialised adapters").
package nautobot

import (
	"net/http"

	"crucible/internal/adapters/generic"
	"crucible/internal/adapters/netbox"
)

// Adapter is a Nautobot backend, reusing NetBox's capability discovery,
// projection-patch, and URL-to-type resolution logic verbatim.
type Adapter struct {
	*netbox.Adapter
}

// New returns a Nautobot adapter registered under id.
func New(id string, cfg generic.Config, client *http.Client) *Adapter {
	return &Adapter{Adapter: netbox.New(id, cfg, client)}
}
