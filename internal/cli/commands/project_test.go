// SPDX-License-Identifier: AGPL-3.0-or-later

/*

Crucible - Crucible compiles and reconciles infrastructure inventories
against pluggable network-source-of-truth backends.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

package commands

import (
	"strings"
	"testing"
)

const siteWithCustomAttrBrewYAML = `
schema:
  types:
    dcim.site:
      key:
        slug: {type: slug, required: true}
      fields:
        name: {type: string, required: true}
        slug: {type: slug, required: true}
        "x.owner": {type: string}
objects:
  - type: dcim.site
    key: {slug: fra1}
    attrs: {name: FRA1, slug: fra1, "x.owner": netops}
`

const stripPrefixProjectionYAML = `
rules:
  - name: custom-fields
    on_type: dcim.site
    from_attrs:
      prefix: "x."
    to:
      custom_fields:
        strategy: strip_prefix
`

func TestProjectCommand_StrictAndProposeAreMutuallyExclusive(t *testing.T) {
	dir := t.TempDir()
	brew := writeFile(t, dir, "site.yaml", siteWithCustomAttrBrewYAML)
	proj := writeFile(t, dir, "projection.yaml", stripPrefixProjectionYAML)

	_, err := executeCommand(NewProjectCommand(), "-f", brew, "--projection", proj, "--projection-strict", "--projection-propose")
	if err == nil {
		t.Fatalf("expected an error when both --projection-strict and --projection-propose are set")
	}
}

func TestProjectCommand_AppliesStripPrefixRule(t *testing.T) {
	dir := t.TempDir()
	brew := writeFile(t, dir, "site.yaml", siteWithCustomAttrBrewYAML)
	proj := writeFile(t, dir, "projection.yaml", stripPrefixProjectionYAML)

	out, err := executeCommand(NewProjectCommand(), "-f", brew, "--projection", proj)
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	if !strings.Contains(out, "owner: netops") {
		t.Fatalf("expected projected custom field owner, got %q", out)
	}
}
