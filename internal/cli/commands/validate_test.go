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

func TestValidateCommand_HasExpectedMetadata(t *testing.T) {
	cmd := NewValidateCommand()
	if cmd.Use != "validate" {
		t.Fatalf("expected Use to be 'validate', got %q", cmd.Use)
	}
}

func TestValidateCommand_MissingFileFlagIsAnError(t *testing.T) {
	if _, err := executeCommand(NewValidateCommand()); err == nil {
		t.Fatalf("expected an error when -f is omitted")
	}
}

func TestValidateCommand_ValidInventoryPrintsOK(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "site.yaml", siteBrewYAML)

	out, err := executeCommand(NewValidateCommand(), "-f", path)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.HasPrefix(out, "ok:") {
		t.Fatalf("expected ok output, got %q", out)
	}
}

func TestValidateCommand_DanglingReferenceIsAnError(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "broken.yaml", `
schema:
  types:
    dcim.device:
      key:
        name: {type: string, required: true}
      fields:
        name: {type: string, required: true}
        site: {type: ref, target: dcim.site, required: true}
objects:
  - type: dcim.device
    key: {name: router1}
    attrs: {name: router1, site: "11111111-1111-1111-1111-111111111111"}
`)

	if _, err := executeCommand(NewValidateCommand(), "-f", path); err == nil {
		t.Fatalf("expected an error for a dangling reference")
	}
}
