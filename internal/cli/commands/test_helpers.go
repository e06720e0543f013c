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
	"context"
	"path/filepath"
	"testing"

	"crucible/internal/statestore"
)

// isolatedStateTestEnv provides an isolated test environment with its own
// state file and a context to pass to command RunE functions. Each test
// gets its own temp directory, so there is no cross-talk between parallel
// command tests.
type isolatedStateTestEnv struct {
	Ctx       context.Context
	StateFile string
	Store     *statestore.Store
	TempDir   string
}

// setupIsolatedStateTestEnv creates an isolated test environment for
// state-touching command tests: a temp directory, a state file under
// <tmp>/.crucible/state.json, and a Store opened on it.
func setupIsolatedStateTestEnv(t *testing.T) *isolatedStateTestEnv {
	t.Helper()

	tmpDir := t.TempDir()
	stateFile := filepath.Join(tmpDir, ".crucible", "state.json")

	return &isolatedStateTestEnv{
		Ctx:       context.Background(),
		StateFile: stateFile,
		Store:     statestore.New(stateFile),
		TempDir:   tmpDir,
	}
}
