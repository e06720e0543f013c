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
	"fmt"

	"github.com/spf13/cobra"

	"crucible/internal/apply"
	"crucible/internal/loader"
	"crucible/internal/planner"
	"crucible/internal/statestore"
)

// NewApplyCommand returns the `crucible apply` command: plans, then (unless
// --dry-run) drives the plan's operations against the backend and writes
// the resulting uid<->backend-id mappings back to the state store.
func NewApplyCommand() *cobra.Command {
	var file, projectionPath string
	var allowDelete, dryRun bool
	var backendFlags *BackendFlags

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Reconcile a backend against a Brew inventory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("apply: -f is required")
			}

			inv, err := loader.Load(file)
			if err != nil {
				return err
			}

			projected, err := projectInventory(inv, projectionPath)
			if err != nil {
				return err
			}

			a, err := backendFlags.ResolveAdapter()
			if err != nil {
				return err
			}

			observed, err := a.Observe(cmd.Context(), inv.Schema, nil)
			if err != nil {
				return fmt.Errorf("observing backend: %w", err)
			}

			store := statestore.New(statePath(backendFlags.ResolveStateDir()))

			plan, err := planner.Plan(projected, observed, store, allowDelete)
			if err != nil {
				return fmt.Errorf("planning: %w", err)
			}

			out := cmd.OutOrStdout()
			printPlan(out, plan)

			if dryRun {
				return nil
			}

			report, err := apply.Run(cmd.Context(), a, inv.Schema, plan, store, allowDelete)
			if err != nil {
				return fmt.Errorf("applying: %w", err)
			}

			fmt.Fprintf(out, "applied %d operation(s)\n", len(report.Applied))
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "path to the Brew inventory file")
	cmd.Flags().StringVar(&projectionPath, "projection", "", "optional path to a projection rule file")
	cmd.Flags().BoolVar(&allowDelete, "allow-delete", false, "allow delete operations to reach the backend")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the plan without applying it")
	backendFlags = RegisterBackendFlags(cmd)

	return cmd
}
