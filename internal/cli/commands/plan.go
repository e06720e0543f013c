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
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"crucible/internal/ir"
	"crucible/internal/loader"
	"crucible/internal/planner"
	"crucible/internal/projection"
	"crucible/internal/statestore"
)

// NewPlanCommand returns the `crucible plan` command: diffs a projected
// inventory against the backend's observed state and prints the resulting
// create/update/delete operations.
func NewPlanCommand() *cobra.Command {
	var file, projectionPath string
	var allowDelete bool
	var backendFlags *BackendFlags

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Compute the create/update/delete operations needed to reconcile a backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("plan: -f is required")
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

			printPlan(cmd.OutOrStdout(), plan)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "path to the Brew inventory file")
	cmd.Flags().StringVar(&projectionPath, "projection", "", "optional path to a projection rule file")
	cmd.Flags().BoolVar(&allowDelete, "allow-delete", false, "emit delete operations for objects no longer in the inventory")
	backendFlags = RegisterBackendFlags(cmd)

	return cmd
}

// projectInventory applies spec's rules when a projection file is given,
// otherwise lifts inv straight into a ProjectedInventory with empty
// projection data on every object.
func projectInventory(inv ir.Inventory, projectionPath string) (ir.ProjectedInventory, error) {
	if projectionPath == "" {
		projected := ir.ProjectedInventory{Schema: inv.Schema}
		for _, obj := range inv.Objects {
			projected.Objects = append(projected.Objects, ir.ProjectedObject{Base: obj})
		}
		return projected, nil
	}

	data, err := os.ReadFile(projectionPath)
	if err != nil {
		return ir.ProjectedInventory{}, fmt.Errorf("reading %s: %w", projectionPath, err)
	}
	spec, err := projection.ParseSpec(data)
	if err != nil {
		return ir.ProjectedInventory{}, fmt.Errorf("parsing %s: %w", projectionPath, err)
	}
	projected, err := projection.Apply(inv, spec)
	if err != nil {
		return ir.ProjectedInventory{}, fmt.Errorf("applying projection: %w", err)
	}
	return projected, nil
}

// statePath joins a resolved state directory with the state store's fixed
// file name.
func statePath(dir string) string {
	return filepath.Join(dir, "state.json")
}

func printPlan(w io.Writer, plan ir.Plan) {
	for _, op := range plan.Ops {
		switch op.Kind {
		case ir.OpCreate:
			fmt.Fprintf(w, "+ create %s %s\n", op.TypeName, op.Uid)
		case ir.OpUpdate:
			fmt.Fprintf(w, "~ update %s %s (%d change(s))\n", op.TypeName, op.Uid, len(op.Changes))
			for _, c := range op.Changes {
				fmt.Fprintf(w, "    %s: %v -> %v\n", c.Field, c.From, c.To)
			}
		case ir.OpDelete:
			fmt.Fprintf(w, "- delete %s %s\n", op.TypeName, op.Uid)
		}
	}
	fmt.Fprintf(w, "%d operation(s)\n", len(plan.Ops))
}
