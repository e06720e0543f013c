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
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"crucible/internal/ir"
	"crucible/internal/projection"
)

// NewExtractCommand returns the `crucible extract` command: observes a
// backend's live state for a type and inverts a projection's custom_fields/
// tags rules back into the x.*-prefixed attrs those backend-native fields
// correspond to, recovering inventory-editable form from what the backend
// actually reports rather than from a locally re-projected copy of an
// inventory file.
func NewExtractCommand() *cobra.Command {
	var projectionPath, typeName string
	var backendFlags *BackendFlags

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Recover inventory attrs from a backend's observed projection data",
		RunE: func(cmd *cobra.Command, args []string) error {
			if projectionPath == "" || typeName == "" {
				return fmt.Errorf("extract: --projection and --type are required")
			}

			data, err := os.ReadFile(projectionPath)
			if err != nil {
				return fmt.Errorf("reading %s: %w", projectionPath, err)
			}
			spec, err := projection.ParseSpec(data)
			if err != nil {
				return fmt.Errorf("parsing %s: %w", projectionPath, err)
			}

			a, err := backendFlags.ResolveAdapter()
			if err != nil {
				return err
			}

			wantType := ir.TypeName(typeName)
			observed, err := a.Observe(cmd.Context(), ir.Schema{}, []ir.TypeName{wantType})
			if err != nil {
				return fmt.Errorf("observing backend: %w", err)
			}

			out := cmd.OutOrStdout()
			errOut := cmd.ErrOrStderr()
			for _, obj := range observed.All() {
				if obj.TypeName != wantType {
					continue
				}
				attrs, warnings, err := projection.Extract(spec, obj.TypeName, obj.Projection)
				if err != nil {
					return fmt.Errorf("extracting %s %s: %w", obj.TypeName, obj.Key.Canonical(), err)
				}
				for _, w := range warnings {
					fmt.Fprintf(errOut, "%s %s: %s\n", obj.TypeName, obj.Key.Canonical(), w)
				}

				record := map[string]any{"type": string(obj.TypeName), "key": obj.Key.Canonical(), "attrs": attrs}
				if obj.BackendId != nil {
					record["backend_id"] = obj.BackendId.String()
				}
				marshaled, err := yaml.Marshal(record)
				if err != nil {
					return fmt.Errorf("marshaling extracted attrs: %w", err)
				}
				if _, err := out.Write(marshaled); err != nil {
					return err
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&projectionPath, "projection", "", "path to the projection rule file")
	cmd.Flags().StringVar(&typeName, "type", "", "the type name to extract")
	backendFlags = RegisterBackendFlags(cmd)

	return cmd
}
