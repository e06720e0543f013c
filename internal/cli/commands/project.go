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

	"crucible/internal/adapter"
	"crucible/internal/ir"
	"crucible/internal/loader"
	"crucible/internal/projection"
)

// NewProjectCommand returns the `crucible project` command: applies a
// projection spec to an inventory, optionally validating the result
// against a backend's declared capabilities.
func NewProjectCommand() *cobra.Command {
	var file, projectionPath string
	var strict, propose bool
	var backendFlags *BackendFlags

	cmd := &cobra.Command{
		Use:   "project",
		Short: "Project an inventory's attrs into backend custom fields, tags, and context",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" || projectionPath == "" {
				return fmt.Errorf("project: -f and --projection are required")
			}
			if strict && propose {
				return fmt.Errorf("project: --projection-strict and --projection-propose are mutually exclusive")
			}

			inv, err := loader.Load(file)
			if err != nil {
				return err
			}

			specData, err := os.ReadFile(projectionPath)
			if err != nil {
				return fmt.Errorf("reading %s: %w", projectionPath, err)
			}
			spec, err := projection.ParseSpec(specData)
			if err != nil {
				return fmt.Errorf("parsing %s: %w", projectionPath, err)
			}

			var caps ir.BackendCapabilities
			if strict || propose {
				a, err := backendFlags.ResolveAdapter()
				if err != nil {
					return err
				}
				reporter, ok := a.(adapter.CapabilityReporter)
				if !ok {
					return fmt.Errorf("backend %q does not report capabilities, cannot use --projection-strict/--projection-propose", backendFlags.Kind)
				}
				caps, err = reporter.Capabilities(cmd.Context(), inv.Schema)
				if err != nil {
					return fmt.Errorf("fetching backend capabilities: %w", err)
				}
			}

			if strict {
				if err := projection.ValidateStrict(spec, inv, caps); err != nil {
					return err
				}
			}

			projected, err := projection.Apply(inv, spec)
			if err != nil {
				return fmt.Errorf("applying projection: %w", err)
			}

			out := cmd.OutOrStdout()
			if propose {
				missingFields, missingTags := projection.ComputeMissing(caps, projected)
				if len(missingFields) == 0 && len(missingTags) == 0 {
					fmt.Fprintln(out, "ok: backend already declares every projected custom field and tag")
				}
				for typeName, fields := range missingFields {
					fmt.Fprintf(out, "missing custom fields for %s: %v\n", typeName, fields)
				}
				if len(missingTags) > 0 {
					fmt.Fprintf(out, "missing tags: %v\n", missingTags)
				}
				return nil
			}

			data, err := yaml.Marshal(toProjectedDocument(projected))
			if err != nil {
				return fmt.Errorf("marshaling projected inventory: %w", err)
			}
			_, err = out.Write(data)
			return err
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "path to the Brew inventory file")
	cmd.Flags().StringVar(&projectionPath, "projection", "", "path to the projection rule file")
	cmd.Flags().BoolVar(&strict, "projection-strict", false, "fail if a rule targets a field/tag the backend does not declare")
	cmd.Flags().BoolVar(&propose, "projection-propose", false, "report custom fields/tags the backend would need to declare, without failing")
	backendFlags = RegisterBackendFlags(cmd)

	return cmd
}

type projectedDocument struct {
	Objects []projectedObjectDoc `yaml:"objects"`
}

type projectedObjectDoc struct {
	Uid          string         `yaml:"uid"`
	Type         ir.TypeName    `yaml:"type"`
	CustomFields map[string]any `yaml:"custom_fields,omitempty"`
	Tags         []string       `yaml:"tags,omitempty"`
	LocalContext any            `yaml:"local_context,omitempty"`
}

func toProjectedDocument(inv ir.ProjectedInventory) projectedDocument {
	doc := projectedDocument{}
	for _, obj := range inv.Objects {
		doc.Objects = append(doc.Objects, projectedObjectDoc{
			Uid:          obj.Base.Uid.String(),
			Type:         obj.Base.TypeName,
			CustomFields: obj.Projection.CustomFields,
			Tags:         obj.Projection.Tags,
			LocalContext: obj.Projection.LocalContext,
		})
	}
	return doc
}
