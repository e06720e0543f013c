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

	"crucible/internal/projection"
	"crucible/internal/retort"
	"crucible/internal/validator"
)

// NewLintCommand returns the `crucible lint` command. Unlike validate, lint
// is a non-fatal diagnostics pass: it exits 0 whatever it finds, reporting
// authoring mistakes (dangling template vars, projection rules aimed at
// undeclared types) rather than blocking the run. Missing flags or an
// unreadable or unparsable file still fail the command.
func NewLintCommand() *cobra.Command {
	var retortPath, projectionPath string

	cmd := &cobra.Command{
		Use:   "lint",
		Short: "Report non-fatal authoring warnings in retort and projection files",
		RunE: func(cmd *cobra.Command, args []string) error {
			if retortPath == "" && projectionPath == "" {
				return fmt.Errorf("lint: at least one of --retort, --projection is required")
			}

			var rf *retort.RuleFile
			if retortPath != "" {
				data, err := os.ReadFile(retortPath)
				if err != nil {
					return fmt.Errorf("reading %s: %w", retortPath, err)
				}
				parsed, err := retort.ParseRuleFile(data)
				if err != nil {
					return fmt.Errorf("parsing %s: %w", retortPath, err)
				}
				rf = &parsed
			}

			var proj *projection.Spec
			if projectionPath != "" {
				data, err := os.ReadFile(projectionPath)
				if err != nil {
					return fmt.Errorf("reading %s: %w", projectionPath, err)
				}
				parsed, err := projection.ParseSpec(data)
				if err != nil {
					return fmt.Errorf("parsing %s: %w", projectionPath, err)
				}
				proj = &parsed
			}

			report := validator.Lint(rf, proj)

			out := cmd.OutOrStdout()
			for _, w := range report.Warnings {
				fmt.Fprintf(out, "warning: %s\n", w)
			}
			for _, e := range report.Errors {
				fmt.Fprintf(out, "error: %s\n", e)
			}
			if len(report.Warnings) == 0 && len(report.Errors) == 0 {
				fmt.Fprintln(out, "ok: no findings")
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&retortPath, "retort", "", "path to a retort rule file to lint")
	cmd.Flags().StringVar(&projectionPath, "projection", "", "path to a projection rule file to lint")

	return cmd
}
