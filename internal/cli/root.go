// SPDX-License-Identifier: AGPL-3.0-or-later

/*

Crucible - Crucible compiles and reconciles infrastructure inventories
against pluggable network-source-of-truth backends.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

// Package cli wires together the Crucible root Cobra command and global
// CLI options.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"crucible/internal/cli/commands"
	"crucible/pkg/logging"
)

// NewRootCommand constructs the Crucible root Cobra command, wiring the
// distill/validate/lint/project/plan/apply/extract pipeline's subcommands
// plus shared logging flags.
func NewRootCommand() *cobra.Command {
	version := os.Getenv("CRUCIBLE_VERSION")
	if version == "" {
		version = "0.0.0-dev"
	}

	logConfig := logging.NewConfig()

	cmd := &cobra.Command{
		Use:           "crucible",
		Short:         "Crucible – compile and reconcile infrastructure inventories against network backends",
		Long:          "Crucible compiles raw input into IR via a retort, projects it into backend-native metadata, plans a reconciliation, and applies it against a pluggable backend adapter.",
		SilenceUsage:  true, // don't dump usage on user errors
		SilenceErrors: true, // centralize error printing in main()
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			handler, err := logConfig.NewHandler(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			cmd.SetContext(logging.WithContext(cmd.Context(), slog.New(handler)))
			return nil
		},
	}

	logConfig.RegisterFlags(cmd.PersistentFlags())
	if err := logConfig.RegisterCompletions(cmd); err != nil {
		// shell completion registration failure is not fatal to running the CLI
		fmt.Fprintf(os.Stderr, "warning: registering log flag completions: %v\n", err)
	}

	// Version command – simple and explicit.
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number of Crucible",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Crucible version %s\n", version)
		},
	})

	// Subcommands - keep registrations in lexicographic order by .Use
	// to ensure deterministic help output.
	cmd.AddCommand(commands.NewApplyCommand())
	cmd.AddCommand(commands.NewDistillCommand())
	cmd.AddCommand(commands.NewExtractCommand())
	cmd.AddCommand(commands.NewLintCommand())
	cmd.AddCommand(commands.NewPlanCommand())
	cmd.AddCommand(commands.NewProjectCommand())
	cmd.AddCommand(commands.NewValidateCommand())

	return cmd
}
