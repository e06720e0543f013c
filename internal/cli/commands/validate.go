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

	"crucible/internal/loader"
)

// NewValidateCommand returns the `crucible validate` command.
func NewValidateCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a Brew inventory file's schema, references, and uniqueness",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("validate: -f is required")
			}

			inv, err := loader.Load(file)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d object(s), %d type(s)\n", len(inv.Objects), len(inv.Schema.Types))
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "path to the Brew inventory file")

	return cmd
}
