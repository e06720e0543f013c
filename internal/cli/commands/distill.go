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
	"crucible/internal/retort"
)

// brewDocument is the exported mirror of loader's unexported wire shape
// (internal/loader/document.go), used here only to marshal a compiled
// Inventory back out to the Brew file format so distill's output can feed
// validate/project/plan directly.
type brewDocument struct {
	Schema  brewSchema   `yaml:"schema"`
	Objects []brewObject `yaml:"objects"`
}

type brewSchema struct {
	Types map[ir.TypeName]ir.TypeSchema `yaml:"types"`
}

type brewObject struct {
	Uid   string         `yaml:"uid"`
	Type  ir.TypeName    `yaml:"type"`
	Key   map[string]any `yaml:"key"`
	Attrs map[string]any `yaml:"attrs,omitempty"`
}

// NewDistillCommand returns the `crucible distill` command: compiles a raw
// input document into IR via a retort rule file.
func NewDistillCommand() *cobra.Command {
	var inputPath, retortPath, outputPath string

	cmd := &cobra.Command{
		Use:   "distill",
		Short: "Compile a raw input document into a Brew inventory via a retort",
		RunE: func(cmd *cobra.Command, args []string) error {
			if inputPath == "" || retortPath == "" {
				return fmt.Errorf("distill: --input and --retort are required")
			}

			docData, err := os.ReadFile(inputPath)
			if err != nil {
				return fmt.Errorf("reading %s: %w", inputPath, err)
			}
			dom, err := retort.ParseDocument(docData)
			if err != nil {
				return fmt.Errorf("parsing %s: %w", inputPath, err)
			}

			ruleData, err := os.ReadFile(retortPath)
			if err != nil {
				return fmt.Errorf("reading %s: %w", retortPath, err)
			}
			rf, err := retort.ParseRuleFile(ruleData)
			if err != nil {
				return fmt.Errorf("parsing %s: %w", retortPath, err)
			}

			inv, diags, err := retort.Compile(dom, rf)
			if err != nil {
				return fmt.Errorf("compiling %s against %s: %w", inputPath, retortPath, err)
			}

			errOut := cmd.ErrOrStderr()
			for _, d := range diags {
				fmt.Fprintln(errOut, d.String())
			}

			out, err := yaml.Marshal(toBrewDocument(inv))
			if err != nil {
				return fmt.Errorf("marshaling compiled inventory: %w", err)
			}

			if outputPath == "" {
				_, err = cmd.OutOrStdout().Write(out)
				return err
			}
			return os.WriteFile(outputPath, out, 0o644)
		},
	}

	cmd.Flags().StringVar(&inputPath, "input", "", "path to the raw input document")
	cmd.Flags().StringVar(&retortPath, "retort", "", "path to the retort rule file")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "write the compiled Brew file here instead of stdout")

	return cmd
}

func toBrewDocument(inv ir.Inventory) brewDocument {
	doc := brewDocument{Schema: brewSchema{Types: inv.Schema.Types}}
	for _, obj := range inv.Objects {
		doc.Objects = append(doc.Objects, brewObject{
			Uid:   obj.Uid.String(),
			Type:  obj.TypeName,
			Key:   map[string]any(obj.Key),
			Attrs: map[string]any(obj.Attrs),
		})
	}
	return doc
}
