// SPDX-License-Identifier: AGPL-3.0-or-later

package loader

import (
	"fmt"
	"os"
	"path/filepath"

	"crucible/internal/ir"
	"crucible/internal/validator"
)

// Load reads the Brew document at path, recursively resolving includes
// depth-first left-to-right, merging schemas and appending objects with
// source attribution, then validates and returns the merged inventory.
func Load(path string) (ir.Inventory, error) {
	visited := map[string]struct{}{}
	inv := ir.Inventory{Schema: ir.NewSchema()}

	if err := loadInto(&inv, path, visited); err != nil {
		return ir.Inventory{}, err
	}

	report := validator.Validate(inv)
	if !report.OK() {
		return ir.Inventory{}, fmt.Errorf("loading %s: %w", path, report)
	}

	return inv, nil
}

func loadInto(inv *ir.Inventory, path string, visited map[string]struct{}) error {
	canon, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving path %s: %w", path, err)
	}

	if _, seen := visited[canon]; seen {
		return nil // duplicate canonical paths are skipped silently
	}
	visited[canon] = struct{}{}

	// nolint:gosec // G304: path comes from a trusted include graph rooted at a CLI-provided file
	data, err := os.ReadFile(canon)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	doc, err := parseDocument(data)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	dir := filepath.Dir(canon)

	// includes are resolved depth-first, left-to-right, before this
	// document's own schema/objects are merged.
	for _, rel := range append(append([]string{}, doc.Include...), doc.Imports...) {
		includePath := rel
		if !filepath.IsAbs(rel) {
			includePath = filepath.Join(dir, rel)
		}
		if _, err := os.Stat(includePath); err != nil {
			return fmt.Errorf("%s: missing include %q: %w", path, rel, err)
		}
		if err := loadInto(inv, includePath, visited); err != nil {
			return err
		}
	}

	if err := inv.Schema.Merge(doc.toSchema()); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	for i, raw := range doc.Objects {
		obj, err := toObject(raw, canon, i)
		if err != nil {
			return fmt.Errorf("%s: object %d: %w", path, i, err)
		}
		inv.Objects = append(inv.Objects, obj)
	}

	return nil
}

func toObject(raw rawObject, file string, index int) (ir.Object, error) {
	attrs := ir.Attrs{}
	for k, v := range raw.Attrs {
		attrs[k] = v
	}
	for k, v := range raw.X {
		attrs["x."+k] = v
	}

	var uid ir.Uid
	if raw.Uid != "" {
		var err error
		uid, err = ir.ParseUid(raw.Uid)
		if err != nil {
			return ir.Object{}, fmt.Errorf("invalid uid %q: %w", raw.Uid, err)
		}
	} else {
		uid = ir.UUIDv5(string(raw.Type), raw.Key.value.Canonical())
	}

	if raw.Type == "" {
		return ir.Object{}, fmt.Errorf("object at index %d has no type", index)
	}

	return ir.Object{
		Uid:      uid,
		TypeName: raw.Type,
		Key:      raw.Key.value,
		Attrs:    attrs,
		Source:   &ir.Source{File: file},
	}, nil
}
