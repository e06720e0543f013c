// SPDX-License-Identifier: AGPL-3.0-or-later

// Package generic implements a configurable REST backend adapter: every
// type is described by an endpoint, a pair of JSON paths, a delete
// strategy, and an update method, with no backend-specific code (spec.md
// §4.7 "Generic adapter specifics").
package generic

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"crucible/internal/ir"
)

// UpdateMethod is the HTTP verb used for an update request.
type UpdateMethod string

const (
	UpdatePatch UpdateMethod = "PATCH"
	UpdatePut   UpdateMethod = "PUT"
)

// DeleteStrategy controls whether a type's objects may be deleted.
type DeleteStrategy string

const (
	// DeleteEnabled issues an HTTP DELETE to the item endpoint.
	DeleteEnabled DeleteStrategy = "delete"
	// DeleteNone disables deletes for the type entirely.
	DeleteNone DeleteStrategy = "none"
)

// TypeConfig describes how one IR type maps onto a REST collection.
type TypeConfig struct {
	// Endpoint is relative to Config.BaseURL (e.g. "/api/sites/").
	Endpoint string `yaml:"endpoint"`

	// ListPath is the gjson path to the results array within a list
	// response body. Empty means the body itself is the array.
	ListPath string `yaml:"list_path,omitempty"`

	// IDPath is the gjson path to an item's id, relative to the item.
	IDPath string `yaml:"id_path"`

	DeleteStrategy DeleteStrategy `yaml:"delete_strategy,omitempty"`
	UpdateMethod   UpdateMethod   `yaml:"update_method,omitempty"`
}

// Config is the generic adapter's configuration: a base URL, an optional
// bearer token, and one TypeConfig per handled type.
type Config struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token,omitempty"`

	// TokenScheme is the Authorization header scheme prefix. Empty means
	// "Bearer"; specialised adapters (NetBox, Nautobot) override it to
	// "Token" to match their native convention.
	TokenScheme string `yaml:"token_scheme,omitempty"`

	Types map[ir.TypeName]TypeConfig `yaml:"types"`
}

// ErrConfigInvalid is returned by Validate when a required field is
// missing or a value isn't one of the recognised enums.
var ErrConfigInvalid = errors.New("generic adapter: invalid configuration")

// LoadConfig reads and validates a Config from a YAML file.
func LoadConfig(path string) (Config, error) {
	// nolint:gosec // G304: reading a user-specified adapter config path is expected
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading generic adapter config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing generic adapter config: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// normalize fills in defaults and validates the result.
func (c *Config) normalize() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base_url is required", ErrConfigInvalid)
	}
	for typeName, tc := range c.Types {
		if tc.Endpoint == "" {
			return fmt.Errorf("%w: types.%s.endpoint is required", ErrConfigInvalid, typeName)
		}
		if tc.IDPath == "" {
			return fmt.Errorf("%w: types.%s.id_path is required", ErrConfigInvalid, typeName)
		}
		if tc.DeleteStrategy == "" {
			tc.DeleteStrategy = DeleteEnabled
		}
		if tc.DeleteStrategy != DeleteEnabled && tc.DeleteStrategy != DeleteNone {
			return fmt.Errorf("%w: types.%s.delete_strategy must be %q or %q", ErrConfigInvalid, typeName, DeleteEnabled, DeleteNone)
		}
		if tc.UpdateMethod == "" {
			tc.UpdateMethod = UpdatePatch
		}
		if tc.UpdateMethod != UpdatePatch && tc.UpdateMethod != UpdatePut {
			return fmt.Errorf("%w: types.%s.update_method must be %q or %q", ErrConfigInvalid, typeName, UpdatePatch, UpdatePut)
		}
		c.Types[typeName] = tc
	}
	return nil
}
