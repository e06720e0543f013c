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
	"net/http"

	"github.com/spf13/cobra"

	"crucible/internal/adapter"
	"crucible/internal/adapters/generic"
	"crucible/internal/adapters/nautobot"
	"crucible/internal/adapters/netbox"
	"crucible/internal/adapters/peeringdb"
	"crucible/pkg/config"
)

// BackendFlags holds the resolved values of the flags every backend-talking
// subcommand (plan, apply, extract, project --projection-strict/--projection-propose)
// shares: which adapter to construct, how to reach it, and where the
// reconciler's state mappings live.
type BackendFlags struct {
	Kind          string
	URL           string
	Token         string
	AdapterConfig string
	StateDir      string
}

// RegisterBackendFlags adds the shared backend flags to cmd and returns the
// struct ResolveAdapter/ResolveStateDir read from once flags are parsed.
func RegisterBackendFlags(cmd *cobra.Command) *BackendFlags {
	f := &BackendFlags{}
	cmd.Flags().StringVar(&f.Kind, "backend-kind", "generic", "backend adapter: generic, netbox, nautobot, peeringdb")
	cmd.Flags().StringVar(&f.URL, "backend-url", "", "backend base URL (falls back to <BACKEND_KIND>_URL)")
	cmd.Flags().StringVar(&f.Token, "backend-token", "", "backend auth token (falls back to <BACKEND_KIND>_TOKEN)")
	cmd.Flags().StringVar(&f.AdapterConfig, "adapter-config", "", "path to the generic/netbox/nautobot per-type endpoint config")
	cmd.Flags().StringVar(&f.StateDir, "state-dir", "", "directory holding the uid<->backend-id state file (falls back to CRUCIBLE_STATE_DIR)")
	return f
}

// ResolveAdapter resolves f's backend connection settings and constructs
// the matching adapter.Adapter. PeeringDB is read-only and needs no
// per-type config; the other three are the generic REST adapter (or a
// specialisation of it) and require --adapter-config.
func (f *BackendFlags) ResolveAdapter() (adapter.Adapter, error) {
	backend, err := config.ResolveBackend(f.Kind, f.URL, f.Token)
	if err != nil {
		return nil, err
	}

	if f.Kind == "peeringdb" {
		return peeringdb.New(http.DefaultClient), nil
	}

	if f.AdapterConfig == "" {
		return nil, fmt.Errorf("backend kind %q requires --adapter-config", f.Kind)
	}
	cfg, err := generic.LoadConfig(f.AdapterConfig)
	if err != nil {
		return nil, err
	}
	cfg.BaseURL = backend.BaseURL
	cfg.Token = backend.Token

	switch f.Kind {
	case "netbox":
		return netbox.New(f.Kind, cfg, http.DefaultClient), nil
	case "nautobot":
		return nautobot.New(f.Kind, cfg, http.DefaultClient), nil
	case "generic":
		return generic.New(f.Kind, cfg, http.DefaultClient), nil
	default:
		return nil, fmt.Errorf("unknown backend kind %q", f.Kind)
	}
}

// ResolveStateDir resolves f's state directory via pkg/config's flag > env
// > default precedence.
func (f *BackendFlags) ResolveStateDir() string {
	return config.ResolveStateDir(f.StateDir)
}
