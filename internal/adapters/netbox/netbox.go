// SPDX-License-Identifier: AGPL-3.0-or-later

// Package netbox specialises the generic REST adapter for NetBox: capability
// discovery, a second projection-data PATCH after every write, and
// URL-to-type resolution for the embedded summary objects NetBox returns in
// place of bare foreign keys (spec.md §4.7 "Specialised adapters").
package netbox

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"crucible/internal/adapters/generic"
	"crucible/internal/ir"
)

// Adapter wraps the generic REST adapter, adding NetBox-specific behaviour
// around its shared HTTP plumbing (auth, request/response, list parsing).
type Adapter struct {
	*generic.Adapter
}

// New returns a NetBox adapter. cfg's token scheme defaults to "Token" (the
// NetBox convention) rather than generic's plain "Bearer" unless the caller
// already set one explicitly.
func New(id string, cfg generic.Config, client *http.Client) *Adapter {
	if cfg.TokenScheme == "" {
		cfg.TokenScheme = "Token"
	}
	return &Adapter{Adapter: generic.New(id, cfg, client)}
}

// Observe delegates to the generic adapter's list logic (a single GET per
// type; further result pages are not fetched), which
// already splits NetBox's native custom_fields/tags/local_context_data
// fields into Projection (spec.md §4.7/§8 invariant 3), then flattens
// NetBox's embedded summary objects (nested {id, url, display} documents in
// place of bare foreign keys) down to their raw backend id.
func (a *Adapter) Observe(ctx context.Context, schema ir.Schema, types []ir.TypeName) (*ir.ObservedState, error) {
	state, err := a.Adapter.Observe(ctx, schema, types)
	if err != nil {
		return nil, err
	}

	flattened := ir.NewObservedState()
	flattened.Capabilities = state.Capabilities
	for _, obj := range state.All() {
		obj.Attrs = flattenEmbedded(obj.Attrs)
		flattened.Add(obj)
	}
	return flattened, nil
}

func flattenEmbedded(attrs ir.Attrs) ir.Attrs {
	out := attrs.Clone()
	for k, v := range out {
		switch val := v.(type) {
		case map[string]any:
			if id, ok := val["id"]; ok {
				out[k] = id
			} else if rawURL, ok := val["url"].(string); ok {
				if _, backendID, ok := typeFromURL(rawURL); ok {
					out[k] = backendIDValue(backendID)
				}
			}
		case []any:
			flatList := make([]any, len(val))
			for i, item := range val {
				if nested, ok := item.(map[string]any); ok {
					if id, ok := nested["id"]; ok {
						flatList[i] = id
						continue
					}
				}
				flatList[i] = item
			}
			out[k] = flatList
		}
	}
	return out
}

// typeFromURL resolves a NetBox embedded-object URL (e.g.
// ".../api/dcim/sites/5/") to its (TypeName, backend id).
func typeFromURL(rawURL string) (ir.TypeName, ir.BackendId, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", ir.BackendId{}, false
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	// .../api/<app>/<plural-model>/<id>/
	apiIdx := -1
	for i, s := range segments {
		if s == "api" {
			apiIdx = i
			break
		}
	}
	if apiIdx < 0 || apiIdx+3 >= len(segments) {
		return "", ir.BackendId{}, false
	}
	app := segments[apiIdx+1]
	model := singularize(segments[apiIdx+2])
	idStr := segments[apiIdx+3]

	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		return "", ir.BackendId{}, false
	}
	return ir.TypeName(app + "." + model), ir.NewBackendIDInt(id), true
}

func backendIDValue(id ir.BackendId) any {
	if id.IsString() {
		return id.Str()
	}
	return id.Int()
}

// Capabilities reports NetBox's custom-field and tag universe, feeding
// strict-mode projection validation (spec.md §3.5, §4.3).
func (a *Adapter) Capabilities(ctx context.Context, schema ir.Schema) (ir.BackendCapabilities, error) {
	caps := ir.BackendCapabilities{CustomFieldsByType: map[ir.TypeName][]string{}}

	cfBody, err := a.Request(ctx, http.MethodGet, "/api/extras/custom-fields/", nil)
	if err != nil {
		return caps, fmt.Errorf("listing custom fields: %w", err)
	}
	gjson.GetBytes(cfBody, "results").ForEach(func(_, field gjson.Result) bool {
		name := field.Get("name").String()
		field.Get("content_types").ForEach(func(_, ct gjson.Result) bool {
			typeName := ir.TypeName(ct.String())
			caps.CustomFieldsByType[typeName] = append(caps.CustomFieldsByType[typeName], name)
			return true
		})
		return true
	})

	tagsBody, err := a.Request(ctx, http.MethodGet, "/api/extras/tags/", nil)
	if err != nil {
		return caps, fmt.Errorf("listing tags: %w", err)
	}
	gjson.GetBytes(tagsBody, "results").ForEach(func(_, tag gjson.Result) bool {
		caps.Tags = append(caps.Tags, tag.Get("name").String())
		return true
	})

	return caps, nil
}

// ApplyOne executes the primary write via the generic adapter, then, for
// create/update ops carrying projection data, a second PATCH writing
// NetBox's native custom_fields/tags/local_context_data fields.
func (a *Adapter) ApplyOne(ctx context.Context, schema ir.Schema, op ir.Op, resolved map[ir.Uid]ir.BackendId) (ir.AppliedOp, error) {
	applied, err := a.Adapter.ApplyOne(ctx, schema, op, resolved)
	if err != nil {
		return ir.AppliedOp{}, err
	}
	if op.Kind == ir.OpDelete || op.Desired == nil || applied.BackendId == nil {
		return applied, nil
	}

	patch := projectionPatch(op.Desired.Projection)
	if patch == nil {
		return applied, nil
	}

	tc, ok := a.TypeConfig(op.TypeName)
	if !ok {
		return ir.AppliedOp{}, fmt.Errorf("netbox adapter: no configuration for type %q", op.TypeName)
	}
	itemPath := tc.Endpoint + applied.BackendId.String() + "/"
	if _, err := a.Request(ctx, http.MethodPatch, itemPath, patch); err != nil {
		return ir.AppliedOp{}, fmt.Errorf("writing projection data for %s: %w", op.TypeName, err)
	}
	return applied, nil
}

func projectionPatch(p ir.ProjectionData) map[string]any {
	patch := map[string]any{}
	if len(p.CustomFields) > 0 {
		patch["custom_fields"] = p.CustomFields
	}
	if p.HasTags {
		patch["tags"] = p.Tags
	}
	if p.HasContext {
		patch["local_context_data"] = p.LocalContext
	}
	if len(patch) == 0 {
		return nil
	}
	return patch
}
