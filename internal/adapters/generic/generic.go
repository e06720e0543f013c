// SPDX-License-Identifier: AGPL-3.0-or-later

package generic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"crucible/internal/adapter"
	"crucible/internal/ir"
)

// Adapter is the configurable REST backend: every type's list/create/
// update/delete behaviour is driven entirely by Config, with no
// backend-specific logic.
type Adapter struct {
	id     string
	cfg    Config
	client *http.Client
}

// New returns an Adapter registered under id (e.g. "generic", or a
// deployment-chosen name when several generic backends are configured).
func New(id string, cfg Config, client *http.Client) *Adapter {
	if client == nil {
		client = http.DefaultClient
	}
	return &Adapter{id: id, cfg: cfg, client: client}
}

func (a *Adapter) ID() string { return a.id }

// Observe fans out one request per configured type and merges the results
// in deterministic type-name order; an error from any type fails the
// whole call (spec.md §4.7 "Observation is parallel across types").
func (a *Adapter) Observe(ctx context.Context, schema ir.Schema, types []ir.TypeName) (*ir.ObservedState, error) {
	wanted := append([]ir.TypeName(nil), types...)
	if len(wanted) == 0 {
		for t := range a.cfg.Types {
			wanted = append(wanted, t)
		}
	}
	sort.Slice(wanted, func(i, j int) bool { return wanted[i] < wanted[j] })

	results := make([][]ir.ObservedObject, len(wanted))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, typeName := range wanted {
		i, typeName := i, typeName
		group.Go(func() error {
			tc, ok := a.cfg.Types[typeName]
			if !ok {
				return fmt.Errorf("generic adapter %s: no configuration for type %q", a.id, typeName)
			}
			objs, err := a.observeType(groupCtx, schema, typeName, tc)
			if err != nil {
				return fmt.Errorf("observing %s: %w", typeName, err)
			}
			results[i] = objs
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	state := ir.NewObservedState()
	for _, objs := range results {
		for _, o := range objs {
			state.Add(o)
		}
	}
	return state, nil
}

func (a *Adapter) observeType(ctx context.Context, schema ir.Schema, typeName ir.TypeName, tc TypeConfig) ([]ir.ObservedObject, error) {
	body, err := a.request(ctx, http.MethodGet, tc.Endpoint, nil)
	if err != nil {
		return nil, err
	}

	list := gjson.GetBytes(body, tc.ListPath)
	if tc.ListPath == "" {
		list = gjson.ParseBytes(body)
	}
	if !list.IsArray() {
		return nil, fmt.Errorf("list_path %q did not select an array", tc.ListPath)
	}

	typeSchema := schema.Types[typeName]
	var objs []ir.ObservedObject
	var iterErr error
	list.ForEach(func(_, item gjson.Result) bool {
		attrs, err := jsonToAttrs(item)
		if err != nil {
			iterErr = err
			return false
		}
		backendID, err := extractBackendID(item, tc.IDPath)
		if err != nil {
			iterErr = err
			return false
		}
		attrs, proj := splitProjectionFields(attrs)
		key := keyFromAttrs(typeSchema, attrs)
		objs = append(objs, ir.ObservedObject{
			TypeName:   typeName,
			Key:        key,
			Attrs:      attrs,
			Projection: proj,
			BackendId:  &backendID,
		})
		return true
	})
	if iterErr != nil {
		return nil, iterErr
	}
	return objs, nil
}

// ApplyOne executes a single create/update/delete, substituting resolved
// references in the outgoing payload (spec.md §4.7).
func (a *Adapter) ApplyOne(ctx context.Context, schema ir.Schema, op ir.Op, resolved map[ir.Uid]ir.BackendId) (ir.AppliedOp, error) {
	tc, ok := a.cfg.Types[op.TypeName]
	if !ok {
		return ir.AppliedOp{}, fmt.Errorf("generic adapter %s: no configuration for type %q", a.id, op.TypeName)
	}

	switch op.Kind {
	case ir.OpCreate:
		return a.applyCreate(ctx, schema, op, tc, resolved)
	case ir.OpUpdate:
		return a.applyUpdate(ctx, schema, op, tc, resolved)
	case ir.OpDelete:
		return a.applyDelete(ctx, op, tc)
	default:
		return ir.AppliedOp{}, fmt.Errorf("generic adapter %s: unknown op kind %q", a.id, op.Kind)
	}
}

func (a *Adapter) applyCreate(ctx context.Context, schema ir.Schema, op ir.Op, tc TypeConfig, resolved map[ir.Uid]ir.BackendId) (ir.AppliedOp, error) {
	payload, err := substituteReferences(schema, op.TypeName, op.Desired.Base.Attrs, resolved)
	if err != nil {
		return ir.AppliedOp{}, err
	}

	body, err := a.request(ctx, http.MethodPost, tc.Endpoint, payload)
	if err != nil {
		return ir.AppliedOp{}, err
	}

	id, err := extractBackendID(gjson.ParseBytes(body), tc.IDPath)
	if err != nil {
		return ir.AppliedOp{}, fmt.Errorf("create %s: %w", op.TypeName, err)
	}
	return ir.AppliedOp{Uid: op.Uid, TypeName: op.TypeName, BackendId: &id}, nil
}

func (a *Adapter) applyUpdate(ctx context.Context, schema ir.Schema, op ir.Op, tc TypeConfig, resolved map[ir.Uid]ir.BackendId) (ir.AppliedOp, error) {
	if op.BackendId == nil {
		return ir.AppliedOp{}, fmt.Errorf("generic adapter %s: update for %s %s has no backend id", a.id, op.TypeName, op.Uid)
	}

	changed := ir.Attrs{}
	for _, c := range op.Changes {
		changed[c.Field] = c.To
	}
	payload, err := substituteReferences(schema, op.TypeName, changed, resolved)
	if err != nil {
		return ir.AppliedOp{}, err
	}

	method := http.MethodPatch
	if tc.UpdateMethod == UpdatePut {
		method = http.MethodPut
	}
	itemPath := tc.Endpoint + op.BackendId.String() + "/"
	if _, err := a.request(ctx, method, itemPath, payload); err != nil {
		return ir.AppliedOp{}, err
	}

	id := *op.BackendId
	return ir.AppliedOp{Uid: op.Uid, TypeName: op.TypeName, BackendId: &id}, nil
}

func (a *Adapter) applyDelete(ctx context.Context, op ir.Op, tc TypeConfig) (ir.AppliedOp, error) {
	if tc.DeleteStrategy == DeleteNone {
		return ir.AppliedOp{}, fmt.Errorf("generic adapter %s: deletes are disabled for type %q", a.id, op.TypeName)
	}
	if op.BackendId == nil {
		return ir.AppliedOp{}, fmt.Errorf("generic adapter %s: delete for %s has no backend id", a.id, op.TypeName)
	}

	itemPath := tc.Endpoint + op.BackendId.String() + "/"
	if _, err := a.request(ctx, http.MethodDelete, itemPath, nil); err != nil {
		var statusErr *statusError
		if errors.As(err, &statusErr) && statusErr.status == http.StatusNotFound {
			return ir.AppliedOp{Uid: op.Uid, TypeName: op.TypeName}, nil
		}
		return ir.AppliedOp{}, err
	}
	return ir.AppliedOp{Uid: op.Uid, TypeName: op.TypeName}, nil
}

// statusError reports a non-2xx HTTP response.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.status, e.body)
}

func (a *Adapter) request(ctx context.Context, method, relPath string, payload any) ([]byte, error) {
	var bodyReader io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.cfg.BaseURL+relPath, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.cfg.Token != "" {
		scheme := a.cfg.TokenScheme
		if scheme == "" {
			scheme = "Bearer"
		}
		req.Header.Set("Authorization", scheme+" "+a.cfg.Token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, relPath, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: reading response: %w", method, relPath, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return respBody, &statusError{status: resp.StatusCode, body: string(respBody)}
	}
	return respBody, nil
}

// Request exposes the adapter's authenticated HTTP plumbing so specialised
// adapters embedding Adapter can issue calls beyond the configured create/
// update/delete/list operations (capability discovery, projection patches).
func (a *Adapter) Request(ctx context.Context, method, relPath string, payload any) ([]byte, error) {
	return a.request(ctx, method, relPath, payload)
}

// TypeConfig returns the configuration for typeName, if any.
func (a *Adapter) TypeConfig(typeName ir.TypeName) (TypeConfig, bool) {
	tc, ok := a.cfg.Types[typeName]
	return tc, ok
}

func jsonToAttrs(item gjson.Result) (ir.Attrs, error) {
	var attrs ir.Attrs
	if err := json.Unmarshal([]byte(item.Raw), &attrs); err != nil {
		return nil, fmt.Errorf("decoding item: %w", err)
	}
	return attrs, nil
}

func extractBackendID(item gjson.Result, idPath string) (ir.BackendId, error) {
	idResult := item.Get(idPath)
	if !idResult.Exists() {
		return ir.BackendId{}, fmt.Errorf("id_path %q not found in response item", idPath)
	}
	if idResult.Type == gjson.Number {
		return ir.NewBackendIDInt(uint64(idResult.Int())), nil
	}
	return ir.NewBackendIDString(idResult.String()), nil
}

// splitProjectionFields pulls the well-known custom_fields/tags/
// local_context_data keys a projection-aware backend (NetBox, Nautobot)
// reports on every item out of attrs into ProjectionData, the mirror image
// of the netbox adapter's projectionPatch write-side assembly. A backend
// that never sends these keys leaves ProjectionData entirely zero, so this
// is a no-op for a plain generic REST backend with no projection concept.
// HasTags/HasContext reflect field presence on the response, not mere
// non-emptiness: a null local_context_data is a governed empty value, not
// an ungoverned absence.
func splitProjectionFields(attrs ir.Attrs) (ir.Attrs, ir.ProjectionData) {
	out := attrs.Clone()
	var proj ir.ProjectionData

	if raw, ok := out["custom_fields"]; ok {
		delete(out, "custom_fields")
		if m, ok := raw.(map[string]any); ok {
			proj.CustomFields = m
		}
	}

	if raw, ok := out["tags"]; ok {
		delete(out, "tags")
		proj.HasTags = true
		proj.Tags = tagNames(raw)
	}

	if raw, ok := out["local_context_data"]; ok {
		delete(out, "local_context_data")
		proj.HasContext = true
		proj.LocalContext = raw
	}

	return out, proj
}

// tagNames normalises a tags field's representation — a list of embedded
// {id, name, slug, ...} objects (NetBox/Nautobot's convention), or already-
// bare strings — down to tag names.
func tagNames(raw any) []string {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	names := make([]string, 0, len(list))
	for _, item := range list {
		switch v := item.(type) {
		case string:
			names = append(names, v)
		case map[string]any:
			if name, ok := v["name"].(string); ok {
				names = append(names, name)
			}
		}
	}
	return names
}

func keyFromAttrs(typeSchema ir.TypeSchema, attrs ir.Attrs) ir.Key {
	key := ir.Key{}
	for _, name := range typeSchema.Key.Names {
		if v, ok := attrs[name]; ok {
			key[name] = v
		}
	}
	return key
}

// substituteReferences returns a copy of attrs with every Ref/ListRef value
// replaced by its resolved backend id, per the field types declared in
// schema for typeName. It fails with adapter.ErrMissingReference if any
// referenced Uid is absent from resolved.
func substituteReferences(schema ir.Schema, typeName ir.TypeName, attrs ir.Attrs, resolved map[ir.Uid]ir.BackendId) (ir.Attrs, error) {
	typeSchema, ok := schema.Types[typeName]
	if !ok {
		return attrs.Clone(), nil
	}

	out := attrs.Clone()
	for _, name := range typeSchema.Fields.Names {
		field, _ := typeSchema.Fields.Get(name)
		value, present := out[name]
		if !present || value == nil {
			continue
		}

		switch field.Type {
		case ir.FieldRef:
			id, err := resolveRefValue(value, resolved)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", name, err)
			}
			out[name] = backendIDToJSON(id)
		case ir.FieldListRef:
			raw, ok := value.([]any)
			if !ok {
				return nil, fmt.Errorf("field %q: expected a list of references", name)
			}
			substituted := make([]any, len(raw))
			for i, v := range raw {
				id, err := resolveRefValue(v, resolved)
				if err != nil {
					return nil, fmt.Errorf("field %q[%d]: %w", name, i, err)
				}
				substituted[i] = backendIDToJSON(id)
			}
			out[name] = substituted
		}
	}
	return out, nil
}

func resolveRefValue(value any, resolved map[ir.Uid]ir.BackendId) (ir.BackendId, error) {
	s, ok := value.(string)
	if !ok {
		return ir.BackendId{}, fmt.Errorf("expected a uid string, got %T", value)
	}
	uid, err := ir.ParseUid(s)
	if err != nil {
		return ir.BackendId{}, fmt.Errorf("parsing reference uid: %w", err)
	}
	id, ok := resolved[uid]
	if !ok {
		return ir.BackendId{}, adapter.ErrMissingReference
	}
	return id, nil
}

func backendIDToJSON(id ir.BackendId) any {
	if id.IsString() {
		return id.Str()
	}
	return id.Int()
}
