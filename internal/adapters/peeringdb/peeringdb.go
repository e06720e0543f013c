// SPDX-License-Identifier: AGPL-3.0-or-later

// Package peeringdb adapts PeeringDB (https://www.peeringdb.com/) as a
// read-only backend: Observe fetches exchange, network, organisation, and
// interconnect records; ApplyOne always refuses (spec.md §4.10, grounded
// on the original PeeringDB adapter's read-only contract).
package peeringdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"crucible/internal/ir"
)

// DefaultBaseURL is PeeringDB's public API root.
const DefaultBaseURL = "https://www.peeringdb.com/api"

// endpointByType maps the supported IR types onto PeeringDB's REST
// resources. Any type not listed here is silently skipped by Observe,
// matching the original adapter's behaviour.
var endpointByType = map[ir.TypeName]string{
	"peeringdb.ix":       "/ix",
	"peeringdb.net":      "/net",
	"peeringdb.org":      "/org",
	"peeringdb.netixlan": "/netixlan",
}

// ErrReadOnly is returned by ApplyOne unconditionally.
var ErrReadOnly = errors.New("peeringdb adapter is read-only")

// Adapter is a read-only PeeringDB backend. Authentication is via an API
// key read from the PEERINGDB_API_KEY environment variable.
type Adapter struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// New returns a PeeringDB adapter. client defaults to http.DefaultClient.
func New(client *http.Client) *Adapter {
	if client == nil {
		client = http.DefaultClient
	}
	return &Adapter{
		client:  client,
		baseURL: DefaultBaseURL,
		apiKey:  os.Getenv("PEERINGDB_API_KEY"),
	}
}

func (a *Adapter) ID() string { return "peeringdb" }

// Observe fetches every requested type's records. types defaults to every
// supported PeeringDB type when empty. A requested type absent from schema
// is an error; a requested type present in schema but not one PeeringDB's
// adapter knows how to fetch is skipped.
func (a *Adapter) Observe(ctx context.Context, schema ir.Schema, types []ir.TypeName) (*ir.ObservedState, error) {
	requested := types
	if len(requested) == 0 {
		for t := range endpointByType {
			requested = append(requested, t)
		}
	}

	state := ir.NewObservedState()
	for _, typeName := range requested {
		typeSchema, ok := schema.Types[typeName]
		if !ok {
			return nil, fmt.Errorf("peeringdb adapter: missing schema for %s", typeName)
		}

		endpoint, ok := endpointByType[typeName]
		if !ok {
			continue
		}

		items, err := a.fetch(ctx, endpoint)
		if err != nil {
			return nil, fmt.Errorf("peeringdb adapter: fetching %s: %w", typeName, err)
		}
		for _, item := range items {
			key, err := keyFromSchema(typeSchema, item)
			if err != nil {
				return nil, fmt.Errorf("peeringdb adapter: %s: %w", typeName, err)
			}
			backendID, err := idOf(item)
			if err != nil {
				return nil, fmt.Errorf("peeringdb adapter: %s: %w", typeName, err)
			}
			state.Add(ir.ObservedObject{
				TypeName:  typeName,
				Key:       key,
				Attrs:     item,
				BackendId: &backendID,
			})
		}
	}
	return state, nil
}

// ApplyOne always fails: PeeringDB data is sourced externally and is never
// mutated through this system.
func (a *Adapter) ApplyOne(ctx context.Context, schema ir.Schema, op ir.Op, resolved map[ir.Uid]ir.BackendId) (ir.AppliedOp, error) {
	return ir.AppliedOp{}, ErrReadOnly
}

func (a *Adapter) fetch(ctx context.Context, endpoint string) ([]ir.Attrs, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Api-Key "+a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var envelope struct {
		Data []ir.Attrs `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return envelope.Data, nil
}

func keyFromSchema(typeSchema ir.TypeSchema, attrs ir.Attrs) (ir.Key, error) {
	key := ir.Key{}
	for _, field := range typeSchema.Key.Names {
		v, ok := attrs[field]
		if !ok {
			return nil, fmt.Errorf("missing key field %s", field)
		}
		key[field] = v
	}
	return key, nil
}

func idOf(attrs ir.Attrs) (ir.BackendId, error) {
	v, ok := attrs["id"]
	if !ok {
		return ir.BackendId{}, errors.New("item has no id field")
	}
	n, ok := v.(float64)
	if !ok {
		return ir.BackendId{}, fmt.Errorf("id field is not numeric: %T", v)
	}
	return ir.NewBackendIDInt(uint64(n)), nil
}
