// SPDX-License-Identifier: AGPL-3.0-or-later

// Package statestore persists the mapping from an IR object's stable Uid to
// the backend-assigned identifier observed the last time it was applied.
// The planner consults it first when matching desired objects against
// observed backend state (spec.md §4.5 "Matching").
package statestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"crucible/internal/ir"
)

// DefaultPath is the default location of the state file, relative to the
// working directory a command is invoked from.
const DefaultPath = ".crucible/state.json"

// fileFormat mirrors the wire format of spec.md §6.5: a nested mapping from
// type name to uid string to backend id.
type fileFormat struct {
	Mappings map[ir.TypeName]map[string]ir.BackendId `json:"mappings"`
}

// Store is a mutex-guarded, file-backed mapping from (TypeName, Uid) to
// ir.BackendId. A single Store should own its file at a time; it is not
// safe for concurrent use from multiple processes.
type Store struct {
	path string
	mu   sync.Mutex
}

// New returns a Store backed by path. The file need not exist yet; it is
// created lazily on the first Set.
func New(path string) *Store {
	return &Store{path: path}
}

// NewDefault returns a Store backed by DefaultPath.
func NewDefault() *Store {
	return New(DefaultPath)
}

// Mapping pairs an object identity with its backend id, for AllMappings.
type Mapping struct {
	TypeName  ir.TypeName
	Uid       ir.Uid
	BackendId ir.BackendId
}

func (s *Store) load() (fileFormat, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return fileFormat{Mappings: map[ir.TypeName]map[string]ir.BackendId{}}, nil
	}
	if err != nil {
		return fileFormat{}, fmt.Errorf("reading state file: %w", err)
	}
	var ff fileFormat
	if err := json.Unmarshal(data, &ff); err != nil {
		return fileFormat{}, fmt.Errorf("parsing state file: %w", err)
	}
	if ff.Mappings == nil {
		ff.Mappings = map[ir.TypeName]map[string]ir.BackendId{}
	}
	return ff, nil
}

// save writes ff atomically: write to a temp file in the same directory,
// then rename over the destination.
func (s *Store) save(ff fileFormat) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	data, err := json.MarshalIndent(ff, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}

	tmpFile := fmt.Sprintf("%s.%d.tmp", s.path, os.Getpid())
	if err := os.WriteFile(tmpFile, data, 0o600); err != nil {
		return fmt.Errorf("writing temporary state file: %w", err)
	}
	if err := os.Rename(tmpFile, s.path); err != nil {
		_ = os.Remove(tmpFile)
		return fmt.Errorf("renaming state file: %w", err)
	}
	return nil
}

// Get returns the backend id last recorded for (typeName, uid), if any.
func (s *Store) Get(typeName ir.TypeName, uid ir.Uid) (ir.BackendId, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ff, err := s.load()
	if err != nil {
		return ir.BackendId{}, false, err
	}
	byUID, ok := ff.Mappings[typeName]
	if !ok {
		return ir.BackendId{}, false, nil
	}
	backendID, ok := byUID[uid.String()]
	return backendID, ok, nil
}

// Set records the backend id for (typeName, uid), overwriting any prior
// mapping for the same identity.
func (s *Store) Set(typeName ir.TypeName, uid ir.Uid, backendId ir.BackendId) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ff, err := s.load()
	if err != nil {
		return err
	}

	byUID, ok := ff.Mappings[typeName]
	if !ok {
		byUID = map[string]ir.BackendId{}
		ff.Mappings[typeName] = byUID
	}
	byUID[uid.String()] = backendId

	return s.save(ff)
}

// Remove deletes the mapping for (typeName, uid), if present. It is not an
// error for the mapping to already be absent.
func (s *Store) Remove(typeName ir.TypeName, uid ir.Uid) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ff, err := s.load()
	if err != nil {
		return err
	}

	if byUID, ok := ff.Mappings[typeName]; ok {
		delete(byUID, uid.String())
	}

	return s.save(ff)
}

// AllMappings returns every recorded mapping, sorted by (type, uid) for
// deterministic output.
func (s *Store) AllMappings() ([]Mapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ff, err := s.load()
	if err != nil {
		return nil, err
	}

	var out []Mapping
	for typeName, byUID := range ff.Mappings {
		for uidStr, backendID := range byUID {
			uid, err := ir.ParseUid(uidStr)
			if err != nil {
				return nil, fmt.Errorf("state file: %w", err)
			}
			out = append(out, Mapping{TypeName: typeName, Uid: uid, BackendId: backendID})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TypeName != out[j].TypeName {
			return out[i].TypeName < out[j].TypeName
		}
		return out[i].Uid.String() < out[j].Uid.String()
	})
	return out, nil
}
