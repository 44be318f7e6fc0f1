// Package state persists the decisions a scan pass makes so that a later
// pass — over the same dataset or over the activeobjects export — can apply
// them consistently. The file is written once at the end of a scan and read
// back verbatim; nothing regenerates state mid-run.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// State is the cross-run snapshot of scan decisions. Sets are stored as
// sorted slices so that saving is deterministic and the file round-trips
// exactly.
type State struct {
	ElementCount        int                 `json:"element_count"`
	AllUsers            []string            `json:"all_users"`
	ProjectUsers        []string            `json:"project_users"`
	ProjectIDs          []string            `json:"project_ids,omitempty"`
	InternalDirectoryID string              `json:"internal_directory_id,omitempty"`
	DropPropertyIDs     []string            `json:"drop_osproperty_ids"`
	Properties          map[string]string   `json:"osproperties"`
	SchemeIDs           map[string][]string `json:"scheme_ids"`
	Workflows           []string            `json:"workflows"`
}

// Normalize sorts every slice so that two states with the same content
// serialize identically.
func (s *State) Normalize() {
	sort.Strings(s.AllUsers)
	sort.Strings(s.ProjectUsers)
	sort.Strings(s.ProjectIDs)
	sort.Strings(s.DropPropertyIDs)
	sort.Strings(s.Workflows)

	for _, ids := range s.SchemeIDs {
		sort.Strings(ids)
	}
}

// Save writes the state to path as indented JSON.
func Save(path string, s *State) error {
	s.Normalize()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}

	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing state file %q: %w", path, err)
	}

	return nil
}

// Load reads a state file from path. A missing file is an error: modes that
// depend on prior state cannot proceed without it.
func Load(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading state file %q: %w", path, err)
	}

	// Older state files recorded project users under a different key.
	var raw struct {
		State

		LegacyProjectUsers []string `json:"project_role_actor_users"`
	}

	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing state file %q: %w", path, err)
	}

	s := raw.State
	if len(s.ProjectUsers) == 0 && len(raw.LegacyProjectUsers) > 0 {
		s.ProjectUsers = raw.LegacyProjectUsers
	}

	if s.Properties == nil {
		s.Properties = make(map[string]string)
	}

	if s.SchemeIDs == nil {
		s.SchemeIDs = make(map[string][]string)
	}

	return &s, nil
}
