package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleState() *State {
	return &State{
		ElementCount:        42,
		AllUsers:            []string{"bob", "alice"},
		ProjectUsers:        []string{"alice"},
		ProjectIDs:          []string{"10100"},
		InternalDirectoryID: "1",
		DropPropertyIDs:     []string{"205", "104"},
		Properties:          map[string]string{"7": "jira.properties/jira.baseurl"},
		SchemeIDs: map[string][]string{
			"PermissionScheme": {"10", "0"},
		},
		Workflows: []string{"classic"},
	}
}

// ---------------------------------------------------------------------------
// Round trip
// ---------------------------------------------------------------------------

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	require.NoError(t, Save(path, sampleState()))

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 42, loaded.ElementCount)
	assert.Equal(t, []string{"alice", "bob"}, loaded.AllUsers, "slices are sorted on save")
	assert.Equal(t, []string{"alice"}, loaded.ProjectUsers)
	assert.Equal(t, "1", loaded.InternalDirectoryID)
	assert.Equal(t, []string{"104", "205"}, loaded.DropPropertyIDs)
	assert.Equal(t, "jira.properties/jira.baseurl", loaded.Properties["7"])
	assert.Equal(t, []string{"0", "10"}, loaded.SchemeIDs["PermissionScheme"])
	assert.Equal(t, []string{"classic"}, loaded.Workflows)
}

func TestSave_Deterministic(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.json")
	pathB := filepath.Join(dir, "b.json")

	require.NoError(t, Save(pathA, sampleState()))
	require.NoError(t, Save(pathB, sampleState()))

	a, err := os.ReadFile(pathA)
	require.NoError(t, err)

	b, err := os.ReadFile(pathB)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading state file")
}

func TestLoad_MalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing state file")
}

func TestLoad_LegacyProjectUsersKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	legacy := `{
  "element_count": 3,
  "all_users": ["alice", "bob"],
  "project_role_actor_users": ["alice"],
  "drop_osproperty_ids": [],
  "osproperties": {},
  "scheme_ids": {},
  "workflows": []
}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"alice"}, loaded.ProjectUsers)
}

func TestLoad_CurrentKeyWinsOverLegacy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	doc := `{
  "element_count": 3,
  "all_users": [],
  "project_users": ["carol"],
  "project_role_actor_users": ["alice"],
  "drop_osproperty_ids": [],
  "osproperties": {},
  "scheme_ids": {},
  "workflows": []
}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"carol"}, loaded.ProjectUsers)
}

func TestLoad_InitializesNilMaps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"element_count": 1}`), 0o644))

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.NotNil(t, loaded.Properties)
	assert.NotNil(t, loaded.SchemeIDs)
}
