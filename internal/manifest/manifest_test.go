package manifest_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nupkan/permhub/internal/manifest"
	_ "github.com/nupkan/permhub/testing"
)

const validDoc = `{
  "system": {
    "id": "nup-kan",
    "name": "NupKan Board",
    "description": "Kanban task board",
    "version": "1.4.0",
    "apiUrl": "http://localhost:3000/api"
  },
  "functions": [
    {"key": "tasks-list", "name": "View Tasks", "category": "tasks", "endpoint": "/api/tasks"},
    {"key": "tasks-create", "name": "Create Tasks", "category": "tasks", "endpoint": "/api/tasks"}
  ]
}`

func TestParseValid(t *testing.T) {
	m, err := manifest.Parse([]byte(validDoc))
	require.NoError(t, err)
	require.Equal(t, "nup-kan", m.System.ID)
	require.Len(t, m.Functions, 2)
}

func TestLoadFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "functions.json")
	require.NoError(t, os.WriteFile(path, []byte(validDoc), 0o600))

	m, err := manifest.Load(path)
	require.NoError(t, err)
	require.Equal(t, "NupKan Board", m.System.Name)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := manifest.Load(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	_, err := manifest.Parse([]byte(`{"system":`))
	require.Error(t, err)
}

func TestParseRejectsMissingFields(t *testing.T) {
	_, err := manifest.Parse([]byte(`{"system": {"id": "nup-kan"}, "functions": []}`))
	require.Error(t, err)
}

func TestParseRejectsBadKey(t *testing.T) {
	doc := `{
	  "system": {"id": "nup-kan", "name": "NupKan", "version": "1.0.0"},
	  "functions": [{"key": "Tasks List", "name": "View Tasks"}]
	}`
	_, err := manifest.Parse([]byte(doc))
	require.Error(t, err)
}

func TestParseRejectsDuplicateKeys(t *testing.T) {
	doc := `{
	  "system": {"id": "nup-kan", "name": "NupKan", "version": "1.0.0"},
	  "functions": [
	    {"key": "tasks-list", "name": "View Tasks"},
	    {"key": "tasks-list", "name": "View Tasks Again"}
	  ]
	}`
	_, err := manifest.Parse([]byte(doc))
	require.Error(t, err)
}

func TestHashStableAndSensitive(t *testing.T) {
	m1, err := manifest.Parse([]byte(validDoc))
	require.NoError(t, err)
	m2, err := manifest.Parse([]byte(validDoc))
	require.NoError(t, err)

	h1, err := m1.Hash()
	require.NoError(t, err)
	h2, err := m2.Hash()
	require.NoError(t, err)
	require.Equal(t, h1, h2)

	m2.Functions[0].Name = "Browse Tasks"
	h3, err := m2.Hash()
	require.NoError(t, err)
	require.NotEqual(t, h1, h3)
}
