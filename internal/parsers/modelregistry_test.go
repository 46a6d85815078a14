package parsers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultModelRegistry(t *testing.T) {
	registry := DefaultModelRegistry()

	assert.Equal(t, []string{"4Runner", "Land Cruiser", "Tacoma", "Tundra"}, registry.Models())

	tokens, ok := registry.Lookup("Land Cruiser")
	require.True(t, ok)
	assert.Equal(t, "land-cruiser", tokens["model_slug"])
	assert.Equal(t, "Land+Cruiser", tokens["model_plus"])
	assert.Equal(t, "Land%20Cruiser", tokens["model_encoded"])
	assert.Equal(t, "land_cruiser", tokens["model_underscore"])
	assert.Equal(t, "landcruiser", tokens["model_series"])
	assert.Equal(t, "31377", tokens["model_id"])

	_, ok = registry.Lookup("Corolla")
	assert.False(t, ok)
}

func TestModelRegistrySlug(t *testing.T) {
	registry := DefaultModelRegistry()

	assert.Equal(t, "land-cruiser", registry.Slug("Land Cruiser"))
	// Unregistered models still get a usable kebab form.
	assert.Equal(t, "grand-highlander", registry.Slug("Grand Highlander"))
}

func TestLoadModelRegistryMissingFile(t *testing.T) {
	registry, err := LoadModelRegistry(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Len(t, registry.Models(), 4)
}

func TestLoadModelRegistryMerge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.yaml")
	content := `models:
  - name: Grand Highlander
    dealer_socket_id: 31999
  - name: Crown
    kebab: crown
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	registry, err := LoadModelRegistry(path)
	require.NoError(t, err)
	assert.Contains(t, registry.Models(), "Grand Highlander")
	assert.Contains(t, registry.Models(), "Tacoma")

	tokens, ok := registry.Lookup("Grand Highlander")
	require.True(t, ok)
	assert.Equal(t, "grand-highlander", tokens["model_slug"])
	assert.Equal(t, "grand_highlander", tokens["model_underscore"])
	assert.Equal(t, "grandhighlander", tokens["model_series"])
	assert.Equal(t, "Grand+Highlander", tokens["model_plus"])
	assert.Equal(t, "Grand%20Highlander", tokens["model_encoded"])
	assert.Equal(t, "31999", tokens["model_id"])
}

func TestLoadModelRegistryInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte("models: [unclosed"), 0o644))

	_, err := LoadModelRegistry(path)
	assert.Error(t, err)
}
