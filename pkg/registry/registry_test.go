package registry

import (
	"os"
	"path/filepath"
	"testing"

	"campaign-client/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCatalog_Default(t *testing.T) {
	cat, err := LoadCatalog("")
	require.NoError(t, err)
	assert.Equal(t, []models.ImageResolution{
		{Width: 360, Height: 640, ID: 0},
		{Width: 414, Height: 896, ID: 1},
		{Width: 512, Height: 512, ID: 2},
	}, cat.Resolutions)
}

func TestLoadCatalog_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resolutions.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"version": "2",
		"lastUpdated": "2026-10-01",
		"resolutions": [{"width": 1080, "height": 1080, "id": 7}]
	}`), 0o600))

	cat, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, "2", cat.Version)
	assert.Equal(t, []models.ImageResolution{{Width: 1080, Height: 1080, ID: 7}}, cat.Resolutions)
}

func TestParseCatalog_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"malformed", `{"resolutions": [`},
		{"missing list", `{"version": "1"}`},
		{"empty list", `{"resolutions": []}`},
		{"zero width", `{"resolutions": [{"width": 0, "height": 10, "id": 0}]}`},
		{"missing id", `{"resolutions": [{"width": 10, "height": 10}]}`},
		{"duplicate id", `{"resolutions": [{"width": 10, "height": 10, "id": 1}, {"width": 20, "height": 20, "id": 1}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tt.data))
			assert.ErrorContains(t, err, "invalid resolution catalog")
		})
	}
}

func TestLoadCatalog_MissingFile(t *testing.T) {
	_, err := LoadCatalog(filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestResolutionCatalog_AddRemove(t *testing.T) {
	cat := DefaultCatalog()

	require.NoError(t, cat.Add(models.ImageResolution{Width: 1080, Height: 1920, ID: 3}))
	assert.Len(t, cat.Resolutions, 4)

	assert.ErrorContains(t, cat.Add(models.ImageResolution{Width: 10, Height: 10, ID: 3}), "already exists")
	assert.ErrorContains(t, cat.Add(models.ImageResolution{Width: 0, Height: 10, ID: 9}), "must be positive")
	assert.ErrorContains(t, cat.Add(models.ImageResolution{Width: 10, Height: 10, ID: -1}), "negative")

	require.NoError(t, cat.Remove(0))
	assert.Equal(t, []models.ImageResolution{
		{Width: 414, Height: 896, ID: 1},
		{Width: 512, Height: 512, ID: 2},
		{Width: 1080, Height: 1920, ID: 3},
	}, cat.Resolutions)
	assert.ErrorContains(t, cat.Remove(42), "not found")

	single := &ResolutionCatalog{Resolutions: []models.ImageResolution{{Width: 1, Height: 1, ID: 0}}}
	assert.ErrorContains(t, single.Remove(0), "last resolution")
}

func TestSaveCatalog_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "resolutions.json")
	cat := DefaultCatalog()
	require.NoError(t, cat.Add(models.ImageResolution{Width: 1080, Height: 1080, ID: 7}))

	require.NoError(t, SaveCatalog(cat, path))
	assert.NotEmpty(t, cat.LastUpdated)

	loaded, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, cat, loaded)
}
