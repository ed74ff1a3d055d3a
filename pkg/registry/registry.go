// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"campaign-client/internal/campaign/selection"
	"campaign-client/internal/models"
)

// LoadCatalog reads a resolution catalog. An empty path yields the built-in
// catalog.
func LoadCatalog(path string) (*ResolutionCatalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (*ResolutionCatalog, error) {
	result := catalogSchema.Validate(data)
	if !result.Valid {
		return nil, fmt.Errorf("invalid resolution catalog: %s", result.Summary())
	}

	var cat ResolutionCatalog
	if err := json.Unmarshal(data, &cat); err != nil {
		return nil, err
	}
	seen := make(map[int]struct{}, len(cat.Resolutions))
	for _, r := range cat.Resolutions {
		if _, dup := seen[r.ID]; dup {
			return nil, fmt.Errorf("invalid resolution catalog: duplicate id %d", r.ID)
		}
		seen[r.ID] = struct{}{}
	}
	return &cat, nil
}

func DefaultCatalog() *ResolutionCatalog {
	return &ResolutionCatalog{
		Version:     "1",
		Resolutions: selection.DefaultResolutions(),
	}
}

// Add appends a resolution, refusing ids already in the catalog.
func (c *ResolutionCatalog) Add(r models.ImageResolution) error {
	if r.Width < 1 || r.Height < 1 {
		return fmt.Errorf("resolution %dx%d: width and height must be positive", r.Width, r.Height)
	}
	if r.ID < 0 {
		return fmt.Errorf("resolution id must not be negative")
	}
	for _, existing := range c.Resolutions {
		if existing.ID == r.ID {
			return fmt.Errorf("resolution with id %d already exists", r.ID)
		}
	}
	c.Resolutions = append(c.Resolutions, r)
	return nil
}

// Remove deletes the resolution with the given id. The last entry cannot be
// removed.
func (c *ResolutionCatalog) Remove(id int) error {
	for i, r := range c.Resolutions {
		if r.ID != id {
			continue
		}
		if len(c.Resolutions) == 1 {
			return fmt.Errorf("cannot remove the last resolution")
		}
		c.Resolutions = append(c.Resolutions[:i:i], c.Resolutions[i+1:]...)
		return nil
	}
	return fmt.Errorf("resolution with id %d not found", id)
}

// SaveCatalog stamps LastUpdated and writes the catalog as indented JSON,
// creating the parent directory if needed.
func SaveCatalog(cat *ResolutionCatalog, path string) error {
	cat.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	data, err := json.MarshalIndent(cat, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal catalog: %w", err)
	}
	if _, err := ParseCatalog(data); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write catalog file: %w", err)
	}
	return nil
}
