// pkg/registry/schema.go
package registry

import (
	"campaign-client/internal/common/validation"
	"campaign-client/internal/models"
)

// ResolutionCatalog lists the image resolutions a campaign can be generated in.
type ResolutionCatalog struct {
	Version     string                   `json:"version"`
	LastUpdated string                   `json:"lastUpdated"`
	Resolutions []models.ImageResolution `json:"resolutions"`
}

var catalogSchema = validation.MustCompile("resolution-catalog", `{
	"type": "object",
	"required": ["resolutions"],
	"properties": {
		"version": {"type": "string"},
		"lastUpdated": {"type": "string"},
		"resolutions": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["width", "height", "id"],
				"properties": {
					"width": {"type": "integer", "minimum": 1},
					"height": {"type": "integer", "minimum": 1},
					"id": {"type": "integer", "minimum": 0}
				}
			}
		}
	}
}`)
