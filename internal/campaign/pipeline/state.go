package pipeline

import (
	"campaign-client/internal/campaign/session"
	"campaign-client/internal/common/errors"
	"campaign-client/internal/models"
)

// State is an immutable snapshot of the controller. Slices are copies.
type State struct {
	Stage      Stage
	Prompt     string
	Busy       bool
	CanAdvance bool
	CanRetreat bool

	// Display lists: selected items first, then unselected, each sorted.
	Features          []models.Feature
	SelectedFeatures  []models.Feature
	Audiences         []string
	SelectedAudiences []string
	Resolutions       []models.ImageResolution
	Resolution        *models.ImageResolution

	SessionID    string
	SessionState session.State
	Status       string
	LastError    error
	Anomaly      *errors.StandardError

	Request      *models.CampaignRequest
	ActiveTarget string
	Bucket       models.Bucket
	Images       []string
	Results      models.PerTargetImages
}

// IsFeatureSelected reports whether the feature with id is selected.
func (s State) IsFeatureSelected(id int) bool {
	for _, f := range s.SelectedFeatures {
		if f.ID == id {
			return true
		}
	}
	return false
}

// IsAudienceSelected reports whether label is selected.
func (s State) IsAudienceSelected(label string) bool {
	for _, a := range s.SelectedAudiences {
		if a == label {
			return true
		}
	}
	return false
}
