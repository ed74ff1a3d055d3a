package gateway

import (
	"io"

	"campaign-client/internal/models"
)

// ExtractInput carries either a specification document or a bare prompt.
type ExtractInput struct {
	Prompt   string
	Document io.Reader
	Filename string
}

type ExtractResult struct {
	Features []models.Feature
	Segments []string
}

// LogoAsset is the logo binary overlaid on generated images.
type LogoAsset struct {
	Filename string
	Content  io.Reader
}

type fileProcessResponse struct {
	FeatureSummary map[string]string `json:"feature_summary"`
	TargetAudience struct {
		Segments []string `json:"segments"`
	} `json:"target_audience"`
}

type logoImages struct {
	Accepted []string `json:"accepted"`
	Rejected []string `json:"rejected"`
}

// MailMessage is one dispatch of a generated email.
type MailMessage struct {
	Subject string
	Body    string
	Image   string
}
