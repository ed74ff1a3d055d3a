// internal/campaign/gateway/gateway.go
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"campaign-client/internal/campaign/results"
	"campaign-client/internal/campaign/selection"
	"campaign-client/internal/common/errors"
	httpclient "campaign-client/internal/common/http"
	"campaign-client/internal/common/logger"
	"campaign-client/internal/common/observability"
	"campaign-client/internal/models"
)

const maxLogoBytes = 10 << 20

// Notifier surfaces user-visible success messages.
type Notifier interface {
	Success(message string)
}

type NotifierFunc func(message string)

func (f NotifierFunc) Success(message string) { f(message) }

type Options struct {
	Config   *Config
	Client   *httpclient.Client
	Store    *results.Store
	Mailer   Mailer
	Notifier Notifier
	Obs      *observability.Observability
	Logger   logger.Logger
}

// Gateway performs the request/response operations around a campaign:
// extraction, logo overlay, email generation and dispatch.
type Gateway struct {
	config    *Config
	transport *restTransport
	store     *results.Store
	mailer    Mailer
	notifier  Notifier
	logger    logger.Logger
}

func New(opts Options) (*Gateway, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid gateway config: %w", err)
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("result store is required")
	}
	client := opts.Client
	if client == nil {
		client = httpclient.NewClient(0)
	}

	g := &Gateway{
		config:    cfg,
		transport: &restTransport{config: cfg, client: client, obs: opts.Obs},
		store:     opts.Store,
		mailer:    opts.Mailer,
		notifier:  opts.Notifier,
		logger:    logger.ForComponent(opts.Logger, "gateway"),
	}
	if g.mailer == nil {
		g.mailer = &RESTMailer{transport: g.transport}
	}
	if g.notifier == nil {
		g.notifier = NotifierFunc(func(string) {})
	}
	return g, nil
}

// Extract runs file-process on a document, or on the bare prompt when no
// document is given. Features come back sorted by key with ids assigned in
// that order; segment labels are normalized and sorted.
func (g *Gateway) Extract(ctx context.Context, in ExtractInput) (*ExtractResult, error) {
	form := httpclient.NewForm()
	switch {
	case in.Document != nil:
		name := in.Filename
		if name == "" {
			name = "document"
		}
		form.File("file", filepath.Base(name), in.Document)
	case in.Prompt != "":
		form.Field("prompt", in.Prompt)
	default:
		return nil, errors.NewValidationError("document", "a document or a prompt is required")
	}

	var resp fileProcessResponse
	if err := g.transport.post(ctx, OpFileProcess, form, fileProcessSchema, &resp); err != nil {
		g.logger.Error("extraction failed", map[string]interface{}{"error": err})
		return nil, err
	}

	out := &ExtractResult{
		Features: selection.FeaturesFromSummary(resp.FeatureSummary),
		Segments: selection.NormalizeSegments(resp.TargetAudience.Segments),
	}
	g.logger.Info("extraction completed", map[string]interface{}{
		"features": len(out.Features),
		"segments": len(out.Segments),
	})
	return out, nil
}

// LogoOverlay sends the target's accepted images, and its rejected images
// when includeRejected is set, together with the logo. The result is written
// back into the store.
func (g *Gateway) LogoOverlay(ctx context.Context, target string, logo LogoAsset, includeRejected bool) (models.TargetImages, error) {
	if !g.store.Has(target) {
		return models.TargetImages{}, errors.NewTargetUnknownError(target)
	}
	logoData, err := readLogo(logo)
	if err != nil {
		return models.TargetImages{}, err
	}

	imgs := logoImages{
		Accepted: g.store.Get(target, models.BucketAccepted),
		Rejected: []string{},
	}
	if includeRejected {
		imgs.Rejected = g.store.Get(target, models.BucketRejected)
	}
	imagesJSON, err := json.Marshal(imgs)
	if err != nil {
		return models.TargetImages{}, fmt.Errorf("encode images: %w", err)
	}

	name := logo.Filename
	if name == "" {
		name = "logo.png"
	}
	form := httpclient.NewForm().
		File("logo", filepath.Base(name), bytes.NewReader(logoData)).
		Field("images", string(imagesJSON))

	var resp logoImages
	if err := g.transport.post(ctx, OpLogoProcess, form, logoProcessSchema, &resp); err != nil {
		g.logger.Error("logo overlay failed", map[string]interface{}{"error": err, "target": target})
		return models.TargetImages{}, err
	}

	result := models.TargetImages{Accepted: resp.Accepted, Rejected: resp.Rejected}
	if err := g.store.ApplyPostProcessing(target, result); err != nil {
		return models.TargetImages{}, err
	}
	return result.Clone(), nil
}

// GenerateEmail returns the cached email for the target, generating and
// caching it on first use.
func (g *Gateway) GenerateEmail(ctx context.Context, req models.EmailRequest) (models.Email, error) {
	if req.Target == "" {
		return models.Email{}, errors.NewValidationError("target_audience", "target segment is required")
	}

	cached, ok, err := g.store.Email(ctx, req.Target)
	if err != nil {
		g.logger.Warn("email cache lookup failed", map[string]interface{}{"error": err, "target": req.Target})
	} else if ok {
		return cached, nil
	}

	features := req.Features
	if features == nil {
		features = []models.Feature{}
	}
	featuresJSON, err := json.Marshal(features)
	if err != nil {
		return models.Email{}, fmt.Errorf("encode features: %w", err)
	}

	form := httpclient.NewForm().
		Field("user_prompt", req.Prompt).
		Field("features", string(featuresJSON)).
		Field("target_audience", req.Target)

	var email models.Email
	if err := g.transport.post(ctx, OpGenerateEmail, form, generateEmailSchema, &email); err != nil {
		g.logger.Error("email generation failed", map[string]interface{}{"error": err, "target": req.Target})
		return models.Email{}, err
	}

	if err := g.store.PutEmail(ctx, req.Target, email); err != nil {
		g.logger.Warn("email cache write failed", map[string]interface{}{"error": err, "target": req.Target})
	}
	return email, nil
}

// SendEmail dispatches an email through the configured mailer. Only success
// is surfaced to the user; failures are logged and returned.
func (g *Gateway) SendEmail(ctx context.Context, subject, body, imageRef string) error {
	msg := MailMessage{Subject: subject, Body: body, Image: imageRef}
	if err := g.mailer.Send(ctx, msg); err != nil {
		wrapped := err
		if errors.CodeOf(err) == errors.ErrCodeInternal {
			wrapped = errors.NewMailSendFailedError(g.mailer.Transport(), err)
		}
		g.logger.Error("email dispatch failed", map[string]interface{}{
			"error":     wrapped,
			"transport": g.mailer.Transport(),
		})
		return wrapped
	}

	g.logger.Info("email dispatched", map[string]interface{}{"transport": g.mailer.Transport()})
	g.notifier.Success("Email sent successfully")
	return nil
}

func readLogo(logo LogoAsset) ([]byte, error) {
	if logo.Content == nil {
		return nil, errors.NewValidationError("logo", "logo file is required")
	}
	data, err := io.ReadAll(io.LimitReader(logo.Content, maxLogoBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read logo: %w", err)
	}
	if len(data) > maxLogoBytes {
		return nil, errors.NewValidationError("logo", "logo exceeds 10MB")
	}
	if len(data) == 0 {
		return nil, errors.NewValidationError("logo", "logo file is empty")
	}
	return data, nil
}
