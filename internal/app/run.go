// internal/app/run.go
package app

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"campaign-client/internal/campaign/gateway"
	"campaign-client/internal/campaign/pipeline"
	"campaign-client/internal/campaign/selection"
	"campaign-client/internal/common/errors"
	"campaign-client/internal/models"
)

// RunInput describes one headless campaign.
type RunInput struct {
	Prompt       string
	Document     string   // path, optional
	Features     []string // feature keys to select
	Audiences    []string // segment labels; empty selects every segment
	Resolution   int      // catalog id; negative picks the first displayed
	Logo         string   // path, optional
	LogoRejected bool
	Email        bool
}

// Report is the outcome of Run.
type Report struct {
	SessionID string
	Request   models.CampaignRequest
	Results   models.PerTargetImages
	Emails    map[string]models.Email
	Anomaly   *errors.StandardError
}

// Run drives the pipeline from prompt to generation results, then applies
// the requested post-processing to every segment. Progress goes to out.
func (a *App) Run(ctx context.Context, in RunInput, out io.Writer) (*Report, error) {
	c := a.Controller
	out = &syncWriter{w: out}

	settled := make(chan struct{}, 1)
	var mu sync.Mutex
	lastStatus := ""
	unsubscribe := c.Subscribe(func(s pipeline.State) {
		mu.Lock()
		defer mu.Unlock()
		if s.Status != "" && s.Status != lastStatus {
			lastStatus = s.Status
			fmt.Fprintf(out, "status: %s\n", s.Status)
		}
		if s.Stage == pipeline.StageGeneration && s.SessionID != "" && !s.Busy {
			select {
			case settled <- struct{}{}:
			default:
			}
		}
	})
	defer unsubscribe()

	c.SetPrompt(in.Prompt)
	if err := c.Advance(ctx); err != nil {
		return nil, err
	}

	if in.Document != "" {
		if err := a.uploadDocument(ctx, in.Document); err != nil {
			return nil, err
		}
	}
	if err := selectFeatures(c, in.Features); err != nil {
		return nil, err
	}
	if err := c.Advance(ctx); err != nil {
		return nil, fmt.Errorf("load audience segments: %w", err)
	}

	if err := selectAudiences(c, in.Audiences); err != nil {
		return nil, err
	}
	if err := c.Advance(ctx); err != nil {
		return nil, err
	}

	if err := selectResolution(c, in.Resolution); err != nil {
		return nil, err
	}
	if err := c.Advance(ctx); err != nil {
		return nil, err
	}
	fmt.Fprintf(out, "generation started (session %s)\n", c.Snapshot().SessionID)

	select {
	case <-settled:
	case <-c.SessionDone():
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	snap := c.Snapshot()
	if snap.ActiveTarget == "" {
		if snap.LastError != nil {
			return nil, fmt.Errorf("generation failed: %w", snap.LastError)
		}
		return nil, fmt.Errorf("generation ended without results")
	}
	if snap.Anomaly != nil {
		fmt.Fprintf(out, "warning: %s\n", snap.Anomaly.Details)
	}

	report := &Report{
		SessionID: snap.SessionID,
		Request:   *snap.Request,
		Emails:    make(map[string]models.Email),
		Anomaly:   snap.Anomaly,
	}

	var errs []error
	for _, target := range snap.Request.TargetAudiences {
		if err := a.postProcess(ctx, in, target, report, out); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", target, err))
		}
	}
	report.Results = a.Store.Snapshot()
	printResults(out, report)
	return report, stderrors.Join(errs...)
}

func (a *App) uploadDocument(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open document: %w", err)
	}
	defer f.Close()
	return a.Controller.UploadDocument(ctx, filepath.Base(path), f)
}

func (a *App) postProcess(ctx context.Context, in RunInput, target string, report *Report, out io.Writer) error {
	c := a.Controller
	if err := c.SetActiveTarget(target); err != nil {
		return err
	}

	if in.Logo != "" {
		f, err := os.Open(in.Logo)
		if err != nil {
			return fmt.Errorf("open logo: %w", err)
		}
		_, err = c.LogoOverlay(ctx, gateway.LogoAsset{Filename: filepath.Base(in.Logo), Content: f}, in.LogoRejected)
		f.Close()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: logo applied\n", target)
	}

	if !in.Email {
		return nil
	}
	email, err := c.GenerateEmail(ctx)
	if err != nil {
		return err
	}
	report.Emails[target] = email

	image := ""
	if imgs := c.Snapshot().Images; len(imgs) > 0 {
		image = imgs[0]
	}
	return c.SendEmail(ctx, image)
}

func selectFeatures(c *pipeline.Controller, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	byKey := make(map[string]int)
	for _, f := range c.Snapshot().Features {
		if _, ok := byKey[f.Key]; !ok {
			byKey[f.Key] = f.ID
		}
	}
	for _, k := range keys {
		id, ok := byKey[k]
		if !ok {
			return errors.NewValidationError("features", fmt.Sprintf("unknown feature %q", k))
		}
		if _, err := c.ToggleFeature(id); err != nil {
			return err
		}
	}
	return nil
}

func selectAudiences(c *pipeline.Controller, labels []string) error {
	available := c.Snapshot().Audiences
	if len(labels) == 0 {
		labels = available
	}
	for _, label := range labels {
		norm := selection.NormalizeSegment(label)
		if _, err := c.ToggleAudience(norm); err != nil {
			if stderrors.Is(err, selection.ErrUnknownItem) {
				return errors.NewValidationError("targetAudiences", fmt.Sprintf("unknown audience segment %q", label))
			}
			return err
		}
	}
	return nil
}

func selectResolution(c *pipeline.Controller, id int) error {
	display := c.Snapshot().Resolutions
	if id < 0 {
		if len(display) == 0 {
			return errors.NewValidationError("imageResolution", "resolution catalog is empty")
		}
		id = display[0].ID
	}
	if _, err := c.ToggleResolution(id); err != nil {
		if stderrors.Is(err, selection.ErrUnknownItem) {
			return errors.NewValidationError("imageResolution", fmt.Sprintf("unknown resolution id %d", id))
		}
		return err
	}
	return nil
}

func printResults(out io.Writer, r *Report) {
	for _, target := range r.Request.TargetAudiences {
		imgs := r.Results[target]
		fmt.Fprintf(out, "%s: %d accepted, %d rejected\n", target, len(imgs.Accepted), len(imgs.Rejected))
		for _, u := range imgs.Accepted {
			fmt.Fprintf(out, "  + %s\n", u)
		}
		for _, u := range imgs.Rejected {
			fmt.Fprintf(out, "  - %s\n", u)
		}
		if e, ok := r.Emails[target]; ok {
			fmt.Fprintf(out, "  subject: %s\n", e.Subject)
		}
	}
}

// syncWriter serializes writes from the caller and session goroutines.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
