// internal/campaign/pipeline/controller.go
package pipeline

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"campaign-client/internal/campaign/archive"
	"campaign-client/internal/campaign/gateway"
	"campaign-client/internal/campaign/notify"
	"campaign-client/internal/campaign/results"
	"campaign-client/internal/campaign/selection"
	"campaign-client/internal/campaign/session"
	"campaign-client/internal/common/errors"
	"campaign-client/internal/common/logger"
	"campaign-client/internal/common/metrics"
	"campaign-client/internal/models"

	"github.com/google/uuid"
)

const completionTimeout = 30 * time.Second

// Gateway is the set of request/response operations the controller drives.
type Gateway interface {
	Extract(ctx context.Context, in gateway.ExtractInput) (*gateway.ExtractResult, error)
	LogoOverlay(ctx context.Context, target string, logo gateway.LogoAsset, includeRejected bool) (models.TargetImages, error)
	GenerateEmail(ctx context.Context, req models.EmailRequest) (models.Email, error)
	SendEmail(ctx context.Context, subject, body, imageRef string) error
}

// Session is a generation channel; *session.Manager implements it.
type Session interface {
	ID() string
	Open(ctx context.Context, req models.CampaignRequest) error
	Close()
	State() session.State
	Done() <-chan struct{}
}

// SessionFactory builds a fresh session reporting to observer.
type SessionFactory func(observer session.Observer) (Session, error)

type Options struct {
	Gateway     Gateway
	Store       *results.Store
	Sessions    SessionFactory
	Resolutions []models.ImageResolution
	Archiver    archive.Archiver
	Publisher   notify.CompletionPublisher
	Logger      logger.Logger
}

// Controller is the single state container of a campaign: the wizard stage,
// the selection models, the generation session and the result store. All
// mutations go through its methods; readers use Snapshot or Subscribe.
type Controller struct {
	gateway   Gateway
	store     *results.Store
	sessions  SessionFactory
	archiver  archive.Archiver
	publisher notify.CompletionPublisher
	logger    logger.Logger
	errs      *errors.ErrorHandler
	now       func() time.Time

	features    *selection.Set[int, models.Feature]
	audiences   *selection.Set[string, string]
	resolutions *selection.Exclusive

	mu              sync.Mutex
	stage           Stage
	prompt          string
	busy            bool
	closed          bool
	session         Session
	sessionState    session.State
	request         *models.CampaignRequest
	requestFeatures []models.Feature
	status          string
	lastError       error
	anomaly         *errors.StandardError
	activeTarget    string
	bucket          models.Bucket
	wg              sync.WaitGroup

	subMu       sync.Mutex
	subscribers map[int]func(State)
	nextSub     int
}

func New(opts Options) (*Controller, error) {
	if opts.Gateway == nil {
		return nil, fmt.Errorf("gateway is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("result store is required")
	}
	if opts.Sessions == nil {
		return nil, fmt.Errorf("session factory is required")
	}
	res := opts.Resolutions
	if len(res) == 0 {
		res = selection.DefaultResolutions()
	}

	log := logger.ForComponent(opts.Logger, "pipeline")
	return &Controller{
		gateway:     opts.Gateway,
		store:       opts.Store,
		sessions:    opts.Sessions,
		archiver:    opts.Archiver,
		publisher:   opts.Publisher,
		logger:      log,
		errs:        errors.NewErrorHandler(log),
		now:         time.Now,
		features:    selection.NewFeatureSet(),
		audiences:   selection.NewAudienceSet(),
		resolutions: selection.NewExclusive(res),
		stage:       StagePrompt,
		bucket:      models.BucketAccepted,
		subscribers: make(map[int]func(State)),
	}, nil
}

// ==========================
// Snapshot / subscribe
// ==========================

func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe registers fn to receive a snapshot after every mutation.
func (c *Controller) Subscribe(fn func(State)) (unsubscribe func()) {
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subscribers[id] = fn
	c.subMu.Unlock()

	return func() {
		c.subMu.Lock()
		delete(c.subscribers, id)
		c.subMu.Unlock()
	}
}

func (c *Controller) publish() {
	snap := c.Snapshot()

	c.subMu.Lock()
	fns := make([]func(State), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

func (c *Controller) snapshotLocked() State {
	s := State{
		Stage:             c.stage,
		Prompt:            c.prompt,
		Busy:              c.busy,
		CanAdvance:        !c.busy && c.advanceCheckLocked() == nil,
		CanRetreat:        !c.busy && c.stage != StagePrompt,
		Features:          c.features.Display(),
		SelectedFeatures:  c.features.Selected(),
		Audiences:         c.audiences.Display(),
		SelectedAudiences: c.audiences.Selected(),
		Resolutions:       c.resolutions.Display(),
		SessionState:      c.sessionState,
		Status:            c.status,
		LastError:         c.lastError,
		Anomaly:           c.anomaly,
		ActiveTarget:      c.activeTarget,
		Bucket:            c.bucket,
	}
	if r, ok := c.resolutions.Selected(); ok {
		s.Resolution = &r
	}
	if c.session != nil {
		s.SessionID = c.session.ID()
	}
	if c.request != nil {
		req := c.request.Clone()
		s.Request = &req
	}
	if c.stage == StageGeneration {
		s.Results = c.store.Snapshot()
		if c.activeTarget != "" {
			s.Images = c.store.Get(c.activeTarget, c.bucket)
		}
	}
	return s
}

// ==========================
// Stage transitions
// ==========================

func (c *Controller) CanAdvance() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.busy && c.advanceCheckLocked() == nil
}

func (c *Controller) CanRetreat() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.busy && c.stage != StagePrompt
}

func (c *Controller) advanceCheckLocked() *errors.StandardError {
	switch c.stage {
	case StagePrompt:
		if strings.TrimSpace(c.prompt) == "" {
			return errors.NewValidationError("prompt", "a prompt is required")
		}
	case StageDocument:
	case StageAudience:
		if c.audiences.SelectedCount() == 0 {
			return errors.NewValidationError("targetAudiences", "select at least one audience segment")
		}
	case StageResolution:
		if c.resolutions.SelectedCount() != 1 {
			return errors.NewValidationError("imageResolution", "select an image resolution")
		}
	default:
		return errors.NewValidationError("stage", "generation is the last stage")
	}
	return nil
}

// Advance moves to the next stage. Entering audience selection with no
// segments fetches them from the prompt; entering generation builds the
// campaign request and opens a session tied to ctx.
func (c *Controller) Advance(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.NewSessionClosedError()
	}
	if c.busy {
		c.mu.Unlock()
		return errors.NewInProgressError(c.stage.String())
	}
	if err := c.advanceCheckLocked(); err != nil {
		c.lastError = err
		c.mu.Unlock()
		c.errs.Handle("advance", err)
		c.publish()
		return err
	}

	from := c.stage
	c.stage++
	c.lastError = nil
	fetch := c.stage == StageAudience && c.audiences.Len() == 0
	if fetch {
		c.busy = true
	}
	var req models.CampaignRequest
	if c.stage == StageGeneration {
		req, c.requestFeatures = c.buildRequestLocked()
	}
	to := c.stage
	c.mu.Unlock()

	metrics.PipelineTransitions.WithLabelValues("advance", to.String()).Inc()
	c.logger.Info("stage advanced", map[string]interface{}{"from": from.String(), "to": to.String()})
	c.publish()

	switch {
	case fetch:
		return c.loadAudiences(ctx)
	case to == StageGeneration:
		return c.launch(ctx, req)
	}
	return nil
}

// Retreat moves back one stage. Leaving generation closes the session.
func (c *Controller) Retreat() error {
	c.mu.Lock()
	if c.stage == StagePrompt {
		c.mu.Unlock()
		return errors.NewValidationError("stage", "already at the first stage")
	}
	if c.busy {
		c.mu.Unlock()
		return errors.NewInProgressError(c.stage.String())
	}
	from := c.stage
	c.stage--
	var sess Session
	if from == StageGeneration {
		sess = c.session
		c.session = nil
		c.sessionState = session.Closed
		c.activeTarget = ""
	}
	to := c.stage
	c.mu.Unlock()

	if sess != nil {
		sess.Close()
	}
	metrics.PipelineTransitions.WithLabelValues("retreat", to.String()).Inc()
	c.logger.Info("stage retreated", map[string]interface{}{"from": from.String(), "to": to.String()})
	c.publish()
	return nil
}

func (c *Controller) buildRequestLocked() (models.CampaignRequest, []models.Feature) {
	selected := c.features.Selected()
	pairs := make([]models.FeaturePair, len(selected))
	for i, f := range selected {
		pairs[i] = models.FeaturePair{Key: f.Key, Value: f.Value}
	}
	res, _ := c.resolutions.Selected()
	return models.CampaignRequest{
		Prompt:          c.prompt,
		TargetAudiences: c.audiences.Selected(),
		Features:        pairs,
		ImageResolution: res,
	}, selected
}

func (c *Controller) launch(ctx context.Context, req models.CampaignRequest) error {
	c.mu.Lock()
	if c.session != nil && c.session.State().Live() {
		state := c.session.State()
		c.stage = StageResolution
		c.mu.Unlock()
		return errors.NewSessionActiveError(state.String())
	}
	obs := &sessionObserver{c: c}
	sess, err := c.sessions(obs)
	if err != nil {
		c.stage = StageResolution
		c.mu.Unlock()
		c.publish()
		return fmt.Errorf("create session: %w", err)
	}
	obs.session = sess
	c.session = sess
	c.sessionState = sess.State()
	c.request = &req
	c.busy = true
	c.status = ""
	c.anomaly = nil
	c.activeTarget = ""
	c.bucket = models.BucketAccepted
	c.store.Clear()
	c.mu.Unlock()

	if err := c.store.ResetEmails(ctx); err != nil {
		c.logger.Warn("email cache reset failed", map[string]interface{}{"error": err})
	}
	c.publish()

	if err := sess.Open(ctx, req); err != nil {
		c.mu.Lock()
		if c.session == sess {
			c.session = nil
			c.busy = false
			c.stage = StageResolution
			c.lastError = err
		}
		c.mu.Unlock()
		c.logger.Error("session open failed", map[string]interface{}{"error": err})
		c.publish()
		return err
	}
	return nil
}

// SessionDone is closed when the current session ends. Without a session it
// is already closed.
func (c *Controller) SessionDone() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.session.Done()
}

// Close tears the controller down: the session and any pending reconnect are
// cancelled and running completion hooks are awaited.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	sess := c.session
	c.mu.Unlock()

	if sess != nil {
		sess.Close()
	}
	c.wg.Wait()
}

// ==========================
// Inputs and selections
// ==========================

func (c *Controller) SetPrompt(prompt string) {
	c.mu.Lock()
	c.prompt = prompt
	c.mu.Unlock()
	c.publish()
}

// UploadDocument extracts features and segments from a document. Both
// selections are reset; on failure both lists are left empty.
func (c *Controller) UploadDocument(ctx context.Context, filename string, document io.Reader) error {
	c.mu.Lock()
	if c.stage != StageDocument {
		c.mu.Unlock()
		return errors.NewValidationError("document", "documents are uploaded at the document stage")
	}
	if c.busy {
		c.mu.Unlock()
		return errors.NewInProgressError(c.stage.String())
	}
	c.busy = true
	prompt := c.prompt
	c.mu.Unlock()
	c.publish()

	res, err := c.gateway.Extract(ctx, gateway.ExtractInput{
		Prompt:   prompt,
		Document: document,
		Filename: filename,
	})

	if err != nil {
		c.errs.Handle("document upload", err)
	}

	c.mu.Lock()
	c.busy = false
	c.lastError = err
	if err != nil {
		c.features.Reset(nil)
		c.audiences.Reset(nil)
	} else {
		c.features.Reset(res.Features)
		c.audiences.Reset(res.Segments)
	}
	c.mu.Unlock()
	c.publish()
	return err
}

func (c *Controller) loadAudiences(ctx context.Context) error {
	c.mu.Lock()
	prompt := c.prompt
	c.mu.Unlock()

	res, err := c.gateway.Extract(ctx, gateway.ExtractInput{Prompt: prompt})
	if err != nil {
		c.errs.Handle("audience fetch", err)
	}

	c.mu.Lock()
	c.busy = false
	c.lastError = err
	if err == nil {
		c.audiences.Reset(res.Segments)
	}
	c.mu.Unlock()
	c.publish()
	return err
}

func (c *Controller) ToggleFeature(id int) (bool, error) {
	return c.toggle(StageDocument, func() (bool, error) { return c.features.Toggle(id) })
}

func (c *Controller) ToggleAudience(label string) (bool, error) {
	return c.toggle(StageAudience, func() (bool, error) { return c.audiences.Toggle(label) })
}

func (c *Controller) ToggleResolution(id int) (bool, error) {
	return c.toggle(StageResolution, func() (bool, error) { return c.resolutions.Toggle(id) })
}

func (c *Controller) toggle(stage Stage, fn func() (bool, error)) (bool, error) {
	c.mu.Lock()
	if c.stage != stage {
		current := c.stage
		c.mu.Unlock()
		return false, errors.NewValidationError("stage", fmt.Sprintf("%s selection is not editable at the %s stage", stage, current))
	}
	if c.busy {
		c.mu.Unlock()
		return false, errors.NewInProgressError(stage.String())
	}
	on, err := fn()
	c.mu.Unlock()
	if err != nil {
		return false, err
	}
	c.publish()
	return on, nil
}

// ==========================
// Results and post-processing
// ==========================

// SetActiveTarget selects the segment the result view and post-processing
// operations apply to.
func (c *Controller) SetActiveTarget(target string) error {
	c.mu.Lock()
	if c.request == nil || c.stage != StageGeneration || !contains(c.request.TargetAudiences, target) {
		c.mu.Unlock()
		return errors.NewTargetUnknownError(target)
	}
	c.activeTarget = target
	c.mu.Unlock()
	c.publish()
	return nil
}

func (c *Controller) SetBucket(bucket models.Bucket) error {
	if !bucket.Valid() {
		return errors.NewValidationError("bucket", fmt.Sprintf("unknown bucket %q", bucket))
	}
	c.mu.Lock()
	c.bucket = bucket
	c.mu.Unlock()
	c.publish()
	return nil
}

// LogoOverlay composites the logo onto the active target's images.
func (c *Controller) LogoOverlay(ctx context.Context, logo gateway.LogoAsset, includeRejected bool) (models.TargetImages, error) {
	target, err := c.beginTargetOp("logo overlay")
	if err != nil {
		return models.TargetImages{}, err
	}
	res, err := c.gateway.LogoOverlay(ctx, target, logo, includeRejected)
	c.endOp("logo overlay", err)
	return res, err
}

// GenerateEmail returns the email for the active target, generating it once.
func (c *Controller) GenerateEmail(ctx context.Context) (models.Email, error) {
	target, err := c.beginTargetOp("email generation")
	if err != nil {
		return models.Email{}, err
	}
	c.mu.Lock()
	req := models.EmailRequest{
		Prompt:   c.request.Prompt,
		Features: append([]models.Feature(nil), c.requestFeatures...),
		Target:   target,
	}
	c.mu.Unlock()

	email, err := c.gateway.GenerateEmail(ctx, req)
	c.endOp("email generation", err)
	return email, err
}

// SendEmail dispatches the active target's cached email with imageRef. A
// target without a generated email is sent with an empty subject and body.
func (c *Controller) SendEmail(ctx context.Context, imageRef string) error {
	target, err := c.beginTargetOp("email dispatch")
	if err != nil {
		return err
	}
	email, _, cacheErr := c.store.Email(ctx, target)
	if cacheErr != nil {
		c.logger.Warn("email cache lookup failed", map[string]interface{}{"error": cacheErr, "target": target})
	}
	err = c.gateway.SendEmail(ctx, email.Subject, email.Body, imageRef)
	c.endOp("email dispatch", err)
	return err
}

func (c *Controller) beginTargetOp(op string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stage != StageGeneration || c.activeTarget == "" {
		return "", errors.NewValidationError("target", op+" needs a completed campaign and an active target")
	}
	if c.busy {
		return "", errors.NewInProgressError(op)
	}
	c.busy = true
	return c.activeTarget, nil
}

func (c *Controller) endOp(op string, err error) {
	if err != nil {
		c.errs.Handle(op, err)
	}
	c.mu.Lock()
	c.busy = false
	c.lastError = err
	c.mu.Unlock()
	c.publish()
}

// ==========================
// Session events
// ==========================

// sessionObserver forwards events of one session; events from a session the
// controller has since replaced or dropped are ignored.
type sessionObserver struct {
	c       *Controller
	session Session
}

func (o *sessionObserver) current() bool {
	return o.c.session != nil && o.c.session == o.session
}

func (o *sessionObserver) OnStateChange(from, to session.State) {
	c := o.c
	c.mu.Lock()
	if !o.current() {
		c.mu.Unlock()
		return
	}
	c.sessionState = to
	if to == session.Closed {
		c.busy = false
	}
	c.mu.Unlock()
	c.publish()
}

func (o *sessionObserver) OnStatus(message string) {
	c := o.c
	c.mu.Lock()
	if !o.current() {
		c.mu.Unlock()
		return
	}
	c.status = message
	c.mu.Unlock()
	c.publish()
}

func (o *sessionObserver) OnError(err *errors.StandardError) {
	c := o.c
	c.mu.Lock()
	if !o.current() {
		c.mu.Unlock()
		return
	}
	c.lastError = err
	// A retryable stream error means a reconnect is pending.
	if !errors.IsRetryableErrorCode(err.Code) {
		c.busy = false
	}
	c.mu.Unlock()
	c.errs.Handle("generation", err)
	c.publish()
}

func (o *sessionObserver) OnResult(images models.PerTargetImages) {
	c := o.c
	c.mu.Lock()
	if !o.current() || c.request == nil {
		c.mu.Unlock()
		return
	}
	req := c.request.Clone()
	c.anomaly = c.store.ReplaceAll(images, req.TargetAudiences)
	c.busy = false
	c.activeTarget = ""
	if len(req.TargetAudiences) > 0 {
		c.activeTarget = req.TargetAudiences[0]
	}
	record := models.CampaignRecord{
		ID:          uuid.New().String(),
		SessionID:   o.session.ID(),
		Request:     req,
		Results:     c.store.Snapshot(),
		CompletedAt: c.now().UTC(),
	}
	hooks := !c.closed && (c.archiver != nil || c.publisher != nil)
	if hooks {
		c.wg.Add(1)
	}
	c.mu.Unlock()

	c.logger.Info("campaign results received", map[string]interface{}{
		"campaignId": record.ID,
		"targets":    len(record.Results),
	})
	c.publish()

	if hooks {
		go func() {
			defer c.wg.Done()
			c.recordCompletion(record)
		}()
	}
}

func (c *Controller) recordCompletion(record models.CampaignRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), completionTimeout)
	defer cancel()

	if c.archiver != nil {
		if err := c.archiver.Archive(ctx, record); err != nil {
			c.logger.Error("campaign archive failed", map[string]interface{}{"campaignId": record.ID, "error": err})
		}
	}
	if c.publisher != nil {
		if err := c.publisher.PublishCompletion(ctx, record); err != nil {
			c.logger.Error("completion publish failed", map[string]interface{}{"campaignId": record.ID, "error": err})
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
