package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mediaforge/internal/domain"
	"mediaforge/internal/progress"
	"mediaforge/internal/providers/image"
	"mediaforge/internal/providers/video"
)

type stepDebit struct {
	txnID  string
	amount int
}

// runState carries everything one executing run accumulates across steps.
// Only the run's own goroutine touches it.
type runState struct {
	run   *domain.Run
	steps []domain.Step
	ar    *activeRun

	debit          *stepDebit
	imageGen       *image.GeneratedImage
	imageData      []byte
	imageAsset     *domain.Asset
	sourceImageURL string
	videoSeedID    string
	videoJobID     string
	videoData      []byte
	videoURL       string
}

const persistTimeout = 10 * time.Second

// persistContext is used for writes that must survive run cancellation:
// state transitions and refunds are recorded even when the run context is
// already done.
func persistContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), persistTimeout)
}

// execute drives one run to a terminal status. Failures never leave a step in
// an ambiguous state: the failing step is marked terminal and outstanding
// debits are refunded before the final event is published.
func (c *Coordinator) execute(ctx context.Context, run *domain.Run, steps []domain.Step, ar *activeRun) {
	defer func() {
		c.mu.Lock()
		delete(c.active, run.ID)
		c.mu.Unlock()
		close(ar.done)
	}()

	rs := &runState{run: run, steps: steps, ar: ar}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Str("run_id", run.ID).Interface("panic", r).Msg("workflow: run panicked")
			c.refundOutstanding(rs, domain.ErrProviderCallFailed)
			c.finishFailed(rs, nil, fmt.Errorf("panic: %v", r))
		}
	}()

	now := c.clock.Now()
	run.Status = domain.RunStatusRunning
	run.StartedAt = &now
	c.persistRun(rs)
	c.publishStatus(rs)

	for i := range rs.steps {
		st := &rs.steps[i]

		if ctx.Err() != nil {
			c.finishCancelled(rs, i)
			return
		}

		c.markStepProcessing(rs, st)
		err := c.runStep(ctx, rs, st)
		if err == nil {
			c.markStepCompleted(rs, st)
			continue
		}

		c.refundOutstanding(rs, err)
		if errors.Is(err, domain.ErrRunCancelled) || errors.Is(err, context.Canceled) {
			c.finishCancelled(rs, i)
			return
		}
		c.finishFailed(rs, st, err)
		return
	}

	c.finishCompleted(rs)
}

func (c *Coordinator) runStep(ctx context.Context, rs *runState, st *domain.Step) error {
	switch st.Key {
	case domain.StepValidation:
		return c.stepValidation(ctx, rs, st)
	case domain.StepImageGeneration:
		return c.stepImageGeneration(ctx, rs, st)
	case domain.StepImageUpload:
		return c.stepImageUpload(ctx, rs, st)
	case domain.StepVideoGeneration:
		return c.stepVideoGeneration(ctx, rs, st)
	case domain.StepVideoUpload:
		return c.stepVideoUpload(ctx, rs, st)
	case domain.StepFinalization:
		return c.stepFinalization(ctx, rs, st)
	default:
		return fmt.Errorf("unknown step %q", st.Key)
	}
}

// stepValidation runs prompt checks and the moderation gate before any credit
// is charged. A deny verdict aborts the run with no charge.
func (c *Coordinator) stepValidation(ctx context.Context, rs *runState, st *domain.Step) error {
	run := rs.run

	if run.Variant == domain.VariantVideoFromImage {
		asset, err := c.assets.GetByID(ctx, run.SourceImageID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("%w: source image %q not found", domain.ErrInvalidConfiguration, run.SourceImageID)
			}
			return fmt.Errorf("load source image: %w", err)
		}
		if asset.UserID != run.UserID || asset.Kind != domain.AssetKindImage || asset.Status != domain.AssetStatusReady {
			return fmt.Errorf("%w: source image %q is not usable", domain.ErrInvalidConfiguration, run.SourceImageID)
		}
		rs.sourceImageURL = asset.StorageKey
		rs.videoSeedID = asset.ID
	}

	prompts := make([]string, 0, 2)
	if run.ImagePrompt != "" {
		prompts = append(prompts, run.ImagePrompt)
	}
	if run.VideoPrompt != "" && run.VideoPrompt != run.ImagePrompt {
		prompts = append(prompts, run.VideoPrompt)
	}
	for _, prompt := range prompts {
		verdict, err := c.gate.Check(ctx, prompt)
		if err != nil {
			return fmt.Errorf("moderation check: %w", err)
		}
		if !verdict.Allowed {
			reason := verdict.Reason
			if reason == "" {
				reason = "prompt was rejected by moderation"
			}
			return fmt.Errorf("%w: %s", domain.ErrContentRejected, reason)
		}
	}

	st.ResultJSON = mustJSON(map[string]any{"moderated_prompts": len(prompts)})
	return nil
}

// stepImageGeneration debits the step cost, then performs the synchronous
// provider call. The debit precedes the call so a refused debit never reaches
// the provider.
func (c *Coordinator) stepImageGeneration(ctx context.Context, rs *runState, st *domain.Step) error {
	if err := c.debitStep(ctx, rs, st, domain.ReasonImageGeneration); err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.ProviderCallTimeout)
	defer cancel()

	gen := c.images[c.cfg.ImageProvider]
	result, err := gen.Generate(callCtx, image.GenerateRequest{
		Prompt:    rs.run.ImagePrompt,
		Style:     rs.run.ImageConfig.Style,
		Quality:   rs.run.ImageConfig.Quality,
		Size:      rs.run.ImageConfig.Size,
		RequestID: rs.run.ID,
	})
	if err != nil {
		return c.providerErr(ctx, err)
	}

	c.consumeDebit(rs)
	rs.imageGen = result
	rs.imageData = result.Data
	st.ResultJSON = mustJSON(map[string]any{
		"provider": c.cfg.ImageProvider,
		"width":    result.Width,
		"height":   result.Height,
	})
	return nil
}

// stepImageUpload persists the generated image binary and its asset record.
// Results the provider returned by reference keep the provider URL as the
// storage key, as the asset store treats remote keys as already delivered.
func (c *Coordinator) stepImageUpload(ctx context.Context, rs *runState, st *domain.Step) error {
	if rs.imageGen == nil {
		return fmt.Errorf("image upload without generated image")
	}

	key := fmt.Sprintf("generated/images/%s/image%s", rs.run.ID, extensionFor(rs.imageGen.Format, ".png"))
	if len(rs.imageData) > 0 {
		stored, err := c.store.Write(ctx, key, rs.imageData)
		if err != nil {
			return fmt.Errorf("store image: %w", err)
		}
		key = stored
	} else {
		key = rs.imageGen.URL
	}

	asset := &domain.Asset{
		ID:         uuid.NewString(),
		UserID:     rs.run.UserID,
		RunID:      rs.run.ID,
		Kind:       domain.AssetKindImage,
		Status:     domain.AssetStatusReady,
		StorageKey: key,
		Provider:   c.cfg.ImageProvider,
		Prompt:     rs.run.ImagePrompt,
		Width:      rs.imageGen.Width,
		Height:     rs.imageGen.Height,
	}
	if err := c.assets.Save(ctx, asset); err != nil {
		return fmt.Errorf("persist image asset: %w", err)
	}

	rs.imageAsset = asset
	rs.sourceImageURL = key
	st.ResultJSON = mustJSON(map[string]any{"asset_id": asset.ID, "storage_key": key})
	return nil
}

// stepVideoGeneration debits the step cost, submits the asynchronous job and
// waits on it through the poller, forwarding progress estimates.
func (c *Coordinator) stepVideoGeneration(ctx context.Context, rs *runState, st *domain.Step) error {
	if err := c.debitStep(ctx, rs, st, domain.ReasonVideoGeneration); err != nil {
		return err
	}

	run := rs.run
	gen := c.videos[c.cfg.VideoProvider]

	prompt := run.VideoPrompt
	if prompt == "" {
		prompt = run.ImagePrompt
	}

	submitCtx, cancelSubmit := context.WithTimeout(ctx, c.cfg.ProviderCallTimeout)
	jobID, err := gen.Submit(submitCtx, video.GenerateRequest{
		Prompt:          prompt,
		SourceImageURL:  rs.sourceImageURL,
		DurationSeconds: run.VideoConfig.DurationSeconds,
		Resolution:      run.VideoConfig.Resolution,
		WithAudio:       run.VideoConfig.WithAudio,
		RequestID:       run.ID,
	})
	cancelSubmit()
	if err != nil {
		return c.providerErr(ctx, err)
	}
	rs.videoJobID = jobID
	c.logger.Info().Str("run_id", run.ID).Str("job_id", jobID).Msg("workflow: video job submitted")

	result, err := c.poller.Await(ctx, gen, jobID, c.cfg.PollInterval, c.cfg.MaxPollAttempts, func(pct int) {
		c.advanceStep(rs, st, pct)
	})
	if err != nil {
		return err
	}

	if len(result.Data) == 0 && result.VideoURL != "" {
		downloadCtx, cancelDownload := context.WithTimeout(ctx, c.cfg.ProviderCallTimeout)
		data, err := gen.Download(downloadCtx, result.VideoURL)
		cancelDownload()
		if err != nil {
			return c.providerErr(ctx, err)
		}
		result.Data = data
	}

	c.consumeDebit(rs)
	rs.videoData = result.Data
	rs.videoURL = result.VideoURL
	st.ResultJSON = mustJSON(map[string]any{"provider": c.cfg.VideoProvider, "job_id": jobID})
	return nil
}

// stepVideoUpload persists the produced video and its asset record, linking
// the image asset that seeded it when there is one.
func (c *Coordinator) stepVideoUpload(ctx context.Context, rs *runState, st *domain.Step) error {
	key := fmt.Sprintf("generated/videos/%s/video.mp4", rs.run.ID)
	if len(rs.videoData) > 0 {
		stored, err := c.store.Write(ctx, key, rs.videoData)
		if err != nil {
			return fmt.Errorf("store video: %w", err)
		}
		key = stored
	} else if rs.videoURL != "" {
		key = rs.videoURL
	} else {
		return fmt.Errorf("video upload without produced video")
	}

	seedID := rs.videoSeedID
	if rs.imageAsset != nil {
		seedID = rs.imageAsset.ID
	}

	asset := &domain.Asset{
		ID:              uuid.NewString(),
		UserID:          rs.run.UserID,
		RunID:           rs.run.ID,
		Kind:            domain.AssetKindVideo,
		Status:          domain.AssetStatusReady,
		StorageKey:      key,
		Provider:        c.cfg.VideoProvider,
		Prompt:          rs.run.VideoPrompt,
		DurationSeconds: rs.run.VideoConfig.DurationSeconds,
		SourceAssetID:   seedID,
	}
	if err := c.assets.Save(ctx, asset); err != nil {
		return fmt.Errorf("persist video asset: %w", err)
	}

	st.ResultJSON = mustJSON(map[string]any{"asset_id": asset.ID, "storage_key": key})
	return nil
}

// stepFinalization assembles the run summary.
func (c *Coordinator) stepFinalization(ctx context.Context, rs *runState, st *domain.Step) error {
	assets, err := c.assets.ListByRunID(ctx, rs.run.ID)
	if err != nil {
		return fmt.Errorf("list run assets: %w", err)
	}
	ids := make([]string, 0, len(assets))
	for _, a := range assets {
		ids = append(ids, a.ID)
	}
	st.ResultJSON = mustJSON(map[string]any{"asset_ids": ids, "total_cost": rs.run.TotalCost})
	return nil
}

// debitStep charges the step before its provider call. A refused debit means
// the provider is never invoked.
func (c *Coordinator) debitStep(ctx context.Context, rs *runState, st *domain.Step, reason domain.CreditReason) error {
	if st.Cost <= 0 {
		return nil
	}
	txnID, err := c.ledger.Debit(ctx, rs.run.UserID, st.Cost, reason, rs.run.ID)
	if err != nil {
		return err
	}
	rs.debit = &stepDebit{txnID: txnID, amount: st.Cost}
	return nil
}

// consumeDebit marks the current step's debit as spent by a completed step.
func (c *Coordinator) consumeDebit(rs *runState) {
	if rs.debit == nil {
		return
	}
	rs.run.TotalCost += rs.debit.amount
	rs.debit = nil
}

// refundOutstanding refunds any debited-but-unconsumed amount of the current
// step, so the balance is already corrected by the time the final event is
// published.
func (c *Coordinator) refundOutstanding(rs *runState, cause error) {
	if rs.debit == nil {
		return
	}
	reason := domain.ReasonRefundFailure
	cancelled := errors.Is(cause, domain.ErrRunCancelled) || errors.Is(cause, context.Canceled)
	switch {
	case cancelled:
		reason = domain.ReasonRefundCancelled
	case errors.Is(cause, domain.ErrProviderTimeout):
		reason = domain.ReasonRefundTimeout
	}

	ctx, cancel := persistContext()
	defer cancel()
	if _, err := c.ledger.Refund(ctx, rs.run.UserID, rs.debit.amount, reason, rs.debit.txnID); err != nil && !errors.Is(err, domain.ErrDuplicateOperation) {
		c.logger.Error().Err(err).Str("run_id", rs.run.ID).Int("amount", rs.debit.amount).Msg("workflow: refund failed")
	} else if cancelled {
		rs.ar.refunded += rs.debit.amount
	}
	rs.debit = nil
}

func (c *Coordinator) providerErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", domain.ErrRunCancelled, ctx.Err())
	}
	return fmt.Errorf("%w: %v", domain.ErrProviderCallFailed, err)
}

// classify maps an error onto the step/run failure reason surfaced to users.
// Unexpected errors are logged and reported generically.
func (c *Coordinator) classify(runID string, err error) string {
	switch {
	case errors.Is(err, domain.ErrContentRejected),
		errors.Is(err, domain.ErrInsufficientCredits),
		errors.Is(err, domain.ErrInvalidConfiguration):
		return err.Error()
	case errors.Is(err, domain.ErrProviderTimeout):
		return "generation timed out"
	case errors.Is(err, domain.ErrProviderCallFailed):
		return "generation provider failed"
	default:
		c.logger.Error().Err(err).Str("run_id", runID).Msg("workflow: internal failure")
		return "internal error"
	}
}

func mustJSON(v any) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		return []byte(`{}`)
	}
	return raw
}

func extensionFor(format, fallback string) string {
	switch format {
	case "image/png", "png":
		return ".png"
	case "image/jpeg", "jpeg", "jpg":
		return ".jpg"
	case "image/webp", "webp":
		return ".webp"
	default:
		return fallback
	}
}

// ---- state transitions & publishing ----

func (c *Coordinator) markStepProcessing(rs *runState, st *domain.Step) {
	now := c.clock.Now()
	st.Status = domain.StepStatusProcessing
	st.Progress = 0
	st.StartedAt = &now
	c.persistStep(rs.run.ID, st)
	c.publishStep(rs, st)
}

func (c *Coordinator) markStepCompleted(rs *runState, st *domain.Step) {
	now := c.clock.Now()
	st.Status = domain.StepStatusCompleted
	st.Progress = 100
	st.CompletedAt = &now
	c.persistStep(rs.run.ID, st)
	c.publishStep(rs, st)
}

func (c *Coordinator) markStepFailed(rs *runState, st *domain.Step, reason string) {
	now := c.clock.Now()
	st.Status = domain.StepStatusFailed
	st.ErrorReason = reason
	st.CompletedAt = &now
	c.persistStep(rs.run.ID, st)
	c.publishStep(rs, st)
}

// advanceStep raises the step's progress estimate. Progress never decreases.
func (c *Coordinator) advanceStep(rs *runState, st *domain.Step, pct int) {
	if pct <= st.Progress || pct > 100 {
		return
	}
	st.Progress = pct
	c.persistStep(rs.run.ID, st)
	c.publishStep(rs, st)
}

func (c *Coordinator) finishCompleted(rs *runState) {
	now := c.clock.Now()
	rs.run.Status = domain.RunStatusCompleted
	rs.run.CompletedAt = &now
	c.persistRun(rs)
	c.logger.Info().Str("run_id", rs.run.ID).Int("total_cost", rs.run.TotalCost).Msg("workflow: run completed")
	c.publishComplete(rs)
}

func (c *Coordinator) finishFailed(rs *runState, st *domain.Step, err error) {
	reason := c.classify(rs.run.ID, err)
	if st != nil {
		c.markStepFailed(rs, st, reason)
	}
	now := c.clock.Now()
	rs.run.Status = domain.RunStatusFailed
	rs.run.ErrorMessage = reason
	rs.run.CompletedAt = &now
	c.persistRun(rs)
	c.logger.Warn().Str("run_id", rs.run.ID).Str("reason", reason).Msg("workflow: run failed")
	c.hub.Publish(rs.run.ID, progress.Event{Type: progress.EventError, Status: rs.run.Status, Error: reason})
	c.publishComplete(rs)
}

// finishCancelled marks the step at fromIdx and every later non-terminal step
// failed with reason "cancelled", then terminates the run.
func (c *Coordinator) finishCancelled(rs *runState, fromIdx int) {
	for i := fromIdx; i < len(rs.steps); i++ {
		st := &rs.steps[i]
		if st.Status == domain.StepStatusPending || st.Status == domain.StepStatusProcessing {
			c.markStepFailed(rs, st, "cancelled")
		}
	}
	now := c.clock.Now()
	rs.run.Status = domain.RunStatusCancelled
	rs.run.CompletedAt = &now
	c.persistRun(rs)
	c.logger.Info().Str("run_id", rs.run.ID).Int("refunded", rs.ar.refunded).Msg("workflow: run cancelled")
	c.publishComplete(rs)
}

func (c *Coordinator) persistRun(rs *runState) {
	ctx, cancel := persistContext()
	defer cancel()
	if err := c.runs.UpdateRun(ctx, rs.run); err != nil {
		c.logger.Error().Err(err).Str("run_id", rs.run.ID).Msg("workflow: persist run failed")
	}
}

func (c *Coordinator) persistStep(runID string, st *domain.Step) {
	ctx, cancel := persistContext()
	defer cancel()
	if err := c.runs.UpdateStep(ctx, runID, st); err != nil {
		c.logger.Error().Err(err).Str("run_id", runID).Str("step", string(st.Key)).Msg("workflow: persist step failed")
	}
}

func (c *Coordinator) publishStatus(rs *runState) {
	c.hub.Publish(rs.run.ID, progress.Event{
		Type:   progress.EventStatus,
		Status: rs.run.Status,
		Steps:  progress.StepViewsOf(rs.steps),
	})
}

func (c *Coordinator) publishStep(rs *runState, st *domain.Step) {
	view := progress.StepViewOf(*st)
	c.hub.Publish(rs.run.ID, progress.Event{
		Type:   progress.EventStepUpdate,
		Status: rs.run.Status,
		Step:   &view,
	})
}

func (c *Coordinator) publishComplete(rs *runState) {
	c.hub.Publish(rs.run.ID, progress.Event{
		Type:      progress.EventComplete,
		Status:    rs.run.Status,
		Steps:     progress.StepViewsOf(rs.steps),
		TotalCost: rs.run.TotalCost,
		Refunded:  rs.ar.refunded,
		Error:     rs.run.ErrorMessage,
	})
}
