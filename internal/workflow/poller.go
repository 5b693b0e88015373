package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mediaforge/internal/domain"
	"mediaforge/internal/infra"
	"mediaforge/internal/providers/video"
)

// Poller converts a long-running asynchronous provider job into a bounded,
// observable operation: fixed-interval polling, a hard attempt cap, a
// monotonic progress estimate and cooperative cancellation.
type Poller struct {
	clock  Clock
	logger infra.Logger
}

// NewPoller builds a poller on the given clock.
func NewPoller(clock Clock, logger infra.Logger) *Poller {
	if clock == nil {
		clock = realClock{}
	}
	return &Poller{clock: clock, logger: logger}
}

const upstreamCancelTimeout = 5 * time.Second

// Await polls the job until it reaches a terminal verdict. The progress
// callback receives an estimate derived from elapsed attempts, capped below
// 100 until the provider reports completion. On context cancellation the
// loop stops at the next tick and a best-effort upstream cancel is issued;
// an unsupported upstream cancel abandons the job without erroring.
func (p *Poller) Await(ctx context.Context, gen video.Generator, jobID string, interval time.Duration, maxAttempts int, onProgress func(pct int)) (video.PollResult, error) {
	if maxAttempts <= 0 {
		return video.PollResult{}, fmt.Errorf("poller: maxAttempts must be positive")
	}

	lastStatus := video.StatusPending
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			p.cancelUpstream(ctx, gen, jobID)
			return video.PollResult{}, fmt.Errorf("%w: polling stopped", domain.ErrRunCancelled)
		case <-p.clock.After(interval):
		}

		result, err := gen.Poll(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				p.cancelUpstream(ctx, gen, jobID)
				return video.PollResult{}, fmt.Errorf("%w: polling stopped", domain.ErrRunCancelled)
			}
			// Transient poll errors consume an attempt and the loop
			// keeps going; the attempt cap still bounds total wait.
			p.logger.Warn().Err(err).Str("job_id", jobID).Int("attempt", attempt).Msg("poller: poll failed")
			continue
		}

		lastStatus = result.Status
		switch result.Status {
		case video.StatusCompleted:
			return result, nil
		case video.StatusFailed, video.StatusCancelled:
			reason := result.Error
			if reason == "" {
				reason = string(result.Status)
			}
			return video.PollResult{}, fmt.Errorf("%w: job %s: %s", domain.ErrProviderCallFailed, jobID, reason)
		}

		if onProgress != nil {
			onProgress(progressEstimate(attempt, maxAttempts))
		}
	}

	p.cancelUpstream(ctx, gen, jobID)
	return video.PollResult{}, fmt.Errorf("%w: job %s still %s after %d attempts", domain.ErrProviderTimeout, jobID, lastStatus, maxAttempts)
}

// cancelUpstream asks the provider to stop the job. Providers that do not
// support cancellation are tolerated; the job is simply abandoned.
func (p *Poller) cancelUpstream(ctx context.Context, gen video.Generator, jobID string) {
	cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), upstreamCancelTimeout)
	defer cancel()

	if err := gen.Cancel(cancelCtx, jobID); err != nil {
		if errors.Is(err, video.ErrCancelUnsupported) {
			p.logger.Debug().Str("job_id", jobID).Msg("poller: upstream cancel unsupported, abandoning job")
			return
		}
		p.logger.Warn().Err(err).Str("job_id", jobID).Msg("poller: upstream cancel failed")
	}
}

// progressEstimate maps elapsed attempts onto 0..95 so the estimate never
// claims completion before the provider does.
func progressEstimate(attempt, maxAttempts int) int {
	pct := attempt * 95 / maxAttempts
	if pct > 95 {
		pct = 95
	}
	return pct
}
