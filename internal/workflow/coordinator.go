// Package workflow owns the run state machine: it sequences pipeline steps,
// meters credits around paid steps and publishes every transition.
package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"mediaforge/internal/domain"
	"mediaforge/internal/infra"
	"mediaforge/internal/moderation"
	"mediaforge/internal/progress"
	"mediaforge/internal/providers/image"
	"mediaforge/internal/providers/video"
)

const (
	maxPromptLength = 2000
	minVideoSeconds = 1
	maxVideoSeconds = 60
)

// BlobStore persists produced media binaries.
type BlobStore interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
}

// StartRequest is a validated request to begin a run.
type StartRequest struct {
	UserID        string
	Variant       domain.Variant
	ImagePrompt   string
	VideoPrompt   string
	SourceImageID string
	ImageConfig   domain.ImageConfig
	VideoConfig   domain.VideoConfig
	ProjectID     string
}

// StartResult reports the created run.
type StartResult struct {
	RunID         string
	Status        domain.RunStatus
	EstimatedCost int
}

// Snapshot is the polling-fallback view of a run.
type Snapshot struct {
	Run   *domain.Run
	Steps []domain.Step
}

// Config tunes the coordinator.
type Config struct {
	PollInterval         time.Duration
	MaxPollAttempts      int
	ProviderCallTimeout  time.Duration
	MaxActiveRunsPerUser int
	ImageProvider        string
	VideoProvider        string
}

// Coordinator owns the authoritative state of runs. It is the only component
// that mutates a run; steps within a run execute strictly sequentially while
// independent runs execute concurrently, bounded per user.
type Coordinator struct {
	cfg    Config
	runs   domain.RunRepository
	assets domain.AssetRepository
	ledger domain.CreditLedger
	gate   moderation.Gate
	images map[string]image.Generator
	videos map[string]video.Generator
	store  BlobStore
	hub    *progress.Hub
	costs  *CostTable
	poller *Poller
	clock  Clock
	logger infra.Logger

	mu     sync.Mutex
	active map[string]*activeRun
}

type activeRun struct {
	userID   string
	cancel   context.CancelFunc
	done     chan struct{}
	refunded int
}

// Deps bundles the coordinator's collaborators.
type Deps struct {
	Runs   domain.RunRepository
	Assets domain.AssetRepository
	Ledger domain.CreditLedger
	Gate   moderation.Gate
	Images map[string]image.Generator
	Videos map[string]video.Generator
	Store  BlobStore
	Hub    *progress.Hub
	Costs  *CostTable
	Clock  Clock
	Logger infra.Logger
}

// NewCoordinator wires a coordinator from its collaborators.
func NewCoordinator(cfg Config, deps Deps) *Coordinator {
	clock := deps.Clock
	if clock == nil {
		clock = realClock{}
	}
	if cfg.MaxActiveRunsPerUser <= 0 {
		cfg.MaxActiveRunsPerUser = 3
	}
	if cfg.ProviderCallTimeout <= 0 {
		cfg.ProviderCallTimeout = time.Minute
	}
	return &Coordinator{
		cfg:    cfg,
		runs:   deps.Runs,
		assets: deps.Assets,
		ledger: deps.Ledger,
		gate:   deps.Gate,
		images: deps.Images,
		videos: deps.Videos,
		store:  deps.Store,
		hub:    deps.Hub,
		costs:  deps.Costs,
		poller: NewPoller(clock, deps.Logger),
		clock:  clock,
		logger: deps.Logger,
		active: make(map[string]*activeRun),
	}
}

// Start validates the request, persists a queued run with its pending step
// list, and begins asynchronous execution. The pre-flight cost check rejects
// runs the balance cannot cover before any step executes.
func (c *Coordinator) Start(ctx context.Context, req StartRequest) (*StartResult, error) {
	if err := c.validate(req); err != nil {
		return nil, err
	}

	activeCount, err := c.runs.CountActive(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("count active runs: %w", err)
	}
	if activeCount >= c.cfg.MaxActiveRunsPerUser {
		return nil, fmt.Errorf("%w: limit is %d", domain.ErrTooManyActiveRuns, c.cfg.MaxActiveRunsPerUser)
	}

	run := &domain.Run{
		ID:            uuid.NewString(),
		UserID:        req.UserID,
		Variant:       req.Variant,
		ImagePrompt:   strings.TrimSpace(req.ImagePrompt),
		VideoPrompt:   strings.TrimSpace(req.VideoPrompt),
		SourceImageID: req.SourceImageID,
		ImageConfig:   req.ImageConfig,
		VideoConfig:   req.VideoConfig,
		Status:        domain.RunStatusQueued,
		ProjectID:     req.ProjectID,
		CreatedAt:     c.clock.Now(),
	}

	estimated := c.costs.EstimatedRunCost(run)
	balance, err := c.ledger.Balance(ctx, run.UserID)
	if err != nil {
		return nil, fmt.Errorf("read balance: %w", err)
	}
	if balance < estimated {
		return nil, &domain.InsufficientCreditsError{Required: estimated, Available: balance}
	}

	steps := domain.StepsForVariant(run.Variant)
	for i := range steps {
		steps[i].Cost = c.costs.StepCost(steps[i].Key, run)
	}

	if err := c.runs.Create(ctx, run, steps); err != nil {
		return nil, fmt.Errorf("persist run: %w", err)
	}

	c.hub.Track(run.ID)

	runCtx, cancel := context.WithCancel(context.Background())
	ar := &activeRun{userID: run.UserID, cancel: cancel, done: make(chan struct{})}
	c.mu.Lock()
	c.active[run.ID] = ar
	c.mu.Unlock()

	go c.execute(runCtx, run, steps, ar)

	return &StartResult{RunID: run.ID, Status: run.Status, EstimatedCost: estimated}, nil
}

// Cancel requests cooperative cancellation and reports the refunded amount.
// Cancellation takes effect at the next poll tick or step boundary.
func (c *Coordinator) Cancel(ctx context.Context, runID, userID string) (int, error) {
	c.mu.Lock()
	ar, ok := c.active[runID]
	c.mu.Unlock()

	if !ok {
		run, err := c.runs.GetByID(ctx, runID)
		if err != nil {
			return 0, err
		}
		if run.UserID != userID {
			return 0, domain.ErrNotFound
		}
		return 0, domain.ErrRunTerminal
	}
	if ar.userID != userID {
		return 0, domain.ErrNotFound
	}

	ar.cancel()
	select {
	case <-ar.done:
		return ar.refunded, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Status returns the persisted run and step snapshot for polling fallback.
func (c *Coordinator) Status(ctx context.Context, runID, userID string) (*Snapshot, error) {
	run, err := c.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.UserID != userID {
		return nil, domain.ErrNotFound
	}
	steps, err := c.runs.ListSteps(ctx, runID)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Run: run, Steps: steps}, nil
}

// Assets lists the run's produced assets.
func (c *Coordinator) Assets(ctx context.Context, runID, userID string) ([]domain.Asset, error) {
	run, err := c.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return c.assets.ListByRunID(ctx, runID)
}

func (c *Coordinator) validate(req StartRequest) error {
	if !req.Variant.Valid() {
		return fmt.Errorf("%w: unknown variant %q", domain.ErrInvalidConfiguration, req.Variant)
	}
	switch req.Variant {
	case domain.VariantComplete, domain.VariantImageOnly:
		if strings.TrimSpace(req.ImagePrompt) == "" {
			return fmt.Errorf("%w: image prompt is required", domain.ErrInvalidConfiguration)
		}
	case domain.VariantVideoFromImage:
		if strings.TrimSpace(req.VideoPrompt) == "" {
			return fmt.Errorf("%w: video prompt is required", domain.ErrInvalidConfiguration)
		}
		if strings.TrimSpace(req.SourceImageID) == "" {
			return fmt.Errorf("%w: source image id is required", domain.ErrInvalidConfiguration)
		}
	}
	for _, prompt := range []string{req.ImagePrompt, req.VideoPrompt} {
		if len(prompt) > maxPromptLength {
			return fmt.Errorf("%w: prompt exceeds %d characters", domain.ErrInvalidConfiguration, maxPromptLength)
		}
	}

	needsImage := req.Variant == domain.VariantComplete || req.Variant == domain.VariantImageOnly
	needsVideo := req.Variant == domain.VariantComplete || req.Variant == domain.VariantVideoFromImage
	if needsImage {
		if _, ok := c.images[c.cfg.ImageProvider]; !ok {
			return fmt.Errorf("%w: image provider %q is not configured", domain.ErrInvalidConfiguration, c.cfg.ImageProvider)
		}
	}
	if needsVideo {
		if _, ok := c.videos[c.cfg.VideoProvider]; !ok {
			return fmt.Errorf("%w: video provider %q is not configured", domain.ErrInvalidConfiguration, c.cfg.VideoProvider)
		}
		d := req.VideoConfig.DurationSeconds
		if d < minVideoSeconds || d > maxVideoSeconds {
			return fmt.Errorf("%w: video duration must be between %d and %d seconds", domain.ErrInvalidConfiguration, minVideoSeconds, maxVideoSeconds)
		}
	}
	return nil
}
