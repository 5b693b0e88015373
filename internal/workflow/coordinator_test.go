package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"mediaforge/internal/domain"
	"mediaforge/internal/moderation"
	"mediaforge/internal/progress"
	"mediaforge/internal/providers/image"
	"mediaforge/internal/providers/video"
)

// stubClock never sleeps: After fires immediately unless block is set, in
// which case it never fires and only context cancellation can unblock the
// poll loop.
type stubClock struct {
	block bool
}

func (c stubClock) Now() time.Time { return time.Now() }

func (c stubClock) After(time.Duration) <-chan time.Time {
	if c.block {
		return nil
	}
	ch := make(chan time.Time)
	close(ch)
	return ch
}

type stubRunRepo struct {
	mu     sync.Mutex
	runs   map[string]*domain.Run
	steps  map[string][]domain.Step
	active int
}

func newStubRunRepo() *stubRunRepo {
	return &stubRunRepo{runs: make(map[string]*domain.Run), steps: make(map[string][]domain.Step)}
}

func (s *stubRunRepo) Create(ctx context.Context, run *domain.Run, steps []domain.Step) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *run
	s.runs[run.ID] = &cp
	s.steps[run.ID] = append([]domain.Step(nil), steps...)
	return nil
}

func (s *stubRunRepo) GetByID(ctx context.Context, runID string) (*domain.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *run
	return &cp, nil
}

func (s *stubRunRepo) ListSteps(ctx context.Context, runID string) ([]domain.Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Step(nil), s.steps[runID]...), nil
}

func (s *stubRunRepo) UpdateRun(ctx context.Context, run *domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

func (s *stubRunRepo) UpdateStep(ctx context.Context, runID string, step *domain.Step) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	steps := s.steps[runID]
	for i := range steps {
		if steps[i].Key == step.Key {
			steps[i] = *step
			return nil
		}
	}
	return fmt.Errorf("unknown step %q", step.Key)
}

func (s *stubRunRepo) CountActive(ctx context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active, nil
}

type ledgerEntry struct {
	amount int
	reason domain.CreditReason
}

type stubLedger struct {
	mu       sync.Mutex
	balances map[string]int
	nextTxn  int
	refunded map[string]bool
	entries  []ledgerEntry
	debitErr error
}

func newStubLedger(userID string, balance int) *stubLedger {
	return &stubLedger{
		balances: map[string]int{userID: balance},
		refunded: make(map[string]bool),
	}
}

func (s *stubLedger) Debit(ctx context.Context, userID string, amount int, reason domain.CreditReason, runID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.debitErr != nil {
		return "", s.debitErr
	}
	if s.balances[userID] < amount {
		return "", &domain.InsufficientCreditsError{Required: amount, Available: s.balances[userID]}
	}
	s.balances[userID] -= amount
	s.nextTxn++
	s.entries = append(s.entries, ledgerEntry{amount: -amount, reason: reason})
	return fmt.Sprintf("txn-%d", s.nextTxn), nil
}

func (s *stubLedger) Refund(ctx context.Context, userID string, amount int, reason domain.CreditReason, originalTxnID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refunded[originalTxnID] {
		return "", domain.ErrDuplicateOperation
	}
	s.refunded[originalTxnID] = true
	s.balances[userID] += amount
	s.nextTxn++
	s.entries = append(s.entries, ledgerEntry{amount: amount, reason: reason})
	return fmt.Sprintf("txn-%d", s.nextTxn), nil
}

func (s *stubLedger) Balance(ctx context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[userID], nil
}

func (s *stubLedger) balanceOf(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[userID]
}

func (s *stubLedger) reasons() []domain.CreditReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.CreditReason, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.reason)
	}
	return out
}

type stubAssetRepo struct {
	mu     sync.Mutex
	assets map[string]*domain.Asset
}

func newStubAssetRepo() *stubAssetRepo {
	return &stubAssetRepo{assets: make(map[string]*domain.Asset)}
}

func (s *stubAssetRepo) Save(ctx context.Context, asset *domain.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *asset
	s.assets[asset.ID] = &cp
	return nil
}

func (s *stubAssetRepo) GetByID(ctx context.Context, assetID string) (*domain.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	asset, ok := s.assets[assetID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *asset
	return &cp, nil
}

func (s *stubAssetRepo) ListByRunID(ctx context.Context, runID string) ([]domain.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Asset
	for _, asset := range s.assets {
		if asset.RunID == runID {
			out = append(out, *asset)
		}
	}
	return out, nil
}

type stubBlobStore struct {
	mu     sync.Mutex
	writes map[string][]byte
}

func newStubBlobStore() *stubBlobStore {
	return &stubBlobStore{writes: make(map[string][]byte)}
}

func (s *stubBlobStore) Write(ctx context.Context, key string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes[key] = append([]byte(nil), data...)
	return key, nil
}

type stubGate struct {
	verdict moderation.Verdict
	err     error
}

func (s stubGate) Check(ctx context.Context, prompt string) (moderation.Verdict, error) {
	return s.verdict, s.err
}

type stubImageGen struct {
	mu     sync.Mutex
	calls  int
	result *image.GeneratedImage
	err    error
}

func (s *stubImageGen) Generate(ctx context.Context, req image.GenerateRequest) (*image.GeneratedImage, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func (s *stubImageGen) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubVideoGen struct {
	mu        sync.Mutex
	jobID     string
	polls     []video.PollResult
	pollIdx   int
	submits   int
	cancels   int
	cancelErr error
	data      []byte
}

func (s *stubVideoGen) Submit(ctx context.Context, req video.GenerateRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submits++
	return s.jobID, nil
}

func (s *stubVideoGen) Poll(ctx context.Context, jobID string) (video.PollResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.polls) == 0 {
		return video.PollResult{Status: video.StatusRunning}, nil
	}
	result := s.polls[s.pollIdx]
	if s.pollIdx < len(s.polls)-1 {
		s.pollIdx++
	}
	return result, nil
}

func (s *stubVideoGen) Cancel(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancels++
	return s.cancelErr
}

func (s *stubVideoGen) Download(ctx context.Context, outputURL string) ([]byte, error) {
	return s.data, nil
}

func (s *stubVideoGen) cancelCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancels
}

type coordinatorFixture struct {
	coordinator *Coordinator
	runs        *stubRunRepo
	assets      *stubAssetRepo
	ledger      *stubLedger
	store       *stubBlobStore
	imageGen    *stubImageGen
	videoGen    *stubVideoGen
	hub         *progress.Hub
}

func newCoordinatorFixture(t *testing.T, balance int, clock Clock, gate moderation.Gate) *coordinatorFixture {
	t.Helper()

	f := &coordinatorFixture{
		runs:   newStubRunRepo(),
		assets: newStubAssetRepo(),
		ledger: newStubLedger("user-1", balance),
		store:  newStubBlobStore(),
		imageGen: &stubImageGen{result: &image.GeneratedImage{
			Data:   []byte("png-bytes"),
			Format: "png",
			Width:  1024,
			Height: 1024,
		}},
		videoGen: &stubVideoGen{jobID: "job-1", polls: []video.PollResult{
			{Status: video.StatusRunning},
			{Status: video.StatusCompleted, Data: []byte("mp4-bytes")},
		}},
		hub: progress.NewHub(time.Minute),
	}
	f.coordinator = NewCoordinator(Config{
		PollInterval:         time.Millisecond,
		MaxPollAttempts:      5,
		ProviderCallTimeout:  time.Second,
		MaxActiveRunsPerUser: 3,
		ImageProvider:        "test",
		VideoProvider:        "test",
	}, Deps{
		Runs:   f.runs,
		Assets: f.assets,
		Ledger: f.ledger,
		Gate:   gate,
		Images: map[string]image.Generator{"test": f.imageGen},
		Videos: map[string]video.Generator{"test": f.videoGen},
		Store:  f.store,
		Hub:    f.hub,
		Costs:  DefaultCostTable(),
		Clock:  clock,
		Logger: zerolog.Nop(),
	})
	return f
}

func completeRequest() StartRequest {
	return StartRequest{
		UserID:      "user-1",
		Variant:     domain.VariantComplete,
		ImagePrompt: "a lighthouse at dusk",
		VideoPrompt: "waves crashing around the lighthouse",
		ImageConfig: domain.ImageConfig{Quality: "standard", Size: "1024x1024"},
		VideoConfig: domain.VideoConfig{DurationSeconds: 8, Resolution: "720p"},
	}
}

func waitTerminal(t *testing.T, f *coordinatorFixture, runID string) *Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := f.coordinator.Status(context.Background(), runID, "user-1")
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if snap.Run.Status.Terminal() {
			return snap
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("run %s never reached a terminal status", runID)
	return nil
}

func TestStartCompleteRunHappyPath(t *testing.T) {
	f := newCoordinatorFixture(t, 100, stubClock{}, stubGate{verdict: moderation.Verdict{Allowed: true}})

	res, err := f.coordinator.Start(context.Background(), completeRequest())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	// standard 1024x1024 image is 10, 8s of 720p video is 16.
	if res.EstimatedCost != 26 {
		t.Fatalf("estimated cost = %d, want 26", res.EstimatedCost)
	}

	snap := waitTerminal(t, f, res.RunID)
	if snap.Run.Status != domain.RunStatusCompleted {
		t.Fatalf("run status = %s, want completed (error=%q)", snap.Run.Status, snap.Run.ErrorMessage)
	}
	if snap.Run.TotalCost != 26 {
		t.Errorf("total cost = %d, want 26", snap.Run.TotalCost)
	}
	if got := f.ledger.balanceOf("user-1"); got != 74 {
		t.Errorf("balance = %d, want 74", got)
	}
	if len(snap.Steps) != 6 {
		t.Fatalf("step count = %d, want 6", len(snap.Steps))
	}
	for _, st := range snap.Steps {
		if st.Status != domain.StepStatusCompleted {
			t.Errorf("step %s status = %s, want completed", st.Key, st.Status)
		}
		if st.Progress != 100 {
			t.Errorf("step %s progress = %d, want 100", st.Key, st.Progress)
		}
	}

	assets, err := f.coordinator.Assets(context.Background(), res.RunID, "user-1")
	if err != nil {
		t.Fatalf("Assets: %v", err)
	}
	if len(assets) != 2 {
		t.Fatalf("asset count = %d, want 2", len(assets))
	}
	var imageID, videoSeed string
	for _, a := range assets {
		switch a.Kind {
		case domain.AssetKindImage:
			imageID = a.ID
		case domain.AssetKindVideo:
			videoSeed = a.SourceAssetID
		}
	}
	if imageID == "" || videoSeed != imageID {
		t.Errorf("video asset seed = %q, want image asset id %q", videoSeed, imageID)
	}
}

func TestModerationRejectionChargesNothing(t *testing.T) {
	f := newCoordinatorFixture(t, 100, stubClock{}, stubGate{verdict: moderation.Verdict{Allowed: false, Reason: "violence"}})

	res, err := f.coordinator.Start(context.Background(), completeRequest())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	snap := waitTerminal(t, f, res.RunID)
	if snap.Run.Status != domain.RunStatusFailed {
		t.Fatalf("run status = %s, want failed", snap.Run.Status)
	}
	if !strings.Contains(snap.Run.ErrorMessage, "violence") {
		t.Errorf("error message = %q, want moderation reason", snap.Run.ErrorMessage)
	}
	if got := f.ledger.balanceOf("user-1"); got != 100 {
		t.Errorf("balance = %d, want untouched 100", got)
	}
	if f.imageGen.callCount() != 0 {
		t.Errorf("image provider called %d times, want 0", f.imageGen.callCount())
	}
	if snap.Steps[0].Status != domain.StepStatusFailed {
		t.Errorf("validation step status = %s, want failed", snap.Steps[0].Status)
	}
	for _, st := range snap.Steps[1:] {
		if st.Status != domain.StepStatusPending {
			t.Errorf("step %s status = %s, want pending", st.Key, st.Status)
		}
	}
}

func TestStartRejectsInsufficientBalance(t *testing.T) {
	f := newCoordinatorFixture(t, 5, stubClock{}, stubGate{verdict: moderation.Verdict{Allowed: true}})

	_, err := f.coordinator.Start(context.Background(), completeRequest())
	if !errors.Is(err, domain.ErrInsufficientCredits) {
		t.Fatalf("err = %v, want ErrInsufficientCredits", err)
	}
	var ice *domain.InsufficientCreditsError
	if !errors.As(err, &ice) {
		t.Fatalf("err = %v, want *InsufficientCreditsError", err)
	}
	if ice.Required != 26 || ice.Available != 5 {
		t.Errorf("required/available = %d/%d, want 26/5", ice.Required, ice.Available)
	}
}

func TestDebitRefusalFailsStepWithoutProviderCall(t *testing.T) {
	// The balance passes pre-flight, then the ledger refuses the debit,
	// as a concurrent spend would.
	f := newCoordinatorFixture(t, 100, stubClock{}, stubGate{verdict: moderation.Verdict{Allowed: true}})
	f.ledger.debitErr = &domain.InsufficientCreditsError{Required: 10, Available: 3}

	res, err := f.coordinator.Start(context.Background(), completeRequest())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	snap := waitTerminal(t, f, res.RunID)
	if snap.Run.Status != domain.RunStatusFailed {
		t.Fatalf("run status = %s, want failed", snap.Run.Status)
	}
	if snap.Steps[0].Status != domain.StepStatusCompleted {
		t.Errorf("validation step status = %s, want completed", snap.Steps[0].Status)
	}
	if snap.Steps[1].Status != domain.StepStatusFailed {
		t.Errorf("image step status = %s, want failed", snap.Steps[1].Status)
	}
	if f.imageGen.callCount() != 0 {
		t.Errorf("image provider called %d times, want 0", f.imageGen.callCount())
	}
}

func TestVideoTimeoutRefundsVideoCostOnly(t *testing.T) {
	f := newCoordinatorFixture(t, 100, stubClock{}, stubGate{verdict: moderation.Verdict{Allowed: true}})
	f.videoGen.polls = []video.PollResult{{Status: video.StatusRunning}}

	res, err := f.coordinator.Start(context.Background(), completeRequest())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	snap := waitTerminal(t, f, res.RunID)
	if snap.Run.Status != domain.RunStatusFailed {
		t.Fatalf("run status = %s, want failed", snap.Run.Status)
	}
	if snap.Run.ErrorMessage != "generation timed out" {
		t.Errorf("error message = %q, want timeout reason", snap.Run.ErrorMessage)
	}
	// The image charge sticks, the video charge comes back.
	if got := f.ledger.balanceOf("user-1"); got != 90 {
		t.Errorf("balance = %d, want 90", got)
	}
	if snap.Run.TotalCost != 10 {
		t.Errorf("total cost = %d, want 10", snap.Run.TotalCost)
	}
	wantReasons := []domain.CreditReason{
		domain.ReasonImageGeneration,
		domain.ReasonVideoGeneration,
		domain.ReasonRefundTimeout,
	}
	got := f.ledger.reasons()
	if len(got) != len(wantReasons) {
		t.Fatalf("ledger entries = %v, want %v", got, wantReasons)
	}
	for i := range wantReasons {
		if got[i] != wantReasons[i] {
			t.Errorf("ledger entry %d = %s, want %s", i, got[i], wantReasons[i])
		}
	}
	if f.videoGen.cancelCount() == 0 {
		t.Errorf("upstream cancel never attempted after timeout")
	}
}

func TestCancelDuringPollingRefundsVideoCost(t *testing.T) {
	// A blocking clock parks the run inside the video poll loop, so Cancel
	// observes a mid-polling run.
	f := newCoordinatorFixture(t, 100, stubClock{block: true}, stubGate{verdict: moderation.Verdict{Allowed: true}})

	res, err := f.coordinator.Start(context.Background(), completeRequest())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		snap, err := f.coordinator.Status(context.Background(), res.RunID, "user-1")
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		videoStep := snap.Steps[3]
		if videoStep.Status == domain.StepStatusProcessing {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("video step never started processing")
		}
		time.Sleep(2 * time.Millisecond)
	}

	refunded, err := f.coordinator.Cancel(context.Background(), res.RunID, "user-1")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if refunded != 16 {
		t.Errorf("refunded = %d, want 16", refunded)
	}

	snap := waitTerminal(t, f, res.RunID)
	if snap.Run.Status != domain.RunStatusCancelled {
		t.Fatalf("run status = %s, want cancelled", snap.Run.Status)
	}
	if got := f.ledger.balanceOf("user-1"); got != 90 {
		t.Errorf("balance = %d, want 90", got)
	}
	for _, st := range snap.Steps[3:] {
		if st.Status != domain.StepStatusFailed || st.ErrorReason != "cancelled" {
			t.Errorf("step %s = %s/%q, want failed/cancelled", st.Key, st.Status, st.ErrorReason)
		}
	}
}

func TestCancelAfterTerminalReturnsRunTerminal(t *testing.T) {
	f := newCoordinatorFixture(t, 100, stubClock{}, stubGate{verdict: moderation.Verdict{Allowed: true}})

	res, err := f.coordinator.Start(context.Background(), completeRequest())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitTerminal(t, f, res.RunID)

	if _, err := f.coordinator.Cancel(context.Background(), res.RunID, "user-1"); !errors.Is(err, domain.ErrRunTerminal) {
		t.Fatalf("err = %v, want ErrRunTerminal", err)
	}
	if _, err := f.coordinator.Cancel(context.Background(), "missing", "user-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestStartEnforcesActiveRunCap(t *testing.T) {
	f := newCoordinatorFixture(t, 100, stubClock{}, stubGate{verdict: moderation.Verdict{Allowed: true}})
	f.runs.active = 3

	_, err := f.coordinator.Start(context.Background(), completeRequest())
	if !errors.Is(err, domain.ErrTooManyActiveRuns) {
		t.Fatalf("err = %v, want ErrTooManyActiveRuns", err)
	}
}

func TestVideoFromImageValidatesSourceAsset(t *testing.T) {
	f := newCoordinatorFixture(t, 100, stubClock{}, stubGate{verdict: moderation.Verdict{Allowed: true}})
	seed := &domain.Asset{
		ID:         "asset-1",
		UserID:     "user-1",
		Kind:       domain.AssetKindImage,
		Status:     domain.AssetStatusReady,
		StorageKey: "generated/images/earlier/image.png",
	}
	if err := f.assets.Save(context.Background(), seed); err != nil {
		t.Fatalf("seed asset: %v", err)
	}

	req := StartRequest{
		UserID:        "user-1",
		Variant:       domain.VariantVideoFromImage,
		VideoPrompt:   "pan across the scene",
		SourceImageID: "asset-1",
		VideoConfig:   domain.VideoConfig{DurationSeconds: 4, Resolution: "1080p"},
	}
	res, err := f.coordinator.Start(context.Background(), req)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	snap := waitTerminal(t, f, res.RunID)
	if snap.Run.Status != domain.RunStatusCompleted {
		t.Fatalf("run status = %s, want completed (error=%q)", snap.Run.Status, snap.Run.ErrorMessage)
	}
	// 4s of 1080p video, no image step.
	if snap.Run.TotalCost != 12 {
		t.Errorf("total cost = %d, want 12", snap.Run.TotalCost)
	}

	assets, _ := f.assets.ListByRunID(context.Background(), res.RunID)
	if len(assets) != 1 {
		t.Fatalf("asset count = %d, want 1", len(assets))
	}
	if assets[0].SourceAssetID != "asset-1" {
		t.Errorf("video seed = %q, want asset-1", assets[0].SourceAssetID)
	}
}

func TestVideoFromImageRejectsForeignSource(t *testing.T) {
	f := newCoordinatorFixture(t, 100, stubClock{}, stubGate{verdict: moderation.Verdict{Allowed: true}})
	seed := &domain.Asset{
		ID:     "asset-2",
		UserID: "someone-else",
		Kind:   domain.AssetKindImage,
		Status: domain.AssetStatusReady,
	}
	if err := f.assets.Save(context.Background(), seed); err != nil {
		t.Fatalf("seed asset: %v", err)
	}

	req := StartRequest{
		UserID:        "user-1",
		Variant:       domain.VariantVideoFromImage,
		VideoPrompt:   "pan across the scene",
		SourceImageID: "asset-2",
		VideoConfig:   domain.VideoConfig{DurationSeconds: 4, Resolution: "720p"},
	}
	res, err := f.coordinator.Start(context.Background(), req)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	snap := waitTerminal(t, f, res.RunID)
	if snap.Run.Status != domain.RunStatusFailed {
		t.Fatalf("run status = %s, want failed", snap.Run.Status)
	}
	if got := f.ledger.balanceOf("user-1"); got != 100 {
		t.Errorf("balance = %d, want untouched 100", got)
	}
}

func TestStartValidation(t *testing.T) {
	f := newCoordinatorFixture(t, 100, stubClock{}, stubGate{verdict: moderation.Verdict{Allowed: true}})

	cases := []struct {
		name string
		req  StartRequest
	}{
		{
			name: "unknown variant",
			req:  StartRequest{UserID: "user-1", Variant: "gif_only"},
		},
		{
			name: "missing image prompt",
			req:  StartRequest{UserID: "user-1", Variant: domain.VariantImageOnly},
		},
		{
			name: "missing source image",
			req: StartRequest{
				UserID: "user-1", Variant: domain.VariantVideoFromImage,
				VideoPrompt: "pan", VideoConfig: domain.VideoConfig{DurationSeconds: 4},
			},
		},
		{
			name: "duration out of range",
			req: StartRequest{
				UserID: "user-1", Variant: domain.VariantComplete,
				ImagePrompt: "a dog", VideoPrompt: "a dog running",
				VideoConfig: domain.VideoConfig{DurationSeconds: 120},
			},
		},
		{
			name: "prompt too long",
			req: StartRequest{
				UserID: "user-1", Variant: domain.VariantImageOnly,
				ImagePrompt: strings.Repeat("x", maxPromptLength+1),
			},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.coordinator.Start(context.Background(), tc.req)
			if !errors.Is(err, domain.ErrInvalidConfiguration) {
				t.Fatalf("err = %v, want ErrInvalidConfiguration", err)
			}
		})
	}
}

func TestStatusHidesForeignRuns(t *testing.T) {
	f := newCoordinatorFixture(t, 100, stubClock{}, stubGate{verdict: moderation.Verdict{Allowed: true}})

	res, err := f.coordinator.Start(context.Background(), completeRequest())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitTerminal(t, f, res.RunID)

	if _, err := f.coordinator.Status(context.Background(), res.RunID, "intruder"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
