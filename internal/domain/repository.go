package domain

import "context"

// RunRepository defines persistence for runs and their steps. Persisted rows
// are the source of truth for run state; the coordinator's in-memory registry
// only tracks liveness of active runs.
type RunRepository interface {
	Create(ctx context.Context, run *Run, steps []Step) error
	GetByID(ctx context.Context, runID string) (*Run, error)
	ListSteps(ctx context.Context, runID string) ([]Step, error)
	UpdateRun(ctx context.Context, run *Run) error
	UpdateStep(ctx context.Context, runID string, step *Step) error
	CountActive(ctx context.Context, userID string) (int, error)
}

// CreditLedger guarantees that balance and transaction log stay mutually
// consistent under concurrent debits for the same user. Debit atomically
// checks balance >= amount and appends a negative transaction; a debit that
// would go negative fails without mutating anything. Refund is idempotent per
// originating debit.
type CreditLedger interface {
	Debit(ctx context.Context, userID string, amount int, reason CreditReason, runID string) (string, error)
	Refund(ctx context.Context, userID string, amount int, reason CreditReason, originalTxnID string) (string, error)
	Balance(ctx context.Context, userID string) (int, error)
}

// AssetRepository handles persistence for generated assets.
type AssetRepository interface {
	Save(ctx context.Context, asset *Asset) error
	GetByID(ctx context.Context, assetID string) (*Asset, error)
	ListByRunID(ctx context.Context, runID string) ([]Asset, error)
}
