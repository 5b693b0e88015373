package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mediaforge/internal/domain"
)

// LedgerRepositoryPG implements domain.CreditLedger on PostgreSQL. The
// balance check and decrement happen in a single UPDATE so concurrent debits
// for the same user serialize on the balance row.
type LedgerRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository creates a credit ledger backed by PostgreSQL.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepositoryPG {
	return &LedgerRepositoryPG{pool: pool}
}

// Debit atomically checks balance >= amount, decrements it and appends a
// negative transaction. A debit that would go negative fails with
// InsufficientCreditsError and leaves balance and log untouched.
func (r *LedgerRepositoryPG) Debit(ctx context.Context, userID string, amount int, reason domain.CreditReason, runID string) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("debit amount must be positive, got %d", amount)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
UPDATE credit_balances
SET balance = balance - $2, updated_at = now()
WHERE user_id = $1 AND balance >= $2;
`, userID, amount)
	if err != nil {
		return "", fmt.Errorf("decrement balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		available := 0
		row := tx.QueryRow(ctx, `SELECT balance FROM credit_balances WHERE user_id = $1;`, userID)
		if err := row.Scan(&available); err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("read balance: %w", err)
		}
		return "", &domain.InsufficientCreditsError{Required: amount, Available: available}
	}

	txnID := uuid.NewString()
	if _, err := tx.Exec(ctx, `
INSERT INTO credit_transactions (id, user_id, amount, reason, run_id)
VALUES ($1, $2, $3, $4, $5);
`, txnID, userID, -amount, reason, nullableID(runID)); err != nil {
		return "", fmt.Errorf("append transaction: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return txnID, nil
}

// Refund appends a positive transaction and increments balance. A debit that
// was already refunded is not refunded twice; the second call reports
// ErrDuplicateOperation without mutating anything.
func (r *LedgerRepositoryPG) Refund(ctx context.Context, userID string, amount int, reason domain.CreditReason, originalTxnID string) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("refund amount must be positive, got %d", amount)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	txnID := uuid.NewString()
	tag, err := tx.Exec(ctx, `
INSERT INTO credit_transactions (id, user_id, amount, reason, original_txn_id)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (original_txn_id) WHERE original_txn_id IS NOT NULL DO NOTHING;
`, txnID, userID, amount, reason, nullableID(originalTxnID))
	if err != nil {
		return "", fmt.Errorf("append transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return "", domain.ErrDuplicateOperation
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO credit_balances (user_id, balance) VALUES ($1, $2)
ON CONFLICT (user_id) DO UPDATE SET balance = credit_balances.balance + $2, updated_at = now();
`, userID, amount); err != nil {
		return "", fmt.Errorf("increment balance: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return txnID, nil
}

// Balance returns the user's current spendable balance. Unknown users have a
// balance of zero.
func (r *LedgerRepositoryPG) Balance(ctx context.Context, userID string) (int, error) {
	row := r.pool.QueryRow(ctx, `SELECT balance FROM credit_balances WHERE user_id = $1;`, userID)
	var balance int
	if err := row.Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return balance, nil
}

func nullableID(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}
