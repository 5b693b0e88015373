package domain

import "time"

// CreditReason is the reason code recorded on a ledger entry.
type CreditReason string

const (
	ReasonImageGeneration CreditReason = "image_generation"
	ReasonVideoGeneration CreditReason = "video_generation"
	ReasonRefundFailure   CreditReason = "refund_provider_failure"
	ReasonRefundTimeout   CreditReason = "refund_provider_timeout"
	ReasonRefundCancelled CreditReason = "refund_cancelled"
	ReasonTopUp           CreditReason = "top_up"
)

// CreditTransaction is an immutable ledger entry. Amount is signed: negative
// for debits, positive for credits and refunds. A user's balance always
// equals the sum of their transactions.
type CreditTransaction struct {
	ID            string
	UserID        string
	Amount        int
	Reason        CreditReason
	RunID         string
	OriginalTxnID string
	CreatedAt     time.Time
}
