package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrContentRejected      = errors.New("content rejected")
	ErrInsufficientCredits  = errors.New("insufficient credits")
	ErrProviderCallFailed   = errors.New("provider call failed")
	ErrProviderTimeout      = errors.New("provider timeout")
	ErrRunCancelled         = errors.New("run cancelled")
	ErrRunTerminal          = errors.New("run already terminal")
	ErrTooManyActiveRuns    = errors.New("too many active runs")
	ErrDuplicateOperation   = errors.New("duplicate operation")
)

// InsufficientCreditsError reports how many credits the user is short of.
// errors.Is(err, ErrInsufficientCredits) matches it.
type InsufficientCreditsError struct {
	Required  int
	Available int
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: need %d, have %d", e.Required, e.Available)
}

func (e *InsufficientCreditsError) Is(target error) bool {
	return target == ErrInsufficientCredits
}

// Shortage returns the missing amount.
func (e *InsufficientCreditsError) Shortage() int {
	if e.Required <= e.Available {
		return 0
	}
	return e.Required - e.Available
}
