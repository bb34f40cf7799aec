/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error kinds in one place. Every failure mode the engine can surface is
  distinguishable with errors.Is; nothing is ever silently swallowed.

ERROR CATEGORIES:
  1. Validation errors - rejected before the atomic section, no writes
  2. Business errors - rejected inside the atomic section, attempt aborted
  3. Store errors - conflict/retry machinery of the document store

USAGE:
  if errors.Is(err, ledger.ErrInsufficientLimit) {
      var detail *ledger.InsufficientLimitError
      if errors.As(err, &detail) { ... }
  }
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidInput is returned for unparseable amounts/dates or missing
	// selections. Always detected before any write is attempted.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound is returned when a referenced card, person or transaction
	// is missing (typically deleted concurrently).
	ErrNotFound = errors.New("not found")

	// ErrInsufficientLimit is returned when a purchase or amount increase
	// exceeds the card's available limit.
	ErrInsufficientLimit = errors.New("insufficient limit")

	// ErrAlreadySettled is returned when editing the financial fields of a
	// transaction that has already been paid.
	ErrAlreadySettled = errors.New("transaction already settled")

	// ErrNothingDue is returned by PayInvoice when the active period has no
	// pending amount.
	ErrNothingDue = errors.New("nothing due")

	// ErrStillReferenced is returned when deleting a card or person that
	// still has transactions pointing at it.
	ErrStillReferenced = errors.New("still referenced by transactions")

	// ErrTransientFailure is returned when the store's bounded transaction
	// retries are exhausted. The operation is safe to retry by the caller.
	ErrTransientFailure = errors.New("transient store failure")

	// ErrConflict is the store-level signal that a concurrent write raced
	// this attempt. RunAtomic retries on it; callers never see it directly.
	ErrConflict = errors.New("write conflict")

	// ErrReadAfterWrite is returned when a transaction attempt reads after
	// its first write. All reads must precede all writes in one attempt.
	ErrReadAfterWrite = errors.New("read after write in atomic section")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientLimitError reports how short the card's available limit is.
type InsufficientLimitError struct {
	CardID    CardID
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientLimitError) Error() string {
	return fmt.Sprintf("insufficient limit on card %s: available %s, requested %s",
		e.CardID, e.Available.StringFixed(2), e.Requested.StringFixed(2))
}

func (e *InsufficientLimitError) Unwrap() error {
	return ErrInsufficientLimit
}

// NotFoundError reports which document was missing.
type NotFoundError struct {
	Collection string
	ID         string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s/%s not found", e.Collection, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientFailure) || errors.Is(err, ErrConflict)
}

// IsClientError returns true if the error is due to invalid caller input or
// a violated business rule (as opposed to store trouble).
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInsufficientLimit) ||
		errors.Is(err, ErrAlreadySettled) ||
		errors.Is(err, ErrNothingDue) ||
		errors.Is(err, ErrStillReferenced)
}

// IsNotFound returns true if the error indicates a missing document.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
