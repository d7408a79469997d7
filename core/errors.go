/*
errors.go - Centralized error types for the credit ledger and calculations

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers classify failures with errors.Is against the sentinels below.

ERROR CATEGORIES:
  1. Client errors - Bad input or a business rule (not retried)
  2. Idempotency signals - Already absorbed events (not failures)
  3. Availability errors - Missing external data (retryable)
  4. Store errors - Constraint violations surfaced by persistence

USAGE:
  if errors.Is(err, core.ErrAlreadyProcessed) {
      // webhook re-delivery, nothing to do
  }

SEE ALSO:
  - ledger.go: Maps ErrDuplicateReference to ErrAlreadyProcessed
  - api/handlers.go: Maps these errors to HTTP status codes
*/
package core

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidInput is returned for bad sample counts, dates or amounts.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInsufficientCredits is returned when the valid balance cannot cover
	// the requested debit.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrDataUnavailable is returned when the rate repository has nothing
	// usable for the calculation window.
	ErrDataUnavailable = errors.New("rate data unavailable")

	// ErrAlreadyProcessed signals that an idempotent operation was already
	// applied for the same reference. This is expected behavior for retries.
	ErrAlreadyProcessed = errors.New("already processed")

	// ErrDuplicateReference is returned by stores when an insert collides on
	// the unique reference_id constraint.
	ErrDuplicateReference = errors.New("duplicate reference id")

	// ErrUserNotFound is returned when a referenced user doesn't exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrReferralCodeNotFound is returned when a registration names an unknown code.
	ErrReferralCodeNotFound = errors.New("referral code not found")

	// ErrReferralCodeUsed is returned when a code was already redeemed once.
	ErrReferralCodeUsed = errors.New("referral code already used")

	// ErrDuplicateEmail is returned when registering an email twice.
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrUnexpectedUser is returned when a payment belongs to another user.
	ErrUnexpectedUser = errors.New("payment belongs to another user")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientCreditsError provides details about a balance shortage.
type InsufficientCreditsError struct {
	UserID    UserID
	Available int64
	Requested int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: available %d, requested %d", e.Available, e.Requested)
}

func (e *InsufficientCreditsError) Unwrap() error {
	return ErrInsufficientCredits
}

// InvalidInputError names the offending field.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InvalidInputError) Unwrap() error {
	return ErrInvalidInput
}

// Invalid is a shorthand for building an InvalidInputError.
func Invalid(field, format string, args ...any) error {
	return &InvalidInputError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrDataUnavailable)
}

// IsClientError returns true if the error is due to the caller's input or
// account state rather than a service failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInsufficientCredits) ||
		errors.Is(err, ErrReferralCodeNotFound) ||
		errors.Is(err, ErrReferralCodeUsed) ||
		errors.Is(err, ErrDuplicateEmail) ||
		errors.Is(err, ErrUnexpectedUser)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound)
}
