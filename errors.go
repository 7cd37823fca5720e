package sigil

import (
	"errors"
	"fmt"

	"github.com/xraph/sigil/settlement"
	"github.com/xraph/sigil/store"
	"github.com/xraph/sigil/tier"
	"github.com/xraph/sigil/token"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrInvalidInput = errors.New("sigil: invalid input")
	ErrStopped      = errors.New("sigil: ledger stopped")

	// Payment errors
	ErrInvalidPayment = tier.ErrInvalidPayment
	ErrUnknownTier    = tier.ErrUnknownTier
	ErrInvalidAmount  = tier.ErrInvalidAmount
	ErrInvalidConfig  = tier.ErrInvalidConfig

	// Token errors
	ErrTokenNotFound    = store.ErrTokenNotFound
	ErrAlreadyConsumed  = store.ErrAlreadyConsumed
	ErrTokenExists      = store.ErrTokenExists
	ErrIDSpaceExhausted = errors.New("sigil: token id space exhausted")
	ErrInvalidDeriver   = token.ErrInvalidDeriver

	// Settlement errors
	ErrQueueFull          = settlement.ErrQueueFull
	ErrNotificationFailed = errors.New("sigil: settlement notification failed")

	// Store errors
	ErrStoreClosed = store.ErrClosed
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("sigil: validation failed for %s: %s", e.Field, e.Message)
}

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "sigil: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("sigil: %d errors occurred: %v", len(e.Errors), e.Errors[0])
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error {
	return e.Errors
}

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// ErrOrNil returns e when it holds errors and nil otherwise.
func (e MultiError) ErrOrNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTokenNotFound)
}

// IsCallerError returns true if the request itself was at fault and
// retrying it unchanged cannot succeed.
func IsCallerError(err error) bool {
	return errors.Is(err, ErrInvalidPayment) ||
		errors.Is(err, ErrUnknownTier) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidInput)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrQueueFull) ||
		errors.Is(err, ErrNotificationFailed) ||
		errors.Is(err, settlement.ErrDeliveryFailed)
}
