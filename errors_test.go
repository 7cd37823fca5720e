package sigil

import (
	"errors"
	"fmt"
	"testing"

	"github.com/xraph/sigil/settlement"
	"github.com/xraph/sigil/tier"
)

func TestErrorClassifiers(t *testing.T) {
	insufficient := tier.DefaultPolicy().Validate(0.02, tier.Deeper)

	tests := []struct {
		name      string
		err       error
		caller    bool
		retryable bool
		notFound  bool
	}{
		{"insufficient payment", insufficient, true, false, false},
		{"unknown tier", fmt.Errorf("wrap: %w", ErrUnknownTier), true, false, false},
		{"invalid input", ErrInvalidInput, true, false, false},
		{"not found", ErrTokenNotFound, false, false, true},
		{"queue full", fmt.Errorf("%w: %w", ErrNotificationFailed, settlement.ErrQueueFull), false, true, false},
		{"exhausted", ErrIDSpaceExhausted, false, false, false},
		{"other", errors.New("boom"), false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsCallerError(tt.err); got != tt.caller {
				t.Errorf("IsCallerError = %v, want %v", got, tt.caller)
			}
			if got := IsRetryable(tt.err); got != tt.retryable {
				t.Errorf("IsRetryable = %v, want %v", got, tt.retryable)
			}
			if got := IsNotFound(tt.err); got != tt.notFound {
				t.Errorf("IsNotFound = %v, want %v", got, tt.notFound)
			}
		})
	}
}

func TestMultiError(t *testing.T) {
	var m MultiError
	if m.ErrOrNil() != nil {
		t.Fatal("empty MultiError should be nil")
	}

	m.Add(nil)
	m.Add(ValidationError{Field: "consume_delay", Message: "must not be negative"})
	m.Add(ErrInvalidConfig)

	if !m.HasErrors() || len(m.Errors) != 2 {
		t.Fatalf("unexpected errors: %v", m.Errors)
	}
	if !errors.Is(m.ErrOrNil(), ErrInvalidConfig) {
		t.Error("MultiError should unwrap to its members")
	}
	var ve ValidationError
	if !errors.As(m, &ve) || ve.Field != "consume_delay" {
		t.Errorf("errors.As ValidationError: %+v", ve)
	}
	if got := m.First().Error(); got != "sigil: validation failed for consume_delay: must not be negative" {
		t.Errorf("First: %q", got)
	}
}
