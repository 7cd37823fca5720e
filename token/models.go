package token

import (
	"time"

	"github.com/xraph/sigil/tier"
	"github.com/xraph/sigil/types"
)

// State is the lifecycle position of an entry.
type State string

const (
	StateIssued   State = "issued"
	StateConsumed State = "consumed"
)

// Entry is one issued token as held by the store. UpdatedAt moves when the
// entry is consumed.
type Entry struct {
	types.Entity

	ID         string     `json:"id"`
	Content    string     `json:"content"`
	Payer      string     `json:"payer"`
	Tier       tier.Tier  `json:"tier"`
	Amount     float64    `json:"amount"`
	ExpiresAt  time.Time  `json:"expires_at"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
	IsConsumed bool       `json:"is_consumed"`
}

func (e *Entry) State() State {
	if e.IsConsumed {
		return StateConsumed
	}
	return StateIssued
}

// Clone returns a copy that shares nothing with e.
func (e *Entry) Clone() *Entry {
	c := *e
	if e.ConsumedAt != nil {
		at := *e.ConsumedAt
		c.ConsumedAt = &at
	}
	return &c
}

// Status describes an entry without revealing its content.
func (e *Entry) Status() *Status {
	return &Status{
		TokenID:    e.ID,
		Tier:       e.Tier,
		State:      e.State(),
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.UpdatedAt,
		ExpiresAt:  e.ExpiresAt,
		ConsumedAt: e.ConsumedAt,
	}
}

// Outcome is the result kind of a consume attempt.
type Outcome string

const (
	OutcomeConsumed        Outcome = "consumed"
	OutcomeNotFound        Outcome = "not_found"
	OutcomeAlreadyConsumed Outcome = "already_consumed"
)

// Message is the caller-facing text for the outcome.
func (o Outcome) Message() string {
	switch o {
	case OutcomeConsumed:
		return "Token consumed."
	case OutcomeNotFound:
		return "Token not found."
	case OutcomeAlreadyConsumed:
		return "Token has already been consumed."
	default:
		return string(o)
	}
}

// Result is returned from a consume attempt. Content is set only when
// Outcome is OutcomeConsumed.
type Result struct {
	Outcome Outcome `json:"outcome"`
	TokenID string  `json:"token_id"`
	Content string  `json:"content,omitempty"`
}

func (r *Result) OK() bool { return r.Outcome == OutcomeConsumed }

// Status is the public view of an entry.
type Status struct {
	TokenID    string     `json:"token_id"`
	Tier       tier.Tier  `json:"tier"`
	State      State      `json:"state"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
}

// Redacted returns a copy without content, fit for hooks and logs.
func (e *Entry) Redacted() *Entry {
	c := e.Clone()
	c.Content = ""
	return c
}
