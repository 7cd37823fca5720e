// Package audithook bridges token lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not depend on any
// particular audit store. Callers inject a RecorderFunc adapter at wiring
// time. Token content never reaches an audit event.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/sigil/id"
	"github.com/xraph/sigil/plugin"
	"github.com/xraph/sigil/settlement"
	"github.com/xraph/sigil/tier"
	"github.com/xraph/sigil/token"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                = (*Extension)(nil)
	_ plugin.OnTokenIssued         = (*Extension)(nil)
	_ plugin.OnIssueRejected       = (*Extension)(nil)
	_ plugin.OnTokenConsumed       = (*Extension)(nil)
	_ plugin.OnConsumeMissed       = (*Extension)(nil)
	_ plugin.OnTokenExpired        = (*Extension)(nil)
	_ plugin.OnCollision           = (*Extension)(nil)
	_ plugin.OnSettlementDelivered = (*Extension)(nil)
	_ plugin.OnSettlementFailed    = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a single audit trail record.
type AuditEvent struct {
	ID         id.AuditID     `json:"id"`
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges ledger lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Token hooks
// ──────────────────────────────────────────────────

// OnTokenIssued implements plugin.OnTokenIssued.
func (e *Extension) OnTokenIssued(ctx context.Context, entry *token.Entry) error {
	return e.record(ctx, ActionTokenIssued, SeverityInfo, OutcomeSuccess,
		ResourceToken, entry.ID, CategoryIssuance, nil,
		"payer", settlement.ShortPayer(entry.Payer),
		"tier", string(entry.Tier),
		"amount", entry.Amount,
		"expires_at", entry.ExpiresAt,
	)
}

// OnIssueRejected implements plugin.OnIssueRejected.
func (e *Extension) OnIssueRejected(ctx context.Context, payer string, amount float64, t tier.Tier, reason error) error {
	return e.record(ctx, ActionTokenRejected, SeverityWarning, OutcomeFailure,
		ResourceToken, "", CategoryIssuance, reason,
		"payer", settlement.ShortPayer(payer),
		"tier", string(t),
		"amount", amount,
	)
}

// OnTokenConsumed implements plugin.OnTokenConsumed.
func (e *Extension) OnTokenConsumed(ctx context.Context, entry *token.Entry) error {
	kv := []any{
		"payer", settlement.ShortPayer(entry.Payer),
		"tier", string(entry.Tier),
	}
	if entry.ConsumedAt != nil {
		kv = append(kv, "consumed_at", *entry.ConsumedAt)
	}
	return e.record(ctx, ActionTokenConsumed, SeverityInfo, OutcomeSuccess,
		ResourceToken, entry.ID, CategoryRedemption, nil, kv...)
}

// OnConsumeMissed implements plugin.OnConsumeMissed. A repeat consume of
// the same id is more suspicious than an unknown one.
func (e *Extension) OnConsumeMissed(ctx context.Context, tokenID string, outcome token.Outcome) error {
	severity := SeverityInfo
	if outcome == token.OutcomeAlreadyConsumed {
		severity = SeverityWarning
	}
	return e.record(ctx, ActionConsumeMissed, severity, OutcomeFailure,
		ResourceToken, tokenID, CategoryRedemption, nil,
		"outcome", string(outcome),
	)
}

// OnTokenExpired implements plugin.OnTokenExpired.
func (e *Extension) OnTokenExpired(ctx context.Context, tokenID string) error {
	return e.record(ctx, ActionTokenExpired, SeverityInfo, OutcomeSuccess,
		ResourceToken, tokenID, CategoryRetention, nil)
}

// OnCollision implements plugin.OnCollision.
func (e *Extension) OnCollision(ctx context.Context, tokenID string, attempt int) error {
	return e.record(ctx, ActionTokenCollided, SeverityError, OutcomeFailure,
		ResourceToken, tokenID, CategoryIssuance, nil,
		"attempt", attempt,
	)
}

// ──────────────────────────────────────────────────
// Settlement hooks
// ──────────────────────────────────────────────────

// OnSettlementDelivered implements plugin.OnSettlementDelivered.
func (e *Extension) OnSettlementDelivered(ctx context.Context, n *settlement.Notice, attempts int) error {
	return e.record(ctx, ActionSettlementDelivered, SeverityInfo, OutcomeSuccess,
		ResourceSettlement, n.ID.String(), CategorySettlement, nil,
		"token_id", n.TokenID,
		"endpoint", n.Endpoint,
		"priority", n.Priority,
		"attempts", attempts,
	)
}

// OnSettlementFailed implements plugin.OnSettlementFailed.
func (e *Extension) OnSettlementFailed(ctx context.Context, n *settlement.Notice, err error) error {
	return e.record(ctx, ActionSettlementFailed, SeverityCritical, OutcomeFailure,
		ResourceSettlement, n.ID.String(), CategoryIntegration, err,
		"token_id", n.TokenID,
		"endpoint", n.Endpoint,
		"priority", n.Priority,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		ID:         id.NewAuditID(),
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
		Timestamp:  time.Now().UTC(),
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
