// Package observability provides a metrics extension for the token ledger
// that records lifecycle event counts through a MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/sigil/plugin"
	"github.com/xraph/sigil/settlement"
	"github.com/xraph/sigil/tier"
	"github.com/xraph/sigil/token"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                = (*MetricsExtension)(nil)
	_ plugin.OnInit                = (*MetricsExtension)(nil)
	_ plugin.OnTokenIssued         = (*MetricsExtension)(nil)
	_ plugin.OnIssueRejected       = (*MetricsExtension)(nil)
	_ plugin.OnTokenConsumed       = (*MetricsExtension)(nil)
	_ plugin.OnConsumeMissed       = (*MetricsExtension)(nil)
	_ plugin.OnTokenExpired        = (*MetricsExtension)(nil)
	_ plugin.OnCollision           = (*MetricsExtension)(nil)
	_ plugin.OnSettlementDelivered = (*MetricsExtension)(nil)
	_ plugin.OnSettlementFailed    = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records ledger lifecycle metrics.
// Register it as a plugin to track issuance and settlement automatically.
type MetricsExtension struct {
	factory MetricFactory

	// Issuance metrics
	TokensIssued    Counter
	IssueRejected   Counter
	IssuedAmount    Histogram
	TokenCollisions Counter

	// Redemption metrics
	TokensConsumed         Counter
	ConsumeNotFound        Counter
	ConsumeAlreadyConsumed Counter
	TimeToConsume          Histogram

	// Retention metrics
	TokensExpired Counter

	// Settlement metrics
	SettlementDelivered Counter
	SettlementFailed    Counter
	SettlementAttempts  Histogram
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		TokensIssued:    factory.Counter("sigil.token.issued"),
		IssueRejected:   factory.Counter("sigil.token.rejected"),
		IssuedAmount:    factory.Histogram("sigil.token.amount"),
		TokenCollisions: factory.Counter("sigil.token.collisions"),

		TokensConsumed:         factory.Counter("sigil.token.consumed"),
		ConsumeNotFound:        factory.Counter("sigil.consume.not_found"),
		ConsumeAlreadyConsumed: factory.Counter("sigil.consume.already_consumed"),
		TimeToConsume:          factory.Histogram("sigil.token.time_to_consume_seconds"),

		TokensExpired: factory.Counter("sigil.token.expired"),

		SettlementDelivered: factory.Counter("sigil.settlement.delivered"),
		SettlementFailed:    factory.Counter("sigil.settlement.failed"),
		SettlementAttempts:  factory.Histogram("sigil.settlement.attempts"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// OnTokenIssued implements plugin.OnTokenIssued.
func (m *MetricsExtension) OnTokenIssued(_ context.Context, e *token.Entry) error {
	m.TokensIssued.Inc()
	m.IssuedAmount.Observe(e.Amount)
	return nil
}

// OnIssueRejected implements plugin.OnIssueRejected.
func (m *MetricsExtension) OnIssueRejected(context.Context, string, float64, tier.Tier, error) error {
	m.IssueRejected.Inc()
	return nil
}

// OnCollision implements plugin.OnCollision.
func (m *MetricsExtension) OnCollision(context.Context, string, int) error {
	m.TokenCollisions.Inc()
	return nil
}

// OnTokenConsumed implements plugin.OnTokenConsumed.
func (m *MetricsExtension) OnTokenConsumed(_ context.Context, e *token.Entry) error {
	m.TokensConsumed.Inc()
	if e.ConsumedAt != nil {
		m.TimeToConsume.Observe(e.Age(*e.ConsumedAt).Seconds())
	}
	return nil
}

// OnConsumeMissed implements plugin.OnConsumeMissed.
func (m *MetricsExtension) OnConsumeMissed(_ context.Context, _ string, outcome token.Outcome) error {
	switch outcome {
	case token.OutcomeAlreadyConsumed:
		m.ConsumeAlreadyConsumed.Inc()
	case token.OutcomeNotFound:
		m.ConsumeNotFound.Inc()
	}
	return nil
}

// OnTokenExpired implements plugin.OnTokenExpired.
func (m *MetricsExtension) OnTokenExpired(context.Context, string) error {
	m.TokensExpired.Inc()
	return nil
}

// OnSettlementDelivered implements plugin.OnSettlementDelivered.
func (m *MetricsExtension) OnSettlementDelivered(_ context.Context, _ *settlement.Notice, attempts int) error {
	m.SettlementDelivered.Inc()
	m.SettlementAttempts.Observe(float64(attempts))
	return nil
}

// OnSettlementFailed implements plugin.OnSettlementFailed.
func (m *MetricsExtension) OnSettlementFailed(context.Context, *settlement.Notice, error) error {
	m.SettlementFailed.Inc()
	return nil
}
