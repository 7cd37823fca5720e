// Package plugin provides an extensible plugin system for the token ledger.
// Plugins can hook into token lifecycle and settlement events.
package plugin

import (
	"context"

	"github.com/xraph/sigil/settlement"
	"github.com/xraph/sigil/tier"
	"github.com/xraph/sigil/token"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the ledger starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, ledger any) error
}

// OnShutdown is called when the ledger stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Token hooks
//
// Entries passed to hooks never carry content.
// ──────────────────────────────────────────────────

// OnTokenIssued is called after a token is stored.
type OnTokenIssued interface {
	Plugin
	OnTokenIssued(ctx context.Context, entry *token.Entry) error
}

// OnIssueRejected is called when an issue request fails validation.
type OnIssueRejected interface {
	Plugin
	OnIssueRejected(ctx context.Context, payer string, amount float64, t tier.Tier, reason error) error
}

// OnTokenConsumed is called after a successful consumption.
type OnTokenConsumed interface {
	Plugin
	OnTokenConsumed(ctx context.Context, entry *token.Entry) error
}

// OnConsumeMissed is called when a consume attempt finds no token or a
// consumed one.
type OnConsumeMissed interface {
	Plugin
	OnConsumeMissed(ctx context.Context, tokenID string, outcome token.Outcome) error
}

// OnTokenExpired is called when an entry is evicted.
type OnTokenExpired interface {
	Plugin
	OnTokenExpired(ctx context.Context, tokenID string) error
}

// OnCollision is called when a derived token id is already taken and the
// seed is regenerated.
type OnCollision interface {
	Plugin
	OnCollision(ctx context.Context, tokenID string, attempt int) error
}

// ──────────────────────────────────────────────────
// Settlement hooks
// ──────────────────────────────────────────────────

// OnSettlementDelivered is called when a notice reaches the sink.
type OnSettlementDelivered interface {
	Plugin
	OnSettlementDelivered(ctx context.Context, n *settlement.Notice, attempts int) error
}

// OnSettlementFailed is called when a notice is dropped after its final
// attempt or could not be queued.
type OnSettlementFailed interface {
	Plugin
	OnSettlementFailed(ctx context.Context, n *settlement.Notice, err error) error
}
