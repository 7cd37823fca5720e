// Package sigil provides a tiered one-time-token settlement cache for Go
// applications.
//
// A caller pays an amount against a tier. Sigil validates the payment,
// derives a token from a fresh 256-bit seed, keeps it in a volatile store and
// reveals its content exactly once. It provides:
//
//   - Tier policies with minimum amounts and derivation depths
//   - Deterministic id and content derivation from a secure seed
//   - Atomic single-use consumption, safe under concurrent callers
//   - Absolute token lifetimes and a short post-consumption grace period
//   - Asynchronous settlement notices (log, Kafka, SQLite journal)
//   - Lifecycle hooks for audit trails and metrics
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/sigil"
//	    "github.com/xraph/sigil/store/memory"
//	)
//
//	l := sigil.New(memory.New())
//	if err := l.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer l.Stop()
//
//	issued, err := l.Issue(ctx, "wallet_abc", 0.07, "deeper")
//	if errors.Is(err, sigil.ErrInvalidPayment) {
//	    // amount below the tier minimum
//	}
//
//	res, err := l.Consume(ctx, issued.TokenID)
//	if res.OK() {
//	    fmt.Println(res.Content) // TKN_wallet_a_<32 hex>
//	}
//
// A second Consume of the same id returns OutcomeAlreadyConsumed. Consumed
// entries are evicted after the consume delay (60s by default); unconsumed
// ones after the token TTL (24h by default).
//
// # Tiers
//
// The default table:
//
//	base      0.01  depth 1  Standard settlement
//	deeper    0.05  depth 3  Enhanced settlement
//	monolith  0.10  depth 5  Premium settlement
//
// Tiers above the lowest one are priority tiers; their settlement notices
// jump the dispatch queue. Custom tables are built with tier.NewPolicy or
// loaded from YAML with tier.LoadPolicyFile.
//
// # Settlement
//
// Every issued token produces a settlement.Notice. Notices are queued and
// delivered by a worker pool with per-attempt timeouts and exponential
// backoff. A full queue or a failed delivery is logged and reported to
// plugins but never fails the issue.
//
// # TypeID
//
// Settlement notices and audit records use TypeIDs:
//
//	stl_01h2xcejqtf2nbrexx3vqjhp41  // Settlement notice
//	aud_01h455vb4pex5vsknk084sn02q  // Audit record
//
// Token ids are not TypeIDs. They are hex digests derived from the seed.
package sigil
