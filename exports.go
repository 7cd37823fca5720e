package sigil

import (
	"github.com/xraph/sigil/settlement"
	"github.com/xraph/sigil/tier"
	"github.com/xraph/sigil/token"
	"github.com/xraph/sigil/types"
)

// Re-export common types for convenience so users don't have to import
// the leaf packages.

type (
	Tier       = tier.Tier
	TierConfig = tier.Config
	Policy     = tier.Policy

	Entry   = token.Entry
	Result  = token.Result
	Status  = token.Status
	Outcome = token.Outcome
	Deriver = token.Deriver

	Notice = settlement.Notice
	Sink   = settlement.Sink

	Money = types.Money
)

const (
	Base     = tier.Base
	Deeper   = tier.Deeper
	Monolith = tier.Monolith

	OutcomeConsumed        = token.OutcomeConsumed
	OutcomeNotFound        = token.OutcomeNotFound
	OutcomeAlreadyConsumed = token.OutcomeAlreadyConsumed
)

// Re-export constructors
var (
	NewPolicy      = tier.NewPolicy
	DefaultPolicy  = tier.DefaultPolicy
	DefaultDeriver = token.DefaultDeriver
	SOL            = types.SOL
	Lamports       = types.Lamports
)
