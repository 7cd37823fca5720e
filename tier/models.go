package tier

import (
	"strings"
)

// Tier is a named payment bracket.
type Tier string

const (
	Base     Tier = "base"
	Deeper   Tier = "deeper"
	Monolith Tier = "monolith"
)

// ParseTier normalizes s into a Tier. It does not check membership in any
// policy; use Policy.ConfigFor for that.
func ParseTier(s string) Tier {
	return Tier(strings.ToLower(strings.TrimSpace(s)))
}

func (t Tier) String() string { return string(t) }

// Config is the payment threshold and derivation depth of one tier.
type Config struct {
	Tier            Tier    `json:"tier" yaml:"tier"`
	MinimumAmount   float64 `json:"minimum_amount" yaml:"minimum_amount"`
	DepthMultiplier int     `json:"depth_multiplier" yaml:"depth_multiplier"`
	Description     string  `json:"description" yaml:"description"`
}

// Defaults returns the reference tier table.
func Defaults() []Config {
	return []Config{
		{Tier: Base, MinimumAmount: 0.01, DepthMultiplier: 1, Description: "Standard settlement"},
		{Tier: Deeper, MinimumAmount: 0.05, DepthMultiplier: 3, Description: "Enhanced settlement"},
		{Tier: Monolith, MinimumAmount: 0.10, DepthMultiplier: 5, Description: "Premium settlement"},
	}
}
