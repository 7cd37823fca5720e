// Package tier defines payment tiers and validates payments against them.
//
// A Policy is built once at startup and never mutated, so it is safe for
// concurrent use without locking.
package tier

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

var (
	ErrUnknownTier    = errors.New("tier: unknown tier")
	ErrInvalidPayment = errors.New("tier: insufficient payment")
	ErrInvalidAmount  = errors.New("tier: invalid amount")
	ErrInvalidConfig  = errors.New("tier: invalid configuration")
)

// UnknownTierError reports a tier outside the configured set.
type UnknownTierError struct {
	Tier  Tier
	Valid []Tier
}

func (e *UnknownTierError) Error() string {
	names := make([]string, len(e.Valid))
	for i, t := range e.Valid {
		names[i] = string(t)
	}
	return fmt.Sprintf("invalid tier %q, valid options: %s", e.Tier, strings.Join(names, ", "))
}

func (e *UnknownTierError) Unwrap() error { return ErrUnknownTier }

// InsufficientPaymentError reports an amount below a tier's minimum.
type InsufficientPaymentError struct {
	Tier     Tier
	Minimum  float64
	Received float64
}

func (e *InsufficientPaymentError) Error() string {
	return fmt.Sprintf("insufficient payment: %s tier requires at least %s, received %s",
		e.Tier, formatAmount(e.Minimum), formatAmount(e.Received))
}

func (e *InsufficientPaymentError) Unwrap() error { return ErrInvalidPayment }

// Policy maps tiers to their configuration.
type Policy struct {
	configs map[Tier]Config
	ordered []Tier
}

// NewPolicy builds a policy from the given tier configurations.
func NewPolicy(configs ...Config) (*Policy, error) {
	if len(configs) == 0 {
		return nil, fmt.Errorf("%w: no tiers configured", ErrInvalidConfig)
	}

	p := &Policy{configs: make(map[Tier]Config, len(configs))}
	for _, c := range configs {
		c.Tier = ParseTier(string(c.Tier))
		switch {
		case c.Tier == "":
			return nil, fmt.Errorf("%w: empty tier name", ErrInvalidConfig)
		case !(c.MinimumAmount > 0) || math.IsInf(c.MinimumAmount, 0):
			return nil, fmt.Errorf("%w: tier %s minimum must be a positive finite amount", ErrInvalidConfig, c.Tier)
		case c.DepthMultiplier < 1:
			return nil, fmt.Errorf("%w: tier %s depth multiplier must be at least 1", ErrInvalidConfig, c.Tier)
		}
		if _, dup := p.configs[c.Tier]; dup {
			return nil, fmt.Errorf("%w: duplicate tier %s", ErrInvalidConfig, c.Tier)
		}
		p.configs[c.Tier] = c
		p.ordered = append(p.ordered, c.Tier)
	}

	sort.Slice(p.ordered, func(i, j int) bool {
		a, b := p.configs[p.ordered[i]], p.configs[p.ordered[j]]
		if a.MinimumAmount != b.MinimumAmount {
			return a.MinimumAmount < b.MinimumAmount
		}
		return a.Tier < b.Tier
	})

	return p, nil
}

// DefaultPolicy returns the reference base/deeper/monolith policy.
func DefaultPolicy() *Policy {
	p, err := NewPolicy(Defaults()...)
	if err != nil {
		panic(err) // static table
	}
	return p
}

// Tiers returns the configured tiers ordered by minimum amount.
func (p *Policy) Tiers() []Tier {
	out := make([]Tier, len(p.ordered))
	copy(out, p.ordered)
	return out
}

// Configs returns the configurations in Tiers order.
func (p *Policy) Configs() []Config {
	out := make([]Config, len(p.ordered))
	for i, t := range p.ordered {
		out[i] = p.configs[t]
	}
	return out
}

// ConfigFor looks up the configuration of a tier.
func (p *Policy) ConfigFor(t Tier) (Config, error) {
	c, ok := p.configs[t]
	if !ok {
		return Config{}, &UnknownTierError{Tier: t, Valid: p.Tiers()}
	}
	return c, nil
}

// Validate checks amount against the tier's minimum. It has no side effects.
func (p *Policy) Validate(amount float64, t Tier) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0 {
		return fmt.Errorf("%w: amount must be a finite, non-negative number, got %v", ErrInvalidAmount, amount)
	}

	c, err := p.ConfigFor(t)
	if err != nil {
		return err
	}

	if amount < c.MinimumAmount {
		return &InsufficientPaymentError{Tier: t, Minimum: c.MinimumAmount, Received: amount}
	}
	return nil
}

// Qualify returns the highest tier whose minimum the amount satisfies.
func (p *Policy) Qualify(amount float64) (Tier, bool) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return "", false
	}
	var best Tier
	found := false
	for _, t := range p.ordered {
		if amount >= p.configs[t].MinimumAmount {
			best, found = t, true
		}
	}
	return best, found
}

// IsPriority reports whether t ranks above the lowest tier. Settlement
// notices for priority tiers are dispatched ahead of base ones.
func (p *Policy) IsPriority(t Tier) bool {
	c, ok := p.configs[t]
	if !ok || len(p.ordered) == 0 {
		return false
	}
	return c.MinimumAmount > p.configs[p.ordered[0]].MinimumAmount
}

func formatAmount(v float64) string {
	return fmt.Sprintf("%g", v)
}
