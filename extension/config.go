package extension

import (
	"time"

	"github.com/xraph/sigil/tier"
)

// Config holds the sigil extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.sigil" or "sigil" keys).
type Config struct {
	// DisableRoutes skips providing the HTTP handler to the container.
	DisableRoutes bool `json:"disable_routes" mapstructure:"disable_routes" yaml:"disable_routes"`

	// BasePath is the URL prefix for sigil routes (default: "/sigil").
	BasePath string `json:"base_path" mapstructure:"base_path" yaml:"base_path"`

	// ConsumeDelay is how long a consumed token lingers before eviction
	// (default: 60s).
	ConsumeDelay time.Duration `json:"consume_delay" mapstructure:"consume_delay" yaml:"consume_delay"`

	// TokenTTL is the absolute lifetime of an unconsumed token (default: 24h).
	TokenTTL time.Duration `json:"token_ttl" mapstructure:"token_ttl" yaml:"token_ttl"`

	// SweepInterval controls the expired-entry sweep (default: 1m).
	SweepInterval time.Duration `json:"sweep_interval" mapstructure:"sweep_interval" yaml:"sweep_interval"`

	// Tiers replaces the built-in tier table when non-empty.
	Tiers []tier.Config `json:"tiers" mapstructure:"tiers" yaml:"tiers"`

	// TiersFile is a YAML tier table, used when Tiers is empty.
	TiersFile string `json:"tiers_file" mapstructure:"tiers_file" yaml:"tiers_file"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BasePath:      "/sigil",
		ConsumeDelay:  60 * time.Second,
		TokenTTL:      24 * time.Hour,
		SweepInterval: time.Minute,
	}
}

// policy resolves the tier table. A nil policy means the built-in one.
func (c Config) policy() (*tier.Policy, error) {
	switch {
	case len(c.Tiers) > 0:
		return tier.NewPolicy(c.Tiers...)
	case c.TiersFile != "":
		return tier.LoadPolicyFile(c.TiersFile)
	default:
		return nil, nil //nolint:nilnil // no override configured
	}
}
