package extension

import (
	"time"

	"github.com/xraph/sigil"
	"github.com/xraph/sigil/plugin"
	"github.com/xraph/sigil/store"
	"github.com/xraph/sigil/tier"
)

// Option configures the sigil Forge extension.
type Option func(*Extension)

// WithStore sets the store for the ledger.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithLedgerOption passes a sigil.Option through to the underlying ledger.
func WithLedgerOption(opt sigil.Option) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, opt)
	}
}

// WithPlugin registers a ledger plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, sigil.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableRoutes skips providing the HTTP handler.
func WithDisableRoutes() Option {
	return func(e *Extension) { e.config.DisableRoutes = true }
}

// WithBasePath sets the URL prefix for sigil routes.
func WithBasePath(path string) Option {
	return func(e *Extension) { e.config.BasePath = path }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithConsumeDelay sets how long consumed tokens linger.
func WithConsumeDelay(d time.Duration) Option {
	return func(e *Extension) { e.config.ConsumeDelay = d }
}

// WithTokenTTL sets the absolute token lifetime.
func WithTokenTTL(d time.Duration) Option {
	return func(e *Extension) { e.config.TokenTTL = d }
}

// WithTiers replaces the built-in tier table.
func WithTiers(configs ...tier.Config) Option {
	return func(e *Extension) { e.config.Tiers = configs }
}
