// Package extension provides the Forge extension adapter for sigil.
//
// It implements the forge.Extension interface to integrate the token
// ledger into a Forge application with DI registration and lifecycle
// management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.sigil" or "sigil" keys.
package extension

import (
	"context"
	"errors"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/sigil"
	"github.com/xraph/sigil/httpapi"
	"github.com/xraph/sigil/store"
	"github.com/xraph/sigil/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "sigil"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Tiered one-time token ledger"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the sigil ledger as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *sigil.Ledger
	api        *httpapi.Server
	store      store.Store
	ledgerOpts []sigil.Option
}

// New creates a new sigil Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying ledger.
// This is nil until Register is called.
func (e *Extension) Engine() *sigil.Ledger { return e.engine }

// API returns the HTTP handlers, or nil when routes are disabled.
func (e *Extension) API() *httpapi.Server { return e.api }

// Register implements [forge.Extension]. It loads configuration, builds
// the ledger and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if e.store == nil {
		e.store = memory.New()
	}

	opts, err := e.buildLedgerOpts()
	if err != nil {
		return err
	}
	e.engine = sigil.New(e.store, opts...)

	if err := vessel.Provide(fapp.Container(), func() (*sigil.Ledger, error) {
		return e.engine, nil
	}); err != nil {
		return err
	}

	if e.config.DisableRoutes {
		return nil
	}
	e.api = httpapi.New(e.engine, httpapi.WithBasePath(e.config.BasePath))
	return vessel.Provide(fapp.Container(), func() (*httpapi.Server, error) {
		return e.api, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("sigil: extension not initialized")
	}

	if err := e.engine.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("sigil: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildLedgerOpts constructs sigil.Option values from the resolved config.
func (e *Extension) buildLedgerOpts() ([]sigil.Option, error) {
	opts := make([]sigil.Option, 0, len(e.ledgerOpts)+4)

	opts = append(opts,
		sigil.WithConsumeDelay(e.config.ConsumeDelay),
		sigil.WithTokenTTL(e.config.TokenTTL),
		sigil.WithSweepInterval(e.config.SweepInterval),
	)

	policy, err := e.config.policy()
	if err != nil {
		return nil, err
	}
	if policy != nil {
		opts = append(opts, sigil.WithPolicy(policy))
	}

	// Pass-through options go last so they win.
	opts = append(opts, e.ledgerOpts...)

	return opts, nil
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("sigil: configuration is required but not found in config files; " +
				"ensure 'extensions.sigil' or 'sigil' key exists in your config")
		}

		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("sigil: configuration loaded",
		forge.F("disable_routes", e.config.DisableRoutes),
		forge.F("base_path", e.config.BasePath),
		forge.F("consume_delay", e.config.ConsumeDelay),
		forge.F("token_ttl", e.config.TokenTTL),
		forge.F("sweep_interval", e.config.SweepInterval),
		forge.F("custom_tiers", len(e.config.Tiers) > 0 || e.config.TiersFile != ""),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.sigil", "sigil"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("sigil: loaded config from file",
				forge.F("key", key),
			)
			return cfg, true
		}
		e.Logger().Warn("sigil: failed to bind config",
			forge.F("key", key),
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.BasePath == "" {
		cfg.BasePath = defaults.BasePath
	}
	if cfg.ConsumeDelay == 0 {
		cfg.ConsumeDelay = defaults.ConsumeDelay
	}
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = defaults.TokenTTL
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = defaults.SweepInterval
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic values fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableRoutes {
		yamlConfig.DisableRoutes = true
	}

	if yamlConfig.BasePath == "" && programmaticConfig.BasePath != "" {
		yamlConfig.BasePath = programmaticConfig.BasePath
	}
	if yamlConfig.TiersFile == "" && programmaticConfig.TiersFile != "" {
		yamlConfig.TiersFile = programmaticConfig.TiersFile
	}
	if len(yamlConfig.Tiers) == 0 && len(programmaticConfig.Tiers) > 0 {
		yamlConfig.Tiers = programmaticConfig.Tiers
	}

	if yamlConfig.ConsumeDelay == 0 && programmaticConfig.ConsumeDelay != 0 {
		yamlConfig.ConsumeDelay = programmaticConfig.ConsumeDelay
	}
	if yamlConfig.TokenTTL == 0 && programmaticConfig.TokenTTL != 0 {
		yamlConfig.TokenTTL = programmaticConfig.TokenTTL
	}
	if yamlConfig.SweepInterval == 0 && programmaticConfig.SweepInterval != 0 {
		yamlConfig.SweepInterval = programmaticConfig.SweepInterval
	}

	return e.mergeWithDefaults(yamlConfig)
}
