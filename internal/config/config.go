// Package config loads the sigil server configuration from SIGIL_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"

	"github.com/xraph/sigil"
	"github.com/xraph/sigil/settlement"
	"github.com/xraph/sigil/tier"
	"github.com/xraph/sigil/token"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreBadger = "badger"
)

// Config holds everything `sigil serve` needs.
type Config struct {
	// HTTP
	HTTPAddr string `env:"SIGIL_HTTP_ADDR" envDefault:":8402" validate:"required"`
	BasePath string `env:"SIGIL_BASE_PATH" envDefault:"/sigil" validate:"required,startswith=/"`

	// Logging
	LogLevel  string `env:"SIGIL_LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
	LogFormat string `env:"SIGIL_LOG_FORMAT" envDefault:"text" validate:"oneof=text json"`

	// Ledger
	TiersFile           string        `env:"SIGIL_TIERS_FILE"`
	ConsumeDelay        time.Duration `env:"SIGIL_CONSUME_DELAY" envDefault:"60s" validate:"gte=0s"`
	TokenTTL            time.Duration `env:"SIGIL_TOKEN_TTL" envDefault:"24h" validate:"gt=0s"`
	SweepInterval       time.Duration `env:"SIGIL_SWEEP_INTERVAL" envDefault:"1m" validate:"gte=0s"`
	IDLength            int           `env:"SIGIL_ID_LENGTH" envDefault:"16" validate:"min=8,max=64"`
	DigestLength        int           `env:"SIGIL_DIGEST_LENGTH" envDefault:"32" validate:"min=1,max=64"`
	MaxCollisionRetries int           `env:"SIGIL_MAX_COLLISION_RETRIES" envDefault:"3" validate:"min=0,max=16"`

	// Settlement dispatch
	DispatchWorkers        int           `env:"SIGIL_DISPATCH_WORKERS" envDefault:"4" validate:"min=1,max=256"`
	DispatchQueueSize      int           `env:"SIGIL_DISPATCH_QUEUE_SIZE" envDefault:"1024" validate:"min=1"`
	DispatchAttemptTimeout time.Duration `env:"SIGIL_DISPATCH_ATTEMPT_TIMEOUT" envDefault:"5s" validate:"gt=0s"`
	DispatchMaxAttempts    uint          `env:"SIGIL_DISPATCH_MAX_ATTEMPTS" envDefault:"3" validate:"min=1,max=20"`
	DrainTimeout           time.Duration `env:"SIGIL_DRAIN_TIMEOUT" envDefault:"5s" validate:"gte=0s"`

	// Store
	Store       string        `env:"SIGIL_STORE" envDefault:"memory" validate:"oneof=memory badger"`
	BadgerGrace time.Duration `env:"SIGIL_BADGER_GRACE" envDefault:"1m" validate:"gte=0s"`

	// Settlement sinks. The log sink is always on.
	KafkaBrokers []string `env:"SIGIL_KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"SIGIL_KAFKA_TOPIC" envDefault:"sigil.settlements" validate:"required_with=KafkaBrokers"`
	JournalPath  string   `env:"SIGIL_JOURNAL_PATH"`

	// Telemetry
	MetricsPath  string `env:"SIGIL_METRICS_PATH" envDefault:"/metrics" validate:"required,startswith=/"`
	OTelEndpoint string `env:"SIGIL_OTEL_ENDPOINT"`
	OTelInsecure bool   `env:"SIGIL_OTEL_INSECURE"`
	ServiceName  string `env:"SIGIL_SERVICE_NAME" envDefault:"sigil" validate:"required"`
}

var validate = validator.New()

// Load parses the environment and validates the result.
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	var errs sigil.MultiError

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			errs.Add(sigil.ValidationError{
				Field:   fe.Field(),
				Message: describe(fe),
			})
		}
	}

	return errs.ErrOrNil()
}

func describe(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fmt.Sprintf("failed %q", fe.Tag())
	}
	return fmt.Sprintf("failed %q (%s), got %v", fe.Tag(), fe.Param(), fe.Value())
}

// Policy returns the tier table from TiersFile, or the defaults.
func (c *Config) Policy() (*tier.Policy, error) {
	if c.TiersFile == "" {
		return tier.DefaultPolicy(), nil
	}
	return tier.LoadPolicyFile(c.TiersFile)
}

// Deriver returns the token formatting parameters.
func (c *Config) Deriver() token.Deriver {
	d := token.DefaultDeriver()
	d.IDLength = c.IDLength
	d.DigestLength = c.DigestLength
	return d
}

// Dispatch returns the settlement dispatcher configuration.
func (c *Config) Dispatch() settlement.DispatchConfig {
	d := settlement.DefaultDispatchConfig()
	d.Workers = c.DispatchWorkers
	d.QueueSize = c.DispatchQueueSize
	d.AttemptTimeout = c.DispatchAttemptTimeout
	d.MaxAttempts = c.DispatchMaxAttempts
	return d
}

// LedgerOptions maps the ledger settings onto sigil options.
func (c *Config) LedgerOptions() []sigil.Option {
	return []sigil.Option{
		sigil.WithConsumeDelay(c.ConsumeDelay),
		sigil.WithTokenTTL(c.TokenTTL),
		sigil.WithSweepInterval(c.SweepInterval),
		sigil.WithDeriver(c.Deriver()),
		sigil.WithMaxCollisionRetries(c.MaxCollisionRetries),
		sigil.WithDispatchConfig(c.Dispatch()),
		sigil.WithDrainTimeout(c.DrainTimeout),
	}
}

// Level parses LogLevel.
func (c *Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
