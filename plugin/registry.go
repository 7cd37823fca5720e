package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/sigil/settlement"
	"github.com/xraph/sigil/tier"
	"github.com/xraph/sigil/token"
)

// DefaultTimeout bounds every hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit                []OnInit
	onShutdown            []OnShutdown
	onTokenIssued         []OnTokenIssued
	onIssueRejected       []OnIssueRejected
	onTokenConsumed       []OnTokenConsumed
	onConsumeMissed       []OnConsumeMissed
	onTokenExpired        []OnTokenExpired
	onCollision           []OnCollision
	onSettlementDelivered []OnSettlementDelivered
	onSettlementFailed    []OnSettlementFailed
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-call hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnTokenIssued); ok {
		r.onTokenIssued = append(r.onTokenIssued, v)
	}
	if v, ok := p.(OnIssueRejected); ok {
		r.onIssueRejected = append(r.onIssueRejected, v)
	}
	if v, ok := p.(OnTokenConsumed); ok {
		r.onTokenConsumed = append(r.onTokenConsumed, v)
	}
	if v, ok := p.(OnConsumeMissed); ok {
		r.onConsumeMissed = append(r.onConsumeMissed, v)
	}
	if v, ok := p.(OnTokenExpired); ok {
		r.onTokenExpired = append(r.onTokenExpired, v)
	}
	if v, ok := p.(OnCollision); ok {
		r.onCollision = append(r.onCollision, v)
	}
	if v, ok := p.(OnSettlementDelivered); ok {
		r.onSettlementDelivered = append(r.onSettlementDelivered, v)
	}
	if v, ok := p.(OnSettlementFailed); ok {
		r.onSettlementFailed = append(r.onSettlementFailed, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

var hookTypes = []struct {
	name  string
	iface reflect.Type
}{
	{"OnInit", reflect.TypeOf((*OnInit)(nil)).Elem()},
	{"OnShutdown", reflect.TypeOf((*OnShutdown)(nil)).Elem()},
	{"OnTokenIssued", reflect.TypeOf((*OnTokenIssued)(nil)).Elem()},
	{"OnIssueRejected", reflect.TypeOf((*OnIssueRejected)(nil)).Elem()},
	{"OnTokenConsumed", reflect.TypeOf((*OnTokenConsumed)(nil)).Elem()},
	{"OnConsumeMissed", reflect.TypeOf((*OnConsumeMissed)(nil)).Elem()},
	{"OnTokenExpired", reflect.TypeOf((*OnTokenExpired)(nil)).Elem()},
	{"OnCollision", reflect.TypeOf((*OnCollision)(nil)).Elem()},
	{"OnSettlementDelivered", reflect.TypeOf((*OnSettlementDelivered)(nil)).Elem()},
	{"OnSettlementFailed", reflect.TypeOf((*OnSettlementFailed)(nil)).Elem()},
}

func implementedInterfaces(p Plugin) []string {
	var names []string
	v := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if v.Implements(h.iface) {
			names = append(names, h.name)
		}
	}
	return names
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// emit runs call for every plugin in hooks and logs failures.
func emit[T Plugin](ctx context.Context, r *Registry, hook string, hooks []T, call func(T) error) {
	for _, p := range hooks {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return call(p)
		}); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

func snapshot[T any](r *Registry, list *[]T) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return *list
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, ledger any) {
	emit(ctx, r, "OnInit", snapshot(r, &r.onInit), func(p OnInit) error {
		return p.OnInit(ctx, ledger)
	})
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(ctx, r, "OnShutdown", snapshot(r, &r.onShutdown), func(p OnShutdown) error {
		return p.OnShutdown(ctx)
	})
}

func (r *Registry) EmitTokenIssued(ctx context.Context, entry *token.Entry) {
	emit(ctx, r, "OnTokenIssued", snapshot(r, &r.onTokenIssued), func(p OnTokenIssued) error {
		return p.OnTokenIssued(ctx, entry)
	})
}

func (r *Registry) EmitIssueRejected(ctx context.Context, payer string, amount float64, t tier.Tier, reason error) {
	emit(ctx, r, "OnIssueRejected", snapshot(r, &r.onIssueRejected), func(p OnIssueRejected) error {
		return p.OnIssueRejected(ctx, payer, amount, t, reason)
	})
}

func (r *Registry) EmitTokenConsumed(ctx context.Context, entry *token.Entry) {
	emit(ctx, r, "OnTokenConsumed", snapshot(r, &r.onTokenConsumed), func(p OnTokenConsumed) error {
		return p.OnTokenConsumed(ctx, entry)
	})
}

func (r *Registry) EmitConsumeMissed(ctx context.Context, tokenID string, outcome token.Outcome) {
	emit(ctx, r, "OnConsumeMissed", snapshot(r, &r.onConsumeMissed), func(p OnConsumeMissed) error {
		return p.OnConsumeMissed(ctx, tokenID, outcome)
	})
}

func (r *Registry) EmitTokenExpired(ctx context.Context, tokenID string) {
	emit(ctx, r, "OnTokenExpired", snapshot(r, &r.onTokenExpired), func(p OnTokenExpired) error {
		return p.OnTokenExpired(ctx, tokenID)
	})
}

func (r *Registry) EmitCollision(ctx context.Context, tokenID string, attempt int) {
	emit(ctx, r, "OnCollision", snapshot(r, &r.onCollision), func(p OnCollision) error {
		return p.OnCollision(ctx, tokenID, attempt)
	})
}

func (r *Registry) EmitSettlementDelivered(ctx context.Context, n *settlement.Notice, attempts int) {
	emit(ctx, r, "OnSettlementDelivered", snapshot(r, &r.onSettlementDelivered), func(p OnSettlementDelivered) error {
		return p.OnSettlementDelivered(ctx, n, attempts)
	})
}

func (r *Registry) EmitSettlementFailed(ctx context.Context, n *settlement.Notice, err error) {
	emit(ctx, r, "OnSettlementFailed", snapshot(r, &r.onSettlementFailed), func(p OnSettlementFailed) error {
		return p.OnSettlementFailed(ctx, n, err)
	})
}

// Delivered and Failed let the registry observe a settlement.Dispatcher.
func (r *Registry) Delivered(ctx context.Context, n *settlement.Notice, attempts int) {
	r.EmitSettlementDelivered(ctx, n, attempts)
}

func (r *Registry) Failed(ctx context.Context, n *settlement.Notice, err error) {
	r.EmitSettlementFailed(ctx, n, err)
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the token pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	t := time.NewTimer(r.timeout)
	defer t.Stop()

	select {
	case err := <-done:
		return err
	case <-t.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
