package sigil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/sigil/plugin"
	"github.com/xraph/sigil/settlement"
	"github.com/xraph/sigil/store"
	"github.com/xraph/sigil/tier"
	"github.com/xraph/sigil/token"
	"github.com/xraph/sigil/types"
)

const tracerName = "github.com/xraph/sigil"

// Ledger issues one-time tokens against tiered payments and consumes each
// at most once.
type Ledger struct {
	store      store.Store
	policy     *tier.Policy
	deriver    token.Deriver
	generate   token.ContentGenerator
	sink       settlement.Sink
	dispatcher *settlement.Dispatcher
	plugins    *plugin.Registry
	logger     *slog.Logger
	tracer     trace.Tracer
	expiry     *scheduler
	clock      func() time.Time
	random     io.Reader

	// Background workers
	stopChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	started  bool
	stopped  bool

	// Configuration
	consumeDelay        time.Duration
	tokenTTL            time.Duration
	sweepInterval       time.Duration
	drainTimeout        time.Duration
	maxCollisionRetries int
	dispatchConfig      settlement.DispatchConfig
}

// Issued is returned by a successful Issue. It carries both the token id
// used for consumption and the content.
type Issued struct {
	TokenID   string    `json:"token_id"`
	Content   string    `json:"content"`
	Tier      tier.Tier `json:"tier"`
	Amount    float64   `json:"amount"`
	ExpiresAt time.Time `json:"expires_at"`
	Priority  bool      `json:"priority"`
}

// New creates a new Ledger instance.
func New(s store.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:               s,
		policy:              tier.DefaultPolicy(),
		deriver:             token.DefaultDeriver(),
		plugins:             plugin.NewRegistry(),
		logger:              slog.Default(),
		tracer:              otel.Tracer(tracerName),
		clock:               time.Now,
		stopChan:            make(chan struct{}),
		consumeDelay:        60 * time.Second,
		tokenTTL:            24 * time.Hour,
		sweepInterval:       time.Minute,
		drainTimeout:        5 * time.Second,
		maxCollisionRetries: 3,
		dispatchConfig:      settlement.DefaultDispatchConfig(),
	}

	for _, opt := range opts {
		opt(l)
	}

	if l.generate == nil {
		l.generate = l.deriver.Generator()
	}
	if l.sink == nil {
		l.sink = &settlement.LogSink{Logger: l.logger}
	}
	l.dispatcher = settlement.NewDispatcher(l.sink, l.dispatchConfig, l.logger)
	l.dispatcher.SetObserver(l.plugins)
	l.expiry = newScheduler(l.clock, l.expireDue)

	return l
}

// Option configures a Ledger instance.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
		l.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(l *Ledger) {
		_ = l.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithPolicy replaces the default tier table.
func WithPolicy(p *tier.Policy) Option {
	return func(l *Ledger) {
		if p != nil {
			l.policy = p
		}
	}
}

// WithDeriver sets the id and content formatting parameters. An invalid
// deriver is ignored; check it with Deriver.Validate first.
func WithDeriver(d token.Deriver) Option {
	return func(l *Ledger) {
		if d.Validate() == nil {
			l.deriver = d
		}
	}
}

// WithContentGenerator replaces the default content derivation.
func WithContentGenerator(g token.ContentGenerator) Option {
	return func(l *Ledger) {
		l.generate = g
	}
}

// WithSink sets where settlement notices go. Defaults to a LogSink.
func WithSink(s settlement.Sink) Option {
	return func(l *Ledger) {
		l.sink = s
	}
}

// WithConsumeDelay sets how long a consumed entry lingers before eviction.
func WithConsumeDelay(d time.Duration) Option {
	return func(l *Ledger) {
		if d >= 0 {
			l.consumeDelay = d
		}
	}
}

// WithTokenTTL sets the absolute lifetime of an unconsumed token.
func WithTokenTTL(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.tokenTTL = d
		}
	}
}

// WithSweepInterval sets how often the store is scanned for expired
// entries the scheduler did not evict. Zero disables the sweep.
func WithSweepInterval(d time.Duration) Option {
	return func(l *Ledger) {
		if d >= 0 {
			l.sweepInterval = d
		}
	}
}

// WithDispatchConfig configures the settlement dispatcher.
func WithDispatchConfig(cfg settlement.DispatchConfig) Option {
	return func(l *Ledger) {
		l.dispatchConfig = cfg
	}
}

// WithDrainTimeout bounds how long Stop waits for queued notices.
func WithDrainTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		if d >= 0 {
			l.drainTimeout = d
		}
	}
}

// WithMaxCollisionRetries sets how many times a seed is regenerated when
// the derived id is taken.
func WithMaxCollisionRetries(n int) Option {
	return func(l *Ledger) {
		if n >= 0 {
			l.maxCollisionRetries = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.clock = now
		}
	}
}

// WithRandom overrides the seed entropy source. Nil means crypto/rand.
func WithRandom(r io.Reader) Option {
	return func(l *Ledger) {
		l.random = r
	}
}

// WithTracer sets the OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(l *Ledger) {
		if t != nil {
			l.tracer = t
		}
	}
}

// Policy returns the tier table in use.
func (l *Ledger) Policy() *tier.Policy { return l.policy }

// Plugins returns the plugin registry.
func (l *Ledger) Plugins() *plugin.Registry { return l.plugins }

// Start begins background workers.
func (l *Ledger) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopped {
		return ErrStopped
	}
	if l.started {
		return nil
	}

	if err := l.store.Ping(ctx); err != nil {
		return fmt.Errorf("sigil: store not ready: %w", err)
	}

	l.plugins.EmitInit(ctx, l)

	l.dispatcher.Start(ctx)
	l.expiry.start()

	if l.sweepInterval > 0 {
		l.wg.Add(1)
		go l.sweepWorker()
	}
	l.started = true

	l.logger.Info("sigil ledger started",
		"tiers", len(l.policy.Tiers()),
		"consume_delay", l.consumeDelay,
		"token_ttl", l.tokenTTL,
		"workers", l.dispatcher.Config().Workers,
	)

	return nil
}

// Stop shuts down the Ledger. Pending evictions are abandoned; queued
// settlement notices get the drain timeout to go out.
func (l *Ledger) Stop() error {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return nil
	}
	l.stopped = true
	l.mu.Unlock()

	close(l.stopChan)
	l.wg.Wait()
	l.expiry.stop()

	drainCtx, cancel := context.WithTimeout(context.Background(), l.drainTimeout)
	abandoned := l.dispatcher.Stop(drainCtx)
	cancel()

	ctx := context.Background()
	l.plugins.EmitShutdown(ctx)

	l.logger.Info("sigil ledger stopped", "abandoned_notices", abandoned)

	return l.store.Close()
}

func (l *Ledger) now() time.Time {
	return l.clock().UTC()
}

// ──────────────────────────────────────────────────
// Issue
// ──────────────────────────────────────────────────

// Issue validates the payment, derives a token for payer and stores it.
// The settlement notice is queued and never delays or fails the issue.
func (l *Ledger) Issue(ctx context.Context, payer string, amount float64, tierName string) (*Issued, error) {
	t := tier.ParseTier(tierName)

	ctx, span := l.tracer.Start(ctx, "sigil.Issue", trace.WithAttributes(
		attribute.String("sigil.tier", string(t)),
		attribute.Float64("sigil.amount", amount),
	))
	defer span.End()

	if strings.TrimSpace(payer) == "" {
		return nil, l.reject(ctx, span, payer, amount, t, fmt.Errorf("%w: payer is required", ErrInvalidInput))
	}
	if err := l.policy.Validate(amount, t); err != nil {
		return nil, l.reject(ctx, span, payer, amount, t, err)
	}
	cfg, err := l.policy.ConfigFor(t)
	if err != nil {
		return nil, l.reject(ctx, span, payer, amount, t, err)
	}

	now := l.now()
	for attempt := 0; attempt <= l.maxCollisionRetries; attempt++ {
		seed, err := token.NewSeed(l.random)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "seed")
			return nil, fmt.Errorf("sigil: %w", err)
		}

		entry := &token.Entry{
			ID:        l.deriver.DeriveID(seed, payer),
			Content:   l.generate(seed, cfg.DepthMultiplier, payer),
			Payer:     payer,
			Tier:      t,
			Amount:    amount,
			Entity:    types.NewEntity(now),
			ExpiresAt: now.Add(l.tokenTTL),
		}

		err = l.store.Insert(ctx, entry)
		if errors.Is(err, store.ErrTokenExists) {
			l.logger.Warn("token id collision, regenerating seed",
				"token_id", entry.ID,
				"attempt", attempt+1,
			)
			l.plugins.EmitCollision(ctx, entry.ID, attempt+1)
			continue
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "store")
			return nil, fmt.Errorf("sigil: store token: %w", err)
		}

		l.expiry.schedule(entry.ID, entry.ExpiresAt)
		priority := l.policy.IsPriority(t)
		l.notify(ctx, entry, priority)

		l.logger.Debug("token issued",
			"token_id", entry.ID,
			"payer", settlement.ShortPayer(payer),
			"tier", t,
			"priority", priority,
		)
		l.plugins.EmitTokenIssued(ctx, entry.Redacted())
		span.SetAttributes(attribute.String("sigil.token_id", entry.ID))

		return &Issued{
			TokenID:   entry.ID,
			Content:   entry.Content,
			Tier:      t,
			Amount:    amount,
			ExpiresAt: entry.ExpiresAt,
			Priority:  priority,
		}, nil
	}

	err = fmt.Errorf("%w: %d consecutive collisions with id length %d", ErrIDSpaceExhausted, l.maxCollisionRetries+1, l.deriver.IDLength)
	l.logger.Error("token id space exhausted", "error", err)
	span.RecordError(err)
	span.SetStatus(codes.Error, "collision")
	return nil, err
}

func (l *Ledger) reject(ctx context.Context, span trace.Span, payer string, amount float64, t tier.Tier, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, "rejected")
	l.logger.Debug("issue rejected",
		"payer", settlement.ShortPayer(payer),
		"tier", t,
		"amount", amount,
		"error", err,
	)
	l.plugins.EmitIssueRejected(ctx, payer, amount, t, err)
	return err
}

// notify queues the settlement notice for entry. A full queue is logged
// and reported to plugins; the token stays issued.
func (l *Ledger) notify(ctx context.Context, entry *token.Entry, priority bool) {
	n := settlement.NewNotice(entry, priority)
	if err := l.dispatcher.Submit(n); err != nil {
		err = fmt.Errorf("%w: %w", ErrNotificationFailed, err)
		l.logger.Warn("settlement notification failed",
			"token_id", entry.ID,
			"notice_id", n.ID.String(),
			"error", err,
		)
		l.plugins.EmitSettlementFailed(ctx, n, err)
	}
}

// ──────────────────────────────────────────────────
// Consume
// ──────────────────────────────────────────────────

// Consume reveals the token's content exactly once. Missing and already
// consumed tokens are reported through the result's Outcome; the error is
// reserved for store failures.
func (l *Ledger) Consume(ctx context.Context, tokenID string) (*token.Result, error) {
	ctx, span := l.tracer.Start(ctx, "sigil.Consume", trace.WithAttributes(
		attribute.String("sigil.token_id", tokenID),
	))
	defer span.End()

	now := l.now()
	entry, err := l.store.Consume(ctx, tokenID, now, now.Add(l.consumeDelay))

	var outcome token.Outcome
	switch {
	case err == nil:
		outcome = token.OutcomeConsumed
	case errors.Is(err, store.ErrTokenNotFound):
		outcome = token.OutcomeNotFound
	case errors.Is(err, store.ErrAlreadyConsumed):
		outcome = token.OutcomeAlreadyConsumed
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, "store")
		return nil, fmt.Errorf("sigil: consume %s: %w", tokenID, err)
	}
	span.SetAttributes(attribute.String("sigil.outcome", string(outcome)))

	if outcome != token.OutcomeConsumed {
		l.logger.Debug("consume missed", "token_id", tokenID, "outcome", outcome)
		l.plugins.EmitConsumeMissed(ctx, tokenID, outcome)
		return &token.Result{Outcome: outcome, TokenID: tokenID}, nil
	}

	l.expiry.schedule(tokenID, entry.ExpiresAt)

	l.logger.Debug("token consumed",
		"token_id", tokenID,
		"tier", entry.Tier,
		"evict_at", entry.ExpiresAt,
	)
	l.plugins.EmitTokenConsumed(ctx, entry.Redacted())

	return &token.Result{
		Outcome: token.OutcomeConsumed,
		TokenID: tokenID,
		Content: entry.Content,
	}, nil
}

// Status describes a token without revealing its content.
func (l *Ledger) Status(ctx context.Context, tokenID string) (*token.Status, error) {
	entry, err := l.store.Get(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if !entry.ExpiresAt.After(l.now()) {
		return nil, ErrTokenNotFound
	}
	return entry.Status(), nil
}

// Qualify returns the highest tier the amount pays for.
func (l *Ledger) Qualify(amount float64) (tier.Tier, bool) {
	return l.policy.Qualify(amount)
}

// Ping checks the store.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.store.Ping(ctx)
}

// ──────────────────────────────────────────────────
// Expiry
// ──────────────────────────────────────────────────

// Expire removes a token regardless of its deadline. It is idempotent and
// reports whether anything was removed.
func (l *Ledger) Expire(ctx context.Context, tokenID string) (bool, error) {
	removed, err := l.store.Delete(ctx, tokenID)
	if err != nil {
		return false, fmt.Errorf("sigil: expire %s: %w", tokenID, err)
	}
	if removed {
		l.logger.Debug("token expired", "token_id", tokenID)
		l.plugins.EmitTokenExpired(ctx, tokenID)
	}
	return removed, nil
}

// expireDue is the scheduler callback. The entry's deadline may have been
// moved since the timer was set, so it is checked again.
func (l *Ledger) expireDue(tokenID string) {
	ctx := context.Background()
	entry, err := l.store.Get(ctx, tokenID)
	if err != nil {
		if !errors.Is(err, store.ErrTokenNotFound) && !errors.Is(err, store.ErrClosed) {
			l.logger.Warn("expiry lookup failed", "token_id", tokenID, "error", err)
		}
		return
	}
	if entry.ExpiresAt.After(l.now()) {
		return
	}
	if _, err := l.Expire(ctx, tokenID); err != nil {
		l.logger.Warn("expiry failed", "token_id", tokenID, "error", err)
	}
}

// Sweep evicts every entry whose deadline has passed and returns how many
// were removed.
func (l *Ledger) Sweep(ctx context.Context) (int, error) {
	ids, err := l.store.Expired(ctx, l.now())
	if err != nil {
		return 0, fmt.Errorf("sigil: sweep: %w", err)
	}
	removed := 0
	for _, id := range ids {
		ok, err := l.Expire(ctx, id)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

// sweepWorker periodically evicts expired entries.
func (l *Ledger) sweepWorker() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopChan:
			return

		case <-ticker.C:
			n, err := l.Sweep(context.Background())
			if err != nil {
				l.logger.Error("sweep failed", "error", err)
				continue
			}
			if n > 0 {
				l.logger.Debug("swept expired tokens", "count", n)
			}
		}
	}
}
