package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// DispatchConfig tunes the dispatcher.
type DispatchConfig struct {
	Workers        int           `json:"workers" yaml:"workers"`
	QueueSize      int           `json:"queue_size" yaml:"queue_size"`
	AttemptTimeout time.Duration `json:"attempt_timeout" yaml:"attempt_timeout"`
	MaxAttempts    uint          `json:"max_attempts" yaml:"max_attempts"`

	// InitialBackoff is the first retry delay; later delays grow
	// exponentially up to MaxBackoff.
	InitialBackoff time.Duration `json:"initial_backoff" yaml:"initial_backoff"`
	MaxBackoff     time.Duration `json:"max_backoff" yaml:"max_backoff"`
}

func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		Workers:        4,
		QueueSize:      1024,
		AttemptTimeout: 5 * time.Second,
		MaxAttempts:    3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
	}
}

func (c DispatchConfig) withDefaults() DispatchConfig {
	d := DefaultDispatchConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = d.AttemptTimeout
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = c.InitialBackoff
	}
	return c
}

// Observer is told how each notice ends.
type Observer interface {
	Delivered(ctx context.Context, n *Notice, attempts int)
	Failed(ctx context.Context, n *Notice, err error)
}

// Dispatcher queues notices in a priority lane and a normal lane and
// delivers them from a worker pool. The priority lane is always drained
// first.
type Dispatcher struct {
	sink     Sink
	cfg      DispatchConfig
	logger   *slog.Logger
	observer Observer

	priority chan *Notice
	normal   chan *Notice

	mu       sync.RWMutex
	started  bool
	stopped  bool
	stopChan chan struct{}
	runCtx   context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewDispatcher creates a dispatcher delivering to sink.
func NewDispatcher(sink Sink, cfg DispatchConfig, logger *slog.Logger) *Dispatcher {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		sink:     sink,
		cfg:      cfg,
		logger:   logger,
		priority: make(chan *Notice, cfg.QueueSize),
		normal:   make(chan *Notice, cfg.QueueSize),
		stopChan: make(chan struct{}),
	}
}

// SetObserver installs the delivery observer. Call before Start.
func (d *Dispatcher) SetObserver(o Observer) {
	d.observer = o
}

func (d *Dispatcher) Config() DispatchConfig { return d.cfg }

// Submit queues n without blocking. It returns ErrQueueFull when the
// notice's lane is at capacity.
func (d *Dispatcher) Submit(n *Notice) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		return ErrDispatcherStopped
	}

	lane := d.normal
	if n.Priority {
		lane = d.priority
	}
	select {
	case lane <- n:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending returns the number of queued notices.
func (d *Dispatcher) Pending() int {
	return len(d.priority) + len(d.normal)
}

// Start launches the workers. Notices submitted earlier are delivered
// once the workers run. Cancelling ctx does not stop the dispatcher;
// use Stop.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started || d.stopped {
		return
	}
	d.started = true
	d.runCtx, d.cancel = context.WithCancel(context.WithoutCancel(ctx))

	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}

	d.logger.Debug("settlement dispatcher started",
		"workers", d.cfg.Workers,
		"queue_size", d.cfg.QueueSize,
	)
}

// Stop refuses further submissions and drains queued notices until ctx is
// done. Whatever is still queued then is abandoned and in-flight deliveries
// are cancelled. It returns the number of abandoned notices.
func (d *Dispatcher) Stop(ctx context.Context) int {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return 0
	}
	d.stopped = true
	started := d.started
	close(d.stopChan)
	d.mu.Unlock()

	if !started {
		return d.Pending()
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		d.cancel()
		<-done
	}
	d.cancel()

	abandoned := d.Pending()
	if abandoned > 0 {
		d.logger.Warn("settlement dispatcher abandoned notices", "count", abandoned)
	}
	return abandoned
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for {
		if d.runCtx.Err() != nil {
			return
		}

		select {
		case n := <-d.priority:
			d.deliver(n)
			continue
		default:
		}

		select {
		case n := <-d.priority:
			d.deliver(n)
		case n := <-d.normal:
			d.deliver(n)
		case <-d.stopChan:
			d.drain()
			return
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		if d.runCtx.Err() != nil {
			return
		}
		select {
		case n := <-d.priority:
			d.deliver(n)
			continue
		default:
		}
		select {
		case n := <-d.normal:
			d.deliver(n)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(n *Notice) {
	ctx := d.runCtx

	var (
		errs     []error
		attempts int
	)
	for _, s := range fanOut(d.sink) {
		tries, err := d.deliverTo(ctx, s, n)
		attempts = max(attempts, tries)
		if err != nil {
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)

	if err != nil {
		err = fmt.Errorf("%w: notice %s after %d attempt(s): %w", ErrDeliveryFailed, n.ID, attempts, err)
		d.logger.Warn("settlement delivery failed",
			"notice_id", n.ID.String(),
			"token_id", n.TokenID,
			"attempts", attempts,
			"error", err,
		)
		if d.observer != nil {
			d.observer.Failed(ctx, n, err)
		}
		return
	}

	d.logger.Debug("settlement delivered",
		"notice_id", n.ID.String(),
		"token_id", n.TokenID,
		"attempts", attempts,
	)
	if d.observer != nil {
		d.observer.Delivered(ctx, n, attempts)
	}
}

// deliverTo retries one sink and reports how many attempts it took.
func (d *Dispatcher) deliverTo(ctx context.Context, s Sink, n *Notice) (int, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.cfg.InitialBackoff
	b.MaxInterval = d.cfg.MaxBackoff

	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		actx, cancel := context.WithTimeout(ctx, d.cfg.AttemptTimeout)
		defer cancel()
		return struct{}{}, s.Deliver(actx, n)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(d.cfg.MaxAttempts),
		backoff.WithMaxElapsedTime(0),
	)
	return attempts, err
}

// fanOut flattens MultiSinks so each member is retried on its own and a
// failing member never re-runs the ones that already took the notice.
func fanOut(s Sink) []Sink {
	m, ok := s.(MultiSink)
	if !ok {
		return []Sink{s}
	}
	var out []Sink
	for _, member := range m {
		out = append(out, fanOut(member)...)
	}
	return out
}
