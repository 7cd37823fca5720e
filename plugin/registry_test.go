package plugin

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/sigil/settlement"
	"github.com/xraph/sigil/tier"
	"github.com/xraph/sigil/token"
)

type recorder struct {
	name string
	mu   sync.Mutex
	seen []string
	err  error
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) add(ev string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, ev)
	return r.err
}

func (r *recorder) events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen...)
}

func (r *recorder) OnInit(context.Context, any) error { return r.add("init") }
func (r *recorder) OnShutdown(context.Context) error  { return r.add("shutdown") }
func (r *recorder) OnTokenIssued(_ context.Context, e *token.Entry) error {
	return r.add("issued:" + e.ID)
}
func (r *recorder) OnIssueRejected(_ context.Context, _ string, _ float64, t tier.Tier, _ error) error {
	return r.add("rejected:" + string(t))
}
func (r *recorder) OnTokenConsumed(_ context.Context, e *token.Entry) error {
	return r.add("consumed:" + e.ID)
}
func (r *recorder) OnConsumeMissed(_ context.Context, id string, o token.Outcome) error {
	return r.add("missed:" + id + ":" + string(o))
}
func (r *recorder) OnTokenExpired(_ context.Context, id string) error { return r.add("expired:" + id) }
func (r *recorder) OnCollision(_ context.Context, id string, _ int) error {
	return r.add("collision:" + id)
}
func (r *recorder) OnSettlementDelivered(_ context.Context, n *settlement.Notice, _ int) error {
	return r.add("delivered:" + n.TokenID)
}
func (r *recorder) OnSettlementFailed(_ context.Context, n *settlement.Notice, _ error) error {
	return r.add("failed:" + n.TokenID)
}

type named string

func (n named) Name() string { return string(n) }

type sleeper struct{ named }

func (s sleeper) OnTokenExpired(ctx context.Context, _ string) error {
	time.Sleep(time.Second)
	return nil
}

func quietRegistry() *Registry {
	return NewRegistry().WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegisterDuplicate(t *testing.T) {
	r := quietRegistry()
	require.NoError(t, r.Register(named("a")))
	assert.Error(t, r.Register(named("a")))
	require.NoError(t, r.Register(named("b")))

	assert.Equal(t, 2, r.Count())
	assert.Equal(t, named("b"), r.Get("b"))
	assert.Nil(t, r.Get("missing"))
	assert.Len(t, r.List(), 2)
}

func TestImplementedInterfaces(t *testing.T) {
	assert.Len(t, implementedInterfaces(&recorder{name: "all"}), len(hookTypes))
	assert.Empty(t, implementedInterfaces(named("none")))
	assert.Equal(t, []string{"OnTokenExpired"}, implementedInterfaces(sleeper{named("s")}))
}

func TestEmitDispatchesEveryHook(t *testing.T) {
	r := quietRegistry()
	rec := &recorder{name: "rec"}
	require.NoError(t, r.Register(rec))
	// plugins without hooks are skipped
	require.NoError(t, r.Register(named("plain")))

	ctx := context.Background()
	e := &token.Entry{ID: "t1"}
	n := &settlement.Notice{TokenID: "t1"}

	r.EmitInit(ctx, nil)
	r.EmitTokenIssued(ctx, e)
	r.EmitIssueRejected(ctx, "p", 0.01, tier.Deeper, errors.New("x"))
	r.EmitTokenConsumed(ctx, e)
	r.EmitConsumeMissed(ctx, "t2", token.OutcomeNotFound)
	r.EmitTokenExpired(ctx, "t1")
	r.EmitCollision(ctx, "t3", 1)
	r.Delivered(ctx, n, 1)
	r.Failed(ctx, n, errors.New("x"))
	r.EmitShutdown(ctx)

	assert.Equal(t, []string{
		"init",
		"issued:t1",
		"rejected:deeper",
		"consumed:t1",
		"missed:t2:not_found",
		"expired:t1",
		"collision:t3",
		"delivered:t1",
		"failed:t1",
		"shutdown",
	}, rec.events())
}

func TestHookErrorsAreSwallowed(t *testing.T) {
	r := quietRegistry()
	bad := &recorder{name: "bad", err: errors.New("nope")}
	good := &recorder{name: "good"}
	require.NoError(t, r.Register(bad))
	require.NoError(t, r.Register(good))

	r.EmitTokenExpired(context.Background(), "t1")
	assert.Equal(t, []string{"expired:t1"}, bad.events())
	assert.Equal(t, []string{"expired:t1"}, good.events())
}

func TestHookTimeout(t *testing.T) {
	r := quietRegistry().WithTimeout(20 * time.Millisecond)
	require.NoError(t, r.Register(sleeper{named("slow")}))

	start := time.Now()
	r.EmitTokenExpired(context.Background(), "t1")
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}
