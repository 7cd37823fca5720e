package settlement

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/sigil/tier"
	"github.com/xraph/sigil/token"
	"github.com/xraph/sigil/types"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testNotice(tokenID string, priority bool) *Notice {
	return NewNotice(&token.Entry{
		ID:        tokenID,
		Payer:     "wallet_abc",
		Tier:      tier.Deeper,
		Amount:    0.07,
		Entity:    types.NewEntity(time.Now()),
	}, priority)
}

func fastConfig() DispatchConfig {
	return DispatchConfig{
		Workers:        1,
		QueueSize:      16,
		AttemptTimeout: time.Second,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
}

type recordingObserver struct {
	mu        sync.Mutex
	delivered map[string]int
	failed    map[string]error
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{delivered: map[string]int{}, failed: map[string]error{}}
}

func (o *recordingObserver) Delivered(_ context.Context, n *Notice, attempts int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.delivered[n.TokenID] = attempts
}

func (o *recordingObserver) Failed(_ context.Context, n *Notice, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed[n.TokenID] = err
}

func (o *recordingObserver) counts() (int, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.delivered), len(o.failed)
}

func TestNewNotice(t *testing.T) {
	n := testNotice("tok1", true)
	assert.Equal(t, "stl", string(n.ID.Prefix()))
	assert.Equal(t, DefaultEndpoint, n.Endpoint)
	assert.Equal(t, "tok1", n.TokenID)
	assert.True(t, n.Priority)
}

func TestDispatcherDelivers(t *testing.T) {
	var got atomic.Int32
	sink := SinkFunc(func(context.Context, *Notice) error {
		got.Add(1)
		return nil
	})
	obs := newRecordingObserver()

	cfg := fastConfig()
	cfg.Workers = 4
	d := NewDispatcher(sink, cfg, quietLogger())
	d.SetObserver(obs)
	d.Start(context.Background())

	for i := 0; i < 10; i++ {
		require.NoError(t, d.Submit(testNotice(string(rune('a'+i)), i%2 == 0)))
	}

	assert.Eventually(t, func() bool { return got.Load() == 10 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, d.Stop(context.Background()))

	delivered, failed := obs.counts()
	assert.Equal(t, 10, delivered)
	assert.Zero(t, failed)
}

func TestDispatcherPriorityFirst(t *testing.T) {
	var mu sync.Mutex
	var order []string
	sink := SinkFunc(func(_ context.Context, n *Notice) error {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, n.TokenID)
		return nil
	})

	d := NewDispatcher(sink, fastConfig(), quietLogger())
	for _, id := range []string{"n1", "n2", "n3"} {
		require.NoError(t, d.Submit(testNotice(id, false)))
	}
	for _, id := range []string{"p1", "p2"} {
		require.NoError(t, d.Submit(testNotice(id, true)))
	}

	d.Start(context.Background())
	d.Stop(context.Background())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 5)
	assert.Equal(t, []string{"p1", "p2"}, order[:2])
	assert.ElementsMatch(t, []string{"n1", "n2", "n3"}, order[2:])
}

func TestDispatcherRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	sink := SinkFunc(func(context.Context, *Notice) error {
		if calls.Add(1) < 3 {
			return errors.New("downstream unavailable")
		}
		return nil
	})
	obs := newRecordingObserver()

	d := NewDispatcher(sink, fastConfig(), quietLogger())
	d.SetObserver(obs)
	d.Start(context.Background())
	require.NoError(t, d.Submit(testNotice("retry", false)))
	d.Stop(context.Background())

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, 3, obs.delivered["retry"])
	assert.Empty(t, obs.failed)
}

func TestDispatcherReportsFailure(t *testing.T) {
	var calls atomic.Int32
	sink := SinkFunc(func(context.Context, *Notice) error {
		calls.Add(1)
		return errors.New("downstream unavailable")
	})
	obs := newRecordingObserver()

	d := NewDispatcher(sink, fastConfig(), quietLogger())
	d.SetObserver(obs)
	d.Start(context.Background())
	require.NoError(t, d.Submit(testNotice("doomed", false)))
	d.Stop(context.Background())

	assert.Equal(t, int32(3), calls.Load())
	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.ErrorIs(t, obs.failed["doomed"], ErrDeliveryFailed)
}

func TestDispatcherAttemptTimeout(t *testing.T) {
	sink := SinkFunc(func(ctx context.Context, _ *Notice) error {
		<-ctx.Done()
		return ctx.Err()
	})
	obs := newRecordingObserver()

	cfg := fastConfig()
	cfg.AttemptTimeout = 10 * time.Millisecond
	cfg.MaxAttempts = 2
	d := NewDispatcher(sink, cfg, quietLogger())
	d.SetObserver(obs)
	d.Start(context.Background())
	require.NoError(t, d.Submit(testNotice("slow", false)))
	d.Stop(context.Background())

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.ErrorIs(t, obs.failed["slow"], context.DeadlineExceeded)
}

func TestDispatcherQueueFull(t *testing.T) {
	cfg := fastConfig()
	cfg.QueueSize = 1
	d := NewDispatcher(SinkFunc(func(context.Context, *Notice) error { return nil }), cfg, quietLogger())

	require.NoError(t, d.Submit(testNotice("a", false)))
	assert.ErrorIs(t, d.Submit(testNotice("b", false)), ErrQueueFull)
	// lanes are sized independently
	require.NoError(t, d.Submit(testNotice("c", true)))
	assert.Equal(t, 2, d.Pending())

	assert.Equal(t, 2, d.Stop(context.Background()))
	assert.ErrorIs(t, d.Submit(testNotice("d", false)), ErrDispatcherStopped)
}

func TestDispatcherStopAbandonsAfterDeadline(t *testing.T) {
	release := make(chan struct{})
	sink := SinkFunc(func(ctx context.Context, _ *Notice) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	cfg := fastConfig()
	cfg.AttemptTimeout = time.Minute
	cfg.MaxAttempts = 1
	d := NewDispatcher(sink, cfg, quietLogger())
	d.Start(context.Background())
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, d.Submit(testNotice(id, false)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	abandoned := d.Stop(ctx)
	close(release)

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.GreaterOrEqual(t, abandoned, 1)
}

func TestMultiSinkJoinsErrors(t *testing.T) {
	var hits atomic.Int32
	ok := SinkFunc(func(context.Context, *Notice) error { hits.Add(1); return nil })
	boom := errors.New("boom")
	bad := SinkFunc(func(context.Context, *Notice) error { hits.Add(1); return boom })

	err := MultiSink{ok, bad, ok}.Deliver(context.Background(), testNotice("m", false))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(3), hits.Load())

	assert.NoError(t, MultiSink{ok}.Deliver(context.Background(), testNotice("m", false)))
}

func TestDispatcherRetriesMultiSinkMembersSeparately(t *testing.T) {
	var steady, flaky atomic.Int32
	ok := SinkFunc(func(context.Context, *Notice) error {
		steady.Add(1)
		return nil
	})
	recovering := SinkFunc(func(context.Context, *Notice) error {
		if flaky.Add(1) < 3 {
			return errors.New("broker unavailable")
		}
		return nil
	})
	obs := newRecordingObserver()

	d := NewDispatcher(MultiSink{ok, MultiSink{recovering}}, fastConfig(), quietLogger())
	d.SetObserver(obs)
	d.Start(context.Background())
	require.NoError(t, d.Submit(testNotice("fan", false)))

	assert.Eventually(t, func() bool {
		delivered, _ := obs.counts()
		return delivered == 1
	}, 2*time.Second, 5*time.Millisecond)
	d.Stop(context.Background())

	assert.Equal(t, int32(1), steady.Load(), "a delivered member is not repeated")
	assert.Equal(t, int32(3), flaky.Load())
	obs.mu.Lock()
	assert.Equal(t, 3, obs.delivered["fan"])
	obs.mu.Unlock()
}

func TestDispatcherReportsFailingMember(t *testing.T) {
	var steady atomic.Int32
	ok := SinkFunc(func(context.Context, *Notice) error {
		steady.Add(1)
		return nil
	})
	boom := errors.New("boom")
	bad := SinkFunc(func(context.Context, *Notice) error { return boom })
	obs := newRecordingObserver()

	d := NewDispatcher(MultiSink{ok, bad}, fastConfig(), quietLogger())
	d.SetObserver(obs)
	d.Start(context.Background())
	require.NoError(t, d.Submit(testNotice("half", false)))

	assert.Eventually(t, func() bool {
		_, failed := obs.counts()
		return failed == 1
	}, 2*time.Second, 5*time.Millisecond)
	d.Stop(context.Background())

	assert.Equal(t, int32(1), steady.Load())
	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.ErrorIs(t, obs.failed["half"], ErrDeliveryFailed)
	assert.ErrorIs(t, obs.failed["half"], boom)
}

func TestLogSinkWritesPaidAmount(t *testing.T) {
	var buf bytes.Buffer
	s := &LogSink{Logger: slog.New(slog.NewTextHandler(&buf, nil))}
	require.NoError(t, s.Deliver(context.Background(), testNotice("x", true)))

	out := buf.String()
	assert.Contains(t, out, `paid="0.070000000 SOL"`)
	assert.Contains(t, out, "payer=wallet_a")
	assert.Contains(t, out, "priority=true")
}

func TestLogSinkLatencyHonoursContext(t *testing.T) {
	s := &LogSink{Logger: quietLogger(), Latency: time.Hour}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Deliver(ctx, testNotice("x", false)), context.DeadlineExceeded)

	s.Latency = 0
	assert.NoError(t, s.Deliver(context.Background(), testNotice("x", false)))
}

func TestShortPayer(t *testing.T) {
	assert.Equal(t, "wallet_a", ShortPayer("wallet_abc"))
	assert.Equal(t, "abc", ShortPayer("abc"))
}
