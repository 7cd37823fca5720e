// Package storetest is a conformance suite run against every store.Store
// backend.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/sigil/store"
	"github.com/xraph/sigil/tier"
	"github.com/xraph/sigil/token"
	"github.com/xraph/sigil/types"
)

// Factory returns a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) store.Store

// Entry builds a test entry expiring ttl after now.
func Entry(id string, now time.Time, ttl time.Duration) *token.Entry {
	return &token.Entry{
		ID:        id,
		Content:   "TKN_wallet_a_" + id,
		Payer:     "wallet_abc",
		Tier:      tier.Deeper,
		Amount:    0.07,
		Entity:    types.NewEntity(now),
		ExpiresAt: now.Add(ttl).UTC(),
	}
}

// Run executes the suite.
func Run(t *testing.T, newStore Factory) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("InsertGet", func(t *testing.T) {
		s := open(t, newStore)
		require.NoError(t, s.Insert(ctx, Entry("a1", now, time.Hour)))

		got, err := s.Get(ctx, "a1")
		require.NoError(t, err)
		assert.Equal(t, "TKN_wallet_a_a1", got.Content)
		assert.Equal(t, tier.Deeper, got.Tier)
		assert.False(t, got.IsConsumed)
		assert.True(t, got.ExpiresAt.Equal(now.Add(time.Hour)))

		n, err := s.Len(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("InsertDuplicate", func(t *testing.T) {
		s := open(t, newStore)
		require.NoError(t, s.Insert(ctx, Entry("dup", now, time.Hour)))
		assert.ErrorIs(t, s.Insert(ctx, Entry("dup", now, time.Hour)), store.ErrTokenExists)
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := open(t, newStore)
		_, err := s.Get(ctx, "nope")
		assert.ErrorIs(t, err, store.ErrTokenNotFound)
	})

	t.Run("GetReturnsCopy", func(t *testing.T) {
		s := open(t, newStore)
		require.NoError(t, s.Insert(ctx, Entry("cp", now, time.Hour)))
		got, err := s.Get(ctx, "cp")
		require.NoError(t, err)
		got.IsConsumed = true

		again, err := s.Get(ctx, "cp")
		require.NoError(t, err)
		assert.False(t, again.IsConsumed)
	})

	t.Run("ConsumeOnce", func(t *testing.T) {
		s := open(t, newStore)
		require.NoError(t, s.Insert(ctx, Entry("c1", now, time.Hour)))

		at := now.Add(time.Second)
		evict := at.Add(time.Minute)
		e, err := s.Consume(ctx, "c1", at, evict)
		require.NoError(t, err)
		assert.True(t, e.IsConsumed)
		require.NotNil(t, e.ConsumedAt)
		assert.True(t, e.ConsumedAt.Equal(at))
		assert.True(t, e.ExpiresAt.Equal(evict), "expiry pulled forward")
		assert.True(t, e.UpdatedAt.Equal(at), "consume touches the entry")

		stored, err := s.Get(ctx, "c1")
		require.NoError(t, err)
		assert.True(t, stored.CreatedAt.Equal(now), "created_at kept")
		assert.True(t, stored.UpdatedAt.Equal(at))

		_, err = s.Consume(ctx, "c1", at, evict)
		assert.ErrorIs(t, err, store.ErrAlreadyConsumed)

		_, err = s.Consume(ctx, "missing", at, evict)
		assert.ErrorIs(t, err, store.ErrTokenNotFound)
	})

	t.Run("ConsumeAfterExpiry", func(t *testing.T) {
		s := open(t, newStore)
		require.NoError(t, s.Insert(ctx, Entry("late", now, time.Second)))

		_, err := s.Consume(ctx, "late", now.Add(time.Second), now.Add(time.Minute))
		assert.ErrorIs(t, err, store.ErrTokenNotFound)
	})

	t.Run("ConsumeKeepsEarlierExpiry", func(t *testing.T) {
		s := open(t, newStore)
		require.NoError(t, s.Insert(ctx, Entry("c2", now, 10*time.Second)))

		e, err := s.Consume(ctx, "c2", now, now.Add(time.Minute))
		require.NoError(t, err)
		assert.True(t, e.ExpiresAt.Equal(now.Add(10*time.Second)))
	})

	t.Run("ConcurrentConsume", func(t *testing.T) {
		s := open(t, newStore)
		require.NoError(t, s.Insert(ctx, Entry("race", now, time.Hour)))

		var wins, losses atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 32; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.Consume(ctx, "race", now, now.Add(time.Minute))
				switch {
				case err == nil:
					wins.Add(1)
				case err == store.ErrAlreadyConsumed:
					losses.Add(1)
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
		assert.Equal(t, int32(31), losses.Load())
	})

	t.Run("Delete", func(t *testing.T) {
		s := open(t, newStore)
		require.NoError(t, s.Insert(ctx, Entry("d1", now, time.Hour)))

		ok, err := s.Delete(ctx, "d1")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.Delete(ctx, "d1")
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = s.Get(ctx, "d1")
		assert.ErrorIs(t, err, store.ErrTokenNotFound)
	})

	t.Run("Expired", func(t *testing.T) {
		s := open(t, newStore)
		require.NoError(t, s.Insert(ctx, Entry("old", now.Add(-2*time.Hour), time.Hour)))
		require.NoError(t, s.Insert(ctx, Entry("fresh", now, time.Hour)))

		ids, err := s.Expired(ctx, now)
		require.NoError(t, err)
		sort.Strings(ids)
		assert.Equal(t, []string{"old"}, ids)

		ids, err = s.Expired(ctx, now.Add(2*time.Hour))
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"fresh", "old"}, ids)
	})

	t.Run("ManyEntries", func(t *testing.T) {
		s := open(t, newStore)
		for i := 0; i < 100; i++ {
			require.NoError(t, s.Insert(ctx, Entry(fmt.Sprintf("m%03d", i), now, time.Hour)))
		}
		n, err := s.Len(ctx)
		require.NoError(t, err)
		assert.Equal(t, 100, n)
	})

	t.Run("Closed", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Ping(ctx))
		require.NoError(t, s.Close())
		assert.ErrorIs(t, s.Insert(ctx, Entry("x", now, time.Hour)), store.ErrClosed)
		_, err := s.Get(ctx, "x")
		assert.ErrorIs(t, err, store.ErrClosed)
	})
}

func open(t *testing.T, newStore Factory) store.Store {
	t.Helper()
	s := newStore(t)
	t.Cleanup(func() { _ = s.Close() })
	return s
}
