package memory

import (
	"context"
	"sync"
	"time"

	"github.com/xraph/sigil/store"
	"github.com/xraph/sigil/token"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	mu sync.RWMutex

	entries map[string]*token.Entry
	closed  bool
}

func New() *Store {
	return &Store{
		entries: make(map[string]*token.Entry),
	}
}

func (s *Store) Insert(_ context.Context, e *token.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrClosed
	}
	if _, exists := s.entries[e.ID]; exists {
		return store.ErrTokenExists
	}
	s.entries[e.ID] = e.Clone()
	return nil
}

func (s *Store) Get(_ context.Context, tokenID string) (*token.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, store.ErrClosed
	}
	if e, ok := s.entries[tokenID]; ok {
		return e.Clone(), nil
	}
	return nil, store.ErrTokenNotFound
}

func (s *Store) Consume(_ context.Context, tokenID string, at, evictAt time.Time) (*token.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, store.ErrClosed
	}
	e, ok := s.entries[tokenID]
	if !ok || !e.ExpiresAt.After(at) {
		return nil, store.ErrTokenNotFound
	}
	if e.IsConsumed {
		return nil, store.ErrAlreadyConsumed
	}

	at = at.UTC()
	e.IsConsumed = true
	e.ConsumedAt = &at
	e.Touch(at)
	if evictAt.Before(e.ExpiresAt) {
		e.ExpiresAt = evictAt.UTC()
	}
	return e.Clone(), nil
}

func (s *Store) Delete(_ context.Context, tokenID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, store.ErrClosed
	}
	_, ok := s.entries[tokenID]
	delete(s.entries, tokenID)
	return ok, nil
}

func (s *Store) Expired(_ context.Context, now time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, store.ErrClosed
	}
	var ids []string
	for id, e := range s.entries {
		if !e.ExpiresAt.After(now) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *Store) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries), nil
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return store.ErrClosed
	}
	return nil
}

// Close drops all entries. Later calls fail with store.ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.entries = make(map[string]*token.Entry)
	return nil
}
