package store

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/sigil/token"
)

var (
	ErrTokenExists     = errors.New("store: token already exists")
	ErrTokenNotFound   = errors.New("store: token not found")
	ErrAlreadyConsumed = errors.New("store: token already consumed")
	ErrClosed          = errors.New("store: closed")
)

// Store holds issued token entries. Implementations must be safe for
// concurrent use, and Consume must be atomic: of any number of concurrent
// calls for the same id, at most one succeeds.
type Store interface {
	// Insert adds a new entry. It returns ErrTokenExists if the id is taken.
	Insert(ctx context.Context, e *token.Entry) error

	// Get returns a copy of the entry or ErrTokenNotFound.
	Get(ctx context.Context, tokenID string) (*token.Entry, error)

	// Consume marks the entry consumed at the given instant and pulls its
	// expiry forward to evictAt when that is earlier. It returns the
	// updated entry, ErrTokenNotFound or ErrAlreadyConsumed.
	Consume(ctx context.Context, tokenID string, at, evictAt time.Time) (*token.Entry, error)

	// Delete removes the entry and reports whether it was present.
	Delete(ctx context.Context, tokenID string) (bool, error)

	// Expired lists ids whose expiry is at or before now.
	Expired(ctx context.Context, now time.Time) ([]string, error)

	// Len returns the number of held entries.
	Len(ctx context.Context) (int, error)

	Ping(ctx context.Context) error
	Close() error
}
