// Package badger is a store.Store backed by an in-memory BadgerDB.
//
// Entries are JSON values under the "tok:" prefix. Each key also carries a
// native TTL of the entry's expiry plus a grace period, so entries the
// expiry scheduler misses still disappear on their own.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/xraph/sigil/store"
	"github.com/xraph/sigil/token"
)

var _ store.Store = (*Store)(nil)

const keyPrefix = "tok:"

// Config configures the badger store.
type Config struct {
	// Grace is added to every entry's native TTL.
	Grace time.Duration

	// ConflictRetries bounds how often a transaction is retried after
	// badger.ErrConflict.
	ConflictRetries int

	// Logger receives badger's internal log output. Nil silences it.
	Logger *slog.Logger
}

func DefaultConfig() Config {
	return Config{
		Grace:           time.Minute,
		ConflictRetries: 16,
	}
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

type Store struct {
	db     *badger.DB
	cfg    Config
	closed atomic.Bool
}

// New opens an in-memory badger database.
func New(cfg Config) (*Store, error) {
	if cfg.ConflictRetries < 1 {
		cfg.ConflictRetries = 1
	}
	if cfg.Grace < 0 {
		cfg.Grace = 0
	}

	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &Store{db: db, cfg: cfg}, nil
}

func key(tokenID string) []byte {
	return []byte(keyPrefix + tokenID)
}

// ttl is measured from the entry's last write, so it follows whatever clock
// stamped the entry rather than the wall clock.
func (s *Store) ttl(e *token.Entry) time.Duration {
	from := e.UpdatedAt
	if from.IsZero() {
		from = time.Now()
	}
	d := e.ExpiresAt.Sub(from)
	if d < 0 {
		d = 0
	}
	return d + s.cfg.Grace
}

func (s *Store) put(txn *badger.Txn, e *token.Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entry %s: %w", e.ID, err)
	}
	return txn.SetEntry(badger.NewEntry(key(e.ID), raw).WithTTL(s.ttl(e)))
}

func load(txn *badger.Txn, tokenID string) (*token.Entry, error) {
	item, err := txn.Get(key(tokenID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, store.ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	return decode(item)
}

func decode(item *badger.Item) (*token.Entry, error) {
	var e token.Entry
	err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &e)
	})
	if err != nil {
		return nil, fmt.Errorf("decode entry %s: %w", item.Key(), err)
	}
	return &e, nil
}

// update runs fn in a read-write transaction, retrying on conflicts with
// concurrent writers.
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if s.closed.Load() {
		return store.ErrClosed
	}
	var err error
	for attempt := 0; attempt < s.cfg.ConflictRetries; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func (s *Store) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if s.closed.Load() {
		return store.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(fn)
}

func (s *Store) Insert(ctx context.Context, e *token.Entry) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		_, err := txn.Get(key(e.ID))
		switch {
		case err == nil:
			return store.ErrTokenExists
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		return s.put(txn, e)
	})
}

func (s *Store) Get(ctx context.Context, tokenID string) (*token.Entry, error) {
	var e *token.Entry
	err := s.view(ctx, func(txn *badger.Txn) error {
		var err error
		e, err = load(txn, tokenID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Store) Consume(ctx context.Context, tokenID string, at, evictAt time.Time) (*token.Entry, error) {
	var out *token.Entry
	err := s.update(ctx, func(txn *badger.Txn) error {
		e, err := load(txn, tokenID)
		if err != nil {
			return err
		}
		if !e.ExpiresAt.After(at) {
			return store.ErrTokenNotFound
		}
		if e.IsConsumed {
			return store.ErrAlreadyConsumed
		}

		consumedAt := at.UTC()
		e.IsConsumed = true
		e.ConsumedAt = &consumedAt
		e.Touch(consumedAt)
		if evictAt.Before(e.ExpiresAt) {
			e.ExpiresAt = evictAt.UTC()
		}
		if err := s.put(txn, e); err != nil {
			return err
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, tokenID string) (bool, error) {
	var found bool
	err := s.update(ctx, func(txn *badger.Txn) error {
		found = false
		_, err := txn.Get(key(tokenID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return txn.Delete(key(tokenID))
	})
	return found, err
}

func (s *Store) Expired(ctx context.Context, now time.Time) ([]string, error) {
	var ids []string
	err := s.view(ctx, func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(keyPrefix), PrefetchValues: true})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			e, err := decode(it.Item())
			if err != nil {
				return err
			}
			if !e.ExpiresAt.After(now) {
				ids = append(ids, e.ID)
			}
		}
		return nil
	})
	return ids, err
}

func (s *Store) Len(ctx context.Context) (int, error) {
	n := 0
	err := s.view(ctx, func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(keyPrefix)})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

func (s *Store) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return store.ErrClosed
	}
	return ctx.Err()
}

func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}
