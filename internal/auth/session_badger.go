package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

const sessionKeyPrefix = "session:"

// BadgerSessionStore persists sessions in BadgerDB so logins survive
// restarts. Entries carry a TTL matching the session expiry.
type BadgerSessionStore struct {
	db *badger.DB
}

var _ SessionStore = (*BadgerSessionStore)(nil)

// OpenBadgerSessionStore opens (or creates) a Badger database at path.
func OpenBadgerSessionStore(path string) (*BadgerSessionStore, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}
	return NewBadgerSessionStore(db), nil
}

// NewBadgerSessionStore wraps an open Badger database.
func NewBadgerSessionStore(db *badger.DB) *BadgerSessionStore {
	return &BadgerSessionStore{db: db}
}

func (b *BadgerSessionStore) Create(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		return ErrSessionExpired
	}
	return b.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(sessionKeyPrefix+s.ID), data).WithTTL(ttl)
		return txn.SetEntry(entry)
	})
}

func (b *BadgerSessionStore) Get(ctx context.Context, id string) (*Session, error) {
	var s Session
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(sessionKeyPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrSessionNotFound
		}
		if err != nil {
			return fmt.Errorf("get session: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &s)
		})
	})
	if err != nil {
		return nil, err
	}
	if s.IsExpired() {
		return nil, ErrSessionExpired
	}
	return &s, nil
}

func (b *BadgerSessionStore) Delete(ctx context.Context, id string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(sessionKeyPrefix + id))
		if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("delete session: %w", err)
		}
		return nil
	})
}

// CleanupExpired deletes sessions whose expiry has passed but whose TTL has
// not yet been enforced, then lets Badger reclaim value log space.
func (b *BadgerSessionStore) CleanupExpired(ctx context.Context) (int, error) {
	var expired [][]byte
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(sessionKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var s Session
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &s) }); err != nil {
				return err
			}
			if s.IsExpired() {
				expired = append(expired, item.KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan sessions: %w", err)
	}

	count := 0
	for _, key := range expired {
		if err := b.db.Update(func(txn *badger.Txn) error { return txn.Delete(key) }); err != nil {
			return count, fmt.Errorf("delete expired session: %w", err)
		}
		count++
	}

	if err := b.db.RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) && !errors.Is(err, badger.ErrGCInMemoryMode) {
		return count, fmt.Errorf("value log gc: %w", err)
	}
	return count, nil
}

func (b *BadgerSessionStore) Close() error {
	return b.db.Close()
}
