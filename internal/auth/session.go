package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrSessionNotFound is returned when a session is not in the store.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired is returned for a stored session past its expiry.
	ErrSessionExpired = errors.New("session expired")
)

// Session is a browser login, referenced by an opaque cookie value.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired reports whether the session is past its expiry.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// User returns the identity the session was created for.
func (s *Session) User() *User {
	return &User{ID: s.UserID, Email: s.Email, Name: s.Name}
}

// NewSession creates a session for u valid for ttl.
func NewSession(u *User, ttl time.Duration) (*Session, error) {
	id, err := newSessionID()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &Session{
		ID:        id,
		UserID:    u.ID,
		Email:     u.Email,
		Name:      u.Name,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}, nil
}

func newSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// SessionStore persists sessions.
type SessionStore interface {
	Create(ctx context.Context, s *Session) error

	// Get returns ErrSessionNotFound or ErrSessionExpired when the session
	// cannot be used.
	Get(ctx context.Context, id string) (*Session, error)

	// Delete is a no-op for unknown ids.
	Delete(ctx context.Context, id string) error

	// CleanupExpired removes expired sessions and returns how many went.
	CleanupExpired(ctx context.Context) (int, error)

	Close() error
}

// MemorySessionStore keeps sessions in a map. Sessions are lost on restart.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

var _ SessionStore = (*MemorySessionStore)(nil)

// NewMemorySessionStore creates an empty store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]Session)}
}

func (m *MemorySessionStore) Create(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = *s
	return nil
}

func (m *MemorySessionStore) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if s.IsExpired() {
		return nil, ErrSessionExpired
	}
	return &s, nil
}

func (m *MemorySessionStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *MemorySessionStore) CleanupExpired(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for id, s := range m.sessions {
		if s.IsExpired() {
			delete(m.sessions, id)
			count++
		}
	}
	return count, nil
}

// Len returns the number of stored sessions, expired ones included.
func (m *MemorySessionStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *MemorySessionStore) Close() error { return nil }
