package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bryan-buckman/letterbox/internal/database"
	"github.com/bryan-buckman/letterbox/internal/model"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// LocalProvider keeps bcrypt password hashes in a SQL store.
type LocalProvider struct {
	creds database.CredentialStore
	cost  int
}

var _ Provider = (*LocalProvider)(nil)

// NewLocalProvider returns a provider backed by creds. A cost <= 0 uses
// bcrypt.DefaultCost.
func NewLocalProvider(creds database.CredentialStore, cost int) *LocalProvider {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &LocalProvider{creds: creds, cost: cost}
}

// CreateUser hashes the password and stores a new login under a fresh id.
func (p *LocalProvider) CreateUser(ctx context.Context, email, password, name string) (*User, error) {
	if len(password) < MinPasswordLength {
		return nil, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	cred := &model.Credential{
		UserID:       uuid.NewString(),
		Email:        normalizeEmail(email),
		Name:         name,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := p.creds.CreateCredential(ctx, cred); err != nil {
		if errors.Is(err, database.ErrConflict) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("store credential: %w", err)
	}
	return &User{ID: cred.UserID, Email: cred.Email, Name: cred.Name}, nil
}

// Authenticate compares password against the stored hash.
func (p *LocalProvider) Authenticate(ctx context.Context, email, password string) (*User, error) {
	cred, err := p.creds.GetCredentialByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load credential: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword(cred.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &User{ID: cred.UserID, Email: cred.Email, Name: cred.Name}, nil
}

// GetUser returns the login with the given id.
func (p *LocalProvider) GetUser(ctx context.Context, id string) (*User, error) {
	cred, err := p.creds.GetCredentialByID(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load credential: %w", err)
	}
	return &User{ID: cred.UserID, Email: cred.Email, Name: cred.Name}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
