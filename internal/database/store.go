// Package database provides storage backends for letters, accounts,
// subscriptions and read statuses.
package database

import (
	"context"
	"errors"

	"github.com/bryan-buckman/letterbox/internal/model"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when an insert violates a uniqueness rule.
	ErrConflict = errors.New("conflict")
)

// Store defines the interface for database operations.
// SQLite, PostgreSQL and Supabase implementations satisfy this interface.
type Store interface {
	Close() error

	// DatabaseType returns the name of the backend ("SQLite", "PostgreSQL" or "Supabase").
	DatabaseType() string

	// Letter operations
	ListLetters(ctx context.Context) ([]model.StoredLetter, error)
	GetLetterByNumber(ctx context.Context, number int) (*model.StoredLetter, error)
	GetLetterBySource(ctx context.Context, sourceID string) (*model.StoredLetter, error)
	CreateLetter(ctx context.Context, letter *model.StoredLetter) (int64, error)
	MaxLetterNumber(ctx context.Context) (int, error)

	// Account operations
	GetAccount(ctx context.Context, id string) (*model.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*model.Account, error)
	CreateAccount(ctx context.Context, account *model.Account) error
	// PromoteAccount rewrites the account holding email with a new id, name and
	// status. Returns ErrNotFound when no account holds the email.
	PromoteAccount(ctx context.Context, email string, account *model.Account) error

	// Subscription operations
	GetSubscriptionByEmail(ctx context.Context, email string) (*model.Subscription, error)
	CreateSubscription(ctx context.Context, sub *model.Subscription) error

	// Read status operations
	GetReadStatus(ctx context.Context, letterID int64, accountID string) (*model.ReadStatus, error)
	CreateReadStatus(ctx context.Context, status *model.ReadStatus) error
	ListReadStatuses(ctx context.Context, accountID string) ([]model.ReadStatus, error)
}

// CredentialStore persists local logins. Only the SQL backends implement it;
// Supabase keeps credentials in its own auth service.
type CredentialStore interface {
	CreateCredential(ctx context.Context, cred *model.Credential) error
	GetCredentialByEmail(ctx context.Context, email string) (*model.Credential, error)
	GetCredentialByID(ctx context.Context, userID string) (*model.Credential, error)
}
