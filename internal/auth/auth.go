// Package auth resolves reader identity: credential providers (local bcrypt
// or Supabase GoTrue), signed bearer tokens, and cookie sessions.
package auth

import (
	"context"
	"errors"
)

var (
	// ErrUserExists is returned when registering an email that already has a login.
	ErrUserExists = errors.New("user already registered")

	// ErrInvalidCredentials is returned for an unknown email or wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrUserNotFound is returned when a user id is unknown to the provider.
	ErrUserNotFound = errors.New("user not found")

	// ErrWeakPassword is returned when a password is shorter than MinPasswordLength.
	ErrWeakPassword = errors.New("password too short")

	// ErrInvalidToken is returned for a malformed, forged or expired token.
	ErrInvalidToken = errors.New("invalid token")
)

// MinPasswordLength matches the GoTrue default.
const MinPasswordLength = 6

// User is an identity as the auth provider knows it. ID is the auth-issued
// id that accounts are keyed by.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Provider creates and verifies logins.
type Provider interface {
	// CreateUser registers a login. Returns ErrUserExists if email is taken.
	CreateUser(ctx context.Context, email, password, name string) (*User, error)

	// Authenticate checks a password. Returns ErrInvalidCredentials on mismatch.
	Authenticate(ctx context.Context, email, password string) (*User, error)

	// GetUser looks up a user by auth id. Returns ErrUserNotFound if unknown.
	GetUser(ctx context.Context, id string) (*User, error)
}

type contextKey struct{}

// WithUser returns a context carrying u.
func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, contextKey{}, u)
}

// UserFromContext returns the authenticated user, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(contextKey{}).(*User)
	return u
}
