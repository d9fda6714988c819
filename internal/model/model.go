// Package model defines shared data structures.
package model

import "time"

// AccountStatus is the lifecycle state of an account.
type AccountStatus string

// Account statuses. An account starts as subscribed (email only) and is
// promoted to active once registration completes.
const (
	AccountSubscribed AccountStatus = "subscribed"
	AccountActive     AccountStatus = "active"
)

// StatusRead is the only read status value written.
const StatusRead = "lida"

// Letter is the canonical letter shape served by the API and the pages.
type Letter struct {
	ID          int64     `json:"id"`
	Number      int       `json:"number"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Content     string    `json:"content"`
	PublishedAt time.Time `json:"publishedAt"`
}

// Account is a user's profile record. ID always equals the auth provider's user id
// once the account is active; subscribed accounts carry a placeholder id.
type Account struct {
	ID        string        `json:"id"`
	Email     string        `json:"email"`
	Name      string        `json:"name"`
	Status    AccountStatus `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
}

// IsActive reports whether the account finished registration.
func (a *Account) IsActive() bool {
	return a != nil && a.Status == AccountActive
}

// Subscription records pre-registration interest for an email.
type Subscription struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// ReadStatus records that an account has read a letter.
type ReadStatus struct {
	ID        string    `json:"id"`
	LetterID  int64     `json:"letterId"` // internal row id, not the display number
	AccountID string    `json:"accountId"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// Credential is a locally stored login (used when auth is not delegated to Supabase).
type Credential struct {
	UserID       string
	Email        string
	Name         string
	PasswordHash []byte
	CreatedAt    time.Time
}
