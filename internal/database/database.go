// Package database provides SQLite storage for letters and readers.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/bryan-buckman/letterbox/internal/model"
	_ "modernc.org/sqlite"
)

// DB wraps the SQLite connection.
type DB struct {
	conn *sql.DB
}

// Ensure DB implements the store interfaces.
var (
	_ Store           = (*DB)(nil)
	_ CredentialStore = (*DB)(nil)
)

// New opens or creates an SQLite database at the given path.
func New(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Enable WAL mode for better concurrency.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}
	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// sqliteDSN turns foreign keys on for every pooled connection; read statuses
// must reference an existing account.
func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// DatabaseType returns the database backend name.
func (db *DB) DatabaseType() string {
	return "SQLite"
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS letters (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		number INTEGER NOT NULL UNIQUE,
		title TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		body_json TEXT,
		body_markdown TEXT NOT NULL DEFAULT '',
		published_at DATETIME NOT NULL,
		source_id TEXT UNIQUE
	);
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS subscriptions (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		created_at DATETIME NOT NULL
	);
	-- No unique (letter_id, account_id): duplicates are prevented by check-then-insert only.
	CREATE TABLE IF NOT EXISTS read_statuses (
		id TEXT PRIMARY KEY,
		letter_id INTEGER NOT NULL REFERENCES letters(id) ON DELETE CASCADE,
		account_id TEXT NOT NULL REFERENCES accounts(id) ON UPDATE CASCADE ON DELETE CASCADE,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS credentials (
		user_id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		password_hash BLOB NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_read_statuses_pair ON read_statuses(letter_id, account_id);
	CREATE INDEX IF NOT EXISTS idx_read_statuses_account ON read_statuses(account_id);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// --- Letter Methods ---

const letterColumns = "id, number, title, description, body_json, body_markdown, published_at, COALESCE(source_id, '')"

// ListLetters returns all letters ordered by display number.
func (db *DB) ListLetters(ctx context.Context) ([]model.StoredLetter, error) {
	rows, err := db.conn.QueryContext(ctx, "SELECT "+letterColumns+" FROM letters ORDER BY number ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLetters(rows)
}

// GetLetterByNumber returns the letter with the given display number.
func (db *DB) GetLetterByNumber(ctx context.Context, number int) (*model.StoredLetter, error) {
	row := db.conn.QueryRowContext(ctx, "SELECT "+letterColumns+" FROM letters WHERE number = ?", number)
	return scanLetter(row)
}

// GetLetterBySource returns the letter imported from the given feed GUID.
func (db *DB) GetLetterBySource(ctx context.Context, sourceID string) (*model.StoredLetter, error) {
	row := db.conn.QueryRowContext(ctx, "SELECT "+letterColumns+" FROM letters WHERE source_id = ?", sourceID)
	return scanLetter(row)
}

// CreateLetter inserts a letter. Returns the row id.
func (db *DB) CreateLetter(ctx context.Context, l *model.StoredLetter) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO letters (number, title, description, body_json, body_markdown, published_at, source_id)
		VALUES (?, ?, ?, ?, ?, ?, NULLIF(?, ''))`,
		l.Number, l.Title, l.Description, nullableJSON(l.JSONBody), l.Markdown, l.PublishedAt, l.SourceID)
	if err != nil {
		return 0, sqliteErr(err)
	}
	return res.LastInsertId()
}

// MaxLetterNumber returns the highest display number, or 0 when there are no letters.
func (db *DB) MaxLetterNumber(ctx context.Context) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, "SELECT COALESCE(MAX(number), 0) FROM letters").Scan(&n)
	return n, err
}

// --- Account Methods ---

const accountColumns = "id, email, name, status, created_at"

// GetAccount returns the account with the given id.
func (db *DB) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	row := db.conn.QueryRowContext(ctx, "SELECT "+accountColumns+" FROM accounts WHERE id = ?", id)
	return scanAccount(row)
}

// GetAccountByEmail returns the account holding email.
func (db *DB) GetAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	row := db.conn.QueryRowContext(ctx, "SELECT "+accountColumns+" FROM accounts WHERE email = ?", email)
	return scanAccount(row)
}

// CreateAccount inserts an account.
func (db *DB) CreateAccount(ctx context.Context, a *model.Account) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO accounts (id, email, name, status, created_at) VALUES (?, ?, ?, ?, ?)",
		a.ID, a.Email, a.Name, string(a.Status), a.CreatedAt)
	return sqliteErr(err)
}

// PromoteAccount rewrites the account holding email.
func (db *DB) PromoteAccount(ctx context.Context, email string, a *model.Account) error {
	res, err := db.conn.ExecContext(ctx,
		"UPDATE accounts SET id = ?, name = ?, status = ? WHERE email = ?",
		a.ID, a.Name, string(a.Status), email)
	if err != nil {
		return sqliteErr(err)
	}
	return expectAffected(res)
}

// --- Subscription Methods ---

// GetSubscriptionByEmail returns the subscription for email.
func (db *DB) GetSubscriptionByEmail(ctx context.Context, email string) (*model.Subscription, error) {
	var s model.Subscription
	err := db.conn.QueryRowContext(ctx, "SELECT id, email, created_at FROM subscriptions WHERE email = ?", email).
		Scan(&s.ID, &s.Email, &s.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

// CreateSubscription inserts a subscription.
func (db *DB) CreateSubscription(ctx context.Context, s *model.Subscription) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO subscriptions (id, email, created_at) VALUES (?, ?, ?)",
		s.ID, s.Email, s.CreatedAt)
	return sqliteErr(err)
}

// --- Read Status Methods ---

// GetReadStatus returns the read status for a letter row and account.
func (db *DB) GetReadStatus(ctx context.Context, letterID int64, accountID string) (*model.ReadStatus, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, letter_id, account_id, status, created_at FROM read_statuses
		WHERE letter_id = ? AND account_id = ? LIMIT 1`, letterID, accountID)
	return scanReadStatus(row)
}

// CreateReadStatus inserts a read status.
func (db *DB) CreateReadStatus(ctx context.Context, s *model.ReadStatus) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO read_statuses (id, letter_id, account_id, status, created_at) VALUES (?, ?, ?, ?, ?)",
		s.ID, s.LetterID, s.AccountID, s.Status, s.CreatedAt)
	return sqliteErr(err)
}

// ListReadStatuses returns every read status of an account, oldest first.
func (db *DB) ListReadStatuses(ctx context.Context, accountID string) ([]model.ReadStatus, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, letter_id, account_id, status, created_at FROM read_statuses
		WHERE account_id = ? ORDER BY created_at`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReadStatuses(rows)
}

// --- Credential Methods ---

// CreateCredential inserts a local login.
func (db *DB) CreateCredential(ctx context.Context, c *model.Credential) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO credentials (user_id, email, name, password_hash, created_at) VALUES (?, ?, ?, ?, ?)",
		c.UserID, c.Email, c.Name, c.PasswordHash, c.CreatedAt)
	return sqliteErr(err)
}

// GetCredentialByEmail returns the login for email.
func (db *DB) GetCredentialByEmail(ctx context.Context, email string) (*model.Credential, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT user_id, email, name, password_hash, created_at FROM credentials WHERE email = ?", email)
	return scanCredential(row)
}

// GetCredentialByID returns the login for a user id.
func (db *DB) GetCredentialByID(ctx context.Context, userID string) (*model.Credential, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT user_id, email, name, password_hash, created_at FROM credentials WHERE user_id = ?", userID)
	return scanCredential(row)
}

// sqliteErr maps constraint violations to ErrConflict.
func sqliteErr(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY constraint failed") {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
