package database

import (
	"database/sql"
	"fmt"

	"github.com/bryan-buckman/letterbox/internal/model"
	"github.com/goccy/go-json"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanLetterInto(s rowScanner) (*model.StoredLetter, error) {
	var l model.StoredLetter
	var body sql.NullString
	var published sql.NullTime
	if err := s.Scan(&l.ID, &l.Number, &l.Title, &l.Description, &body, &l.Markdown, &published, &l.SourceID); err != nil {
		return nil, err
	}
	if body.Valid && body.String != "" {
		l.JSONBody = json.RawMessage(body.String)
	}
	if published.Valid {
		l.PublishedAt = published.Time
	}
	return &l, nil
}

func scanLetter(row *sql.Row) (*model.StoredLetter, error) {
	l, err := scanLetterInto(row)
	if err != nil {
		return nil, notFound(err)
	}
	return l, nil
}

func scanLetters(rows *sql.Rows) ([]model.StoredLetter, error) {
	var letters []model.StoredLetter
	for rows.Next() {
		l, err := scanLetterInto(rows)
		if err != nil {
			return nil, err
		}
		letters = append(letters, *l)
	}
	return letters, rows.Err()
}

func scanAccount(row *sql.Row) (*model.Account, error) {
	var a model.Account
	var status string
	if err := row.Scan(&a.ID, &a.Email, &a.Name, &status, &a.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	a.Status = model.AccountStatus(status)
	return &a, nil
}

func scanReadStatusInto(s rowScanner) (*model.ReadStatus, error) {
	var rs model.ReadStatus
	if err := s.Scan(&rs.ID, &rs.LetterID, &rs.AccountID, &rs.Status, &rs.CreatedAt); err != nil {
		return nil, err
	}
	return &rs, nil
}

func scanReadStatus(row *sql.Row) (*model.ReadStatus, error) {
	rs, err := scanReadStatusInto(row)
	if err != nil {
		return nil, notFound(err)
	}
	return rs, nil
}

func scanReadStatuses(rows *sql.Rows) ([]model.ReadStatus, error) {
	var statuses []model.ReadStatus
	for rows.Next() {
		rs, err := scanReadStatusInto(rows)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, *rs)
	}
	return statuses, rows.Err()
}

func scanCredential(row *sql.Row) (*model.Credential, error) {
	var c model.Credential
	if err := row.Scan(&c.UserID, &c.Email, &c.Name, &c.PasswordHash, &c.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// nullableJSON stores an empty body as NULL.
func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
