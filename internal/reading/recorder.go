// Package reading records that an account has read a letter.
//
// Recording is best-effort: once the letter is known to exist, store and
// auth failures are logged and reported as OutcomeFailed instead of being
// returned, so a bookkeeping write never blocks reading. The check before
// the insert is not atomic; two concurrent first reads of the same letter
// by the same account can both insert.
package reading

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bryan-buckman/letterbox/internal/auth"
	"github.com/bryan-buckman/letterbox/internal/database"
	"github.com/bryan-buckman/letterbox/internal/metrics"
	"github.com/bryan-buckman/letterbox/internal/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrInvalidInput is returned for a non-positive letter number or empty account id.
var ErrInvalidInput = errors.New("invalid read record input")

// Outcome is what happened to a read record.
type Outcome string

const (
	// OutcomeCommitted means a new read status was stored.
	OutcomeCommitted Outcome = "committed"
	// OutcomeDuplicate means the account had already read the letter.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeFailed means nothing was stored; callers still report success.
	OutcomeFailed Outcome = "failed"
)

// Placeholders used when the auth user record lacks an email or name.
const (
	placeholderEmailDomain = "exemplo.com"
	placeholderName        = "Usuário"
)

// Result describes a Record call.
type Result struct {
	Outcome  Outcome
	LetterID int64  // internal id of the letter
	StatusID string // id of the stored or existing read status
	Err      error  // cause when Outcome is OutcomeFailed
}

// Persisted reports whether a read status exists after the call.
func (r Result) Persisted() bool {
	return r.Outcome == OutcomeCommitted || r.Outcome == OutcomeDuplicate
}

// Recorder stores read statuses.
type Recorder struct {
	store   database.Store
	users   auth.Provider
	metrics *metrics.Metrics
	log     zerolog.Logger
	now     func() time.Time
}

// NewRecorder returns a recorder. users is consulted to create the account
// row of a reader who authenticated but has none yet; m may be nil.
func NewRecorder(store database.Store, users auth.Provider, m *metrics.Metrics, log zerolog.Logger) *Recorder {
	return &Recorder{
		store:   store,
		users:   users,
		metrics: m,
		log:     log.With().Str("component", "reading").Logger(),
		now:     time.Now,
	}
}

// Record marks letter number as read by accountID. The returned error is
// non-nil only for invalid input or an unknown letter (database.ErrNotFound).
func (r *Recorder) Record(ctx context.Context, number int, accountID string) (Result, error) {
	if number <= 0 || accountID == "" {
		return Result{}, ErrInvalidInput
	}

	letter, err := r.store.GetLetterByNumber(ctx, number)
	if errors.Is(err, database.ErrNotFound) {
		return Result{}, fmt.Errorf("letter %d: %w", number, err)
	}
	if err != nil {
		return r.failed(number, accountID, Result{}, fmt.Errorf("resolve letter: %w", err)), nil
	}
	res := Result{LetterID: letter.ID}

	if err := r.ensureAccount(ctx, accountID); err != nil {
		return r.failed(number, accountID, res, err), nil
	}

	existing, err := r.store.GetReadStatus(ctx, letter.ID, accountID)
	switch {
	case err == nil:
		res.Outcome = OutcomeDuplicate
		res.StatusID = existing.ID
		r.metrics.ReadRecorded(string(res.Outcome))
		return res, nil
	case !errors.Is(err, database.ErrNotFound):
		r.log.Warn().Err(err).Int("letter_number", number).Str("account_id", accountID).
			Msg("read status lookup failed; inserting anyway")
	}

	status := &model.ReadStatus{
		ID:        uuid.NewString(),
		LetterID:  letter.ID,
		AccountID: accountID,
		Status:    model.StatusRead,
		CreatedAt: r.now().UTC(),
	}
	if err := r.store.CreateReadStatus(ctx, status); err != nil {
		return r.failed(number, accountID, res, fmt.Errorf("insert read status: %w", err)), nil
	}

	res.Outcome = OutcomeCommitted
	res.StatusID = status.ID
	r.metrics.ReadRecorded(string(res.Outcome))
	r.log.Debug().Int("letter_number", number).Str("account_id", accountID).Msg("read recorded")
	return res, nil
}

// ensureAccount creates the account row for accountID from the auth user
// record when it does not exist. A subscribed row holding the same email is
// promoted to the auth id instead.
func (r *Recorder) ensureAccount(ctx context.Context, accountID string) error {
	_, err := r.store.GetAccount(ctx, accountID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		r.log.Warn().Err(err).Str("account_id", accountID).Msg("account lookup failed; continuing")
		return nil
	}

	user, err := r.users.GetUser(ctx, accountID)
	if err != nil {
		return fmt.Errorf("load auth user: %w", err)
	}
	acct := &model.Account{
		ID:        accountID,
		Email:     user.Email,
		Name:      user.Name,
		Status:    model.AccountActive,
		CreatedAt: r.now().UTC(),
	}
	if acct.Email == "" {
		acct.Email = "sem-email-" + accountID + "@" + placeholderEmailDomain
	}
	if acct.Name == "" {
		acct.Name = placeholderName
	}

	err = r.store.CreateAccount(ctx, acct)
	if errors.Is(err, database.ErrConflict) {
		err = r.store.PromoteAccount(ctx, acct.Email, acct)
	}
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	r.log.Info().Str("account_id", accountID).Msg("account created on first read")
	return nil
}

func (r *Recorder) failed(number int, accountID string, res Result, err error) Result {
	res.Outcome = OutcomeFailed
	res.Err = err
	r.metrics.ReadRecorded(string(res.Outcome))
	r.log.Warn().Err(err).
		Int("letter_number", number).
		Str("account_id", accountID).
		Str("outcome", string(res.Outcome)).
		Msg("read not recorded; reporting success")
	return res
}
