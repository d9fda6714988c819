package reading

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/bryan-buckman/letterbox/internal/auth"
	"github.com/bryan-buckman/letterbox/internal/database"
	"github.com/bryan-buckman/letterbox/internal/metrics"
	"github.com/bryan-buckman/letterbox/internal/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubUsers map[string]*auth.User

func (s stubUsers) CreateUser(context.Context, string, string, string) (*auth.User, error) {
	return nil, errors.New("not supported")
}

func (s stubUsers) Authenticate(context.Context, string, string) (*auth.User, error) {
	return nil, auth.ErrInvalidCredentials
}

func (s stubUsers) GetUser(_ context.Context, id string) (*auth.User, error) {
	if u, ok := s[id]; ok {
		return u, nil
	}
	return nil, auth.ErrUserNotFound
}

// failingInserts rejects every read status insert.
type failingInserts struct {
	database.Store
}

func (failingInserts) CreateReadStatus(context.Context, *model.ReadStatus) error {
	return errors.New("disk full")
}

func newStore(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "reading.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = database.Seed(context.Background(), db)
	require.NoError(t, err)
	return db
}

func addReader(t *testing.T, db *database.DB, id string) {
	t.Helper()
	require.NoError(t, db.CreateAccount(context.Background(), &model.Account{
		ID: id, Email: id + "@example.com", Name: "Reader", Status: model.AccountActive, CreatedAt: time.Now(),
	}))
}

func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rec.Body.String()
}

func TestRecordIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := newStore(t)
	addReader(t, db, "reader")
	m := metrics.New()
	rec := NewRecorder(db, stubUsers{}, m, zerolog.Nop())

	first, err := rec.Record(ctx, 2, "reader")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCommitted, first.Outcome)
	assert.True(t, first.Persisted())
	assert.NotEmpty(t, first.StatusID)

	second, err := rec.Record(ctx, 2, "reader")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, second.Outcome)
	assert.Equal(t, first.StatusID, second.StatusID)

	statuses, err := db.ListReadStatuses(ctx, "reader")
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, first.LetterID, statuses[0].LetterID)
	assert.Equal(t, model.StatusRead, statuses[0].Status)

	body := scrape(t, m)
	assert.Contains(t, body, `letterbox_reading_records_total{outcome="committed"} 1`)
	assert.Contains(t, body, `letterbox_reading_records_total{outcome="duplicate"} 1`)
}

func TestRecordRejectsBadInput(t *testing.T) {
	rec := NewRecorder(newStore(t), stubUsers{}, nil, zerolog.Nop())

	_, err := rec.Record(context.Background(), 0, "reader")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = rec.Record(context.Background(), 1, "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRecordUnknownLetter(t *testing.T) {
	db := newStore(t)
	addReader(t, db, "reader")
	rec := NewRecorder(db, stubUsers{}, nil, zerolog.Nop())

	_, err := rec.Record(context.Background(), 404, "reader")
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestRecordInsertFailureIsReportedNotReturned(t *testing.T) {
	ctx := context.Background()
	db := newStore(t)
	addReader(t, db, "reader")
	m := metrics.New()
	rec := NewRecorder(failingInserts{db}, stubUsers{}, m, zerolog.Nop())

	res, err := rec.Record(ctx, 1, "reader")
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.False(t, res.Persisted())
	assert.ErrorContains(t, res.Err, "disk full")

	statuses, err := db.ListReadStatuses(ctx, "reader")
	require.NoError(t, err)
	assert.Empty(t, statuses)
	assert.Contains(t, scrape(t, m), `letterbox_reading_records_total{outcome="failed"} 1`)
}

func TestRecordCreatesMissingAccount(t *testing.T) {
	ctx := context.Background()
	db := newStore(t)
	users := stubUsers{
		"auth-1": {ID: "auth-1", Email: "new@example.com", Name: "New Reader"},
		"auth-2": {ID: "auth-2"},
	}
	rec := NewRecorder(db, users, nil, zerolog.Nop())

	res, err := rec.Record(ctx, 1, "auth-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCommitted, res.Outcome)

	acct, err := db.GetAccount(ctx, "auth-1")
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", acct.Email)
	assert.Equal(t, model.AccountActive, acct.Status)

	res, err = rec.Record(ctx, 1, "auth-2")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCommitted, res.Outcome)

	acct, err = db.GetAccount(ctx, "auth-2")
	require.NoError(t, err)
	assert.Equal(t, "Usuário", acct.Name)
	assert.Contains(t, acct.Email, "sem-email")
}

func TestRecordPromotesSubscriberOnFirstRead(t *testing.T) {
	ctx := context.Background()
	db := newStore(t)
	require.NoError(t, db.CreateAccount(ctx, &model.Account{
		ID: "placeholder", Email: "sub@example.com", Status: model.AccountSubscribed, CreatedAt: time.Now(),
	}))
	users := stubUsers{"auth-9": {ID: "auth-9", Email: "sub@example.com", Name: "Sub"}}
	rec := NewRecorder(db, users, nil, zerolog.Nop())

	res, err := rec.Record(ctx, 3, "auth-9")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCommitted, res.Outcome)

	acct, err := db.GetAccount(ctx, "auth-9")
	require.NoError(t, err)
	assert.Equal(t, model.AccountActive, acct.Status)
}

func TestRecordUnknownAuthUserFails(t *testing.T) {
	ctx := context.Background()
	db := newStore(t)
	rec := NewRecorder(db, stubUsers{}, nil, zerolog.Nop())

	res, err := rec.Record(ctx, 1, "ghost")
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, auth.ErrUserNotFound)
}
