package database

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bryan-buckman/letterbox/internal/model"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSupabase(t *testing.T, h http.HandlerFunc) *SupabaseStore {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	s, err := NewSupabase(SupabaseConfig{URL: srv.URL + "/", ServiceKey: "service-key", Timeout: time.Second})
	require.NoError(t, err)
	return s
}

func TestNewSupabaseRequiresSettings(t *testing.T) {
	_, err := NewSupabase(SupabaseConfig{ServiceKey: "k"})
	assert.Error(t, err)
	_, err = NewSupabase(SupabaseConfig{URL: "http://x"})
	assert.Error(t, err)
}

func TestSupabaseListLetters(t *testing.T) {
	s := newTestSupabase(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/cartas_um_chamado_a_edificacao", r.URL.Path)
		assert.Equal(t, "service-key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer service-key", r.Header.Get("Authorization"))
		assert.Equal(t, "id_sumary_carta.asc", r.URL.Query().Get("order"))
		w.Write([]byte(`[
			{"id": 7, "id_sumary_carta": 1, "title": "", "markdonw_carta": "md",
			 "jsonbody_carta": {"title": "From body", "source_id": "guid-1"}, "date_send": "2023-06-10T12:00:00+00:00"},
			{"id": 8, "id_sumary_carta": 2, "title": "Two", "markdonw_carta": "", "date_send": "2023-06-17"}
		]`))
	})

	letters, err := s.ListLetters(context.Background())
	require.NoError(t, err)
	require.Len(t, letters, 2)
	assert.Equal(t, "guid-1", letters[0].SourceID)

	first := letters[0].Normalize()
	assert.Equal(t, "From body", first.Title)
	assert.Equal(t, "md", first.Content)
	assert.Equal(t, 2023, first.PublishedAt.Year())

	second := letters[1].Normalize()
	assert.Equal(t, model.NoContent, second.Content)
}

func TestSupabaseGetLetterByNumberNotFound(t *testing.T) {
	s := newTestSupabase(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "eq.9", r.URL.Query().Get("id_sumary_carta"))
		w.Write([]byte(`[]`))
	})

	_, err := s.GetLetterByNumber(context.Background(), 9)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSupabaseCreateSubscriptionConflict(t *testing.T) {
	s := newTestSupabase(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "return=representation", r.Header.Get("Prefer"))
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"code":"23505","message":"duplicate key value violates unique constraint"}`))
	})

	err := s.CreateSubscription(context.Background(), &model.Subscription{ID: "s", Email: "a@example.com", CreatedAt: time.Now()})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestSupabaseAPIError(t *testing.T) {
	s := newTestSupabase(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"code":"PGRST301","message":"JWT expired"}`))
	})

	_, err := s.GetAccount(context.Background(), "x")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "JWT expired", apiErr.Message)
}

func TestSupabasePromoteAccount(t *testing.T) {
	var patch map[string]any
	s := newTestSupabase(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "eq.ana@example.com", r.URL.Query().Get("email"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &patch))
		if patch["id"] == "missing" {
			w.Write([]byte(`[]`))
			return
		}
		w.Write([]byte(`[{"id":"auth-1","user_id":"auth-1","email":"ana@example.com","name":"Ana","status":"active"}]`))
	})

	ctx := context.Background()
	require.NoError(t, s.PromoteAccount(ctx, "ana@example.com", &model.Account{ID: "auth-1", Name: "Ana", Status: model.AccountActive}))
	assert.Equal(t, "auth-1", patch["user_id"])
	assert.Equal(t, "active", patch["status"])

	err := s.PromoteAccount(ctx, "ana@example.com", &model.Account{ID: "missing", Status: model.AccountActive})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSupabaseReadStatusRoundTrip(t *testing.T) {
	var stored []byte
	s := newTestSupabase(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/status_carta", r.URL.Path)
		switch r.Method {
		case http.MethodPost:
			body, _ := io.ReadAll(r.Body)
			stored = body
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte("[" + string(body) + "]"))
		case http.MethodGet:
			assert.Equal(t, "eq.7", r.URL.Query().Get("carta_id"))
			assert.Equal(t, "eq.acct", r.URL.Query().Get("account_user_id"))
			if stored == nil {
				w.Write([]byte(`[]`))
				return
			}
			w.Write([]byte("[" + string(stored) + "]"))
		}
	})

	ctx := context.Background()
	_, err := s.GetReadStatus(ctx, 7, "acct")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.CreateReadStatus(ctx, &model.ReadStatus{
		ID: "rs", LetterID: 7, AccountID: "acct", Status: model.StatusRead, CreatedAt: time.Now(),
	}))

	rs, err := s.GetReadStatus(ctx, 7, "acct")
	require.NoError(t, err)
	assert.Equal(t, "rs", rs.ID)
	assert.Equal(t, int64(7), rs.LetterID)
	assert.Equal(t, model.StatusRead, rs.Status)
}

func TestSupabaseCreateLetterKeepsSourceInBody(t *testing.T) {
	s := newTestSupabase(t, func(w http.ResponseWriter, r *http.Request) {
		var row map[string]any
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &row))
		jb, ok := row["jsonbody_carta"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "guid-3", jb["source_id"])
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`[{"id": 31, "id_sumary_carta": 3, "date_send": "2024-01-01T00:00:00Z"}]`))
	})

	id, err := s.CreateLetter(context.Background(), &model.StoredLetter{
		Number: 3, Title: "Three", PublishedAt: time.Now(), SourceID: "guid-3",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(31), id)
}
