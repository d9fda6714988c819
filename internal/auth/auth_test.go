package auth

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/bryan-buckman/letterbox/internal/database"
	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newLocalProvider(t *testing.T) *LocalProvider {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewLocalProvider(db, bcrypt.MinCost)
}

func TestLocalProvider(t *testing.T) {
	ctx := context.Background()
	p := newLocalProvider(t)

	u, err := p.CreateUser(ctx, " Ana@Example.com ", "segredo123", "Ana")
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "ana@example.com", u.Email)

	_, err = p.CreateUser(ctx, "ana@example.com", "outro-segredo", "Ana 2")
	assert.ErrorIs(t, err, ErrUserExists)

	_, err = p.CreateUser(ctx, "bia@example.com", "123", "Bia")
	assert.ErrorIs(t, err, ErrWeakPassword)

	got, err := p.Authenticate(ctx, "ANA@example.com", "segredo123")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = p.Authenticate(ctx, "ana@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = p.Authenticate(ctx, "nobody@example.com", "segredo123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	byID, err := p.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana", byID.Name)

	_, err = p.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

// fakeGoTrue emulates the three GoTrue endpoints the provider calls.
func fakeGoTrue(t *testing.T) *httptest.Server {
	t.Helper()
	users := map[string]map[string]any{}
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/v1/admin/users", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "service", r.Header.Get("apikey"))
		var body map[string]any
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		email := body["email"].(string)
		if _, ok := users[email]; ok {
			w.WriteHeader(http.StatusUnprocessableEntity)
			w.Write([]byte(`{"code":422,"error_code":"email_exists","msg":"A user with this email address has already been registered"}`))
			return
		}
		assert.Equal(t, true, body["email_confirm"])
		u := map[string]any{"id": "auth-" + email, "email": email, "user_metadata": body["user_metadata"], "password": body["password"]}
		users[email] = u
		json.NewEncoder(w).Encode(u)
	})
	mux.HandleFunc("/auth/v1/admin/users/", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Path[len("/auth/v1/admin/users/"):]
		for _, u := range users {
			if u["id"] == id {
				json.NewEncoder(w).Encode(u)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"code":404,"error_code":"user_not_found","msg":"User not found"}`))
	})
	mux.HandleFunc("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
		assert.Equal(t, "anon", r.Header.Get("apikey"))
		var body map[string]string
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		u, ok := users[body["email"]]
		if !ok || u["password"] != body["password"] {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid login credentials"}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"access_token": "at", "user": u})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestSupabaseProvider(t *testing.T) {
	ctx := context.Background()
	srv := fakeGoTrue(t)
	p, err := NewSupabaseProvider(SupabaseConfig{URL: srv.URL, AnonKey: "anon", ServiceKey: "service"})
	require.NoError(t, err)

	u, err := p.CreateUser(ctx, "ana@example.com", "segredo123", "Ana")
	require.NoError(t, err)
	assert.Equal(t, "auth-ana@example.com", u.ID)
	assert.Equal(t, "Ana", u.Name)

	_, err = p.CreateUser(ctx, "ana@example.com", "segredo123", "Ana")
	assert.ErrorIs(t, err, ErrUserExists)

	got, err := p.Authenticate(ctx, "ana@example.com", "segredo123")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = p.Authenticate(ctx, "ana@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	byID, err := p.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", byID.Email)

	_, err = p.GetUser(ctx, "nope")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestNewSupabaseProviderRequiresKeys(t *testing.T) {
	_, err := NewSupabaseProvider(SupabaseConfig{URL: "http://x", AnonKey: "a"})
	assert.Error(t, err)
}

func TestTokenIssuer(t *testing.T) {
	issuer, err := NewTokenIssuer("0123456789abcdef", time.Hour)
	require.NoError(t, err)

	token, expires, err := issuer.Issue(&User{ID: "u1", Email: "a@example.com", Name: "A"})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)

	u, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, &User{ID: "u1", Email: "a@example.com", Name: "A"}, u)

	other, err := NewTokenIssuer("another-secret-value", time.Hour)
	require.NoError(t, err)
	_, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	issuer.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = issuer.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewTokenIssuer("", time.Hour)
	assert.Error(t, err)
}

func testSessionStore(t *testing.T, store SessionStore) {
	ctx := context.Background()
	u := &User{ID: "u1", Email: "a@example.com", Name: "A"}

	live, err := NewSession(u, time.Hour)
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, live))

	got, err := store.Get(ctx, live.ID)
	require.NoError(t, err)
	assert.Equal(t, u, got.User())

	_, err = store.Get(ctx, "unknown")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, store.Delete(ctx, live.ID))
	_, err = store.Get(ctx, live.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	require.NoError(t, store.Delete(ctx, live.ID))
}

func TestMemorySessionStore(t *testing.T) {
	store := NewMemorySessionStore()
	testSessionStore(t, store)

	ctx := context.Background()
	expired := &Session{ID: "old", UserID: "u", ExpiresAt: time.Now().Add(-time.Minute)}
	require.NoError(t, store.Create(ctx, expired))
	_, err := store.Get(ctx, "old")
	assert.ErrorIs(t, err, ErrSessionExpired)

	n, err := store.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, store.Len())
}

func TestBadgerSessionStore(t *testing.T) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	store := NewBadgerSessionStore(db)
	t.Cleanup(func() { store.Close() })

	testSessionStore(t, store)

	ctx := context.Background()
	err = store.Create(ctx, &Session{ID: "old", ExpiresAt: time.Now().Add(-time.Minute)})
	assert.ErrorIs(t, err, ErrSessionExpired)

	n, err := store.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSweeperStopsOnCancel(t *testing.T) {
	store := NewMemorySessionStore()
	require.NoError(t, store.Create(context.Background(), &Session{ID: "old", ExpiresAt: time.Now().Add(-time.Second)}))

	sw := NewSweeper(store, 10*time.Millisecond, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sw.Serve(ctx) }()

	assert.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestMiddleware(t *testing.T) {
	issuer, err := NewTokenIssuer("0123456789abcdef", time.Hour)
	require.NoError(t, err)
	sessions := NewMemorySessionStore()
	m := NewMiddleware(sessions, issuer, MiddlewareConfig{CookieName: "sid"}, zerolog.Nop())

	protected := m.Authenticate(m.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(UserFromContext(r.Context()).ID))
	})))

	t.Run("anonymous is rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "message")
	})

	t.Run("bearer token", func(t *testing.T) {
		token, _, err := issuer.Issue(&User{ID: "tok-user"})
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "tok-user", rec.Body.String())
	})

	t.Run("bad bearer token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer garbage")
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "Não autorizado", body["message"])
	})

	t.Run("bad bearer token on public route is anonymous", func(t *testing.T) {
		public := m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if UserFromContext(r.Context()) != nil {
				w.Write([]byte("user"))
				return
			}
			w.Write([]byte("anonymous"))
		}))
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", "Bearer garbage")
		rec := httptest.NewRecorder()
		public.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "anonymous", rec.Body.String())
	})

	t.Run("session cookie round trip", func(t *testing.T) {
		rec := httptest.NewRecorder()
		_, err := m.StartSession(context.Background(), rec, &User{ID: "cookie-user"})
		require.NoError(t, err)
		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.True(t, cookies[0].HttpOnly)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(cookies[0])
		rec = httptest.NewRecorder()
		protected.ServeHTTP(rec, req)
		assert.Equal(t, "cookie-user", rec.Body.String())

		logout := httptest.NewRequest(http.MethodPost, "/logout", nil)
		logout.AddCookie(cookies[0])
		rec = httptest.NewRecorder()
		require.NoError(t, m.EndSession(rec, logout))
		assert.Equal(t, -1, rec.Result().Cookies()[0].MaxAge)

		req = httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(cookies[0])
		rec = httptest.NewRecorder()
		protected.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
