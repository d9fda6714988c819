package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// MiddlewareConfig configures the session cookie.
type MiddlewareConfig struct {
	CookieName   string
	CookieSecure bool
	SessionTTL   time.Duration
}

// Middleware resolves the caller from a bearer token or session cookie.
type Middleware struct {
	sessions SessionStore
	tokens   *TokenIssuer
	cfg      MiddlewareConfig
	log      zerolog.Logger
}

// NewMiddleware returns the auth middleware.
func NewMiddleware(sessions SessionStore, tokens *TokenIssuer, cfg MiddlewareConfig, log zerolog.Logger) *Middleware {
	if cfg.CookieName == "" {
		cfg.CookieName = "letterbox_session"
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 7 * 24 * time.Hour
	}
	return &Middleware{sessions: sessions, tokens: tokens, cfg: cfg, log: log}
}

// Authenticate puts the caller in the request context when a valid bearer
// token or session cookie is present. Requests without one, or with a bearer
// token that fails verification, pass through anonymously; RequireAuth
// rejects them where a caller is needed.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token, ok := bearerToken(r); ok {
			u, err := m.tokens.Verify(token)
			if err == nil {
				next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
				return
			}
			m.log.Debug().Err(err).Str("path", r.URL.Path).Msg("ignoring invalid bearer token")
		}

		if c, err := r.Cookie(m.cfg.CookieName); err == nil && c.Value != "" {
			s, err := m.sessions.Get(r.Context(), c.Value)
			switch {
			case err == nil:
				r = r.WithContext(WithUser(r.Context(), s.User()))
			case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrSessionExpired):
			default:
				m.log.Error().Err(err).Msg("session lookup failed")
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAuth rejects requests without an authenticated caller.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserFromContext(r.Context()) == nil {
			m.writeUnauthorized(w, "Não autorizado")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// StartSession stores a session for u and sets its cookie.
func (m *Middleware) StartSession(ctx context.Context, w http.ResponseWriter, u *User) (*Session, error) {
	s, err := NewSession(u, m.cfg.SessionTTL)
	if err != nil {
		return nil, err
	}
	if err := m.sessions.Create(ctx, s); err != nil {
		return nil, err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    s.ID,
		Path:     "/",
		MaxAge:   int(m.cfg.SessionTTL.Seconds()),
		Secure:   m.cfg.CookieSecure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return s, nil
}

// EndSession deletes the request's session, if any, and clears the cookie.
func (m *Middleware) EndSession(w http.ResponseWriter, r *http.Request) error {
	var err error
	if c, cerr := r.Cookie(m.cfg.CookieName); cerr == nil && c.Value != "" {
		err = m.sessions.Delete(r.Context(), c.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   m.cfg.CookieSecure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return err
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

func (m *Middleware) writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	if err := json.NewEncoder(w).Encode(map[string]string{"message": msg}); err != nil {
		m.log.Debug().Err(err).Msg("write unauthorized response")
	}
}
