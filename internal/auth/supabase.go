package auth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// SupabaseConfig configures the GoTrue client.
type SupabaseConfig struct {
	URL        string
	AnonKey    string
	ServiceKey string
	Timeout    time.Duration
}

// SupabaseProvider delegates logins to Supabase Auth (GoTrue). Admin calls
// use the service key; password sign-in uses the anon key.
type SupabaseProvider struct {
	url        string
	anonKey    string
	serviceKey string
	client     *http.Client
}

var _ Provider = (*SupabaseProvider)(nil)

// NewSupabaseProvider returns a GoTrue-backed provider.
func NewSupabaseProvider(cfg SupabaseConfig) (*SupabaseProvider, error) {
	if cfg.URL == "" || cfg.AnonKey == "" || cfg.ServiceKey == "" {
		return nil, fmt.Errorf("supabase auth requires url, anon key and service key")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &SupabaseProvider{
		url:        strings.TrimRight(cfg.URL, "/"),
		anonKey:    cfg.AnonKey,
		serviceKey: cfg.ServiceKey,
		client:     &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// GoTrueError is a non-2xx response from Supabase Auth. GoTrue versions
// disagree on field names, so all of them are read.
type GoTrueError struct {
	Status           int    `json:"-"`
	ErrorCode        string `json:"error_code"`
	Err              string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func (e *GoTrueError) Error() string {
	return fmt.Sprintf("supabase auth %d: %s", e.Status, e.text())
}

func (e *GoTrueError) text() string {
	for _, s := range []string{e.Msg, e.Message, e.ErrorDescription, e.Err, e.ErrorCode} {
		if s != "" {
			return s
		}
	}
	return http.StatusText(e.Status)
}

func (e *GoTrueError) userExists() bool {
	switch e.ErrorCode {
	case "email_exists", "user_already_exists":
		return true
	}
	return strings.Contains(strings.ToLower(e.text()), "already been registered")
}

func asGoTrue(err error) (*GoTrueError, bool) {
	var gerr *GoTrueError
	ok := errors.As(err, &gerr)
	return gerr, ok
}

type gotrueUser struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	UserMetadata struct {
		Name string `json:"name"`
	} `json:"user_metadata"`
}

func (u gotrueUser) toUser() *User {
	return &User{ID: u.ID, Email: u.Email, Name: u.UserMetadata.Name}
}

func (p *SupabaseProvider) do(ctx context.Context, method, path, key string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.url+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", key)
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		gerr := &GoTrueError{Status: resp.StatusCode}
		if json.Unmarshal(raw, gerr) != nil {
			gerr.Msg = string(raw)
		}
		return gerr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// CreateUser creates a confirmed user through the admin API.
func (p *SupabaseProvider) CreateUser(ctx context.Context, email, password, name string) (*User, error) {
	if len(password) < MinPasswordLength {
		return nil, ErrWeakPassword
	}
	body := map[string]any{
		"email":         normalizeEmail(email),
		"password":      password,
		"email_confirm": true,
		"user_metadata": map[string]string{"name": name},
	}
	var u gotrueUser
	if err := p.do(ctx, http.MethodPost, "/auth/v1/admin/users", p.serviceKey, body, &u); err != nil {
		if gerr, ok := asGoTrue(err); ok && gerr.userExists() {
			return nil, ErrUserExists
		}
		return nil, err
	}
	if u.ID == "" {
		return nil, fmt.Errorf("supabase auth returned no user id")
	}
	return u.toUser(), nil
}

// Authenticate signs in with the password grant.
func (p *SupabaseProvider) Authenticate(ctx context.Context, email, password string) (*User, error) {
	body := map[string]string{"email": normalizeEmail(email), "password": password}
	var resp struct {
		AccessToken string     `json:"access_token"`
		User        gotrueUser `json:"user"`
	}
	path := "/auth/v1/token?" + url.Values{"grant_type": {"password"}}.Encode()
	if err := p.do(ctx, http.MethodPost, path, p.anonKey, body, &resp); err != nil {
		if gerr, ok := asGoTrue(err); ok && (gerr.Status == http.StatusBadRequest || gerr.Status == http.StatusUnauthorized) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	return resp.User.toUser(), nil
}

// GetUser fetches a user through the admin API.
func (p *SupabaseProvider) GetUser(ctx context.Context, id string) (*User, error) {
	var u gotrueUser
	if err := p.do(ctx, http.MethodGet, "/auth/v1/admin/users/"+url.PathEscape(id), p.serviceKey, nil, &u); err != nil {
		if gerr, ok := asGoTrue(err); ok && gerr.Status == http.StatusNotFound {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u.toUser(), nil
}
