package database

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bryan-buckman/letterbox/internal/model"
	"github.com/goccy/go-json"
)

// SupabaseTables names the PostgREST tables backing each entity.
type SupabaseTables struct {
	Letters       string `koanf:"letters"`
	Accounts      string `koanf:"accounts"`
	Subscriptions string `koanf:"subscriptions"`
	ReadStatuses  string `koanf:"read_statuses"`
}

// DefaultSupabaseTables returns the table names of the hosted project.
func DefaultSupabaseTables() SupabaseTables {
	return SupabaseTables{
		Letters:       "cartas_um_chamado_a_edificacao",
		Accounts:      "account_user",
		Subscriptions: "subscription_um_chamado",
		ReadStatuses:  "status_carta",
	}
}

// SupabaseConfig holds Supabase REST connection settings.
type SupabaseConfig struct {
	URL        string
	ServiceKey string
	Timeout    time.Duration
	Tables     SupabaseTables
}

// SupabaseStore talks to the Supabase PostgREST API with the service key,
// which is not subject to row-level security.
type SupabaseStore struct {
	url        string
	serviceKey string
	tables     SupabaseTables
	httpClient *http.Client
}

// Ensure SupabaseStore implements Store interface.
var _ Store = (*SupabaseStore)(nil)

const (
	maxSupabaseResponseBytes  = 8 << 20
	maxSupabaseErrorBodyBytes = 32 << 10
)

// NewSupabase creates a Supabase-backed store.
func NewSupabase(cfg SupabaseConfig) (*SupabaseStore, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("supabase url is required")
	}
	if cfg.ServiceKey == "" {
		return nil, fmt.Errorf("supabase service key is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	tables := cfg.Tables
	defaults := DefaultSupabaseTables()
	if tables.Letters == "" {
		tables.Letters = defaults.Letters
	}
	if tables.Accounts == "" {
		tables.Accounts = defaults.Accounts
	}
	if tables.Subscriptions == "" {
		tables.Subscriptions = defaults.Subscriptions
	}
	if tables.ReadStatuses == "" {
		tables.ReadStatuses = defaults.ReadStatuses
	}
	return &SupabaseStore{
		url:        strings.TrimRight(cfg.URL, "/"),
		serviceKey: cfg.ServiceKey,
		tables:     tables,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Close is a no-op; the HTTP client holds no resources that need releasing.
func (s *SupabaseStore) Close() error {
	return nil
}

// DatabaseType returns the database backend name.
func (s *SupabaseStore) DatabaseType() string {
	return "Supabase"
}

// APIError is a non-2xx PostgREST response.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("supabase %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("supabase %d", e.Status)
}

// request makes an HTTP request to the Supabase REST API.
func (s *SupabaseStore) request(ctx context.Context, method, table string, body any, query url.Values) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/rest/v1/%s", s.url, table)
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apikey", s.serviceKey)
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("Prefer", "return=representation")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, table, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxSupabaseErrorBodyBytes))
		if err := json.Unmarshal(raw, apiErr); err != nil {
			apiErr.Message = string(raw)
		}
		if resp.StatusCode == http.StatusConflict || apiErr.Code == "23505" {
			return nil, fmt.Errorf("%w: %v", ErrConflict, apiErr)
		}
		return nil, apiErr
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSupabaseResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return data, nil
}

// selectRows runs a GET and decodes the JSON array into out.
func (s *SupabaseStore) selectRows(ctx context.Context, table string, query url.Values, out any) error {
	data, err := s.request(ctx, http.MethodGet, table, nil, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", table, err)
	}
	return nil
}

func eq(v string) string { return "eq." + v }

// --- Letter Methods ---

func (s *SupabaseStore) ListLetters(ctx context.Context) ([]model.StoredLetter, error) {
	var letters []model.StoredLetter
	q := url.Values{"select": {"*"}, "order": {"id_sumary_carta.asc"}}
	if err := s.selectRows(ctx, s.tables.Letters, q, &letters); err != nil {
		return nil, err
	}
	for i := range letters {
		letters[i].SourceID = sourceFromBody(letters[i].JSONBody)
	}
	return letters, nil
}

func (s *SupabaseStore) GetLetterByNumber(ctx context.Context, number int) (*model.StoredLetter, error) {
	q := url.Values{"select": {"*"}, "id_sumary_carta": {eq(fmt.Sprint(number))}, "limit": {"1"}}
	return s.firstLetter(ctx, q)
}

func (s *SupabaseStore) GetLetterBySource(ctx context.Context, sourceID string) (*model.StoredLetter, error) {
	q := url.Values{"select": {"*"}, "jsonbody_carta->>source_id": {eq(sourceID)}, "limit": {"1"}}
	return s.firstLetter(ctx, q)
}

func (s *SupabaseStore) firstLetter(ctx context.Context, q url.Values) (*model.StoredLetter, error) {
	var letters []model.StoredLetter
	if err := s.selectRows(ctx, s.tables.Letters, q, &letters); err != nil {
		return nil, err
	}
	if len(letters) == 0 {
		return nil, ErrNotFound
	}
	l := letters[0]
	l.SourceID = sourceFromBody(l.JSONBody)
	return &l, nil
}

// CreateLetter inserts a letter. The table has no source column, so the feed
// GUID of imported letters is kept under source_id in the JSON body.
func (s *SupabaseStore) CreateLetter(ctx context.Context, l *model.StoredLetter) (int64, error) {
	body, err := bodyWithSource(l.JSONBody, l.SourceID)
	if err != nil {
		return 0, err
	}
	row := map[string]any{
		"id_sumary_carta": l.Number,
		"title":           l.Title,
		"description":     l.Description,
		"markdonw_carta":  l.Markdown,
		"date_send":       l.PublishedAt.UTC().Format(time.RFC3339),
	}
	if body != nil {
		row["jsonbody_carta"] = body
	}
	data, err := s.request(ctx, http.MethodPost, s.tables.Letters, row, nil)
	if err != nil {
		return 0, err
	}
	var created []model.StoredLetter
	if err := json.Unmarshal(data, &created); err != nil {
		return 0, fmt.Errorf("decode created letter: %w", err)
	}
	if len(created) == 0 {
		return 0, fmt.Errorf("create letter %d: empty response", l.Number)
	}
	return created[0].ID, nil
}

func (s *SupabaseStore) MaxLetterNumber(ctx context.Context) (int, error) {
	var rows []struct {
		Number int `json:"id_sumary_carta"`
	}
	q := url.Values{"select": {"id_sumary_carta"}, "order": {"id_sumary_carta.desc"}, "limit": {"1"}}
	if err := s.selectRows(ctx, s.tables.Letters, q, &rows); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Number, nil
}

func sourceFromBody(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var b struct {
		SourceID string `json:"source_id"`
	}
	_ = json.Unmarshal(raw, &b)
	return b.SourceID
}

func bodyWithSource(raw json.RawMessage, sourceID string) (map[string]any, error) {
	if len(raw) == 0 && sourceID == "" {
		return nil, nil
	}
	body := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, fmt.Errorf("letter json body must be an object: %w", err)
		}
	}
	if sourceID != "" {
		body["source_id"] = sourceID
	}
	return body, nil
}

// --- Account Methods ---

type accountRow struct {
	ID     string `json:"id"`
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

func (r accountRow) toModel() *model.Account {
	return &model.Account{ID: r.ID, Email: r.Email, Name: r.Name, Status: model.AccountStatus(r.Status)}
}

// userIDFor leaves user_id empty for subscribed placeholders; it references auth.users.
func userIDFor(a *model.Account) string {
	if a.Status == model.AccountActive {
		return a.ID
	}
	return ""
}

func (s *SupabaseStore) firstAccount(ctx context.Context, q url.Values) (*model.Account, error) {
	var rows []accountRow
	q.Set("select", "*")
	q.Set("limit", "1")
	if err := s.selectRows(ctx, s.tables.Accounts, q, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0].toModel(), nil
}

func (s *SupabaseStore) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	return s.firstAccount(ctx, url.Values{"id": {eq(id)}})
}

func (s *SupabaseStore) GetAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	return s.firstAccount(ctx, url.Values{"email": {eq(email)}})
}

func (s *SupabaseStore) CreateAccount(ctx context.Context, a *model.Account) error {
	row := accountRow{ID: a.ID, UserID: userIDFor(a), Email: a.Email, Name: a.Name, Status: string(a.Status)}
	_, err := s.request(ctx, http.MethodPost, s.tables.Accounts, row, nil)
	return err
}

func (s *SupabaseStore) PromoteAccount(ctx context.Context, email string, a *model.Account) error {
	patch := map[string]any{
		"id":     a.ID,
		"name":   a.Name,
		"status": string(a.Status),
	}
	if uid := userIDFor(a); uid != "" {
		patch["user_id"] = uid
	}
	data, err := s.request(ctx, http.MethodPatch, s.tables.Accounts, patch, url.Values{"email": {eq(email)}})
	if err != nil {
		return err
	}
	var rows []accountRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return fmt.Errorf("decode promoted account: %w", err)
	}
	if len(rows) == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Subscription Methods ---

type subscriptionRow struct {
	ID        string `json:"id"`
	Email     string `json:"email_subscription"`
	CreatedAt string `json:"created_at"`
}

func (s *SupabaseStore) GetSubscriptionByEmail(ctx context.Context, email string) (*model.Subscription, error) {
	var rows []subscriptionRow
	q := url.Values{"select": {"*"}, "email_subscription": {eq(email)}, "limit": {"1"}}
	if err := s.selectRows(ctx, s.tables.Subscriptions, q, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	created, err := model.ParseTimestamp(rows[0].CreatedAt)
	if err != nil {
		return nil, err
	}
	return &model.Subscription{ID: rows[0].ID, Email: rows[0].Email, CreatedAt: created}, nil
}

func (s *SupabaseStore) CreateSubscription(ctx context.Context, sub *model.Subscription) error {
	row := subscriptionRow{ID: sub.ID, Email: sub.Email, CreatedAt: sub.CreatedAt.UTC().Format(time.RFC3339Nano)}
	_, err := s.request(ctx, http.MethodPost, s.tables.Subscriptions, row, nil)
	return err
}

// --- Read Status Methods ---

type readStatusRow struct {
	ID        string `json:"id"`
	LetterID  int64  `json:"carta_id"`
	AccountID string `json:"account_user_id"`
	CreatedAt string `json:"created_at"`
	Status    string `json:"status"`
}

func (r readStatusRow) toModel() (model.ReadStatus, error) {
	created, err := model.ParseTimestamp(r.CreatedAt)
	if err != nil {
		return model.ReadStatus{}, err
	}
	return model.ReadStatus{ID: r.ID, LetterID: r.LetterID, AccountID: r.AccountID, Status: r.Status, CreatedAt: created}, nil
}

func (s *SupabaseStore) GetReadStatus(ctx context.Context, letterID int64, accountID string) (*model.ReadStatus, error) {
	var rows []readStatusRow
	q := url.Values{
		"select":          {"*"},
		"carta_id":        {eq(fmt.Sprint(letterID))},
		"account_user_id": {eq(accountID)},
		"limit":           {"1"},
	}
	if err := s.selectRows(ctx, s.tables.ReadStatuses, q, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	rs, err := rows[0].toModel()
	if err != nil {
		return nil, err
	}
	return &rs, nil
}

func (s *SupabaseStore) CreateReadStatus(ctx context.Context, rs *model.ReadStatus) error {
	row := readStatusRow{
		ID:        rs.ID,
		LetterID:  rs.LetterID,
		AccountID: rs.AccountID,
		CreatedAt: rs.CreatedAt.UTC().Format(time.RFC3339Nano),
		Status:    rs.Status,
	}
	_, err := s.request(ctx, http.MethodPost, s.tables.ReadStatuses, row, nil)
	return err
}

func (s *SupabaseStore) ListReadStatuses(ctx context.Context, accountID string) ([]model.ReadStatus, error) {
	var rows []readStatusRow
	q := url.Values{"select": {"*"}, "account_user_id": {eq(accountID)}, "order": {"created_at.asc"}}
	if err := s.selectRows(ctx, s.tables.ReadStatuses, q, &rows); err != nil {
		return nil, err
	}
	statuses := make([]model.ReadStatus, 0, len(rows))
	for _, r := range rows {
		rs, err := r.toModel()
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, rs)
	}
	return statuses, nil
}
