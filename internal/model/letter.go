package model

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Placeholders used when a stored letter lacks a field.
const (
	Untitled      = "Sem título"
	NoDescription = "Sem descrição"
	NoContent     = "Sem conteúdo"
)

// StoredLetter is a letter row as persisted: the display number is kept apart
// from the row id, and the body may be structured JSON, markdown, or both.
// JSON tags follow the Supabase table so rows decode directly.
type StoredLetter struct {
	ID          int64           `json:"id"`
	Number      int             `json:"id_sumary_carta"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	JSONBody    json.RawMessage `json:"jsonbody_carta,omitempty"`
	Markdown    string          `json:"markdonw_carta"`
	PublishedAt time.Time       `json:"date_send"`
	SourceID    string          `json:"-"` // feed GUID for imported letters
}

// jsonBody is the structured body format. Only these keys are read.
type jsonBody struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Subtitle    string `json:"subtitle"`
	Content     string `json:"content"`
}

func (s StoredLetter) body() jsonBody {
	var b jsonBody
	raw := bytes.TrimSpace(s.JSONBody)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return b
	}
	// A body that is not an object carries nothing we can use.
	_ = json.Unmarshal(raw, &b)
	return b
}

// Normalize converts the stored row to the canonical Letter.
// Content precedence: JSON body content, then markdown, then NoContent.
func (s StoredLetter) Normalize() Letter {
	b := s.body()
	return Letter{
		ID:          s.ID,
		Number:      s.Number,
		Title:       firstNonEmpty(s.Title, b.Title, Untitled),
		Description: firstNonEmpty(s.Description, b.Description, b.Subtitle, NoDescription),
		Content:     ResolveContent(b.Content, s.Markdown),
		PublishedAt: s.PublishedAt,
	}
}

// ResolveContent picks the body to show for a letter.
func ResolveContent(jsonContent, markdown string) string {
	return firstNonEmpty(jsonContent, markdown, NoContent)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// LetterShape identifies which JSON representation a letter arrived in.
type LetterShape int

const (
	ShapeUnknown LetterShape = iota
	ShapeCanonical           // {id, number, title, description, content, publishedAt}
	ShapeStored              // {id, id_sumary_carta, ..., jsonbody_carta, markdonw_carta, date_send}
)

// wireLetter overlays both shapes so a single decode can tell them apart.
type wireLetter struct {
	ID            int64           `json:"id"`
	Number        *int            `json:"number"`
	SummaryNumber *int            `json:"id_sumary_carta"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	Content       *string         `json:"content"`
	JSONBody      json.RawMessage `json:"jsonbody_carta"`
	Markdown      *string         `json:"markdonw_carta"`
	PublishedAt   string          `json:"publishedAt"`
	DateSend      string          `json:"date_send"`
}

func (w *wireLetter) shape() LetterShape {
	switch {
	case w.SummaryNumber != nil:
		return ShapeStored
	case w.Number != nil:
		return ShapeCanonical
	default:
		return ShapeUnknown
	}
}

// ErrUnknownLetterShape is returned when a payload matches neither letter shape.
var ErrUnknownLetterShape = errors.New("unknown letter shape")

// ParseLetter decodes a letter in either JSON shape into the canonical Letter.
func ParseLetter(data []byte) (Letter, LetterShape, error) {
	var w wireLetter
	if err := json.Unmarshal(data, &w); err != nil {
		return Letter{}, ShapeUnknown, fmt.Errorf("decode letter: %w", err)
	}
	switch w.shape() {
	case ShapeStored:
		stored, err := w.stored()
		if err != nil {
			return Letter{}, ShapeStored, err
		}
		return stored.Normalize(), ShapeStored, nil
	case ShapeCanonical:
		published, err := ParseTimestamp(w.PublishedAt)
		if err != nil {
			return Letter{}, ShapeCanonical, err
		}
		content := ""
		if w.Content != nil {
			content = *w.Content
		}
		return Letter{
			ID:          w.ID,
			Number:      *w.Number,
			Title:       firstNonEmpty(w.Title, Untitled),
			Description: firstNonEmpty(w.Description, NoDescription),
			Content:     ResolveContent("", content),
			PublishedAt: published,
		}, ShapeCanonical, nil
	default:
		return Letter{}, ShapeUnknown, ErrUnknownLetterShape
	}
}

// ParseLetters decodes a JSON array whose elements may each use either shape.
func ParseLetters(data []byte) ([]Letter, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode letters: %w", err)
	}
	out := make([]Letter, 0, len(raw))
	for i, item := range raw {
		l, _, err := ParseLetter(item)
		if err != nil {
			return nil, fmt.Errorf("letter at index %d: %w", i, err)
		}
		out = append(out, l)
	}
	return out, nil
}

// Stored returns the row form of l with its content kept as markdown.
func (l Letter) Stored() StoredLetter {
	return StoredLetter{
		ID:          l.ID,
		Number:      l.Number,
		Title:       l.Title,
		Description: l.Description,
		Markdown:    l.Content,
		PublishedAt: l.PublishedAt,
	}
}

func (w *wireLetter) stored() (StoredLetter, error) {
	published, err := ParseTimestamp(w.DateSend)
	if err != nil {
		return StoredLetter{}, err
	}
	s := StoredLetter{
		ID:          w.ID,
		Number:      *w.SummaryNumber,
		Title:       w.Title,
		Description: w.Description,
		JSONBody:    w.JSONBody,
		PublishedAt: published,
	}
	if w.Markdown != nil {
		s.Markdown = *w.Markdown
	}
	return s, nil
}

// UnmarshalJSON accepts the store-native row, tolerating date-only and
// timezone-less timestamps in date_send.
func (s *StoredLetter) UnmarshalJSON(data []byte) error {
	var w wireLetter
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.SummaryNumber == nil {
		return fmt.Errorf("stored letter %d: missing id_sumary_carta", w.ID)
	}
	stored, err := w.stored()
	if err != nil {
		return err
	}
	*s = stored
	return nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999-07",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses the timestamp formats Postgres and PostgREST emit.
// An empty string yields the zero time.
func ParseTimestamp(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse timestamp %q: unsupported format", v)
}
