package model

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeContentPrecedence(t *testing.T) {
	tests := []struct {
		name     string
		letter   StoredLetter
		expected string
	}{
		{
			name: "json body wins over markdown",
			letter: StoredLetter{
				JSONBody: json.RawMessage(`{"content":"from json"}`),
				Markdown: "# from markdown",
			},
			expected: "from json",
		},
		{
			name: "markdown when json body has no content",
			letter: StoredLetter{
				JSONBody: json.RawMessage(`{"title":"t"}`),
				Markdown: "# from markdown",
			},
			expected: "# from markdown",
		},
		{
			name:     "markdown when json body is null",
			letter:   StoredLetter{JSONBody: json.RawMessage(`null`), Markdown: "body"},
			expected: "body",
		},
		{
			name:     "placeholder when nothing is set",
			letter:   StoredLetter{},
			expected: NoContent,
		},
		{
			name:     "non-object json body is ignored",
			letter:   StoredLetter{JSONBody: json.RawMessage(`"just a string"`)},
			expected: NoContent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.letter.Normalize().Content)
		})
	}
}

func TestNormalizeTitleFallback(t *testing.T) {
	l := StoredLetter{
		ID:       7,
		Number:   3,
		JSONBody: json.RawMessage(`{"title":"Body title","description":"Body description"}`),
	}
	got := l.Normalize()
	assert.Equal(t, int64(7), got.ID)
	assert.Equal(t, 3, got.Number)
	assert.Equal(t, "Body title", got.Title)
	assert.Equal(t, "Body description", got.Description)

	got = StoredLetter{Title: "Column title"}.Normalize()
	assert.Equal(t, "Column title", got.Title)
	assert.Equal(t, NoDescription, got.Description)

	assert.Equal(t, Untitled, StoredLetter{}.Normalize().Title)
}

func TestNormalizeDescriptionFallsBackToSubtitle(t *testing.T) {
	l := StoredLetter{JSONBody: json.RawMessage(`{"subtitle":"Body subtitle"}`)}
	assert.Equal(t, "Body subtitle", l.Normalize().Description)

	l.JSONBody = json.RawMessage(`{"description":"Body description","subtitle":"Body subtitle"}`)
	assert.Equal(t, "Body description", l.Normalize().Description)

	l.Description = "Column description"
	assert.Equal(t, "Column description", l.Normalize().Description)
}

func TestPlaceholdersArePortuguese(t *testing.T) {
	got := StoredLetter{}.Normalize()
	assert.Equal(t, "Sem título", got.Title)
	assert.Equal(t, "Sem descrição", got.Description)
	assert.Equal(t, "Sem conteúdo", got.Content)
}

func TestParseLetterStoredShape(t *testing.T) {
	payload := []byte(`{
		"id": 41,
		"id_sumary_carta": 2,
		"title": "As Ferramentas da Construção",
		"description": "desc",
		"jsonbody_carta": null,
		"markdonw_carta": "Caros edificadores,",
		"date_send": "2023-06-17"
	}`)

	letter, shape, err := ParseLetter(payload)
	require.NoError(t, err)
	assert.Equal(t, ShapeStored, shape)
	assert.Equal(t, int64(41), letter.ID)
	assert.Equal(t, 2, letter.Number)
	assert.Equal(t, "Caros edificadores,", letter.Content)
	assert.Equal(t, time.Date(2023, 6, 17, 0, 0, 0, 0, time.UTC), letter.PublishedAt)
}

func TestParseLetterCanonicalShape(t *testing.T) {
	payload := []byte(`{
		"id": 1,
		"number": 1,
		"title": "O Despertar dos Edificadores",
		"description": "d",
		"content": "text",
		"publishedAt": "2023-06-10T12:00:00Z"
	}`)

	letter, shape, err := ParseLetter(payload)
	require.NoError(t, err)
	assert.Equal(t, ShapeCanonical, shape)
	assert.Equal(t, 1, letter.Number)
	assert.Equal(t, "text", letter.Content)
	assert.Equal(t, time.Date(2023, 6, 10, 12, 0, 0, 0, time.UTC), letter.PublishedAt)
}

func TestParseLetterUnknownShape(t *testing.T) {
	_, shape, err := ParseLetter([]byte(`{"id": 1, "title": "x"}`))
	assert.ErrorIs(t, err, ErrUnknownLetterShape)
	assert.Equal(t, ShapeUnknown, shape)

	_, _, err = ParseLetter([]byte(`not json`))
	assert.Error(t, err)
}

func TestStoredLetterUnmarshal(t *testing.T) {
	var rows []StoredLetter
	err := json.Unmarshal([]byte(`[
		{"id": 10, "id_sumary_carta": 1, "title": "a", "date_send": "2023-06-10T12:00:00+00:00"},
		{"id": 11, "id_sumary_carta": 2, "title": "b", "date_send": "2023-06-17 12:00:00"}
	]`), &rows)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 1, rows[0].Number)
	assert.Equal(t, 2, rows[1].Number)
	assert.Equal(t, 12, rows[1].PublishedAt.Hour())

	var missing StoredLetter
	assert.Error(t, json.Unmarshal([]byte(`{"id": 1}`), &missing))
}

func TestParseTimestamp(t *testing.T) {
	ts, err := ParseTimestamp("")
	require.NoError(t, err)
	assert.True(t, ts.IsZero())

	_, err = ParseTimestamp("yesterday")
	assert.Error(t, err)
}

func TestParseLettersMixedShapes(t *testing.T) {
	payload := []byte(`[
		{"id": 1, "number": 1, "title": "Canonical", "content": "body one", "publishedAt": "2023-06-10T12:00:00Z"},
		{"id": 2, "id_sumary_carta": 2, "title": "Stored", "jsonbody_carta": {"content": "body two"}, "date_send": "2023-06-17"}
	]`)
	list, err := ParseLetters(payload)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Canonical", list[0].Title)
	assert.Equal(t, "body two", list[1].Content)

	stored := list[1].Stored()
	assert.Equal(t, 2, stored.Number)
	assert.Equal(t, "body two", stored.Markdown)
	assert.Equal(t, time.Date(2023, 6, 17, 0, 0, 0, 0, time.UTC), stored.PublishedAt)

	_, err = ParseLetters([]byte(`[{"id": 3, "title": "no number"}]`))
	assert.ErrorIs(t, err, ErrUnknownLetterShape)

	_, err = ParseLetters([]byte(`{"id": 1}`))
	assert.Error(t, err)
}
