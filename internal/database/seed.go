package database

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bryan-buckman/letterbox/internal/model"
)

// SampleLetters are the five letters a fresh store is seeded with.
func SampleLetters() []model.StoredLetter {
	at := func(day int) time.Time { return time.Date(2023, 6, day, 12, 0, 0, 0, time.UTC) }
	return []model.StoredLetter{
		{
			Number:      1,
			Title:       "O Despertar dos Edificadores",
			Description: "Nesta primeira carta, exploramos o chamado divino que ecoa através dos tempos, convocando aqueles que foram escolhidos para edificar uma nova era...",
			Markdown: `Caros edificadores,

Em uma era de profundas transformações, o chamado para edificar ressoa mais forte do que nunca. Não se trata apenas de construir estruturas físicas, mas de erguer novos paradigmas, novos modelos de pensamento, e novas formas de relacionamento com o mundo e com nós mesmos.

Lembrem-se sempre: o que construímos externamente é apenas o reflexo do que primeiro edificamos internamente.

Com admiração e esperança,

*Os Guardiões da Edificação*`,
			PublishedAt: at(10),
		},
		{
			Number:      2,
			Title:       "As Ferramentas da Construção",
			Description: "Todo edificador precisa conhecer suas ferramentas. Nesta carta, revelamos os instrumentos espirituais e mentais necessários para a grande obra que se inicia...",
			Markdown: `Caros edificadores,

Todo mestre construtor conhece a importância de suas ferramentas.

1. A consciência expandida
2. O poder da palavra
3. A visão de propósito
4. A sabedoria ancestral
5. A força do amor incondicional

Lembrem-se: não é a ferramenta que faz o mestre, mas o mestre que dá vida à ferramenta.

Com confiança em seu potencial,

*Os Guardiões da Edificação*`,
			PublishedAt: at(17),
		},
		{
			Number:      3,
			Title:       "Fundamentos Inabaláveis",
			Description: "Antes de erguer estruturas que alcancem os céus, é preciso estabelecer fundamentos sólidos. Aprenda os princípios eternos que sustentarão sua edificação...",
			Markdown: `Caros edificadores,

Nenhuma torre elevada permanece de pé sem alicerces profundos. Integridade, humildade, perseverança, adaptabilidade e comunhão são os fundamentos desta obra.

Analisem se estes fundamentos estão firmemente estabelecidos em sua vida.

Com confiança em sua diligência,

*Os Guardiões da Edificação*`,
			PublishedAt: at(24),
		},
		{
			Number:      4,
			Title:       "Derrubando Muros, Construindo Pontes",
			Description: "Os verdadeiros edificadores não apenas constroem novos caminhos, mas também removem os obstáculos que impedem o progresso da humanidade...",
			Markdown: `Caros edificadores,

Há tempos em que construir significa primeiro desconstruir. Para cada muro removido, uma ponte deve ser erguida.

Que cada um de vocês seja tanto um habilidoso demolidor de barreiras quanto um inspirado construtor de pontes.

Com esperança na unidade que virá,

*Os Guardiões da Edificação*`,
			PublishedAt: time.Date(2023, 7, 1, 12, 0, 0, 0, time.UTC),
		},
		{
			Number:      5,
			Title:       "A Arquitetura do Invisível",
			Description: "O mundo visível é moldado pelo invisível. Nesta carta, exploramos como os padrões do reino espiritual se manifestam através das mãos dos edificadores...",
			Markdown: `Caros edificadores,

Há mais no universo do que aquilo que os olhos físicos podem contemplar. Toda manifestação visível é precedida por uma arquitetura invisível.

Nas próximas cartas, exploraremos técnicas específicas para trabalhar efetivamente com esta arquitetura invisível.

Com admiração por seu despertar,

*Os Guardiões da Edificação*`,
			PublishedAt: time.Date(2023, 7, 8, 12, 0, 0, 0, time.UTC),
		},
	}
}

// Seed inserts the sample letters when the store has none. Returns the number inserted.
func Seed(ctx context.Context, store Store) (int, error) {
	return SeedLetters(ctx, store, SampleLetters())
}

// SeedLetters inserts letters when the store has none. Returns the number inserted.
func SeedLetters(ctx context.Context, store Store, letters []model.StoredLetter) (int, error) {
	highest, err := store.MaxLetterNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("count letters: %w", err)
	}
	if highest > 0 {
		return 0, nil
	}
	inserted := 0
	for _, l := range letters {
		l := l
		if _, err := store.CreateLetter(ctx, &l); err != nil {
			return inserted, fmt.Errorf("seed letter %d: %w", l.Number, err)
		}
		inserted++
	}
	return inserted, nil
}

// LoadLetters reads a JSON array of letters from path. Each element may be
// in the canonical shape or the store-native row shape.
func LoadLetters(path string) ([]model.StoredLetter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read letters file: %w", err)
	}
	parsed, err := model.ParseLetters(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	seen := make(map[int]bool, len(parsed))
	out := make([]model.StoredLetter, 0, len(parsed))
	for _, l := range parsed {
		if l.Number <= 0 {
			return nil, fmt.Errorf("%s: letter %q has no display number", path, l.Title)
		}
		if seen[l.Number] {
			return nil, fmt.Errorf("%s: duplicate letter number %d", path, l.Number)
		}
		seen[l.Number] = true
		out = append(out, l.Stored())
	}
	return out, nil
}
