// Package letters serves the letter catalogue in its canonical shape.
package letters

import (
	"context"
	"fmt"
	"sort"

	"github.com/bryan-buckman/letterbox/internal/database"
	"github.com/bryan-buckman/letterbox/internal/model"
)

// Service reads letters from the store and normalizes them.
type Service struct {
	store database.Store
}

// NewService returns a letter service.
func NewService(store database.Store) *Service {
	return &Service{store: store}
}

// List returns every letter ordered by number, ascending.
func (s *Service) List(ctx context.Context) ([]model.Letter, error) {
	stored, err := s.store.ListLetters(ctx)
	if err != nil {
		return nil, fmt.Errorf("list letters: %w", err)
	}
	out := make([]model.Letter, 0, len(stored))
	for _, l := range stored {
		out = append(out, l.Normalize())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

// Get returns the letter with the given number, or database.ErrNotFound.
func (s *Service) Get(ctx context.Context, number int) (model.Letter, error) {
	stored, err := s.store.GetLetterByNumber(ctx, number)
	if err != nil {
		return model.Letter{}, fmt.Errorf("letter %d: %w", number, err)
	}
	return stored.Normalize(), nil
}

// ReadNumbers returns the numbers of the letters accountID has read, ascending.
func (s *Service) ReadNumbers(ctx context.Context, accountID string) ([]int, error) {
	statuses, err := s.store.ListReadStatuses(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list read statuses: %w", err)
	}
	if len(statuses) == 0 {
		return []int{}, nil
	}
	stored, err := s.store.ListLetters(ctx)
	if err != nil {
		return nil, fmt.Errorf("list letters: %w", err)
	}
	numberByID := make(map[int64]int, len(stored))
	for _, l := range stored {
		numberByID[l.ID] = l.Number
	}

	seen := make(map[int]bool, len(statuses))
	numbers := make([]int, 0, len(statuses))
	for _, st := range statuses {
		n, ok := numberByID[st.LetterID]
		if !ok || seen[n] {
			continue
		}
		seen[n] = true
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	return numbers, nil
}
