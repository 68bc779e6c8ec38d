package store

import (
	"context"
	"fmt"
	"sync"

	"studyverse/internal/flashcards"
	"studyverse/internal/goaltree"
	"studyverse/internal/model"
)

// MemoryStore keeps goals and decks as immutable forests behind a mutex.
// Every write swaps in a new forest built by the goaltree helpers.
type MemoryStore struct {
	mu    sync.RWMutex
	goals []model.Goal
	decks []flashcards.Deck
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		goals: []model.Goal{},
		decks: []flashcards.Deck{},
	}
}

func (m *MemoryStore) ListGoals(_ context.Context) ([]model.Goal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Goal, len(m.goals))
	for i, g := range m.goals {
		out[i] = g.Clone()
	}
	return out, nil
}

func (m *MemoryStore) GetGoal(_ context.Context, id string) (model.Goal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := goaltree.Find(m.goals, id)
	if !ok {
		return model.Goal{}, fmt.Errorf("goal %s: %w", id, ErrNotFound)
	}
	return g.Clone(), nil
}

func (m *MemoryStore) CreateGoal(_ context.Context, parentID string, g model.Goal) (model.Goal, error) {
	if err := g.Validate(); err != nil {
		return model.Goal{}, err
	}
	g = assignGoalIDs(g.Clone())

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := goaltree.Find(m.goals, g.ID); exists {
		return model.Goal{}, fmt.Errorf("%w: duplicate id %s", model.ErrInvalidGoal, g.ID)
	}
	next, ok := goaltree.InsertChild(m.goals, parentID, g)
	if !ok {
		return model.Goal{}, fmt.Errorf("parent goal %s: %w", parentID, ErrNotFound)
	}
	m.goals = next
	return g.Clone(), nil
}

func (m *MemoryStore) UpdateGoal(_ context.Context, g model.Goal) (model.Goal, error) {
	if err := g.Validate(); err != nil {
		return model.Goal{}, err
	}
	g = assignGoalIDs(g.Clone())

	m.mu.Lock()
	defer m.mu.Unlock()
	next, ok := goaltree.Update(m.goals, g.ID, func(model.Goal) model.Goal { return g })
	if !ok {
		return model.Goal{}, fmt.Errorf("goal %s: %w", g.ID, ErrNotFound)
	}
	m.goals = next
	return g.Clone(), nil
}

func (m *MemoryStore) DeleteGoal(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, ok := goaltree.Remove(m.goals, id)
	if !ok {
		return fmt.Errorf("goal %s: %w", id, ErrNotFound)
	}
	m.goals = next
	return nil
}

func (m *MemoryStore) AddException(_ context.Context, goalID, date string) (model.Goal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	series, ok := goaltree.Find(m.goals, goalID)
	if !ok {
		return model.Goal{}, fmt.Errorf("goal %s: %w", goalID, ErrNotFound)
	}
	updated, _, err := withException(series, date)
	if err != nil {
		return model.Goal{}, err
	}
	m.goals, _ = goaltree.Update(m.goals, goalID, func(model.Goal) model.Goal { return updated })
	return updated.Clone(), nil
}

func (m *MemoryStore) DetachOccurrence(_ context.Context, goalID, date string, patch model.Goal) (model.Goal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	series, ok := goaltree.Find(m.goals, goalID)
	if !ok {
		return model.Goal{}, fmt.Errorf("goal %s: %w", goalID, ErrNotFound)
	}
	updated, key, err := withException(series, date)
	if err != nil {
		return model.Goal{}, err
	}
	detached := detachedGoal(series, key, patch)
	if err := detached.Validate(); err != nil {
		return model.Goal{}, err
	}
	next, _ := goaltree.Update(m.goals, goalID, func(model.Goal) model.Goal { return updated })
	m.goals, _ = goaltree.InsertChild(next, "", detached)
	return detached.Clone(), nil
}

func (m *MemoryStore) ListDecks(_ context.Context) ([]flashcards.Deck, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]flashcards.Deck(nil), m.decks...), nil
}

func (m *MemoryStore) GetDeck(_ context.Context, id string) (flashcards.Deck, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := goaltree.Find(m.decks, id)
	if !ok {
		return flashcards.Deck{}, fmt.Errorf("deck %s: %w", id, ErrNotFound)
	}
	return d, nil
}

func (m *MemoryStore) CreateDeck(_ context.Context, parentID string, d flashcards.Deck) (flashcards.Deck, error) {
	if err := d.Validate(); err != nil {
		return flashcards.Deck{}, err
	}
	d = assignDeckIDs(d)

	m.mu.Lock()
	defer m.mu.Unlock()
	next, ok := goaltree.InsertChild(m.decks, parentID, d)
	if !ok {
		return flashcards.Deck{}, fmt.Errorf("parent deck %s: %w", parentID, ErrNotFound)
	}
	m.decks = next
	return d, nil
}

func (m *MemoryStore) SaveDeck(_ context.Context, d flashcards.Deck) (flashcards.Deck, error) {
	if err := d.Validate(); err != nil {
		return flashcards.Deck{}, err
	}
	d = assignDeckIDs(d)

	m.mu.Lock()
	defer m.mu.Unlock()
	next, ok := goaltree.Update(m.decks, d.ID, func(flashcards.Deck) flashcards.Deck { return d })
	if !ok {
		return flashcards.Deck{}, fmt.Errorf("deck %s: %w", d.ID, ErrNotFound)
	}
	m.decks = next
	return d, nil
}

func (m *MemoryStore) DeleteDeck(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, ok := goaltree.Remove(m.decks, id)
	if !ok {
		return fmt.Errorf("deck %s: %w", id, ErrNotFound)
	}
	m.decks = next
	return nil
}

func (m *MemoryStore) Close() error { return nil }
