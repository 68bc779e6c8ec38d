// Package store persists goals and flashcard decks. Callers own the Store
// value and pass it to whatever needs it; there is no package-level state.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"studyverse/internal/flashcards"
	"studyverse/internal/model"
)

var (
	// ErrNotFound is returned when a goal or deck id does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNotRecurring is returned by occurrence operations on a one-off goal.
	ErrNotRecurring = errors.New("goal is not recurring")
	// ErrReadOnly is returned when editing a goal imported from a subscription.
	ErrReadOnly = errors.New("goal is read-only")
)

// Store is the goals/decks repository.
type Store interface {
	// ListGoals returns every goal as a forest, in insertion order.
	ListGoals(ctx context.Context) ([]model.Goal, error)
	GetGoal(ctx context.Context, id string) (model.Goal, error)
	// CreateGoal inserts g (and its sub-goals) under parentID, or at the
	// root when parentID is empty. Missing ids are generated.
	CreateGoal(ctx context.Context, parentID string, g model.Goal) (model.Goal, error)
	// UpdateGoal replaces the goal with g.ID, including its whole subtree.
	UpdateGoal(ctx context.Context, g model.Goal) (model.Goal, error)
	// DeleteGoal removes the goal and its subtree.
	DeleteGoal(ctx context.Context, id string) error

	// AddException removes a single occurrence (yyyy-MM-dd) from a series.
	AddException(ctx context.Context, goalID, date string) (model.Goal, error)
	// DetachOccurrence turns one occurrence of a series into a standalone
	// goal built from patch, and excludes that date from the series.
	DetachOccurrence(ctx context.Context, goalID, date string, patch model.Goal) (model.Goal, error)

	ListDecks(ctx context.Context) ([]flashcards.Deck, error)
	GetDeck(ctx context.Context, id string) (flashcards.Deck, error)
	CreateDeck(ctx context.Context, parentID string, d flashcards.Deck) (flashcards.Deck, error)
	// SaveDeck replaces the deck with d.ID, including its sub-decks.
	SaveDeck(ctx context.Context, d flashcards.Deck) (flashcards.Deck, error)
	DeleteDeck(ctx context.Context, id string) error

	Close() error
}

// assignGoalIDs fills empty ids in g and its sub-goals.
func assignGoalIDs(g model.Goal) model.Goal {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if len(g.SubGoals) > 0 {
		subs := make([]model.Goal, len(g.SubGoals))
		for i, sg := range g.SubGoals {
			subs[i] = assignGoalIDs(sg)
		}
		g.SubGoals = subs
	}
	return g
}

func assignDeckIDs(d flashcards.Deck) flashcards.Deck {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if len(d.Cards) > 0 {
		cards := make([]flashcards.Card, len(d.Cards))
		for i, c := range d.Cards {
			if c.ID == "" {
				c.ID = uuid.NewString()
			}
			cards[i] = c
		}
		d.Cards = cards
	}
	if d.Cards == nil {
		d.Cards = []flashcards.Card{}
	}
	if len(d.SubDecks) > 0 {
		subs := make([]flashcards.Deck, len(d.SubDecks))
		for i, sd := range d.SubDecks {
			subs[i] = assignDeckIDs(sd)
		}
		d.SubDecks = subs
	}
	return d
}

// withException returns series with date added to its exceptions.
func withException(series model.Goal, date string) (model.Goal, string, error) {
	if series.Source != "" {
		return series, "", fmt.Errorf("%w: %s", ErrReadOnly, series.ID)
	}
	if !series.IsRecurring() {
		return series, "", fmt.Errorf("%w: %s", ErrNotRecurring, series.ID)
	}
	day, err := model.ParseDate(date, nil)
	if err != nil {
		return series, "", fmt.Errorf("%w: exception %q: %v", model.ErrInvalidGoal, date, err)
	}
	key := model.DateKey(day)
	if series.HasException(key) {
		return series, key, nil
	}
	out := series.Clone()
	out.RecurrenceExceptions = append(out.RecurrenceExceptions, key)
	return out, key, nil
}

// detachedGoal builds the standalone goal for one occurrence of series.
// Non-zero fields of patch override the series' values.
func detachedGoal(series model.Goal, date string, patch model.Goal) model.Goal {
	g := series.Clone()
	g.ID = uuid.NewString()
	g.Recurrence = nil
	g.RecurrenceExceptions = nil
	g.RecurrenceID = series.ID
	g.DueDate = date
	g.Completed = patch.Completed

	if patch.Text != "" {
		g.Text = patch.Text
	}
	if patch.DueDate != "" {
		g.DueDate = patch.DueDate
	}
	if patch.StartTime != "" {
		g.StartTime = patch.StartTime
	}
	if patch.EndTime != "" {
		g.EndTime = patch.EndTime
	}
	if patch.Tags != nil {
		g.Tags = append([]string(nil), patch.Tags...)
	}
	if patch.Files != nil {
		g.Files = append([]model.Attachment(nil), patch.Files...)
	}
	if patch.SubGoals != nil {
		g.SubGoals = patch.Clone().SubGoals
	}
	if patch.Progress != 0 {
		g.Progress = patch.Progress
	}
	if patch.Target != 0 {
		g.Target = patch.Target
	}
	// Sub-goals copied from the series need their own ids.
	g.SubGoals = clearGoalIDs(g.SubGoals)
	return assignGoalIDs(g)
}

func clearGoalIDs(goals []model.Goal) []model.Goal {
	if goals == nil {
		return nil
	}
	out := make([]model.Goal, len(goals))
	for i, g := range goals {
		g.ID = ""
		g.SubGoals = clearGoalIDs(g.SubGoals)
		out[i] = g
	}
	return out
}
