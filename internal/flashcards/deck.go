package flashcards

import (
	"errors"
	"fmt"
	"time"

	"studyverse/internal/goaltree"
	"studyverse/internal/model"
)

// ErrInvalidDeck is returned (wrapped) when a deck fails validation.
var ErrInvalidDeck = errors.New("invalid deck")

// Card is a single flashcard with its scheduling state.
type Card struct {
	ID    string `json:"id"`
	Front string `json:"front"`
	Back  string `json:"back"`

	// Interval is the current spacing in days. Zero means never reviewed.
	Interval    int     `json:"interval"`
	Ease        float64 `json:"ease"`
	Repetitions int     `json:"repetitions"`
	Lapses      int     `json:"lapses"`

	DueDate      string `json:"dueDate,omitempty"`
	LastReviewed string `json:"lastReviewed,omitempty"`
	Archived     bool   `json:"archived"`

	Tags []string `json:"tags,omitempty"`
}

// IsNew reports whether the card has never been reviewed.
func (c Card) IsNew() bool {
	return c.Repetitions == 0 && c.LastReviewed == ""
}

// Deck is a named collection of cards, optionally with nested sub-decks.
type Deck struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Cards       []Card `json:"cards"`
	SubDecks    []Deck `json:"subDecks,omitempty"`
}

func (d Deck) NodeID() string { return d.ID }

func (d Deck) Children() []Deck { return d.SubDecks }

func (d Deck) WithChildren(children []Deck) Deck {
	d.SubDecks = children
	return d
}

// Validate checks the deck name and card faces, recursively.
func (d Deck) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDeck)
	}
	for _, c := range d.Cards {
		if c.Front == "" || c.Back == "" {
			return fmt.Errorf("%w: card %q needs a front and a back", ErrInvalidDeck, c.ID)
		}
	}
	for _, sub := range d.SubDecks {
		if err := sub.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// FindCard returns the card with id and its index in d.Cards.
func (d Deck) FindCard(id string) (Card, int, bool) {
	for i, c := range d.Cards {
		if c.ID == id {
			return c, i, true
		}
	}
	return Card{}, -1, false
}

// ReplaceCard returns a copy of d with the card at c.ID swapped for c.
func (d Deck) ReplaceCard(c Card) (Deck, bool) {
	_, idx, ok := d.FindCard(c.ID)
	if !ok {
		return d, false
	}
	cards := append([]Card(nil), d.Cards...)
	cards[idx] = c
	d.Cards = cards
	return d, true
}

// DueCards returns the unarchived cards of d (not its sub-decks) that are
// new or due on or before now.
func DueCards(d Deck, now time.Time) []Card {
	today := model.StartOfDay(now, nil)
	out := make([]Card, 0)
	for _, c := range d.Cards {
		if c.Archived {
			continue
		}
		if c.DueDate == "" {
			out = append(out, c)
			continue
		}
		due, err := model.ParseDate(c.DueDate, now.Location())
		if err != nil || !due.After(today) {
			out = append(out, c)
		}
	}
	return out
}

// AllDueCards collects DueCards across d and every nested sub-deck.
func AllDueCards(decks []Deck, now time.Time) []Card {
	out := make([]Card, 0)
	goaltree.Walk(decks, func(d Deck, _ string, _ int) bool {
		out = append(out, DueCards(d, now)...)
		return true
	})
	return out
}

// Archive marks cards whose interval reached minInterval days as archived
// and returns the new deck together with the number of cards moved.
func Archive(d Deck, minInterval int) (Deck, int) {
	if minInterval <= 0 {
		return d, 0
	}
	cards := make([]Card, len(d.Cards))
	moved := 0
	for i, c := range d.Cards {
		if !c.Archived && c.Interval >= minInterval {
			c.Archived = true
			moved++
		}
		cards[i] = c
	}
	d.Cards = cards
	return d, moved
}

// Restore brings an archived card back into rotation, due today.
func Restore(d Deck, cardID string, now time.Time) (Deck, bool) {
	c, _, ok := d.FindCard(cardID)
	if !ok || !c.Archived {
		return d, false
	}
	c.Archived = false
	c.DueDate = model.DateKey(now)
	return d.ReplaceCard(c)
}

// Stats summarizes a deck without its sub-decks.
type Stats struct {
	Total    int `json:"total"`
	New      int `json:"new"`
	Due      int `json:"due"`
	Archived int `json:"archived"`
}

func DeckStats(d Deck, now time.Time) Stats {
	s := Stats{Total: len(d.Cards), Due: len(DueCards(d, now))}
	for _, c := range d.Cards {
		if c.Archived {
			s.Archived++
		} else if c.IsNew() {
			s.New++
		}
	}
	return s
}
