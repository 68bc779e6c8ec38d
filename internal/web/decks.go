package web

import (
	"context"
	"fmt"
	"net/http"

	"studyverse/internal/flashcards"
	"studyverse/internal/store"
)

type createDeckRequest struct {
	ParentID string `json:"parentId,omitempty"`
	flashcards.Deck
}

type deckResponse struct {
	Deck  flashcards.Deck  `json:"deck"`
	Stats flashcards.Stats `json:"stats"`
}

type reviewRequest struct {
	Rating flashcards.Rating `json:"rating"`
}

type archiveRequest struct {
	// MinInterval overrides flashcards.archive_interval_days.
	MinInterval int `json:"minInterval,omitempty"`
}

type archiveResponse struct {
	Archived int             `json:"archived"`
	Deck     flashcards.Deck `json:"deck"`
}

type extractRequest struct {
	Text string `json:"text"`
	Max  int    `json:"max,omitempty"`
}

type extractResponse struct {
	Added int               `json:"added"`
	Cards []flashcards.Card `json:"cards"`
	Deck  flashcards.Deck   `json:"deck"`
}

func (s *Server) handleListDecks(w http.ResponseWriter, r *http.Request) {
	decks, err := s.store.ListDecks(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if decks == nil {
		decks = []flashcards.Deck{}
	}
	writeJSON(w, http.StatusOK, decks)
}

func (s *Server) handleCreateDeck(w http.ResponseWriter, r *http.Request) {
	var req createDeckRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := s.store.CreateDeck(r.Context(), req.ParentID, req.Deck)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetDeck(w http.ResponseWriter, r *http.Request) {
	d, err := s.store.GetDeck(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deckResponse{Deck: d, Stats: flashcards.DeckStats(d, s.now().In(s.loc))})
}

func (s *Server) handleDeleteDeck(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteDeck(r.Context(), r.PathValue("id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/decks/{id}/due[?all=1] lists cards due today; all=1 includes
// sub-decks.
func (s *Server) handleDueCards(w http.ResponseWriter, r *http.Request) {
	d, err := s.store.GetDeck(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	now := s.now().In(s.loc)
	var cards []flashcards.Card
	if r.URL.Query().Get("all") == "1" {
		cards = flashcards.AllDueCards([]flashcards.Deck{d}, now)
	} else {
		cards = flashcards.DueCards(d, now)
	}
	writeJSON(w, http.StatusOK, cards)
}

func (s *Server) handleReviewCard(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cardID := r.PathValue("cardID")
	now := s.now().In(s.loc)

	var reviewed flashcards.Card
	_, err := s.mutateDeck(r.Context(), r.PathValue("id"), func(d flashcards.Deck) (flashcards.Deck, error) {
		c, _, ok := d.FindCard(cardID)
		if !ok {
			return d, fmt.Errorf("card %s: %w", cardID, store.ErrNotFound)
		}
		next, err := flashcards.Review(c, req.Rating, now)
		if err != nil {
			return d, err
		}
		reviewed = next
		d, _ = d.ReplaceCard(next)
		return d, nil
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reviewed)
}

func (s *Server) handleRestoreCard(w http.ResponseWriter, r *http.Request) {
	cardID := r.PathValue("cardID")
	now := s.now().In(s.loc)

	saved, err := s.mutateDeck(r.Context(), r.PathValue("id"), func(d flashcards.Deck) (flashcards.Deck, error) {
		next, ok := flashcards.Restore(d, cardID, now)
		if !ok {
			return d, fmt.Errorf("archived card %s: %w", cardID, store.ErrNotFound)
		}
		return next, nil
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleArchiveDeck(w http.ResponseWriter, r *http.Request) {
	var req archiveRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	minInterval := req.MinInterval
	if minInterval <= 0 {
		minInterval = s.cfg.Flashcards.ArchiveIntervalDays
	}

	moved := 0
	saved, err := s.mutateDeck(r.Context(), r.PathValue("id"), func(d flashcards.Deck) (flashcards.Deck, error) {
		var next flashcards.Deck
		next, moved = flashcards.Archive(d, minInterval)
		return next, nil
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, archiveResponse{Archived: moved, Deck: saved})
}

// POST /api/decks/{id}/extract mines cards from pasted text and appends
// them to the deck.
func (s *Server) handleExtractCards(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	cards := flashcards.ExtractCards(req.Text, req.Max)

	saved, err := s.mutateDeck(r.Context(), r.PathValue("id"), func(d flashcards.Deck) (flashcards.Deck, error) {
		d.Cards = append(append([]flashcards.Card(nil), d.Cards...), cards...)
		return d, nil
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, extractResponse{Added: len(cards), Cards: cards, Deck: saved})
}

// mutateDeck loads a deck (top-level or nested), applies fn and saves the
// result under deckMu.
func (s *Server) mutateDeck(ctx context.Context, id string, fn func(flashcards.Deck) (flashcards.Deck, error)) (flashcards.Deck, error) {
	s.deckMu.Lock()
	defer s.deckMu.Unlock()

	d, err := s.store.GetDeck(ctx, id)
	if err != nil {
		return flashcards.Deck{}, err
	}
	next, err := fn(d)
	if err != nil {
		return flashcards.Deck{}, err
	}
	// Card operations never touch sub-decks; keep the stored ones.
	next.ID = d.ID
	next.SubDecks = d.SubDecks
	return s.store.SaveDeck(ctx, next)
}
