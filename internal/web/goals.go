package web

import (
	"fmt"
	"net/http"

	"studyverse/internal/goaltree"
	"studyverse/internal/model"
	"studyverse/internal/store"
)

type createGoalRequest struct {
	ParentID string `json:"parentId,omitempty"`
	model.Goal
}

type exceptionRequest struct {
	Date string `json:"date"`
}

// GET /api/goals[?subscribed=1]
func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	goals, err := s.store.ListGoals(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if r.URL.Query().Get("subscribed") == "1" {
		goals = append(goals, s.subscriptionGoals()...)
	}
	if goals == nil {
		goals = []model.Goal{}
	}
	writeJSON(w, http.StatusOK, goals)
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	var req createGoalRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Goal.Source = ""

	created, err := s.store.CreateGoal(r.Context(), req.ParentID, req.Goal)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.invalidateEvents()
	writeJSON(w, http.StatusCreated, created)
}

// GET /api/goals/{id} also finds read-only subscription goals.
func (s *Server) handleGetGoal(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	g, err := s.store.GetGoal(r.Context(), id)
	if err == nil {
		writeJSON(w, http.StatusOK, g)
		return
	}
	if sub, ok := goaltree.Find(s.subscriptionGoals(), id); ok {
		writeJSON(w, http.StatusOK, sub)
		return
	}
	writeStoreError(w, err)
}

func (s *Server) handleUpdateGoal(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.rejectSubscription(id); err != nil {
		writeStoreError(w, err)
		return
	}
	var g model.Goal
	if err := decodeBody(w, r, &g); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	g.ID = id
	g.Source = ""

	updated, err := s.store.UpdateGoal(r.Context(), g)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.invalidateEvents()
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteGoal(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.rejectSubscription(id); err != nil {
		writeStoreError(w, err)
		return
	}
	if err := s.store.DeleteGoal(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	s.invalidateEvents()
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/goals/{id}/exceptions {"date": "yyyy-MM-dd"} deletes one
// occurrence of a series.
func (s *Server) handleAddException(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.rejectSubscription(id); err != nil {
		writeStoreError(w, err)
		return
	}
	var req exceptionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Date == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}

	updated, err := s.store.AddException(r.Context(), id, req.Date)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.invalidateEvents()
	writeJSON(w, http.StatusOK, updated)
}

// POST /api/goals/{id}/occurrences/{date} edits one occurrence. The body is
// an optional goal patch.
func (s *Server) handleDetachOccurrence(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.rejectSubscription(id); err != nil {
		writeStoreError(w, err)
		return
	}
	date := r.PathValue("date")
	if _, err := model.ParseDate(date, s.loc); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid date %q", date))
		return
	}
	var patch model.Goal
	if err := decodeBody(w, r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	detached, err := s.store.DetachOccurrence(r.Context(), id, date, patch)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.invalidateEvents()
	writeJSON(w, http.StatusCreated, detached)
}

func (s *Server) subscriptionGoals() []model.Goal {
	if s.feeds == nil {
		return nil
	}
	return s.feeds.Goals()
}

func (s *Server) rejectSubscription(id string) error {
	if _, ok := goaltree.Find(s.subscriptionGoals(), id); ok {
		return fmt.Errorf("%w: %s", store.ErrReadOnly, id)
	}
	return nil
}
