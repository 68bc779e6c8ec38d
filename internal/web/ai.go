package web

import (
	"errors"
	"net/http"

	"studyverse/internal/ai"
)

type aiResponse[T any] struct {
	Value  T         `json:"value"`
	Source ai.Source `json:"source"`
}

// POST /api/ai/{flow} where flow is exam, book, buddy or resources. The body
// is the flow's input document.
func (s *Server) handleAI(w http.ResponseWriter, r *http.Request) {
	if s.flows == nil {
		writeError(w, http.StatusServiceUnavailable, "AI flows are not configured")
		return
	}

	ctx := r.Context()
	switch flow := r.PathValue("flow"); flow {
	case ai.FlowExam:
		var in ai.ExamInput
		if decodeAIInput(w, r, &in) {
			writeAIResult(w, s.flows.AnalyzeExam(ctx, in))
		}
	case ai.FlowBook:
		var in ai.BookInput
		if decodeAIInput(w, r, &in) {
			writeAIResult(w, s.flows.AnalyzeBook(ctx, in))
		}
	case ai.FlowBuddy:
		var in ai.BuddyInput
		if decodeAIInput(w, r, &in) {
			writeAIResult(w, s.flows.AskStudyBuddy(ctx, in))
		}
	case ai.FlowResources:
		var in ai.ResourceInput
		if decodeAIInput(w, r, &in) {
			writeAIResult(w, s.flows.RecommendResources(ctx, in))
		}
	default:
		writeError(w, http.StatusNotFound, "unknown AI flow "+flow)
	}
}

func decodeAIInput(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := decodeBody(w, r, v); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func writeAIResult[T any](w http.ResponseWriter, res ai.Result[T]) {
	if res.IsOk() {
		writeJSON(w, http.StatusOK, aiResponse[T]{Value: res.Value, Source: res.Source})
		return
	}
	if errors.Is(res.Err, ai.ErrInvalidInput) {
		writeError(w, http.StatusBadRequest, res.Err.Error())
		return
	}
	writeError(w, http.StatusBadGateway, "AI generation failed")
}
