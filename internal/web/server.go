package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"studyverse/internal/ai"
	"studyverse/internal/config"
	"studyverse/internal/flashcards"
	"studyverse/internal/ics"
	appLog "studyverse/internal/log"
	"studyverse/internal/model"
	"studyverse/internal/store"
)

const maxBodyBytes = 4 << 20

// Options wires the server to its collaborators. Feeds and Flows may be nil.
type Options struct {
	Config *config.Config
	Store  store.Store
	Feeds  *ics.FeedCache
	Flows  *ai.Flows
	// Now defaults to time.Now.
	Now func() time.Time
}

// Server exposes goals, calendar events, flashcard decks and AI flows over
// JSON HTTP endpoints.
type Server struct {
	cfg   *config.Config
	store store.Store
	feeds *ics.FeedCache
	flows *ai.Flows
	now   func() time.Time
	loc   *time.Location
	mux   *http.ServeMux

	// Expanded /api/events responses, dropped whenever a goal changes.
	eventsMu    sync.RWMutex
	eventsCache map[string]eventsCacheEntry
	generation  uint64

	// Serializes read-modify-write cycles on decks (reviews, archive).
	deckMu sync.Mutex
}

// NewServer constructs a Server with its routes registered.
func NewServer(opts Options) *Server {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	s := &Server{
		cfg:         cfg,
		store:       opts.Store,
		feeds:       opts.Feeds,
		flows:       opts.Flows,
		now:         now,
		loc:         cfg.Location(),
		mux:         http.NewServeMux(),
		eventsCache: make(map[string]eventsCacheEntry),
	}
	s.registerRoutes()
	return s
}

// Handler returns the server's http.Handler including request logging and,
// when configured, basic auth.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		h = s.basicAuthMiddleware(h)
	}
	return logRequests(h)
}

// ListenAndServe serves on cfg.Listen until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("GET /api/goals", s.handleListGoals)
	s.mux.HandleFunc("POST /api/goals", s.handleCreateGoal)
	s.mux.HandleFunc("GET /api/goals/{id}", s.handleGetGoal)
	s.mux.HandleFunc("PUT /api/goals/{id}", s.handleUpdateGoal)
	s.mux.HandleFunc("DELETE /api/goals/{id}", s.handleDeleteGoal)
	s.mux.HandleFunc("POST /api/goals/{id}/exceptions", s.handleAddException)
	s.mux.HandleFunc("POST /api/goals/{id}/occurrences/{date}", s.handleDetachOccurrence)

	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("GET /api/calendar.ics", s.handleCalendarICS)

	s.mux.HandleFunc("GET /api/decks", s.handleListDecks)
	s.mux.HandleFunc("POST /api/decks", s.handleCreateDeck)
	s.mux.HandleFunc("GET /api/decks/{id}", s.handleGetDeck)
	s.mux.HandleFunc("DELETE /api/decks/{id}", s.handleDeleteDeck)
	s.mux.HandleFunc("GET /api/decks/{id}/due", s.handleDueCards)
	s.mux.HandleFunc("POST /api/decks/{id}/cards/{cardID}/review", s.handleReviewCard)
	s.mux.HandleFunc("POST /api/decks/{id}/cards/{cardID}/restore", s.handleRestoreCard)
	s.mux.HandleFunc("POST /api/decks/{id}/archive", s.handleArchiveDeck)
	s.mux.HandleFunc("POST /api/decks/{id}/extract", s.handleExtractCards)

	s.mux.HandleFunc("POST /api/ai/{flow}", s.handleAI)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) basicAuthEnabled() bool {
	return s.cfg.BasicAuth != nil && s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware guards everything except /health.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Studyverse", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		appLog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"elapsed", time.Since(started).String(),
		)
	})
}

// decodeBody reads a JSON request body into v. An empty body leaves v as is.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

// writeStoreError maps domain errors onto HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrReadOnly):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, store.ErrNotRecurring):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, model.ErrInvalidGoal),
		errors.Is(err, flashcards.ErrInvalidDeck),
		errors.Is(err, flashcards.ErrUnknownRating),
		errors.Is(err, ai.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		appLog.Error("api request failed", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
