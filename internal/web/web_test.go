package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyverse/internal/ai"
	"studyverse/internal/config"
	"studyverse/internal/flashcards"
	"studyverse/internal/ics"
	"studyverse/internal/model"
	"studyverse/internal/store"
)

// Wednesday.
var fixedNow = time.Date(2024, 8, 7, 10, 0, 0, 0, time.UTC)

type harness struct {
	t      *testing.T
	srv    *httptest.Server
	store  *store.MemoryStore
	server *Server
}

func newHarness(t *testing.T, mutate func(*Options)) *harness {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"

	st := store.NewMemoryStore()
	opts := Options{
		Config: cfg,
		Store:  st,
		Flows:  ai.NewFlows(ai.Chain{Fallback: ai.DefaultFallback()}),
		Now:    func() time.Time { return fixedNow },
	}
	if mutate != nil {
		mutate(&opts)
	}
	server := NewServer(opts)
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)
	return &harness{t: t, srv: srv, store: st, server: server}
}

func (h *harness) do(method, path string, body any) *http.Response {
	h.t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(h.t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, r)
	require.NoError(h.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := h.srv.Client().Do(req)
	require.NoError(h.t, err)
	h.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func eventDates(events []model.CalendarEvent) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.InstanceDate)
	}
	return out
}

func TestHealthAndBasicAuth(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.Config.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "pw"}
	})

	resp := h.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = h.do(http.MethodGet, "/api/goals", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("WWW-Authenticate"), "Basic")

	req, err := http.NewRequest(http.MethodGet, h.srv.URL+"/api/goals", nil)
	require.NoError(t, err)
	req.SetBasicAuth("admin", "pw")
	ok, err := h.srv.Client().Do(req)
	require.NoError(t, err)
	defer ok.Body.Close()
	assert.Equal(t, http.StatusOK, ok.StatusCode)
}

func TestGoalLifecycleAndEvents(t *testing.T) {
	h := newHarness(t, nil)

	resp := h.do(http.MethodPost, "/api/goals", model.Goal{
		Text:       "Gym",
		DueDate:    "2024-08-05",
		StartTime:  "18:00",
		Recurrence: &model.RecurrenceRule{Frequency: model.FrequencyWeekly},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	gym := decode[model.Goal](t, resp)
	require.NotEmpty(t, gym.ID)

	events := func() []model.CalendarEvent {
		resp := h.do(http.MethodGet, "/api/events?start=2024-08-01&end=2024-08-31", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		return decode[eventsResponse](t, resp).Events
	}
	assert.Equal(t, []string{"2024-08-05", "2024-08-12", "2024-08-19", "2024-08-26"}, eventDates(events()))

	resp = h.do(http.MethodPost, "/api/goals/"+gym.ID+"/exceptions", exceptionRequest{Date: "2024-08-12"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"2024-08-05", "2024-08-19", "2024-08-26"}, eventDates(events()), "cache dropped after write")

	resp = h.do(http.MethodPost, "/api/goals/"+gym.ID+"/occurrences/2024-08-19", model.Goal{StartTime: "07:00"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	detached := decode[model.Goal](t, resp)
	assert.Equal(t, gym.ID, detached.RecurrenceID)

	got := events()
	assert.Equal(t, []string{"2024-08-05", "2024-08-26", "2024-08-19"}, eventDates(got))
	assert.Equal(t, gym.ID+"-2024-08-05", got[0].ID)
	assert.Equal(t, "07:00", got[2].StartTime)

	gym.Text = "Gym (legs)"
	resp = h.do(http.MethodPut, "/api/goals/"+gym.ID, gym)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = h.do(http.MethodGet, "/api/goals/"+gym.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Gym (legs)", decode[model.Goal](t, resp).Text)

	resp = h.do(http.MethodDelete, "/api/goals/"+gym.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = h.do(http.MethodGet, "/api/goals/"+gym.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGoalErrors(t *testing.T) {
	h := newHarness(t, nil)

	resp := h.do(http.MethodPost, "/api/goals", model.Goal{Text: ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = h.do(http.MethodPost, "/api/goals", createGoalRequest{ParentID: "missing", Goal: model.Goal{Text: "x"}})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = h.do(http.MethodPost, "/api/goals", model.Goal{Text: "Essay", DueDate: "2024-08-20"})
	essay := decode[model.Goal](t, resp)
	resp = h.do(http.MethodPost, "/api/goals/"+essay.ID+"/exceptions", exceptionRequest{Date: "2024-08-20"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = h.do(http.MethodPost, "/api/goals/"+essay.ID+"/exceptions", exceptionRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = h.do(http.MethodPost, "/api/goals/"+essay.ID+"/occurrences/not-a-date", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPost, h.srv.URL+"/api/goals", strings.NewReader("{broken"))
	require.NoError(t, err)
	bad, err := h.srv.Client().Do(req)
	require.NoError(t, err)
	defer bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestEventsWindowDefaultsAndErrors(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.store.CreateGoal(ctx, "", model.Goal{
		Text:    "Thesis",
		DueDate: "2024-09-30",
		SubGoals: []model.Goal{
			{Text: "Outline", DueDate: "2024-08-06"},
		},
	})
	require.NoError(t, err)

	resp := h.do(http.MethodGet, "/api/events", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	week := decode[eventsResponse](t, resp)
	assert.Equal(t, "2024-08-05", week.RangeStart)
	assert.Equal(t, "2024-08-11", week.RangeEnd)
	require.Len(t, week.Events, 1)
	assert.Equal(t, "Outline", week.Events[0].Text)

	resp = h.do(http.MethodGet, "/api/events?start=2024-08-31&end=2024-08-01", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[eventsResponse](t, resp).Events)

	resp = h.do(http.MethodGet, "/api/events?start=garbage", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWeekStart(t *testing.T) {
	wed := time.Date(2024, 8, 7, 15, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-08-05", model.DateKey(weekStart(wed, "monday")))
	assert.Equal(t, "2024-08-04", model.DateKey(weekStart(wed, "sunday")))

	sun := time.Date(2024, 8, 11, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-08-05", model.DateKey(weekStart(sun, "monday")))
	assert.Equal(t, "2024-08-11", model.DateKey(weekStart(sun, "sunday")))
}

func TestCalendarICS(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.store.CreateGoal(context.Background(), "", model.Goal{
		ID:         "gym",
		Text:       "Gym",
		DueDate:    "2024-08-05",
		Recurrence: &model.RecurrenceRule{Frequency: model.FrequencyWeekly},
	})
	require.NoError(t, err)

	resp := h.do(http.MethodGet, "/api/calendar.ics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/calendar")
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "UID:gym@studyverse")
	assert.Contains(t, string(body), "RRULE:")
}

func TestSubscriptionGoalsAreReadOnly(t *testing.T) {
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//test//EN\r\n" +
			"BEGIN:VEVENT\r\nUID:exam\r\nDTSTAMP:20240101T000000Z\r\nDTSTART;VALUE=DATE:20240808\r\nSUMMARY:Exam\r\nEND:VEVENT\r\n" +
			"END:VCALENDAR\r\n"))
	}))
	defer feed.Close()

	feeds := ics.NewFeedCache(
		ics.NewFetcher(t.TempDir(), feed.Client()),
		[]ics.Source{{ID: "uni", Name: "University", URL: feed.URL + "/uni.ics"}},
		ics.ConvertConfig{Location: time.UTC},
	)
	require.NoError(t, feeds.Refresh(context.Background()))

	h := newHarness(t, func(o *Options) { o.Feeds = feeds })

	resp := h.do(http.MethodGet, "/api/goals/uni:exam", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "uni", decode[model.Goal](t, resp).Source)

	resp = h.do(http.MethodPut, "/api/goals/uni:exam", model.Goal{Text: "hacked"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp = h.do(http.MethodDelete, "/api/goals/uni:exam", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = h.do(http.MethodGet, "/api/events", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	events := decode[eventsResponse](t, resp).Events
	require.Len(t, events, 1)
	assert.Equal(t, "Exam", events[0].Text)

	resp = h.do(http.MethodGet, "/api/goals", nil)
	assert.Empty(t, decode[[]model.Goal](t, resp))
	resp = h.do(http.MethodGet, "/api/goals?subscribed=1", nil)
	assert.Len(t, decode[[]model.Goal](t, resp), 1)
}

func TestDeckFlow(t *testing.T) {
	h := newHarness(t, nil)

	resp := h.do(http.MethodPost, "/api/decks", flashcards.Deck{
		Name:  "Biology",
		Cards: []flashcards.Card{{Front: "Cell", Back: "Basic unit of life"}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	deck := decode[flashcards.Deck](t, resp)
	cardID := deck.Cards[0].ID

	resp = h.do(http.MethodGet, "/api/decks/"+deck.ID+"/due", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]flashcards.Card](t, resp), 1)

	resp = h.do(http.MethodPost, "/api/decks/"+deck.ID+"/cards/"+cardID+"/review", reviewRequest{Rating: flashcards.RatingGood})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	card := decode[flashcards.Card](t, resp)
	assert.Equal(t, 1, card.Interval)
	assert.Equal(t, "2024-08-08", card.DueDate)

	resp = h.do(http.MethodGet, "/api/decks/"+deck.ID+"/due", nil)
	assert.Empty(t, decode[[]flashcards.Card](t, resp))

	resp = h.do(http.MethodPost, "/api/decks/"+deck.ID+"/cards/"+cardID+"/review", reviewRequest{Rating: "meh"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = h.do(http.MethodPost, "/api/decks/"+deck.ID+"/cards/missing/review", reviewRequest{Rating: flashcards.RatingGood})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = h.do(http.MethodPost, "/api/decks/"+deck.ID+"/archive", archiveRequest{MinInterval: 1})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	archived := decode[archiveResponse](t, resp)
	assert.Equal(t, 1, archived.Archived)
	assert.True(t, archived.Deck.Cards[0].Archived)

	resp = h.do(http.MethodPost, "/api/decks/"+deck.ID+"/cards/"+cardID+"/restore", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	restored := decode[flashcards.Deck](t, resp)
	assert.False(t, restored.Cards[0].Archived)
	assert.Equal(t, "2024-08-07", restored.Cards[0].DueDate)

	resp = h.do(http.MethodPost, "/api/decks/"+deck.ID+"/extract", extractRequest{Text: "Q: What is ATP?\nA: The energy currency of the cell."})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	extracted := decode[extractResponse](t, resp)
	assert.Equal(t, 1, extracted.Added)
	assert.Len(t, extracted.Deck.Cards, 2)

	resp = h.do(http.MethodGet, "/api/decks/"+deck.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stats := decode[deckResponse](t, resp).Stats
	assert.Equal(t, 2, stats.Total)

	resp = h.do(http.MethodDelete, "/api/decks/"+deck.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = h.do(http.MethodGet, "/api/decks", nil)
	assert.Empty(t, decode[[]flashcards.Deck](t, resp))
}

func TestAIEndpoints(t *testing.T) {
	h := newHarness(t, nil)

	resp := h.do(http.MethodPost, "/api/ai/buddy", ai.BuddyInput{Question: "What is entropy?"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[aiResponse[string]](t, resp)
	assert.Equal(t, ai.SourceFallback, got.Source)
	assert.NotEmpty(t, got.Value)

	resp = h.do(http.MethodPost, "/api/ai/resources", ai.ResourceInput{Topic: "algebra"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, decode[aiResponse[ai.Recommendations]](t, resp).Value.Resources)

	resp = h.do(http.MethodPost, "/api/ai/exam", ai.ExamInput{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = h.do(http.MethodPost, "/api/ai/poetry", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	failing := newHarness(t, func(o *Options) {
		o.Flows = ai.NewFlows(ai.Chain{Primary: ai.StaticGenerator{}})
	})
	resp = failing.do(http.MethodPost, "/api/ai/book", ai.BookInput{Title: "Dune"})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	disabled := newHarness(t, func(o *Options) { o.Flows = nil })
	resp = disabled.do(http.MethodPost, "/api/ai/buddy", ai.BuddyInput{Question: "hi"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
