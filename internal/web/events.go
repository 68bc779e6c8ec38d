package web

import (
	"fmt"
	"net/http"
	"time"

	"studyverse/internal/ics"
	appLog "studyverse/internal/log"
	"studyverse/internal/model"
	"studyverse/internal/recurrence"
)

const eventsCacheTTL = 30 * time.Second

type eventsResponse struct {
	Events          []model.CalendarEvent `json:"events"`
	TruncatedGoals  []string              `json:"truncatedGoals,omitempty"`
	RangeStart      string                `json:"rangeStart"`
	RangeEnd        string                `json:"rangeEnd"`
	DisplayTimeZone string                `json:"displayTimeZone"`
	WeekStart       string                `json:"weekStart"`
}

type eventsCacheEntry struct {
	resp       eventsResponse
	updatedAt  time.Time
	generation uint64
	feedsAt    time.Time
}

// GET /api/events?start=yyyy-MM-dd&end=yyyy-MM-dd
//
// Both bounds are inclusive calendar days in the configured timezone. A
// missing start means the current week; a missing end means start + 6 days.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, end, err := s.eventsWindow(q.Get("start"), q.Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	key := model.DateKey(start) + "|" + model.DateKey(end)
	now := s.now()
	if resp, ok := s.cachedEvents(key, now); ok {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	s.eventsMu.RLock()
	gen := s.generation
	s.eventsMu.RUnlock()

	goals, err := s.store.ListGoals(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	goals = append(goals, s.subscriptionGoals()...)

	expandCfg := recurrence.ExpandConfig{
		Location:              s.loc,
		WindowStart:           start,
		WindowEnd:             end,
		MaxOccurrencesPerGoal: s.cfg.Calendar.MaxOccurrences,
		MonthEnd:              recurrence.ParseMonthEndPolicy(s.cfg.Calendar.MonthEnd),
		Horizon:               s.cfg.Calendar.Horizon(now, s.loc),
	}

	resp := eventsResponse{
		Events:          []model.CalendarEvent{},
		RangeStart:      model.DateKey(start),
		RangeEnd:        model.DateKey(end),
		DisplayTimeZone: s.loc.String(),
		WeekStart:       s.cfg.WeekStart,
	}
	// An inverted window is not an error; it simply has no events.
	if !end.Before(start) {
		result, err := recurrence.ExpandWithConfig(recurrence.Flatten(goals), expandCfg)
		if err != nil {
			appLog.Error("api events: expand failed", err)
			writeError(w, http.StatusInternalServerError, "failed to expand events")
			return
		}
		resp.Events = result.Events
		resp.TruncatedGoals = result.TruncatedGoals
	}

	appLog.Debug("api events request",
		"range_start", resp.RangeStart,
		"range_end", resp.RangeEnd,
		"goal_count", len(goals),
		"event_count", len(resp.Events),
	)

	s.eventsMu.Lock()
	s.eventsCache[key] = eventsCacheEntry{
		resp:       resp,
		updatedAt:  now,
		generation: gen,
		feedsAt:    s.feedsRefreshedAt(),
	}
	s.eventsMu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

// GET /api/calendar.ics[?subscribed=1]
func (s *Server) handleCalendarICS(w http.ResponseWriter, r *http.Request) {
	goals, err := s.store.ListGoals(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	subscribed := r.URL.Query().Get("subscribed") == "1"
	if subscribed {
		goals = append(goals, s.subscriptionGoals()...)
	}

	body, err := ics.Export(goals, ics.ExportOptions{
		Location:          s.loc,
		Now:               s.now(),
		IncludeSubscribed: subscribed,
	})
	if err != nil {
		appLog.Error("api calendar.ics: export failed", err)
		writeError(w, http.StatusInternalServerError, "failed to export calendar")
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="studyverse.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) eventsWindow(startParam, endParam string) (time.Time, time.Time, error) {
	var start time.Time
	if startParam == "" {
		start = weekStart(s.now().In(s.loc), s.cfg.WeekStart)
	} else {
		d, err := model.ParseDate(startParam, s.loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid start %q", startParam)
		}
		start = d
	}

	if endParam == "" {
		return start, model.AddDays(start, 6), nil
	}
	end, err := model.ParseDate(endParam, s.loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end %q", endParam)
	}
	return start, end, nil
}

// weekStart returns the start of the first day of t's week.
func weekStart(t time.Time, first string) time.Time {
	offset := int(t.Weekday())
	if first != "sunday" {
		offset = (offset + 6) % 7
	}
	return model.AddDays(t, -offset)
}

func (s *Server) cachedEvents(key string, now time.Time) (eventsResponse, bool) {
	s.eventsMu.RLock()
	defer s.eventsMu.RUnlock()
	entry, ok := s.eventsCache[key]
	if !ok || entry.generation != s.generation || now.Sub(entry.updatedAt) >= eventsCacheTTL {
		return eventsResponse{}, false
	}
	if !entry.feedsAt.Equal(s.feedsRefreshedAt()) {
		return eventsResponse{}, false
	}
	return entry.resp, true
}

// invalidateEvents drops cached expansions after a goal write.
func (s *Server) invalidateEvents() {
	s.eventsMu.Lock()
	s.generation++
	clear(s.eventsCache)
	s.eventsMu.Unlock()
}

func (s *Server) feedsRefreshedAt() time.Time {
	if s.feeds == nil {
		return time.Time{}
	}
	return s.feeds.RefreshedAt()
}
