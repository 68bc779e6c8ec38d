package recurrence

import (
	"errors"
	"time"

	appLog "studyverse/internal/log"
	"studyverse/internal/model"
)

const (
	defaultMaxOccurrencesPerGoal = 5000
)

// MonthEndPolicy decides what a monthly or yearly series does in months that
// lack its day (a goal due the 31st in April, or Feb 29th in 2025).
type MonthEndPolicy string

const (
	// MonthEndSkip produces no occurrence in such months.
	MonthEndSkip MonthEndPolicy = "skip"
	// MonthEndClamp moves the occurrence to the last day of the month.
	MonthEndClamp MonthEndPolicy = "clamp"
)

// ParseMonthEndPolicy maps a config value to a policy; anything other than
// "clamp" means skip.
func ParseMonthEndPolicy(s string) MonthEndPolicy {
	if MonthEndPolicy(s) == MonthEndClamp {
		return MonthEndClamp
	}
	return MonthEndSkip
}

// ExpandConfig controls how goals are projected onto calendar days.
type ExpandConfig struct {
	// Location is the zone in which calendar days are evaluated.
	// If nil, the location of WindowStart is used.
	Location *time.Location

	// WindowStart / WindowEnd bound the visible days, both inclusive.
	// Only their calendar day matters.
	WindowStart time.Time
	WindowEnd   time.Time

	// Horizon, if non-zero, caps recurring series in addition to WindowEnd
	// and the rule's until date.
	Horizon time.Time

	// MaxOccurrencesPerGoal is a safety cap for a single series. If zero,
	// defaultMaxOccurrencesPerGoal is used.
	MaxOccurrencesPerGoal int

	MonthEnd MonthEndPolicy
}

// ExpandResult wraps the expanded events and the ids of series that hit
// MaxOccurrencesPerGoal.
type ExpandResult struct {
	Events         []model.CalendarEvent
	TruncatedGoals []string
	// Skipped counts goals dropped for a missing or unparsable dueDate.
	Skipped int
}

// Expand returns the calendar events of goals between windowStart and
// windowEnd (inclusive, by calendar day). Goals without a usable dueDate are
// skipped. An inverted window yields no events.
func Expand(goals []model.Goal, windowStart, windowEnd time.Time) []model.CalendarEvent {
	res, err := ExpandWithConfig(goals, ExpandConfig{
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
	})
	if err != nil {
		appLog.Error("expand: invalid window", err,
			"window_start", windowStart.Format(time.RFC3339),
			"window_end", windowEnd.Format(time.RFC3339),
		)
		return []model.CalendarEvent{}
	}
	return res.Events
}

// ExpandWithConfig is Expand with explicit options. Events come out in goal
// order and, within a series, in ascending date order.
func ExpandWithConfig(goals []model.Goal, cfg ExpandConfig) (ExpandResult, error) {
	result := ExpandResult{Events: make([]model.CalendarEvent, 0)}

	if cfg.WindowEnd.Before(cfg.WindowStart) {
		return result, errors.New("expand: WindowEnd is before WindowStart")
	}
	if cfg.Location == nil {
		cfg.Location = cfg.WindowStart.Location()
	}
	if cfg.MaxOccurrencesPerGoal <= 0 {
		cfg.MaxOccurrencesPerGoal = defaultMaxOccurrencesPerGoal
	}
	if cfg.MonthEnd == "" {
		cfg.MonthEnd = MonthEndSkip
	}

	// Location only decides which calendar day an instant falls on. From
	// here on every day is a civil date at midnight UTC.
	w := window{
		first: model.CivilDate(cfg.WindowStart.In(cfg.Location)),
		last:  model.CivilDate(cfg.WindowEnd.In(cfg.Location)),
	}
	if !cfg.Horizon.IsZero() {
		w.horizon = model.CivilDate(cfg.Horizon.In(cfg.Location))
	}

	for _, g := range goals {
		if g.DueDate == "" {
			appLog.Debug("expand: goal has no dueDate; skipped", "goal_id", g.ID)
			result.Skipped++
			continue
		}
		due, err := model.ParseDate(g.DueDate, time.UTC)
		if err != nil {
			appLog.Error("expand: unparsable dueDate; goal skipped", err, "goal_id", g.ID, "due_date", g.DueDate)
			result.Skipped++
			continue
		}

		if !g.IsRecurring() {
			if ev, ok := expandSingle(g, due, w); ok {
				result.Events = append(result.Events, ev)
			}
			continue
		}

		events, hitCap := expandSeries(g, due, w, cfg)
		result.Events = append(result.Events, events...)
		if hitCap {
			result.TruncatedGoals = append(result.TruncatedGoals, g.ID)
			appLog.Error("expand: truncated occurrences for goal due to cap",
				errors.New("max occurrences reached"),
				"goal_id", g.ID,
				"cap", cfg.MaxOccurrencesPerGoal,
			)
		}
	}

	return result, nil
}

// window holds the civil-date bounds of a query.
type window struct {
	first   time.Time
	last    time.Time
	horizon time.Time
}

func (w window) contains(day time.Time) bool {
	return !day.Before(w.first) && !day.After(model.EndOfDay(w.last))
}

func expandSingle(g model.Goal, due time.Time, w window) (model.CalendarEvent, bool) {
	if !w.contains(due) {
		return model.CalendarEvent{}, false
	}
	return model.CalendarEvent{
		Goal:         g.Clone(),
		InstanceDate: model.DateKey(due),
	}, true
}

func expandSeries(g model.Goal, due time.Time, w window, cfg ExpandConfig) ([]model.CalendarEvent, bool) {
	out := make([]model.CalendarEvent, 0)
	rule := g.Recurrence

	last := w.last
	if rule.Until != "" {
		until, err := model.ParseDate(rule.Until, time.UTC)
		if err != nil {
			appLog.Debug("expand: unparsable until; treated as unset", "goal_id", g.ID, "until", rule.Until)
		} else if until.Before(last) {
			last = until
		}
	}
	if !w.horizon.IsZero() && w.horizon.Before(last) {
		last = w.horizon
	}

	first := w.first
	if due.After(first) {
		first = due
	}

	m := newMatcher(rule, due, cfg.MonthEnd)
	exceptions := exceptionSet(g.RecurrenceExceptions)

	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		key := model.DateKey(day)
		if _, skip := exceptions[key]; skip {
			continue
		}
		if !m.matches(day) {
			continue
		}
		if len(out) >= cfg.MaxOccurrencesPerGoal {
			return out, true
		}
		out = append(out, makeInstance(g, key))
	}

	return out, false
}

// makeInstance copies g onto a single day of its series.
func makeInstance(g model.Goal, key string) model.CalendarEvent {
	inst := g.Clone()
	inst.ID = g.ID + "-" + key
	inst.DueDate = key
	inst.RecurrenceID = g.ID
	return model.CalendarEvent{
		Goal:         inst,
		InstanceDate: key,
	}
}

// exceptionSet normalizes exception dates to yyyy-MM-dd keys. Unparsable
// entries are compared verbatim.
func exceptionSet(dates []string) map[string]struct{} {
	set := make(map[string]struct{}, len(dates))
	for _, d := range dates {
		if t, err := model.ParseDate(d, time.UTC); err == nil {
			set[model.DateKey(t)] = struct{}{}
			continue
		}
		set[d] = struct{}{}
	}
	return set
}
