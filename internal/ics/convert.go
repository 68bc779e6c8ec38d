package ics

import (
	"errors"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	appLog "studyverse/internal/log"
	"studyverse/internal/model"
)

const (
	uidSuffix                 = "@studyverse"
	defaultMaxOccurrences     = 500
	defaultMaterializeHorizon = 365 * 24 * time.Hour
)

// ConvertConfig controls how parsed events become goals.
type ConvertConfig struct {
	// Location is the zone used for goal dates and times of day.
	Location *time.Location

	// RangeStart / RangeEnd bound the occurrences materialized for rules
	// that have no RecurrenceRule equivalent. Zero values default to
	// [now - 1 year, now + 1 year].
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrences caps materialized occurrences per event.
	MaxOccurrences int
}

// ToGoals converts parsed events into goals. Representable RRULEs become
// recurring goals with EXDATEs as exceptions; RECURRENCE-ID overrides become
// detached goals pointing at their series. Anything else is materialized
// into one goal per occurrence inside the configured range.
func ToGoals(events []ParsedEvent, cfg ConvertConfig) []model.Goal {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	now := time.Now().In(cfg.Location)
	if cfg.RangeStart.IsZero() {
		cfg.RangeStart = now.Add(-defaultMaterializeHorizon)
	}
	if cfg.RangeEnd.IsZero() {
		cfg.RangeEnd = now.Add(defaultMaterializeHorizon)
	}
	if cfg.MaxOccurrences <= 0 {
		cfg.MaxOccurrences = defaultMaxOccurrences
	}

	goals := make([]model.Goal, 0, len(events))
	seriesIdx := make(map[string]int)

	for _, ev := range events {
		if ev.IsOverride() {
			continue
		}
		base := baseGoal(ev, cfg.Location)
		if ev.RawRRule == "" {
			goals = append(goals, base)
			continue
		}

		start := ev.Start.In(cfg.Location)
		rule, err := RuleFromRRule(ev.RawRRule, start)
		if err == nil {
			base.Recurrence = &rule
			for _, ex := range ev.ExDates {
				base.RecurrenceExceptions = appendUnique(base.RecurrenceExceptions, model.DateKey(ex.In(cfg.Location)))
			}
			seriesIdx[ev.UID] = len(goals)
			goals = append(goals, base)
			continue
		}
		if !errors.Is(err, ErrUnsupportedRule) {
			appLog.Error("ics rrule rejected; event skipped", err, "uid", ev.UID, "rrule", ev.RawRRule)
			continue
		}
		goals = append(goals, materialize(ev, base, cfg)...)
	}

	for _, ev := range events {
		if !ev.IsOverride() {
			continue
		}
		g := baseGoal(ev, cfg.Location)
		ridKey := model.DateKey(ev.Recurrence.In(cfg.Location))
		g.ID = g.ID + "-" + ridKey
		if idx, ok := seriesIdx[ev.UID]; ok {
			series := &goals[idx]
			series.RecurrenceExceptions = appendUnique(series.RecurrenceExceptions, ridKey)
			g.RecurrenceID = series.ID
		}
		goals = append(goals, g)
	}

	return goals
}

// baseGoal maps the event's own fields; recurrence is handled by the caller.
func baseGoal(ev ParsedEvent, loc *time.Location) model.Goal {
	start := ev.Start.In(loc)
	g := model.Goal{
		ID:        goalID(ev),
		Text:      ev.Summary,
		Completed: ev.Completed,
		DueDate:   model.DateKey(start),
		Source:    ev.Source.ID,
	}
	if strings.TrimSpace(g.Text) == "" {
		g.Text = "(untitled)"
	}
	if ev.RelatedTo != "" {
		g.RecurrenceID = strings.TrimSuffix(ev.RelatedTo, uidSuffix)
	}
	if !ev.AllDay {
		g.StartTime = start.Format("15:04")
		if end := ev.End.In(loc); end.After(start) && model.DateKey(end) == g.DueDate {
			g.EndTime = end.Format("15:04")
		}
	}
	for _, c := range ev.Categories {
		g.Tags = appendUnique(g.Tags, c)
	}
	if ev.Source.Name != "" {
		g.Tags = appendUnique(g.Tags, ev.Source.Name)
	}
	return g
}

// goalID strips our own UID suffix and namespaces subscription events by
// their source id.
func goalID(ev ParsedEvent) string {
	id := strings.TrimSuffix(ev.UID, uidSuffix)
	if ev.Source.ID != "" {
		return ev.Source.ID + ":" + id
	}
	return id
}

// materialize expands an RRULE the goal model cannot express into one-off
// goals, honoring EXDATEs.
func materialize(ev ParsedEvent, base model.Goal, cfg ConvertConfig) []model.Goal {
	out := make([]model.Goal, 0)

	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("ics rrule parse failed", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return out
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	times := set.Between(cfg.RangeStart.In(ev.Start.Location()), cfg.RangeEnd.In(ev.Start.Location()), true)
	if len(times) > cfg.MaxOccurrences {
		appLog.Error("ics occurrences truncated", errors.New("max occurrences reached"), "uid", ev.UID, "cap", cfg.MaxOccurrences)
		times = times[:cfg.MaxOccurrences]
	}

	for _, t := range times {
		local := t.In(cfg.Location)
		key := model.DateKey(local)
		g := base.Clone()
		g.ID = base.ID + "-" + key
		g.DueDate = key
		g.RecurrenceID = base.ID
		if !ev.AllDay {
			g.StartTime = local.Format("15:04")
			if g.EndTime != "" {
				g.EndTime = local.Add(ev.End.Sub(ev.Start)).Format("15:04")
			}
		}
		out = append(out, g)
	}
	return out
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
