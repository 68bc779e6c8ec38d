package ics

import (
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"studyverse/internal/goaltree"
	appLog "studyverse/internal/log"
	"studyverse/internal/model"
)

const defaultProductID = "-//studyverse//garden//EN"

// ExportOptions controls Export.
type ExportOptions struct {
	// Location is the zone goal dates and times are read in.
	Location *time.Location
	// Now stamps DTSTAMP; zero means time.Now().
	Now       time.Time
	ProductID string
	// IncludeSubscribed also exports goals imported from ICS feeds.
	IncludeSubscribed bool
}

// Export renders every dated goal of the forest as a VEVENT. Recurring goals
// keep their rule as an RRULE with EXDATEs, so the calendar stays compact
// instead of listing occurrences. Goals without a dueDate are left out.
func Export(goals []model.Goal, opts ExportOptions) ([]byte, error) {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	if opts.ProductID == "" {
		opts.ProductID = defaultProductID
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(opts.ProductID)

	var (
		exported int
		firstErr error
	)
	goaltree.Walk(goals, func(g model.Goal, _ string, _ int) bool {
		if g.DueDate == "" || (g.Source != "" && !opts.IncludeSubscribed) {
			return true
		}
		if err := addGoalEvent(cal, g, opts); err != nil {
			appLog.Error("ics export: goal skipped", err, "goal_id", g.ID)
			if firstErr == nil {
				firstErr = err
			}
			return true
		}
		exported++
		return true
	})

	if exported == 0 && firstErr != nil {
		return nil, firstErr
	}
	appLog.Debug("ics export completed", "event_count", exported)
	return []byte(cal.Serialize()), nil
}

func addGoalEvent(cal *ical.Calendar, g model.Goal, opts ExportOptions) error {
	due, err := model.ParseDate(g.DueDate, opts.Location)
	if err != nil {
		return fmt.Errorf("dueDate %q: %w", g.DueDate, err)
	}

	start, allDay, err := goalStart(g, due)
	if err != nil {
		return err
	}

	var rrule string
	if g.IsRecurring() {
		rrule, err = RuleToRRule(*g.Recurrence, start)
		if err != nil {
			return err
		}
	}

	ev := cal.AddEvent(g.ID + uidSuffix)
	ev.SetDtStampTime(opts.Now.UTC())
	ev.SetSummary(g.Text)

	if allDay {
		ev.SetAllDayStartAt(due)
		ev.SetAllDayEndAt(due.AddDate(0, 0, 1))
	} else {
		ev.SetStartAt(start)
		if g.EndTime != "" {
			h, m, err := model.ParseClock(g.EndTime)
			if err != nil {
				return err
			}
			end := time.Date(due.Year(), due.Month(), due.Day(), h, m, 0, 0, opts.Location)
			if end.After(start) {
				ev.SetEndAt(end)
			}
		}
	}

	if rrule != "" {
		ev.AddRrule(rrule)
		for _, ex := range g.RecurrenceExceptions {
			exDay, err := model.ParseDate(ex, opts.Location)
			if err != nil {
				continue
			}
			if allDay {
				ev.AddExdate(exDay.Format("20060102"), ical.WithValue("DATE"))
				continue
			}
			at := time.Date(exDay.Year(), exDay.Month(), exDay.Day(), start.Hour(), start.Minute(), 0, 0, opts.Location)
			ev.AddExdate(at.UTC().Format("20060102T150405Z"))
		}
	}

	if g.RecurrenceID != "" {
		ev.AddProperty(propRelatedTo, g.RecurrenceID+uidSuffix)
	}
	if len(g.Tags) > 0 {
		ev.AddProperty(propCategories, strings.Join(g.Tags, ","))
	}
	if g.Completed {
		ev.AddProperty(propCompleted, "TRUE")
	}
	return nil
}

// goalStart combines the due day with StartTime; no StartTime means an
// all-day event.
func goalStart(g model.Goal, due time.Time) (time.Time, bool, error) {
	if g.StartTime == "" {
		return due, true, nil
	}
	h, m, err := model.ParseClock(g.StartTime)
	if err != nil {
		return time.Time{}, false, err
	}
	return time.Date(due.Year(), due.Month(), due.Day(), h, m, 0, 0, due.Location()), false, nil
}
