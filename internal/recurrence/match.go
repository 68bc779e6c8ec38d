package recurrence

import (
	"time"

	"studyverse/internal/model"
)

// matcher answers "does the series fall on this day" for one rule.
type matcher struct {
	freq     model.Frequency
	due      time.Time
	weekdays map[time.Weekday]bool
	monthEnd MonthEndPolicy
}

func newMatcher(rule *model.RecurrenceRule, due time.Time, policy MonthEndPolicy) matcher {
	m := matcher{
		freq:     rule.Frequency,
		due:      due,
		weekdays: make(map[time.Weekday]bool),
		monthEnd: policy,
	}
	for _, code := range rule.ByDay {
		if wd, ok := model.ParseWeekday(code); ok {
			m.weekdays[wd] = true
		}
	}
	if len(m.weekdays) == 0 {
		m.weekdays[due.Weekday()] = true
	}
	return m
}

func (m matcher) matches(day time.Time) bool {
	switch m.freq {
	case model.FrequencyDaily:
		return true
	case model.FrequencyWeekly:
		return m.weekdays[day.Weekday()]
	case model.FrequencyBiWeekly:
		return model.DaysBetween(m.due, day)%14 == 0 && m.weekdays[day.Weekday()]
	case model.FrequencyMonthly:
		return m.dayOfMonthMatches(day)
	case model.FrequencyYearly:
		return day.Month() == m.due.Month() && m.dayOfMonthMatches(day)
	default:
		return false
	}
}

func (m matcher) dayOfMonthMatches(day time.Time) bool {
	if day.Day() == m.due.Day() {
		return true
	}
	if m.monthEnd != MonthEndClamp {
		return false
	}
	last := daysIn(day.Year(), day.Month())
	return m.due.Day() > last && day.Day() == last
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
