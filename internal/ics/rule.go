package ics

import (
	"errors"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"studyverse/internal/model"
)

// ErrUnsupportedRule marks RRULEs that have no RecurrenceRule equivalent
// (hourly cadences, BYSETPOS, intervals other than 1 or 2-weekly, ...).
var ErrUnsupportedRule = errors.New("ics: rrule not representable as a goal recurrence")

// maxRuleCount caps the COUNT of feed rules; a longer series ends at its
// maxRuleCount-th occurrence.
const maxRuleCount = 5000

// rruleWeekdays is indexed by time.Weekday.
var rruleWeekdays = [7]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

func toTimeWeekday(wd rrule.Weekday) time.Weekday {
	// rrule-go numbers Monday as 0.
	return time.Weekday((wd.Day() + 1) % 7)
}

// RuleToROption maps a goal recurrence starting on due onto rrule options.
// Bi-weekly series only ever land on the due weekday, so BYDAY is pinned to
// it. Monthly and yearly rules rely on RFC 5545 dropping invalid dates,
// which matches the expander's skip behaviour.
func RuleToROption(rule model.RecurrenceRule, due time.Time) (rrule.ROption, error) {
	opt := rrule.ROption{Dtstart: due, Interval: 1}

	switch rule.Frequency {
	case model.FrequencyDaily:
		opt.Freq = rrule.DAILY
	case model.FrequencyWeekly:
		opt.Freq = rrule.WEEKLY
		opt.Byweekday = weekdaysFor(rule.ByDay, due)
	case model.FrequencyBiWeekly:
		opt.Freq = rrule.WEEKLY
		opt.Interval = 2
		if len(rule.ByDay) == 0 || containsWeekday(rule.ByDay, due.Weekday()) {
			opt.Byweekday = []rrule.Weekday{rruleWeekdays[due.Weekday()]}
		} else {
			return opt, fmt.Errorf("%w: bi-weekly byday excludes the start weekday", ErrUnsupportedRule)
		}
	case model.FrequencyMonthly:
		opt.Freq = rrule.MONTHLY
		opt.Bymonthday = []int{due.Day()}
	case model.FrequencyYearly:
		opt.Freq = rrule.YEARLY
		opt.Bymonth = []int{int(due.Month())}
		opt.Bymonthday = []int{due.Day()}
	default:
		return opt, fmt.Errorf("%w: frequency %q", ErrUnsupportedRule, rule.Frequency)
	}

	if rule.Until != "" {
		until, err := model.ParseDate(rule.Until, due.Location())
		if err == nil {
			opt.Until = model.EndOfDay(until)
		}
	}
	return opt, nil
}

// RuleToRRule renders the RRULE value (without the "RRULE:" prefix).
func RuleToRRule(rule model.RecurrenceRule, due time.Time) (string, error) {
	opt, err := RuleToROption(rule, due)
	if err != nil {
		return "", err
	}
	if _, err := rrule.NewRRule(opt); err != nil {
		return "", fmt.Errorf("ics: build rrule: %w", err)
	}
	return opt.RRuleString(), nil
}

// RuleFromRRule converts an RRULE value back into a goal recurrence. COUNT
// (capped at maxRuleCount) is turned into an inclusive until date by
// iterating the rule from start.
func RuleFromRRule(raw string, start time.Time) (model.RecurrenceRule, error) {
	opt, err := rrule.StrToROption(raw)
	if err != nil {
		return model.RecurrenceRule{}, fmt.Errorf("ics: parse rrule %q: %w", raw, err)
	}
	if len(opt.Bysetpos) > 0 || len(opt.Byyearday) > 0 || len(opt.Byweekno) > 0 ||
		len(opt.Byhour) > 0 || len(opt.Byminute) > 0 || len(opt.Bysecond) > 0 {
		return model.RecurrenceRule{}, ErrUnsupportedRule
	}
	interval := opt.Interval
	if interval == 0 {
		interval = 1
	}

	var rule model.RecurrenceRule
	switch {
	case opt.Freq == rrule.DAILY && interval == 1 && len(opt.Byweekday) == 0:
		rule.Frequency = model.FrequencyDaily
	case opt.Freq == rrule.WEEKLY && interval == 1:
		rule.Frequency = model.FrequencyWeekly
		rule.ByDay = weekdayCodes(opt.Byweekday)
	case opt.Freq == rrule.WEEKLY && interval == 2:
		if len(opt.Byweekday) > 1 || (len(opt.Byweekday) == 1 && toTimeWeekday(opt.Byweekday[0]) != start.Weekday()) {
			return model.RecurrenceRule{}, ErrUnsupportedRule
		}
		rule.Frequency = model.FrequencyBiWeekly
	case opt.Freq == rrule.MONTHLY && interval == 1 && len(opt.Byweekday) == 0 && onlyDay(opt.Bymonthday, start.Day()):
		rule.Frequency = model.FrequencyMonthly
	case opt.Freq == rrule.YEARLY && interval == 1 && len(opt.Byweekday) == 0 &&
		onlyDay(opt.Bymonthday, start.Day()) && onlyDay(opt.Bymonth, int(start.Month())):
		rule.Frequency = model.FrequencyYearly
	default:
		return model.RecurrenceRule{}, ErrUnsupportedRule
	}

	switch {
	case !opt.Until.IsZero():
		rule.Until = model.DateKey(opt.Until.In(start.Location()))
	case opt.Count > 0:
		opt.Dtstart = start
		opt.Count = min(opt.Count, maxRuleCount)
		r, err := rrule.NewRRule(*opt)
		if err != nil {
			return model.RecurrenceRule{}, fmt.Errorf("ics: build rrule: %w", err)
		}
		var last time.Time
		next := r.Iterator()
		for t, ok := next(); ok; t, ok = next() {
			last = t
		}
		if !last.IsZero() {
			rule.Until = model.DateKey(last.In(start.Location()))
		}
	}
	return rule, nil
}

func weekdaysFor(codes []string, due time.Time) []rrule.Weekday {
	out := make([]rrule.Weekday, 0, len(codes))
	for _, code := range codes {
		if wd, ok := model.ParseWeekday(code); ok {
			out = append(out, rruleWeekdays[wd])
		}
	}
	if len(out) == 0 {
		out = append(out, rruleWeekdays[due.Weekday()])
	}
	return out
}

func weekdayCodes(days []rrule.Weekday) []string {
	if len(days) == 0 {
		return nil
	}
	out := make([]string, 0, len(days))
	for _, d := range days {
		out = append(out, model.WeekdayCode(toTimeWeekday(d)))
	}
	return out
}

func containsWeekday(codes []string, wd time.Weekday) bool {
	for _, code := range codes {
		if got, ok := model.ParseWeekday(code); ok && got == wd {
			return true
		}
	}
	return false
}

// onlyDay accepts an empty list or exactly [want].
func onlyDay(values []int, want int) bool {
	return len(values) == 0 || (len(values) == 1 && values[0] == want)
}
