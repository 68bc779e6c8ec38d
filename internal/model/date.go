package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format for calendar days.
const DateLayout = "2006-01-02"

var weekdayCodes = map[string]time.Weekday{
	"SU": time.Sunday,
	"MO": time.Monday,
	"TU": time.Tuesday,
	"WE": time.Wednesday,
	"TH": time.Thursday,
	"FR": time.Friday,
	"SA": time.Saturday,
}

// ParseDate parses a yyyy-MM-dd day or an RFC 3339 timestamp and returns
// midnight of that calendar day in loc (time.Local if nil). Timestamps keep
// the calendar day they carry, they are not shifted into loc first.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty date")
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return StartOfDay(t, loc), nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02T15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return StartOfDay(t, loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// StartOfDay returns the first instant of t's calendar day in loc. That is
// midnight, except in zones whose DST jump skips midnight, where it is the
// moment the new offset takes effect.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = t.Location()
	}
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	if d.Day() != t.Day() {
		_, end := d.ZoneBounds()
		d = end
	}
	return d
}

// CivilDate returns t's calendar day as midnight UTC. Walking civil dates
// with AddDate never skips or repeats a day, whatever the zone's DST rules.
func CivilDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// AddDays moves t's calendar day by n days and returns the start of that
// day in t's location.
func AddDays(t time.Time, n int) time.Time {
	return StartOfDay(CivilDate(t).AddDate(0, 0, n), t.Location())
}

// EndOfDay returns the last nanosecond of t's calendar day.
func EndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}

// DateKey formats t as yyyy-MM-dd.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// DaysBetween counts calendar days from a to b, ignoring clock time and DST.
func DaysBetween(a, b time.Time) int {
	return int(CivilDate(b).Sub(CivilDate(a)).Hours() / 24)
}

// ParseWeekday maps a two-letter code (case-insensitive) to a weekday.
func ParseWeekday(code string) (time.Weekday, bool) {
	wd, ok := weekdayCodes[strings.ToUpper(strings.TrimSpace(code))]
	return wd, ok
}

// WeekdayCode is the inverse of ParseWeekday.
func WeekdayCode(wd time.Weekday) string {
	return strings.ToUpper(wd.String()[:2])
}

// ParseClock parses an HH:mm time of day.
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("time of day %q: want HH:mm", s)
	}
	return t.Hour(), t.Minute(), nil
}
