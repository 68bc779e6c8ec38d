package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidGoal is returned (wrapped) by Goal.Validate.
var ErrInvalidGoal = errors.New("invalid goal")

// Frequency is the repeat cadence of a recurring goal.
type Frequency string

const (
	FrequencyDaily    Frequency = "daily"
	FrequencyWeekly   Frequency = "weekly"
	FrequencyBiWeekly Frequency = "bi-weekly"
	FrequencyMonthly  Frequency = "monthly"
	FrequencyYearly   Frequency = "yearly"
)

// Valid reports whether f is one of the supported frequencies.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyBiWeekly, FrequencyMonthly, FrequencyYearly:
		return true
	}
	return false
}

// RecurrenceRule describes how a goal repeats.
type RecurrenceRule struct {
	Frequency Frequency `json:"frequency" yaml:"frequency"`
	// ByDay holds weekday codes ("MO".."SU"). Only weekly and bi-weekly
	// rules look at it.
	ByDay []string `json:"byday,omitempty" yaml:"byday,omitempty"`
	// Until is the inclusive last date of the series (yyyy-MM-dd).
	Until string `json:"until,omitempty" yaml:"until,omitempty"`
}

// Attachment is a file attached to a goal. Content lives elsewhere; only
// metadata travels with the goal.
type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
	Type string `json:"type,omitempty"`
	Size int64  `json:"size,omitempty"`
}

// Goal is a user-authored task or deadline, optionally recurring and
// optionally nested under a parent goal.
type Goal struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`

	// DueDate is the due day, or the first day of a recurring series.
	DueDate   string `json:"dueDate,omitempty"`
	StartTime string `json:"startTime,omitempty"`
	EndTime   string `json:"endTime,omitempty"`

	Recurrence           *RecurrenceRule `json:"recurrence,omitempty"`
	RecurrenceExceptions []string        `json:"recurrenceExceptions,omitempty"`
	// RecurrenceID points at the series a detached occurrence came from.
	RecurrenceID string `json:"recurrenceId,omitempty"`

	SubGoals []Goal       `json:"subGoals,omitempty"`
	Tags     []string     `json:"tags,omitempty"`
	Files    []Attachment `json:"files,omitempty"`

	Progress float64 `json:"progress,omitempty"`
	Target   float64 `json:"target,omitempty"`

	// Source is set on read-only goals imported from an ICS subscription.
	Source string `json:"source,omitempty"`
}

// CalendarEvent is one concrete occurrence of a goal on a given day.
// It is derived on every request and never stored.
type CalendarEvent struct {
	Goal
	InstanceDate string `json:"instanceDate"`
}

// NodeID and Children let goals be used with the goaltree helpers.
func (g Goal) NodeID() string { return g.ID }

func (g Goal) Children() []Goal { return g.SubGoals }

func (g Goal) WithChildren(children []Goal) Goal {
	g.SubGoals = children
	return g
}

// IsRecurring reports whether the goal carries a recurrence rule.
func (g Goal) IsRecurring() bool {
	return g.Recurrence != nil && g.Recurrence.Frequency != ""
}

// HasException reports whether date (yyyy-MM-dd) is excluded from the series.
func (g Goal) HasException(date string) bool {
	for _, ex := range g.RecurrenceExceptions {
		if ex == date {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can mutate the result without
// touching the original tree.
func (g Goal) Clone() Goal {
	out := g
	if g.Recurrence != nil {
		r := *g.Recurrence
		r.ByDay = cloneStrings(g.Recurrence.ByDay)
		out.Recurrence = &r
	}
	out.RecurrenceExceptions = cloneStrings(g.RecurrenceExceptions)
	out.Tags = cloneStrings(g.Tags)
	if g.Files != nil {
		out.Files = append([]Attachment(nil), g.Files...)
	}
	if g.SubGoals != nil {
		out.SubGoals = make([]Goal, len(g.SubGoals))
		for i, sg := range g.SubGoals {
			out.SubGoals[i] = sg.Clone()
		}
	}
	return out
}

// Validate checks user-supplied fields. Sub-goals are validated recursively.
func (g Goal) Validate() error {
	if strings.TrimSpace(g.Text) == "" {
		return fmt.Errorf("%w: text is required", ErrInvalidGoal)
	}
	if g.DueDate != "" {
		if _, err := ParseDate(g.DueDate, nil); err != nil {
			return fmt.Errorf("%w: dueDate %q: %v", ErrInvalidGoal, g.DueDate, err)
		}
	}
	for _, field := range []string{g.StartTime, g.EndTime} {
		if field == "" {
			continue
		}
		if _, _, err := ParseClock(field); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidGoal, err)
		}
	}
	if g.Recurrence != nil {
		if !g.Recurrence.Frequency.Valid() {
			return fmt.Errorf("%w: unknown frequency %q", ErrInvalidGoal, g.Recurrence.Frequency)
		}
		if g.DueDate == "" {
			return fmt.Errorf("%w: recurring goal needs a dueDate", ErrInvalidGoal)
		}
		for _, code := range g.Recurrence.ByDay {
			if _, ok := ParseWeekday(code); !ok {
				return fmt.Errorf("%w: unknown weekday %q", ErrInvalidGoal, code)
			}
		}
	}
	for _, ex := range g.RecurrenceExceptions {
		if _, err := ParseDate(ex, nil); err != nil {
			return fmt.Errorf("%w: exception %q: %v", ErrInvalidGoal, ex, err)
		}
	}
	for _, sg := range g.SubGoals {
		if err := sg.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}
