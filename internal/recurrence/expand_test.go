package recurrence

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyverse/internal/model"
)

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.ParseInLocation(model.DateLayout, s, time.UTC)
	require.NoError(t, err)
	return d
}

func instanceDates(events []model.CalendarEvent) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.InstanceDate)
	}
	return out
}

func weeklyGym() model.Goal {
	return model.Goal{
		ID:         "gym",
		Text:       "Gym",
		DueDate:    "2024-08-05",
		Recurrence: &model.RecurrenceRule{Frequency: model.FrequencyWeekly},
		Tags:       []string{"health"},
	}
}

func TestExpandNonRecurring(t *testing.T) {
	goals := []model.Goal{
		{ID: "in", Text: "Essay", DueDate: "2024-08-10"},
		{ID: "first-day", Text: "Quiz", DueDate: "2024-08-01"},
		{ID: "last-day", Text: "Exam", DueDate: "2024-08-31"},
		{ID: "before", Text: "Old", DueDate: "2024-07-31"},
		{ID: "after", Text: "Later", DueDate: "2024-09-01"},
	}

	events := Expand(goals, day(t, "2024-08-01"), day(t, "2024-08-31"))

	require.Len(t, events, 3)
	for _, ev := range events {
		assert.Equal(t, ev.DueDate, ev.InstanceDate)
		assert.Empty(t, ev.RecurrenceID)
	}
	assert.Equal(t, []string{"in", "first-day", "last-day"}, []string{events[0].ID, events[1].ID, events[2].ID})
}

func TestExpandWindowEndIsInclusiveByDay(t *testing.T) {
	goals := []model.Goal{{ID: "g", Text: "x", DueDate: "2024-08-31"}}
	// windowEnd carries a clock time earlier than the due date's midnight
	// would suggest; the whole last day is still visible.
	start := time.Date(2024, 8, 1, 15, 0, 0, 0, time.UTC)
	end := time.Date(2024, 8, 31, 0, 0, 0, 0, time.UTC)
	events := Expand(goals, start, end)
	require.Len(t, events, 1)
	assert.Equal(t, "2024-08-31", events[0].InstanceDate)
}

func TestExpandWeeklyDefaultsToDueWeekday(t *testing.T) {
	events := Expand([]model.Goal{weeklyGym()}, day(t, "2024-08-01"), day(t, "2024-08-31"))

	assert.Equal(t, []string{"2024-08-05", "2024-08-12", "2024-08-19", "2024-08-26"}, instanceDates(events))
	for _, ev := range events {
		assert.Equal(t, "gym-"+ev.InstanceDate, ev.ID)
		assert.Equal(t, "gym", ev.RecurrenceID)
		assert.Equal(t, ev.InstanceDate, ev.DueDate)
		assert.Equal(t, "Gym", ev.Text)
		assert.Equal(t, []string{"health"}, ev.Tags)
	}
}

func TestExpandExceptionRemovesExactlyOneInstance(t *testing.T) {
	g := weeklyGym()
	g.RecurrenceExceptions = []string{"2024-08-12"}

	events := Expand([]model.Goal{g}, day(t, "2024-08-01"), day(t, "2024-08-31"))

	assert.Equal(t, []string{"2024-08-05", "2024-08-19", "2024-08-26"}, instanceDates(events))
}

func TestExpandDailyUntil(t *testing.T) {
	g := model.Goal{
		ID:         "read",
		Text:       "Read",
		DueDate:    "2024-07-20",
		Recurrence: &model.RecurrenceRule{Frequency: model.FrequencyDaily, Until: "2024-08-03"},
	}

	events := Expand([]model.Goal{g}, day(t, "2024-08-01"), day(t, "2024-08-31"))

	assert.Equal(t, []string{"2024-08-01", "2024-08-02", "2024-08-03"}, instanceDates(events))
}

func TestExpandUnparsableUntilIsIgnored(t *testing.T) {
	g := model.Goal{
		ID:         "read",
		Text:       "Read",
		DueDate:    "2024-08-01",
		Recurrence: &model.RecurrenceRule{Frequency: model.FrequencyDaily, Until: "whenever"},
	}

	events := Expand([]model.Goal{g}, day(t, "2024-08-01"), day(t, "2024-08-10"))

	assert.Len(t, events, 10)
}

func TestExpandMonthlyDoesNotClampByDefault(t *testing.T) {
	g := model.Goal{
		ID:         "rent",
		Text:       "Pay rent",
		DueDate:    "2024-01-31",
		Recurrence: &model.RecurrenceRule{Frequency: model.FrequencyMonthly},
	}

	assert.Empty(t, Expand([]model.Goal{g}, day(t, "2024-02-01"), day(t, "2024-02-29")))

	events := Expand([]model.Goal{g}, day(t, "2024-01-01"), day(t, "2024-05-31"))
	assert.Equal(t, []string{"2024-01-31", "2024-03-31", "2024-05-31"}, instanceDates(events))
}

func TestExpandMonthlyClampPolicy(t *testing.T) {
	g := model.Goal{
		ID:         "rent",
		Text:       "Pay rent",
		DueDate:    "2024-01-31",
		Recurrence: &model.RecurrenceRule{Frequency: model.FrequencyMonthly},
	}

	res, err := ExpandWithConfig([]model.Goal{g}, ExpandConfig{
		WindowStart: day(t, "2024-01-01"),
		WindowEnd:   day(t, "2024-04-30"),
		MonthEnd:    MonthEndClamp,
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-31", "2024-02-29", "2024-03-31", "2024-04-30"}, instanceDates(res.Events))
}

func TestExpandYearly(t *testing.T) {
	birthday := model.Goal{
		ID:         "bday",
		Text:       "Birthday",
		DueDate:    "2020-02-29",
		Recurrence: &model.RecurrenceRule{Frequency: model.FrequencyYearly},
	}

	events := Expand([]model.Goal{birthday}, day(t, "2021-01-01"), day(t, "2024-12-31"))
	assert.Equal(t, []string{"2024-02-29"}, instanceDates(events))

	res, err := ExpandWithConfig([]model.Goal{birthday}, ExpandConfig{
		WindowStart: day(t, "2021-01-01"),
		WindowEnd:   day(t, "2024-12-31"),
		MonthEnd:    MonthEndClamp,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"2021-02-28", "2022-02-28", "2023-02-28", "2024-02-29"}, instanceDates(res.Events))
}

func TestExpandBiWeekly(t *testing.T) {
	g := model.Goal{
		ID:         "club",
		Text:       "Study club",
		DueDate:    "2024-08-05",
		Recurrence: &model.RecurrenceRule{Frequency: model.FrequencyBiWeekly},
	}

	events := Expand([]model.Goal{g}, day(t, "2024-08-01"), day(t, "2024-09-30"))

	assert.Equal(t, []string{"2024-08-05", "2024-08-19", "2024-09-02", "2024-09-16", "2024-09-30"}, instanceDates(events))
}

func TestExpandWeeklyByDay(t *testing.T) {
	g := model.Goal{
		ID:         "lab",
		Text:       "Lab",
		DueDate:    "2024-08-05",
		Recurrence: &model.RecurrenceRule{Frequency: model.FrequencyWeekly, ByDay: []string{"TU", "th"}},
	}

	events := Expand([]model.Goal{g}, day(t, "2024-08-01"), day(t, "2024-08-14"))

	// The series starts on its due date, so Aug 1 (a Thursday) is excluded.
	assert.Equal(t, []string{"2024-08-06", "2024-08-08", "2024-08-13"}, instanceDates(events))
}

func TestExpandSkipsMalformedGoals(t *testing.T) {
	goals := []model.Goal{
		{ID: "bad", Text: "bad", DueDate: "someday"},
		{ID: "none", Text: "no due"},
		{ID: "ok", Text: "ok", DueDate: "2024-08-02"},
	}

	res, err := ExpandWithConfig(goals, ExpandConfig{
		WindowStart: day(t, "2024-08-01"),
		WindowEnd:   day(t, "2024-08-31"),
	})

	require.NoError(t, err)
	assert.Equal(t, 2, res.Skipped)
	require.Len(t, res.Events, 1)
	assert.Equal(t, "ok", res.Events[0].ID)
}

func TestExpandInvertedWindow(t *testing.T) {
	_, err := ExpandWithConfig([]model.Goal{weeklyGym()}, ExpandConfig{
		WindowStart: day(t, "2024-08-31"),
		WindowEnd:   day(t, "2024-08-01"),
	})
	assert.Error(t, err)

	events := Expand([]model.Goal{weeklyGym()}, day(t, "2024-08-31"), day(t, "2024-08-01"))
	assert.NotNil(t, events)
	assert.Empty(t, events)
}

func TestExpandCapTruncates(t *testing.T) {
	g := model.Goal{
		ID:         "daily",
		Text:       "Flashcards",
		DueDate:    "2024-01-01",
		Recurrence: &model.RecurrenceRule{Frequency: model.FrequencyDaily},
	}

	res, err := ExpandWithConfig([]model.Goal{g}, ExpandConfig{
		WindowStart:           day(t, "2024-01-01"),
		WindowEnd:             day(t, "2024-12-31"),
		MaxOccurrencesPerGoal: 10,
	})

	require.NoError(t, err)
	assert.Len(t, res.Events, 10)
	assert.Equal(t, []string{"daily"}, res.TruncatedGoals)
}

func TestExpandHorizon(t *testing.T) {
	res, err := ExpandWithConfig([]model.Goal{weeklyGym()}, ExpandConfig{
		WindowStart: day(t, "2024-08-01"),
		WindowEnd:   day(t, "2024-08-31"),
		Horizon:     day(t, "2024-08-15"),
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"2024-08-05", "2024-08-12"}, instanceDates(res.Events))
}

// America/Santiago skips midnight on 2024-09-08; every day still appears
// exactly once and the last day of the window is kept.
func TestExpandAcrossSkippedMidnight(t *testing.T) {
	loc, err := time.LoadLocation("America/Santiago")
	require.NoError(t, err)
	parse := func(s string) time.Time {
		d, err := model.ParseDate(s, loc)
		require.NoError(t, err)
		return d
	}
	daily := model.Goal{
		ID:         "d",
		Text:       "Flashcards",
		DueDate:    "2024-09-01",
		Recurrence: &model.RecurrenceRule{Frequency: model.FrequencyDaily},
	}
	weekly := model.Goal{
		ID:         "w",
		Text:       "Review",
		DueDate:    "2024-09-01",
		Recurrence: &model.RecurrenceRule{Frequency: model.FrequencyWeekly},
	}

	res, err := ExpandWithConfig([]model.Goal{daily}, ExpandConfig{
		Location:    loc,
		WindowStart: parse("2024-09-01"),
		WindowEnd:   parse("2024-09-10"),
	})
	require.NoError(t, err)
	want := []string{
		"2024-09-01", "2024-09-02", "2024-09-03", "2024-09-04", "2024-09-05",
		"2024-09-06", "2024-09-07", "2024-09-08", "2024-09-09", "2024-09-10",
	}
	if diff := cmp.Diff(want, instanceDates(res.Events)); diff != "" {
		t.Errorf("instance dates mismatch (-want +got):\n%s", diff)
	}
	ids := make(map[string]bool)
	for _, ev := range res.Events {
		assert.False(t, ids[ev.ID], "duplicate id %s", ev.ID)
		ids[ev.ID] = true
	}

	res, err = ExpandWithConfig([]model.Goal{daily, weekly}, ExpandConfig{
		Location:    loc,
		WindowStart: parse("2024-09-08"),
		WindowEnd:   parse("2024-09-15"),
	})
	require.NoError(t, err)
	dates := instanceDates(res.Events)
	require.NotEmpty(t, dates)
	assert.Equal(t, "2024-09-08", dates[0])
	require.Len(t, dates, 10)
	assert.Equal(t, "d-2024-09-15", res.Events[7].ID)
	assert.Equal(t, "w-2024-09-08", res.Events[8].ID)
	assert.Equal(t, "w-2024-09-15", res.Events[9].ID)
}

func TestExpandDoesNotAliasInput(t *testing.T) {
	goals := []model.Goal{weeklyGym()}
	events := Expand(goals, day(t, "2024-08-01"), day(t, "2024-08-31"))
	require.NotEmpty(t, events)

	events[0].Tags[0] = "changed"
	assert.Equal(t, "health", goals[0].Tags[0])
	assert.Equal(t, "gym", goals[0].ID)
}

func TestExpandIdempotent(t *testing.T) {
	g := weeklyGym()
	g.RecurrenceExceptions = []string{"2024-08-12"}
	goals := []model.Goal{
		g,
		{ID: "essay", Text: "Essay", DueDate: "2024-08-20", SubGoals: []model.Goal{{ID: "outline", Text: "Outline"}}},
	}
	start, end := day(t, "2024-08-01"), day(t, "2024-08-31")

	first := Expand(goals, start, end)
	second := Expand(goals, start, end)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("expand not idempotent (-first +second):\n%s", diff)
	}
}

func TestFlattenIncludesNestedGoals(t *testing.T) {
	goals := []model.Goal{{
		ID: "thesis", Text: "Thesis", DueDate: "2024-09-30",
		SubGoals: []model.Goal{
			{ID: "draft", Text: "Draft", DueDate: "2024-09-01"},
			{ID: "notes", Text: "Notes"},
		},
	}}

	flat := Flatten(goals)
	require.Len(t, flat, 3)
	assert.Equal(t, []string{"thesis", "draft", "notes"}, []string{flat[0].ID, flat[1].ID, flat[2].ID})
	assert.Nil(t, flat[0].SubGoals)
	assert.Len(t, goals[0].SubGoals, 2)

	events := Expand(flat, day(t, "2024-09-01"), day(t, "2024-09-30"))
	assert.Equal(t, []string{"2024-09-30", "2024-09-01"}, instanceDates(events))
}
