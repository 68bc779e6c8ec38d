package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyverse/internal/model"
)

const sampleICS = "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//test//EN\r\n" +
	"BEGIN:VEVENT\r\nUID:gym@studyverse\r\nDTSTAMP:20240101T000000Z\r\n" +
	"DTSTART:20240805T180000Z\r\nDTEND:20240805T190000Z\r\nSUMMARY:Gym\r\n" +
	"RRULE:FREQ=WEEKLY;BYDAY=MO\r\nEXDATE:20240812T180000Z\r\nEND:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute(), out.String())
	return out.String()
}

func TestImportExpandExport(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "studyverse.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("timezone: UTC\ndatabase: "+filepath.Join(dir, "db.sqlite")+"\n"), 0o600))

	icsPath := filepath.Join(dir, "in.ics")
	require.NoError(t, os.WriteFile(icsPath, []byte(sampleICS), 0o600))

	out := run(t, "--config", cfgPath, "import", icsPath)
	assert.Contains(t, out, "imported 1 of 1 goals")

	out = run(t, "--config", cfgPath, "expand", "--start", "2024-08-01", "--end", "2024-08-31", "--json")
	var events []model.CalendarEvent
	require.NoError(t, json.Unmarshal([]byte(out), &events))
	dates := make([]string, 0, len(events))
	for _, ev := range events {
		dates = append(dates, ev.InstanceDate)
	}
	assert.Equal(t, []string{"2024-08-05", "2024-08-19", "2024-08-26"}, dates)

	expandJSON = false
	out = run(t, "--config", cfgPath, "expand", "--start", "2024-08-05", "--end", "2024-08-05")
	assert.True(t, strings.HasPrefix(out, "DATE"))
	assert.Contains(t, out, "18:00")

	outPath := filepath.Join(dir, "out.ics")
	run(t, "--config", cfgPath, "export", "--out", outPath)
	body, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(body), "UID:gym@studyverse")
	assert.Contains(t, string(body), "EXDATE")
}

func TestExpandAppliesHorizon(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "studyverse.yaml")
	cfg := "timezone: UTC\ndatabase: " + filepath.Join(dir, "db.sqlite") + "\ncalendar:\n  horizon_days: 7\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o600))
	icsPath := filepath.Join(dir, "in.ics")
	require.NoError(t, os.WriteFile(icsPath, []byte(sampleICS), 0o600))
	run(t, "--config", cfgPath, "import", icsPath)

	today := time.Now().UTC()
	horizon := model.DateKey(today.AddDate(0, 0, 7))
	out := run(t, "--config", cfgPath, "expand",
		"--start", model.DateKey(today),
		"--end", model.DateKey(today.AddDate(0, 0, 60)),
		"--json")

	var events []model.CalendarEvent
	require.NoError(t, json.Unmarshal([]byte(out), &events))
	require.NotEmpty(t, events, "a weekly series lands once in any 8 days")
	assert.LessOrEqual(t, len(events), 2)
	for _, ev := range events {
		assert.LessOrEqual(t, ev.InstanceDate, horizon)
	}
}

func TestInvalidConfigIsRejected(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "studyverse.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("timezone: Nowhere/Land\n"), 0o600))

	rootCmd.SetArgs([]string{"--config", cfgPath, "expand"})
	rootCmd.SetOut(&bytes.Buffer{})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timezone")
}
