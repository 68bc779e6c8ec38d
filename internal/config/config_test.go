package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, defaultListen, cfg.Listen)
	assert.Equal(t, "skip", cfg.Calendar.MonthEnd)
	assert.Equal(t, defaultAPIKeyEnv, cfg.AI.APIKeyEnv)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := Load(path)
	require.NoError(t, err)
	if diff := cmp.Diff(cfg, again); diff != "" {
		t.Fatalf("reloaded config differs (-first +second):\n%s", diff)
	}
}

func TestLoadPartialFileIsNormalized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
timezone: Asia/Seoul
week_start: Sunday
calendar:
  month_end: clamp
ics:
  - name: University
    url: https://example.com/uni.ics
ai:
  api_key_env: STUDYVERSE_TEST_KEY
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sunday", cfg.WeekStart)
	assert.Equal(t, "clamp", cfg.Calendar.MonthEnd)
	assert.Equal(t, defaultMaxOccurrence, cfg.Calendar.MaxOccurrences)
	assert.Equal(t, "feed1", cfg.ICS[0].ID)
	assert.Equal(t, "Asia/Seoul", cfg.Location().String())
	require.NoError(t, cfg.Validate())

	t.Setenv("STUDYVERSE_TEST_KEY", " secret ")
	assert.Equal(t, "secret", cfg.AI.ResolveAPIKey())
	cfg.AI.APIKey = "inline"
	assert.Equal(t, "inline", cfg.AI.ResolveAPIKey())
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: [unclosed"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Timezone = "Mars/Olympus"
	cfg.RefreshCron = "every now and then"
	cfg.Export.Path = "out.ics"
	cfg.Export.Cron = "61 * * * *"
	cfg.ICS = []ICSConfig{{ID: "a"}, {ID: "a", URL: "https://x"}}
	cfg.BasicAuth = &BasicAuthConfig{Username: "admin"}

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"timezone", "refresh", "export.cron", "url is required", "duplicate id", "basic_auth"} {
		assert.Contains(t, err.Error(), want)
	}
	assert.Equal(t, "UTC", cfg.Location().String())
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.BasicAuth = &BasicAuthConfig{Username: "admin", Password: "pw"}
	cfg.Export.Path = "/tmp/goals.ics"
	require.NoError(t, Save(path, cfg))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)

	assert.Error(t, Save("", cfg))
	assert.Error(t, Save(path, nil))
}

func TestCalendarHorizon(t *testing.T) {
	now := time.Date(2024, 8, 7, 15, 30, 0, 0, time.UTC)

	assert.True(t, CalendarConfig{}.Horizon(now, time.UTC).IsZero())

	h := CalendarConfig{HorizonDays: 30}.Horizon(now, time.UTC)
	assert.Equal(t, "2024-09-06", h.Format("2006-01-02"))
	assert.Equal(t, 0, h.Hour())
}
