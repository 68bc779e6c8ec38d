package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"studyverse/internal/model"
)

const (
	defaultListen        = "127.0.0.1:8080"
	defaultTimezone      = "UTC"
	defaultDatabase      = "./data/studyverse.db"
	defaultRefreshCron   = "*/30 * * * *"
	defaultMaxOccurrence = 5000
	defaultAIModel       = "gemini-2.0-flash"
	defaultAPIKeyEnv     = "GEMINI_API_KEY"
	defaultAITimeout     = 30
	defaultArchiveDays   = 90
)

// ICSConfig is one subscribed calendar feed.
type ICSConfig struct {
	// ID namespaces the ids of imported goals.
	ID string `yaml:"id" json:"id"`
	// Name is added as a tag on imported goals.
	Name string `yaml:"name" json:"name"`
	URL  string `yaml:"url" json:"url"`
}

// BasicAuthConfig protects every endpoint except /health.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

type LogConfig struct {
	// Level is debug, info or error.
	Level string `yaml:"level" json:"level"`
	// Format is json or console.
	Format string `yaml:"format" json:"format"`
}

// CalendarConfig tunes recurrence expansion.
type CalendarConfig struct {
	// MonthEnd is "skip" (default) or "clamp": what a monthly series due on
	// the 31st does in shorter months.
	MonthEnd string `yaml:"month_end" json:"month_end"`
	// MaxOccurrences caps the instances produced per series and request.
	MaxOccurrences int `yaml:"max_occurrences" json:"max_occurrences"`
	// HorizonDays, if positive, stops recurring series that many days
	// after today regardless of the requested window.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`
}

// ExportConfig writes a periodic ICS snapshot of all goals.
type ExportConfig struct {
	// Path is the output file; empty disables the snapshot job.
	Path string `yaml:"path" json:"path"`
	Cron string `yaml:"cron" json:"cron"`
}

type AIConfig struct {
	Model string `yaml:"model" json:"model"`
	// APIKey wins over APIKeyEnv when both are set.
	APIKey         string `yaml:"api_key,omitempty" json:"-"`
	APIKeyEnv      string `yaml:"api_key_env" json:"api_key_env"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// ResolveAPIKey returns the configured key, falling back to the environment.
func (a AIConfig) ResolveAPIKey() string {
	if a.APIKey != "" {
		return a.APIKey
	}
	if a.APIKeyEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(a.APIKeyEnv))
}

// Horizon is the last day recurring series may reach when viewed at now,
// or zero when HorizonDays is unset.
func (c CalendarConfig) Horizon(now time.Time, loc *time.Location) time.Time {
	if c.HorizonDays <= 0 {
		return time.Time{}
	}
	if loc == nil {
		loc = now.Location()
	}
	return model.AddDays(now.In(loc), c.HorizonDays)
}

// Timeout is TimeoutSeconds as a duration.
func (a AIConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

type FlashcardsConfig struct {
	// ArchiveIntervalDays is the review interval at which a card counts as
	// mastered and may be archived.
	ArchiveIntervalDays int `yaml:"archive_interval_days" json:"archive_interval_days"`
}

// Config is the top-level application configuration.
type Config struct {
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone calendar days are evaluated in.
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart is "monday" (default) or "sunday"; it picks the default
	// window of /api/events.
	WeekStart string `yaml:"week_start" json:"week_start"`

	// Database is the sqlite file path. ":memory:" keeps everything in RAM.
	Database string `yaml:"database" json:"database"`

	Log      LogConfig      `yaml:"log" json:"log"`
	Calendar CalendarConfig `yaml:"calendar" json:"calendar"`

	ICS []ICSConfig `yaml:"ics" json:"ics"`
	// RefreshCron schedules subscription refreshes (standard 5-field spec).
	RefreshCron string `yaml:"refresh" json:"refresh"`

	Export     ExportConfig     `yaml:"export" json:"export"`
	AI         AIConfig         `yaml:"ai" json:"ai"`
	Flashcards FlashcardsConfig `yaml:"flashcards" json:"flashcards"`

	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Normalize()
	return cfg
}

// Normalize fills zero values with defaults so partial files still work.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	switch strings.ToLower(c.WeekStart) {
	case "sunday":
		c.WeekStart = "sunday"
	default:
		c.WeekStart = "monday"
	}
	if c.Database == "" {
		c.Database = defaultDatabase
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}

	if c.Calendar.MonthEnd != "clamp" {
		c.Calendar.MonthEnd = "skip"
	}
	if c.Calendar.MaxOccurrences <= 0 {
		c.Calendar.MaxOccurrences = defaultMaxOccurrence
	}
	if c.Calendar.HorizonDays < 0 {
		c.Calendar.HorizonDays = 0
	}

	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
	for i := range c.ICS {
		if c.ICS[i].ID == "" {
			c.ICS[i].ID = fmt.Sprintf("feed%d", i+1)
		}
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.Export.Cron == "" {
		c.Export.Cron = "0 * * * *"
	}

	if c.AI.Model == "" {
		c.AI.Model = defaultAIModel
	}
	if c.AI.APIKeyEnv == "" {
		c.AI.APIKeyEnv = defaultAPIKeyEnv
	}
	if c.AI.TimeoutSeconds <= 0 {
		c.AI.TimeoutSeconds = defaultAITimeout
	}

	if c.Flashcards.ArchiveIntervalDays <= 0 {
		c.Flashcards.ArchiveIntervalDays = defaultArchiveDays
	}
}

// Validate checks the values Normalize cannot repair.
func (c *Config) Validate() error {
	var errs []error
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone %q: %w", c.Timezone, err))
	}
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		errs = append(errs, fmt.Errorf("refresh %q: %w", c.RefreshCron, err))
	}
	if c.Export.Path != "" {
		if _, err := cron.ParseStandard(c.Export.Cron); err != nil {
			errs = append(errs, fmt.Errorf("export.cron %q: %w", c.Export.Cron, err))
		}
	}
	seen := make(map[string]struct{}, len(c.ICS))
	for _, src := range c.ICS {
		if src.URL == "" {
			errs = append(errs, fmt.Errorf("ics %q: url is required", src.ID))
		}
		if _, dup := seen[src.ID]; dup {
			errs = append(errs, fmt.Errorf("ics %q: duplicate id", src.ID))
		}
		seen[src.ID] = struct{}{}
	}
	if c.BasicAuth != nil && (c.BasicAuth.Username == "" || c.BasicAuth.Password == "") {
		errs = append(errs, errors.New("basic_auth: username and password are required"))
	}
	return errors.Join(errs...)
}

// Location loads Timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Load reads the YAML file at path. A missing file is created with the
// defaults (0600) and those defaults are returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	cfg.Normalize()
	return &cfg, nil
}

// Save writes cfg atomically (temp file + rename) with 0600 permissions,
// creating the parent directory (0700) when needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}
	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".studyverse-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
