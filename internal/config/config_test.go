package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_DefaultsAndEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("CALENDAR_SETTLE_DELAY", "250ms")
	t.Setenv("RESYNC_MAX_ATTEMPTS", "3")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, DriverMongo, cfg.Database.Driver)
	assert.Equal(t, "s3cret", cfg.JWT.Secret)
	assert.Equal(t, "Asia/Jerusalem", cfg.Calendar.TimeZone)
	assert.Equal(t, time.Hour, cfg.Calendar.EventDuration)
	assert.Equal(t, 250*time.Millisecond, cfg.Calendar.SettleDelay)
	assert.Equal(t, 168*time.Hour, cfg.Calendar.ImportFuture)
	assert.Equal(t, 3, cfg.Resync.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.Resync.UpdateDelay)
	assert.Equal(t, "current_month_and_future", cfg.Resync.Scope)
}

func TestLoadConfig_File(t *testing.T) {
	dir := t.TempDir()
	yaml := `
database:
  driver: memory
jwt:
  secret: from-file
calendar:
  timezone: UTC
  event_duration: 45m
autosync:
  enabled: true
  schedule: "*/5 * * * *"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.Equal(t, 45*time.Minute, cfg.Calendar.EventDuration)
	assert.True(t, cfg.AutoSync.Enabled)
	assert.Equal(t, "*/5 * * * *", cfg.AutoSync.Schedule)
	loc, err := cfg.Calendar.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	valid := func() Config {
		return Config{
			Database: DatabaseConfig{Driver: DriverMemory},
			JWT:      JWTConfig{Secret: "x"},
			Calendar: CalendarConfig{TimeZone: "UTC", EventDuration: time.Hour},
			Resync:   ResyncConfig{MaxAttempts: 1},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{name: "valid", mutate: func(*Config) {}, ok: true},
		{name: "unknown driver", mutate: func(c *Config) { c.Database.Driver = "postgres" }},
		{name: "missing secret", mutate: func(c *Config) { c.JWT.Secret = "" }},
		{name: "bad timezone", mutate: func(c *Config) { c.Calendar.TimeZone = "Mars/Olympus" }},
		{name: "calendar without oauth client", mutate: func(c *Config) { c.Calendar.Enabled = true }},
		{name: "calendar without client secret", mutate: func(c *Config) {
			c.Calendar.Enabled = true
			c.Calendar.ClientID = "client"
		}},
		{name: "calendar with oauth client", ok: true, mutate: func(c *Config) {
			c.Calendar.Enabled = true
			c.Calendar.ClientID = "client"
			c.Calendar.ClientSecret = "secret"
		}},
		{name: "zero duration", mutate: func(c *Config) { c.Calendar.EventDuration = 0 }},
		{name: "no attempts", mutate: func(c *Config) { c.Resync.MaxAttempts = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
