package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // calendar.timezone must resolve on minimal images

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// The values are read by Viper from a config file or environment variables.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Calendar CalendarConfig `mapstructure:"calendar"`
	Resync   ResyncConfig   `mapstructure:"resync"`
	AutoSync AutoSyncConfig `mapstructure:"autosync"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Database drivers
const (
	DriverMongo  = "mongo"
	DriverMemory = "memory" // Process-local, for demos and local runs
)

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	URI    string `mapstructure:"uri"`
	Name   string `mapstructure:"name"`
}

// JWTConfig defines JWT specific configuration
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

// CalendarConfig configures the Google OAuth client and the sync timings. Each trainer's
// refresh token is stored with the trainer. With Enabled=false every trainer gets an
// in-memory calendar.
type CalendarConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// CalendarID is used for trainers who did not pick a calendar.
	CalendarID    string        `mapstructure:"calendar_id"`
	ClientID      string        `mapstructure:"client_id"`
	ClientSecret  string        `mapstructure:"client_secret"`
	TimeZone      string        `mapstructure:"timezone"`
	EventDuration time.Duration `mapstructure:"event_duration"`
	SettleDelay   time.Duration `mapstructure:"settle_delay"`
	ImportPast    time.Duration `mapstructure:"import_past"`
	ImportFuture  time.Duration `mapstructure:"import_future"`
}

// Location loads the configured wall-clock time zone.
func (c CalendarConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("calendar.timezone %q: %w", c.TimeZone, err)
	}
	return loc, nil
}

type ResyncConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Lease        time.Duration `mapstructure:"lease"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	UpdateDelay  time.Duration `mapstructure:"update_delay"`
	Scope        string        `mapstructure:"scope"`
}

// AutoSyncConfig schedules the periodic calendar import for opted-in trainers.
type AutoSyncConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"` // cron spec, e.g. "@every 15m"
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// server.address -> SERVER_ADDRESS, calendar.timezone -> CALENDAR_TIMEZONE
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`))

	setDefaults(v)

	err = v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		// No file, defaults and env vars only
		err = nil
	} else if err != nil {
		return config, fmt.Errorf("read config: %w", err)
	}

	if err = v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("unmarshal config: %w", err)
	}
	return config, config.Validate()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.shutdown_timeout", "5s")
	v.SetDefault("database.driver", DriverMongo)
	v.SetDefault("database.uri", "mongodb://localhost:27017")
	v.SetDefault("database.name", "fitness_calendar")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("calendar.enabled", false)
	v.SetDefault("calendar.calendar_id", "primary")
	v.SetDefault("calendar.client_id", "")
	v.SetDefault("calendar.client_secret", "")
	v.SetDefault("calendar.timezone", "Asia/Jerusalem")
	v.SetDefault("calendar.event_duration", "1h")
	v.SetDefault("calendar.settle_delay", "1s")
	v.SetDefault("calendar.import_past", "168h")
	v.SetDefault("calendar.import_future", "168h")
	v.SetDefault("resync.poll_interval", "5s")
	v.SetDefault("resync.lease", "2m")
	v.SetDefault("resync.max_attempts", 5)
	v.SetDefault("resync.update_delay", "100ms")
	v.SetDefault("resync.scope", "current_month_and_future")
	v.SetDefault("autosync.enabled", false)
	v.SetDefault("autosync.schedule", "@every 15m")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case DriverMongo, DriverMemory:
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverMongo, DriverMemory, c.Database.Driver)
	}
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret is required")
	}
	if _, err := c.Calendar.Location(); err != nil {
		return err
	}
	if c.Calendar.Enabled && (c.Calendar.ClientID == "" || c.Calendar.ClientSecret == "") {
		return errors.New("calendar.client_id and calendar.client_secret are required when calendar.enabled is set")
	}
	if c.Calendar.EventDuration <= 0 {
		return errors.New("calendar.event_duration must be positive")
	}
	if c.Resync.MaxAttempts < 1 {
		return errors.New("resync.max_attempts must be at least 1")
	}
	return nil
}
