// Package config loads letterbox configuration from defaults, an optional
// YAML file and the environment, in that order of precedence.
package config

import (
	"net"
	"strconv"
	"time"

	"github.com/bryan-buckman/letterbox/internal/database"
	"github.com/bryan-buckman/letterbox/internal/logging"
)

// Config is the complete application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Store    StoreConfig    `koanf:"store"`
	Supabase SupabaseConfig `koanf:"supabase"`
	Auth     AuthConfig     `koanf:"auth"`
	Import   ImportConfig   `koanf:"import"`
	Log      LogConfig      `koanf:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	CORSOrigins     []string      `koanf:"cors_origins"`

	// RateLimit caps subscribe, register and login requests per client IP
	// within RateWindow. Zero disables the limit.
	RateLimit  int           `koanf:"rate_limit" validate:"gte=0"`
	RateWindow time.Duration `koanf:"rate_window"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver string `koanf:"driver" validate:"oneof=sqlite postgres supabase"`
	Path   string `koanf:"path"`
	DSN    string `koanf:"dsn"`
	Seed   bool   `koanf:"seed"`

	// SeedFile replaces the built-in sample letters with a JSON array of letters.
	SeedFile string `koanf:"seed_file"`
}

// SupabaseConfig holds the hosted project settings shared by the Supabase
// store and the Supabase auth provider.
type SupabaseConfig struct {
	URL        string                  `koanf:"url" validate:"omitempty,url"`
	AnonKey    string                  `koanf:"anon_key"`
	ServiceKey string                  `koanf:"service_key"`
	Timeout    time.Duration           `koanf:"timeout"`
	Tables     database.SupabaseTables `koanf:"tables"`
}

// AuthConfig configures identity, tokens and browser sessions.
type AuthConfig struct {
	Provider       string        `koanf:"provider" validate:"oneof=local supabase"`
	JWTSecret      string        `koanf:"jwt_secret"`
	TokenTTL       time.Duration `koanf:"token_ttl" validate:"gt=0"`
	SessionBackend string        `koanf:"session_backend" validate:"oneof=memory badger"`
	SessionPath    string        `koanf:"session_path"`
	SessionTTL     time.Duration `koanf:"session_ttl" validate:"gt=0"`
	SweepInterval  time.Duration `koanf:"sweep_interval" validate:"gt=0"`
	CookieName     string        `koanf:"cookie_name" validate:"required"`
	CookieSecure   bool          `koanf:"cookie_secure"`
}

// ImportConfig configures the feed importer. No feeds disables it.
type ImportConfig struct {
	Feeds []string `koanf:"feeds" validate:"dive,url"`
	// OPML is an optional OPML file whose feeds are imported alongside Feeds.
	OPML     string        `koanf:"opml"`
	Interval time.Duration `koanf:"interval"`
	Timeout  time.Duration `koanf:"timeout"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `koanf:"level" validate:"omitempty,oneof=trace debug info warn error fatal panic disabled"`
	Format string `koanf:"format" validate:"omitempty,oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// Logging converts the log section for logging.New.
func (c LogConfig) Logging() logging.Config {
	return logging.Config{Level: c.Level, Format: c.Format, Caller: c.Caller}
}

// OpenOptions converts the store and supabase sections for database.Open.
func (c *Config) OpenOptions() database.OpenOptions {
	return database.OpenOptions{
		Driver: c.Store.Driver,
		Path:   c.Store.Path,
		DSN:    c.Store.DSN,
		Supabase: database.SupabaseConfig{
			URL:        c.Supabase.URL,
			ServiceKey: c.Supabase.ServiceKey,
			Timeout:    c.Supabase.Timeout,
			Tables:     c.Supabase.Tables,
		},
	}
}

// HasFeeds reports whether any feed source is configured.
func (c ImportConfig) HasFeeds() bool {
	return len(c.Feeds) > 0 || c.OPML != ""
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            5000,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimit:       20,
			RateWindow:      time.Minute,
		},
		Store: StoreConfig{
			Driver: database.DriverSQLite,
			Path:   "letterbox.db",
			Seed:   true,
		},
		Supabase: SupabaseConfig{
			Timeout: 30 * time.Second,
			Tables:  database.DefaultSupabaseTables(),
		},
		Auth: AuthConfig{
			Provider:       "local",
			TokenTTL:       24 * time.Hour,
			SessionBackend: "memory",
			SessionPath:    "data/sessions",
			SessionTTL:     7 * 24 * time.Hour,
			SweepInterval:  10 * time.Minute,
			CookieName:     "letterbox_session",
		},
		Import: ImportConfig{
			Interval: time.Hour,
			Timeout:  30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
