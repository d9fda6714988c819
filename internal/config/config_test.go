package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bryan-buckman/letterbox/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123"

func TestLoadDefaultsWithEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("PORT", "8081")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("TOKEN_TTL", "2h")
	t.Setenv("SEED_FILE", "/srv/letters.json")

	cfg, err := LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:8081", cfg.Server.Addr())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 2*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, database.DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "status_carta", cfg.Supabase.Tables.ReadStatuses)
	assert.Equal(t, "memory", cfg.Auth.SessionBackend)
	assert.True(t, cfg.Store.Seed)
	assert.Equal(t, "/srv/letters.json", cfg.Store.SeedFile)
}

func TestLoadFileThenEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
store:
  driver: supabase
supabase:
  url: https://project.supabase.co
  anon_key: anon
  service_key: service
  tables:
    letters: cartas
auth:
  provider: supabase
  jwt_secret: from-file-secret-123
import:
  feeds:
    - https://letters.example/feed.xml
log:
  level: debug
`), 0o600))

	t.Setenv("PORT", "9100")
	t.Setenv("LOG_FORMAT", "console")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "cartas", cfg.Supabase.Tables.Letters)
	assert.Equal(t, "account_user", cfg.Supabase.Tables.Accounts)
	assert.Equal(t, []string{"https://letters.example/feed.xml"}, cfg.Import.Feeds)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)

	opts := cfg.OpenOptions()
	assert.Equal(t, database.DriverSupabase, opts.Driver)
	assert.Equal(t, "service", opts.Supabase.ServiceKey)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		cfg.Auth.JWTSecret = testSecret
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing secret", func(c *Config) { c.Auth.JWTSecret = "" }},
		{"short secret", func(c *Config) { c.Auth.JWTSecret = "short" }},
		{"unknown driver", func(c *Config) { c.Store.Driver = "mongo" }},
		{"postgres without dsn", func(c *Config) { c.Store.Driver = database.DriverPostgres }},
		{"supabase store without keys", func(c *Config) {
			c.Store.Driver = database.DriverSupabase
			c.Auth.Provider = "supabase"
		}},
		{"local auth on supabase store", func(c *Config) {
			c.Store.Driver = database.DriverSupabase
			c.Supabase.URL = "https://p.supabase.co"
			c.Supabase.ServiceKey = "k"
		}},
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"bad feed url", func(c *Config) { c.Import.Feeds = []string{"not a url"} }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
		{"badger without path", func(c *Config) {
			c.Auth.SessionBackend = "badger"
			c.Auth.SessionPath = ""
		}},
	}

	require.NoError(t, valid().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestImportFeedSources(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("LETTER_OPML", "/etc/letterbox/feeds.opml")

	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, "/etc/letterbox/feeds.opml", cfg.Import.OPML)
	assert.Empty(t, cfg.Import.Feeds)
	assert.True(t, cfg.Import.HasFeeds())

	t.Setenv("IMPORT_INTERVAL", "0s")
	_, err = LoadFile("")
	assert.Error(t, err)
}
