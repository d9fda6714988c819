package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the config files searched in order; the first
// one found is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/letterbox/config.yaml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Load reads configuration with precedence env > file > defaults. A .env
// file in the working directory is loaded into the environment first;
// variables already set are not overwritten.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return LoadFile(findConfigFile())
}

// LoadFile is Load without the .env step, reading the YAML file at path
// when path is not empty.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// sliceConfigPaths are parsed from comma-separated strings when they come
// from the environment.
var sliceConfigPaths = []string{
	"server.cors_origins",
	"import.feeds",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		str, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := strings.Split(str, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to config keys.
// Variables not listed are ignored.
var envMappings = map[string]string{
	"http_host":        "server.host",
	"port":             "server.port",
	"read_timeout":     "server.read_timeout",
	"write_timeout":    "server.write_timeout",
	"shutdown_timeout": "server.shutdown_timeout",
	"cors_origins":     "server.cors_origins",
	"rate_limit":       "server.rate_limit",
	"rate_window":      "server.rate_window",

	"store_driver": "store.driver",
	"db_path":      "store.path",
	"database_url": "store.dsn",
	"seed_letters": "store.seed",
	"seed_file":    "store.seed_file",

	"supabase_url":              "supabase.url",
	"supabase_anon_key":         "supabase.anon_key",
	"supabase_service_role_key": "supabase.service_key",
	"supabase_timeout":          "supabase.timeout",

	"auth_provider":   "auth.provider",
	"jwt_secret":      "auth.jwt_secret",
	"token_ttl":       "auth.token_ttl",
	"session_backend": "auth.session_backend",
	"session_path":    "auth.session_path",
	"session_ttl":     "auth.session_ttl",
	"session_sweep":   "auth.sweep_interval",
	"cookie_name":     "auth.cookie_name",
	"cookie_secure":   "auth.cookie_secure",

	"letter_feeds":    "import.feeds",
	"letter_opml":     "import.opml",
	"import_interval": "import.interval",
	"import_timeout":  "import.timeout",

	"log_level":  "log.level",
	"log_format": "log.format",
	"log_caller": "log.caller",
}

// envTransformFunc maps an environment variable to its config key, or
// returns "" so koanf skips it.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
