package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bryan-buckman/letterbox/internal/database"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints, then the rules spanning sections.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateAuth(); err != nil {
		return err
	}
	if c.Import.HasFeeds() && c.Import.Interval <= 0 {
		return fmt.Errorf("import.interval must be positive when feeds are configured")
	}
	if c.Server.RateLimit > 0 && c.Server.RateWindow <= 0 {
		return fmt.Errorf("server.rate_window must be positive when rate_limit is set")
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Driver {
	case database.DriverSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite driver")
		}
	case database.DriverPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn (DATABASE_URL) is required for the postgres driver")
		}
	case database.DriverSupabase:
		if c.Supabase.URL == "" || c.Supabase.ServiceKey == "" {
			return fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY are required for the supabase driver")
		}
	}
	return nil
}

func (c *Config) validateAuth() error {
	switch c.Auth.Provider {
	case "local":
		if c.Store.Driver == database.DriverSupabase {
			return fmt.Errorf("local auth needs a SQL store; use auth.provider=supabase with the supabase driver")
		}
	case "supabase":
		if c.Supabase.URL == "" || c.Supabase.ServiceKey == "" || c.Supabase.AnonKey == "" {
			return fmt.Errorf("supabase auth requires SUPABASE_URL, SUPABASE_ANON_KEY and SUPABASE_SERVICE_ROLE_KEY")
		}
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret (JWT_SECRET) is required")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("auth.jwt_secret must be at least 16 characters")
	}
	if c.Auth.SessionBackend == "badger" && c.Auth.SessionPath == "" {
		return fmt.Errorf("auth.session_path is required for the badger session backend")
	}
	return nil
}
