package database

import "fmt"

// Supported store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverSupabase = "supabase"
)

// OpenOptions selects and configures a backend.
type OpenOptions struct {
	Driver   string
	Path     string // SQLite file
	DSN      string // PostgreSQL connection string
	Supabase SupabaseConfig
}

// Open returns the store for the configured driver.
func Open(opts OpenOptions) (Store, error) {
	switch opts.Driver {
	case DriverSQLite, "":
		return New(opts.Path)
	case DriverPostgres:
		return NewPostgres(opts.DSN)
	case DriverSupabase:
		return NewSupabase(opts.Supabase)
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}
