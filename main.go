package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/bryan-buckman/letterbox/internal/auth"
	"github.com/bryan-buckman/letterbox/internal/config"
	"github.com/bryan-buckman/letterbox/internal/database"
	"github.com/bryan-buckman/letterbox/internal/letters"
	"github.com/bryan-buckman/letterbox/internal/logging"
	"github.com/bryan-buckman/letterbox/internal/metrics"
	"github.com/bryan-buckman/letterbox/internal/opml"
	"github.com/bryan-buckman/letterbox/internal/reading"
	"github.com/bryan-buckman/letterbox/internal/rss"
	"github.com/bryan-buckman/letterbox/internal/server"
	"github.com/bryan-buckman/letterbox/internal/subscription"
	"github.com/bryan-buckman/letterbox/internal/supervisor"
	"github.com/rs/zerolog"
)

func main() {
	boot := logging.New(logging.DefaultConfig())

	cfg, err := config.Load()
	if err != nil {
		boot.Fatal().Err(err).Msg("load config")
	}
	log := logging.New(cfg.Log.Logging())

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("letterbox stopped")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := database.Open(cfg.OpenOptions())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()
	log.Info().Str("store", store.DatabaseType()).Msg("store opened")

	if cfg.Store.Seed {
		seed := database.SampleLetters()
		if cfg.Store.SeedFile != "" {
			if seed, err = database.LoadLetters(cfg.Store.SeedFile); err != nil {
				return fmt.Errorf("load seed file: %w", err)
			}
		}
		n, err := database.SeedLetters(ctx, store, seed)
		if err != nil {
			return fmt.Errorf("seed letters: %w", err)
		}
		if n > 0 {
			log.Info().Int("letters", n).Msg("letters seeded")
		}
	}

	users, err := newProvider(cfg, store)
	if err != nil {
		return err
	}
	tokens, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("token issuer: %w", err)
	}
	sessions, err := newSessionStore(cfg)
	if err != nil {
		return err
	}
	defer sessions.Close()

	m := metrics.New()
	srv, err := server.New(server.Options{
		Letters:       letters.NewService(store),
		Recorder:      reading.NewRecorder(store, users, m, log),
		Subscriptions: subscription.NewService(store, users, m, log),
		Users:         users,
		Tokens:        tokens,
		Auth: auth.NewMiddleware(sessions, tokens, auth.MiddlewareConfig{
			CookieName:   cfg.Auth.CookieName,
			CookieSecure: cfg.Auth.CookieSecure,
			SessionTTL:   cfg.Auth.SessionTTL,
		}, log),
		Metrics:     m,
		Logger:      log,
		StoreName:   store.DatabaseType(),
		CORSOrigins: cfg.Server.CORSOrigins,
		RateLimit:   cfg.Server.RateLimit,
		RateWindow:  cfg.Server.RateWindow,
	})
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	tree := supervisor.NewTree(log, supervisor.TreeConfig{ShutdownTimeout: cfg.Server.ShutdownTimeout})
	tree.AddAPIService(supervisor.NewHTTPService(&http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, cfg.Server.ShutdownTimeout))
	tree.AddBackgroundService(auth.NewSweeper(sessions, cfg.Auth.SweepInterval, log))

	if cfg.Import.HasFeeds() {
		feeds, err := feedList(cfg.Import)
		if err != nil {
			return err
		}
		importer := rss.NewImporter(store, rss.Options{
			Feeds:   feeds,
			Timeout: cfg.Import.Timeout,
			Delay:   rss.DelayBetweenDomainRequests,
		}, m, log)
		tree.AddBackgroundService(rss.NewPoller(importer, cfg.Import.Interval, log))
	}

	log.Info().Str("addr", cfg.Server.Addr()).Msg("letterbox starting")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("letterbox stopped")
	return nil
}

// feedList merges the configured feed URLs with those of the OPML file.
func feedList(cfg config.ImportConfig) ([]string, error) {
	if cfg.OPML == "" {
		return cfg.Feeds, nil
	}
	urls, err := opml.FeedURLs(cfg.OPML)
	if err != nil {
		return nil, fmt.Errorf("read feed list: %w", err)
	}
	return opml.MergeURLs(cfg.Feeds, urls), nil
}

func newProvider(cfg *config.Config, store database.Store) (auth.Provider, error) {
	switch cfg.Auth.Provider {
	case "supabase":
		p, err := auth.NewSupabaseProvider(auth.SupabaseConfig{
			URL:        cfg.Supabase.URL,
			AnonKey:    cfg.Supabase.AnonKey,
			ServiceKey: cfg.Supabase.ServiceKey,
			Timeout:    cfg.Supabase.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("supabase auth: %w", err)
		}
		return p, nil
	default:
		creds, ok := store.(database.CredentialStore)
		if !ok {
			return nil, fmt.Errorf("local auth needs a SQL store, got %s", store.DatabaseType())
		}
		return auth.NewLocalProvider(creds, 0), nil
	}
}

func newSessionStore(cfg *config.Config) (auth.SessionStore, error) {
	if cfg.Auth.SessionBackend == "badger" {
		s, err := auth.OpenBadgerSessionStore(cfg.Auth.SessionPath)
		if err != nil {
			return nil, fmt.Errorf("open session store: %w", err)
		}
		return s, nil
	}
	return auth.NewMemorySessionStore(), nil
}
