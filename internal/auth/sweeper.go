package auth

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper removes expired sessions at a fixed interval. It runs as a
// supervised service.
type Sweeper struct {
	store    SessionStore
	interval time.Duration
	log      zerolog.Logger
}

// NewSweeper returns a sweeper for store.
func NewSweeper(store SessionStore, interval time.Duration, log zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Sweeper{store: store, interval: interval, log: log.With().Str("component", "session-sweeper").Logger()}
}

// Serve implements suture.Service.
func (s *Sweeper) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one cleanup pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	n, err := s.store.CleanupExpired(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("session cleanup failed")
		return
	}
	if n > 0 {
		s.log.Debug().Int("removed", n).Msg("expired sessions removed")
	}
}

func (s *Sweeper) String() string { return "session-sweeper" }
