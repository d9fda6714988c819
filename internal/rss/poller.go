package rss

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// MinPollInterval is the shortest allowed interval between imports.
const MinPollInterval = time.Minute

// Poller runs the importer on a fixed interval. It implements suture.Service.
type Poller struct {
	importer *Importer
	interval time.Duration
	log      zerolog.Logger
}

// NewPoller creates a poller. Intervals below MinPollInterval are raised to it.
func NewPoller(importer *Importer, interval time.Duration, log zerolog.Logger) *Poller {
	if interval < MinPollInterval {
		interval = MinPollInterval
	}
	return &Poller{
		importer: importer,
		interval: interval,
		log:      log.With().Str("component", "poller").Logger(),
	}
}

// Serve imports once immediately, then every interval until ctx is done.
func (p *Poller) Serve(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.runOnce(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Poller) runOnce(ctx context.Context) {
	// Bound a run so a hung feed cannot stall the next tick.
	runCtx, cancel := context.WithTimeout(ctx, p.interval)
	defer cancel()

	n, err := p.importer.Import(runCtx)
	if err != nil {
		p.log.Error().Err(err).Int("created", n).Msg("import run finished with errors")
		return
	}
	p.log.Debug().Int("created", n).Dur("interval", p.interval).Msg("import run finished")
}

// String names the service in supervisor logs.
func (p *Poller) String() string { return "feed-poller" }
