// Package rss imports letters from RSS and Atom feeds.
package rss

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bryan-buckman/letterbox/internal/database"
	"github.com/bryan-buckman/letterbox/internal/metrics"
	"github.com/bryan-buckman/letterbox/internal/model"
	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"
)

// DelayBetweenDomainRequests is the minimum delay between requests to the same host.
const DelayBetweenDomainRequests = 500 * time.Millisecond

const userAgent = "letterbox-importer/1.0"

// domainLimiter spaces out requests to the same host.
type domainLimiter struct {
	mu          sync.Mutex
	delay       time.Duration
	lastRequest map[string]time.Time
}

func newDomainLimiter(delay time.Duration) *domainLimiter {
	return &domainLimiter{delay: delay, lastRequest: make(map[string]time.Time)}
}

// wait blocks until delay has passed since the last request to domain.
func (dl *domainLimiter) wait(ctx context.Context, domain string) error {
	dl.mu.Lock()
	last := dl.lastRequest[domain]
	dl.mu.Unlock()

	if last.IsZero() || dl.delay <= 0 {
		return nil
	}
	if remaining := dl.delay - time.Since(last); remaining > 0 {
		t := time.NewTimer(remaining)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (dl *domainLimiter) done(domain string) {
	dl.mu.Lock()
	dl.lastRequest[domain] = time.Now()
	dl.mu.Unlock()
}

// extractDomain gets the host from a URL.
func extractDomain(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil {
		return feedURL
	}
	return u.Host
}

// Options configures an Importer.
type Options struct {
	Feeds   []string
	Timeout time.Duration // per-feed HTTP timeout; zero means 30s
	Delay   time.Duration // minimum spacing between requests to one host
}

// Importer turns feed items into letters. Items are numbered after the
// highest existing letter number, oldest first. An item whose GUID (or link)
// is already stored as a letter's source id is skipped.
type Importer struct {
	store   database.Store
	parser  *gofeed.Parser
	feeds   []string
	limiter *domainLimiter
	metrics *metrics.Metrics
	log     zerolog.Logger

	// mu serializes imports so number assignment does not race.
	mu sync.Mutex
}

// NewImporter creates an importer. m may be nil.
func NewImporter(store database.Store, opts Options, m *metrics.Metrics, log zerolog.Logger) *Importer {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: timeout}
	parser.UserAgent = userAgent

	return &Importer{
		store:   store,
		parser:  parser,
		feeds:   opts.Feeds,
		limiter: newDomainLimiter(opts.Delay),
		metrics: m,
		log:     log.With().Str("component", "importer").Logger(),
	}
}

// Import fetches every configured feed and returns the number of letters
// created. A failing feed does not stop the others; their errors are joined.
func (im *Importer) Import(ctx context.Context) (int, error) {
	im.mu.Lock()
	defer im.mu.Unlock()

	total := 0
	var errs []error
	for _, feedURL := range im.feeds {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		n, err := im.importFeed(ctx, feedURL)
		total += n
		if err != nil {
			im.log.Warn().Err(err).Str("feed", feedURL).Msg("feed import failed")
			errs = append(errs, err)
		}
	}

	err := errors.Join(errs...)
	im.metrics.Imported(total, err)
	return total, err
}

func (im *Importer) importFeed(ctx context.Context, feedURL string) (int, error) {
	domain := extractDomain(feedURL)
	if err := im.limiter.wait(ctx, domain); err != nil {
		return 0, fmt.Errorf("wait for %s: %w", domain, err)
	}
	parsed, err := im.parser.ParseURLWithContext(feedURL, ctx)
	im.limiter.done(domain)
	if err != nil {
		return 0, fmt.Errorf("parse feed %s: %w", feedURL, err)
	}

	items := make([]*gofeed.Item, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if sourceID(item) != "" {
			items = append(items, item)
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return publishedAt(items[i], time.Time{}).Before(publishedAt(items[j], time.Time{}))
	})

	next, err := im.store.MaxLetterNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("max letter number: %w", err)
	}

	now := time.Now().UTC()
	created := 0
	for _, item := range items {
		guid := sourceID(item)
		if _, err := im.store.GetLetterBySource(ctx, guid); err == nil {
			continue
		} else if !errors.Is(err, database.ErrNotFound) {
			return created, fmt.Errorf("lookup %s: %w", guid, err)
		}

		next++
		letter := &model.StoredLetter{
			Number:      next,
			Title:       strings.TrimSpace(item.Title),
			Description: strings.TrimSpace(item.Description),
			Markdown:    itemBody(item),
			PublishedAt: publishedAt(item, now),
			SourceID:    guid,
		}
		if _, err := im.store.CreateLetter(ctx, letter); err != nil {
			return created, fmt.Errorf("store letter %d from %s: %w", next, guid, err)
		}
		created++
	}

	if created > 0 {
		im.log.Info().Str("feed", feedURL).Int("created", created).Msg("letters imported")
	}
	return created, nil
}

func sourceID(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	return item.Link
}

func itemBody(item *gofeed.Item) string {
	if body := strings.TrimSpace(item.Content); body != "" {
		return body
	}
	return strings.TrimSpace(item.Description)
}

func publishedAt(item *gofeed.Item, fallback time.Time) time.Time {
	switch {
	case item.PublishedParsed != nil:
		return item.PublishedParsed.UTC()
	case item.UpdatedParsed != nil:
		return item.UpdatedParsed.UTC()
	}
	return fallback
}
