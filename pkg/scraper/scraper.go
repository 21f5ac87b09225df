package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"subscraper/pkg/cache"
	"subscraper/pkg/config"
	"subscraper/pkg/httpcache"
	"subscraper/pkg/logger"
	"subscraper/pkg/models"
	"subscraper/pkg/pushshift"
	"subscraper/pkg/reddit"
	"subscraper/pkg/retry"
)

// Downloader wires the walker and the enricher to their clients and caches
type Downloader struct {
	walker   *Walker
	enricher *Enricher
	store    cache.Store
	config   *config.Config
	logger   logger.Logger
	runID    string
}

// New creates a Downloader from cfg, opening the configured cache store.
// Call Close to release it.
func New(cfg *config.Config) (*Downloader, error) {
	runID := uuid.NewString()
	log := logger.GetLogger().WithField("run_id", runID)

	store, err := cache.Open(cfg.Cache)
	if err != nil {
		log.WithError(err).Error("Failed to open cache store")
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	retryCfg := retry.FromConfig(cfg.Retry, log)

	transport := httpcache.NewTransport(nil, store, cfg.Cache.HTTPTTL, log)
	transport.Validate = pushshift.ValidPage
	search := pushshift.NewClient(cfg.Pushshift.Timeout, log,
		pushshift.WithBaseURL(cfg.Pushshift.BaseURL),
		pushshift.WithUserAgent(cfg.Pushshift.UserAgent),
		pushshift.WithHTTPClient(transport.Client(cfg.Pushshift.Timeout)),
		pushshift.WithRetry(retryCfg),
	)
	lookup := reddit.NewClient(cfg.Reddit, log, reddit.WithRetry(retryCfg))

	log.InfoWithFields("Downloader ready", map[string]interface{}{
		"cache_backend": cfg.Cache.Backend,
		"reddit_oauth":  lookup.Authenticated(),
		"retry":         cfg.Retry.Enabled,
	})

	d := NewWithClients(cfg, search, lookup, store, log)
	d.runID = runID
	return d, nil
}

// NewWithClients builds a Downloader around existing collaborators
func NewWithClients(cfg *config.Config, search SearchClient, lookup LiveLookup, store cache.Store, log logger.Logger) *Downloader {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Downloader{
		walker:   NewWalker(search, cfg.Walker, log.WithField("component", "walker")),
		enricher: NewEnricher(lookup, store, cfg.Enrichment, cfg.Cache.EnrichmentTTL, log.WithField("component", "enricher")),
		store:    store,
		config:   cfg,
		logger:   log,
	}
}

// RunID identifies this Downloader in logs
func (d *Downloader) RunID() string {
	return d.runID
}

// Walker exposes the underlying walker, e.g. to set OnTruncation
func (d *Downloader) Walker() *Walker {
	return d.walker
}

// GetSubredditSubmissions fetches every submission in [start, end)
func (d *Downloader) GetSubredditSubmissions(ctx context.Context, subreddit string, start, end time.Time) ([]models.Submission, error) {
	d.logger.InfoWithFields("Fetching submissions", map[string]interface{}{
		"subreddit": subreddit,
		"start":     start.UTC(),
		"end":       end.UTC(),
		"window":    d.config.Walker.Window,
	})

	records, err := d.walker.Fetch(ctx, subreddit, start, end)
	if err != nil {
		d.logger.WithError(err).WithField("subreddit", subreddit).Error("Failed to fetch submissions")
		return nil, err
	}
	return records, nil
}

// UpdateSubredditSubmissions refreshes attributes on records in place from
// the live API
func (d *Downloader) UpdateSubredditSubmissions(ctx context.Context, records []models.Submission, attributes []string) (*EnrichReport, error) {
	report, err := d.enricher.Enrich(ctx, records, attributes)
	if err != nil {
		d.logger.WithError(err).Error("Failed to update submissions")
		return report, err
	}
	return report, nil
}

// Close releases the cache store
func (d *Downloader) Close() error {
	if d.store == nil {
		return nil
	}
	return d.store.Close()
}
