package scraper

import (
	"context"
	"sort"
	"time"

	"subscraper/pkg/config"
	errs "subscraper/pkg/errors"
	"subscraper/pkg/logger"
	"subscraper/pkg/models"
	"subscraper/pkg/pushshift"
	"subscraper/pkg/retry"
)

// TruncationWarning describes a window whose page reached the truncation
// threshold and may have been cut short upstream
type TruncationWarning struct {
	Subreddit string
	After     time.Time
	Before    time.Time
	Count     int
	Threshold int
}

// WalkStats summarizes one Fetch
type WalkStats struct {
	Requests    int
	CachedPages int
	Records     int
	Truncations int
}

// Walker walks a time range in bounded windows against the bulk search API
type Walker struct {
	client SearchClient
	cfg    config.WalkerConfig
	logger logger.Logger

	// OnTruncation, when set, is called for every window that reaches the
	// truncation threshold
	OnTruncation func(TruncationWarning)

	// wait pauses between uncached requests
	wait func(ctx context.Context, d time.Duration) error

	stats WalkStats
}

// NewWalker creates a walker. Zero PageSize and TruncationThreshold take
// their defaults; a threshold above PageSize is lowered to it.
func NewWalker(client SearchClient, cfg config.WalkerConfig, log logger.Logger) *Walker {
	if log == nil {
		log = logger.GetLogger()
	}
	if cfg.PageSize <= 0 || cfg.PageSize > pushshift.MaxPageSize {
		cfg.PageSize = pushshift.MaxPageSize
	}
	if cfg.TruncationThreshold <= 0 {
		cfg.TruncationThreshold = 100
	}
	// a full page must always count as possibly truncated
	if cfg.TruncationThreshold > cfg.PageSize {
		cfg.TruncationThreshold = cfg.PageSize
	}
	return &Walker{
		client: client,
		cfg:    cfg,
		logger: log,
		wait:   retry.Wait,
	}
}

// Stats returns the counters of the most recent Fetch
func (w *Walker) Stats() WalkStats {
	return w.stats
}

// Fetch returns every submission to subreddit created in [start, end), in
// the order the windows were walked. A start at or after end yields an
// empty slice.
func (w *Walker) Fetch(ctx context.Context, subreddit string, start, end time.Time) ([]models.Submission, error) {
	w.stats = WalkStats{}

	if subreddit == "" {
		return nil, errs.New("walker", errs.ErrorTypeValidation, 0, "subreddit is required")
	}
	if w.cfg.Window <= 0 {
		return nil, errs.New("walker", errs.ErrorTypeValidation, 0, "window must be positive")
	}
	if w.cfg.Pace < 0 {
		return nil, errs.New("walker", errs.ErrorTypeValidation, 0, "pace cannot be negative")
	}

	results := make([]models.Submission, 0)
	log := w.logger.WithField("subreddit", subreddit)

	cursor := start
	for cursor.Before(end) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		windowEnd := cursor.Add(w.cfg.Window)
		if w.cfg.ClampToEnd && windowEnd.After(end) {
			windowEnd = end
		}

		page, err := w.client.Search(ctx, pushshift.Query{
			Subreddit: subreddit,
			After:     cursor,
			Before:    windowEnd,
			Size:      w.cfg.PageSize,
		})
		if err != nil {
			return nil, err
		}
		w.stats.Requests++
		if page.FromCache {
			w.stats.CachedPages++
		}

		records := page.Submissions
		if w.cfg.SortPages {
			sortByCreated(records)
		}
		results = append(results, records...)
		logger.LogWindow(log, subreddit, cursor, windowEnd, len(records), page.FromCache)

		if len(records) >= w.cfg.TruncationThreshold {
			w.stats.Truncations++
			logger.LogTruncation(log, subreddit, cursor, windowEnd, len(records), w.cfg.TruncationThreshold)
			if w.OnTruncation != nil {
				w.OnTruncation(TruncationWarning{
					Subreddit: subreddit,
					After:     cursor,
					Before:    windowEnd,
					Count:     len(records),
					Threshold: w.cfg.TruncationThreshold,
				})
			}
		}

		next := windowEnd
		if len(records) > 0 {
			last, err := records[len(records)-1].CreatedUTC()
			if err != nil {
				return nil, errs.Wrap("walker", errs.ErrorTypeParsing, 0, err, "cannot advance cursor")
			}
			next = time.Unix(last, 0)
			if !next.After(cursor) {
				log.WarnWithFields("page did not advance the cursor, skipping to window end", map[string]interface{}{
					"cursor":     cursor.UTC(),
					"last":       next.UTC(),
					"window_end": windowEnd.UTC(),
				})
				next = windowEnd
			}
		}
		cursor = next

		if !page.FromCache && w.cfg.Pace > 0 {
			if err := w.wait(ctx, w.cfg.Pace); err != nil {
				return nil, err
			}
		}
	}

	w.stats.Records = len(results)
	logger.LogMetrics(log, "walk", map[string]interface{}{
		"requests":     w.stats.Requests,
		"cached_pages": w.stats.CachedPages,
		"records":      w.stats.Records,
		"truncations":  w.stats.Truncations,
	})
	return results, nil
}

// sortByCreated stable-sorts records by created_utc ascending. Records were
// validated by the client, so parse failures sort first and are caught when
// the cursor advances.
func sortByCreated(records []models.Submission) {
	sort.SliceStable(records, func(i, j int) bool {
		a, _ := records[i].CreatedUTC()
		b, _ := records[j].CreatedUTC()
		return a < b
	})
}
