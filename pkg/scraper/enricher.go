package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"subscraper/pkg/cache"
	"subscraper/pkg/config"
	errs "subscraper/pkg/errors"
	"subscraper/pkg/logger"
	"subscraper/pkg/models"
)

// EnrichReport describes one Enrich call. Records is the slice that was
// passed in, mutated in place.
type EnrichReport struct {
	Records   []models.Submission
	Batches   int
	CacheHits int
	LiveCalls int
	// Missing lists fullnames the live API no longer resolves
	Missing []string
	// MissingAttributes counts requested attributes absent on a live thing
	MissingAttributes int
}

// Err returns a not_found error naming every missing record, or nil
func (r *EnrichReport) Err() error {
	if len(r.Missing) == 0 {
		return nil
	}
	return errs.New("reddit", errs.ErrorTypeNotFound, 0,
		fmt.Sprintf("%d record(s) no longer resolvable: %s", len(r.Missing), strings.Join(r.Missing, ", ")))
}

// Enricher copies live attributes onto historical records in fixed-size
// chunks, caching each chunk's lookup result
type Enricher struct {
	lookup LiveLookup
	store  cache.Store
	cfg    config.EnrichmentConfig
	ttl    time.Duration
	group  singleflight.Group
	logger logger.Logger
}

// NewEnricher creates an enricher. BatchSize outside 1..100 becomes 100.
func NewEnricher(lookup LiveLookup, store cache.Store, cfg config.EnrichmentConfig, ttl time.Duration, log logger.Logger) *Enricher {
	if log == nil {
		log = logger.GetLogger()
	}
	if store == nil {
		store = cache.NewMemory()
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > config.MaxBatchSize {
		cfg.BatchSize = config.MaxBatchSize
	}
	return &Enricher{
		lookup: lookup,
		store:  store,
		cfg:    cfg,
		ttl:    ttl,
		logger: log,
	}
}

// chunkKey returns the cache key of one chunk of fullnames
func (e *Enricher) chunkKey(fullnames []string) string {
	parts := fullnames
	if e.cfg.CanonicalKeys {
		parts = append([]string(nil), fullnames...)
		sort.Strings(parts)
	}
	return cache.Key(cache.NamespaceEnrichment, parts...)
}

// Enrich copies attributes from the live API onto records. When attributes
// is empty the configured defaults are used. A record the live API no
// longer knows is listed in the report and left untouched; only upstream
// faults return an error.
func (e *Enricher) Enrich(ctx context.Context, records []models.Submission, attributes []string) (*EnrichReport, error) {
	if len(attributes) == 0 {
		attributes = e.cfg.Attributes
	}
	report := &EnrichReport{Records: records}

	for start := 0; start < len(records); start += e.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		stop := start + e.cfg.BatchSize
		if stop > len(records) {
			stop = len(records)
		}
		chunk := records[start:stop]
		report.Batches++

		fullnames := make([]string, len(chunk))
		for i, rec := range chunk {
			fullnames[i] = rec.Fullname()
		}

		things, hit, err := e.resolve(ctx, fullnames, report)
		if err != nil {
			return report, err
		}
		if hit {
			report.CacheHits++
		}

		byName := make(map[string]models.Thing, len(things))
		for _, th := range things {
			byName[th.Name()] = th
		}

		missing := 0
		for i, rec := range chunk {
			th, ok := byName[fullnames[i]]
			if !ok {
				missing++
				report.Missing = append(report.Missing, fullnames[i])
				continue
			}
			for _, attr := range attributes {
				if attr == "id" {
					continue
				}
				v, ok := th.Attr(attr)
				if !ok {
					report.MissingAttributes++
					continue
				}
				rec[attr] = v
			}
		}
		logger.LogEnrichBatch(e.logger, report.Batches, len(chunk), hit, missing)
	}

	if len(report.Missing) > 0 {
		e.logger.WarnWithFields("records no longer resolvable", map[string]interface{}{
			"count":   len(report.Missing),
			"missing": report.Missing,
		})
	}
	logger.LogMetrics(e.logger, "enrich", map[string]interface{}{
		"records":            len(records),
		"batches":            report.Batches,
		"cache_hits":         report.CacheHits,
		"live_calls":         report.LiveCalls,
		"missing":            len(report.Missing),
		"missing_attributes": report.MissingAttributes,
	})
	return report, nil
}

// resolve returns the live things for one chunk from the cache, or from a
// single live call whose result is then stored. Concurrent resolutions of
// the same key share one call.
func (e *Enricher) resolve(ctx context.Context, fullnames []string, report *EnrichReport) ([]models.Thing, bool, error) {
	key := e.chunkKey(fullnames)

	if things, ok := e.cached(ctx, key); ok {
		return things, true, nil
	}

	executed := false
	v, err, _ := e.group.Do(key, func() (interface{}, error) {
		if things, ok := e.cached(ctx, key); ok {
			return things, nil
		}
		executed = true
		report.LiveCalls++

		things, err := e.lookup.Info(ctx, fullnames)
		if err != nil {
			return nil, err
		}
		if things == nil {
			things = []models.Thing{}
		}

		data, err := json.Marshal(things)
		if err == nil {
			err = e.store.Set(ctx, key, data, e.ttl)
		}
		if err != nil {
			e.logger.WarnWithFields("failed to cache enrichment batch", map[string]interface{}{
				"error": err.Error(),
			})
		}
		return things, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.([]models.Thing), !executed, nil
}

// cached reads and decodes a stored chunk. Unreadable entries count as misses.
func (e *Enricher) cached(ctx context.Context, key string) ([]models.Thing, bool) {
	data, ok, err := e.store.Get(ctx, key)
	if err != nil {
		e.logger.WarnWithFields("enrichment cache lookup failed", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var things []models.Thing
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&things); err != nil {
		e.logger.WarnWithFields("dropping unreadable enrichment cache entry", map[string]interface{}{
			"error": err.Error(),
		})
		_ = e.store.Delete(ctx, key)
		return nil, false
	}
	return things, true
}
