package logger

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// LogWindow logs one completed bulk-search window
func LogWindow(l Logger, subreddit string, after, before time.Time, count int, fromCache bool) {
	l.DebugWithFields("window fetched", map[string]interface{}{
		"subreddit":  subreddit,
		"after":      after.UTC(),
		"before":     before.UTC(),
		"count":      count,
		"from_cache": fromCache,
	})
}

// LogTruncation logs the advisory warning for a window dense enough to
// have been cut short by the upstream page cap
func LogTruncation(l Logger, subreddit string, after, before time.Time, count, threshold int) {
	l.WarnWithFields("possible truncated window, consider reducing the window size", map[string]interface{}{
		"subreddit": subreddit,
		"after":     after.UTC(),
		"before":    before.UTC(),
		"count":     count,
		"threshold": threshold,
	})
}

// LogEnrichBatch logs one resolved enrichment chunk
func LogEnrichBatch(l Logger, batch, size int, cacheHit bool, missing int) {
	l.DebugWithFields("enrichment batch resolved", map[string]interface{}{
		"batch":     batch,
		"size":      size,
		"cache_hit": cacheHit,
		"missing":   missing,
	})
}

// LogRateLimit logs rate limiting events
func LogRateLimit(l Logger, endpoint string, wait time.Duration) {
	l.WarnWithFields("rate limit reached, waiting", map[string]interface{}{
		"endpoint": endpoint,
		"wait":     wait,
		"action":   "rate_limited",
	})
}

// LogMetrics logs a summary of a completed operation
func LogMetrics(l Logger, operation string, metrics map[string]interface{}) {
	fields := map[string]interface{}{
		"operation": operation,
		"type":      "metrics",
	}
	for k, v := range metrics {
		fields[k] = v
	}
	l.InfoWithFields("operation summary", fields)
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

// nopLogger is a logger that does nothing (useful for testing)
type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) Fatal(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) FatalWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger                               { return nil }
