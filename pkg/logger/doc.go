// Package logger provides the structured logging interface used across
// subscraper.
//
// It wraps zerolog. Output goes to stderr, colored console output when
// stderr is a terminal and JSON lines otherwise, optionally mirrored to a
// file. The fetch command writes records to stdout, so logs never mix
// with data.
//
// Basic Usage:
//
//	err := logger.Initialize(&cfg.Logging)
//	logger.WithField("subreddit", "golang").Info("walk started")
//
// Domain helpers such as LogWindow and LogTruncation keep field names
// consistent between the walker and the enricher. Tests use NewTestLogger
// to assert on captured messages, or NewNopLogger to discard them.
package logger
