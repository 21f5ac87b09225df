// Package pushshift is a client for the bulk historical submission search
// API.
//
// Search issues one request over an [after, before) epoch range and decodes
// the data array with json.Number so ids and timestamps stay exact. Non-2xx
// statuses and malformed bodies come back as typed errors from pkg/errors.
// Plug an httpcache.Transport in with WithHTTPClient to replay requests
// across runs; SearchResult.FromCache reports replays.
package pushshift
