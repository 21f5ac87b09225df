// Package httpcache is the request-level cache for the bulk search API.
//
// Transport is an http.RoundTripper that stores 200 responses to GET
// requests in a cache.Store and replays them on later identical requests,
// marking replays with the X-From-Cache header. Callers use FromCache to
// decide whether a request cost anything upstream.
package httpcache
