package httpcache

import (
	"bufio"
	"bytes"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"subscraper/pkg/cache"
	"subscraper/pkg/logger"
)

// HeaderFromCache is set to "1" on responses replayed from the store
const HeaderFromCache = "X-From-Cache"

// Transport replays successful GET responses from a cache.Store. Requests
// are keyed by method and URL with the query in canonical (sorted) order,
// so parameter order never causes a miss.
type Transport struct {
	// Base performs uncached requests; http.DefaultTransport when nil
	Base  http.RoundTripper
	Store cache.Store
	// TTL applies to stored responses; zero never expires
	TTL    time.Duration
	Logger logger.Logger
	// Validate, when set, must accept a 200 response body before it is
	// stored; rejected bodies are still returned to the caller
	Validate func(resp *http.Response, body []byte) bool
}

// NewTransport wraps base with a cache backed by store
func NewTransport(base http.RoundTripper, store cache.Store, ttl time.Duration, log logger.Logger) *Transport {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Transport{Base: base, Store: store, TTL: ttl, Logger: log}
}

// Client returns an http.Client using the transport
func (t *Transport) Client(timeout time.Duration) *http.Client {
	return &http.Client{Transport: t, Timeout: timeout}
}

// FromCache reports whether resp was replayed from the cache
func FromCache(resp *http.Response) bool {
	return resp != nil && resp.Header.Get(HeaderFromCache) == "1"
}

// CacheKey returns the store key for req
func CacheKey(req *http.Request) string {
	return cache.Key(cache.NamespaceHTTP, req.Method, CanonicalURL(req.URL))
}

// CanonicalURL renders u with its query parameters sorted by key and the
// fragment dropped
func CanonicalURL(u *url.URL) string {
	c := *u
	c.RawQuery = u.Query().Encode()
	c.Fragment = ""
	c.RawFragment = ""
	return c.String()
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// RoundTrip implements http.RoundTripper
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet || t.Store == nil {
		return t.base().RoundTrip(req)
	}

	ctx := req.Context()
	key := CacheKey(req)

	raw, ok, err := t.Store.Get(ctx, key)
	if err != nil {
		t.Logger.WarnWithFields("request cache lookup failed", map[string]interface{}{
			"url":   req.URL.String(),
			"error": err.Error(),
		})
	}
	if ok {
		resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(raw)), req)
		if err == nil {
			resp.Header.Set(HeaderFromCache, "1")
			t.Logger.DebugWithFields("request served from cache", map[string]interface{}{
				"url": req.URL.String(),
			})
			return resp, nil
		}
		t.Logger.WarnWithFields("dropping unreadable request cache entry", map[string]interface{}{
			"url":   req.URL.String(),
			"error": err.Error(),
		})
		_ = t.Store.Delete(ctx, key)
	}

	resp, err := t.base().RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return resp, nil
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}

	resp.Body = io.NopCloser(bytes.NewReader(body))
	if t.Validate != nil && !t.Validate(resp, body) {
		t.Logger.WarnWithFields("response rejected, not caching", map[string]interface{}{
			"url": req.URL.String(),
		})
		return resp, nil
	}

	dump, err := dumpResponse(resp, body)
	if err == nil {
		err = t.Store.Set(ctx, key, dump, t.TTL)
	}
	if err != nil {
		t.Logger.WarnWithFields("request cache store failed", map[string]interface{}{
			"url":   req.URL.String(),
			"error": err.Error(),
		})
	}
	return resp, nil
}

// dumpResponse serializes resp in wire format with an explicit length so
// it can be replayed by http.ReadResponse
func dumpResponse(resp *http.Response, body []byte) ([]byte, error) {
	clone := *resp
	clone.Header = resp.Header.Clone()
	clone.Header.Del("Content-Encoding")
	clone.TransferEncoding = nil
	clone.ContentLength = int64(len(body))
	clone.Body = io.NopCloser(bytes.NewReader(body))
	return httputil.DumpResponse(&clone, true)
}
