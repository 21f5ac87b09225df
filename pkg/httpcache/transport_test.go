package httpcache

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subscraper/pkg/cache"
)

func newCountingServer(t *testing.T, status int, body string) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func get(t *testing.T, client *http.Client, rawURL string) (*http.Response, string) {
	t.Helper()
	resp, err := client.Get(rawURL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestTransportReplaysGET(t *testing.T) {
	srv, hits := newCountingServer(t, http.StatusOK, `{"data":[]}`)
	client := NewTransport(nil, cache.NewMemory(), 0, nil).Client(5 * time.Second)

	resp, body := get(t, client, srv.URL+"/search?a=1&b=2")
	assert.False(t, FromCache(resp))
	assert.Equal(t, `{"data":[]}`, body)

	resp, body = get(t, client, srv.URL+"/search?b=2&a=1")
	assert.True(t, FromCache(resp), "reordered query should hit the cache")
	assert.Equal(t, `{"data":[]}`, body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
}

func TestTransportSkipsNonOK(t *testing.T) {
	srv, hits := newCountingServer(t, http.StatusServiceUnavailable, "down")
	store := cache.NewMemory()
	client := NewTransport(nil, store, 0, nil).Client(5 * time.Second)

	resp, _ := get(t, client, srv.URL)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	resp, _ = get(t, client, srv.URL)
	assert.False(t, FromCache(resp))

	assert.Equal(t, int32(2), atomic.LoadInt32(hits))
	n, _ := store.Len(context.Background())
	assert.Zero(t, n)
}

func TestTransportSkipsNonGET(t *testing.T) {
	srv, hits := newCountingServer(t, http.StatusOK, "ok")
	client := NewTransport(nil, cache.NewMemory(), 0, nil).Client(5 * time.Second)

	for i := 0; i < 2; i++ {
		resp, err := client.Post(srv.URL, "text/plain", nil)
		require.NoError(t, err)
		resp.Body.Close()
		assert.False(t, FromCache(resp))
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(hits))
}

func TestTransportDropsCorruptEntry(t *testing.T) {
	srv, hits := newCountingServer(t, http.StatusOK, "fresh")
	store := cache.NewMemory()
	client := NewTransport(nil, store, 0, nil).Client(5 * time.Second)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/x", nil)
	require.NoError(t, err)
	require.NoError(t, store.Set(context.Background(), CacheKey(req), []byte("garbage"), 0))

	resp, body := get(t, client, srv.URL+"/x")
	assert.False(t, FromCache(resp))
	assert.Equal(t, "fresh", body)
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
}

func TestTransportValidateRejectsBody(t *testing.T) {
	srv, hits := newCountingServer(t, http.StatusOK, `{"truncated`)
	store := cache.NewMemory()
	transport := NewTransport(nil, store, 0, nil)
	transport.Validate = func(_ *http.Response, body []byte) bool {
		return len(body) > 0 && body[len(body)-1] == '}'
	}
	client := transport.Client(5 * time.Second)

	resp, body := get(t, client, srv.URL)
	assert.Equal(t, `{"truncated`, body, "rejected bodies still reach the caller")
	resp, _ = get(t, client, srv.URL)
	assert.False(t, FromCache(resp))

	assert.Equal(t, int32(2), atomic.LoadInt32(hits))
	n, _ := store.Len(context.Background())
	assert.Zero(t, n)
}

type failingStore struct{ cache.Store }

func (failingStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("store offline")
}

func (failingStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("store offline")
}

func TestTransportToleratesStoreErrors(t *testing.T) {
	srv, _ := newCountingServer(t, http.StatusOK, "ok")
	client := NewTransport(nil, failingStore{}, 0, nil).Client(5 * time.Second)

	resp, body := get(t, client, srv.URL)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body)
}

func TestCanonicalURL(t *testing.T) {
	u, err := url.Parse("https://api.example.com/reddit/search/submission/?size=500&after=1&subreddit=golang#frag")
	require.NoError(t, err)
	assert.Equal(t,
		"https://api.example.com/reddit/search/submission/?after=1&size=500&subreddit=golang",
		CanonicalURL(u))
}
