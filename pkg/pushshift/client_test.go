package pushshift

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subscraper/pkg/cache"
	errs "subscraper/pkg/errors"
	"subscraper/pkg/httpcache"
	"subscraper/pkg/logger"
	"subscraper/pkg/retry"
)

var (
	jan1 = time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	jan2 = jan1.Add(24 * time.Hour)
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	opts = append([]Option{WithBaseURL(srv.URL)}, opts...)
	return NewClient(5*time.Second, logger.NewNopLogger(), opts...)
}

func TestSearchSendsQuery(t *testing.T) {
	var got *http.Request
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r
		io.WriteString(w, `{"data":[{"id":"a","created_utc":1609459300,"score":5}]}`)
	}, WithUserAgent("test-agent"))

	res, err := client.Search(context.Background(), Query{Subreddit: "golang", After: jan1, Before: jan2, Size: 500})
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Equal(t, SubmissionSearchEndpoint, got.URL.Path)
	q := got.URL.Query()
	assert.Equal(t, "golang", q.Get("subreddit"))
	assert.Equal(t, "500", q.Get("size"))
	assert.Equal(t, "1609459200", q.Get("after"))
	assert.Equal(t, "1609545600", q.Get("before"))
	assert.Equal(t, "asc", q.Get("sort"))
	assert.Equal(t, "created_utc", q.Get("sort_type"))
	assert.Equal(t, "test-agent", got.Header.Get("User-Agent"))

	require.Len(t, res.Submissions, 1)
	assert.False(t, res.FromCache)
	assert.Equal(t, "a", res.Submissions[0].ID())
	assert.Equal(t, json.Number("1609459300"), res.Submissions[0]["created_utc"])
	assert.Equal(t, json.Number("5"), res.Submissions[0]["score"])
}

func TestSearchClampsPageSize(t *testing.T) {
	assert.Equal(t, "500", Query{Size: 1000}.Values().Get("size"))
	assert.Equal(t, "500", Query{Size: 0}.Values().Get("size"))
	assert.Equal(t, "25", Query{Size: 25}.Values().Get("size"))
}

func TestEpochRounds(t *testing.T) {
	assert.Equal(t, "1609459201", epoch(jan1.Add(600*time.Millisecond)))
	assert.Equal(t, "1609459200", epoch(jan1.Add(400*time.Millisecond)))
}

func TestSearchStatusErrors(t *testing.T) {
	tests := []struct {
		status int
		want   errs.ErrorType
	}{
		{http.StatusTooManyRequests, errs.ErrorTypeRateLimit},
		{http.StatusNotFound, errs.ErrorTypeNotFound},
		{http.StatusBadGateway, errs.ErrorTypeServerError},
		{http.StatusForbidden, errs.ErrorTypeAuth},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			_, err := client.Search(context.Background(), Query{Subreddit: "golang", After: jan1, Before: jan2})
			require.Error(t, err)
			assert.Equal(t, tt.want, errs.TypeOf(err))
		})
	}
}

func TestSearchMalformed(t *testing.T) {
	bodies := map[string]string{
		"not json":           `<html>`,
		"no data":            `{"error":"x"}`,
		"missing created":    `{"data":[{"id":"a"}]}`,
		"bad created_utc":    `{"data":[{"id":"a","created_utc":"soon"}]}`,
		"data is not a list": `{"data":{"id":"a"}}`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, body)
			})
			_, err := client.Search(context.Background(), Query{Subreddit: "golang", After: jan1, Before: jan2})
			require.Error(t, err)
			assert.True(t, errs.IsMalformed(err), "got %v", err)
		})
	}
}

func TestSearchValidation(t *testing.T) {
	client := NewClient(time.Second, logger.NewNopLogger())
	_, err := client.Search(context.Background(), Query{})
	assert.Equal(t, errs.ErrorTypeValidation, errs.TypeOf(err))
}

func TestSearchCancelled(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Search(ctx, Query{Subreddit: "golang", After: jan1, Before: jan2})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSearchThroughRequestCache(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		io.WriteString(w, `{"data":[{"id":"a","created_utc":1609459300}]}`)
	}))
	defer srv.Close()

	transport := httpcache.NewTransport(nil, cache.NewMemory(), 0, nil)
	client := NewClient(5*time.Second, logger.NewNopLogger(),
		WithBaseURL(srv.URL), WithHTTPClient(transport.Client(5*time.Second)))

	q := Query{Subreddit: "golang", After: jan1, Before: jan2}
	first, err := client.Search(context.Background(), q)
	require.NoError(t, err)
	second, err := client.Search(context.Background(), q)
	require.NoError(t, err)

	assert.False(t, first.FromCache)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Submissions, second.Submissions)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestSearchDoesNotCacheMalformedPages(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			io.WriteString(w, `{"data":[{"id":"a","created_utc":"soon"}]}`)
			return
		}
		io.WriteString(w, `{"data":[{"id":"a","created_utc":1609459300}]}`)
	}))
	defer srv.Close()

	store := cache.NewMemory()
	transport := httpcache.NewTransport(nil, store, 0, nil)
	transport.Validate = ValidPage
	client := NewClient(5*time.Second, logger.NewNopLogger(),
		WithBaseURL(srv.URL), WithHTTPClient(transport.Client(5*time.Second)))

	q := Query{Subreddit: "golang", After: jan1, Before: jan2}
	_, err := client.Search(context.Background(), q)
	require.Error(t, err)
	assert.True(t, errs.IsMalformed(err))

	n, err := store.Len(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	res, err := client.Search(context.Background(), q)
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	require.Len(t, res.Submissions, 1)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))

	res, err = client.Search(context.Background(), q)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
}

func TestValidPage(t *testing.T) {
	assert.True(t, ValidPage(nil, []byte(`{"data":[]}`)))
	assert.True(t, ValidPage(nil, []byte(`{"data":[{"id":"a","created_utc":1609459300}]}`)))
	assert.False(t, ValidPage(nil, []byte(`{"data":[{"id":"a"}]}`)))
	assert.False(t, ValidPage(nil, []byte(`{"error":"x"}`)))
	assert.False(t, ValidPage(nil, []byte(`<html>`)))
}

func TestSearchRetriesWhenEnabled(t *testing.T) {
	var hits int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, `{"data":[]}`)
	}, WithRetry(&retry.Config{MaxAttempts: 2, Backoff: &retry.ConstantBackoff{Delay: time.Millisecond}}))

	res, err := client.Search(context.Background(), Query{Subreddit: "golang", After: jan1, Before: jan2})
	require.NoError(t, err)
	assert.Empty(t, res.Submissions)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}
