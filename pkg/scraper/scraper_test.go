package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subscraper/pkg/config"
	"subscraper/pkg/models"
	"subscraper/pkg/pushshift"
	"subscraper/pkg/reddit"
)

// mockUpstream serves both the bulk search and the live lookup APIs
type mockUpstream struct {
	pushshift   *httptest.Server
	reddit      *httptest.Server
	searchCalls int32
	infoCalls   int32
}

func newMockUpstream(t *testing.T) *mockUpstream {
	t.Helper()
	m := &mockUpstream{}

	m.pushshift = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&m.searchCalls, 1)
		if r.URL.Path != pushshift.SubmissionSearchEndpoint {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		after, _ := strconv.ParseInt(r.URL.Query().Get("after"), 10, 64)
		data := []map[string]any{}
		if after == day0.Unix() {
			data = append(data,
				map[string]any{"id": "aaa", "created_utc": after + 60, "score": 0},
				map[string]any{"id": "bbb", "created_utc": after + 120, "score": 0},
			)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	t.Cleanup(m.pushshift.Close)

	m.reddit = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&m.infoCalls, 1)
		if r.URL.Path != reddit.PublicInfoEndpoint {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		var children []map[string]any
		for _, name := range strings.Split(r.URL.Query().Get("id"), ",") {
			children = append(children, map[string]any{
				"kind": "t3",
				"data": map[string]any{"name": name, "id": strings.TrimPrefix(name, "t3_"), "score": 42},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"kind": "Listing",
			"data": map[string]any{"children": children},
		})
	}))
	t.Cleanup(m.reddit.Close)

	return m
}

func (m *mockUpstream) config(backend, path string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Pushshift.BaseURL = m.pushshift.URL
	cfg.Reddit.BaseURL = m.reddit.URL
	cfg.Reddit.OAuthURL = m.reddit.URL
	cfg.Walker.Pace = time.Millisecond
	cfg.Cache.Backend = backend
	cfg.Cache.Path = path
	cfg.Logging.Level = "disabled"
	return cfg
}

func runDownload(t *testing.T, d *Downloader) []models.Submission {
	t.Helper()
	ctx := context.Background()

	records, err := d.GetSubredditSubmissions(ctx, "golang", day0, hour8)
	require.NoError(t, err)

	report, err := d.UpdateSubredditSubmissions(ctx, records, []string{"score"})
	require.NoError(t, err)
	require.NoError(t, report.Err())
	return records
}

func TestDownloaderEndToEnd(t *testing.T) {
	m := newMockUpstream(t)
	d, err := New(m.config(config.BackendMemory, ""))
	require.NoError(t, err)
	defer d.Close()

	assert.NotEmpty(t, d.RunID())

	records := runDownload(t, d)
	require.Len(t, records, 2)
	assert.Equal(t, "aaa", records[0].ID())
	assert.Equal(t, "bbb", records[1].ID())
	for _, rec := range records {
		assert.Equal(t, json.Number("42"), rec["score"])
	}

	// first window ends at the last record, the rest of the range takes two more
	assert.Equal(t, int32(3), atomic.LoadInt32(&m.searchCalls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&m.infoCalls))

	runDownload(t, d)
	assert.Equal(t, int32(3), atomic.LoadInt32(&m.searchCalls), "repeat walk should replay from the request cache")
	assert.Equal(t, int32(1), atomic.LoadInt32(&m.infoCalls), "repeat enrichment should hit the key-level cache")
	assert.Equal(t, 3, d.Walker().Stats().CachedPages)
}

func TestDownloaderCachesSurviveRestart(t *testing.T) {
	m := newMockUpstream(t)
	path := filepath.Join(t.TempDir(), "cache")

	d, err := New(m.config(config.BackendSQLite, path))
	require.NoError(t, err)
	runDownload(t, d)
	require.NoError(t, d.Close())

	searches := atomic.LoadInt32(&m.searchCalls)
	infos := atomic.LoadInt32(&m.infoCalls)

	d, err = New(m.config(config.BackendSQLite, path))
	require.NoError(t, err)
	defer d.Close()

	records := runDownload(t, d)
	assert.Len(t, records, 2)
	assert.Equal(t, searches, atomic.LoadInt32(&m.searchCalls))
	assert.Equal(t, infos, atomic.LoadInt32(&m.infoCalls))
}

func TestDownloaderUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.Pushshift.BaseURL = srv.URL
	cfg.Cache.Backend = config.BackendMemory

	d, err := New(cfg)
	require.NoError(t, err)
	defer d.Close()

	_, err = d.GetSubredditSubmissions(context.Background(), "golang", day0, hour8)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server_error")
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Cache.Backend = "tape"
	_, err := New(cfg)
	assert.Error(t, err)
}

func ExampleDownloader() {
	cfg := config.DefaultConfig()
	cfg.Cache.Backend = config.BackendMemory

	d, err := New(cfg)
	if err != nil {
		fmt.Println(err)
		return
	}
	defer d.Close()

	fmt.Println(d.Walker().Stats().Requests)
	// Output: 0
}
