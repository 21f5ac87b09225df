package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subscraper/pkg/config"
	errs "subscraper/pkg/errors"
	"subscraper/pkg/logger"
	"subscraper/pkg/ratelimit"
)

func listingFor(ids []string) string {
	children := make([]string, 0, len(ids))
	for _, id := range ids {
		children = append(children, fmt.Sprintf(
			`{"kind":"t3","data":{"name":%q,"id":%q,"score":1,"removed_by_category":null}}`,
			id, strings.TrimPrefix(id, "t3_")))
	}
	return `{"kind":"Listing","data":{"children":[` + strings.Join(children, ",") + `]}}`
}

func testConfig(url string) config.RedditConfig {
	return config.RedditConfig{
		BaseURL:           url,
		OAuthURL:          url,
		AuthURL:           url,
		Timeout:           5 * time.Second,
		RequestsPerMinute: 600,
		UserAgent:         "subscraper-test",
	}
}

func TestInfoPublic(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		io.WriteString(w, listingFor(strings.Split(r.URL.Query().Get("id"), ",")))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), logger.NewNopLogger())
	assert.False(t, client.Authenticated())

	things, err := client.Info(context.Background(), []string{"t3_a", "t3_b"})
	require.NoError(t, err)

	assert.Equal(t, PublicInfoEndpoint, got.URL.Path)
	assert.Equal(t, "t3_a,t3_b", got.URL.Query().Get("id"))
	assert.Empty(t, got.Header.Get("Authorization"))
	assert.Equal(t, "subscraper-test", got.Header.Get("User-Agent"))

	require.Len(t, things, 2)
	assert.Equal(t, "t3_a", things[0].Name())
	score, ok := things[1].Attr("score")
	assert.True(t, ok)
	assert.Equal(t, json.Number("1"), score)
	removed, ok := things[1].Attr("removed_by_category")
	assert.True(t, ok)
	assert.Nil(t, removed)
}

func TestInfoOAuth(t *testing.T) {
	var tokenCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc(AccessTokenEndpoint, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tokenCalls, 1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "id" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		io.WriteString(w, `{"access_token":"tok","token_type":"bearer","expires_in":3600}`)
	})
	mux.HandleFunc(InfoEndpoint, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		io.WriteString(w, listingFor(strings.Split(r.URL.Query().Get("id"), ",")))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.ClientID = "id"
	cfg.ClientSecret = "secret"
	client := NewClient(cfg, logger.NewNopLogger())
	assert.True(t, client.Authenticated())

	for i := 0; i < 3; i++ {
		things, err := client.Info(context.Background(), []string{"t3_a"})
		require.NoError(t, err)
		require.Len(t, things, 1)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&tokenCalls), "token should be reused")
}

func TestInfoOAuthBadCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.ClientID = "id"
	cfg.ClientSecret = "wrong"
	_, err := NewClient(cfg, logger.NewNopLogger()).Info(context.Background(), []string{"t3_a"})
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeAuth, errs.TypeOf(err))
}

func TestInfoRefreshesTokenOnUnauthorized(t *testing.T) {
	var tokenCalls, infoCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc(AccessTokenEndpoint, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&tokenCalls, 1)
		fmt.Fprintf(w, `{"access_token":"tok%d","expires_in":3600}`, n)
	})
	mux.HandleFunc(InfoEndpoint, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&infoCalls, 1)
		if r.Header.Get("Authorization") != "Bearer tok2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		io.WriteString(w, listingFor([]string{"t3_a"}))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.ClientID = "id"
	cfg.ClientSecret = "secret"
	things, err := NewClient(cfg, logger.NewNopLogger()).Info(context.Background(), []string{"t3_a"})
	require.NoError(t, err)
	assert.Len(t, things, 1)
	assert.Equal(t, int32(2), atomic.LoadInt32(&tokenCalls))
	assert.Equal(t, int32(2), atomic.LoadInt32(&infoCalls))
}

func TestInfoLimits(t *testing.T) {
	client := NewClient(testConfig("http://127.0.0.1:1"), logger.NewNopLogger())

	things, err := client.Info(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, things)

	ids := make([]string, MaxInfoIDs+1)
	_, err = client.Info(context.Background(), ids)
	assert.Equal(t, errs.ErrorTypeValidation, errs.TypeOf(err))
}

func TestInfoStatusAndParsingErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   errs.ErrorType
	}{
		{"rate limited", http.StatusTooManyRequests, "", errs.ErrorTypeRateLimit},
		{"server error", http.StatusInternalServerError, "", errs.ErrorTypeServerError},
		{"malformed", http.StatusOK, "<html>", errs.ErrorTypeParsing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := NewClient(testConfig(srv.URL), logger.NewNopLogger()).Info(context.Background(), []string{"t3_a"})
			require.Error(t, err)
			assert.Equal(t, tt.want, errs.TypeOf(err))
		})
	}
}

func TestInfoRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, listingFor([]string{"t3_a"}))
	}))
	defer srv.Close()

	tl := logger.NewTestLogger()
	client := NewClient(testConfig(srv.URL), tl,
		WithLimiter(ratelimit.NewSlidingWindow(1, 50*time.Millisecond)))

	for i := 0; i < 2; i++ {
		_, err := client.Info(context.Background(), []string{"t3_a"})
		require.NoError(t, err)
	}
	assert.True(t, tl.HasMessageContaining("WARN", "rate limit"))
}
