package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	errs "subscraper/pkg/errors"
)

// AccessTokenEndpoint is the application-only token path
const AccessTokenEndpoint = "/api/v1/access_token"

// tokenSource fetches and caches an application-only bearer token using
// the client_credentials grant
type tokenSource struct {
	httpClient   *http.Client
	tokenURL     string
	clientID     string
	clientSecret string
	userAgent    string
	now          func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
	Error       string `json:"error"`
}

// Token returns a valid bearer token, fetching a new one when the cached
// token is missing or within a minute of expiry
func (ts *tokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.token != "" && ts.now().Add(time.Minute).Before(ts.expires) {
		return ts.token, nil
	}

	params := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.tokenURL, strings.NewReader(params.Encode()))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.SetBasicAuth(ts.clientID, ts.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", ts.userAgent)

	resp, err := ts.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", errs.Wrap(source, errs.ErrorTypeNetwork, 0, err, "token request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errs.Wrap(source, errs.ErrorTypeNetwork, resp.StatusCode, err, "failed to read token response")
	}
	if resp.StatusCode != http.StatusOK {
		e := errs.FromStatus(source, resp.StatusCode)
		e.Message = "token exchange failed"
		return "", e
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", errs.Wrap(source, errs.ErrorTypeParsing, resp.StatusCode, err, "failed to decode token response")
	}
	if tr.Error != "" {
		return "", errs.New(source, errs.ErrorTypeAuth, resp.StatusCode, "oauth error: "+tr.Error)
	}
	if tr.AccessToken == "" {
		return "", errs.New(source, errs.ErrorTypeParsing, resp.StatusCode, "token response has no access_token")
	}

	ts.token = tr.AccessToken
	ts.expires = ts.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	return ts.token, nil
}

// Invalidate drops the cached token so the next call fetches a fresh one
func (ts *tokenSource) Invalidate() {
	ts.mu.Lock()
	ts.token = ""
	ts.mu.Unlock()
}
