package reddit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"subscraper/pkg/config"
	errs "subscraper/pkg/errors"
	"subscraper/pkg/logger"
	"subscraper/pkg/models"
	"subscraper/pkg/ratelimit"
	"subscraper/pkg/retry"
)

const source = "reddit"

const (
	// InfoEndpoint serves /api/info on the OAuth host
	InfoEndpoint = "/api/info"
	// PublicInfoEndpoint serves the same listing without credentials
	PublicInfoEndpoint = "/api/info.json"
	// MaxInfoIDs is the most fullnames one info call accepts
	MaxInfoIDs = 100
)

type listing struct {
	Kind string `json:"kind"`
	Data struct {
		Children []struct {
			Kind string       `json:"kind"`
			Data models.Thing `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// Client performs live lookups of things by fullname
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	infoURL    string
	tokens     *tokenSource
	limiter    ratelimit.Limiter
	retry      *retry.Config
	logger     logger.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
		if c.tokens != nil {
			c.tokens.httpClient = hc
		}
	}
}

// WithLimiter replaces the default per-minute limiter
func WithLimiter(l ratelimit.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithRetry wraps every lookup in the given retry policy
func WithRetry(cfg *retry.Config) Option {
	return func(c *Client) { c.retry = cfg }
}

// NewClient builds a client from cfg. With client credentials it uses an
// application-only OAuth token against cfg.OAuthURL; otherwise it reads the
// public listing from cfg.BaseURL.
func NewClient(cfg config.RedditConfig, log logger.Logger, opts ...Option) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "subscraper/1.0"
	}
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 60
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	c := &Client{
		httpClient: httpClient,
		headers: map[string]string{
			"User-Agent": userAgent,
			"Accept":     "application/json",
		},
		limiter: ratelimit.PerMinute(rpm),
		retry:   &retry.Config{MaxAttempts: 1},
		logger:  log,
	}

	if cfg.ClientID != "" && cfg.ClientSecret != "" {
		authURL := cfg.AuthURL
		if authURL == "" {
			authURL = cfg.BaseURL
		}
		c.infoURL = strings.TrimRight(cfg.OAuthURL, "/") + InfoEndpoint
		c.tokens = &tokenSource{
			httpClient:   httpClient,
			tokenURL:     strings.TrimRight(authURL, "/") + AccessTokenEndpoint,
			clientID:     cfg.ClientID,
			clientSecret: cfg.ClientSecret,
			userAgent:    userAgent,
			now:          time.Now,
		}
	} else {
		c.infoURL = strings.TrimRight(cfg.BaseURL, "/") + PublicInfoEndpoint
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Authenticated reports whether the client uses OAuth
func (c *Client) Authenticated() bool {
	return c.tokens != nil
}

// GetInfoURL constructs the info URL for the given fullnames
func (c *Client) GetInfoURL(fullnames []string) string {
	params := url.Values{}
	params.Set("id", strings.Join(fullnames, ","))
	params.Set("raw_json", "1")
	return c.infoURL + "?" + params.Encode()
}

// Info looks up to MaxInfoIDs things by fullname in one call. Things that
// no longer exist are simply absent from the result; order is whatever the
// API returned.
func (c *Client) Info(ctx context.Context, fullnames []string) ([]models.Thing, error) {
	if len(fullnames) == 0 {
		return []models.Thing{}, nil
	}
	if len(fullnames) > MaxInfoIDs {
		return nil, errs.New(source, errs.ErrorTypeValidation, 0,
			fmt.Sprintf("at most %d ids per lookup, got %d", MaxInfoIDs, len(fullnames)))
	}

	return retry.DoWithResult(ctx, func(ctx context.Context) ([]models.Thing, error) {
		return c.info(ctx, fullnames)
	}, c.retry)
}

func (c *Client) info(ctx context.Context, fullnames []string) ([]models.Thing, error) {
	waited, err := c.limiter.Wait(ctx)
	if err != nil {
		return nil, err
	}
	if waited > 0 {
		logger.LogRateLimit(c.logger, InfoEndpoint, waited)
	}

	resp, err := c.get(ctx, c.GetInfoURL(fullnames))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized && c.tokens != nil {
		// token revoked or expired early, fetch a fresh one once
		resp.Body.Close()
		c.tokens.Invalidate()
		resp, err = c.get(ctx, c.GetInfoURL(fullnames))
		if err != nil {
			return nil, err
		}
	}
	defer resp.Body.Close()

	if err := c.checkResponseStatus(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(source, errs.ErrorTypeNetwork, resp.StatusCode, err, "failed to read response body")
	}

	var l listing
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&l); err != nil {
		return nil, errs.Wrap(source, errs.ErrorTypeParsing, resp.StatusCode, err, "failed to parse listing")
	}

	things := make([]models.Thing, 0, len(l.Data.Children))
	for _, child := range l.Data.Children {
		if child.Data == nil {
			continue
		}
		things = append(things, child.Data)
	}

	c.logger.DebugWithFields("live lookup completed", map[string]interface{}{
		"requested": len(fullnames),
		"returned":  len(things),
	})
	return things, nil
}

// get performs an authorized GET with the configured headers
func (c *Client) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errs.Wrap(source, errs.ErrorTypeUnknown, 0, err, "failed to create request")
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"url":      rawURL,
			"error":    err.Error(),
			"duration": time.Since(start),
		})
		return nil, errs.Wrap(source, errs.ErrorTypeNetwork, 0, err, "request failed")
	}
	return resp, nil
}

// checkResponseStatus maps non-2xx responses to typed errors
func (c *Client) checkResponseStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	e := errs.FromStatus(source, resp.StatusCode)
	c.logger.WarnWithFields("live lookup returned an error status", map[string]interface{}{
		"status": resp.StatusCode,
		"type":   string(e.Type),
	})
	return e
}
