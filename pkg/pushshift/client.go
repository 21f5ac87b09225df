package pushshift

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	errs "subscraper/pkg/errors"
	"subscraper/pkg/httpcache"
	"subscraper/pkg/logger"
	"subscraper/pkg/models"
	"subscraper/pkg/retry"
)

const source = "pushshift"

// SearchResult is one page of submissions
type SearchResult struct {
	Submissions []models.Submission
	// FromCache is true when the page was replayed from the request cache
	FromCache bool
}

type searchResponse struct {
	Data []models.Submission `json:"data"`
}

// Client talks to the bulk search API
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	baseURL    string
	retry      *retry.Config
	logger     logger.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client, typically one whose
// transport is an httpcache.Transport
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURL points the client at another host
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

// WithUserAgent sets the User-Agent header
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.headers["User-Agent"] = ua
		}
	}
}

// WithRetry wraps every search in the given retry policy
func WithRetry(cfg *retry.Config) Option {
	return func(c *Client) { c.retry = cfg }
}

// NewClient creates a new bulk search client
func NewClient(timeout time.Duration, log logger.Logger, opts ...Option) *Client {
	if log == nil {
		log = logger.GetLogger()
	}

	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		headers: map[string]string{
			"User-Agent": "subscraper/1.0",
			"Accept":     "application/json",
		},
		baseURL: BaseURL,
		retry:   &retry.Config{MaxAttempts: 1},
		logger:  log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// doRequest performs an HTTP request with the configured headers
func (c *Client) doRequest(req *http.Request) (*http.Response, error) {
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	c.logger.DebugWithFields("sending HTTP request", map[string]interface{}{
		"method": req.Method,
		"url":    req.URL.String(),
	})

	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"url":      req.URL.String(),
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, errs.Wrap(source, errs.ErrorTypeNetwork, 0, err, "request failed")
	}

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"url":        req.URL.String(),
		"status":     resp.StatusCode,
		"duration":   duration,
		"from_cache": httpcache.FromCache(resp),
	})

	return resp, nil
}

// checkResponseStatus maps non-2xx responses to typed errors
func (c *Client) checkResponseStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	e := errs.FromStatus(source, resp.StatusCode)
	c.logger.WarnWithFields("bulk search returned an error status", map[string]interface{}{
		"status": resp.StatusCode,
		"type":   string(e.Type),
		"url":    resp.Request.URL.String(),
	})
	return e
}

// Search fetches one page of submissions
func (c *Client) Search(ctx context.Context, q Query) (*SearchResult, error) {
	if q.Subreddit == "" {
		return nil, errs.New(source, errs.ErrorTypeValidation, 0, "subreddit is required")
	}
	return retry.DoWithResult(ctx, func(ctx context.Context) (*SearchResult, error) {
		return c.search(ctx, q)
	}, c.retry)
}

func (c *Client) search(ctx context.Context, q Query) (*SearchResult, error) {
	searchURL := GetSearchURL(c.baseURL, q)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, errs.Wrap(source, errs.ErrorTypeUnknown, 0, err, "failed to create request")
	}

	resp, err := c.doRequest(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.checkResponseStatus(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(source, errs.ErrorTypeNetwork, resp.StatusCode, err, "failed to read response body")
	}

	submissions, err := decodePage(body)
	if err != nil {
		bodyPreview := string(body)
		if len(bodyPreview) > 200 {
			bodyPreview = bodyPreview[:200] + "..."
		}
		c.logger.ErrorWithFields("failed to parse search response", map[string]interface{}{
			"url":          searchURL,
			"error":        err.Error(),
			"body_preview": bodyPreview,
		})
		return nil, errs.Wrap(source, errs.ErrorTypeParsing, resp.StatusCode, err, "malformed search response")
	}

	return &SearchResult{
		Submissions: submissions,
		FromCache:   httpcache.FromCache(resp),
	}, nil
}

// decodePage parses a search response body. Every record must carry a
// readable created_utc.
func decodePage(body []byte) ([]models.Submission, error) {
	var decoded searchResponse
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		return nil, err
	}
	if decoded.Data == nil {
		return nil, errors.New("response has no data array")
	}
	for i, s := range decoded.Data {
		if _, err := s.CreatedUTC(); err != nil {
			return nil, fmt.Errorf("record %d is malformed: %w", i, err)
		}
	}
	return decoded.Data, nil
}

// ValidPage reports whether body is a well-formed search page. It is meant
// as an httpcache.Transport Validate hook so malformed pages are never
// replayed.
func ValidPage(_ *http.Response, body []byte) bool {
	_, err := decodePage(body)
	return err == nil
}
