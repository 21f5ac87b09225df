package pushshift

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// BaseURL is the default bulk search host
	BaseURL = "https://api.pushshift.io"

	// SubmissionSearchEndpoint is the submission search path
	SubmissionSearchEndpoint = "/reddit/search/submission/"

	// MaxPageSize is the largest page the API serves
	MaxPageSize = 500
)

// Query describes one bulk search request over [After, Before)
type Query struct {
	Subreddit string
	After     time.Time
	Before    time.Time
	Size      int
}

// epoch renders t as whole epoch seconds, rounding sub-second parts
func epoch(t time.Time) string {
	secs := float64(t.UnixNano()) / float64(time.Second)
	return strconv.FormatInt(int64(math.Round(secs)), 10)
}

// Values returns the query parameters for q
func (q Query) Values() url.Values {
	size := q.Size
	if size <= 0 || size > MaxPageSize {
		size = MaxPageSize
	}

	params := url.Values{}
	params.Set("subreddit", q.Subreddit)
	params.Set("size", strconv.Itoa(size))
	params.Set("after", epoch(q.After))
	params.Set("before", epoch(q.Before))
	params.Set("sort", "asc")
	params.Set("sort_type", "created_utc")
	return params
}

// GetSearchURL constructs the submission search URL for q
func GetSearchURL(baseURL string, q Query) string {
	if baseURL == "" {
		baseURL = BaseURL
	}
	return fmt.Sprintf("%s%s?%s", strings.TrimRight(baseURL, "/"), SubmissionSearchEndpoint, q.Values().Encode())
}
