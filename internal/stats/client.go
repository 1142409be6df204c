// Package stats is the gateway to the two upstream APIs the dashboard reads
// from: the COVID-19 statistics API (HTTP basic auth) and the news article
// search API (api-key query parameter).
//
// The client is deliberately thin. It does no caching and no retries; every
// call is one HTTP request whose result is decoded into the model types.
package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sakif/covid-dashboard/internal/apperror"
)

const defaultTimeout = 20 * time.Second

// Config holds the upstream endpoints and credentials.
type Config struct {
	StatsBaseURL string
	NewsBaseURL  string
	Username     string
	Password     string
	NewsAPIKey   string
	Timeout      time.Duration
}

// Client calls the statistics and news APIs over HTTP.
type Client struct {
	statsBaseURL string
	newsBaseURL  string
	username     string
	password     string
	newsAPIKey   string
	httpClient   *http.Client
}

// APIError is returned when an upstream answers with a non-2xx status.
// It unwraps to apperror.ErrUpstream.
type APIError struct {
	Service string
	Status  int
	Body    string // first bytes of the response, for logs only
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.Service, e.Status)
}

func (e *APIError) Unwrap() error {
	return apperror.ErrUpstream
}

// NewClient constructs a gateway client. A zero Timeout falls back to 20s.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		statsBaseURL: strings.TrimRight(cfg.StatsBaseURL, "/"),
		newsBaseURL:  strings.TrimRight(cfg.NewsBaseURL, "/"),
		username:     cfg.Username,
		password:     cfg.Password,
		newsAPIKey:   cfg.NewsAPIKey,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

// CountrySlug converts a display name to the statistics API's URL form:
// spaces become hyphens and the result is lowercased ("United States" ->
// "united-states").
func CountrySlug(country string) string {
	return strings.ToLower(strings.ReplaceAll(country, " ", "-"))
}

// getStats performs an authenticated GET against the statistics API.
func (c *Client) getStats(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.statsBaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("stats: building request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	return c.do(req, "statistics API", out)
}

// getNews performs a GET against the news API with the api key attached.
func (c *Client) getNews(ctx context.Context, path string, params url.Values, out any) error {
	params.Set("api-key", c.newsAPIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.newsBaseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("news: building request: %w", err)
	}
	return c.do(req, "news API", out)
}

func (c *Client) do(req *http.Request, service string, out any) error {
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Transport failures (refused, timeout, cancelled) carry no status.
		// The URL may contain the api key, so it is not included.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return fmt.Errorf("%w: %v", apperror.Upstream(service, 0), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{Service: service, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", apperror.Upstream(service, 0), err)
	}
	return nil
}
