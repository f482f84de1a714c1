package leads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/exportdesk-io/exportdesk-ce/internal/models"
)

const (
	defaultSerpBaseURL = "https://serpapi.com/search"
	defaultSerpTimeout = 20 * time.Second
	defaultSerpEngine  = "google"
)

// ErrRateLimited marks the provider's throttling response. Callers that
// want to keep partial results check for it with errors.Is.
var ErrRateLimited = errors.New("search provider rate limit reached")

// OrganicHit is one organic search result from the provider.
type OrganicHit struct {
	Position int    `json:"position"`
	Title    string `json:"title"`
	Link     string `json:"link"`
	Snippet  string `json:"snippet"`
}

type serpResponse struct {
	OrganicResults []OrganicHit `json:"organic_results"`
	Error          string       `json:"error,omitempty"`
}

// SerpClient calls the external web-search provider. One client is shared
// across queries; it carries the API key and region defaults.
type SerpClient struct {
	baseURL string
	apiKey  string
	engine  string
	client  *http.Client
	logger  *log.Logger
}

// SerpOption customizes client behavior.
type SerpOption func(*SerpClient)

// NewSerpClient builds a provider client for the given API key.
func NewSerpClient(apiKey string, opts ...SerpOption) *SerpClient {
	c := &SerpClient{
		baseURL: defaultSerpBaseURL,
		apiKey:  apiKey,
		engine:  defaultSerpEngine,
		client:  &http.Client{Timeout: defaultSerpTimeout},
		logger:  log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithSerpBaseURL points the client at an alternate endpoint, primarily
// for tests.
func WithSerpBaseURL(baseURL string) SerpOption {
	return func(c *SerpClient) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithSerpHTTPClient overrides the HTTP client.
func WithSerpHTTPClient(client *http.Client) SerpOption {
	return func(c *SerpClient) {
		if client != nil {
			c.client = client
		}
	}
}

// WithSerpLogger overrides the logger used for provider diagnostics.
func WithSerpLogger(logger *log.Logger) SerpOption {
	return func(c *SerpClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Search runs one query and returns the organic hits. A bad API key maps
// to a permanent error so callers can short-circuit an entire batch; rate
// limiting and provider outages map to transient errors.
func (c *SerpClient) Search(ctx context.Context, query string, num int, countryCode string) ([]OrganicHit, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("%w: search provider API key is not configured", models.ErrConfiguration)
	}
	if num <= 0 {
		num = 10
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("api_key", c.apiKey)
	params.Set("engine", c.engine)
	params.Set("num", strconv.Itoa(num))
	params.Set("hl", "en")
	if countryCode != "" {
		params.Set("gl", strings.ToLower(countryCode))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: search provider unreachable: %v", models.ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read search response: %v", models.ErrTransient, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: search provider rejected the API key (status %d)", models.ErrPermanent, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: %w", models.ErrTransient, ErrRateLimited)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: search provider error (status %d)", models.ErrTransient, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: unexpected search provider status %d", models.ErrPermanent, resp.StatusCode)
	}

	var parsed serpResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: malformed search response: %v", models.ErrPermanent, err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("%w: search provider error: %s", models.ErrPermanent, parsed.Error)
	}

	c.logger.Printf("[DEBUG] search query %q returned %d organic results", query, len(parsed.OrganicResults))
	return parsed.OrganicResults, nil
}
