// Package search finds competing articles for a title through SerpAPI's
// Google engine and filters out results that are not readable articles.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/docutag/enhancer/apperr"
	"github.com/docutag/enhancer/models"
)

const (
	// DefaultBaseURL is the SerpAPI endpoint root
	DefaultBaseURL = "https://serpapi.com"

	// DefaultMaxResults is used when a caller asks for zero results
	DefaultMaxResults = 2

	// fetchCount is how many organic results are requested so that
	// filtering still leaves enough candidates
	fetchCount = 10
)

// Config contains search client configuration
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// DefaultConfig returns default search configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: DefaultBaseURL,
		Timeout: 10 * time.Second,
	}
}

// Client queries SerpAPI
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a search client. A missing API key is only warned about here;
// the first Search call fails instead.
func New(config Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.APIKey == "" {
		logger.Warn("SERPAPI_KEY not configured, search requests will fail")
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

type serpResponse struct {
	OrganicResults []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic_results"`
}

// Search returns up to maxResults article results for query, skipping any
// URL that contains excludeDomain and any non-article URL. Provider order
// is preserved.
func (c *Client) Search(ctx context.Context, query, excludeDomain string, maxResults int) ([]models.SearchResult, error) {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	if c.config.APIKey == "" {
		return nil, apperr.External("search", "search failed", fmt.Errorf("SerpAPI key not configured"))
	}

	params := url.Values{
		"api_key": {c.config.APIKey},
		"q":       {query},
		"num":     {strconv.Itoa(fetchCount)},
		"engine":  {"google"},
	}
	endpoint := strings.TrimRight(c.config.BaseURL, "/") + "/search?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, apperr.External("search", "search failed", fmt.Errorf("failed to create request: %w", err))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.External("search", "search failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, apperr.External("search", "search failed",
			fmt.Errorf("SerpAPI returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var decoded serpResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, apperr.External("search", "search failed", fmt.Errorf("failed to decode response: %w", err))
	}

	excludeDomain = strings.ToLower(excludeDomain)
	results := make([]models.SearchResult, 0, maxResults)
	for _, r := range decoded.OrganicResults {
		if excludeDomain != "" && strings.Contains(strings.ToLower(r.Link), excludeDomain) {
			continue
		}
		if isNonArticleURL(r.Link) {
			continue
		}
		results = append(results, models.SearchResult{
			Title:   r.Title,
			URL:     r.Link,
			Snippet: r.Snippet,
		})
		if len(results) == maxResults {
			break
		}
	}

	c.logger.Info("search completed",
		"query", query,
		"organic", len(decoded.OrganicResults),
		"returned", len(results))

	return results, nil
}

var (
	forumPatterns = []string{
		"reddit.com", "stackoverflow.com", "quora.com", "stackexchange.com",
		"forum", "/forums/", "/discussion/",
	}
	videoPatterns = []string{
		"youtube.com", "vimeo.com", "dailymotion.com",
	}
	socialPatterns = []string{
		"facebook.com", "twitter.com", "linkedin.com", "instagram.com",
	}
)

// isNonArticleURL reports whether a URL points at a document, forum, video
// or social page rather than an article
func isNonArticleURL(rawURL string) bool {
	urlLower := strings.ToLower(rawURL)

	if strings.HasSuffix(urlLower, ".pdf") {
		return true
	}

	for _, group := range [][]string{forumPatterns, videoPatterns, socialPatterns} {
		for _, pattern := range group {
			if strings.Contains(urlLower, pattern) {
				return true
			}
		}
	}

	return false
}
