package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/factcheck-pro/backend/internal/metrics"
	"github.com/factcheck-pro/backend/pkg/logger"
	"github.com/factcheck-pro/backend/pkg/utils"
)

const (
	defaultSerpAPIURL = "https://serpapi.com/search"
	defaultGoogleURL  = "https://www.google.com/search"
)

// Cache stores search results between identical queries.
type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

type Client struct {
	serpAPIKey string
	serpAPIURL string
	googleURL  string
	maxResults int
	httpClient *http.Client
	cache      Cache
	cacheTTL   time.Duration
}

type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Source  string `json:"source,omitempty"`
}

type Option func(*Client)

func WithCache(cache Cache, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = cache
		c.cacheTTL = ttl
	}
}

// WithEndpoints points the client at alternative SerpAPI and Google URLs.
func WithEndpoints(serpAPIURL, googleURL string) Option {
	return func(c *Client) {
		if serpAPIURL != "" {
			c.serpAPIURL = serpAPIURL
		}
		if googleURL != "" {
			c.googleURL = googleURL
		}
	}
}

func NewClient(serpAPIKey string, maxResults int, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		serpAPIKey: serpAPIKey,
		serpAPIURL: defaultSerpAPIURL,
		googleURL:  defaultGoogleURL,
		maxResults: maxResults,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search returns up to numResults hits for query. Results are passed through
// as the search provider ranked them.
func (c *Client) Search(ctx context.Context, query string, numResults int) ([]SearchResult, error) {
	if c.maxResults > 0 && numResults > c.maxResults {
		numResults = c.maxResults
	}
	logger.Info("Performing web search", zap.String("query", query), zap.Int("num_results", numResults))

	key := "search:" + utils.CacheKey(query, strconv.Itoa(numResults))
	if c.cache != nil {
		var cached []SearchResult
		found, err := c.cache.GetJSON(ctx, key, &cached)
		switch {
		case err != nil:
			logger.Warn("Search cache lookup failed", zap.Error(err))
		case found:
			metrics.SearchCacheHits.Inc()
			return cached, nil
		}
		metrics.SearchCacheMisses.Inc()
	}

	var (
		results []SearchResult
		err     error
	)
	if c.serpAPIKey != "" {
		results, err = c.searchWithSerpAPI(ctx, query, numResults)
	} else {
		results, err = c.searchWithGoogle(ctx, query, numResults)
	}
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.SetJSON(ctx, key, results, c.cacheTTL); err != nil {
			logger.Warn("Failed to cache search results", zap.Error(err))
		}
	}

	return results, nil
}

func (c *Client) searchWithSerpAPI(ctx context.Context, query string, numResults int) ([]SearchResult, error) {
	params := url.Values{}
	params.Add("q", query)
	params.Add("api_key", c.serpAPIKey)
	params.Add("num", strconv.Itoa(numResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serpAPIURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var searchResp struct {
		OrganicResults []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
			Source  string `json:"source"`
		} `json:"organic_results"`
	}

	if err := json.Unmarshal(body, &searchResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	results := make([]SearchResult, 0, len(searchResp.OrganicResults))
	for _, r := range searchResp.OrganicResults {
		if len(results) >= numResults {
			break
		}
		results = append(results, SearchResult{
			Title:   r.Title,
			URL:     r.Link,
			Snippet: r.Snippet,
			Source:  r.Source,
		})
	}

	logger.Info("Web search completed", zap.Int("results", len(results)))

	return results, nil
}

func (c *Client) searchWithGoogle(ctx context.Context, query string, numResults int) ([]SearchResult, error) {
	searchURL := fmt.Sprintf("%s?q=%s&num=%d", c.googleURL, url.QueryEscape(query), numResults)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	results := make([]SearchResult, 0, numResults)
	doc.Find("div.g").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		title := strings.TrimSpace(s.Find("h3").First().Text())
		link, _ := s.Find("a").First().Attr("href")
		snippet := strings.TrimSpace(s.Find("div.VwiC3b").Text())

		if title != "" && link != "" {
			results = append(results, SearchResult{
				Title:   title,
				URL:     link,
				Snippet: snippet,
			})
		}
		return len(results) < numResults
	})

	logger.Info("Google search completed", zap.Int("results", len(results)))

	return results, nil
}
