// Package search provides the metasearch client used to turn candidate
// queries into result URLs.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/scourlabs/scour/pkg/version"
)

// Result is a single metasearch hit.
type Result struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

type searchResponse struct {
	Results []Result `json:"results"`
}

// Client queries a SearXNG instance over its JSON API.
type Client struct {
	baseURL string
	httpc   *http.Client
	logger  *slog.Logger
}

// NewClient creates a client for the SearXNG instance at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: timeout},
		logger:  slog.With("component", "search"),
	}
}

// Search runs query against the backend and returns at most limit results.
// A limit <= 0 returns everything the backend sent.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	endpoint := c.baseURL + "/search?" + url.Values{
		"q":      {query},
		"format": {"json"},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	req.Header.Set("User-Agent", version.Full())

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("search backend returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	if len(parsed.Results) == 0 {
		c.logger.Warn("Search returned no results", "query", query)
		return nil, nil
	}

	results := parsed.Results
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	c.logger.Debug("Search completed", "query", query, "result_count", len(results))
	return results, nil
}
