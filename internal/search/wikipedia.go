package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"dossier/internal/logger"
)

// WikipediaProvider implements Provider using the MediaWiki search API.
// It is a keyless vertical scoped to encyclopedia-style queries.
type WikipediaProvider struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewWikipediaProvider creates a new Wikipedia search provider
func NewWikipediaProvider() *WikipediaProvider {
	return &WikipediaProvider{
		baseURL: "https://en.wikipedia.org/w/api.php",
		client: &http.Client{
			Timeout: 20 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
	}
}

// GetName returns the name of this provider
func (w *WikipediaProvider) GetName() string {
	return "Wikipedia"
}

var searchMatchTags = regexp.MustCompile(`<[^>]*>`)

// Search queries the MediaWiki list=search endpoint
func (w *WikipediaProvider) Search(ctx context.Context, query string, config Config) ([]Result, error) {
	if err := w.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("action", "query")
	params.Set("list", "search")
	params.Set("srsearch", query)
	params.Set("format", "json")
	params.Set("srlimit", strconv.Itoa(config.MaxResults))
	params.Set("srprop", "snippet|timestamp")

	fullURL := w.baseURL + "?" + params.Encode()

	resp, err := doWithRetry(ctx, w.client, "Wikipedia", fullURL, nil, DefaultRetryPolicy)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var apiResponse struct {
		Query struct {
			Search []struct {
				Title     string `json:"title"`
				Snippet   string `json:"snippet"`
				Timestamp string `json:"timestamp"`
			} `json:"search"`
		} `json:"query"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return nil, fmt.Errorf("failed to parse Wikipedia response: %w", err)
	}

	var results []Result
	for i, item := range apiResponse.Query.Search {
		pageURL := "https://en.wikipedia.org/wiki/" + url.PathEscape(strings.ReplaceAll(item.Title, " ", "_"))

		result := Result{
			URL:     pageURL,
			Title:   item.Title,
			Snippet: strings.TrimSpace(searchMatchTags.ReplaceAllString(item.Snippet, "")),
			Domain:  "en.wikipedia.org",
			Source:  TagWikipedia,
			Rank:    i + 1,
		}
		if ts, err := time.Parse(time.RFC3339, item.Timestamp); err == nil {
			result.PublishedAt = ts
		}
		results = append(results, result)
	}

	logger.Info("Wikipedia search completed", "query", query, "results_found", len(results))

	return results, nil
}
