package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"dossier/internal/logger"
)

// GDELTProvider implements Provider using the GDELT DOC 2.0 API, a keyless
// vertical over the global news firehose.
type GDELTProvider struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewGDELTProvider creates a new GDELT search provider
func NewGDELTProvider() *GDELTProvider {
	return &GDELTProvider{
		baseURL: "https://api.gdeltproject.org/api/v2/doc/doc",
		client: &http.Client{
			Timeout: 20 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// GetName returns the name of this provider
func (g *GDELTProvider) GetName() string {
	return "GDELT"
}

// Search queries the article list endpoint sorted by hybrid relevance
func (g *GDELTProvider) Search(ctx context.Context, query string, config Config) ([]Result, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("query", query+" sourcelang:english")
	params.Set("mode", "artlist")
	params.Set("format", "json")
	params.Set("maxrecords", strconv.Itoa(config.MaxResults))
	params.Set("sort", "hybridrel")

	if config.SinceTime > 0 {
		// timespan takes coarse units; round up to whole days
		days := int(config.SinceTime.Hours()/24) + 1
		params.Set("timespan", fmt.Sprintf("%dd", days))
	}

	fullURL := g.baseURL + "?" + params.Encode()

	resp, err := doWithRetry(ctx, g.client, "GDELT", fullURL, nil, DefaultRetryPolicy)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var apiResponse struct {
		Articles []struct {
			URL      string `json:"url"`
			Title    string `json:"title"`
			SeenDate string `json:"seendate"`
			Domain   string `json:"domain"`
		} `json:"articles"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return nil, fmt.Errorf("failed to parse GDELT response: %w", err)
	}

	var results []Result
	for i, item := range apiResponse.Articles {
		if item.URL == "" || item.Title == "" {
			continue
		}

		domain := item.Domain
		if domain == "" {
			domain = ExtractDomain(item.URL)
		}

		result := Result{
			URL:    item.URL,
			Title:  item.Title,
			Domain: domain,
			Source: TagGDELT,
			Rank:   i + 1,
		}
		if ts, err := time.Parse("20060102T150405Z", item.SeenDate); err == nil {
			result.PublishedAt = ts
		}
		results = append(results, result)
	}

	logger.Info("GDELT search completed", "query", query, "results_found", len(results))

	return results, nil
}
