package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"dossier/internal/logger"
)

// OpenAlexProvider implements Provider using the OpenAlex works API, a
// keyless vertical for scholarly literature. Hits carry DOIs when the
// upstream record has one.
type OpenAlexProvider struct {
	baseURL string
	mailto  string
	client  *http.Client
	limiter *rate.Limiter
}

// NewOpenAlexProvider creates a new OpenAlex search provider
func NewOpenAlexProvider() *OpenAlexProvider {
	return &OpenAlexProvider{
		baseURL: "https://api.openalex.org/works",
		mailto:  "contact@dossier.dev", // polite pool
		client: &http.Client{
			Timeout: 20 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// GetName returns the name of this provider
func (o *OpenAlexProvider) GetName() string {
	return "OpenAlex"
}

// Search queries the works endpoint sorted by relevance
func (o *OpenAlexProvider) Search(ctx context.Context, query string, config Config) ([]Result, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("search", query)
	params.Set("per-page", strconv.Itoa(config.MaxResults))
	params.Set("sort", "relevance_score:desc")
	params.Set("mailto", o.mailto)

	fullURL := o.baseURL + "?" + params.Encode()

	resp, err := doWithRetry(ctx, o.client, "OpenAlex", fullURL, nil, DefaultRetryPolicy)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var apiResponse struct {
		Results []struct {
			DisplayName     string `json:"display_name"`
			DOI             string `json:"doi"`
			PublicationDate string `json:"publication_date"`
			PrimaryLocation struct {
				LandingPageURL string `json:"landing_page_url"`
				Source         struct {
					DisplayName string `json:"display_name"`
				} `json:"source"`
			} `json:"primary_location"`
			AbstractInvertedIndex map[string][]int `json:"abstract_inverted_index"`
		} `json:"results"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return nil, fmt.Errorf("failed to parse OpenAlex response: %w", err)
	}

	var results []Result
	for i, item := range apiResponse.Results {
		// Prefer the DOI URL so downstream canonicalization can key on it
		hitURL := item.DOI
		if hitURL == "" {
			hitURL = item.PrimaryLocation.LandingPageURL
		}
		if hitURL == "" {
			continue
		}

		result := Result{
			URL:     hitURL,
			Title:   item.DisplayName,
			Snippet: reconstructAbstract(item.AbstractInvertedIndex, 500),
			Domain:  ExtractDomain(hitURL),
			Source:  TagOpenAlex,
			Rank:    i + 1,
		}
		if ts, err := time.Parse("2006-01-02", item.PublicationDate); err == nil {
			result.PublishedAt = ts
		}
		results = append(results, result)
	}

	logger.Info("OpenAlex search completed", "query", query, "results_found", len(results))

	return results, nil
}

// reconstructAbstract rebuilds prose from OpenAlex's inverted abstract
// index, truncated to maxLen characters.
func reconstructAbstract(index map[string][]int, maxLen int) string {
	if len(index) == 0 {
		return ""
	}

	type posWord struct {
		pos  int
		word string
	}
	var ordered []posWord
	for word, positions := range index {
		for _, p := range positions {
			ordered = append(ordered, posWord{pos: p, word: word})
		}
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].pos < ordered[j].pos })

	var b strings.Builder
	for i, pw := range ordered {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(pw.word)
		if b.Len() >= maxLen {
			break
		}
	}

	abstract := b.String()
	if len(abstract) > maxLen {
		abstract = abstract[:maxLen]
		if idx := strings.LastIndex(abstract, " "); idx > 0 {
			abstract = abstract[:idx]
		}
	}
	return abstract
}
