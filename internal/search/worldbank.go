package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"dossier/internal/logger"
)

// WorldBankProvider implements Provider using the World Bank documents
// API, a keyless vertical for statistics and development reports.
type WorldBankProvider struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewWorldBankProvider creates a new World Bank search provider
func NewWorldBankProvider() *WorldBankProvider {
	return &WorldBankProvider{
		baseURL: "https://search.worldbank.org/api/v2/wds",
		client: &http.Client{
			Timeout: 20 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// GetName returns the name of this provider
func (w *WorldBankProvider) GetName() string {
	return "WorldBank"
}

type worldBankDoc struct {
	DisplayTitle string `json:"display_title"`
	URL          string `json:"url"`
	PDFURL       string `json:"pdfurl"`
	DocDate      string `json:"docdt"`
	Abstract     struct {
		Text string `json:"cdata!"`
	} `json:"abstracts"`
}

// Search queries the documents-and-reports endpoint
func (w *WorldBankProvider) Search(ctx context.Context, query string, config Config) ([]Result, error) {
	if err := w.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("format", "json")
	params.Set("qterm", query)
	params.Set("rows", strconv.Itoa(config.MaxResults))
	params.Set("fl", "display_title,url,pdfurl,docdt,abstracts")

	fullURL := w.baseURL + "?" + params.Encode()

	resp, err := doWithRetry(ctx, w.client, "WorldBank", fullURL, nil, DefaultRetryPolicy)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// The documents object mixes DN-keyed entries with a "facets" member,
	// so it has to be decoded loosely first.
	var apiResponse struct {
		Documents map[string]json.RawMessage `json:"documents"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return nil, fmt.Errorf("failed to parse WorldBank response: %w", err)
	}

	keys := make([]string, 0, len(apiResponse.Documents))
	for key := range apiResponse.Documents {
		if key == "facets" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return docKeyOrder(keys[i]) < docKeyOrder(keys[j]) })

	var results []Result
	for _, key := range keys {
		if config.MaxResults > 0 && len(results) >= config.MaxResults {
			break
		}

		var doc worldBankDoc
		if err := json.Unmarshal(apiResponse.Documents[key], &doc); err != nil {
			continue
		}

		hitURL := doc.URL
		if hitURL == "" {
			hitURL = doc.PDFURL
		}
		if hitURL == "" || doc.DisplayTitle == "" {
			continue
		}

		result := Result{
			URL:     hitURL,
			Title:   doc.DisplayTitle,
			Snippet: doc.Abstract.Text,
			Domain:  ExtractDomain(hitURL),
			Source:  TagWorldBank,
			Rank:    len(results) + 1,
		}
		if ts, err := time.Parse(time.RFC3339, doc.DocDate); err == nil {
			result.PublishedAt = ts
		}
		results = append(results, result)
	}

	logger.Info("WorldBank search completed", "query", query, "results_found", len(results))

	return results, nil
}

// docKeyOrder turns document keys like "D7" into their numeric order so
// results keep the API's ranking despite map iteration.
func docKeyOrder(key string) int {
	if len(key) < 2 || key[0] != 'D' {
		return 1 << 30
	}
	n, err := strconv.Atoi(key[1:])
	if err != nil {
		return 1 << 30
	}
	return n
}
