package search

import (
	"context"
	"net/url"
	"strings"
	"time"
)

// Provider defines the unified interface for search providers
// Implementations return their hits in provider order and must treat the
// context deadline as the per-call budget.
type Provider interface {
	// Search performs a search with configuration
	Search(ctx context.Context, query string, config Config) ([]Result, error)

	// GetName returns the name of this provider
	GetName() string
}

// Config holds configuration for search requests
type Config struct {
	MaxResults int           // Maximum number of results to return
	SinceTime  time.Duration // Only return results newer than this duration
	Language   string        // Language preference (e.g., "en", "es")
}

// Result represents a unified search result
type Result struct {
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Snippet     string    `json:"snippet"`
	Domain      string    `json:"domain"`
	PublishedAt time.Time `json:"published_at,omitempty"`
	Source      string    `json:"source"` // Provider-specific source identifier
	Rank        int       `json:"rank"`   // Position in search results
}

// Kind classifies a provider for selection purposes.
type Kind string

const (
	// KindGeneral providers accept arbitrary query strings.
	KindGeneral Kind = "general"
	// KindVertical providers are structured data APIs scoped to a domain.
	KindVertical Kind = "vertical"
)

// Provider tags. The evidence schema's provider enum is exactly this set.
const (
	TagSerpAPI    = "serpapi"
	TagDuckDuckGo = "duckduckgo"
	TagWikipedia  = "wikipedia"
	TagOpenAlex   = "openalex"
	TagWorldBank  = "worldbank"
	TagGDELT      = "gdelt"
	TagMock       = "mock"
)

// KnownTags lists every provider tag the registry can construct.
var KnownTags = []string{
	TagSerpAPI, TagDuckDuckGo, TagWikipedia, TagOpenAlex,
	TagWorldBank, TagGDELT, TagMock,
}

// ExtractDomain returns the lowercased host of a URL without its www.
// prefix. Invalid URLs yield an empty string.
func ExtractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
