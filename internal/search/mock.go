package search

import (
	"context"
	"sync"
	"time"
)

// MockProvider implements Provider for testing and offline runs. Results,
// failures and latency are all injectable.
type MockProvider struct {
	mu      sync.Mutex
	name    string
	results []Result
	byQuery map[string][]Result
	err     error
	delay   time.Duration
	calls   []string
}

// NewMockProvider creates a mock provider with a small default result set
func NewMockProvider() *MockProvider {
	return &MockProvider{
		name:    "Mock",
		byQuery: make(map[string][]Result),
		results: []Result{
			{
				URL:     "https://example.com/article1",
				Title:   "Example Article 1",
				Snippet: "This is a mock search result for testing purposes.",
				Domain:  "example.com",
				Rank:    1,
			},
			{
				URL:     "https://test.org/article2",
				Title:   "Test Article 2",
				Snippet: "Another mock search result with different content.",
				Domain:  "test.org",
				Rank:    2,
			},
			{
				URL:     "https://demo.net/article3",
				Title:   "Demo Article 3",
				Snippet: "Third mock result to simulate multiple search results.",
				Domain:  "demo.net",
				Rank:    3,
			},
		},
	}
}

// GetName returns the name of this provider
func (m *MockProvider) GetName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.name
}

// Search returns the injected results, honoring context cancellation
// during any configured delay
func (m *MockProvider) Search(ctx context.Context, query string, config Config) ([]Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, query)
	delay := m.delay
	err := m.err
	source := m.results
	if override, ok := m.byQuery[query]; ok {
		source = override
	}
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err != nil {
		return nil, err
	}

	maxResults := config.MaxResults
	if maxResults <= 0 || maxResults > len(source) {
		maxResults = len(source)
	}

	results := make([]Result, maxResults)
	for i := 0; i < maxResults; i++ {
		result := source[i]
		result.Source = TagMock
		if result.Rank == 0 {
			result.Rank = i + 1
		}
		results[i] = result
	}
	return results, nil
}

// SetResults replaces the default result set
func (m *MockProvider) SetResults(results []Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = results
}

// SetResultsForQuery pins a result set to one exact query string
func (m *MockProvider) SetResultsForQuery(query string, results []Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byQuery[query] = results
}

// SetName overrides the provider name
func (m *MockProvider) SetName(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.name = name
}

// SetError makes every Search call fail with err
func (m *MockProvider) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetDelay makes every Search call wait before responding
func (m *MockProvider) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// Calls returns the queries seen so far, in call order
func (m *MockProvider) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}
