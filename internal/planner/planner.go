package planner

import (
	"fmt"
	"strings"
	"time"

	"dossier/internal/intent"
)

// Plan is the bounded query set for one collection pass.
type Plan struct {
	Topic   string        `json:"topic"`
	Intent  intent.Intent `json:"intent"`
	Queries []string      `json:"queries"` // Raw topic first, then expansions
}

// Planner expands a topic into at most maxExpansions provider-appropriate
// queries, deterministically for a given (topic, intent) and clock.
type Planner struct {
	maxExpansions int
	now           func() time.Time
}

// New builds a planner. maxExpansions is clamped to [1,5].
func New(maxExpansions int) *Planner {
	if maxExpansions < 1 {
		maxExpansions = 1
	}
	if maxExpansions > 5 {
		maxExpansions = 5
	}
	return &Planner{maxExpansions: maxExpansions, now: time.Now}
}

// WithClock replaces the planner clock. Intended for tests and resume runs.
func (p *Planner) WithClock(now func() time.Time) *Planner {
	p.now = now
	return p
}

// Plan produces the expansion set. The raw topic is always the first query;
// duplicates collapse by lowercased whitespace-normalized string.
func (p *Planner) Plan(topic string, it intent.Intent) Plan {
	topic = strings.TrimSpace(topic)
	candidates := []string{topic}

	switch it {
	case intent.Encyclopedia:
		// Time-agnostic facets only; recency filters would bias the record
		// toward news coverage.
		candidates = append(candidates,
			topic+" timeline",
			topic+" history overview",
			topic+" site:britannica.com",
			topic+" site:en.wikipedia.org",
		)
	case intent.News:
		since := p.now().AddDate(-1, 0, 0).Format("2006-01-02")
		candidates = append(candidates,
			fmt.Sprintf("%s after:%s", topic, since),
			topic+" latest developments",
			topic+" analysis",
		)
	case intent.Academic:
		candidates = append(candidates,
			topic+" research",
			topic+" study",
			topic+" site:.edu",
		)
	case intent.Stats:
		candidates = append(candidates,
			topic+" statistics",
			topic+" data",
			topic+" site:.gov",
		)
	default:
		// Pass-through: the raw topic is the whole plan.
	}

	queries := make([]string, 0, p.maxExpansions)
	seen := make(map[string]bool)
	for _, q := range candidates {
		norm := normalize(q)
		if norm == "" || seen[norm] {
			continue
		}
		seen[norm] = true
		queries = append(queries, q)
		if len(queries) == p.maxExpansions {
			break
		}
	}

	return Plan{Topic: topic, Intent: it, Queries: queries}
}

// normalize lowercases and collapses whitespace for duplicate detection.
func normalize(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}
