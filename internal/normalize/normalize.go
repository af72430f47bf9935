// Package normalize converts raw provider hits into scored evidence records.
// Every record leaves this package with a non-empty snippet, a credibility
// and relevance score, and its primary-source flag resolved against the
// run's intent.
package normalize

import (
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"dossier/internal/core"
	"dossier/internal/intent"
	"dossier/internal/search"
)

const (
	maxSnippetLen      = 500
	maxTitleSnippetLen = 280
)

// Normalizer builds evidence records for one run.
type Normalizer struct {
	intent intent.Intent
	scorer *RelevanceScorer
	now    func() time.Time
	newID  func() string
}

// New returns a Normalizer scoring against the given topic and intent.
func New(topic string, it intent.Intent) *Normalizer {
	return &Normalizer{
		intent: it,
		scorer: NewRelevanceScorer(topic),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// WithClock overrides the collection timestamp source for tests.
func (n *Normalizer) WithClock(now func() time.Time) *Normalizer {
	n.now = now
	return n
}

// WithIDSource overrides record ID generation for tests.
func (n *Normalizer) WithIDSource(newID func() string) *Normalizer {
	n.newID = newID
	return n
}

// Normalize converts one provider hit into an evidence record. query is
// recorded as the subtopic the hit answered.
func (n *Normalizer) Normalize(r search.Result, query string) core.Evidence {
	domain := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(r.Domain)), "www.")
	if domain == "" {
		domain = search.ExtractDomain(r.URL)
	}

	title := strings.TrimSpace(r.Title)
	snippet := SynthesizeSnippet(strings.TrimSpace(r.Snippet), "", title, domain)

	cred := CredibilityFor(domain)
	rel := n.scorer.Score(title, snippet)

	ev := core.Evidence{
		ID:               n.newID(),
		Provider:         r.Source,
		URL:              r.URL,
		SourceDomain:     domain,
		Title:            title,
		Snippet:          snippet,
		Claim:            claimText(title, snippet),
		SupportingText:   snippet,
		SubtopicName:     query,
		CollectedAt:      n.now().UTC(),
		CredibilityScore: cred,
		RelevanceScore:   rel,
		Confidence:       cred * rel,
		Reachability:     1,
		IsPrimarySource:  IsPrimary(domain, n.intent),
		Stance:           core.StanceNeutral,
	}
	if !r.PublishedAt.IsZero() {
		ev.PublishedAt = r.PublishedAt.UTC().Format("2006-01-02")
	}
	return ev
}

// NormalizeAll converts hits from one query in provider order.
func (n *Normalizer) NormalizeAll(results []search.Result, query string) []core.Evidence {
	out := make([]core.Evidence, 0, len(results))
	for _, r := range results {
		out = append(out, n.Normalize(r, query))
	}
	return out
}

// SynthesizeSnippet produces a non-empty snippet from whatever text is
// available, in fixed priority: provider snippet, extracted quote, title,
// domain placeholder, generic placeholder. Enrichment re-runs it once a
// quote exists so placeholders get upgraded.
func SynthesizeSnippet(snippet, quote, title, domain string) string {
	if snippet != "" && !isPlaceholder(snippet) {
		return truncate(snippet, maxSnippetLen)
	}
	if quote != "" {
		return truncate(quote, maxSnippetLen)
	}
	if title != "" {
		return truncate("Content: "+title, maxTitleSnippetLen)
	}
	if domain != "" {
		return "Source content from " + domain
	}
	return "Content available at source"
}

// isPlaceholder recognizes snippets this package synthesized so a later
// pass can replace them with real extracted text.
func isPlaceholder(snippet string) bool {
	return strings.HasPrefix(snippet, "Content: ") ||
		strings.HasPrefix(snippet, "Source content from ") ||
		snippet == "Content available at source"
}

// claimText chooses the record's initial claim: the first substantial
// sentence of the snippet, else the title.
func claimText(title, snippet string) string {
	if s := firstSentence(snippet); len(s) >= 30 && !isPlaceholder(snippet) {
		return s
	}
	if title != "" {
		return title
	}
	return snippet
}

func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	for i, r := range text {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		// A period followed by a digit is a decimal point, not a boundary.
		if r == '.' && i+1 < len(text) && unicode.IsDigit(rune(text[i+1])) {
			continue
		}
		return strings.TrimSpace(text[:i+1])
	}
	return text
}

// truncate shortens text to at most limit runes, cutting back to the last
// word boundary when one is close enough to matter.
func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	cut := string(runes[:limit])
	if idx := strings.LastIndex(cut, " "); idx > limit*3/4 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, " ,;:")
}
