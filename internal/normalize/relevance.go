package normalize

import (
	"regexp"
	"strings"
)

// stopWords are skipped when extracting topic terms. Matching on them
// would score every English sentence as relevant.
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "has": true, "he": true,
	"in": true, "is": true, "it": true, "its": true, "of": true, "on": true,
	"that": true, "the": true, "to": true, "was": true, "were": true,
	"will": true, "with": true, "what": true, "when": true, "where": true,
	"which": true, "who": true, "why": true, "how": true, "this": true,
	"these": true, "those": true, "or": true, "but": true, "not": true,
	"have": true, "had": true, "do": true, "does": true, "did": true,
	"can": true, "could": true, "should": true, "would": true, "may": true,
	"about": true, "into": true, "over": true, "after": true, "before": true,
	"between": true, "during": true, "vs": true, "versus": true,
}

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// RelevanceScorer scores evidence text against the topic terms of a run.
// It is a lexical coverage model: the share of topic terms present in the
// candidate text, with a small bonus for repeated hits and title matches.
type RelevanceScorer struct {
	terms []string
}

// NewRelevanceScorer extracts the content-bearing terms from the topic.
func NewRelevanceScorer(topic string) *RelevanceScorer {
	return &RelevanceScorer{terms: extractTerms(topic)}
}

// Score returns a relevance in [0,1] for the given title and body text.
// With no usable topic terms it returns a neutral 0.5 so downstream
// multiplication never zeroes out a whole run.
func (s *RelevanceScorer) Score(title, body string) float64 {
	if len(s.terms) == 0 {
		return 0.5
	}

	titleTokens := tokenSet(title)
	bodyTokens := tokenSet(body)

	var covered, titleHits int
	for _, term := range s.terms {
		inTitle := titleTokens[term]
		inBody := bodyTokens[term]
		if inTitle || inBody {
			covered++
		}
		if inTitle {
			titleHits++
		}
	}

	coverage := float64(covered) / float64(len(s.terms))
	score := coverage
	// Title hits are a stronger signal than body hits.
	score += 0.2 * float64(titleHits) / float64(len(s.terms))
	if score > 1.0 {
		score = 1.0
	}
	// Never report exactly zero: unreachable-but-returned results keep a
	// floor so credibility ordering still breaks ties.
	if score < 0.05 {
		score = 0.05
	}
	return score
}

func extractTerms(text string) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		if len(tok) < 2 || stopWords[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		terms = append(terms, tok)
	}
	return terms
}

func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		set[tok] = true
	}
	return set
}
