package triangulate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"dossier/internal/core"
)

// Metric keywords anchoring a structured claim. A sentence without one of
// these never yields a claim, however many numbers it carries.
var metricKeywords = map[string]bool{
	"rate": true, "rates": true, "growth": true, "inflation": true,
	"unemployment": true, "gdp": true, "revenue": true, "revenues": true,
	"sales": true, "price": true, "prices": true, "cost": true, "costs": true,
	"income": true, "population": true, "emissions": true, "share": true,
	"output": true, "production": true, "exports": true, "imports": true,
	"deficit": true, "debt": true, "investment": true, "capacity": true,
	"adoption": true, "penetration": true, "profit": true, "margin": true,
	"wage": true, "wages": true, "spending": true, "budget": true,
	"enrollment": true, "cases": true, "deaths": true, "incidence": true,
	"prevalence": true, "efficacy": true, "yield": true, "consumption": true,
	"demand": true, "supply": true, "deliveries": true, "turnout": true,
}

var (
	// Longest alternatives first: Go regexp alternation is leftmost-first,
	// so "percent" must not shadow "percentage points".
	numberPattern = regexp.MustCompile(`([$€£])?\s*(\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?)\s*(%|percentage points?|per cent|percent|pp\b|million|billion|trillion|bn\b|mn\b|tn\b)?`)
	yearPattern   = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
	periodPattern = regexp.MustCompile(`\b(?:Q[1-4]\s*(?:19|20)\d{2}|FY\s*(?:19|20)\d{2}|(?:19|20)\d{2}\s*[-–]\s*(?:19|20)\d{2}|(?:19|20)\d{2})\b`)
	entityPattern = regexp.MustCompile(`\b(?:[A-Z][a-zA-Z]{2,}|[A-Z]{2,5})(?:\s+(?:[A-Z][a-zA-Z]{2,}|[A-Z]{2,5}))*`)
)

var currencyUnits = map[string]string{"$": "USD", "€": "EUR", "£": "GBP"}

var suffixUnits = map[string]string{
	"%": "%", "percent": "%", "per cent": "%",
	"percentage point": "pp", "percentage points": "pp", "pp": "pp",
}

var magnitudes = map[string]float64{
	"million": 1e6, "mn": 1e6,
	"billion": 1e9, "bn": 1e9,
	"trillion": 1e12, "tn": 1e12,
}

// ExtractClaims pulls structured numeric claims out of evidence text. A
// claim needs a number with a recognizable unit in the same sentence as a
// metric keyword; the period comes from an explicit time token, falling
// back to the record's publication year.
func ExtractClaims(text, publishedAt string) []core.StructuredClaim {
	var claims []core.StructuredClaim
	for _, sentence := range splitClaimSentences(text) {
		claim, ok := extractFromSentence(sentence, publishedAt)
		if ok {
			claims = append(claims, claim)
		}
	}
	return claims
}

func extractFromSentence(sentence, publishedAt string) (core.StructuredClaim, bool) {
	metric := findMetric(sentence)
	if metric == "" {
		return core.StructuredClaim{}, false
	}

	value, unit, ok := findValueUnit(sentence)
	if !ok {
		return core.StructuredClaim{}, false
	}

	period := findPeriod(sentence)
	if period == "" && len(publishedAt) >= 4 {
		period = publishedAt[:4]
	}
	if period == "" {
		return core.StructuredClaim{}, false
	}

	return core.StructuredClaim{
		Entity: findEntity(sentence, metric),
		Metric: metric,
		Period: period,
		Value:  value,
		Unit:   unit,
	}, true
}

func findMetric(sentence string) string {
	for _, tok := range tokenize(sentence) {
		if metricKeywords[tok] {
			return tok
		}
	}
	return ""
}

// findValueUnit returns the first number in the sentence carrying a unit:
// a currency prefix, a percent/pp suffix, or a magnitude word (counted
// unit). Unitless numbers are ignored; bare years are not values.
func findValueUnit(sentence string) (float64, string, bool) {
	for _, m := range numberPattern.FindAllStringSubmatch(sentence, -1) {
		currency, raw, suffix := m[1], m[2], strings.ToLower(strings.TrimSpace(m[3]))

		value, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
		if err != nil {
			continue
		}

		if mag, ok := magnitudes[suffix]; ok {
			unit := "count"
			if currency != "" {
				unit = currencyUnits[currency]
			}
			return value * mag, unit, true
		}
		if unit, ok := suffixUnits[suffix]; ok {
			return value, unit, true
		}
		if currency != "" {
			return value, currencyUnits[currency], true
		}
	}
	return 0, "", false
}

func findPeriod(sentence string) string {
	m := periodPattern.FindString(sentence)
	if m == "" {
		return ""
	}
	return strings.ToLower(strings.Join(strings.Fields(m), " "))
}

// findEntity takes the first capitalized run that is not the sentence
// opener, skipping runs that are just the metric word.
func findEntity(sentence, metric string) string {
	matches := entityPattern.FindAllStringIndex(sentence, -1)
	for _, loc := range matches {
		if loc[0] == 0 {
			continue // sentence-initial capitalization is not a name signal
		}
		candidate := strings.ToLower(sentence[loc[0]:loc[1]])
		if candidate == metric {
			continue
		}
		return candidate
	}
	return ""
}

// ClaimKey is the canonical bucket key: case-insensitive (entity, metric,
// period).
func ClaimKey(c core.StructuredClaim) string {
	return fmt.Sprintf("%s|%s|%s",
		strings.ToLower(c.Entity), strings.ToLower(c.Metric), strings.ToLower(c.Period))
}

func splitClaimSentences(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		start := 0
		for _, loc := range sentenceBoundary.FindAllStringIndex(line, -1) {
			if s := strings.TrimSpace(line[start:loc[1]]); s != "" {
				out = append(out, s)
			}
			start = loc[1]
		}
		if rest := strings.TrimSpace(line[start:]); rest != "" {
			out = append(out, rest)
		}
	}
	return out
}

var sentenceBoundary = regexp.MustCompile(`[.!?](?:\s+|\z)`)
