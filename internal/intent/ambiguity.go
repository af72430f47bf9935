package intent

import "strings"

// homographs is a closed list of place names with more than one common
// reading. Matches attach candidate disambiguations to the run for
// reporting; the topic itself is never rewritten.
var homographs = map[string][]string{
	"georgia":     {"Georgia (country)", "Georgia (U.S. state)"},
	"springfield": {"Springfield, Illinois", "Springfield, Massachusetts", "Springfield, Missouri"},
	"portland":    {"Portland, Oregon", "Portland, Maine"},
	"cambridge":   {"Cambridge, England", "Cambridge, Massachusetts"},
	"birmingham":  {"Birmingham, England", "Birmingham, Alabama"},
	"manchester":  {"Manchester, England", "Manchester, New Hampshire"},
	"richmond":    {"Richmond, Virginia", "Richmond, London"},
	"naples":      {"Naples, Italy", "Naples, Florida"},
	"san jose":    {"San José, California", "San José, Costa Rica"},
	"paris":       {"Paris, France", "Paris, Texas"},
	"victoria":    {"Victoria, Australia", "Victoria, British Columbia", "Victoria, Seychelles"},
	"cordoba":     {"Córdoba, Spain", "Córdoba, Argentina"},
}

// DetectAmbiguity scans a lowercased topic for homographic place names and
// returns their candidate readings.
func DetectAmbiguity(lowered string) []string {
	var out []string
	for name, candidates := range homographs {
		if containsWord(lowered, name) {
			out = append(out, candidates...)
		}
	}
	return out
}

func containsWord(s, word string) bool {
	idx := strings.Index(s, word)
	for idx >= 0 {
		before := idx == 0 || !isWordChar(s[idx-1])
		afterIdx := idx + len(word)
		after := afterIdx >= len(s) || !isWordChar(s[afterIdx])
		if before && after {
			return true
		}
		next := strings.Index(s[idx+1:], word)
		if next < 0 {
			return false
		}
		idx = idx + 1 + next
	}
	return false
}

func isWordChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}
