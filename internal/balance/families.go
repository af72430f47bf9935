package balance

import (
	"strings"

	"golang.org/x/net/publicsuffix"
)

// familyTable groups hosts that would otherwise evade the domain cap as
// siblings: institutional clusters and org-plus-subsidiary sets. Everything
// not listed here collapses to its registrable domain, so stats.bls.gov and
// data.bls.gov count as one publisher.
var familyTable = map[string]string{
	"worldbank.org":      "worldbank",
	"data.worldbank.org": "worldbank",

	"oecd.org":       "oecd",
	"data.oecd.org":  "oecd",
	"stats.oecd.org": "oecd",

	"europa.eu":             "eu-institutions",
	"ec.europa.eu":          "eu-institutions",
	"eurostat.ec.europa.eu": "eu-institutions",
	"eur-lex.europa.eu":     "eu-institutions",
	"ema.europa.eu":         "eu-institutions",
	"ecb.europa.eu":         "eu-institutions",

	"nih.gov":                 "us-health",
	"cdc.gov":                 "us-health",
	"fda.gov":                 "us-health",
	"ncbi.nlm.nih.gov":        "us-health",
	"pubmed.ncbi.nlm.nih.gov": "us-health",

	"nature.com":        "springer-nature",
	"springer.com":      "springer-nature",
	"link.springer.com": "springer-nature",

	"google.com":  "alphabet",
	"youtube.com": "alphabet",
	"blog.google": "alphabet",

	"facebook.com":  "meta",
	"instagram.com": "meta",
}

// FamilyFor maps a source domain to its cap-accounting family. Explicit
// table entries win (exact or parent suffix); everything else falls back
// to the registrable domain.
func FamilyFor(domain string) string {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return ""
	}
	if fam, ok := familyTable[domain]; ok {
		return fam
	}
	for entry, fam := range familyTable {
		if strings.HasSuffix(domain, "."+entry) {
			return fam
		}
	}
	if base, err := publicsuffix.EffectiveTLDPlusOne(domain); err == nil {
		return base
	}
	return domain
}
