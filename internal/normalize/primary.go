package normalize

import (
	"strings"

	"dossier/internal/intent"
)

// primaryPools lists domains counted as primary sources for each intent.
// A statistics run treats statistical agencies as primary; an academic run
// treats journals and indexes as primary; and so on. The .gov/.edu
// wildcards apply to every intent on top of these pools.
var primaryPools = map[intent.Intent][]string{
	intent.Stats: {
		"oecd.org", "worldbank.org", "imf.org", "bls.gov", "census.gov",
		"eurostat.ec.europa.eu", "ec.europa.eu", "fred.stlouisfed.org",
		"un.org", "wto.org", "bis.org", "ourworldindata.org",
	},
	intent.Academic: {
		"arxiv.org", "pubmed.ncbi.nlm.nih.gov", "ncbi.nlm.nih.gov",
		"nature.com", "science.org", "openalex.org", "doaj.org",
		"semanticscholar.org", "jstor.org", "pnas.org",
	},
	intent.Medical: {
		"nih.gov", "cdc.gov", "who.int", "ema.europa.eu", "fda.gov",
		"cochranelibrary.com", "pubmed.ncbi.nlm.nih.gov", "nejm.org",
		"thelancet.com", "bmj.com",
	},
	intent.Regulatory: {
		"sec.gov", "federalregister.gov", "eur-lex.europa.eu",
		"congress.gov", "gov.uk", "legislation.gov.uk", "europa.eu",
		"regulations.gov", "ftc.gov", "justice.gov",
	},
	intent.News: {
		"reuters.com", "apnews.com", "afp.com",
	},
	intent.Travel: {
		"unwto.org", "wttc.org", "iata.org", "travel.state.gov",
	},
	intent.HowTo: {
		"docs.python.org", "developer.mozilla.org", "kubernetes.io",
		"go.dev", "docs.aws.amazon.com", "learn.microsoft.com",
	},
	intent.Product: {
		"consumerreports.org", "rtings.com",
	},
	intent.Encyclopedia: {
		"britannica.com", "plato.stanford.edu",
	},
}

// IsPrimary reports whether a domain counts as a primary source for the
// given intent. Official government and academic institution hosts are
// primary regardless of intent.
func IsPrimary(domain string, it intent.Intent) bool {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return false
	}

	if strings.HasSuffix(domain, ".gov") || strings.Contains(domain, ".gov.") ||
		strings.HasSuffix(domain, ".edu") || strings.Contains(domain, ".ac.") ||
		strings.HasSuffix(domain, ".int") {
		return true
	}

	for _, entry := range primaryPools[it] {
		if domain == entry || strings.HasSuffix(domain, "."+entry) {
			return true
		}
	}
	return false
}

// PrimaryPool returns the primary-source domains configured for an intent.
// Backfill uses it to build site: restricted recovery queries.
func PrimaryPool(it intent.Intent) []string {
	pool := primaryPools[it]
	out := make([]string, len(pool))
	copy(out, pool)
	return out
}
