package normalize

import "strings"

// Credibility tiers. Official and primary publishers score highest,
// descending through academic publishers, think tanks, reference works,
// established media, and finally blogs and content farms.
const (
	tierOfficial  = 0.95
	tierAcademic  = 0.85
	tierThinkTank = 0.75
	tierReference = 0.70
	tierMedia     = 0.60
	tierBlog      = 0.35
	tierDefault   = 0.50
)

var officialDomains = map[string]bool{
	"oecd.org":              true,
	"worldbank.org":         true,
	"imf.org":               true,
	"un.org":                true,
	"who.int":               true,
	"europa.eu":             true,
	"ecb.europa.eu":         true,
	"eurostat.ec.europa.eu": true,
	"federalreserve.gov":    true,
	"bls.gov":               true,
	"census.gov":            true,
	"irs.gov":               true,
	"sec.gov":               true,
	"cdc.gov":               true,
	"nih.gov":               true,
	"fda.gov":               true,
	"gov.uk":                true,
	"unwto.org":             true,
	"wto.org":               true,
	"bis.org":               true,
}

var academicDomains = map[string]bool{
	"nature.com":              true,
	"science.org":             true,
	"arxiv.org":               true,
	"pubmed.ncbi.nlm.nih.gov": true,
	"ncbi.nlm.nih.gov":        true,
	"jstor.org":               true,
	"springer.com":            true,
	"link.springer.com":       true,
	"sciencedirect.com":       true,
	"wiley.com":               true,
	"onlinelibrary.wiley.com": true,
	"ieee.org":                true,
	"acm.org":                 true,
	"openalex.org":            true,
	"cochranelibrary.com":     true,
	"thelancet.com":           true,
	"nejm.org":                true,
	"bmj.com":                 true,
	"pnas.org":                true,
	"cell.com":                true,
	"plos.org":                true,
}

var thinkTankDomains = map[string]bool{
	"pewresearch.org":   true,
	"rand.org":          true,
	"brookings.edu":     true,
	"cfr.org":           true,
	"bruegel.org":       true,
	"chathamhouse.org":  true,
	"urban.org":         true,
	"taxfoundation.org": true,
	"epi.org":           true,
	"cato.org":          true,
}

var referenceDomains = map[string]bool{
	"wikipedia.org":    true,
	"en.wikipedia.org": true,
	"britannica.com":   true,
}

var mediaDomains = map[string]bool{
	"reuters.com":        true,
	"apnews.com":         true,
	"bbc.com":            true,
	"bbc.co.uk":          true,
	"nytimes.com":        true,
	"washingtonpost.com": true,
	"wsj.com":            true,
	"ft.com":             true,
	"economist.com":      true,
	"theguardian.com":    true,
	"bloomberg.com":      true,
	"cnbc.com":           true,
	"npr.org":            true,
	"axios.com":          true,
	"politico.com":       true,
	"aljazeera.com":      true,
}

var blogDomains = map[string]bool{
	"medium.com":    true,
	"substack.com":  true,
	"blogspot.com":  true,
	"wordpress.com": true,
	"tumblr.com":    true,
	"quora.com":     true,
	"reddit.com":    true,
	"pinterest.com": true,
}

// CredibilityFor maps a source domain to its tier score. Unknown .gov and
// .edu hosts still land in the official tier via suffix wildcards.
func CredibilityFor(domain string) float64 {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return tierDefault
	}

	if officialDomains[domain] || matchesSuffix(domain, officialDomains) {
		return tierOfficial
	}
	if strings.HasSuffix(domain, ".gov") || strings.Contains(domain, ".gov.") ||
		strings.HasSuffix(domain, ".mil") || strings.HasSuffix(domain, ".int") {
		return tierOfficial
	}
	if academicDomains[domain] || matchesSuffix(domain, academicDomains) {
		return tierAcademic
	}
	if strings.HasSuffix(domain, ".edu") || strings.Contains(domain, ".ac.") {
		return tierAcademic
	}
	if thinkTankDomains[domain] || matchesSuffix(domain, thinkTankDomains) {
		return tierThinkTank
	}
	if referenceDomains[domain] || matchesSuffix(domain, referenceDomains) {
		return tierReference
	}
	if mediaDomains[domain] || matchesSuffix(domain, mediaDomains) {
		return tierMedia
	}
	if blogDomains[domain] || matchesSuffix(domain, blogDomains) {
		return tierBlog
	}
	return tierDefault
}

// matchesSuffix treats every table entry as covering its subdomains, so
// data.oecd.org scores like oecd.org.
func matchesSuffix(domain string, table map[string]bool) bool {
	for entry := range table {
		if strings.HasSuffix(domain, "."+entry) {
			return true
		}
	}
	return false
}
