package balance

import (
	"strings"

	"dossier/internal/core"
)

// builtinTrusted holds official primary publishers whose records bypass the
// singleton floor regardless of credibility. Government, military, and
// intergovernmental hosts are matched by suffix in isTrusted; this list
// covers the rest.
var builtinTrusted = []string{
	"oecd.org",
	"worldbank.org",
	"imf.org",
	"un.org",
	"europa.eu",
	"bis.org",
}

// builtinWhitelist holds reference publishers a singleton from which is
// worth keeping at reduced credibility rather than dropping outright.
var builtinWhitelist = []string{
	"wikipedia.org",
	"britannica.com",
	"reuters.com",
	"apnews.com",
	"bbc.com",
	"nature.com",
}

var trustedSuffixes = []string{".gov", ".mil", ".int", ".edu"}

// applyFloor drops weak singleton domains. Trusted domains bypass the floor,
// whitelisted singletons survive with downweighted credibility, and other
// singletons survive only at credibility >= 0.7.
func (b *Balancer) applyFloor(evs []core.Evidence) (out []core.Evidence, dropped, downweighted int) {
	counts := make(map[string]int, len(evs))
	for _, ev := range evs {
		counts[ev.SourceDomain]++
	}

	out = make([]core.Evidence, 0, len(evs))
	for _, ev := range evs {
		if b.isTrusted(ev.SourceDomain) {
			out = append(out, ev)
			continue
		}
		if counts[ev.SourceDomain] > 1 {
			out = append(out, ev)
			continue
		}
		if b.isWhitelisted(ev.SourceDomain) {
			ev.CredibilityScore *= b.cfg.Downweight
			ev.Confidence = ev.CredibilityScore * ev.RelevanceScore
			out = append(out, ev)
			downweighted++
			continue
		}
		if ev.CredibilityScore >= 0.7 {
			out = append(out, ev)
			continue
		}
		dropped++
	}
	return out, dropped, downweighted
}

func (b *Balancer) isTrusted(domain string) bool {
	domain = normalizeDomain(domain)
	if domain == "" {
		return false
	}
	for _, suffix := range trustedSuffixes {
		if strings.HasSuffix(domain, suffix) || strings.Contains(domain, suffix+".") {
			return true
		}
	}
	return matchesAllowlist(domain, b.trusted)
}

func (b *Balancer) isWhitelisted(domain string) bool {
	return matchesAllowlist(normalizeDomain(domain), b.whitelist)
}

// matchesAllowlist accepts exact entries and subdomains of entries.
func matchesAllowlist(domain string, set map[string]bool) bool {
	if set[domain] {
		return true
	}
	for entry := range set {
		if strings.HasSuffix(domain, "."+entry) {
			return true
		}
	}
	return false
}

func normalizeDomain(domain string) string {
	domain = strings.ToLower(strings.TrimSpace(domain))
	return strings.TrimPrefix(domain, "www.")
}
