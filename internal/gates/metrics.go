package gates

import (
	"dossier/internal/core"
)

// credibleFloor is the credibility a record needs to count toward the
// credible_cards supply signal.
const credibleFloor = 0.6

// Metrics derives RunMetrics from the final evidence set and its projected
// clusters, stamping the effective thresholds so the later gate decision is
// a pure function of the written metrics file. Call this after all
// filtering: cards must equal the evidence file line count.
func (e *Evaluator) Metrics(evs []core.Evidence, clusters []core.Cluster, errorRate, domainCap float64) core.RunMetrics {
	m := core.RunMetrics{
		Cards:             len(evs),
		ProviderErrorRate: errorRate,
	}

	domains := make(map[string]int, len(evs))
	primaries := 0
	for _, ev := range evs {
		domains[ev.SourceDomain]++
		if ev.IsPrimarySource {
			primaries++
		}
		if ev.CredibilityScore >= credibleFloor {
			m.CredibleCards++
		}
		if ev.IsTriangulated {
			m.TriangulatedCards++
		}
	}
	m.UniqueDomains = len(domains)

	top := 0
	for _, n := range domains {
		if n > top {
			top = n
		}
	}

	if m.Cards > 0 {
		m.UnionTriangulation = float64(m.TriangulatedCards) / float64(m.Cards)
		m.PrimaryShare = float64(primaries) / float64(m.Cards)
		m.TopDomainShare = float64(top) / float64(m.Cards)
	}

	for _, c := range clusters {
		if c.Triangulated() {
			m.TriangulatedClusters++
		}
	}

	supply := ClassifySupply(m.UniqueDomains, m.CredibleCards, m.ProviderErrorRate)
	tri, pri, cards := e.profile.thresholds(supply, e.intent)
	m.EffectiveThresholds = map[string]float64{
		"union_triangulation": tri,
		"primary_share":       pri,
		"cards":               float64(cards),
		"domain_cap":          domainCap,
	}
	return m
}
