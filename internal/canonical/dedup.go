package canonical

import (
	"context"
	"strings"

	"dossier/internal/core"
	"dossier/internal/logger"
)

const (
	titleJaccardThreshold = 0.90
	syndicationThreshold  = 0.92
)

// Canonicalizer fills canonical URLs and IDs on evidence records, resolving
// DOI-host URLs to publisher landing pages so the resolver's domain never
// dominates cap accounting.
type Canonicalizer struct {
	resolver *Resolver
	hosts    map[string]bool
}

// NewCanonicalizer builds a Canonicalizer. resolver may be nil, in which
// case DOI-host URLs keep the resolver domain.
func NewCanonicalizer(resolver *Resolver) *Canonicalizer {
	hosts := make(map[string]bool, len(doiHosts))
	for h := range doiHosts {
		hosts[h] = true
	}
	return &Canonicalizer{resolver: resolver, hosts: hosts}
}

// MarkDOIHost registers an extra resolver host. Tests point it at a local
// server.
func (c *Canonicalizer) MarkDOIHost(host string) {
	c.hosts[strings.ToLower(host)] = true
}

func (c *Canonicalizer) isResolverHost(rawURL string) bool {
	return c.hosts[Domain(rawURL)]
}

// Apply sets CanonicalURL, CanonicalID, and SourceDomain on every record.
// Resolution failures are logged and degrade to the unresolved URL; the
// record is never dropped here.
func (c *Canonicalizer) Apply(ctx context.Context, evs []core.Evidence) []core.Evidence {
	out := make([]core.Evidence, len(evs))
	for i, ev := range evs {
		doi := ExtractDOI(ev.URL)

		landing := ev.URL
		if c.resolver != nil && c.isResolverHost(ev.URL) {
			final, err := c.resolver.Resolve(ctx, ev.URL)
			if err != nil {
				logger.Warn("DOI resolution failed, keeping resolver URL",
					"url", ev.URL, "error", err.Error())
			} else {
				landing = final
			}
		}

		ev.CanonicalURL = URL(landing)
		if d := Domain(ev.CanonicalURL); d != "" {
			ev.SourceDomain = d
		}
		ev.CanonicalID = ID(doi, ev.CanonicalURL)
		out[i] = ev
	}
	return out
}

// DedupStats reports how many records each pass removed.
type DedupStats struct {
	Input         int
	ByCanonicalID int
	ByTitle       int
	BySyndication int
	Output        int
}

// Dedup collapses duplicates in three passes: canonical_id collisions,
// same-domain near-identical titles, and syndicated content bodies. Within
// a collision the higher-credibility record survives, holding the position
// of the first occurrence so output order stays deterministic.
func Dedup(evs []core.Evidence) ([]core.Evidence, DedupStats) {
	stats := DedupStats{Input: len(evs)}

	byID := dedupByCanonicalID(evs)
	stats.ByCanonicalID = len(evs) - len(byID)

	byTitle := dedupByTitle(byID)
	stats.ByTitle = len(byID) - len(byTitle)

	final := dedupBySyndication(byTitle)
	stats.BySyndication = len(byTitle) - len(final)

	stats.Output = len(final)
	if stats.Input != stats.Output {
		logger.Debug("Dedup collapsed records",
			"input", stats.Input,
			"by_canonical_id", stats.ByCanonicalID,
			"by_title", stats.ByTitle,
			"by_syndication", stats.BySyndication,
			"output", stats.Output)
	}
	return final, stats
}

func dedupByCanonicalID(evs []core.Evidence) []core.Evidence {
	kept := make([]core.Evidence, 0, len(evs))
	index := make(map[string]int, len(evs))
	for _, ev := range evs {
		at, seen := index[ev.CanonicalID]
		if !seen {
			index[ev.CanonicalID] = len(kept)
			kept = append(kept, ev)
			continue
		}
		if ev.CredibilityScore > kept[at].CredibilityScore {
			kept[at] = ev
		}
	}
	return kept
}

func dedupByTitle(evs []core.Evidence) []core.Evidence {
	type entry struct {
		at     int
		tokens map[string]bool
	}
	kept := make([]core.Evidence, 0, len(evs))
	byDomain := make(map[string][]entry)

	for _, ev := range evs {
		tokens := titleTokens(ev.Title)
		collapsed := false
		for _, e := range byDomain[ev.SourceDomain] {
			if jaccard(tokens, e.tokens) >= titleJaccardThreshold {
				if ev.CredibilityScore > kept[e.at].CredibilityScore {
					kept[e.at] = ev
				}
				collapsed = true
				break
			}
		}
		if collapsed {
			continue
		}
		byDomain[ev.SourceDomain] = append(byDomain[ev.SourceDomain],
			entry{at: len(kept), tokens: tokens})
		kept = append(kept, ev)
	}
	return kept
}

func dedupBySyndication(evs []core.Evidence) []core.Evidence {
	type entry struct {
		at  int
		sig []uint64
	}
	kept := make([]core.Evidence, 0, len(evs))
	var reps []entry

	for _, ev := range evs {
		sig := minhashSignature(ev.BestText())
		collapsed := false
		if sig != nil {
			for _, rep := range reps {
				if minhashSimilarity(sig, rep.sig) >= syndicationThreshold {
					if ev.CredibilityScore > kept[rep.at].CredibilityScore {
						kept[rep.at] = ev
					}
					collapsed = true
					break
				}
			}
		}
		if collapsed {
			continue
		}
		if sig != nil {
			reps = append(reps, entry{at: len(kept), sig: sig})
		}
		kept = append(kept, ev)
	}
	return kept
}

func titleTokens(title string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range wordPattern.FindAllString(strings.ToLower(title), -1) {
		set[tok] = true
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if b[t] {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}
