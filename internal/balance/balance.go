// Package balance keeps the evidence set from being dominated by a single
// publisher. It caps per-domain and per-family counts, drops weak singleton
// domains, and hands back the survivors in final presentation order.
package balance

import (
	"math"
	"sort"

	"dossier/internal/core"
	"dossier/internal/logger"
)

// Config tunes the balancer. Zero values fall back to the defaults below.
type Config struct {
	Cap        float64  // per-domain share ceiling
	RelaxedCap float64  // ceiling used when unique domains < MinUnique
	MinUnique  int      // unique-domain count under which the relaxed cap applies
	Downweight float64  // credibility multiplier for whitelisted singletons
	Trusted    []string // additive to the built-in trusted allowlist
	Whitelist  []string // additive to the built-in singleton whitelist
}

// DefaultConfig returns the stock balancing parameters.
func DefaultConfig() Config {
	return Config{
		Cap:        0.25,
		RelaxedCap: 0.40,
		MinUnique:  6,
		Downweight: 0.85,
	}
}

// Result reports what the balancer kept and what it cut.
type Result struct {
	Evidence     []core.Evidence
	EffectiveCap float64 // cap fraction actually applied
	CapDropped   int     // records cut by the domain/family cap
	FloorDropped int     // records cut by the credibility floor
	Downweighted int     // whitelisted singletons kept at reduced credibility
}

// Balancer applies the domain cap and credibility floor.
type Balancer struct {
	cfg       Config
	trusted   map[string]bool
	whitelist map[string]bool
}

// New builds a Balancer, filling unset Config fields with defaults.
func New(cfg Config) *Balancer {
	def := DefaultConfig()
	if cfg.Cap <= 0 {
		cfg.Cap = def.Cap
	}
	if cfg.RelaxedCap <= 0 {
		cfg.RelaxedCap = def.RelaxedCap
	}
	if cfg.MinUnique <= 0 {
		cfg.MinUnique = def.MinUnique
	}
	if cfg.Downweight <= 0 {
		cfg.Downweight = def.Downweight
	}
	b := &Balancer{
		cfg:       cfg,
		trusted:   make(map[string]bool, len(builtinTrusted)+len(cfg.Trusted)),
		whitelist: make(map[string]bool, len(builtinWhitelist)+len(cfg.Whitelist)),
	}
	for _, d := range builtinTrusted {
		b.trusted[d] = true
	}
	for _, d := range cfg.Trusted {
		if d = normalizeDomain(d); d != "" {
			b.trusted[d] = true
		}
	}
	for _, d := range builtinWhitelist {
		b.whitelist[d] = true
	}
	for _, d := range cfg.Whitelist {
		if d = normalizeDomain(d); d != "" {
			b.whitelist[d] = true
		}
	}
	return b
}

// Run caps domain and family shares, applies the credibility floor, and
// re-caps if the floor pushed concentration back above the ceiling. The
// returned evidence is in final order: triangulated records first, then by
// credibility times relevance, record ID breaking ties.
func (b *Balancer) Run(evs []core.Evidence) Result {
	res := Result{EffectiveCap: b.effectiveCap(evs)}
	if len(evs) == 0 {
		res.Evidence = []core.Evidence{}
		return res
	}

	tagged := make([]core.Evidence, len(evs))
	copy(tagged, evs)
	for i := range tagged {
		tagged[i].Family = FamilyFor(tagged[i].SourceDomain)
	}

	capped := b.applyCap(tagged, res.EffectiveCap)
	res.CapDropped = len(tagged) - len(capped)

	floored, dropped, downweighted := b.applyFloor(capped)
	res.FloorDropped = dropped
	res.Downweighted = downweighted

	// Dropping singletons shrinks N without touching the survivors'
	// counts, so the top domain's share can climb back over the cap.
	// Recap only when the floor actually cut something; otherwise the
	// set is exactly the cap output and already compliant.
	if dropped > 0 && overCap(floored, res.EffectiveCap) {
		before := len(floored)
		floored = b.applyCap(floored, res.EffectiveCap)
		res.CapDropped += before - len(floored)
	}

	core.SortEvidence(floored)
	res.Evidence = floored

	logger.Info("Domain balancing complete",
		"input", len(evs),
		"kept", len(floored),
		"cap", res.EffectiveCap,
		"cap_dropped", res.CapDropped,
		"floor_dropped", res.FloorDropped,
		"downweighted", res.Downweighted)
	return res
}

// effectiveCap relaxes the ceiling when the pool is too narrow for the
// strict cap to leave enough material.
func (b *Balancer) effectiveCap(evs []core.Evidence) float64 {
	unique := make(map[string]bool, len(evs))
	for _, ev := range evs {
		unique[ev.SourceDomain] = true
	}
	if len(unique) < b.cfg.MinUnique {
		return b.cfg.RelaxedCap
	}
	return b.cfg.Cap
}

// applyCap keeps at most max(1, floor(frac*N)) records per domain, then per
// family, preferring triangulated and high-scoring records. Survivors stay
// in input order so repeated passes are stable.
func (b *Balancer) applyCap(evs []core.Evidence, frac float64) []core.Evidence {
	limit := capLimit(frac, len(evs))
	kept := keepTop(evs, limit, func(ev core.Evidence) string { return ev.SourceDomain })
	return keepTop(kept, limit, func(ev core.Evidence) string { return ev.Family })
}

func capLimit(frac float64, n int) int {
	limit := int(math.Floor(frac * float64(n)))
	if limit < 1 {
		limit = 1
	}
	return limit
}

// keepTop retains the best `limit` records per key, where best means
// triangulated first, then higher credibility*relevance, then lower ID.
func keepTop(evs []core.Evidence, limit int, key func(core.Evidence) string) []core.Evidence {
	byKey := make(map[string][]int)
	for i, ev := range evs {
		k := key(ev)
		byKey[k] = append(byKey[k], i)
	}

	keep := make([]bool, len(evs))
	for _, members := range byKey {
		if len(members) <= limit {
			for _, i := range members {
				keep[i] = true
			}
			continue
		}
		ranked := append([]int(nil), members...)
		sort.Slice(ranked, func(i, j int) bool {
			return lessPreferred(evs[ranked[j]], evs[ranked[i]])
		})
		for _, i := range ranked[:limit] {
			keep[i] = true
		}
	}

	out := make([]core.Evidence, 0, len(evs))
	for i, ev := range evs {
		if keep[i] {
			out = append(out, ev)
		}
	}
	return out
}

// lessPreferred reports whether a ranks below b under the keep order.
func lessPreferred(a, b core.Evidence) bool {
	if a.IsTriangulated != b.IsTriangulated {
		return !a.IsTriangulated
	}
	if a.Score() != b.Score() {
		return a.Score() < b.Score()
	}
	return a.ID > b.ID
}

// overCap reports whether any domain holds more records than the cap allows.
func overCap(evs []core.Evidence, frac float64) bool {
	if len(evs) == 0 {
		return false
	}
	limit := capLimit(frac, len(evs))
	counts := make(map[string]int, len(evs))
	for _, ev := range evs {
		counts[ev.SourceDomain]++
		if counts[ev.SourceDomain] > limit {
			return true
		}
	}
	return false
}
