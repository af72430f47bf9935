package triangulate

import (
	"context"
	"fmt"
	"sort"

	"dossier/internal/core"
	"dossier/internal/logger"
)

// Result carries everything triangulation produced: evidence with flags
// applied, sealed clusters, structured triangles, and the union rate.
type Result struct {
	Evidence              []core.Evidence
	ParaphraseClusters    []core.Cluster
	StructuredTriangles   []core.Cluster
	UnionRate             float64
	DroppedContradictions int
	Oracle                string
}

// Triangulator runs paraphrase clustering and structured-claim matching.
type Triangulator struct {
	oracle    SimilarityOracle
	clusterer *Clusterer
}

// New builds a Triangulator. threshold is the paraphrase linkage distance
// (0.40 default, 0.30 for broad topics).
func New(oracle SimilarityOracle, threshold float64) *Triangulator {
	return &Triangulator{
		oracle:    oracle,
		clusterer: NewClusterer(oracle, threshold),
	}
}

// Run triangulates the evidence set. Oracle failures degrade to the
// lexical fallback rather than aborting the run.
func (t *Triangulator) Run(ctx context.Context, evs []core.Evidence) (Result, error) {
	if len(evs) == 0 {
		return Result{Oracle: t.oracle.Name()}, nil
	}

	oracle := t.oracle
	groups, dropped, err := t.clusterer.Cluster(ctx, evs)
	if err != nil {
		if oracle.Name() == (LexicalOracle{}).Name() {
			return Result{}, err
		}
		logger.Warn("Embedding oracle failed, falling back to lexical clustering",
			"oracle", oracle.Name(), "error", err.Error())
		oracle = LexicalOracle{}
		groups, dropped, err = NewClusterer(oracle, t.clusterer.threshold).Cluster(ctx, evs)
		if err != nil {
			return Result{}, err
		}
	}

	out := make([]core.Evidence, len(evs))
	copy(out, evs)
	for i := range out {
		out[i].IsTriangulated = false
		out[i].ClusterID = ""
		out[i].NeedsReview = false
		out[i].Stance = core.StanceNeutral
		out[i].DisputedBy = nil
		out[i].ControversyScore = 0
	}

	result := Result{
		Oracle:                oracle.Name(),
		DroppedContradictions: len(dropped),
	}

	// Paraphrase clusters seal in first-member order.
	seq := 0
	for _, g := range groups {
		if len(g.Members) < 2 {
			continue
		}
		seq++
		cluster := buildCluster(fmt.Sprintf("c%d", seq), g.Members, out)
		cluster.NeedsReview = g.NeedsReview

		for _, idx := range g.Members {
			out[idx].ClusterID = cluster.ID
			if g.NeedsReview {
				out[idx].NeedsReview = true
				out[idx].ControversyScore = 0.5
			}
			if cluster.Triangulated() {
				out[idx].IsTriangulated = true
			}
		}
		result.ParaphraseClusters = append(result.ParaphraseClusters, cluster)
	}

	for _, contested := range dropped {
		markContradiction(contested, out)
	}

	result.StructuredTriangles = t.structuredTriangles(out, &seq)

	triangulated := 0
	for _, ev := range out {
		if ev.IsTriangulated {
			triangulated++
		}
	}
	result.UnionRate = float64(triangulated) / float64(len(out))
	result.Evidence = out

	logger.Info("Triangulation complete",
		"oracle", result.Oracle,
		"paraphrase_clusters", len(result.ParaphraseClusters),
		"structured_triangles", len(result.StructuredTriangles),
		"dropped_contradictions", result.DroppedContradictions,
		"union_rate", result.UnionRate)
	return result, nil
}

// structuredTriangles buckets extracted claims by (entity, metric, period)
// and seals multi-domain buckets of two or more records.
func (t *Triangulator) structuredTriangles(evs []core.Evidence, seq *int) []core.Cluster {
	type bucket struct {
		first   int
		members []int
		seen    map[int]bool
		key     core.StructuredClaim
	}
	buckets := make(map[string]*bucket)

	for i, ev := range evs {
		text := ev.BestText()
		if ev.SupportingText != "" && ev.SupportingText != text {
			text += "\n" + ev.SupportingText
		}
		for _, claim := range ExtractClaims(text, ev.PublishedAt) {
			key := ClaimKey(claim)
			b, ok := buckets[key]
			if !ok {
				b = &bucket{first: i, seen: make(map[int]bool), key: claim}
				buckets[key] = b
			}
			if !b.seen[i] {
				b.seen[i] = true
				b.members = append(b.members, i)
			}
		}
	}

	ordered := make([]*bucket, 0, len(buckets))
	for _, b := range buckets {
		if len(b.members) < 2 {
			continue
		}
		if len(distinctDomains(b.members, evs)) < 2 {
			continue
		}
		ordered = append(ordered, b)
	}
	sort.Slice(ordered, func(a, b int) bool {
		if ordered[a].first != ordered[b].first {
			return ordered[a].first < ordered[b].first
		}
		return ClaimKey(ordered[a].key) < ClaimKey(ordered[b].key)
	})

	var out []core.Cluster
	for _, b := range ordered {
		*seq++
		cluster := buildCluster(fmt.Sprintf("s%d", *seq), b.members, evs)
		key := b.key
		cluster.Key = &key
		for _, idx := range b.members {
			evs[idx].IsTriangulated = true
		}
		out = append(out, cluster)
	}
	return out
}

// markContradiction applies stance and dispute links to members of a
// dropped cluster. The larger side keeps "supports"; ties break toward the
// side holding the earliest record.
func markContradiction(c Contradiction, evs []core.Evidence) {
	supports, disputes := c.Up, c.Down
	if len(disputes) > len(supports) ||
		(len(disputes) == len(supports) && len(disputes) > 0 && len(supports) > 0 && disputes[0] < supports[0]) {
		supports, disputes = disputes, supports
	}

	supportIDs := recordIDs(supports, evs)
	disputeIDs := recordIDs(disputes, evs)

	for _, idx := range supports {
		evs[idx].Stance = core.StanceSupports
		evs[idx].DisputedBy = append([]string(nil), disputeIDs...)
		evs[idx].ControversyScore = 1
	}
	for _, idx := range disputes {
		evs[idx].Stance = core.StanceDisputes
		evs[idx].DisputedBy = append([]string(nil), supportIDs...)
		evs[idx].ControversyScore = 1
	}
	// Members too weak to take a side still carry the controversy.
	for _, idx := range c.Members {
		if evs[idx].Stance == core.StanceNeutral {
			evs[idx].ControversyScore = 1
		}
	}
}

func buildCluster(id string, members []int, evs []core.Evidence) core.Cluster {
	rep := members[0]
	for _, idx := range members[1:] {
		if strongerRepresentative(evs[idx], evs[rep]) {
			rep = idx
		}
	}
	return core.Cluster{
		ID:                 id,
		MemberIDs:          recordIDs(members, evs),
		Domains:            distinctDomains(members, evs),
		RepresentativeID:   evs[rep].ID,
		RepresentativeText: evs[rep].BestText(),
	}
}

// strongerRepresentative orders candidates by primary status, credibility,
// recency, quote length, then record id, exactly in that precedence.
func strongerRepresentative(a, b core.Evidence) bool {
	if a.IsPrimarySource != b.IsPrimarySource {
		return a.IsPrimarySource
	}
	if a.CredibilityScore != b.CredibilityScore {
		return a.CredibilityScore > b.CredibilityScore
	}
	if a.PublishedAt != b.PublishedAt {
		return a.PublishedAt > b.PublishedAt // ISO dates compare lexically
	}
	if len(a.BestQuote) != len(b.BestQuote) {
		return len(a.BestQuote) > len(b.BestQuote)
	}
	return a.ID < b.ID
}

func recordIDs(members []int, evs []core.Evidence) []string {
	out := make([]string, 0, len(members))
	for _, idx := range members {
		out = append(out, evs[idx].ID)
	}
	return out
}

func distinctDomains(members []int, evs []core.Evidence) []string {
	seen := make(map[string]bool)
	var out []string
	for _, idx := range members {
		d := evs[idx].SourceDomain
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
