package triangulate

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"dossier/internal/core"
	"dossier/internal/llm"
)

const (
	numericBoost = 0.10
	yearBoost    = 0.05

	defaultContradictionConfidence = 0.30
)

var wordPattern = regexp.MustCompile(`[a-z0-9%.]+`)

// Directional lexicons for the contradiction filter. A member's direction
// is the sign of (up hits - down hits) over its best text.
var upWords = map[string]bool{
	"rise": true, "rises": true, "rose": true, "risen": true, "rising": true,
	"increase": true, "increases": true, "increased": true, "increasing": true,
	"grow": true, "grows": true, "grew": true, "grown": true, "growing": true,
	"gain": true, "gains": true, "gained": true, "surge": true, "surged": true,
	"climb": true, "climbed": true, "improve": true, "improved": true,
	"expand": true, "expanded": true, "up": true, "higher": true,
	"accelerate": true, "accelerated": true, "safe": true, "effective": true,
	"beneficial": true,
}

var downWords = map[string]bool{
	"fall": true, "falls": true, "fell": true, "fallen": true, "falling": true,
	"decrease": true, "decreases": true, "decreased": true, "decreasing": true,
	"decline": true, "declines": true, "declined": true, "declining": true,
	"drop": true, "drops": true, "dropped": true, "shrink": true, "shrank": true,
	"contract": true, "contracted": true, "reduce": true, "reduced": true,
	"slow": true, "slowed": true, "worsen": true, "worsened": true,
	"down": true, "lower": true, "lost": true, "losses": true,
	"unsafe": true, "ineffective": true, "harmful": true, "dangerous": true,
}

// Group is a kept paraphrase component, members ascending by input index.
type Group struct {
	Members     []int
	NeedsReview bool // directional tension detected but below the drop bar
}

// Contradiction is a component dropped for a hard two-sided conflict.
type Contradiction struct {
	Members []int
	Up      []int
	Down    []int
}

// Clusterer runs single-linkage paraphrase clustering over oracle vectors.
type Clusterer struct {
	oracle                  SimilarityOracle
	threshold               float64 // cosine distance linkage threshold
	contradictionConfidence float64
}

// NewClusterer builds a clusterer with the given linkage threshold
// (cosine distance; pairs at or under it join a cluster).
func NewClusterer(oracle SimilarityOracle, threshold float64) *Clusterer {
	if threshold <= 0 || threshold >= 1 {
		threshold = 0.40
	}
	return &Clusterer{
		oracle:                  oracle,
		threshold:               threshold,
		contradictionConfidence: defaultContradictionConfidence,
	}
}

// WithContradictionConfidence overrides the minimum record confidence a
// member needs to count toward a contradiction side.
func (c *Clusterer) WithContradictionConfidence(min float64) *Clusterer {
	c.contradictionConfidence = min
	return c
}

// Cluster links records whose best-text vectors sit within the distance
// threshold, splits numeric-mismatch components, and separates hard
// contradictions. Kept groups come back in first-member order; singletons
// are included so the caller sees every record accounted for.
func (c *Clusterer) Cluster(ctx context.Context, evs []core.Evidence) ([]Group, []Contradiction, error) {
	if len(evs) == 0 {
		return nil, nil, nil
	}

	texts := make([]string, len(evs))
	for i, ev := range evs {
		texts[i] = ev.BestText()
	}
	vectors, err := c.oracle.Encode(ctx, texts)
	if err != nil {
		return nil, nil, err
	}

	numeric := make([]map[string]bool, len(evs))
	years := make([]map[string]bool, len(evs))
	for i, text := range texts {
		numeric[i], years[i] = numericTokens(text)
	}

	uf := newUnionFind(len(evs))
	for i := 0; i < len(evs); i++ {
		for j := i + 1; j < len(evs); j++ {
			sim := llm.CosineSimilarity(vectors[i], vectors[j])
			if shares(numeric[i], numeric[j]) {
				sim += numericBoost
			}
			if shares(years[i], years[j]) {
				sim += yearBoost
			}
			if sim > 1 {
				sim = 1
			}
			if 1-sim <= c.threshold {
				uf.union(i, j)
			}
		}
	}

	components := uf.components()

	var split [][]int
	for _, comp := range components {
		split = append(split, splitNumericMismatch(comp, numeric)...)
	}
	sort.Slice(split, func(a, b int) bool { return split[a][0] < split[b][0] })

	var groups []Group
	var dropped []Contradiction
	for _, members := range split {
		up, down := c.sides(members, evs)
		if len(up) >= 2 && len(down) >= 2 {
			dropped = append(dropped, Contradiction{Members: members, Up: up, Down: down})
			continue
		}
		groups = append(groups, Group{
			Members:     members,
			NeedsReview: len(up) > 0 && len(down) > 0,
		})
	}
	return groups, dropped, nil
}

// sides partitions confident members by text direction.
func (c *Clusterer) sides(members []int, evs []core.Evidence) (up, down []int) {
	for _, idx := range members {
		if evs[idx].Confidence < c.contradictionConfidence {
			continue
		}
		switch direction(evs[idx].BestText()) {
		case 1:
			up = append(up, idx)
		case -1:
			down = append(down, idx)
		}
	}
	return up, down
}

func direction(text string) int {
	score := 0
	for _, tok := range tokenize(text) {
		if upWords[tok] {
			score++
		}
		if downWords[tok] {
			score--
		}
	}
	switch {
	case score > 0:
		return 1
	case score < 0:
		return -1
	default:
		return 0
	}
}

// splitNumericMismatch separates component members whose numeric token sets
// are disjoint: different numbers are different facts. Members without
// numbers attach to the largest numeric subgroup.
func splitNumericMismatch(members []int, numeric []map[string]bool) [][]int {
	if len(members) < 2 {
		return [][]int{members}
	}

	withNumbers := make([]int, 0, len(members))
	var bare []int
	for _, idx := range members {
		if len(numeric[idx]) > 0 {
			withNumbers = append(withNumbers, idx)
		} else {
			bare = append(bare, idx)
		}
	}
	if len(withNumbers) < 2 {
		return [][]int{members}
	}

	local := newUnionFind(len(withNumbers))
	for i := 0; i < len(withNumbers); i++ {
		for j := i + 1; j < len(withNumbers); j++ {
			if shares(numeric[withNumbers[i]], numeric[withNumbers[j]]) {
				local.union(i, j)
			}
		}
	}
	subLocal := local.components()
	if len(subLocal) == 1 {
		return [][]int{members}
	}

	subs := make([][]int, len(subLocal))
	for i, comp := range subLocal {
		for _, li := range comp {
			subs[i] = append(subs[i], withNumbers[li])
		}
		sort.Ints(subs[i])
	}
	sort.Slice(subs, func(a, b int) bool { return subs[a][0] < subs[b][0] })

	// Bare members follow the largest subgroup; ties go to the earliest.
	if len(bare) > 0 {
		largest := 0
		for i, s := range subs {
			if len(s) > len(subs[largest]) {
				largest = i
			}
		}
		subs[largest] = append(subs[largest], bare...)
		sort.Ints(subs[largest])
	}
	return subs
}

var yearToken = regexp.MustCompile(`^(?:19|20)\d{2}$`)

// numericTokens separates a text's numbers into plain numerics and years.
func numericTokens(text string) (nums, years map[string]bool) {
	nums = make(map[string]bool)
	years = make(map[string]bool)
	for _, tok := range tokenize(text) {
		tok = strings.Trim(tok, ".%")
		if tok == "" || !strings.ContainsAny(tok, "0123456789") {
			continue
		}
		if yearToken.MatchString(tok) {
			years[tok] = true
		} else if isNumericToken(tok) {
			nums[tok] = true
		}
	}
	return nums, years
}

func isNumericToken(tok string) bool {
	for _, r := range tok {
		if (r < '0' || r > '9') && r != '.' {
			return false
		}
	}
	return true
}

func shares(a, b map[string]bool) bool {
	for t := range a {
		if b[t] {
			return true
		}
	}
	return false
}

// unionFind is a plain disjoint-set over indices.
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent}
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	// Smaller root wins so component identity is stable.
	if rb < ra {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
}

// components returns member groups sorted by first member.
func (u *unionFind) components() [][]int {
	byRoot := make(map[int][]int)
	for i := range u.parent {
		root := u.find(i)
		byRoot[root] = append(byRoot[root], i)
	}
	roots := make([]int, 0, len(byRoot))
	for root := range byRoot {
		roots = append(roots, root)
	}
	sort.Ints(roots)
	out := make([][]int, 0, len(roots))
	for _, root := range roots {
		members := byRoot[root]
		sort.Ints(members)
		out = append(out, members)
	}
	return out
}
