package balance

import (
	"fmt"
	"math"
	"testing"

	"dossier/internal/core"
)

func rec(id, domain string, cred, rel float64, tri bool) core.Evidence {
	return core.Evidence{
		ID:               id,
		SourceDomain:     domain,
		CredibilityScore: cred,
		RelevanceScore:   rel,
		Confidence:       cred * rel,
		IsTriangulated:   tri,
		Reachability:     1,
		Stance:           core.StanceNeutral,
	}
}

func domainCounts(evs []core.Evidence) map[string]int {
	counts := make(map[string]int)
	for _, ev := range evs {
		counts[ev.SourceDomain]++
	}
	return counts
}

func TestCapBoundsDominantDomain(t *testing.T) {
	var evs []core.Evidence
	for i := 0; i < 12; i++ {
		evs = append(evs, rec(fmt.Sprintf("g%02d", i+1), "example.gov", 0.95, 0.99-float64(i)/100, false))
	}
	for i := 0; i < 8; i++ {
		evs = append(evs, rec(fmt.Sprintf("d%02d", i+1), fmt.Sprintf("outlet%d.com", i+1), 0.70, 0.9, false))
	}

	res := New(DefaultConfig()).Run(evs)

	if res.EffectiveCap != 0.25 {
		t.Fatalf("effective cap = %v, want 0.25 with 9 unique domains", res.EffectiveCap)
	}
	limit := 5 // floor(0.25 * 20)
	for domain, n := range domainCounts(res.Evidence) {
		if n > limit {
			t.Errorf("domain %s kept %d records, cap allows %d", domain, n, limit)
		}
	}
	counts := domainCounts(res.Evidence)
	if counts["example.gov"] != 5 {
		t.Errorf("example.gov kept %d records, want 5", counts["example.gov"])
	}
	if len(res.Evidence) != 13 {
		t.Errorf("kept %d records, want 13", len(res.Evidence))
	}
	if res.CapDropped != 7 || res.FloorDropped != 0 {
		t.Errorf("drops = cap %d floor %d, want cap 7 floor 0", res.CapDropped, res.FloorDropped)
	}
	// The cap keeps the highest-scoring records from the capped domain.
	for _, ev := range res.Evidence {
		if ev.SourceDomain == "example.gov" && ev.ID > "g05" {
			t.Errorf("kept %s from example.gov, expected only g01..g05", ev.ID)
		}
	}
}

func TestRelaxedCapWhenFewDomains(t *testing.T) {
	evs := []core.Evidence{
		rec("a1", "alpha.com", 0.8, 0.9, false),
		rec("a2", "alpha.com", 0.8, 0.8, false),
		rec("a3", "alpha.com", 0.8, 0.7, false),
		rec("a4", "alpha.com", 0.8, 0.6, false),
		rec("b1", "beta.com", 0.8, 0.9, false),
		rec("b2", "beta.com", 0.8, 0.8, false),
		rec("c1", "gamma.com", 0.8, 0.9, false),
		rec("c2", "gamma.com", 0.8, 0.8, false),
		rec("d1", "delta.com", 0.75, 0.9, false),
		rec("d2", "delta.com", 0.75, 0.8, false),
	}

	res := New(DefaultConfig()).Run(evs)

	if res.EffectiveCap != 0.40 {
		t.Fatalf("effective cap = %v, want 0.40 with 4 unique domains", res.EffectiveCap)
	}
	counts := domainCounts(res.Evidence)
	if counts["alpha.com"] != 4 {
		t.Errorf("alpha.com kept %d records, relaxed cap floor(0.4*10)=4 should keep all", counts["alpha.com"])
	}
	if len(res.Evidence) != 10 {
		t.Errorf("kept %d records, want all 10", len(res.Evidence))
	}
}

func TestFamilyCapCatchesSiblingSubdomains(t *testing.T) {
	evs := []core.Evidence{
		rec("w1", "worldbank.org", 0.95, 0.9, false),
		rec("w2", "worldbank.org", 0.95, 0.8, false),
		rec("w3", "data.worldbank.org", 0.95, 0.95, false),
		rec("w4", "data.worldbank.org", 0.95, 0.7, false),
		rec("o1", "oecd.org", 0.95, 0.9, false),
		rec("n1", "news-one.com", 0.75, 0.9, false),
		rec("n2", "news-two.com", 0.75, 0.9, false),
		rec("n3", "news-three.com", 0.75, 0.9, false),
	}

	res := New(DefaultConfig()).Run(evs)

	// floor(0.25*8) = 2: each worldbank host is under the domain cap on
	// its own, but the family shares one budget.
	family := 0
	for _, ev := range res.Evidence {
		if ev.Family == "worldbank" {
			family++
		}
	}
	if family != 2 {
		t.Fatalf("worldbank family kept %d records, want 2", family)
	}
	kept := map[string]bool{}
	for _, ev := range res.Evidence {
		kept[ev.ID] = true
	}
	if !kept["w3"] || !kept["w1"] {
		t.Errorf("family cap should keep the two highest-scoring members w3 and w1, got %v", kept)
	}
}

func TestFloorRules(t *testing.T) {
	evs := []core.Evidence{
		rec("n1", "newsroom.example.com", 0.6, 0.9, false),
		rec("n2", "newsroom.example.com", 0.6, 0.8, false),
		rec("x1", "weak-blog.net", 0.4, 0.9, false),
		rec("s1", "strong-analysis.com", 0.75, 0.9, false),
		rec("k1", "en.wikipedia.org", 0.70, 0.9, false),
		rec("g1", "stats.gov", 0.30, 0.9, false),
	}

	res := New(DefaultConfig()).Run(evs)

	if res.FloorDropped != 1 {
		t.Fatalf("floor dropped %d records, want 1", res.FloorDropped)
	}
	if res.Downweighted != 1 {
		t.Fatalf("downweighted %d records, want 1", res.Downweighted)
	}
	byID := map[string]core.Evidence{}
	for _, ev := range res.Evidence {
		byID[ev.ID] = ev
	}
	if _, ok := byID["x1"]; ok {
		t.Error("weak singleton weak-blog.net should be dropped")
	}
	if _, ok := byID["s1"]; !ok {
		t.Error("singleton with credibility 0.75 should survive the floor")
	}
	if _, ok := byID["g1"]; !ok {
		t.Error("trusted .gov singleton should bypass the floor")
	}
	wiki, ok := byID["k1"]
	if !ok {
		t.Fatal("whitelisted wikipedia singleton should be kept")
	}
	if want := 0.70 * 0.85; math.Abs(wiki.CredibilityScore-want) > 1e-9 {
		t.Errorf("whitelisted singleton credibility = %v, want %v", wiki.CredibilityScore, want)
	}
	if math.Abs(wiki.Confidence-wiki.CredibilityScore*wiki.RelevanceScore) > 1e-9 {
		t.Errorf("confidence not recomputed after downweight: %v", wiki.Confidence)
	}
}

func TestRecapAfterFloorRaisesConcentration(t *testing.T) {
	evs := []core.Evidence{
		rec("b1", "big.com", 0.9, 0.9, false),
		rec("b2", "big.com", 0.9, 0.8, false),
		rec("b3", "big.com", 0.9, 0.7, false),
	}
	for i := 0; i < 7; i++ {
		evs = append(evs, rec(fmt.Sprintf("s%d", i+1), fmt.Sprintf("weak%d.net", i+1), 0.4, 0.9, false))
	}

	res := New(DefaultConfig()).Run(evs)

	if res.FloorDropped != 7 {
		t.Fatalf("floor dropped %d, want all 7 weak singletons", res.FloorDropped)
	}
	// First cap pass trims big.com to floor(0.25*10)=2; once the floor
	// removes every other domain those 2 are all that is left, so the
	// recap tightens to max(1, floor(0.25*2))=1.
	if len(res.Evidence) != 1 {
		t.Fatalf("kept %d records, want 1 after recap", len(res.Evidence))
	}
	if res.Evidence[0].ID != "b1" {
		t.Errorf("recap kept %s, want highest-scoring b1", res.Evidence[0].ID)
	}
	if res.CapDropped != 2 {
		t.Errorf("cap dropped %d, want 2 (one per cap pass)", res.CapDropped)
	}
}

func TestCapPrefersTriangulatedWithinDomain(t *testing.T) {
	evs := []core.Evidence{
		rec("a", "dom.com", 0.9, 1.0, false),
		rec("b", "dom.com", 0.75, 1.0, true),
		rec("c", "dom.com", 0.8, 1.0, false),
		rec("z", "other.com", 0.75, 0.9, false),
	}

	res := New(DefaultConfig()).Run(evs)

	// 2 unique domains: relaxed cap, max(1, floor(0.4*4)) = 1 per domain.
	counts := domainCounts(res.Evidence)
	if counts["dom.com"] != 1 {
		t.Fatalf("dom.com kept %d records, want 1", counts["dom.com"])
	}
	for _, ev := range res.Evidence {
		if ev.SourceDomain == "dom.com" && ev.ID != "b" {
			t.Errorf("kept %s from dom.com, want the triangulated b over higher-scoring a", ev.ID)
		}
	}
}

func TestFinalOrdering(t *testing.T) {
	evs := []core.Evidence{
		rec("e3", "three.com", 0.8, 0.9, true),
		rec("e1", "one.com", 0.9, 0.9, true),
		rec("e2", "two.com", 0.95, 1.0, false),
		rec("e5", "five.com", 0.8, 0.9, true),
		rec("e4", "four.com", 0.7, 0.8, false),
	}

	res := New(DefaultConfig()).Run(evs)

	want := []string{"e1", "e3", "e5", "e2", "e4"}
	if len(res.Evidence) != len(want) {
		t.Fatalf("kept %d records, want %d", len(res.Evidence), len(want))
	}
	for i, id := range want {
		if res.Evidence[i].ID != id {
			t.Errorf("position %d = %s, want %s", i, res.Evidence[i].ID, id)
		}
	}
}

func TestFamilyFor(t *testing.T) {
	cases := []struct {
		domain string
		want   string
	}{
		{"worldbank.org", "worldbank"},
		{"data.worldbank.org", "worldbank"},
		{"blogs.worldbank.org", "worldbank"},
		{"stats.oecd.org", "oecd"},
		{"eurostat.ec.europa.eu", "eu-institutions"},
		{"pubmed.ncbi.nlm.nih.gov", "us-health"},
		{"link.springer.com", "springer-nature"},
		{"sub.example.com", "example.com"},
		{"news.bbc.co.uk", "bbc.co.uk"},
		{"example.co.uk", "example.co.uk"},
	}
	for _, tc := range cases {
		if got := FamilyFor(tc.domain); got != tc.want {
			t.Errorf("FamilyFor(%s) = %s, want %s", tc.domain, got, tc.want)
		}
	}
}

func TestTrustedSuffixes(t *testing.T) {
	b := New(Config{Trusted: []string{"custom-primary.org"}})
	cases := []struct {
		domain string
		want   bool
	}{
		{"cdc.gov", true},
		{"ons.gov.uk", true},
		{"stanford.edu", true},
		{"who.int", true},
		{"oecd.org", true},
		{"data.oecd.org", true},
		{"custom-primary.org", true},
		{"random-blog.net", false},
		{"reuters.com", false},
	}
	for _, tc := range cases {
		if got := b.isTrusted(tc.domain); got != tc.want {
			t.Errorf("isTrusted(%s) = %v, want %v", tc.domain, got, tc.want)
		}
	}
}

func TestEmptyInput(t *testing.T) {
	res := New(DefaultConfig()).Run(nil)
	if len(res.Evidence) != 0 || res.CapDropped != 0 || res.FloorDropped != 0 {
		t.Fatalf("empty input should produce empty result, got %+v", res)
	}
}
