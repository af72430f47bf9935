package canonical

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dossier/internal/core"
)

func TestURLCanonicalization(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			"tracking params stripped",
			"https://example.com/a?utm_source=x&utm_medium=y&id=7&gclid=abc",
			"https://example.com/a?id=7",
		},
		{
			"fragment dropped",
			"https://example.com/a#section-2",
			"https://example.com/a",
		},
		{
			"www and case normalized",
			"HTTPS://WWW.Example.COM/Path",
			"https://example.com/Path",
		},
		{
			"trailing slash removed beyond root",
			"https://example.com/reports/",
			"https://example.com/reports",
		},
		{
			"root slash preserved",
			"https://example.com/",
			"https://example.com/",
		},
		{
			"default port dropped",
			"https://example.com:443/a",
			"https://example.com/a",
		},
		{
			"params sorted",
			"https://example.com/a?z=1&a=2",
			"https://example.com/a?a=2&z=1",
		},
		{
			"session variants stripped",
			"https://example.com/a?jsessionid=XYZ&page=3&ref=newsletter",
			"https://example.com/a?page=3",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := URL(tc.in); got != tc.want {
				t.Errorf("URL(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestURLIdempotence(t *testing.T) {
	inputs := []string{
		"https://www.example.com/a/?utm_source=x&b=2&a=1#frag",
		"http://Example.com:80/path/",
		"https://doi.org/10.1234/abc.5",
		"https://example.com/a?z=%2Fencoded&y=a+b",
		"not a url at all",
	}
	for _, in := range inputs {
		once := URL(in)
		twice := URL(once)
		if once != twice {
			t.Errorf("canonicalization not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestExtractDOI(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"https://doi.org/10.1234/abcd.56", "10.1234/abcd.56"},
		{"https://dx.doi.org/10.1038/s41586-024-07123-7", "10.1038/s41586-024-07123-7"},
		{"https://journals.example.org/doi/10.5555/xyz123/full", "10.5555/xyz123/full"},
		{"https://example.org/lookup?doi=10.1000/182", "10.1000/182"},
		{"https://example.org/plain-article", ""},
		{"https://example.org/prices/10.99/detail", ""},
	}
	for _, tc := range cases {
		if got := ExtractDOI(tc.in); got != tc.want {
			t.Errorf("ExtractDOI(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCanonicalID(t *testing.T) {
	withDOI := ID("10.1234/X", "https://example.com/a")
	if withDOI != "doi:10.1234/x" {
		t.Errorf("DOI id = %q, want doi:10.1234/x", withDOI)
	}
	withoutDOI := ID("", "https://example.com/a")
	if !strings.HasPrefix(withoutDOI, "url:") || len(withoutDOI) != len("url:")+16 {
		t.Errorf("URL id = %q, want url: plus 16 hex chars", withoutDOI)
	}
	if withoutDOI != ID("", "https://example.com/a") {
		t.Error("URL fingerprint must be deterministic")
	}
}

func TestResolverFollowsOneRedirect(t *testing.T) {
	target := "https://publisher.example.org/article"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target, http.StatusFound)
	}))
	defer srv.Close()

	r := NewResolver(2 * time.Second)
	got, err := r.Resolve(context.Background(), srv.URL+"/10.1234/x")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != target {
		t.Errorf("resolved to %q, want %q", got, target)
	}
}

func TestResolverKeepsNonRedirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := NewResolver(2 * time.Second)
	in := srv.URL + "/page"
	got, err := r.Resolve(context.Background(), in)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != in {
		t.Errorf("resolved to %q, want original %q", got, in)
	}
}

func TestApplyResolvesDOIHostToPublisher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://publisher.example.org/article", http.StatusFound)
	}))
	defer srv.Close()

	c := NewCanonicalizer(NewResolver(2 * time.Second))
	c.MarkDOIHost("127.0.0.1")

	evs := c.Apply(context.Background(), []core.Evidence{{
		ID:  "e1",
		URL: srv.URL + "/10.1234/x",
	}})

	got := evs[0]
	if got.SourceDomain != "publisher.example.org" {
		t.Errorf("source_domain = %q, want publisher.example.org", got.SourceDomain)
	}
	if got.CanonicalID != "doi:10.1234/x" {
		t.Errorf("canonical_id = %q, want doi:10.1234/x", got.CanonicalID)
	}
	if got.CanonicalURL != "https://publisher.example.org/article" {
		t.Errorf("canonical_url = %q", got.CanonicalURL)
	}
}

func TestApplyWithoutResolverKeepsRecord(t *testing.T) {
	c := NewCanonicalizer(nil)
	evs := c.Apply(context.Background(), []core.Evidence{{
		ID:  "e1",
		URL: "https://www.example.com/report/?utm_source=feed",
	}})
	if evs[0].CanonicalURL != "https://example.com/report" {
		t.Errorf("canonical_url = %q", evs[0].CanonicalURL)
	}
	if evs[0].SourceDomain != "example.com" {
		t.Errorf("source_domain = %q", evs[0].SourceDomain)
	}
	if !strings.HasPrefix(evs[0].CanonicalID, "url:") {
		t.Errorf("canonical_id = %q, want url-based", evs[0].CanonicalID)
	}
}

func TestDedupByCanonicalIDKeepsHighestCredibility(t *testing.T) {
	evs := []core.Evidence{
		{ID: "low", CanonicalID: "url:aaaa", CredibilityScore: 0.5, Title: "first copy of a story"},
		{ID: "other", CanonicalID: "url:bbbb", CredibilityScore: 0.6, Title: "a different story entirely"},
		{ID: "high", CanonicalID: "url:aaaa", CredibilityScore: 0.9, Title: "second copy of a story"},
	}
	out, stats := Dedup(evs)
	if stats.ByCanonicalID != 1 {
		t.Errorf("by_canonical_id = %d, want 1", stats.ByCanonicalID)
	}
	if len(out) != 2 {
		t.Fatalf("got %d records, want 2", len(out))
	}
	// The survivor holds the first occurrence's position.
	if out[0].ID != "high" {
		t.Errorf("survivor = %q, want high-credibility record in first slot", out[0].ID)
	}

	seen := map[string]bool{}
	for _, ev := range out {
		if seen[ev.CanonicalID] {
			t.Fatalf("duplicate canonical_id %q after dedup", ev.CanonicalID)
		}
		seen[ev.CanonicalID] = true
	}
}

func TestDedupByTitleSameDomainOnly(t *testing.T) {
	evs := []core.Evidence{
		{ID: "a", CanonicalID: "url:1", SourceDomain: "news.example.com", CredibilityScore: 0.6,
			Title: "Inflation falls to 2.4 percent in December", Snippet: "euro area prices slowed in december as energy costs fell across member states"},
		{ID: "b", CanonicalID: "url:2", SourceDomain: "news.example.com", CredibilityScore: 0.8,
			Title: "Inflation falls to 2.4 percent in December!", Snippet: "consumer prices decelerated at year end with energy leading the decline everywhere"},
		{ID: "c", CanonicalID: "url:3", SourceDomain: "other.example.org", CredibilityScore: 0.5,
			Title: "Inflation falls to 2.4 percent in December", Snippet: "a completely different wire write up of the same headline number from another outlet"},
	}
	out, stats := Dedup(evs)
	if stats.ByTitle != 1 {
		t.Errorf("by_title = %d, want 1", stats.ByTitle)
	}
	if len(out) != 2 {
		t.Fatalf("got %d records, want 2", len(out))
	}
	if out[0].ID != "b" {
		t.Errorf("same-domain collapse kept %q, want higher-credibility b", out[0].ID)
	}
	// Cross-domain titles must survive pass 2 (they may still triangulate).
	if out[1].ID != "c" {
		t.Errorf("cross-domain record dropped, out = %+v", out)
	}
}

func TestDedupSyndicatedContent(t *testing.T) {
	wire := "The agency reported that global electric vehicle sales rose 31 percent " +
		"in 2024, reaching 17.1 million units, with China accounting for nearly " +
		"two thirds of deliveries while European registrations stalled under " +
		"reduced subsidies and North American growth slowed to single digits."
	evs := []core.Evidence{
		{ID: "origin", CanonicalID: "url:1", SourceDomain: "wire.example.com",
			Title: "EV sales up 31% in 2024", Snippet: wire, CredibilityScore: 0.7},
		{ID: "syndicated", CanonicalID: "url:2", SourceDomain: "local-paper.example.org",
			Title: "Electric vehicle deliveries surge worldwide", Snippet: wire, CredibilityScore: 0.4},
		{ID: "fresh", CanonicalID: "url:3", SourceDomain: "analysis.example.net",
			Title: "What EV growth means for charging networks", CredibilityScore: 0.6,
			Snippet: "Charging infrastructure investment lags vehicle adoption by roughly two years according to utility planning documents reviewed this spring."},
	}
	out, stats := Dedup(evs)
	if stats.BySyndication != 1 {
		t.Errorf("by_syndication = %d, want 1", stats.BySyndication)
	}
	if len(out) != 2 {
		t.Fatalf("got %d records, want 2", len(out))
	}
	if out[0].ID != "origin" {
		t.Errorf("syndication collapse kept %q, want origin", out[0].ID)
	}
}

func TestMinhashSimilarityBounds(t *testing.T) {
	a := minhashSignature("one two three four five six seven eight nine ten eleven twelve")
	if got := minhashSimilarity(a, a); got != 1.0 {
		t.Errorf("self-similarity = %v, want 1.0", got)
	}
	b := minhashSignature("completely unrelated words about gardening tomatoes compost rainfall harvest seedlings trellis")
	if got := minhashSimilarity(a, b); got >= syndicationThreshold {
		t.Errorf("unrelated similarity = %v, should be far below %v", got, syndicationThreshold)
	}
	if minhashSignature("") != nil {
		t.Error("empty text must yield nil signature")
	}
}
