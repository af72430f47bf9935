package enrich

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"dossier/internal/core"
)

const articleHTML = `<!DOCTYPE html>
<html><head><title>EV sales report</title></head>
<body>
<nav>Home | About | Subscribe now</nav>
<article>
<p>Global electric vehicle sales rose 31 percent in 2024, reaching 17.1 million units according to the agency's annual market review.</p>
<p>China accounted for nearly two thirds of worldwide deliveries while European registrations stalled under reduced purchase subsidies.</p>
<p>short para</p>
<p>Analysts expect charging infrastructure investment to remain the binding constraint on adoption through the rest of the decade.</p>
</article>
<footer>Copyright</footer>
</body></html>`

func TestEnrichExtractsExcerptAndQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(articleHTML))
	}))
	defer srv.Close()

	e := New(2, 5*time.Second)
	evs := e.Enrich(context.Background(), []core.Evidence{{
		ID:           "e1",
		URL:          srv.URL + "/article",
		CanonicalURL: srv.URL + "/article",
		SourceDomain: "example.com",
		Title:        "EV sales report",
		Snippet:      "Content: EV sales report",
	}})

	got := evs[0]
	if got.Reachability != 1 {
		t.Errorf("reachability = %v, want 1", got.Reachability)
	}
	if !strings.Contains(got.SupportingText, "17.1 million units") {
		t.Errorf("excerpt missing article text: %q", got.SupportingText)
	}
	if strings.Contains(got.SupportingText, "Subscribe now") || strings.Contains(got.SupportingText, "short para") {
		t.Errorf("boilerplate or short paragraphs leaked into excerpt: %q", got.SupportingText)
	}
	if !strings.ContainsAny(got.BestQuote, "0123456789") {
		t.Errorf("best quote should carry the numeric sentence, got %q", got.BestQuote)
	}
	if len(got.BestQuote) < minQuoteLen || len(got.BestQuote) > maxQuoteLen {
		t.Errorf("best quote length %d outside [%d,%d]", len(got.BestQuote), minQuoteLen, maxQuoteLen)
	}
	// Placeholder snippet upgraded by the extracted quote.
	if strings.HasPrefix(got.Snippet, "Content: ") {
		t.Errorf("placeholder snippet not upgraded: %q", got.Snippet)
	}
}

func TestEnrichSkipsNonHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.5 not parseable"))
	}))
	defer srv.Close()

	e := New(1, 5*time.Second)
	evs := e.Enrich(context.Background(), []core.Evidence{{
		ID:             "e1",
		URL:            srv.URL + "/paper.pdf",
		SourceDomain:   "example.com",
		Snippet:        "provider snippet",
		SupportingText: "provider snippet",
	}})

	got := evs[0]
	if got.Reachability != 1 {
		t.Errorf("non-HTML page is still reachable, got %v", got.Reachability)
	}
	if got.SupportingText != "provider snippet" {
		t.Errorf("supporting text should be untouched, got %q", got.SupportingText)
	}
	if got.BestQuote != "" {
		t.Errorf("no quote should be extracted from a PDF, got %q", got.BestQuote)
	}
}

func TestEnrichPaywallStatusKeepsRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	e := New(1, 5*time.Second)
	evs := e.Enrich(context.Background(), []core.Evidence{{
		ID:           "e1",
		URL:          srv.URL + "/story",
		SourceDomain: "example.com",
		Snippet:      "provider snippet",
	}})

	if len(evs) != 1 {
		t.Fatal("paywalled evidence must be kept")
	}
	if evs[0].Reachability != 0 {
		t.Errorf("reachability = %v, want 0 on 403", evs[0].Reachability)
	}
	if evs[0].Snippet != "provider snippet" {
		t.Errorf("snippet must survive paywall, got %q", evs[0].Snippet)
	}
}

func TestEnrichKnownPaywallDomainSkipsFetch(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	e := New(1, 5*time.Second)
	evs := e.Enrich(context.Background(), []core.Evidence{{
		ID:           "e1",
		URL:          srv.URL + "/story",
		SourceDomain: "wsj.com",
		Snippet:      "provider snippet",
	}})

	if atomic.LoadInt32(&calls) != 0 {
		t.Errorf("known paywall domain should not be fetched, got %d calls", calls)
	}
	if evs[0].Reachability != 0 {
		t.Errorf("reachability = %v, want 0", evs[0].Reachability)
	}
}

func TestEnrichCacheHitSkipsRefetch(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(articleHTML))
	}))
	defer srv.Close()

	cache, err := NewCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	defer cache.Close()

	record := core.Evidence{
		ID:           "e1",
		URL:          srv.URL + "/article",
		CanonicalURL: srv.URL + "/article",
		SourceDomain: "example.com",
		Title:        "EV sales report",
	}

	first := New(1, 5*time.Second).WithCache(cache).Enrich(context.Background(), []core.Evidence{record})
	second := New(1, 5*time.Second).WithCache(cache).Enrich(context.Background(), []core.Evidence{record})

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("server hit %d times, want 1 (second pass cached)", got)
	}
	if first[0].SupportingText != second[0].SupportingText {
		t.Error("cached enrichment should reproduce the fetched excerpt")
	}
	if second[0].SupportingText == "" {
		t.Error("cache returned an empty excerpt")
	}
}

func TestSelectQuote(t *testing.T) {
	cases := []struct {
		name string
		text string
		want string
	}{
		{
			"numeric sentence preferred",
			"The outlook remains broadly uncertain for all participants in the market. Sales rose 31 percent in 2024 to reach a new record for the industry worldwide. More text follows.",
			"Sales rose 31 percent in 2024 to reach a new record for the industry worldwide.",
		},
		{
			"short numeric sentence rejected, first sentence fallback",
			"Sales rose 31%. The committee published a detailed statement describing conditions across all member economies today.",
			"Sales rose 31%.",
		},
		{
			"fallback to first sentence",
			"No numbers anywhere in this text. Another sentence without figures.",
			"No numbers anywhere in this text.",
		},
		{
			"empty text",
			"",
			"",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := selectQuote(tc.text); got != tc.want {
				t.Errorf("selectQuote = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestCacheRoundTrip(t *testing.T) {
	cache, err := NewCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	defer cache.Close()

	if _, ok, err := cache.Get("https://example.com/a"); err != nil || ok {
		t.Fatalf("empty cache Get = ok=%v err=%v, want miss", ok, err)
	}

	in := Page{
		Status:       200,
		ContentType:  "text/html",
		Excerpt:      "body text",
		BestQuote:    "a quote with 42 in it",
		Reachability: 1,
		FetchedAt:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := cache.Put("https://example.com/a", in); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := cache.Get("https://example.com/a")
	if err != nil || !ok {
		t.Fatalf("Get after Put = ok=%v err=%v", ok, err)
	}
	if got.Excerpt != in.Excerpt || got.BestQuote != in.BestQuote || got.Reachability != in.Reachability {
		t.Errorf("cache round trip mismatch: %+v", got)
	}
}
