// Package enrich upgrades evidence records with extracted page content:
// an excerpt for supporting text and a sentence-bounded best quote. It is
// optional and time-bounded; records pass through unchanged when a page
// cannot be fetched or parsed.
package enrich

import (
	"context"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"dossier/internal/core"
	"dossier/internal/logger"
	"dossier/internal/normalize"
)

const (
	maxExcerptLen  = 800
	minParagraph   = 50
	maxRedirects   = 3
	maxBodyBytes   = 2 << 20
	minQuoteLen    = 60
	maxQuoteLen    = 400
	defaultTimeout = 8 * time.Second
)

// Hosts that hard-paywall article bodies. Their records keep provider
// snippets and are marked unreachable without a fetch attempt.
var paywallDomains = map[string]bool{
	"wsj.com":          true,
	"ft.com":           true,
	"economist.com":    true,
	"bloomberg.com":    true,
	"newyorker.com":    true,
	"seekingalpha.com": true,
}

var boilerplateSelector = "script, style, nav, footer, header, aside, form, iframe, noscript, " +
	".sidebar, #sidebar, .ad, .advertisement, .popup, .modal, .cookie-banner"

var mainContentSelectors = []string{
	"article", "main", ".main-content", ".entry-content", ".post-content",
	".post-body", ".article-body", "[role='main']", ".content", "#content",
}

// Page is the cacheable outcome of one fetch.
type Page struct {
	Status       int       `json:"status"`
	ContentType  string    `json:"content_type"`
	Excerpt      string    `json:"excerpt"`
	BestQuote    string    `json:"best_quote"`
	Reachability float64   `json:"reachability"`
	FetchedAt    time.Time `json:"fetched_at"`
}

// Enricher fetches evidence pages with a bounded worker pool.
type Enricher struct {
	client    *http.Client
	cache     *Cache
	workers   int
	timeout   time.Duration
	userAgent string
}

// New builds an Enricher running `workers` concurrent fetches with the
// given per-page timeout.
func New(workers int, timeout time.Duration) *Enricher {
	if workers < 1 {
		workers = 1
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Enricher{
		client: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		workers:   workers,
		timeout:   timeout,
		userAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
	}
}

// WithCache attaches a run-scoped page cache so repeat URLs (backfill
// iterations, resumed runs) skip the network.
func (e *Enricher) WithCache(c *Cache) *Enricher {
	e.cache = c
	return e
}

// Enrich fetches every record's page and applies excerpt, quote, snippet
// upgrade, and reachability. Record order is preserved; failures leave the
// record as it came in.
func (e *Enricher) Enrich(ctx context.Context, evs []core.Evidence) []core.Evidence {
	out := make([]core.Evidence, len(evs))
	copy(out, evs)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := range out {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			out[i] = e.enrichOne(gctx, out[i])
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (e *Enricher) enrichOne(ctx context.Context, ev core.Evidence) core.Evidence {
	if paywallDomains[ev.SourceDomain] {
		ev.Reachability = 0
		return ev
	}

	page := e.lookup(ctx, ev)
	return applyPage(ev, page)
}

// lookup serves the page from cache when possible, fetching and storing
// otherwise.
func (e *Enricher) lookup(ctx context.Context, ev core.Evidence) Page {
	key := ev.CanonicalURL
	if key == "" {
		key = ev.URL
	}

	if e.cache != nil {
		if page, ok, err := e.cache.Get(key); err == nil && ok {
			return page
		}
	}

	page := e.fetch(ctx, key)
	if e.cache != nil {
		if err := e.cache.Put(key, page); err != nil {
			logger.Warn("Page cache write failed", "url", key, "error", err.Error())
		}
	}
	return page
}

func (e *Enricher) fetch(ctx context.Context, pageURL string) Page {
	page := Page{Reachability: 1, FetchedAt: time.Now().UTC()}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		page.Reachability = 0
		return page
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := e.client.Do(req)
	if err != nil {
		logger.Debug("Enrichment fetch failed", "url", pageURL, "error", err.Error())
		page.Reachability = 0
		return page
	}
	defer func() { _ = resp.Body.Close() }()

	page.Status = resp.StatusCode
	page.ContentType = resp.Header.Get("Content-Type")

	switch resp.StatusCode {
	case http.StatusPaymentRequired, http.StatusForbidden, http.StatusUnavailableForLegalReasons:
		page.Reachability = 0
		return page
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		page.Reachability = 0
		return page
	}
	// Only HTML is parsed; PDFs and binaries pass through untouched.
	if !strings.Contains(page.ContentType, "html") {
		return page
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return page
	}

	text := extractText(string(body))
	page.Excerpt = truncateExcerpt(text, maxExcerptLen)
	page.BestQuote = selectQuote(text)
	return page
}

// applyPage merges a fetch outcome into the record. The snippet is
// re-synthesized so placeholder snippets pick up the extracted quote.
func applyPage(ev core.Evidence, page Page) core.Evidence {
	ev.Reachability = page.Reachability
	if page.Excerpt != "" {
		ev.SupportingText = page.Excerpt
	}
	if page.BestQuote != "" {
		ev.BestQuote = page.BestQuote
	}
	ev.Snippet = normalize.SynthesizeSnippet(ev.Snippet, ev.BestQuote, ev.Title, ev.SourceDomain)
	return ev
}

// extractText pulls paragraph text from HTML, preferring article and
// main-content containers and keeping only substantial paragraphs.
func extractText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find(boilerplateSelector).Remove()

	var paragraphs []string
	collect := func(_ int, s *goquery.Selection) {
		text := strings.Join(strings.Fields(s.Text()), " ")
		if len(text) >= minParagraph {
			paragraphs = append(paragraphs, text)
		}
	}

	for _, selector := range mainContentSelectors {
		doc.Find(selector).First().Find("p, li, blockquote").Each(collect)
		if len(paragraphs) > 0 {
			break
		}
	}
	if len(paragraphs) == 0 {
		doc.Find("body").Find("p, li, blockquote").Each(collect)
	}
	return strings.Join(paragraphs, "\n")
}

func truncateExcerpt(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	cut := string(runes[:limit])
	if idx := strings.LastIndex(cut, " "); idx > limit/2 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(cut)
}

var sentenceSplit = regexp.MustCompile(`(?:[.!?])(?:\s+|\z)`)

// selectQuote picks the first sentence carrying a digit (covers 4-digit
// years) within quote length bounds, falling back to the first sentence.
func selectQuote(text string) string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return ""
	}
	for _, s := range sentences {
		if len(s) < minQuoteLen || len(s) > maxQuoteLen {
			continue
		}
		if strings.ContainsAny(s, "0123456789") {
			return s
		}
	}
	first := sentences[0]
	if len(first) > maxQuoteLen {
		first = truncateExcerpt(first, maxQuoteLen)
	}
	return first
}

func splitSentences(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		start := 0
		for _, loc := range sentenceSplit.FindAllStringIndex(line, -1) {
			s := strings.TrimSpace(line[start:loc[1]])
			if s != "" {
				out = append(out, s)
			}
			start = loc[1]
		}
		if rest := strings.TrimSpace(line[start:]); rest != "" {
			out = append(out, rest)
		}
	}
	return out
}
