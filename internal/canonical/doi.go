package canonical

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// doiPattern matches the Crossref-recommended modern DOI form.
var doiPattern = regexp.MustCompile(`10\.\d{4,9}/[-._;()/:a-zA-Z0-9]+`)

// doiHosts are resolver hosts whose paths carry the DOI itself.
var doiHosts = map[string]bool{
	"doi.org":    true,
	"dx.doi.org": true,
}

// ExtractDOI pulls a DOI out of a URL (doi.org paths, publisher /doi/
// paths, doi= query params). Trailing punctuation picked up by the pattern
// is trimmed. Empty string when none is found.
func ExtractDOI(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	candidates := []string{u.Path}
	if v := u.Query().Get("doi"); v != "" {
		candidates = append(candidates, v)
	}
	for _, c := range candidates {
		if m := doiPattern.FindString(c); m != "" {
			return strings.TrimRight(m, ".,;)")
		}
	}
	return ""
}

// IsDOIHost reports whether the URL points at a DOI resolver, meaning its
// domain must not be used for cap accounting.
func IsDOIHost(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return doiHosts[strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")]
}

// Resolver follows a DOI-host URL one redirect hop to the publisher
// landing page. One hop is enough for doi.org and keeps the worst case
// bounded under the run deadline.
type Resolver struct {
	client  *http.Client
	timeout time.Duration
}

// NewResolver builds a resolver with the given per-lookup timeout
// (4s when non-positive).
func NewResolver(timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	return &Resolver{
		client: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		timeout: timeout,
	}
}

// Resolve returns the redirect target of rawURL, or rawURL itself when the
// response is not a redirect. Relative Location headers are resolved
// against the request URL.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return rawURL, err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := r.client.Do(req)
	if err != nil {
		return rawURL, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 300 || resp.StatusCode >= 400 {
		return rawURL, nil
	}
	loc := resp.Header.Get("Location")
	if loc == "" {
		return rawURL, nil
	}
	target, err := resp.Request.URL.Parse(loc)
	if err != nil {
		return rawURL, nil
	}
	return target.String(), nil
}
