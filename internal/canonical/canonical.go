// Package canonical normalizes evidence URLs, resolves DOI landing pages,
// assigns canonical IDs, and collapses duplicate records.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// trackingParams are stripped from every URL. Prefix entries cover whole
// families (utm_source, utm_medium, ...).
var trackingParamExact = map[string]bool{
	"gclid":    true,
	"fbclid":   true,
	"msclkid":  true,
	"dclid":    true,
	"yclid":    true,
	"igshid":   true,
	"mc_cid":   true,
	"mc_eid":   true,
	"ref":      true,
	"ref_src":  true,
	"referrer": true,
	"spm":      true,
	"sid":      true,
	"s_kwcid":  true,
	"cmpid":    true,
}

var trackingParamPrefixes = []string{"utm_", "session", "phpsessid", "jsessionid"}

func isTrackingParam(key string) bool {
	key = strings.ToLower(key)
	if trackingParamExact[key] {
		return true
	}
	for _, p := range trackingParamPrefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

// URL normalizes a raw URL: lowercase scheme and host, www. stripped,
// default ports dropped, tracking params removed, remaining params sorted,
// fragment dropped, trailing slash removed everywhere but the root path.
// The operation is idempotent. Unparseable input is returned trimmed.
func URL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	host = strings.TrimPrefix(host, "www.")
	switch u.Scheme {
	case "http":
		host = strings.TrimSuffix(host, ":80")
	case "https":
		host = strings.TrimSuffix(host, ":443")
	}
	u.Host = host

	u.Fragment = ""
	u.RawFragment = ""

	if u.RawQuery != "" {
		q := u.Query()
		for key := range q {
			if isTrackingParam(key) {
				delete(q, key)
			}
		}
		u.RawQuery = encodeSorted(q)
	}

	if u.Path != "/" && strings.HasSuffix(u.Path, "/") {
		u.Path = strings.TrimRight(u.Path, "/")
		u.RawPath = ""
	}

	return u.String()
}

// encodeSorted mirrors url.Values.Encode, which already emits keys in
// sorted order; kept as a named step so the idempotence contract is visible.
func encodeSorted(q url.Values) string {
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		for _, v := range q[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

// Domain extracts the lowercased host of a canonical URL without www.
func Domain(canonicalURL string) string {
	u, err := url.Parse(canonicalURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// Fingerprint returns the stable 16-hex-digit prefix of the SHA-256 of a
// canonical URL.
func Fingerprint(canonicalURL string) string {
	sum := sha256.Sum256([]byte(canonicalURL))
	return hex.EncodeToString(sum[:])[:16]
}

// ID builds the canonical_id: DOI-based when a DOI exists, URL-fingerprint
// otherwise.
func ID(doi, canonicalURL string) string {
	if doi != "" {
		return "doi:" + strings.ToLower(doi)
	}
	return "url:" + Fingerprint(canonicalURL)
}
