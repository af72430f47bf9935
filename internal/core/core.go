package core

import (
	"sort"
	"time"
)

// Stance values an evidence record can take toward its claim.
const (
	StanceSupports = "supports"
	StanceDisputes = "disputes"
	StanceNeutral  = "neutral"
)

// Depth values for a research run.
const (
	DepthRapid    = "rapid"
	DepthStandard = "standard"
	DepthDeep     = "deep"
)

// Evidence is the atomic unit of collected research material.
type Evidence struct {
	ID               string    `json:"id"`                     // Stable record identifier (UUID)
	CanonicalID      string    `json:"canonical_id"`           // "doi:<doi>" or "url:<16-hex fingerprint>"
	Provider         string    `json:"provider"`               // Provider tag that produced the hit
	URL              string    `json:"url"`                    // Origin URL as returned by the provider
	CanonicalURL     string    `json:"canonical_url"`          // Tracking-stripped, normalized URL
	SourceDomain     string    `json:"source_domain"`          // Lowercased registered domain, www. stripped
	Family           string    `json:"family,omitempty"`       // Domain family tag for cap accounting
	Title            string    `json:"title"`                  // Result title
	Snippet          string    `json:"snippet"`                // Short description, never empty (<=500 chars)
	BestQuote        string    `json:"best_quote,omitempty"`   // Sentence-bounded quote, ideally numeric-bearing
	Claim            string    `json:"claim"`                  // The claim this evidence supports
	SupportingText   string    `json:"supporting_text"`        // Extracted page excerpt backing the claim
	SubtopicName     string    `json:"subtopic_name"`          // Query/subtopic that produced this record
	PublishedAt      string    `json:"published_at,omitempty"` // ISO-8601 publication date when known
	CollectedAt      time.Time `json:"collected_at"`           // Timestamp the record was created
	CredibilityScore float64   `json:"credibility_score"`      // Domain-tier credibility in [0,1]
	RelevanceScore   float64   `json:"relevance_score"`        // Topic-token overlap in [0,1]
	Confidence       float64   `json:"confidence"`             // credibility * relevance in [0,1]
	ControversyScore float64   `json:"controversy_score"`      // Contradiction pressure in [0,1]
	Reachability     float64   `json:"reachability"`           // 1 reachable, 0 paywalled/unreachable
	IsPrimarySource  bool      `json:"is_primary_source"`      // Member of the intent-scoped primary pool
	IsTriangulated   bool      `json:"is_triangulated"`        // Member of a multi-domain cluster or bucket
	ClusterID        string    `json:"cluster_id,omitempty"`   // Paraphrase cluster this record belongs to
	Stance           string    `json:"stance"`                 // supports, disputes, or neutral
	DisputedBy       []string  `json:"disputed_by,omitempty"`  // IDs of records disputing this one
	NeedsReview      bool      `json:"needs_review,omitempty"` // Contradiction detected but below drop threshold
}

// BestText returns the most information-dense text available for a record,
// in the priority order used by triangulation and syndication dedup.
func (e Evidence) BestText() string {
	if e.BestQuote != "" {
		return e.BestQuote
	}
	if e.Claim != "" {
		return e.Claim
	}
	if e.Snippet != "" {
		return e.Snippet
	}
	return e.Title
}

// Score is the combined ordering score used after filtering.
func (e Evidence) Score() float64 {
	return e.CredibilityScore * e.RelevanceScore
}

// SortEvidence puts records into presentation order: triangulated first,
// then by credibility times relevance, record ID breaking ties. Every
// writer of an evidence file goes through this so the ordering guarantee
// holds everywhere.
func SortEvidence(evs []Evidence) {
	sort.Slice(evs, func(i, j int) bool {
		a, b := evs[i], evs[j]
		if a.IsTriangulated != b.IsTriangulated {
			return a.IsTriangulated
		}
		if a.Score() != b.Score() {
			return a.Score() > b.Score()
		}
		return a.ID < b.ID
	})
}

// Cluster groups evidence records sharing a paraphrase or structured-claim key.
type Cluster struct {
	ID                 string           `json:"id"`                // Cluster identifier, numbered in sealing order
	MemberIDs          []string         `json:"member_ids"`        // Evidence record IDs in the cluster
	Domains            []string         `json:"domains"`           // Distinct source domains across members
	RepresentativeID   string           `json:"representative_id"` // Chosen representative record
	RepresentativeText string           `json:"representative_text"`
	Key                *StructuredClaim `json:"key,omitempty"` // Set for structured-claim buckets
	NeedsReview        bool             `json:"needs_review,omitempty"`
}

// Triangulated reports whether the cluster has independent confirmation,
// i.e. members from at least two distinct source domains.
func (c Cluster) Triangulated() bool {
	return len(c.Domains) >= 2
}

// StructuredClaim is a numeric claim extracted from evidence text.
type StructuredClaim struct {
	Entity string  `json:"entity,omitempty"` // Subject of the claim, when detected
	Metric string  `json:"metric"`           // Metric keyword (rate, revenue, population, ...)
	Period string  `json:"period"`           // Year, quarter, or range token
	Value  float64 `json:"value"`            // Numeric value
	Unit   string  `json:"unit"`             // %, pp, USD, EUR, GBP, ratio, index, per-capita
}

// RunMetrics is the single source of truth for gate decisions; keys are stable.
type RunMetrics struct {
	Cards                int                `json:"cards"`                 // Records written to evidence_cards.jsonl
	UnionTriangulation   float64            `json:"union_triangulation"`   // Share of evidence in multi-domain clusters/buckets
	PrimaryShare         float64            `json:"primary_share"`         // Share of primary-source records
	TopDomainShare       float64            `json:"top_domain_share"`      // Concentration of the most frequent domain
	UniqueDomains        int                `json:"unique_domains"`        // Distinct source domains
	CredibleCards        int                `json:"credible_cards"`        // Records with credibility >= 0.6
	TriangulatedCards    int                `json:"triangulated_cards"`    // Records inside triangulated clusters
	TriangulatedClusters int                `json:"triangulated_clusters"` // Clusters with >=2 distinct domains
	ProviderErrorRate    float64            `json:"provider_error_rate"`   // Failed provider calls / attempted calls
	EffectiveThresholds  map[string]float64 `json:"effective_thresholds,omitempty"`
}

// ResearchRequest describes one run of the pipeline.
type ResearchRequest struct {
	Topic       string        `json:"topic"`        // Natural-language research topic
	Depth       string        `json:"depth"`        // rapid, standard, or deep
	OutputDir   string        `json:"output_dir"`   // Parent directory for run directories
	MaxCost     float64       `json:"max_cost"`     // Cost ceiling in USD, 0 = unlimited
	Strict      bool          `json:"strict"`       // Gate failure upgrades the exit code
	Resume      bool          `json:"resume"`       // Reuse the newest run directory for the topic
	Verbose     bool          `json:"verbose"`      // Console progress output
	WallTimeout time.Duration `json:"wall_timeout"` // Overall run deadline
}

// RunContext carries run state into the report dispatcher. Metrics are
// reloaded from metrics.json at decision time so the written report can
// never drift from the metrics file.
type RunContext struct {
	RunDir                   string     `json:"run_dir"`
	Query                    string     `json:"query"`
	Intent                   string     `json:"intent"`
	Depth                    string     `json:"depth"`
	Strict                   bool       `json:"strict"`
	Metrics                  RunMetrics `json:"metrics"`
	AllowFinalReport         bool       `json:"allow_final_report"`
	ReasonFinalReportBlocked string     `json:"reason_final_report_blocked,omitempty"`
	Confidence               string     `json:"confidence,omitempty"`
	ProvidersUsed            []string   `json:"providers_used"`
	Disambiguations          []string   `json:"disambiguations,omitempty"`
	BackfillAttempts         int        `json:"backfill_attempts"`
}
