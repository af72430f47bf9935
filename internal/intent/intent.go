package intent

import (
	"context"
	"regexp"
	"strings"

	"dossier/internal/llm"
	"dossier/internal/logger"
)

// Intent is the topic category driving thresholds and provider selection.
type Intent string

const (
	Encyclopedia Intent = "encyclopedia"
	News         Intent = "news"
	Product      Intent = "product"
	Local        Intent = "local"
	Academic     Intent = "academic"
	Stats        Intent = "stats"
	HowTo        Intent = "howto"
	Travel       Intent = "travel"
	Regulatory   Intent = "regulatory"
	Medical      Intent = "medical"
	Generic      Intent = "generic"
)

// All lists every classifiable intent, in a stable order.
var All = []Intent{
	Encyclopedia, News, Product, Local, Academic, Stats,
	HowTo, Travel, Regulatory, Medical, Generic,
}

// Thresholds are the intent-scoped quality targets.
type Thresholds struct {
	MinTriangulation float64 // Minimum union triangulation rate
	MinSources       int     // Minimum distinct sources per claim
}

var thresholdTable = map[Intent]Thresholds{
	Product:      {0.20, 3},
	Local:        {0.15, 2},
	Academic:     {0.35, 3},
	Stats:        {0.30, 3},
	News:         {0.30, 4},
	Encyclopedia: {0.25, 2},
	Travel:       {0.25, 3},
	HowTo:        {0.20, 2},
	Regulatory:   {0.30, 3},
	Medical:      {0.35, 3},
	Generic:      {0.25, 2},
}

// ThresholdsFor returns the quality targets for an intent, falling back to
// the generic row for unknown tags.
func ThresholdsFor(it Intent) Thresholds {
	if t, ok := thresholdTable[it]; ok {
		return t
	}
	return thresholdTable[Generic]
}

// rule is one ordered classification rule. Most specific rules come first
// (medical before travel, travel before local).
type rule struct {
	intent  Intent
	pattern *regexp.Regexp
}

var rules = []rule{
	{Medical, regexp.MustCompile(`\b(symptoms?|treatments?|dosage|diagnos\w*|vaccines?|diseases?|therapy|medications?|side effects?|clinical trials?)\b`)},
	{Regulatory, regexp.MustCompile(`\b(regulations?|regulatory|compliance|directives?|statutes?|legislation|antitrust|sanctions?|gdpr|sec filings?|licensing requirements?)\b`)},
	{Academic, regexp.MustCompile(`\b(research|stud(y|ies)|peer[- ]reviewed?|journals?|papers?|citations?|doi|preprints?|literature review)\b`)},
	{Stats, regexp.MustCompile(`\b(statistics?|dataset|data on|rates?|gdp|inflation|unemployment|census|per capita|median|percentages?|growth rate)\b`)},
	{HowTo, regexp.MustCompile(`\b(how (to|do|can)|tutorials?|step[- ]by[- ]step|guides?|install(ing)?|configur\w+|setup|set up)\b`)},
	{Product, regexp.MustCompile(`\b(best|reviews?|vs\.?|versus|comparisons?|compare|prices?|pricing|buy(ing)?|cheapest|top \d+)\b`)},
	{Travel, regexp.MustCompile(`\b(travel|tourism|tourist|itinerar(y|ies)|visit(ing)?|flights?|hotels?|destinations?|things to do)\b`)},
	{News, regexp.MustCompile(`\b(latest|breaking|today|this (week|month)|recently|announc\w+|elections?|headlines?)\b`)},
	{Local, regexp.MustCompile(`\b(near me|nearby|in my area|closest|open now|directions to|local)\b`)},
	{Encyclopedia, regexp.MustCompile(`\b(history of|what (is|are)|who (is|was)|definition of|origins? of|timeline|overview of|explained)\b`)},
}

// semanticCatalog backs the hybrid stage: a short label description plus a
// few example topics per intent.
var semanticCatalog = map[Intent]struct {
	label    string
	examples []string
}{
	Encyclopedia: {"background knowledge, definitions, history", []string{"history of the printing press", "what is photosynthesis"}},
	News:         {"current events and recent developments", []string{"latest developments in semiconductor export controls", "election results this week"}},
	Product:      {"product comparisons, reviews, purchase decisions", []string{"best noise cancelling headphones", "laptop compared to desktop for video editing"}},
	Local:        {"places and services near a location", []string{"coffee shops near me", "pharmacies open now"}},
	Academic:     {"scholarly research and scientific literature", []string{"peer reviewed studies on sleep deprivation", "recent papers on transformer models"}},
	Stats:        {"quantitative data, rates, official statistics", []string{"unemployment rate by country", "household income statistics"}},
	HowTo:        {"instructions and procedural guidance", []string{"how to configure a reverse proxy", "step by step sourdough starter"}},
	Travel:       {"trips, destinations, tourism planning", []string{"two week itinerary for Portugal", "tourism trends this year"}},
	Regulatory:   {"laws, rules, compliance obligations", []string{"data residency requirements in the EU", "emissions regulations for heavy trucks"}},
	Medical:      {"health conditions, treatments, clinical evidence", []string{"treatment options for plantar fasciitis", "vaccine efficacy data"}},
}

const (
	defaultSemanticMin = 0.42
	defaultZeroShotMin = 0.30
	ruleConfidence     = 0.90
)

// Embedder is the slice of the LLM client the hybrid stage needs.
type Embedder interface {
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float64, error)
}

// LabelScorer is the slice of the LLM client the zero-shot stage needs.
type LabelScorer interface {
	ScoreLabels(ctx context.Context, text string, labels []string) (string, float64, error)
}

// Result is the classifier output attached to the run.
type Result struct {
	Intent          Intent   // Winning tag, Generic when nothing matched
	Confidence      float64  // Confidence of the winning stage
	Stage           string   // rules, semantic, zeroshot, or fallback
	Disambiguations []string // Candidate geographic readings, reporting only
}

// Classifier maps a topic to an intent through three stages: ordered regex
// rules, optional embedding similarity, optional zero-shot labeling. The
// first high-confidence match wins; everything else falls back to Generic.
type Classifier struct {
	embedder    Embedder
	scorer      LabelScorer
	hybrid      bool
	semanticMin float64
	zeroShotMin float64
}

// NewClassifier builds a classifier. embedder and scorer may be nil; the
// corresponding stages are skipped so classification stays deterministic
// without API access.
func NewClassifier(embedder Embedder, scorer LabelScorer, hybrid bool) *Classifier {
	return &Classifier{
		embedder:    embedder,
		scorer:      scorer,
		hybrid:      hybrid,
		semanticMin: defaultSemanticMin,
		zeroShotMin: defaultZeroShotMin,
	}
}

// Classify runs the staged pipeline over a topic.
func (c *Classifier) Classify(ctx context.Context, topic string) Result {
	lowered := strings.ToLower(strings.TrimSpace(topic))
	disambiguations := DetectAmbiguity(lowered)

	// Stage 1: ordered rules.
	for _, r := range rules {
		if r.pattern.MatchString(lowered) {
			return Result{Intent: r.intent, Confidence: ruleConfidence, Stage: "rules", Disambiguations: disambiguations}
		}
	}

	// Stage 2: semantic similarity against the label catalog.
	if c.hybrid && c.embedder != nil {
		if it, score, err := c.classifySemantic(ctx, lowered); err != nil {
			logger.Warn("Semantic intent stage failed, continuing", "error", err.Error())
		} else if score >= c.semanticMin {
			return Result{Intent: it, Confidence: score, Stage: "semantic", Disambiguations: disambiguations}
		}
	}

	// Stage 3: zero-shot over the same label set.
	if c.scorer != nil {
		labels := make([]string, 0, len(semanticCatalog))
		for it := range semanticCatalog {
			labels = append(labels, string(it))
		}
		if label, score, err := c.scorer.ScoreLabels(ctx, topic, labels); err != nil {
			logger.Warn("Zero-shot intent stage failed, continuing", "error", err.Error())
		} else if score >= c.zeroShotMin {
			return Result{Intent: Intent(label), Confidence: score, Stage: "zeroshot", Disambiguations: disambiguations}
		}
	}

	return Result{Intent: Generic, Confidence: 0, Stage: "fallback", Disambiguations: disambiguations}
}

// classifySemantic scores the topic against each label catalog entry with a
// 0.7 label / 0.3 best-example blend and returns the best intent.
func (c *Classifier) classifySemantic(ctx context.Context, topic string) (Intent, float64, error) {
	texts := []string{topic}
	type span struct {
		intent     Intent
		labelIdx   int
		exampleIdx []int
	}
	spans := make([]span, 0, len(semanticCatalog))
	for it, entry := range semanticCatalog {
		s := span{intent: it, labelIdx: len(texts)}
		texts = append(texts, entry.label)
		for _, ex := range entry.examples {
			s.exampleIdx = append(s.exampleIdx, len(texts))
			texts = append(texts, ex)
		}
		spans = append(spans, s)
	}

	vectors, err := c.embedder.GenerateEmbeddings(ctx, texts)
	if err != nil {
		return Generic, 0, err
	}

	topicVec := vectors[0]
	best := Generic
	bestScore := 0.0
	for _, s := range spans {
		labelSim := llm.CosineSimilarity(topicVec, vectors[s.labelIdx])
		bestExample := 0.0
		for _, idx := range s.exampleIdx {
			if sim := llm.CosineSimilarity(topicVec, vectors[idx]); sim > bestExample {
				bestExample = sim
			}
		}
		score := 0.7*labelSim + 0.3*bestExample
		if score > bestScore {
			bestScore = score
			best = s.intent
		}
	}

	return best, bestScore, nil
}
