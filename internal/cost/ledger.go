// Package cost tracks estimated spend for one run. Search providers are
// billed per call and Gemini requests per estimated token; the ledger backs
// the run guard's cost ceiling so a run never spends past --max-cost.
package cost

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"unicode/utf8"

	"dossier/internal/search"
)

// GeminiPricing represents per-model Gemini token pricing.
type GeminiPricing struct {
	Model                 string
	InputCostPer1MTokens  float64 // Cost per 1M input tokens in USD
	OutputCostPer1MTokens float64 // Cost per 1M output tokens in USD
	EstimatedOutputTokens int     // Typical structured-output length
}

// PricingTable contains current Gemini pricing as of 2025.
var PricingTable = map[string]GeminiPricing{
	"gemini-flash-lite-latest": {
		Model:                 "gemini-flash-lite-latest",
		InputCostPer1MTokens:  0.10, // $0.10 per 1M tokens
		OutputCostPer1MTokens: 0.40, // $0.40 per 1M tokens
		EstimatedOutputTokens: 60,   // Label plus confidence JSON
	},
	"gemini-embedding-001": {
		Model:                "gemini-embedding-001",
		InputCostPer1MTokens: 0.15, // $0.15 per 1M tokens, no output billing
	},
}

// searchPricing is the estimated cost of one provider call in USD.
// Providers absent from the table are free public APIs.
var searchPricing = map[string]float64{
	search.TagSerpAPI: 0.015, // $75 per 5k searches
}

// EstimateTokenCount provides a rough estimation of token count for text.
// This is a simplified approximation: typically 1 token ≈ 0.75 words ≈ 4
// characters.
func EstimateTokenCount(text string) int {
	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, "\n", " ")

	charCount := utf8.RuneCountInString(text)

	// 1 token ≈ 4 characters for English text, with some buffer for
	// special tokens and formatting.
	return int(math.Ceil(float64(charCount) / 3.5))
}

// Ledger accumulates estimated spend for one run and implements the run
// guard's CostMeter. Admission through Allow charges the call, mirroring
// RunGuard.Acquire: rejected calls cost nothing and admitted ones are billed
// exactly once.
type Ledger struct {
	mu      sync.Mutex
	ceiling float64

	total        float64
	searchCalls  map[string]int
	searchSpend  map[string]float64
	geminiCalls  int
	geminiTokens int
	geminiSpend  float64
}

// NewLedger creates a ledger with a spend ceiling in USD. Zero or negative
// means no ceiling.
func NewLedger(ceiling float64) *Ledger {
	return &Ledger{
		ceiling:     ceiling,
		searchCalls: make(map[string]int),
		searchSpend: make(map[string]float64),
	}
}

// Allow reports whether one more call to the tagged provider fits under the
// ceiling and charges it when it does. Free providers are only refused once
// paid charges have already overrun the ceiling.
func (l *Ledger) Allow(tag string) bool {
	unit := searchPricing[tag]

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ceiling > 0 && l.total+unit > l.ceiling {
		return false
	}
	l.searchCalls[tag]++
	l.searchSpend[tag] += unit
	l.total += unit
	return true
}

// ChargeEmbeddings bills one embedding request covering the given texts and
// returns the charge. Embedding calls are not gated up front; oversized
// batches surface as an overrun that stops subsequent provider calls.
func (l *Ledger) ChargeEmbeddings(model string, texts []string) float64 {
	pricing, ok := PricingTable[model]
	if !ok {
		pricing = PricingTable["gemini-embedding-001"]
	}

	tokens := 0
	for _, text := range texts {
		tokens += EstimateTokenCount(text)
	}
	charge := float64(tokens) * pricing.InputCostPer1MTokens / 1000000

	l.mu.Lock()
	defer l.mu.Unlock()
	l.geminiCalls++
	l.geminiTokens += tokens
	l.geminiSpend += charge
	l.total += charge
	return charge
}

// ChargeLabelScore bills one zero-shot classification call and returns the
// charge.
func (l *Ledger) ChargeLabelScore(model, prompt string) float64 {
	pricing, ok := PricingTable[model]
	if !ok {
		// Default to flash-lite pricing if the model is not in the table.
		pricing = PricingTable["gemini-flash-lite-latest"]
	}

	inputTokens := EstimateTokenCount(prompt)
	charge := float64(inputTokens)*pricing.InputCostPer1MTokens/1000000 +
		float64(pricing.EstimatedOutputTokens)*pricing.OutputCostPer1MTokens/1000000

	l.mu.Lock()
	defer l.mu.Unlock()
	l.geminiCalls++
	l.geminiTokens += inputTokens + pricing.EstimatedOutputTokens
	l.geminiSpend += charge
	l.total += charge
	return charge
}

// Spent returns the estimated run spend so far in USD.
func (l *Ledger) Spent() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// Summary is the ledger snapshot recorded in run artifacts.
type Summary struct {
	CeilingUSD    float64            `json:"ceiling_usd,omitempty"`
	TotalUSD      float64            `json:"total_usd"`
	SearchCalls   map[string]int     `json:"search_calls"`
	SearchCostUSD map[string]float64 `json:"search_cost_usd"`
	GeminiCalls   int                `json:"gemini_calls"`
	GeminiTokens  int                `json:"gemini_tokens"`
	GeminiCostUSD float64            `json:"gemini_cost_usd"`
}

// Summary snapshots the ledger.
func (l *Ledger) Summary() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()

	calls := make(map[string]int, len(l.searchCalls))
	for tag, n := range l.searchCalls {
		calls[tag] = n
	}
	spend := make(map[string]float64, len(l.searchSpend))
	for tag, usd := range l.searchSpend {
		spend[tag] = usd
	}
	return Summary{
		CeilingUSD:    l.ceiling,
		TotalUSD:      l.total,
		SearchCalls:   calls,
		SearchCostUSD: spend,
		GeminiCalls:   l.geminiCalls,
		GeminiTokens:  l.geminiTokens,
		GeminiCostUSD: l.geminiSpend,
	}
}

// String renders the console form of the summary.
func (s Summary) String() string {
	searches := 0
	for _, n := range s.SearchCalls {
		searches += n
	}
	if s.CeilingUSD > 0 {
		return fmt.Sprintf("estimated spend $%.4f of $%.2f ceiling (%d search calls, %d Gemini calls)",
			s.TotalUSD, s.CeilingUSD, searches, s.GeminiCalls)
	}
	return fmt.Sprintf("estimated spend $%.4f (%d search calls, %d Gemini calls)",
		s.TotalUSD, searches, s.GeminiCalls)
}
