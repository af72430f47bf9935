package search

import (
	"strings"
	"sync"
)

// CostMeter lets the run guard consult a spend ceiling before admitting a
// provider call. A nil meter means no ceiling.
type CostMeter interface {
	Allow(tag string) bool
}

// RunGuard enforces the per-run limits that are independent of provider
// health: call budgets, duplicate-query suppression and the cost ceiling.
// A fresh guard is created for every run.
type RunGuard struct {
	mu      sync.Mutex
	budgets map[string]int
	used    map[string]int
	seen    map[string]map[string]bool
	meter   CostMeter
}

// NewRunGuard creates a guard with per-tag call budgets.
func NewRunGuard(budgets map[string]int, meter CostMeter) *RunGuard {
	g := &RunGuard{
		budgets: make(map[string]int, len(budgets)),
		used:    make(map[string]int),
		seen:    make(map[string]map[string]bool),
		meter:   meter,
	}
	for tag, n := range budgets {
		g.budgets[tag] = n
	}
	return g
}

// Acquire admits or rejects one provider call for the given query. On
// rejection the second return value names the reason. Admission consumes
// budget and records the query, so callers must only Acquire immediately
// before dispatching.
func (g *RunGuard) Acquire(tag, query string) (bool, string) {
	normalized := normalizeQuery(query)

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.seen[tag][normalized] {
		return false, ReasonDuplicateQuery
	}
	budget, ok := g.budgets[tag]
	if ok && g.used[tag] >= budget {
		return false, ReasonBudgetExhausted
	}
	if g.meter != nil && !g.meter.Allow(tag) {
		return false, ReasonCostCeiling
	}

	if g.seen[tag] == nil {
		g.seen[tag] = make(map[string]bool)
	}
	g.seen[tag][normalized] = true
	g.used[tag]++
	return true, ""
}

// Remaining reports how many calls the tag may still make this run. Tags
// without a configured budget report -1 (unlimited).
func (g *RunGuard) Remaining(tag string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	budget, ok := g.budgets[tag]
	if !ok {
		return -1
	}
	left := budget - g.used[tag]
	if left < 0 {
		return 0
	}
	return left
}

// Used reports how many calls the tag made this run.
func (g *RunGuard) Used(tag string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.used[tag]
}

func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}
