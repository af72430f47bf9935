package planner

import (
	"strings"
	"testing"
	"time"

	"dossier/internal/intent"
)

func fixedClock() time.Time {
	return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
}

func TestPlanRawTopicFirst(t *testing.T) {
	p := New(5).WithClock(fixedClock)

	plan := p.Plan("household tax rates OECD", intent.Stats)
	if len(plan.Queries) == 0 {
		t.Fatal("Expected at least one query")
	}
	if plan.Queries[0] != "household tax rates OECD" {
		t.Errorf("Expected raw topic first, got %q", plan.Queries[0])
	}
}

func TestPlanBounded(t *testing.T) {
	p := New(5).WithClock(fixedClock)

	for _, it := range intent.All {
		plan := p.Plan("some research topic", it)
		if len(plan.Queries) > 5 {
			t.Errorf("%s: expected at most 5 queries, got %d", it, len(plan.Queries))
		}
	}

	// Clamp on construction.
	if got := New(12).maxExpansions; got != 5 {
		t.Errorf("Expected maxExpansions clamp to 5, got %d", got)
	}
	if got := New(0).maxExpansions; got != 1 {
		t.Errorf("Expected maxExpansions clamp to 1, got %d", got)
	}
}

func TestPlanDeterministic(t *testing.T) {
	p := New(5).WithClock(fixedClock)

	first := p.Plan("inflation drivers eurozone", intent.Stats)
	for i := 0; i < 3; i++ {
		got := p.Plan("inflation drivers eurozone", intent.Stats)
		if strings.Join(got.Queries, "|") != strings.Join(first.Queries, "|") {
			t.Fatalf("Plan not deterministic: %v vs %v", got.Queries, first.Queries)
		}
	}
}

func TestPlanIntentTemplates(t *testing.T) {
	p := New(5).WithClock(fixedClock)

	stats := p.Plan("median household income", intent.Stats)
	if !containsSubstring(stats.Queries, "statistics") {
		t.Errorf("Expected stats plan to include a statistics facet: %v", stats.Queries)
	}
	if !containsSubstring(stats.Queries, "site:.gov") {
		t.Errorf("Expected stats plan to include a .gov site hint: %v", stats.Queries)
	}

	academic := p.Plan("sleep deprivation effects", intent.Academic)
	if !containsSubstring(academic.Queries, "site:.edu") {
		t.Errorf("Expected academic plan to include a .edu site hint: %v", academic.Queries)
	}

	news := p.Plan("semiconductor export controls", intent.News)
	if !containsSubstring(news.Queries, "after:2024-06-15") {
		t.Errorf("Expected news plan to include a 12-month date token: %v", news.Queries)
	}
}

func TestPlanEncyclopediaNoRecency(t *testing.T) {
	p := New(5).WithClock(fixedClock)

	plan := p.Plan("printing press", intent.Encyclopedia)
	for _, q := range plan.Queries {
		if strings.Contains(q, "after:") || strings.Contains(q, "latest") {
			t.Errorf("Encyclopedia plan must not carry recency filters: %q", q)
		}
	}
	if !containsSubstring(plan.Queries, "timeline") {
		t.Errorf("Expected encyclopedia plan to include a timeline facet: %v", plan.Queries)
	}
}

func TestPlanPassThroughDefault(t *testing.T) {
	p := New(5).WithClock(fixedClock)

	plan := p.Plan("ornithopter wing dynamics", intent.Generic)
	if len(plan.Queries) != 1 {
		t.Errorf("Expected pass-through plan for generic intent, got %v", plan.Queries)
	}
}

func TestPlanQueriesUnique(t *testing.T) {
	p := New(5).WithClock(fixedClock)

	for _, it := range intent.All {
		plan := p.Plan("crime   Statistics", it)
		seen := make(map[string]bool)
		for _, q := range plan.Queries {
			norm := normalize(q)
			if seen[norm] {
				t.Errorf("%s: duplicate query survived collapse: %q", it, q)
			}
			seen[norm] = true
		}
	}
}

func TestNormalize(t *testing.T) {
	if got := normalize("  Household   TAX rates "); got != "household tax rates" {
		t.Errorf("normalize = %q, want %q", got, "household tax rates")
	}
}

func containsSubstring(queries []string, sub string) bool {
	for _, q := range queries {
		if strings.Contains(q, sub) {
			return true
		}
	}
	return false
}
