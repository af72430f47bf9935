package search

import "testing"

func TestGuardBudgetExhaustion(t *testing.T) {
	g := NewRunGuard(map[string]int{"prov": 2}, nil)

	if ok, _ := g.Acquire("prov", "query one"); !ok {
		t.Fatal("first call should be admitted")
	}
	if ok, _ := g.Acquire("prov", "query two"); !ok {
		t.Fatal("second call should be admitted")
	}

	ok, reason := g.Acquire("prov", "query three")
	if ok {
		t.Fatal("third call should exceed the budget")
	}
	if reason != ReasonBudgetExhausted {
		t.Errorf("reason = %q, want %q", reason, ReasonBudgetExhausted)
	}
	if got := g.Remaining("prov"); got != 0 {
		t.Errorf("remaining = %d, want 0", got)
	}
	if got := g.Used("prov"); got != 2 {
		t.Errorf("used = %d, want 2", got)
	}
}

func TestGuardDuplicateQuery(t *testing.T) {
	g := NewRunGuard(map[string]int{"prov": 10}, nil)

	if ok, _ := g.Acquire("prov", "latest gdp figures"); !ok {
		t.Fatal("first dispatch should be admitted")
	}

	ok, reason := g.Acquire("prov", "  Latest   GDP  figures ")
	if ok {
		t.Fatal("whitespace/case variant of a seen query should be rejected")
	}
	if reason != ReasonDuplicateQuery {
		t.Errorf("reason = %q, want %q", reason, ReasonDuplicateQuery)
	}
	// The duplicate must not burn budget.
	if got := g.Used("prov"); got != 1 {
		t.Errorf("used = %d, want 1", got)
	}
}

func TestGuardDedupIsPerProvider(t *testing.T) {
	g := NewRunGuard(map[string]int{"a": 5, "b": 5}, nil)

	if ok, _ := g.Acquire("a", "shared query"); !ok {
		t.Fatal("provider a should accept the query")
	}
	if ok, _ := g.Acquire("b", "shared query"); !ok {
		t.Fatal("provider b should accept the same query")
	}
}

func TestGuardUnbudgetedTag(t *testing.T) {
	g := NewRunGuard(nil, nil)

	if got := g.Remaining("anything"); got != -1 {
		t.Errorf("remaining for unbudgeted tag = %d, want -1", got)
	}
	for i := 0; i < 20; i++ {
		if ok, reason := g.Acquire("anything", "q"+string(rune('a'+i))); !ok {
			t.Fatalf("call %d rejected with %q, want admitted", i, reason)
		}
	}
}

type fixedMeter struct{ allow bool }

func (m fixedMeter) Allow(string) bool { return m.allow }

func TestGuardCostCeiling(t *testing.T) {
	g := NewRunGuard(map[string]int{"prov": 5}, fixedMeter{allow: false})

	ok, reason := g.Acquire("prov", "some query")
	if ok {
		t.Fatal("call should be rejected at the cost ceiling")
	}
	if reason != ReasonCostCeiling {
		t.Errorf("reason = %q, want %q", reason, ReasonCostCeiling)
	}
	if got := g.Used("prov"); got != 0 {
		t.Errorf("used = %d, want 0", got)
	}
}
