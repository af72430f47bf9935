package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"dossier/internal/intent"
	"dossier/internal/search"
)

func testStack(budget int) (*search.Registry, *search.Health, *search.RunGuard) {
	health := search.NewHealth(search.BreakerConfig{
		Threshold:      3,
		Cooldown:       50 * time.Millisecond,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     40 * time.Millisecond,
	}, 1)
	registry := search.NewRegistry(search.RegistryOptions{Enabled: []string{"mock"}}, health)
	guard := search.NewRunGuard(map[string]int{search.TagMock: budget}, nil)
	return registry, health, guard
}

func TestRunSequentialBatchesParallelProviders(t *testing.T) {
	registry, health, guard := testStack(10)
	mock := search.NewMockProvider()
	registry.Replace(search.TagMock, mock)

	d := New(registry, health, guard, time.Second, search.Config{MaxResults: 2})
	queries := []string{"first query", "second query", "third query"}

	batches := d.Run(context.Background(), intent.Generic, "topic", queries)

	if len(batches) != 3 {
		t.Fatalf("got %d batches, want 3", len(batches))
	}
	for i, b := range batches {
		if b.Query != queries[i] {
			t.Errorf("batch %d query = %q, want %q (order must be preserved)", i, b.Query, queries[i])
		}
		if len(b.Results[search.TagMock]) != 2 {
			t.Errorf("batch %d: %d hits, want 2", i, len(b.Results[search.TagMock]))
		}
	}

	calls := mock.Calls()
	if len(calls) != 3 {
		t.Fatalf("provider saw %d calls, want 3", len(calls))
	}
	for i, q := range queries {
		if calls[i] != q {
			t.Errorf("call %d = %q, want %q (cross-query order is sequential)", i, calls[i], q)
		}
	}
}

func TestRunIsolatesProviderFailure(t *testing.T) {
	registry, health, guard := testStack(10)
	guard = search.NewRunGuard(map[string]int{search.TagMock: 10, search.TagDuckDuckGo: 10}, nil)

	good := search.NewMockProvider()
	bad := search.NewMockProvider()
	bad.SetError(errors.New("provider exploded"))
	registry.Replace(search.TagMock, good)
	registry.Replace(search.TagDuckDuckGo, bad)

	d := New(registry, health, guard, time.Second, search.Config{MaxResults: 3})
	batches := d.Run(context.Background(), intent.Generic, "topic", []string{"only query"})

	if len(batches) != 1 {
		t.Fatalf("got %d batches, want 1", len(batches))
	}
	b := batches[0]

	if len(b.Results[search.TagMock]) == 0 {
		t.Error("healthy provider should still return hits")
	}
	if got := b.Results[search.TagDuckDuckGo]; got == nil || len(got) != 0 {
		t.Errorf("failed provider should map to an empty slice, got %v", got)
	}
	if b.Errors[search.TagDuckDuckGo] == nil {
		t.Error("failure should be recorded in the batch")
	}
	if health.Stats(search.TagDuckDuckGo).Errors != 1 {
		t.Error("failure should be recorded in provider health")
	}
}

func TestRunDeadlineReturnsPartialResults(t *testing.T) {
	registry, health, guard := testStack(10)
	slow := search.NewMockProvider()
	slow.SetDelay(300 * time.Millisecond)
	registry.Replace(search.TagMock, slow)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	d := New(registry, health, guard, time.Second, search.Config{MaxResults: 2})
	start := time.Now()
	batches := d.Run(ctx, intent.Generic, "topic", []string{"q1", "q2", "q3"})
	elapsed := time.Since(start)

	if len(batches) != 1 {
		t.Fatalf("got %d batches, want 1 (later queries skipped after deadline)", len(batches))
	}
	if batches[0].Errors[search.TagMock] == nil {
		t.Error("in-flight call should surface the cancellation")
	}
	if elapsed > 250*time.Millisecond {
		t.Errorf("run took %v; deadline should cancel the in-flight call", elapsed)
	}
}

func TestRunSkipsOpenCircuit(t *testing.T) {
	registry, health, guard := testStack(10)
	mock := search.NewMockProvider()
	registry.Replace(search.TagMock, mock)

	for i := 0; i < 3; i++ {
		health.RecordFailure(search.TagMock, 500)
	}

	d := New(registry, health, guard, time.Second, search.Config{MaxResults: 2})
	batches := d.Run(context.Background(), intent.Generic, "topic", []string{"q"})

	b := batches[0]
	if got := b.Skipped[search.TagMock]; got != search.ReasonCircuitOpen {
		t.Errorf("skip reason = %q, want %q", got, search.ReasonCircuitOpen)
	}
	if len(mock.Calls()) != 0 {
		t.Error("provider must not be called while its circuit is open")
	}
	if got := b.Results[search.TagMock]; got == nil || len(got) != 0 {
		t.Errorf("skipped provider should map to an empty slice, got %v", got)
	}
}

func TestRunSkipsDuplicateQueries(t *testing.T) {
	registry, health, guard := testStack(10)
	mock := search.NewMockProvider()
	registry.Replace(search.TagMock, mock)

	d := New(registry, health, guard, time.Second, search.Config{MaxResults: 2})
	batches := d.Run(context.Background(), intent.Generic, "topic", []string{"same query", "Same  Query"})

	if len(batches) != 2 {
		t.Fatalf("got %d batches, want 2", len(batches))
	}
	if got := batches[1].Skipped[search.TagMock]; got != search.ReasonDuplicateQuery {
		t.Errorf("second dispatch skip reason = %q, want %q", got, search.ReasonDuplicateQuery)
	}
	if len(mock.Calls()) != 1 {
		t.Errorf("provider saw %d calls, want 1", len(mock.Calls()))
	}
}

func TestRunBudgetExhaustion(t *testing.T) {
	registry, health, guard := testStack(2)
	mock := search.NewMockProvider()
	registry.Replace(search.TagMock, mock)

	d := New(registry, health, guard, time.Second, search.Config{MaxResults: 2})
	batches := d.Run(context.Background(), intent.Generic, "topic", []string{"q1", "q2", "q3"})

	if got := batches[2].Skipped[search.TagMock]; got != search.ReasonBudgetExhausted {
		t.Errorf("third dispatch skip reason = %q, want %q", got, search.ReasonBudgetExhausted)
	}
	if len(mock.Calls()) != 2 {
		t.Errorf("provider saw %d calls, want 2", len(mock.Calls()))
	}
}

func TestTallyCountsAttemptsNotSkips(t *testing.T) {
	batches := []Batch{
		{
			Results: map[string][]search.Result{"a": {{URL: "u"}}, "b": {}, "c": {}},
			Errors:  map[string]error{"b": errors.New("failed")},
			Skipped: map[string]string{"c": search.ReasonCircuitOpen},
		},
	}

	attempts, failures := Tally(batches)
	if attempts != 2 || failures != 1 {
		t.Errorf("tally = (%d, %d), want (2, 1)", attempts, failures)
	}
}

func TestFlattenDeterministicOrder(t *testing.T) {
	batches := []Batch{
		{
			Query: "q1",
			Results: map[string][]search.Result{
				"zz": {{URL: "https://z.example/1"}},
				"aa": {{URL: "https://a.example/1"}, {URL: "https://a.example/2"}},
			},
		},
		{
			Query:   "q2",
			Results: map[string][]search.Result{"mm": {{URL: "https://m.example/1"}}},
		},
	}

	flat := Flatten(batches)
	want := []string{"https://a.example/1", "https://a.example/2", "https://z.example/1", "https://m.example/1"}
	if len(flat) != len(want) {
		t.Fatalf("got %d hits, want %d", len(flat), len(want))
	}
	for i, u := range want {
		if flat[i].URL != u {
			t.Errorf("flat[%d] = %q, want %q", i, flat[i].URL, u)
		}
	}
}
