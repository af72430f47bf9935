package search

import (
	"testing"
	"time"
)

func testBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Threshold:      3,
		Cooldown:       80 * time.Millisecond,
		InitialBackoff: 40 * time.Millisecond,
		MaxBackoff:     200 * time.Millisecond,
	}
}

func TestHealthOpensAfterConsecutiveFailures(t *testing.T) {
	h := NewHealth(testBreakerConfig(), 1)
	h.Register("prov", true)

	for i := 0; i < 2; i++ {
		h.RecordFailure("prov", 500)
	}
	if ok, _ := h.IsAvailable("prov"); !ok {
		t.Fatal("circuit should stay closed below the failure threshold")
	}

	h.RecordFailure("prov", 500)
	ok, reason := h.IsAvailable("prov")
	if ok {
		t.Fatal("circuit should open after three consecutive failures")
	}
	if reason != ReasonCircuitOpen {
		t.Errorf("reason = %q, want %q", reason, ReasonCircuitOpen)
	}
	if got := h.Stats("prov").State; got != "open" {
		t.Errorf("state = %q, want open", got)
	}
}

func TestHealthRecoversAfterCooldown(t *testing.T) {
	h := NewHealth(testBreakerConfig(), 1)
	h.Register("prov", true)

	for i := 0; i < 3; i++ {
		h.RecordFailure("prov", 500)
	}
	if ok, _ := h.IsAvailable("prov"); ok {
		t.Fatal("circuit should be open")
	}

	time.Sleep(120 * time.Millisecond)

	if ok, _ := h.IsAvailable("prov"); !ok {
		t.Fatal("circuit should allow a probe after the cooldown")
	}
	h.RecordSuccess("prov")
	if got := h.Stats("prov").State; got != "closed" {
		t.Errorf("state after successful probe = %q, want closed", got)
	}
	if ok, _ := h.IsAvailable("prov"); !ok {
		t.Fatal("provider should be available after recovery")
	}
}

func TestHealthSuccessResetsConsecutiveFailures(t *testing.T) {
	h := NewHealth(testBreakerConfig(), 1)
	h.Register("prov", true)

	h.RecordFailure("prov", 500)
	h.RecordFailure("prov", 500)
	h.RecordSuccess("prov")
	h.RecordFailure("prov", 500)
	h.RecordFailure("prov", 500)

	if ok, _ := h.IsAvailable("prov"); !ok {
		t.Fatal("interleaved success should reset the consecutive-failure count")
	}
	if got := h.Stats("prov").ConsecutiveFailures; got != 2 {
		t.Errorf("consecutive failures = %d, want 2", got)
	}
}

func TestHealthRateLimitBackoff(t *testing.T) {
	h := NewHealth(testBreakerConfig(), 1)
	h.Register("prov", true)

	h.RecordFailure("prov", 429)

	ok, reason := h.IsAvailable("prov")
	if ok {
		t.Fatal("provider should be backing off after a 429")
	}
	if reason != ReasonRateLimitedBackoff {
		t.Errorf("reason = %q, want %q", reason, ReasonRateLimitedBackoff)
	}

	// One 429 with 40ms initial backoff and jitter in [0.8, 1.2] clears
	// within 48ms.
	time.Sleep(60 * time.Millisecond)
	if ok, _ := h.IsAvailable("prov"); !ok {
		t.Fatal("backoff window should have expired")
	}
}

func TestHealthSuccessClearsBackoff(t *testing.T) {
	h := NewHealth(testBreakerConfig(), 1)
	h.Register("prov", true)

	h.RecordFailure("prov", 429)
	h.RecordSuccess("prov")

	if ok, _ := h.IsAvailable("prov"); !ok {
		t.Fatal("success should clear the backoff window")
	}
	if got := h.Stats("prov").BackoffUntil; !got.IsZero() {
		t.Errorf("backoff_until = %v, want zero", got)
	}
}

func TestHealthBackoffDelayBounds(t *testing.T) {
	cfg := BreakerConfig{
		Threshold:      3,
		Cooldown:       time.Minute,
		InitialBackoff: 5 * time.Second,
		MaxBackoff:     300 * time.Second,
	}
	h := NewHealth(cfg, 7)

	cases := []struct {
		k    int
		base time.Duration
	}{
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 20 * time.Second},
		{4, 40 * time.Second},
		{7, 300 * time.Second},  // 320s capped
		{20, 300 * time.Second}, // deep into the cap
	}
	for _, tc := range cases {
		got := h.backoffDelayLocked(tc.k)
		low := time.Duration(float64(tc.base) * 0.8)
		high := time.Duration(float64(tc.base) * 1.2)
		if got < low || got > high {
			t.Errorf("k=%d: delay %v outside jitter bounds [%v, %v]", tc.k, got, low, high)
		}
	}
}

func TestHealthBackoffJitterDeterministicBySeed(t *testing.T) {
	a := NewHealth(testBreakerConfig(), 42)
	b := NewHealth(testBreakerConfig(), 42)

	for k := 1; k <= 4; k++ {
		if da, db := a.backoffDelayLocked(k), b.backoffDelayLocked(k); da != db {
			t.Fatalf("k=%d: same seed produced different delays %v vs %v", k, da, db)
		}
	}
}

func TestHealthTripOn429Disabled(t *testing.T) {
	h := NewHealth(testBreakerConfig(), 1)
	h.Register("prov", false)

	for i := 0; i < 5; i++ {
		h.RecordFailure("prov", 429)
	}

	if got := h.Stats("prov").State; got != "closed" {
		t.Errorf("state = %q, want closed when 429s do not trip the breaker", got)
	}
	// Still unavailable, but from the backoff window rather than the circuit.
	if ok, reason := h.IsAvailable("prov"); ok || reason != ReasonRateLimitedBackoff {
		t.Errorf("availability = (%v, %q), want backing off", ok, reason)
	}
}

func TestHealthSkipAccounting(t *testing.T) {
	h := NewHealth(testBreakerConfig(), 1)
	h.Register("prov", true)

	h.MarkSkipped("prov", ReasonBudgetExhausted)
	h.MarkSkipped("prov", ReasonBudgetExhausted)
	h.MarkSkipped("prov", ReasonDuplicateQuery)

	stats := h.Stats("prov")
	if stats.SkipReasons[ReasonBudgetExhausted] != 2 {
		t.Errorf("budget_exhausted skips = %d, want 2", stats.SkipReasons[ReasonBudgetExhausted])
	}
	if stats.SkipReasons[ReasonDuplicateQuery] != 1 {
		t.Errorf("duplicate_query skips = %d, want 1", stats.SkipReasons[ReasonDuplicateQuery])
	}
}

func TestHealthReset(t *testing.T) {
	h := NewHealth(testBreakerConfig(), 1)
	h.Register("prov", true)

	for i := 0; i < 3; i++ {
		h.RecordFailure("prov", 500)
	}
	if ok, _ := h.IsAvailable("prov"); ok {
		t.Fatal("circuit should be open before reset")
	}

	h.Reset("prov")
	if ok, _ := h.IsAvailable("prov"); !ok {
		t.Fatal("reset should close the circuit")
	}
	if got := h.Stats("prov").Errors; got != 0 {
		t.Errorf("errors after reset = %d, want 0", got)
	}
}
