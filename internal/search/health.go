package search

import (
	"errors"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"dossier/internal/logger"
)

// Skip reasons recorded when a provider is bypassed instead of called.
const (
	ReasonCircuitOpen        = "circuit_open"
	ReasonRateLimitedBackoff = "rate_limited_backoff"
	ReasonBudgetExhausted    = "budget_exhausted"
	ReasonDuplicateQuery     = "duplicate_query"
	ReasonCostCeiling        = "cost_ceiling"
)

// BreakerConfig tunes the per-provider circuit breaker and 429 backoff.
type BreakerConfig struct {
	Threshold      uint32        // Consecutive failures before the circuit opens
	Cooldown       time.Duration // Open-state duration before a probe is allowed
	InitialBackoff time.Duration // Backoff after the first 429
	MaxBackoff     time.Duration // Cap on the exponential 429 backoff
}

// DefaultBreakerConfig mirrors the configuration defaults.
var DefaultBreakerConfig = BreakerConfig{
	Threshold:      3,
	Cooldown:       600 * time.Second,
	InitialBackoff: 5 * time.Second,
	MaxBackoff:     300 * time.Second,
}

var errRecordedFailure = errors.New("provider call failed")

type providerState struct {
	tripOn429    bool
	consecutive  int
	calls        int
	errors       int
	lastFailure  time.Time
	backoffUntil time.Time
	skipReasons  map[string]int
}

// ProviderStats is a point-in-time snapshot of one provider's health.
type ProviderStats struct {
	Tag                 string
	State               string // closed, half-open or open
	Calls               int
	Errors              int
	ConsecutiveFailures int
	LastFailure         time.Time
	BackoffUntil        time.Time
	SkipReasons         map[string]int
}

// Health tracks provider availability for the whole process. Circuit state
// and 429 backoff windows survive across runs; per-run accounting lives in
// RunGuard instead.
type Health struct {
	cfg BreakerConfig

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	state    map[string]*providerState
	rng      *rand.Rand
}

// NewHealth creates a tracker. The seed fixes backoff jitter for
// reproducible runs.
func NewHealth(cfg BreakerConfig, seed int64) *Health {
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultBreakerConfig.Threshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultBreakerConfig.Cooldown
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultBreakerConfig.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultBreakerConfig.MaxBackoff
	}
	return &Health{
		cfg:      cfg,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		state:    make(map[string]*providerState),
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Register sets up breaker state for a provider tag. Registering the same
// tag twice is a no-op, so runs can share a Health across the process.
func (h *Health) Register(tag string, tripOn429 bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ensureLocked(tag).tripOn429 = tripOn429
}

func (h *Health) ensureLocked(tag string) *providerState {
	if st, ok := h.state[tag]; ok {
		return st
	}
	st := &providerState{tripOn429: true, skipReasons: make(map[string]int)}
	h.state[tag] = st
	h.breakers[tag] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        tag,
		MaxRequests: 1,
		Interval:    0, // failure counts persist while closed
		Timeout:     h.cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= h.cfg.Threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Provider circuit state changed",
				"provider", name, "from", from.String(), "to", to.String())
		},
	})
	return st
}

// IsAvailable reports whether the provider may be called right now. When it
// may not, the second return value names why.
func (h *Health) IsAvailable(tag string) (bool, string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	st := h.ensureLocked(tag)
	if time.Now().Before(st.backoffUntil) {
		return false, ReasonRateLimitedBackoff
	}
	if h.breakers[tag].State() == gobreaker.StateOpen {
		return false, ReasonCircuitOpen
	}
	return true, ""
}

// RecordSuccess notes a completed call, resetting consecutive-failure
// tracking and the backoff window, and closing a half-open circuit.
func (h *Health) RecordSuccess(tag string) {
	h.mu.Lock()
	st := h.ensureLocked(tag)
	st.calls++
	st.consecutive = 0
	st.backoffUntil = time.Time{}
	cb := h.breakers[tag]
	h.mu.Unlock()

	cb.Execute(func() (interface{}, error) { return nil, nil })
}

// RecordFailure notes a failed call. A 429 (or 430) additionally starts an
// exponential backoff window keyed to the consecutive-failure count;
// whether a rate limit also counts toward opening the circuit depends on
// the provider's tripOn429 setting.
func (h *Health) RecordFailure(tag string, status int) {
	h.mu.Lock()
	st := h.ensureLocked(tag)
	st.calls++
	st.errors++
	st.consecutive++
	st.lastFailure = time.Now()
	cb := h.breakers[tag]

	trip := true
	if status == http.StatusTooManyRequests || status == 430 {
		st.backoffUntil = time.Now().Add(h.backoffDelayLocked(st.consecutive))
		trip = st.tripOn429
	}
	h.mu.Unlock()

	if trip {
		cb.Execute(func() (interface{}, error) { return nil, errRecordedFailure })
	}
}

// backoffDelayLocked computes min(initial * 2^(k-1), max) scaled by a
// jitter factor drawn uniformly from [0.8, 1.2].
func (h *Health) backoffDelayLocked(k int) time.Duration {
	if k < 1 {
		k = 1
	}
	delay := h.cfg.InitialBackoff
	for i := 1; i < k; i++ {
		delay *= 2
		if delay >= h.cfg.MaxBackoff {
			break
		}
	}
	if delay > h.cfg.MaxBackoff {
		delay = h.cfg.MaxBackoff
	}
	jitter := 0.8 + 0.4*h.rng.Float64()
	return time.Duration(float64(delay) * jitter)
}

// MarkSkipped counts a bypassed call for the strategy report.
func (h *Health) MarkSkipped(tag, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ensureLocked(tag).skipReasons[reason]++
}

// Stats snapshots one provider's health counters.
func (h *Health) Stats(tag string) ProviderStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	st := h.ensureLocked(tag)
	reasons := make(map[string]int, len(st.skipReasons))
	for k, v := range st.skipReasons {
		reasons[k] = v
	}
	return ProviderStats{
		Tag:                 tag,
		State:               h.breakers[tag].State().String(),
		Calls:               st.calls,
		Errors:              st.errors,
		ConsecutiveFailures: st.consecutive,
		LastFailure:         st.lastFailure,
		BackoffUntil:        st.backoffUntil,
		SkipReasons:         reasons,
	}
}

// AllStats snapshots every registered provider, keyed by tag.
func (h *Health) AllStats() map[string]ProviderStats {
	h.mu.Lock()
	tags := make([]string, 0, len(h.state))
	for tag := range h.state {
		tags = append(tags, tag)
	}
	h.mu.Unlock()

	out := make(map[string]ProviderStats, len(tags))
	for _, tag := range tags {
		out[tag] = h.Stats(tag)
	}
	return out
}

// Reset clears a provider's state, replacing its breaker. Used by tests.
func (h *Health) Reset(tag string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.state, tag)
	delete(h.breakers, tag)
	h.ensureLocked(tag)
}
