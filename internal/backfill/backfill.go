// Package backfill decides whether a run that missed its quality targets
// gets another collection pass, and what that pass should ask for. It only
// plans; the pipeline owns issuing the queries and re-running the filters.
package backfill

import (
	"fmt"

	"dossier/internal/core"
	"dossier/internal/intent"
	"dossier/internal/logger"
	"dossier/internal/normalize"
)

// Shortfall names the axis an expansion pass is trying to repair.
type Shortfall string

const (
	ShortfallTriangulation Shortfall = "triangulation"
	ShortfallPrimary       Shortfall = "primary"
	ShortfallCards         Shortfall = "cards"
	ShortfallLastMile      Shortfall = "last_mile"
)

// Fallback trigger thresholds for metrics records without stamped values.
const (
	defaultTriTarget     = 0.30
	defaultPrimaryTarget = 0.40
	lastMileWindow       = 0.05
	hitsPerQuery         = 4
	queriesPerPass       = 4
)

// Config tunes the controller. Zero values take the documented defaults.
type Config struct {
	MaxAttempts     int     // attempts allowed per run
	MinTimeFraction float64 // remaining-budget fraction required to start
	MinCards        int     // card floor that triggers (never gates) a pass
	Strict          bool    // strict runs need an explicit retry budget
	RetryBudget     bool    // BACKFILL_ON_FAIL: explicit permission to retry
}

// Expansion is one planned backfill pass.
type Expansion struct {
	Attempt int         // 1-based attempt this expansion is for
	Queries []string    // targeted queries, already deduplicated
	Hits    int         // per-provider hit count, deliberately small
	Reasons []Shortfall // triggers that justified the pass
}

// Controller evaluates backfill preconditions and triggers for one run.
type Controller struct {
	cfg    Config
	intent intent.Intent
}

// NewController builds a controller, filling unset Config fields.
func NewController(cfg Config, it intent.Intent) *Controller {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.MinTimeFraction <= 0 {
		cfg.MinTimeFraction = 0.20
	}
	if cfg.MinCards <= 0 {
		cfg.MinCards = 24
	}
	return &Controller{cfg: cfg, intent: it}
}

// Plan decides whether another pass runs. attempts counts completed passes;
// remaining is the unspent fraction of the wall budget. The zero Expansion
// and false mean the run should settle for what it has.
func (c *Controller) Plan(topic string, m core.RunMetrics, attempts int, remaining float64) (Expansion, bool) {
	if !c.preconditions(attempts, remaining) {
		return Expansion{}, false
	}
	reasons := c.triggers(m, attempts, remaining)
	if len(reasons) == 0 {
		return Expansion{}, false
	}

	exp := Expansion{
		Attempt: attempts + 1,
		Queries: c.queries(topic, reasons, attempts),
		Hits:    hitsPerQuery,
		Reasons: reasons,
	}
	logger.Info("Backfill pass planned",
		"attempt", exp.Attempt,
		"reasons", shortfallNames(reasons),
		"queries", len(exp.Queries))
	return exp, true
}

func (c *Controller) preconditions(attempts int, remaining float64) bool {
	if c.cfg.Strict && !c.cfg.RetryBudget {
		return false
	}
	if attempts >= c.cfg.MaxAttempts {
		return false
	}
	return remaining >= c.cfg.MinTimeFraction
}

// triggers collects every reason the current metrics justify another pass.
func (c *Controller) triggers(m core.RunMetrics, attempts int, remaining float64) []Shortfall {
	triTarget, priTarget := c.targets(m)

	var reasons []Shortfall
	if m.UnionTriangulation < triTarget {
		reasons = append(reasons, ShortfallTriangulation)
	}
	if m.PrimaryShare < priTarget {
		reasons = append(reasons, ShortfallPrimary)
	}
	if m.Cards < c.cfg.MinCards {
		reasons = append(reasons, ShortfallCards)
	}

	// Close-but-failing runs get one more targeted push late in the
	// budget; the label narrows the expansion rather than widening it.
	if attempts >= 2 && remaining >= 0.20 &&
		(withinWindow(m.UnionTriangulation, triTarget) || withinWindow(m.PrimaryShare, priTarget)) {
		reasons = append(reasons, ShortfallLastMile)
	}
	return reasons
}

// targets resolves the adaptive thresholds: the values stamped into the
// metrics record when present, the stock defaults otherwise.
func (c *Controller) targets(m core.RunMetrics) (tri, pri float64) {
	tri, pri = defaultTriTarget, defaultPrimaryTarget
	if m.EffectiveThresholds == nil {
		return tri, pri
	}
	if v, ok := m.EffectiveThresholds["union_triangulation"]; ok {
		tri = v
	}
	if v, ok := m.EffectiveThresholds["primary_share"]; ok {
		pri = v
	}
	return tri, pri
}

func withinWindow(value, target float64) bool {
	return value < target && target-value <= lastMileWindow
}

// axisTemplates expand a topic along orthogonal angles so repeat passes
// reach publishers the original phrasing missed.
var axisTemplates = map[Shortfall][]string{
	ShortfallTriangulation: {
		"%s independent analysis",
		"%s figures cross-checked",
		"%s counter position",
		"%s criticism",
		"%s second source",
		"%s verified data",
	},
	ShortfallCards: {
		"%s upstream drivers",
		"%s downstream effects",
		"%s risks and limitations",
		"%s market overview",
		"%s background",
		"%s expert commentary",
	},
	ShortfallLastMile: {
		"%s key figures",
		"%s official report",
	},
}

// queries builds the pass's query set. Primary site: hints go first since
// they are the most targeted repair; axis expansions fill the rest of the
// budget, one template per failing axis per round so no axis starves the
// others. Offsets rotate with the attempt so a retry reaches phrasings the
// previous pass did not issue and the per-provider dedup will not swallow.
func (c *Controller) queries(topic string, reasons []Shortfall, attempts int) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(q string) {
		if len(out) >= queriesPerPass || seen[q] {
			return
		}
		seen[q] = true
		out = append(out, q)
	}

	for _, reason := range reasons {
		if reason == ShortfallPrimary {
			for _, domain := range c.primaryHints(attempts) {
				add(fmt.Sprintf("%s site:%s", topic, domain))
			}
		}
	}

	for round := 0; len(out) < queriesPerPass; round++ {
		advanced := false
		for _, reason := range reasons {
			templates := axisTemplates[reason]
			if round >= len(templates) {
				continue
			}
			advanced = true
			add(fmt.Sprintf(templates[(attempts*2+round)%len(templates)], topic))
		}
		if !advanced {
			break
		}
	}
	return out
}

// primaryHints picks two pool domains for site: queries, rotating with the
// attempt so successive passes target different primaries. Intents without
// a pool fall back to the official-host wildcard.
func (c *Controller) primaryHints(attempts int) []string {
	pool := normalize.PrimaryPool(c.intent)
	if len(pool) == 0 {
		return []string{".gov"}
	}
	hints := make([]string, 0, 2)
	for i := 0; i < 2 && i < len(pool); i++ {
		hints = append(hints, pool[(attempts*2+i)%len(pool)])
	}
	return hints
}

func shortfallNames(reasons []Shortfall) []string {
	out := make([]string, len(reasons))
	for i, r := range reasons {
		out[i] = string(r)
	}
	return out
}
