// Package gates decides what kind of report a run has earned. Metrics are
// computed once from the written evidence set; the decision reads only the
// metrics record, so re-evaluating the same metrics.json always produces
// the same answer.
package gates

import (
	"fmt"
	"strings"

	"dossier/internal/core"
	"dossier/internal/intent"
	"dossier/internal/logger"
)

// Confidence labels attached to the gate decision.
const (
	ConfidenceHigh     = "🟢 High"
	ConfidenceModerate = "🟡 Moderate"
	ConfidenceLow      = "🔴 Low"
)

// Decision is the gate outcome for one run.
type Decision struct {
	Allow      bool   // final report permitted
	Reason     string // comma-joined failing predicates, empty when allowed
	Confidence string // ConfidenceHigh, ConfidenceModerate, or ConfidenceLow
	Supply     Supply // supply context the thresholds were picked for
	Profile    string // profile name the evaluation ran under
}

// Evaluator applies a gate profile to run metrics for one intent.
type Evaluator struct {
	profile Profile
	intent  intent.Intent
}

// NewEvaluator builds an evaluator for a GATES_PROFILE name and a run intent.
func NewEvaluator(profileName string, it intent.Intent) *Evaluator {
	return &Evaluator{profile: ProfileByName(profileName), intent: it}
}

// Evaluate decides the report kind from a metrics record, preferring the
// thresholds stamped into the record over recomputing them so that a
// reloaded metrics.json evaluates exactly as written.
func (e *Evaluator) Evaluate(m core.RunMetrics) Decision {
	supply := ClassifySupply(m.UniqueDomains, m.CredibleCards, m.ProviderErrorRate)
	tri, pri, cards := e.effective(m, supply)

	var failures []string
	if m.UnionTriangulation < tri {
		failures = append(failures, fmt.Sprintf("union_triangulation %.2f < %.2f", m.UnionTriangulation, tri))
	}
	if m.PrimaryShare < pri {
		failures = append(failures, fmt.Sprintf("primary_share %.2f < %.2f", m.PrimaryShare, pri))
	}
	if m.Cards < cards {
		failures = append(failures, fmt.Sprintf("cards %d < %d", m.Cards, cards))
	}

	d := Decision{
		Allow:   len(failures) == 0,
		Reason:  strings.Join(failures, ", "),
		Supply:  supply,
		Profile: e.profile.Name,
	}
	switch {
	case !d.Allow:
		d.Confidence = ConfidenceLow
	case m.UnionTriangulation >= strictTriangulation && m.PrimaryShare >= strictPrimary:
		d.Confidence = ConfidenceHigh
	default:
		d.Confidence = ConfidenceModerate
	}

	logger.Info("Gate decision",
		"allow", d.Allow,
		"supply", string(d.Supply),
		"profile", d.Profile,
		"confidence", d.Confidence,
		"reason", d.Reason)
	return d
}

// effective returns the thresholds for a decision: the stamped values when
// the metrics record carries them, the profile table otherwise.
func (e *Evaluator) effective(m core.RunMetrics, supply Supply) (tri, pri float64, cards int) {
	tri, pri, cards = e.profile.thresholds(supply, e.intent)
	if m.EffectiveThresholds == nil {
		return tri, pri, cards
	}
	if v, ok := m.EffectiveThresholds["union_triangulation"]; ok {
		tri = v
	}
	if v, ok := m.EffectiveThresholds["primary_share"]; ok {
		pri = v
	}
	if v, ok := m.EffectiveThresholds["cards"]; ok {
		cards = int(v)
	}
	return tri, pri, cards
}
