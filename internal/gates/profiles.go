package gates

import (
	"dossier/internal/intent"
)

// Supply labels how much usable evidence a run collected. The label picks
// which threshold column applies.
type Supply string

const (
	SupplyNormal      Supply = "normal"
	SupplyConstrained Supply = "constrained"
	SupplyLowEvidence Supply = "low_evidence"
)

// ClassifySupply buckets a run from the written metrics. The tiers are
// cumulative: a run must clear every column to earn the tier.
func ClassifySupply(uniqueDomains, credibleCards int, errRate float64) Supply {
	switch {
	case uniqueDomains >= 8 && credibleCards >= 30 && errRate < 0.20:
		return SupplyNormal
	case uniqueDomains >= 6 && credibleCards >= 25 && errRate < 0.30:
		return SupplyConstrained
	default:
		return SupplyLowEvidence
	}
}

// Strict targets back the High confidence label: a run that clears these has
// met the gates without any supply relaxation.
const (
	strictTriangulation = 0.35
	strictPrimary       = 0.40
)

// Profile is a named gate threshold table, selected by GATES_PROFILE.
type Profile struct {
	Name          string
	Triangulation map[Supply]float64
	Primary       map[Supply]float64
}

var profiles = map[string]Profile{
	"default": {
		Name: "default",
		Triangulation: map[Supply]float64{
			SupplyNormal:      0.30,
			SupplyConstrained: 0.25,
			SupplyLowEvidence: 0.25,
		},
		Primary: map[Supply]float64{
			SupplyNormal:      0.40,
			SupplyConstrained: 0.40,
			SupplyLowEvidence: 0.30,
		},
	},
	"discovery": {
		Name: "discovery",
		Triangulation: map[Supply]float64{
			SupplyNormal:      0.25,
			SupplyConstrained: 0.20,
			SupplyLowEvidence: 0.20,
		},
		Primary: map[Supply]float64{
			SupplyNormal:      0.30,
			SupplyConstrained: 0.25,
			SupplyLowEvidence: 0.20,
		},
	},
}

// ProfileByName returns the named profile, falling back to default for
// unknown names so a typo degrades instead of crashing a run.
func ProfileByName(name string) Profile {
	if p, ok := profiles[name]; ok {
		return p
	}
	return profiles["default"]
}

// thresholds resolves the effective gate values for a supply context. The
// cards gate comes from the intent table, not the profile: narrow intents
// legitimately need fewer sources.
func (p Profile) thresholds(s Supply, it intent.Intent) (tri, pri float64, cards int) {
	return p.Triangulation[s], p.Primary[s], intent.ThresholdsFor(it).MinSources
}
