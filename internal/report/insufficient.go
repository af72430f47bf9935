package report

import (
	"fmt"
	"strings"
	"time"

	"dossier/internal/core"
	"dossier/internal/intent"
)

// gateRow is one line of the gate-results table.
type gateRow struct {
	name      string
	metricKey string
	value     string
	threshold string
	pass      bool
}

// renderInsufficient builds insufficient_evidence_report.md: the literal
// gate values against their effective thresholds, intent-specific recovery
// steps, and troubleshooting notes for each failing metric. Thresholds come
// from the stamps in the run metrics so the table matches what the gates
// actually evaluated.
func renderInsufficient(rc core.RunContext, at time.Time) string {
	rows := gateRows(rc.Metrics, intent.Intent(rc.Intent))

	var b strings.Builder
	fmt.Fprintf(&b, "# Insufficient Evidence: %s\n\n", rc.Query)
	fmt.Fprintf(&b, "Generated %s | Intent: %s | Depth: %s\n\n", at.Format("2006-01-02 15:04 MST"), rc.Intent, rc.Depth)
	b.WriteString("The collected evidence did not clear the quality gates, so no final report was produced. ")
	b.WriteString("Everything gathered is preserved under evidence/ for a later retry.\n\n")
	if rc.ReasonFinalReportBlocked != "" {
		fmt.Fprintf(&b, "Blocked: %s\n\n", rc.ReasonFinalReportBlocked)
	}

	b.WriteString("## Gate Results\n\n")
	b.WriteString("| Gate | Value | Threshold | Status |\n|------|-------|-----------|--------|\n")
	for _, row := range rows {
		status := "pass"
		if !row.pass {
			status = "fail"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", row.name, row.value, row.threshold, status)
	}
	b.WriteString("\n")

	b.WriteString("## Next Steps\n\n")
	for _, step := range nextSteps(intent.Intent(rc.Intent)) {
		fmt.Fprintf(&b, "- %s\n", step)
	}
	b.WriteString("\n")

	if failing := failingKeys(rows); len(failing) > 0 {
		b.WriteString("## Troubleshooting\n\n")
		for _, key := range failing {
			fmt.Fprintf(&b, "**%s**\n\n", key)
			for _, tip := range troubleshooting[key] {
				fmt.Fprintf(&b, "- %s\n", tip)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

// gateRows compares the run metrics against the stamped thresholds. The
// fallbacks only fire for metrics files written before stamping existed.
func gateRows(m core.RunMetrics, it intent.Intent) []gateRow {
	tri := stamped(m, "union_triangulation", 0.30)
	pri := stamped(m, "primary_share", 0.40)
	cards := int(stamped(m, "cards", float64(intent.ThresholdsFor(it).MinSources)))
	return []gateRow{
		{"Union triangulation", "union_triangulation",
			fmt.Sprintf("%.2f", m.UnionTriangulation), fmt.Sprintf(">= %.2f", tri), m.UnionTriangulation >= tri},
		{"Primary-source share", "primary_share",
			fmt.Sprintf("%.2f", m.PrimaryShare), fmt.Sprintf(">= %.2f", pri), m.PrimaryShare >= pri},
		{"Evidence cards", "cards",
			fmt.Sprintf("%d", m.Cards), fmt.Sprintf(">= %d", cards), m.Cards >= cards},
	}
}

func stamped(m core.RunMetrics, key string, fallback float64) float64 {
	if v, ok := m.EffectiveThresholds[key]; ok {
		return v
	}
	return fallback
}

func failingKeys(rows []gateRow) []string {
	var keys []string
	for _, row := range rows {
		if !row.pass {
			keys = append(keys, row.metricKey)
		}
	}
	return keys
}

// nextStepsTable holds the intent-specific recovery actions the
// insufficient report suggests. Unknown intents fall back to Generic.
var nextStepsTable = map[intent.Intent][]string{
	intent.Travel: {
		"Add official tourism statistics sources: unwto.org, national tourism boards, eurostat tourism tables.",
		"Widen the date window; seasonal tourism reporting often lags a quarter or more.",
		"Query country- or region-specific phrasings of the topic.",
	},
	intent.Stats: {
		"Query the statistical agencies directly (oecd.org, worldbank.org, national offices) with the indicator name.",
		"Try the indicator's technical name and its common abbreviation as separate queries.",
		"Extend the period; the latest year may not be published yet.",
	},
	intent.News: {
		"Re-run with a narrower freshness window to surface wire coverage.",
		"Add agency sources (reuters.com, apnews.com) via site-scoped queries.",
		"Very recent stories lack corroboration; retry after coverage settles.",
	},
	intent.Academic: {
		"Search the open indexes directly (openalex.org, arxiv.org) for the core terms.",
		"Use the field's terminology rather than lay phrasing.",
		"Include review articles; they corroborate primary studies.",
	},
	intent.Medical: {
		"Prefer clinical sources (who.int, cdc.gov, nih.gov) via site-scoped queries.",
		"Use the condition's clinical name alongside the common one.",
		"Guideline documents corroborate individual studies; query for them explicitly.",
	},
	intent.Product: {
		"Add independent review sites and the manufacturer's specification pages.",
		"Query model numbers and release years to pin down the version.",
		"Benchmark or teardown data counts as primary material.",
	},
	intent.Local: {
		"Name the municipality or region explicitly in the topic.",
		"Add local government portals and regional outlets as sources.",
		"Local coverage is sparse; consider a non-strict first pass.",
	},
	intent.Encyclopedia: {
		"Query narrower subtopics; broad overviews dilute corroboration.",
		"Add a second reference work so background claims can triangulate.",
	},
	intent.HowTo: {
		"Query the specific tool or platform version.",
		"Official documentation counts as primary; add the vendor's docs domain.",
	},
	intent.Regulatory: {
		"Query the regulation's identifier (act number, directive code) directly.",
		"Official registers (.gov, europa.eu) are primary; add them via site-scoped queries.",
		"Law-firm briefings corroborate official texts.",
	},
	intent.Generic: {
		"Sharpen the topic with a concrete entity, metric, or period.",
		"Increase depth to widen the query plan.",
		"Enable more providers via SEARCH_PROVIDERS.",
	},
}

func nextSteps(it intent.Intent) []string {
	if steps, ok := nextStepsTable[it]; ok {
		return steps
	}
	return nextStepsTable[intent.Generic]
}

// troubleshooting maps a failing metric to its usual causes.
var troubleshooting = map[string][]string{
	"union_triangulation": {
		"Syndicated copies of one story collapse into a single record at dedup; corroboration needs genuinely independent outlets.",
		"Check evidence_cards.jsonl for near-identical snippets across domains: wire copy does not triangulate.",
		"The credibility floor drops weak singleton domains, which can leave too few records to cluster.",
	},
	"primary_share": {
		"Vertical providers (worldbank, openalex) may be disabled or unkeyed; check the skip reasons in the log.",
		"Site-scoped backfill queries raise primary share; allow more attempts or wall time.",
		"Some intents have no primary pool and rely on .gov/.edu domains alone.",
	},
	"cards": {
		"Provider budgets or the cost ceiling may have cut collection short; check the skip reasons in the log.",
		"Raise depth or the per-provider call budget.",
		"The topic may be too narrow; broaden one term and re-run.",
	},
}
