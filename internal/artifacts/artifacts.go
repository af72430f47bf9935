// Package artifacts owns the per-run directory: its naming, the evidence
// and metrics files inside it, and the always-written bundle under
// evidence/. Everything a run persists goes through this package so the
// layout stays fixed.
package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Fixed filenames inside a run directory.
const (
	EvidenceFile       = "evidence_cards.jsonl"
	EvidenceErrorsFile = "evidence_cards.errors.jsonl"
	MetricsFile        = "metrics.json"
	TriangulationFile  = "triangulation.json"
	CostSummaryFile    = "cost_summary.json"
	PlanFile           = "plan.md"
	SourceStrategyFile = "source_strategy.md"
	GuardrailsFile     = "acceptance_guardrails.md"

	BundleDir         = "evidence"
	BundleCardsFile   = "final_cards.jsonl"
	BundleSourcesFile = "sources.csv"
	BundleMetricsFile = "metrics_snapshot.json"
)

const maxSlugLen = 60

// Slug converts a topic into the filesystem token used in run directory
// names: lowercased, runs of non-alphanumerics collapsed to single hyphens.
func Slug(topic string) string {
	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(strings.TrimSpace(topic)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}
	slug := b.String()
	if len(slug) > maxSlugLen {
		slug = strings.TrimRight(slug[:maxSlugLen], "-")
	}
	if slug == "" {
		return "topic"
	}
	return slug
}

// NewRunDir creates <outputDir>/<topic-slug>_<timestamp>/ and returns its
// path.
func NewRunDir(outputDir, topic string, now time.Time) (string, error) {
	dir := filepath.Join(outputDir, fmt.Sprintf("%s_%s", Slug(topic), now.Format("20060102_150405")))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create run directory %s: %w", dir, err)
	}
	return dir, nil
}

// FindLatestRunDir returns the newest existing run directory for the topic.
// The timestamp suffix sorts lexicographically, so newest is the largest
// name.
func FindLatestRunDir(outputDir, topic string) (string, bool) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return "", false
	}
	prefix := Slug(topic) + "_"
	best := ""
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), prefix) && entry.Name() > best {
			best = entry.Name()
		}
	}
	if best == "" {
		return "", false
	}
	return filepath.Join(outputDir, best), true
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write file %s: %w", path, err)
	}
	return nil
}
