package artifacts

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"dossier/internal/core"
	"dossier/internal/cost"
)

// WriteBundle persists the evidence bundle under evidence/: final_cards.jsonl,
// sources.csv and metrics_snapshot.json. The bundle is written before the
// gate decision, so a run that fails its gates never loses the collected
// work.
func WriteBundle(runDir string, evs []core.Evidence, m core.RunMetrics) error {
	dir := filepath.Join(runDir, BundleDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create bundle directory: %w", err)
	}

	cards, err := os.Create(filepath.Join(dir, BundleCardsFile))
	if err != nil {
		return fmt.Errorf("create bundle cards: %w", err)
	}
	defer cards.Close()
	enc := json.NewEncoder(cards)
	for _, ev := range evs {
		if err := enc.Encode(ev); err != nil {
			return fmt.Errorf("write bundle record: %w", err)
		}
	}

	if err := writeSourcesCSV(filepath.Join(dir, BundleSourcesFile), evs); err != nil {
		return err
	}
	return writeJSON(filepath.Join(dir, BundleMetricsFile), m)
}

func writeSourcesCSV(path string, evs []core.Evidence) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file %s: %w", path, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	header := []string{
		"url", "source_domain", "provider", "credibility_score",
		"relevance_score", "is_primary_source", "is_triangulated", "collected_at",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, ev := range evs {
		row := []string{
			ev.URL,
			ev.SourceDomain,
			ev.Provider,
			strconv.FormatFloat(ev.CredibilityScore, 'f', 2, 64),
			strconv.FormatFloat(ev.RelevanceScore, 'f', 2, 64),
			strconv.FormatBool(ev.IsPrimarySource),
			strconv.FormatBool(ev.IsTriangulated),
			ev.CollectedAt.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteCostSummary records the run's estimated spend next to the metrics.
func WriteCostSummary(runDir string, s cost.Summary) error {
	return writeJSON(filepath.Join(runDir, CostSummaryFile), s)
}
