package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"dossier/internal/core"
)

// WriteMetrics persists metrics.json. Call it only after the evidence file
// is final so cards reflects exactly what was written.
func WriteMetrics(runDir string, m core.RunMetrics) error {
	return writeJSON(filepath.Join(runDir, MetricsFile), m)
}

// LoadMetrics reads metrics.json back. The report dispatcher goes through
// this instead of keeping metrics in memory so the written report can never
// drift from the file.
func LoadMetrics(runDir string) (core.RunMetrics, error) {
	var m core.RunMetrics
	data, err := os.ReadFile(filepath.Join(runDir, MetricsFile))
	if err != nil {
		return m, fmt.Errorf("read metrics: %w", err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("parse metrics: %w", err)
	}
	return m, nil
}

// ClusterRecord is the file form of one cluster. Indices are zero-based
// line numbers into evidence_cards.jsonl so readers can join the two files
// without IDs.
type ClusterRecord struct {
	ID      string                `json:"id"`
	Indices []int                 `json:"indices"`
	Domains []string              `json:"domains"`
	Size    int                   `json:"size"`
	Key     *core.StructuredClaim `json:"key,omitempty"`
}

// Triangulation is the triangulation.json document.
type Triangulation struct {
	ParaphraseClusters  []ClusterRecord `json:"paraphrase_clusters"`
	StructuredTriangles []ClusterRecord `json:"structured_triangles"`
}

// WriteTriangulation maps cluster members onto their line positions in the
// written evidence and persists triangulation.json. evs must be the slice
// WriteEvidence returned, in unchanged order.
func WriteTriangulation(runDir string, paraphrase, structured []core.Cluster, evs []core.Evidence) error {
	lineOf := make(map[string]int, len(evs))
	for i, ev := range evs {
		lineOf[ev.ID] = i
	}
	doc := Triangulation{
		ParaphraseClusters:  clusterRecords(paraphrase, lineOf),
		StructuredTriangles: clusterRecords(structured, lineOf),
	}
	return writeJSON(filepath.Join(runDir, TriangulationFile), doc)
}

// LoadTriangulation reads triangulation.json back for resume runs.
func LoadTriangulation(runDir string) (Triangulation, error) {
	var doc Triangulation
	data, err := os.ReadFile(filepath.Join(runDir, TriangulationFile))
	if err != nil {
		return doc, fmt.Errorf("read triangulation: %w", err)
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("parse triangulation: %w", err)
	}
	return doc, nil
}

func clusterRecords(clusters []core.Cluster, lineOf map[string]int) []ClusterRecord {
	out := make([]ClusterRecord, 0, len(clusters))
	for _, c := range clusters {
		indices := make([]int, 0, len(c.MemberIDs))
		for _, id := range c.MemberIDs {
			if line, ok := lineOf[id]; ok {
				indices = append(indices, line)
			}
		}
		sort.Ints(indices)
		out = append(out, ClusterRecord{
			ID:      c.ID,
			Indices: indices,
			Domains: c.Domains,
			Size:    len(indices),
			Key:     c.Key,
		})
	}
	return out
}
