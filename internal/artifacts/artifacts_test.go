package artifacts

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"dossier/internal/core"
	"dossier/internal/cost"
	"dossier/internal/search"
)

func card(id, domain string) core.Evidence {
	return core.Evidence{
		ID:               id,
		Provider:         search.TagMock,
		URL:              "https://" + domain + "/" + id,
		SourceDomain:     domain,
		Title:            "Record " + id,
		Snippet:          "Snippet for " + id,
		Claim:            "Claim " + id,
		SupportingText:   "Supporting text for " + id,
		SubtopicName:     "subtopic",
		CollectedAt:      time.Date(2025, 8, 25, 10, 0, 0, 0, time.UTC),
		CredibilityScore: 0.8,
		RelevanceScore:   0.5,
		Confidence:       0.4,
		Reachability:     1,
		Stance:           core.StanceNeutral,
	}
}

func TestSlug(t *testing.T) {
	tests := []struct {
		topic string
		want  string
	}{
		{"Latest Travel & Tourism Trends 2024", "latest-travel-tourism-trends-2024"},
		{"GDP growth (Q3/2025)!", "gdp-growth-q3-2025"},
		{"  solar  ", "solar"},
		{"C++ vs Rust", "c-vs-rust"},
		{"!!!", "topic"},
	}
	for _, tt := range tests {
		if got := Slug(tt.topic); got != tt.want {
			t.Errorf("Slug(%q) = %q, want %q", tt.topic, got, tt.want)
		}
	}

	long := Slug(strings.Repeat("a", 80))
	if len(long) != maxSlugLen {
		t.Errorf("long slug length = %d, want %d", len(long), maxSlugLen)
	}
}

func TestNewRunDirNaming(t *testing.T) {
	parent := t.TempDir()
	at := time.Date(2025, 8, 25, 10, 30, 0, 0, time.UTC)

	dir, err := NewRunDir(parent, "Solar Capacity", at)
	if err != nil {
		t.Fatalf("NewRunDir: %v", err)
	}
	if got := filepath.Base(dir); got != "solar-capacity_20250825_103000" {
		t.Errorf("run dir name = %q", got)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Errorf("run dir was not created: %v", err)
	}
}

func TestFindLatestRunDir(t *testing.T) {
	parent := t.TempDir()
	for _, name := range []string{
		"solar-capacity_20250824_090000",
		"solar-capacity_20250825_103000",
		"other-topic_20250826_000000",
	} {
		if err := os.MkdirAll(filepath.Join(parent, name), 0755); err != nil {
			t.Fatal(err)
		}
	}
	// A stray file with a newer timestamp must be ignored.
	if err := os.WriteFile(filepath.Join(parent, "solar-capacity_20250826_000000"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	dir, ok := FindLatestRunDir(parent, "Solar Capacity")
	if !ok {
		t.Fatal("expected a run dir for the topic")
	}
	if got := filepath.Base(dir); got != "solar-capacity_20250825_103000" {
		t.Errorf("latest = %q, want the newest directory", got)
	}

	if _, ok := FindLatestRunDir(parent, "unseen topic"); ok {
		t.Error("found a run dir for a topic that has none")
	}
}

func TestEvidenceRoundTrip(t *testing.T) {
	runDir := t.TempDir()

	e2 := card("e2", "b.com")
	e2.BestQuote = "Capacity grew 24% in 2024."
	e2.IsTriangulated = true
	e2.ClusterID = "c1"
	e2.DisputedBy = []string{"e9"}
	evs := []core.Evidence{card("e1", "a.com"), e2, card("e3", "c.org")}

	written, rejected, err := WriteEvidence(runDir, evs)
	if err != nil {
		t.Fatalf("WriteEvidence: %v", err)
	}
	if len(written) != 3 || rejected != 0 {
		t.Fatalf("written %d rejected %d, want 3 and 0", len(written), rejected)
	}

	got, err := ReadEvidence(runDir)
	if err != nil {
		t.Fatalf("ReadEvidence: %v", err)
	}
	if len(got) != len(evs) {
		t.Fatalf("read %d records, want %d", len(got), len(evs))
	}
	for i := range evs {
		if !reflect.DeepEqual(got[i], evs[i]) {
			t.Errorf("record %d changed across the round trip:\n got %+v\nwant %+v", i, got[i], evs[i])
		}
	}
}

func TestWriteEvidenceRejectsInvalidRecords(t *testing.T) {
	runDir := t.TempDir()

	noSnippet := card("e2", "b.com")
	noSnippet.Snippet = "   "
	badScore := card("e3", "c.org")
	badScore.CredibilityScore = 1.5
	badProvider := card("e4", "d.net")
	badProvider.Provider = "google"

	written, rejected, err := WriteEvidence(runDir, []core.Evidence{
		card("e1", "a.com"), noSnippet, badScore, badProvider,
	})
	if err != nil {
		t.Fatalf("WriteEvidence: %v", err)
	}
	if len(written) != 1 || rejected != 3 {
		t.Fatalf("written %d rejected %d, want 1 and 3", len(written), rejected)
	}
	if written[0].ID != "e1" {
		t.Errorf("kept record = %s, want e1", written[0].ID)
	}

	// The cards file must hold exactly the written records.
	data, err := os.ReadFile(filepath.Join(runDir, EvidenceFile))
	if err != nil {
		t.Fatal(err)
	}
	if lines := strings.Count(string(data), "\n"); lines != 1 {
		t.Errorf("evidence file has %d lines, want 1", lines)
	}

	errData, err := os.ReadFile(filepath.Join(runDir, EvidenceErrorsFile))
	if err != nil {
		t.Fatal(err)
	}
	errLines := strings.Split(strings.TrimSpace(string(errData)), "\n")
	if len(errLines) != 3 {
		t.Fatalf("errors file has %d lines, want 3", len(errLines))
	}
	var first rejectedRecord
	if err := json.Unmarshal([]byte(errLines[0]), &first); err != nil {
		t.Fatalf("parse first rejected record: %v", err)
	}
	if first.Record.ID != "e2" || !strings.Contains(first.Error, "snippet") {
		t.Errorf("first rejection = %s %q, want e2 with a snippet reason", first.Record.ID, first.Error)
	}
}

func TestWriteTriangulationIndices(t *testing.T) {
	runDir := t.TempDir()
	evs := []core.Evidence{
		card("e1", "a.com"), card("e2", "b.com"), card("e3", "c.org"),
		card("e4", "d.net"), card("e5", "e.gov"),
	}
	written, _, err := WriteEvidence(runDir, evs)
	if err != nil {
		t.Fatal(err)
	}

	paraphrase := []core.Cluster{{
		ID:        "c1",
		MemberIDs: []string{"e4", "e2", "ghost"},
		Domains:   []string{"b.com", "d.net"},
	}}
	structured := []core.Cluster{{
		ID:        "s1",
		MemberIDs: []string{"e1", "e5"},
		Domains:   []string{"a.com", "e.gov"},
		Key:       &core.StructuredClaim{Metric: "rate", Period: "2024", Value: 3.9, Unit: "%"},
	}}
	if err := WriteTriangulation(runDir, paraphrase, structured, written); err != nil {
		t.Fatalf("WriteTriangulation: %v", err)
	}

	doc, err := LoadTriangulation(runDir)
	if err != nil {
		t.Fatalf("LoadTriangulation: %v", err)
	}
	if len(doc.ParaphraseClusters) != 1 || len(doc.StructuredTriangles) != 1 {
		t.Fatalf("cluster counts = %d/%d, want 1/1",
			len(doc.ParaphraseClusters), len(doc.StructuredTriangles))
	}

	para := doc.ParaphraseClusters[0]
	if !reflect.DeepEqual(para.Indices, []int{1, 3}) {
		t.Errorf("paraphrase indices = %v, want [1 3]", para.Indices)
	}
	if para.Size != 2 {
		t.Errorf("size = %d, want 2 once the unknown member is dropped", para.Size)
	}

	tri := doc.StructuredTriangles[0]
	if !reflect.DeepEqual(tri.Indices, []int{0, 4}) {
		t.Errorf("structured indices = %v, want [0 4]", tri.Indices)
	}
	if tri.Key == nil || tri.Key.Value != 3.9 {
		t.Errorf("structured key = %+v, want value 3.9", tri.Key)
	}
}

func TestMetricsRoundTrip(t *testing.T) {
	runDir := t.TempDir()
	m := core.RunMetrics{
		Cards:                12,
		UnionTriangulation:   0.42,
		PrimaryShare:         0.25,
		TopDomainShare:       0.17,
		UniqueDomains:        9,
		CredibleCards:        10,
		TriangulatedCards:    5,
		TriangulatedClusters: 2,
		ProviderErrorRate:    0.1,
		EffectiveThresholds: map[string]float64{
			"union_triangulation": 0.30,
			"primary_share":       0.40,
			"cards":               3,
			"domain_cap":          0.25,
		},
	}
	if err := WriteMetrics(runDir, m); err != nil {
		t.Fatalf("WriteMetrics: %v", err)
	}

	got, err := LoadMetrics(runDir)
	if err != nil {
		t.Fatalf("LoadMetrics: %v", err)
	}
	if !reflect.DeepEqual(got, m) {
		t.Errorf("metrics changed across the round trip:\n got %+v\nwant %+v", got, m)
	}

	// Stable key names are part of the contract.
	data, err := os.ReadFile(filepath.Join(runDir, MetricsFile))
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{`"cards"`, `"union_triangulation"`, `"primary_share"`, `"provider_error_rate"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("metrics.json is missing key %s", key)
		}
	}
}

func TestWriteBundle(t *testing.T) {
	runDir := t.TempDir()
	evs := []core.Evidence{card("e1", "a.com"), card("e2", "b.com"), card("e3", "c.org")}

	if err := WriteBundle(runDir, evs, core.RunMetrics{Cards: 3}); err != nil {
		t.Fatalf("WriteBundle: %v", err)
	}

	for _, name := range []string{BundleCardsFile, BundleSourcesFile, BundleMetricsFile} {
		if _, err := os.Stat(filepath.Join(runDir, BundleDir, name)); err != nil {
			t.Errorf("bundle file %s missing: %v", name, err)
		}
	}

	file, err := os.Open(filepath.Join(runDir, BundleDir, BundleSourcesFile))
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()
	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("parse sources.csv: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("sources.csv has %d rows, want header plus 3", len(rows))
	}
	if rows[0][0] != "url" || rows[1][1] != "a.com" {
		t.Errorf("unexpected csv layout: header %v, first row %v", rows[0], rows[1])
	}

	if err := WriteCostSummary(runDir, cost.Summary{TotalUSD: 0.03}); err != nil {
		t.Fatalf("WriteCostSummary: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(runDir, CostSummaryFile))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"total_usd"`) {
		t.Error("cost summary is missing total_usd")
	}
}

func TestWritePlanningFiles(t *testing.T) {
	runDir := t.TempDir()
	info := PlanInfo{
		Topic:            "Solar Capacity",
		Intent:           "stats",
		Depth:            "standard",
		GatesProfile:     "default",
		Queries:          []string{"solar capacity", "solar capacity statistics 2025"},
		Providers:        []string{"duckduckgo", "worldbank"},
		Disambiguations:  []string{"interpreting capacity as generation capacity, not storage"},
		PrimaryPool:      []string{"oecd.org", "worldbank.org"},
		MinTriangulation: 0.30,
		MinPrimaryShare:  0.40,
		MinCards:         3,
		DomainCap:        0.25,
		CredibilityFloor: 0.60,
	}
	if err := WritePlanning(runDir, info); err != nil {
		t.Fatalf("WritePlanning: %v", err)
	}

	plan, err := os.ReadFile(filepath.Join(runDir, PlanFile))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"# Research Plan: Solar Capacity", "1. solar capacity", "interpreting capacity"} {
		if !strings.Contains(string(plan), want) {
			t.Errorf("plan.md is missing %q", want)
		}
	}

	strategy, err := os.ReadFile(filepath.Join(runDir, SourceStrategyFile))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(strategy), "oecd.org") {
		t.Error("source_strategy.md is missing the primary pool")
	}

	guardrails, err := os.ReadFile(filepath.Join(runDir, GuardrailsFile))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{">= 0.30", ">= 0.40", ">= 3", "<= 0.25"} {
		if !strings.Contains(string(guardrails), want) {
			t.Errorf("acceptance_guardrails.md is missing %q", want)
		}
	}
}
