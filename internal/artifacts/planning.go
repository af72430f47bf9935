package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PlanInfo carries the run-start planning state the markdown artifacts are
// rendered from. The pipeline fills it once intent classification and query
// planning have run.
type PlanInfo struct {
	Topic            string
	Intent           string
	Depth            string
	GatesProfile     string
	Strict           bool
	Queries          []string
	Providers        []string
	Disambiguations  []string
	PrimaryPool      []string
	MinTriangulation float64
	MinPrimaryShare  float64
	MinCards         int
	DomainCap        float64
	CredibilityFloor float64
}

// WritePlanning renders plan.md, source_strategy.md and
// acceptance_guardrails.md at run start. They snapshot what the run set out
// to do; nothing reads them back.
func WritePlanning(runDir string, info PlanInfo) error {
	files := map[string]string{
		PlanFile:           renderPlan(info),
		SourceStrategyFile: renderSourceStrategy(info),
		GuardrailsFile:     renderGuardrails(info),
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(runDir, name), []byte(content), 0644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}

func renderPlan(info PlanInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Research Plan: %s\n\n", info.Topic)
	fmt.Fprintf(&b, "- Intent: %s\n", info.Intent)
	fmt.Fprintf(&b, "- Depth: %s\n", info.Depth)
	fmt.Fprintf(&b, "- Gate profile: %s\n", info.GatesProfile)
	fmt.Fprintf(&b, "- Strict mode: %t\n\n", info.Strict)

	if len(info.Disambiguations) > 0 {
		b.WriteString("## Ambiguity Notes\n\n")
		for _, note := range info.Disambiguations {
			fmt.Fprintf(&b, "- %s\n", note)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Planned Queries\n\n")
	for i, q := range info.Queries {
		fmt.Fprintf(&b, "%d. %s\n", i+1, q)
	}
	return b.String()
}

func renderSourceStrategy(info PlanInfo) string {
	var b strings.Builder
	b.WriteString("# Source Strategy\n\n")

	b.WriteString("## Providers\n\n")
	for _, tag := range info.Providers {
		fmt.Fprintf(&b, "- %s\n", tag)
	}

	b.WriteString("\n## Primary Sources\n\n")
	if len(info.PrimaryPool) == 0 {
		b.WriteString("No intent-scoped primary pool; official domains (.gov, .edu, international bodies) count as primary.\n")
		return b.String()
	}
	b.WriteString("Records from these domains count toward the primary-source share:\n\n")
	for _, domain := range info.PrimaryPool {
		fmt.Fprintf(&b, "- %s\n", domain)
	}
	return b.String()
}

func renderGuardrails(info PlanInfo) string {
	var b strings.Builder
	b.WriteString("# Acceptance Guardrails\n\n")
	b.WriteString("The final report is only written when the collected evidence clears every gate below. ")
	b.WriteString("Thresholds adapt to evidence supply; the values here are the run's starting point.\n\n")
	b.WriteString("| Gate | Threshold |\n")
	b.WriteString("|------|----------|\n")
	fmt.Fprintf(&b, "| Union triangulation | >= %.2f |\n", info.MinTriangulation)
	fmt.Fprintf(&b, "| Primary-source share | >= %.2f |\n", info.MinPrimaryShare)
	fmt.Fprintf(&b, "| Evidence cards | >= %d |\n", info.MinCards)
	fmt.Fprintf(&b, "| Single-domain share | <= %.2f |\n", info.DomainCap)
	fmt.Fprintf(&b, "| Credibility floor for singleton domains | %.2f |\n", info.CredibilityFloor)
	return b.String()
}
