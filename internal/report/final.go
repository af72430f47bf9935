package report

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"dossier/internal/core"
	"dossier/internal/triangulate"
)

// citationIndex numbers evidence URLs in first-use order so inline markers
// and the Sources section agree.
type citationIndex struct {
	numbers map[string]int
	ordered []core.Evidence
}

func newCitationIndex() *citationIndex {
	return &citationIndex{numbers: make(map[string]int)}
}

// cite returns the record's citation number, assigning the next one on
// first use.
func (ci *citationIndex) cite(ev core.Evidence) int {
	if n, ok := ci.numbers[ev.URL]; ok {
		return n
	}
	n := len(ci.ordered) + 1
	ci.numbers[ev.URL] = n
	ci.ordered = append(ci.ordered, ev)
	return n
}

// markers renders the inline citation list for a set of records, one
// marker per member.
func (ci *citationIndex) markers(members []core.Evidence) string {
	parts := make([]string, 0, len(members))
	for _, ev := range members {
		parts = append(parts, fmt.Sprintf("[%d](%s)", ci.cite(ev), ev.URL))
	}
	return strings.Join(parts, ", ")
}

// renderFinal builds final_report.md. Key Findings lead with triangulated
// clusters in sealing order, followed by single-source primary records that
// carry a numeric claim. Key Numbers lists structured claims that are either
// corroborated across domains or anchored by a primary source.
func renderFinal(rc core.RunContext, evs []core.Evidence, paraphrase, structured []core.Cluster, at time.Time) string {
	byID := make(map[string]core.Evidence, len(evs))
	for _, ev := range evs {
		byID[ev.ID] = ev
	}
	cites := newCitationIndex()

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", rc.Query)
	fmt.Fprintf(&b, "Generated %s | Intent: %s | Depth: %s", at.Format("2006-01-02 15:04 MST"), rc.Intent, rc.Depth)
	if rc.Confidence != "" {
		fmt.Fprintf(&b, " | Confidence: %s", rc.Confidence)
	}
	b.WriteString("\n\n")

	b.WriteString("## Key Findings\n\n")
	findings := 0
	clusters := make([]core.Cluster, 0, len(paraphrase)+len(structured))
	clusters = append(clusters, paraphrase...)
	clusters = append(clusters, structured...)
	for _, c := range clusters {
		if !c.Triangulated() {
			continue
		}
		members := clusterMembers(c, byID)
		if len(members) == 0 {
			continue
		}
		fmt.Fprintf(&b, "- %s %s\n", findingText(c, members), cites.markers(members))
		findings++
	}
	for _, ev := range evs {
		if ev.IsTriangulated || !ev.IsPrimarySource {
			continue
		}
		if len(triangulate.ExtractClaims(ev.BestText(), ev.PublishedAt)) == 0 {
			continue
		}
		fmt.Fprintf(&b, "- %s %s\n", strings.TrimSpace(ev.BestText()), cites.markers([]core.Evidence{ev}))
		findings++
	}
	if findings == 0 {
		b.WriteString("No corroborated findings; see the source list below.\n")
	}
	b.WriteString("\n")

	if numbers := renderKeyNumbers(structured, byID, cites); numbers != "" {
		b.WriteString("## Key Numbers\n\n")
		b.WriteString(numbers)
		b.WriteString("\n")
	}

	b.WriteString("## Evidence Quality\n\n")
	writeMetricsTable(&b, rc.Metrics)
	b.WriteString("\n")

	b.WriteString("## Sources\n\n")
	for i, ev := range cites.ordered {
		fmt.Fprintf(&b, "%d. [%s](%s) (%s)\n", i+1, sourceTitle(ev), ev.URL, ev.SourceDomain)
	}
	return b.String()
}

// clusterMembers resolves member IDs against the written evidence,
// preserving cluster order and skipping records that were rejected at
// write time.
func clusterMembers(c core.Cluster, byID map[string]core.Evidence) []core.Evidence {
	members := make([]core.Evidence, 0, len(c.MemberIDs))
	for _, id := range c.MemberIDs {
		if ev, ok := byID[id]; ok {
			members = append(members, ev)
		}
	}
	return members
}

func findingText(c core.Cluster, members []core.Evidence) string {
	if t := strings.TrimSpace(c.RepresentativeText); t != "" {
		return t
	}
	return strings.TrimSpace(members[0].BestText())
}

// renderKeyNumbers emits one bullet per structured bucket whose claim is
// either multi-domain or backed by a primary source, citing every member.
func renderKeyNumbers(structured []core.Cluster, byID map[string]core.Evidence, cites *citationIndex) string {
	var b strings.Builder
	for _, c := range structured {
		if c.Key == nil {
			continue
		}
		members := clusterMembers(c, byID)
		if len(members) == 0 {
			continue
		}
		if !c.Triangulated() && !anyPrimary(members) {
			continue
		}
		fmt.Fprintf(&b, "- **%s**: %s %s\n", claimLabel(*c.Key), claimValue(*c.Key), cites.markers(members))
	}
	return b.String()
}

func anyPrimary(members []core.Evidence) bool {
	for _, ev := range members {
		if ev.IsPrimarySource {
			return true
		}
	}
	return false
}

// claimLabel is "entity metric, period" with the entity optional.
func claimLabel(key core.StructuredClaim) string {
	label := key.Metric
	if key.Entity != "" {
		label = key.Entity + " " + key.Metric
	}
	return label + ", " + key.Period
}

// claimValue formats the numeric side of a claim: "25.1%", "3.2pp",
// "4.5 billion USD". Large magnitudes are scaled to a word suffix so the
// report stays readable.
func claimValue(key core.StructuredClaim) string {
	v := key.Value
	suffix := ""
	switch {
	case math.Abs(v) >= 1e12:
		v, suffix = v/1e12, " trillion"
	case math.Abs(v) >= 1e9:
		v, suffix = v/1e9, " billion"
	case math.Abs(v) >= 1e6:
		v, suffix = v/1e6, " million"
	}
	formatted := strconv.FormatFloat(v, 'f', -1, 64) + suffix
	switch key.Unit {
	case "%", "pp":
		return formatted + key.Unit
	case "":
		return formatted
	default:
		return formatted + " " + key.Unit
	}
}

func writeMetricsTable(b *strings.Builder, m core.RunMetrics) {
	b.WriteString("| Metric | Value |\n|--------|-------|\n")
	fmt.Fprintf(b, "| Evidence cards | %d |\n", m.Cards)
	fmt.Fprintf(b, "| Union triangulation | %.2f |\n", m.UnionTriangulation)
	fmt.Fprintf(b, "| Primary-source share | %.2f |\n", m.PrimaryShare)
	fmt.Fprintf(b, "| Top domain share | %.2f |\n", m.TopDomainShare)
	fmt.Fprintf(b, "| Unique domains | %d |\n", m.UniqueDomains)
	fmt.Fprintf(b, "| Triangulated clusters | %d |\n", m.TriangulatedClusters)
	fmt.Fprintf(b, "| Provider error rate | %.2f |\n", m.ProviderErrorRate)
}

func sourceTitle(ev core.Evidence) string {
	if t := strings.TrimSpace(ev.Title); t != "" {
		return t
	}
	return ev.SourceDomain
}
