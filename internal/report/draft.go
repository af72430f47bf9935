package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"dossier/internal/core"
)

// renderDraft builds draft_degraded.md: a visible banner plus the raw
// evidence bullets, for readers who accept unverified material.
func renderDraft(rc core.RunContext, evs []core.Evidence, at time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# DRAFT (degraded): %s\n\n", rc.Query)
	b.WriteString("> ⚠️ **This draft did not pass the quality gates.** ")
	if rc.ReasonFinalReportBlocked != "" {
		fmt.Fprintf(&b, "Blocked: %s. ", rc.ReasonFinalReportBlocked)
	}
	b.WriteString("The material below is raw and largely single-source; verify before use.\n\n")
	fmt.Fprintf(&b, "Generated %s\n\n", at.Format("2006-01-02 15:04 MST"))
	b.WriteString("## Raw Evidence\n\n")
	for _, ev := range evs {
		fmt.Fprintf(&b, "- %s ([%s](%s))\n", strings.TrimSpace(ev.BestText()), ev.SourceDomain, ev.URL)
	}
	return b.String()
}

// renderCitationChecklist builds citation_checklist.md, one checkbox per
// record for manual verification. Triangulated records start checked since
// an independent domain already corroborates them.
func renderCitationChecklist(rc core.RunContext, evs []core.Evidence, at time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Citation Checklist: %s\n\n", rc.Query)
	fmt.Fprintf(&b, "%d records, generated %s\n\n", len(evs), at.Format("2006-01-02"))
	for _, ev := range evs {
		box := " "
		if ev.IsTriangulated {
			box = "x"
		}
		fmt.Fprintf(&b, "- [%s] [%s](%s) (%s, credibility %.2f)\n",
			box, sourceTitle(ev), ev.URL, ev.SourceDomain, ev.CredibilityScore)
	}
	return b.String()
}

// renderSourceQuality builds source_quality_table.md, aggregating the final
// evidence per domain, busiest domains first.
func renderSourceQuality(evs []core.Evidence) string {
	type domainRow struct {
		domain       string
		count        int
		credSum      float64
		primary      bool
		triangulated int
	}
	byDomain := make(map[string]*domainRow)
	for _, ev := range evs {
		r := byDomain[ev.SourceDomain]
		if r == nil {
			r = &domainRow{domain: ev.SourceDomain}
			byDomain[ev.SourceDomain] = r
		}
		r.count++
		r.credSum += ev.CredibilityScore
		r.primary = r.primary || ev.IsPrimarySource
		if ev.IsTriangulated {
			r.triangulated++
		}
	}
	rows := make([]*domainRow, 0, len(byDomain))
	for _, r := range byDomain {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].count != rows[j].count {
			return rows[i].count > rows[j].count
		}
		return rows[i].domain < rows[j].domain
	})

	var b strings.Builder
	b.WriteString("# Source Quality\n\n")
	b.WriteString("| Domain | Records | Avg credibility | Primary | Triangulated |\n")
	b.WriteString("|--------|---------|-----------------|---------|--------------|\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "| %s | %d | %.2f | %t | %d |\n",
			r.domain, r.count, r.credSum/float64(r.count), r.primary, r.triangulated)
	}
	return b.String()
}
