// Package report turns a finished run into its markdown outputs. The
// dispatcher persists the reusable evidence bundle before anything else,
// then writes exactly one of the final or insufficient-evidence reports
// depending on the gate decision carried in the run context.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dossier/internal/artifacts"
	"dossier/internal/core"
	"dossier/internal/logger"
)

// Markdown outputs written under the run directory.
const (
	FinalReportFile        = "final_report.md"
	InsufficientReportFile = "insufficient_evidence_report.md"
	DraftFile              = "draft_degraded.md"
	CitationChecklistFile  = "citation_checklist.md"
	SourceQualityFile      = "source_quality_table.md"
	ErrorReportFile        = "error_report.md"
)

// Dispatcher selects and writes a run's reports.
type Dispatcher struct {
	writeReportOnFail bool
	writeDraftOnFail  bool
	now               func() time.Time
}

// NewDispatcher creates a report dispatcher. writeReportOnFail controls
// whether a gate failure produces the insufficient-evidence report (on by
// default in configuration; off leaves only the bundle and side tables).
// writeDraftOnFail additionally emits a clearly-labeled degraded draft.
func NewDispatcher(writeReportOnFail, writeDraftOnFail bool) *Dispatcher {
	return &Dispatcher{
		writeReportOnFail: writeReportOnFail,
		writeDraftOnFail:  writeDraftOnFail,
		now:               time.Now,
	}
}

// WithClock overrides the report timestamp source for tests.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// Dispatch persists the evidence bundle and writes the run's reports. evs
// must be the validated records in evidence-file order, and the cluster
// slices must be the same ones the triangulation index was built from, so
// citations line up with the persisted artifacts. After Dispatch returns,
// exactly one of the final or insufficient-evidence reports exists.
func (d *Dispatcher) Dispatch(rc core.RunContext, evs []core.Evidence, paraphrase, structured []core.Cluster) error {
	// The bundle survives every outcome, so it is written first.
	if err := artifacts.WriteBundle(rc.RunDir, evs, rc.Metrics); err != nil {
		return fmt.Errorf("persist evidence bundle: %w", err)
	}

	at := d.now().UTC()
	if err := write(rc.RunDir, CitationChecklistFile, renderCitationChecklist(rc, evs, at)); err != nil {
		return err
	}
	if err := write(rc.RunDir, SourceQualityFile, renderSourceQuality(evs)); err != nil {
		return err
	}

	if rc.AllowFinalReport {
		// A resumed run can flip the gate outcome; drop the stale
		// counterpart so only one report remains.
		_ = os.Remove(filepath.Join(rc.RunDir, InsufficientReportFile))
		if err := write(rc.RunDir, FinalReportFile, renderFinal(rc, evs, paraphrase, structured, at)); err != nil {
			return err
		}
		logger.Info("Final report written", "run_dir", rc.RunDir, "cards", rc.Metrics.Cards)
		return nil
	}

	_ = os.Remove(filepath.Join(rc.RunDir, FinalReportFile))
	if d.writeReportOnFail {
		if err := write(rc.RunDir, InsufficientReportFile, renderInsufficient(rc, at)); err != nil {
			return err
		}
		logger.Info("Insufficient-evidence report written",
			"run_dir", rc.RunDir, "reason", rc.ReasonFinalReportBlocked)
	} else {
		logger.Warn("Insufficient-evidence report suppressed by configuration",
			"run_dir", rc.RunDir, "reason", rc.ReasonFinalReportBlocked)
	}
	if d.writeDraftOnFail {
		if err := write(rc.RunDir, DraftFile, renderDraft(rc, evs, at)); err != nil {
			return err
		}
	}
	return nil
}

func write(runDir, name, content string) error {
	if err := os.WriteFile(filepath.Join(runDir, name), []byte(content), 0644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// WriteErrorNote records a minimal error report for a run that died before
// report dispatch. Best effort: the caller is already propagating the
// original error, so a write failure here is only logged.
func WriteErrorNote(runDir, topic string, runErr error) {
	var b strings.Builder
	fmt.Fprintf(&b, "# Run Error: %s\n\n", topic)
	b.WriteString("The run stopped before a report could be produced.\n\n")
	fmt.Fprintf(&b, "```\n%v\n```\n\n", runErr)
	b.WriteString("Evidence collected before the failure is preserved in this directory.\n")
	if err := write(runDir, ErrorReportFile, b.String()); err != nil {
		logger.Error("Could not write error report", err)
	}
}
