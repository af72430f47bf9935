package artifacts

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dossier/internal/core"
	"dossier/internal/search"
)

// rejectedRecord is one line of the errors file.
type rejectedRecord struct {
	Error  string        `json:"error"`
	Record core.Evidence `json:"record"`
}

// WriteEvidence writes evidence_cards.jsonl one object per line, routing
// records that fail schema validation to evidence_cards.errors.jsonl with
// their reason. The returned slice holds exactly the written records in
// file order; metrics, triangulation indices and the bundle must be built
// from it so counts and line positions stay aligned with the file.
func WriteEvidence(runDir string, evs []core.Evidence) ([]core.Evidence, int, error) {
	cards, err := os.Create(filepath.Join(runDir, EvidenceFile))
	if err != nil {
		return nil, 0, fmt.Errorf("create evidence file: %w", err)
	}
	defer cards.Close()

	errsFile, err := os.Create(filepath.Join(runDir, EvidenceErrorsFile))
	if err != nil {
		return nil, 0, fmt.Errorf("create evidence errors file: %w", err)
	}
	defer errsFile.Close()

	enc := json.NewEncoder(cards)
	errEnc := json.NewEncoder(errsFile)

	written := make([]core.Evidence, 0, len(evs))
	rejected := 0
	for _, ev := range evs {
		if verr := validate(ev); verr != nil {
			if err := errEnc.Encode(rejectedRecord{Error: verr.Error(), Record: ev}); err != nil {
				return written, rejected, fmt.Errorf("write rejected record: %w", err)
			}
			rejected++
			continue
		}
		if err := enc.Encode(ev); err != nil {
			return written, rejected, fmt.Errorf("write evidence record: %w", err)
		}
		written = append(written, ev)
	}
	return written, rejected, nil
}

// ReadEvidence loads evidence_cards.jsonl back in file order.
func ReadEvidence(runDir string) ([]core.Evidence, error) {
	file, err := os.Open(filepath.Join(runDir, EvidenceFile))
	if err != nil {
		return nil, fmt.Errorf("open evidence file: %w", err)
	}
	defer file.Close()

	var out []core.Evidence
	scanner := bufio.NewScanner(file)
	// Snippets are capped at 500 chars but supporting text is not; leave
	// generous headroom per line.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var ev core.Evidence
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			return nil, fmt.Errorf("parse evidence line %d: %w", len(out)+1, err)
		}
		out = append(out, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read evidence file: %w", err)
	}
	return out, nil
}

// validate enforces the evidence schema at write time: identity and
// provenance fields present, snippet non-empty, provider and stance from
// their enums, scores inside the unit interval.
func validate(ev core.Evidence) error {
	if ev.ID == "" {
		return errors.New("id is empty")
	}
	if ev.URL == "" {
		return errors.New("url is empty")
	}
	if strings.TrimSpace(ev.Snippet) == "" {
		return errors.New("snippet is empty")
	}
	if ev.SourceDomain == "" {
		return errors.New("source_domain is empty")
	}
	if !validProvider(ev.Provider) {
		return fmt.Errorf("provider %q is not a known tag", ev.Provider)
	}
	if ev.CollectedAt.IsZero() {
		return errors.New("collected_at is unset")
	}
	switch ev.Stance {
	case core.StanceSupports, core.StanceDisputes, core.StanceNeutral:
	default:
		return fmt.Errorf("stance %q is not supports, disputes or neutral", ev.Stance)
	}

	scores := []struct {
		name  string
		value float64
	}{
		{"credibility_score", ev.CredibilityScore},
		{"relevance_score", ev.RelevanceScore},
		{"confidence", ev.Confidence},
		{"controversy_score", ev.ControversyScore},
		{"reachability", ev.Reachability},
	}
	for _, s := range scores {
		if s.value < 0 || s.value > 1 {
			return fmt.Errorf("%s %.3f outside [0,1]", s.name, s.value)
		}
	}
	return nil
}

func validProvider(tag string) bool {
	for _, known := range search.KnownTags {
		if tag == known {
			return true
		}
	}
	return false
}
