package entity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/hupe1980/xmangle/internal/record"
	"github.com/hupe1980/xmangle/internal/xmlio"
)

// Finding flags an attribute that still carries a username the run was
// supposed to drop or rename away.
type Finding struct {
	Kind      string `json:"kind"`
	Attribute string `json:"attribute"`
	Value     string `json:"value"`
}

// Report is the result of a verify pass. It is a best-effort diagnostic: an
// attribute value that merely collides with a rejected username (a group
// named like a user, an unrelated id) is reported anyway, so findings are
// leads to check, not proven defects.
type Report struct {
	Findings []Finding      `json:"findings"`
	Records  int            `json:"records"`
	Flagged  int            `json:"flagged"`
	ByKind   map[string]int `json:"byKind"`
}

// Clean reports whether the pass produced no findings.
func (r *Report) Clean() bool {
	return len(r.Findings) == 0
}

// JSON returns the report as indented JSON.
func (r *Report) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling report: %w", err)
	}

	return append(data, '\n'), nil
}

// WriteText writes a human-readable summary of the report.
func (r *Report) WriteText(w io.Writer) {
	if r.Clean() {
		_, _ = fmt.Fprintf(w, "No stale user references found in %d records.\n", r.Records)
		return
	}

	for _, f := range r.Findings {
		_, _ = fmt.Fprintf(w, "%s %s=%q\n", f.Kind, f.Attribute, f.Value)
	}

	_, _ = fmt.Fprintf(w, "\n%d/%d records carry stale user references\n", r.Flagged, r.Records)

	kinds := make([]string, 0, len(r.ByKind))
	for k := range r.ByKind {
		kinds = append(kinds, k)
	}

	sort.Strings(kinds)

	for _, k := range kinds {
		_, _ = fmt.Fprintf(w, "\t%-30s %8d\n", k, r.ByKind[k])
	}
}

// Verify re-scans a document and reports every attribute whose value is a
// username that should no longer appear: dropped users plus the original
// names of renamed users.
func (m *Mangler) Verify(ctx context.Context, r io.Reader) (*Report, error) {
	rejected := m.rejectedUsers()

	report := &Report{ByKind: make(map[string]int)}

	stats, err := xmlio.Scan(ctx, r, func(rec *record.Record) error {
		flagged := false

		for _, a := range rec.Attrs {
			if !rejected[a.Value] {
				continue
			}

			flagged = true

			report.Findings = append(report.Findings, Finding{
				Kind:      rec.Kind,
				Attribute: a.Name,
				Value:     a.Value,
			})

			m.logger.Warn("stale user reference",
				slog.String("kind", rec.Kind),
				slog.String("attr", a.Name),
				slog.String("value", a.Value),
			)
		}

		if flagged {
			report.Flagged++
			report.ByKind[rec.Kind]++
		}

		return nil
	}, xmlio.Options{Logger: m.logger})
	if err != nil {
		return nil, err
	}

	report.Records = stats.Input

	return report, nil
}

// rejectedUsers is the set of usernames that must not appear in a processed
// document: every known user outside the keep set, minus rename targets,
// plus the original names of renamed users.
func (m *Mangler) rejectedUsers() stringSet {
	rejected := make(stringSet)

	if m.keepUsers != nil {
		for u := range m.allUsers {
			if !m.keepUsers[u] {
				rejected[u] = true
			}
		}
	}

	for _, renamed := range m.rewriteUsers {
		delete(rejected, renamed)
	}

	for old := range m.rewriteUsers {
		rejected[old] = true
	}

	return rejected
}
