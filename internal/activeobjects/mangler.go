// Package activeobjects processes the secondary table-structured export.
// Two operations apply: whole tables are cleared by name glob, and rows of
// known tables get the username rename applied to the columns holding user
// keys. Table definitions always survive; only data is touched.
package activeobjects

import (
	"context"
	"io"
	"log/slog"

	"github.com/hupe1980/xmangle/internal/record"
	"github.com/hupe1980/xmangle/internal/rules"
	"github.com/hupe1980/xmangle/internal/xmlio"
)

// Namespace is the default namespace of the activeobjects export document.
const Namespace = "http://www.atlassian.com/ao"

// rowRule describes where one table denormalizes user keys: optional column
// match conditions plus the columns the rename applies to.
type rowRule struct {
	match   map[string]string
	rewrite []string
}

// userKeyTables registers every known plugin table that stores user keys in
// its rows. Tables absent from the registry pass through untouched unless a
// clear pattern matches them.
var userKeyTables = map[string]rowRule{
	"AO_60DB71_BOARDADMINS": {match: map[string]string{"TYPE": "USER"}, rewrite: []string{"KEY"}},
	"AO_60DB71_AUDITENTRY":  {rewrite: []string{"USER"}},
	"AO_60DB71_RAPIDVIEW":   {rewrite: []string{"OWNER_USER_NAME"}},
	"AO_8BAD1B_STATISTICS":  {rewrite: []string{"C_USERKEY"}},
}

// Mangler filters and rewrites the activeobjects export.
type Mangler struct {
	clearTables  *rules.PatternList
	rewriteUsers map[string]string
	logger       *slog.Logger
}

// New builds a Mangler from the activeobjects rule section. The username
// rename map comes from the entities section so that both datasets apply the
// same decisions.
func New(cfg rules.ActiveObjectRules, rewriteUsers map[string]string, logger *slog.Logger) (*Mangler, error) {
	clear, err := rules.CompilePatterns(cfg.ClearTables)
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Mangler{
		clearTables:  clear,
		rewriteUsers: rewriteUsers,
		logger:       logger,
	}, nil
}

// Process streams the activeobjects document from r to w.
func (m *Mangler) Process(ctx context.Context, r io.Reader, w io.Writer) (*xmlio.Stats, error) {
	stats, err := xmlio.Process(ctx, r, w, m.Filter, xmlio.Options{
		DefaultNamespace: Namespace,
		ProgressInterval: 10,
		Logger:           m.logger,
	})
	if err != nil {
		return stats, err
	}

	stats.Log(m.logger)

	return stats, nil
}

// Filter applies the table rules to one top-level element. Only <data>
// elements are candidates; everything else passes through.
func (m *Mangler) Filter(rec *record.Record) (*record.Record, error) {
	if rec.Kind != "data" {
		return rec, nil
	}

	table := rec.Get("tableName")

	if rule, ok := userKeyTables[table]; ok {
		m.rewriteRows(rec, table, rule)
		return rec, nil
	}

	if m.clearTables.Match(table) {
		m.logger.Info("clear table", slog.String("table", table))
		return nil, nil
	}

	return rec, nil
}

// rewriteRows applies the username rename to matching rows. Row values are
// positional: the nth value element of a row belongs to the nth declared
// column.
func (m *Mangler) rewriteRows(rec *record.Record, table string, rule rowRule) {
	cols := make(map[string]int)
	for i, c := range rec.ChildrenOf("column") {
		cols[c.Get("name")] = i
	}

	for _, row := range rec.ChildrenOf("row") {
		if !m.rowMatches(row, cols, rule.match) {
			continue
		}

		for _, col := range rule.rewrite {
			idx, ok := cols[col]
			if !ok || idx >= len(row.Children) {
				continue
			}

			cell := row.Children[idx]

			repl := m.rewriteUsers[cell.Text]
			if repl == "" {
				continue
			}

			m.logger.Info("rewrite row",
				slog.String("table", table),
				slog.String("column", col),
				slog.String("old", cell.Text),
				slog.String("new", repl),
			)
			cell.Text = repl
		}
	}
}

func (m *Mangler) rowMatches(row *record.Record, cols map[string]int, match map[string]string) bool {
	for col, want := range match {
		idx, ok := cols[col]
		if !ok || idx >= len(row.Children) {
			return false
		}

		if row.Children[idx].Text != want {
			return false
		}
	}

	return true
}
