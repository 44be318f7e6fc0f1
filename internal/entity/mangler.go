// Package entity implements the filter/rewrite pass over the primary
// entities export. A Mangler is built from the declarative rule set, fed the
// scan results (directly or via a saved state file), and then applied to
// every top-level record in a streaming pass.
//
// Rule categories apply in a fixed order: property drops, property rewrites,
// directory remapping, user retention, username renames, user attribute
// overrides, group allowlisting. Per record that means the retention check
// always observes the original key and rewrites only touch survivors —
// renaming before retention would silently un-keep a user whose original
// name is in the keep list.
package entity

import (
	"context"
	"io"
	"log/slog"

	"github.com/hupe1980/xmangle/internal/record"
	"github.com/hupe1980/xmangle/internal/rules"
	"github.com/hupe1980/xmangle/internal/state"
	"github.com/hupe1980/xmangle/internal/xmlio"
)

// Default scheme ids that exist in every deployment and are always retained.
const (
	defaultPermissionScheme  = "0"
	defaultFieldConfigScheme = "1"
)

var defaultFieldScreenIDs = []string{"1", "2", "3"}

// stringSet is a retention set. A nil set means "no constraint": every value
// passes. An empty non-nil set is a real constraint that rejects everything.
type stringSet map[string]bool

func (s stringSet) contains(v string) bool {
	if s == nil {
		return true
	}

	return s[v]
}

func toSet(values []string) stringSet {
	if len(values) == 0 {
		return nil
	}

	s := make(stringSet, len(values))
	for _, v := range values {
		s[v] = true
	}

	return s
}

func setToSlice(s stringSet) []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}

	return out
}

// Mangler filters and rewrites the entities export according to one rule
// set plus the scan-derived retention decisions.
type Mangler struct {
	cfg rules.EntityRules

	keepUsers    stringSet
	dropUsers    stringSet
	rewriteUsers map[string]string
	modifyUsers  map[string]map[string]string
	keepGroups   stringSet

	// Directory remapping: filterDirectories are the source ids records may
	// reference, keepDirectories the ids Directory records may carry after
	// the remap.
	filterDirectories  stringSet
	keepDirectories    stringSet
	rewriteDirectories map[string]string

	dropProperty    *rules.PatternList
	rewriteProperty map[string]string

	// Scan results.
	elementCount        int
	allUsers            stringSet
	projectUsers        stringSet
	projectIDs          stringSet
	internalDirectoryID string
	dropPropertyIDs     stringSet
	properties          map[string]string // property id → "entityName/propertyKey"
	schemeIDs           map[string]stringSet
	workflows           stringSet

	logger *slog.Logger
}

// New builds a Mangler from the entities rule section. The returned Mangler
// still needs a Scan or LoadState before it can Process.
func New(cfg rules.EntityRules, logger *slog.Logger) (*Mangler, error) {
	dropProp, err := rules.CompilePatterns(cfg.DropOSProperty)
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	m := &Mangler{
		cfg:             cfg,
		keepUsers:       toSet(cfg.KeepUsers),
		dropUsers:       toSet(cfg.DropUsers),
		rewriteUsers:    cfg.RewriteUsers,
		modifyUsers:     cfg.ModifyUsers,
		keepGroups:      toSet(cfg.KeepGroups),
		dropProperty:    dropProp,
		rewriteProperty: cfg.RewriteOSProperty,

		allUsers:        make(stringSet),
		projectUsers:    make(stringSet),
		projectIDs:      make(stringSet),
		dropPropertyIDs: make(stringSet),
		properties:      make(map[string]string),
		schemeIDs:       make(map[string]stringSet),
		workflows:       make(stringSet),

		logger: logger,
	}

	if len(cfg.RewriteDirectories) > 0 {
		m.rewriteDirectories = cfg.RewriteDirectories
		m.filterDirectories = make(stringSet, len(cfg.RewriteDirectories))
		m.keepDirectories = make(stringSet, len(cfg.RewriteDirectories))

		for old, mapped := range cfg.RewriteDirectories {
			m.filterDirectories[old] = true
			m.keepDirectories[mapped] = true
		}
	}

	m.seedSchemeDefaults()

	return m, nil
}

func (m *Mangler) seedSchemeDefaults() {
	m.schemeSet("PermissionScheme")[defaultPermissionScheme] = true
	m.schemeSet("FieldConfigScheme")[defaultFieldConfigScheme] = true

	for _, id := range defaultFieldScreenIDs {
		m.schemeSet("FieldScreen")[id] = true
	}
}

// schemeSet returns the retained-id set for a scheme kind, creating it on
// first use. Scheme sets are always real constraints, never nil.
func (m *Mangler) schemeSet(kind string) stringSet {
	s, ok := m.schemeIDs[kind]
	if !ok {
		s = make(stringSet)
		m.schemeIDs[kind] = s
	}

	return s
}

// resolveRetention merges project-linked users into the keep set and applies
// the drop list. Called after a scan or a state load, never mid-pass.
func (m *Mangler) resolveRetention() {
	if m.cfg.KeepProjectUsers {
		if m.keepUsers == nil {
			m.keepUsers = make(stringSet)
		}

		for u := range m.projectUsers {
			m.keepUsers[u] = true
		}
	}

	if m.keepUsers == nil {
		return
	}

	// Renamed users are retained under their original key; the rename itself
	// happens later in the pipeline.
	for old := range m.rewriteUsers {
		m.keepUsers[old] = true
	}

	for u := range m.dropUsers {
		delete(m.keepUsers, u)
	}
}

// LoadState primes the Mangler from a previously saved scan snapshot.
func (m *Mangler) LoadState(s *state.State) {
	m.elementCount = s.ElementCount
	m.allUsers = toSetAlways(s.AllUsers)
	m.projectUsers = toSetAlways(s.ProjectUsers)
	m.projectIDs = toSetAlways(s.ProjectIDs)
	m.internalDirectoryID = s.InternalDirectoryID
	m.dropPropertyIDs = toSetAlways(s.DropPropertyIDs)

	m.properties = make(map[string]string, len(s.Properties))
	for id, key := range s.Properties {
		m.properties[id] = key
	}

	m.schemeIDs = make(map[string]stringSet, len(s.SchemeIDs))
	for kind, ids := range s.SchemeIDs {
		m.schemeIDs[kind] = toSetAlways(ids)
	}

	m.seedSchemeDefaults()

	m.workflows = toSetAlways(s.Workflows)

	m.resolveRetention()
}

// StateSnapshot exports the scan results for persistence.
func (m *Mangler) StateSnapshot() *state.State {
	schemes := make(map[string][]string, len(m.schemeIDs))
	for kind, ids := range m.schemeIDs {
		schemes[kind] = setToSlice(ids)
	}

	s := &state.State{
		ElementCount:        m.elementCount,
		AllUsers:            setToSlice(m.allUsers),
		ProjectUsers:        setToSlice(m.projectUsers),
		ProjectIDs:          setToSlice(m.projectIDs),
		InternalDirectoryID: m.internalDirectoryID,
		DropPropertyIDs:     setToSlice(m.dropPropertyIDs),
		Properties:          m.properties,
		SchemeIDs:           schemes,
		Workflows:           setToSlice(m.workflows),
	}

	s.Normalize()

	return s
}

// Process streams the entities document from r to w, applying the full rule
// pipeline to every top-level record.
func (m *Mangler) Process(ctx context.Context, r io.Reader, w io.Writer) (*xmlio.Stats, error) {
	stats, err := xmlio.Process(ctx, r, w, m.Filter, xmlio.Options{
		ProgressInterval: 10000,
		Logger:           m.logger,
	})
	if err != nil {
		return stats, err
	}

	stats.Log(m.logger)

	return stats, nil
}

// Filter applies the rule pipeline to one record. A nil result drops the
// record; otherwise the returned record (mutated in place) is kept.
func (m *Mangler) Filter(rec *record.Record) (*record.Record, error) {
	if droppedKinds[rec.Kind] {
		m.logger.Debug("drop", slog.String("kind", rec.Kind))
		return nil, nil
	}

	if refRules, ok := entityRefs[rec.Kind]; ok {
		for i := range refRules {
			rule := &refRules[i]
			if rule.when != nil && !rule.when(rec) {
				continue
			}

			out := m.applyAttrRule(rec, rule)
			if out != nil && out.Kind == "User" {
				m.applyUserOverrides(out)
			}

			return out, nil
		}
	}

	switch rec.Kind {
	case "OSPropertyEntry":
		return m.filterPropertyEntry(rec), nil
	case "Directory":
		return m.keepByAttr(rec, "id", m.keepDirectories), nil
	case "DirectoryAttribute", "DirectoryOperation":
		return m.keepByAttr(rec, "directoryId", m.keepDirectories), nil
	case "Workflow":
		return m.keepByAttr(rec, "name", m.workflows), nil
	case "FieldLayout":
		if rec.Get("type") == "default" {
			return rec, nil
		}

		return m.keepByAttr(rec, "id", m.schemeSet("FieldLayout")), nil
	case "FieldConfigScheme":
		if rec.Get("fieldid") != "issuetype" {
			return rec, nil
		}

		return m.keepByAttr(rec, "id", m.schemeSet("FieldConfigScheme")), nil
	case "OptionConfiguration":
		if rec.Get("fieldid") != "issuetype" {
			return rec, nil
		}

		return m.keepByAttr(rec, "fieldconfig", m.schemeSet("FieldConfiguration")), nil
	}

	if propertyValueKinds[rec.Kind] {
		return m.filterPropertyValue(rec), nil
	}

	if sr, ok := schemeRefs[rec.Kind]; ok {
		return m.keepByAttr(rec, sr.attr, m.schemeSet(sr.set)), nil
	}

	return rec, nil
}

// applyAttrRule enforces retention sets, then applies renames and directory
// remaps on the surviving record.
func (m *Mangler) applyAttrRule(rec *record.Record, rule *attrRule) *record.Record {
	for _, a := range rule.keepUser {
		if !m.keepUsers.contains(rec.Get(a)) {
			m.logDrop(rec, a)
			return nil
		}
	}

	for _, a := range rule.keepGroup {
		if !m.keepGroups.contains(rec.Get(a)) {
			m.logDrop(rec, a)
			return nil
		}
	}

	for _, a := range rule.keepDir {
		if !m.filterDirectories.contains(rec.Get(a)) {
			m.logDrop(rec, a)
			return nil
		}
	}

	m.rewriteAttrs(rec, rule.renameUser, m.rewriteUsers)
	m.rewriteAttrs(rec, rule.remapDir, m.rewriteDirectories)

	return rec
}

func (m *Mangler) rewriteAttrs(rec *record.Record, attrs []string, mapping map[string]string) {
	if len(mapping) == 0 {
		return
	}

	for _, a := range attrs {
		old, ok := rec.Lookup(a)
		if !ok {
			continue
		}

		if repl := mapping[old]; repl != "" {
			m.logger.Info("rewrite",
				slog.String("kind", rec.Kind),
				slog.String("attr", a),
				slog.String("old", old),
				slog.String("new", repl),
			)
			rec.Set(a, repl)
		}
	}
}

// applyUserOverrides applies per-user attribute overrides. The override map
// is keyed by the username as it appears after the rename.
func (m *Mangler) applyUserOverrides(rec *record.Record) {
	if len(m.modifyUsers) == 0 {
		return
	}

	name := rec.Get("userName")

	overrides, ok := m.modifyUsers[name]
	if !ok {
		return
	}

	for attr, value := range overrides {
		m.logger.Info("modify user",
			slog.String("userName", name),
			slog.String("attr", attr),
			slog.String("value", value),
		)
		rec.Set(attr, value)
	}
}

func (m *Mangler) keepByAttr(rec *record.Record, attr string, keep stringSet) *record.Record {
	if !keep.contains(rec.Get(attr)) {
		m.logDrop(rec, attr)
		return nil
	}

	return rec
}

// filterPropertyEntry drops OSPropertyEntry records whose id was flagged by a
// drop pattern during the scan.
func (m *Mangler) filterPropertyEntry(rec *record.Record) *record.Record {
	if m.dropProperty.Empty() {
		return rec
	}

	if m.dropPropertyIDs[rec.Get("id")] {
		m.logDrop(rec, "id")
		return nil
	}

	return rec
}

// filterPropertyValue drops flagged property value records and applies exact
// key rewrites to the ones that remain.
func (m *Mangler) filterPropertyValue(rec *record.Record) *record.Record {
	id := rec.Get("id")

	if m.dropPropertyIDs[id] {
		m.logDrop(rec, "id")
		return nil
	}

	key, ok := m.properties[id]
	if !ok {
		return rec
	}

	repl, ok := m.rewriteProperty[key]
	if !ok {
		return rec
	}

	m.logger.Info("rewrite property",
		slog.String("kind", rec.Kind),
		slog.String("id", id),
		slog.String("key", key),
		slog.String("old", rec.Get("value")),
		slog.String("new", repl),
	)
	rec.Set("value", repl)

	return rec
}

func (m *Mangler) logDrop(rec *record.Record, attr string) {
	m.logger.Debug("drop",
		slog.String("kind", rec.Kind),
		slog.String("attr", attr),
		slog.String("value", rec.Get(attr)),
	)
}

func toSetAlways(values []string) stringSet {
	s := make(stringSet, len(values))
	for _, v := range values {
		s[v] = true
	}

	return s
}
