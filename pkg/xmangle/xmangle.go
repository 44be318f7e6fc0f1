// Package xmangle provides a public Go API for filtering and rewriting Jira
// XML exports according to a declarative rule set.
//
// This package exposes the mangling pipeline as a library, allowing
// programmatic use without the CLI.
//
// Basic usage:
//
//	var out bytes.Buffer
//	result, err := xmangle.ProcessEntities(ctx, "entitymangler.xml", &out,
//	    xmangle.WithRulesFile("rules.yaml"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("kept %d of %d records\n", result.Output, result.Input)
package xmangle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/hupe1980/xmangle/internal/activeobjects"
	"github.com/hupe1980/xmangle/internal/entity"
	"github.com/hupe1980/xmangle/internal/rules"
	"github.com/hupe1980/xmangle/internal/state"
)

// discardLogger returns a logger that discards all output.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Option configures the mangling pipeline.
// Use the With* functions to create Options.
type Option func(*options)

// options holds the internal configuration for the pipeline.
type options struct {
	rulesFile string
	rulesData []byte

	loadState string
	saveState string

	logger *slog.Logger
}

// WithRulesFile loads the rule set from a YAML file.
func WithRulesFile(path string) Option { return func(o *options) { o.rulesFile = path } }

// WithRulesData parses the rule set from raw YAML bytes. Takes precedence
// over WithRulesFile.
func WithRulesData(data []byte) Option { return func(o *options) { o.rulesData = data } }

// WithLoadState primes the pipeline from a saved scan state file instead of
// re-scanning the input.
func WithLoadState(path string) Option { return func(o *options) { o.loadState = path } }

// WithSaveState writes the scan results to a state file after the pass.
func WithSaveState(path string) Option { return func(o *options) { o.saveState = path } }

// WithLogger sets a logger for the pipeline. Defaults to a discarding logger.
func WithLogger(logger *slog.Logger) Option { return func(o *options) { o.logger = logger } }

// Result summarizes one processing pass.
type Result struct {
	// Input is the number of top-level records read.
	Input int

	// Output is the number of records kept.
	Output int
}

// Finding flags an attribute that still carries a rejected username.
type Finding struct {
	Kind      string
	Attribute string
	Value     string
}

// Report is the result of a verify pass.
type Report struct {
	// Findings are best-effort diagnostics, not proven defects.
	Findings []Finding

	// Records is the number of records scanned.
	Records int

	// Flagged is the number of records with at least one finding.
	Flagged int
}

// Clean reports whether the pass produced no findings.
func (r *Report) Clean() bool { return len(r.Findings) == 0 }

// ProcessEntities applies the rule set to the entities export at inputPath
// and writes the filtered document to w.
//
// Unless WithLoadState is given, the input is scanned first to collect the
// retention decisions.
func ProcessEntities(ctx context.Context, inputPath string, w io.Writer, opts ...Option) (*Result, error) {
	o, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}

	m, err := buildMangler(ctx, inputPath, o)
	if err != nil {
		return nil, err
	}

	if err := saveStateIfRequested(m, o); err != nil {
		return nil, err
	}

	in, err := os.Open(inputPath)
	if err != nil {
		return nil, fmt.Errorf("opening input: %w", err)
	}
	defer in.Close()

	stats, err := m.Process(ctx, in, w)
	if err != nil {
		return nil, err
	}

	return &Result{Input: stats.Input, Output: stats.Output}, nil
}

// ProcessActiveObjects applies the rule set to the activeobjects export at
// inputPath and writes the filtered document to w.
func ProcessActiveObjects(ctx context.Context, inputPath string, w io.Writer, opts ...Option) (*Result, error) {
	o, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}

	ruleSet, err := loadRules(o)
	if err != nil {
		return nil, err
	}

	m, err := activeobjects.New(ruleSet.ActiveObjects, ruleSet.Entities.RewriteUsers, o.logger)
	if err != nil {
		return nil, err
	}

	in, err := os.Open(inputPath)
	if err != nil {
		return nil, fmt.Errorf("opening input: %w", err)
	}
	defer in.Close()

	stats, err := m.Process(ctx, in, w)
	if err != nil {
		return nil, err
	}

	return &Result{Input: stats.Input, Output: stats.Output}, nil
}

// Scan reads the entities export at inputPath and collects the retention
// decisions. Use WithSaveState to persist them for later passes.
func Scan(ctx context.Context, inputPath string, opts ...Option) (*Result, error) {
	o, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}

	m, err := buildMangler(ctx, inputPath, o)
	if err != nil {
		return nil, err
	}

	if err := saveStateIfRequested(m, o); err != nil {
		return nil, err
	}

	snapshot := m.StateSnapshot()

	return &Result{Input: snapshot.ElementCount}, nil
}

// Verify re-scans the document at inputPath and reports every attribute
// whose value is a username that should no longer appear.
//
// The scan state must come from the original export (WithLoadState): a scan
// of the processed document would no longer see the dropped users.
func Verify(ctx context.Context, inputPath string, opts ...Option) (*Report, error) {
	o, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}

	m, err := buildMangler(ctx, inputPath, o)
	if err != nil {
		return nil, err
	}

	in, err := os.Open(inputPath)
	if err != nil {
		return nil, fmt.Errorf("opening input: %w", err)
	}
	defer in.Close()

	report, err := m.Verify(ctx, in)
	if err != nil {
		return nil, err
	}

	out := &Report{
		Records: report.Records,
		Flagged: report.Flagged,
	}

	for _, f := range report.Findings {
		out.Findings = append(out.Findings, Finding{
			Kind:      f.Kind,
			Attribute: f.Attribute,
			Value:     f.Value,
		})
	}

	return out, nil
}

// applyOptions collects the given options and applies defaults.
func applyOptions(opts []Option) (*options, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	if o.rulesFile == "" && len(o.rulesData) == 0 {
		return nil, errors.New("a rule set is required: use WithRulesFile or WithRulesData")
	}

	if o.logger == nil {
		o.logger = discardLogger()
	}

	return o, nil
}

// loadRules parses the configured rule source.
func loadRules(o *options) (*rules.Rules, error) {
	if len(o.rulesData) > 0 {
		return rules.Parse(o.rulesData)
	}

	return rules.Load(o.rulesFile)
}

// buildMangler loads the rule set and primes an entity mangler, either from a
// saved state file or by scanning inputPath.
func buildMangler(ctx context.Context, inputPath string, o *options) (*entity.Mangler, error) {
	ruleSet, err := loadRules(o)
	if err != nil {
		return nil, err
	}

	m, err := entity.New(ruleSet.Entities, o.logger)
	if err != nil {
		return nil, err
	}

	if o.loadState != "" {
		st, loadErr := state.Load(o.loadState)
		if loadErr != nil {
			return nil, loadErr
		}

		m.LoadState(st)

		return m, nil
	}

	in, err := os.Open(inputPath)
	if err != nil {
		return nil, fmt.Errorf("opening input: %w", err)
	}
	defer in.Close()

	if err := m.Scan(ctx, in); err != nil {
		return nil, err
	}

	return m, nil
}

// saveStateIfRequested persists the scan snapshot when WithSaveState is set.
func saveStateIfRequested(m *entity.Mangler, o *options) error {
	if o.saveState == "" {
		return nil
	}

	return state.Save(o.saveState, m.StateSnapshot())
}
