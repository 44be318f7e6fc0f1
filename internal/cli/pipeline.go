package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/xmangle/internal/entity"
	"github.com/hupe1980/xmangle/internal/logging"
	"github.com/hupe1980/xmangle/internal/output"
	"github.com/hupe1980/xmangle/internal/rules"
	"github.com/hupe1980/xmangle/internal/state"
	"github.com/hupe1980/xmangle/internal/xmlio"
)

// pipelineOptions are the flags shared by every command that runs an
// entities pass.
type pipelineOptions struct {
	rulesFile string
	stateFile string
	saveState string
	output    string
}

// registerRulesFlag adds the mandatory rule set flag to a cobra command.
func registerRulesFlag(cmd *cobra.Command, opts *pipelineOptions) {
	cmd.Flags().StringVarP(&opts.rulesFile, "rules", "r", "", "rule set YAML file (required)")
	_ = cmd.MarkFlagRequired("rules")
}

// registerStateFlags adds the state persistence flags to a cobra command.
func registerStateFlags(cmd *cobra.Command, opts *pipelineOptions) {
	f := cmd.Flags()
	f.StringVar(&opts.stateFile, "state", "", "load scan results from a state file instead of re-scanning")
	f.StringVar(&opts.saveState, "save-state", "", "write scan results to a state file")
}

// buildEntityMangler loads the rule set and primes a Mangler, either from a
// saved state file or by scanning inputPath.
func buildEntityMangler(ctx context.Context, inputPath string, opts *pipelineOptions) (*entity.Mangler, *rules.Rules, error) {
	logger := logging.FromContext(ctx)

	ruleSet, err := rules.Load(opts.rulesFile)
	if err != nil {
		return nil, nil, &ExitError{Code: 2, Err: err}
	}

	m, err := entity.New(ruleSet.Entities, logger)
	if err != nil {
		return nil, nil, &ExitError{Code: 2, Err: err}
	}

	if opts.stateFile != "" {
		st, loadErr := state.Load(opts.stateFile)
		if loadErr != nil {
			return nil, nil, &ExitError{Code: 1, Err: loadErr}
		}

		m.LoadState(st)
		logger.Info("state loaded", slog.String("path", opts.stateFile))

		return m, ruleSet, nil
	}

	in, err := os.Open(inputPath)
	if err != nil {
		return nil, nil, &ExitError{Code: 1, Err: fmt.Errorf("opening input: %w", err)}
	}
	defer in.Close()

	if err := m.Scan(ctx, in); err != nil {
		return nil, nil, &ExitError{Code: 1, Err: fmt.Errorf("scanning %s: %w", inputPath, err)}
	}

	return m, ruleSet, nil
}

// persistState writes the mangler's scan snapshot when --save-state is set.
func persistState(ctx context.Context, m *entity.Mangler, path string) error {
	if path == "" {
		return nil
	}

	if err := state.Save(path, m.StateSnapshot()); err != nil {
		return &ExitError{Code: 1, Err: err}
	}

	logging.FromContext(ctx).Info("state saved", slog.String("path", path))

	return nil
}

// newTarget builds the output destination: an atomic file target when a path
// is given, stdout otherwise.
func newTarget(ctx context.Context, path string) (output.Target, error) {
	if path == "" {
		return output.NewStdoutTarget(nil), nil
	}

	return output.NewFileTarget(path, output.WithLogger(logging.FromContext(ctx)))
}

// runEntitiesPass streams inputPath through the mangler into target. The
// target is committed only after a fully successful pass.
func runEntitiesPass(ctx context.Context, m *entity.Mangler, inputPath string, opts *pipelineOptions) (*xmlio.Stats, error) {
	in, err := os.Open(inputPath)
	if err != nil {
		return nil, &ExitError{Code: 1, Err: fmt.Errorf("opening input: %w", err)}
	}
	defer in.Close()

	target, err := newTarget(ctx, opts.output)
	if err != nil {
		return nil, &ExitError{Code: 1, Err: err}
	}
	defer target.Abort()

	stats, err := m.Process(ctx, in, target)
	if err != nil {
		return stats, &ExitError{Code: 1, Err: fmt.Errorf("processing %s: %w", inputPath, err)}
	}

	if err := target.Commit(); err != nil {
		return stats, &ExitError{Code: 1, Err: err}
	}

	return stats, nil
}
