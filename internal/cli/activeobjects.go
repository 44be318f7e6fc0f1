package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/xmangle/internal/activeobjects"
	"github.com/hupe1980/xmangle/internal/logging"
	"github.com/hupe1980/xmangle/internal/rules"
)

func newActiveObjectsCommand() *cobra.Command {
	opts := &pipelineOptions{}

	cmd := &cobra.Command{
		Use:     "activeobjects <activeobjects-file>",
		Aliases: []string{"ao"},
		Short:   "Apply the rule set to an activeobjects export",
		Long: `Activeobjects processes the secondary table-structured export: whole
tables matching a clear pattern are emptied, and rows of known plugin
tables get the username renames from the entities section applied.

Table definitions always survive; only data rows are touched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runActiveObjects(cmd.Context(), cmd, args[0], opts)
		},
	}

	registerRulesFlag(cmd, opts)
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file path (default: stdout)")

	return cmd
}

func runActiveObjects(ctx context.Context, cmd *cobra.Command, inputPath string, opts *pipelineOptions) error {
	logger := logging.FromContext(ctx)

	ruleSet, err := rules.Load(opts.rulesFile)
	if err != nil {
		return &ExitError{Code: 2, Err: err}
	}

	m, err := activeobjects.New(ruleSet.ActiveObjects, ruleSet.Entities.RewriteUsers, logger)
	if err != nil {
		return &ExitError{Code: 2, Err: err}
	}

	in, err := os.Open(inputPath)
	if err != nil {
		return &ExitError{Code: 1, Err: fmt.Errorf("opening input: %w", err)}
	}
	defer in.Close()

	target, err := newTarget(ctx, opts.output)
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}
	defer target.Abort()

	stats, err := m.Process(ctx, in, target)
	if err != nil {
		return &ExitError{Code: 1, Err: fmt.Errorf("processing %s: %w", inputPath, err)}
	}

	if err := target.Commit(); err != nil {
		return &ExitError{Code: 1, Err: err}
	}

	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Kept %d of %d elements\n", stats.Output, stats.Input)

	return nil
}
