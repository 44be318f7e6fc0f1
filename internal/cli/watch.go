package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/xmangle/internal/logging"
	"github.com/hupe1980/xmangle/internal/watch"
)

type watchOptions struct {
	pipelineOptions

	// Watch-specific options.
	debounce time.Duration
}

func newWatchCommand() *cobra.Command {
	opts := &watchOptions{}

	cmd := &cobra.Command{
		Use:   "watch <entities-file>",
		Short: "Watch the rule set for changes and auto-process",
		Long: `Watch monitors the rule set (and the input export) and re-runs the
process pass whenever one of them changes, so a rule set can be iterated
on without re-invoking the CLI after every edit.

File changes are debounced to avoid rapid re-runs. Each pass reports the
record counts and the output path.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), cmd, args[0], opts)
		},
	}

	registerRulesFlag(cmd, &opts.pipelineOptions)
	registerStateFlags(cmd, &opts.pipelineOptions)

	f := cmd.Flags()
	f.StringVarP(&opts.output, "output", "o", "", "output file path (required)")
	f.DurationVar(&opts.debounce, "debounce", 500*time.Millisecond, "debounce interval for file changes")

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, inputPath string, opts *watchOptions) error {
	if opts.output == "" {
		return &ExitError{Code: 2, Err: fmt.Errorf("--output (-o) is required for watch mode")}
	}

	// The rule set is reloaded on every run so edits take effect.
	runFn := func(fnCtx context.Context) (*watch.RunResult, error) {
		m, _, err := buildEntityMangler(fnCtx, inputPath, &opts.pipelineOptions)
		if err != nil {
			return nil, err
		}

		if err := persistState(fnCtx, m, opts.saveState); err != nil {
			return nil, err
		}

		stats, err := runEntitiesPass(fnCtx, m, inputPath, &opts.pipelineOptions)
		if err != nil {
			return nil, err
		}

		return &watch.RunResult{
			Input:      stats.Input,
			Output:     stats.Output,
			OutputPath: opts.output,
		}, nil
	}

	watchOpts := watch.Options{
		Files:    []string{opts.rulesFile, inputPath},
		Debounce: opts.debounce,
		Logger:   logging.FromContext(ctx),
		Out:      cmd.ErrOrStderr(),
	}

	return watch.Run(ctx, watchOpts, runFn)
}
