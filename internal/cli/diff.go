package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/xmangle/internal/config"
	"github.com/hupe1980/xmangle/internal/diff"
)

type diffOptions struct {
	// Number of context lines around each hunk.
	context int
}

func newDiffCommand() *cobra.Command {
	opts := &diffOptions{}

	cmd := &cobra.Command{
		Use:   "diff <old-file> <new-file>",
		Short: "Compare two export documents",
		Long: `Diff computes a unified diff between two export documents, typically the
original export and a processed one, so the effect of a rule change can
be reviewed before an import is attempted.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(cmd, args[0], args[1], opts)
		},
	}

	cmd.Flags().IntVar(&opts.context, "context", 3, "number of context lines around each change")

	return cmd
}

func runDiff(cmd *cobra.Command, oldPath, newPath string, opts *diffOptions) error {
	oldDoc, err := os.ReadFile(oldPath)
	if err != nil {
		return &ExitError{Code: 1, Err: fmt.Errorf("reading %s: %w", oldPath, err)}
	}

	newDoc, err := os.ReadFile(newPath)
	if err != nil {
		return &ExitError{Code: 1, Err: fmt.Errorf("reading %s: %w", newPath, err)}
	}

	diffOpts := diff.DefaultOptions()
	diffOpts.OldLabel = oldPath
	diffOpts.NewLabel = newPath
	diffOpts.Context = opts.context

	result, err := diff.Compute(string(oldDoc), string(newDoc), diffOpts)
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}

	cfg := config.FromContext(cmd.Context())
	diff.Write(cmd.OutOrStdout(), result, !cfg.NoColor)

	return nil
}
