package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newProcessCommand() *cobra.Command {
	opts := &pipelineOptions{}

	cmd := &cobra.Command{
		Use:   "process <entities-file>",
		Short: "Apply the rule set to an entities export",
		Long: `Process streams the entities export through the rule pipeline and writes
the filtered document.

Unless --state points at a saved scan, the input is scanned first to
collect the retention decisions. Retention always observes the original
attribute values; renames and attribute overrides apply only to records
that survive.

File output is atomic: the document is written to a temp file and
renamed into place only after the whole pass succeeds.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(cmd.Context(), cmd, args[0], opts)
		},
	}

	registerRulesFlag(cmd, opts)
	registerStateFlags(cmd, opts)
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file path (default: stdout)")

	return cmd
}

func runProcess(ctx context.Context, cmd *cobra.Command, inputPath string, opts *pipelineOptions) error {
	m, _, err := buildEntityMangler(ctx, inputPath, opts)
	if err != nil {
		return err
	}

	if err := persistState(ctx, m, opts.saveState); err != nil {
		return err
	}

	stats, err := runEntitiesPass(ctx, m, inputPath, opts)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Kept %d of %d records\n", stats.Output, stats.Input)

	return nil
}
