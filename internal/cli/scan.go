package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/hupe1980/xmangle/internal/logging"
)

func newScanCommand() *cobra.Command {
	opts := &pipelineOptions{}

	cmd := &cobra.Command{
		Use:   "scan <entities-file>",
		Short: "Scan an entities export and save the retention decisions",
		Long: `Scan reads the entities export once and collects everything a later
process pass needs: the full user population, users linked to projects,
the internal directory, flagged property ids, and the scheme ids the
retained projects reference.

The results are written to a state file so that process, verify, and the
activeobjects pass can reuse them without re-reading the export.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd.Context(), cmd, args[0], opts)
		},
	}

	registerRulesFlag(cmd, opts)
	cmd.Flags().StringVar(&opts.saveState, "state", "xmangle-state.json", "state file to write")

	return cmd
}

func runScan(ctx context.Context, cmd *cobra.Command, inputPath string, opts *pipelineOptions) error {
	logger := logging.FromContext(ctx)

	m, _, err := buildEntityMangler(ctx, inputPath, opts)
	if err != nil {
		return err
	}

	if err := persistState(ctx, m, opts.saveState); err != nil {
		return err
	}

	snapshot := m.StateSnapshot()

	logger.Info("scan complete",
		slog.Int("records", snapshot.ElementCount),
		slog.Int("users", len(snapshot.AllUsers)),
		slog.Int("projectUsers", len(snapshot.ProjectUsers)),
	)

	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Scanned %d records: %d users, %d project users, %d projects\n",
		snapshot.ElementCount, len(snapshot.AllUsers), len(snapshot.ProjectUsers), len(snapshot.ProjectIDs))

	return nil
}
