package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type verifyOptions struct {
	pipelineOptions

	// Output format: "text" (default), "json".
	format string
}

func newVerifyCommand() *cobra.Command {
	opts := &verifyOptions{}

	cmd := &cobra.Command{
		Use:   "verify <entities-file>",
		Short: "Check a processed export for stale user references",
		Long: `Verify re-scans a document and flags every attribute whose value is a
username the run was supposed to drop or rename away.

Findings are best-effort diagnostics: a value that merely collides with
a rejected username is flagged too, so treat findings as leads to check
rather than proven defects.

Exit codes:
  0  No findings
  1  Error
  2  Invalid arguments
  3  Stale user references found`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd.Context(), cmd, args[0], opts)
		},
	}

	registerRulesFlag(cmd, &opts.pipelineOptions)
	f := cmd.Flags()
	f.StringVar(&opts.stateFile, "state", "", "state file from a scan of the original export (required)")
	f.StringVar(&opts.format, "format", "text", "output format: text, json")
	_ = cmd.MarkFlagRequired("state")

	return cmd
}

func runVerify(ctx context.Context, cmd *cobra.Command, inputPath string, opts *verifyOptions) error {
	// The state file must come from the original export: a scan of the
	// processed document would no longer see the dropped users.
	m, _, err := buildEntityMangler(ctx, inputPath, &opts.pipelineOptions)
	if err != nil {
		return err
	}

	in, err := os.Open(inputPath)
	if err != nil {
		return &ExitError{Code: 1, Err: fmt.Errorf("opening input: %w", err)}
	}
	defer in.Close()

	report, err := m.Verify(ctx, in)
	if err != nil {
		return &ExitError{Code: 1, Err: fmt.Errorf("verifying %s: %w", inputPath, err)}
	}

	w := cmd.OutOrStdout()

	switch opts.format {
	case "json":
		data, jsonErr := report.JSON()
		if jsonErr != nil {
			return &ExitError{Code: 1, Err: jsonErr}
		}

		if _, err := w.Write(data); err != nil {
			return &ExitError{Code: 1, Err: err}
		}
	case "text":
		report.WriteText(w)
	default:
		return &ExitError{Code: 2, Err: fmt.Errorf("invalid format %q: must be text or json", opts.format)}
	}

	if !report.Clean() {
		return &ExitError{
			Code: 3,
			Err:  fmt.Errorf("%d stale user reference(s) found", len(report.Findings)),
		}
	}

	return nil
}
