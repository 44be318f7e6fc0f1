// Package watch re-runs a processing pass whenever one of the watched files
// changes, so a rule set can be iterated on without re-invoking the CLI by
// hand after every edit.
package watch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
)

// RunFunc executes one processing pass. It is called once at startup and
// again after every debounced change.
type RunFunc func(ctx context.Context) (*RunResult, error)

// RunResult summarizes one pass for the status line.
type RunResult struct {
	Input      int
	Output     int
	OutputPath string
}

// Options configures the watch behaviour.
type Options struct {
	// Files are the files whose changes trigger a re-run (the rule set, the
	// input documents). Their parent directories are watched so that
	// editors replacing files via rename are still observed.
	Files []string

	// Debounce is the quiet period before triggering a re-run.
	Debounce time.Duration

	// Logger is used for structured logging.
	Logger *slog.Logger

	// Out is the writer for user-facing status messages.
	Out io.Writer
}

// DefaultOptions returns sensible default watch options.
func DefaultOptions() Options {
	return Options{
		Debounce: 500 * time.Millisecond,
		Logger:   slog.Default(),
		Out:      os.Stderr,
	}
}

// Run starts the file watcher and blocks until the context is cancelled or a
// SIGINT/SIGTERM signal is received.
func Run(ctx context.Context, opts Options, runFn RunFunc) error {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.Out == nil {
		opts.Out = io.Discard
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	watched := make(map[string]bool, len(opts.Files))

	for _, f := range opts.Files {
		abs, absErr := filepath.Abs(f)
		if absErr != nil {
			return fmt.Errorf("resolving file %q: %w", f, absErr)
		}

		watched[abs] = true

		if err := watcher.Add(filepath.Dir(abs)); err != nil {
			return fmt.Errorf("watching %q: %w", filepath.Dir(abs), err)
		}
	}

	// Trap SIGINT / SIGTERM for graceful shutdown.
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(opts.Out, "watching %s (debounce=%s)\n",
		strings.Join(opts.Files, ", "), opts.Debounce)

	// Initial run.
	doRun(sigCtx, opts, runFn, "(initial)")

	debouncer := newDebouncer(opts.Debounce, func(path string) {
		doRun(sigCtx, opts, runFn, path)
	})
	defer debouncer.stop()

	for {
		select {
		case <-sigCtx.Done():
			fmt.Fprintln(opts.Out, "\nshutting down watcher")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if !isRelevant(event, watched) {
				continue
			}

			debouncer.trigger(event.Name)

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			opts.Logger.Error("watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

// doRun executes a single pass and prints the status line.
func doRun(ctx context.Context, opts Options, runFn RunFunc, trigger string) {
	now := time.Now().Format("15:04:05")

	result, err := runFn(ctx)
	if err != nil {
		fmt.Fprintf(opts.Out, "[%s] %s → ERROR: %v\n", now, trigger, err)
		return
	}

	fmt.Fprintf(opts.Out, "[%s] %s → OK (%d/%d records kept, wrote %s)\n",
		now, trigger, result.Output, result.Input, result.OutputPath)
}

// isRelevant filters events down to mutations of the watched files.
func isRelevant(event fsnotify.Event, watched map[string]bool) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}

	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}

	return watched[abs]
}
