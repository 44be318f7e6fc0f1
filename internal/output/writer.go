// Package output writes processed export documents. Partial output is never
// valid — a failed pass must not leave a truncated document behind — so file
// output goes through a temp file that is renamed into place only on
// success.
package output

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Target is a destination a processing pass streams into. Commit finalizes
// the output after a fully successful pass; Abort discards it.
type Target interface {
	io.Writer

	// Commit makes the written data visible at the destination.
	Commit() error

	// Abort discards everything written so far. Safe to call after Commit.
	Abort()
}

// StdoutTarget streams to a writer (stdout by default) with no atomicity;
// Commit and Abort are no-ops.
type StdoutTarget struct {
	out io.Writer
}

// NewStdoutTarget creates a target over w, defaulting to os.Stdout when w is
// nil.
func NewStdoutTarget(w io.Writer) *StdoutTarget {
	if w == nil {
		w = os.Stdout
	}

	return &StdoutTarget{out: w}
}

func (t *StdoutTarget) Write(p []byte) (int, error) { return t.out.Write(p) }

// Commit is a no-op for stream targets.
func (t *StdoutTarget) Commit() error { return nil }

// Abort is a no-op for stream targets.
func (t *StdoutTarget) Abort() {}

// FileTarget writes to a temp file next to the destination and renames it
// into place on Commit.
type FileTarget struct {
	path   string
	tmp    *os.File
	logger *slog.Logger
	done   bool
}

// FileTargetOption configures a FileTarget.
type FileTargetOption func(*FileTarget)

// WithLogger sets a logger for the FileTarget.
func WithLogger(logger *slog.Logger) FileTargetOption {
	return func(ft *FileTarget) {
		ft.logger = logger
	}
}

// NewFileTarget creates a target writing to path, creating parent
// directories as needed.
func NewFileTarget(path string, opts ...FileTargetOption) (*FileTarget, error) {
	ft := &FileTarget{
		path:   path,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(ft)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp file in %s: %w", dir, err)
	}

	ft.tmp = tmp

	return ft, nil
}

func (ft *FileTarget) Write(p []byte) (int, error) {
	return ft.tmp.Write(p)
}

// Commit closes the temp file and renames it onto the destination path,
// replacing any existing file.
func (ft *FileTarget) Commit() error {
	if ft.done {
		return nil
	}

	ft.done = true

	if err := ft.tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if _, err := os.Stat(ft.path); err == nil {
		ft.logger.Warn("overwriting existing file", slog.String("path", ft.path))
	}

	if err := os.Rename(ft.tmp.Name(), ft.path); err != nil {
		return fmt.Errorf("writing file %s: %w", ft.path, err)
	}

	return nil
}

// Abort removes the temp file, leaving any existing destination untouched.
func (ft *FileTarget) Abort() {
	if ft.done {
		return
	}

	ft.done = true

	_ = ft.tmp.Close()
	_ = os.Remove(ft.tmp.Name())
}

// Path returns the destination file path.
func (ft *FileTarget) Path() string {
	return ft.path
}
