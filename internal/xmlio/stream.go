// Package xmlio streams the top-level records of an export document through a
// filter callback and re-emits the kept ones under a cloned root element. The
// full tree is never held in memory; each depth-1 subtree is decoded, handed
// to the callback, and written or discarded.
package xmlio

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"

	"github.com/hupe1980/xmangle/internal/record"
)

// FilterFunc decides the fate of one top-level record. Returning nil drops
// the record; returning a (possibly mutated) record keeps it.
type FilterFunc func(*record.Record) (*record.Record, error)

// ScanFunc observes one top-level record during a read-only pass.
type ScanFunc func(*record.Record) error

// Options configures a streaming pass.
type Options struct {
	// DefaultNamespace, when set, is re-emitted as the xmlns of the root
	// element. Record and attribute names are handled unqualified.
	DefaultNamespace string

	// ProgressInterval logs a progress line every N input records. Zero
	// disables progress logging.
	ProgressInterval int

	// Logger receives progress and summary lines. Defaults to slog.Default.
	Logger *slog.Logger
}

func (o *Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}

	return slog.Default()
}

// Stats counts records seen and kept during a pass, total and per kind.
type Stats struct {
	Input        int
	Output       int
	InputByKind  map[string]int
	OutputByKind map[string]int
}

func newStats() *Stats {
	return &Stats{
		InputByKind:  make(map[string]int),
		OutputByKind: make(map[string]int),
	}
}

// Log writes a per-kind keep summary at info level.
func (s *Stats) Log(logger *slog.Logger) {
	if s.Input == 0 {
		return
	}

	logger.Info("pass complete",
		slog.Int("input", s.Input),
		slog.Int("output", s.Output),
	)

	for kind, in := range s.InputByKind {
		logger.Debug("record counts",
			slog.String("kind", kind),
			slog.Int("input", in),
			slog.Int("output", s.OutputByKind[kind]),
		)
	}
}

// Process streams all top-level records of r through fn and writes the kept
// ones to w, preserving the root element's tag and attributes. Malformed
// input aborts with an error; nothing useful is guaranteed to have been
// written to w in that case, so callers must treat partial output as invalid.
func Process(ctx context.Context, r io.Reader, w io.Writer, fn FilterFunc, opts Options) (*Stats, error) {
	stats := newStats()
	logger := opts.logger()

	d := xml.NewDecoder(r)

	var (
		rootName string
		inRoot   bool
	)

	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		}

		if err != nil {
			return stats, fmt.Errorf("parsing XML: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if !inRoot {
				rootName = t.Name.Local
				inRoot = true

				if err := writeRootOpen(w, t, opts.DefaultNamespace); err != nil {
					return stats, err
				}

				continue
			}

			if err := ctx.Err(); err != nil {
				return stats, err
			}

			rec, err := decodeRecord(d, t)
			if err != nil {
				return stats, err
			}

			stats.Input++
			stats.InputByKind[rec.Kind]++

			if opts.ProgressInterval > 0 && stats.Input%opts.ProgressInterval == 0 {
				logger.Info("processing records", slog.Int("count", stats.Input))
			}

			kept, err := fn(rec)
			if err != nil {
				return stats, fmt.Errorf("filtering %s: %w", rec.Kind, err)
			}

			if kept == nil {
				continue
			}

			stats.Output++
			stats.OutputByKind[kept.Kind]++

			if _, err := w.Write([]byte("\n\t")); err != nil {
				return stats, fmt.Errorf("writing output: %w", err)
			}

			if _, err := w.Write(Encode(kept)); err != nil {
				return stats, fmt.Errorf("writing output: %w", err)
			}

		case xml.EndElement:
			if t.Name.Local == rootName {
				if _, err := fmt.Fprintf(w, "\n</%s>\n", rootName); err != nil {
					return stats, fmt.Errorf("writing output: %w", err)
				}
			}
		}
	}

	if !inRoot {
		return stats, fmt.Errorf("parsing XML: no root element found")
	}

	return stats, nil
}

// Scan streams all top-level records of r through fn without producing
// output.
func Scan(ctx context.Context, r io.Reader, fn ScanFunc, opts Options) (*Stats, error) {
	stats := newStats()
	logger := opts.logger()

	d := xml.NewDecoder(r)

	inRoot := false

	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		}

		if err != nil {
			return stats, fmt.Errorf("parsing XML: %w", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		if !inRoot {
			inRoot = true
			continue
		}

		if err := ctx.Err(); err != nil {
			return stats, err
		}

		rec, err := decodeRecord(d, start)
		if err != nil {
			return stats, err
		}

		stats.Input++
		stats.InputByKind[rec.Kind]++

		if opts.ProgressInterval > 0 && stats.Input%opts.ProgressInterval == 0 {
			logger.Info("scanning records", slog.Int("count", stats.Input))
		}

		if err := fn(rec); err != nil {
			return stats, fmt.Errorf("scanning %s: %w", rec.Kind, err)
		}
	}

	if !inRoot {
		return stats, fmt.Errorf("parsing XML: no root element found")
	}

	return stats, nil
}

// writeRootOpen emits the XML declaration and the opening root tag, carrying
// over the root's attributes and optionally a default namespace.
func writeRootOpen(w io.Writer, start xml.StartElement, defaultNS string) error {
	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	buf.WriteByte('<')
	buf.WriteString(start.Name.Local)

	if defaultNS != "" {
		buf.WriteString(` xmlns="`)
		writeEscaped(&buf, defaultNS)
		buf.WriteByte('"')
	}

	for _, a := range start.Attr {
		if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
			continue
		}

		buf.WriteByte(' ')
		buf.WriteString(a.Name.Local)
		buf.WriteString(`="`)
		writeEscaped(&buf, a.Value)
		buf.WriteByte('"')
	}

	buf.WriteByte('>')

	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}

	return nil
}
