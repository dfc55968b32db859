// Package merger combines several PDF files into one document, keeping every
// page of every source in order.
package merger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ErrPageCountMismatch means the combined document does not hold exactly the
// pages of its sources.
var ErrPageCountMismatch = errors.New("combined page count does not match sources")

// Source is one PDF on disk to be merged.
type Source struct {
	PathPDF string `json:"pathPdf"`
}

// ReadError is returned when a source file cannot be read.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("failed to read PDF %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// ParseError is returned when a source file is not a usable PDF.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse PDF %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Result describes a successful combine.
type Result struct {
	// PageCounts holds the page count of each source, in source order.
	PageCounts []int
	// Pages is the page count of the combined document.
	Pages int
}

// Merger combines PDF sources. It keeps no state between calls and is safe
// for concurrent use.
type Merger struct {
	logger *slog.Logger
}

// New creates a Merger. A nil logger means slog.Default().
func New(logger *slog.Logger) *Merger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Merger{logger: logger.With("component", "merger")}
}

// Combine merges sources in order and returns the serialized document.
// Any failure aborts the whole merge and no bytes are returned.
func (m *Merger) Combine(ctx context.Context, sources []Source) ([]byte, error) {
	out, _, err := m.CombineWithResult(ctx, sources)
	return out, err
}

// CombineFiles is Combine for plain paths.
func (m *Merger) CombineFiles(ctx context.Context, paths []string) ([]byte, error) {
	sources := make([]Source, len(paths))
	for i, p := range paths {
		sources[i] = Source{PathPDF: p}
	}
	return m.Combine(ctx, sources)
}

// CombineWithResult is Combine that also reports the page accounting.
func (m *Merger) CombineWithResult(ctx context.Context, sources []Source) ([]byte, *Result, error) {
	m.logger.Info("Starting PDF combine.", "total", len(sources))

	out, res, err := m.combine(ctx, sources)
	if err != nil {
		m.logger.Error("Failed to combine PDF sources.", "error", err)
		return nil, nil, fmt.Errorf("combine PDF sources: %w", err)
	}

	m.logger.Info("PDF combine complete.", "pages", res.Pages, "bytes", len(out))
	return out, res, nil
}

func (m *Merger) combine(ctx context.Context, sources []Source) ([]byte, *Result, error) {
	res := &Result{PageCounts: make([]int, 0, len(sources))}

	// All sources are loaded and validated before any page is copied.
	var readers []io.ReadSeeker
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		logCtx := m.logger.With("pdfPath", src.PathPDF)
		logCtx.Info("Adding PDF to combined document.")

		b, err := os.ReadFile(src.PathPDF)
		if err != nil {
			return nil, nil, &ReadError{Path: src.PathPDF, Err: err}
		}
		pageCount, err := countPages(b)
		if err != nil {
			return nil, nil, &ParseError{Path: src.PathPDF, Err: err}
		}

		res.PageCounts = append(res.PageCounts, pageCount)
		res.Pages += pageCount
		// A source without pages contributes nothing, and pdfcpu rejects its
		// empty page tree as a merge input.
		if pageCount == 0 {
			logCtx.Info("PDF has no pages. Nothing to copy.")
			continue
		}
		readers = append(readers, bytes.NewReader(b))
	}

	if len(readers) == 0 {
		out, err := EmptyDocument()
		if err != nil {
			return nil, nil, err
		}
		return out, res, nil
	}

	var buf bytes.Buffer
	if err := api.MergeRaw(readers, &buf, false, newConfiguration()); err != nil {
		return nil, nil, fmt.Errorf("failed to merge pages: %w", err)
	}

	got, err := countPages(buf.Bytes())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read back combined document: %w", err)
	}
	if got != res.Pages {
		return nil, nil, fmt.Errorf("%w: want %d, got %d", ErrPageCountMismatch, res.Pages, got)
	}

	return buf.Bytes(), res, nil
}

// countPages parses and validates b and returns its page count.
func countPages(b []byte) (int, error) {
	conf := newConfiguration()
	pdfCtx, err := api.ReadContext(bytes.NewReader(b), conf)
	if err != nil {
		return 0, err
	}
	if err := api.ValidateContext(pdfCtx); err != nil {
		return 0, err
	}
	return pdfCtx.PageCount, nil
}

func newConfiguration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}
