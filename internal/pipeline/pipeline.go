// Package pipeline converts a batch of documents to PDF and binds the
// results into a single file.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Lllllllleong/docxbinder/internal/converter"
	"github.com/Lllllllleong/docxbinder/internal/merger"
)

// FinalName is the file name of the bound document inside the output directory.
const FinalName = "final.pdf"

// ErrNothingConverted is returned when no input survived conversion.
var ErrNothingConverted = errors.New("no documents were converted")

// Result summarizes one Run.
type Result struct {
	Requested  int
	Converted  []string
	Failures   []*converter.ConversionError
	PageCounts []int
	Pages      int
	OutputPath string
	Size       int
}

// Binder wires the converter and the merger together.
type Binder struct {
	conv   *converter.Orchestrator
	merger *merger.Merger
	logger *slog.Logger
}

// New creates a Binder. A nil logger means slog.Default().
func New(conv *converter.Orchestrator, m *merger.Merger, logger *slog.Logger) *Binder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Binder{conv: conv, merger: m, logger: logger}
}

// Run converts inputs into outputDir, merges whatever converted and writes
// the combined document to finalPath. Nothing is written if the merge fails.
func (b *Binder) Run(ctx context.Context, inputs []string, outputDir, finalPath string) (*Result, error) {
	logCtx := b.logger.With("outputPath", finalPath)

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir %s: %w", outputDir, err)
	}

	batch := b.conv.Convert(ctx, inputs, outputDir)
	res := &Result{
		Requested: len(inputs),
		Converted: batch.Converted,
		Failures:  batch.Failures,
	}
	if len(batch.Failures) > 0 {
		logCtx.Warn("Some documents were skipped.", "skipped", len(batch.Failures), "requested", len(inputs))
	}
	if len(batch.Converted) == 0 {
		return res, ErrNothingConverted
	}

	sources := make([]merger.Source, len(batch.Converted))
	for i, p := range batch.Converted {
		sources[i] = merger.Source{PathPDF: p}
	}
	out, mres, err := b.merger.CombineWithResult(ctx, sources)
	if err != nil {
		return res, err
	}
	res.PageCounts = mres.PageCounts
	res.Pages = mres.Pages

	if err := writeFile(finalPath, out); err != nil {
		return res, err
	}
	res.OutputPath = finalPath
	res.Size = len(out)

	logCtx.Info("Bound document written.", "documents", len(res.Converted), "pages", res.Pages, "bytes", res.Size)
	return res, nil
}

// DefaultInputs lists dir/doc1.docx through dir/docN.docx.
func DefaultInputs(dir string, n int) []string {
	inputs := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		inputs = append(inputs, filepath.Join(dir, fmt.Sprintf("doc%d.docx", i)))
	}
	return inputs
}

func writeFile(path string, b []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create dir for %s: %w", path, err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
