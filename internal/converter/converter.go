// Package converter drives an external office suite to turn .docx documents
// into PDFs, one document at a time.
package converter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
)

// DefaultBinary is used when Config.Binary is empty. It is resolved via PATH.
const DefaultBinary = "soffice"

// ErrOutputCollision is reported for an input whose PDF name is already
// taken by an earlier input in the same batch.
var ErrOutputCollision = errors.New("output file name already produced by an earlier input")

// Config holds the settings for an Orchestrator.
type Config struct {
	// Binary is the path to the office suite executable.
	Binary string
}

// ConversionError describes one input the converter could not turn into a PDF.
type ConversionError struct {
	InputPath string
	ExitCode  int
	Stderr    string
	Err       error
}

func (e *ConversionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "failed to convert %s to PDF", e.InputPath)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	} else if e.ExitCode != 0 {
		fmt.Fprintf(&b, ": exit status %d", e.ExitCode)
	}
	if e.Stderr != "" {
		fmt.Fprintf(&b, ": %s", e.Stderr)
	}
	return b.String()
}

func (e *ConversionError) Unwrap() error { return e.Err }

// Batch is the result of converting a collection: the PDF paths that were
// produced, in input order, and a diagnostic entry for every skipped input.
type Batch struct {
	Converted []string
	Failures  []*ConversionError
}

// Attempted returns the number of inputs that were tried.
func (b Batch) Attempted() int {
	return len(b.Converted) + len(b.Failures)
}

// Orchestrator converts documents sequentially through a Runner.
type Orchestrator struct {
	binary string
	runner Runner
	logger *slog.Logger
}

// New creates an Orchestrator. A nil runner means ExecRunner and a nil logger
// means slog.Default().
func New(cfg Config, runner Runner, logger *slog.Logger) *Orchestrator {
	if cfg.Binary == "" {
		cfg.Binary = DefaultBinary
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		binary: cfg.Binary,
		runner: runner,
		logger: logger.With("component", "converter"),
	}
}

// ConvertCollection converts every input into outputDir and returns the paths
// of the PDFs that were produced. Failed inputs are logged and left out.
func (o *Orchestrator) ConvertCollection(ctx context.Context, inputPaths []string, outputDir string) []string {
	return o.Convert(ctx, inputPaths, outputDir).Converted
}

// Convert is ConvertCollection with the per-input failures kept alongside
// the successful outputs.
func (o *Orchestrator) Convert(ctx context.Context, inputPaths []string, outputDir string) Batch {
	o.logger.Info("Starting DOCX to PDF conversion.", "count", len(inputPaths), "outputDir", outputDir)

	batch := Batch{Converted: make([]string, 0, len(inputPaths))}
	produced := make(map[string]string, len(inputPaths))

	for _, inputPath := range inputPaths {
		logCtx := o.logger.With("inputPath", inputPath)

		pdfPath := OutputPath(inputPath, outputDir)
		if earlier, ok := produced[pdfPath]; ok {
			convErr := &ConversionError{
				InputPath: inputPath,
				Err:       fmt.Errorf("%w: %s (from %s)", ErrOutputCollision, pdfPath, earlier),
			}
			logCtx.Error("Skipping input.", "error", convErr)
			batch.Failures = append(batch.Failures, convErr)
			continue
		}

		logCtx.Info("Converting document.")
		if err := o.ConvertOne(ctx, inputPath, outputDir); err != nil {
			logCtx.Error("Conversion failed, skipping input.", "error", err)
			var convErr *ConversionError
			if !errors.As(err, &convErr) {
				convErr = &ConversionError{InputPath: inputPath, Err: err}
			}
			batch.Failures = append(batch.Failures, convErr)
			continue
		}

		logCtx.Info("Conversion complete.", "pdfPath", pdfPath)
		produced[pdfPath] = inputPath
		batch.Converted = append(batch.Converted, pdfPath)
	}

	o.logger.Info("Conversion finished.", "converted", len(batch.Converted), "failed", len(batch.Failures))
	return batch
}

// ConvertOne runs the converter for a single input and waits for it to exit.
// The returned error, if any, is a *ConversionError.
func (o *Orchestrator) ConvertOne(ctx context.Context, inputPath, outputDir string) error {
	out, err := o.runner.Run(ctx, o.binary, Args(inputPath, outputDir)...)
	if err != nil {
		convErr := &ConversionError{InputPath: inputPath, Err: err}
		if out != nil {
			convErr.Stderr = diagnostic(out.Stderr)
		}
		return convErr
	}

	stderr := diagnostic(out.Stderr)
	if out.ExitCode != 0 || reportsError(out.Stderr) {
		return &ConversionError{InputPath: inputPath, ExitCode: out.ExitCode, Stderr: stderr}
	}
	return nil
}

// Args returns the converter arguments for one input.
func Args(inputPath, outputDir string) []string {
	return []string{"--headless", "--convert-to", "pdf", "--outdir", outputDir, inputPath}
}

// OutputPath is where the converter writes the PDF for inputPath.
func OutputPath(inputPath, outputDir string) string {
	base := filepath.Base(inputPath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(outputDir, base+".pdf")
}

// soffice exits 0 for some load failures and only reports them on stderr.
func reportsError(stderr []byte) bool {
	return bytes.Contains(stderr, []byte("Error:"))
}

func diagnostic(stderr []byte) string {
	return strings.TrimSpace(string(stderr))
}
