package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/docxbinder/internal/converter"
	"github.com/Lllllllleong/docxbinder/internal/merger"
	"github.com/Lllllllleong/docxbinder/internal/pdftest"
)

// officeStub stands in for soffice: it writes a blank PDF for each input,
// with page widths taken from the table, or fails for inputs listed in fail.
type officeStub struct {
	pages   map[string][]float64
	fail    map[string]bool
	noWrite map[string]bool
}

func (s *officeStub) Run(_ context.Context, _ string, args ...string) (*converter.Outcome, error) {
	input := args[len(args)-1]
	outDir := args[len(args)-2]
	if s.fail[input] {
		return &converter.Outcome{ExitCode: 1, Stderr: []byte("Error: source file could not be loaded")}, nil
	}
	if s.noWrite[input] {
		return &converter.Outcome{}, nil
	}
	b, err := pdftest.Document(s.pages[input]...)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(converter.OutputPath(input, outDir), b, 0o644); err != nil {
		return nil, err
	}
	return &converter.Outcome{}, nil
}

func newBinder(stub *officeStub) *Binder {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(converter.New(converter.Config{}, stub, logger), merger.New(logger), logger)
}

func finalWidths(t *testing.T, path string) []float64 {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return pdftest.PageWidths(t, b)
}

func TestRun_AllConverted(t *testing.T) {
	dir := t.TempDir()
	inputs := DefaultInputs(filepath.Join(dir, "input"), 3)
	stub := &officeStub{pages: map[string][]float64{
		inputs[0]: {101, 102},
		inputs[1]: {201},
		inputs[2]: {301, 302, 303},
	}}

	outDir := filepath.Join(dir, "output")
	final := filepath.Join(outDir, FinalName)
	res, err := newBinder(stub).Run(context.Background(), inputs, outDir, final)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Requested)
	assert.Len(t, res.Converted, 3)
	assert.Empty(t, res.Failures)
	assert.Equal(t, []int{2, 1, 3}, res.PageCounts)
	assert.Equal(t, 6, res.Pages)
	assert.Equal(t, final, res.OutputPath)
	assert.Equal(t, []float64{101, 102, 201, 301, 302, 303}, finalWidths(t, final))
}

func TestRun_SkipsFailedConversion(t *testing.T) {
	dir := t.TempDir()
	inputs := DefaultInputs(filepath.Join(dir, "input"), 3)
	stub := &officeStub{
		pages: map[string][]float64{
			inputs[0]: {101},
			inputs[2]: {301},
		},
		fail: map[string]bool{inputs[1]: true},
	}

	outDir := filepath.Join(dir, "output")
	final := filepath.Join(outDir, FinalName)
	res, err := newBinder(stub).Run(context.Background(), inputs, outDir, final)
	require.NoError(t, err)

	assert.Len(t, res.Converted, 2)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, inputs[1], res.Failures[0].InputPath)
	assert.Equal(t, []float64{101, 301}, finalWidths(t, final))
}

func TestRun_NothingConverted(t *testing.T) {
	dir := t.TempDir()
	inputs := DefaultInputs(filepath.Join(dir, "input"), 2)
	stub := &officeStub{fail: map[string]bool{inputs[0]: true, inputs[1]: true}}

	final := filepath.Join(dir, "output", FinalName)
	res, err := newBinder(stub).Run(context.Background(), inputs, filepath.Join(dir, "output"), final)

	assert.ErrorIs(t, err, ErrNothingConverted)
	assert.Len(t, res.Failures, 2)
	assert.NoFileExists(t, final)
}

func TestRun_MergeFailureWritesNothing(t *testing.T) {
	dir := t.TempDir()
	inputs := DefaultInputs(filepath.Join(dir, "input"), 2)
	// The converter reports success for doc2 but never writes its PDF.
	stub := &officeStub{
		pages:   map[string][]float64{inputs[0]: {101}},
		noWrite: map[string]bool{inputs[1]: true},
	}

	final := filepath.Join(dir, "output", FinalName)
	_, err := newBinder(stub).Run(context.Background(), inputs, filepath.Join(dir, "output"), final)
	require.Error(t, err)

	var readErr *merger.ReadError
	assert.True(t, errors.As(err, &readErr))
	assert.NoFileExists(t, final)
}

func TestDefaultInputs(t *testing.T) {
	got := DefaultInputs("input", 10)
	require.Len(t, got, 10)
	assert.Equal(t, filepath.Join("input", "doc1.docx"), got[0])
	assert.Equal(t, filepath.Join("input", "doc10.docx"), got[9])

	assert.Empty(t, DefaultInputs("input", 0))
}
