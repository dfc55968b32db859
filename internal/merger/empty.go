package merger

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// EmptyDocument returns a well-formed PDF with an empty page tree.
func EmptyDocument() ([]byte, error) {
	pdfCtx, err := pdfcpu.CreateContextWithXRefTable(newConfiguration(), types.PaperSize["A4"])
	if err != nil {
		return nil, fmt.Errorf("failed to create empty document: %w", err)
	}
	var buf bytes.Buffer
	if err := api.WriteContext(pdfCtx, &buf); err != nil {
		return nil, fmt.Errorf("failed to write empty document: %w", err)
	}
	return buf.Bytes(), nil
}
