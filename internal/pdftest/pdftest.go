// Package pdftest builds small PDF fixtures for tests. Each page is blank and
// identified by its width, so page order survives a merge visibly.
package pdftest

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/stretchr/testify/require"
)

// PageHeight is the height of every fixture page.
const PageHeight = 842

// Document returns a PDF with one blank page per width, in order.
func Document(widths ...float64) ([]byte, error) {
	pdfCtx, err := pdfcpu.CreateContextWithXRefTable(relaxed(), types.PaperSize["A4"])
	if err != nil {
		return nil, err
	}
	xRefTable := pdfCtx.XRefTable

	rootDict, err := xRefTable.Catalog()
	if err != nil {
		return nil, err
	}
	pagesIndRef := rootDict.IndirectRefEntry("Pages")
	if pagesIndRef == nil {
		return nil, errors.New("catalog has no page tree")
	}
	pagesDict, err := xRefTable.DereferenceDict(*pagesIndRef)
	if err != nil {
		return nil, err
	}

	kids := types.Array{}
	for _, w := range widths {
		pageDict := types.Dict(map[string]types.Object{
			"Type":      types.Name("Page"),
			"Parent":    *pagesIndRef,
			"MediaBox":  types.RectForDim(w, PageHeight).Array(),
			"Resources": types.Dict(map[string]types.Object{}),
		})
		pageIndRef, err := xRefTable.IndRefForNewObject(pageDict)
		if err != nil {
			return nil, err
		}
		kids = append(kids, *pageIndRef)
	}
	pagesDict["Kids"] = kids
	pagesDict["Count"] = types.Integer(len(widths))

	var buf bytes.Buffer
	if err := api.WriteContext(pdfCtx, &buf); err != nil {
		return nil, fmt.Errorf("failed to write fixture: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteFile writes a Document with the given page widths to path.
func WriteFile(t testing.TB, path string, widths ...float64) {
	t.Helper()
	b, err := Document(widths...)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o644))
}

// PageWidths returns the width of each page of a PDF, in page order.
func PageWidths(t testing.TB, b []byte) []float64 {
	t.Helper()
	dims, err := api.PageDims(bytes.NewReader(b), relaxed())
	require.NoError(t, err)
	widths := make([]float64, len(dims))
	for i, d := range dims {
		widths[i] = d.Width
	}
	return widths
}

func relaxed() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}
