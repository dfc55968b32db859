package pdftest

import (
	"bytes"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocument(t *testing.T) {
	b, err := Document(100, 300)
	require.NoError(t, err)

	n, err := api.PageCount(bytes.NewReader(b), relaxed())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []float64{100, 300}, PageWidths(t, b))
}
