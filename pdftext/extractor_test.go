package pdftext

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildPDF writes a minimal PDF with one page per content stream, all pages
// sharing a WinAnsi Helvetica font named F1.
func buildPDF(t *testing.T, contents ...string) []byte {
	t.Helper()

	kids := make([]string, len(contents))
	for i := range contents {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(contents)),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	}
	for i, c := range contents {
		objects = append(objects,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(c), c),
		)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestExtract(t *testing.T) {
	data := buildPDF(t,
		// Runs out of order on one baseline, then a kerned TJ line below.
		"BT /F1 12 Tf 1 0 0 1 300 700 Tm (World) Tj 1 0 0 1 100 700 Tm (Hello) Tj "+
			"1 0 0 1 100 600 Tm [(Sec) -15 (ond) -300 (line)] TJ ET",
		// No text.
		"BT /F1 12 Tf ET",
		// Relative moves and leading.
		"BT /F1 10 Tf 14 TL 72 500 Td (Qty) Tj 60 0 Td (20) Tj T* (CTN) Tj ET",
	)

	result, err := NewExtractor().Extract(context.Background(), "order.pdf", data)
	require.NoError(t, err)

	assert.Equal(t, "order.pdf", result.Filename)
	assert.Equal(t, Library, result.Library)
	assert.Equal(t, 3, result.SourcePages)
	assert.Equal(t, 2, result.TotalPages, "pages without text are dropped")
	assert.Equal(t, 7, result.TotalWords)
	assert.Equal(t, []PageText{
		{Page: 1, Text: "Hello World Second line"},
		{Page: 3, Text: "Qty 20 CTN"},
	}, result.Pages)
	assert.Equal(t, "Hello World Second line\n\nQty 20 CTN", result.Text())
}

func TestExtractSkipsUnreadablePage(t *testing.T) {
	data := buildPDF(t,
		"BT /F1 12 Tf 1 0 0 1 72 700 Tm (Kept) Tj ET",
		"BT /F1 12 Tf 1 0 0 1 72 700 Tm (Lost) Tj end ET",
	)

	result, err := NewExtractor().Extract(context.Background(), "partial.pdf", data)
	require.NoError(t, err)

	assert.Equal(t, 2, result.SourcePages)
	assert.Equal(t, []PageText{{Page: 1, Text: "Kept"}}, result.Pages)
}

func TestExtractHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewExtractor().Extract(ctx, "order.pdf", buildPDF(t, "BT ET"))
	assert.ErrorIs(t, err, context.Canceled)
}
