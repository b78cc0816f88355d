//go:build integration

package convert_test

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/scan2docx/internal/convert"
	"github.com/spherical/scan2docx/internal/docx"
	"github.com/spherical/scan2docx/internal/domain"
	"github.com/spherical/scan2docx/internal/ocr"
	"github.com/spherical/scan2docx/internal/pdf"
)

// textPDF returns a letter-size PDF with one line of large Helvetica text
// per page.
func textPDF(lines ...string) []byte {
	var buf bytes.Buffer
	var offsets []int
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	n := len(lines)
	kids := make([]string, n)
	for i := range kids {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}

	obj("<< /Type /Catalog /Pages 2 0 R >>")
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), n))
	obj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")
	for i, line := range lines {
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i))
		stream := fmt.Sprintf("BT /F1 36 Tf 72 650 Td (%s) Tj ET", line)
		obj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

// TestPDFToDOCXConversion runs the real engines end to end.
func TestPDFToDOCXConversion(t *testing.T) {
	tesseract, err := exec.LookPath("tesseract")
	if err != nil {
		t.Skip("tesseract not installed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	recognizer := ocr.NewTesseractCLI(tesseract, "", time.Minute, []domain.Language{"eng"})
	svc := convert.NewService(pdf.NewFitzRasterizer(), recognizer, docx.NewAssembler(),
		convert.WithLanguages([]domain.Language{"eng"}))
	require.NoError(t, svc.CheckEngines(ctx))

	var events []domain.EventType
	result, err := svc.Convert(ctx, domain.ConversionRequest{
		Source:     textPDF("HELLO SCANNED WORLD", "SECOND PAGE HERE"),
		SourceName: "sample.pdf",
		DPI:        300,
		Language:   "eng",
	}, func(ev domain.StreamEvent) { events = append(events, ev.Type) })
	require.NoError(t, err)

	assert.Equal(t, 2, result.Pages)
	assert.Equal(t, []domain.EventType{
		domain.EventStart,
		domain.EventPageComplete,
		domain.EventPageComplete,
		domain.EventAssembling,
		domain.EventComplete,
	}, events)

	outline, err := docx.Inspect(result.Document)
	require.NoError(t, err)
	assert.Equal(t, "OCR Output - sample.pdf", outline.Title())
	assert.Equal(t, 1, outline.PageBreaks())

	pages := outline.Pages()
	require.Len(t, pages, 2)
	assert.Contains(t, strings.ToUpper(strings.Join(pages[0].Paragraphs, " ")), "HELLO")
	assert.Contains(t, strings.ToUpper(strings.Join(pages[1].Paragraphs, " ")), "SECOND")
}
