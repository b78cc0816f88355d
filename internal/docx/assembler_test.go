package docx

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/scan2docx/internal/domain"
)

func assemble(t *testing.T, pages []domain.PageText, title string) *Outline {
	t.Helper()
	doc, err := NewAssembler().Assemble(pages, title)
	require.NoError(t, err)
	outline, err := Inspect(doc)
	require.NoError(t, err)
	return outline
}

func TestAssemble_Structure(t *testing.T) {
	pages := []domain.PageText{
		{Index: 1, Text: "First block\n\nSecond block"},
		{Index: 2, Text: "Only block"},
		{Index: 3, Text: ""},
	}

	outline := assemble(t, pages, "OCR Output - scan.pdf")

	assert.Equal(t, "OCR Output - scan.pdf", outline.Title())
	assert.Equal(t, KindTitle, outline.Blocks[0].Kind, "title comes first")
	assert.Equal(t, 2, outline.PageBreaks())

	got := outline.Pages()
	require.Len(t, got, 3)
	assert.Equal(t, PageOutline{Heading: "Page 1", Paragraphs: []string{"First block", "Second block"}}, got[0])
	assert.Equal(t, PageOutline{Heading: "Page 2", Paragraphs: []string{"Only block"}}, got[1])
	assert.Equal(t, "Page 3", got[2].Heading)
	assert.Empty(t, got[2].Paragraphs)

	last := outline.Blocks[len(outline.Blocks)-1]
	assert.NotEqual(t, KindPageBreak, last.Kind, "no page break after the final page")
}

func TestAssemble_PageBreakCount(t *testing.T) {
	for _, n := range []int{1, 2, 5} {
		t.Run(fmt.Sprintf("%d pages", n), func(t *testing.T) {
			pages := make([]domain.PageText, n)
			for i := range pages {
				pages[i] = domain.PageText{Index: i + 1, Text: "text"}
			}
			outline := assemble(t, pages, "")
			assert.Equal(t, n-1, outline.PageBreaks())
			assert.Len(t, outline.Pages(), n)
			assert.Empty(t, outline.Title())
		})
	}
}

func TestAssemble_ParagraphSplitting(t *testing.T) {
	pages := []domain.PageText{{Index: 1, Text: "  \n\n  Alpha line one\nline two  \n\n\n\n   \n\nBeta\n\n"}}

	got := assemble(t, pages, "").Pages()
	require.Len(t, got, 1)
	assert.Equal(t, []string{"Alpha line one\nline two", "Beta"}, got[0].Paragraphs)
}

func TestAssemble_NoPages(t *testing.T) {
	outline := assemble(t, nil, "OCR Output - empty.pdf")
	require.Len(t, outline.Blocks, 1)
	assert.Equal(t, KindTitle, outline.Blocks[0].Kind)
	assert.Empty(t, outline.Pages())

	outline = assemble(t, nil, "")
	assert.Empty(t, outline.Blocks)
}

func TestAssemble_EscapesText(t *testing.T) {
	pages := []domain.PageText{{Index: 1, Text: `Tom & Jerry <said> "hi" 'there'`}}

	got := assemble(t, pages, "A & B").Pages()
	require.Len(t, got, 1)
	assert.Equal(t, []string{`Tom & Jerry <said> "hi" 'there'`}, got[0].Paragraphs)
}

func TestAssemble_FailedPageMarker(t *testing.T) {
	pages := []domain.PageText{
		{Index: 1, Text: "ok"},
		{Index: 2, Failed: true, FailureReason: "tesseract crashed"},
	}

	outline := assemble(t, pages, "")
	got := outline.Pages()
	require.Len(t, got, 2)
	assert.Equal(t, []string{"[OCR failed on this page: tesseract crashed]"}, got[1].Paragraphs)

	var italic int
	for _, b := range outline.Blocks {
		if b.Italic {
			italic++
		}
	}
	assert.Equal(t, 1, italic)
}

func TestAssemble_UsesPageIndexForHeadings(t *testing.T) {
	pages := []domain.PageText{{Index: 4, Text: "x"}, {Index: 7, Text: "y"}}
	got := assemble(t, pages, "").Pages()
	assert.Equal(t, "Page 4", got[0].Heading)
	assert.Equal(t, "Page 7", got[1].Heading)
}

func TestAssemble_Deterministic(t *testing.T) {
	pages := []domain.PageText{{Index: 1, Text: "same"}, {Index: 2, Text: "input"}}
	a, err := NewAssembler().Assemble(pages, "t")
	require.NoError(t, err)
	b, err := NewAssembler().Assemble(pages, "t")
	require.NoError(t, err)
	assert.True(t, bytes.Equal(a, b))
}

func TestAssemble_PackageParts(t *testing.T) {
	doc, err := NewAssembler().Assemble([]domain.PageText{{Index: 1, Text: "x"}}, "My Title")
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(doc), int64(len(doc)))
	require.NoError(t, err)

	names := make(map[string]*zip.File)
	for _, f := range zr.File {
		names[f.Name] = f
	}
	for _, want := range []string{
		"[Content_Types].xml",
		"_rels/.rels",
		"docProps/core.xml",
		"word/_rels/document.xml.rels",
		"word/styles.xml",
		"word/document.xml",
	} {
		assert.Contains(t, names, want)
	}

	rc, err := names["docProps/core.xml"].Open()
	require.NoError(t, err)
	defer rc.Close()
	core, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Contains(t, string(core), "<dc:title>My Title</dc:title>")
	assert.Contains(t, string(core), "<dc:creator>scan2docx</dc:creator>")
}

func TestInspect_Errors(t *testing.T) {
	_, err := Inspect([]byte("not a zip"))
	assert.True(t, domain.IsKind(err, domain.ErrorTypeValidation))

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	_, err = zw.Create("other.xml")
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = Inspect(buf.Bytes())
	assert.ErrorContains(t, err, "no word/document.xml")
}

func TestBlocks(t *testing.T) {
	assert.Nil(t, Blocks(""))
	assert.Nil(t, Blocks(" \n\n \t "))
	assert.Equal(t, []string{"a", "b\nc"}, Blocks("a\n\nb\nc"))
}

func TestFailureMarker(t *testing.T) {
	assert.Equal(t, "[OCR failed on this page]", FailureMarker(""))
	assert.Equal(t, "[OCR failed on this page: boom]", FailureMarker("boom"))
}
