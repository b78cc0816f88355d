// Package docx writes OCR results as Office Open XML word-processing documents.
package docx

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"strconv"
	"strings"
	"time"

	"github.com/spherical/scan2docx/internal/domain"
)

// Style IDs used in generated documents.
const (
	StyleTitle       = "Heading1"
	StylePageHeading = "Heading2"
	StyleNormal      = "Normal"
)

// zipEpoch is stamped on every archive entry so identical input produces
// identical bytes.
var zipEpoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// Assembler builds DOCX packages from page texts. It holds no state and is
// safe for concurrent use.
type Assembler struct {
	// Creator is written to the package core properties.
	Creator string
}

// NewAssembler returns an assembler with default metadata.
func NewAssembler() *Assembler {
	return &Assembler{Creator: "scan2docx"}
}

// Assemble renders pages in the given order. An empty title omits the title
// paragraph; an empty page list yields a document containing only the title.
func (a *Assembler) Assemble(pages []domain.PageText, title string) ([]byte, error) {
	parts := []struct {
		name string
		body string
	}{
		{"[Content_Types].xml", contentTypesXML},
		{"_rels/.rels", rootRelsXML},
		{"docProps/core.xml", a.coreXML(title)},
		{"word/_rels/document.xml.rels", documentRelsXML},
		{"word/styles.xml", stylesXML},
		{"word/document.xml", documentXML(pages, title)},
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, p := range parts {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     p.name,
			Method:   zip.Deflate,
			Modified: zipEpoch,
		})
		if err != nil {
			return nil, domain.AssemblyError("create "+p.name, err)
		}
		if _, err := w.Write([]byte(p.body)); err != nil {
			return nil, domain.AssemblyError("write "+p.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, domain.AssemblyError("finalize document", err)
	}

	return buf.Bytes(), nil
}

func documentXML(pages []domain.PageText, title string) string {
	var b strings.Builder
	b.WriteString(xml.Header)
	b.WriteString(`<w:document xmlns:w="` + nsW + `"><w:body>`)

	if title != "" {
		writeParagraph(&b, StyleTitle, title, false)
	}

	for i, page := range pages {
		if i > 0 {
			b.WriteString(`<w:p><w:r><w:br w:type="page"/></w:r></w:p>`)
		}
		writeParagraph(&b, StylePageHeading, "Page "+strconv.Itoa(page.Index), false)

		if page.Failed {
			writeParagraph(&b, "", FailureMarker(page.FailureReason), true)
			continue
		}
		for _, block := range Blocks(page.Text) {
			writeParagraph(&b, "", block, false)
		}
	}

	b.WriteString(`<w:sectPr><w:pgSz w:w="12240" w:h="15840"/>`)
	b.WriteString(`<w:pgMar w:top="1440" w:right="1440" w:bottom="1440" w:left="1440" w:header="720" w:footer="720" w:gutter="0"/>`)
	b.WriteString(`</w:sectPr></w:body></w:document>`)
	return b.String()
}

// Blocks splits page text into paragraphs on blank lines. Blocks are
// trimmed and whitespace-only blocks are dropped.
func Blocks(text string) []string {
	var out []string
	for _, block := range strings.Split(text, "\n\n") {
		if block = strings.TrimSpace(block); block != "" {
			out = append(out, block)
		}
	}
	return out
}

// FailureMarker is the text placed on a page whose recognition failed.
func FailureMarker(reason string) string {
	if reason == "" {
		return "[OCR failed on this page]"
	}
	return "[OCR failed on this page: " + reason + "]"
}

// writeParagraph emits one paragraph. Newlines inside text become line breaks
// within a single run.
func writeParagraph(b *strings.Builder, style, text string, italic bool) {
	b.WriteString("<w:p>")
	if style != "" {
		b.WriteString(`<w:pPr><w:pStyle w:val="` + style + `"/></w:pPr>`)
	}
	b.WriteString("<w:r>")
	if italic {
		b.WriteString("<w:rPr><w:i/></w:rPr>")
	}
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			b.WriteString("<w:br/>")
		}
		b.WriteString(`<w:t xml:space="preserve">`)
		escape(b, line)
		b.WriteString("</w:t>")
	}
	b.WriteString("</w:r></w:p>")
}

func escape(b *strings.Builder, s string) {
	// strings.Builder writes never fail
	_ = xml.EscapeText(b, []byte(s))
}

func (a *Assembler) coreXML(title string) string {
	var b strings.Builder
	b.WriteString(xml.Header)
	b.WriteString(`<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" xmlns:dc="http://purl.org/dc/elements/1.1/">`)
	if title != "" {
		b.WriteString("<dc:title>")
		escape(&b, title)
		b.WriteString("</dc:title>")
	}
	if a.Creator != "" {
		b.WriteString("<dc:creator>")
		escape(&b, a.Creator)
		b.WriteString("</dc:creator>")
	}
	b.WriteString("</cp:coreProperties>")
	return b.String()
}

const nsW = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"

const contentTypesXML = xml.Header +
	`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
	`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>` +
	`<Default Extension="xml" ContentType="application/xml"/>` +
	`<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>` +
	`<Override PartName="/word/styles.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.styles+xml"/>` +
	`<Override PartName="/docProps/core.xml" ContentType="application/vnd.openxmlformats-package.core-properties+xml"/>` +
	`</Types>`

const rootRelsXML = xml.Header +
	`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
	`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>` +
	`<Relationship Id="rId2" Type="http://schemas.openxmlformats.org/package/2006/relationships/metadata/core-properties" Target="docProps/core.xml"/>` +
	`</Relationships>`

const documentRelsXML = xml.Header +
	`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
	`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/styles" Target="styles.xml"/>` +
	`</Relationships>`

const stylesXML = xml.Header +
	`<w:styles xmlns:w="` + nsW + `">` +
	`<w:docDefaults><w:rPrDefault><w:rPr><w:rFonts w:ascii="Calibri" w:hAnsi="Calibri" w:cs="Calibri"/><w:sz w:val="22"/></w:rPr></w:rPrDefault>` +
	`<w:pPrDefault><w:pPr><w:spacing w:after="160" w:line="259" w:lineRule="auto"/></w:pPr></w:pPrDefault></w:docDefaults>` +
	`<w:style w:type="paragraph" w:default="1" w:styleId="Normal"><w:name w:val="Normal"/><w:qFormat/></w:style>` +
	`<w:style w:type="paragraph" w:styleId="Heading1"><w:name w:val="heading 1"/><w:basedOn w:val="Normal"/><w:next w:val="Normal"/><w:qFormat/>` +
	`<w:pPr><w:keepNext/><w:spacing w:before="240" w:after="120"/><w:outlineLvl w:val="0"/></w:pPr>` +
	`<w:rPr><w:b/><w:color w:val="2F5496"/><w:sz w:val="32"/></w:rPr></w:style>` +
	`<w:style w:type="paragraph" w:styleId="Heading2"><w:name w:val="heading 2"/><w:basedOn w:val="Normal"/><w:next w:val="Normal"/><w:qFormat/>` +
	`<w:pPr><w:keepNext/><w:spacing w:before="200" w:after="80"/><w:outlineLvl w:val="1"/></w:pPr>` +
	`<w:rPr><w:b/><w:color w:val="2F5496"/><w:sz w:val="26"/></w:rPr></w:style>` +
	`</w:styles>`
