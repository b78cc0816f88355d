package docx

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strings"

	"github.com/spherical/scan2docx/internal/domain"
)

// BlockKind classifies a paragraph read back from a document.
type BlockKind string

const (
	KindTitle       BlockKind = "title"
	KindPageHeading BlockKind = "page_heading"
	KindParagraph   BlockKind = "paragraph"
	KindPageBreak   BlockKind = "page_break"
)

// Block is one body paragraph.
type Block struct {
	Kind   BlockKind `json:"kind"`
	Text   string    `json:"text,omitempty"`
	Italic bool      `json:"italic,omitempty"`
}

// Outline is the paragraph structure of a document body.
type Outline struct {
	Blocks []Block `json:"blocks"`
}

// PageOutline groups the paragraphs that follow one page heading.
type PageOutline struct {
	Heading    string   `json:"heading"`
	Paragraphs []string `json:"paragraphs"`
}

// Title returns the first title paragraph, or "".
func (o Outline) Title() string {
	for _, b := range o.Blocks {
		if b.Kind == KindTitle {
			return b.Text
		}
	}
	return ""
}

// PageBreaks counts explicit page breaks.
func (o Outline) PageBreaks() int {
	n := 0
	for _, b := range o.Blocks {
		if b.Kind == KindPageBreak {
			n++
		}
	}
	return n
}

// Pages groups paragraphs by page heading in document order.
func (o Outline) Pages() []PageOutline {
	var pages []PageOutline
	for _, b := range o.Blocks {
		switch b.Kind {
		case KindPageHeading:
			pages = append(pages, PageOutline{Heading: b.Text})
		case KindParagraph:
			if len(pages) > 0 {
				last := &pages[len(pages)-1]
				last.Paragraphs = append(last.Paragraphs, b.Text)
			}
		}
	}
	return pages
}

// Inspect parses the body of a DOCX package into an Outline.
func Inspect(doc []byte) (*Outline, error) {
	zr, err := zip.NewReader(bytes.NewReader(doc), int64(len(doc)))
	if err != nil {
		return nil, domain.ValidationError("not a DOCX package", err)
	}

	var body *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			body = f
			break
		}
	}
	if body == nil {
		return nil, domain.ValidationError("DOCX package has no word/document.xml", nil)
	}

	rc, err := body.Open()
	if err != nil {
		return nil, domain.IOError("open word/document.xml", err)
	}
	defer rc.Close()

	blocks, err := parseBody(rc)
	if err != nil {
		return nil, domain.ValidationError("malformed word/document.xml", err)
	}
	return &Outline{Blocks: blocks}, nil
}

type paragraphState struct {
	style     string
	text      strings.Builder
	italic    bool
	pageBreak bool
	inText    bool
}

func parseBody(r io.Reader) ([]Block, error) {
	dec := xml.NewDecoder(r)
	var (
		blocks []Block
		p      *paragraphState
	)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				p = &paragraphState{}
			case "pStyle":
				if p != nil {
					p.style = attr(t, "val")
				}
			case "i":
				if p != nil {
					p.italic = true
				}
			case "br":
				if p == nil {
					continue
				}
				if attr(t, "type") == "page" {
					p.pageBreak = true
				} else {
					p.text.WriteByte('\n')
				}
			case "t":
				if p != nil {
					p.inText = true
				}
			}
		case xml.CharData:
			if p != nil && p.inText {
				p.text.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				if p != nil {
					p.inText = false
				}
			case "p":
				if p != nil {
					blocks = append(blocks, p.block())
					p = nil
				}
			}
		}
	}

	return blocks, nil
}

func (p *paragraphState) block() Block {
	text := p.text.String()
	switch {
	case p.pageBreak && strings.TrimSpace(text) == "":
		return Block{Kind: KindPageBreak}
	case p.style == StyleTitle || p.style == "Title":
		return Block{Kind: KindTitle, Text: text}
	case p.style == StylePageHeading:
		return Block{Kind: KindPageHeading, Text: text}
	default:
		return Block{Kind: KindParagraph, Text: text, Italic: p.italic}
	}
}

func attr(el xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}
