// Package pdf rasterizes PDF documents into page images.
package pdf

import (
	"context"
	"errors"
	"fmt"

	"github.com/gen2brain/go-fitz"

	"github.com/spherical/scan2docx/internal/domain"
)

// FitzRasterizer renders pages in-process with MuPDF through go-fitz.
type FitzRasterizer struct{}

// NewFitzRasterizer creates a new in-process rasterizer
func NewFitzRasterizer() *FitzRasterizer {
	return &FitzRasterizer{}
}

// Rasterize opens source and returns a lazily rendered page sequence.
func (r *FitzRasterizer) Rasterize(ctx context.Context, source []byte, dpi int) (domain.PageSource, error) {
	if err := ValidateSource(source); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, domain.CancelledError("conversion cancelled before rendering", err)
	}

	doc, err := fitz.NewFromMemory(source)
	if err != nil {
		if errors.Is(err, fitz.ErrNeedsPassword) {
			return nil, domain.RenderError("document is password protected", err)
		}
		return nil, domain.RenderError("failed to open PDF", err)
	}

	return &fitzPages{
		doc: doc,
		dpi: domain.ClampDPI(dpi),
		n:   doc.NumPage(),
	}, nil
}

type fitzPages struct {
	doc *fitz.Document
	dpi int
	n   int
}

func (p *fitzPages) NumPages() int { return p.n }

func (p *fitzPages) Page(ctx context.Context, index int) (domain.PageImage, error) {
	if index < 1 || index > p.n {
		return domain.PageImage{}, domain.RenderError(fmt.Sprintf("page %d out of range (document has %d pages)", index, p.n), nil)
	}
	if err := ctx.Err(); err != nil {
		return domain.PageImage{}, domain.CancelledError(fmt.Sprintf("cancelled before rendering page %d", index), err)
	}
	if p.doc == nil {
		return domain.PageImage{}, domain.RenderError("document already closed", nil)
	}

	img, err := p.doc.ImageDPI(index-1, float64(p.dpi))
	if err != nil {
		return domain.PageImage{}, domain.RenderError(fmt.Sprintf("failed to render page %d", index), err)
	}

	return domain.PageImage{Index: index, Image: img}, nil
}

func (p *fitzPages) Close() error {
	if p.doc == nil {
		return nil
	}
	err := p.doc.Close()
	p.doc = nil
	return err
}
