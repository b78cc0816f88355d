//go:build gosseract

package ocr

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"

	"github.com/spherical/scan2docx/internal/domain"
	"github.com/spherical/scan2docx/internal/imaging"
)

// LibTesseract recognizes pages in-process through libtesseract.
// A fresh client is created per page so the engine is safe for concurrent use.
type LibTesseract struct {
	tessdataDir   string
	clientFactory func() *gosseract.Client
}

// NewLibTesseract constructs the in-process engine.
func NewLibTesseract(tessdataDir string) (*LibTesseract, error) {
	return &LibTesseract{
		tessdataDir:   tessdataDir,
		clientFactory: gosseract.NewClient,
	}, nil
}

// Recognize returns the text of one page. The engine mode is left at the
// library default, which is OEM 3.
func (e *LibTesseract) Recognize(ctx context.Context, page domain.PageImage, params domain.RecognitionParams) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", domain.CancelledError(fmt.Sprintf("cancelled before OCR of page %d", page.Index), err)
	}
	if page.Image == nil {
		return "", domain.OCRError(fmt.Sprintf("page %d has no image", page.Index), nil)
	}

	img, err := imaging.EncodePNG(page.Image)
	if err != nil {
		return "", domain.OCRError(fmt.Sprintf("failed to encode page %d", page.Index), err)
	}

	c := e.clientFactory()
	defer c.Close()

	if e.tessdataDir != "" {
		if err := c.SetTessdataPrefix(e.tessdataDir); err != nil {
			return "", domain.ConfigError("set tessdata dir", err)
		}
	}

	lang := params.Language
	if lang == "" {
		lang = domain.DefaultLanguage
	}
	if err := c.SetLanguage(lang.Codes()...); err != nil {
		return "", domain.ConfigError(fmt.Sprintf("set language %q", lang), err)
	}

	segMode := params.SegMode
	if segMode == 0 {
		segMode = domain.DefaultSegmentationMode
	}
	if err := c.SetPageSegMode(gosseract.PageSegMode(segMode)); err != nil {
		return "", domain.OCRError("set page segmentation mode", err)
	}

	if err := c.SetImageFromBytes(img); err != nil {
		return "", domain.OCRError(fmt.Sprintf("set image for page %d", page.Index), err)
	}

	text, err := c.Text()
	if err != nil {
		if isMissingLanguage(err.Error()) {
			return "", domain.ConfigError(fmt.Sprintf("language pack %q is not installed", lang), err)
		}
		return "", domain.OCRError(fmt.Sprintf("recognize page %d", page.Index), err)
	}

	return cleanText(text), nil
}
