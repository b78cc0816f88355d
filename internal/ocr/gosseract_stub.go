//go:build !gosseract

package ocr

import (
	"context"

	"github.com/spherical/scan2docx/internal/domain"
)

// errLibTesseractDisabled is returned when the binary was built without libtesseract.
var errLibTesseractDisabled = domain.ConfigError(
	"in-process OCR engine not compiled in; rebuild with -tags gosseract or use the tesseract engine", nil)

// LibTesseract is unavailable without the "gosseract" build tag.
type LibTesseract struct{}

// NewLibTesseract always fails in this build.
func NewLibTesseract(string) (*LibTesseract, error) {
	return nil, errLibTesseractDisabled
}

// Recognize always fails in this build.
func (e *LibTesseract) Recognize(context.Context, domain.PageImage, domain.RecognitionParams) (string, error) {
	return "", errLibTesseractDisabled
}
