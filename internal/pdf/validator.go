package pdf

import (
	"bytes"

	"github.com/spherical/scan2docx/internal/domain"
)

// headerWindow is how far into the input the %PDF- marker may appear.
// Some producers prepend junk before the header and readers tolerate it.
const headerWindow = 1024

var pdfMagic = []byte("%PDF-")

// ValidateSource rejects input that cannot be a PDF before any engine sees it.
func ValidateSource(source []byte) error {
	if len(source) == 0 {
		return domain.RenderError("document is empty", nil)
	}

	head := source
	if len(head) > headerWindow {
		head = head[:headerWindow]
	}
	if !bytes.Contains(head, pdfMagic) {
		return domain.RenderError("document is not a PDF (missing %PDF- header)", nil)
	}

	return nil
}
