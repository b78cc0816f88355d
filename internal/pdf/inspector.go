package pdf

import (
	"bytes"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/spherical/scan2docx/internal/domain"
)

// Info describes a PDF without rendering it.
type Info struct {
	Pages     int    `json:"pages"`
	Version   string `json:"version"`
	Encrypted bool   `json:"encrypted"`
}

// Inspector reads PDF structure with pdfcpu.
type Inspector struct {
	conf *model.Configuration
}

var disableConfigDir sync.Once

// NewInspector creates an inspector using relaxed validation.
func NewInspector() *Inspector {
	// pdfcpu otherwise writes a config directory under the user's home on first use
	disableConfigDir.Do(api.DisableConfigDir)

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	return &Inspector{conf: conf}
}

// Inspect returns page count, version and encryption state of source.
func (i *Inspector) Inspect(source []byte) (*Info, error) {
	if err := ValidateSource(source); err != nil {
		return nil, err
	}

	ctx, err := api.ReadContext(bytes.NewReader(source), i.conf)
	if err != nil {
		if isPasswordError(err) {
			return nil, domain.RenderError("document is password protected", err)
		}
		return nil, domain.RenderError("failed to read PDF structure", err)
	}

	if err := ctx.EnsurePageCount(); err != nil {
		return nil, domain.RenderError("failed to determine page count", err)
	}

	info := &Info{
		Pages:     ctx.PageCount,
		Encrypted: ctx.Encrypt != nil,
	}
	if ctx.HeaderVersion != nil {
		info.Version = ctx.HeaderVersion.String()
	}

	return info, nil
}

// PageCount is a convenience wrapper around Inspect.
func (i *Inspector) PageCount(source []byte) (int, error) {
	info, err := i.Inspect(source)
	if err != nil {
		return 0, err
	}
	return info.Pages, nil
}

func isPasswordError(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "password")
}
