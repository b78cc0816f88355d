//go:build !gosseract

package bootstrap

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spherical/scan2docx/internal/domain"
)

func TestNewRecognizer_GosseractRequiresBuildTag(t *testing.T) {
	cfg := testConfig(t)
	cfg.Engines.OCR = "gosseract"

	_, err := NewRecognizer(cfg)
	assert.True(t, domain.IsKind(err, domain.ErrorTypeConfig))
}
