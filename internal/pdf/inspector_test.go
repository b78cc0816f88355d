package pdf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/scan2docx/internal/domain"
)

func TestInspector_Inspect(t *testing.T) {
	info, err := NewInspector().Inspect(buildPDF(3))
	require.NoError(t, err)
	assert.Equal(t, 3, info.Pages)
	assert.Equal(t, "1.4", info.Version)
	assert.False(t, info.Encrypted)
}

func TestInspector_PageCount(t *testing.T) {
	n, err := NewInspector().PageCount(buildPDF(1))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestInspector_RejectsGarbage(t *testing.T) {
	_, err := NewInspector().Inspect([]byte("%PDF-1.4\nthis is not really a pdf"))
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrorTypeRender))

	_, err = NewInspector().Inspect(nil)
	assert.True(t, domain.IsKind(err, domain.ErrorTypeRender))
}
