package bootstrap

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/scan2docx/internal/cache"
	"github.com/spherical/scan2docx/internal/config"
	"github.com/spherical/scan2docx/internal/observability"
	"github.com/spherical/scan2docx/internal/ocr"
	"github.com/spherical/scan2docx/internal/pdf"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Database.SQLite.Path = filepath.Join(t.TempDir(), "jobs.db")
	return cfg
}

func TestNewRasterizer(t *testing.T) {
	cfg := testConfig(t)

	r, err := NewRasterizer(cfg)
	require.NoError(t, err)
	assert.IsType(t, &pdf.FitzRasterizer{}, r)

	cfg.Engines.Rasterizer = "poppler"
	cfg.Engines.PdftoppmPath = "/opt/poppler/pdftoppm"
	r, err = NewRasterizer(cfg)
	require.NoError(t, err)
	require.IsType(t, &pdf.PopplerRasterizer{}, r)
	assert.Equal(t, "/opt/poppler/pdftoppm", r.(*pdf.PopplerRasterizer).Binary)

	cfg.Engines.Rasterizer = "ghostscript"
	_, err = NewRasterizer(cfg)
	assert.Error(t, err)
}

func TestNewRecognizer_TesseractCLI(t *testing.T) {
	cfg := testConfig(t)
	cfg.Engines.TesseractPath = "/usr/local/bin/tesseract"
	cfg.Engines.TessdataDir = "/share/tessdata"

	rec, err := NewRecognizer(cfg)
	require.NoError(t, err)
	require.IsType(t, &ocr.TesseractCLI{}, rec)
	cli := rec.(*ocr.TesseractCLI)
	assert.Equal(t, "/usr/local/bin/tesseract", cli.Binary)
	assert.Equal(t, "/share/tessdata", cli.TessdataDir)
	assert.Equal(t, cfg.Engines.PageTimeout, cli.Timeout)
}

func TestNewService_UsesConfiguredLanguages(t *testing.T) {
	cfg := testConfig(t)
	cfg.Conversion.Languages = []string{"eng", "jpn"}

	svc, err := NewService(cfg, observability.NewNopLogger())
	require.NoError(t, err)
	assert.Len(t, svc.Languages(), 2)
}

func TestNew_WiresHTTPService(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Server.APIKey = "secret"

	app, err := New(ctx, cfg, observability.NewNopLogger())
	require.NoError(t, err)
	assert.IsType(t, &cache.MemoryClient{}, app.Cache)

	ts := httptest.NewServer(app.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	resp, err = http.Get(ts.URL + "/api/v1/jobs")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/jobs", nil)
	req.Header.Set("x-api-key", "secret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	closeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	assert.NoError(t, app.Close(closeCtx))
}

func TestNew_BadDatabase(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.SQLite.Path = filepath.Join(t.TempDir(), "missing", "dir", "jobs.db")

	_, err := New(context.Background(), cfg, observability.NewNopLogger())
	assert.ErrorContains(t, err, "open job store")
}
