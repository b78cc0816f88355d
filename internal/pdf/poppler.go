package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spherical/scan2docx/internal/domain"
)

// PopplerRasterizer renders pages by invoking pdftoppm once per page.
type PopplerRasterizer struct {
	Binary    string
	Timeout   time.Duration
	inspector *Inspector
}

// NewPopplerRasterizer returns a rasterizer that runs the given pdftoppm binary.
func NewPopplerRasterizer(binary string, timeout time.Duration) *PopplerRasterizer {
	if binary == "" {
		binary = "pdftoppm"
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &PopplerRasterizer{
		Binary:    binary,
		Timeout:   timeout,
		inspector: NewInspector(),
	}
}

// Check verifies that the pdftoppm binary can be found.
func (r *PopplerRasterizer) Check(ctx context.Context) error {
	if _, err := exec.LookPath(r.Binary); err != nil {
		return domain.ConfigError(fmt.Sprintf("pdftoppm binary not found (%s)", r.Binary), err)
	}
	return nil
}

// Rasterize copies source to a private temp directory and renders pages on demand.
func (r *PopplerRasterizer) Rasterize(ctx context.Context, source []byte, dpi int) (domain.PageSource, error) {
	n, err := r.inspector.PageCount(source)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, domain.CancelledError("conversion cancelled before rendering", err)
	}

	dir, err := os.MkdirTemp("", "scan2docx-poppler-*")
	if err != nil {
		return nil, domain.IOError("failed to create temp directory", err)
	}

	input := filepath.Join(dir, "input.pdf")
	if err := os.WriteFile(input, source, 0o600); err != nil {
		os.RemoveAll(dir)
		return nil, domain.IOError("failed to write temp PDF", err)
	}

	return &popplerPages{
		r:     r,
		dir:   dir,
		input: input,
		dpi:   domain.ClampDPI(dpi),
		n:     n,
	}, nil
}

type popplerPages struct {
	r     *PopplerRasterizer
	dir   string
	input string
	dpi   int
	n     int
}

func (p *popplerPages) NumPages() int { return p.n }

func (p *popplerPages) Page(ctx context.Context, index int) (domain.PageImage, error) {
	if index < 1 || index > p.n {
		return domain.PageImage{}, domain.RenderError(fmt.Sprintf("page %d out of range (document has %d pages)", index, p.n), nil)
	}
	if err := ctx.Err(); err != nil {
		return domain.PageImage{}, domain.CancelledError(fmt.Sprintf("cancelled before rendering page %d", index), err)
	}

	outRoot := filepath.Join(p.dir, fmt.Sprintf("page-%d", index))
	page := strconv.Itoa(index)
	args := []string{
		"-png",
		"-r", strconv.Itoa(p.dpi),
		"-f", page,
		"-l", page,
		"-singlefile",
		p.input,
		outRoot,
	}

	cmdCtx, cancel := context.WithTimeout(ctx, p.r.Timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, p.r.Binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if isNotFound(err) {
			return domain.PageImage{}, domain.ConfigError(fmt.Sprintf("pdftoppm binary not found (%s)", p.r.Binary), err)
		}
		if ctx.Err() != nil {
			return domain.PageImage{}, domain.CancelledError(fmt.Sprintf("cancelled while rendering page %d", index), ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		return domain.PageImage{}, domain.RenderError(fmt.Sprintf("pdftoppm failed on page %d: %s", index, msg), err)
	}

	outPath := outRoot + ".png"
	defer os.Remove(outPath)

	f, err := os.Open(outPath)
	if err != nil {
		return domain.PageImage{}, domain.RenderError(fmt.Sprintf("pdftoppm produced no image for page %d", index), err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return domain.PageImage{}, domain.RenderError(fmt.Sprintf("failed to decode page %d", index), err)
	}

	return domain.PageImage{Index: index, Image: img}, nil
}

func (p *popplerPages) Close() error {
	if p.dir == "" {
		return nil
	}
	err := os.RemoveAll(p.dir)
	p.dir = ""
	return err
}

func isNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist)
}
