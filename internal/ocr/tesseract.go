package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/spherical/scan2docx/internal/domain"
	"github.com/spherical/scan2docx/internal/imaging"
)

// TesseractCLI runs the tesseract binary once per page, feeding the page
// as PNG on stdin and reading text from stdout.
type TesseractCLI struct {
	Binary      string
	TessdataDir string
	Timeout     time.Duration

	// Languages are the packs Check requires to be installed.
	Languages []domain.Language
}

// NewTesseractCLI returns an engine with sane defaults.
func NewTesseractCLI(binary, tessdataDir string, timeout time.Duration, languages []domain.Language) *TesseractCLI {
	if binary == "" {
		binary = "tesseract"
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &TesseractCLI{
		Binary:      binary,
		TessdataDir: tessdataDir,
		Timeout:     timeout,
		Languages:   languages,
	}
}

// Recognize returns the text of one page. Blank pages yield "".
func (t *TesseractCLI) Recognize(ctx context.Context, page domain.PageImage, params domain.RecognitionParams) (string, error) {
	if page.Image == nil {
		return "", domain.OCRError(fmt.Sprintf("page %d has no image", page.Index), nil)
	}

	img, err := imaging.EncodePNG(page.Image)
	if err != nil {
		return "", domain.OCRError(fmt.Sprintf("failed to encode page %d", page.Index), err)
	}

	out, stderr, err := t.run(ctx, bytes.NewReader(img), t.recognizeArgs(params)...)
	if err != nil {
		return "", t.classify(ctx, fmt.Sprintf("page %d", page.Index), stderr, err)
	}
	if isMissingLanguage(stderr) {
		return "", domain.ConfigError(fmt.Sprintf("language pack %q is not installed", params.Language), errors.New(strings.TrimSpace(stderr)))
	}

	return cleanText(out), nil
}

func (t *TesseractCLI) recognizeArgs(params domain.RecognitionParams) []string {
	lang := params.Language
	if lang == "" {
		lang = domain.DefaultLanguage
	}
	segMode := params.SegMode
	if segMode == 0 {
		segMode = domain.DefaultSegmentationMode
	}
	engineMode := params.EngineMode
	if engineMode == 0 {
		engineMode = domain.DefaultEngineMode
	}

	args := t.baseArgs()
	return append(args,
		"stdin", "stdout",
		"-l", string(lang),
		"--oem", strconv.Itoa(int(engineMode)),
		"--psm", strconv.Itoa(int(segMode)),
	)
}

func (t *TesseractCLI) baseArgs() []string {
	if t.TessdataDir == "" {
		return nil
	}
	return []string{"--tessdata-dir", t.TessdataDir}
}

// ListLanguages returns the language packs the binary reports as installed.
func (t *TesseractCLI) ListLanguages(ctx context.Context) ([]string, error) {
	args := append(t.baseArgs(), "--list-langs")
	out, stderr, err := t.run(ctx, nil, args...)
	if err != nil {
		return nil, t.classify(ctx, "list languages", stderr, err)
	}
	// older releases print the list on stderr
	return parseLanguageList(out + "\n" + stderr), nil
}

// Check fails with a configuration error when the binary is missing or any
// configured language pack is not installed.
func (t *TesseractCLI) Check(ctx context.Context) error {
	return t.CheckLanguages(ctx, t.Languages)
}

// CheckLanguages is Check restricted to langs.
func (t *TesseractCLI) CheckLanguages(ctx context.Context, langs []domain.Language) error {
	installed, err := t.ListLanguages(ctx)
	if err != nil {
		return err
	}

	have := make(map[string]bool, len(installed))
	for _, l := range installed {
		have[l] = true
	}

	var missing []string
	seen := make(map[string]bool)
	for _, lang := range langs {
		for _, code := range lang.Codes() {
			if !have[code] && !seen[code] {
				seen[code] = true
				missing = append(missing, code)
			}
		}
	}
	if len(missing) > 0 {
		return domain.ConfigError(fmt.Sprintf("tesseract language packs not installed: %s", strings.Join(missing, ", ")), nil)
	}
	return nil
}

func (t *TesseractCLI) run(ctx context.Context, stdin *bytes.Reader, args ...string) (string, string, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, t.Binary, args...)
	cmd.WaitDelay = 2 * time.Second
	if stdin != nil {
		cmd.Stdin = stdin
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil && cmdCtx.Err() != nil {
		// killed by the deadline or by the caller
		err = fmt.Errorf("%w (%v)", cmdCtx.Err(), err)
	}
	return stdout.String(), stderr.String(), err
}

func (t *TesseractCLI) classify(ctx context.Context, what, stderr string, err error) error {
	diag := strings.TrimSpace(stderr)
	switch {
	case errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist):
		return domain.ConfigError(fmt.Sprintf("tesseract binary not found (%s)", t.Binary), err)
	case ctx.Err() != nil:
		return domain.CancelledError(fmt.Sprintf("cancelled during OCR of %s", what), ctx.Err())
	case isMissingLanguage(diag):
		return domain.ConfigError("tesseract language pack not installed", fmt.Errorf("%w: %s", err, diag))
	case errors.Is(err, context.DeadlineExceeded):
		return domain.OCRError(fmt.Sprintf("tesseract timed out after %s on %s", t.Timeout, what), err)
	}
	if diag != "" {
		return domain.OCRError(fmt.Sprintf("tesseract failed on %s: %s", what, diag), err)
	}
	return domain.OCRError(fmt.Sprintf("tesseract failed on %s", what), err)
}

func parseLanguageList(out string) []string {
	var langs []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of") || strings.Contains(line, " ") {
			continue
		}
		langs = append(langs, line)
	}
	return langs
}
