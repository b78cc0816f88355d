package convert

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode"
)

// outputTimeLayout stamps generated file names as YYYYMMDD_HHMMSS.
const outputTimeLayout = "20060102_150405"

// titlePrefix heads every generated document.
const titlePrefix = "OCR Output - "

var unsafeRun = regexp.MustCompile(`[^\p{L}\p{N}_\-. ]+`)

// SanitizeFilename makes name safe for use as a file name. Runs of
// characters other than letters, digits, '_', '-', '.' and space become a
// single '_'. A result without any letter or digit becomes "output".
func SanitizeFilename(name string) string {
	cleaned := strings.TrimSpace(unsafeRun.ReplaceAllString(name, "_"))
	if !strings.ContainsFunc(cleaned, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsNumber(r)
	}) {
		return "output"
	}
	return cleaned
}

// OutputName builds "{stem}_OCR_{YYYYMMDD_HHMMSS}.docx" for a source file.
func OutputName(sourceName string, now time.Time) string {
	base := sourceName
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return SanitizeFilename(stem) + "_OCR_" + now.Format(outputTimeLayout) + ".docx"
}

// DocumentTitle returns the heading for a source file, or "" when the
// source is unnamed.
func DocumentTitle(sourceName string) string {
	if strings.TrimSpace(sourceName) == "" {
		return ""
	}
	return titlePrefix + sourceName
}
