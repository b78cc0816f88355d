// Package ocr recognizes text in rendered page images with Tesseract.
//
// Two engines are provided. TesseractCLI runs the tesseract binary and is
// always available. LibTesseract links libtesseract through gosseract and
// requires the "gosseract" build tag:
//
//	go build -tags gosseract ./...
package ocr

import "strings"

// cleanText normalizes raw engine output: CRLF becomes LF, form feeds
// between pages are dropped and surrounding whitespace is trimmed.
func cleanText(raw string) string {
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\f", "")
	return strings.TrimSpace(text)
}

var missingLanguageMarkers = []string{
	"Failed loading language",
	"Error opening data file",
	"couldn't load any languages",
}

// isMissingLanguage reports whether engine diagnostics point at an absent
// traineddata file rather than a recognition failure.
func isMissingLanguage(diag string) bool {
	for _, m := range missingLanguageMarkers {
		if strings.Contains(diag, m) {
			return true
		}
	}
	return false
}
