package domain

import (
	"fmt"
	"image"
	"strconv"
	"strings"
	"time"
)

// DOCXContentType is the MIME type advertised for generated documents.
const DOCXContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// DPI bounds for rasterization
const (
	MinDPI     = 150
	MaxDPI     = 400
	DefaultDPI = 250
)

// ClampDPI forces dpi into [MinDPI, MaxDPI]. Zero selects DefaultDPI.
func ClampDPI(dpi int) int {
	switch {
	case dpi == 0:
		return DefaultDPI
	case dpi < MinDPI:
		return MinDPI
	case dpi > MaxDPI:
		return MaxDPI
	default:
		return dpi
	}
}

// Language is a Tesseract language code such as "eng". Several codes may be
// joined with "+".
type Language string

// DefaultLanguage is used when a request does not name one.
const DefaultLanguage Language = "eng"

// DefaultLanguages is the built-in supported language set.
var DefaultLanguages = []Language{"eng", "fra", "deu", "spa", "ita", "por"}

// Codes splits a multi-language code into its components.
func (l Language) Codes() []string {
	parts := strings.Split(string(l), "+")
	codes := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			codes = append(codes, p)
		}
	}
	return codes
}

// ValidateLanguage checks that every component of lang is in supported.
func ValidateLanguage(lang Language, supported []Language) error {
	codes := lang.Codes()
	if len(codes) == 0 {
		return ValidationError("language is required", nil)
	}
	for _, code := range codes {
		found := false
		for _, s := range supported {
			if string(s) == code {
				found = true
				break
			}
		}
		if !found {
			return ValidationError(fmt.Sprintf("unsupported language %q", code), nil)
		}
	}
	return nil
}

// SegmentationMode is a Tesseract page segmentation mode (PSM).
type SegmentationMode int

const (
	SegAutomatic     SegmentationMode = 3
	SegSingleColumn  SegmentationMode = 4
	SegSingleBlock   SegmentationMode = 6
	SegSparseText    SegmentationMode = 11
	SegSparseTextOSD SegmentationMode = 12
)

// DefaultSegmentationMode is fully automatic page segmentation.
const DefaultSegmentationMode = SegAutomatic

var segmentationNames = map[SegmentationMode]string{
	SegAutomatic:     "automatic",
	SegSingleColumn:  "single-column",
	SegSingleBlock:   "single-block",
	SegSparseText:    "sparse",
	SegSparseTextOSD: "sparse-osd",
}

// SupportedSegmentationModes lists the modes accepted by the pipeline in
// display order.
var SupportedSegmentationModes = []SegmentationMode{
	SegAutomatic, SegSingleColumn, SegSingleBlock, SegSparseText, SegSparseTextOSD,
}

func (m SegmentationMode) String() string {
	if name, ok := segmentationNames[m]; ok {
		return name
	}
	return "psm-" + strconv.Itoa(int(m))
}

// Valid reports whether m is one of the supported modes.
func (m SegmentationMode) Valid() bool {
	_, ok := segmentationNames[m]
	return ok
}

// ParseSegmentationMode accepts either the numeric PSM ("6") or its name
// ("single-block"). An empty string selects the default.
func ParseSegmentationMode(s string) (SegmentationMode, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return DefaultSegmentationMode, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		m := SegmentationMode(n)
		if !m.Valid() {
			return 0, ValidationError(fmt.Sprintf("unsupported segmentation mode %d", n), nil)
		}
		return m, nil
	}
	for m, name := range segmentationNames {
		if name == s {
			return m, nil
		}
	}
	return 0, ValidationError(fmt.Sprintf("unknown segmentation mode %q", s), nil)
}

// EngineMode is the Tesseract OCR engine mode (OEM).
type EngineMode int

// DefaultEngineMode lets Tesseract pick the best available engine. It is
// used for every page of every conversion.
const DefaultEngineMode EngineMode = 3

// RecognitionParams are the OCR parameters fixed for one conversion.
type RecognitionParams struct {
	Language   Language
	SegMode    SegmentationMode
	EngineMode EngineMode
}

// ConversionRequest is one upload to convert.
type ConversionRequest struct {
	Source     []byte
	SourceName string
	DPI        int
	Language   Language
	SegMode    SegmentationMode
}

// Params returns the recognition parameters for every page of r.
func (r ConversionRequest) Params() RecognitionParams {
	return RecognitionParams{
		Language:   r.Language,
		SegMode:    r.SegMode,
		EngineMode: DefaultEngineMode,
	}
}

// PageImage represents a single rasterized PDF page
type PageImage struct {
	Index int // 1-based
	Image image.Image
}

// Width returns the page width in pixels.
func (p PageImage) Width() int {
	if p.Image == nil {
		return 0
	}
	return p.Image.Bounds().Dx()
}

// Height returns the page height in pixels.
func (p PageImage) Height() int {
	if p.Image == nil {
		return 0
	}
	return p.Image.Bounds().Dy()
}

// PageText is the recognized text of one page.
type PageText struct {
	Index         int
	Text          string
	Failed        bool
	FailureReason string
}

// ConversionResult is a finished output document.
type ConversionResult struct {
	Document    []byte
	Name        string
	Title       string
	Pages       int
	ContentType string
	// FailedPages counts pages replaced by a failure marker.
	FailedPages int
}

// EventType represents the type of stream event
type EventType string

const (
	EventStart        EventType = "start"
	EventPageComplete EventType = "page_complete"
	EventAssembling   EventType = "assembling"
	EventComplete     EventType = "complete"
)

// StreamEvent represents a progress signal emitted during conversion
type StreamEvent struct {
	Type       EventType `json:"type"`
	PageNumber int       `json:"page_number,omitempty"`
	Completed  int       `json:"completed"`
	Total      int       `json:"total"`
	Payload    string    `json:"payload,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// EventSink receives progress events. A nil sink discards them.
type EventSink func(StreamEvent)

// Emit delivers ev to the sink if there is one.
func (s EventSink) Emit(ev StreamEvent) {
	if s != nil {
		s(ev)
	}
}
