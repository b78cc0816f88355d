// Package convert runs the PDF to DOCX conversion pipeline: rasterize every
// page, recognize its text, and assemble the pages into one document.
package convert

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spherical/scan2docx/internal/domain"
	"github.com/spherical/scan2docx/internal/imaging"
	"github.com/spherical/scan2docx/internal/observability"
)

// Service orchestrates one conversion per call. It keeps no per-request state
// and may be shared by concurrent callers when its engines are.
type Service struct {
	rasterizer domain.Rasterizer
	recognizer domain.Recognizer
	assembler  domain.Assembler
	languages  []domain.Language
	policy     PagePolicy
	logger     *observability.Logger
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithPolicy sets the page failure policy.
func WithPolicy(p PagePolicy) Option {
	return func(s *Service) { s.policy = p.normalized() }
}

// WithLanguages replaces the supported language set.
func WithLanguages(langs []domain.Language) Option {
	return func(s *Service) {
		if len(langs) > 0 {
			s.languages = langs
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *observability.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l.WithComponent("convert")
		}
	}
}

// WithClock overrides the clock used to stamp output names.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a conversion service from its three engines.
func NewService(r domain.Rasterizer, o domain.Recognizer, a domain.Assembler, opts ...Option) *Service {
	s := &Service{
		rasterizer: r,
		recognizer: o,
		assembler:  a,
		languages:  domain.DefaultLanguages,
		policy:     DefaultPagePolicy(),
		logger:     observability.NewNopLogger(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Languages returns the supported language set.
func (s *Service) Languages() []domain.Language {
	return s.languages
}

// CheckEngines runs the eager configuration check of every engine that
// supports one, so a missing binary or language pack fails before any page
// is processed. With langs given, only those language packs are required;
// otherwise every supported language is.
func (s *Service) CheckEngines(ctx context.Context, langs ...domain.Language) error {
	for _, engine := range []any{s.rasterizer, s.recognizer, s.assembler} {
		if lc, ok := engine.(domain.LanguageChecker); ok && len(langs) > 0 {
			if err := lc.CheckLanguages(ctx, langs); err != nil {
				return err
			}
			continue
		}
		checker, ok := engine.(domain.EngineChecker)
		if !ok {
			continue
		}
		if err := checker.Check(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Validate applies defaults to req and checks its parameters.
func (s *Service) Validate(req domain.ConversionRequest) (domain.ConversionRequest, error) {
	req = applyDefaults(req)

	if len(req.Source) == 0 {
		return req, domain.ValidationError("no document uploaded", nil)
	}
	if err := domain.ValidateLanguage(req.Language, s.languages); err != nil {
		return req, err
	}
	if !req.SegMode.Valid() {
		return req, domain.ValidationError(fmt.Sprintf("unsupported segmentation mode %d", req.SegMode), nil)
	}
	return req, nil
}

func applyDefaults(req domain.ConversionRequest) domain.ConversionRequest {
	req.DPI = domain.ClampDPI(req.DPI)
	if req.Language == "" {
		req.Language = domain.DefaultLanguage
	}
	// "eng + fra" and "eng+" reach the engine as "eng+fra" and "eng"
	req.Language = domain.Language(strings.Join(req.Language.Codes(), "+"))
	if req.SegMode == 0 {
		req.SegMode = domain.DefaultSegmentationMode
	}
	return req
}

// Convert runs the full pipeline for one request. Pages are processed
// strictly in order and only the current page image is held in memory.
// Progress is reported through sink, which may be nil.
//
// Failures are terminal: no partial document is returned. A failure while
// opening the document emits no events at all.
func (s *Service) Convert(ctx context.Context, req domain.ConversionRequest, sink domain.EventSink) (*domain.ConversionResult, error) {
	startTime := time.Now()
	log := s.logger.WithContext(ctx).WithOperation("convert")

	req, err := s.Validate(req)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("source", req.SourceName).
		Int("bytes", len(req.Source)).
		Int("dpi", req.DPI).
		Str("lang", string(req.Language)).
		Int("psm", int(req.SegMode)).
		Msg("Starting conversion")

	pages, err := s.rasterizer.Rasterize(ctx, req.Source, req.DPI)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open document")
		return nil, classify(err, domain.RenderError, "failed to open document")
	}
	defer func() {
		if cerr := pages.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("Failed to release document")
		}
	}()

	total := pages.NumPages()
	sink.Emit(domain.StreamEvent{
		Type:      domain.EventStart,
		Total:     total,
		Payload:   fmt.Sprintf("Converting %d pages", total),
		Timestamp: time.Now(),
	})

	params := req.Params()
	texts := make([]domain.PageText, 0, total)
	failed := 0

	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			log.Info().Int("page", i).Msg("Conversion cancelled")
			return nil, domain.CancelledError(fmt.Sprintf("cancelled before page %d of %d", i, total), err)
		}

		text, err := s.processPage(ctx, pages, i, params)
		if err != nil {
			if !s.policy.MarkFailed || !degradable(err) {
				log.Error().Int("page", i).Err(err).Msg("Page failed")
				return nil, fmt.Errorf("page %d of %d: %w", i, total, err)
			}
			failed++
			log.Warn().Int("page", i).Err(err).Msg("Page failed, marking it in the document")
			texts = append(texts, domain.PageText{Index: i, Failed: true, FailureReason: reason(err)})
		} else {
			texts = append(texts, domain.PageText{Index: i, Text: text})
		}

		sink.Emit(domain.StreamEvent{
			Type:       domain.EventPageComplete,
			PageNumber: i,
			Completed:  i,
			Total:      total,
			Payload:    fmt.Sprintf("Completed page %d of %d", i, total),
			Timestamp:  time.Now(),
		})
	}

	sink.Emit(domain.StreamEvent{
		Type:      domain.EventAssembling,
		Completed: total,
		Total:     total,
		Payload:   "Assembling document",
		Timestamp: time.Now(),
	})

	title := DocumentTitle(req.SourceName)
	doc, err := s.assembler.Assemble(texts, title)
	if err != nil {
		log.Error().Err(err).Msg("Failed to assemble document")
		return nil, classify(err, domain.AssemblyError, "failed to assemble document")
	}

	result := &domain.ConversionResult{
		Document:    doc,
		Name:        OutputName(req.SourceName, s.now()),
		Title:       title,
		Pages:       total,
		ContentType: domain.DOCXContentType,
		FailedPages: failed,
	}

	duration := time.Since(startTime)
	sink.Emit(domain.StreamEvent{
		Type:      domain.EventComplete,
		Completed: total,
		Total:     total,
		Payload:   result.Name,
		Timestamp: time.Now(),
	})

	log.Info().
		Int("pages", total).
		Int("failed_pages", failed).
		Int("bytes", len(doc)).
		Dur("duration", duration).
		Str("output", result.Name).
		Msg("Conversion complete")

	return result, nil
}

// processPage renders, normalizes and recognizes a single page. The page
// image goes out of scope when this returns.
func (s *Service) processPage(ctx context.Context, pages domain.PageSource, index int, params domain.RecognitionParams) (string, error) {
	page, err := pages.Page(ctx, index)
	if err != nil {
		return "", classify(err, domain.RenderError, fmt.Sprintf("failed to render page %d", index))
	}
	if page.Image == nil {
		return "", domain.RenderError(fmt.Sprintf("page %d rendered no image", index), nil)
	}

	page.Image = imaging.ToRGB(page.Image)
	page.Index = index

	text, err := s.recognizeWithRetry(ctx, page, params)
	if err != nil {
		return "", classify(err, domain.OCRError, fmt.Sprintf("failed to recognize page %d", index))
	}
	return text, nil
}

// classify leaves typed errors alone and wraps anything else with the
// constructor for the stage that produced it.
func classify(err error, wrap func(string, error) *domain.DomainError, msg string) error {
	var de *domain.DomainError
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return domain.CancelledError(msg, err)
	}
	return wrap(msg, err)
}

func reason(err error) string {
	var de *domain.DomainError
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}
