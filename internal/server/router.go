// Package server exposes conversions over HTTP.
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/spherical/scan2docx/internal/domain"
	"github.com/spherical/scan2docx/internal/observability"
	"github.com/spherical/scan2docx/internal/storage"
)

// Converter runs a synchronous conversion.
type Converter interface {
	Convert(ctx context.Context, req domain.ConversionRequest, sink domain.EventSink) (*domain.ConversionResult, error)
	Languages() []domain.Language
}

// JobManager runs asynchronous conversions.
type JobManager interface {
	Submit(ctx context.Context, req domain.ConversionRequest) (*storage.Job, error)
	Get(ctx context.Context, id uuid.UUID) (*storage.Job, error)
	List(ctx context.Context, limit int) ([]*storage.Job, error)
	Document(ctx context.Context, id uuid.UUID) (*domain.ConversionResult, error)
	Cancel(id uuid.UUID) error
}

// Config holds router settings.
type Config struct {
	MaxUploadBytes  int64
	APIKey          string
	DefaultDPI      int
	DefaultLanguage domain.Language
	DefaultSegMode  domain.SegmentationMode
}

// NewRouter creates the API router with all routes configured.
func NewRouter(logger *observability.Logger, conv Converter, jobs JobManager, cfg Config) http.Handler {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	h := &handler{
		logger: logger.WithComponent("server"),
		conv:   conv,
		jobs:   jobs,
		cfg:    cfg.withDefaults(),
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(APIKey(cfg.APIKey))

		r.Get("/options", h.Options)
		r.Post("/convert", h.Convert)

		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", h.SubmitJob)
			r.Get("/", h.ListJobs)
			r.Get("/{jobID}", h.GetJob)
			r.Delete("/{jobID}", h.CancelJob)
			r.Get("/{jobID}/document", h.JobDocument)
		})
	})

	return r
}

func (c Config) withDefaults() Config {
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 50 << 20
	}
	c.DefaultDPI = domain.ClampDPI(c.DefaultDPI)
	if c.DefaultLanguage == "" {
		c.DefaultLanguage = domain.DefaultLanguage
	}
	if !c.DefaultSegMode.Valid() {
		c.DefaultSegMode = domain.DefaultSegmentationMode
	}
	return c
}
