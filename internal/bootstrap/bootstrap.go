// Package bootstrap builds the conversion stack from configuration.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/spherical/scan2docx/internal/cache"
	"github.com/spherical/scan2docx/internal/config"
	"github.com/spherical/scan2docx/internal/convert"
	"github.com/spherical/scan2docx/internal/docx"
	"github.com/spherical/scan2docx/internal/domain"
	"github.com/spherical/scan2docx/internal/jobs"
	"github.com/spherical/scan2docx/internal/observability"
	"github.com/spherical/scan2docx/internal/ocr"
	"github.com/spherical/scan2docx/internal/pdf"
	"github.com/spherical/scan2docx/internal/server"
	"github.com/spherical/scan2docx/internal/storage"
)

// App is the fully wired HTTP service.
type App struct {
	Config  *config.Config
	Logger  *observability.Logger
	Service *convert.Service
	Jobs    *jobs.Manager
	Cache   cache.Client
	DB      *sql.DB
}

// NewLogger creates the process logger from cfg.
func NewLogger(cfg *config.Config) *observability.Logger {
	return observability.NewLogger(observability.LogConfig{
		Level:  cfg.Observability.LogLevel,
		Format: cfg.Observability.LogFormat,
	})
}

// NewRasterizer returns the configured page rasterizer.
func NewRasterizer(cfg *config.Config) (domain.Rasterizer, error) {
	switch cfg.Engines.Rasterizer {
	case "fitz":
		return pdf.NewFitzRasterizer(), nil
	case "poppler":
		return pdf.NewPopplerRasterizer(cfg.Engines.PdftoppmPath, cfg.Engines.PageTimeout), nil
	default:
		return nil, domain.ConfigError(fmt.Sprintf("unknown rasterizer %q", cfg.Engines.Rasterizer), nil)
	}
}

// NewRecognizer returns the configured OCR engine.
func NewRecognizer(cfg *config.Config) (domain.Recognizer, error) {
	switch cfg.Engines.OCR {
	case "tesseract":
		return ocr.NewTesseractCLI(
			cfg.Engines.TesseractPath,
			cfg.Engines.TessdataDir,
			cfg.Engines.PageTimeout,
			cfg.SupportedLanguages(),
		), nil
	case "gosseract":
		lib, err := ocr.NewLibTesseract(cfg.Engines.TessdataDir)
		if err != nil {
			return nil, err
		}
		return lib, nil
	default:
		return nil, domain.ConfigError(fmt.Sprintf("unknown ocr engine %q", cfg.Engines.OCR), nil)
	}
}

// NewService builds the conversion pipeline. No engine is invoked.
func NewService(cfg *config.Config, logger *observability.Logger) (*convert.Service, error) {
	rasterizer, err := NewRasterizer(cfg)
	if err != nil {
		return nil, err
	}
	recognizer, err := NewRecognizer(cfg)
	if err != nil {
		return nil, err
	}

	policy := convert.DefaultPagePolicy()
	policy.MaxAttempts = cfg.Conversion.MaxAttempts
	policy.MarkFailed = cfg.Conversion.MarkFailedPages

	return convert.NewService(rasterizer, recognizer, docx.NewAssembler(),
		convert.WithLanguages(cfg.SupportedLanguages()),
		convert.WithPolicy(policy),
		convert.WithLogger(logger),
	), nil
}

// NewCache connects the configured result cache.
func NewCache(ctx context.Context, cfg *config.Config) (cache.Client, error) {
	if cfg.Cache.Driver == "redis" {
		return cache.NewRedisClient(ctx, cache.RedisConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			PoolSize: cfg.Cache.Redis.PoolSize,
			Prefix:   cfg.Cache.Redis.KeyPrefix,
		})
	}
	return cache.NewMemoryClient(cfg.Cache.MaxEntries), nil
}

// OpenStore connects and migrates the job database.
func OpenStore(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	opts := storage.Options{Driver: cfg.Database.Driver, DSN: cfg.DatabaseDSN()}
	if cfg.Database.Driver == "sqlite" {
		opts.MaxOpenConns = cfg.Database.SQLite.MaxOpenConns
	} else {
		opts.MaxOpenConns = cfg.Database.Postgres.MaxOpenConns
		opts.MaxIdleConns = cfg.Database.Postgres.MaxIdleConns
		opts.ConnMaxLifetime = cfg.Database.Postgres.ConnMaxLifetime
	}

	db, err := storage.Open(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := storage.Migrate(ctx, db, cfg.Database.Driver); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// New wires the service, cache, job store and job manager.
func New(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*App, error) {
	if logger == nil {
		logger = NewLogger(cfg)
	}

	svc, err := NewService(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("build conversion service: %w", err)
	}

	resultCache, err := NewCache(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect cache: %w", err)
	}

	db, err := OpenStore(ctx, cfg)
	if err != nil {
		resultCache.Close()
		return nil, fmt.Errorf("open job store: %w", err)
	}

	manager := jobs.NewManager(svc,
		jobs.Config{MaxConcurrent: cfg.Conversion.MaxConcurrentJobs, CacheTTL: cfg.Cache.TTL},
		jobs.WithStore(storage.NewJobRepository(db)),
		jobs.WithCache(resultCache),
		jobs.WithLogger(logger),
	)

	logger.Info().
		Str("rasterizer", cfg.Engines.Rasterizer).
		Str("ocr", cfg.Engines.OCR).
		Str("database", cfg.Database.Driver).
		Str("cache", cfg.Cache.Driver).
		Int("max_concurrent_jobs", cfg.Conversion.MaxConcurrentJobs).
		Strs("languages", cfg.Conversion.Languages).
		Int64("max_upload_bytes", cfg.Server.MaxUploadBytes).
		Msg("Application wired")

	return &App{
		Config:  cfg,
		Logger:  logger,
		Service: svc,
		Jobs:    manager,
		Cache:   resultCache,
		DB:      db,
	}, nil
}

// Router returns the HTTP handler for the app.
func (a *App) Router() http.Handler {
	return server.NewRouter(a.Logger, a.Service, a.Jobs, server.Config{
		MaxUploadBytes:  a.Config.Server.MaxUploadBytes,
		APIKey:          a.Config.Server.APIKey,
		DefaultDPI:      a.Config.Conversion.DPI,
		DefaultLanguage: domain.Language(a.Config.Conversion.Language),
		DefaultSegMode:  a.Config.DefaultSegMode(),
	})
}

// Close stops running jobs and releases the cache and database.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.Jobs.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.Cache.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close cache: %w", err))
	}
	if err := a.DB.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}
	return errors.Join(errs...)
}
