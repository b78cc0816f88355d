package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spherical/scan2docx/internal/bootstrap"
	"github.com/spherical/scan2docx/internal/config"
	"github.com/spherical/scan2docx/internal/convert"
	"github.com/spherical/scan2docx/internal/domain"
	"github.com/spherical/scan2docx/internal/observability"
)

var serveCheck bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP conversion service",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveCheck, "check", true, "verify the OCR engine before listening")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := appCfg
	log := bootstrap.NewLogger(cfg)

	app, err := bootstrap.New(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}

	if serveCheck {
		if err := checkServeEngines(cmd.Context(), app.Service, cfg, log); err != nil {
			closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
			defer cancel()
			_ = app.Close(closeCtx)
			return err
		}
	}

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      app.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	var serveErr error
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Server error")
			serveErr = err
		}
	case sig := <-shutdown:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
		if err := srv.Close(); err != nil {
			log.Error().Err(err).Msg("Forced shutdown failed")
		}
	}
	if err := app.Close(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to release resources")
	}

	log.Info().Msg("Server stopped")
	return serveErr
}

// checkServeEngines requires the default language pack. Other supported
// languages only produce a warning; requests for them fail individually.
func checkServeEngines(ctx context.Context, svc *convert.Service, cfg *config.Config, log *observability.Logger) error {
	if err := svc.CheckEngines(ctx, domain.Language(cfg.Conversion.Language)); err != nil {
		return err
	}
	if err := svc.CheckEngines(ctx); err != nil {
		log.Warn().Err(err).Msg("Some supported languages are unavailable")
	}
	return nil
}
