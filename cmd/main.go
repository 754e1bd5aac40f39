package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"calendar-agent/internal/api"
	"calendar-agent/internal/bootstrap"
	"calendar-agent/internal/config"
	"calendar-agent/internal/logging"
	"calendar-agent/web"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	// ---- Configuration (read only here) ----
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)

	// ---- Application graph ----
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		slog.Error("failed to build application", "err", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := app.Close(); closeErr != nil {
			slog.Error("failed to close application", "err", closeErr)
		}
	}()

	// ---- HTTP ----
	tmpl, err := web.Templates()
	if err != nil {
		slog.Error("failed to parse templates", "err", err)
		os.Exit(1)
	}
	sessions, err := api.NewSessions(cfg.SecretKey, strings.HasPrefix(cfg.Google.RedirectURI, "https://"))
	if err != nil {
		slog.Error("failed to create session store", "err", err)
		os.Exit(1)
	}
	if cfg.SecretKey == "" {
		slog.Warn("SECRET_KEY not set, sessions will not survive a restart")
	}

	h, err := api.NewHandler(app.Process, app.Flow, sessions, tmpl, api.Options{
		WorkDir:        cfg.WorkDir,
		MaxUploadBytes: cfg.MaxUploadBytes(),
		Logger:         logger,
	})
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	// Generated scripts can run for as long as the user takes to finish the
	// Google consent screen, so there is no write timeout.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(h),
		ReadHeaderTimeout: 30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr, "model", cfg.OpenAI.Model, "context_backend", cfg.Context.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "err", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
